package httpstore

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/store/memstore"
	"github.com/roach88/basekit/internal/store/storetest"
	"github.com/roach88/basekit/internal/value"
)

// newEmulator serves one memstore per (project, base).
func newEmulator(t *testing.T, opts ...HandlerOption) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	stores := map[string]*memstore.Store{}
	resolve := func(project, base string) (store.Store, error) {
		mu.Lock()
		defer mu.Unlock()
		id := project + "/" + base
		if stores[id] == nil {
			stores[id] = memstore.New()
		}
		return stores[id], nil
	}
	srv := httptest.NewServer(NewHandler(resolve, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server, base string) *Store {
	return New(Config{URL: srv.URL + "/v1", Project: "proj", APIKey: "secret", Timeout: 5 * time.Second}, base)
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newClient(newEmulator(t), "conformance")
	})
}

func TestInsertConflictMapsToDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newClient(newEmulator(t), "b")

	_, err := s.Insert(ctx, "k", value.Object{})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "k", value.Object{})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestKeysAreEscaped(t *testing.T) {
	ctx := context.Background()
	s := newClient(newEmulator(t), "b")

	for _, key := range []string{"a/b", "with space", "q?x=1", "100%"} {
		_, err := s.Put(ctx, key, value.Object{"v": value.String(key)})
		require.NoError(t, err, key)

		got, err := s.Get(ctx, key)
		require.NoError(t, err, key)
		assert.Equal(t, value.String(key), got["key"])

		require.NoError(t, s.Update(ctx, key, store.Update{Set: map[string]value.Value{"n": value.Int(1)}}), key)
	}
}

func TestBasesAreSeparate(t *testing.T) {
	ctx := context.Background()
	srv := newEmulator(t)

	_, err := newClient(srv, "cats").Put(ctx, "tom", value.Object{})
	require.NoError(t, err)
	_, err = newClient(srv, "dogs").Get(ctx, "tom")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAPIKeyRequired(t *testing.T) {
	srv := newEmulator(t, WithAPIKey("secret"))

	_, err := newClient(srv, "b").Put(context.Background(), "k", value.Object{})
	require.NoError(t, err)

	bad := New(Config{URL: srv.URL + "/v1", Project: "proj", APIKey: "wrong"}, "b")
	_, err = bad.Get(context.Background(), "k")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestQueryErrorIsBadRequest(t *testing.T) {
	s := newClient(newEmulator(t), "b")

	_, err := s.Fetch(context.Background(), query.Wire{{"n?between": value.Int(1)}}, store.FetchOptions{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "UNKNOWN_OPERATOR")
}

func TestEmulatorGeneratesMissingKeys(t *testing.T) {
	srv := newEmulator(t)
	s := newClient(srv, "b")

	var resp putItemsResponse
	err := s.do(context.Background(), http.MethodPut, "/items",
		putItemsRequest{Items: []value.Object{{"v": value.Int(1)}}}, &resp)
	require.NoError(t, err)
	require.Len(t, resp.Processed.Items, 1)

	key, err := store.ItemKey(resp.Processed.Items[0])
	require.NoError(t, err)
	assert.Len(t, key, 36)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"key":"k","n":1}`)
	}))
	defer srv.Close()

	s := New(Config{URL: srv.URL, Project: "p", Retries: 3}, "b")
	got, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), got["n"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetriesGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(Config{URL: srv.URL, Project: "p"}, "b").Get(context.Background(), "k")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrNotFound)
}
