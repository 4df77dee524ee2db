// Package httpstore speaks the hosted key-value HTTP API.
//
// Store is a store.Store client built on heimdall, with timeouts and
// retries on 5xx responses. NewHandler serves the same API over any
// store.Store, for local runs and for testing the client.
//
// Routes, relative to <url>/<project>/<base>:
//
//	GET   /items/{key}   fetch one item
//	PUT   /items         {"items": [...]}  put up to 25 items
//	POST  /items         {"item": {...}}   insert, 409 on conflict
//	PATCH /items/{key}   {"set", "increment", "append", "prepend", "delete"}
//	POST  /query         {"query", "limit", "last"}
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"

	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// DefaultURL is the hosted API root.
const DefaultURL = "https://database.deta.sh/v1"

// APIKeyHeader carries the project key.
const APIKeyHeader = "X-API-Key"

// Config holds connection settings.
type Config struct {
	URL     string
	Project string
	APIKey  string
	Timeout time.Duration
	Retries int
}

// APIError is a non-success response the client has no sentinel for.
type APIError struct {
	Status   int
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, strings.Join(e.Messages, "; "))
}

// Store is a client for one base.
type Store struct {
	client   heimdall.Client
	endpoint string
	apiKey   string
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*options)

type options struct {
	doer heimdall.Doer
}

// WithDoer replaces the underlying *http.Client.
func WithDoer(d heimdall.Doer) Option {
	return func(o *options) { o.doer = d }
}

// New returns a client for base.
func New(cfg Config, base string, opts ...Option) *Store {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	hopts := []httpclient.Option{
		httpclient.WithHTTPTimeout(cfg.Timeout),
		httpclient.WithRetryCount(cfg.Retries),
		httpclient.WithRetrier(heimdall.NewRetrier(
			heimdall.NewConstantBackoff(100*time.Millisecond, 50*time.Millisecond))),
	}
	if o.doer != nil {
		hopts = append(hopts, httpclient.WithHTTPClient(o.doer))
	}

	return &Store{
		client: httpclient.NewClient(hopts...),
		endpoint: strings.TrimRight(cfg.URL, "/") + "/" +
			url.PathEscape(cfg.Project) + "/" + url.PathEscape(base),
		apiKey: cfg.APIKey,
	}
}

// do sends body (JSON-encoded when non-nil) and decodes a 2xx response
// into out. Non-2xx responses come back as *APIError.
func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set(APIKeyHeader, s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil && resp == nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(data, &er) == nil {
			apiErr.Messages = er.Errors
		}
		return apiErr
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func status(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func itemPath(key string) string {
	return "/items/" + url.PathEscape(key)
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (value.Object, error) {
	var item value.Object
	err := s.do(ctx, http.MethodGet, itemPath(key), nil, &item)
	if status(err) == http.StatusNotFound {
		return nil, store.KeyErr("get", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return item, nil
}

// Insert implements store.Store.
func (s *Store) Insert(ctx context.Context, key string, data value.Object) (value.Object, error) {
	var item value.Object
	err := s.do(ctx, http.MethodPost, "/items", insertRequest{Item: store.WithKey(key, data)}, &item)
	if status(err) == http.StatusConflict {
		return nil, store.KeyErr("insert", key, store.ErrDuplicateKey)
	}
	if err != nil {
		return nil, fmt.Errorf("insert %q: %w", key, err)
	}
	return item, nil
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, key string, data value.Object) (value.Object, error) {
	items, err := s.putItems(ctx, []value.Object{store.WithKey(key, data)})
	if err != nil {
		return nil, fmt.Errorf("put %q: %w", key, err)
	}
	if len(items) != 1 {
		return nil, fmt.Errorf("put %q: %d items processed", key, len(items))
	}
	return items[0], nil
}

// PutMany implements store.Store.
func (s *Store) PutMany(ctx context.Context, items []value.Object) ([]value.Object, error) {
	if err := store.CheckBatch(items); err != nil {
		return nil, err
	}
	out, err := s.putItems(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("put many: %w", err)
	}
	return out, nil
}

func (s *Store) putItems(ctx context.Context, items []value.Object) ([]value.Object, error) {
	var resp putItemsResponse
	if err := s.do(ctx, http.MethodPut, "/items", putItemsRequest{Items: items}, &resp); err != nil {
		return nil, err
	}
	if resp.Failed != nil && len(resp.Failed.Items) > 0 {
		return nil, fmt.Errorf("%d items failed", len(resp.Failed.Items))
	}
	return resp.Processed.Items, nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, key string, upd store.Update) error {
	err := s.do(ctx, http.MethodPatch, itemPath(key), upd.ToObject(), nil)
	switch status(err) {
	case 0:
		if err != nil {
			return fmt.Errorf("update %q: %w", key, err)
		}
		return nil
	case http.StatusNotFound:
		return store.KeyErr("update", key, store.ErrKeyNotFound)
	case http.StatusBadRequest:
		return store.KeyErr("update", key, fmt.Errorf("%w: %v", store.ErrInvalidUpdate, err))
	default:
		return fmt.Errorf("update %q: %w", key, err)
	}
}

// Fetch implements store.Store.
func (s *Store) Fetch(ctx context.Context, filter query.Wire, opts store.FetchOptions) (store.Page, error) {
	var resp queryResponse
	req := queryRequest{Query: filter, Limit: opts.Limit, Last: opts.Last}
	if err := s.do(ctx, http.MethodPost, "/query", req, &resp); err != nil {
		return store.Page{}, fmt.Errorf("fetch: %w", err)
	}
	if resp.Items == nil {
		resp.Items = []value.Object{}
	}
	return store.Page{Items: resp.Items, Last: resp.Paging.Last}, nil
}
