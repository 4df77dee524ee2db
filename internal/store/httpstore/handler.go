package httpstore

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// Resolver returns the store serving a project's base.
type Resolver func(project, base string) (store.Store, error)

// HandlerOption configures NewHandler.
type HandlerOption func(*handler)

// WithAPIKey makes the handler reject requests whose X-API-Key differs.
func WithAPIKey(key string) HandlerOption {
	return func(h *handler) { h.apiKey = key }
}

// WithHandlerLogger sets the request logger.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *handler) { h.logger = l }
}

type handler struct {
	resolve Resolver
	apiKey  string
	logger  *slog.Logger
}

// NewHandler serves the API under /v1 over the stores resolve returns.
// Point a client at <server>/v1.
func NewHandler(resolve Resolver, opts ...HandlerOption) http.Handler {
	h := &handler{
		resolve: resolve,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	r := mux.NewRouter().UseEncodedPath()
	api := r.PathPrefix("/v1/{project}/{base}").Subrouter()
	api.Use(h.authenticate)
	api.HandleFunc("/items/{key}", h.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/items/{key}", h.handleUpdate).Methods(http.MethodPatch)
	api.HandleFunc("/items", h.handlePut).Methods(http.MethodPut)
	api.HandleFunc("/items", h.handleInsert).Methods(http.MethodPost)
	api.HandleFunc("/query", h.handleQuery).Methods(http.MethodPost)
	return r
}

func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" && r.Header.Get(APIKeyHeader) != h.apiKey {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// target resolves the store and the unescaped key (when routed).
func (h *handler) target(w http.ResponseWriter, r *http.Request) (store.Store, string, bool) {
	vars := mux.Vars(r)
	project, err1 := url.PathUnescape(vars["project"])
	base, err2 := url.PathUnescape(vars["base"])
	key, err3 := url.PathUnescape(vars["key"])
	if err := errors.Join(err1, err2, err3); err != nil {
		respondError(w, http.StatusBadRequest, "malformed path")
		return nil, "", false
	}

	st, err := h.resolve(project, base)
	if err != nil {
		h.logger.Warn("resolve base", "project", project, "base", base, "error", err)
		respondError(w, http.StatusNotFound, err.Error())
		return nil, "", false
	}
	return st, key, true
}

func (h *handler) handleGet(w http.ResponseWriter, r *http.Request) {
	st, key, ok := h.target(w, r)
	if !ok {
		return
	}
	item, err := st.Get(r.Context(), key)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *handler) handleInsert(w http.ResponseWriter, r *http.Request) {
	st, _, ok := h.target(w, r)
	if !ok {
		return
	}
	var req insertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Item == nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	key := assignKey(req.Item)
	item, err := st.Insert(r.Context(), key, store.WithoutKey(req.Item))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *handler) handlePut(w http.ResponseWriter, r *http.Request) {
	st, _, ok := h.target(w, r)
	if !ok {
		return
	}
	var req putItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	items := make([]value.Object, len(req.Items))
	for i, item := range req.Items {
		items[i] = store.WithKey(assignKey(item), item)
	}
	out, err := st.PutMany(r.Context(), items)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	var resp putItemsResponse
	resp.Processed.Items = out
	respondJSON(w, http.StatusMultiStatus, resp)
}

func (h *handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	st, key, ok := h.target(w, r)
	if !ok {
		return
	}
	var payload value.Object
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	upd, err := store.UpdateFromObject(payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := st.Update(r.Context(), key, upd); err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, payload)
}

func (h *handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	st, _, ok := h.target(w, r)
	if !ok {
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	page, err := st.Fetch(r.Context(), req.Query, store.FetchOptions{Limit: req.Limit, Last: req.Last})
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	var resp queryResponse
	resp.Items = page.Items
	resp.Paging.Size = len(page.Items)
	resp.Paging.Last = page.Last
	respondJSON(w, http.StatusOK, resp)
}

// assignKey returns the item's key, generating one when it has none.
func assignKey(item value.Object) string {
	if key, err := store.ItemKey(item); err == nil {
		return key
	}
	return uuid.NewString()
}

func (h *handler) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var qErr *query.Error
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrKeyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateKey):
		status = http.StatusConflict
	case errors.Is(err, store.ErrBatchTooLarge), errors.Is(err, store.ErrMissingKey),
		errors.Is(err, store.ErrInvalidUpdate), errors.As(err, &qErr):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("store failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Errors: []string{message}})
}
