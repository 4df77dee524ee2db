package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/basekit/internal/database"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/store/boltstore"
	"github.com/roach88/basekit/internal/store/httpstore"
	"github.com/roach88/basekit/internal/store/memstore"
	"github.com/roach88/basekit/internal/store/redisstore"
	"github.com/roach88/basekit/internal/store/sqlitestore"
	"github.com/roach88/basekit/internal/store/storemetrics"
)

// backend is an opened store kind. Every base it hands out is
// instrumented on one registry.
type backend struct {
	kind     string
	open     func(base string) store.Store
	close    func() error
	registry *prometheus.Registry
	logger   *slog.Logger

	mu    sync.Mutex
	bases map[string]store.Store
}

// newLogger configures logging based on the verbose flag.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// resolved returns the config with defaults filled in, for commands run
// without the root command.
func (o *RootOptions) resolved() Config {
	cfg := o.Config
	if cfg.Store == "" {
		cfg.Store = StoreMemory
	}
	if cfg.Base == "" {
		cfg.Base = "default"
	}
	return cfg
}

func openBackend(ctx context.Context, cfg Config, logger *slog.Logger) (*backend, error) {
	b := &backend{
		kind:     cfg.Store,
		close:    func() error { return nil },
		registry: prometheus.NewRegistry(),
		logger:   logger,
		bases:    make(map[string]store.Store),
	}

	switch cfg.Store {
	case StoreMemory:
		b.open = func(string) store.Store { return memstore.New() }

	case StoreSQLite:
		if cfg.Path == "" {
			return nil, invalidInput("the sqlite store needs --path")
		}
		db, err := sqlitestore.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		b.open = func(base string) store.Store { return db.Base(base) }
		b.close = db.Close

	case StoreBolt:
		if cfg.Path == "" {
			return nil, invalidInput("the bolt store needs --path")
		}
		db, err := boltstore.Open(cfg.Path, boltstore.Options{})
		if err != nil {
			return nil, err
		}
		b.open = func(base string) store.Store { return db.Base(base) }
		b.close = db.Close

	case StoreRedis:
		client, err := redisstore.NewClient(ctx, redisstore.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			return nil, err
		}
		b.open = func(base string) store.Store { return redisstore.New(client, base) }
		b.close = client.Close

	case StoreHTTP:
		hcfg := httpstore.Config{
			URL:     cfg.HTTP.URL,
			Project: cfg.HTTP.Project,
			APIKey:  cfg.HTTP.APIKey,
			Timeout: cfg.HTTP.Timeout,
			Retries: cfg.HTTP.Retries,
		}
		b.open = func(base string) store.Store { return httpstore.New(hcfg, base) }

	default:
		return nil, invalidInput("unknown store %q", cfg.Store)
	}

	logger.Debug("store opened", "store", cfg.Store, "path", cfg.Path)
	return b, nil
}

// Base returns the instrumented store for name. Repeated calls return the
// same store, so a memory base keeps its items for the backend's lifetime.
func (b *backend) Base(name string) (store.Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.bases[name]; ok {
		return st, nil
	}
	st, err := storemetrics.Wrap(b.open(name), b.registry, name)
	if err != nil {
		return nil, err
	}
	b.bases[name] = st
	return st, nil
}

// Close logs the operation totals and releases the backend.
func (b *backend) Close() error {
	if totals, err := storemetrics.Totals(b.registry); err == nil && len(totals) > 0 {
		names := make([]string, 0, len(totals))
		for name := range totals {
			names = append(names, name)
		}
		sort.Strings(names)
		attrs := make([]any, 0, 2*len(names))
		for _, name := range names {
			attrs = append(attrs, name, totals[name])
		}
		b.logger.Debug("store operations", attrs...)
	}
	return b.close()
}

// session is what a data command works with: one base of the configured
// backend behind a Database.
type session struct {
	backend *backend
	base    string
	db      *database.Database
	logger  *slog.Logger
}

// openSession opens the configured backend and the named base (the
// configured base when empty).
func openSession(cmd *cobra.Command, opts *RootOptions, base string, dbOpts ...database.Option) (*session, error) {
	cfg := opts.resolved()
	if base == "" {
		base = cfg.Base
	}
	logger := newLogger(opts, cmd.ErrOrStderr())

	b, err := openBackend(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	st, err := b.Base(base)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	dbOpts = append([]database.Option{database.WithLogger(logger)}, dbOpts...)
	if opts.Keys != nil {
		dbOpts = append(dbOpts, database.WithKeyGenerator(opts.Keys))
	}
	return &session{
		backend: b,
		base:    base,
		db:      database.New(st, dbOpts...),
		logger:  logger,
	}, nil
}

func (s *session) Close() {
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing store", "error", err)
	}
}
