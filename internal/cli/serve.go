package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/store/httpstore"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured backend over the hosted HTTP API",
		Long: `Serve every base of the configured backend under /v1/{project}/{base},
speaking the same API the http backend uses. Any project name is accepted.
When http.api_key is configured, requests must carry it in X-API-Key.

Point another basekit at it with --store http --http-url http://<addr>/v1.

Example:
  basekit serve --store sqlite --path ./dev.db --addr :8080
  basekit serve --addr 127.0.0.1:0 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8080", "listen address")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	cfg := opts.resolved()
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return formatter.Fail("failed to open store", err)
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return formatter.Fail("failed to listen", err)
	}

	srv := &http.Server{
		Handler:           newServeHandler(b, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	addr := ln.Addr().String()
	logger.Info("serving", "addr", addr, "store", cfg.Store)
	fmt.Fprintf(formatter.Writer, "Serving %s store at http://%s/v1\n", cfg.Store, addr)
	if opts.ServeReady != nil {
		opts.ServeReady <- addr
	}

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return formatter.Fail("server error", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return formatter.Fail("shutdown failed", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

// newServeHandler routes every project's bases to the backend.
func newServeHandler(b *backend, cfg Config, logger *slog.Logger) http.Handler {
	resolve := func(project, base string) (store.Store, error) {
		return b.Base(base)
	}
	hopts := []httpstore.HandlerOption{httpstore.WithHandlerLogger(logger)}
	if cfg.HTTP.APIKey != "" {
		hopts = append(hopts, httpstore.WithAPIKey(cfg.HTTP.APIKey))
	}
	return httpstore.NewHandler(resolve, hopts...)
}
