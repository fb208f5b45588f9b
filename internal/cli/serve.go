package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/dirsync/internal/api"
	"github.com/roach88/dirsync/internal/tracing"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

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
		Short: "Serve the HTTP API and run the event loop",
		Long: `Start the HTTP API and the engine event loop.

Events logged but never dispatched (for example after a crash) are
re-delivered before the API starts accepting requests. SIGINT or
SIGTERM shuts both down gracefully.

Examples:
  dirsync serve --db ./dirsync.db
  dirsync serve --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(opts.Config.Tracing)
	if err != nil {
		return WrapExitError(ExitCommandError, "tracing", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Error("tracing shutdown failed", "error", err)
		}
	}()

	a, err := openApp(ctx, opts.RootOptions, tp.Tracer())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Engine.Recover(ctx)
	if err != nil {
		slog.Error("recovery finished with errors", "redelivered", n, "error", err)
	} else if n > 0 {
		slog.Info("recovery finished", "redelivered", n)
	}

	addr := opts.Addr
	if addr == "" {
		addr = opts.Config.Addr
	}
	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(a).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := a.Engine.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		slog.Info("http listening", "addr", addr, "database", opts.Config.Database)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Engine.Stop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "serve", err)
	}
	slog.Info("server stopped")
	return nil
}
