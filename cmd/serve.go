package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reliability/internal/bootstrap/config"
	"reliability/internal/bootstrap/logging"
	"reliability/internal/errs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reliability JSON API with health and metrics endpoints",
	RunE: withDeps(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		httpCfg := deps.App.Config.HTTP
		if addr, _ := cmd.Flags().GetString("addr"); strings.TrimSpace(addr) != "" {
			httpCfg.Addr = strings.TrimSpace(addr)
		}

		server := newHTTPServer(ctx, httpCfg, newReliabilityHandler(deps.Service, deps.Metrics, deps.Registry))
		return runHTTPServer(ctx, server, httpCfg.ShutdownTimeout)
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default: http.addr)")
}

func newHTTPServer(ctx context.Context, cfg config.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

// runHTTPServer serves until SIGINT or SIGTERM, then drains in-flight requests.
func runHTTPServer(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info(ctx, "http server started", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logging.Info(ctx, "shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logging.Error(ctx, "http server failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "serve http")
		}
		return nil
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(err, "shutdown http server")
	}
	logging.Info(ctx, "http server stopped")
	return nil
}
