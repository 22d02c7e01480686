package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/indexsync/internal/app"
	"github.com/kailas-cloud/indexsync/internal/metrics"
	chiTransport "github.com/kailas-cloud/indexsync/internal/transport/chi"
	"github.com/kailas-cloud/indexsync/internal/version"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API for mutation hooks, reindexing and search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	cfg := c.cfg
	logger := c.logger

	logger.Info("Starting indexsync API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", c.env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("backend", cfg.Backend.Driver),
		zap.String("source", cfg.Source.Driver),
	)

	metrics.Register()

	return c.withApp(ctx, func(a *app.App) error {
		a.VerifyMappings(ctx)

		server := chiTransport.NewServer(a.Catalog, a.Indexing, a.Reindex, a.Backend, a.Search, a.Health,
			chiTransport.Options{
				APIKeys:          cfg.Auth.APIKeys,
				MaxCount:         cfg.Search.MaxCount,
				SnapshotTTL:      time.Duration(cfg.Hooks.SnapshotTTLSec) * time.Second,
				SnapshotCapacity: cfg.Hooks.SnapshotCapacity,
			}, logger.Named("http"))

		addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
		srv := &http.Server{
			Addr:         addr,
			Handler:      server.Routes(),
			ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
			WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("Starting HTTP server", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Received shutdown signal")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		})

		err := g.Wait()
		if err == nil {
			logger.Info("Server stopped gracefully")
		}
		return err
	})
}
