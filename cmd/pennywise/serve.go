package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	pennywise "github.com/pennywise-ai/pennywise"
	"github.com/pennywise-ai/pennywise/internal/metrics"
	"github.com/pennywise-ai/pennywise/pkg/adapters/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Starts the agent in server mode, exposing sessions and turns over a JSON API with Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		collector := metrics.NewCollector()
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		if err := collector.Register(registry); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}

		agent, err := buildAgent(cfg, logger,
			pennywise.WithLifecycleHooks(collector.Hooks()))
		if err != nil {
			return err
		}

		handler := httpapi.NewHandler(agent,
			httpapi.WithLogger(logger),
			httpapi.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		)

		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: handler,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		group, ctx := errgroup.WithContext(ctx)

		group.Go(func() error {
			logger.Info("server listening", "addr", srv.Addr,
				"store", cfg.Store.Backend, "gateway", cfg.Gateway.Backend)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		group.Go(func() error {
			agent.StartSweeper(ctx, cfg.Session.TTL, cfg.Session.SweepInterval)
			return nil
		})

		group.Go(func() error {
			<-ctx.Done()
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return srv.Close()
			}
			return nil
		})

		if err := group.Wait(); err != nil {
			return err
		}
		logger.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
