package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/graft"
	httpAdapter "github.com/aretw0/graft/internal/adapters/http"
	redisAdapter "github.com/aretw0/graft/internal/adapters/redis"
	"github.com/aretw0/graft/internal/config"
	"github.com/aretw0/graft/internal/logging"
	"github.com/aretw0/graft/internal/observability"
	"github.com/aretw0/graft/pkg/domain"
	"github.com/aretw0/graft/pkg/intent"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Starts the Graft runtime in server mode, exposing intent submission, execution polling and the artifact boundary over a JSON API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		logger := newLogger(cfg.Logging)

		registry := prometheus.NewRegistry()
		metrics := observability.New(registry)

		opts := []graft.Option{
			graft.WithLogger(logger),
			graft.WithLifecycleHooks(metrics.Hooks()),
			graft.WithExpiryCallback(metrics.OnExpiredContracts),
			graft.WithExecutionTimeout(cfg.Runtime.ExecutionTimeout),
			graft.WithIdempotencyWindow(cfg.Runtime.IdempotencyWindow),
			graft.WithContractTTL(cfg.Runtime.ContractTTL),
			graft.WithSweepInterval(cfg.Runtime.SweepInterval),
			graft.WithHotStateTTL(cfg.Runtime.HotStateTTL),
		}
		if cfg.Storage.Redis.Addr != "" {
			hot := redisAdapter.New(cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
			defer hot.Close()
			opts = append(opts, graft.WithHotStore(hot))
		}

		rt, err := graft.New(cfg.Storage.SQLitePath, opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize runtime: %w", err)
		}
		defer rt.Close()

		// Built-in smoke-test handler: echoes the submitted parameters back
		// as an event. Real handlers are registered by embedders.
		rt.RegisterIntent("echo", func(ctx context.Context, ec *intent.ExecutionContext) (*domain.HandlerOutput, error) {
			return &domain.HandlerOutput{
				Events: []domain.Event{domain.NewEvent("echo", ec.Parameters)},
			}, nil
		})

		sweepCtx, stopSweeper := context.WithCancel(context.Background())
		defer stopSweeper()
		go rt.StartSweeper(sweepCtx)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.Handle("/", httpAdapter.NewHandler(rt.Engine(), rt.Boundary(), rt.Artifacts(), httpAdapter.WithLogger(logger)))

		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: mux,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("starting server", "addr", srv.Addr, "sqlite_path", cfg.Storage.SQLitePath)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("starting shutdown", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "timeout", cfg.Server.ShutdownTimeout, "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("failed to stop server: %w", err)
				}
			}
			logger.Info("server stopped gracefully")
		}
		return nil
	},
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if cfg.Format == "json" {
		return logging.NewJSON(level)
	}
	return logging.New(level)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Listen address, overrides the config file")
}
