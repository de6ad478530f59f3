package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/riftproxy/riftproxy/internal/config"
	"github.com/riftproxy/riftproxy/internal/metrics"
	"github.com/riftproxy/riftproxy/internal/observability"
	"github.com/riftproxy/riftproxy/internal/server"
	"github.com/riftproxy/riftproxy/internal/server/handlers"
	"github.com/riftproxy/riftproxy/internal/server/middleware"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the caching proxy server",
	Long: `Start the caching proxy HTTP server with graceful shutdown support.

The entity cache is loaded from the configured store and, unless
server.refresh_on_start is false, static champion data is refreshed before
the listener starts. A failed refresh falls back to the stored catalog.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown, flushes the summoner cache
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload config file (log level applied live)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		if err := observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, namespace); err != nil {
			return &configError{err: err}
		}
		logger := observability.ServerLogger

		metricsPort := cfg.Metrics.Port
		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, metricsPort, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return fmt.Errorf("metrics initialization failed: %w", err)
			}
			metricsPort = observability.GetMetricsPort()
		}

		rt, err := openRuntime(ctx, cfg, logger)
		if err != nil {
			return err
		}

		if rt.APIKey() == "" {
			logger.Warn("No upstream API key configured; platform lookups will be rejected upstream",
				zap.String("env", identity.EnvPrefix+"UPSTREAM_API_KEY"))
		}

		if cfg.Server.RefreshOnStart {
			refreshOnStart(ctx, rt)
		}

		health := handlers.NewHealthManager(versionInfo.Version)
		registerHealthCheckers(health, rt)

		var limiters *middleware.ClientLimiters
		if cfg.Server.ClientRate > 0 {
			limiters = middleware.NewClientLimiters(cfg.Server.ClientRate, cfg.Server.ClientBurst)
		}

		srv := server.New(server.Options{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			IdleTimeout:    cfg.Server.IdleTimeout,
			ClientLimiters: limiters,
			API: &handlers.API{
				Proxy:  rt.coordinator,
				Gate:   rt.gate,
				APIKey: rt.APIKey(),
			},
			Health:   health,
			Identity: identity,
			Build: handlers.BuildInfo{
				Version:   versionInfo.Version,
				Commit:    versionInfo.Commit,
				BuildDate: versionInfo.BuildDate,
			},
			AdminToken:   os.Getenv(identity.EnvPrefix + "ADMIN_TOKEN"),
			PprofEnabled: cfg.Debug.PprofEnabled,
			MetricsPort:  metricsPort,
		})

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", metricsPort),
			zap.String("store_driver", cfg.Store.Driver),
			zap.Float64("client_rate", cfg.Server.ClientRate))

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: server, cache flush, metrics exporter, logger sync.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.StopMetrics(); err != nil {
				logger.Warn("Metrics exporter stop returned error", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing entity cache...")
			if err := rt.Close(ctx); err != nil {
				metrics.RecordFlushFailure("shutdown")
				return fmt.Errorf("close entity cache: %w", err)
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			return reloadConfig(ctx, logger, cfg)
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		metrics.SetServerStartTime(time.Now())

		errChan := make(chan error, 1)
		go func() {
			logger.Info("Starting HTTP server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	},
}

// refreshOnStart runs one static data refresh. Failures are logged and the
// stored catalog stays in service.
func refreshOnStart(ctx context.Context, rt *proxyRuntime) {
	refresh, err := rt.coordinator.RefreshStaticData(ctx, rt.APIKey())
	fields := []zap.Field{
		zap.String("version", refresh.Version.Value),
		zap.Int("champions", refresh.Catalog.Len()),
		zap.Bool("updated", refresh.Updated),
	}
	switch {
	case err != nil && refresh.Fallback:
		rt.logger.Warn("Startup static refresh failed, serving stored catalog", append(fields, zap.Error(err))...)
	case err != nil:
		rt.logger.Error("Startup static refresh failed", append(fields, zap.Error(err))...)
	default:
		rt.logger.Info("Static data ready", fields...)
	}
}

// registerHealthCheckers wires the readiness checks for the runtime.
func registerHealthCheckers(hm *handlers.HealthManager, rt *proxyRuntime) {
	hm.RegisterChecker("store", handlers.CheckerFunc(func(ctx context.Context) error {
		if _, err := rt.persister.LoadStaticVersion(ctx); err != nil {
			return fmt.Errorf("store unreachable: %w", err)
		}
		return nil
	}))
	hm.RegisterChecker("static_catalog", handlers.CheckerFunc(func(ctx context.Context) error {
		if rt.cache.Catalog().Len() == 0 {
			return &handlers.DegradedError{Reason: "champion catalog is empty"}
		}
		return nil
	}))
	hm.RegisterChecker("rate_gate", handlers.CheckerFunc(func(ctx context.Context) error {
		if !rt.gate.Decide() {
			return &handlers.DegradedError{Reason: "upstream rate limit exhausted"}
		}
		return nil
	}))
	hm.RegisterChecker("telemetry", handlers.CheckerFunc(func(ctx context.Context) error {
		if !rt.cfg.Metrics.Enabled {
			return nil
		}
		if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
			return errors.New("telemetry system not initialized")
		}
		return nil
	}))
}

// reloadConfig re-reads the config file on SIGHUP. Only the log level is
// applied live; other changes need a restart.
func reloadConfig(ctx context.Context, logger *logging.Logger, current *config.Config) error {
	logger.Info("Received SIGHUP: attempting config reload")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logger.Info("No config file found - using defaults and environment variables")
			return nil
		}
		logger.Error("Failed to reload config file",
			zap.String("file", viper.ConfigFileUsed()),
			zap.Error(err))
		return fmt.Errorf("config reload failed: %w", err)
	}

	next, err := loadConfig(ctx)
	if err != nil {
		logger.Error("Reloaded config is invalid, keeping current settings", zap.Error(err))
		return err
	}

	if next.Logging.Level != current.Logging.Level {
		if err := observability.SetServerLevel(next.Logging.Level); err != nil {
			logger.Warn("Ignoring log level change", zap.Error(err))
		} else {
			logger.Info("Log level updated",
				zap.String("from", current.Logging.Level),
				zap.String("to", next.Logging.Level))
			current.Logging.Level = next.Logging.Level
		}
	}
	if next.Server != current.Server || next.Store != current.Store || next.Upstream != current.Upstream {
		logger.Warn("Server, store or upstream settings changed; restart to apply them")
	}

	logger.Info("Configuration reloaded", zap.String("file", viper.ConfigFileUsed()))
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
