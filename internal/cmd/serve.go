package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/faultlens/faultlens/internal/ailink/prompt"
	"github.com/faultlens/faultlens/internal/config"
	"github.com/faultlens/faultlens/internal/core"
	errwrap "github.com/faultlens/faultlens/internal/errors"
	"github.com/faultlens/faultlens/internal/metrics"
	"github.com/faultlens/faultlens/internal/observability"
	"github.com/faultlens/faultlens/internal/server"
	"github.com/faultlens/faultlens/internal/server/handlers"
)

const uptimeInterval = 30 * time.Second

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// analyzerHealthChecker reports whether an analysis service is configured.
type analyzerHealthChecker struct {
	rt *appRuntime
}

func (a analyzerHealthChecker) CheckHealth(ctx context.Context) error {
	if a.rt == nil || a.rt.explainer == nil || !a.rt.explainer.Configured() {
		return errwrap.NewConfigInvalidError("no analysis provider configured")
	}
	return nil
}

// analysisInfo describes the served analysis settings for /version.
func (rt *appRuntime) analysisInfo() *handlers.AnalysisInfo {
	backend := "memory"
	if rt.store != nil {
		backend = rt.store.Driver()
	}
	slug := rt.cfg.Analysis.PromptSlug
	if slug == "" {
		slug = prompt.DefaultSlug
	}
	return &handlers.AnalysisInfo{
		PromptSlug:        slug,
		UsageLimit:        rt.analyzer.LimitLabel,
		KnowledgeBackend:  backend,
		ServiceConfigured: rt.explainer.Configured(),
		RunnerEnabled:     rt.pipeline.Runner != nil,
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP analysis API",
	Long: `Start the HTTP analysis API with graceful shutdown support.

Endpoints:
  POST /v1/analyze          analyze one error context
  POST /v1/analyze/file     analyze a file (path, optional content)
  GET  /v1/knowledge        list entries, ?q= to look one up
  POST /v1/knowledge        train an entry
  GET  /v1/usage            usage window state
  POST /v1/usage/reset      start a new usage window

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config file reload`,
	RunE: func(cmd *cobra.Command, args []string) error {
		observability.InitServerLogger(config.AppName, viper.GetString("logging.level"), config.AppName)
		logger := observability.ServerLogger

		rt, err := newRuntime(cmd.Context(), runtimeOptions{strictConfig: true})
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Invalid configuration", err)
		}
		defer rt.Close()
		cfg := rt.cfg

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = observability.DefaultMetricsPort
		}
		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, metricsPort, config.AppName); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		logger.Info("Initializing server",
			zap.String("service", config.AppName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", metricsPort),
			zap.Bool("store", rt.store != nil),
			zap.Bool("analysis_service", rt.explainer.Configured()))

		handlers.InitHealthManager(versionInfo.Version)
		if cfg.Health.Enabled {
			hm := handlers.GetHealthManager()
			if cfg.Metrics.Enabled {
				hm.RegisterChecker("telemetry", telemetryHealthChecker{})
			}
			hm.RegisterOptionalChecker("analysis_service", analyzerHealthChecker{rt: rt})
			if rt.store != nil {
				hm.RegisterChecker("store", rt.store)
			}
		} else {
			logger.Info("Health checkers disabled; probes report liveness only")
		}
		handlers.SetAppName(config.AppName)
		handlers.SetAnalysisInfo(rt.analysisInfo())

		startedAt := time.Now()
		metrics.SetServerStartTime(startedAt.Unix())
		metrics.SetKnowledgeEntries(len(rt.knowledge.Entries(cmd.Context())))

		srv := server.New(cfg.Server, &handlers.AnalysisAPI{
			Analyzer:  rt.analyzer,
			Reports:   rt.pipeline,
			Knowledge: rt.knowledge,
			Usage:     rt.limiter,
			OnAnalysis: func(analysis *core.Analysis) {
				metrics.RecordAnalysis(analysis)
				metrics.SetUsageCount(rt.limiter.State(context.Background()).Count)
			},
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		uptimeCtx, stopUptime := context.WithCancel(context.Background())
		defer stopUptime()
		go reportUptime(uptimeCtx, startedAt)

		// Shutdown handlers run LIFO: the HTTP server stops before the logger flushes.
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
			stopUptime()
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			reloaded, err := config.Load(ctx)
			if err != nil {
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			explainer, err := buildExplainer(reloaded)
			if err != nil {
				return errwrap.WrapConfigInvalid(ctx, err, "provider reload failed")
			}
			rt.explainer.Set(explainer)
			handlers.SetAnalysisInfo(rt.analysisInfo())

			logger.Info("Configuration reloaded",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Bool("analysis_service", explainer != nil))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

func reportUptime(ctx context.Context, startedAt time.Time) {
	ticker := time.NewTicker(uptimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetServerUptime(int64(time.Since(startedAt).Seconds()))
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
