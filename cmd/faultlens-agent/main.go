package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faultlens/faultlens-agent/internal/analyzers"
	"github.com/faultlens/faultlens-agent/internal/api"
	"github.com/faultlens/faultlens-agent/internal/cache"
	"github.com/faultlens/faultlens-agent/internal/config"
	"github.com/faultlens/faultlens-agent/internal/controller"
	"github.com/faultlens/faultlens-agent/internal/engine"
	"github.com/faultlens/faultlens-agent/internal/governor"
	"github.com/faultlens/faultlens-agent/internal/metrics"
	"github.com/faultlens/faultlens-agent/internal/patterns"
	"github.com/faultlens/faultlens-agent/internal/reasoner"
	"github.com/faultlens/faultlens-agent/internal/remediation"
	"github.com/faultlens/faultlens-agent/internal/report"
	"github.com/faultlens/faultlens-agent/internal/signals"
	"github.com/faultlens/faultlens-agent/internal/store"
	"github.com/faultlens/faultlens-agent/internal/utils"
)

func main() {
	configPath := flag.String("config", "", "path to the faultlens configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		valkey, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, continuing without cache", slog.Any("error", err))
		} else {
			cacheProvider = valkey
			defer valkey.Close()
		}
	}

	signalClient := signals.NewClient(cfg.Signals, cacheProvider, cfg.Cache.DeploymentsTTL)

	reasonerClient, err := reasoner.NewOpenAIClient(cfg.Reasoner, logger)
	if err != nil {
		logger.Error("failed to build reasoner client", slog.Any("error", err))
		os.Exit(1)
	}

	gov := governor.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, cfg.RateLimit.MaxWait)

	playbook, err := engine.LoadPlaybook(cfg.Playbook.Path)
	if err != nil {
		logger.Error("failed to load playbook", slog.Any("error", err))
		os.Exit(1)
	}

	var dispatcher engine.Dispatcher
	if cfg.Remediation.Repo != "" {
		wd, err := remediation.NewWorkflowDispatcher(cfg.Remediation, logger)
		if err != nil {
			logger.Error("failed to build remediation dispatcher", slog.Any("error", err))
			os.Exit(1)
		}
		dispatcher = wd
	} else {
		logger.Warn("no remediation repo configured, investigations will not dispatch rollbacks")
	}

	renderer, err := report.NewRenderer()
	if err != nil {
		logger.Error("failed to build report renderer", slog.Any("error", err))
		os.Exit(1)
	}

	eng, err := engine.New(engine.Options{
		Analyzers: []analyzers.Analyzer{
			analyzers.NewForensicAnalyzer(signalClient, gov, reasonerClient, logger),
			analyzers.NewTelemetryAnalyzer(signalClient, gov, reasonerClient, logger),
			analyzers.NewHistoryAnalyzer(signalClient, cfg.Investigation.Lookback, gov, reasonerClient, logger),
		},
		Playbook:        playbook,
		Dispatcher:      dispatcher,
		Reporter:        renderer,
		Governor:        gov,
		Reasoner:        reasonerClient,
		Lookback:        cfg.Investigation.Lookback,
		AnalyzerTimeout: cfg.Investigation.AnalyzerTimeout,
		Threshold:       cfg.Investigation.ConfidenceThreshold,
		Aggregation:     cfg.Investigation.Aggregation,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to build engine", slog.Any("error", err))
		os.Exit(1)
	}

	recordStore, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to open record store", slog.Any("error", err))
		os.Exit(1)
	}
	defer recordStore.Close()

	ctrl := controller.New(eng, recordStore, logger)
	handlers := api.NewHandlers(ctrl, patterns.NewMiner(2), logger)
	server := api.NewServer(cfg.Server, handlers, logger)

	metricsServer := &http.Server{
		Addr:    cfg.Server.MetricsAddress,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("metrics server listening", slog.String("address", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server failed", slog.Any("error", err))
	}

	ctrl.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown incomplete", slog.Any("error", err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown incomplete", slog.Any("error", err))
	}

	logger.Info("faultlens agent stopped")
}
