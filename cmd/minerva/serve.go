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

	sentry "github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/Minerva/internal/config"
	"github.com/wehubfusion/Minerva/internal/httpapi"
	"github.com/wehubfusion/Minerva/internal/metrics"
	"github.com/wehubfusion/Minerva/internal/tracing"
	"github.com/wehubfusion/Minerva/pkg/engine"
	"github.com/wehubfusion/Minerva/pkg/llm"
	"github.com/wehubfusion/Minerva/pkg/marketdata"
	"github.com/wehubfusion/Minerva/pkg/memory"
	"github.com/wehubfusion/Minerva/pkg/research"
	"github.com/wehubfusion/Minerva/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the research HTTP service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return runServe(cmd.Context(), configPath)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			return fmt.Errorf("initializing sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if cfg.Tracing.Enabled {
		tcfg := tracing.DefaultConfig("minerva")
		tcfg.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
		tcfg.SampleRatio = cfg.Tracing.SampleRatio
		tcfg.Environment = cfg.Tracing.Environment
		shutdown, err := tracing.Setup(ctx, tcfg, logger)
		if err != nil {
			return err
		}
		defer tracing.Shutdown(shutdown, logger)
	}

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	deps.Recorder = recorder

	svc, err := research.NewService(deps, research.Config{
		Envelope: engine.EnvelopeConfig{
			MaxAttempts: cfg.Workflow.MaxAttempts,
			BaseDelay:   cfg.Workflow.BaseDelay,
		},
		Report: research.ReportConfig{
			MaxIterations:    cfg.Workflow.MaxIterations,
			QualityThreshold: cfg.Workflow.QualityThreshold,
		},
		RunTimeout: cfg.Workflow.RunTimeout,
	})
	if err != nil {
		return err
	}

	handler := httpapi.NewServer(svc, logger, recorder).Handler(nil)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildDependencies wires the collaborators from configuration. Optional
// backends degrade: no redis means no caching, no NATS means in-process
// history, no storage connection string means no report archive.
func buildDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (research.Dependencies, func(), error) {
	completer := llm.NewClient().WithAPIKey(cfg.LLM.APIKey)
	if cfg.LLM.BaseURL != "" {
		completer = completer.WithBaseURL(cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "" {
		completer = completer.WithModel(cfg.LLM.Model)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var market marketdata.Provider = marketdata.NewYahooProvider(logger)
	if rdb != nil {
		market = marketdata.NewCachedProvider(market, rdb, marketdata.CacheConfig{}, logger)
	}
	resolver := marketdata.NewResolver(rdb, logger)

	var store memory.Store
	var natsStore *memory.NATSStore
	if cfg.NATS.URL != "" {
		ns, err := memory.NewNATSStore(ctx, memory.DefaultNATSConfig(cfg.NATS.URL), logger)
		if err != nil {
			return research.Dependencies{}, nil, fmt.Errorf("connecting conversation store: %w", err)
		}
		natsStore = ns
		store = ns
	} else {
		logger.Warn("no NATS URL configured, conversation history is in-process only")
		store = memory.NewInMemoryStore()
	}

	var archive storage.Archiver
	if cfg.Storage.ConnectionString != "" {
		blob, err := storage.NewAzureBlobClient(cfg.Storage.ConnectionString, cfg.Storage.Container, logger)
		if err != nil {
			return research.Dependencies{}, nil, fmt.Errorf("connecting report archive: %w", err)
		}
		archive = storage.NewReportArchive(blob, logger)
	}

	cleanup := func() {
		if natsStore != nil {
			natsStore.Close()
		}
		if rdb != nil {
			rdb.Close()
		}
	}

	return research.Dependencies{
		Completer: completer,
		Market:    market,
		Docs:      research.NoIndexDocumentStore{},
		Memory:    store,
		Archive:   archive,
		Resolver:  resolver,
		Logger:    logger,
	}, cleanup, nil
}
