package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tournevent/carriersync/internal/config"
	"github.com/tournevent/carriersync/internal/settings"
	"github.com/tournevent/carriersync/internal/store"
	"github.com/tournevent/carriersync/internal/telemetry"
	"github.com/tournevent/carriersync/pkg/carrier"
	"github.com/tournevent/carriersync/pkg/carrier/shopify"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg      *config.Config
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
	db       *store.DB
	sessions *store.SessionStore
	settings *settings.Service

	tracerShutdown func(context.Context) error
}

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(cfg *config.Config) (*otelzap.Logger, error) {
	return telemetry.NewLogger(cfg.LogLevel, cfg.ServiceName)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}

	tp, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.Attributes()...)
	if err != nil {
		return nil, nil, err
	}
	return tp.Tracer(cfg.ServiceName), shutdown, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:            cfg,
		logger:         logger,
		tracerShutdown: func(context.Context) error { return nil },
	}

	tracer, shutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		a.tracerShutdown = shutdown
	}

	db, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)
	a.sessions = store.NewSessionStore(db)

	client := shopify.New(shopify.Config{
		APIVersion: cfg.ShopifyAPIVersion,
		BaseURL:    cfg.ShopifyAdminBaseURL,
		Timeout:    cfg.ShopifyRequestTimeout,
		UseMock:    cfg.ShopifyUseMock,
	}, logger, tracer).WithRecorder(a.metrics)

	reconciler := carrier.NewReconciler(client, logger, tracer)

	a.settings = settings.NewService(store.NewConfigStore(db), a.sessions, db, reconciler, logger, settings.Options{
		NamePrefix:  cfg.CarrierServiceName,
		Concurrency: cfg.ReconcileConcurrency,
	}).WithRecorder(a.metrics)

	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Failed to close database", zap.Error(err))
		}
	}
	if err := a.tracerShutdown(ctx); err != nil {
		a.logger.Warn("Failed to shut down tracer", zap.Error(err))
	}
	_ = a.logger.Sync()
}
