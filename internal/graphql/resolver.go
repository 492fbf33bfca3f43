// Package graphql serves the settings API consumed by the embedded admin page.
package graphql

import (
	"context"
	"errors"
	"time"

	"github.com/tournevent/carriersync/internal/settings"
	"github.com/tournevent/carriersync/internal/store"
	"github.com/tournevent/carriersync/internal/telemetry"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// SettingsService is the part of settings.Service the API needs.
type SettingsService interface {
	Get(ctx context.Context, shop string) (store.ShopConfig, error)
	Save(ctx context.Context, shop string, in settings.Input) (store.ShopConfig, error)
	Deactivate(ctx context.Context, shop string) (store.ShopConfig, error)
}

// Resolver is the root resolver for the GraphQL schema.
// It holds dependencies needed by all resolvers.
type Resolver struct {
	Settings SettingsService
	Logger   *otelzap.Logger
	Metrics  *telemetry.Metrics
}

// NewResolver creates a new resolver with the given dependencies.
func NewResolver(svc SettingsService, logger *otelzap.Logger, metrics *telemetry.Metrics) *Resolver {
	return &Resolver{
		Settings: svc,
		Logger:   logger,
		Metrics:  metrics,
	}
}

// Health reports that the service is up.
func (r *Resolver) Health(ctx context.Context) (bool, error) {
	return true, nil
}

// ShopSettings returns the stored settings of shop, or nil if none were saved.
func (r *Resolver) ShopSettings(ctx context.Context, shop string) (map[string]any, error) {
	cfg, err := r.Settings.Get(ctx, shop)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return settingsToMap(cfg), nil
}

// SaveSettings stores and applies the merchant's settings. Invalid input is a
// GraphQL error; a failed sync is reported in the payload with ok false.
func (r *Resolver) SaveSettings(ctx context.Context, shop string, in settings.Input) (map[string]any, error) {
	cfg, err := r.Settings.Save(ctx, shop, in)
	if err != nil {
		if isInputError(err) {
			return nil, err
		}
		r.Logger.Ctx(ctx).Warn("Saving settings failed",
			zap.String("shop", shop),
			zap.Error(err),
		)
		payload := failurePayload(err)
		if cfg.Shop != "" {
			payload["carrierServiceId"] = optional(cfg.CarrierServiceID)
			payload["syncStatus"] = string(cfg.SyncStatus)
			payload["settings"] = settingsToMap(cfg)
		}
		return payload, nil
	}

	return map[string]any{
		"ok":               true,
		"carrierServiceId": optional(cfg.CarrierServiceID),
		"syncStatus":       string(cfg.SyncStatus),
		"cause":            nil,
		"error":            nil,
		"settings":         settingsToMap(cfg),
	}, nil
}

// DeactivateCarrierService disables the shop's carrier service.
func (r *Resolver) DeactivateCarrierService(ctx context.Context, shop string) (map[string]any, error) {
	cfg, err := r.Settings.Deactivate(ctx, shop)
	if err != nil {
		payload := failurePayload(err)
		if cfg.Shop != "" {
			payload["settings"] = settingsToMap(cfg)
		}
		return payload, nil
	}
	return map[string]any{
		"ok":       true,
		"cause":    nil,
		"error":    nil,
		"settings": settingsToMap(cfg),
	}, nil
}

func (r *Resolver) record(operation string, err error, started time.Time) {
	if r.Metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.Metrics.RecordRequest(operation, status, time.Since(started).Seconds())
}
