package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SyncStatus tells whether the stored configuration is live on the storefront.
type SyncStatus string

const (
	SyncPending  SyncStatus = "pending"
	SyncSynced   SyncStatus = "synced"
	SyncFailed   SyncStatus = "failed"
	SyncDisabled SyncStatus = "disabled"
)

// ShopConfig is the merchant's carrier service configuration.
type ShopConfig struct {
	Shop             string
	Enabled          bool
	Endpoint         string
	APIKey           string
	CarrierServiceID string
	SyncStatus       SyncStatus
	LastError        string
	UpdatedAt        time.Time
}

// ConfigStore reads and writes shop configurations.
type ConfigStore struct {
	db *DB
}

// NewConfigStore creates a ConfigStore.
func NewConfigStore(db *DB) *ConfigStore {
	return &ConfigStore{db: db}
}

const configColumns = `shop, enabled, endpoint, api_key, carrier_service_id, sync_status, last_error, updated_at`

// Get returns the configuration of shop, or ErrNotFound.
func (s *ConfigStore) Get(ctx context.Context, shop string) (ShopConfig, error) {
	row := s.db.db.QueryRowContext(ctx,
		s.db.rebind(`SELECT `+configColumns+` FROM shop_configs WHERE shop = ?`), shop)
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ShopConfig{}, fmt.Errorf("config for %s: %w", shop, ErrNotFound)
	}
	if err != nil {
		return ShopConfig{}, fmt.Errorf("reading config for %s: %w", shop, err)
	}
	return cfg, nil
}

// Put inserts or replaces the configuration of cfg.Shop.
func (s *ConfigStore) Put(ctx context.Context, cfg ShopConfig) error {
	if cfg.SyncStatus == "" {
		cfg.SyncStatus = SyncPending
	}
	var serviceID sql.NullString
	if cfg.CarrierServiceID != "" {
		serviceID = sql.NullString{String: cfg.CarrierServiceID, Valid: true}
	}

	_, err := s.db.db.ExecContext(ctx, s.db.rebind(`INSERT INTO shop_configs (`+configColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (shop) DO UPDATE SET
		enabled = excluded.enabled,
		endpoint = excluded.endpoint,
		api_key = excluded.api_key,
		carrier_service_id = excluded.carrier_service_id,
		sync_status = excluded.sync_status,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at`),
		cfg.Shop, cfg.Enabled, cfg.Endpoint, cfg.APIKey, serviceID, string(cfg.SyncStatus), cfg.LastError, s.db.now(),
	)
	if err != nil {
		return fmt.Errorf("writing config for %s: %w", cfg.Shop, err)
	}
	return nil
}

// Delete removes the configuration of shop. Deleting a missing row is not an error.
func (s *ConfigStore) Delete(ctx context.Context, shop string) error {
	if _, err := s.db.db.ExecContext(ctx, s.db.rebind(`DELETE FROM shop_configs WHERE shop = ?`), shop); err != nil {
		return fmt.Errorf("deleting config for %s: %w", shop, err)
	}
	return nil
}

// ListEnabled returns every enabled configuration ordered by shop.
func (s *ConfigStore) ListEnabled(ctx context.Context) ([]ShopConfig, error) {
	rows, err := s.db.db.QueryContext(ctx, s.db.rebind(
		`SELECT `+configColumns+` FROM shop_configs WHERE enabled = ? ORDER BY shop`), true)
	if err != nil {
		return nil, fmt.Errorf("listing enabled configs: %w", err)
	}
	defer rows.Close()

	var out []ShopConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanConfig(row scanner) (ShopConfig, error) {
	var (
		cfg       ShopConfig
		serviceID sql.NullString
		status    string
	)
	err := row.Scan(&cfg.Shop, &cfg.Enabled, &cfg.Endpoint, &cfg.APIKey, &serviceID, &status, &cfg.LastError, &cfg.UpdatedAt)
	if err != nil {
		return ShopConfig{}, err
	}
	cfg.CarrierServiceID = serviceID.String
	cfg.SyncStatus = SyncStatus(status)
	return cfg, nil
}
