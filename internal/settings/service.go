// Package settings applies a shop's carrier service settings: it persists the
// merchant's intent and converges the storefront to it.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/moby/locker"
	"github.com/tournevent/carriersync/internal/store"
	"github.com/tournevent/carriersync/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoSession is returned when a shop has no stored credentials.
var ErrNoSession = errors.New("no session for shop")

// ConfigStore persists shop configurations.
type ConfigStore interface {
	Get(ctx context.Context, shop string) (store.ShopConfig, error)
	Put(ctx context.Context, cfg store.ShopConfig) error
	ListEnabled(ctx context.Context) ([]store.ShopConfig, error)
}

// CredentialProvider returns fresh admin API credentials for a shop.
type CredentialProvider interface {
	Credentials(ctx context.Context, shop string) (carrier.Credentials, error)
}

// Forgetter removes everything stored about a shop.
type Forgetter interface {
	Forget(ctx context.Context, shop string) error
}

// Reconciler converges a shop's carrier service. *carrier.Reconciler satisfies it.
type Reconciler interface {
	Reconcile(ctx context.Context, desired carrier.DesiredState, creds carrier.Credentials, namePrefix string) (carrier.Result, error)
	Deactivate(ctx context.Context, creds carrier.Credentials, resourceID string) error
	Remove(ctx context.Context, creds carrier.Credentials, resourceID string) error
}

// Recorder receives the outcome of every sync.
type Recorder interface {
	RecordReconcile(result, cause string)
}

// Input is what the merchant submits from the settings page.
type Input struct {
	Enabled  bool
	Endpoint string
	APIKey   string
}

// Outcome is the result of syncing one shop during ReconcileAll.
type Outcome struct {
	Shop   string
	Config store.ShopConfig
	Err    error
}

// Options tune the service.
type Options struct {
	NamePrefix  string
	Concurrency int
}

// Service coordinates settings persistence and carrier service reconciliation.
// At most one sync runs per shop at a time.
type Service struct {
	configs     ConfigStore
	credentials CredentialProvider
	forgetter   Forgetter
	reconciler  Reconciler
	recorder    Recorder
	logger      *otelzap.Logger
	namePrefix  string
	concurrency int
	locks       *locker.Locker
}

// NewService creates a settings service.
func NewService(configs ConfigStore, credentials CredentialProvider, forgetter Forgetter, reconciler Reconciler, logger *otelzap.Logger, opts Options) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Service{
		configs:     configs,
		credentials: credentials,
		forgetter:   forgetter,
		reconciler:  reconciler,
		logger:      logger,
		namePrefix:  opts.NamePrefix,
		concurrency: opts.Concurrency,
		locks:       locker.New(),
	}
}

// WithRecorder attaches an outcome recorder.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// Get returns the stored settings of shop.
func (s *Service) Get(ctx context.Context, shop string) (store.ShopConfig, error) {
	return s.configs.Get(ctx, shop)
}

// Save stores the merchant's settings and applies them to the storefront.
//
// Invalid input is rejected before anything is stored. Otherwise the input is
// kept even when the sync fails; the returned config then has SyncStatus
// failed and the error says why.
func (s *Service) Save(ctx context.Context, shop string, in Input) (store.ShopConfig, error) {
	desired := carrier.DesiredState{
		Enabled:  in.Enabled,
		Endpoint: strings.TrimSpace(in.Endpoint),
		APIKey:   strings.TrimSpace(in.APIKey),
	}
	if err := desired.Validate(); err != nil {
		return store.ShopConfig{}, err
	}

	s.locks.Lock(shop)
	defer s.locks.Unlock(shop)

	prev, err := s.configs.Get(ctx, shop)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.ShopConfig{}, fmt.Errorf("loading settings for %s: %w", shop, err)
	}

	cfg := store.ShopConfig{
		Shop:             shop,
		Enabled:          desired.Enabled,
		Endpoint:         desired.Endpoint,
		APIKey:           desired.APIKey,
		CarrierServiceID: prev.CarrierServiceID,
		SyncStatus:       store.SyncPending,
	}
	if err := s.configs.Put(ctx, cfg); err != nil {
		return store.ShopConfig{}, fmt.Errorf("saving settings for %s: %w", shop, err)
	}

	return s.sync(ctx, cfg)
}

// Reconcile re-applies the stored settings of shop.
func (s *Service) Reconcile(ctx context.Context, shop string) (store.ShopConfig, error) {
	s.locks.Lock(shop)
	defer s.locks.Unlock(shop)

	cfg, err := s.configs.Get(ctx, shop)
	if err != nil {
		return store.ShopConfig{}, err
	}
	return s.sync(ctx, cfg)
}

// Deactivate disables the shop's carrier service, keeping endpoint and key.
func (s *Service) Deactivate(ctx context.Context, shop string) (store.ShopConfig, error) {
	s.locks.Lock(shop)
	defer s.locks.Unlock(shop)

	cfg, err := s.configs.Get(ctx, shop)
	if err != nil {
		return store.ShopConfig{}, err
	}
	cfg.Enabled = false
	return s.sync(ctx, cfg)
}

// Remove deletes the shop's carrier service from the storefront and disables
// the settings. Endpoint and key are kept so the merchant can re-enable.
func (s *Service) Remove(ctx context.Context, shop string) (store.ShopConfig, error) {
	s.locks.Lock(shop)
	defer s.locks.Unlock(shop)

	cfg, err := s.configs.Get(ctx, shop)
	if err != nil {
		return store.ShopConfig{}, err
	}
	cfg.Enabled = false
	if cfg.CarrierServiceID == "" {
		return s.finish(ctx, cfg, store.SyncDisabled, "disabled")
	}

	runID := uuid.NewString()
	creds, err := s.credentialsFor(ctx, shop)
	if err != nil {
		return s.markFailed(ctx, cfg, runID, err)
	}
	if err := s.reconciler.Remove(ctx, creds, cfg.CarrierServiceID); err != nil {
		return s.markFailed(ctx, cfg, runID, err)
	}

	s.logger.Ctx(ctx).Info("Carrier service removed",
		zap.String("shop", shop),
		zap.String("run_id", runID),
		zap.String("carrier_service_id", cfg.CarrierServiceID),
	)
	cfg.CarrierServiceID = ""
	return s.finish(ctx, cfg, store.SyncDisabled, "removed")
}

// ReconcileAll re-applies the settings of every enabled shop, several shops
// at a time. A failing shop does not stop the others; only a failure to list
// the shops is returned as an error.
func (s *Service) ReconcileAll(ctx context.Context) ([]Outcome, error) {
	configs, err := s.configs.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing enabled shops: %w", err)
	}

	runID := uuid.NewString()
	s.logger.Ctx(ctx).Info("Reconciling all shops",
		zap.String("run_id", runID),
		zap.Int("shops", len(configs)),
		zap.Int("concurrency", s.concurrency),
	)

	outcomes := make([]Outcome, len(configs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, cfg := range configs {
		g.Go(func() error {
			got, err := s.Reconcile(ctx, cfg.Shop)
			outcomes[i] = Outcome{Shop: cfg.Shop, Config: got, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	s.logger.Ctx(ctx).Info("Reconciled all shops",
		zap.String("run_id", runID),
		zap.Int("shops", len(outcomes)),
		zap.Int("failed", failed),
	)
	return outcomes, nil
}

// Forget removes the shop's settings and sessions.
func (s *Service) Forget(ctx context.Context, shop string) error {
	s.locks.Lock(shop)
	defer s.locks.Unlock(shop)

	if err := s.forgetter.Forget(ctx, shop); err != nil {
		return fmt.Errorf("forgetting %s: %w", shop, err)
	}
	s.logger.Ctx(ctx).Info("Forgot shop", zap.String("shop", shop))
	return nil
}

// sync converges the storefront to cfg and stores the result. The shop lock
// must be held.
func (s *Service) sync(ctx context.Context, cfg store.ShopConfig) (store.ShopConfig, error) {
	runID := uuid.NewString()
	log := s.logger.Ctx(ctx)

	if !cfg.Enabled && cfg.CarrierServiceID == "" {
		return s.finish(ctx, cfg, store.SyncDisabled, "disabled")
	}

	creds, err := s.credentialsFor(ctx, cfg.Shop)
	if err != nil {
		return s.markFailed(ctx, cfg, runID, err)
	}

	if !cfg.Enabled {
		if err := s.reconciler.Deactivate(ctx, creds, cfg.CarrierServiceID); err != nil {
			return s.markFailed(ctx, cfg, runID, err)
		}
		log.Info("Carrier service disabled",
			zap.String("shop", cfg.Shop),
			zap.String("run_id", runID),
			zap.String("carrier_service_id", cfg.CarrierServiceID),
		)
		return s.finish(ctx, cfg, store.SyncDisabled, "disabled")
	}

	desired := carrier.DesiredState{Enabled: true, Endpoint: cfg.Endpoint, APIKey: cfg.APIKey}
	res, err := s.reconciler.Reconcile(ctx, desired, creds, s.namePrefix)
	if err != nil {
		return s.markFailed(ctx, cfg, runID, err)
	}

	cfg.CarrierServiceID = res.ResourceID
	log.Info("Carrier service synced",
		zap.String("shop", cfg.Shop),
		zap.String("run_id", runID),
		zap.String("carrier_service_id", res.ResourceID),
	)
	return s.finish(ctx, cfg, store.SyncSynced, "synced")
}

func (s *Service) finish(ctx context.Context, cfg store.ShopConfig, status store.SyncStatus, result string) (store.ShopConfig, error) {
	cfg.SyncStatus = status
	cfg.LastError = ""
	if err := s.configs.Put(ctx, cfg); err != nil {
		return cfg, fmt.Errorf("saving sync state for %s: %w", cfg.Shop, err)
	}
	s.record(result, "")
	return cfg, nil
}

func (s *Service) markFailed(ctx context.Context, cfg store.ShopConfig, runID string, err error) (store.ShopConfig, error) {
	cfg.SyncStatus = store.SyncFailed
	cfg.LastError = err.Error()

	cause := Cause(err)
	s.logger.Ctx(ctx).Warn("Carrier service sync failed",
		zap.String("shop", cfg.Shop),
		zap.String("run_id", runID),
		zap.String("cause", cause),
		zap.Error(err),
	)
	s.record("failed", cause)

	if putErr := s.configs.Put(ctx, cfg); putErr != nil {
		return cfg, errors.Join(err, fmt.Errorf("saving sync state for %s: %w", cfg.Shop, putErr))
	}
	return cfg, err
}

func (s *Service) credentialsFor(ctx context.Context, shop string) (carrier.Credentials, error) {
	creds, err := s.credentials.Credentials(ctx, shop)
	if errors.Is(err, store.ErrNotFound) {
		return carrier.Credentials{}, fmt.Errorf("%w %s", ErrNoSession, shop)
	}
	if err != nil {
		return carrier.Credentials{}, fmt.Errorf("loading session for %s: %w", shop, err)
	}
	return creds, nil
}

func (s *Service) record(result, cause string) {
	if s.recorder != nil {
		s.recorder.RecordReconcile(result, cause)
	}
}

// Cause names why a sync failed, for metrics and API responses.
func Cause(err error) string {
	if cause, ok := carrier.CauseOf(err); ok {
		return string(cause)
	}
	switch {
	case errors.Is(err, ErrNoSession):
		return "noSession"
	case errors.Is(err, carrier.ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}
