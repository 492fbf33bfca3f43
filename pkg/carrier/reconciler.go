package carrier

import (
	"context"
	"errors"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/tournevent/carriersync/pkg/carrier"

// Reconciler converges a store's carrier service to a desired state.
// It holds no state between calls and takes no locks: callers must not run
// two reconciliations for the same store concurrently.
type Reconciler struct {
	client Client
	logger *otelzap.Logger
	tracer trace.Tracer
}

// NewReconciler creates a reconciler. A nil tracer falls back to the global provider.
func NewReconciler(client Client, logger *otelzap.Logger, tracer trace.Tracer) *Reconciler {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Reconciler{
		client: client,
		logger: logger,
		tracer: tracer,
	}
}

// Reconcile brings the store's carrier service in line with desired.
//
// Resources named with namePrefix are tried first, in remote order, and the
// first one this app is allowed to update wins. Failing that, a resource that
// already carries the derived callback URL is reused untouched. Only then is a
// new resource created; a callback conflict on create is resolved by looking
// the resource up again.
func (r *Reconciler) Reconcile(ctx context.Context, desired DesiredState, creds Credentials, namePrefix string) (Result, error) {
	if err := desired.Validate(); err != nil {
		return Result{}, err
	}
	if !desired.Enabled {
		return Result{}, nil
	}
	if err := creds.Validate(); err != nil {
		return Result{}, err
	}
	if namePrefix == "" {
		return Result{}, NewValidationError("resourceNamePrefix", "must not be empty")
	}

	ctx, span := r.tracer.Start(ctx, "carrier.Reconcile", trace.WithAttributes(
		attribute.String("store.domain", creds.StoreDomain),
	))
	defer span.End()

	log := r.logger.Ctx(ctx)
	callbackURL := CallbackURL(desired.Endpoint, desired.APIKey)

	resources, err := r.client.List(ctx, creds)
	if err != nil {
		return r.fail(span, CauseListFailed, err)
	}

	candidates := Candidates(resources, namePrefix)
	log.Debug("Listed carrier services",
		zap.String("shop", creds.StoreDomain),
		zap.Int("total", len(resources)),
		zap.Int("candidates", len(candidates)),
	)

	for _, c := range candidates {
		err := r.client.Update(ctx, creds, c.ID, callbackURL, true)
		if err == nil {
			log.Info("Updated carrier service",
				zap.String("shop", creds.StoreDomain),
				zap.String("carrier_service_id", c.ID),
				zap.String("callback_url", RedactCallbackURL(callbackURL)),
			)
			return r.succeed(span, c.ID, "updated")
		}
		if errors.Is(err, ErrOwnershipConflict) {
			log.Info("Skipping carrier service owned by another app",
				zap.String("shop", creds.StoreDomain),
				zap.String("carrier_service_id", c.ID),
				zap.String("name", c.Name),
			)
			continue
		}
		return r.fail(span, CauseUpdateFailed, err)
	}

	if existing, ok := FindByCallback(resources, callbackURL); ok {
		log.Info("Reusing carrier service with matching callback",
			zap.String("shop", creds.StoreDomain),
			zap.String("carrier_service_id", existing.ID),
		)
		return r.succeed(span, existing.ID, "reused")
	}

	id, err := r.client.Create(ctx, creds, namePrefix, callbackURL, true)
	if err == nil {
		log.Info("Created carrier service",
			zap.String("shop", creds.StoreDomain),
			zap.String("carrier_service_id", id),
			zap.String("callback_url", RedactCallbackURL(callbackURL)),
		)
		return r.succeed(span, id, "created")
	}
	if !errors.Is(err, ErrCallbackConflict) {
		return r.fail(span, CauseCreateFailed, err)
	}

	log.Warn("Callback already configured, looking up existing carrier service",
		zap.String("shop", creds.StoreDomain),
	)
	resources, listErr := r.client.List(ctx, creds)
	if listErr != nil {
		return r.fail(span, CauseConflictUnresolved, errors.Join(err, listErr))
	}
	if existing, ok := FindByCallback(resources, callbackURL); ok {
		return r.succeed(span, existing.ID, "recovered")
	}
	return r.fail(span, CauseConflictUnresolved, err)
}

// Deactivate marks a previously registered carrier service inactive.
// A resource that no longer exists counts as deactivated.
func (r *Reconciler) Deactivate(ctx context.Context, creds Credentials, resourceID string) error {
	if resourceID == "" {
		return nil
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	ctx, span := r.tracer.Start(ctx, "carrier.Deactivate", trace.WithAttributes(
		attribute.String("store.domain", creds.StoreDomain),
		attribute.String("carrier_service.id", resourceID),
	))
	defer span.End()

	err := r.client.Update(ctx, creds, resourceID, "", false)
	switch {
	case err == nil:
		r.logger.Ctx(ctx).Info("Deactivated carrier service",
			zap.String("shop", creds.StoreDomain),
			zap.String("carrier_service_id", resourceID),
		)
		return nil
	case errors.Is(err, ErrNotFound):
		r.logger.Ctx(ctx).Info("Carrier service already gone",
			zap.String("shop", creds.StoreDomain),
			zap.String("carrier_service_id", resourceID),
		)
		return nil
	default:
		_, err = r.fail(span, CauseDeactivateFailed, err)
		return err
	}
}

// Remove deletes resourceID from the store. A resource that no longer
// exists counts as removed.
func (r *Reconciler) Remove(ctx context.Context, creds Credentials, resourceID string) error {
	if resourceID == "" {
		return nil
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	ctx, span := r.tracer.Start(ctx, "carrier.Remove", trace.WithAttributes(
		attribute.String("store.domain", creds.StoreDomain),
		attribute.String("carrier_service.id", resourceID),
	))
	defer span.End()

	err := r.client.Delete(ctx, creds, resourceID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		_, err = r.fail(span, CauseDeleteFailed, err)
		return err
	}
	r.logger.Ctx(ctx).Info("Removed carrier service",
		zap.String("shop", creds.StoreDomain),
		zap.String("carrier_service_id", resourceID),
	)
	return nil
}

func (r *Reconciler) succeed(span trace.Span, id, how string) (Result, error) {
	span.SetAttributes(
		attribute.String("carrier_service.id", id),
		attribute.String("reconcile.outcome", how),
	)
	return Result{ResourceID: id}, nil
}

func (r *Reconciler) fail(span trace.Span, cause FailureCause, err error) (Result, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(cause))
	r.logger.Error("Carrier service reconciliation failed",
		zap.String("cause", string(cause)),
		zap.Int("status_code", StatusCode(err)),
		zap.Error(err),
	)
	return Result{}, &ReconcileError{Cause: cause, Err: err}
}
