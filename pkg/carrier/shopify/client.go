// Package shopify provides the carrier service client for the Shopify Admin API.
package shopify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tournevent/carriersync/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/tournevent/carriersync/pkg/carrier/shopify"

// Config holds Shopify Admin API configuration.
type Config struct {
	APIVersion string
	BaseURL    string
	Timeout    time.Duration
	UseMock    bool // When true, uses an in-memory Admin API
}

// Recorder receives the outcome of every remote call.
type Recorder interface {
	RecordRemoteCall(operation, outcome string, seconds float64)
}

// Client implements carrier.Client on top of an APIClient (mock or HTTP).
// It is the only place where HTTP statuses are turned into carrier error kinds.
type Client struct {
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
	recorder  Recorder
}

// New creates a new Shopify carrier service client.
// If cfg.UseMock is true, it uses an in-memory Admin API.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:    cfg.BaseURL,
			APIVersion: cfg.APIVersion,
			Timeout:    cfg.Timeout,
		})
	}

	return NewWithAPIClient(apiClient, logger, tracer)
}

// NewWithAPIClient creates a client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Client{
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// WithRecorder attaches a call recorder.
func (c *Client) WithRecorder(r Recorder) *Client {
	c.recorder = r
	return c
}

// List returns the store's carrier services.
func (c *Client) List(ctx context.Context, creds carrier.Credentials) ([]carrier.Resource, error) {
	ctx, end := c.start(ctx, "list", creds)

	services, err := c.apiClient.ListCarrierServices(ctx, creds.StoreDomain, creds.AccessToken)
	if err != nil {
		return nil, end(classify("list", err))
	}
	end(nil)

	resources := make([]carrier.Resource, len(services))
	for i, s := range services {
		resources[i] = toResource(s)
	}
	return resources, nil
}

// Create registers a carrier service with service discovery and JSON format.
func (c *Client) Create(ctx context.Context, creds carrier.Credentials, name, callbackURL string, active bool) (string, error) {
	ctx, end := c.start(ctx, "create", creds)

	svc, err := c.apiClient.CreateCarrierService(ctx, creds.StoreDomain, creds.AccessToken, &CarrierServiceInput{
		Name:             name,
		CallbackURL:      callbackURL,
		ServiceDiscovery: boolPtr(true),
		Format:           "json",
		Active:           boolPtr(active),
	})
	if err != nil {
		return "", end(classify("create", err))
	}
	if svc == nil || svc.ID.String() == "" {
		return "", end(carrier.NewRemoteError("create", 0, "").
			WithMessages([]string{"response carried no carrier service id"}))
	}
	end(nil)
	return svc.ID.String(), nil
}

// Update sets the callback URL and active flag of a carrier service.
func (c *Client) Update(ctx context.Context, creds carrier.Credentials, id, callbackURL string, active bool) error {
	ctx, end := c.start(ctx, "update", creds)

	_, err := c.apiClient.UpdateCarrierService(ctx, creds.StoreDomain, creds.AccessToken, id, &CarrierServiceInput{
		CallbackURL: callbackURL,
		Active:      boolPtr(active),
	})
	if err != nil {
		return end(classify("update", err))
	}
	end(nil)
	return nil
}

// Delete removes a carrier service.
func (c *Client) Delete(ctx context.Context, creds carrier.Credentials, id string) error {
	ctx, end := c.start(ctx, "delete", creds)

	if err := c.apiClient.DeleteCarrierService(ctx, creds.StoreDomain, creds.AccessToken, id); err != nil {
		return end(classify("delete", err))
	}
	end(nil)
	return nil
}

// start opens a span for op and returns a function that closes it,
// logs and records the outcome, and passes the error through.
func (c *Client) start(ctx context.Context, op string, creds carrier.Credentials) (context.Context, func(error) error) {
	ctx, span := c.tracer.Start(ctx, "shopify.carrier_services."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("shopify.shop", creds.StoreDomain)),
	)
	started := time.Now()

	return ctx, func(err error) error {
		defer span.End()
		outcome := "ok"
		if err != nil {
			outcome = string(errorKind(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			c.logger.Ctx(ctx).Warn("Shopify carrier service call failed",
				zap.String("operation", op),
				zap.String("shop", creds.StoreDomain),
				zap.Int("status_code", carrier.StatusCode(err)),
				zap.Error(err),
			)
		}
		if c.recorder != nil {
			c.recorder.RecordRemoteCall(op, outcome, time.Since(started).Seconds())
		}
		return err
	}
}

// classify turns an Admin API failure into a *carrier.RemoteError.
func classify(op string, err error) *carrier.RemoteError {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode == 0 {
		cause := err
		if apiErr != nil && apiErr.Cause != nil {
			cause = apiErr.Cause
		}
		return carrier.NewRemoteError(op, 0, "").WithKind(carrier.KindTransport).WithCause(cause)
	}

	rerr := carrier.NewRemoteError(op, apiErr.StatusCode, apiErr.Body).
		WithMessages(apiErr.Messages).
		WithCause(apiErr.Cause)

	switch {
	case apiErr.StatusCode == http.StatusUnauthorized:
		rerr.WithKind(carrier.KindUnauthorized)
	case apiErr.StatusCode == http.StatusNotFound:
		rerr.WithKind(carrier.KindNotFound)
	case (op == "update" || op == "delete") && apiErr.StatusCode == http.StatusForbidden:
		rerr.WithKind(carrier.KindOwnershipConflict)
	case op == "create" && apiErr.StatusCode == http.StatusUnprocessableEntity && alreadyConfigured(apiErr):
		rerr.WithKind(carrier.KindCallbackConflict)
	}
	return rerr
}

func alreadyConfigured(e *APIError) bool {
	for _, m := range e.Messages {
		if strings.Contains(m, "already configured") {
			return true
		}
	}
	return false
}

func errorKind(err error) carrier.ErrorKind {
	var rerr *carrier.RemoteError
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return carrier.KindAPI
}

func toResource(s CarrierService) carrier.Resource {
	return carrier.Resource{
		ID:          s.ID.String(),
		Name:        s.Name,
		CallbackURL: s.CallbackURL,
		Active:      s.Active,
	}
}

func boolPtr(b bool) *bool {
	return &b
}

var _ carrier.Client = (*Client)(nil)
