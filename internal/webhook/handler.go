package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tournevent/carriersync/internal/store"
	"github.com/tournevent/carriersync/internal/telemetry"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Webhook topics handled by the app.
const (
	TopicAppUninstalled       = "app/uninstalled"
	TopicAppScopesUpdate      = "app/scopes_update"
	TopicCustomersDataRequest = "customers/data_request"
	TopicCustomersRedact      = "customers/redact"
	TopicShopRedact           = "shop/redact"
	TopicOrdersCreate         = "orders/create"
	TopicOrdersUpdated        = "orders/updated"
)

const maxBodyBytes = 1 << 20

// ScopeUpdater records the scopes a merchant granted.
type ScopeUpdater interface {
	UpdateScope(ctx context.Context, shop, scope string) error
}

// Forgetter removes everything stored about a shop.
type Forgetter interface {
	Forget(ctx context.Context, shop string) error
}

// Handler verifies and dispatches webhook deliveries.
type Handler struct {
	secret    string
	scopes    ScopeUpdater
	forgetter Forgetter
	logger    *otelzap.Logger
	metrics   *telemetry.Metrics
}

// NewHandler creates a webhook handler that trusts deliveries signed with secret.
func NewHandler(secret string, scopes ScopeUpdater, forgetter Forgetter, logger *otelzap.Logger, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		secret:    secret,
		scopes:    scopes,
		forgetter: forgetter,
		logger:    logger,
		metrics:   metrics,
	}
}

type scopesUpdatePayload struct {
	Current  []string `json:"current"`
	Previous []string `json:"previous"`
}

type orderPayload struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

// ServeHTTP handles one delivery. Unverified deliveries get 401, handler
// failures 500 so that Shopify retries, everything else 200.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx := r.Context()
	log := h.logger.Ctx(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.respond(w, "unknown", http.StatusBadRequest, started)
		return
	}

	topic := r.Header.Get("X-Shopify-Topic")
	shop := r.Header.Get("X-Shopify-Shop-Domain")

	if !Verify(body, h.secret, r.Header.Get("X-Shopify-Hmac-Sha256")) {
		log.Warn("Rejected webhook with invalid signature",
			zap.String("topic", topic),
			zap.String("shop", shop),
		)
		h.respond(w, topic, http.StatusUnauthorized, started)
		return
	}

	log.Info("Received webhook",
		zap.String("topic", topic),
		zap.String("shop", shop),
		zap.String("webhook_id", r.Header.Get("X-Shopify-Webhook-Id")),
	)

	if err := h.dispatch(ctx, topic, shop, body); err != nil {
		log.Error("Webhook processing failed",
			zap.String("topic", topic),
			zap.String("shop", shop),
			zap.Error(err),
		)
		h.respond(w, topic, http.StatusInternalServerError, started)
		return
	}
	h.respond(w, topic, http.StatusOK, started)
}

func (h *Handler) dispatch(ctx context.Context, topic, shop string, body []byte) error {
	log := h.logger.Ctx(ctx)

	switch topic {
	case TopicAppUninstalled, TopicShopRedact:
		if shop == "" {
			return errors.New("missing shop domain")
		}
		return h.forgetter.Forget(ctx, shop)

	case TopicAppScopesUpdate:
		var payload scopesUpdatePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return err
		}
		err := h.scopes.UpdateScope(ctx, shop, strings.Join(payload.Current, ","))
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("No session found for scopes update", zap.String("shop", shop))
			return nil
		}
		return err

	case TopicCustomersDataRequest, TopicCustomersRedact:
		// No customer data is stored.
		return nil

	case TopicOrdersCreate, TopicOrdersUpdated:
		var order orderPayload
		if err := json.Unmarshal(body, &order); err != nil {
			return err
		}
		log.Info("Order event",
			zap.String("topic", topic),
			zap.String("shop", shop),
			zap.String("order_id", order.ID.String()),
			zap.String("order_name", order.Name),
		)
		return nil

	default:
		log.Warn("Unhandled webhook topic", zap.String("topic", topic), zap.String("shop", shop))
		return nil
	}
}

func (h *Handler) respond(w http.ResponseWriter, topic string, status int, started time.Time) {
	if h.metrics != nil {
		h.metrics.RecordRequest("webhook:"+topic, http.StatusText(status), time.Since(started).Seconds())
	}
	w.WriteHeader(status)
}
