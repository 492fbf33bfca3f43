package webhook_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/tournevent/carriersync/internal/store"
	"github.com/tournevent/carriersync/internal/telemetry"
	"github.com/tournevent/carriersync/internal/webhook"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	secret = "shpss_test_secret"
	shop   = "test-shop.myshopify.com"
)

type fakeSessions struct {
	scopes map[string]string
}

func (f *fakeSessions) UpdateScope(_ context.Context, shop, scope string) error {
	if _, ok := f.scopes[shop]; !ok {
		return fmt.Errorf("session for %s: %w", shop, store.ErrNotFound)
	}
	f.scopes[shop] = scope
	return nil
}

type fakeForgetter struct {
	forgot []string
	err    error
}

func (f *fakeForgetter) Forget(_ context.Context, shop string) error {
	f.forgot = append(f.forgot, shop)
	return f.err
}

func newTestHandler() (*webhook.Handler, *fakeSessions, *fakeForgetter, *telemetry.Metrics) {
	sessions := &fakeSessions{scopes: map[string]string{shop: "write_shipping"}}
	forgetter := &fakeForgetter{}
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	h := webhook.NewHandler(secret, sessions, forgetter, otelzap.New(zap.NewNop()), metrics)
	return h, sessions, forgetter, metrics
}

func deliver(h http.Handler, topic, shop, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(body))
	req.Header.Set("X-Shopify-Topic", topic)
	req.Header.Set("X-Shopify-Shop-Domain", shop)
	req.Header.Set("X-Shopify-Hmac-Sha256", signature)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestVerify(t *testing.T) {
	body := []byte(`{"id":1}`)
	sig := webhook.Sign(body, secret)

	assert.True(t, webhook.Verify(body, secret, sig))
	assert.False(t, webhook.Verify([]byte(`{"id":2}`), secret, sig))
	assert.False(t, webhook.Verify(body, "other", sig))
	assert.False(t, webhook.Verify(body, "", webhook.Sign(body, "")))
	assert.False(t, webhook.Verify(body, secret, "not base64!"))
	assert.False(t, webhook.Verify(body, secret, ""))
}

func TestHandler_RejectsBadSignature(t *testing.T) {
	h, _, forgetter, metrics := newTestHandler()
	body := `{}`

	rec := deliver(h, webhook.TopicAppUninstalled, shop, body, webhook.Sign([]byte(body), "wrong"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, forgetter.forgot)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("webhook:app/uninstalled", "Unauthorized")))
}

func TestHandler_Uninstalled(t *testing.T) {
	h, _, forgetter, _ := newTestHandler()
	body := `{"id":1,"domain":"test-shop.myshopify.com"}`

	rec := deliver(h, webhook.TopicAppUninstalled, shop, body, webhook.Sign([]byte(body), secret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{shop}, forgetter.forgot)
}

func TestHandler_ShopRedactForgets(t *testing.T) {
	h, _, forgetter, _ := newTestHandler()
	body := `{"shop_id":1,"shop_domain":"test-shop.myshopify.com"}`

	rec := deliver(h, webhook.TopicShopRedact, shop, body, webhook.Sign([]byte(body), secret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{shop}, forgetter.forgot)
}

func TestHandler_ForgetFailureIs500(t *testing.T) {
	h, _, forgetter, _ := newTestHandler()
	forgetter.err = errors.New("database is locked")
	body := `{}`

	rec := deliver(h, webhook.TopicAppUninstalled, shop, body, webhook.Sign([]byte(body), secret))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandler_ScopesUpdate(t *testing.T) {
	h, sessions, _, _ := newTestHandler()
	body := `{"previous":["write_shipping"],"current":["read_orders","write_shipping"]}`

	rec := deliver(h, webhook.TopicAppScopesUpdate, shop, body, webhook.Sign([]byte(body), secret))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "read_orders,write_shipping", sessions.scopes[shop])
}

func TestHandler_ScopesUpdateWithoutSession(t *testing.T) {
	h, _, _, _ := newTestHandler()
	body := `{"current":["write_shipping"]}`

	rec := deliver(h, webhook.TopicAppScopesUpdate, "other.myshopify.com", body, webhook.Sign([]byte(body), secret))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_AcknowledgedTopics(t *testing.T) {
	tests := []struct {
		topic string
		body  string
	}{
		{webhook.TopicCustomersDataRequest, `{"customer":{"id":1}}`},
		{webhook.TopicCustomersRedact, `{"customer":{"id":1}}`},
		{webhook.TopicOrdersCreate, `{"id":820982911946154508,"name":"#1001"}`},
		{webhook.TopicOrdersUpdated, `{"id":820982911946154508,"name":"#1001"}`},
		{"products/create", `{"id":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			h, _, forgetter, _ := newTestHandler()

			rec := deliver(h, tt.topic, shop, tt.body, webhook.Sign([]byte(tt.body), secret))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, forgetter.forgot)
		})
	}
}

func TestHandler_MalformedOrderIs500(t *testing.T) {
	h, _, _, _ := newTestHandler()
	body := `not json`

	rec := deliver(h, webhook.TopicOrdersCreate, shop, body, webhook.Sign([]byte(body), secret))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
