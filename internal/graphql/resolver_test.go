package graphql_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/carriersync/internal/graphql"
	"github.com/tournevent/carriersync/internal/settings"
	"github.com/tournevent/carriersync/internal/store"
	"github.com/tournevent/carriersync/internal/telemetry"
	"github.com/tournevent/carriersync/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const shop = "test-shop.myshopify.com"

type fakeSettings struct {
	configs map[string]store.ShopConfig
	saved   []settings.Input
	saveErr error
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{configs: make(map[string]store.ShopConfig)}
}

func (f *fakeSettings) Get(_ context.Context, shop string) (store.ShopConfig, error) {
	cfg, ok := f.configs[shop]
	if !ok {
		return store.ShopConfig{}, fmt.Errorf("config for %s: %w", shop, store.ErrNotFound)
	}
	return cfg, nil
}

func (f *fakeSettings) Save(_ context.Context, shop string, in settings.Input) (store.ShopConfig, error) {
	f.saved = append(f.saved, in)
	if err := (carrier.DesiredState{Enabled: in.Enabled, Endpoint: in.Endpoint, APIKey: in.APIKey}).Validate(); err != nil {
		return store.ShopConfig{}, err
	}
	cfg := store.ShopConfig{
		Shop:       shop,
		Enabled:    in.Enabled,
		Endpoint:   in.Endpoint,
		APIKey:     in.APIKey,
		SyncStatus: store.SyncSynced,
		UpdatedAt:  time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
	}
	if f.saveErr != nil {
		cfg.SyncStatus = store.SyncFailed
		cfg.LastError = f.saveErr.Error()
		f.configs[shop] = cfg
		return cfg, f.saveErr
	}
	cfg.CarrierServiceID = "555"
	f.configs[shop] = cfg
	return cfg, nil
}

func (f *fakeSettings) Deactivate(_ context.Context, shop string) (store.ShopConfig, error) {
	cfg, ok := f.configs[shop]
	if !ok {
		return store.ShopConfig{}, fmt.Errorf("config for %s: %w", shop, store.ErrNotFound)
	}
	cfg.Enabled = false
	cfg.SyncStatus = store.SyncDisabled
	f.configs[shop] = cfg
	return cfg, nil
}

func newTestResolver() (*graphql.Resolver, *fakeSettings, *telemetry.Metrics) {
	svc := newFakeSettings()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	return graphql.NewResolver(svc, otelzap.New(zap.NewNop()), metrics), svc, metrics
}

// roundTrip renders the response the way the server does.
func roundTrip(t *testing.T, resp *graphql.Response) map[string]any {
	t.Helper()
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestExecute_Health(t *testing.T) {
	resolver, _, _ := newTestResolver()

	resp := resolver.Execute(context.Background(), "", graphql.Request{Query: `{ health }`})

	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]any{"health": true}, resp.Data)
}

func TestExecute_SettingsNullWhenNothingSaved(t *testing.T) {
	resolver, _, _ := newTestResolver()

	resp := resolver.Execute(context.Background(), shop, graphql.Request{Query: `{ settings { enabled endpoint } }`})

	require.Empty(t, resp.Errors)
	out := roundTrip(t, resp)
	assert.Equal(t, map[string]any{"settings": nil}, out["data"])
}

func TestExecute_SaveSettings(t *testing.T) {
	resolver, svc, metrics := newTestResolver()

	resp := resolver.Execute(context.Background(), shop, graphql.Request{
		Query: `mutation Save($input: SaveSettingsInput!) {
			result: saveSettings(input: $input) { ok carrierServiceId syncStatus error settings { endpoint apiKey } }
		}`,
		OperationName: "Save",
		Variables: map[string]any{
			"input": map[string]any{"enabled": true, "endpoint": "https://rates.example.com", "apiKey": "abc123"},
		},
	})

	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]any{
		"result": map[string]any{
			"ok":               true,
			"carrierServiceId": "555",
			"syncStatus":       "synced",
			"error":            nil,
			"settings": map[string]any{
				"endpoint": "https://rates.example.com",
				"apiKey":   "abc123",
			},
		},
	}, resp.Data)
	assert.Equal(t, []settings.Input{{Enabled: true, Endpoint: "https://rates.example.com", APIKey: "abc123"}}, svc.saved)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("saveSettings", "ok")))
}

func TestExecute_SaveSettingsInlineArguments(t *testing.T) {
	resolver, svc, _ := newTestResolver()

	resp := resolver.Execute(context.Background(), shop, graphql.Request{
		Query: `mutation { saveSettings(input: {enabled: false}) { ok syncStatus } }`,
	})

	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]any{"ok": true, "syncStatus": "synced"}, resp.Data["saveSettings"])
	require.Len(t, svc.saved, 1)
	assert.False(t, svc.saved[0].Enabled)
}

func TestExecute_SaveSettingsValidationIsGraphQLError(t *testing.T) {
	resolver, _, metrics := newTestResolver()

	resp := resolver.Execute(context.Background(), shop, graphql.Request{
		Query: `mutation { saveSettings(input: {enabled: true, endpoint: "", apiKey: "k"}) { ok } }`,
	})

	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "endpoint")
	assert.Equal(t, "VALIDATION", resp.Errors[0].Extensions["code"])
	assert.Equal(t, "endpoint", resp.Errors[0].Extensions["field"])
	assert.Nil(t, resp.Data["saveSettings"])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("saveSettings", "error")))
}

func TestExecute_SaveSettingsSyncFailureIsPayload(t *testing.T) {
	resolver, svc, _ := newTestResolver()
	svc.saveErr = &carrier.ReconcileError{Cause: carrier.CauseCreateFailed, Err: fmt.Errorf("boom")}

	resp := resolver.Execute(context.Background(), shop, graphql.Request{
		Query: `mutation { saveSettings(input: {enabled: true, endpoint: "https://x.example.com", apiKey: "k"}) { ok cause error syncStatus settings { lastError } } }`,
	})

	require.Empty(t, resp.Errors)
	payload := resp.Data["saveSettings"].(map[string]any)
	assert.Equal(t, false, payload["ok"])
	assert.Equal(t, "createFailed", payload["cause"])
	assert.Contains(t, payload["error"], "boom")
	assert.Equal(t, "failed", payload["syncStatus"])
	assert.Contains(t, payload["settings"].(map[string]any)["lastError"], "boom")
}

func TestExecute_SettingsAfterSave(t *testing.T) {
	resolver, _, _ := newTestResolver()
	ctx := context.Background()

	resolver.Execute(ctx, shop, graphql.Request{
		Query: `mutation { saveSettings(input: {enabled: true, endpoint: "https://x.example.com", apiKey: "k"}) { ok } }`,
	})
	resp := resolver.Execute(ctx, shop, graphql.Request{
		Query: `query { settings { ...fields updatedAt } } fragment fields on Settings { shop enabled carrierServiceId syncStatus lastError }`,
	})

	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]any{
		"shop":             shop,
		"enabled":          true,
		"carrierServiceId": "555",
		"syncStatus":       "synced",
		"lastError":        nil,
		"updatedAt":        "2025-07-01T12:00:00Z",
	}, resp.Data["settings"])
}

func TestExecute_Deactivate(t *testing.T) {
	resolver, svc, _ := newTestResolver()
	svc.configs[shop] = store.ShopConfig{Shop: shop, Enabled: true, CarrierServiceID: "555", SyncStatus: store.SyncSynced}

	resp := resolver.Execute(context.Background(), shop, graphql.Request{
		Query: `mutation { deactivateCarrierService { ok settings { enabled syncStatus } } }`,
	})

	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]any{
		"ok":       true,
		"settings": map[string]any{"enabled": false, "syncStatus": "disabled"},
	}, resp.Data["deactivateCarrierService"])
}

func TestExecute_DeactivateUnknownShop(t *testing.T) {
	resolver, _, _ := newTestResolver()

	resp := resolver.Execute(context.Background(), shop, graphql.Request{
		Query: `mutation { deactivateCarrierService { ok cause } }`,
	})

	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]any{"ok": false, "cause": "internal"}, resp.Data["deactivateCarrierService"])
}

func TestExecute_ShopRequired(t *testing.T) {
	resolver, _, _ := newTestResolver()

	resp := resolver.Execute(context.Background(), "", graphql.Request{Query: `{ health settings { enabled } }`})

	require.Len(t, resp.Errors, 1)
	assert.Equal(t, graphql.ErrMissingShop.Error(), resp.Errors[0].Message)
	assert.Equal(t, true, resp.Data["health"])
	assert.Nil(t, resp.Data["settings"])
}

func TestExecute_RejectsInvalidDocuments(t *testing.T) {
	resolver, _, _ := newTestResolver()

	tests := []struct {
		name string
		req  graphql.Request
	}{
		{"syntax", graphql.Request{Query: `{ health `}},
		{"unknown field", graphql.Request{Query: `{ carriers }`}},
		{"missing variable", graphql.Request{Query: `mutation($input: SaveSettingsInput!) { saveSettings(input: $input) { ok } }`}},
		{"unknown operation", graphql.Request{Query: `query A { health } query B { health }`, OperationName: "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := resolver.Execute(context.Background(), shop, tt.req)
			assert.NotEmpty(t, resp.Errors)
			assert.Nil(t, resp.Data)
		})
	}
}
