package shopify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/carriersync/pkg/carrier"
	"github.com/tournevent/carriersync/pkg/carrier/shopify"
)

// adminTwin serves the carrier_services endpoints of the Admin API on top of
// a MockAPIClient and keeps the raw request bodies it received.
type adminTwin struct {
	api    *shopify.MockAPIClient
	bodies []map[string]any
}

func newAdminTwin(t *testing.T) (*adminTwin, *httptest.Server) {
	t.Helper()
	twin := &adminTwin{api: shopify.NewMockAPIClient()}

	r := chi.NewRouter()
	r.Route("/admin/api/{version}", func(r chi.Router) {
		r.Get("/carrier_services.json", twin.list)
		r.Post("/carrier_services.json", twin.create)
		r.Put("/carrier_services/{id}.json", twin.update)
		r.Delete("/carrier_services/{id}.json", twin.delete)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return twin, srv
}

func (a *adminTwin) decode(w http.ResponseWriter, r *http.Request) (*shopify.CarrierServiceInput, bool) {
	raw, _ := io.ReadAll(r.Body)
	var generic map[string]any
	_ = json.Unmarshal(raw, &generic)
	a.bodies = append(a.bodies, generic)

	var body struct {
		CarrierService *shopify.CarrierServiceInput `json:"carrier_service"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.CarrierService == nil {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":"bad request"}`))
		return nil, false
	}
	return body.CarrierService, true
}

func (a *adminTwin) reply(w http.ResponseWriter, key string, v any, err error) {
	w.Header().Set("Content-Type", "application/json")
	var apiErr *shopify.APIError
	if errors.As(err, &apiErr) {
		w.WriteHeader(apiErr.StatusCode)
		w.Write([]byte(apiErr.Body))
		return
	}
	json.NewEncoder(w).Encode(map[string]any{key: v})
}

func (a *adminTwin) list(w http.ResponseWriter, r *http.Request) {
	svcs, err := a.api.ListCarrierServices(r.Context(), shop, r.Header.Get("X-Shopify-Access-Token"))
	a.reply(w, "carrier_services", svcs, err)
}

func (a *adminTwin) create(w http.ResponseWriter, r *http.Request) {
	in, ok := a.decode(w, r)
	if !ok {
		return
	}
	svc, err := a.api.CreateCarrierService(r.Context(), shop, r.Header.Get("X-Shopify-Access-Token"), in)
	a.reply(w, "carrier_service", svc, err)
}

func (a *adminTwin) update(w http.ResponseWriter, r *http.Request) {
	in, ok := a.decode(w, r)
	if !ok {
		return
	}
	svc, err := a.api.UpdateCarrierService(r.Context(), shop, r.Header.Get("X-Shopify-Access-Token"), chi.URLParam(r, "id"), in)
	a.reply(w, "carrier_service", svc, err)
}

func (a *adminTwin) delete(w http.ResponseWriter, r *http.Request) {
	err := a.api.DeleteCarrierService(r.Context(), shop, r.Header.Get("X-Shopify-Access-Token"), chi.URLParam(r, "id"))
	if err != nil {
		a.reply(w, "", nil, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{}`))
}

func newHTTPClient(srv *httptest.Server) *shopify.HTTPAPIClient {
	return shopify.NewHTTPAPIClient(shopify.HTTPAPIClientConfig{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	})
}

func TestHTTPAPIClient_CreateListUpdate(t *testing.T) {
	twin, srv := newAdminTwin(t)
	api := newHTTPClient(srv)
	ctx := context.Background()
	active := true
	discovery := true

	created, err := api.CreateCarrierService(ctx, shop, "shpat_test", &shopify.CarrierServiceInput{
		Name:             "R8Connect Shipping Rates",
		CallbackURL:      "https://rates.example.com/api/Integration/shopify/abc123",
		ServiceDiscovery: &discovery,
		Format:           "json",
		Active:           &active,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID.String())

	assert.Equal(t, map[string]any{
		"carrier_service": map[string]any{
			"name":              "R8Connect Shipping Rates",
			"callback_url":      "https://rates.example.com/api/Integration/shopify/abc123",
			"service_discovery": true,
			"format":            "json",
			"active":            true,
		},
	}, twin.bodies[0])

	list, err := api.ListCarrierServices(ctx, shop, "shpat_test")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	inactive := false
	_, err = api.UpdateCarrierService(ctx, shop, "shpat_test", created.ID.String(), &shopify.CarrierServiceInput{
		Active: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"carrier_service": map[string]any{"active": false},
	}, twin.bodies[1])
	assert.False(t, twin.api.Services(shop)[0].Active)
}

func TestHTTPAPIClient_Delete(t *testing.T) {
	twin, srv := newAdminTwin(t)
	api := newHTTPClient(srv)
	ctx := context.Background()
	svc := twin.api.Seed(shop, shopify.CarrierService{Name: "R8Connect Shipping Rates"}, false)

	require.NoError(t, api.DeleteCarrierService(ctx, shop, "shpat_test", svc.ID.String()))
	assert.Empty(t, twin.api.Services(shop))

	err := api.DeleteCarrierService(ctx, shop, "shpat_test", svc.ID.String())
	var apiErr *shopify.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestHTTPAPIClient_RequestShape(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Write([]byte(`{"carrier_services":[{"id":123456789,"name":"Rates","active":true,"callback_url":"https://x"}]}`))
	}))
	defer srv.Close()

	api := shopify.NewHTTPAPIClient(shopify.HTTPAPIClientConfig{BaseURL: srv.URL, APIVersion: "2024-10"})
	list, err := api.ListCarrierServices(context.Background(), shop, "shpat_secret")

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/admin/api/2024-10/carrier_services.json", got.URL.Path)
	assert.Equal(t, "shpat_secret", got.Header.Get("X-Shopify-Access-Token"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	require.Len(t, list, 1)
	assert.Equal(t, "123456789", list[0].ID.String())
}

func TestHTTPAPIClient_ErrorShapes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   []string
	}{
		{"string", 401, `{"errors":"[API] Invalid API key or access token"}`, []string{"[API] Invalid API key or access token"}},
		{"list", 400, `{"errors":["first","second"]}`, []string{"first", "second"}},
		{"base", 422, `{"errors":{"base":["https://x is already configured"]}}`, []string{"https://x is already configured"}},
		{"fields", 422, `{"errors":{"name":["can't be blank"],"callback_url":"is invalid"}}`, []string{"callback_url is invalid", "name can't be blank"}},
		{"not json", 502, `<html>Bad Gateway</html>`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newHTTPClient(srv).ListCarrierServices(context.Background(), shop, "t")

			var apiErr *shopify.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.body, apiErr.Body)
			assert.Equal(t, tt.want, apiErr.Messages)
		})
	}
}

func TestHTTPAPIClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := newHTTPClient(srv).ListCarrierServices(context.Background(), shop, "t")

	var apiErr *shopify.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Zero(t, apiErr.StatusCode)
	assert.Error(t, apiErr.Cause)
}

func TestHTTPAPIClient_EndToEndReconcile(t *testing.T) {
	twin, srv := newAdminTwin(t)
	twin.api.Seed(shop, shopify.CarrierService{Name: "R8Connect Shipping Rates", CallbackURL: "https://foreign.example.com"}, true)

	client := newTestClient(newHTTPClient(srv))
	r := carrier.NewReconciler(client, nopLogger(), nil)

	res, err := r.Reconcile(context.Background(), carrier.DesiredState{
		Enabled:  true,
		Endpoint: "https://rates.example.com",
		APIKey:   "abc123",
	}, creds, "R8Connect Shipping Rates")

	require.NoError(t, err)
	services := twin.api.Services(shop)
	require.Len(t, services, 2)
	assert.Equal(t, services[1].ID.String(), res.ResourceID)
	assert.Equal(t, "https://rates.example.com/api/Integration/shopify/abc123", services[1].CallbackURL)
}
