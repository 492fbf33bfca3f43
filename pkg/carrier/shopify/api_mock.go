package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// MockAPIClient is an in-memory Admin API for testing and local runs.
// Carrier services seeded as foreign belong to another app and reject writes,
// and callback URLs are unique per shop, as on the real platform.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnListCarrierServices  func(ctx context.Context, shop, token string) ([]CarrierService, error)
	OnCreateCarrierService func(ctx context.Context, shop, token string, in *CarrierServiceInput) (*CarrierService, error)
	OnUpdateCarrierService func(ctx context.Context, shop, token, id string, in *CarrierServiceInput) (*CarrierService, error)
	OnDeleteCarrierService func(ctx context.Context, shop, token, id string) error

	mu     sync.Mutex
	shops  map[string][]mockService
	nextID int64
}

type mockService struct {
	CarrierService
	foreign bool
}

// NewMockAPIClient creates a new mock API client with no carrier services.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{
		shops:  make(map[string][]mockService),
		nextID: 70000000000,
	}
}

// Seed stores a carrier service for shop. A foreign service is owned by
// another app. An empty ID is assigned automatically.
func (m *MockAPIClient) Seed(shop string, svc CarrierService, foreign bool) CarrierService {
	m.mu.Lock()
	defer m.mu.Unlock()
	if svc.ID == "" {
		svc.ID = m.newID()
	}
	m.shops[shop] = append(m.shops[shop], mockService{CarrierService: svc, foreign: foreign})
	return svc
}

// Services returns a copy of the shop's carrier services.
func (m *MockAPIClient) Services(shop string) []CarrierService {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CarrierService, 0, len(m.shops[shop]))
	for _, s := range m.shops[shop] {
		out = append(out, s.CarrierService)
	}
	return out
}

// ListCarrierServices returns the shop's carrier services.
func (m *MockAPIClient) ListCarrierServices(ctx context.Context, shop, token string) ([]CarrierService, error) {
	if err := m.preflight(token); err != nil {
		return nil, err
	}
	if m.OnListCarrierServices != nil {
		return m.OnListCarrierServices(ctx, shop, token)
	}
	return m.Services(shop), nil
}

// CreateCarrierService registers a carrier service owned by this app.
func (m *MockAPIClient) CreateCarrierService(ctx context.Context, shop, token string, in *CarrierServiceInput) (*CarrierService, error) {
	if err := m.preflight(token); err != nil {
		return nil, err
	}
	if m.OnCreateCarrierService != nil {
		return m.OnCreateCarrierService(ctx, shop, token, in)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if in.Name == "" {
		return nil, mockError(http.StatusUnprocessableEntity, `{"errors":{"name":["can't be blank"]}}`)
	}
	for _, s := range m.shops[shop] {
		if s.CallbackURL == in.CallbackURL {
			return nil, mockError(http.StatusUnprocessableEntity,
				`{"errors":{"base":["`+in.CallbackURL+` is already configured"]}}`)
		}
	}

	svc := CarrierService{
		ID:                 m.newID(),
		Name:               in.Name,
		CallbackURL:        in.CallbackURL,
		Format:             in.Format,
		CarrierServiceType: "api",
	}
	if in.ServiceDiscovery != nil {
		svc.ServiceDiscovery = *in.ServiceDiscovery
	}
	if in.Active != nil {
		svc.Active = *in.Active
	}
	svc.AdminGraphqlAPIID = "gid://shopify/DeliveryCarrierService/" + svc.ID.String()
	m.shops[shop] = append(m.shops[shop], mockService{CarrierService: svc})
	return &svc, nil
}

// UpdateCarrierService modifies a carrier service owned by this app.
func (m *MockAPIClient) UpdateCarrierService(ctx context.Context, shop, token, id string, in *CarrierServiceInput) (*CarrierService, error) {
	if err := m.preflight(token); err != nil {
		return nil, err
	}
	if m.OnUpdateCarrierService != nil {
		return m.OnUpdateCarrierService(ctx, shop, token, id, in)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	services := m.shops[shop]
	for i := range services {
		if services[i].ID.String() != id {
			continue
		}
		if services[i].foreign {
			return nil, mockError(http.StatusForbidden,
				`{"errors":"You cannot modify a carrier service created by another application"}`)
		}
		if in.Name != "" {
			services[i].Name = in.Name
		}
		if in.CallbackURL != "" {
			services[i].CallbackURL = in.CallbackURL
		}
		if in.Active != nil {
			services[i].Active = *in.Active
		}
		svc := services[i].CarrierService
		return &svc, nil
	}
	return nil, mockError(http.StatusNotFound, `{"errors":"Not Found"}`)
}

// DeleteCarrierService removes a carrier service owned by this app.
func (m *MockAPIClient) DeleteCarrierService(ctx context.Context, shop, token, id string) error {
	if err := m.preflight(token); err != nil {
		return err
	}
	if m.OnDeleteCarrierService != nil {
		return m.OnDeleteCarrierService(ctx, shop, token, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	services := m.shops[shop]
	for i := range services {
		if services[i].ID.String() != id {
			continue
		}
		if services[i].foreign {
			return mockError(http.StatusForbidden,
				`{"errors":"You cannot delete a carrier service created by another application"}`)
		}
		m.shops[shop] = append(services[:i:i], services[i+1:]...)
		return nil
	}
	return mockError(http.StatusNotFound, `{"errors":"Not Found"}`)
}

func (m *MockAPIClient) preflight(token string) error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return mockError(http.StatusInternalServerError, `{"errors":"Simulated API error"}`)
	}
	if token == "" {
		return mockError(http.StatusUnauthorized,
			`{"errors":"[API] Invalid API key or access token (unrecognized login or wrong password)"}`)
	}
	return nil
}

// newID must be called with m.mu held.
func (m *MockAPIClient) newID() json.Number {
	m.nextID++
	return json.Number(strconv.FormatInt(m.nextID, 10))
}

func mockError(status int, body string) *APIError {
	return &APIError{
		StatusCode: status,
		Body:       body,
		Messages:   parseErrorMessages([]byte(body)),
	}
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
