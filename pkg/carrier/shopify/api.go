package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// APIClient defines the Shopify Admin REST operations on carrier services.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// ListCarrierServices returns every carrier service of the shop.
	ListCarrierServices(ctx context.Context, shop, token string) ([]CarrierService, error)

	// CreateCarrierService registers a new carrier service.
	CreateCarrierService(ctx context.Context, shop, token string, in *CarrierServiceInput) (*CarrierService, error)

	// UpdateCarrierService modifies an existing carrier service.
	UpdateCarrierService(ctx context.Context, shop, token, id string, in *CarrierServiceInput) (*CarrierService, error)

	// DeleteCarrierService removes a carrier service.
	DeleteCarrierService(ctx context.Context, shop, token, id string) error
}

// ============================================================================
// API Request/Response Types (match Shopify Admin REST carrier_services)
// ============================================================================

// CarrierService is a carrier service as returned by the Admin API.
// GET /admin/api/{version}/carrier_services.json
type CarrierService struct {
	ID                 json.Number `json:"id"`
	Name               string      `json:"name"`
	Active             bool        `json:"active"`
	ServiceDiscovery   bool        `json:"service_discovery"`
	CarrierServiceType string      `json:"carrier_service_type,omitempty"`
	AdminGraphqlAPIID  string      `json:"admin_graphql_api_id,omitempty"`
	Format             string      `json:"format,omitempty"`
	CallbackURL        string      `json:"callback_url"`
}

// CarrierServiceInput is the writable subset of a carrier service.
// Pointer fields are sent whenever set, including false values.
type CarrierServiceInput struct {
	Name             string `json:"name,omitempty"`
	CallbackURL      string `json:"callback_url,omitempty"`
	ServiceDiscovery *bool  `json:"service_discovery,omitempty"`
	Format           string `json:"format,omitempty"`
	Active           *bool  `json:"active,omitempty"`
}

type carrierServiceRequest struct {
	CarrierService *CarrierServiceInput `json:"carrier_service"`
}

type carrierServiceResponse struct {
	CarrierService CarrierService `json:"carrier_service"`
}

type carrierServicesResponse struct {
	CarrierServices []CarrierService `json:"carrier_services"`
}

// APIError represents a failed Admin API call. StatusCode is zero when the
// request never produced a response.
type APIError struct {
	StatusCode int
	Body       string
	Messages   []string
	Cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("shopify request failed: %v", e.Cause)
	}
	if e.Cause != nil {
		return fmt.Sprintf("shopify HTTP %d: %v", e.StatusCode, e.Cause)
	}
	if len(e.Messages) > 0 {
		return fmt.Sprintf("shopify HTTP %d: %s", e.StatusCode, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("shopify HTTP %d: %s", e.StatusCode, e.Body)
}

// Unwrap returns the transport error, if any.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// parseErrorMessages flattens the shapes Shopify uses for the "errors" key:
// a string, a list of strings, or an object of field -> string(s).
func parseErrorMessages(body []byte) []string {
	var envelope struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Errors) == 0 {
		return nil
	}

	var single string
	if err := json.Unmarshal(envelope.Errors, &single); err == nil {
		return []string{single}
	}

	var list []string
	if err := json.Unmarshal(envelope.Errors, &list); err == nil {
		return list
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(envelope.Errors, &fields); err != nil {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		var msgs []string
		if err := json.Unmarshal(fields[k], &msgs); err != nil {
			var msg string
			if err := json.Unmarshal(fields[k], &msg); err != nil {
				continue
			}
			msgs = []string{msg}
		}
		for _, m := range msgs {
			if k == "base" {
				out = append(out, m)
			} else {
				out = append(out, k+" "+m)
			}
		}
	}
	return out
}
