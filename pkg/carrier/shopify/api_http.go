package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultAPIVersion is the Admin API version used when none is configured.
const DefaultAPIVersion = "2025-07"

// HTTPAPIClient is the production implementation of APIClient using HTTP.
// It never retries; every call maps to exactly one request.
type HTTPAPIClient struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	// BaseURL replaces https://{shop} when set, e.g. to point at a local twin.
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	return &HTTPAPIClient{
		baseURL:    cfg.BaseURL,
		apiVersion: apiVersion,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListCarrierServices fetches the shop's carrier services.
// GET /admin/api/{version}/carrier_services.json
func (c *HTTPAPIClient) ListCarrierServices(ctx context.Context, shop, token string) ([]CarrierService, error) {
	var result carrierServicesResponse
	if err := c.do(ctx, http.MethodGet, shop, token, "/carrier_services.json", nil, &result); err != nil {
		return nil, err
	}
	return result.CarrierServices, nil
}

// CreateCarrierService registers a carrier service.
// POST /admin/api/{version}/carrier_services.json
func (c *HTTPAPIClient) CreateCarrierService(ctx context.Context, shop, token string, in *CarrierServiceInput) (*CarrierService, error) {
	var result carrierServiceResponse
	body := carrierServiceRequest{CarrierService: in}
	if err := c.do(ctx, http.MethodPost, shop, token, "/carrier_services.json", body, &result); err != nil {
		return nil, err
	}
	return &result.CarrierService, nil
}

// UpdateCarrierService modifies a carrier service.
// PUT /admin/api/{version}/carrier_services/{id}.json
func (c *HTTPAPIClient) UpdateCarrierService(ctx context.Context, shop, token, id string, in *CarrierServiceInput) (*CarrierService, error) {
	var result carrierServiceResponse
	body := carrierServiceRequest{CarrierService: in}
	path := fmt.Sprintf("/carrier_services/%s.json", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPut, shop, token, path, body, &result); err != nil {
		return nil, err
	}
	return &result.CarrierService, nil
}

// DeleteCarrierService removes a carrier service.
// DELETE /admin/api/{version}/carrier_services/{id}.json
func (c *HTTPAPIClient) DeleteCarrierService(ctx context.Context, shop, token, id string) error {
	path := fmt.Sprintf("/carrier_services/%s.json", url.PathEscape(id))
	return c.do(ctx, http.MethodDelete, shop, token, path, nil, nil)
}

func (c *HTTPAPIClient) endpoint(shop, path string) string {
	base := c.baseURL
	if base == "" {
		base = "https://" + shop
	}
	return base + "/admin/api/" + c.apiVersion + path
}

// do performs a request and decodes a 2xx JSON body into out.
func (c *HTTPAPIClient) do(ctx context.Context, method, shop, token, path string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(shop, path), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", token)
	req.Header.Set("User-Agent", "carriersync/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return &APIError{
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return nil
}

// parseError extracts error information from an HTTP response.
func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &APIError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Messages:   parseErrorMessages(body),
	}
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
