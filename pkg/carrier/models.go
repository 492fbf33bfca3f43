package carrier

import (
	"net/url"
	"strings"
)

// DesiredState is the carrier service configuration the merchant asked for.
type DesiredState struct {
	Enabled  bool
	Endpoint string
	APIKey   string
}

// Validate checks that an enabled state carries a usable endpoint and key.
// A disabled state is always valid.
func (s DesiredState) Validate() error {
	if !s.Enabled {
		return nil
	}
	if strings.TrimSpace(s.Endpoint) == "" {
		return NewValidationError("endpoint", "must not be empty when enabled")
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return NewValidationError("apiKey", "must not be empty when enabled")
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return NewValidationError("endpoint", "is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewValidationError("endpoint", "must be an absolute http or https URL")
	}
	if u.Host == "" {
		return NewValidationError("endpoint", "must include a host")
	}
	// The callback path is appended to the endpoint verbatim.
	if u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return NewValidationError("endpoint", "must not carry a query or fragment")
	}
	return nil
}

// Credentials identify the store and authorize calls against its admin API.
// The access token can rotate and must be supplied fresh for every call.
type Credentials struct {
	StoreDomain string
	AccessToken string
}

// Validate checks that both the store domain and the access token are present.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.StoreDomain) == "" {
		return NewValidationError("storeDomain", "must not be empty")
	}
	if c.AccessToken == "" {
		return NewValidationError("accessToken", "must not be empty")
	}
	return nil
}

// Resource mirrors a carrier service as registered on the storefront platform.
type Resource struct {
	ID          string
	Name        string
	CallbackURL string
	Active      bool
}

// Result is the outcome of a successful reconciliation. An empty ResourceID
// means no carrier service is wanted.
type Result struct {
	ResourceID string
}

// Candidates returns the resources whose name starts with prefix, preserving
// the order in which the remote returned them.
func Candidates(resources []Resource, prefix string) []Resource {
	var out []Resource
	for _, r := range resources {
		if strings.HasPrefix(r.Name, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// FindByCallback returns the first resource whose callback URL equals callbackURL.
func FindByCallback(resources []Resource, callbackURL string) (Resource, bool) {
	for _, r := range resources {
		if r.CallbackURL == callbackURL {
			return r, true
		}
	}
	return Resource{}, false
}
