// Package mock provides an in-memory carrier.Client for testing.
package mock

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/tournevent/carriersync/pkg/carrier"
)

// Call records one operation made against the mock.
type Call struct {
	Op          string
	ID          string
	Name        string
	CallbackURL string
	Active      bool
}

// Client is an in-memory carrier service collection for a single store.
// Resources listed in Foreign reject updates and deletes with an ownership conflict, and
// creating a second resource with an existing callback URL yields a callback
// conflict, mirroring the storefront platform.
type Client struct {
	mu        sync.Mutex
	resources []carrier.Resource
	foreign   map[string]bool
	calls     []Call
	nextID    int

	OnList   func(ctx context.Context, creds carrier.Credentials) ([]carrier.Resource, error)
	OnCreate func(ctx context.Context, creds carrier.Credentials, name, callbackURL string, active bool) (string, error)
	OnUpdate func(ctx context.Context, creds carrier.Credentials, id, callbackURL string, active bool) error
	OnDelete func(ctx context.Context, creds carrier.Credentials, id string) error
}

// New creates a mock holding the given resources.
func New(resources ...carrier.Resource) *Client {
	return &Client{
		resources: append([]carrier.Resource(nil), resources...),
		foreign:   make(map[string]bool),
		nextID:    1000,
	}
}

// WithForeign marks ids as owned by another app.
func (c *Client) WithForeign(ids ...string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.foreign[id] = true
	}
	return c
}

// Add appends a resource to the collection, as another actor would.
func (c *Client) Add(r carrier.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources = append(c.resources, r)
}

// Resources returns a copy of the current collection.
func (c *Client) Resources() []carrier.Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]carrier.Resource(nil), c.resources...)
}

// Calls returns every recorded call in order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallsOf returns the recorded calls for one operation.
func (c *Client) CallsOf(op string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Call
	for _, call := range c.calls {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// Mutations returns the number of create, update and delete calls made.
func (c *Client) Mutations() int {
	return len(c.CallsOf("create")) + len(c.CallsOf("update")) + len(c.CallsOf("delete"))
}

func (c *Client) record(call Call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

// List returns the current collection.
func (c *Client) List(ctx context.Context, creds carrier.Credentials) ([]carrier.Resource, error) {
	c.record(Call{Op: "list"})
	if c.OnList != nil {
		return c.OnList(ctx, creds)
	}
	return c.Resources(), nil
}

// Create adds a resource unless its callback URL is already registered.
func (c *Client) Create(ctx context.Context, creds carrier.Credentials, name, callbackURL string, active bool) (string, error) {
	c.record(Call{Op: "create", Name: name, CallbackURL: callbackURL, Active: active})
	if c.OnCreate != nil {
		return c.OnCreate(ctx, creds, name, callbackURL, active)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := carrier.FindByCallback(c.resources, callbackURL); ok {
		return "", CallbackConflict()
	}
	c.nextID++
	id := strconv.Itoa(c.nextID)
	c.resources = append(c.resources, carrier.Resource{
		ID:          id,
		Name:        name,
		CallbackURL: callbackURL,
		Active:      active,
	})
	return id, nil
}

// Update modifies a resource owned by this app.
func (c *Client) Update(ctx context.Context, creds carrier.Credentials, id, callbackURL string, active bool) error {
	c.record(Call{Op: "update", ID: id, CallbackURL: callbackURL, Active: active})
	if c.OnUpdate != nil {
		return c.OnUpdate(ctx, creds, id, callbackURL, active)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.foreign[id] {
		return OwnershipConflict()
	}
	for i := range c.resources {
		if c.resources[i].ID != id {
			continue
		}
		if callbackURL != "" {
			c.resources[i].CallbackURL = callbackURL
		}
		c.resources[i].Active = active
		return nil
	}
	return carrier.NewRemoteError("update", http.StatusNotFound, `{"errors":"Not Found"}`).
		WithKind(carrier.KindNotFound)
}

// Delete removes a resource owned by this app.
func (c *Client) Delete(ctx context.Context, creds carrier.Credentials, id string) error {
	c.record(Call{Op: "delete", ID: id})
	if c.OnDelete != nil {
		return c.OnDelete(ctx, creds, id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.foreign[id] {
		return OwnershipConflict()
	}
	for i := range c.resources {
		if c.resources[i].ID == id {
			c.resources = append(c.resources[:i:i], c.resources[i+1:]...)
			return nil
		}
	}
	return carrier.NewRemoteError("delete", http.StatusNotFound, `{"errors":"Not Found"}`).
		WithKind(carrier.KindNotFound)
}

// OwnershipConflict returns the error the platform gives for another app's resource.
func OwnershipConflict() *carrier.RemoteError {
	return carrier.NewRemoteError("update", http.StatusForbidden, `{"errors":"Forbidden"}`).
		WithKind(carrier.KindOwnershipConflict)
}

// CallbackConflict returns the error the platform gives for a duplicate callback URL.
func CallbackConflict() *carrier.RemoteError {
	return carrier.NewRemoteError("create", http.StatusUnprocessableEntity,
		`{"errors":{"base":["Callback url is already configured"]}}`).
		WithKind(carrier.KindCallbackConflict).
		WithMessages([]string{"Callback url is already configured"})
}

// ServerError returns a generic 500 failure for op.
func ServerError(op string) *carrier.RemoteError {
	return carrier.NewRemoteError(op, http.StatusInternalServerError, `{"errors":"Internal Server Error"}`)
}

var _ carrier.Client = (*Client)(nil)
