// Package carrier keeps a store's carrier service resource in sync with the
// rating endpoint configured by the merchant.
package carrier

import (
	"context"
)

// Client defines the remote operations on a store's carrier service collection.
// Implementations must classify failures into *RemoteError values so callers
// can rely on errors.Is with the sentinel errors of this package.
type Client interface {
	// List returns a snapshot of the carrier services registered for the store.
	List(ctx context.Context, creds Credentials) ([]Resource, error)

	// Create registers a new carrier service and returns its id.
	Create(ctx context.Context, creds Credentials, name, callbackURL string, active bool) (string, error)

	// Update changes the callback URL and active flag of an existing carrier service.
	// An empty callbackURL leaves the callback untouched.
	Update(ctx context.Context, creds Credentials, id, callbackURL string, active bool) error

	// Delete removes a carrier service owned by this app.
	Delete(ctx context.Context, creds Credentials, id string) error
}
