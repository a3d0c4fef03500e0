// Package hub implements the party hub: the WebSocket
// connect/disconnect/frame surface, the per-party single-owner actor that
// serializes all live-state mutation, and the HTTP upgrade endpoint.
package hub

import "context"

// AuthResolver resolves a bearer token to a user id. The credential scheme
// itself sits outside the core — this is the one-method seam a deployment
// wires to whatever session/identity provider it runs, mirroring how the
// Entity Store is consumed as an external collaborator behind a narrow
// interface.
type AuthResolver interface {
	ResolveUser(ctx context.Context, bearerToken string) (userID string, err error)
}

// StaticAuthResolver treats the bearer token itself as the user id. It
// exists so the party-hub process has a concrete, deployable AuthResolver
// without the core reaching into any particular identity scheme — a real
// deployment swaps this for a resolver backed by its own session/identity
// provider.
type StaticAuthResolver struct{}

// ResolveUser implements AuthResolver by returning the token unchanged.
func (StaticAuthResolver) ResolveUser(_ context.Context, bearerToken string) (string, error) {
	return bearerToken, nil
}
