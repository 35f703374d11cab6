// Package provider talks to the external identity provider. The provider is
// the source of truth for who exists and who belongs to which group; this
// service only asks, it never writes back.
package provider

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the provider does not know the record.
	ErrNotFound = errors.New("provider: not found")
	// ErrUnavailable indicates the provider could not be reached or
	// answered with a server error.
	ErrUnavailable = errors.New("provider: unavailable")
)

// Membership is one group a user belongs to, as reported by the provider.
type Membership struct {
	ProviderID string `json:"id"`
	Name       string `json:"name"`
}

// UserRepresentation carries provider-owned user details. It is transient
// data: fetched for display or enrichment, never persisted locally.
type UserRepresentation struct {
	ProviderID string            `json:"id"`
	Username   string            `json:"username"`
	Email      string            `json:"email"`
	FirstName  string            `json:"firstName"`
	LastName   string            `json:"lastName"`
	Enabled    bool              `json:"enabled"`
	Attributes map[string]string `json:"-"`
}

// Client is the read-side contract against the identity provider.
type Client interface {
	// GroupMemberships returns the groups the user currently belongs to.
	GroupMemberships(ctx context.Context, providerUserID string) ([]Membership, error)
	// User returns the provider's representation of the user.
	User(ctx context.Context, providerUserID string) (UserRepresentation, error)
}
