// Package identity keeps a minimal local mirror of the users and groups the
// external identity provider owns. The mirror stores only what grants need
// to reference: a surrogate id and the provider id. Names, emails and other
// profile details stay with the provider and are fetched transiently.
package identity

import (
	"errors"
	"time"
)

var (
	// ErrInvalidInput indicates the request failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates the mirror record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
)

// User mirrors a provider user. Profile is transient: populated on demand
// from the provider and never written to the database.
type User struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	CreatedAt  time.Time `json:"created_at"`

	Profile *Profile `json:"profile,omitempty"`
}

// Group mirrors a provider group. Name is refreshed from provider
// membership data whenever the group is seen but is informational only;
// authorization keys on ids.
type Group struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Profile carries provider-owned user details for display purposes.
type Profile struct {
	Username   string            `json:"username,omitempty"`
	Email      string            `json:"email,omitempty"`
	FirstName  string            `json:"first_name,omitempty"`
	LastName   string            `json:"last_name,omitempty"`
	Enabled    bool              `json:"enabled"`
	Attributes map[string]string `json:"attributes,omitempty"`
}
