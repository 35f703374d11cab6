package permission

import (
	"strings"
	"time"
)

// Type is a single instance-level permission.
type Type string

const (
	TypeCreate Type = "CREATE"
	TypeRead   Type = "READ"
	TypeUpdate Type = "UPDATE"
	TypeDelete Type = "DELETE"
)

// ParseType validates and normalizes a permission type string.
func ParseType(raw string) (Type, bool) {
	switch Type(strings.ToUpper(strings.TrimSpace(raw))) {
	case TypeCreate:
		return TypeCreate, true
	case TypeRead:
		return TypeRead, true
	case TypeUpdate:
		return TypeUpdate, true
	case TypeDelete:
		return TypeDelete, true
	}
	return "", false
}

// Collection is a named, immutable set of permission types. Grants reference
// collections by name; the set behind a name never changes after creation.
type Collection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Permissions []Type    `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

// Contains reports whether the collection includes the given permission type.
func (c Collection) Contains(t Type) bool {
	for _, p := range c.Permissions {
		if p == t {
			return true
		}
	}
	return false
}

// Target identifies a protected entity instance. EntityType names the kind of
// record and EntityID its identifier in whatever store owns it; no referential
// link to that store exists, so grants can outlive or precede the entity.
type Target struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// IsZero reports whether either half of the target identity is missing.
func (t Target) IsZero() bool {
	return strings.TrimSpace(t.EntityType) == "" || strings.TrimSpace(t.EntityID) == ""
}

// GranteeKind distinguishes user grants from group grants.
type GranteeKind string

const (
	GranteeUser  GranteeKind = "user"
	GranteeGroup GranteeKind = "group"
)

// ParseGranteeKind validates and normalizes a grantee kind string.
func ParseGranteeKind(raw string) (GranteeKind, bool) {
	switch GranteeKind(strings.ToLower(strings.TrimSpace(raw))) {
	case GranteeUser:
		return GranteeUser, true
	case GranteeGroup:
		return GranteeGroup, true
	}
	return "", false
}

// Grant binds one grantee to one target through a permission collection.
// At most one grant exists per (grantee, target) pair; writing again
// replaces the collection reference.
type Grant struct {
	ID          string      `json:"id"`
	GranteeKind GranteeKind `json:"grantee_kind"`
	GranteeID   string      `json:"grantee_id"`
	Target      Target      `json:"target"`
	Collection  string      `json:"collection"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
