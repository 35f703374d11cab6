package auth

import (
	"context"
	"strings"
)

// BypassRole satisfies any permission check without grant lookup.
const BypassRole = "admin"

// Principal is the authenticated caller of an evaluation request, identified
// by the immutable id the identity provider assigned to it.
type Principal struct {
	ProviderID string
	Roles      []string
}

// IsZero reports whether the principal is absent.
func (p Principal) IsZero() bool {
	return strings.TrimSpace(p.ProviderID) == ""
}

// HasRole checks whether the principal carries the given (normalized) role.
func (p Principal) HasRole(role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal holds the global bypass role.
func (p Principal) IsAdmin() bool {
	return p.HasRole(BypassRole)
}

type ctxKey string

const principalKey ctxKey = "auth_principal"

// ContextWithPrincipal stores the authenticated principal in the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	p.ProviderID = strings.TrimSpace(p.ProviderID)
	p.Roles = dedupeRoles(p.Roles)
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p.IsZero() {
		return Principal{}, false
	}
	return p, true
}

// UserIDFromContext extracts the provider user id from the context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return "", false
	}
	return p.ProviderID, true
}

// HasRole checks whether the context principal carries the specified role.
func HasRole(ctx context.Context, role string) bool {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return false
	}
	return p.HasRole(role)
}
