package permission

import (
	"fmt"
	"strings"
)

// Built-in collection names. They are seeded at install time and must never
// be redefined; custom collections may be added alongside them.
const (
	CollectionAdmin     = "ADMIN"
	CollectionRead      = "READ"
	CollectionReadWrite = "READWRITE"
)

// BuiltinCollections returns the seed set of collections in declaration order.
func BuiltinCollections() []Collection {
	return []Collection{
		{Name: CollectionAdmin, Permissions: []Type{TypeCreate, TypeRead, TypeUpdate, TypeDelete}},
		{Name: CollectionRead, Permissions: []Type{TypeRead}},
		{Name: CollectionReadWrite, Permissions: []Type{TypeRead, TypeUpdate}},
	}
}

// NormalizeCollectionName validates a collection name: upper-case letters,
// digits and underscores, starting with a letter.
func NormalizeCollectionName(raw string) (string, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	if name == "" {
		return "", fmt.Errorf("%w: collection name is required", ErrInvalidInput)
	}
	if len(name) > 64 {
		return "", fmt.Errorf("%w: collection name exceeds 64 characters", ErrInvalidInput)
	}
	for i, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9', r == '_':
			if i == 0 {
				return "", fmt.Errorf("%w: collection name must start with a letter", ErrInvalidInput)
			}
		default:
			return "", fmt.Errorf("%w: collection name contains invalid character %q", ErrInvalidInput, r)
		}
	}
	return name, nil
}

// NormalizePermissions validates and dedupes a permission type list.
func NormalizePermissions(raw []string) ([]Type, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: at least one permission is required", ErrInvalidInput)
	}
	seen := make(map[Type]struct{}, len(raw))
	var out []Type
	for _, r := range raw {
		t, ok := ParseType(r)
		if !ok {
			return nil, fmt.Errorf("%w: unknown permission type %q", ErrInvalidInput, r)
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}
