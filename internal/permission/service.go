package permission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"warden.org/internal/audit"
	"warden.org/internal/ids"
)

// Service owns collection and grant administration. Evaluation lives in
// Evaluator; the two share the collection cache so an admin-created
// collection is immediately visible to checks.
type Service struct {
	collections CollectionStore
	grants      GrantStore
	cache       *collectionCache
	now         func() time.Time
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service over the given stores.
func NewService(collections CollectionStore, grants GrantStore, opts ...Option) *Service {
	s := &Service{
		collections: collections,
		grants:      grants,
		cache:       newCollectionCache(collections),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCollection registers a new named permission set. Built-in names are
// reserved and collections cannot be redefined once created.
func (s *Service) CreateCollection(ctx context.Context, name string, permissions []string) (Collection, error) {
	normalized, err := NormalizeCollectionName(name)
	if err != nil {
		return Collection{}, err
	}
	types, err := NormalizePermissions(permissions)
	if err != nil {
		return Collection{}, err
	}

	col := Collection{
		ID:          ids.New(),
		Name:        normalized,
		Permissions: types,
		CreatedAt:   s.now().UTC(),
	}
	created, err := s.collections.CreateCollection(ctx, col)
	if err != nil {
		return Collection{}, err
	}
	s.cache.Put(created)

	_ = audit.LogEvent(ctx, "collection_created", map[string]any{
		"collection":  created.Name,
		"permissions": created.Permissions,
	})
	return created, nil
}

// GetCollection returns the named collection.
func (s *Service) GetCollection(ctx context.Context, name string) (Collection, error) {
	normalized, err := NormalizeCollectionName(name)
	if err != nil {
		return Collection{}, err
	}
	return s.cache.Find(ctx, normalized)
}

// ListCollections returns every known collection.
func (s *Service) ListCollections(ctx context.Context) ([]Collection, error) {
	return s.collections.ListCollections(ctx)
}

// SetPermission writes the single grant for (grantee, target), replacing any
// previous collection reference. The collection must already exist.
func (s *Service) SetPermission(ctx context.Context, kind GranteeKind, granteeID string, target Target, collection string) (Grant, error) {
	granteeID = strings.TrimSpace(granteeID)
	if granteeID == "" {
		return Grant{}, fmt.Errorf("%w: grantee id is required", ErrInvalidInput)
	}
	if _, ok := ParseGranteeKind(string(kind)); !ok {
		return Grant{}, fmt.Errorf("%w: unknown grantee kind %q", ErrInvalidInput, kind)
	}
	if target.IsZero() {
		return Grant{}, fmt.Errorf("%w: target entity type and id are required", ErrInvalidInput)
	}
	normalized, err := NormalizeCollectionName(collection)
	if err != nil {
		return Grant{}, err
	}
	if _, err := s.cache.Find(ctx, normalized); err != nil {
		return Grant{}, fmt.Errorf("collection %q: %w", normalized, err)
	}

	now := s.now().UTC()
	grant := Grant{
		ID:          ids.New(),
		GranteeKind: kind,
		GranteeID:   granteeID,
		Target:      target,
		Collection:  normalized,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	written, err := s.grants.UpsertGrant(ctx, grant)
	if err != nil {
		return Grant{}, err
	}

	_ = audit.LogEvent(ctx, "permission_set", map[string]any{
		"grantee_kind": string(kind),
		"grantee_id":   granteeID,
		"entity_type":  target.EntityType,
		"entity_id":    target.EntityID,
		"collection":   normalized,
	})
	return written, nil
}

// GetPermission returns the grant held by the grantee on the target.
func (s *Service) GetPermission(ctx context.Context, kind GranteeKind, granteeID string, target Target) (Grant, error) {
	granteeID = strings.TrimSpace(granteeID)
	if granteeID == "" {
		return Grant{}, fmt.Errorf("%w: grantee id is required", ErrInvalidInput)
	}
	if target.IsZero() {
		return Grant{}, fmt.Errorf("%w: target entity type and id are required", ErrInvalidInput)
	}
	return s.grants.FindGrant(ctx, kind, granteeID, target)
}

// ListTargetGrants returns every grant attached to the target.
func (s *Service) ListTargetGrants(ctx context.Context, target Target) ([]Grant, error) {
	if target.IsZero() {
		return nil, fmt.Errorf("%w: target entity type and id are required", ErrInvalidInput)
	}
	return s.grants.ListGrantsForTarget(ctx, target)
}

// DeletePermission removes the grant for (grantee, target).
func (s *Service) DeletePermission(ctx context.Context, kind GranteeKind, granteeID string, target Target) error {
	granteeID = strings.TrimSpace(granteeID)
	if granteeID == "" {
		return fmt.Errorf("%w: grantee id is required", ErrInvalidInput)
	}
	if target.IsZero() {
		return fmt.Errorf("%w: target entity type and id are required", ErrInvalidInput)
	}
	if err := s.grants.DeleteGrant(ctx, kind, granteeID, target); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "permission_deleted", map[string]any{
		"grantee_kind": string(kind),
		"grantee_id":   granteeID,
		"entity_type":  target.EntityType,
		"entity_id":    target.EntityID,
	})
	return nil
}

// RemoveGranteePermissions cascades grant removal for a deleted user or group.
func (s *Service) RemoveGranteePermissions(ctx context.Context, kind GranteeKind, granteeID string) (int64, error) {
	granteeID = strings.TrimSpace(granteeID)
	if granteeID == "" {
		return 0, fmt.Errorf("%w: grantee id is required", ErrInvalidInput)
	}
	removed, err := s.grants.DeleteAllForGrantee(ctx, kind, granteeID)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		_ = audit.LogEvent(ctx, "grantee_permissions_removed", map[string]any{
			"grantee_kind": string(kind),
			"grantee_id":   granteeID,
			"removed":      removed,
		})
	}
	return removed, nil
}

// RemoveTargetPermissions removes every grant on an entity, typically after
// the entity itself is deleted in its owning store.
func (s *Service) RemoveTargetPermissions(ctx context.Context, target Target) (int64, error) {
	if target.IsZero() {
		return 0, fmt.Errorf("%w: target entity type and id are required", ErrInvalidInput)
	}
	removed, err := s.grants.DeleteAllForTarget(ctx, target)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		_ = audit.LogEvent(ctx, "target_permissions_removed", map[string]any{
			"entity_type": target.EntityType,
			"entity_id":   target.EntityID,
			"removed":     removed,
		})
	}
	return removed, nil
}
