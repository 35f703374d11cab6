package permission

import "context"

// CollectionStore persists permission collections.
type CollectionStore interface {
	CreateCollection(ctx context.Context, c Collection) (Collection, error)
	FindCollection(ctx context.Context, name string) (Collection, error)
	ListCollections(ctx context.Context) ([]Collection, error)
}

// GrantStore persists instance permission grants.
type GrantStore interface {
	// UpsertGrant inserts the grant or, when one already exists for the
	// same (grantee, target) pair, replaces its collection reference.
	UpsertGrant(ctx context.Context, g Grant) (Grant, error)
	FindGrant(ctx context.Context, kind GranteeKind, granteeID string, target Target) (Grant, error)
	// FindGroupGrants returns the grants any of the given groups hold on the target.
	FindGroupGrants(ctx context.Context, groupIDs []string, target Target) ([]Grant, error)
	ListGrantsForTarget(ctx context.Context, target Target) ([]Grant, error)
	DeleteGrant(ctx context.Context, kind GranteeKind, granteeID string, target Target) error
	// DeleteAllForGrantee removes every grant held by the grantee and
	// returns the number removed. Used when the provider deletes the
	// backing user or group.
	DeleteAllForGrantee(ctx context.Context, kind GranteeKind, granteeID string) (int64, error)
	DeleteAllForTarget(ctx context.Context, target Target) (int64, error)
}
