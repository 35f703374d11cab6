package permission

import (
	"context"
	"errors"
	"time"

	"warden.org/internal/auth"
	"warden.org/internal/obs"
)

// Directory resolves the caller's local identity and group memberships.
// Implemented by the identity mirror.
type Directory interface {
	// UserIDByProviderID maps a provider user id to the local mirror id.
	// The lookup is read-only: a principal that has never been synced
	// reports found=false and is never created here.
	UserIDByProviderID(ctx context.Context, providerID string) (id string, found bool, err error)
	// GroupIDsForUser returns local ids of the groups the user belongs to,
	// per the identity provider's current view.
	GroupIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// Resolution paths reported on the decision metric.
const (
	pathAdmin   = "admin"
	pathUser    = "user"
	pathGroup   = "group"
	pathNone    = "none"
	pathInvalid = "invalid"
)

// Evaluator answers "may this caller apply this permission to this entity".
// It fails closed: any malformed input, lookup failure or inconsistency in
// the stored data yields a deny, never an error surfaced to the caller.
type Evaluator struct {
	directory Directory
	grants    GrantStore
	cache     *collectionCache
}

// NewEvaluator constructs an Evaluator sharing the Service's collection cache.
func NewEvaluator(directory Directory, grants GrantStore, svc *Service) *Evaluator {
	return &Evaluator{
		directory: directory,
		grants:    grants,
		cache:     svc.cache,
	}
}

type decision struct {
	allowed bool
	path    string
}

// Evaluate reports whether the principal may apply the permission to the
// target. Errors never escape: a failed evaluation is a denied evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, p auth.Principal, target Target, perm Type) bool {
	start := time.Now()
	d, err := e.decide(ctx, p, target, perm)
	if err != nil {
		obs.Log(map[string]any{
			"ts":          time.Now().UTC().Format(time.RFC3339Nano),
			"level":       "error",
			"msg":         "evaluation_failed",
			"entity_type": target.EntityType,
			"entity_id":   target.EntityID,
			"error":       err.Error(),
		})
	}
	outcome := "deny"
	if d.allowed {
		outcome = "allow"
	}
	obs.ObserveDecision(outcome, d.path, time.Since(start))
	return d.allowed
}

func (e *Evaluator) decide(ctx context.Context, p auth.Principal, target Target, perm Type) (decision, error) {
	if p.IsZero() || target.IsZero() {
		return decision{path: pathInvalid}, nil
	}
	if _, ok := ParseType(string(perm)); !ok {
		return decision{path: pathInvalid}, nil
	}

	if p.IsAdmin() {
		return decision{allowed: true, path: pathAdmin}, nil
	}

	userID, found, err := e.directory.UserIDByProviderID(ctx, p.ProviderID)
	if err != nil {
		return decision{path: pathInvalid}, err
	}
	if !found {
		// Authenticated but never synced into the mirror: no grants can
		// exist, so deny without touching the stores.
		return decision{path: pathNone}, nil
	}

	// A direct user grant is authoritative. It wins over group grants in
	// both directions: it can allow what the groups would deny and deny
	// what the groups would allow.
	grant, err := e.grants.FindGrant(ctx, GranteeUser, userID, target)
	switch {
	case err == nil:
		allowed, err := e.collectionContains(ctx, grant.Collection, perm)
		if err != nil {
			return decision{path: pathUser}, err
		}
		return decision{allowed: allowed, path: pathUser}, nil
	case errors.Is(err, ErrNotFound):
		// fall through to group grants
	default:
		return decision{path: pathUser}, err
	}

	groupIDs, err := e.directory.GroupIDsForUser(ctx, userID)
	if err != nil {
		return decision{path: pathGroup}, err
	}
	if len(groupIDs) > 0 {
		grants, err := e.grants.FindGroupGrants(ctx, groupIDs, target)
		if err != nil {
			return decision{path: pathGroup}, err
		}
		for _, g := range grants {
			allowed, err := e.collectionContains(ctx, g.Collection, perm)
			if err != nil {
				return decision{path: pathGroup}, err
			}
			if allowed {
				return decision{allowed: true, path: pathGroup}, nil
			}
		}
		if len(grants) > 0 {
			return decision{path: pathGroup}, nil
		}
	}

	return decision{path: pathNone}, nil
}

// collectionContains resolves the named collection and checks membership.
// A grant referencing a collection that no longer resolves is treated as a
// data fault: the check denies and the fault is surfaced to the error log.
func (e *Evaluator) collectionContains(ctx context.Context, name string, perm Type) (bool, error) {
	col, err := e.cache.Find(ctx, name)
	if err != nil {
		return false, err
	}
	return col.Contains(perm), nil
}
