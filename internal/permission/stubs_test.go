package permission

import (
	"context"
	"fmt"
)

type stubCollections struct {
	cols      map[string]Collection
	findCalls int
	createFn  func(ctx context.Context, c Collection) (Collection, error)
}

func newStubCollections(cols ...Collection) *stubCollections {
	s := &stubCollections{cols: make(map[string]Collection)}
	for _, c := range cols {
		s.cols[c.Name] = c
	}
	return s
}

func (s *stubCollections) CreateCollection(ctx context.Context, c Collection) (Collection, error) {
	if s.createFn != nil {
		return s.createFn(ctx, c)
	}
	if _, ok := s.cols[c.Name]; ok {
		return Collection{}, ErrConflict
	}
	s.cols[c.Name] = c
	return c, nil
}

func (s *stubCollections) FindCollection(ctx context.Context, name string) (Collection, error) {
	s.findCalls++
	c, ok := s.cols[name]
	if !ok {
		return Collection{}, ErrNotFound
	}
	return c, nil
}

func (s *stubCollections) ListCollections(ctx context.Context) ([]Collection, error) {
	var out []Collection
	for _, c := range s.cols {
		out = append(out, c)
	}
	return out, nil
}

func grantKey(kind GranteeKind, granteeID string, target Target) string {
	return fmt.Sprintf("%s|%s|%s|%s", kind, granteeID, target.EntityType, target.EntityID)
}

type stubGrants struct {
	grants  map[string]Grant
	findErr error
}

func newStubGrants(grants ...Grant) *stubGrants {
	s := &stubGrants{grants: make(map[string]Grant)}
	for _, g := range grants {
		s.grants[grantKey(g.GranteeKind, g.GranteeID, g.Target)] = g
	}
	return s
}

func (s *stubGrants) UpsertGrant(ctx context.Context, g Grant) (Grant, error) {
	key := grantKey(g.GranteeKind, g.GranteeID, g.Target)
	if existing, ok := s.grants[key]; ok {
		existing.Collection = g.Collection
		existing.UpdatedAt = g.UpdatedAt
		s.grants[key] = existing
		return existing, nil
	}
	s.grants[key] = g
	return g, nil
}

func (s *stubGrants) FindGrant(ctx context.Context, kind GranteeKind, granteeID string, target Target) (Grant, error) {
	if s.findErr != nil {
		return Grant{}, s.findErr
	}
	g, ok := s.grants[grantKey(kind, granteeID, target)]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

func (s *stubGrants) FindGroupGrants(ctx context.Context, groupIDs []string, target Target) ([]Grant, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []Grant
	for _, id := range groupIDs {
		if g, ok := s.grants[grantKey(GranteeGroup, id, target)]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *stubGrants) ListGrantsForTarget(ctx context.Context, target Target) ([]Grant, error) {
	var out []Grant
	for _, g := range s.grants {
		if g.Target == target {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *stubGrants) DeleteGrant(ctx context.Context, kind GranteeKind, granteeID string, target Target) error {
	key := grantKey(kind, granteeID, target)
	if _, ok := s.grants[key]; !ok {
		return ErrNotFound
	}
	delete(s.grants, key)
	return nil
}

func (s *stubGrants) DeleteAllForGrantee(ctx context.Context, kind GranteeKind, granteeID string) (int64, error) {
	var removed int64
	for key, g := range s.grants {
		if g.GranteeKind == kind && g.GranteeID == granteeID {
			delete(s.grants, key)
			removed++
		}
	}
	return removed, nil
}

func (s *stubGrants) DeleteAllForTarget(ctx context.Context, target Target) (int64, error) {
	var removed int64
	for key, g := range s.grants {
		if g.Target == target {
			delete(s.grants, key)
			removed++
		}
	}
	return removed, nil
}

type stubDirectory struct {
	userID    string
	userErr   error
	groupIDs  []string
	groupsErr error
}

func (s *stubDirectory) UserIDByProviderID(ctx context.Context, providerID string) (string, bool, error) {
	if s.userErr != nil {
		return "", false, s.userErr
	}
	return s.userID, s.userID != "", nil
}

func (s *stubDirectory) GroupIDsForUser(ctx context.Context, userID string) ([]string, error) {
	if s.groupsErr != nil {
		return nil, s.groupsErr
	}
	return s.groupIDs, nil
}
