package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"warden.org/internal/auth"
	"warden.org/internal/identity"
	"warden.org/internal/permission"
	"warden.org/internal/provider"
	"warden.org/internal/sync"
)

// memBackend is an in-memory stand-in for the Postgres store: it backs the
// permission stores, the identity mirror and transactions.
type memBackend struct {
	collections map[string]permission.Collection
	grants      map[string]permission.Grant
	users       map[string]identity.User
	groups      map[string]identity.Group
}

func newMemBackend() *memBackend {
	b := &memBackend{
		collections: make(map[string]permission.Collection),
		grants:      make(map[string]permission.Grant),
		users:       make(map[string]identity.User),
		groups:      make(map[string]identity.Group),
	}
	for _, c := range permission.BuiltinCollections() {
		c.ID = "seed-" + c.Name
		c.CreatedAt = time.Now().UTC()
		b.collections[c.Name] = c
	}
	return b
}

func (b *memBackend) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (b *memBackend) CreateCollection(ctx context.Context, c permission.Collection) (permission.Collection, error) {
	if _, ok := b.collections[c.Name]; ok {
		return permission.Collection{}, permission.ErrConflict
	}
	b.collections[c.Name] = c
	return c, nil
}

func (b *memBackend) FindCollection(ctx context.Context, name string) (permission.Collection, error) {
	c, ok := b.collections[name]
	if !ok {
		return permission.Collection{}, permission.ErrNotFound
	}
	return c, nil
}

func (b *memBackend) ListCollections(ctx context.Context) ([]permission.Collection, error) {
	var out []permission.Collection
	for _, c := range b.collections {
		out = append(out, c)
	}
	return out, nil
}

func grantKey(kind permission.GranteeKind, granteeID string, target permission.Target) string {
	return fmt.Sprintf("%s|%s|%s|%s", kind, granteeID, target.EntityType, target.EntityID)
}

func (b *memBackend) UpsertGrant(ctx context.Context, g permission.Grant) (permission.Grant, error) {
	key := grantKey(g.GranteeKind, g.GranteeID, g.Target)
	if existing, ok := b.grants[key]; ok {
		existing.Collection = g.Collection
		existing.UpdatedAt = g.UpdatedAt
		b.grants[key] = existing
		return existing, nil
	}
	b.grants[key] = g
	return g, nil
}

func (b *memBackend) FindGrant(ctx context.Context, kind permission.GranteeKind, granteeID string, target permission.Target) (permission.Grant, error) {
	g, ok := b.grants[grantKey(kind, granteeID, target)]
	if !ok {
		return permission.Grant{}, permission.ErrNotFound
	}
	return g, nil
}

func (b *memBackend) FindGroupGrants(ctx context.Context, groupIDs []string, target permission.Target) ([]permission.Grant, error) {
	var out []permission.Grant
	for _, id := range groupIDs {
		if g, ok := b.grants[grantKey(permission.GranteeGroup, id, target)]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (b *memBackend) ListGrantsForTarget(ctx context.Context, target permission.Target) ([]permission.Grant, error) {
	var out []permission.Grant
	for _, g := range b.grants {
		if g.Target == target {
			out = append(out, g)
		}
	}
	return out, nil
}

func (b *memBackend) DeleteGrant(ctx context.Context, kind permission.GranteeKind, granteeID string, target permission.Target) error {
	key := grantKey(kind, granteeID, target)
	if _, ok := b.grants[key]; !ok {
		return permission.ErrNotFound
	}
	delete(b.grants, key)
	return nil
}

func (b *memBackend) DeleteAllForGrantee(ctx context.Context, kind permission.GranteeKind, granteeID string) (int64, error) {
	var removed int64
	for key, g := range b.grants {
		if g.GranteeKind == kind && g.GranteeID == granteeID {
			delete(b.grants, key)
			removed++
		}
	}
	return removed, nil
}

func (b *memBackend) DeleteAllForTarget(ctx context.Context, target permission.Target) (int64, error) {
	var removed int64
	for key, g := range b.grants {
		if g.Target == target {
			delete(b.grants, key)
			removed++
		}
	}
	return removed, nil
}

func (b *memBackend) CreateUser(ctx context.Context, u identity.User) (identity.User, error) {
	if _, ok := b.users[u.ProviderID]; ok {
		return identity.User{}, identity.ErrConflict
	}
	b.users[u.ProviderID] = u
	return u, nil
}

func (b *memBackend) FindUserByID(ctx context.Context, id string) (identity.User, error) {
	for _, u := range b.users {
		if u.ID == id {
			return u, nil
		}
	}
	return identity.User{}, identity.ErrNotFound
}

func (b *memBackend) FindUserByProviderID(ctx context.Context, providerID string) (identity.User, error) {
	u, ok := b.users[providerID]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (b *memBackend) DeleteUser(ctx context.Context, id string) error {
	for pid, u := range b.users {
		if u.ID == id {
			delete(b.users, pid)
			return nil
		}
	}
	return identity.ErrNotFound
}

func (b *memBackend) CreateGroup(ctx context.Context, g identity.Group) (identity.Group, error) {
	if _, ok := b.groups[g.ProviderID]; ok {
		return identity.Group{}, identity.ErrConflict
	}
	b.groups[g.ProviderID] = g
	return g, nil
}

func (b *memBackend) FindGroupByProviderID(ctx context.Context, providerID string) (identity.Group, error) {
	g, ok := b.groups[providerID]
	if !ok {
		return identity.Group{}, identity.ErrNotFound
	}
	return g, nil
}

func (b *memBackend) UpdateGroupName(ctx context.Context, id, name string) error {
	for pid, g := range b.groups {
		if g.ID == id {
			g.Name = name
			b.groups[pid] = g
			return nil
		}
	}
	return identity.ErrNotFound
}

func (b *memBackend) DeleteGroup(ctx context.Context, id string) error {
	for pid, g := range b.groups {
		if g.ID == id {
			delete(b.groups, pid)
			return nil
		}
	}
	return identity.ErrNotFound
}

type stubProviderClient struct {
	memberships []provider.Membership
	user        provider.UserRepresentation
	err         error
}

func (p *stubProviderClient) GroupMemberships(ctx context.Context, providerUserID string) ([]provider.Membership, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.memberships, nil
}

func (p *stubProviderClient) User(ctx context.Context, providerUserID string) (provider.UserRepresentation, error) {
	if p.err != nil {
		return provider.UserRepresentation{}, p.err
	}
	return p.user, nil
}

type testEnv struct {
	api      *API
	handler  http.Handler
	backend  *memBackend
	perms    *permission.Service
	provider *stubProviderClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("WARDEN_AUTH_SECRET", "httpapi-test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	backend := newMemBackend()
	providerClient := &stubProviderClient{}
	permSvc := permission.NewService(backend, backend)
	identitySvc := identity.NewService(backend, backend, providerClient,
		identity.WithUserCreatedHook(func(ctx context.Context, userID string) error {
			_, err := permSvc.SetPermission(ctx, permission.GranteeUser, userID,
				permission.Target{EntityType: "USER", EntityID: userID},
				permission.CollectionAdmin)
			return err
		}),
	)
	evaluator := permission.NewEvaluator(identitySvc, backend, permSvc)
	listener := sync.NewListener(identitySvc, permSvc, backend)

	api := New(ReadyProbe{}, "test",
		WithPermissionService(permSvc),
		WithEvaluator(evaluator),
		WithIdentityService(identitySvc),
		WithSyncListener(listener),
	)
	return &testEnv{
		api:      api,
		handler:  RequestID(api.Handler()),
		backend:  backend,
		perms:    permSvc,
		provider: providerClient,
	}
}

func obtainToken(t *testing.T, providerID string, roles ...string) string {
	t.Helper()
	token, err := auth.GenerateToken(providerID, roles, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func doRequest(t *testing.T, env *testEnv, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}
