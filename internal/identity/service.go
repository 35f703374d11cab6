package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"warden.org/internal/ids"
	"warden.org/internal/obs"
	"warden.org/internal/provider"
)

const (
	defaultMembershipTTL       = 30 * time.Second
	defaultMembershipCacheSize = 10000
)

// Hook runs after a mirror record is created, inside the same transaction.
// If the hook fails the creation rolls back, so a record is never visible
// without its hook applied.
type Hook func(ctx context.Context, id string) error

// Service maintains the identity mirror and resolves group memberships.
type Service struct {
	store    Store
	tx       TxRunner
	provider provider.Client

	memberships *expirable.LRU[string, []string]

	onUserCreated  Hook
	onGroupCreated Hook
	now            func() time.Time
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithUserCreatedHook runs fn inside the transaction that creates a user
// mirror record. Typically used to apply a default grant.
func WithUserCreatedHook(fn Hook) Option {
	return func(s *Service) { s.onUserCreated = fn }
}

// WithGroupCreatedHook runs fn inside the transaction that creates a group
// mirror record.
func WithGroupCreatedHook(fn Hook) Option {
	return func(s *Service) { s.onGroupCreated = fn }
}

// WithMembershipTTL bounds how long resolved group memberships are reused
// before the provider is asked again.
func WithMembershipTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.memberships = expirable.NewLRU[string, []string](defaultMembershipCacheSize, nil, ttl)
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service over the mirror store and provider client.
func NewService(store Store, tx TxRunner, client provider.Client, opts ...Option) *Service {
	s := &Service{
		store:       store,
		tx:          tx,
		provider:    client,
		memberships: expirable.NewLRU[string, []string](defaultMembershipCacheSize, nil, defaultMembershipTTL),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindOrCreateUser returns the mirror record for the provider user id,
// creating it on first sight. The created flag reports whether this call
// performed the creation.
func (s *Service) FindOrCreateUser(ctx context.Context, providerID string) (User, bool, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return User{}, false, fmt.Errorf("%w: provider id is required", ErrInvalidInput)
	}

	user, err := s.store.FindUserByProviderID(ctx, providerID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, false, err
	}

	created := false
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		u, err := s.store.CreateUser(ctx, User{
			ID:         ids.New(),
			ProviderID: providerID,
			CreatedAt:  s.now().UTC(),
		})
		if errors.Is(err, ErrConflict) {
			// Lost a race with a concurrent first sight of the same user.
			user, err = s.store.FindUserByProviderID(ctx, providerID)
			return err
		}
		if err != nil {
			return err
		}
		user = u
		created = true
		if s.onUserCreated != nil {
			return s.onUserCreated(ctx, u.ID)
		}
		return nil
	})
	if err != nil {
		return User{}, false, err
	}
	return user, created, nil
}

// FindOrCreateGroup returns the mirror record for the provider group id,
// creating it on first sight. A known group's display name is refreshed
// when the provider reports a different one.
func (s *Service) FindOrCreateGroup(ctx context.Context, providerID, name string) (Group, bool, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return Group{}, false, fmt.Errorf("%w: provider id is required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)

	group, err := s.store.FindGroupByProviderID(ctx, providerID)
	if err == nil {
		if name != "" && name != group.Name {
			if err := s.store.UpdateGroupName(ctx, group.ID, name); err != nil {
				return Group{}, false, err
			}
			group.Name = name
		}
		return group, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Group{}, false, err
	}

	created := false
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		g, err := s.store.CreateGroup(ctx, Group{
			ID:         ids.New(),
			ProviderID: providerID,
			Name:       name,
			CreatedAt:  s.now().UTC(),
		})
		if errors.Is(err, ErrConflict) {
			group, err = s.store.FindGroupByProviderID(ctx, providerID)
			return err
		}
		if err != nil {
			return err
		}
		group = g
		created = true
		if s.onGroupCreated != nil {
			return s.onGroupCreated(ctx, g.ID)
		}
		return nil
	})
	if err != nil {
		return Group{}, false, err
	}
	return group, created, nil
}

// UserIDByProviderID maps a provider user id to the local mirror id,
// read-only: principals that were never synced report found=false instead
// of being created. Creation stays with FindOrCreateUser so the evaluation
// path never writes to the mirror.
func (s *Service) UserIDByProviderID(ctx context.Context, providerID string) (string, bool, error) {
	user, err := s.FindUserByProviderID(ctx, providerID)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return user.ID, true, nil
}

// GroupIDsForUser resolves the user's group memberships against the
// provider, mirroring any group seen for the first time, and returns local
// group ids. Results are cached briefly; a provider failure propagates so
// callers can fail closed.
func (s *Service) GroupIDsForUser(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if cached, ok := s.memberships.Get(userID); ok {
		return cached, nil
	}

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	list, err := s.provider.GroupMemberships(ctx, user.ProviderID)
	if err != nil {
		return nil, err
	}

	groupIDs := make([]string, 0, len(list))
	for _, m := range list {
		group, _, err := s.FindOrCreateGroup(ctx, m.ProviderID, m.Name)
		if err != nil {
			return nil, err
		}
		groupIDs = append(groupIDs, group.ID)
	}
	s.memberships.Add(userID, groupIDs)
	return groupIDs, nil
}

// InvalidateMemberships drops the cached membership resolution for a user.
func (s *Service) InvalidateMemberships(userID string) {
	s.memberships.Remove(userID)
}

// PurgeMemberships drops every cached membership resolution. Used when a
// group disappears, since any user's cached list may reference it.
func (s *Service) PurgeMemberships() {
	s.memberships.Purge()
}

// Enrich attaches the provider's transient representation to the mirror
// record. Enrichment is best effort: when the provider cannot answer, the
// record is returned bare and a warning is logged.
func (s *Service) Enrich(ctx context.Context, u User) User {
	repr, err := s.provider.User(ctx, u.ProviderID)
	if err != nil {
		obs.Log(map[string]any{
			"ts":          s.now().UTC().Format(time.RFC3339Nano),
			"level":       "warn",
			"msg":         "user_enrichment_failed",
			"provider_id": u.ProviderID,
			"error":       err.Error(),
		})
		return u
	}
	u.Profile = &Profile{
		Username:   repr.Username,
		Email:      repr.Email,
		FirstName:  repr.FirstName,
		LastName:   repr.LastName,
		Enabled:    repr.Enabled,
		Attributes: repr.Attributes,
	}
	return u
}

// FindUserByProviderID returns the mirror record without creating it.
func (s *Service) FindUserByProviderID(ctx context.Context, providerID string) (User, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return User{}, fmt.Errorf("%w: provider id is required", ErrInvalidInput)
	}
	return s.store.FindUserByProviderID(ctx, providerID)
}

// FindGroupByProviderID returns the mirror record without creating it.
func (s *Service) FindGroupByProviderID(ctx context.Context, providerID string) (Group, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return Group{}, fmt.Errorf("%w: provider id is required", ErrInvalidInput)
	}
	return s.store.FindGroupByProviderID(ctx, providerID)
}

// DeleteUser removes the mirror record. Grant cleanup is the caller's
// responsibility and should share the transaction.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.memberships.Remove(id)
	return nil
}

// DeleteGroup removes the mirror record and purges cached memberships.
func (s *Service) DeleteGroup(ctx context.Context, id string) error {
	if err := s.store.DeleteGroup(ctx, id); err != nil {
		return err
	}
	s.memberships.Purge()
	return nil
}
