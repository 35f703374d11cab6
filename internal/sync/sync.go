// Package sync applies identity provider lifecycle events to the local
// mirror. Events for the same provider record are applied strictly in
// arrival order; events for different records may interleave freely.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"warden.org/internal/identity"
	"warden.org/internal/obs"
	"warden.org/internal/permission"
)

// EventType enumerates the provider lifecycle events this service reacts to.
type EventType string

const (
	UserCreated           EventType = "USER_CREATED"
	UserMembershipChanged EventType = "USER_GROUP_MEMBERSHIP_CHANGED"
	GroupCreated          EventType = "GROUP_CREATED"
	UserDeleted           EventType = "USER_DELETED"
	GroupDeleted          EventType = "GROUP_DELETED"
)

// ParseEventType validates and normalizes an event type string.
func ParseEventType(raw string) (EventType, bool) {
	switch EventType(strings.ToUpper(strings.TrimSpace(raw))) {
	case UserCreated:
		return UserCreated, true
	case UserMembershipChanged:
		return UserMembershipChanged, true
	case GroupCreated:
		return GroupCreated, true
	case UserDeleted:
		return UserDeleted, true
	case GroupDeleted:
		return GroupDeleted, true
	}
	return "", false
}

// ErrInvalidEvent indicates the event failed validation.
var ErrInvalidEvent = errors.New("invalid event")

// Event is one provider notification. ID identifies the delivery for
// duplicate suppression; ExternalID is the provider id of the affected
// user or group.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	ExternalID string    `json:"external_id"`
	GroupName  string    `json:"group_name,omitempty"`
}

// GrantCleaner removes every grant a deleted grantee holds.
type GrantCleaner interface {
	RemoveGranteePermissions(ctx context.Context, kind permission.GranteeKind, granteeID string) (int64, error)
}

const dedupeCacheSize = 4096

// Listener applies provider events. Safe for concurrent use.
type Listener struct {
	identity *identity.Service
	grants   GrantCleaner
	tx       identity.TxRunner

	locks *keyLock
	seen  *expirable.LRU[string, struct{}]
}

// NewListener constructs a Listener. seenTTL bounds how long delivery ids
// are remembered for duplicate suppression; zero disables expiry pressure
// beyond cache capacity.
func NewListener(idsvc *identity.Service, grants GrantCleaner, tx identity.TxRunner) *Listener {
	return &Listener{
		identity: idsvc,
		grants:   grants,
		tx:       tx,
		locks:    newKeyLock(),
		seen:     expirable.NewLRU[string, struct{}](dedupeCacheSize, nil, 0),
	}
}

// Handle applies one event. Redelivery of an already-processed event id is
// acknowledged without effect, and every handler tolerates the state its
// event would produce already being present.
func (l *Listener) Handle(ctx context.Context, e Event) error {
	if _, ok := ParseEventType(string(e.Type)); !ok {
		obs.ObserveSyncEvent(string(e.Type), "invalid")
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	e.ExternalID = strings.TrimSpace(e.ExternalID)
	if e.ExternalID == "" {
		obs.ObserveSyncEvent(string(e.Type), "invalid")
		return fmt.Errorf("%w: external id is required", ErrInvalidEvent)
	}

	if id := strings.TrimSpace(e.ID); id != "" {
		if _, dup := l.seen.Get(id); dup {
			obs.ObserveSyncEvent(string(e.Type), "duplicate")
			return nil
		}
	}

	l.locks.lock(e.ExternalID)
	defer l.locks.unlock(e.ExternalID)

	err := l.apply(ctx, e)
	if err != nil {
		obs.ObserveSyncEvent(string(e.Type), "error")
		return err
	}
	if id := strings.TrimSpace(e.ID); id != "" {
		l.seen.Add(id, struct{}{})
	}
	obs.ObserveSyncEvent(string(e.Type), "ok")
	return nil
}

func (l *Listener) apply(ctx context.Context, e Event) error {
	switch e.Type {
	case UserCreated:
		_, _, err := l.identity.FindOrCreateUser(ctx, e.ExternalID)
		return err

	case GroupCreated:
		_, _, err := l.identity.FindOrCreateGroup(ctx, e.ExternalID, e.GroupName)
		return err

	case UserMembershipChanged:
		user, _, err := l.identity.FindOrCreateUser(ctx, e.ExternalID)
		if err != nil {
			return err
		}
		l.identity.InvalidateMemberships(user.ID)
		return nil

	case UserDeleted:
		user, err := l.identity.FindUserByProviderID(ctx, e.ExternalID)
		if errors.Is(err, identity.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return l.tx.WithTx(ctx, func(ctx context.Context) error {
			if err := l.identity.DeleteUser(ctx, user.ID); err != nil {
				return err
			}
			_, err := l.grants.RemoveGranteePermissions(ctx, permission.GranteeUser, user.ID)
			return err
		})

	case GroupDeleted:
		group, err := l.identity.FindGroupByProviderID(ctx, e.ExternalID)
		if errors.Is(err, identity.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return l.tx.WithTx(ctx, func(ctx context.Context) error {
			if err := l.identity.DeleteGroup(ctx, group.ID); err != nil {
				return err
			}
			_, err := l.grants.RemoveGranteePermissions(ctx, permission.GranteeGroup, group.ID)
			return err
		})
	}
	return fmt.Errorf("%w: unhandled type %q", ErrInvalidEvent, e.Type)
}
