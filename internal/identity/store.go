package identity

import "context"

// Store persists mirror records for users and groups.
type Store interface {
	CreateUser(ctx context.Context, u User) (User, error)
	FindUserByID(ctx context.Context, id string) (User, error)
	FindUserByProviderID(ctx context.Context, providerID string) (User, error)
	DeleteUser(ctx context.Context, id string) error

	CreateGroup(ctx context.Context, g Group) (Group, error)
	FindGroupByProviderID(ctx context.Context, providerID string) (Group, error)
	UpdateGroupName(ctx context.Context, id, name string) error
	DeleteGroup(ctx context.Context, id string) error
}

// TxRunner executes fn inside a database transaction. Store calls made with
// the ctx passed to fn join that transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
