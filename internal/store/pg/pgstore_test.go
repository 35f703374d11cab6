package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"warden.org/internal/identity"
	"warden.org/internal/permission"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("insert into users").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := store.CreateUser(context.Background(), identity.User{ID: "u1", ProviderID: "kc-1", CreatedAt: time.Now()})
	if !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	expectationsMet(t, mock)
}

func TestFindUserByProviderIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, provider_id, created_at").
		WithArgs("kc-missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindUserByProviderID(context.Background(), "kc-missing")
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func TestFindCollectionDecodesPermissions(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "name", "permissions", "created_at"}).
		AddRow("c1", "READWRITE", []byte(`["READ","UPDATE"]`), now)
	mock.ExpectQuery("select id, name, permissions, created_at").
		WithArgs("READWRITE").
		WillReturnRows(rows)

	col, err := store.FindCollection(context.Background(), "READWRITE")
	if err != nil {
		t.Fatalf("FindCollection: %v", err)
	}
	if len(col.Permissions) != 2 || col.Permissions[0] != permission.TypeRead || col.Permissions[1] != permission.TypeUpdate {
		t.Fatalf("permissions = %v", col.Permissions)
	}
	expectationsMet(t, mock)
}

func TestFindCollectionNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, name, permissions, created_at").
		WithArgs("GHOST").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindCollection(context.Background(), "GHOST")
	if !errors.Is(err, permission.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func TestUpsertGrantReturnsWrittenRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "grantee_kind", "grantee_id", "entity_type", "entity_id", "collection_name", "created_at", "updated_at",
	}).AddRow("g1", "user", "u1", "APP", "app-1", "READWRITE", now, now)
	mock.ExpectQuery("insert into instance_permissions").
		WithArgs("g1", "user", "u1", "APP", "app-1", "READWRITE", now).
		WillReturnRows(rows)

	grant, err := store.UpsertGrant(context.Background(), permission.Grant{
		ID:          "g1",
		GranteeKind: permission.GranteeUser,
		GranteeID:   "u1",
		Target:      permission.Target{EntityType: "APP", EntityID: "app-1"},
		Collection:  "READWRITE",
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("UpsertGrant: %v", err)
	}
	if grant.GranteeKind != permission.GranteeUser || grant.Collection != "READWRITE" {
		t.Fatalf("grant = %+v", grant)
	}
	expectationsMet(t, mock)
}

func TestUpsertGrantMapsMissingCollection(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("insert into instance_permissions").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := store.UpsertGrant(context.Background(), permission.Grant{
		ID:          "g1",
		GranteeKind: permission.GranteeUser,
		GranteeID:   "u1",
		Target:      permission.Target{EntityType: "APP", EntityID: "app-1"},
		Collection:  "GHOST",
	})
	if !errors.Is(err, permission.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func TestFindGroupGrantsBuildsInClause(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "grantee_kind", "grantee_id", "entity_type", "entity_id", "collection_name", "created_at", "updated_at",
	}).
		AddRow("g1", "group", "grp-1", "APP", "app-1", "READ", now, now).
		AddRow("g2", "group", "grp-2", "APP", "app-1", "ADMIN", now, now)
	mock.ExpectQuery("grantee_id in").
		WithArgs("APP", "app-1", "grp-1", "grp-2").
		WillReturnRows(rows)

	grants, err := store.FindGroupGrants(context.Background(), []string{"grp-1", "grp-2"},
		permission.Target{EntityType: "APP", EntityID: "app-1"})
	if err != nil {
		t.Fatalf("FindGroupGrants: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("grants = %v", grants)
	}
	expectationsMet(t, mock)
}

func TestFindGroupGrantsEmptyInput(t *testing.T) {
	store, _ := newMockStore(t)

	grants, err := store.FindGroupGrants(context.Background(), nil,
		permission.Target{EntityType: "APP", EntityID: "app-1"})
	if err != nil {
		t.Fatalf("FindGroupGrants: %v", err)
	}
	if grants != nil {
		t.Fatalf("grants = %v, want none without a query", grants)
	}
}

func TestDeleteAllForGranteeReturnsCount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from instance_permissions").
		WithArgs("user", "u1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := store.DeleteAllForGrantee(context.Background(), permission.GranteeUser, "u1")
	if err != nil {
		t.Fatalf("DeleteAllForGrantee: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
	expectationsMet(t, mock)
}

func TestDeleteGrantNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from instance_permissions").
		WithArgs("user", "u1", "APP", "app-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteGrant(context.Background(), permission.GranteeUser, "u1",
		permission.Target{EntityType: "APP", EntityID: "app-1"})
	if !errors.Is(err, permission.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func TestWithTxCommitsAndJoins(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("insert into users").
		WithArgs("u1", "kc-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "provider_id", "created_at"}).
			AddRow("u1", "kc-1", now))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(ctx context.Context) error {
		_, err := store.CreateUser(ctx, identity.User{ID: "u1", ProviderID: "kc-1", CreatedAt: now})
		return err
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	expectationsMet(t, mock)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	wantErr := errors.New("hook failed")
	err := store.WithTx(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want hook error", err)
	}
	expectationsMet(t, mock)
}

func TestWithTxNestedJoinsOuter(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(ctx context.Context) error {
		// The nested call must not open a second transaction.
		return store.WithTx(ctx, func(ctx context.Context) error {
			return nil
		})
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	expectationsMet(t, mock)
}
