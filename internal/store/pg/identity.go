package pg

import (
	"context"
	"database/sql"
	"errors"

	"warden.org/internal/identity"
)

func (s *Store) CreateUser(ctx context.Context, u identity.User) (identity.User, error) {
	if s.db == nil {
		return identity.User{}, errors.New("database connection unavailable")
	}
	var created identity.User
	row := s.q(ctx).QueryRowContext(ctx, `
		insert into users (id, provider_id, created_at)
		values ($1, $2, $3)
		returning id, provider_id, created_at
	`, u.ID, u.ProviderID, u.CreatedAt)
	if err := row.Scan(&created.ID, &created.ProviderID, &created.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return identity.User{}, identity.ErrConflict
		}
		return identity.User{}, err
	}
	return created, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (identity.User, error) {
	if s.db == nil {
		return identity.User{}, errors.New("database connection unavailable")
	}
	var u identity.User
	err := s.q(ctx).QueryRowContext(ctx, `
		select id, provider_id, created_at
		from users
		where id = $1
	`, id).Scan(&u.ID, &u.ProviderID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.User{}, err
	}
	return u, nil
}

func (s *Store) FindUserByProviderID(ctx context.Context, providerID string) (identity.User, error) {
	if s.db == nil {
		return identity.User{}, errors.New("database connection unavailable")
	}
	var u identity.User
	err := s.q(ctx).QueryRowContext(ctx, `
		select id, provider_id, created_at
		from users
		where provider_id = $1
	`, providerID).Scan(&u.ID, &u.ProviderID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.User{}, err
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.q(ctx).ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *Store) CreateGroup(ctx context.Context, g identity.Group) (identity.Group, error) {
	if s.db == nil {
		return identity.Group{}, errors.New("database connection unavailable")
	}
	var (
		created identity.Group
		name    sql.NullString
	)
	row := s.q(ctx).QueryRowContext(ctx, `
		insert into groups (id, provider_id, name, created_at)
		values ($1, $2, $3, $4)
		returning id, provider_id, name, created_at
	`, g.ID, g.ProviderID, nullIfEmpty(g.Name), g.CreatedAt)
	if err := row.Scan(&created.ID, &created.ProviderID, &name, &created.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return identity.Group{}, identity.ErrConflict
		}
		return identity.Group{}, err
	}
	if name.Valid {
		created.Name = name.String
	}
	return created, nil
}

func (s *Store) FindGroupByProviderID(ctx context.Context, providerID string) (identity.Group, error) {
	if s.db == nil {
		return identity.Group{}, errors.New("database connection unavailable")
	}
	var (
		g    identity.Group
		name sql.NullString
	)
	err := s.q(ctx).QueryRowContext(ctx, `
		select id, provider_id, name, created_at
		from groups
		where provider_id = $1
	`, providerID).Scan(&g.ID, &g.ProviderID, &name, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Group{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Group{}, err
	}
	if name.Valid {
		g.Name = name.String
	}
	return g, nil
}

func (s *Store) UpdateGroupName(ctx context.Context, id, name string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		update groups set name = $2 where id = $1
	`, id, nullIfEmpty(name))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.q(ctx).ExecContext(ctx, `delete from groups where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return identity.ErrNotFound
	}
	return nil
}
