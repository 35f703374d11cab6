package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"warden.org/internal/permission"
)

func (s *Store) CreateCollection(ctx context.Context, c permission.Collection) (permission.Collection, error) {
	if s.db == nil {
		return permission.Collection{}, errors.New("database connection unavailable")
	}
	permsJSON, err := json.Marshal(c.Permissions)
	if err != nil {
		return permission.Collection{}, fmt.Errorf("marshal permissions: %w", err)
	}

	var (
		created permission.Collection
		raw     []byte
	)
	row := s.q(ctx).QueryRowContext(ctx, `
		insert into permission_collections (id, name, permissions, created_at)
		values ($1, $2, $3, $4)
		returning id, name, permissions, created_at
	`, c.ID, c.Name, permsJSON, c.CreatedAt)
	if err := row.Scan(&created.ID, &created.Name, &raw, &created.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return permission.Collection{}, permission.ErrConflict
		}
		return permission.Collection{}, err
	}
	if err := json.Unmarshal(raw, &created.Permissions); err != nil {
		return permission.Collection{}, fmt.Errorf("decode permissions: %w", err)
	}
	return created, nil
}

func (s *Store) FindCollection(ctx context.Context, name string) (permission.Collection, error) {
	if s.db == nil {
		return permission.Collection{}, errors.New("database connection unavailable")
	}
	var (
		c   permission.Collection
		raw []byte
	)
	err := s.q(ctx).QueryRowContext(ctx, `
		select id, name, permissions, created_at
		from permission_collections
		where name = $1
	`, name).Scan(&c.ID, &c.Name, &raw, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return permission.Collection{}, permission.ErrNotFound
	}
	if err != nil {
		return permission.Collection{}, err
	}
	if err := json.Unmarshal(raw, &c.Permissions); err != nil {
		return permission.Collection{}, fmt.Errorf("decode permissions: %w", err)
	}
	return c, nil
}

func (s *Store) ListCollections(ctx context.Context) ([]permission.Collection, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		select id, name, permissions, created_at
		from permission_collections
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []permission.Collection
	for rows.Next() {
		var (
			c   permission.Collection
			raw []byte
		)
		if err := rows.Scan(&c.ID, &c.Name, &raw, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &c.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpsertGrant(ctx context.Context, g permission.Grant) (permission.Grant, error) {
	if s.db == nil {
		return permission.Grant{}, errors.New("database connection unavailable")
	}
	var written permission.Grant
	row := s.q(ctx).QueryRowContext(ctx, `
		insert into instance_permissions
			(id, grantee_kind, grantee_id, entity_type, entity_id, collection_name, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $7)
		on conflict (grantee_kind, grantee_id, entity_type, entity_id) do update
		set collection_name = excluded.collection_name,
		    updated_at = excluded.updated_at
		returning id, grantee_kind, grantee_id, entity_type, entity_id, collection_name, created_at, updated_at
	`, g.ID, string(g.GranteeKind), g.GranteeID, g.Target.EntityType, g.Target.EntityID, g.Collection, g.CreatedAt)
	if err := scanGrant(row, &written); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return permission.Grant{}, fmt.Errorf("collection %q: %w", g.Collection, permission.ErrNotFound)
		}
		return permission.Grant{}, err
	}
	return written, nil
}

func (s *Store) FindGrant(ctx context.Context, kind permission.GranteeKind, granteeID string, target permission.Target) (permission.Grant, error) {
	if s.db == nil {
		return permission.Grant{}, errors.New("database connection unavailable")
	}
	var g permission.Grant
	row := s.q(ctx).QueryRowContext(ctx, `
		select id, grantee_kind, grantee_id, entity_type, entity_id, collection_name, created_at, updated_at
		from instance_permissions
		where grantee_kind = $1 and grantee_id = $2 and entity_type = $3 and entity_id = $4
	`, string(kind), granteeID, target.EntityType, target.EntityID)
	if err := scanGrant(row, &g); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return permission.Grant{}, permission.ErrNotFound
		}
		return permission.Grant{}, err
	}
	return g, nil
}

func (s *Store) FindGroupGrants(ctx context.Context, groupIDs []string, target permission.Target) ([]permission.Grant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	if len(groupIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(groupIDs))
	args := []any{target.EntityType, target.EntityID}
	for i, id := range groupIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, id)
	}
	query := fmt.Sprintf(`
		select id, grantee_kind, grantee_id, entity_type, entity_id, collection_name, created_at, updated_at
		from instance_permissions
		where grantee_kind = 'group' and entity_type = $1 and entity_id = $2
		  and grantee_id in (%s)
		order by grantee_id
	`, strings.Join(placeholders, ", "))

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

func (s *Store) ListGrantsForTarget(ctx context.Context, target permission.Target) ([]permission.Grant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.q(ctx).QueryContext(ctx, `
		select id, grantee_kind, grantee_id, entity_type, entity_id, collection_name, created_at, updated_at
		from instance_permissions
		where entity_type = $1 and entity_id = $2
		order by grantee_kind, grantee_id
	`, target.EntityType, target.EntityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGrants(rows)
}

func (s *Store) DeleteGrant(ctx context.Context, kind permission.GranteeKind, granteeID string, target permission.Target) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		delete from instance_permissions
		where grantee_kind = $1 and grantee_id = $2 and entity_type = $3 and entity_id = $4
	`, string(kind), granteeID, target.EntityType, target.EntityID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return permission.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAllForGrantee(ctx context.Context, kind permission.GranteeKind, granteeID string) (int64, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		delete from instance_permissions
		where grantee_kind = $1 and grantee_id = $2
	`, string(kind), granteeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) DeleteAllForTarget(ctx context.Context, target permission.Target) (int64, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		delete from instance_permissions
		where entity_type = $1 and entity_id = $2
	`, target.EntityType, target.EntityID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner, g *permission.Grant) error {
	var kind string
	if err := row.Scan(&g.ID, &kind, &g.GranteeID, &g.Target.EntityType, &g.Target.EntityID,
		&g.Collection, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return err
	}
	g.GranteeKind = permission.GranteeKind(kind)
	return nil
}

func collectGrants(rows *sql.Rows) ([]permission.Grant, error) {
	var grants []permission.Grant
	for rows.Next() {
		var g permission.Grant
		if err := scanGrant(rows, &g); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}
