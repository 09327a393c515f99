// Copyright (c) 2025 Nimbleforge
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	uuid "github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/nimbleforge/forge/internal/database/postgres"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/internal/query/render"
	"github.com/nimbleforge/forge/upms/models"
)

const (
	tableUsers       = "upms_users"
	tableRoles       = "upms_roles"
	tableUserRoles   = "upms_user_roles"
	tablePermissions = "upms_role_permissions"

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var userColumns = []string{
	"id", "username", "email", "display_name", "password_hash", "status", "created_date", "last_updated",
}

var roleColumns = []string{"id", "code", "name", "description", "created_date"}

type postgresRepository struct {
	client *postgres.Client
	render *render.Renderer
}

// NewPostgresRepository creates a repository in the client's schema.
func NewPostgresRepository(client *postgres.Client) Repository {
	return &postgresRepository{client: client, render: render.New(client.Schema())}
}

func (r *postgresRepository) getExecutor(ctx context.Context) sqlx.ExtContext {
	return r.client.Executor(ctx)
}

func (r *postgresRepository) table(name string) string {
	return r.render.Table(name)
}

func (r *postgresRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.client.WithTx(ctx, fn)
}

func wrapWrite(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, ErrDuplicate, pqErr.Constraint)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, ErrMissingReference, pqErr.Detail)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *postgresRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ObjectId == uuid.Nil {
		user.ObjectId = uuid.Must(uuid.NewV4())
	}
	now := time.Now().UTC()
	user.CreatedDate, user.LastUpdated = now, now

	return r.WithTx(ctx, func(ctx context.Context) error {
		sqlStr, args, err := r.render.Builder().Insert(r.table(tableUsers)).
			Columns(userColumns...).
			Values(user.ObjectId, user.Username, user.Email, user.DisplayName, user.PasswordHash,
				user.Status, user.CreatedDate, user.LastUpdated).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert user: %w", err)
		}
		if _, err := r.getExecutor(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
			return wrapWrite("insert user", err)
		}
		return r.insertAssignments(ctx, user.ObjectId, user.Roles)
	})
}

func (r *postgresRepository) findUser(ctx context.Context, where sq.Sqlizer) (*models.User, error) {
	sqlStr, args, err := r.render.Builder().Select(userColumns...).
		From(r.table(tableUsers)).
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find user: %w", err)
	}
	var user models.User
	if err := sqlx.GetContext(ctx, r.getExecutor(ctx), &user, sqlStr, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	roles, err := r.RolesOf(ctx, []uuid.UUID{user.ObjectId})
	if err != nil {
		return nil, err
	}
	user.Roles = roles[user.ObjectId]
	return &user, nil
}

func (r *postgresRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.findUser(ctx, sq.Eq{"id": id})
}

func (r *postgresRepository) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findUser(ctx, sq.Eq{"username": username})
}

func (r *postgresRepository) QueryUsers(ctx context.Context, cq *query.CompiledQuery) ([]*models.User, int64, error) {
	total, err := r.count(ctx, cq)
	if err != nil || total == 0 {
		return nil, total, err
	}
	b, err := r.render.SelectColumns(cq, userColumns...)
	if err != nil {
		return nil, 0, err
	}
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query users: %w", err)
	}
	var users []*models.User
	if err := sqlx.SelectContext(ctx, r.getExecutor(ctx), &users, sqlStr, args...); err != nil {
		return nil, 0, fmt.Errorf("query users: %w", err)
	}

	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.ObjectId
	}
	roles, err := r.RolesOf(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, u := range users {
		u.Roles = roles[u.ObjectId]
	}
	return users, total, nil
}

func (r *postgresRepository) updateUser(ctx context.Context, id uuid.UUID, op string, set map[string]interface{}) error {
	set["last_updated"] = time.Now().UTC()
	sqlStr, args, err := r.render.Builder().Update(r.table(tableUsers)).
		SetMap(set).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	res, err := r.getExecutor(ctx).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return wrapWrite(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) UpdateUserStatus(ctx context.Context, id uuid.UUID, status models.UserStatus) error {
	return r.updateUser(ctx, id, "update user status", map[string]interface{}{"status": status})
}

func (r *postgresRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.updateUser(ctx, id, "update password", map[string]interface{}{"password_hash": hash})
}

func (r *postgresRepository) SetUserRoles(ctx context.Context, id uuid.UUID, roles []string) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		sqlStr, args, err := r.render.Builder().Delete(r.table(tableUserRoles)).
			Where(sq.Eq{"user_id": id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build clear roles: %w", err)
		}
		if _, err := r.getExecutor(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("clear roles: %w", err)
		}
		return r.insertAssignments(ctx, id, roles)
	})
}

func (r *postgresRepository) insertAssignments(ctx context.Context, id uuid.UUID, roles []string) error {
	if len(roles) == 0 {
		return nil
	}
	b := r.render.Builder().Insert(r.table(tableUserRoles)).Columns("user_id", "role_code")
	for _, code := range roles {
		b = b.Values(id, code)
	}
	sqlStr, args, err := b.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build assign roles: %w", err)
	}
	if _, err := r.getExecutor(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
		return wrapWrite("assign roles", err)
	}
	return nil
}

func (r *postgresRepository) RolesOf(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]string, error) {
	out := make(map[uuid.UUID][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	sqlStr, args, err := r.render.Builder().Select("user_id", "role_code").
		From(r.table(tableUserRoles)).
		Where(sq.Expr("user_id = ANY(?::uuid[])", pq.Array(keys))).
		OrderBy("user_id", "role_code").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build roles of: %w", err)
	}
	var rows []models.RoleAssignment
	if err := sqlx.SelectContext(ctx, r.getExecutor(ctx), &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("roles of: %w", err)
	}
	for _, row := range rows {
		out[row.UserID] = append(out[row.UserID], row.RoleCode)
	}
	return out, nil
}

func (r *postgresRepository) CreateRole(ctx context.Context, role *models.Role) error {
	if role.ObjectId == uuid.Nil {
		role.ObjectId = uuid.Must(uuid.NewV4())
	}
	role.CreatedDate = time.Now().UTC()

	sqlStr, args, err := r.render.Builder().Insert(r.table(tableRoles)).
		Columns(roleColumns...).
		Values(role.ObjectId, role.Code, role.Name, role.Description, role.CreatedDate).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role: %w", err)
	}
	if _, err := r.getExecutor(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
		return wrapWrite("insert role", err)
	}
	return nil
}

func (r *postgresRepository) FindRole(ctx context.Context, code string) (*models.Role, error) {
	sqlStr, args, err := r.render.Builder().Select(roleColumns...).
		From(r.table(tableRoles)).
		Where(sq.Eq{"code": code}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find role: %w", err)
	}
	var role models.Role
	if err := sqlx.GetContext(ctx, r.getExecutor(ctx), &role, sqlStr, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	return &role, nil
}

func (r *postgresRepository) QueryRoles(ctx context.Context, cq *query.CompiledQuery) ([]*models.Role, int64, error) {
	total, err := r.count(ctx, cq)
	if err != nil || total == 0 {
		return nil, total, err
	}
	b, err := r.render.SelectColumns(cq, roleColumns...)
	if err != nil {
		return nil, 0, err
	}
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query roles: %w", err)
	}
	var roles []*models.Role
	if err := sqlx.SelectContext(ctx, r.getExecutor(ctx), &roles, sqlStr, args...); err != nil {
		return nil, 0, fmt.Errorf("query roles: %w", err)
	}
	return roles, total, nil
}

func (r *postgresRepository) GrantPermission(ctx context.Context, p models.Permission) (bool, error) {
	sqlStr, args, err := r.render.Builder().Insert(r.table(tablePermissions)).
		Columns("role_code", "resource", "action").
		Values(p.RoleCode, p.Resource, p.Action).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build grant permission: %w", err)
	}
	res, err := r.getExecutor(ctx).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, wrapWrite("grant permission", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("grant permission: %w", err)
	}
	return n > 0, nil
}

func (r *postgresRepository) RevokePermission(ctx context.Context, p models.Permission) (bool, error) {
	sqlStr, args, err := r.render.Builder().Delete(r.table(tablePermissions)).
		Where(sq.Eq{"role_code": p.RoleCode, "resource": p.Resource, "action": p.Action}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build revoke permission: %w", err)
	}
	res, err := r.getExecutor(ctx).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("revoke permission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke permission: %w", err)
	}
	return n > 0, nil
}

func (r *postgresRepository) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	sqlStr, args, err := r.render.Builder().Select("role_code", "resource", "action").
		From(r.table(tablePermissions)).
		OrderBy("role_code", "resource", "action").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list permissions: %w", err)
	}
	var perms []models.Permission
	if err := sqlx.SelectContext(ctx, r.getExecutor(ctx), &perms, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return perms, nil
}

func (r *postgresRepository) ListAssignments(ctx context.Context) ([]models.RoleAssignment, error) {
	sqlStr, args, err := r.render.Builder().Select("user_id", "role_code").
		From(r.table(tableUserRoles)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list assignments: %w", err)
	}
	var rows []models.RoleAssignment
	if err := sqlx.SelectContext(ctx, r.getExecutor(ctx), &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return rows, nil
}

func (r *postgresRepository) count(ctx context.Context, cq *query.CompiledQuery) (int64, error) {
	b, err := r.render.Count(cq)
	if err != nil {
		return 0, err
	}
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := r.getExecutor(ctx).QueryRowxContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", cq.Table, err)
	}
	return total, nil
}
