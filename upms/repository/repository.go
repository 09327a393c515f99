// Copyright (c) 2025 Nimbleforge
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package repository

import (
	"context"
	"errors"

	uuid "github.com/gofrs/uuid"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/upms/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
	// ErrMissingReference reports a role code or user id that does not exist.
	ErrMissingReference = errors.New("missing reference")
)

// Query schemas for the UPMS tables. The password hash is stored but never
// queryable.
var (
	UserSchema = query.NewStaticSchema("users", "upms_users",
		query.Field("objectId", query.TypeUUID).WithColumn("id"),
		query.Field("username", query.TypeString),
		query.Field("email", query.TypeString),
		query.Field("displayName", query.TypeString).WithColumn("display_name"),
		query.Field("passwordHash", query.TypeText).WithColumn("password_hash").AsHidden(),
		query.Field("status", query.TypeString),
		query.Field("createdDate", query.TypeDateTime).WithColumn("created_date"),
		query.Field("lastUpdated", query.TypeDateTime).WithColumn("last_updated"),
	)

	RoleSchema = query.NewStaticSchema("roles", "upms_roles",
		query.Field("objectId", query.TypeUUID).WithColumn("id"),
		query.Field("code", query.TypeString),
		query.Field("name", query.TypeString),
		query.Field("description", query.TypeText),
		query.Field("createdDate", query.TypeDateTime).WithColumn("created_date"),
	)
)

// PolicySource lists the rows an authorizer builds its policy from.
type PolicySource interface {
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	ListAssignments(ctx context.Context) ([]models.RoleAssignment, error)
}

// Repository defines data access for users, roles and permissions.
type Repository interface {
	PolicySource

	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	// QueryUsers returns users matching cq with their roles filled, and the
	// unpaged total.
	QueryUsers(ctx context.Context, cq *query.CompiledQuery) ([]*models.User, int64, error)
	UpdateUserStatus(ctx context.Context, id uuid.UUID, status models.UserStatus) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error

	// SetUserRoles replaces every role assignment of the user.
	SetUserRoles(ctx context.Context, id uuid.UUID, roles []string) error
	RolesOf(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]string, error)

	CreateRole(ctx context.Context, role *models.Role) error
	FindRole(ctx context.Context, code string) (*models.Role, error)
	QueryRoles(ctx context.Context, cq *query.CompiledQuery) ([]*models.Role, int64, error)

	// GrantPermission returns false when the permission already existed.
	GrantPermission(ctx context.Context, p models.Permission) (bool, error)
	// RevokePermission returns false when there was nothing to remove.
	RevokePermission(ctx context.Context, p models.Permission) (bool, error)
}
