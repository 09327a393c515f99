// Copyright (c) 2025 Nimbleforge
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package repository

import (
	"context"
	"testing"

	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/internal/testutil"
	"github.com/nimbleforge/forge/upms/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepository_Integration(t *testing.T) {
	client := testutil.SetupPostgres(t)
	repo := NewPostgresRepository(client)
	ctx := context.Background()

	code := testutil.UniqueName("role")
	require.NoError(t, repo.CreateRole(ctx, &models.Role{Code: code, Name: "Test role"}))
	require.ErrorIs(t, repo.CreateRole(ctx, &models.Role{Code: code, Name: "again"}), ErrDuplicate)

	username := testutil.UniqueName("user")
	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		DisplayName:  "Test",
		PasswordHash: "hash",
		Status:       models.UserStatusActive,
		Roles:        []string{code},
	}
	require.NoError(t, repo.CreateUser(ctx, user))

	found, err := repo.FindUserByUsername(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, user.ObjectId, found.ObjectId)
	assert.Equal(t, []string{code}, found.Roles)
	assert.Equal(t, "hash", found.PasswordHash)

	ghost := &models.User{Username: testutil.UniqueName("ghost"), Email: testutil.UniqueName("g") + "@example.com",
		PasswordHash: "x", Status: models.UserStatusActive, Roles: []string{"no_such_role_" + code}}
	require.ErrorIs(t, repo.CreateUser(ctx, ghost), ErrMissingReference)

	require.NoError(t, repo.UpdateUserStatus(ctx, user.ObjectId, models.UserStatusLocked))
	require.NoError(t, repo.SetUserRoles(ctx, user.ObjectId, nil))
	found, err = repo.FindUserByID(ctx, user.ObjectId)
	require.NoError(t, err)
	assert.True(t, found.IsLocked())
	assert.Empty(t, found.Roles)

	cq, err := query.Compile(&query.QueryCondition{
		Where: map[string]any{"username": map[string]any{"_eq": username}},
	}, UserSchema)
	require.NoError(t, err)
	users, total, err := repo.QueryUsers(ctx, cq)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, users, 1)

	p := models.Permission{RoleCode: code, Resource: "lowcode/*", Action: "read"}
	added, err := repo.GrantPermission(ctx, p)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = repo.GrantPermission(ctx, p)
	require.NoError(t, err)
	assert.False(t, added)

	perms, err := repo.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Contains(t, perms, p)

	removed, err := repo.RevokePermission(ctx, p)
	require.NoError(t, err)
	assert.True(t, removed)
}
