package models

import (
	"strings"

	uuid "github.com/gofrs/uuid"
)

type CreateUserRequest struct {
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	DisplayName string   `json:"displayName"`
	Password    string   `json:"password"`
	Roles       []string `json:"roles"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type AssignRolesRequest struct {
	Roles []string `json:"roles"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type CreateRoleRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type PermissionRequest struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserResponse struct {
	ObjectId    string   `json:"objectId"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	DisplayName string   `json:"displayName"`
	Status      string   `json:"status"`
	Roles       []string `json:"roles"`
	CreatedDate int64    `json:"createdDate"`
	LastUpdated int64    `json:"lastUpdated"`
}

type RoleResponse struct {
	ObjectId    string `json:"objectId"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedDate int64  `json:"createdDate"`
}

type LoginResponse struct {
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresAt   int64        `json:"expiresAt"`
	User        UserResponse `json:"user"`
}

type PermissionCheckResponse struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Allowed  bool   `json:"allowed"`
}

// NewUser builds an active user from req. The password hash is set by the
// caller.
func NewUser(req *CreateUserRequest) *User {
	display := strings.TrimSpace(req.DisplayName)
	username := strings.TrimSpace(req.Username)
	if display == "" {
		display = username
	}
	return &User{
		ObjectId:    uuid.Must(uuid.NewV4()),
		Username:    username,
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		DisplayName: display,
		Status:      UserStatusActive,
		Roles:       dedupe(req.Roles),
	}
}

func NewRole(req *CreateRoleRequest) *Role {
	return &Role{
		ObjectId:    uuid.Must(uuid.NewV4()),
		Code:        strings.TrimSpace(req.Code),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
	}
}

func ToUserResponse(u *User) UserResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserResponse{
		ObjectId:    u.ObjectId.String(),
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Status:      string(u.Status),
		Roles:       roles,
		CreatedDate: u.CreatedDate.UnixMilli(),
		LastUpdated: u.LastUpdated.UnixMilli(),
	}
}

func ToRoleResponse(r *Role) RoleResponse {
	return RoleResponse{
		ObjectId:    r.ObjectId.String(),
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		CreatedDate: r.CreatedDate.UnixMilli(),
	}
}

// NormalizeRoles trims, drops blanks and removes duplicates keeping first
// occurrence order.
func NormalizeRoles(roles []string) []string {
	return dedupe(roles)
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
