package models

import (
	"time"

	uuid "github.com/gofrs/uuid"
)

type UserStatus string

const (
	UserStatusActive UserStatus = "active"
	UserStatusLocked UserStatus = "locked"
)

// ParseUserStatus accepts the persisted status values only.
func ParseUserStatus(s string) (UserStatus, bool) {
	switch UserStatus(s) {
	case UserStatusActive, UserStatusLocked:
		return UserStatus(s), true
	}
	return "", false
}

// User is an account able to log in.
type User struct {
	ObjectId     uuid.UUID  `json:"objectId" db:"id"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email" db:"email"`
	DisplayName  string     `json:"displayName" db:"display_name"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Status       UserStatus `json:"status" db:"status"`
	CreatedDate  time.Time  `json:"createdDate" db:"created_date"`
	LastUpdated  time.Time  `json:"lastUpdated" db:"last_updated"`

	// Roles is filled from the assignment table, not the users row.
	Roles []string `json:"roles" db:"-"`
}

func (u *User) IsLocked() bool {
	return u.Status == UserStatusLocked
}

// Role groups permissions and is assigned to users by code.
type Role struct {
	ObjectId    uuid.UUID `json:"objectId" db:"id"`
	Code        string    `json:"code" db:"code"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedDate time.Time `json:"createdDate" db:"created_date"`
}

// Permission allows a role to perform action on resource. Both may be "*";
// resource also accepts a trailing "/*".
type Permission struct {
	RoleCode string `json:"roleCode" db:"role_code"`
	Resource string `json:"resource" db:"resource"`
	Action   string `json:"action" db:"action"`
}

// RoleAssignment links a user to a role.
type RoleAssignment struct {
	UserID   uuid.UUID `db:"user_id"`
	RoleCode string    `db:"role_code"`
}
