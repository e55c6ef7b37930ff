package model

import "time"

// Role identifies what a user may do.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleLeader  Role = "leader"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLeader, RoleStudent:
		return true
	}
	return false
}

// User is any account: administrators, scout leaders who evaluate attempts,
// and students who take exams.
type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	Category     *string   `json:"category,omitempty"` // Student only
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LoginRequest is the payload for authentication.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

// CreateUserRequest is the payload for creating a user.
type CreateUserRequest struct {
	Name     string  `json:"name" binding:"required,min=1,max=255"`
	Email    string  `json:"email" binding:"required,email,max=255"`
	Role     Role    `json:"role" binding:"required,oneof=admin leader student"`
	Category *string `json:"category" binding:"omitempty,category"`
	Password string  `json:"password" binding:"required,min=6,max=128"`
}

// DeleteUsersRequest removes one or many users.
type DeleteUsersRequest struct {
	IDs []int `json:"ids" binding:"required,min=1,dive,gt=0"`
}

// UserFilter narrows a user listing.
type UserFilter struct {
	Role   *Role
	Search string
}

// ResetPasswordRequest is the payload for replacing a user's password.
type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required,min=6,max=128"`
}
