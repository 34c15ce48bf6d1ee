package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type UserKind string

const (
	// UserGenerated backs a plate that showed up without an account.
	UserGenerated  UserKind = "generated"
	UserRegistered UserKind = "registered"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleUser     = "user"
)

type User struct {
	ID                  int         `json:"id"`
	Email               string      `json:"email"`
	Password            string      `json:"-"` // bcrypt hash
	Role                string      `json:"role"`
	Kind                UserKind    `json:"kind"`
	HasAutomaticPayment bool        `json:"has_automatic_payment"`
	StripeCustomerID    null.String `json:"-"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

func (u *User) IsGenerated() bool {
	return u.Kind == UserGenerated
}

// GeneratedCredentials are handed out once, when an unknown plate is registered.
type GeneratedCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterUserDTO struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=100"`
	Role     string `json:"role,omitempty" binding:"omitempty,oneof=admin operator user"`
}

type LoginUserDTO struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponseDTO struct {
	Token  string `json:"token"`
	UserID int    `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID int
	Role   string
}

// IsStaff reports whether the caller may act on other users' data.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleOperator
}
