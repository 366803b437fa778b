package account

import "time"

// Role determines which lifecycle operations an actor may initiate.
type Role string

const (
	RoleBrand   Role = "brand"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

// IsBrand reports whether the role may own campaigns and review content.
func (r Role) IsBrand() bool { return r == RoleBrand }

// IsCreator reports whether the role may respond to invitations and submit content.
func (r Role) IsCreator() bool { return r == RoleCreator }

// IsAdmin reports whether the role may run administrative batch operations.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// Actor is the domain representation of an authenticated user.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type Actor struct {
	ID               string
	Email            string
	FullName         string
	PasswordHash     string
	Role             Role
	SuspendedAt      *time.Time
	SuspensionReason *string
	BannedAt         *time.Time
	BanReason        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
