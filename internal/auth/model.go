package auth

import "time"

type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RoleAdmin         Role = "admin"
	RoleSecurityAdmin Role = "security_admin"
	RoleAnalyst       Role = "analyst"
	RoleReadOnly      Role = "read_only"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleSecurityAdmin, RoleAnalyst, RoleReadOnly:
		return true
	}
	return false
}

// Privileged reports whether r may trigger or lift a shutdown.
func (r Role) Privileged() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleSecurityAdmin:
		return true
	}
	return false
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
