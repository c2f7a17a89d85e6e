package models

import (
	"golang.org/x/crypto/bcrypt"
	"time"
)

// User is a registry clerk or administrator.
type User struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	Username          string    `json:"username" gorm:"uniqueIndex;not null"`
	FullName          string    `json:"full_name"`
	PasswordHash      string    `json:"-" gorm:"not null"`                            // "-" means don't include in JSON responses
	GlobalPermissions []string  `json:"global_permissions" gorm:"serializer:json"`    // Use JSON serializer
	Roles             []*Role   `json:"roles,omitempty" gorm:"many2many:user_roles;"` // Roles assigned to the user
	IsActive          bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SetPassword hashes the given password and sets it on the user model.
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

// CheckPassword verifies if the given password matches the user's hashed password.
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// HasGlobalPermission checks if the user has a specific permission,
// considering both direct permissions and permissions from roles.
func (u *User) HasGlobalPermission(permission string) bool {
	for _, p := range u.GlobalPermissions {
		if p == permission {
			return true
		}
	}

	// Assumes u.Roles is preloaded
	for _, role := range u.Roles {
		if role == nil {
			continue
		}
		for _, p := range role.GlobalPermissions {
			if p == permission {
				return true
			}
		}
	}
	return false
}

// EffectivePermissions returns the de-duplicated union of direct and role permissions.
func (u *User) EffectivePermissions() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range u.GlobalPermissions {
		add(p)
	}
	for _, role := range u.Roles {
		if role == nil {
			continue
		}
		for _, p := range role.GlobalPermissions {
			add(p)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}
