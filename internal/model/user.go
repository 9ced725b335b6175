package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Roles a user can hold.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User represents an account holder and their credential record.
type User struct {
	ID           uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name         string    `json:"name" gorm:"size:255;not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"` // Never expose in JSON
	Role         string    `json:"role" gorm:"size:50;default:'member';index"`

	// PasswordChangedAt is compared against a token's issued-at to reject
	// tokens minted before the most recent password change.
	PasswordChangedAt *time.Time `json:"-"`

	// ResetTokenHash and ResetTokenExpiresAt are both set or both nil.
	// Only the digest of the recovery secret is ever stored.
	ResetTokenHash      *string    `json:"-" gorm:"size:64;index"`
	ResetTokenExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate sets UUID before creating the record.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// PasswordChangedAfter reports whether the password changed after the given
// instant (typically a token's issued-at).
func (u *User) PasswordChangedAfter(t time.Time) bool {
	return u.PasswordChangedAt != nil && u.PasswordChangedAt.After(t)
}

// HasAnyRole reports whether the user's role is one of the given roles.
func (u *User) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
