package models

import "time"

// Permit kinds.
const (
	PermitResidence = "RESIDENCE" // temporary residence in this ward
	PermitAbsence   = "ABSENCE"   // temporary absence from the registered household
)

// Permit statuses.
const (
	PermitActive  = "ACTIVE"
	PermitExpired = "EXPIRED"
	PermitRevoked = "REVOKED"
)

// TemporaryResidence is a temporary-residence or temporary-absence permit.
type TemporaryResidence struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PersonID       *uint     `gorm:"index" json:"person_id,omitempty"` // set when the holder is a registered person
	FullName       string    `gorm:"not null" json:"full_name"`
	IdentityNumber *string   `gorm:"index" json:"identity_number,omitempty"`
	Kind           string    `gorm:"not null;index" json:"kind"`
	Address        string    `gorm:"not null" json:"address"`
	FromDate       time.Time `gorm:"not null" json:"from_date"`
	ToDate         time.Time `gorm:"not null;index" json:"to_date"`
	Reason         *string   `gorm:"" json:"reason,omitempty"`
	Status         string    `gorm:"not null;default:ACTIVE;index" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName explicitly sets the table name for GORM.
func (TemporaryResidence) TableName() string {
	return "temporary_residences"
}

// IsValidPermitKind reports whether k is a known permit kind.
func IsValidPermitKind(k string) bool {
	return k == PermitResidence || k == PermitAbsence
}
