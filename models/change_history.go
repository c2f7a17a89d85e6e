package models

import (
	"time"

	"gorm.io/datatypes"
)

// Change types recorded in the ledger.
const (
	ChangeCreate   = "CREATE"
	ChangeUpdate   = "UPDATE"
	ChangeDelete   = "DELETE"
	ChangeAdd      = "ADD"
	ChangeSplit    = "SPLIT"
	ChangeTransfer = "TRANSFER"
	ChangeMoveOut  = "MOVE_OUT"
	ChangeDeceased = "DECEASED"
)

// IsValidChangeType reports whether t is a known ledger change type.
func IsValidChangeType(t string) bool {
	switch t {
	case ChangeCreate, ChangeUpdate, ChangeDelete, ChangeAdd, ChangeSplit, ChangeTransfer, ChangeMoveOut, ChangeDeceased:
		return true
	default:
		return false
	}
}

// HouseholdChangeHistory is an append-only ledger row for a household mutation.
// HouseholdID intentionally carries no cascading constraint: rows outlive their household,
// and HouseholdCode plus the snapshots are kept for display after deletion.
type HouseholdChangeHistory struct {
	ID            uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	HouseholdID   uint           `gorm:"not null;index" json:"household_id"`
	HouseholdCode string         `gorm:"not null;index" json:"household_code"`
	ChangeType    string         `gorm:"not null;index" json:"change_type"`
	ChangedAt     time.Time      `gorm:"not null;index" json:"changed_at"`
	Description   string         `gorm:"not null" json:"description"`
	OldData       datatypes.JSON `gorm:"" json:"old_data,omitempty"`
	NewData       datatypes.JSON `gorm:"" json:"new_data,omitempty"`
	OperationID   string         `gorm:"not null;index" json:"operation_id"`
	ChangedBy     string         `gorm:"" json:"changed_by,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`

	Household *Household `gorm:"foreignKey:HouseholdID" json:"-"`
}

// TableName explicitly sets the table name for GORM.
func (HouseholdChangeHistory) TableName() string {
	return "household_change_histories"
}

// PersonChangeHistory is an append-only ledger row for a person mutation.
type PersonChangeHistory struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	PersonID    uint           `gorm:"not null;index" json:"person_id"`
	PersonName  string         `gorm:"not null" json:"person_name"`
	ChangeType  string         `gorm:"not null;index" json:"change_type"`
	ChangedAt   time.Time      `gorm:"not null;index" json:"changed_at"`
	Description string         `gorm:"not null" json:"description"`
	OldData     datatypes.JSON `gorm:"" json:"old_data,omitempty"`
	NewData     datatypes.JSON `gorm:"" json:"new_data,omitempty"`
	OperationID string         `gorm:"not null;index" json:"operation_id"`
	ChangedBy   string         `gorm:"" json:"changed_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TableName explicitly sets the table name for GORM.
func (PersonChangeHistory) TableName() string {
	return "person_change_histories"
}
