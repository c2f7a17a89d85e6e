package models

import "time"

// Person status values. Transitions out of StatusActive are one-way.
const (
	StatusActive   = "ACTIVE"
	StatusMovedOut = "MOVED_OUT"
	StatusDeceased = "DECEASED"
)

// Gender values accepted on person records.
const (
	GenderMale   = "MALE"
	GenderFemale = "FEMALE"
	GenderOther  = "OTHER"
)

// Person is a resident bound to exactly one household at a time.
// It corresponds to the 'persons' table.
type Person struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	HouseholdID    uint       `gorm:"not null;index" json:"household_id"`
	FullName       string     `gorm:"not null;index" json:"full_name"`
	Alias          *string    `gorm:"" json:"alias,omitempty"`
	DateOfBirth    time.Time  `gorm:"not null" json:"date_of_birth"`
	Gender         string     `gorm:"not null" json:"gender"`
	IdentityNumber *string    `gorm:"uniqueIndex" json:"identity_number,omitempty"` // nullable, unique when present
	Relationship   *string    `gorm:"" json:"relationship,omitempty"`              // nil for the household owner
	BirthPlace     *string    `gorm:"" json:"birth_place,omitempty"`
	Hometown       *string    `gorm:"" json:"hometown,omitempty"`
	Ethnicity      *string    `gorm:"" json:"ethnicity,omitempty"`
	Occupation     *string    `gorm:"" json:"occupation,omitempty"`
	Workplace      *string    `gorm:"" json:"workplace,omitempty"`
	Status         string     `gorm:"not null;default:ACTIVE;index" json:"status"`
	MoveOutDate    *time.Time `gorm:"" json:"move_out_date,omitempty"`
	MoveOutPlace   *string    `gorm:"" json:"move_out_place,omitempty"`
	DeceasedDate   *time.Time `gorm:"" json:"deceased_date,omitempty"`
	Note           *string    `gorm:"" json:"note,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Household *Household `gorm:"foreignKey:HouseholdID" json:"household,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Person) TableName() string {
	return "persons"
}

// IsValidGender reports whether g is one of the accepted gender values.
func IsValidGender(g string) bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	default:
		return false
	}
}

// IsValidPersonStatus reports whether s is a known person status.
func IsValidPersonStatus(s string) bool {
	switch s {
	case StatusActive, StatusMovedOut, StatusDeceased:
		return true
	default:
		return false
	}
}
