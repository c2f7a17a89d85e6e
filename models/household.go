package models

import "time"

// Household is one registered residence and its legal members.
// It corresponds to the 'households' table.
type Household struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	HouseholdCode string    `gorm:"not null;uniqueIndex" json:"household_code"` // human-readable identifier, e.g. HK0042
	OwnerName     string    `gorm:"not null" json:"owner_name"`
	Street        string    `gorm:"not null" json:"street"`
	Ward          string    `gorm:"not null" json:"ward"`
	District      string    `gorm:"not null" json:"district"`
	DistrictID    string    `gorm:"not null;index" json:"district_id"`
	HouseholdType string    `gorm:"not null" json:"household_type"`
	IssueDate     time.Time `gorm:"not null" json:"issue_date"`
	SplitFromID   *uint     `gorm:"index" json:"split_from_id,omitempty"` // set when created by a split
	Note          *string   `gorm:"" json:"note,omitempty"`
	Version       int       `gorm:"not null;default:1" json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Relationships
	// omitempty will hide these if they are not preloaded or are empty
	Persons   []Person   `gorm:"foreignKey:HouseholdID" json:"persons,omitempty"`
	SplitFrom *Household `gorm:"foreignKey:SplitFromID" json:"split_from,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Household) TableName() string {
	return "households"
}

// Address returns the household's current address fields.
func (h *Household) Address() Address {
	return Address{
		Street:     h.Street,
		Ward:       h.Ward,
		District:   h.District,
		DistrictID: h.DistrictID,
	}
}

// ApplyAddress overwrites the household's address fields.
func (h *Household) ApplyAddress(a Address) {
	h.Street = a.Street
	h.Ward = a.Ward
	h.District = a.District
	h.DistrictID = a.DistrictID
}

// Address groups the location fields shared by households and transfer requests.
type Address struct {
	Street     string `json:"street"`
	Ward       string `json:"ward"`
	District   string `json:"district"`
	DistrictID string `json:"district_id"`
}
