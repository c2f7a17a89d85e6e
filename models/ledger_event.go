package models

import "time"

// LedgerEvent summarises one committed lifecycle operation for push subscribers and the
// message bus. It is published after the transaction commits.
type LedgerEvent struct {
	OperationID   string    `json:"operation_id"`
	ChangeType    string    `json:"change_type"`
	HouseholdID   uint      `json:"household_id,omitempty"`
	HouseholdCode string    `json:"household_code,omitempty"`
	PersonIDs     []uint    `json:"person_ids,omitempty"`
	RelatedIDs    []uint    `json:"related_household_ids,omitempty"` // e.g. the other side of a split
	ChangedBy     string    `json:"changed_by,omitempty"`
	ChangedAt     time.Time `json:"changed_at"`
}
