package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// SnapshotSchema tags the variant stored in a ledger snapshot.
type SnapshotSchema string

const (
	SchemaHousehold SnapshotSchema = "household/v1"
	SchemaPerson    SnapshotSchema = "person/v1"
	SchemaAddress   SnapshotSchema = "address/v1"
	SchemaSplit     SnapshotSchema = "split/v1"
)

var (
	ErrEmptySnapshot   = errors.New("snapshot is empty")
	ErrUnknownSnapshot = errors.New("snapshot shape not recognised")
)

// HouseholdSnapshot is the serialized state of a household at one point in time.
type HouseholdSnapshot struct {
	ID            uint      `json:"id"`
	HouseholdCode string    `json:"household_code"`
	OwnerName     string    `json:"owner_name"`
	Street        string    `json:"street"`
	Ward          string    `json:"ward"`
	District      string    `json:"district"`
	DistrictID    string    `json:"district_id"`
	HouseholdType string    `json:"household_type"`
	IssueDate     time.Time `json:"issue_date"`
	SplitFromID   *uint     `json:"split_from_id,omitempty"`
	Version       int       `json:"version"`
}

// PersonSnapshot is the serialized state of a person at one point in time.
type PersonSnapshot struct {
	ID             uint       `json:"id"`
	HouseholdID    uint       `json:"household_id"`
	FullName       string     `json:"full_name"`
	DateOfBirth    time.Time  `json:"date_of_birth"`
	Gender         string     `json:"gender"`
	IdentityNumber *string    `json:"identity_number,omitempty"`
	Relationship   *string    `json:"relationship,omitempty"`
	Status         string     `json:"status"`
	MoveOutDate    *time.Time `json:"move_out_date,omitempty"`
	MoveOutPlace   *string    `json:"move_out_place,omitempty"`
	DeceasedDate   *time.Time `json:"deceased_date,omitempty"`
}

// SplitSnapshot cross-references both sides of a household split.
type SplitSnapshot struct {
	SourceHouseholdID        uint   `json:"source_household_id"`
	SourceHouseholdCode      string `json:"source_household_code"`
	DestinationHouseholdID   uint   `json:"destination_household_id"`
	DestinationHouseholdCode string `json:"destination_household_code"`
	PersonIDs                []uint `json:"person_ids"`
	Reason                   string `json:"reason,omitempty"`
}

// Snapshot is the tagged union stored in old_data/new_data. Schema names the primary
// variant; Household and Person may accompany other variants as context.
type Snapshot struct {
	Schema    SnapshotSchema     `json:"schema"`
	Household *HouseholdSnapshot `json:"household,omitempty"`
	Person    *PersonSnapshot    `json:"person,omitempty"`
	Address   *Address           `json:"address,omitempty"`
	Split     *SplitSnapshot     `json:"split,omitempty"`
}

func NewHouseholdSnapshot(h *Household) Snapshot {
	return Snapshot{Schema: SchemaHousehold, Household: householdState(h)}
}

func NewPersonSnapshot(p *Person) Snapshot {
	return Snapshot{Schema: SchemaPerson, Person: personState(p)}
}

// NewAddressSnapshot records an address together with the household it belonged to.
func NewAddressSnapshot(a Address, h *Household) Snapshot {
	addr := a
	s := Snapshot{Schema: SchemaAddress, Address: &addr}
	if h != nil {
		s.Household = householdState(h)
	}
	return s
}

// NewSplitSnapshot records one side of a split; h is that side's household.
func NewSplitSnapshot(split SplitSnapshot, h *Household) Snapshot {
	sp := split
	s := Snapshot{Schema: SchemaSplit, Split: &sp}
	if h != nil {
		s.Household = householdState(h)
	}
	return s
}

// WithPerson attaches person context to a snapshot of another variant.
func (s Snapshot) WithPerson(p *Person) Snapshot {
	s.Person = personState(p)
	return s
}

// JSON encodes the snapshot for a datatypes.JSON column.
func (s Snapshot) JSON() (datatypes.JSON, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s snapshot: %w", s.Schema, err)
	}
	return datatypes.JSON(raw), nil
}

// HouseholdView returns the household state carried by the snapshot, if any.
func (s Snapshot) HouseholdView() (*HouseholdSnapshot, bool) {
	if s.Household == nil {
		return nil, false
	}
	return s.Household, true
}

func householdState(h *Household) *HouseholdSnapshot {
	return &HouseholdSnapshot{
		ID:            h.ID,
		HouseholdCode: h.HouseholdCode,
		OwnerName:     h.OwnerName,
		Street:        h.Street,
		Ward:          h.Ward,
		District:      h.District,
		DistrictID:    h.DistrictID,
		HouseholdType: h.HouseholdType,
		IssueDate:     h.IssueDate,
		SplitFromID:   h.SplitFromID,
		Version:       h.Version,
	}
}

func personState(p *Person) *PersonSnapshot {
	return &PersonSnapshot{
		ID:             p.ID,
		HouseholdID:    p.HouseholdID,
		FullName:       p.FullName,
		DateOfBirth:    p.DateOfBirth,
		Gender:         p.Gender,
		IdentityNumber: p.IdentityNumber,
		Relationship:   p.Relationship,
		Status:         p.Status,
		MoveOutDate:    p.MoveOutDate,
		MoveOutPlace:   p.MoveOutPlace,
		DeceasedDate:   p.DeceasedDate,
	}
}

// envelope mirrors Snapshot with raw variants so decoding can dispatch on the tag.
type envelope struct {
	Schema    SnapshotSchema  `json:"schema"`
	Household json.RawMessage `json:"household"`
	Person    json.RawMessage `json:"person"`
	Address   json.RawMessage `json:"address"`
	Split     json.RawMessage `json:"split"`
}

// legacyHousehold accepts untagged household payloads written before snapshots were versioned,
// in either snake_case or camelCase.
type legacyHousehold struct {
	ID              uint   `json:"id"`
	HouseholdCode   string `json:"household_code"`
	HouseholdID     string `json:"householdId"`
	OwnerName       string `json:"owner_name"`
	OwnerNameCamel  string `json:"ownerName"`
	Street          string `json:"street"`
	Ward            string `json:"ward"`
	District        string `json:"district"`
	DistrictID      string `json:"district_id"`
	DistrictIDCamel string `json:"districtId"`
	HouseholdType   string `json:"household_type"`
}

func (l legacyHousehold) toSnapshot() (*HouseholdSnapshot, bool) {
	hs := &HouseholdSnapshot{
		ID:            l.ID,
		HouseholdCode: firstNonEmpty(l.HouseholdCode, l.HouseholdID),
		OwnerName:     firstNonEmpty(l.OwnerName, l.OwnerNameCamel),
		Street:        l.Street,
		Ward:          l.Ward,
		District:      l.District,
		DistrictID:    firstNonEmpty(l.DistrictID, l.DistrictIDCamel),
		HouseholdType: l.HouseholdType,
	}
	if hs.OwnerName == "" && hs.HouseholdCode == "" {
		return nil, false
	}
	return hs, true
}

// DecodeSnapshot parses a ledger payload. Tagged payloads are matched against the known
// schemas; untagged payloads are accepted as a nested {"household": {...}} object or as the
// flat household object itself.
func DecodeSnapshot(raw []byte) (Snapshot, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Snapshot{}, ErrEmptySnapshot
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	switch env.Schema {
	case SchemaHousehold, SchemaPerson, SchemaAddress, SchemaSplit:
		var s Snapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return Snapshot{}, fmt.Errorf("failed to parse %s snapshot: %w", env.Schema, err)
		}
		if !s.hasPrimary() {
			return Snapshot{}, fmt.Errorf("%s snapshot missing payload: %w", env.Schema, ErrUnknownSnapshot)
		}
		return s, nil
	case "":
		return decodeLegacy(raw, env)
	default:
		return Snapshot{}, fmt.Errorf("schema %q: %w", env.Schema, ErrUnknownSnapshot)
	}
}

func decodeLegacy(raw []byte, env envelope) (Snapshot, error) {
	target := raw
	if len(env.Household) > 0 && string(env.Household) != "null" {
		target = env.Household
	}
	var l legacyHousehold
	if err := json.Unmarshal(target, &l); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse legacy household snapshot: %w", err)
	}
	hs, ok := l.toSnapshot()
	if !ok {
		return Snapshot{}, ErrUnknownSnapshot
	}
	return Snapshot{Schema: SchemaHousehold, Household: hs}, nil
}

func (s Snapshot) hasPrimary() bool {
	switch s.Schema {
	case SchemaHousehold:
		return s.Household != nil
	case SchemaPerson:
		return s.Person != nil
	case SchemaAddress:
		return s.Address != nil
	case SchemaSplit:
		return s.Split != nil
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
