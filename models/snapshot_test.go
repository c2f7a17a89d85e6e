package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTaggedSnapshots(t *testing.T) {
	h := &Household{ID: 7, HouseholdCode: "HK0007", OwnerName: "Pham Van Duc", Street: "3 Hang Ma", Version: 2,
		IssueDate: time.Date(2021, 5, 4, 0, 0, 0, 0, time.UTC)}
	rel := "son"
	p := &Person{ID: 11, HouseholdID: 7, FullName: "Pham Van Long", Relationship: &rel, Status: StatusActive}

	raw, err := NewHouseholdSnapshot(h).JSON()
	require.NoError(t, err)
	s, err := DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, SchemaHousehold, s.Schema)
	hv, ok := s.HouseholdView()
	require.True(t, ok)
	assert.Equal(t, "Pham Van Duc", hv.OwnerName)
	assert.Equal(t, 2, hv.Version)

	raw, err = NewAddressSnapshot(h.Address(), h).WithPerson(p).JSON()
	require.NoError(t, err)
	s, err = DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, SchemaAddress, s.Schema)
	assert.Equal(t, "3 Hang Ma", s.Address.Street)
	require.NotNil(t, s.Person)
	assert.Equal(t, "son", *s.Person.Relationship)
	_, ok = s.HouseholdView()
	assert.True(t, ok)

	split := SplitSnapshot{SourceHouseholdID: 7, DestinationHouseholdID: 8, PersonIDs: []uint{11}}
	raw, err = NewSplitSnapshot(split, nil).JSON()
	require.NoError(t, err)
	s, err = DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, []uint{11}, s.Split.PersonIDs)
	_, ok = s.HouseholdView()
	assert.False(t, ok)
}

func TestDecodeLegacySnapshots(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		wantCode  string
		wantOwner string
	}{
		{"flat snake case", `{"household_code":"HK0100","owner_name":"Le Van Hung","street":"1 Ba Trieu"}`, "HK0100", "Le Van Hung"},
		{"flat camel case", `{"householdId":"HK0101","ownerName":"Le Thi Mai"}`, "HK0101", "Le Thi Mai"},
		{"nested household", `{"household":{"household_code":"HK0102","owner_name":"Do Van Tam"}}`, "HK0102", "Do Van Tam"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := DecodeSnapshot([]byte(tc.raw))
			require.NoError(t, err)
			hv, ok := s.HouseholdView()
			require.True(t, ok)
			assert.Equal(t, tc.wantCode, hv.HouseholdCode)
			assert.Equal(t, tc.wantOwner, hv.OwnerName)
		})
	}
}

func TestDecodeSnapshotErrors(t *testing.T) {
	_, err := DecodeSnapshot(nil)
	assert.ErrorIs(t, err, ErrEmptySnapshot)
	_, err = DecodeSnapshot([]byte("null"))
	assert.ErrorIs(t, err, ErrEmptySnapshot)

	_, err = DecodeSnapshot([]byte("{not json"))
	assert.Error(t, err)

	_, err = DecodeSnapshot([]byte(`{"schema":"household/v9","household":{}}`))
	assert.ErrorIs(t, err, ErrUnknownSnapshot)

	_, err = DecodeSnapshot([]byte(`{"schema":"person/v1"}`))
	assert.ErrorIs(t, err, ErrUnknownSnapshot)

	_, err = DecodeSnapshot([]byte(`{"street":"only an address"}`))
	assert.ErrorIs(t, err, ErrUnknownSnapshot)
}

func TestChangeTypeAndStatusValues(t *testing.T) {
	for _, ct := range []string{ChangeCreate, ChangeUpdate, ChangeDelete, ChangeAdd, ChangeSplit, ChangeTransfer, ChangeMoveOut, ChangeDeceased} {
		assert.True(t, IsValidChangeType(ct), ct)
	}
	assert.False(t, IsValidChangeType("create"))
	assert.True(t, IsValidPersonStatus(StatusMovedOut))
	assert.False(t, IsValidPersonStatus("MOVED"))
	assert.True(t, IsValidGender(GenderOther))
	assert.False(t, IsValidGender("female"))
	assert.True(t, IsValidPermitKind(PermitAbsence))
}
