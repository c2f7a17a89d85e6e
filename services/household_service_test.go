package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/camden-git/civicregistry/models"
)

type HouseholdServiceSuite struct {
	registrySuite
}

func TestHouseholdServiceSuite(t *testing.T) {
	suite.Run(t, new(HouseholdServiceSuite))
}

func (s *HouseholdServiceSuite) TestRegister() {
	s.Run("writes one ADD per member and one CREATE", func() {
		h := s.register("HK0041",
			member("Nguyen Thi Lan", "chủ hộ", "001085000111"),
			member("Tran Van Minh", "husband", "001085000222"),
			member("Tran Minh Anh", "daughter", ""),
		)

		s.Len(h.Persons, 3)
		s.Equal(1, h.Version)
		s.EqualValues(1, s.count(&models.HouseholdChangeHistory{}, "household_id = ? AND change_type = ?", h.ID, models.ChangeCreate))
		s.EqualValues(1, s.count(&models.HouseholdChangeHistory{}, "household_id = ?", h.ID))

		operations := map[string]bool{}
		for _, p := range h.Persons {
			entries := s.personEntries(p.ID)
			s.Require().Len(entries, 1)
			s.Equal(models.ChangeAdd, entries[0].ChangeType)
			s.Equal("clerk", entries[0].ChangedBy)
			operations[entries[0].OperationID] = true
		}
		s.Len(operations, 1, "all rows share one operation id")

		events := s.events.all()
		s.Require().Len(events, 1)
		s.Equal(models.ChangeCreate, events[0].ChangeType)
		s.True(operations[events[0].OperationID])
	})

	s.Run("stores owner relationship as nil", func() {
		h := s.register("HK0050", member("Le Van Hung", "Owner", ""), member("Le Thi Mai", "wife", ""))
		s.Nil(h.Persons[0].Relationship)
		s.Require().NotNil(h.Persons[1].Relationship)
		s.Equal("wife", *h.Persons[1].Relationship)
	})
}

func (s *HouseholdServiceSuite) TestRegisterDerivesCode() {
	first := s.register("", member("Pham Van Duc", "owner", ""))
	s.Equal(FirstHouseholdCode, first.HouseholdCode)

	second := s.register("", member("Pham Thi Hoa", "owner", ""))
	s.Equal("HK0002", second.HouseholdCode)
}

func (s *HouseholdServiceSuite) TestRegisterValidation() {
	s.Run("blank household field", func() {
		in := registerInput("HK0100", member("A", "owner", ""))
		in.Ward = "  "
		_, err := s.householdSvc.Register(s.ctx, in)
		s.True(IsKind(err, KindValidation))
		s.Contains(err.Error(), "ward is required")
	})

	s.Run("duplicate code is checked before members", func() {
		s.register("HK0101", member("A", "owner", ""))
		_, err := s.householdSvc.Register(s.ctx, registerInput("HK0101"))
		s.True(IsKind(err, KindConflict))
	})

	s.Run("empty member list", func() {
		_, err := s.householdSvc.Register(s.ctx, registerInput("HK0102"))
		s.True(IsKind(err, KindValidation))
		s.Contains(err.Error(), "at least one member")
	})

	s.Run("first invalid member is reported 1-indexed", func() {
		bad := member("", "son", "")
		alsoBad := member("X", "", "")
		_, err := s.householdSvc.Register(s.ctx, registerInput("HK0103", member("A", "owner", ""), bad, alsoBad))
		s.True(IsKind(err, KindValidation))
		s.Contains(err.Error(), "member 2:")
	})

	s.Run("identity number format", func() {
		_, err := s.householdSvc.Register(s.ctx, registerInput("HK0104", member("A", "owner", "12AB")))
		s.True(IsKind(err, KindValidation))
	})

	s.EqualValues(1, s.count(&models.Household{}, ""))
}

func (s *HouseholdServiceSuite) TestRegisterIdentityCollisionLeavesNoHousehold() {
	s.register("HK0001", member("Nguyen Van A", "owner", "001090000001"))

	_, err := s.householdSvc.Register(s.ctx, registerInput("HK0002",
		member("Nguyen Van B", "owner", "001090000009"),
		member("Nguyen Van C", "son", "001090000001"),
	))
	s.Require().Error(err)
	s.True(IsKind(err, KindConflict))
	s.Contains(err.Error(), "member 2")

	s.EqualValues(0, s.count(&models.Household{}, "household_code = ?", "HK0002"))
	s.EqualValues(1, s.count(&models.Person{}, ""))
	s.EqualValues(1, s.count(&models.HouseholdChangeHistory{}, ""))
	s.EqualValues(1, s.count(&models.PersonChangeHistory{}, ""))
	s.Len(s.events.all(), 1)
}

func (s *HouseholdServiceSuite) TestConcurrentRegistrationsWithSameCode() {
	const code = "HK0777"
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.householdSvc.Register(s.ctx, registerInput(code, member("Racer", "owner", "")))
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case IsKind(err, KindConflict):
			conflicted++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, succeeded)
	s.Equal(1, conflicted)
	s.EqualValues(1, s.count(&models.Household{}, "household_code = ?", code))
	s.EqualValues(1, s.count(&models.Person{}, ""))
}

func (s *HouseholdServiceSuite) TestUpdate() {
	h := s.register("HK0001", member("Owner", "owner", ""))

	s.Run("bumps version and records snapshots", func() {
		updated, err := s.householdSvc.Update(s.ctx, h.ID, UpdateHouseholdInput{
			OwnerName:       strPtr("New Owner"),
			ExpectedVersion: intPtr(1),
		})
		s.Require().NoError(err)
		s.Equal(2, updated.Version)
		s.Equal("New Owner", updated.OwnerName)

		rows, err := s.history.QueryHousehold(s.ctx, historyFilterFor(h.ID, models.ChangeUpdate), false)
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		before, _ := s.decode(rows[0].OldData).HouseholdView()
		after, _ := s.decode(rows[0].NewData).HouseholdView()
		s.Equal("Nguyen Thi Lan", before.OwnerName)
		s.Equal("New Owner", after.OwnerName)
	})

	s.Run("stale version is rejected", func() {
		_, err := s.householdSvc.Update(s.ctx, h.ID, UpdateHouseholdInput{
			Ward:            strPtr("Hang Gai"),
			ExpectedVersion: intPtr(1),
		})
		s.True(IsKind(err, KindStale))
	})

	s.Run("code collision", func() {
		s.register("HK0002", member("Other", "owner", ""))
		_, err := s.householdSvc.Update(s.ctx, h.ID, UpdateHouseholdInput{HouseholdCode: strPtr("HK0002")})
		s.True(IsKind(err, KindConflict))
	})

	s.Run("blank field", func() {
		_, err := s.householdSvc.Update(s.ctx, h.ID, UpdateHouseholdInput{Street: strPtr(" ")})
		s.True(IsKind(err, KindValidation))
	})

	s.Run("missing household", func() {
		_, err := s.householdSvc.Update(s.ctx, 9999, UpdateHouseholdInput{Street: strPtr("x")})
		s.True(IsKind(err, KindNotFound))
	})
}

func (s *HouseholdServiceSuite) TestDelete() {
	h := s.register("HK0001", member("Owner", "owner", ""))

	err := s.householdSvc.Delete(s.ctx, h.ID)
	s.Require().Error(err)
	s.True(IsKind(err, KindValidation))
	s.EqualValues(1, s.count(&models.Household{}, ""))
	s.EqualValues(1, s.count(&models.Person{}, ""))
	s.EqualValues(0, s.count(&models.HouseholdChangeHistory{}, "change_type = ?", models.ChangeDelete))

	s.Require().NoError(s.personSvc.Delete(s.ctx, h.Persons[0].ID))
	s.Require().NoError(s.householdSvc.Delete(s.ctx, h.ID))
	s.EqualValues(0, s.count(&models.Household{}, ""))

	rows, err := s.history.QueryHousehold(s.ctx, historyFilterFor(h.ID, models.ChangeDelete), false)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Empty(rows[0].NewData)
	gone, ok := s.decode(rows[0].OldData).HouseholdView()
	s.Require().True(ok)
	s.Equal("HK0001", gone.HouseholdCode)

	s.True(IsKind(s.householdSvc.Delete(s.ctx, h.ID), KindNotFound))
}

func (s *HouseholdServiceSuite) TestSplit() {
	src := s.register("HK0010",
		member("Hoang Van Nam", "owner", "001070000010"),
		member("Hoang Van Binh", "son", "001095000011"),
		member("Do Thi Thu", "daughter-in-law", "001096000012"),
	)
	moving := []uint{src.Persons[1].ID, src.Persons[2].ID}

	res, err := s.householdSvc.Split(s.ctx, src.ID, SplitHouseholdInput{
		OwnerName:       "Hoang Van Binh",
		PersonIDs:       moving,
		Relationships:   map[uint]string{moving[0]: "owner", moving[1]: "wife"},
		Reason:          "marriage",
		SplitDate:       &Date{Time: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)},
		ExpectedVersion: intPtr(1),
	})
	s.Require().NoError(err)

	s.Equal("HK0011", res.NewHousehold.HouseholdCode)
	s.Equal(src.Street, res.NewHousehold.Street)
	s.Require().NotNil(res.NewHousehold.SplitFromID)
	s.Equal(src.ID, *res.NewHousehold.SplitFromID)
	s.Equal(2, res.Source.Version)
	s.Len(res.MovedPersons, 2)

	for _, pid := range moving {
		p, err := s.persons.GetByID(s.ctx, pid)
		s.Require().NoError(err)
		s.Equal(res.NewHousehold.ID, p.HouseholdID)

		entries := s.personEntries(pid)
		s.Require().Len(entries, 2)
		split := findPersonEntry(entries, models.ChangeSplit)
		s.Require().NotNil(split)
		s.Equal(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), split.ChangedAt.UTC())
		s.Equal(res.OperationID, split.OperationID)
		s.Equal(src.ID, s.decode(split.OldData).Person.HouseholdID)
		s.Equal(res.NewHousehold.ID, s.decode(split.NewData).Person.HouseholdID)
	}
	newOwner, _ := s.persons.GetByID(s.ctx, moving[0])
	s.Nil(newOwner.Relationship)

	remaining, err := s.persons.ListByHousehold(s.ctx, src.ID)
	s.Require().NoError(err)
	s.Len(remaining, 1)

	s.EqualValues(2, s.count(&models.HouseholdChangeHistory{}, "operation_id = ? AND change_type = ?", res.OperationID, models.ChangeSplit))
	events := s.events.all()
	last := events[len(events)-1]
	s.Equal(models.ChangeSplit, last.ChangeType)
	s.Equal([]uint{res.NewHousehold.ID}, last.RelatedIDs)
}

func (s *HouseholdServiceSuite) TestSplitRejections() {
	src := s.register("HK0020", member("A", "owner", ""), member("B", "son", ""))
	other := s.register("HK0030", member("C", "owner", ""))

	s.Run("stale version", func() {
		_, err := s.householdSvc.Split(s.ctx, src.ID, SplitHouseholdInput{
			OwnerName: "B", PersonIDs: []uint{src.Persons[1].ID}, ExpectedVersion: intPtr(7),
		})
		s.True(IsKind(err, KindStale))
	})

	s.Run("person from another household", func() {
		_, err := s.householdSvc.Split(s.ctx, src.ID, SplitHouseholdInput{
			OwnerName: "C", PersonIDs: []uint{other.Persons[0].ID},
		})
		s.True(IsKind(err, KindValidation))
	})

	s.Run("unknown person", func() {
		_, err := s.householdSvc.Split(s.ctx, src.ID, SplitHouseholdInput{OwnerName: "X", PersonIDs: []uint{4242}})
		s.True(IsKind(err, KindNotFound))
	})

	s.Run("taken code", func() {
		_, err := s.householdSvc.Split(s.ctx, src.ID, SplitHouseholdInput{
			NewHouseholdCode: "HK0030", OwnerName: "B", PersonIDs: []uint{src.Persons[1].ID},
		})
		s.True(IsKind(err, KindConflict))
	})

	s.Run("duplicate person ids", func() {
		id := src.Persons[1].ID
		_, err := s.householdSvc.Split(s.ctx, src.ID, SplitHouseholdInput{OwnerName: "B", PersonIDs: []uint{id, id}})
		s.True(IsKind(err, KindValidation))
	})

	s.EqualValues(2, s.count(&models.Household{}, ""))
	s.EqualValues(2, s.count(&models.Person{}, "household_id = ?", src.ID))
}

func (s *HouseholdServiceSuite) TestTransfer() {
	h := s.register("HK0040", member("A", "owner", ""), member("B", "son", ""), member("C", "mother", ""))
	_, err := s.personSvc.MarkDeceased(s.ctx, h.Persons[2].ID, DeceasedInput{})
	s.Require().NoError(err)

	res, err := s.householdSvc.Transfer(s.ctx, h.ID, TransferHouseholdInput{
		Street: "5 Ly Thuong Kiet", Ward: "Phan Chu Trinh", District: "Hoan Kiem", DistrictID: "HK",
		Reason: "relocation",
	})
	s.Require().NoError(err)
	s.Equal("12 Hang Bac", res.OldAddress.Street)
	s.Equal("5 Ly Thuong Kiet", res.Household.Street)
	s.Equal(2, res.Household.Version)

	stored, err := s.households.GetByID(s.ctx, h.ID)
	s.Require().NoError(err)
	s.Equal("Phan Chu Trinh", stored.Ward)

	s.EqualValues(1, s.count(&models.HouseholdChangeHistory{}, "operation_id = ? AND change_type = ?", res.OperationID, models.ChangeTransfer))
	s.EqualValues(3, s.count(&models.PersonChangeHistory{}, "operation_id = ? AND change_type = ?", res.OperationID, models.ChangeMoveOut))
	s.EqualValues(1, s.count(&models.PersonChangeHistory{}, "operation_id = ? AND person_id = ?", res.OperationID, h.Persons[2].ID),
		"deceased members stay attached and are recorded too")

	_, err = s.householdSvc.Transfer(s.ctx, h.ID, TransferHouseholdInput{Street: "x", Ward: "y", District: "z"})
	s.True(IsKind(err, KindValidation))
}

func (s *HouseholdServiceSuite) TestListPersonsOfMissingHousehold() {
	_, err := s.householdSvc.ListPersons(s.ctx, 12345)
	s.True(IsKind(err, KindNotFound))
}

func intPtr(v int) *int { return &v }

func findPersonEntry(entries []models.PersonChangeHistory, changeType string) *models.PersonChangeHistory {
	for i := range entries {
		if entries[i].ChangeType == changeType {
			return &entries[i]
		}
	}
	return nil
}
