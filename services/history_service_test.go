package services

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"gorm.io/datatypes"

	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
)

// noPreloadHistory fails every preloaded query, as a store without the relation would.
type noPreloadHistory struct {
	repository.HistoryRepository
}

func (r noPreloadHistory) QueryHousehold(ctx context.Context, filter repository.HistoryFilter, preload bool) ([]models.HouseholdChangeHistory, error) {
	if preload {
		return nil, errors.New("relation households not available")
	}
	return r.HistoryRepository.QueryHousehold(ctx, filter, false)
}

type HistoryServiceSuite struct {
	registrySuite
}

func TestHistoryServiceSuite(t *testing.T) {
	suite.Run(t, new(HistoryServiceSuite))
}

func (s *HistoryServiceSuite) appendRaw(householdID uint, code string, oldData, newData []byte) {
	entry := models.HouseholdChangeHistory{
		HouseholdID:   householdID,
		HouseholdCode: code,
		ChangeType:    models.ChangeUpdate,
		ChangedAt:     time.Now().UTC(),
		Description:   "imported",
		OldData:       datatypes.JSON(oldData),
		NewData:       datatypes.JSON(newData),
		OperationID:   "import-" + code,
	}
	s.Require().NoError(s.history.AppendHousehold(s.ctx, &entry))
}

func (s *HistoryServiceSuite) byCode(rows []HistoryRow) map[string]HistoryRow {
	out := make(map[string]HistoryRow, len(rows))
	for _, r := range rows {
		if _, seen := out[r.HouseholdCode]; !seen {
			out[r.HouseholdCode] = r
		}
	}
	return out
}

func (s *HistoryServiceSuite) TestLiveHouseholdComesFromStore() {
	h := s.register("HK0001", member("Owner", "owner", ""))

	rows, err := s.historySvc.HouseholdHistory(s.ctx, repository.HistoryFilter{})
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.False(rows[0].HouseholdDeleted)
	s.Equal(RecoveredFromStore, rows[0].RecoveredFrom)
	s.Equal(h.OwnerName, rows[0].Household.OwnerName)
	s.Equal("12 Hang Bac", rows[0].Household.Street)
}

func (s *HistoryServiceSuite) TestDeletedHouseholdIsRecoveredFromSnapshot() {
	h := s.register("HK0001", member("Owner", "owner", ""))
	s.Require().NoError(s.personSvc.Delete(s.ctx, h.Persons[0].ID))
	s.Require().NoError(s.householdSvc.Delete(s.ctx, h.ID))

	rows, err := s.historySvc.HouseholdHistory(s.ctx, repository.HistoryFilter{HouseholdID: &h.ID})
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	for _, row := range rows {
		s.True(row.HouseholdDeleted)
		s.Equal(RecoveredFromSnapshot, row.RecoveredFrom)
		s.Equal("HK0001", row.Household.HouseholdCode)
		s.Equal("Nguyen Thi Lan", row.Household.OwnerName)
		s.Equal(h.ID, row.Household.ID)
	}
	s.Equal(models.ChangeDelete, rows[0].ChangeType)
	s.Equal(2.0, promtest.ToFloat64(s.metrics.HistoryRecoveries.WithLabelValues(RecoveredFromSnapshot)))
}

func (s *HistoryServiceSuite) TestRecoveryFallbacks() {
	s.appendRaw(9001, "OLD1", nil, nil)
	s.appendRaw(9002, "OLD2", []byte(`{"ownerName":"Tran Van Cu","householdId":"HK-77"}`), nil)
	s.appendRaw(9003, "OLD3", []byte(`not json`), []byte(`{"household":{"owner_name":"Le Thi Moi","household_code":"HK0900"}}`))
	s.appendRaw(9004, "OLD4", []byte(`{"schema":"person/v1","person":{"id":1,"full_name":"Someone"}}`), nil)

	rows, err := s.historySvc.HouseholdHistory(s.ctx, repository.HistoryFilter{})
	s.Require().NoError(err)
	s.Require().Len(rows, 4)
	got := s.byCode(rows)

	placeholder := got["OLD1"]
	s.True(placeholder.HouseholdDeleted)
	s.Equal(RecoveredFromPlaceholder, placeholder.RecoveredFrom)
	s.Equal(DeletedOwnerName, placeholder.Household.OwnerName)
	s.Equal("OLD1", placeholder.Household.HouseholdCode)
	s.EqualValues(9001, placeholder.Household.ID)

	legacy := got["OLD2"]
	s.Equal(RecoveredFromSnapshot, legacy.RecoveredFrom)
	s.Equal("Tran Van Cu", legacy.Household.OwnerName)
	s.Equal("HK-77", legacy.Household.HouseholdCode)
	s.EqualValues(9002, legacy.Household.ID)

	fromNew := got["OLD3"]
	s.Equal(RecoveredFromSnapshot, fromNew.RecoveredFrom)
	s.Equal("Le Thi Moi", fromNew.Household.OwnerName)

	personOnly := got["OLD4"]
	s.Equal(RecoveredFromPlaceholder, personOnly.RecoveredFrom)
	s.Equal(DeletedOwnerName, personOnly.Household.OwnerName)
}

func (s *HistoryServiceSuite) TestPreloadFailureFallsBackToManualJoin() {
	live := s.register("HK0001", member("Owner", "owner", ""))
	s.appendRaw(9001, "GONE", nil, nil)

	svc := NewHistoryService(s.households, noPreloadHistory{s.history}, s.metrics, nil)
	rows, err := svc.HouseholdHistory(s.ctx, repository.HistoryFilter{})
	s.Require().NoError(err)
	s.Require().Len(rows, 2)

	got := s.byCode(rows)
	s.Equal(RecoveredFromStore, got["HK0001"].RecoveredFrom)
	s.Equal(live.OwnerName, got["HK0001"].Household.OwnerName)
	s.False(got["HK0001"].HouseholdDeleted)
	s.Equal(RecoveredFromPlaceholder, got["GONE"].RecoveredFrom)
}

func (s *HistoryServiceSuite) TestFilters() {
	h := s.register("HK0001", member("Owner", "owner", ""))
	_, err := s.householdSvc.Update(s.ctx, h.ID, UpdateHouseholdInput{Note: strPtr("renovated")})
	s.Require().NoError(err)

	rows, err := s.historySvc.HouseholdHistory(s.ctx, repository.HistoryFilter{ChangeType: models.ChangeUpdate})
	s.Require().NoError(err)
	s.Len(rows, 1)

	rows, err = s.historySvc.HouseholdHistory(s.ctx, repository.HistoryFilter{})
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal(models.ChangeUpdate, rows[0].ChangeType, "newest first")

	rows, err = s.historySvc.HouseholdHistory(s.ctx, repository.HistoryFilter{Limit: 1})
	s.Require().NoError(err)
	s.Len(rows, 1)

	_, err = s.historySvc.HouseholdHistory(s.ctx, repository.HistoryFilter{ChangeType: "RENAME"})
	s.True(IsKind(err, KindValidation))

	from := time.Now().UTC()
	to := from.Add(-time.Hour)
	_, err = s.historySvc.HouseholdHistory(s.ctx, repository.HistoryFilter{From: &from, To: &to})
	s.True(IsKind(err, KindValidation))
}

func (s *HistoryServiceSuite) TestOperationAndPersonHistory() {
	h := s.register("HK0001", member("Owner", "owner", ""), member("Child", "son", ""))
	events := s.events.all()
	s.Require().Len(events, 1)

	op, err := s.historySvc.Operation(s.ctx, events[0].OperationID)
	s.Require().NoError(err)
	s.Len(op.Households, 1)
	s.Len(op.Persons, 2)

	_, err = s.historySvc.Operation(s.ctx, "does-not-exist")
	s.True(IsKind(err, KindNotFound))

	child := h.Persons[1].ID
	_, err = s.personSvc.MoveOut(s.ctx, child, MoveOutInput{Place: "Da Nang"})
	s.Require().NoError(err)
	s.Require().NoError(s.personSvc.Delete(s.ctx, child))

	entries, err := s.historySvc.PersonHistory(s.ctx, child, 0)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	types := []string{entries[0].ChangeType, entries[1].ChangeType, entries[2].ChangeType}
	s.ElementsMatch([]string{models.ChangeAdd, models.ChangeMoveOut, models.ChangeDelete}, types)
}
