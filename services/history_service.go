package services

import (
	"context"

	"github.com/camden-git/civicregistry/logger"
	"github.com/camden-git/civicregistry/metrics"
	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
)

// Where a history row's household view came from.
const (
	RecoveredFromStore       = "store"
	RecoveredFromSnapshot    = "snapshot"
	RecoveredFromPlaceholder = "placeholder"
)

// DeletedOwnerName is shown when nothing about a deleted household survives.
const DeletedOwnerName = "(deleted)"

// HouseholdView is the display form of the household a ledger row refers to.
type HouseholdView struct {
	ID            uint   `json:"id"`
	HouseholdCode string `json:"household_code"`
	OwnerName     string `json:"owner_name"`
	Street        string `json:"street,omitempty"`
	Ward          string `json:"ward,omitempty"`
	District      string `json:"district,omitempty"`
	DistrictID    string `json:"district_id,omitempty"`
	HouseholdType string `json:"household_type,omitempty"`
}

// HistoryRow is a ledger entry joined with its household, live or recovered.
type HistoryRow struct {
	models.HouseholdChangeHistory
	Household        HouseholdView `json:"household"`
	HouseholdDeleted bool          `json:"household_deleted"`
	RecoveredFrom    string        `json:"recovered_from"`
}

// OperationEntries groups every ledger row written by one operation.
type OperationEntries struct {
	OperationID string                          `json:"operation_id"`
	Households  []models.HouseholdChangeHistory `json:"households"`
	Persons     []models.PersonChangeHistory    `json:"persons"`
}

type HistoryService struct {
	households repository.HouseholdRepository
	history    repository.HistoryRepository
	metrics    *metrics.Metrics
	log        *logger.Logger
}

func NewHistoryService(households repository.HouseholdRepository, history repository.HistoryRepository, m *metrics.Metrics, log *logger.Logger) *HistoryService {
	if log == nil {
		log = logger.Nop()
	}
	return &HistoryService{households: households, history: history, metrics: m, log: log}
}

func viewFromHousehold(h *models.Household) HouseholdView {
	return HouseholdView{
		ID:            h.ID,
		HouseholdCode: h.HouseholdCode,
		OwnerName:     h.OwnerName,
		Street:        h.Street,
		Ward:          h.Ward,
		District:      h.District,
		DistrictID:    h.DistrictID,
		HouseholdType: h.HouseholdType,
	}
}

// HouseholdHistory returns ledger rows newest first. Each row's household comes from the
// store when it still exists and is otherwise rebuilt from the row's own snapshots. Only a
// failure to read the ledger itself is returned as an error.
func (s *HistoryService) HouseholdHistory(ctx context.Context, filter repository.HistoryFilter) ([]HistoryRow, error) {
	if filter.ChangeType != "" && !models.IsValidChangeType(filter.ChangeType) {
		return nil, validationf("unknown change type %q", filter.ChangeType)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, validationf("'to' must not be before 'from'")
	}

	live := make(map[uint]*models.Household)
	entries, err := s.history.QueryHousehold(ctx, filter, true)
	if err == nil {
		for i := range entries {
			if h := entries[i].Household; h != nil {
				live[h.ID] = h
			}
		}
	} else {
		s.log.Warnf("History preload failed, falling back to manual join: %v", err)
		entries, err = s.history.QueryHousehold(ctx, filter, false)
		if err != nil {
			return nil, internal(err, "failed to load change history")
		}
		live = s.joinHouseholds(ctx, entries)
	}

	rows := make([]HistoryRow, 0, len(entries))
	for _, e := range entries {
		e.Household = nil
		row := HistoryRow{HouseholdChangeHistory: e}
		if h, ok := live[e.HouseholdID]; ok {
			row.Household = viewFromHousehold(h)
			row.RecoveredFrom = RecoveredFromStore
		} else {
			row.HouseholdDeleted = true
			row.Household, row.RecoveredFrom = recoverHousehold(e)
			s.metrics.IncrementRecovery(row.RecoveredFrom)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// joinHouseholds loads the surviving households referenced by entries. A failure leaves
// every row to snapshot recovery.
func (s *HistoryService) joinHouseholds(ctx context.Context, entries []models.HouseholdChangeHistory) map[uint]*models.Household {
	seen := make(map[uint]struct{})
	var ids []uint
	for _, e := range entries {
		if _, ok := seen[e.HouseholdID]; !ok {
			seen[e.HouseholdID] = struct{}{}
			ids = append(ids, e.HouseholdID)
		}
	}

	live := make(map[uint]*models.Household, len(ids))
	households, err := s.households.ListByIDs(ctx, ids)
	if err != nil {
		s.log.Warnf("Household join for history failed, recovering from snapshots: %v", err)
		return live
	}
	for i := range households {
		live[households[i].ID] = &households[i]
	}
	return live
}

// recoverHousehold rebuilds a household view from the entry's old snapshot, then its new one,
// and falls back to a placeholder carrying the denormalized code.
func recoverHousehold(e models.HouseholdChangeHistory) (HouseholdView, string) {
	for _, raw := range [][]byte{e.OldData, e.NewData} {
		s, err := models.DecodeSnapshot(raw)
		if err != nil {
			continue
		}
		hs, ok := s.HouseholdView()
		if !ok {
			continue
		}
		v := HouseholdView{
			ID:            hs.ID,
			HouseholdCode: firstNonBlank(hs.HouseholdCode, e.HouseholdCode),
			OwnerName:     firstNonBlank(hs.OwnerName, DeletedOwnerName),
			Street:        hs.Street,
			Ward:          hs.Ward,
			District:      hs.District,
			DistrictID:    hs.DistrictID,
			HouseholdType: hs.HouseholdType,
		}
		if v.ID == 0 {
			v.ID = e.HouseholdID
		}
		return v, RecoveredFromSnapshot
	}
	return HouseholdView{
		ID:            e.HouseholdID,
		HouseholdCode: e.HouseholdCode,
		OwnerName:     DeletedOwnerName,
	}, RecoveredFromPlaceholder
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if !blank(v) {
			return v
		}
	}
	return ""
}

// PersonHistory returns a person's ledger rows newest first. The person may no longer exist.
func (s *HistoryService) PersonHistory(ctx context.Context, personID uint, limit int) ([]models.PersonChangeHistory, error) {
	entries, err := s.history.ListByPerson(ctx, personID, limit)
	if err != nil {
		return nil, internal(err, "failed to load person history")
	}
	return entries, nil
}

// Operation returns every ledger row written by one operation.
func (s *HistoryService) Operation(ctx context.Context, operationID string) (*OperationEntries, error) {
	households, persons, err := s.history.ListByOperation(ctx, operationID)
	if err != nil {
		return nil, internal(err, "failed to load operation history")
	}
	if len(households) == 0 && len(persons) == 0 {
		return nil, notFoundf("operation %s not found", operationID)
	}
	return &OperationEntries{OperationID: operationID, Households: households, Persons: persons}, nil
}
