package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/civicregistry/models"
)

// MaxHistoryRows caps every ledger query.
const MaxHistoryRows = 1000

type GormHistoryRepository struct {
	db *gorm.DB
}

func NewGormHistoryRepository(db *gorm.DB) HistoryRepository {
	return &GormHistoryRepository{db: db}
}

func (r *GormHistoryRepository) WithTx(tx *gorm.DB) HistoryRepository {
	return &GormHistoryRepository{db: tx}
}

func (r *GormHistoryRepository) AppendHousehold(ctx context.Context, entry *models.HouseholdChangeHistory) error {
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Omit("Household").Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append %s entry for household %d: %w", entry.ChangeType, entry.HouseholdID, err)
	}
	return nil
}

func (r *GormHistoryRepository) AppendPerson(ctx context.Context, entry *models.PersonChangeHistory) error {
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append %s entry for person %d: %w", entry.ChangeType, entry.PersonID, err)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxHistoryRows {
		return MaxHistoryRows
	}
	return limit
}

func (r *GormHistoryRepository) QueryHousehold(ctx context.Context, filter HistoryFilter, preload bool) ([]models.HouseholdChangeHistory, error) {
	q := r.db.WithContext(ctx).Model(&models.HouseholdChangeHistory{})
	if filter.HouseholdID != nil {
		q = q.Where("household_id = ?", *filter.HouseholdID)
	}
	if filter.ChangeType != "" {
		q = q.Where("change_type = ?", filter.ChangeType)
	}
	if filter.From != nil {
		q = q.Where("changed_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("changed_at <= ?", *filter.To)
	}
	if preload {
		q = q.Preload("Household")
	}

	var entries []models.HouseholdChangeHistory
	err := q.Order("changed_at DESC, id DESC").Limit(clampLimit(filter.Limit)).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query household history: %w", err)
	}
	return entries, nil
}

func (r *GormHistoryRepository) ListByPerson(ctx context.Context, personID uint, limit int) ([]models.PersonChangeHistory, error) {
	var entries []models.PersonChangeHistory
	err := r.db.WithContext(ctx).
		Where("person_id = ?", personID).
		Order("changed_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query history of person %d: %w", personID, err)
	}
	return entries, nil
}

func (r *GormHistoryRepository) ListByOperation(ctx context.Context, operationID string) ([]models.HouseholdChangeHistory, []models.PersonChangeHistory, error) {
	var households []models.HouseholdChangeHistory
	if err := r.db.WithContext(ctx).Where("operation_id = ?", operationID).Order("id ASC").Find(&households).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load household entries of operation %s: %w", operationID, err)
	}
	var persons []models.PersonChangeHistory
	if err := r.db.WithContext(ctx).Where("operation_id = ?", operationID).Order("id ASC").Find(&persons).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load person entries of operation %s: %w", operationID, err)
	}
	return households, persons, nil
}
