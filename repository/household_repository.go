package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/facette/natsort"
	"gorm.io/gorm"

	"github.com/camden-git/civicregistry/database"
	"github.com/camden-git/civicregistry/models"
)

type GormHouseholdRepository struct {
	db *gorm.DB
}

func NewGormHouseholdRepository(db *gorm.DB) HouseholdRepository {
	return &GormHouseholdRepository{db: db}
}

func (r *GormHouseholdRepository) WithTx(tx *gorm.DB) HouseholdRepository {
	return &GormHouseholdRepository{db: tx}
}

func (r *GormHouseholdRepository) Create(ctx context.Context, h *models.Household) error {
	if h.Version == 0 {
		h.Version = 1
	}
	return r.db.WithContext(ctx).Omit("Persons", "SplitFrom").Create(h).Error
}

func (r *GormHouseholdRepository) GetByID(ctx context.Context, id uint) (*models.Household, error) {
	var h models.Household
	if err := r.db.WithContext(ctx).First(&h, id).Error; err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *GormHouseholdRepository) GetByIDWithPersons(ctx context.Context, id uint) (*models.Household, error) {
	var h models.Household
	err := r.db.WithContext(ctx).
		Preload("Persons", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&h, id).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *GormHouseholdRepository) GetByCode(ctx context.Context, code string) (*models.Household, error) {
	var h models.Household
	if err := r.db.WithContext(ctx).Where("household_code = ?", code).First(&h).Error; err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *GormHouseholdRepository) ListByIDs(ctx context.Context, ids []uint) ([]models.Household, error) {
	var households []models.Household
	if len(ids) == 0 {
		return households, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&households).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load households by id: %w", err)
	}
	return households, nil
}

func (r *GormHouseholdRepository) List(ctx context.Context, filter HouseholdFilter) ([]models.Household, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Household{})
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("household_code LIKE ? OR owner_name LIKE ?", like, like)
	}
	if filter.DistrictID != "" {
		q = q.Where("district_id = ?", filter.DistrictID)
	}
	if filter.Ward != "" {
		q = q.Where("ward = ?", filter.Ward)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count households: %w", err)
	}

	sortOrder := filter.Sort
	if !database.IsValidSortOrder(sortOrder) {
		sortOrder = database.DefaultSortOrder
	}
	q = q.Order(database.OrderClause(sortOrder))

	var households []models.Household
	if sortOrder == database.SortCodeNat {
		// natural order cannot be expressed portably in SQL, so page after sorting
		if err := q.Find(&households).Error; err != nil {
			return nil, 0, fmt.Errorf("failed to list households: %w", err)
		}
		sort.SliceStable(households, func(i, j int) bool {
			return natsort.Compare(households[i].HouseholdCode, households[j].HouseholdCode)
		})
		return page(households, filter.Offset, filter.Limit), total, nil
	}

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit).Offset(filter.Offset)
	}
	if err := q.Find(&households).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list households: %w", err)
	}
	return households, total, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (r *GormHouseholdRepository) CodeExists(ctx context.Context, code string, excludeID uint) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&models.Household{}).Where("household_code = ?", code)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check household code %s: %w", code, err)
	}
	return count > 0, nil
}

func (r *GormHouseholdRepository) MaxCode(ctx context.Context) (string, bool, error) {
	var h models.Household
	err := r.db.WithContext(ctx).Select("household_code").Order("household_code DESC").Take(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to find greatest household code: %w", err)
	}
	return h.HouseholdCode, true, nil
}

func (r *GormHouseholdRepository) UpdateVersioned(ctx context.Context, h *models.Household, expected int) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Household{}).
		Where("id = ? AND version = ?", h.ID, expected).
		Updates(map[string]interface{}{
			"household_code": h.HouseholdCode,
			"owner_name":     h.OwnerName,
			"street":         h.Street,
			"ward":           h.Ward,
			"district":       h.District,
			"district_id":    h.DistrictID,
			"household_type": h.HouseholdType,
			"issue_date":     h.IssueDate,
			"note":           h.Note,
			"version":        expected + 1,
			"updated_at":     now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update household %d: %w", h.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleVersion
	}
	h.Version = expected + 1
	h.UpdatedAt = now
	return nil
}

func (r *GormHouseholdRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Household{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete household %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
