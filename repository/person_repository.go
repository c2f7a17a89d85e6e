package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/civicregistry/models"
)

type GormPersonRepository struct {
	db *gorm.DB
}

func NewGormPersonRepository(db *gorm.DB) PersonRepository {
	return &GormPersonRepository{db: db}
}

func (r *GormPersonRepository) WithTx(tx *gorm.DB) PersonRepository {
	return &GormPersonRepository{db: tx}
}

func (r *GormPersonRepository) Create(ctx context.Context, p *models.Person) error {
	if p.Status == "" {
		p.Status = models.StatusActive
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error
}

func (r *GormPersonRepository) GetByID(ctx context.Context, id uint) (*models.Person, error) {
	var p models.Person
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormPersonRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Person, error) {
	var persons []models.Person
	if len(ids) == 0 {
		return persons, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&persons).Error; err != nil {
		return nil, fmt.Errorf("failed to load persons by id: %w", err)
	}
	return persons, nil
}

func (r *GormPersonRepository) ListByHousehold(ctx context.Context, householdID uint) ([]models.Person, error) {
	var persons []models.Person
	err := r.db.WithContext(ctx).Where("household_id = ?", householdID).Order("id ASC").Find(&persons).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list persons of household %d: %w", householdID, err)
	}
	return persons, nil
}

func (r *GormPersonRepository) List(ctx context.Context, filter PersonFilter) ([]models.Person, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Person{})
	if filter.HouseholdID != 0 {
		q = q.Where("household_id = ?", filter.HouseholdID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("full_name LIKE ? OR identity_number LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count persons: %w", err)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit).Offset(filter.Offset)
	}

	var persons []models.Person
	if err := q.Order("full_name ASC, id ASC").Find(&persons).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list persons: %w", err)
	}
	return persons, total, nil
}

func (r *GormPersonRepository) CountByHousehold(ctx context.Context, householdID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Person{}).Where("household_id = ?", householdID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count persons of household %d: %w", householdID, err)
	}
	return count, nil
}

func (r *GormPersonRepository) IdentityNumberExists(ctx context.Context, number string, excludeID uint) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&models.Person{}).Where("identity_number = ?", number)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check identity number: %w", err)
	}
	return count > 0, nil
}

func (r *GormPersonRepository) Update(ctx context.Context, p *models.Person) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(p).Error
}

func (r *GormPersonRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Person{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete person %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
