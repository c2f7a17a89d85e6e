package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/civicregistry/models"
)

type GormResidenceRepository struct {
	db *gorm.DB
}

func NewGormResidenceRepository(db *gorm.DB) ResidenceRepository {
	return &GormResidenceRepository{db: db}
}

func (r *GormResidenceRepository) Create(ctx context.Context, res *models.TemporaryResidence) error {
	if res.Status == "" {
		res.Status = models.PermitActive
	}
	return r.db.WithContext(ctx).Create(res).Error
}

func (r *GormResidenceRepository) GetByID(ctx context.Context, id uint) (*models.TemporaryResidence, error) {
	var res models.TemporaryResidence
	if err := r.db.WithContext(ctx).First(&res, id).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *GormResidenceRepository) List(ctx context.Context, filter ResidenceFilter) ([]models.TemporaryResidence, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.TemporaryResidence{})
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.PersonID != 0 {
		q = q.Where("person_id = ?", filter.PersonID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count permits: %w", err)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit).Offset(filter.Offset)
	}
	var permits []models.TemporaryResidence
	if err := q.Order("to_date DESC, id DESC").Find(&permits).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list permits: %w", err)
	}
	return permits, total, nil
}

func (r *GormResidenceRepository) Update(ctx context.Context, res *models.TemporaryResidence) error {
	return r.db.WithContext(ctx).Save(res).Error
}

func (r *GormResidenceRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.TemporaryResidence{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete permit %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormResidenceRepository) ExpireEnded(ctx context.Context, ref time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.TemporaryResidence{}).
		Where("status = ? AND to_date < ?", models.PermitActive, ref).
		Updates(map[string]interface{}{"status": models.PermitExpired, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire permits: %w", result.Error)
	}
	return result.RowsAffected, nil
}
