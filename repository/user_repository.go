package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/civicregistry/models"
)

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(user *models.User) error {
	return r.db.Omit("Roles.*").Create(user).Error
}

func (r *GormUserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.Preload("Roles").First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) GetByUsername(username string) (*models.User, error) {
	var user models.User
	if err := r.db.Preload("Roles").Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) Update(user *models.User) error {
	return r.db.Omit("Roles").Save(user).Error
}

func (r *GormUserRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.UserRole{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *GormUserRepository) ListAll() ([]models.User, error) {
	var users []models.User
	err := r.db.Preload("Roles").Order("username ASC").Find(&users).Error
	return users, err
}

func (r *GormUserRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

func (r *GormUserRepository) AddRoleToUser(userID uint, roleID uint) error {
	userRole := models.UserRole{UserID: userID, RoleID: roleID}
	// avoid error if association already exists
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&userRole).Error
}

func (r *GormUserRepository) RemoveRoleFromUser(userID uint, roleID uint) error {
	return r.db.Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&models.UserRole{}).Error
}

func (r *GormUserRepository) GetUserRoles(userID uint) ([]models.Role, error) {
	var user models.User
	if err := r.db.Preload("Roles").First(&user, userID).Error; err != nil {
		return nil, err
	}

	roles := make([]models.Role, 0, len(user.Roles))
	for _, rPtr := range user.Roles {
		if rPtr != nil {
			roles = append(roles, *rPtr)
		}
	}
	return roles, nil
}

func (r *GormUserRepository) SetUserGlobalPermissions(userID uint, permissions []string) error {
	// Updates with a struct so the json serializer applies
	return r.db.Model(&models.User{ID: userID}).Select("GlobalPermissions").Updates(&models.User{GlobalPermissions: permissions}).Error
}
