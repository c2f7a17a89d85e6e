package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/camden-git/civicregistry/logger"
	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/permissions"
	"github.com/camden-git/civicregistry/repository"
)

var errSetupCompleted = errors.New("setup already completed")

type SetupHandler struct {
	Responder
	UserRepo repository.UserRepository
	RoleRepo repository.RoleRepository
	DB       *gorm.DB
}

func NewSetupHandler(db *gorm.DB, userRepo repository.UserRepository, roleRepo repository.RoleRepository, rs Responder) *SetupHandler {
	return &SetupHandler{Responder: rs, UserRepo: userRepo, RoleRepo: roleRepo, DB: db}
}

type FirstAdminPayload struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// SyncSuperAdminRole ensures the Super Administrator role exists and has all defined permissions.
// It is idempotent and runs on every startup.
func SyncSuperAdminRole(roleRepo repository.RoleRepository, log *logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}
	allPerms := permissions.GetAllPermissionKeys()

	role, err := roleRepo.GetByName(models.SuperAdminRoleName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Infof("'%s' role not found, creating...", models.SuperAdminRoleName)
			newRole := &models.Role{
				Name:              models.SuperAdminRoleName,
				Description:       "Every permission, kept in sync at startup.",
				GlobalPermissions: allPerms,
			}
			if err := roleRepo.Create(newRole); err != nil {
				return fmt.Errorf("failed to create '%s' role: %w", models.SuperAdminRoleName, err)
			}
			return nil
		}
		return fmt.Errorf("failed to query for '%s' role: %w", models.SuperAdminRoleName, err)
	}

	current := append([]string(nil), role.GlobalPermissions...)
	sort.Strings(current)
	if reflect.DeepEqual(current, allPerms) {
		log.Debugf("'%s' role is up to date", models.SuperAdminRoleName)
		return nil
	}

	log.Infof("'%s' role is outdated, updating permissions...", models.SuperAdminRoleName)
	role.GlobalPermissions = allPerms
	if err := roleRepo.Update(role); err != nil {
		return fmt.Errorf("failed to update '%s' role permissions: %w", models.SuperAdminRoleName, err)
	}
	return nil
}

// CreateFirstAdmin creates the initial administrator. It only works while no users exist.
func (h *SetupHandler) CreateFirstAdmin(w http.ResponseWriter, r *http.Request) {
	count, err := h.UserRepo.Count()
	if err != nil {
		h.internalError(w, r, fmt.Errorf("failed to count users: %w", err))
		return
	}
	if count > 0 {
		writeMessage(w, http.StatusForbidden, "Setup has already been completed")
		return
	}

	var payload FirstAdminPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	payload.Username = strings.TrimSpace(payload.Username)
	if payload.Username == "" || payload.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	var admin *models.User
	txErr := h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		var innerCount int64
		if err := tx.Model(&models.User{}).Count(&innerCount).Error; err != nil {
			return fmt.Errorf("failed to count existing users in transaction: %w", err)
		}
		if innerCount > 0 {
			return errSetupCompleted
		}

		var superAdminRole models.Role
		if err := tx.Where("name = ?", models.SuperAdminRoleName).First(&superAdminRole).Error; err != nil {
			return fmt.Errorf("could not find the '%s' role: %w", models.SuperAdminRoleName, err)
		}

		admin = &models.User{Username: payload.Username, FullName: payload.FullName, IsActive: true}
		if err := admin.SetPassword(payload.Password); err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		if err := tx.Omit("Roles.*").Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
		if err := tx.Create(&models.UserRole{UserID: admin.ID, RoleID: superAdminRole.ID}).Error; err != nil {
			return fmt.Errorf("failed to assign super admin role to user: %w", err)
		}
		return nil
	})

	if txErr != nil {
		if errors.Is(txErr, errSetupCompleted) {
			writeMessage(w, http.StatusForbidden, "Setup has already been completed")
			return
		}
		h.internalError(w, r, txErr)
		return
	}

	if h.Log != nil {
		h.Log.Infof("Created initial admin user '%s' with %s role", admin.Username, models.SuperAdminRoleName)
	}
	writeMessage(w, http.StatusCreated, "Initial admin user created. Please log in.")
}
