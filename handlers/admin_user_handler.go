package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/permissions"
	"github.com/camden-git/civicregistry/repository"
)

type AdminUserHandler struct {
	Responder
	UserRepo repository.UserRepository
	RoleRepo repository.RoleRepository // for validating role IDs
}

func NewAdminUserHandler(userRepo repository.UserRepository, roleRepo repository.RoleRepository, rs Responder) *AdminUserHandler {
	return &AdminUserHandler{Responder: rs, UserRepo: userRepo, RoleRepo: roleRepo}
}

type UserCreatePayload struct {
	Username          string   `json:"username"`
	FullName          string   `json:"full_name"`
	Password          string   `json:"password"`
	RoleIDs           []uint   `json:"role_ids"`
	GlobalPermissions []string `json:"global_permissions"`
}

type UserUpdatePayload struct {
	FullName          *string   `json:"full_name,omitempty"`
	Password          *string   `json:"password,omitempty"`
	IsActive          *bool     `json:"is_active,omitempty"`
	RoleIDs           *[]uint   `json:"role_ids,omitempty"` // full replacement
	GlobalPermissions *[]string `json:"global_permissions,omitempty"`
}

// repoError maps a repository error to a response. what names the entity.
func (rs Responder) repoError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeMessage(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		writeMessage(w, http.StatusBadRequest, what+" already exists")
	default:
		rs.internalError(w, r, err)
	}
}

func validatePermissionKeys(w http.ResponseWriter, keys []string) bool {
	if bad := permissions.InvalidKeys(keys); len(bad) > 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid permission keys: "+strings.Join(bad, ", "))
		return false
	}
	return true
}

// resolveRoles checks every role id exists, writing a 400 for the first missing one.
func (h *AdminUserHandler) resolveRoles(w http.ResponseWriter, r *http.Request, ids []uint) bool {
	for _, roleID := range ids {
		if _, err := h.RoleRepo.GetByID(roleID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				writeMessage(w, http.StatusBadRequest, fmt.Sprintf("Role with ID %d not found", roleID))
			} else {
				h.internalError(w, r, err)
			}
			return false
		}
	}
	return true
}

// ListUsers godoc
// @Summary List all users
// @Tags admin-users
// @Produce json
// @Success 200 {array} models.User
// @Router /api/admin/users [get]
// @Security BearerAuth
func (h *AdminUserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.UserRepo.ListAll()
	if err != nil {
		h.internalError(w, r, fmt.Errorf("failed to retrieve users: %w", err))
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// GetUser godoc
// @Summary Get a single user by ID
// @Tags admin-users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Router /api/admin/users/{id} [get]
// @Security BearerAuth
func (h *AdminUserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	user, err := h.UserRepo.GetByID(userID)
	if err != nil {
		h.repoError(w, r, err, "User")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// CreateUser godoc
// @Summary Create a new user
// @Tags admin-users
// @Accept json
// @Produce json
// @Param user body UserCreatePayload true "User creation payload"
// @Success 201 {object} models.User
// @Router /api/admin/users [post]
// @Security BearerAuth
func (h *AdminUserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var payload UserCreatePayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	payload.Username = strings.TrimSpace(payload.Username)
	if payload.Username == "" || payload.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	if !validatePermissionKeys(w, payload.GlobalPermissions) || !h.resolveRoles(w, r, payload.RoleIDs) {
		return
	}

	user := &models.User{
		Username:          payload.Username,
		FullName:          strings.TrimSpace(payload.FullName),
		GlobalPermissions: payload.GlobalPermissions,
		IsActive:          true,
	}
	if user.GlobalPermissions == nil {
		user.GlobalPermissions = []string{}
	}
	if err := user.SetPassword(payload.Password); err != nil {
		h.internalError(w, r, fmt.Errorf("failed to hash password: %w", err))
		return
	}
	if err := h.UserRepo.Create(user); err != nil {
		h.repoError(w, r, err, "User")
		return
	}
	for _, roleID := range payload.RoleIDs {
		if err := h.UserRepo.AddRoleToUser(user.ID, roleID); err != nil {
			h.internalError(w, r, fmt.Errorf("failed to assign role %d: %w", roleID, err))
			return
		}
	}

	created, err := h.UserRepo.GetByID(user.ID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdateUser godoc
// @Summary Update an existing user
// @Tags admin-users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param user body UserUpdatePayload true "User update payload"
// @Success 200 {object} models.User
// @Router /api/admin/users/{id} [put]
// @Security BearerAuth
func (h *AdminUserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var payload UserUpdatePayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	user, err := h.UserRepo.GetByID(userID)
	if err != nil {
		h.repoError(w, r, err, "User")
		return
	}

	if payload.FullName != nil {
		user.FullName = strings.TrimSpace(*payload.FullName)
	}
	if payload.IsActive != nil {
		if current, ok := userFromContext(r.Context()); ok && current.ID == user.ID && !*payload.IsActive {
			writeMessage(w, http.StatusBadRequest, "You cannot deactivate your own account")
			return
		}
		user.IsActive = *payload.IsActive
	}
	if payload.Password != nil && *payload.Password != "" {
		if err := user.SetPassword(*payload.Password); err != nil {
			h.internalError(w, r, fmt.Errorf("failed to set new password: %w", err))
			return
		}
	}
	if payload.GlobalPermissions != nil {
		if !validatePermissionKeys(w, *payload.GlobalPermissions) {
			return
		}
		user.GlobalPermissions = *payload.GlobalPermissions
	}
	if payload.RoleIDs != nil && !h.resolveRoles(w, r, *payload.RoleIDs) {
		return
	}

	if err := h.UserRepo.Update(user); err != nil {
		h.repoError(w, r, err, "User")
		return
	}
	if payload.RoleIDs != nil {
		if err := h.replaceRoles(user, *payload.RoleIDs); err != nil {
			h.internalError(w, r, err)
			return
		}
	}

	updated, err := h.UserRepo.GetByID(user.ID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AdminUserHandler) replaceRoles(user *models.User, roleIDs []uint) error {
	want := make(map[uint]bool, len(roleIDs))
	for _, id := range roleIDs {
		want[id] = true
	}
	for _, role := range user.Roles {
		if role != nil && !want[role.ID] {
			if err := h.UserRepo.RemoveRoleFromUser(user.ID, role.ID); err != nil {
				return fmt.Errorf("failed to remove role %d: %w", role.ID, err)
			}
		}
	}
	for id := range want {
		if err := h.UserRepo.AddRoleToUser(user.ID, id); err != nil {
			return fmt.Errorf("failed to assign role %d: %w", id, err)
		}
	}
	return nil
}

// DeleteUser godoc
// @Summary Delete a user
// @Tags admin-users
// @Param id path int true "User ID"
// @Success 204 "No Content"
// @Router /api/admin/users/{id} [delete]
// @Security BearerAuth
func (h *AdminUserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if current, ok := userFromContext(r.Context()); ok && current.ID == userID {
		writeMessage(w, http.StatusBadRequest, "You cannot delete your own account")
		return
	}
	if err := h.UserRepo.Delete(userID); err != nil {
		h.repoError(w, r, err, "User")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
