package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
)

type AdminRoleHandler struct {
	Responder
	RoleRepo repository.RoleRepository
	UserRepo repository.UserRepository
}

func NewAdminRoleHandler(roleRepo repository.RoleRepository, userRepo repository.UserRepository, rs Responder) *AdminRoleHandler {
	return &AdminRoleHandler{Responder: rs, RoleRepo: roleRepo, UserRepo: userRepo}
}

type RolePayload struct {
	Name              *string   `json:"name,omitempty"`
	Description       *string   `json:"description,omitempty"`
	GlobalPermissions *[]string `json:"global_permissions,omitempty"`
}

// UserSummaryDTO is a minimal user representation for embedding in role responses.
type UserSummaryDTO struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
}

type RoleResponseDTO struct {
	models.Role
	Users []UserSummaryDTO `json:"users,omitempty"`
}

func toUserSummaryListDTO(users []models.User) []UserSummaryDTO {
	dtos := make([]UserSummaryDTO, len(users))
	for i, u := range users {
		dtos[i] = UserSummaryDTO{ID: u.ID, Username: u.Username, FullName: u.FullName}
	}
	return dtos
}

// ListRoles godoc
// @Summary List all roles
// @Tags admin-roles
// @Produce json
// @Success 200 {array} models.Role
// @Router /api/admin/roles [get]
// @Security BearerAuth
func (h *AdminRoleHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.RoleRepo.ListAll()
	if err != nil {
		h.internalError(w, r, fmt.Errorf("failed to retrieve roles: %w", err))
		return
	}
	if roles == nil {
		roles = []models.Role{}
	}
	writeJSON(w, http.StatusOK, roles)
}

// GetRole returns a role with its members.
func (h *AdminRoleHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := idParam(w, r, "roleID")
	if !ok {
		return
	}
	role, err := h.RoleRepo.GetByID(roleID)
	if err != nil {
		h.repoError(w, r, err, "Role")
		return
	}
	users, err := h.RoleRepo.FindUsersByRoleID(roleID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RoleResponseDTO{Role: *role, Users: toUserSummaryListDTO(users)})
}

// CreateRole godoc
// @Summary Create a new role
// @Tags admin-roles
// @Accept json
// @Produce json
// @Param role body RolePayload true "Role payload"
// @Success 201 {object} models.Role
// @Router /api/admin/roles [post]
// @Security BearerAuth
func (h *AdminRoleHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var payload RolePayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.Name == nil || strings.TrimSpace(*payload.Name) == "" {
		writeMessage(w, http.StatusBadRequest, "Role name is required")
		return
	}
	name := strings.TrimSpace(*payload.Name)
	if name == models.SuperAdminRoleName {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("Role name '%s' is reserved", models.SuperAdminRoleName))
		return
	}

	role := &models.Role{Name: name, GlobalPermissions: []string{}}
	if payload.Description != nil {
		role.Description = strings.TrimSpace(*payload.Description)
	}
	if payload.GlobalPermissions != nil {
		if !validatePermissionKeys(w, *payload.GlobalPermissions) {
			return
		}
		role.GlobalPermissions = *payload.GlobalPermissions
	}

	if err := h.RoleRepo.Create(role); err != nil {
		h.repoError(w, r, err, "Role")
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

// UpdateRole patches a role. The super administrator role is managed at startup and is read-only.
func (h *AdminRoleHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := idParam(w, r, "roleID")
	if !ok {
		return
	}
	var payload RolePayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	role, err := h.RoleRepo.GetByID(roleID)
	if err != nil {
		h.repoError(w, r, err, "Role")
		return
	}
	if role.Name == models.SuperAdminRoleName {
		writeMessage(w, http.StatusForbidden, fmt.Sprintf("The '%s' role cannot be modified", models.SuperAdminRoleName))
		return
	}

	if payload.Name != nil {
		name := strings.TrimSpace(*payload.Name)
		if name == "" {
			writeMessage(w, http.StatusBadRequest, "Role name cannot be empty")
			return
		}
		if name == models.SuperAdminRoleName {
			writeMessage(w, http.StatusBadRequest, fmt.Sprintf("Role name '%s' is reserved", models.SuperAdminRoleName))
			return
		}
		role.Name = name
	}
	if payload.Description != nil {
		role.Description = strings.TrimSpace(*payload.Description)
	}
	if payload.GlobalPermissions != nil {
		if !validatePermissionKeys(w, *payload.GlobalPermissions) {
			return
		}
		role.GlobalPermissions = *payload.GlobalPermissions
	}

	if err := h.RoleRepo.Update(role); err != nil {
		h.repoError(w, r, err, "Role")
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (h *AdminRoleHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := idParam(w, r, "roleID")
	if !ok {
		return
	}
	role, err := h.RoleRepo.GetByID(roleID)
	if err != nil {
		h.repoError(w, r, err, "Role")
		return
	}
	if role.Name == models.SuperAdminRoleName {
		writeMessage(w, http.StatusForbidden, fmt.Sprintf("The '%s' role cannot be deleted", models.SuperAdminRoleName))
		return
	}
	if err := h.RoleRepo.Delete(roleID); err != nil {
		h.repoError(w, r, err, "Role")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roleMemberPayload struct {
	UserID uint `json:"user_id"`
}

// AddUserToRole assigns a role to a user.
func (h *AdminRoleHandler) AddUserToRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := idParam(w, r, "roleID")
	if !ok {
		return
	}
	var payload roleMemberPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if _, err := h.RoleRepo.GetByID(roleID); err != nil {
		h.repoError(w, r, err, "Role")
		return
	}
	if _, err := h.UserRepo.GetByID(payload.UserID); err != nil {
		h.repoError(w, r, err, "User")
		return
	}
	if err := h.RoleRepo.AddUserToRole(payload.UserID, roleID); err != nil {
		h.internalError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "User added to role")
}

func (h *AdminRoleHandler) RemoveUserFromRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := idParam(w, r, "roleID")
	if !ok {
		return
	}
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	if err := h.RoleRepo.RemoveUserFromRole(userID, roleID); err != nil {
		h.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
