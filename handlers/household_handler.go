package handlers

import (
	"net/http"
	"strings"

	"github.com/camden-git/civicregistry/database"
	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
	"github.com/camden-git/civicregistry/services"
)

type HouseholdHandler struct {
	Responder
	Households *services.HouseholdService
}

func NewHouseholdHandler(households *services.HouseholdService, rs Responder) *HouseholdHandler {
	return &HouseholdHandler{Responder: rs, Households: households}
}

// ListHouseholds godoc
// @Summary List households
// @Tags households
// @Produce json
// @Param q query string false "Search code or owner name"
// @Param district_id query string false "District filter"
// @Param ward query string false "Ward filter"
// @Param sort query string false "code_nat (default), code_asc, issue_date_desc, issue_date_asc, owner_asc"
// @Success 200 {object} ListResponse
// @Router /api/households [get]
// @Security BearerAuth
func (h *HouseholdHandler) ListHouseholds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.HouseholdFilter{
		Search:     strings.TrimSpace(q.Get("q")),
		DistrictID: q.Get("district_id"),
		Ward:       q.Get("ward"),
		Sort:       q.Get("sort"),
	}
	if filter.Sort != "" && !database.IsValidSortOrder(filter.Sort) {
		writeMessage(w, http.StatusBadRequest, "Invalid sort order: "+filter.Sort)
		return
	}
	filter.Limit, filter.Offset = pageParams(r)

	households, total, err := h.Households.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if households == nil {
		households = []models.Household{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Items: households, Total: total})
}

// RegisterHousehold godoc
// @Summary Register a household with its members
// @Tags households
// @Accept json
// @Produce json
// @Param household body services.RegisterHouseholdInput true "Household and members"
// @Success 201 {object} models.Household
// @Failure 400 {object} APIError
// @Router /api/households [post]
// @Security BearerAuth
func (h *HouseholdHandler) RegisterHousehold(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterHouseholdInput
	if !decodeJSON(w, r, &in) {
		return
	}
	household, err := h.Households.Register(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, household)
}

func (h *HouseholdHandler) GetHousehold(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	household, err := h.Households.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, household)
}

// UpdateHousehold patches household fields. Sending "version" makes the update fail with 409
// when someone else changed the household first.
func (h *HouseholdHandler) UpdateHousehold(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var in services.UpdateHouseholdInput
	if !decodeJSON(w, r, &in) {
		return
	}
	household, err := h.Households.Update(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, household)
}

func (h *HouseholdHandler) DeleteHousehold(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Households.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type nextCodeResponse struct {
	HouseholdCode string `json:"household_code"`
}

// NextHouseholdCode suggests the next free household code, based on ?old= when given and on
// the greatest stored code otherwise.
func (h *HouseholdHandler) NextHouseholdCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.Households.SuggestNextCode(r.Context(), strings.TrimSpace(r.URL.Query().Get("old")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nextCodeResponse{HouseholdCode: code})
}

// SplitHousehold godoc
// @Summary Split members into a new household
// @Tags households
// @Accept json
// @Produce json
// @Param id path int true "Source household ID"
// @Param split body services.SplitHouseholdInput true "Split request"
// @Success 201 {object} services.SplitResult
// @Failure 400 {object} APIError
// @Failure 409 {object} APIError
// @Router /api/households/{id}/split [post]
// @Security BearerAuth
func (h *HouseholdHandler) SplitHousehold(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var in services.SplitHouseholdInput
	if !decodeJSON(w, r, &in) {
		return
	}
	result, err := h.Households.Split(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *HouseholdHandler) TransferHousehold(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var in services.TransferHouseholdInput
	if !decodeJSON(w, r, &in) {
		return
	}
	result, err := h.Households.Transfer(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HouseholdHandler) ListHouseholdPersons(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	persons, err := h.Households.ListPersons(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if persons == nil {
		persons = []models.Person{}
	}
	writeJSON(w, http.StatusOK, persons)
}
