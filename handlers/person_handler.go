package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
	"github.com/camden-git/civicregistry/services"
)

type PersonHandler struct {
	Responder
	Persons *services.PersonService
}

func NewPersonHandler(persons *services.PersonService, rs Responder) *PersonHandler {
	return &PersonHandler{Responder: rs, Persons: persons}
}

// ListPersons godoc
// @Summary List residents
// @Tags persons
// @Produce json
// @Param household_id query int false "Household filter"
// @Param status query string false "ACTIVE, MOVED_OUT or DECEASED"
// @Param q query string false "Search name or identity number"
// @Success 200 {object} ListResponse
// @Router /api/persons [get]
// @Security BearerAuth
func (h *PersonHandler) ListPersons(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.PersonFilter{
		Status: strings.ToUpper(strings.TrimSpace(q.Get("status"))),
		Search: strings.TrimSpace(q.Get("q")),
	}
	if raw := q.Get("household_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid household_id: "+raw)
			return
		}
		filter.HouseholdID = uint(id)
	}
	filter.Limit, filter.Offset = pageParams(r)

	persons, total, err := h.Persons.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if persons == nil {
		persons = []models.Person{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Items: persons, Total: total})
}

func (h *PersonHandler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var in services.CreatePersonInput
	if !decodeJSON(w, r, &in) {
		return
	}
	person, err := h.Persons.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, person)
}

func (h *PersonHandler) GetPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	person, err := h.Persons.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

func (h *PersonHandler) UpdatePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var in services.UpdatePersonInput
	if !decodeJSON(w, r, &in) {
		return
	}
	person, err := h.Persons.Update(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

func (h *PersonHandler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Persons.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveOutPerson records that an active resident left the household.
func (h *PersonHandler) MoveOutPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var in services.MoveOutInput
	if !decodeJSON(w, r, &in) {
		return
	}
	person, err := h.Persons.MoveOut(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

func (h *PersonHandler) MarkDeceased(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var in services.DeceasedInput
	if !decodeJSON(w, r, &in) {
		return
	}
	person, err := h.Persons.MarkDeceased(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}
