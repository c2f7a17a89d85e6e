package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
	"github.com/camden-git/civicregistry/services"
)

type ResidenceHandler struct {
	Responder
	Residences *services.ResidenceService
}

func NewResidenceHandler(residences *services.ResidenceService, rs Responder) *ResidenceHandler {
	return &ResidenceHandler{Responder: rs, Residences: residences}
}

func (h *ResidenceHandler) ListResidences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ResidenceFilter{
		Kind:   strings.ToUpper(strings.TrimSpace(q.Get("kind"))),
		Status: strings.ToUpper(strings.TrimSpace(q.Get("status"))),
	}
	if raw := q.Get("person_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid person_id: "+raw)
			return
		}
		filter.PersonID = uint(id)
	}
	filter.Limit, filter.Offset = pageParams(r)

	permits, total, err := h.Residences.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if permits == nil {
		permits = []models.TemporaryResidence{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Items: permits, Total: total})
}

func (h *ResidenceHandler) CreateResidence(w http.ResponseWriter, r *http.Request) {
	var in services.ResidenceInput
	if !decodeJSON(w, r, &in) {
		return
	}
	permit, err := h.Residences.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, permit)
}

func (h *ResidenceHandler) GetResidence(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	permit, err := h.Residences.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permit)
}

func (h *ResidenceHandler) UpdateResidence(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var in services.ResidenceInput
	if !decodeJSON(w, r, &in) {
		return
	}
	permit, err := h.Residences.Update(r.Context(), id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permit)
}

func (h *ResidenceHandler) RevokeResidence(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	permit, err := h.Residences.Revoke(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permit)
}

func (h *ResidenceHandler) DeleteResidence(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Residences.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
