package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
	"github.com/camden-git/civicregistry/services"
)

type HistoryHandler struct {
	Responder
	History *services.HistoryService
}

func NewHistoryHandler(history *services.HistoryService, rs Responder) *HistoryHandler {
	return &HistoryHandler{Responder: rs, History: history}
}

const dateOnlyLayout = "2006-01-02"

// parseBound reads a date or RFC3339 time. A bare date used as an upper bound covers the
// whole day.
func parseBound(raw string, upper bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := services.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	if upper && len(raw) == len(dateOnlyLayout) {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// HouseholdHistory godoc
// @Summary Household change history, newest first
// @Description Rows for deleted households are rebuilt from their snapshots.
// @Tags history
// @Produce json
// @Param household_id query int false "Household filter"
// @Param change_type query string false "CREATE, UPDATE, DELETE, ADD, SPLIT, TRANSFER, MOVE_OUT, DECEASED"
// @Param from query string false "Inclusive lower bound (date or RFC3339)"
// @Param to query string false "Inclusive upper bound (date or RFC3339)"
// @Param limit query int false "At most 1000"
// @Success 200 {array} services.HistoryRow
// @Router /api/history/households [get]
// @Security BearerAuth
func (h *HistoryHandler) HouseholdHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.HistoryFilter{
		ChangeType: strings.ToUpper(strings.TrimSpace(q.Get("change_type"))),
	}
	if raw := q.Get("household_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid household_id: "+raw)
			return
		}
		hid := uint(id)
		filter.HouseholdID = &hid
	}
	var err error
	if filter.From, err = parseBound(q.Get("from"), false); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid 'from' date: "+q.Get("from"))
		return
	}
	if filter.To, err = parseBound(q.Get("to"), true); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid 'to' date: "+q.Get("to"))
		return
	}
	filter.Limit, _ = pageParams(r)

	rows, err := h.History.HouseholdHistory(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []services.HistoryRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// PersonHistory returns one resident's change history, including after deletion.
func (h *HistoryHandler) PersonHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	limit, _ := pageParams(r)
	entries, err := h.History.PersonHistory(r.Context(), id, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.PersonChangeHistory{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Operation returns every ledger row written by one operation.
func (h *HistoryHandler) Operation(w http.ResponseWriter, r *http.Request) {
	entries, err := h.History.Operation(r.Context(), chi.URLParam(r, "operationID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
