package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/civicregistry/logger"
	"github.com/camden-git/civicregistry/services"
)

const internalErrorMessage = "Internal server error"

// APIError is the body of every non-2xx response.
type APIError struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"` // only in diagnostic mode
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeMessage writes {"message": msg} with the given status.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIError{Message: msg})
}

// Responder maps service errors to responses. Diagnostic adds the underlying cause to 500s.
type Responder struct {
	Diagnostic bool
	Log        *logger.Logger
}

func statusForKind(kind services.Kind) int {
	switch kind {
	case services.KindValidation, services.KindConflict:
		return http.StatusBadRequest
	case services.KindStale:
		return http.StatusConflict
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (rs Responder) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *services.Error
	if !errors.As(err, &se) {
		se = &services.Error{Kind: services.KindInternal, Err: err}
	}
	status := statusForKind(se.Kind)
	if status < http.StatusInternalServerError {
		writeMessage(w, status, se.Message)
		return
	}

	if rs.Log != nil {
		rs.Log.Errorf(err, "%s %s failed", r.Method, r.URL.Path)
	}
	body := APIError{Message: internalErrorMessage}
	if rs.Diagnostic {
		body.Detail = err.Error()
	}
	writeJSON(w, status, body)
}

// internalError reports a failure that did not come from a service.
func (rs Responder) internalError(w http.ResponseWriter, r *http.Request, err error) {
	rs.writeServiceError(w, r, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

// idParam parses a positive integer URL parameter, writing a 400 when it is malformed.
func idParam(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid "+name+": "+raw)
		return 0, false
	}
	return uint(id), true
}

// pageParams reads limit and offset query parameters.
func pageParams(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListResponse wraps a page of results with the unpaged total.
type ListResponse struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
}
