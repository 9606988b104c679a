package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openledgerworks/bookd-automation/internal/emulator/store"
	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// SessionsHandler handles session lifecycle API endpoints.
type SessionsHandler struct {
	store *store.Store
}

// NewSessionsHandler creates a new SessionsHandler.
func NewSessionsHandler(s *store.Store) *SessionsHandler {
	return &SessionsHandler{store: s}
}

// Open handles POST /api/1/sessions.
// @Summary Open a session
// @Description Open a read-only or read-write session on an existing book
// @Tags sessions
// @Accept json
// @Produce json
// @Success 201 {object} bookd.SessionResponse
// @Failure 404 {object} bookd.ErrorResponse
// @Failure 409 {object} bookd.ErrorResponse
// @Router /sessions [post]
// @Security BearerAuth
func (h *SessionsHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req bookd.OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}
	if req.Path == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Missing path")
		return
	}

	session, err := h.store.OpenSession(&req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Book not found")
			return
		}
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookd.SessionResponse{Session: *session})
}

// Save handles POST /api/1/sessions/{id}/save.
func (h *SessionsHandler) Save(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Invalid session ID")
		return
	}

	book, err := h.store.SaveSession(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Session not found")
			return
		}
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookd.BookResponse{Book: *book})
}

// Close handles DELETE /api/1/sessions/{id}.
func (h *SessionsHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Invalid session ID")
		return
	}

	if err := h.store.CloseSession(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Session not found")
			return
		}
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
