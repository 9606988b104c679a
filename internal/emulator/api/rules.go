package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openledgerworks/bookd-automation/internal/emulator/store"
	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// RulesHandler handles import rule API endpoints.
type RulesHandler struct {
	store *store.Store
}

// NewRulesHandler creates a new RulesHandler.
func NewRulesHandler(s *store.Store) *RulesHandler {
	return &RulesHandler{store: s}
}

// List handles GET /api/1/sessions/{id}/import-rules.
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	_, book, ok := resolveSession(h.store, w, r)
	if !ok {
		return
	}

	rules, err := h.store.ListImportRules(book.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookd.ImportRulesResponse{ImportRules: rules})
}

// Create handles POST /api/1/sessions/{id}/import-rules.
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	_, book, ok := resolveWritableSession(h.store, w, r)
	if !ok {
		return
	}

	var req bookd.NewImportRule
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}

	rule, err := h.store.CreateImportRule(book.ID, req.Token, req.Account, req.Weight)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookd.ImportRuleResponse{ImportRule: *rule})
}

// Copy handles POST /api/1/import-rules/copy.
// It replaces the target book's rule table with the source book's.
// The target session must be read-write.
func (h *RulesHandler) Copy(w http.ResponseWriter, r *http.Request) {
	var req bookd.CopyImportRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}

	src, err := h.store.GetSession(req.SourceSessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Source session not found")
			return
		}
		writeStoreError(w, err)
		return
	}

	dst, err := h.store.WritableSession(req.TargetSessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Target session not found")
			return
		}
		writeStoreError(w, err)
		return
	}

	copied, err := h.store.CopyImportRules(src.BookID, dst.BookID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookd.CopyImportRulesResponse{Copied: copied})
}
