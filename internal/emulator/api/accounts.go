package api

import (
	"encoding/json"
	"net/http"

	"github.com/openledgerworks/bookd-automation/internal/emulator/store"
	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// AccountsHandler handles account and balance API endpoints.
type AccountsHandler struct {
	store *store.Store
}

// NewAccountsHandler creates a new AccountsHandler.
func NewAccountsHandler(s *store.Store) *AccountsHandler {
	return &AccountsHandler{store: s}
}

// List handles GET /api/1/sessions/{id}/accounts.
// @Summary List accounts
// @Description Get all accounts of the session's book, sorted by full name
// @Tags accounts
// @Produce json
// @Success 200 {object} bookd.AccountsResponse
// @Failure 404 {object} bookd.ErrorResponse
// @Router /sessions/{id}/accounts [get]
// @Security BearerAuth
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	_, book, ok := resolveSession(h.store, w, r)
	if !ok {
		return
	}

	accounts, err := h.store.ListAccounts(book.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookd.AccountsResponse{Accounts: accounts})
}

// Create handles POST /api/1/sessions/{id}/accounts.
func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	_, book, ok := resolveWritableSession(h.store, w, r)
	if !ok {
		return
	}

	var req bookd.NewAccount
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}

	account, err := h.store.CreateAccount(book, &req)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookd.AccountResponse{Account: *account})
}

// Balances handles GET /api/1/sessions/{id}/balances.
func (h *AccountsHandler) Balances(w http.ResponseWriter, r *http.Request) {
	_, book, ok := resolveSession(h.store, w, r)
	if !ok {
		return
	}

	asOf := r.URL.Query().Get("as_of")
	if asOf == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Missing as_of")
		return
	}

	balances, err := h.store.BalancesAsOf(book.ID, asOf)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookd.BalancesResponse{AsOf: asOf, Balances: balances})
}
