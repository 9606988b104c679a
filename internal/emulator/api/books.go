package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openledgerworks/bookd-automation/internal/emulator/store"
	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// BooksHandler handles book-related API endpoints.
type BooksHandler struct {
	store *store.Store
}

// NewBooksHandler creates a new BooksHandler.
func NewBooksHandler(s *store.Store) *BooksHandler {
	return &BooksHandler{store: s}
}

// Get handles GET /api/1/books.
// @Summary Look up a book
// @Description Get a book by path without opening a session on it
// @Tags books
// @Produce json
// @Param path query string true "Book path"
// @Success 200 {object} bookd.BookResponse
// @Failure 404 {object} bookd.ErrorResponse
// @Router /books [get]
// @Security BearerAuth
func (h *BooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "Missing path")
		return
	}

	book, err := h.store.GetBookByPath(path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "Book not found")
			return
		}
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookd.BookResponse{Book: *book})
}

// Create handles POST /api/1/books.
// The new book is returned as an open read-write session.
func (h *BooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req bookd.CreateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return
	}

	book, err := h.store.CreateBook(&req)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	session, err := h.store.OpenSession(&bookd.OpenSessionRequest{
		Path: book.Path,
		Mode: bookd.OpenReadWrite,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookd.SessionResponse{Session: *session})
}
