package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// ErrAccountExists is returned when an account with the same full name
// already exists in the book.
var ErrAccountExists = errors.New("account already exists")

// accountRecord scopes an account to its book in storage.
type accountRecord struct {
	BookID int64 `json:"book_id"`
	bookd.Account
}

var validAccountTypes = map[string]bool{
	bookd.AccountTypeAsset:     true,
	bookd.AccountTypeLiability: true,
	bookd.AccountTypeEquity:    true,
	bookd.AccountTypeIncome:    true,
	bookd.AccountTypeExpense:   true,
}

// CreateAccount creates a new account in the book.
// The commodity defaults to the book's base currency. The full name is
// derived from the parent's full name and the account name.
func (s *Store) CreateAccount(book *bookd.Book, req *bookd.NewAccount) (*bookd.Account, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.Contains(req.Name, bookd.FullNameSeparator) {
		return nil, fmt.Errorf("%w: name must not contain %q", ErrInvalid, bookd.FullNameSeparator)
	}
	if !validAccountTypes[req.Type] {
		return nil, fmt.Errorf("%w: unknown account type %q", ErrInvalid, req.Type)
	}

	fullName := req.Name
	if req.ParentID != nil {
		parent, err := s.GetAccount(book.ID, *req.ParentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: parent account %d not found", ErrInvalid, *req.ParentID)
			}
			return nil, err
		}
		fullName = parent.FullName + bookd.FullNameSeparator + req.Name
	}

	if existing, err := s.FindAccountByFullName(book.ID, fullName); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, fullName)
	}

	commodity := req.Commodity
	if commodity == "" {
		commodity = book.BaseCurrency
	}

	id, err := s.NextID(BucketAccounts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}

	record := &accountRecord{
		BookID: book.ID,
		Account: bookd.Account{
			ID:          id,
			ParentID:    req.ParentID,
			Name:        req.Name,
			FullName:    fullName,
			Type:        req.Type,
			Commodity:   commodity,
			Placeholder: req.Placeholder,
		},
	}

	if err := s.Put(BucketAccounts, id, record); err != nil {
		return nil, fmt.Errorf("failed to save account: %w", err)
	}

	account := record.Account
	return &account, nil
}

// GetAccount retrieves an account by ID, scoped to a book.
func (s *Store) GetAccount(bookID, id int64) (*bookd.Account, error) {
	var record accountRecord
	if err := s.Get(BucketAccounts, id, &record); err != nil {
		return nil, err
	}
	if record.BookID != bookID {
		return nil, ErrNotFound
	}

	account := record.Account
	return &account, nil
}

// ListAccounts retrieves all accounts in a book, sorted by full name.
func (s *Store) ListAccounts(bookID int64) ([]bookd.Account, error) {
	results, err := s.List(BucketAccounts, byBookID(bookID))
	if err != nil {
		return nil, err
	}

	accounts := make([]bookd.Account, 0, len(results))
	for _, data := range results {
		var record accountRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal account: %w", err)
		}
		accounts = append(accounts, record.Account)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].FullName < accounts[j].FullName
	})

	return accounts, nil
}

// FindAccountByFullName retrieves the account with the given full name,
// or nil if the book has none.
func (s *Store) FindAccountByFullName(bookID int64, fullName string) (*bookd.Account, error) {
	accounts, err := s.ListAccounts(bookID)
	if err != nil {
		return nil, err
	}

	for i := range accounts {
		if accounts[i].FullName == fullName {
			return &accounts[i], nil
		}
	}

	return nil, nil
}

// byBookID filters stored records by their book ID.
func byBookID(bookID int64) func(data []byte) bool {
	return func(data []byte) bool {
		var rec struct {
			BookID int64 `json:"book_id"`
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return false
		}
		return rec.BookID == bookID
	}
}
