package store

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

var (
	// ErrBookExists is returned when a book already exists at the requested path.
	ErrBookExists = errors.New("book already exists")

	// ErrBookLocked is returned when a book is held by a read-write session.
	ErrBookLocked = errors.New("book is locked")
)

// CreateBook creates a new book at the requested path.
// With Overwrite set, an existing unlocked book at the path is dropped
// together with all of its data and replaced by a fresh one.
func (s *Store) CreateBook(req *bookd.CreateBookRequest) (*bookd.Book, error) {
	if req.Path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalid)
	}
	if req.BaseCurrency == "" {
		return nil, fmt.Errorf("%w: base_currency is required", ErrInvalid)
	}

	existing, err := s.GetBookByPath(req.Path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if !req.Overwrite {
			return nil, fmt.Errorf("%w: %s", ErrBookExists, req.Path)
		}
		if _, held := s.lockHolder(req.Path); held {
			return nil, fmt.Errorf("%w: %s", ErrBookLocked, req.Path)
		}
		if err := s.dropBook(existing); err != nil {
			return nil, fmt.Errorf("failed to drop existing book: %w", err)
		}
	}

	id, err := s.NextID(BucketBooks)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}

	book := &bookd.Book{
		ID:           id,
		Path:         req.Path,
		BaseCurrency: req.BaseCurrency,
		CreatedAt:    time.Now(),
	}

	if err := s.Put(BucketBooks, id, book); err != nil {
		return nil, fmt.Errorf("failed to save book: %w", err)
	}
	if err := s.PutString(BucketBookPaths, req.Path, strconv.FormatInt(id, 10)); err != nil {
		return nil, fmt.Errorf("failed to index book path: %w", err)
	}

	return book, nil
}

// GetBook retrieves a book by ID.
func (s *Store) GetBook(id int64) (*bookd.Book, error) {
	var book bookd.Book
	if err := s.Get(BucketBooks, id, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// GetBookByPath retrieves a book by its path.
func (s *Store) GetBookByPath(path string) (*bookd.Book, error) {
	idStr, err := s.GetString(BucketBookPaths, path)
	if err != nil {
		return nil, err
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt book path index for %s: %w", path, err)
	}

	return s.GetBook(id)
}

// MarkBookSaved stamps the book's saved_at time.
func (s *Store) MarkBookSaved(id int64) (*bookd.Book, error) {
	book, err := s.GetBook(id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	book.SavedAt = &now

	if err := s.Put(BucketBooks, id, book); err != nil {
		return nil, fmt.Errorf("failed to update book: %w", err)
	}

	return book, nil
}

// dropBook removes a book together with its accounts, transactions,
// import rules, and prices.
func (s *Store) dropBook(book *bookd.Book) error {
	for _, bucket := range []string{BucketAccounts, BucketTransactions, BucketImportRules, BucketPrices} {
		if _, err := s.DeleteMatching(bucket, byBookID(book.ID)); err != nil {
			return err
		}
	}

	if err := s.DeleteString(BucketBookPaths, book.Path); err != nil {
		return err
	}
	return s.Delete(BucketBooks, book.ID)
}

// tryLockBook records the read-write session holding a book. The check and
// the claim happen in one transaction so concurrent opens cannot both win.
func (s *Store) tryLockBook(path string, sessionID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketLocks))
		if b == nil {
			return fmt.Errorf("bucket %s not found", BucketLocks)
		}

		if b.Get([]byte(path)) != nil {
			return fmt.Errorf("%w: %s", ErrBookLocked, path)
		}
		return b.Put([]byte(path), []byte(strconv.FormatInt(sessionID, 10)))
	})
}

// unlockBook releases a book's read-write lock.
func (s *Store) unlockBook(path string) error {
	err := s.DeleteString(BucketLocks, path)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// lockHolder returns the session holding a book's read-write lock, if any.
func (s *Store) lockHolder(path string) (int64, bool) {
	idStr, err := s.GetString(BucketLocks, path)
	if err != nil {
		return 0, false
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, false
	}

	return id, true
}
