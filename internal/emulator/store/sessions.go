package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// ErrReadOnlySession is returned when a write is attempted through a
// read-only session.
var ErrReadOnlySession = errors.New("session is read-only")

// OpenSession opens a session on the book at the requested path.
// A read-write session takes the book's exclusive lock; opening one while
// another read-write session holds the book fails with ErrBookLocked.
func (s *Store) OpenSession(req *bookd.OpenSessionRequest) (*bookd.Session, error) {
	mode := req.Mode
	if mode == "" {
		mode = bookd.OpenReadOnly
	}
	if mode != bookd.OpenReadOnly && mode != bookd.OpenReadWrite {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalid, req.Mode)
	}

	book, err := s.GetBookByPath(req.Path)
	if err != nil {
		return nil, err
	}

	id, err := s.NextID(BucketSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}

	if mode == bookd.OpenReadWrite {
		if err := s.tryLockBook(book.Path, id); err != nil {
			return nil, err
		}
	}

	session := &bookd.Session{
		ID:           id,
		BookID:       book.ID,
		BookPath:     book.Path,
		BaseCurrency: book.BaseCurrency,
		Mode:         mode,
		OpenedAt:     time.Now(),
	}

	if err := s.Put(BucketSessions, id, session); err != nil {
		_ = s.unlockBook(book.Path)
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(id int64) (*bookd.Session, error) {
	var session bookd.Session
	if err := s.Get(BucketSessions, id, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SaveSession saves the session's book, stamping its saved_at time.
// Only read-write sessions may save.
func (s *Store) SaveSession(id int64) (*bookd.Book, error) {
	session, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}

	if session.Mode != bookd.OpenReadWrite {
		return nil, fmt.Errorf("%w: cannot save", ErrReadOnlySession)
	}

	return s.MarkBookSaved(session.BookID)
}

// CloseSession closes a session, releasing the book's lock if the session
// held it.
func (s *Store) CloseSession(id int64) error {
	session, err := s.GetSession(id)
	if err != nil {
		return err
	}

	if session.Mode == bookd.OpenReadWrite {
		if holder, held := s.lockHolder(session.BookPath); held && holder == id {
			if err := s.unlockBook(session.BookPath); err != nil {
				return fmt.Errorf("failed to unlock book: %w", err)
			}
		}
	}

	return s.Delete(BucketSessions, id)
}

// WritableSession retrieves a session and checks it can write.
func (s *Store) WritableSession(id int64) (*bookd.Session, error) {
	session, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	if session.Mode != bookd.OpenReadWrite {
		return nil, ErrReadOnlySession
	}
	return session, nil
}
