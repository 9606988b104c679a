package rollover

import (
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// fakeService is an in-memory BookService for engine tests. It mirrors the
// bookd semantics the engine relies on: path-addressed books, session
// handles, full names derived from the parent, and nearest-date price
// lookup. Balances are seeded by tests rather than derived from
// transactions.
type fakeService struct {
	books    map[string]*fakeBook
	sessions map[int64]*fakeSession
	nextID   int64

	// balances returned by ListBalances, keyed by book path.
	balances map[string][]bookd.Balance
	// lastAsOf records the as-of date of the most recent balance read.
	lastAsOf string

	// error injection
	openErr      map[string]error
	balancesErr  error
	createTxnErr map[int]error // keyed by 1-based transaction write ordinal
	saveErr      error
	copyRulesErr error

	txnWrites int
}

type fakeBook struct {
	book     bookd.Book
	accounts []bookd.Account
	txns     []bookd.Transaction
	rules    []bookd.ImportRule
	prices   []bookd.Price
}

type fakeSession struct {
	path string
	mode bookd.OpenMode
}

var _ BookService = (*fakeService)(nil)

func newFakeService() *fakeService {
	return &fakeService{
		books:        make(map[string]*fakeBook),
		sessions:     make(map[int64]*fakeSession),
		nextID:       100, // leaves room for hand-picked fixture IDs
		balances:     make(map[string][]bookd.Balance),
		openErr:      make(map[string]error),
		createTxnErr: make(map[int]error),
	}
}

func (f *fakeService) id() int64 {
	f.nextID++
	return f.nextID
}

// seedBook registers a saved book at the given path.
func (f *fakeService) seedBook(path, baseCurrency string) *fakeBook {
	now := time.Now()
	fb := &fakeBook{
		book: bookd.Book{
			ID:           f.id(),
			Path:         path,
			BaseCurrency: baseCurrency,
			CreatedAt:    now,
			SavedAt:      &now,
		},
	}
	f.books[path] = fb
	return fb
}

func (f *fakeService) seedBalance(path string, accountID int64, fullName, commodity, amount string) {
	f.balances[path] = append(f.balances[path], bookd.Balance{
		AccountID: accountID,
		FullName:  fullName,
		Commodity: commodity,
		Amount:    decimal.RequireFromString(amount),
	})
}

func (f *fakeService) sessionBook(sessionID int64) (*fakeBook, error) {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, notFoundErr(fmt.Sprintf("session %d", sessionID))
	}
	return f.books[s.path], nil
}

func (f *fakeService) GetBook(path string) (*bookd.Book, error) {
	fb, ok := f.books[path]
	if !ok {
		return nil, notFoundErr("book " + path)
	}
	book := fb.book
	return &book, nil
}

func (f *fakeService) OpenSession(path string, mode bookd.OpenMode) (*bookd.Session, error) {
	if err := f.openErr[path]; err != nil {
		return nil, err
	}
	fb, ok := f.books[path]
	if !ok {
		return nil, notFoundErr("book " + path)
	}

	id := f.id()
	f.sessions[id] = &fakeSession{path: path, mode: mode}
	return &bookd.Session{
		ID:           id,
		BookID:       fb.book.ID,
		BookPath:     path,
		BaseCurrency: fb.book.BaseCurrency,
		Mode:         mode,
		OpenedAt:     time.Now(),
	}, nil
}

func (f *fakeService) CreateBook(path, baseCurrency string, overwrite bool) (*bookd.Session, error) {
	if _, ok := f.books[path]; ok && !overwrite {
		return nil, &bookd.APIError{StatusCode: http.StatusConflict, Code: "book_exists", Message: "book already exists"}
	}

	fb := &fakeBook{
		book: bookd.Book{
			ID:           f.id(),
			Path:         path,
			BaseCurrency: baseCurrency,
			CreatedAt:    time.Now(),
		},
	}
	f.books[path] = fb

	id := f.id()
	f.sessions[id] = &fakeSession{path: path, mode: bookd.OpenReadWrite}
	return &bookd.Session{
		ID:           id,
		BookID:       fb.book.ID,
		BookPath:     path,
		BaseCurrency: baseCurrency,
		Mode:         bookd.OpenReadWrite,
		OpenedAt:     time.Now(),
	}, nil
}

func (f *fakeService) SaveSession(sessionID int64) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	fb, err := f.sessionBook(sessionID)
	if err != nil {
		return err
	}
	now := time.Now()
	fb.book.SavedAt = &now
	return nil
}

func (f *fakeService) CloseSession(sessionID int64) error {
	if _, ok := f.sessions[sessionID]; !ok {
		return notFoundErr(fmt.Sprintf("session %d", sessionID))
	}
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeService) ListAccounts(sessionID int64) ([]bookd.Account, error) {
	fb, err := f.sessionBook(sessionID)
	if err != nil {
		return nil, err
	}
	return append([]bookd.Account(nil), fb.accounts...), nil
}

func (f *fakeService) CreateAccount(sessionID int64, req bookd.NewAccount) (*bookd.Account, error) {
	fb, err := f.sessionBook(sessionID)
	if err != nil {
		return nil, err
	}

	account := bookd.Account{
		ID:          f.id(),
		ParentID:    req.ParentID,
		Name:        req.Name,
		FullName:    req.Name,
		Type:        req.Type,
		Commodity:   req.Commodity,
		Placeholder: req.Placeholder,
	}
	if req.ParentID != nil {
		var parent *bookd.Account
		for i := range fb.accounts {
			if fb.accounts[i].ID == *req.ParentID {
				parent = &fb.accounts[i]
				break
			}
		}
		if parent == nil {
			return nil, notFoundErr(fmt.Sprintf("parent account %d", *req.ParentID))
		}
		account.FullName = parent.FullName + bookd.FullNameSeparator + req.Name
	}

	fb.accounts = append(fb.accounts, account)
	return &account, nil
}

func (f *fakeService) ListBalances(sessionID int64, asOf string) ([]bookd.Balance, error) {
	if f.balancesErr != nil {
		return nil, f.balancesErr
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, notFoundErr(fmt.Sprintf("session %d", sessionID))
	}
	f.lastAsOf = asOf
	return append([]bookd.Balance(nil), f.balances[s.path]...), nil
}

func (f *fakeService) CreateTransaction(sessionID int64, req bookd.NewTransaction) (*bookd.Transaction, error) {
	f.txnWrites++
	if err := f.createTxnErr[f.txnWrites]; err != nil {
		return nil, err
	}

	fb, err := f.sessionBook(sessionID)
	if err != nil {
		return nil, err
	}

	txn := bookd.Transaction{
		ID:          f.id(),
		Date:        req.Date,
		Description: req.Description,
		Currency:    req.Currency,
		CreatedAt:   time.Now(),
	}
	for _, split := range req.Splits {
		txn.Splits = append(txn.Splits, bookd.Split{
			ID:        f.id(),
			AccountID: split.AccountID,
			Amount:    split.Amount,
			Value:     split.Value,
		})
	}

	fb.txns = append(fb.txns, txn)
	return &txn, nil
}

func (f *fakeService) ListTransactions(sessionID int64, params map[string]string) ([]bookd.Transaction, error) {
	fb, err := f.sessionBook(sessionID)
	if err != nil {
		return nil, err
	}

	var out []bookd.Transaction
	for _, txn := range fb.txns {
		if from := params["date_from"]; from != "" && txn.Date < from {
			continue
		}
		if to := params["date_to"]; to != "" && txn.Date > to {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

func (f *fakeService) ListImportRules(sessionID int64) ([]bookd.ImportRule, error) {
	fb, err := f.sessionBook(sessionID)
	if err != nil {
		return nil, err
	}
	return append([]bookd.ImportRule(nil), fb.rules...), nil
}

func (f *fakeService) CopyImportRules(srcSessionID, dstSessionID int64) (int, error) {
	if f.copyRulesErr != nil {
		return 0, f.copyRulesErr
	}

	src, err := f.sessionBook(srcSessionID)
	if err != nil {
		return 0, err
	}
	dst, err := f.sessionBook(dstSessionID)
	if err != nil {
		return 0, err
	}

	dst.rules = nil
	for _, rule := range src.rules {
		rule.ID = f.id()
		dst.rules = append(dst.rules, rule)
	}
	return len(src.rules), nil
}

func (f *fakeService) NearestPrice(sessionID int64, commodity, currency, date string) (*bookd.Price, error) {
	fb, err := f.sessionBook(sessionID)
	if err != nil {
		return nil, err
	}

	target, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, err
	}

	var best *bookd.Price
	var bestDiff time.Duration
	for i := range fb.prices {
		price := fb.prices[i]
		if price.Commodity != commodity || price.Currency != currency {
			continue
		}
		quoted, err := time.Parse("2006-01-02", price.Date)
		if err != nil {
			return nil, err
		}
		diff := target.Sub(quoted)
		if diff < 0 {
			diff = -diff
		}
		if best == nil || diff < bestDiff {
			best = &fb.prices[i]
			bestDiff = diff
		}
	}
	if best == nil {
		return nil, notFoundErr(fmt.Sprintf("price for %s in %s", commodity, currency))
	}

	price := *best
	return &price, nil
}

func notFoundErr(what string) error {
	return &bookd.APIError{StatusCode: http.StatusNotFound, Code: "not_found", Message: what + " not found"}
}

func int64Ptr(v int64) *int64 {
	return &v
}
