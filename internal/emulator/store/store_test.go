package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "bookd.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestBook(t *testing.T, s *Store, path string) *bookd.Book {
	t.Helper()

	book, err := s.CreateBook(&bookd.CreateBookRequest{Path: path, BaseCurrency: "USD"})
	if err != nil {
		t.Fatalf("CreateBook(%s) error = %v", path, err)
	}
	return book
}

func createTestAccount(t *testing.T, s *Store, book *bookd.Book, name string, parentID *int64, accountType string, placeholder bool) *bookd.Account {
	t.Helper()

	account, err := s.CreateAccount(book, &bookd.NewAccount{
		Name:        name,
		ParentID:    parentID,
		Type:        accountType,
		Placeholder: placeholder,
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s) error = %v", name, err)
	}
	return account
}

func TestCreateBook(t *testing.T) {
	s := newTestStore(t)

	book := createTestBook(t, s, "books/2024.bookd")
	if book.SavedAt != nil {
		t.Error("new book already has a saved_at stamp")
	}

	found, err := s.GetBookByPath("books/2024.bookd")
	if err != nil {
		t.Fatalf("GetBookByPath() error = %v", err)
	}
	if found.ID != book.ID || found.BaseCurrency != "USD" {
		t.Errorf("GetBookByPath() = %+v, expected the created book", found)
	}

	if _, err := s.CreateBook(&bookd.CreateBookRequest{Path: "books/2024.bookd", BaseCurrency: "USD"}); !errors.Is(err, ErrBookExists) {
		t.Errorf("CreateBook() duplicate error = %v, expected ErrBookExists", err)
	}
	if _, err := s.CreateBook(&bookd.CreateBookRequest{BaseCurrency: "USD"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("CreateBook() without path error = %v, expected ErrInvalid", err)
	}
	if _, err := s.CreateBook(&bookd.CreateBookRequest{Path: "books/x.bookd"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("CreateBook() without currency error = %v, expected ErrInvalid", err)
	}

	if _, err := s.GetBookByPath("books/absent.bookd"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBookByPath() error = %v, expected ErrNotFound", err)
	}
}

func TestCreateBookOverwrite(t *testing.T) {
	s := newTestStore(t)

	old := createTestBook(t, s, "books/2025.bookd")
	account := createTestAccount(t, s, old, "Assets", nil, bookd.AccountTypeAsset, false)
	if _, err := s.CreateImportRule(old.ID, "grocer", "Expenses:Food", 12); err != nil {
		t.Fatalf("CreateImportRule() error = %v", err)
	}
	if _, err := s.CreateTransaction(old, &bookd.NewTransaction{
		Date: "2025-01-01",
		Splits: []bookd.NewSplit{
			{AccountID: account.ID, Amount: decimal.NewFromInt(5), Value: decimal.NewFromInt(5)},
			{AccountID: account.ID, Amount: decimal.NewFromInt(-5), Value: decimal.NewFromInt(-5)},
		},
	}); err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	fresh, err := s.CreateBook(&bookd.CreateBookRequest{Path: "books/2025.bookd", BaseCurrency: "EUR", Overwrite: true})
	if err != nil {
		t.Fatalf("CreateBook() overwrite error = %v", err)
	}
	if fresh.ID == old.ID {
		t.Error("overwrite returned the old book")
	}
	if fresh.BaseCurrency != "EUR" {
		t.Errorf("overwritten book currency = %s, expected EUR", fresh.BaseCurrency)
	}

	if _, err := s.GetBook(old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBook() for the dropped book error = %v, expected ErrNotFound", err)
	}
	for name, check := range map[string]func() (int, error){
		"accounts": func() (int, error) {
			accounts, err := s.ListAccounts(old.ID)
			return len(accounts), err
		},
		"transactions": func() (int, error) {
			txns, err := s.ListTransactions(old.ID, "", "")
			return len(txns), err
		},
		"rules": func() (int, error) {
			rules, err := s.ListImportRules(old.ID)
			return len(rules), err
		},
	} {
		count, err := check()
		if err != nil {
			t.Fatalf("listing %s error = %v", name, err)
		}
		if count != 0 {
			t.Errorf("dropped book still has %d %s", count, name)
		}
	}
}

func TestCreateBookOverwriteLocked(t *testing.T) {
	s := newTestStore(t)

	createTestBook(t, s, "books/2025.bookd")
	if _, err := s.OpenSession(&bookd.OpenSessionRequest{Path: "books/2025.bookd", Mode: bookd.OpenReadWrite}); err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}

	_, err := s.CreateBook(&bookd.CreateBookRequest{Path: "books/2025.bookd", BaseCurrency: "USD", Overwrite: true})
	if !errors.Is(err, ErrBookLocked) {
		t.Errorf("CreateBook() overwrite of a locked book error = %v, expected ErrBookLocked", err)
	}
}

func TestOpenSessionLocking(t *testing.T) {
	s := newTestStore(t)
	createTestBook(t, s, "books/2024.bookd")

	rw, err := s.OpenSession(&bookd.OpenSessionRequest{Path: "books/2024.bookd", Mode: bookd.OpenReadWrite})
	if err != nil {
		t.Fatalf("OpenSession(read_write) error = %v", err)
	}

	if _, err := s.OpenSession(&bookd.OpenSessionRequest{Path: "books/2024.bookd", Mode: bookd.OpenReadWrite}); !errors.Is(err, ErrBookLocked) {
		t.Errorf("second read_write open error = %v, expected ErrBookLocked", err)
	}

	// Read-only sessions are admitted while the lock is held.
	ro, err := s.OpenSession(&bookd.OpenSessionRequest{Path: "books/2024.bookd"})
	if err != nil {
		t.Fatalf("OpenSession(read_only) error = %v", err)
	}
	if ro.Mode != bookd.OpenReadOnly {
		t.Errorf("default session mode = %s, expected read_only", ro.Mode)
	}

	if err := s.CloseSession(rw.ID); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	if _, err := s.OpenSession(&bookd.OpenSessionRequest{Path: "books/2024.bookd", Mode: bookd.OpenReadWrite}); err != nil {
		t.Errorf("read_write open after close error = %v, expected the lock released", err)
	}

	if _, err := s.OpenSession(&bookd.OpenSessionRequest{Path: "books/2024.bookd", Mode: "exclusive"}); !errors.Is(err, ErrInvalid) {
		t.Errorf("unknown mode error = %v, expected ErrInvalid", err)
	}
	if _, err := s.OpenSession(&bookd.OpenSessionRequest{Path: "books/absent.bookd"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("open of a missing book error = %v, expected ErrNotFound", err)
	}
}

func TestSaveSession(t *testing.T) {
	s := newTestStore(t)
	book := createTestBook(t, s, "books/2024.bookd")

	ro, err := s.OpenSession(&bookd.OpenSessionRequest{Path: "books/2024.bookd"})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	if _, err := s.SaveSession(ro.ID); !errors.Is(err, ErrReadOnlySession) {
		t.Errorf("SaveSession() through read_only error = %v, expected ErrReadOnlySession", err)
	}

	rw, err := s.OpenSession(&bookd.OpenSessionRequest{Path: "books/2024.bookd", Mode: bookd.OpenReadWrite})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	saved, err := s.SaveSession(rw.ID)
	if err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if saved.SavedAt == nil {
		t.Error("SaveSession() did not stamp saved_at")
	}

	stored, err := s.GetBook(book.ID)
	if err != nil {
		t.Fatalf("GetBook() error = %v", err)
	}
	if stored.SavedAt == nil {
		t.Error("saved_at stamp was not persisted")
	}
}

func TestWritableSession(t *testing.T) {
	s := newTestStore(t)
	createTestBook(t, s, "books/2024.bookd")

	ro, err := s.OpenSession(&bookd.OpenSessionRequest{Path: "books/2024.bookd"})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	if _, err := s.WritableSession(ro.ID); !errors.Is(err, ErrReadOnlySession) {
		t.Errorf("WritableSession() for read_only error = %v, expected ErrReadOnlySession", err)
	}
	if _, err := s.WritableSession(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("WritableSession() for unknown session error = %v, expected ErrNotFound", err)
	}
}

func TestCreateAccount(t *testing.T) {
	s := newTestStore(t)
	book := createTestBook(t, s, "books/2024.bookd")

	assets := createTestAccount(t, s, book, "Assets", nil, bookd.AccountTypeAsset, true)
	if assets.FullName != "Assets" {
		t.Errorf("root account full name = %s, expected Assets", assets.FullName)
	}
	if assets.Commodity != "USD" {
		t.Errorf("account commodity = %s, expected the book's base currency", assets.Commodity)
	}

	checking := createTestAccount(t, s, book, "Checking", &assets.ID, bookd.AccountTypeAsset, false)
	if checking.FullName != "Assets:Checking" {
		t.Errorf("child full name = %s, expected Assets:Checking", checking.FullName)
	}

	tests := []struct {
		name string
		req  bookd.NewAccount
		want error
	}{
		{"duplicate full name", bookd.NewAccount{Name: "Checking", ParentID: &assets.ID, Type: bookd.AccountTypeAsset}, ErrAccountExists},
		{"missing name", bookd.NewAccount{Type: bookd.AccountTypeAsset}, ErrInvalid},
		{"separator in name", bookd.NewAccount{Name: "A:B", Type: bookd.AccountTypeAsset}, ErrInvalid},
		{"unknown type", bookd.NewAccount{Name: "X", Type: "fund"}, ErrInvalid},
		{"unknown parent", bookd.NewAccount{Name: "X", ParentID: int64Ptr(999), Type: bookd.AccountTypeAsset}, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateAccount(book, &tt.req); !errors.Is(err, tt.want) {
				t.Errorf("CreateAccount() error = %v, expected %v", err, tt.want)
			}
		})
	}
}

func TestCreateAccountScopedToBook(t *testing.T) {
	s := newTestStore(t)
	book := createTestBook(t, s, "books/2024.bookd")
	other := createTestBook(t, s, "books/other.bookd")

	assets := createTestAccount(t, s, book, "Assets", nil, bookd.AccountTypeAsset, true)

	// The same full name may exist in another book.
	if _, err := s.CreateAccount(other, &bookd.NewAccount{Name: "Assets", Type: bookd.AccountTypeAsset}); err != nil {
		t.Errorf("CreateAccount() in another book error = %v", err)
	}

	// A parent from another book is not visible.
	if _, err := s.CreateAccount(other, &bookd.NewAccount{Name: "Checking", ParentID: &assets.ID, Type: bookd.AccountTypeAsset}); !errors.Is(err, ErrInvalid) {
		t.Errorf("CreateAccount() with a foreign parent error = %v, expected ErrInvalid", err)
	}

	if _, err := s.GetAccount(other.ID, assets.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAccount() across books error = %v, expected ErrNotFound", err)
	}
}

func TestListAccountsSorted(t *testing.T) {
	s := newTestStore(t)
	book := createTestBook(t, s, "books/2024.bookd")

	createTestAccount(t, s, book, "Liabilities", nil, bookd.AccountTypeLiability, true)
	assets := createTestAccount(t, s, book, "Assets", nil, bookd.AccountTypeAsset, true)
	createTestAccount(t, s, book, "Checking", &assets.ID, bookd.AccountTypeAsset, false)

	accounts, err := s.ListAccounts(book.ID)
	if err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}

	expected := []string{"Assets", "Assets:Checking", "Liabilities"}
	if len(accounts) != len(expected) {
		t.Fatalf("ListAccounts() returned %d accounts, expected %d", len(accounts), len(expected))
	}
	for i, fullName := range expected {
		if accounts[i].FullName != fullName {
			t.Errorf("accounts[%d] = %s, expected %s", i, accounts[i].FullName, fullName)
		}
	}
}

func TestCreateTransaction(t *testing.T) {
	s := newTestStore(t)
	book := createTestBook(t, s, "books/2024.bookd")

	assets := createTestAccount(t, s, book, "Assets", nil, bookd.AccountTypeAsset, true)
	checking := createTestAccount(t, s, book, "Checking", &assets.ID, bookd.AccountTypeAsset, false)
	equity := createTestAccount(t, s, book, "Opening balance", nil, bookd.AccountTypeEquity, false)

	txn, err := s.CreateTransaction(book, &bookd.NewTransaction{
		Date:        "2024-01-15",
		Description: "Opening balance",
		Splits: []bookd.NewSplit{
			{AccountID: checking.ID, Amount: decimal.RequireFromString("1200.50"), Value: decimal.RequireFromString("1200.50")},
			{AccountID: equity.ID, Amount: decimal.RequireFromString("-1200.50"), Value: decimal.RequireFromString("-1200.50")},
		},
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if txn.Currency != "USD" {
		t.Errorf("transaction currency = %s, expected the book's base currency", txn.Currency)
	}
	if len(txn.Splits) != 2 {
		t.Fatalf("transaction has %d splits, expected 2", len(txn.Splits))
	}

	tests := []struct {
		name string
		req  bookd.NewTransaction
	}{
		{
			"unbalanced values",
			bookd.NewTransaction{Date: "2024-01-15", Splits: []bookd.NewSplit{
				{AccountID: checking.ID, Amount: decimal.NewFromInt(10), Value: decimal.NewFromInt(10)},
				{AccountID: equity.ID, Amount: decimal.NewFromInt(-9), Value: decimal.NewFromInt(-9)},
			}},
		},
		{
			"placeholder split",
			bookd.NewTransaction{Date: "2024-01-15", Splits: []bookd.NewSplit{
				{AccountID: assets.ID, Amount: decimal.NewFromInt(10), Value: decimal.NewFromInt(10)},
				{AccountID: equity.ID, Amount: decimal.NewFromInt(-10), Value: decimal.NewFromInt(-10)},
			}},
		},
		{
			"unknown account",
			bookd.NewTransaction{Date: "2024-01-15", Splits: []bookd.NewSplit{
				{AccountID: 999, Amount: decimal.NewFromInt(10), Value: decimal.NewFromInt(10)},
				{AccountID: equity.ID, Amount: decimal.NewFromInt(-10), Value: decimal.NewFromInt(-10)},
			}},
		},
		{
			"no splits",
			bookd.NewTransaction{Date: "2024-01-15"},
		},
		{
			"bad date",
			bookd.NewTransaction{Date: "15.01.2024", Splits: []bookd.NewSplit{
				{AccountID: checking.ID, Amount: decimal.NewFromInt(10), Value: decimal.NewFromInt(10)},
				{AccountID: equity.ID, Amount: decimal.NewFromInt(-10), Value: decimal.NewFromInt(-10)},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateTransaction(book, &tt.req); !errors.Is(err, ErrInvalid) {
				t.Errorf("CreateTransaction() error = %v, expected ErrInvalid", err)
			}
		})
	}
}

func TestListTransactionsDateRange(t *testing.T) {
	s := newTestStore(t)
	book := createTestBook(t, s, "books/2024.bookd")

	checking := createTestAccount(t, s, book, "Checking", nil, bookd.AccountTypeAsset, false)
	equity := createTestAccount(t, s, book, "Opening balance", nil, bookd.AccountTypeEquity, false)

	for _, date := range []string{"2024-03-10", "2024-01-05", "2024-07-20"} {
		if _, err := s.CreateTransaction(book, &bookd.NewTransaction{
			Date: date,
			Splits: []bookd.NewSplit{
				{AccountID: checking.ID, Amount: decimal.NewFromInt(1), Value: decimal.NewFromInt(1)},
				{AccountID: equity.ID, Amount: decimal.NewFromInt(-1), Value: decimal.NewFromInt(-1)},
			},
		}); err != nil {
			t.Fatalf("CreateTransaction(%s) error = %v", date, err)
		}
	}

	all, err := s.ListTransactions(book.ID, "", "")
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListTransactions() returned %d transactions, expected 3", len(all))
	}
	if all[0].Date != "2024-01-05" || all[2].Date != "2024-07-20" {
		t.Errorf("transactions not sorted by date: %s ... %s", all[0].Date, all[2].Date)
	}

	bounded, err := s.ListTransactions(book.ID, "2024-02-01", "2024-06-30")
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(bounded) != 1 || bounded[0].Date != "2024-03-10" {
		t.Errorf("bounded listing = %d transactions, expected only the March one", len(bounded))
	}
}

func TestBalancesAsOf(t *testing.T) {
	s := newTestStore(t)
	book := createTestBook(t, s, "books/2024.bookd")

	assets := createTestAccount(t, s, book, "Assets", nil, bookd.AccountTypeAsset, true)
	checking := createTestAccount(t, s, book, "Checking", &assets.ID, bookd.AccountTypeAsset, false)
	equity := createTestAccount(t, s, book, "Opening balance", nil, bookd.AccountTypeEquity, false)

	deposit := func(date, amount string) {
		t.Helper()
		value := decimal.RequireFromString(amount)
		if _, err := s.CreateTransaction(book, &bookd.NewTransaction{
			Date: date,
			Splits: []bookd.NewSplit{
				{AccountID: checking.ID, Amount: value, Value: value},
				{AccountID: equity.ID, Amount: value.Neg(), Value: value.Neg()},
			},
		}); err != nil {
			t.Fatalf("CreateTransaction(%s) error = %v", date, err)
		}
	}
	deposit("2024-01-10", "100")
	deposit("2024-06-15", "50.25")
	deposit("2025-01-02", "999")

	balances, err := s.BalancesAsOf(book.ID, "2024-12-31")
	if err != nil {
		t.Fatalf("BalancesAsOf() error = %v", err)
	}
	if len(balances) != 3 {
		t.Fatalf("BalancesAsOf() returned %d balances, expected one per account", len(balances))
	}

	byName := make(map[string]bookd.Balance, len(balances))
	for _, balance := range balances {
		byName[balance.FullName] = balance
	}

	if !byName["Assets:Checking"].Amount.Equal(decimal.RequireFromString("150.25")) {
		t.Errorf("checking balance = %s, expected 150.25 excluding the 2025 deposit", byName["Assets:Checking"].Amount)
	}
	if !byName["Opening balance"].Amount.Equal(decimal.RequireFromString("-150.25")) {
		t.Errorf("equity balance = %s, expected -150.25", byName["Opening balance"].Amount)
	}
	if !byName["Assets"].Amount.IsZero() {
		t.Errorf("placeholder balance = %s, expected zero", byName["Assets"].Amount)
	}

	if _, err := s.BalancesAsOf(book.ID, "31.12.2024"); !errors.Is(err, ErrInvalid) {
		t.Errorf("BalancesAsOf() with a bad date error = %v, expected ErrInvalid", err)
	}
}

func TestImportRules(t *testing.T) {
	s := newTestStore(t)
	src := createTestBook(t, s, "books/2024.bookd")
	dst := createTestBook(t, s, "books/2025.bookd")

	for _, rule := range []struct {
		token, account string
		weight         int64
	}{
		{"paycheck", "Income:Salary", 30},
		{"grocer", "Expenses:Food", 12},
	} {
		if _, err := s.CreateImportRule(src.ID, rule.token, rule.account, rule.weight); err != nil {
			t.Fatalf("CreateImportRule(%s) error = %v", rule.token, err)
		}
	}
	if _, err := s.CreateImportRule(dst.ID, "stale", "Expenses:Misc", 1); err != nil {
		t.Fatalf("CreateImportRule() error = %v", err)
	}

	if _, err := s.CreateImportRule(src.ID, "", "Expenses:Food", 1); !errors.Is(err, ErrInvalid) {
		t.Errorf("CreateImportRule() without token error = %v, expected ErrInvalid", err)
	}

	copied, err := s.CopyImportRules(src.ID, dst.ID)
	if err != nil {
		t.Fatalf("CopyImportRules() error = %v", err)
	}
	if copied != 2 {
		t.Errorf("CopyImportRules() = %d, expected 2", copied)
	}

	rules, err := s.ListImportRules(dst.ID)
	if err != nil {
		t.Fatalf("ListImportRules() error = %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("target has %d rules, expected the stale rule replaced by 2 copies", len(rules))
	}
	if rules[0].Token != "grocer" || rules[1].Token != "paycheck" {
		t.Errorf("rules sorted as %s, %s, expected grocer, paycheck", rules[0].Token, rules[1].Token)
	}

	// The source table is untouched.
	srcRules, err := s.ListImportRules(src.ID)
	if err != nil {
		t.Fatalf("ListImportRules() error = %v", err)
	}
	if len(srcRules) != 2 {
		t.Errorf("source has %d rules after copy, expected 2", len(srcRules))
	}
}

func TestNearestPrice(t *testing.T) {
	s := newTestStore(t)
	book := createTestBook(t, s, "books/2024.bookd")

	quotes := []bookd.NewPrice{
		{Commodity: "EUR", Currency: "USD", Date: "2024-12-28", Rate: decimal.RequireFromString("1.08")},
		{Commodity: "EUR", Currency: "USD", Date: "2024-12-30", Rate: decimal.RequireFromString("1.10")},
		{Commodity: "EUR", Currency: "USD", Date: "2025-01-03", Rate: decimal.RequireFromString("1.12")},
		{Commodity: "GBP", Currency: "USD", Date: "2024-12-31", Rate: decimal.RequireFromString("1.27")},
	}
	for _, quote := range quotes {
		if _, err := s.CreatePrice(book.ID, &quote); err != nil {
			t.Fatalf("CreatePrice(%s %s) error = %v", quote.Commodity, quote.Date, err)
		}
	}

	price, err := s.NearestPrice(book.ID, "EUR", "USD", "2024-12-31")
	if err != nil {
		t.Fatalf("NearestPrice() error = %v", err)
	}
	if price.Date != "2024-12-30" {
		t.Errorf("NearestPrice() picked %s, expected 2024-12-30", price.Date)
	}

	// A tie between an earlier and a later quote goes to the earlier one.
	tied, err := s.NearestPrice(book.ID, "EUR", "USD", "2025-01-01")
	if err != nil {
		t.Fatalf("NearestPrice() error = %v", err)
	}
	if tied.Date != "2024-12-30" {
		t.Errorf("NearestPrice() tie picked %s, expected the earlier 2024-12-30", tied.Date)
	}

	if _, err := s.NearestPrice(book.ID, "JPY", "USD", "2024-12-31"); !errors.Is(err, ErrNotFound) {
		t.Errorf("NearestPrice() for an unquoted pair error = %v, expected ErrNotFound", err)
	}

	if _, err := s.CreatePrice(book.ID, &bookd.NewPrice{Commodity: "EUR", Currency: "USD", Date: "2024-12-31", Rate: decimal.Zero}); !errors.Is(err, ErrInvalid) {
		t.Errorf("CreatePrice() with a zero rate error = %v, expected ErrInvalid", err)
	}
}

func int64Ptr(v int64) *int64 {
	return &v
}
