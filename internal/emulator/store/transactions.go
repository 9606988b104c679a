package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// dateLayout is the wire format for dates.
const dateLayout = "2006-01-02"

// txnRecord scopes a transaction to its book in storage.
type txnRecord struct {
	BookID int64 `json:"book_id"`
	bookd.Transaction
}

// CreateTransaction creates a new transaction in the book.
// Every split must reference an account of the book, and the split values
// must sum to zero in the transaction currency.
func (s *Store) CreateTransaction(book *bookd.Book, req *bookd.NewTransaction) (*bookd.Transaction, error) {
	if _, err := time.Parse(dateLayout, req.Date); err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", ErrInvalid, req.Date)
	}
	if len(req.Splits) == 0 {
		return nil, fmt.Errorf("%w: at least one split is required", ErrInvalid)
	}

	currency := req.Currency
	if currency == "" {
		currency = book.BaseCurrency
	}

	valueSum := decimal.Zero
	splits := make([]bookd.Split, len(req.Splits))
	for i, sp := range req.Splits {
		account, err := s.GetAccount(book.ID, sp.AccountID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown account %d", ErrInvalid, sp.AccountID)
			}
			return nil, err
		}
		if account.Placeholder {
			return nil, fmt.Errorf("%w: account %s is a placeholder", ErrInvalid, account.FullName)
		}

		splitID, err := s.NextID(BucketTransactions)
		if err != nil {
			return nil, fmt.Errorf("failed to generate split ID: %w", err)
		}

		splits[i] = bookd.Split{
			ID:        splitID,
			AccountID: sp.AccountID,
			Amount:    sp.Amount,
			Value:     sp.Value,
		}
		valueSum = valueSum.Add(sp.Value)
	}

	if !valueSum.IsZero() {
		return nil, fmt.Errorf("%w: split values sum to %s, want 0", ErrInvalid, valueSum)
	}

	id, err := s.NextID(BucketTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}

	now := time.Now()
	record := &txnRecord{
		BookID: book.ID,
		Transaction: bookd.Transaction{
			ID:          id,
			Date:        req.Date,
			Description: req.Description,
			Currency:    currency,
			Splits:      splits,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}

	if err := s.Put(BucketTransactions, id, record); err != nil {
		return nil, fmt.Errorf("failed to save transaction: %w", err)
	}

	txn := record.Transaction
	return &txn, nil
}

// ListTransactions retrieves a book's transactions, optionally bounded by
// dates (inclusive), sorted by date then ID.
func (s *Store) ListTransactions(bookID int64, dateFrom, dateTo string) ([]bookd.Transaction, error) {
	results, err := s.List(BucketTransactions, byBookID(bookID))
	if err != nil {
		return nil, err
	}

	txns := make([]bookd.Transaction, 0, len(results))
	for _, data := range results {
		var record txnRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
		}

		// Dates are YYYY-MM-DD, so string comparison orders correctly.
		if dateFrom != "" && record.Date < dateFrom {
			continue
		}
		if dateTo != "" && record.Date > dateTo {
			continue
		}

		txns = append(txns, record.Transaction)
	}

	sort.Slice(txns, func(i, j int) bool {
		if txns[i].Date != txns[j].Date {
			return txns[i].Date < txns[j].Date
		}
		return txns[i].ID < txns[j].ID
	})

	return txns, nil
}

// BalancesAsOf computes every account's balance as of a date, inclusive,
// in the account's own commodity. Placeholder accounts are included with
// zero balances.
func (s *Store) BalancesAsOf(bookID int64, asOf string) ([]bookd.Balance, error) {
	if _, err := time.Parse(dateLayout, asOf); err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", ErrInvalid, asOf)
	}

	accounts, err := s.ListAccounts(bookID)
	if err != nil {
		return nil, err
	}

	sums := make(map[int64]decimal.Decimal, len(accounts))
	for _, a := range accounts {
		sums[a.ID] = decimal.Zero
	}

	txns, err := s.ListTransactions(bookID, "", asOf)
	if err != nil {
		return nil, err
	}

	for _, txn := range txns {
		for _, sp := range txn.Splits {
			sums[sp.AccountID] = sums[sp.AccountID].Add(sp.Amount)
		}
	}

	balances := make([]bookd.Balance, 0, len(accounts))
	for _, a := range accounts {
		balances = append(balances, bookd.Balance{
			AccountID: a.ID,
			FullName:  a.FullName,
			Commodity: a.Commodity,
			Amount:    sums[a.ID],
		})
	}

	return balances, nil
}
