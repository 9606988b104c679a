// Package bookd provides a client and wire types for the bookd data API.
package bookd

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpenMode selects how a session holds its book.
type OpenMode string

const (
	// OpenReadOnly admits any number of concurrent sessions.
	OpenReadOnly OpenMode = "read_only"
	// OpenReadWrite takes the book's exclusive lock.
	OpenReadWrite OpenMode = "read_write"
)

// Account types understood by bookd.
const (
	AccountTypeAsset     = "asset"
	AccountTypeLiability = "liability"
	AccountTypeEquity    = "equity"
	AccountTypeIncome    = "income"
	AccountTypeExpense   = "expense"
)

// FullNameSeparator joins account names along the tree path into full names.
const FullNameSeparator = ":"

// Book represents a ledger book managed by bookd.
type Book struct {
	ID           int64      `json:"id"`
	Path         string     `json:"path"`
	BaseCurrency string     `json:"base_currency"`
	CreatedAt    time.Time  `json:"created_at"`
	SavedAt      *time.Time `json:"saved_at,omitempty"` // nil until first saved
}

// Session represents an open handle on a book.
type Session struct {
	ID           int64     `json:"id"`
	BookID       int64     `json:"book_id"`
	BookPath     string    `json:"book_path"`
	BaseCurrency string    `json:"base_currency"`
	Mode         OpenMode  `json:"mode"`
	OpenedAt     time.Time `json:"opened_at"`
}

// Account represents a node in a book's account tree.
type Account struct {
	ID          int64  `json:"id"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Type        string `json:"type"`
	Commodity   string `json:"commodity"`
	Placeholder bool   `json:"placeholder"`
}

// Balance represents an account's balance as of a date, in the
// account's own commodity.
type Balance struct {
	AccountID int64           `json:"account_id"`
	FullName  string          `json:"full_name"`
	Commodity string          `json:"commodity"`
	Amount    decimal.Decimal `json:"amount"`
}

// Split represents one leg of a transaction. Amount is in the account's
// commodity, Value in the transaction currency.
type Split struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Value     decimal.Decimal `json:"value"`
}

// Transaction represents a transaction in a book.
type Transaction struct {
	ID          int64     `json:"id"`
	Date        string    `json:"date"` // YYYY-MM-DD
	Description string    `json:"description"`
	Currency    string    `json:"currency"`
	Splits      []Split   `json:"splits"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ImportRule represents one learned auto-assignment row: a token weighted
// toward an account, by full name.
type ImportRule struct {
	ID      int64  `json:"id"`
	Token   string `json:"token"`
	Account string `json:"account"`
	Weight  int64  `json:"weight"`
}

// Price represents a commodity price quote in a book's price table.
type Price struct {
	ID        int64           `json:"id"`
	Commodity string          `json:"commodity"`
	Currency  string          `json:"currency"`
	Date      string          `json:"date"` // YYYY-MM-DD
	Rate      decimal.Decimal `json:"rate"`
}

// OpenSessionRequest represents the request to open a session on a book.
type OpenSessionRequest struct {
	Path string   `json:"path"`
	Mode OpenMode `json:"mode"`
}

// CreateBookRequest represents the request to create a new book.
type CreateBookRequest struct {
	Path         string `json:"path"`
	BaseCurrency string `json:"base_currency"`
	Overwrite    bool   `json:"overwrite,omitempty"`
}

// NewAccount represents the request to create an account.
type NewAccount struct {
	Name        string `json:"name"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	Type        string `json:"type"`
	Commodity   string `json:"commodity"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// NewSplit represents one leg in a transaction create request.
type NewSplit struct {
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Value     decimal.Decimal `json:"value"`
}

// NewTransaction represents the request to create a transaction.
type NewTransaction struct {
	Date        string     `json:"date"` // YYYY-MM-DD
	Description string     `json:"description"`
	Currency    string     `json:"currency"`
	Splits      []NewSplit `json:"splits"`
}

// NewPrice represents the request to record a price quote.
type NewPrice struct {
	Commodity string          `json:"commodity"`
	Currency  string          `json:"currency"`
	Date      string          `json:"date"` // YYYY-MM-DD
	Rate      decimal.Decimal `json:"rate"`
}

// NewImportRule represents the request to record an import rule.
type NewImportRule struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Weight  int64  `json:"weight"`
}

// CopyImportRulesRequest represents the request to copy the rule table
// between two open sessions.
type CopyImportRulesRequest struct {
	SourceSessionID int64 `json:"source_session_id"`
	TargetSessionID int64 `json:"target_session_id"`
}

// SessionResponse represents a response carrying a session.
type SessionResponse struct {
	Session Session `json:"session"`
}

// BookResponse represents a response carrying a book.
type BookResponse struct {
	Book Book `json:"book"`
}

// AccountsResponse represents the response from the accounts endpoint.
type AccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// AccountResponse represents a response carrying a single account.
type AccountResponse struct {
	Account Account `json:"account"`
}

// BalancesResponse represents the response from the balances endpoint.
type BalancesResponse struct {
	AsOf     string    `json:"as_of"`
	Balances []Balance `json:"balances"`
}

// TransactionsResponse represents the response from the transactions endpoint.
type TransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

// TransactionResponse represents a response carrying a single transaction.
type TransactionResponse struct {
	Transaction Transaction `json:"transaction"`
}

// ImportRulesResponse represents the response from the import-rules endpoint.
type ImportRulesResponse struct {
	ImportRules []ImportRule `json:"import_rules"`
}

// ImportRuleResponse represents a response carrying a single import rule.
type ImportRuleResponse struct {
	ImportRule ImportRule `json:"import_rule"`
}

// CopyImportRulesResponse represents the response from the rule-copy endpoint.
type CopyImportRulesResponse struct {
	Copied int `json:"copied"`
}

// PriceResponse represents a response carrying a single price quote.
type PriceResponse struct {
	Price Price `json:"price"`
}

// TokenResponse represents an OAuth2 token response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ErrorResponse represents an error response from the bookd API.
type ErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
