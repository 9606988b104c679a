package rollover

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// Error taxonomy of a rollover run. Every failure aborts the run and wraps
// exactly one of these.
var (
	// ErrSourceOpen covers opening or reading the source book.
	ErrSourceOpen = errors.New("cannot open source book")
	// ErrStructuralMismatch covers accounts with no matching counterpart
	// for balance assignment.
	ErrStructuralMismatch = errors.New("account layout mismatch")
	// ErrTargetExists is returned when the target book exists and overwrite
	// was not confirmed.
	ErrTargetExists = errors.New("target book already exists")
	// ErrTargetWrite covers creating or writing the target book.
	ErrTargetWrite = errors.New("cannot write target book")
)

// BookService is the narrow slice of the bookd data API the rollover needs.
// *bookd.Client implements it; tests run against an in-memory fake.
type BookService interface {
	GetBook(path string) (*bookd.Book, error)
	OpenSession(path string, mode bookd.OpenMode) (*bookd.Session, error)
	CreateBook(path, baseCurrency string, overwrite bool) (*bookd.Session, error)
	SaveSession(sessionID int64) error
	CloseSession(sessionID int64) error
	ListAccounts(sessionID int64) ([]bookd.Account, error)
	CreateAccount(sessionID int64, account bookd.NewAccount) (*bookd.Account, error)
	ListBalances(sessionID int64, asOf string) ([]bookd.Balance, error)
	CreateTransaction(sessionID int64, txn bookd.NewTransaction) (*bookd.Transaction, error)
	ListTransactions(sessionID int64, params map[string]string) ([]bookd.Transaction, error)
	ListImportRules(sessionID int64) ([]bookd.ImportRule, error)
	CopyImportRules(srcSessionID, dstSessionID int64) (int, error)
	NearestPrice(sessionID int64, commodity, currency, date string) (*bookd.Price, error)
}

var _ BookService = (*bookd.Client)(nil)

// Options describes one rollover invocation.
type Options struct {
	SourcePath  string
	TargetPath  string
	OpeningDate string // YYYY-MM-DD, first day of the new year
	Description string // opening transaction description; empty uses the policy's
	Overwrite   bool   // operator-confirmed overwrite of an existing target
}

// Result summarizes a completed rollover.
type Result struct {
	Plan                *Plan
	AccountsCreated     int
	TransactionsWritten int
	RulesCopied         int
}

// Engine runs the year-rollover procedure: a single linear pass with no
// retries and no checkpoints, re-run from scratch after manual cleanup.
type Engine struct {
	svc    BookService
	policy *Policy
}

// NewEngine creates a rollover engine. A nil policy uses DefaultPolicy.
func NewEngine(svc BookService, policy *Policy) *Engine {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Engine{svc: svc, policy: policy}
}

// Plan opens the source book read-only and computes what a rollover would
// write, without touching the target.
func (e *Engine) Plan(opts Options) (*Plan, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	src, err := e.openSource(opts.SourcePath)
	if err != nil {
		return nil, err
	}
	defer e.closeQuietly(src.ID, opts.SourcePath)

	return e.plan(src, opts)
}

// Run executes the full rollover: plan against the source, then create the
// target, recreate the account tree, write opening transactions, copy the
// rule table, save and close.
func (e *Engine) Run(opts Options) (*Result, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	src, err := e.openSource(opts.SourcePath)
	if err != nil {
		return nil, err
	}
	defer e.closeQuietly(src.ID, opts.SourcePath)

	plan, err := e.plan(src, opts)
	if err != nil {
		return nil, err
	}

	return e.execute(src.ID, plan, opts)
}

// openSource opens the source book read-only. Any failure here is a
// source-open error and nothing has been created yet.
func (e *Engine) openSource(path string) (*bookd.Session, error) {
	slog.Info("Opening source book", "path", path)

	session, err := e.svc.OpenSession(path, bookd.OpenReadOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrSourceOpen, path, err)
	}
	return session, nil
}

// plan is the read-only half of the procedure: collect the account tree,
// closing balances, and rule table, and decide what carries forward.
func (e *Engine) plan(src *bookd.Session, opts Options) (*Plan, error) {
	srcID := src.ID

	closingDate, err := closingDateFor(opts.OpeningDate)
	if err != nil {
		return nil, err
	}

	accounts, err := e.svc.ListAccounts(srcID)
	if err != nil {
		return nil, fmt.Errorf("%w: read source accounts: %w", ErrSourceOpen, err)
	}

	balances, err := e.svc.ListBalances(srcID, closingDate)
	if err != nil {
		return nil, fmt.Errorf("%w: read source balances: %w", ErrSourceOpen, err)
	}

	rules, err := e.svc.ListImportRules(srcID)
	if err != nil {
		return nil, fmt.Errorf("%w: read source rule table: %w", ErrSourceOpen, err)
	}

	slog.Info("Collected source book state",
		"accounts", len(accounts),
		"balances", len(balances),
		"rules", len(rules),
	)

	byID := make(map[int64]bookd.Account, len(accounts))
	for _, account := range accounts {
		byID[account.ID] = account
	}

	plan := &Plan{
		SourcePath:     opts.SourcePath,
		TargetPath:     opts.TargetPath,
		OpeningDate:    opts.OpeningDate,
		ClosingDate:    closingDate,
		BaseCurrency:   src.BaseCurrency,
		Description:    opts.Description,
		OpeningAccount: e.policy.OpeningFullName(),
		Accounts:       creationOrder(accounts),
		Rules:          len(rules),
	}
	if plan.Description == "" {
		plan.Description = e.policy.Description
	}

	for _, balance := range balances {
		account, ok := byID[balance.AccountID]
		if !ok {
			return nil, fmt.Errorf("%w: balance for unknown account id %d", ErrStructuralMismatch, balance.AccountID)
		}

		topType, err := topLevelType(account, byID)
		if err != nil {
			return nil, err
		}

		switch {
		case !e.policy.IncludesType(topType):
			plan.SkippedExcluded++
		case account.Placeholder:
			plan.SkippedPlaceholder++
		case balance.Amount.IsZero():
			plan.SkippedZero++
		default:
			opening := Opening{
				FullName:  account.FullName,
				Commodity: balance.Commodity,
				Amount:    balance.Amount,
				Value:     balance.Amount,
			}

			if balance.Commodity != src.BaseCurrency {
				price, err := e.svc.NearestPrice(srcID, balance.Commodity, src.BaseCurrency, closingDate)
				if err != nil {
					if bookd.IsNotFound(err) {
						return nil, fmt.Errorf("%w: no price quote for %s in %s to carry %s",
							ErrTargetWrite, balance.Commodity, src.BaseCurrency, account.FullName)
					}
					return nil, fmt.Errorf("%w: read source prices: %w", ErrSourceOpen, err)
				}
				opening.Value = balance.Amount.Mul(price.Rate)
				opening.Converted = true
			}

			plan.Openings = append(plan.Openings, opening)
		}
	}

	sort.Slice(plan.Openings, func(i, j int) bool {
		return plan.Openings[i].FullName < plan.Openings[j].FullName
	})

	slog.Info("Computed rollover plan",
		"openings", len(plan.Openings),
		"skipped_zero", plan.SkippedZero,
		"skipped_placeholder", plan.SkippedPlaceholder,
		"skipped_excluded", plan.SkippedExcluded,
	)

	return plan, nil
}

// execute is the write half: everything from target creation to save.
func (e *Engine) execute(srcID int64, plan *Plan, opts Options) (result *Result, err error) {
	if _, lookupErr := e.svc.GetBook(opts.TargetPath); lookupErr == nil {
		if !opts.Overwrite {
			return nil, fmt.Errorf("%w: %q", ErrTargetExists, opts.TargetPath)
		}
		slog.Info("Overwriting existing target book", "path", opts.TargetPath)
	} else if !bookd.IsNotFound(lookupErr) {
		return nil, fmt.Errorf("%w: check target book: %w", ErrTargetWrite, lookupErr)
	}

	slog.Info("Creating target book", "path", opts.TargetPath, "currency", plan.BaseCurrency)

	dst, err := e.svc.CreateBook(opts.TargetPath, plan.BaseCurrency, opts.Overwrite)
	if err != nil {
		return nil, fmt.Errorf("%w: create %q: %w", ErrTargetWrite, opts.TargetPath, err)
	}
	dstID := dst.ID

	// From here on any failure leaves a partial, unsaved target behind.
	defer func() {
		if err != nil {
			e.closeQuietly(dstID, opts.TargetPath)
			slog.Warn("Rollover failed; partial target book left unsaved, delete it or re-run with overwrite",
				"path", opts.TargetPath)
		}
	}()

	result = &Result{Plan: plan}

	dstByFullName, created, err := e.recreateTree(dstID, plan.Accounts)
	if err != nil {
		return nil, err
	}
	result.AccountsCreated = created
	slog.Info("Recreated account tree", "accounts", created)

	openingAccount, created, err := e.ensureOpeningAccount(dstID, dstByFullName, plan.BaseCurrency)
	if err != nil {
		return nil, err
	}
	result.AccountsCreated += created

	for _, opening := range plan.Openings {
		account, ok := dstByFullName[opening.FullName]
		if !ok {
			return nil, fmt.Errorf("%w: no counterpart for %q in target book", ErrStructuralMismatch, opening.FullName)
		}

		txn := bookd.NewTransaction{
			Date:        plan.OpeningDate,
			Description: plan.Description,
			Currency:    plan.BaseCurrency,
			Splits: []bookd.NewSplit{
				{AccountID: account.ID, Amount: opening.Amount, Value: opening.Value},
				{AccountID: openingAccount.ID, Amount: opening.Value.Neg(), Value: opening.Value.Neg()},
			},
		}

		if _, err := e.svc.CreateTransaction(dstID, txn); err != nil {
			return nil, fmt.Errorf("%w: opening transaction for %q: %w", ErrTargetWrite, opening.FullName, err)
		}
		result.TransactionsWritten++
	}
	slog.Info("Wrote opening transactions", "count", result.TransactionsWritten, "date", plan.OpeningDate)

	copied, err := e.svc.CopyImportRules(srcID, dstID)
	if err != nil {
		return nil, fmt.Errorf("%w: copy rule table: %w", ErrTargetWrite, err)
	}
	result.RulesCopied = copied
	slog.Info("Copied rule table", "rules", copied)

	if err := e.svc.SaveSession(dstID); err != nil {
		return nil, fmt.Errorf("%w: save %q: %w", ErrTargetWrite, opts.TargetPath, err)
	}
	if err := e.svc.CloseSession(dstID); err != nil {
		return nil, fmt.Errorf("%w: close %q: %w", ErrTargetWrite, opts.TargetPath, err)
	}

	slog.Info("Saved target book", "path", opts.TargetPath)
	return result, nil
}

// recreateTree creates every source account in the target, parents before
// children, and returns the target accounts indexed by full name.
func (e *Engine) recreateTree(dstID int64, accounts []bookd.Account) (map[string]bookd.Account, int, error) {
	idMap := make(map[int64]int64, len(accounts))
	byFullName := make(map[string]bookd.Account, len(accounts))

	for _, account := range accounts {
		req := bookd.NewAccount{
			Name:        account.Name,
			Type:        account.Type,
			Commodity:   account.Commodity,
			Placeholder: account.Placeholder,
		}
		if account.ParentID != nil {
			parentID, ok := idMap[*account.ParentID]
			if !ok {
				return nil, 0, fmt.Errorf("%w: account %q references unknown parent", ErrStructuralMismatch, account.FullName)
			}
			req.ParentID = &parentID
		}

		createdAccount, err := e.svc.CreateAccount(dstID, req)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: create account %q: %w", ErrTargetWrite, account.FullName, err)
		}

		idMap[account.ID] = createdAccount.ID
		byFullName[createdAccount.FullName] = *createdAccount
	}

	return byFullName, len(accounts), nil
}

// ensureOpeningAccount finds or creates the equity opening-balance account
// in the target book.
func (e *Engine) ensureOpeningAccount(dstID int64, byFullName map[string]bookd.Account, baseCurrency string) (bookd.Account, int, error) {
	openingFull := e.policy.OpeningFullName()

	if account, ok := byFullName[openingFull]; ok {
		if account.Placeholder {
			return bookd.Account{}, 0, fmt.Errorf("%w: opening-balance account %q is a placeholder", ErrStructuralMismatch, openingFull)
		}
		return account, 0, nil
	}

	created := 0
	parent, ok := byFullName[e.policy.EquityAccount]
	if !ok {
		slog.Info("Creating equity account", "name", e.policy.EquityAccount)
		newParent, err := e.svc.CreateAccount(dstID, bookd.NewAccount{
			Name:        e.policy.EquityAccount,
			Type:        bookd.AccountTypeEquity,
			Commodity:   baseCurrency,
			Placeholder: true,
		})
		if err != nil {
			return bookd.Account{}, 0, fmt.Errorf("%w: create account %q: %w", ErrTargetWrite, e.policy.EquityAccount, err)
		}
		parent = *newParent
		byFullName[parent.FullName] = parent
		created++
	}

	slog.Info("Creating opening-balance account", "name", openingFull)
	opening, err := e.svc.CreateAccount(dstID, bookd.NewAccount{
		Name:      e.policy.OpeningAccount,
		ParentID:  &parent.ID,
		Type:      bookd.AccountTypeEquity,
		Commodity: baseCurrency,
	})
	if err != nil {
		return bookd.Account{}, 0, fmt.Errorf("%w: create account %q: %w", ErrTargetWrite, openingFull, err)
	}
	byFullName[opening.FullName] = *opening
	created++

	return *opening, created, nil
}

// closeQuietly closes a session, logging instead of failing; used for the
// read-only source and for abandoning a partial target.
func (e *Engine) closeQuietly(sessionID int64, path string) {
	if err := e.svc.CloseSession(sessionID); err != nil {
		slog.Warn("Failed to close session", "path", path, "error", err)
	}
}

func validateOptions(opts Options) error {
	if opts.SourcePath == "" || opts.TargetPath == "" {
		return errors.New("source and target paths are required")
	}
	if opts.SourcePath == opts.TargetPath {
		return errors.New("source and target are the same book path")
	}
	if _, err := time.Parse("2006-01-02", opts.OpeningDate); err != nil {
		return fmt.Errorf("invalid opening date %q: %w", opts.OpeningDate, err)
	}
	return nil
}

// closingDateFor returns the day before the opening date: balances are read
// as of the last day of the closing year, inclusive.
func closingDateFor(openingDate string) (string, error) {
	opening, err := time.Parse("2006-01-02", openingDate)
	if err != nil {
		return "", fmt.Errorf("invalid opening date %q: %w", openingDate, err)
	}
	return opening.AddDate(0, 0, -1).Format("2006-01-02"), nil
}

// topLevelType walks to the account's top-level ancestor and returns its
// type; balance carrying is decided by the top of the tree, not the leaf.
func topLevelType(account bookd.Account, byID map[int64]bookd.Account) (string, error) {
	current := account
	for current.ParentID != nil {
		parent, ok := byID[*current.ParentID]
		if !ok {
			return "", fmt.Errorf("%w: account %q references unknown parent", ErrStructuralMismatch, current.FullName)
		}
		current = parent
	}
	return current.Type, nil
}

// creationOrder sorts accounts so parents precede children: by depth first,
// then by full name for determinism.
func creationOrder(accounts []bookd.Account) []bookd.Account {
	ordered := append([]bookd.Account(nil), accounts...)
	sort.Slice(ordered, func(i, j int) bool {
		di := strings.Count(ordered[i].FullName, bookd.FullNameSeparator)
		dj := strings.Count(ordered[j].FullName, bookd.FullNameSeparator)
		if di != dj {
			return di < dj
		}
		return ordered[i].FullName < ordered[j].FullName
	})
	return ordered
}
