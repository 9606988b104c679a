package rollover

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// VerifyReport lists what a post-hoc verification checked and every
// property violation it found. An empty Problems list means the target is a
// faithful rollover of the source.
type VerifyReport struct {
	AccountsChecked int
	OpeningsChecked int
	RulesChecked    int
	Problems        []string
}

// OK reports whether verification found no problems.
func (r *VerifyReport) OK() bool {
	return len(r.Problems) == 0
}

func (r *VerifyReport) addf(format string, args ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Verify re-opens source and target read-only and checks the rollover
// contract after the fact: tree parity, exactly one opening transaction per
// carried account with the expected amount and date, a verbatim rule table,
// and a saved target. IO failures return an error; contract violations land
// in the report.
func (e *Engine) Verify(opts Options) (*VerifyReport, error) {
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

	srcRules, err := e.svc.ListImportRules(src.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: read source rule table: %w", ErrSourceOpen, err)
	}

	slog.Info("Opening target book", "path", opts.TargetPath)
	dst, err := e.svc.OpenSession(opts.TargetPath, bookd.OpenReadOnly)
	if err != nil {
		return nil, fmt.Errorf("open target book %q: %w", opts.TargetPath, err)
	}
	defer e.closeQuietly(dst.ID, opts.TargetPath)

	report := &VerifyReport{}

	book, err := e.svc.GetBook(opts.TargetPath)
	if err != nil {
		return nil, fmt.Errorf("read target book %q: %w", opts.TargetPath, err)
	}
	if book.SavedAt == nil {
		report.addf("target book was never saved; the rollover did not complete")
	}

	dstAccounts, err := e.svc.ListAccounts(dst.ID)
	if err != nil {
		return nil, fmt.Errorf("read target accounts: %w", err)
	}

	dstByFullName := make(map[string]bookd.Account, len(dstAccounts))
	dstByID := make(map[int64]bookd.Account, len(dstAccounts))
	for _, account := range dstAccounts {
		dstByFullName[account.FullName] = account
		dstByID[account.ID] = account
	}

	// Tree parity, source to target. Accounts added to the new book by the
	// operator are legitimate and not checked.
	for _, account := range plan.Accounts {
		report.AccountsChecked++
		if _, ok := dstByFullName[account.FullName]; !ok {
			report.addf("account %q missing from target", account.FullName)
		}
	}

	e.verifyOpenings(dst.ID, plan, dstByFullName, dstByID, report)

	dstRules, err := e.svc.ListImportRules(dst.ID)
	if err != nil {
		return nil, fmt.Errorf("read target rule table: %w", err)
	}
	verifyRules(srcRules, dstRules, report)

	slog.Info("Verification finished",
		"accounts", report.AccountsChecked,
		"openings", report.OpeningsChecked,
		"rules", report.RulesChecked,
		"problems", len(report.Problems),
	)

	return report, nil
}

// verifyOpenings checks that the opening transactions in the target match
// the plan exactly: one per carried account, correct amount, none extra.
func (e *Engine) verifyOpenings(dstID int64, plan *Plan, dstByFullName map[string]bookd.Account, dstByID map[int64]bookd.Account, report *VerifyReport) {
	openingAccount, ok := dstByFullName[plan.OpeningAccount]
	if !ok {
		report.addf("target book lacks opening-balance account %q", plan.OpeningAccount)
		return
	}

	txns, err := e.svc.ListTransactions(dstID, map[string]string{
		"date_from": plan.OpeningDate,
		"date_to":   plan.OpeningDate,
	})
	if err != nil {
		report.addf("cannot read target transactions: %v", err)
		return
	}

	// An opening transaction is any transaction on the opening date with a
	// split against the opening-balance account.
	seen := make(map[string][]bookd.Split)
	for _, txn := range txns {
		var touchesOpening bool
		for _, split := range txn.Splits {
			if split.AccountID == openingAccount.ID {
				touchesOpening = true
				break
			}
		}
		if !touchesOpening {
			continue
		}

		if txn.Description != plan.Description {
			report.addf("opening transaction %d has description %q, want %q", txn.ID, txn.Description, plan.Description)
		}

		for _, split := range txn.Splits {
			if split.AccountID == openingAccount.ID {
				continue
			}
			account, ok := dstByID[split.AccountID]
			if !ok {
				report.addf("opening transaction %d references unknown account id %d", txn.ID, split.AccountID)
				continue
			}
			seen[account.FullName] = append(seen[account.FullName], split)
		}
	}

	for _, opening := range plan.Openings {
		report.OpeningsChecked++

		splits := seen[opening.FullName]
		switch {
		case len(splits) == 0:
			report.addf("no opening transaction for %q", opening.FullName)
		case len(splits) > 1:
			report.addf("%d opening transactions for %q, want exactly one", len(splits), opening.FullName)
		case !splits[0].Amount.Equal(opening.Amount):
			report.addf("opening balance for %q is %s, want %s", opening.FullName, splits[0].Amount.String(), opening.Amount.String())
		}
		delete(seen, opening.FullName)
	}

	// Whatever remains balances against equity without a carried source
	// balance behind it.
	extras := make([]string, 0, len(seen))
	for fullName := range seen {
		extras = append(extras, fullName)
	}
	sort.Strings(extras)
	for _, fullName := range extras {
		report.addf("unexpected opening transaction for %q", fullName)
	}
}

// verifyRules checks structural equality of the two rule tables: same rows
// by token, account, and weight, ignoring row IDs.
func verifyRules(srcRules, dstRules []bookd.ImportRule, report *VerifyReport) {
	report.RulesChecked = len(srcRules)

	if len(srcRules) != len(dstRules) {
		report.addf("rule table has %d rules, want %d", len(dstRules), len(srcRules))
	}

	counts := make(map[string]int, len(srcRules))
	for _, rule := range srcRules {
		counts[ruleKey(rule)]++
	}
	for _, rule := range dstRules {
		key := ruleKey(rule)
		if counts[key] == 0 {
			report.addf("unexpected rule %q -> %q (weight %d)", rule.Token, rule.Account, rule.Weight)
			continue
		}
		counts[key]--
	}
	for key, count := range counts {
		if count > 0 {
			report.addf("missing rule %s (%d copies)", key, count)
		}
	}
}

func ruleKey(rule bookd.ImportRule) string {
	return fmt.Sprintf("%q -> %q weight %d", rule.Token, rule.Account, rule.Weight)
}
