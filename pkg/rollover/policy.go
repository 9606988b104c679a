// Package rollover implements the year-end rollover of a ledger book:
// opening balances carried into a new book through the bookd data API,
// with the learned auto-assignment rule table copied along.
package rollover

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// Policy defaults, matching the conventional equity layout.
const (
	DefaultEquityAccount  = "Equity"
	DefaultOpeningAccount = "Opening balance"
	DefaultDescription    = "Opening balance"
)

var defaultIncludeTypes = []string{bookd.AccountTypeAsset, bookd.AccountTypeLiability}

// Policy controls which accounts a rollover carries forward and where the
// opening entries balance against.
type Policy struct {
	// IncludeAccountTypes selects top-level account types whose descendants
	// carry opening balances.
	IncludeAccountTypes []string `yaml:"include_account_types"`
	// EquityAccount is the name of the top-level equity placeholder.
	EquityAccount string `yaml:"equity_account"`
	// OpeningAccount is the name of the opening-balance child under it.
	OpeningAccount string `yaml:"opening_account"`
	// Description is the opening transaction description.
	Description string `yaml:"description"`

	includeTypes map[string]bool
}

// DefaultPolicy returns the policy used when no policy file is configured:
// assets and liabilities carried, balanced against Equity:Opening balance.
func DefaultPolicy() *Policy {
	p := &Policy{}
	p.normalize()
	return p
}

// LoadPolicy reads a rollover policy from a YAML file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	policy.normalize()
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	return &policy, nil
}

// normalize fills unset fields with defaults and builds the type lookup.
func (p *Policy) normalize() {
	if len(p.IncludeAccountTypes) == 0 {
		p.IncludeAccountTypes = append([]string(nil), defaultIncludeTypes...)
	}
	if p.EquityAccount == "" {
		p.EquityAccount = DefaultEquityAccount
	}
	if p.OpeningAccount == "" {
		p.OpeningAccount = DefaultOpeningAccount
	}
	if p.Description == "" {
		p.Description = DefaultDescription
	}

	p.includeTypes = make(map[string]bool, len(p.IncludeAccountTypes))
	for _, t := range p.IncludeAccountTypes {
		p.includeTypes[t] = true
	}
}

// Validate checks the policy for unknown account types.
func (p *Policy) Validate() error {
	known := map[string]bool{
		bookd.AccountTypeAsset:     true,
		bookd.AccountTypeLiability: true,
		bookd.AccountTypeEquity:    true,
		bookd.AccountTypeIncome:    true,
		bookd.AccountTypeExpense:   true,
	}

	for _, t := range p.IncludeAccountTypes {
		if !known[t] {
			return fmt.Errorf("unknown account type in policy: %q", t)
		}
	}

	return nil
}

// IncludesType reports whether descendants of a top-level account of the
// given type carry opening balances.
func (p *Policy) IncludesType(accountType string) bool {
	return p.includeTypes[accountType]
}

// OpeningFullName returns the full name of the opening-balance equity
// account.
func (p *Policy) OpeningFullName() string {
	return p.EquityAccount + bookd.FullNameSeparator + p.OpeningAccount
}
