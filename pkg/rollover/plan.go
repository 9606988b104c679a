package rollover

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// Opening is one planned opening-balance transaction: an account's closing
// balance carried into the new year.
type Opening struct {
	FullName  string
	Commodity string
	// Amount is the closing balance in the account's commodity.
	Amount decimal.Decimal
	// Value is the amount expressed in the book's base currency.
	Value decimal.Decimal
	// Converted marks balances valued through a price quote.
	Converted bool
}

// Plan is the read-only result of inspecting the source book: everything a
// rollover would write, computed before anything is written.
type Plan struct {
	SourcePath   string
	TargetPath   string
	OpeningDate  string
	ClosingDate  string
	BaseCurrency string
	Description  string
	// OpeningAccount is the full name of the equity account the openings
	// balance against.
	OpeningAccount string

	// Accounts is the full source tree in creation order (parents first).
	Accounts []bookd.Account
	// Openings are the balances to carry, sorted by account full name.
	Openings []Opening
	// Rules is the size of the rule table to copy.
	Rules int

	SkippedZero        int
	SkippedPlaceholder int
	SkippedExcluded    int
}

// TotalValue returns the net carried value in the base currency: the amount
// the equity opening account will hold after the rollover.
func (p *Plan) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, opening := range p.Openings {
		total = total.Add(opening.Value)
	}
	return total
}

// Format renders the plan as human-readable text for dry runs.
func (p *Plan) Format() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Rollover %s -> %s\n", p.SourcePath, p.TargetPath))
	sb.WriteString(fmt.Sprintf("Opening date %s (closing balances as of %s)\n", p.OpeningDate, p.ClosingDate))
	sb.WriteString(fmt.Sprintf("Opening description %q, base currency %s\n", p.Description, p.BaseCurrency))
	sb.WriteString("\n")

	for _, opening := range p.Openings {
		sb.WriteString("  ")
		sb.WriteString(opening.FullName)

		spaces := 44 - len(opening.FullName)
		if spaces < 1 {
			spaces = 1
		}
		sb.WriteString(strings.Repeat(" ", spaces))

		sb.WriteString(fmt.Sprintf("%16s %s", opening.Amount.String(), opening.Commodity))
		if opening.Converted {
			sb.WriteString(fmt.Sprintf(" (= %s %s)", opening.Value.String(), p.BaseCurrency))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  %d opening transactions, net %s %s against %s\n",
		len(p.Openings), p.TotalValue().String(), p.BaseCurrency, p.OpeningAccount))
	sb.WriteString(fmt.Sprintf("  %d accounts to recreate, %d rules to copy\n", len(p.Accounts), p.Rules))
	sb.WriteString(fmt.Sprintf("  skipped: %d zero balance, %d placeholder, %d excluded type\n",
		p.SkippedZero, p.SkippedPlaceholder, p.SkippedExcluded))

	return sb.String()
}
