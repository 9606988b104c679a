package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/openledgerworks/bookd-automation/pkg/bookd"
)

// ruleRecord scopes an import rule to its book in storage.
type ruleRecord struct {
	BookID int64 `json:"book_id"`
	bookd.ImportRule
}

// CreateImportRule records one learned token-to-account assignment.
func (s *Store) CreateImportRule(bookID int64, token, account string, weight int64) (*bookd.ImportRule, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalid)
	}
	if account == "" {
		return nil, fmt.Errorf("%w: account is required", ErrInvalid)
	}

	id, err := s.NextID(BucketImportRules)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ID: %w", err)
	}

	record := &ruleRecord{
		BookID: bookID,
		ImportRule: bookd.ImportRule{
			ID:      id,
			Token:   token,
			Account: account,
			Weight:  weight,
		},
	}

	if err := s.Put(BucketImportRules, id, record); err != nil {
		return nil, fmt.Errorf("failed to save import rule: %w", err)
	}

	rule := record.ImportRule
	return &rule, nil
}

// ListImportRules retrieves a book's import rules, sorted by token then account.
func (s *Store) ListImportRules(bookID int64) ([]bookd.ImportRule, error) {
	results, err := s.List(BucketImportRules, byBookID(bookID))
	if err != nil {
		return nil, err
	}

	rules := make([]bookd.ImportRule, 0, len(results))
	for _, data := range results {
		var record ruleRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal import rule: %w", err)
		}
		rules = append(rules, record.ImportRule)
	}

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Token != rules[j].Token {
			return rules[i].Token < rules[j].Token
		}
		return rules[i].Account < rules[j].Account
	})

	return rules, nil
}

// CopyImportRules replaces the target book's import rules with a verbatim
// copy of the source book's rules. It returns the number of rules copied.
func (s *Store) CopyImportRules(srcBookID, dstBookID int64) (int, error) {
	rules, err := s.ListImportRules(srcBookID)
	if err != nil {
		return 0, err
	}

	if _, err := s.DeleteMatching(BucketImportRules, byBookID(dstBookID)); err != nil {
		return 0, fmt.Errorf("failed to clear target rules: %w", err)
	}

	for _, rule := range rules {
		if _, err := s.CreateImportRule(dstBookID, rule.Token, rule.Account, rule.Weight); err != nil {
			return 0, err
		}
	}

	return len(rules), nil
}
