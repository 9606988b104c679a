// Package pathutil provides centralized path management for book files and directories.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// BookFileExt is the file extension for bookd book files.
const BookFileExt = ".bookd"

// yearPattern matches a four-digit year in a book file name.
var yearPattern = regexp.MustCompile(`(\d{4})`)

// PathResolver manages paths for book files, the history database, and the policy file.
type PathResolver struct {
	booksRoot    string
	databasePath string
	policyPath   string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// BooksRoot is the root directory for all book files (e.g., ~/accounting/books)
	BooksRoot string
	// DatabasePath is the path to the SQLite database file for rollover history
	DatabasePath string
	// PolicyPath is the path to the rollover policy file
	PolicyPath string
}

// New creates a new PathResolver with the given configuration.
// If DatabasePath is empty, it defaults to {BooksRoot}/.rollover/history.db
// If PolicyPath is empty, it defaults to {BooksRoot}/rollover.yaml
func New(config Config) *PathResolver {
	dbPath := config.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.BooksRoot, ".rollover", "history.db")
	}

	policyPath := config.PolicyPath
	if policyPath == "" {
		policyPath = filepath.Join(config.BooksRoot, "rollover.yaml")
	}

	return &PathResolver{
		booksRoot:    config.BooksRoot,
		databasePath: dbPath,
		policyPath:   policyPath,
	}
}

// FromEnv creates a PathResolver from environment variables.
// Expected environment variables:
//   - BOOKS_ROOT: Root directory for book files (required)
//   - ROLLOVER_DB_PATH: History database file path (optional)
//   - ROLLOVER_POLICY_PATH: Rollover policy file path (optional)
func FromEnv() (*PathResolver, error) {
	booksRoot := os.Getenv("BOOKS_ROOT")
	if booksRoot == "" {
		return nil, fmt.Errorf("BOOKS_ROOT environment variable is required")
	}

	return New(Config{
		BooksRoot:    booksRoot,
		DatabasePath: os.Getenv("ROLLOVER_DB_PATH"),
		PolicyPath:   os.Getenv("ROLLOVER_POLICY_PATH"),
	}), nil
}

// GetBooksRoot returns the books root directory.
func (p *PathResolver) GetBooksRoot() string {
	return p.booksRoot
}

// GetDatabasePath returns the history database file path.
func (p *PathResolver) GetDatabasePath() string {
	return p.databasePath
}

// GetPolicyPath returns the rollover policy file path.
func (p *PathResolver) GetPolicyPath() string {
	return p.policyPath
}

// ResolveBookPath resolves a book name or path to a full book file path.
// Absolute paths are returned as-is. A bare name gets the books root and
// the book file extension added.
// Example: "acme-2024" -> ~/accounting/books/acme-2024.bookd
func (p *PathResolver) ResolveBookPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}

	if !strings.HasSuffix(name, BookFileExt) {
		name += BookFileExt
	}

	return filepath.Join(p.booksRoot, name)
}

// YearBookPath returns the book file path for a year.
// Example: ~/accounting/books/2024.bookd
func (p *PathResolver) YearBookPath(year int) string {
	return filepath.Join(p.booksRoot, fmt.Sprintf("%d%s", year, BookFileExt))
}

// YearFromBookPath extracts the four-digit year from a book file name.
// Example: books/acme-2024.bookd -> 2024
func YearFromBookPath(path string) (int, error) {
	base := filepath.Base(path)
	match := yearPattern.FindString(base)
	if match == "" {
		return 0, fmt.Errorf("no four-digit year in book file name: %s", base)
	}

	year, err := strconv.Atoi(match)
	if err != nil {
		return 0, fmt.Errorf("invalid year in book file name: %s", base)
	}

	return year, nil
}

// NextYearBookPath returns the path of the following year's book by
// incrementing the year in the file name.
// Example: books/acme-2024.bookd -> books/acme-2025.bookd
func NextYearBookPath(path string) (string, error) {
	year, err := YearFromBookPath(path)
	if err != nil {
		return "", err
	}

	base := filepath.Base(path)
	next := strings.Replace(base, strconv.Itoa(year), strconv.Itoa(year+1), 1)

	return filepath.Join(filepath.Dir(path), next), nil
}

// EnsureDir creates a directory if it doesn't exist.
// It creates all parent directories as needed (like mkdir -p).
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return p.EnsureDir(dir)
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// IsDir checks if a path is a directory.
func (p *PathResolver) IsDir(dirPath string) bool {
	info, err := os.Stat(dirPath)
	if err != nil {
		return false
	}
	return info.IsDir()
}
