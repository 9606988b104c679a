package bookd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ClientConfig represents the configuration for the bookd API client.
type ClientConfig struct {
	APIURL       string
	ClientID     string
	ClientSecret string
	AccessToken  string
	Timeout      time.Duration // Default: 30 seconds
}

// Client is a bookd data API client.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	accessToken  string
	clientID     string
	clientSecret string
}

// NewClient creates a new bookd API client.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:      config.APIURL,
		accessToken:  config.AccessToken,
		clientID:     config.ClientID,
		clientSecret: config.ClientSecret,
	}
}

// SetAccessToken sets the access token for API requests.
func (c *Client) SetAccessToken(token string) {
	c.accessToken = token
}

// GetAccessToken obtains an OAuth2 access token via client credentials.
func (c *Client) GetAccessToken() (string, error) {
	tokenURL := fmt.Sprintf("%s/oauth/token", c.baseURL)

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)

	req, err := http.NewRequest("POST", tokenURL, bytes.NewBufferString(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", parseError(resp)
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	c.accessToken = tokenResp.AccessToken
	return c.accessToken, nil
}

// GetBook looks up a book by path without opening it. Returns an APIError
// with status 404 when no book exists at the path.
func (c *Client) GetBook(path string) (*Book, error) {
	query := url.Values{}
	query.Set("path", path)

	var bookResp BookResponse
	if err := c.get("/api/1/books", query, &bookResp); err != nil {
		return nil, err
	}
	return &bookResp.Book, nil
}

// OpenSession opens a session on an existing book.
func (c *Client) OpenSession(path string, mode OpenMode) (*Session, error) {
	req := OpenSessionRequest{Path: path, Mode: mode}

	var sessResp SessionResponse
	if err := c.post("/api/1/sessions", req, &sessResp); err != nil {
		return nil, err
	}
	return &sessResp.Session, nil
}

// CreateBook creates a new book and returns an open read-write session on it.
func (c *Client) CreateBook(path, baseCurrency string, overwrite bool) (*Session, error) {
	req := CreateBookRequest{Path: path, BaseCurrency: baseCurrency, Overwrite: overwrite}

	var sessResp SessionResponse
	if err := c.post("/api/1/books", req, &sessResp); err != nil {
		return nil, err
	}
	return &sessResp.Session, nil
}

// SaveSession persists the session's book.
func (c *Client) SaveSession(sessionID int64) error {
	return c.post(fmt.Sprintf("/api/1/sessions/%d/save", sessionID), nil, nil)
}

// CloseSession closes a session and releases any lock it holds.
func (c *Client) CloseSession(sessionID int64) error {
	return c.delete(fmt.Sprintf("/api/1/sessions/%d", sessionID))
}

// ListAccounts lists all accounts in the session's book.
func (c *Client) ListAccounts(sessionID int64) ([]Account, error) {
	var accountsResp AccountsResponse
	if err := c.get(fmt.Sprintf("/api/1/sessions/%d/accounts", sessionID), nil, &accountsResp); err != nil {
		return nil, err
	}
	return accountsResp.Accounts, nil
}

// CreateAccount creates an account in the session's book.
func (c *Client) CreateAccount(sessionID int64, account NewAccount) (*Account, error) {
	var accountResp AccountResponse
	if err := c.post(fmt.Sprintf("/api/1/sessions/%d/accounts", sessionID), account, &accountResp); err != nil {
		return nil, err
	}
	return &accountResp.Account, nil
}

// ListBalances returns every account's balance as of the given date
// (YYYY-MM-DD, inclusive).
func (c *Client) ListBalances(sessionID int64, asOf string) ([]Balance, error) {
	query := url.Values{}
	query.Set("as_of", asOf)

	var balancesResp BalancesResponse
	if err := c.get(fmt.Sprintf("/api/1/sessions/%d/balances", sessionID), query, &balancesResp); err != nil {
		return nil, err
	}
	return balancesResp.Balances, nil
}

// CreateTransaction creates a transaction in the session's book.
func (c *Client) CreateTransaction(sessionID int64, txn NewTransaction) (*Transaction, error) {
	var txnResp TransactionResponse
	if err := c.post(fmt.Sprintf("/api/1/sessions/%d/transactions", sessionID), txn, &txnResp); err != nil {
		return nil, err
	}
	return &txnResp.Transaction, nil
}

// ListTransactions lists transactions with optional parameters
// (date_from, date_to).
func (c *Client) ListTransactions(sessionID int64, params map[string]string) ([]Transaction, error) {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	var txnsResp TransactionsResponse
	if err := c.get(fmt.Sprintf("/api/1/sessions/%d/transactions", sessionID), query, &txnsResp); err != nil {
		return nil, err
	}
	return txnsResp.Transactions, nil
}

// ListImportRules lists the auto-assignment rule table of the session's book.
func (c *Client) ListImportRules(sessionID int64) ([]ImportRule, error) {
	var rulesResp ImportRulesResponse
	if err := c.get(fmt.Sprintf("/api/1/sessions/%d/import-rules", sessionID), nil, &rulesResp); err != nil {
		return nil, err
	}
	return rulesResp.ImportRules, nil
}

// CreateImportRule records one learned token-to-account assignment in the
// session's book.
func (c *Client) CreateImportRule(sessionID int64, rule NewImportRule) (*ImportRule, error) {
	var ruleResp ImportRuleResponse
	if err := c.post(fmt.Sprintf("/api/1/sessions/%d/import-rules", sessionID), rule, &ruleResp); err != nil {
		return nil, err
	}
	return &ruleResp.ImportRule, nil
}

// CopyImportRules replaces the target book's rule table with the source
// book's, server side. Returns the number of rules copied.
func (c *Client) CopyImportRules(srcSessionID, dstSessionID int64) (int, error) {
	req := CopyImportRulesRequest{SourceSessionID: srcSessionID, TargetSessionID: dstSessionID}

	var copyResp CopyImportRulesResponse
	if err := c.post("/api/1/import-rules/copy", req, &copyResp); err != nil {
		return 0, err
	}
	return copyResp.Copied, nil
}

// NearestPrice returns the price quote for commodity in currency nearest to
// the given date. Returns an APIError with status 404 when the book has no
// usable quote.
func (c *Client) NearestPrice(sessionID int64, commodity, currency, date string) (*Price, error) {
	query := url.Values{}
	query.Set("commodity", commodity)
	query.Set("currency", currency)
	query.Set("date", date)

	var priceResp PriceResponse
	if err := c.get(fmt.Sprintf("/api/1/sessions/%d/prices/nearest", sessionID), query, &priceResp); err != nil {
		return nil, err
	}
	return &priceResp.Price, nil
}

// CreatePrice records a price quote in the session's book.
func (c *Client) CreatePrice(sessionID int64, price NewPrice) (*Price, error) {
	var priceResp PriceResponse
	if err := c.post(fmt.Sprintf("/api/1/sessions/%d/prices", sessionID), price, &priceResp); err != nil {
		return nil, err
	}
	return &priceResp.Price, nil
}

// get performs an authenticated GET request and decodes the response into out.
func (c *Client) get(path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint = fmt.Sprintf("%s?%s", endpoint, query.Encode())
	}

	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(req, out)
}

// post performs an authenticated POST request with a JSON body and decodes
// the response into out. Both body and out may be nil.
func (c *Client) post(path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest("POST", c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(req, out)
}

// delete performs an authenticated DELETE request.
func (c *Client) delete(path string) error {
	req, err := http.NewRequest("DELETE", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// APIError represents an error response from the bookd API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("bookd API error (status %d): %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("bookd API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a bookd not-found response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a bookd conflict response, returned for
// locked books and for creating over an existing book without overwrite.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// parseError parses an error response from the bookd API.
func parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "failed to read error response"}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Message == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return &APIError{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Message}
}
