// Package provider implements the typed HTTP client for the Open Banking
// aggregator's account and transaction endpoints, including SCA detection,
// plus the OAuth surface used to acquire and refresh consent tokens.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixkade/ledgersync/internal/common"
	"golang.org/x/oauth2"
)

// maxErrorBody bounds how much of a provider error body is surfaced.
const maxErrorBody = 512

// Config holds aggregator API configuration.
type Config struct {
	Name         string
	BaseURL      string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
}

// Validate ensures all required fields are present. Missing credentials are
// a configuration error and fail fast.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("%w: provider client ID is required", common.ErrMissingConfig)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("%w: provider client secret is required", common.ErrMissingConfig)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("%w: provider base URL is required", common.ErrMissingConfig)
	}
	if c.AuthURL == "" || c.TokenURL == "" {
		return fmt.Errorf("%w: provider OAuth endpoints are required", common.ErrMissingConfig)
	}
	return nil
}

// ProviderError carries a non-2xx provider response: the HTTP status and a
// truncated copy of the body.
type ProviderError struct {
	Body       string
	StatusCode int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Body)
}

// Client is a thin typed wrapper over the aggregator's data API.
type Client struct {
	httpClient *http.Client
	oauth      *oauth2.Config
	logger     *slog.Logger
	name       string
	baseURL    string
	revokeURL  string
}

// NewClient creates a provider client from validated configuration.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	name := cfg.Name
	if name == "" {
		name = "aggregator"
	}

	return &Client{
		name:      name,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		revokeURL: cfg.RevokeURL,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "provider", "provider", name),
	}, nil
}

// Name returns the provider identifier recorded on connections.
func (c *Client) Name() string {
	return c.name
}

// ListAccounts fetches the accounts visible under the given consent.
func (c *Client) ListAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	var resp accountsResponse
	if err := c.get(ctx, accessToken, "/accounts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// GetBalance fetches the current balance for one account.
func (c *Client) GetBalance(ctx context.Context, accessToken, accountID string) (*Balance, error) {
	var balance Balance
	path := fmt.Sprintf("/accounts/%s/balance", url.PathEscape(accountID))
	if err := c.get(ctx, accessToken, path, nil, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// ListTransactions fetches transactions for an account within [from, to].
// A lapsed strong-customer-authentication window surfaces as ErrSCAExceeded,
// which requires a full reconnect rather than a retry.
func (c *Client) ListTransactions(ctx context.Context, accessToken, accountID string, from, to time.Time) ([]Transaction, error) {
	c.logger.Debug("fetching transactions",
		"account_id", accountID,
		"from", from.Format("2006-01-02"),
		"to", to.Format("2006-01-02"))

	query := url.Values{}
	query.Set("from", from.Format("2006-01-02"))
	query.Set("to", to.Format("2006-01-02"))

	var resp transactionsResponse
	path := fmt.Sprintf("/accounts/%s/transactions", url.PathEscape(accountID))
	if err := c.get(ctx, accessToken, path, query, &resp); err != nil {
		return nil, err
	}

	valid := make([]Transaction, 0, len(resp.Transactions))
	for _, txn := range resp.Transactions {
		if err := txn.Validate(); err != nil {
			c.logger.Warn("dropping invalid transaction from provider", "error", err)
			continue
		}
		valid = append(valid, txn)
	}

	c.logger.Info("fetched transactions", "account_id", accountID, "count", len(valid))
	return valid, nil
}

// RevokeToken invalidates a token at the provider.
func (c *Client) RevokeToken(ctx context.Context, token string) error {
	if c.revokeURL == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("client_id", c.oauth.ClientID)
	form.Set("client_secret", c.oauth.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if isSCAResponse(resp.StatusCode, string(body)) {
			return fmt.Errorf("%w: %s", common.ErrSCAExceeded, strings.TrimSpace(string(body)))
		}
		return &ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}

// isSCAResponse detects the provider rejecting a historical-data request
// because strong customer authentication has lapsed. This is distinct from a
// generic auth failure: it demands a full reconnect, not a token refresh.
func isSCAResponse(status int, body string) bool {
	if status != http.StatusForbidden && status != http.StatusBadRequest {
		return false
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "sca_required") ||
		strings.Contains(lower, "sca_exceeded") ||
		strings.Contains(lower, "strong customer authentication") ||
		strings.Contains(lower, "psu authentication") ||
		strings.Contains(lower, "consent expired")
}
