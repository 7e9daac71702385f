// Package plaid implements the data-gateway capability against the Plaid
// REST API. Transport failures are classified into the capability failure
// taxonomy; retrying is the engine's job, not the client's.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pennywise-ai/pennywise/internal/logging"
	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// Environment hosts.
const (
	EnvSandbox    = "https://sandbox.plaid.com"
	EnvProduction = "https://production.plaid.com"
)

const defaultPageSize = 500

// Client talks to the Plaid API. It implements ports.DataGateway plus the
// link-token flow used to connect new accounts.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
	logger     *slog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL points the client at a different host. Tests and sandbox use
// this.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Plaid client for the given credentials.
func New(clientID, secret string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    EnvSandbox,
		clientID:   clientID,
		secret:     secret,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type plaidAccount struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Balances  struct {
		Available       *float64 `json:"available"`
		Current         *float64 `json:"current"`
		ISOCurrencyCode string   `json:"iso_currency_code"`
	} `json:"balances"`
}

func (a plaidAccount) toDomain() domain.Account {
	acct := domain.Account{
		ID:       a.AccountID,
		Name:     a.Name,
		Type:     a.Type,
		Subtype:  a.Subtype,
		Currency: a.Balances.ISOCurrencyCode,
	}
	if a.Balances.Available != nil {
		acct.BalanceAvailable = decimal.NewFromFloat(*a.Balances.Available)
	}
	if a.Balances.Current != nil {
		acct.BalanceCurrent = decimal.NewFromFloat(*a.Balances.Current)
	}
	return acct
}

// FetchAccounts returns all accounts linked to the item.
func (c *Client) FetchAccounts(ctx context.Context, auth domain.AuthContext) ([]domain.Account, error) {
	body := map[string]any{"access_token": auth.AccessToken}
	var resp struct {
		Accounts []plaidAccount `json:"accounts"`
	}
	if err := c.post(ctx, "/accounts/get", body, &resp); err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		accounts = append(accounts, a.toDomain())
	}
	return accounts, nil
}

// FetchTransactions returns the raw transaction rows within the date range,
// paging through the full result set. Rows stay raw; the normalizer owns
// the canonical mapping.
func (c *Client) FetchTransactions(ctx context.Context, auth domain.AuthContext, r domain.DateRange) ([]domain.RawTransaction, error) {
	var all []domain.RawTransaction
	offset := 0
	for {
		body := map[string]any{
			"access_token": auth.AccessToken,
			"start_date":   r.Start.Format("2006-01-02"),
			"end_date":     r.End.Format("2006-01-02"),
			"options": map[string]any{
				"count":  defaultPageSize,
				"offset": offset,
			},
		}
		var resp struct {
			Transactions      []domain.RawTransaction `json:"transactions"`
			TotalTransactions int                     `json:"total_transactions"`
		}
		if err := c.post(ctx, "/transactions/get", body, &resp); err != nil {
			return nil, err
		}

		all = append(all, resp.Transactions...)
		offset = len(all)
		if offset >= resp.TotalTransactions || len(resp.Transactions) == 0 {
			return all, nil
		}
	}
}

// CreateLinkToken starts the Plaid Link flow for a user.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	body := map[string]any{
		"client_name":   "PennyWise",
		"language":      "en",
		"country_codes": []string{"US"},
		"products":      []string{"transactions"},
		"user":          map[string]string{"client_user_id": userID},
	}
	var resp struct {
		LinkToken string `json:"link_token"`
	}
	if err := c.post(ctx, "/link/token/create", body, &resp); err != nil {
		return "", err
	}
	return resp.LinkToken, nil
}

// ExchangePublicToken trades the public token from Plaid Link for the
// permanent access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error) {
	body := map[string]any{"public_token": publicToken}
	var resp struct {
		AccessToken string `json:"access_token"`
		ItemID      string `json:"item_id"`
	}
	if err := c.post(ctx, "/item/public_token/exchange", body, &resp); err != nil {
		return "", "", err
	}
	return resp.AccessToken, resp.ItemID, nil
}

// post sends one authenticated JSON request and decodes the response,
// classifying failures into the capability taxonomy.
func (c *Client) post(ctx context.Context, path string, body map[string]any, out any) error {
	body["client_id"] = c.clientID
	body["secret"] = c.secret

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewCapabilityError(domain.FailureUpstreamUnavailable,
			fmt.Errorf("plaid %s: %w", path, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewCapabilityError(domain.FailureUpstreamUnavailable,
			fmt.Errorf("plaid %s: read response: %w", path, err))
	}

	if resp.StatusCode != http.StatusOK {
		err := classifyStatus(path, resp.StatusCode, raw)
		c.logger.Warn("plaid request failed", "path", path, "status", resp.StatusCode, "err", err)
		return err
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return domain.NewCapabilityError(domain.FailureUpstreamUnavailable,
			fmt.Errorf("plaid %s: decode response: %w", path, err))
	}
	return nil
}

// classifyStatus maps a non-200 Plaid response onto a CapabilityError.
func classifyStatus(path string, status int, raw []byte) error {
	var apiErr struct {
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	}
	_ = json.Unmarshal(raw, &apiErr)

	cause := fmt.Errorf("plaid %s: status %d %s: %s", path, status, apiErr.ErrorCode, apiErr.ErrorMessage)

	switch {
	case apiErr.ErrorCode == "ITEM_LOGIN_REQUIRED":
		return domain.NewCapabilityError(domain.FailureAuthExpired, cause)
	case status == http.StatusTooManyRequests || apiErr.ErrorCode == "RATE_LIMIT_EXCEEDED":
		return domain.NewCapabilityError(domain.FailureRateLimited, cause)
	default:
		return domain.NewCapabilityError(domain.FailureUpstreamUnavailable, cause)
	}
}
