// Package plaid implements the HTTP client for the bank data provider.
// Raw account and transaction payloads are passed through as maps so the
// reconciliation layer owns all lenient-parsing decisions.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout = 60 * time.Second
	syncPageSize   = 500

	linkTokenPath     = "/link/token/create"
	tokenExchangePath = "/item/public_token/exchange"
	accountsPath      = "/accounts/get"
	transactionsPath  = "/transactions/sync"
)

var environments = map[string]string{
	"sandbox":     "https://sandbox.plaid.com",
	"development": "https://development.plaid.com",
	"production":  "https://production.plaid.com",
}

// Client handles communication with the provider API
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a provider client for the given environment.
// Unknown environments fall back to sandbox.
func NewClient(clientID, secret, environment string) *Client {
	baseURL, ok := environments[environment]
	if !ok {
		baseURL = environments["sandbox"]
	}

	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		clientID:   clientID,
		secret:     secret,
	}
}

// NewClientWithBaseURL creates a client against an explicit base URL.
// Used in tests to point at a local fake server.
func NewClientWithBaseURL(clientID, secret, baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		clientID:   clientID,
		secret:     secret,
	}
}

// ExchangeResult is the outcome of a public token exchange.
type ExchangeResult struct {
	ItemID      string `json:"item_id"`
	AccessToken string `json:"access_token"`
}

// SyncPage is one page of incremental transaction changes.
type SyncPage struct {
	Added      []map[string]any
	Modified   []map[string]any
	Removed    []string
	NextCursor string
	HasMore    bool
}

// SyncResult aggregates all pages of a sync run. NextCursor is the
// position to persist once the changes have been reconciled.
type SyncResult struct {
	Added      []map[string]any
	Modified   []map[string]any
	Removed    []string
	NextCursor string
}

type errorEnvelope struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// CreateLinkToken requests a short-lived link token for the client-side
// link flow.
func (c *Client) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	body := map[string]any{
		"user":          map[string]any{"client_user_id": userID},
		"client_name":   "WalletAI",
		"products":      []string{"transactions"},
		"country_codes": []string{"US"},
		"language":      "en",
	}

	var resp struct {
		LinkToken string `json:"link_token"`
	}
	if err := c.post(ctx, linkTokenPath, body, &resp); err != nil {
		return "", err
	}

	return resp.LinkToken, nil
}

// ExchangePublicToken trades a public token from the link flow for a
// permanent access token and item id.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error) {
	body := map[string]any{"public_token": publicToken}

	var result ExchangeResult
	if err := c.post(ctx, tokenExchangePath, body, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// GetAccounts fetches the raw account payloads for an item.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) ([]map[string]any, error) {
	body := map[string]any{"access_token": accessToken}

	var resp struct {
		Accounts []map[string]any `json:"accounts"`
	}
	if err := c.post(ctx, accountsPath, body, &resp); err != nil {
		return nil, err
	}

	return resp.Accounts, nil
}

// SyncTransactions fetches one page of transaction changes since cursor.
// An empty cursor starts from the beginning of the item's history.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncPage, error) {
	body := map[string]any{
		"access_token": accessToken,
		"count":        syncPageSize,
	}
	if cursor != "" {
		body["cursor"] = cursor
	}

	var resp struct {
		Added      []map[string]any `json:"added"`
		Modified   []map[string]any `json:"modified"`
		Removed    []map[string]any `json:"removed"`
		NextCursor string           `json:"next_cursor"`
		HasMore    bool             `json:"has_more"`
	}
	if err := c.post(ctx, transactionsPath, body, &resp); err != nil {
		return nil, err
	}

	removed := make([]string, 0, len(resp.Removed))
	for _, entry := range resp.Removed {
		if id, ok := entry["transaction_id"].(string); ok && id != "" {
			removed = append(removed, id)
		}
	}

	return &SyncPage{
		Added:      resp.Added,
		Modified:   resp.Modified,
		Removed:    removed,
		NextCursor: resp.NextCursor,
		HasMore:    resp.HasMore,
	}, nil
}

// SyncAllTransactions pages through the provider's change feed until
// has_more is false, aggregating every page. The caller persists
// NextCursor only after the aggregated changes are reconciled.
func (c *Client) SyncAllTransactions(ctx context.Context, accessToken, cursor string) (*SyncResult, error) {
	result := &SyncResult{NextCursor: cursor}

	for {
		page, err := c.SyncTransactions(ctx, accessToken, result.NextCursor)
		if err != nil {
			return nil, err
		}

		result.Added = append(result.Added, page.Added...)
		result.Modified = append(result.Modified, page.Modified...)
		result.Removed = append(result.Removed, page.Removed...)
		result.NextCursor = page.NextCursor

		if !page.HasMore {
			return result, nil
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body map[string]any, out any) error {
	body["client_id"] = c.clientID
	body["secret"] = c.secret

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var envelope errorEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.ErrorCode == "" {
			return &APIError{
				StatusCode: resp.StatusCode,
				ErrorCode:  "UNKNOWN",
				Message:    string(data),
			}
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorCode:  envelope.ErrorCode,
			Message:    envelope.ErrorMessage,
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
