// Package hubclient fetches scheduled payment intents from the hub API.
package hubclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cardstack/scheduled-payment-crank/pkg/logger"
	"github.com/cardstack/scheduled-payment-crank/pkg/models"
)

// maxPages bounds a single fetch
const maxPages = 100

// APIResponse represents the structure of the API response
type APIResponse struct {
	Payments   []models.IntentJSON `json:"scheduled_payments,omitempty"`
	Data       []models.IntentJSON `json:"data,omitempty"` // Some deployments use "data" as the key
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	TotalCount int                 `json:"total_count"`
	TotalPages int                 `json:"total_pages"`
}

// Client represents a hub API client
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a new hub API client
func New(endpoint string, logger logger.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: createHTTPClient(),
		logger:     logger,
	}
}

// Fetch returns every intent the hub lists as scheduled
func (c *Client) Fetch(ctx context.Context) ([]models.IntentJSON, error) {
	var all []models.IntentJSON
	for page := 1; page <= maxPages; page++ {
		resp, bare, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if bare != nil {
			return bare, nil
		}

		if resp.TotalCount == 0 {
			c.logger.Debug("No scheduled payments found (page %d/%d)", resp.Page, resp.TotalPages)
			return all, nil
		}

		payments := resp.Payments
		if len(payments) == 0 {
			payments = resp.Data
		}
		all = append(all, payments...)

		if resp.TotalPages <= page || len(payments) == 0 {
			break
		}
	}
	return all, nil
}

// fetchPage returns either the wrapper or, for servers that answer with
// a bare array, the intents themselves.
func (c *Client) fetchPage(ctx context.Context, page int) (*APIResponse, []models.IntentJSON, error) {
	query := url.Values{}
	query.Set("status", "scheduled")
	query.Set("page", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/v1/scheduled-payments?"+query.Encode(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch scheduled payments: %v", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	// Read the response body regardless of status code
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	// Try to unmarshal into our wrapper struct first
	var apiResp APIResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		// If that fails, try directly as an array
		var intents []models.IntentJSON
		if err := json.Unmarshal(bodyBytes, &intents); err != nil {
			return nil, nil, fmt.Errorf("failed to decode scheduled payments: %v, body: %s", err, string(bodyBytes))
		}
		if intents == nil {
			intents = []models.IntentJSON{}
		}
		return nil, intents, nil
	}
	return &apiResp, nil, nil
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
