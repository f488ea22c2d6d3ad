// Package notion writes post records into a Notion database. Client wraps
// the two REST calls the sync needs; Sink layers dedupe, batching and
// conflict retries on top.
package notion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	// DefaultBaseURL is the public Notion API root
	DefaultBaseURL = "https://api.notion.com/v1"
	// DefaultVersion is the Notion-Version header sent with every request
	DefaultVersion = "2022-06-28"

	maxBodySize = 8 << 20
)

// APIError is a non-2xx response from the Notion API
type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion API error: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsConflict reports whether err is a write conflict that may succeed on retry
func IsConflict(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusConflict || apiErr.Code == "conflict_error"
}

// Client is a Notion API client bound to one database
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	version    string
	databaseID string
}

// NewClient creates a Notion client. Empty baseURL and version fall back to
// the public defaults.
func NewClient(baseURL, token, version, databaseID string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if version == "" {
		version = DefaultVersion
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		version:    version,
		databaseID: databaseID,
	}
}

// QueryDatabase fetches one page of database rows. An empty cursor starts
// from the beginning.
func (c *Client) QueryDatabase(ctx context.Context, cursor string, pageSize int) (*QueryResponse, error) {
	url := fmt.Sprintf("%s/databases/%s/query", c.baseURL, c.databaseID)

	var resp QueryResponse
	if err := c.do(ctx, http.MethodPost, url, queryRequest{PageSize: pageSize, StartCursor: cursor}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreatePage inserts one row into the database
func (c *Client) CreatePage(ctx context.Context, props Properties) (*Page, error) {
	url := fmt.Sprintf("%s/pages", c.baseURL)

	payload := createPageRequest{
		Parent:     parent{DatabaseID: c.databaseID},
		Properties: props,
	}

	var page Page
	if err := c.do(ctx, http.MethodPost, url, payload, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) do(ctx context.Context, method, url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
