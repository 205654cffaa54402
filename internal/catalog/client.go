package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// Client fetches the catalog from a node service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Fetch returns the service's catalog. A non-2xx response is an error of the
// form "HTTP <code>: <text>".
func (c *Client) Fetch(ctx context.Context) ([]core.NodeType, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/nodes", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var types []core.NodeType
	if err := json.NewDecoder(resp.Body).Decode(&types); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return types, nil
}

// FetchWithFallback returns the service's catalog, or the built-in one when
// the service cannot be reached. fromService reports which one was used.
func (c *Client) FetchWithFallback(ctx context.Context) (types []core.NodeType, fromService bool) {
	types, err := c.Fetch(ctx)
	if err != nil {
		c.logger.Warn("node service unavailable, using built-in catalog", "url", c.baseURL, "error", err)
		return Default(), false
	}
	return types, true
}
