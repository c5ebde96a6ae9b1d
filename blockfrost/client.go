// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blockfrost

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/blinklabs-io/ratify/campaign"
	bfgo "github.com/blockfrost/blockfrost-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// MaxPaginationCount is the largest page Blockfrost will return
	MaxPaginationCount = 100
	// maxPages bounds a paged listing
	maxPages = 500
)

// DefaultBaseURLs maps network names to the public Blockfrost endpoints
var DefaultBaseURLs = map[string]string{
	"mainnet": bfgo.CardanoMainNet,
	"preprod": bfgo.CardanoPreProd,
	"preview": bfgo.CardanoPreview,
}

// ErrTxNotFound is returned when the indexer has no record of a transaction
var ErrTxNotFound = campaign.ErrTxNotFound

// BaseURLForNetwork returns the public Blockfrost URL for the given
// network name
func BaseURLForNetwork(network string) (string, error) {
	baseURL, ok := DefaultBaseURLs[network]
	if !ok {
		return "", fmt.Errorf(
			"no default Blockfrost URL for network %q",
			network,
		)
	}
	return baseURL, nil
}

// Client adapts the Blockfrost SDK to the campaign chain interfaces
type Client struct {
	logger     *slog.Logger
	api        bfgo.APIClient
	httpClient *http.Client
	baseURL    string
	projectID  string
	pageSize   int
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithProjectID sets the Blockfrost project ID sent with every request
func WithProjectID(projectID string) ClientOption {
	return func(c *Client) {
		c.projectID = projectID
	}
}

// WithHTTPClient sets a custom *http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithPageSize overrides the page size used for paged listings
func WithPageSize(count int) ClientOption {
	return func(c *Client) {
		if count > 0 && count <= MaxPaginationCount {
			c.pageSize = count
		}
	}
}

// NewClient creates a new Blockfrost API client. The baseURL includes the
// API version path, e.g. "https://cardano-preview.blockfrost.io/api/v0".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		pageSize: MaxPaginationCount,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	c.logger = c.logger.With("component", "blockfrost")
	// Retries are driven by the caller's backoff policy, so the SDK gets
	// a plain client instead of its default retrying one
	c.api = bfgo.NewAPIClient(bfgo.APIClientOptions{
		ProjectID: c.projectID,
		Server:    c.baseURL,
		Client:    c.httpClient,
	})
	return c
}

// classify maps SDK errors onto the campaign error kinds. Rate limiting,
// auto-bans (418) and server errors mean the backend is unavailable, as
// does any failure that never produced an API response.
func (c *Client) classify(op string, err error) error {
	var apiErr *bfgo.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w: %w", op, campaign.ErrChainUnavailable, err)
	}
	status := apiErr.Response.StatusCode
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusTeapot,
		status >= http.StatusInternalServerError:
		c.logger.Debug(
			"blockfrost unavailable",
			"op", op,
			"status", status,
		)
		return fmt.Errorf(
			"%s: %w: status %d: %s",
			op,
			campaign.ErrChainUnavailable,
			status,
			apiErr.Response.Message,
		)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func apiStatus(err error) int {
	var apiErr *bfgo.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Response.StatusCode
	}
	return 0
}

func isNotFound(err error) bool {
	return apiStatus(err) == http.StatusNotFound
}
