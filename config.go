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

package ratify

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/ratify/campaign"
	"github.com/blinklabs-io/ratify/database"
	"github.com/blinklabs-io/ratify/event"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultChainQueryTimeout  = 15 * time.Second
	DefaultChainQueryRetries  = 3
	DefaultRetryInterval      = 250 * time.Millisecond
	DefaultViewCacheTTL       = 30 * time.Second
	DefaultViewCacheSize      = 1024
	DefaultRefreshParallelism = 4
	DefaultHistoryLimit       = 20
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultPendingTTL         = 10 * time.Minute
)

type Config struct {
	promRegistry       prometheus.Registerer
	logger             *slog.Logger
	locator            *campaign.Locator
	chain              ChainQuery
	submitter          Submitter
	index              database.Store
	eventBus           *event.EventBus
	chainQueryTimeout  time.Duration
	retryInterval      time.Duration
	viewCacheTTL       time.Duration
	pendingTTL         time.Duration
	shutdownTimeout    time.Duration
	chainQueryRetries  uint
	viewCacheSize      int
	refreshParallelism int
	historyLimit       int
	tracing            bool
	tracingStdout      bool
}

func (c *Config) validate() error {
	if c.locator == nil {
		return errors.New("no campaign locator configured")
	}
	if c.chain == nil {
		return errors.New("no chain query adapter configured")
	}
	if c.index == nil {
		return errors.New("no campaign index configured")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the service config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new service config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:             slog.New(slog.NewJSONHandler(io.Discard, nil)),
		chainQueryTimeout:  DefaultChainQueryTimeout,
		chainQueryRetries:  DefaultChainQueryRetries,
		retryInterval:      DefaultRetryInterval,
		viewCacheTTL:       DefaultViewCacheTTL,
		pendingTTL:         DefaultPendingTTL,
		viewCacheSize:      DefaultViewCacheSize,
		refreshParallelism: DefaultRefreshParallelism,
		historyLimit:       DefaultHistoryLimit,
		shutdownTimeout:    DefaultShutdownTimeout,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithLocator specifies the locator used to derive campaign validators
func WithLocator(locator *campaign.Locator) ConfigOptionFunc {
	return func(c *Config) {
		c.locator = locator
	}
}

// WithChainQuery specifies the chain query adapter. If no submitter is
// configured and the adapter can submit transactions, it is used for that
// too.
func WithChainQuery(chain ChainQuery) ConfigOptionFunc {
	return func(c *Config) {
		c.chain = chain
	}
}

// WithSubmitter specifies the transaction submission capability
func WithSubmitter(submitter Submitter) ConfigOptionFunc {
	return func(c *Config) {
		c.submitter = submitter
	}
}

// WithIndex specifies the off-chain campaign index
func WithIndex(index database.Store) ConfigOptionFunc {
	return func(c *Config) {
		c.index = index
	}
}

// WithEventBus specifies an existing event bus. One is created when not
// specified.
func WithEventBus(eventBus *event.EventBus) ConfigOptionFunc {
	return func(c *Config) {
		c.eventBus = eventBus
	}
}

// WithChainQueryTimeout bounds each individual chain query
func WithChainQueryTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		if timeout > 0 {
			c.chainQueryTimeout = timeout
		}
	}
}

// WithChainQueryRetries specifies how many times an unavailable chain query
// is retried
func WithChainQueryRetries(retries uint) ConfigOptionFunc {
	return func(c *Config) {
		c.chainQueryRetries = retries
	}
}

// WithRetryInterval specifies the initial backoff between chain query
// retries
func WithRetryInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		if interval > 0 {
			c.retryInterval = interval
		}
	}
}

// WithViewCacheTTL specifies how long a reconciled view may be served to
// read paths. A zero TTL disables the cache.
func WithViewCacheTTL(ttl time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.viewCacheTTL = ttl
	}
}

// WithPendingTTL specifies how long an accepted transaction keeps
// projecting onto the index before the chain view must show it
func WithPendingTTL(ttl time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		if ttl > 0 {
			c.pendingTTL = ttl
		}
	}
}

// WithRefreshParallelism bounds concurrent reconciles when listing campaigns
func WithRefreshParallelism(parallelism int) ConfigOptionFunc {
	return func(c *Config) {
		if parallelism > 0 {
			c.refreshParallelism = parallelism
		}
	}
}

// WithHistoryLimit specifies how many transactions view-history returns
func WithHistoryLimit(limit int) ConfigOptionFunc {
	return func(c *Config) {
		if limit > 0 {
			c.historyLimit = limit
		}
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) OTLP collector
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout sets the timeout for graceful shutdown
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		if timeout > 0 {
			c.shutdownTimeout = timeout
		}
	}
}
