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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/ratify/campaign"
	"github.com/blinklabs-io/ratify/database"
	"github.com/blinklabs-io/ratify/database/models"
	"github.com/blinklabs-io/ratify/event"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ChainQuery is the read side of a chain indexer
type ChainQuery interface {
	UtxosAtAddress(ctx context.Context, address string) ([]campaign.Utxo, error)
	AddressTransactions(
		ctx context.Context,
		address string,
		limit int,
	) ([]campaign.TxInclusion, error)
	TxUtxos(ctx context.Context, txHash string) (*campaign.TxIO, error)
	TxInclusion(ctx context.Context, txHash string) (*campaign.TxInclusion, error)
}

// Submitter sends a signed transaction to the network and returns its hash
type Submitter interface {
	SubmitTx(ctx context.Context, txCbor []byte) (string, error)
}

// Signer turns a transaction plan into a signed transaction. Balancing,
// fee calculation and key custody belong to the signer.
type Signer interface {
	SignPlan(ctx context.Context, plan *campaign.TxPlan) ([]byte, error)
}

// CampaignStatus pairs an index entry with the reconciled chain view
type CampaignStatus struct {
	Entry *models.Campaign `json:"entry,omitempty"`
	View  *campaign.View   `json:"view,omitempty"`
	State campaign.State   `json:"state"`
	Error string           `json:"error,omitempty"`
}

type Ratify struct {
	config        Config
	logger        *slog.Logger
	reconciler    *campaign.Reconciler
	views         *viewCache
	pending       *pendingSet
	metrics       *ratifyMetrics
	tracer        trace.Tracer
	eventBus      *event.EventBus
	inflight      map[string]struct{}
	shutdownFuncs []func(context.Context) error
	inflightMu    sync.Mutex
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Ratify, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.submitter == nil {
		if submitter, ok := cfg.chain.(Submitter); ok {
			cfg.submitter = submitter
		}
	}
	views, err := newViewCache(cfg.viewCacheSize, cfg.viewCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create view cache: %w", err)
	}
	r := &Ratify{
		config:     cfg,
		logger:     cfg.logger.With("component", "ratify"),
		reconciler: campaign.NewReconciler(cfg.locator.NetworkID(), cfg.logger),
		views:      views,
		pending:    newPendingSet(cfg.pendingTTL),
		metrics:    newRatifyMetrics(cfg.promRegistry),
		eventBus:   cfg.eventBus,
		inflight:   make(map[string]struct{}),
	}
	if r.eventBus == nil {
		r.eventBus = event.NewEventBus(cfg.promRegistry, cfg.logger)
		r.shutdownFuncs = append(
			r.shutdownFuncs,
			func(context.Context) error {
				r.eventBus.Stop()
				return nil
			},
		)
	}
	// Configure tracing
	if cfg.tracing {
		if err := r.setupTracing(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to configure tracing: %w", err)
		}
	}
	r.tracer = otel.Tracer(tracerName)
	return r, nil
}

// EventBus returns the bus campaign events are published on
func (r *Ratify) EventBus() *event.EventBus {
	return r.eventBus
}

// Locator returns the configured campaign locator
func (r *Ratify) Locator() *campaign.Locator {
	return r.config.locator
}

func (r *Ratify) Stop() error {
	var err error
	r.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(
			context.Background(),
			r.config.shutdownTimeout,
		)
		defer cancel()
		for _, fn := range r.shutdownFuncs {
			if fnErr := fn(ctx); fnErr != nil {
				err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
			}
		}
		r.shutdownFuncs = nil
	})
	return err
}

// queryChain runs a chain query with a per-attempt timeout, retrying while
// the chain reports itself unavailable
func queryChain[T any](
	ctx context.Context,
	r *Ratify,
	op string,
	fn func(context.Context) (T, error),
) (T, error) {
	ctx, span := r.tracer.Start(ctx, "chain."+op)
	defer span.End()
	start := time.Now()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.retryInterval
	ret, err := backoff.Retry(
		ctx,
		func() (T, error) {
			attemptCtx, cancel := context.WithTimeout(
				ctx,
				r.config.chainQueryTimeout,
			)
			defer cancel()
			ret, err := fn(attemptCtx)
			if err == nil {
				return ret, nil
			}
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				err = fmt.Errorf(
					"%w: %s timed out after %s",
					campaign.ErrChainUnavailable,
					op,
					r.config.chainQueryTimeout,
				)
			}
			if !errors.Is(err, campaign.ErrChainUnavailable) {
				return ret, backoff.Permanent(err)
			}
			r.logger.Debug(
				"chain query failed, retrying",
				"operation", op,
				"error", err,
			)
			return ret, err
		},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.config.chainQueryRetries+1),
	)
	r.metrics.chainQueryDuration.WithLabelValues(op).
		Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return ret, err
}

// Reconcile rebuilds the campaign view from the UTxOs currently at the
// address. It never serves a cached view.
func (r *Ratify) Reconcile(
	ctx context.Context,
	address string,
) (*campaign.View, error) {
	ctx, span := r.tracer.Start(
		ctx,
		"ratify.Reconcile",
		trace.WithAttributes(attribute.String("campaign.address", address)),
	)
	defer span.End()
	utxos, err := queryChain(
		ctx,
		r,
		"utxos_at_address",
		func(ctx context.Context) ([]campaign.Utxo, error) {
			return r.config.chain.UtxosAtAddress(ctx, address)
		},
	)
	if err != nil {
		r.metrics.reconciliations.WithLabelValues("unavailable").Inc()
		return nil, err
	}
	view, err := r.reconciler.Reconcile(address, utxos)
	if err != nil {
		r.views.Remove(address)
		switch {
		case errors.Is(err, campaign.ErrCampaignNotFound):
			r.metrics.reconciliations.WithLabelValues("not_found").Inc()
		case errors.Is(err, campaign.ErrAmbiguousState):
			r.metrics.reconciliations.WithLabelValues("ambiguous").Inc()
			r.logger.Warn(
				"ambiguous campaign state",
				"address", address,
				"error", err,
			)
		default:
			r.metrics.reconciliations.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	r.metrics.reconciliations.WithLabelValues("ok").Inc()
	r.metrics.decodeSkips.Add(float64(view.Skipped))
	span.SetAttributes(
		attribute.Int64("campaign.raised", int64(view.RaisedAmount)), //nolint:gosec
		attribute.Int("campaign.backers", len(view.Backers)),
	)
	r.views.Add(address, view)
	r.refreshIndex(ctx, view)
	return view, nil
}

// refreshIndex writes the reconciled numbers back to an active index entry.
// Failures are logged and never fail the read.
func (r *Ratify) refreshIndex(ctx context.Context, view *campaign.View) {
	entry, err := r.config.index.Get(ctx, view.Address)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			r.logger.Warn(
				"failed to load index entry",
				"address", view.Address,
				"error", err,
			)
		}
		return
	}
	if !entry.IsActive {
		return
	}
	projected := *entry
	r.project(&projected, view, time.Now())
	if projected.RaisedAmount == entry.RaisedAmount &&
		projected.RecordedFunds == entry.RecordedFunds &&
		projected.BackerCount == entry.BackerCount {
		return
	}
	r.writeIndex(ctx, &projected)
}

func (r *Ratify) writeIndex(ctx context.Context, entry *models.Campaign) {
	if err := r.config.index.Upsert(ctx, entry); err != nil {
		if errors.Is(err, database.ErrStaleUpdate) {
			// Another writer got there first
			r.metrics.indexWrites.WithLabelValues("stale").Inc()
			return
		}
		r.metrics.indexWrites.WithLabelValues("error").Inc()
		r.logger.Warn(
			"failed to update index entry",
			"address", entry.Address,
			"error", err,
		)
		return
	}
	r.metrics.indexWrites.WithLabelValues("ok").Inc()
	r.publishIndexUpdated(entry)
}

func (r *Ratify) publishIndexUpdated(entry *models.Campaign) {
	r.eventBus.PublishAsync(
		event.IndexUpdatedEventType,
		event.NewEvent(
			event.IndexUpdatedEventType,
			event.IndexUpdatedEvent{
				Address:      entry.Address,
				Version:      entry.Version,
				RaisedAmount: uint64(entry.RaisedAmount),
				IsActive:     entry.IsActive,
				IsCompleted:  entry.IsCompleted,
			},
		),
	)
}

// view returns a cached view when one is fresh enough, reconciling
// otherwise
func (r *Ratify) view(
	ctx context.Context,
	address string,
) (*campaign.View, error) {
	if view, ok := r.views.Get(address); ok {
		return view, nil
	}
	return r.Reconcile(ctx, address)
}

// indexEntry returns the index entry for an address, or nil when the index
// does not know the campaign
func (r *Ratify) indexEntry(
	ctx context.Context,
	address string,
) (*models.Campaign, error) {
	entry, err := r.config.index.Get(ctx, address)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

func indexStatus(entry *models.Campaign) campaign.IndexStatus {
	if entry == nil {
		return campaign.IndexStatus{}
	}
	return entry.Status()
}

// Campaign returns the current status of a single campaign. A cancelled or
// withdrawn campaign whose state output is gone reports its terminal state
// with no view.
func (r *Ratify) Campaign(
	ctx context.Context,
	address string,
) (*CampaignStatus, error) {
	entry, err := r.indexEntry(ctx, address)
	if err != nil {
		return nil, err
	}
	return r.campaignStatus(ctx, address, entry)
}

func (r *Ratify) campaignStatus(
	ctx context.Context,
	address string,
	entry *models.Campaign,
) (*CampaignStatus, error) {
	view, err := r.view(ctx, address)
	if err != nil {
		if entry == nil || !errors.Is(err, campaign.ErrCampaignNotFound) {
			return nil, err
		}
	}
	if view != nil && entry != nil && entry.IsActive {
		// Read the entry again in case the reconcile refreshed it
		if refreshed, err := r.indexEntry(ctx, address); err == nil &&
			refreshed != nil {
			entry = refreshed
		}
	}
	return &CampaignStatus{
		Entry: entry,
		View:  view,
		State: campaign.DetermineState(view, indexStatus(entry)),
	}, nil
}

// Campaigns returns the status of every indexed campaign, in index order.
// A campaign that fails to reconcile carries the error instead of failing
// the listing.
func (r *Ratify) Campaigns(ctx context.Context) ([]CampaignStatus, error) {
	entries, err := r.config.index.List(ctx)
	if err != nil {
		return nil, err
	}
	ret := make([]CampaignStatus, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.refreshParallelism)
	for i := range entries {
		entry := &entries[i]
		g.Go(func() error {
			status, err := r.campaignStatus(gctx, entry.Address, entry)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				ret[i] = CampaignStatus{
					Entry: entry,
					State: campaign.DetermineState(nil, entry.Status()),
					Error: err.Error(),
				}
				return nil
			}
			ret[i] = *status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

// RelatedCampaigns returns the campaigns the identity created or backed
func (r *Ratify) RelatedCampaigns(
	ctx context.Context,
	identity campaign.Identity,
) ([]CampaignStatus, error) {
	all, err := r.Campaigns(ctx)
	if err != nil {
		return nil, err
	}
	var ret []CampaignStatus
	for _, status := range all {
		if related(status, identity) {
			ret = append(ret, status)
		}
	}
	return ret, nil
}

func related(status CampaignStatus, identity campaign.Identity) bool {
	if status.View == nil {
		return status.Entry != nil &&
			status.Entry.Key().Creator.Same(identity)
	}
	if status.View.Creator.Same(identity) {
		return true
	}
	for _, backer := range status.View.Backers {
		if backer.Backer.Same(identity) {
			return true
		}
	}
	return false
}

// Eligibility evaluates which actions the requester may take. A nil
// requester is an anonymous viewer.
func (r *Ratify) Eligibility(
	ctx context.Context,
	address string,
	requester *campaign.Identity,
) (*campaign.Eligibility, error) {
	status, err := r.Campaign(ctx, address)
	if err != nil {
		return nil, err
	}
	ret := campaign.Evaluate(status.View, indexStatus(status.Entry), requester)
	return &ret, nil
}

// History returns the most recent transactions touching the campaign
// address, newest first, with their net effect on the address
func (r *Ratify) History(
	ctx context.Context,
	address string,
) ([]campaign.HistoryEntry, error) {
	txs, err := queryChain(
		ctx,
		r,
		"address_transactions",
		func(ctx context.Context) ([]campaign.TxInclusion, error) {
			return r.config.chain.AddressTransactions(
				ctx,
				address,
				r.config.historyLimit,
			)
		},
	)
	if err != nil {
		return nil, err
	}
	if len(txs) > r.config.historyLimit {
		txs = txs[:r.config.historyLimit]
	}
	ret := make([]campaign.HistoryEntry, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.refreshParallelism)
	for i, tx := range txs {
		g.Go(func() error {
			txIO, err := queryChain(
				gctx,
				r,
				"tx_utxos",
				func(ctx context.Context) (*campaign.TxIO, error) {
					return r.config.chain.TxUtxos(ctx, tx.Hash)
				},
			)
			if err != nil {
				return fmt.Errorf("transaction %s: %w", tx.Hash, err)
			}
			ret[i] = campaign.Summarize(address, tx, *txIO)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

// TxStatus returns where a transaction landed on chain
func (r *Ratify) TxStatus(
	ctx context.Context,
	txHash string,
) (*campaign.TxInclusion, error) {
	return queryChain(
		ctx,
		r,
		"tx_inclusion",
		func(ctx context.Context) (*campaign.TxInclusion, error) {
			return r.config.chain.TxInclusion(ctx, txHash)
		},
	)
}
