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
	"time"

	"github.com/blinklabs-io/ratify/campaign"
	"github.com/blinklabs-io/ratify/database/models"
	"github.com/blinklabs-io/ratify/database/types"
	"github.com/blinklabs-io/ratify/event"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrNoSubmitter = errors.New("no transaction submitter configured")

// SubmitRequest carries a signed transaction for a campaign action along
// with the snapshot of the view it was built from
type SubmitRequest struct {
	Address   string
	Action    campaign.Action
	Requester campaign.Identity
	Snapshot  string
	Amount    uint64
	TxCbor    []byte
}

// LaunchParams describe a new campaign. Only Key and Goal reach the chain.
type LaunchParams struct {
	Key         campaign.Key
	Goal        campaign.FundingGoal
	Title       string
	Description string
	ImageURL    string
	Category    string
}

// tryLock claims the campaign for one action. The returned func releases
// it.
func (r *Ratify) tryLock(address string) (func(), error) {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	if _, ok := r.inflight[address]; ok {
		return nil, fmt.Errorf("%w: %s", campaign.ErrActionInProgress, address)
	}
	r.inflight[address] = struct{}{}
	return func() {
		r.inflightMu.Lock()
		delete(r.inflight, address)
		r.inflightMu.Unlock()
	}, nil
}

// actionEntry returns the index entry for a campaign that has one
func (r *Ratify) actionEntry(
	ctx context.Context,
	address string,
) (*models.Campaign, error) {
	entry, err := r.indexEntry(ctx, address)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", campaign.ErrCampaignNotFound, address)
	}
	return entry, nil
}

// freshView reconciles and treats a missing creator record as absent state,
// which the guards reject for every mutating action
func (r *Ratify) freshView(
	ctx context.Context,
	address string,
) (*campaign.View, error) {
	view, err := r.Reconcile(ctx, address)
	if err != nil && !errors.Is(err, campaign.ErrCampaignNotFound) {
		return nil, err
	}
	return view, nil
}

func (r *Ratify) startAction(
	ctx context.Context,
	name string,
	address string,
	action campaign.Action,
) (context.Context, trace.Span) {
	return r.tracer.Start(
		ctx,
		name,
		trace.WithAttributes(
			attribute.String("campaign.address", address),
			attribute.String("campaign.action", string(action)),
		),
	)
}

func (r *Ratify) recordAction(
	span trace.Span,
	action campaign.Action,
	result string,
	err error,
) {
	r.metrics.actions.WithLabelValues(string(action), result).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func actionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, campaign.ErrGuardViolation):
		return "denied"
	case errors.Is(err, campaign.ErrStateChanged):
		return "stale"
	case errors.Is(err, campaign.ErrSubmissionRejected):
		return "rejected"
	case errors.Is(err, campaign.ErrActionInProgress):
		return "busy"
	default:
		return "error"
	}
}

// Prepare reconciles the campaign and builds the transaction plan for an
// action, failing before construction when the guards deny it
func (r *Ratify) Prepare(
	ctx context.Context,
	address string,
	req campaign.ActionRequest,
) (*campaign.TxPlan, error) {
	ctx, span := r.startAction(ctx, "ratify.Prepare", address, req.Action)
	defer span.End()
	plan, err := r.prepare(ctx, address, req)
	if err != nil {
		r.recordAction(span, req.Action, actionResult(err), err)
		return nil, err
	}
	r.recordAction(span, req.Action, "prepared", nil)
	return plan, nil
}

func (r *Ratify) prepare(
	ctx context.Context,
	address string,
	req campaign.ActionRequest,
) (*campaign.TxPlan, error) {
	if req.Action == campaign.ActionLaunch {
		return nil, campaign.NewInvalidParameterError(
			"action",
			"launch is prepared from launch parameters",
		)
	}
	entry, err := r.actionEntry(ctx, address)
	if err != nil {
		return nil, err
	}
	v, err := r.config.locator.Validator(entry.Key())
	if err != nil {
		return nil, err
	}
	if v.Address != address {
		return nil, campaign.NewInvalidParameterError(
			"address",
			"index entry parameters locate "+v.Address,
		)
	}
	view, err := r.freshView(ctx, address)
	if err != nil {
		return nil, err
	}
	return campaign.BuildPlan(
		v,
		view,
		entry.Status(),
		req,
		r.config.locator.AdminKeyHash(),
	)
}

// Submit sends a signed transaction for a prepared action. The campaign is
// reconciled again first, and the submission is refused with
// ErrStateChanged when the chain moved since the plan was built.
func (r *Ratify) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	ctx, span := r.startAction(ctx, "ratify.Submit", req.Address, req.Action)
	defer span.End()
	unlock, err := r.tryLock(req.Address)
	if err != nil {
		r.recordAction(span, req.Action, actionResult(err), err)
		return "", err
	}
	defer unlock()
	txHash, err := r.submit(ctx, req)
	r.recordAction(span, req.Action, actionResult(err), err)
	return txHash, err
}

func (r *Ratify) submit(ctx context.Context, req SubmitRequest) (string, error) {
	if !req.Action.Mutating() || req.Action == campaign.ActionLaunch {
		return "", campaign.NewInvalidParameterError(
			"action",
			fmt.Sprintf("%s is not submitted against an existing campaign", req.Action),
		)
	}
	if len(req.TxCbor) == 0 {
		return "", campaign.NewInvalidParameterError("tx", "empty transaction")
	}
	if _, err := r.actionEntry(ctx, req.Address); err != nil {
		return "", err
	}
	view, err := r.freshView(ctx, req.Address)
	if err != nil {
		return "", err
	}
	// Reconcile may have rewritten the entry, so the projection must start
	// from the current version
	entry, err := r.actionEntry(ctx, req.Address)
	if err != nil {
		return "", err
	}
	if view != nil && view.Snapshot != req.Snapshot {
		r.views.Remove(req.Address)
		return "", fmt.Errorf(
			"%w: campaign outputs changed since the transaction was built",
			campaign.ErrStateChanged,
		)
	}
	if err := campaign.Check(req.Action, view, entry.Status(), &req.Requester); err != nil {
		return "", err
	}
	txHash, err := r.submitTx(ctx, req.Address, req.Action, req.TxCbor)
	if err != nil {
		return "", err
	}
	r.logger.Info(
		"campaign transaction submitted",
		"address", req.Address,
		"action", string(req.Action),
		"tx_hash", txHash,
	)
	r.applySubmitted(ctx, entry, view, req, txHash)
	return txHash, nil
}

// submitTx sends the transaction. Any failure invalidates the cached view,
// and a ledger rejection forces a fresh reconcile before returning.
func (r *Ratify) submitTx(
	ctx context.Context,
	address string,
	action campaign.Action,
	txCbor []byte,
) (string, error) {
	if r.config.submitter == nil {
		return "", ErrNoSubmitter
	}
	txHash, err := r.config.submitter.SubmitTx(ctx, txCbor)
	r.views.Remove(address)
	if err == nil {
		r.eventBus.PublishAsync(
			event.ActionSubmittedEventType,
			event.NewEvent(
				event.ActionSubmittedEventType,
				event.ActionSubmittedEvent{
					Address: address,
					Action:  string(action),
					TxHash:  txHash,
				},
			),
		)
		return txHash, nil
	}
	var subErr campaign.SubmissionError
	if !errors.As(err, &subErr) {
		return "", err
	}
	r.metrics.rejections.WithLabelValues(string(subErr.Reason)).Inc()
	r.logger.Warn(
		"campaign transaction rejected",
		"address", address,
		"action", string(action),
		"reason", string(subErr.Reason),
	)
	r.eventBus.PublishAsync(
		event.SubmissionRejectedEventType,
		event.NewEvent(
			event.SubmissionRejectedEventType,
			event.SubmissionRejectedEvent{
				Address: address,
				Action:  string(action),
				Reason:  string(subErr.Reason),
			},
		),
	)
	if action != campaign.ActionLaunch {
		if _, rerr := r.Reconcile(ctx, address); rerr != nil {
			r.logger.Debug(
				"reconcile after rejection failed",
				"address", address,
				"error", rerr,
			)
		}
	}
	if subErr.Reason == campaign.RejectUtxoAlreadySpent {
		return "", fmt.Errorf("%w: %w", campaign.ErrStateChanged, err)
	}
	return "", err
}

// applySubmitted moves the index entry to match an accepted transaction.
// The chain has already accepted it, so index failures are only logged.
func (r *Ratify) applySubmitted(
	ctx context.Context,
	entry *models.Campaign,
	view *campaign.View,
	req SubmitRequest,
	txHash string,
) {
	var err error
	now := time.Now()
	switch req.Action {
	case campaign.ActionCancel:
		r.pending.Clear(req.Address)
		err = r.config.index.MarkInactive(ctx, req.Address)
	case campaign.ActionWithdraw:
		r.pending.Clear(req.Address)
		err = r.config.index.MarkCompleted(ctx, req.Address)
	case campaign.ActionSignWithdrawal, campaign.ActionSupport:
		// Projected until a reconcile sees the new output
		r.pending.Add(req.Address, pendingTx{
			submittedAt: now,
			txHash:      txHash,
			action:      req.Action,
			amount:      req.Amount,
			recorded:    view.RaisedAmount,
		})
		r.project(entry, view, now)
		r.writeIndex(ctx, entry)
		return
	}
	if err != nil {
		r.metrics.indexWrites.WithLabelValues("error").Inc()
		r.logger.Warn(
			"failed to update index entry",
			"address", req.Address,
			"error", err,
		)
		return
	}
	r.metrics.indexWrites.WithLabelValues("ok").Inc()
	if updated, err := r.indexEntry(ctx, req.Address); err == nil &&
		updated != nil {
		r.publishIndexUpdated(updated)
	}
}

// Execute prepares, signs and submits an action while holding the
// campaign for its whole duration
func (r *Ratify) Execute(
	ctx context.Context,
	address string,
	req campaign.ActionRequest,
	signer Signer,
) (string, error) {
	ctx, span := r.startAction(ctx, "ratify.Execute", address, req.Action)
	defer span.End()
	unlock, err := r.tryLock(address)
	if err != nil {
		r.recordAction(span, req.Action, actionResult(err), err)
		return "", err
	}
	defer unlock()
	txHash, err := r.execute(ctx, address, req, signer)
	r.recordAction(span, req.Action, actionResult(err), err)
	return txHash, err
}

func (r *Ratify) execute(
	ctx context.Context,
	address string,
	req campaign.ActionRequest,
	signer Signer,
) (string, error) {
	plan, err := r.prepare(ctx, address, req)
	if err != nil {
		return "", err
	}
	txCbor, err := signer.SignPlan(ctx, plan)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	return r.submit(ctx, SubmitRequest{
		Address:   address,
		Action:    req.Action,
		Requester: req.Requester,
		Snapshot:  plan.Snapshot,
		Amount:    req.Amount,
		TxCbor:    txCbor,
	})
}

// PrepareLaunch builds the plan that creates a new campaign. It fails when
// a creator record already exists at the derived address.
func (r *Ratify) PrepareLaunch(
	ctx context.Context,
	params LaunchParams,
) (*campaign.TxPlan, error) {
	ctx, span := r.tracer.Start(ctx, "ratify.PrepareLaunch")
	defer span.End()
	plan, err := r.prepareLaunch(ctx, params)
	if err != nil {
		r.recordAction(span, campaign.ActionLaunch, actionResult(err), err)
		return nil, err
	}
	r.recordAction(span, campaign.ActionLaunch, "prepared", nil)
	return plan, nil
}

func (r *Ratify) prepareLaunch(
	ctx context.Context,
	params LaunchParams,
) (*campaign.TxPlan, error) {
	v, err := r.config.locator.Validator(params.Key)
	if err != nil {
		return nil, err
	}
	if err := r.checkUnclaimed(ctx, v.Address); err != nil {
		return nil, err
	}
	return campaign.BuildLaunchPlan(
		v,
		campaign.LaunchRequest{Key: params.Key, Goal: params.Goal},
	)
}

func (r *Ratify) checkUnclaimed(ctx context.Context, address string) error {
	_, err := r.Reconcile(ctx, address)
	switch {
	case err == nil, errors.Is(err, campaign.ErrAmbiguousState):
		return campaign.NewGuardViolationError(
			campaign.ActionLaunch,
			campaign.StateUnknown,
			"a campaign already exists at "+address,
		)
	case errors.Is(err, campaign.ErrCampaignNotFound):
		return nil
	default:
		return err
	}
}

// SubmitLaunch submits a signed launch transaction and records the new
// campaign in the index
func (r *Ratify) SubmitLaunch(
	ctx context.Context,
	params LaunchParams,
	txCbor []byte,
) (string, error) {
	ctx, span := r.tracer.Start(ctx, "ratify.SubmitLaunch")
	defer span.End()
	address, err := r.config.locator.Locate(params.Key)
	if err != nil {
		r.recordAction(span, campaign.ActionLaunch, actionResult(err), err)
		return "", err
	}
	unlock, err := r.tryLock(address)
	if err != nil {
		r.recordAction(span, campaign.ActionLaunch, actionResult(err), err)
		return "", err
	}
	defer unlock()
	txHash, err := r.submitLaunch(ctx, address, params, txCbor)
	r.recordAction(span, campaign.ActionLaunch, actionResult(err), err)
	return txHash, err
}

func (r *Ratify) submitLaunch(
	ctx context.Context,
	address string,
	params LaunchParams,
	txCbor []byte,
) (string, error) {
	if len(txCbor) == 0 {
		return "", campaign.NewInvalidParameterError("tx", "empty transaction")
	}
	if err := r.checkUnclaimed(ctx, address); err != nil {
		return "", err
	}
	txHash, err := r.submitTx(ctx, address, campaign.ActionLaunch, txCbor)
	if err != nil {
		return "", err
	}
	r.logger.Info(
		"campaign launch submitted",
		"address", address,
		"tx_hash", txHash,
	)
	entry, err := r.launchEntry(ctx, address, params)
	if err != nil {
		r.logger.Warn(
			"failed to build index entry",
			"address", address,
			"error", err,
		)
		return txHash, nil
	}
	r.writeIndex(ctx, entry)
	return txHash, nil
}

// Launch prepares, signs and submits a new campaign
func (r *Ratify) Launch(
	ctx context.Context,
	params LaunchParams,
	signer Signer,
) (string, error) {
	ctx, span := r.tracer.Start(ctx, "ratify.Launch")
	defer span.End()
	address, err := r.config.locator.Locate(params.Key)
	if err != nil {
		r.recordAction(span, campaign.ActionLaunch, actionResult(err), err)
		return "", err
	}
	unlock, err := r.tryLock(address)
	if err != nil {
		r.recordAction(span, campaign.ActionLaunch, actionResult(err), err)
		return "", err
	}
	defer unlock()
	txHash, err := func() (string, error) {
		plan, err := r.prepareLaunch(ctx, params)
		if err != nil {
			return "", err
		}
		txCbor, err := signer.SignPlan(ctx, plan)
		if err != nil {
			return "", fmt.Errorf("failed to sign transaction: %w", err)
		}
		return r.submitLaunch(ctx, address, params, txCbor)
	}()
	r.recordAction(span, campaign.ActionLaunch, actionResult(err), err)
	return txHash, err
}

func (r *Ratify) launchEntry(
	ctx context.Context,
	address string,
	params LaunchParams,
) (*models.Campaign, error) {
	creatorAddr, err := params.Key.Creator.Address(r.config.locator.NetworkID())
	if err != nil {
		return nil, err
	}
	title := params.Title
	if title == "" {
		title = string(params.Key.CampaignID)
	}
	entry := &models.Campaign{
		Address:        address,
		Title:          title,
		Description:    params.Description,
		ImageURL:       params.ImageURL,
		Category:       params.Category,
		CreatorAddress: creatorAddr.String(),
		GoalKind:       uint8(params.Goal.Kind),
		GoalAmount:     types.Uint64(params.Goal.Amount),
		IsActive:       true,
		Version:        1,
		ReconciledAt:   time.Now(),
	}
	entry.SetKey(params.Key)
	existing, err := r.indexEntry(ctx, address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		entry.Version = existing.Version + 1
	}
	return entry, nil
}
