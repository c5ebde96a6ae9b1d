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
	"testing"
	"time"

	"github.com/blinklabs-io/ratify/campaign"
	"github.com/blinklabs-io/ratify/database/models"
	"github.com/blinklabs-io/ratify/event"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(NewConfig())
	require.Error(t, err)
}

func TestReconcileRefreshesIndex(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, 20000, 0, 18000)
	view, err := env.r.Reconcile(context.Background(), env.address())
	require.NoError(t, err)
	assert.Equal(t, uint64(18000), view.RaisedAmount)
	assert.False(t, view.IsGoalMet)

	entry := env.entry(t)
	assert.Equal(t, uint64(18000), uint64(entry.RaisedAmount))
	assert.Equal(t, 1, entry.BackerCount)
	assert.Equal(t, uint64(2), entry.Version)

	// Unchanged numbers leave the entry alone
	_, err = env.r.Reconcile(context.Background(), env.address())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), env.entry(t).Version)
	assert.InDelta(
		t,
		2,
		testutil.ToFloat64(env.r.metrics.reconciliations.WithLabelValues("ok")),
		0,
	)
}

func TestCampaignUsesViewCache(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, 20000, 0, 18000)
	ctx := context.Background()
	status, err := env.r.Campaign(ctx, env.address())
	require.NoError(t, err)
	assert.Equal(t, campaign.StateActive, status.State)
	assert.Equal(t, uint64(18000), uint64(status.Entry.RaisedAmount))
	_, err = env.r.Campaign(ctx, env.address())
	require.NoError(t, err)
	assert.Equal(t, 1, env.chain.calls())

	// Reconcile always goes to the chain
	_, err = env.r.Reconcile(ctx, env.address())
	require.NoError(t, err)
	assert.Equal(t, 2, env.chain.calls())
}

func TestCampaignWithoutCache(t *testing.T) {
	env := newTestEnv(t, WithViewCacheTTL(0))
	env.seedCampaign(t, 20000, 0, 18000)
	for range 3 {
		_, err := env.r.Campaign(context.Background(), env.address())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, env.chain.calls())
}

func TestCampaignTerminalWithoutChainState(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, 20000, 0)
	require.NoError(t, env.index.MarkInactive(context.Background(), env.address()))
	env.chain.setUtxos(env.address(), nil)
	status, err := env.r.Campaign(context.Background(), env.address())
	require.NoError(t, err)
	assert.Equal(t, campaign.StateCancelled, status.State)
	assert.Nil(t, status.View)

	_, err = env.r.Campaign(context.Background(), "addr_test1_unknown")
	require.ErrorIs(t, err, campaign.ErrCampaignNotFound)
}

func TestAmbiguousStateBlocksActions(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, 20000, 0, 100)
	second := env.creatorUtxo(t, 0, 20000)
	second.Ref = testRef(2, 0)
	env.chain.addUtxo(env.address(), second)

	_, err := env.r.Campaign(context.Background(), env.address())
	require.ErrorIs(t, err, campaign.ErrAmbiguousState)
	_, err = env.r.Prepare(
		context.Background(),
		env.address(),
		campaign.ActionRequest{
			Action:    campaign.ActionCancel,
			Requester: env.creator,
		},
	)
	require.ErrorIs(t, err, campaign.ErrAmbiguousState)
}

func TestCampaignsReportsPerEntryErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, 20000, 0, 100)
	const ambiguous = "addr_test1_ambiguous"
	first := env.creatorUtxo(t, 0, 20000)
	second := env.creatorUtxo(t, 0, 20000)
	second.Ref = testRef(2, 0)
	env.chain.setUtxos(ambiguous, []campaign.Utxo{first, second})
	for _, address := range []string{ambiguous, "addr_test1_pending"} {
		require.NoError(t, env.index.Upsert(
			context.Background(),
			&models.Campaign{
				Address:  address,
				Title:    address,
				IsActive: true,
				Version:  1,
			},
		))
	}
	statuses, err := env.r.Campaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	for _, status := range statuses {
		switch status.Entry.Address {
		case ambiguous:
			assert.Contains(t, status.Error, "creator records")
			assert.Equal(t, campaign.StateUnknown, status.State)
		case "addr_test1_pending":
			// Indexed but not yet on chain
			assert.Empty(t, status.Error)
			assert.Nil(t, status.View)
			assert.Equal(t, campaign.StateUnknown, status.State)
		default:
			assert.Empty(t, status.Error)
			assert.Equal(t, uint64(100), status.View.RaisedAmount)
		}
	}
}

func TestChainQueryRetriesUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, 20000, 0, 100)
	env.chain.setFailures(2)
	_, err := env.r.Reconcile(context.Background(), env.address())
	require.NoError(t, err)
	assert.Equal(t, 3, env.chain.calls())

	env.chain.setFailures(10)
	_, err = env.r.Reconcile(context.Background(), env.address())
	require.ErrorIs(t, err, campaign.ErrChainUnavailable)
	// One attempt plus the default three retries
	assert.Equal(t, 7, env.chain.calls())
}

func TestChainQueryTimeout(t *testing.T) {
	env := newTestEnv(
		t,
		WithChainQueryTimeout(20*time.Millisecond),
		WithChainQueryRetries(0),
	)
	env.chain.mu.Lock()
	env.chain.block = true
	env.chain.mu.Unlock()
	_, err := env.r.Reconcile(context.Background(), env.address())
	require.ErrorIs(t, err, campaign.ErrChainUnavailable)
	assert.True(t, campaign.IsRetryable(err))
}

func TestCallerCancellationIsNotUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.chain.mu.Lock()
	env.chain.block = true
	env.chain.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.r.Reconcile(ctx, env.address())
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, campaign.ErrChainUnavailable)
}

func TestEligibility(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, 20000, 0, 18000)
	eligibility, err := env.r.Eligibility(
		context.Background(),
		env.address(),
		&env.creator,
	)
	require.NoError(t, err)
	assert.Equal(t, campaign.StateActive, eligibility.State)
	assert.True(t, eligibility.Allowed(campaign.ActionCancel))
	assert.False(t, eligibility.Allowed(campaign.ActionWithdraw))

	anonymous, err := env.r.Eligibility(context.Background(), env.address(), nil)
	require.NoError(t, err)
	assert.False(t, anonymous.Allowed(campaign.ActionCancel))
	assert.True(t, anonymous.Allowed(campaign.ActionSupport))
}

func TestRelatedCampaigns(t *testing.T) {
	env := newTestEnv(t)
	env.seedCampaign(t, 20000, 0, 100)
	for _, identity := range []campaign.Identity{env.creator, testIdentity(0x40)} {
		related, err := env.r.RelatedCampaigns(context.Background(), identity)
		require.NoError(t, err)
		require.Len(t, related, 1)
		assert.Equal(t, env.address(), related[0].Entry.Address)
	}
	related, err := env.r.RelatedCampaigns(context.Background(), testIdentity(0x77))
	require.NoError(t, err)
	assert.Empty(t, related)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	addr := env.address()
	support := testRef(20, 0).TxHash
	withdraw := testRef(21, 0).TxHash
	env.chain.txs[addr] = []campaign.TxInclusion{
		{Hash: withdraw, BlockHeight: 11},
		{Hash: support, BlockHeight: 10},
	}
	backerOut := campaign.Utxo{
		Address: addr,
		Amount: []campaign.Asset{
			{Unit: campaign.LovelaceUnit, Quantity: 100 * campaign.LovelacePerAda},
		},
	}
	env.chain.txIO[support] = &campaign.TxIO{
		Hash:    support,
		Outputs: []campaign.Utxo{backerOut},
	}
	env.chain.txIO[withdraw] = &campaign.TxIO{
		Hash:   withdraw,
		Inputs: []campaign.Utxo{backerOut},
	}
	history, err := env.r.History(context.Background(), addr)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, withdraw, history[0].Hash)
	assert.Equal(t, campaign.DirectionSpending, history[0].Direction)
	assert.Equal(t, "-100", history[0].Amount)
	assert.Equal(t, campaign.DirectionReceiving, history[1].Direction)
	assert.Equal(t, uint64(10), history[1].BlockHeight)

	delete(env.chain.txIO, support)
	_, err = env.r.History(context.Background(), addr)
	require.ErrorIs(t, err, campaign.ErrTxNotFound)
}

func TestTxStatus(t *testing.T) {
	env := newTestEnv(t)
	hash := testRef(30, 0).TxHash
	env.chain.inclusions[hash] = &campaign.TxInclusion{Hash: hash, BlockHeight: 42}
	inclusion, err := env.r.TxStatus(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), inclusion.BlockHeight)

	_, err = env.r.TxStatus(context.Background(), testRef(31, 0).TxHash)
	require.ErrorIs(t, err, campaign.ErrTxNotFound)
}

func TestStop(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.r.Stop())
	// Idempotent
	require.NoError(t, env.r.Stop())
	_, ch := env.r.EventBus().Subscribe(event.IndexUpdatedEventType)
	_, ok := <-ch
	assert.False(t, ok)
}
