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
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/ratify/campaign"
	"github.com/blinklabs-io/ratify/database"
	"github.com/blinklabs-io/ratify/database/models"
	"github.com/blinklabs-io/ratify/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var testAdminKeyHash = testKeyHash(0xad)

func testKeyHash(b byte) campaign.HexBytes {
	return bytes.Repeat([]byte{b}, campaign.KeyHashLength)
}

func testIdentity(b byte) campaign.Identity {
	return campaign.Identity{
		PaymentKeyHash: testKeyHash(b),
		StakeKeyHash:   testKeyHash(b + 1),
	}
}

func testRef(n int, idx uint32) campaign.OutputRef {
	return campaign.OutputRef{TxHash: fmt.Sprintf("%064x", n), Index: idx}
}

// fakeChain serves UTxOs and transactions from memory and accepts every
// submission unless submitErr is set
type fakeChain struct {
	utxos      map[string][]campaign.Utxo
	txs        map[string][]campaign.TxInclusion
	txIO       map[string]*campaign.TxIO
	inclusions map[string]*campaign.TxInclusion
	submitErr  error
	onSubmit   func()
	submitted  [][]byte
	failures   int
	utxoCalls  int
	block      bool
	mu         sync.Mutex
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		utxos:      make(map[string][]campaign.Utxo),
		txs:        make(map[string][]campaign.TxInclusion),
		txIO:       make(map[string]*campaign.TxIO),
		inclusions: make(map[string]*campaign.TxInclusion),
	}
}

func (c *fakeChain) setUtxos(address string, utxos []campaign.Utxo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.utxos[address] = utxos
}

func (c *fakeChain) addUtxo(address string, utxo campaign.Utxo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.utxos[address] = append(c.utxos[address], utxo)
}

func (c *fakeChain) setFailures(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = n
}

func (c *fakeChain) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.utxoCalls
}

func (c *fakeChain) submissions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.submitted)
}

func (c *fakeChain) unavailable() error {
	if c.failures > 0 {
		c.failures--
		return campaign.ErrChainUnavailable
	}
	return nil
}

func (c *fakeChain) UtxosAtAddress(
	ctx context.Context,
	address string,
) ([]campaign.Utxo, error) {
	c.mu.Lock()
	c.utxoCalls++
	block := c.block
	c.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.unavailable(); err != nil {
		return nil, err
	}
	return append([]campaign.Utxo(nil), c.utxos[address]...), nil
}

func (c *fakeChain) AddressTransactions(
	ctx context.Context,
	address string,
	limit int,
) ([]campaign.TxInclusion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.unavailable(); err != nil {
		return nil, err
	}
	ret := c.txs[address]
	if len(ret) > limit {
		ret = ret[:limit]
	}
	return ret, nil
}

func (c *fakeChain) TxUtxos(
	ctx context.Context,
	txHash string,
) (*campaign.TxIO, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.unavailable(); err != nil {
		return nil, err
	}
	txIO, ok := c.txIO[txHash]
	if !ok {
		return nil, campaign.ErrTxNotFound
	}
	return txIO, nil
}

func (c *fakeChain) TxInclusion(
	ctx context.Context,
	txHash string,
) (*campaign.TxInclusion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.unavailable(); err != nil {
		return nil, err
	}
	inclusion, ok := c.inclusions[txHash]
	if !ok {
		return nil, campaign.ErrTxNotFound
	}
	return inclusion, nil
}

func (c *fakeChain) SubmitTx(ctx context.Context, txCbor []byte) (string, error) {
	c.mu.Lock()
	if c.submitErr != nil {
		err := c.submitErr
		c.mu.Unlock()
		return "", err
	}
	c.submitted = append(c.submitted, txCbor)
	hash := fmt.Sprintf("%064x", 0xf000+len(c.submitted))
	onSubmit := c.onSubmit
	c.mu.Unlock()
	if onSubmit != nil {
		onSubmit()
	}
	return hash, nil
}

// memIndex is a map-backed index with the same version rules as the real
// stores
type memIndex struct {
	entries map[string]models.Campaign
	mu      sync.Mutex
}

func newMemIndex() *memIndex {
	return &memIndex{entries: make(map[string]models.Campaign)}
}

func (m *memIndex) List(ctx context.Context) ([]models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]models.Campaign, 0, len(m.entries))
	for _, entry := range m.entries {
		ret = append(ret, entry)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Address < ret[j].Address
	})
	return ret, nil
}

func (m *memIndex) Get(ctx context.Context, address string) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[address]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &entry, nil
}

func (m *memIndex) Upsert(ctx context.Context, entry *models.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[entry.Address]; ok &&
		entry.Version <= existing.Version {
		return database.ErrStaleUpdate
	}
	entry.UpdatedAt = time.Now()
	m.entries[entry.Address] = *entry
	return nil
}

func (m *memIndex) MarkInactive(ctx context.Context, address string) error {
	return m.mark(address, func(c *models.Campaign) {
		c.IsActive = false
	})
}

func (m *memIndex) MarkCompleted(ctx context.Context, address string) error {
	return m.mark(address, func(c *models.Campaign) {
		c.IsActive = false
		c.IsCompleted = true
	})
}

func (m *memIndex) mark(address string, modify func(*models.Campaign)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[address]
	if !ok {
		return database.ErrNotFound
	}
	modify(&entry)
	entry.Version++
	m.entries[address] = entry
	return nil
}

func (m *memIndex) Close() error {
	return nil
}

// fakeSigner returns the action name as the signed transaction. When
// release is set it waits for it to close before returning.
type fakeSigner struct {
	started chan struct{}
	release chan struct{}
	plans   []*campaign.TxPlan
	mu      sync.Mutex
}

func (s *fakeSigner) SignPlan(
	ctx context.Context,
	plan *campaign.TxPlan,
) ([]byte, error) {
	s.mu.Lock()
	s.plans = append(s.plans, plan)
	s.mu.Unlock()
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []byte(plan.Action), nil
}

type testEnv struct {
	r         *Ratify
	chain     *fakeChain
	index     *memIndex
	registry  *prometheus.Registry
	validator *campaign.Validator
	key       campaign.Key
	creator   campaign.Identity
}

func newTestEnv(t *testing.T, opts ...ConfigOptionFunc) *testEnv {
	t.Helper()
	locator, err := campaign.NewLocator(campaign.LocatorConfig{
		Template:     []byte("validator-template"),
		AdminKeyHash: testAdminKeyHash,
		NetworkID:    lcommon.AddressNetworkTestnet,
	})
	require.NoError(t, err)
	env := &testEnv{
		chain:    newFakeChain(),
		index:    newMemIndex(),
		registry: prometheus.NewRegistry(),
		creator:  testIdentity(0x10),
	}
	env.key = campaign.Key{
		Creator:    env.creator,
		CampaignID: campaign.CampaignIDFromTitle("Solar Roof"),
		OriginRef:  testRef(7, 1),
	}
	env.validator, err = locator.Validator(env.key)
	require.NoError(t, err)
	cfg := NewConfig(
		append(
			[]ConfigOptionFunc{
				WithLocator(locator),
				WithChainQuery(env.chain),
				WithIndex(env.index),
				WithPrometheusRegistry(env.registry),
				WithRetryInterval(time.Millisecond),
			},
			opts...,
		)...,
	)
	env.r, err = New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, env.r.Stop())
	})
	return env
}

func (e *testEnv) address() string {
	return e.validator.Address
}

func (e *testEnv) creatorUtxo(t *testing.T, recorded uint64, goal uint64) campaign.Utxo {
	t.Helper()
	datum, err := campaign.EncodeCreator(&campaign.CreatorRecord{
		CampaignID:   e.key.CampaignID,
		Creator:      e.creator,
		CurrentFunds: recorded,
		Goal:         campaign.FundingGoal{Kind: campaign.GoalTarget, Amount: goal},
	})
	require.NoError(t, err)
	return campaign.Utxo{
		Ref:     testRef(1, 0),
		Address: e.address(),
		Amount: []campaign.Asset{
			{Unit: campaign.LovelaceUnit, Quantity: campaign.StateOutputLovelace},
			{Unit: e.validator.Unit(campaign.StateTokenName), Quantity: 1},
		},
		Datum: datum,
	}
}

func (e *testEnv) backerUtxo(
	t *testing.T,
	n int,
	backer campaign.Identity,
	ada uint64,
) campaign.Utxo {
	t.Helper()
	datum, err := campaign.EncodeBacker(&campaign.BackerRecord{
		CampaignID: e.key.CampaignID,
		Backer:     backer,
		Creator:    e.creator,
	})
	require.NoError(t, err)
	return campaign.Utxo{
		Ref:     testRef(100+n, 0),
		Address: e.address(),
		Amount: []campaign.Asset{
			{Unit: campaign.LovelaceUnit, Quantity: ada * campaign.LovelacePerAda},
		},
		Datum: datum,
	}
}

// seedCampaign places a campaign on chain with one backer per amount and
// records an active index entry for it
func (e *testEnv) seedCampaign(
	t *testing.T,
	goal uint64,
	recorded uint64,
	backers ...uint64,
) {
	t.Helper()
	utxos := []campaign.Utxo{e.creatorUtxo(t, recorded, goal)}
	for i, amount := range backers {
		utxos = append(
			utxos,
			e.backerUtxo(t, i, testIdentity(byte(0x40+2*i)), amount),
		)
	}
	e.chain.setUtxos(e.address(), utxos)
	entry := &models.Campaign{
		Address:    e.address(),
		Title:      "Solar Roof",
		GoalAmount: types.Uint64(goal),
		IsActive:   true,
		Version:    1,
	}
	entry.SetKey(e.key)
	require.NoError(t, e.index.Upsert(context.Background(), entry))
}

func (e *testEnv) entry(t *testing.T) *models.Campaign {
	t.Helper()
	entry, err := e.index.Get(context.Background(), e.address())
	require.NoError(t, err)
	return entry
}
