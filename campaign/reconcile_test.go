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

package campaign

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"testing"

	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler() *Reconciler {
	return NewReconciler(lcommon.AddressNetworkTestnet, nil)
}

func TestReconcileSumIsOrderIndependent(t *testing.T) {
	creator := testIdentity(0x10)
	amounts := []uint64{5, 1200, 18000, 7, 3, 999, 42}
	utxos := []Utxo{
		testCreatorUtxo(t, testRef(1, 0), "camp", creator, 0, 20000),
	}
	var expected uint64
	for i, amount := range amounts {
		utxos = append(
			utxos,
			testBackerUtxo(
				t,
				testRef(10+i, uint32(i)),
				"camp",
				testIdentity(0x50),
				creator,
				amount,
			),
		)
		expected += amount
	}
	baseline, err := newTestReconciler().Reconcile(testCampaignAddress, utxos)
	require.NoError(t, err)
	assert.Equal(t, expected*LovelacePerAda, baseline.RaisedLovelace)
	assert.Equal(t, expected, baseline.RaisedAmount)
	assert.Len(t, baseline.Backers, len(amounts))

	rng := rand.New(rand.NewPCG(1, 2))
	for range 25 {
		shuffled := append([]Utxo(nil), utxos...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		view, err := newTestReconciler().Reconcile(testCampaignAddress, shuffled)
		require.NoError(t, err)
		assert.Equal(t, baseline, view)
	}
}

func TestReconcileNoCreator(t *testing.T) {
	creator := testIdentity(0x10)
	utxos := []Utxo{
		testBackerUtxo(t, testRef(2, 0), "camp", testIdentity(0x50), creator, 10),
		{Ref: testRef(3, 0), Address: testCampaignAddress},
	}
	view, err := newTestReconciler().Reconcile(testCampaignAddress, utxos)
	require.ErrorIs(t, err, ErrCampaignNotFound)
	assert.Nil(t, view)

	_, err = newTestReconciler().Reconcile(testCampaignAddress, nil)
	require.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestReconcileAmbiguousCreators(t *testing.T) {
	creator := testIdentity(0x10)
	utxos := []Utxo{
		testCreatorUtxo(t, testRef(2, 0), "camp", creator, 0, 100),
		testCreatorUtxo(t, testRef(1, 0), "camp", creator, 50, 100),
		testBackerUtxo(t, testRef(3, 0), "camp", testIdentity(0x50), creator, 10),
	}
	view, err := newTestReconciler().Reconcile(testCampaignAddress, utxos)
	require.ErrorIs(t, err, ErrAmbiguousState)
	assert.Nil(t, view)
	var ambiguous AmbiguousStateError
	require.True(t, errors.As(err, &ambiguous))
	assert.Equal(
		t,
		[]OutputRef{testRef(1, 0), testRef(2, 0)},
		ambiguous.Creators,
	)
}

func TestReconcileIdempotent(t *testing.T) {
	creator := testIdentity(0x10)
	utxos := []Utxo{
		testBackerUtxo(t, testRef(3, 1), "camp", testIdentity(0x50), creator, 10),
		testCreatorUtxo(t, testRef(1, 0), "camp", creator, 0, 100),
		testBackerUtxo(t, testRef(3, 0), "camp", testIdentity(0x60), creator, 20),
	}
	r := newTestReconciler()
	first, err := r.Reconcile(testCampaignAddress, utxos)
	require.NoError(t, err)
	second, err := r.Reconcile(testCampaignAddress, utxos)
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)
	assert.Equal(t, first.Snapshot, second.Snapshot)
}

func TestReconcileIsolatesDecodeFailures(t *testing.T) {
	creator := testIdentity(0x10)
	utxos := []Utxo{
		testCreatorUtxo(t, testRef(1, 0), "camp", creator, 0, 100),
		testBackerUtxo(t, testRef(2, 0), "camp", testIdentity(0x50), creator, 30),
		// Not CBOR
		{
			Ref:     testRef(3, 0),
			Address: testCampaignAddress,
			Amount:  []Asset{{Unit: LovelaceUnit, Quantity: 5_000_000}},
			Datum:   HexBytes{0xff, 0x00, 0x01},
		},
		// No datum
		{
			Ref:     testRef(4, 0),
			Address: testCampaignAddress,
			Amount:  []Asset{{Unit: LovelaceUnit, Quantity: 7_000_000}},
		},
	}
	view, err := newTestReconciler().Reconcile(testCampaignAddress, utxos)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Skipped)
	assert.Equal(t, uint64(30), view.RaisedAmount)
	assert.Len(t, view.Backers, 1)
}

func TestReconcileExcludesForeignBackers(t *testing.T) {
	creator := testIdentity(0x10)
	utxos := []Utxo{
		testCreatorUtxo(t, testRef(1, 0), "camp", creator, 0, 100),
		testBackerUtxo(t, testRef(2, 0), "camp", testIdentity(0x50), creator, 30),
		testBackerUtxo(t, testRef(3, 0), "other", testIdentity(0x50), creator, 70),
	}
	view, err := newTestReconciler().Reconcile(testCampaignAddress, utxos)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Foreign)
	assert.Equal(t, uint64(30), view.RaisedAmount)
	assert.False(t, view.IsGoalMet)
}

func TestReconcileViewFields(t *testing.T) {
	view, creator := testCampaign(t, 20000, 0, 18000)
	assert.Equal(t, "My Campaign", view.Title)
	assert.Equal(t, HexBytes("My Campaign"), view.CampaignID)
	assert.Equal(t, creator, view.Creator)
	addr, err := creator.Address(lcommon.AddressNetworkTestnet)
	require.NoError(t, err)
	assert.Equal(t, addr.String(), view.CreatorAddress)
	assert.Equal(t, uint64(20000), view.GoalAmount)
	assert.Equal(t, uint64(0), view.RecordedFunds)
	assert.Equal(t, uint64(18000), view.RaisedAmount)
	assert.False(t, view.IsGoalMet)
	assert.NotEmpty(t, view.Snapshot)
}

func TestGoalMetIsMonotonic(t *testing.T) {
	creator := testIdentity(0x10)
	utxos := []Utxo{
		testCreatorUtxo(t, testRef(1, 0), "camp", creator, 0, 100),
	}
	met := false
	for i, amount := range []uint64{10, 40, 60, 1, 25} {
		utxos = append(
			utxos,
			testBackerUtxo(t, testRef(10+i, 0), "camp", testIdentity(0x50), creator, amount),
		)
		view, err := newTestReconciler().Reconcile(testCampaignAddress, utxos)
		require.NoError(t, err)
		if met {
			assert.True(t, view.IsGoalMet, "goal met flag reverted after %d backers", i+1)
		}
		met = view.IsGoalMet
	}
	assert.True(t, met)
}

func TestGoalMetComparesLovelace(t *testing.T) {
	creator := testIdentity(0x10)
	backer := testBackerUtxo(t, testRef(2, 0), "camp", testIdentity(0x50), creator, 0)
	backer.Amount = []Asset{{Unit: LovelaceUnit, Quantity: 99_999_999}}
	utxos := []Utxo{
		testCreatorUtxo(t, testRef(1, 0), "camp", creator, 0, 100),
		backer,
	}
	view, err := newTestReconciler().Reconcile(testCampaignAddress, utxos)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), view.RaisedAmount)
	assert.False(t, view.IsGoalMet)

	backer.Amount[0].Quantity = 100_000_000
	utxos[1] = backer
	view, err = newTestReconciler().Reconcile(testCampaignAddress, utxos)
	require.NoError(t, err)
	assert.True(t, view.IsGoalMet)
}

func TestSnapshotOrderIndependent(t *testing.T) {
	a := Snapshot([]OutputRef{testRef(1, 0), testRef(2, 1), testRef(2, 0)})
	b := Snapshot([]OutputRef{testRef(2, 0), testRef(1, 0), testRef(2, 1)})
	assert.Equal(t, a, b)
	c := Snapshot([]OutputRef{testRef(1, 0), testRef(2, 1)})
	assert.NotEqual(t, a, c)
}
