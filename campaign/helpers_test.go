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
	"bytes"
	"fmt"
	"testing"

	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/stretchr/testify/require"
)

const testCampaignAddress = "addr_test1wq_campaign"

var testAdminKeyHash = testKeyHash(0xad)

func testKeyHash(b byte) HexBytes {
	return bytes.Repeat([]byte{b}, KeyHashLength)
}

func testIdentity(b byte) Identity {
	return Identity{
		PaymentKeyHash: testKeyHash(b),
		StakeKeyHash:   testKeyHash(b + 1),
	}
}

func testRef(n int, idx uint32) OutputRef {
	return OutputRef{TxHash: fmt.Sprintf("%064x", n), Index: idx}
}

func testCreatorUtxo(
	t *testing.T,
	ref OutputRef,
	id string,
	creator Identity,
	current uint64,
	goal uint64,
) Utxo {
	t.Helper()
	datum, err := EncodeCreator(&CreatorRecord{
		CampaignID:   HexBytes(id),
		Creator:      creator,
		CurrentFunds: current,
		Goal:         FundingGoal{Kind: GoalTarget, Amount: goal},
	})
	require.NoError(t, err)
	return Utxo{
		Ref:     ref,
		Address: testCampaignAddress,
		Amount: []Asset{
			{Unit: LovelaceUnit, Quantity: StateOutputLovelace},
			{Unit: "deadbeef" + "43432d5554584f", Quantity: 1},
		},
		Datum: datum,
	}
}

func testBackerUtxo(
	t *testing.T,
	ref OutputRef,
	id string,
	backer Identity,
	creator Identity,
	ada uint64,
) Utxo {
	t.Helper()
	datum, err := EncodeBacker(&BackerRecord{
		CampaignID: HexBytes(id),
		Backer:     backer,
		Creator:    creator,
	})
	require.NoError(t, err)
	return Utxo{
		Ref:     ref,
		Address: testCampaignAddress,
		Amount: []Asset{
			{Unit: LovelaceUnit, Quantity: ada * LovelacePerAda},
		},
		Datum: datum,
	}
}

func testLocator(t *testing.T) *Locator {
	t.Helper()
	l, err := NewLocator(LocatorConfig{
		Template:     []byte("validator-template"),
		AdminKeyHash: testAdminKeyHash,
		NetworkID:    lcommon.AddressNetworkTestnet,
	})
	require.NoError(t, err)
	return l
}

// testCampaign reconciles a campaign with the given goal and backer amounts
// in whole ADA. Recorded funds are taken as given.
func testCampaign(
	t *testing.T,
	goal uint64,
	recorded uint64,
	backers ...uint64,
) (*View, Identity) {
	t.Helper()
	creator := testIdentity(0x10)
	utxos := []Utxo{
		testCreatorUtxo(t, testRef(1, 0), "My Campaign", creator, recorded, goal),
	}
	for i, amount := range backers {
		utxos = append(
			utxos,
			testBackerUtxo(
				t,
				testRef(100+i, 0),
				"My Campaign",
				testIdentity(byte(0x40+2*i)),
				creator,
				amount,
			),
		)
	}
	view, err := NewReconciler(lcommon.AddressNetworkTestnet, nil).
		Reconcile(testCampaignAddress, utxos)
	require.NoError(t, err)
	return view, creator
}
