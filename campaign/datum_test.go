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
	"math/big"
	"testing"

	"github.com/blinklabs-io/plutigo/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatorRecordRoundTrip(t *testing.T) {
	for _, kind := range []GoalKind{GoalOpen, GoalTarget} {
		orig := &CreatorRecord{
			CampaignID:   HexBytes("Solar Roof"),
			Creator:      testIdentity(0x10),
			CurrentFunds: 1234,
			Goal:         FundingGoal{Kind: kind, Amount: 20000},
		}
		datum, err := EncodeCreator(orig)
		require.NoError(t, err)
		record, err := DecodeRecord(datum)
		require.NoError(t, err)
		decoded, ok := record.(*CreatorRecord)
		require.True(t, ok, "expected creator record, got %T", record)
		assert.Equal(t, orig, decoded)
	}
}

func TestBackerRecordWithoutStakeKey(t *testing.T) {
	orig := &BackerRecord{
		CampaignID: HexBytes("Solar Roof"),
		Backer:     Identity{PaymentKeyHash: testKeyHash(0x22)},
		Creator:    testIdentity(0x10),
	}
	datum, err := EncodeBacker(orig)
	require.NoError(t, err)
	record, err := DecodeRecord(datum)
	require.NoError(t, err)
	decoded, ok := record.(*BackerRecord)
	require.True(t, ok, "expected backer record, got %T", record)
	assert.Equal(t, orig, decoded)
	assert.Empty(t, decoded.Backer.StakeKeyHash)
}

func TestDecodeRecordRejectsUnknownShapes(t *testing.T) {
	addr, err := identityData(testIdentity(0x10))
	require.NoError(t, err)
	testDefs := []struct {
		name  string
		datum data.PlutusData
	}{
		{
			name:  "not a constructor",
			datum: data.NewInteger(big.NewInt(5)),
		},
		{
			name:  "unknown constructor",
			datum: data.NewConstr(2, data.NewByteString([]byte("x"))),
		},
		{
			name: "creator with missing goal",
			datum: data.NewConstr(
				0,
				data.NewByteString([]byte("x")),
				addr,
				data.NewInteger(big.NewInt(0)),
			),
		},
		{
			name: "negative current funds",
			datum: data.NewConstr(
				0,
				data.NewByteString([]byte("x")),
				addr,
				data.NewInteger(big.NewInt(-1)),
				data.NewConstr(1, data.NewInteger(big.NewInt(10))),
			),
		},
		{
			name: "unknown goal variant",
			datum: data.NewConstr(
				0,
				data.NewByteString([]byte("x")),
				addr,
				data.NewInteger(big.NewInt(0)),
				data.NewConstr(5, data.NewInteger(big.NewInt(10))),
			),
		},
		{
			name: "backer with short key hash",
			datum: data.NewConstr(
				1,
				data.NewByteString([]byte("x")),
				data.NewConstr(
					0,
					data.NewConstr(0, data.NewByteString([]byte{1, 2, 3})),
					data.NewConstr(1),
				),
				addr,
			),
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			datum, err := data.Encode(testDef.datum)
			require.NoError(t, err)
			record, err := DecodeRecord(datum)
			require.Error(t, err)
			assert.Nil(t, record)
		})
	}
}

func TestEncodeRejectsInvalidIdentity(t *testing.T) {
	_, err := EncodeBacker(&BackerRecord{
		CampaignID: HexBytes("x"),
		Backer:     Identity{PaymentKeyHash: HexBytes{1}},
		Creator:    testIdentity(0x10),
	})
	require.ErrorIs(t, err, ErrInvalidParameter)
}
