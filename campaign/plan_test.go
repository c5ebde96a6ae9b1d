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
	"testing"

	"github.com/blinklabs-io/plutigo/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testValidatorView reconciles a campaign located at its real script
// address
func testValidatorView(
	t *testing.T,
	goal uint64,
	recorded uint64,
	backers ...uint64,
) (*Validator, *View, Identity) {
	t.Helper()
	v, err := testLocator(t).Validator(testKey())
	require.NoError(t, err)
	view, creator := testCampaign(t, goal, recorded, backers...)
	view.Address = v.Address
	return v, view, creator
}

func requireRedeemerTag(t *testing.T, redeemer HexBytes, tag uint) {
	t.Helper()
	pd, err := data.Decode(redeemer)
	require.NoError(t, err)
	constr, ok := pd.(*data.Constr)
	require.True(t, ok)
	assert.Equal(t, tag, constr.Tag)
}

func TestBuildLaunchPlan(t *testing.T) {
	v, err := testLocator(t).Validator(testKey())
	require.NoError(t, err)
	plan, err := BuildLaunchPlan(v, LaunchRequest{
		Key:  testKey(),
		Goal: FundingGoal{Kind: GoalTarget, Amount: 20000},
	})
	require.NoError(t, err)
	assert.Equal(t, ActionLaunch, plan.Action)
	assert.Equal(t, []OutputRef{testKey().OriginRef}, plan.WalletInputs)
	require.Len(t, plan.Mints, 2)
	assert.Equal(t, "RTF-CC-Solar Roof", plan.Mints[0].AssetName)
	assert.Equal(t, StateTokenName, plan.Mints[1].AssetName)
	requireRedeemerTag(t, plan.Mints[0].Redeemer, mintCreate)

	require.Len(t, plan.Outputs, 2)
	assert.Equal(t, v.Address, plan.Outputs[0].Address)
	record, err := DecodeRecord(plan.Outputs[0].Datum)
	require.NoError(t, err)
	creatorRecord, ok := record.(*CreatorRecord)
	require.True(t, ok)
	assert.Equal(t, uint64(0), creatorRecord.CurrentFunds)
	assert.Equal(t, uint64(20000), creatorRecord.Goal.Amount)
	assert.Equal(t, []HexBytes{testKey().Creator.PaymentKeyHash}, plan.RequiredSigners)

	_, err = BuildLaunchPlan(v, LaunchRequest{Key: testKey()})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestBuildSupportPlan(t *testing.T) {
	v, view, _ := testValidatorView(t, 20000, 0, 18000)
	backer := testIdentity(0x60)
	plan, err := BuildPlan(
		v,
		view,
		IndexStatus{},
		ActionRequest{Action: ActionSupport, Requester: backer, Amount: 500},
		testAdminKeyHash,
	)
	require.NoError(t, err)
	assert.Equal(t, view.Snapshot, plan.Snapshot)
	assert.Equal(t, []OutputRef{view.CreatorUtxo.Ref}, plan.ReferenceInputs)
	require.Len(t, plan.Outputs, 2)
	assert.Equal(t, uint64(500*LovelacePerAda), plan.Outputs[0].Lovelace)
	record, err := DecodeRecord(plan.Outputs[0].Datum)
	require.NoError(t, err)
	assert.Equal(
		t,
		&BackerRecord{
			CampaignID: view.CampaignID,
			Backer:     backer,
			Creator:    view.Creator,
		},
		record,
	)
	requireRedeemerTag(t, plan.Mints[0].Redeemer, mintSupport)

	_, err = BuildPlan(
		v,
		view,
		IndexStatus{},
		ActionRequest{Action: ActionSupport, Requester: backer},
		testAdminKeyHash,
	)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestBuildPlanFailsFastOnGuard(t *testing.T) {
	v, view, creator := testValidatorView(t, 20000, 18000, 22000)
	plan, err := BuildPlan(
		v,
		view,
		IndexStatus{},
		ActionRequest{Action: ActionWithdraw, Requester: creator},
		testAdminKeyHash,
	)
	require.ErrorIs(t, err, ErrGuardViolation)
	assert.Nil(t, plan)
}

func TestBuildSyncFundsPlan(t *testing.T) {
	v, view, creator := testValidatorView(t, 20000, 0, 18000, 5000)
	plan, err := BuildPlan(
		v,
		view,
		IndexStatus{},
		ActionRequest{Action: ActionSignWithdrawal, Requester: creator},
		testAdminKeyHash,
	)
	require.NoError(t, err)
	require.Len(t, plan.ScriptInputs, 1)
	assert.Equal(t, view.CreatorUtxo.Ref, plan.ScriptInputs[0].Ref)
	requireRedeemerTag(t, plan.ScriptInputs[0].Redeemer, spendUpdateFunds)
	require.Len(t, plan.Outputs, 1)
	assert.Equal(t, v.Address, plan.Outputs[0].Address)
	assert.Equal(t, view.CreatorUtxo.Lovelace(), plan.Outputs[0].Lovelace)
	record, err := DecodeRecord(plan.Outputs[0].Datum)
	require.NoError(t, err)
	creatorRecord, ok := record.(*CreatorRecord)
	require.True(t, ok)
	assert.Equal(t, uint64(23000), creatorRecord.CurrentFunds)
	assert.Equal(t, view.Goal, creatorRecord.Goal)
	assert.Equal(
		t,
		[]HexBytes{creator.PaymentKeyHash, testAdminKeyHash},
		plan.RequiredSigners,
	)
}

func TestBuildWithdrawPlan(t *testing.T) {
	v, view, creator := testValidatorView(t, 20000, 23000, 18000, 5000)
	plan, err := BuildPlan(
		v,
		view,
		IndexStatus{},
		ActionRequest{Action: ActionWithdraw, Requester: creator},
		testAdminKeyHash,
	)
	require.NoError(t, err)
	assert.Len(t, plan.ScriptInputs, 3)
	for _, input := range plan.ScriptInputs {
		requireRedeemerTag(t, input.Redeemer, spendWithdraw)
	}
	require.Len(t, plan.Outputs, 1)
	assert.Equal(t, view.CreatorAddress, plan.Outputs[0].Address)
	assert.Equal(
		t,
		view.CreatorUtxo.Lovelace()+view.RaisedLovelace,
		plan.Outputs[0].Lovelace,
	)
}

func TestBuildCancelPlanRefundsBackers(t *testing.T) {
	v, view, creator := testValidatorView(t, 20000, 0, 100, 200)
	plan, err := BuildPlan(
		v,
		view,
		IndexStatus{},
		ActionRequest{Action: ActionCancel, Requester: creator},
		testAdminKeyHash,
	)
	require.NoError(t, err)
	assert.Len(t, plan.ScriptInputs, 3)
	require.Len(t, plan.Outputs, 3)
	for i, contribution := range view.Backers {
		addr, err := contribution.Backer.Address(v.NetworkID)
		require.NoError(t, err)
		assert.Equal(t, addr.String(), plan.Outputs[i+1].Address)
		assert.Equal(t, contribution.Lovelace, plan.Outputs[i+1].Lovelace)
	}

	_, err = BuildPlan(
		v,
		view,
		IndexStatus{},
		ActionRequest{Action: ActionCancel, Requester: testIdentity(0x77)},
		testAdminKeyHash,
	)
	require.ErrorIs(t, err, ErrGuardViolation)
}

func TestBuildPlanRejectsMismatchedView(t *testing.T) {
	v, view, creator := testValidatorView(t, 20000, 0, 100)
	view.Address = "addr_test1_elsewhere"
	_, err := BuildPlan(
		v,
		view,
		IndexStatus{},
		ActionRequest{Action: ActionCancel, Requester: creator},
		testAdminKeyHash,
	)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrChainUnavailable))
	assert.True(t, IsRetryable(ErrStateChanged))
	assert.True(t, IsRetryable(NewSubmissionError(RejectUtxoAlreadySpent, "")))
	assert.False(t, IsRetryable(NewSubmissionError(RejectScriptValidation, "")))
	assert.False(t, IsRetryable(NewInvalidParameterError("x", "y")))
	assert.False(t, IsRetryable(AmbiguousStateError{}))
}

func TestClassifyRejection(t *testing.T) {
	testDefs := []struct {
		message  string
		expected RejectReason
	}{
		{
			message:  "ApplyTxError [ConwayUtxowFailure (UtxoFailure (BadInputsUTxO (fromList [TxIn ...])))]",
			expected: RejectUtxoAlreadySpent,
		},
		{
			message:  "ConwayUtxowFailure (UtxoFailure (InsufficientCollateral (DeltaCoin 1) (Coin 2)))",
			expected: RejectInsufficientCollateral,
		},
		{
			message:  "UtxowFailure (UtxoFailure (UtxosFailure (ValidationTagMismatch (IsValid True) ...)))",
			expected: RejectScriptValidation,
		},
		{message: "mempool is full", expected: RejectUnknown},
	}
	for _, testDef := range testDefs {
		assert.Equal(t, testDef.expected, ClassifyRejection(testDef.message))
	}
}
