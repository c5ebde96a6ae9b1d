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
	"math"

	"github.com/blinklabs-io/plutigo/data"
)

// Minimum ADA placed with the state token when a campaign is launched
const StateOutputLovelace = 2_000_000

// Redeemer constructors understood by the validator
const (
	mintCreate  = 0
	mintSupport = 1

	spendCancel      = 0
	spendWithdraw    = 1
	spendUpdateFunds = 2
)

type PlanInput struct {
	Ref      OutputRef `json:"ref"`
	Redeemer HexBytes  `json:"redeemer,omitempty"`
}

type PlanOutput struct {
	Address  string   `json:"address"`
	Lovelace uint64   `json:"lovelace"`
	Assets   []Asset  `json:"assets,omitempty"`
	Datum    HexBytes `json:"datum,omitempty"`
}

type PlanMint struct {
	PolicyID  string   `json:"policyId"`
	AssetName string   `json:"assetName"`
	Quantity  int64    `json:"quantity"`
	Redeemer  HexBytes `json:"redeemer"`
}

// TxPlan describes the shape of a transaction implementing a campaign
// action: the outputs it consumes and produces, the scripts it references
// and the keys that must sign it. Balancing, fees and collateral are left to
// the wallet.
type TxPlan struct {
	Action          Action       `json:"action"`
	CampaignAddress string       `json:"campaignAddress"`
	PolicyID        string       `json:"policyId"`
	Script          HexBytes     `json:"script"`
	ScriptInputs    []PlanInput  `json:"scriptInputs"`
	WalletInputs    []OutputRef  `json:"walletInputs"`
	ReferenceInputs []OutputRef  `json:"referenceInputs"`
	Outputs         []PlanOutput `json:"outputs"`
	Mints           []PlanMint   `json:"mints"`
	RequiredSigners []HexBytes   `json:"requiredSigners"`
	Snapshot        string       `json:"snapshot"`
}

// ActionRequest is a request to perform an action on a located campaign
type ActionRequest struct {
	Action    Action
	Requester Identity
	// Whole ADA, support only
	Amount uint64
}

// LaunchRequest describes a new campaign
type LaunchRequest struct {
	Key  Key
	Goal FundingGoal
}

func newPlan(action Action, v *Validator) *TxPlan {
	return &TxPlan{
		Action:          action,
		CampaignAddress: v.Address,
		PolicyID:        v.PolicyID,
		Script:          v.Script,
		ScriptInputs:    []PlanInput{},
		WalletInputs:    []OutputRef{},
		ReferenceInputs: []OutputRef{},
		Outputs:         []PlanOutput{},
		Mints:           []PlanMint{},
		RequiredSigners: []HexBytes{},
	}
}

func redeemer(tag uint) (HexBytes, error) {
	return data.Encode(data.NewConstr(tag))
}

// BuildLaunchPlan builds the transaction creating a campaign. It consumes
// the origin output, mints the creator token and the state token, and locks
// a creator record with no recorded funds at the campaign address.
func BuildLaunchPlan(v *Validator, req LaunchRequest) (*TxPlan, error) {
	if err := req.Key.Validate(); err != nil {
		return nil, err
	}
	if req.Goal.Amount == 0 {
		return nil, NewInvalidParameterError("funding goal", "must be positive")
	}
	creatorAddr, err := req.Key.Creator.Address(v.NetworkID)
	if err != nil {
		return nil, err
	}
	datum, err := EncodeCreator(&CreatorRecord{
		CampaignID:   req.Key.CampaignID,
		Creator:      req.Key.Creator,
		CurrentFunds: 0,
		Goal:         req.Goal,
	})
	if err != nil {
		return nil, err
	}
	mintRedeemer, err := redeemer(mintCreate)
	if err != nil {
		return nil, err
	}
	plan := newPlan(ActionLaunch, v)
	plan.WalletInputs = append(plan.WalletInputs, req.Key.OriginRef)
	plan.Mints = append(
		plan.Mints,
		PlanMint{
			PolicyID:  v.PolicyID,
			AssetName: v.CreatorTokenName(),
			Quantity:  1,
			Redeemer:  mintRedeemer,
		},
		PlanMint{
			PolicyID:  v.PolicyID,
			AssetName: StateTokenName,
			Quantity:  1,
			Redeemer:  mintRedeemer,
		},
	)
	plan.Outputs = append(
		plan.Outputs,
		PlanOutput{
			Address:  v.Address,
			Lovelace: StateOutputLovelace,
			Assets:   []Asset{{Unit: v.Unit(StateTokenName), Quantity: 1}},
			Datum:    datum,
		},
		PlanOutput{
			Address: creatorAddr.String(),
			Assets:  []Asset{{Unit: v.Unit(v.CreatorTokenName()), Quantity: 1}},
		},
	)
	plan.RequiredSigners = append(
		plan.RequiredSigners,
		bytes.Clone(req.Key.Creator.PaymentKeyHash),
	)
	return plan, nil
}

// BuildPlan builds the transaction for a campaign action. The guard is
// evaluated first and nothing is built when it fails.
func BuildPlan(
	v *Validator,
	view *View,
	status IndexStatus,
	req ActionRequest,
	adminKeyHash []byte,
) (*TxPlan, error) {
	if err := req.Requester.Validate(); err != nil {
		return nil, err
	}
	if err := Check(req.Action, view, status, &req.Requester); err != nil {
		return nil, err
	}
	if view.Address != v.Address {
		return nil, NewInvalidParameterError(
			"campaign address",
			fmt.Sprintf(
				"view for %s does not match validator %s",
				view.Address,
				v.Address,
			),
		)
	}
	var plan *TxPlan
	var err error
	switch req.Action {
	case ActionSupport:
		plan, err = buildSupport(v, view, req)
	case ActionCancel:
		plan, err = buildCancel(v, view)
	case ActionSignWithdrawal:
		plan, err = buildSyncFunds(v, view, adminKeyHash)
	case ActionWithdraw:
		plan, err = buildWithdraw(v, view)
	default:
		return nil, NewInvalidParameterError(
			"action",
			fmt.Sprintf("%s does not build a transaction", req.Action),
		)
	}
	if err != nil {
		return nil, err
	}
	plan.Snapshot = view.Snapshot
	return plan, nil
}

func buildSupport(v *Validator, view *View, req ActionRequest) (*TxPlan, error) {
	if req.Amount == 0 {
		return nil, NewInvalidParameterError("amount", "must be positive")
	}
	if req.Amount > math.MaxUint64/LovelacePerAda {
		return nil, NewInvalidParameterError("amount", "out of range")
	}
	backerAddr, err := req.Requester.Address(v.NetworkID)
	if err != nil {
		return nil, err
	}
	datum, err := EncodeBacker(&BackerRecord{
		CampaignID: view.CampaignID,
		Backer:     req.Requester,
		Creator:    view.Creator,
	})
	if err != nil {
		return nil, err
	}
	mintRedeemer, err := redeemer(mintSupport)
	if err != nil {
		return nil, err
	}
	plan := newPlan(ActionSupport, v)
	plan.ReferenceInputs = append(plan.ReferenceInputs, view.CreatorUtxo.Ref)
	plan.Mints = append(plan.Mints, PlanMint{
		PolicyID:  v.PolicyID,
		AssetName: v.BackerTokenName(),
		Quantity:  1,
		Redeemer:  mintRedeemer,
	})
	plan.Outputs = append(
		plan.Outputs,
		PlanOutput{
			Address:  v.Address,
			Lovelace: req.Amount * LovelacePerAda,
			Datum:    datum,
		},
		PlanOutput{
			Address: backerAddr.String(),
			Assets:  []Asset{{Unit: v.Unit(v.BackerTokenName()), Quantity: 1}},
		},
	)
	plan.RequiredSigners = append(
		plan.RequiredSigners,
		bytes.Clone(req.Requester.PaymentKeyHash),
	)
	return plan, nil
}

// buildCancel spends every campaign output and refunds each backer
func buildCancel(v *Validator, view *View) (*TxPlan, error) {
	spend, err := redeemer(spendCancel)
	if err != nil {
		return nil, err
	}
	creatorAddr, err := view.Creator.Address(v.NetworkID)
	if err != nil {
		return nil, err
	}
	plan := newPlan(ActionCancel, v)
	plan.ScriptInputs = append(plan.ScriptInputs, PlanInput{
		Ref:      view.CreatorUtxo.Ref,
		Redeemer: spend,
	})
	plan.Outputs = append(plan.Outputs, PlanOutput{
		Address:  creatorAddr.String(),
		Lovelace: view.CreatorUtxo.Lovelace(),
		Assets:   nonAdaAssets(view.CreatorUtxo),
	})
	for _, contribution := range view.Backers {
		backerAddr, err := contribution.Backer.Address(v.NetworkID)
		if err != nil {
			return nil, err
		}
		plan.ScriptInputs = append(plan.ScriptInputs, PlanInput{
			Ref:      contribution.Ref,
			Redeemer: spend,
		})
		plan.Outputs = append(plan.Outputs, PlanOutput{
			Address:  backerAddr.String(),
			Lovelace: contribution.Lovelace,
		})
	}
	plan.RequiredSigners = append(
		plan.RequiredSigners,
		bytes.Clone(view.Creator.PaymentKeyHash),
	)
	return plan, nil
}

// buildSyncFunds respends the creator record with current funds set to the
// raised amount
func buildSyncFunds(v *Validator, view *View, adminKeyHash []byte) (*TxPlan, error) {
	if len(adminKeyHash) != KeyHashLength {
		return nil, NewInvalidParameterError(
			"admin key hash",
			fmt.Sprintf("expected %d bytes", KeyHashLength),
		)
	}
	spend, err := redeemer(spendUpdateFunds)
	if err != nil {
		return nil, err
	}
	datum, err := EncodeCreator(&CreatorRecord{
		CampaignID:   view.CampaignID,
		Creator:      view.Creator,
		CurrentFunds: view.RaisedAmount,
		Goal:         view.Goal,
	})
	if err != nil {
		return nil, err
	}
	plan := newPlan(ActionSignWithdrawal, v)
	plan.ScriptInputs = append(plan.ScriptInputs, PlanInput{
		Ref:      view.CreatorUtxo.Ref,
		Redeemer: spend,
	})
	plan.Outputs = append(plan.Outputs, PlanOutput{
		Address:  v.Address,
		Lovelace: view.CreatorUtxo.Lovelace(),
		Assets:   nonAdaAssets(view.CreatorUtxo),
		Datum:    datum,
	})
	plan.RequiredSigners = append(
		plan.RequiredSigners,
		bytes.Clone(view.Creator.PaymentKeyHash),
		bytes.Clone(adminKeyHash),
	)
	return plan, nil
}

// buildWithdraw spends every campaign output and pays the total to the
// creator
func buildWithdraw(v *Validator, view *View) (*TxPlan, error) {
	spend, err := redeemer(spendWithdraw)
	if err != nil {
		return nil, err
	}
	creatorAddr, err := view.Creator.Address(v.NetworkID)
	if err != nil {
		return nil, err
	}
	plan := newPlan(ActionWithdraw, v)
	plan.ScriptInputs = append(plan.ScriptInputs, PlanInput{
		Ref:      view.CreatorUtxo.Ref,
		Redeemer: spend,
	})
	total := view.CreatorUtxo.Lovelace()
	for _, contribution := range view.Backers {
		plan.ScriptInputs = append(plan.ScriptInputs, PlanInput{
			Ref:      contribution.Ref,
			Redeemer: spend,
		})
		total += contribution.Lovelace
	}
	plan.Outputs = append(plan.Outputs, PlanOutput{
		Address:  creatorAddr.String(),
		Lovelace: total,
		Assets:   nonAdaAssets(view.CreatorUtxo),
	})
	plan.RequiredSigners = append(
		plan.RequiredSigners,
		bytes.Clone(view.Creator.PaymentKeyHash),
	)
	return plan, nil
}

func nonAdaAssets(u Utxo) []Asset {
	var ret []Asset
	for _, asset := range u.Amount {
		if asset.Unit != LovelaceUnit {
			ret = append(ret, asset)
		}
	}
	return ret
}
