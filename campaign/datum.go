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
	"errors"
	"fmt"
	"math/big"

	"github.com/blinklabs-io/plutigo/data"
)

const (
	creatorConstr = 0
	creatorFields = 4
	backerConstr  = 1
	backerFields  = 3
)

var (
	errUnexpectedShape = errors.New("unexpected datum shape")
	errNegativeInteger = errors.New("negative integer")
)

// EncodeCreator returns the inline datum CBOR for a creator record:
// Constr0[id, creator address, current funds, goal]
func EncodeCreator(r *CreatorRecord) ([]byte, error) {
	pd, err := creatorData(r)
	if err != nil {
		return nil, err
	}
	return data.Encode(pd)
}

// EncodeBacker returns the inline datum CBOR for a backer record:
// Constr1[id, backer address, creator address]
func EncodeBacker(r *BackerRecord) ([]byte, error) {
	backer, err := identityData(r.Backer)
	if err != nil {
		return nil, err
	}
	creator, err := identityData(r.Creator)
	if err != nil {
		return nil, err
	}
	return data.Encode(
		data.NewConstr(
			backerConstr,
			data.NewByteString(bytes.Clone(r.CampaignID)),
			backer,
			creator,
		),
	)
}

func creatorData(r *CreatorRecord) (data.PlutusData, error) {
	creator, err := identityData(r.Creator)
	if err != nil {
		return nil, err
	}
	if r.Goal.Kind != GoalOpen && r.Goal.Kind != GoalTarget {
		return nil, NewInvalidParameterError(
			"funding goal",
			fmt.Sprintf("unknown goal kind %d", r.Goal.Kind),
		)
	}
	return data.NewConstr(
		creatorConstr,
		data.NewByteString(bytes.Clone(r.CampaignID)),
		creator,
		data.NewInteger(new(big.Int).SetUint64(r.CurrentFunds)),
		data.NewConstr(
			uint(r.Goal.Kind),
			data.NewInteger(new(big.Int).SetUint64(r.Goal.Amount)),
		),
	), nil
}

// identityData encodes a credential pair as a Plutus Address with a
// pub key payment credential and an optional inline stake credential
func identityData(id Identity) (data.PlutusData, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	payment := data.NewConstr(
		0,
		data.NewByteString(bytes.Clone(id.PaymentKeyHash)),
	)
	var staking data.PlutusData
	if len(id.StakeKeyHash) > 0 {
		// Just(StakingHash(PubKeyCredential(skh)))
		staking = data.NewConstr(
			0,
			data.NewConstr(
				0,
				data.NewConstr(
					0,
					data.NewByteString(bytes.Clone(id.StakeKeyHash)),
				),
			),
		)
	} else {
		// Nothing
		staking = data.NewConstr(1)
	}
	return data.NewConstr(0, payment, staking), nil
}

// DecodeRecord decodes inline datum CBOR into a creator or backer record.
// The constructor tag selects the variant; the field count and field kinds
// must match it exactly.
func DecodeRecord(datum []byte) (Record, error) {
	if len(datum) == 0 {
		return nil, fmt.Errorf("%w: empty datum", errUnexpectedShape)
	}
	pd, err := data.Decode(datum)
	if err != nil {
		return nil, err
	}
	constr, ok := pd.(*data.Constr)
	if !ok {
		return nil, fmt.Errorf(
			"%w: expected constructor, got %T",
			errUnexpectedShape,
			pd,
		)
	}
	switch {
	case constr.Tag == creatorConstr && len(constr.Fields) == creatorFields:
		return decodeCreator(constr.Fields)
	case constr.Tag == backerConstr && len(constr.Fields) == backerFields:
		return decodeBacker(constr.Fields)
	default:
		return nil, fmt.Errorf(
			"%w: constructor %d with %d fields",
			errUnexpectedShape,
			constr.Tag,
			len(constr.Fields),
		)
	}
}

func decodeCreator(fields []data.PlutusData) (*CreatorRecord, error) {
	id, err := bytesField(fields[0])
	if err != nil {
		return nil, fmt.Errorf("campaign id: %w", err)
	}
	creator, err := identityField(fields[1])
	if err != nil {
		return nil, fmt.Errorf("creator: %w", err)
	}
	current, err := uintField(fields[2])
	if err != nil {
		return nil, fmt.Errorf("current funds: %w", err)
	}
	goalConstr, err := constrField(fields[3], 1)
	if err != nil {
		return nil, fmt.Errorf("funding goal: %w", err)
	}
	if goalConstr.Tag != uint(GoalOpen) && goalConstr.Tag != uint(GoalTarget) {
		return nil, fmt.Errorf(
			"funding goal: %w: constructor %d",
			errUnexpectedShape,
			goalConstr.Tag,
		)
	}
	goalAmount, err := uintField(goalConstr.Fields[0])
	if err != nil {
		return nil, fmt.Errorf("funding goal: %w", err)
	}
	return &CreatorRecord{
		CampaignID:   id,
		Creator:      creator,
		CurrentFunds: current,
		Goal: FundingGoal{
			Kind:   GoalKind(goalConstr.Tag),
			Amount: goalAmount,
		},
	}, nil
}

func decodeBacker(fields []data.PlutusData) (*BackerRecord, error) {
	id, err := bytesField(fields[0])
	if err != nil {
		return nil, fmt.Errorf("campaign id: %w", err)
	}
	backer, err := identityField(fields[1])
	if err != nil {
		return nil, fmt.Errorf("backer: %w", err)
	}
	creator, err := identityField(fields[2])
	if err != nil {
		return nil, fmt.Errorf("creator: %w", err)
	}
	return &BackerRecord{
		CampaignID: id,
		Backer:     backer,
		Creator:    creator,
	}, nil
}

func identityField(pd data.PlutusData) (Identity, error) {
	addr, err := constrField(pd, 2)
	if err != nil {
		return Identity{}, err
	}
	if addr.Tag != 0 {
		return Identity{}, fmt.Errorf(
			"%w: address constructor %d",
			errUnexpectedShape,
			addr.Tag,
		)
	}
	payment, err := constrField(addr.Fields[0], 1)
	if err != nil {
		return Identity{}, fmt.Errorf("payment credential: %w", err)
	}
	if payment.Tag != 0 {
		// Script payment credentials never identify a wallet
		return Identity{}, fmt.Errorf(
			"%w: payment credential is not a key hash",
			errUnexpectedShape,
		)
	}
	pkh, err := bytesField(payment.Fields[0])
	if err != nil {
		return Identity{}, fmt.Errorf("payment credential: %w", err)
	}
	ret := Identity{PaymentKeyHash: pkh}
	staking, ok := addr.Fields[1].(*data.Constr)
	if !ok {
		return Identity{}, fmt.Errorf(
			"%w: staking credential is %T",
			errUnexpectedShape,
			addr.Fields[1],
		)
	}
	switch {
	case staking.Tag == 1 && len(staking.Fields) == 0:
		// Nothing
	case staking.Tag == 0 && len(staking.Fields) == 1:
		inline, err := constrField(staking.Fields[0], 1)
		if err != nil || inline.Tag != 0 {
			return Identity{}, fmt.Errorf(
				"%w: staking credential is not inline",
				errUnexpectedShape,
			)
		}
		cred, err := constrField(inline.Fields[0], 1)
		if err != nil || cred.Tag != 0 {
			return Identity{}, fmt.Errorf(
				"%w: staking credential is not a key hash",
				errUnexpectedShape,
			)
		}
		skh, err := bytesField(cred.Fields[0])
		if err != nil {
			return Identity{}, fmt.Errorf("staking credential: %w", err)
		}
		ret.StakeKeyHash = skh
	default:
		return Identity{}, fmt.Errorf(
			"%w: staking constructor %d with %d fields",
			errUnexpectedShape,
			staking.Tag,
			len(staking.Fields),
		)
	}
	if err := ret.Validate(); err != nil {
		return Identity{}, err
	}
	return ret, nil
}

func constrField(pd data.PlutusData, fields int) (*data.Constr, error) {
	constr, ok := pd.(*data.Constr)
	if !ok {
		return nil, fmt.Errorf(
			"%w: expected constructor, got %T",
			errUnexpectedShape,
			pd,
		)
	}
	if len(constr.Fields) != fields {
		return nil, fmt.Errorf(
			"%w: expected %d fields, got %d",
			errUnexpectedShape,
			fields,
			len(constr.Fields),
		)
	}
	return constr, nil
}

func bytesField(pd data.PlutusData) (HexBytes, error) {
	bs, ok := pd.(*data.ByteString)
	if !ok {
		return nil, fmt.Errorf(
			"%w: expected bytes, got %T",
			errUnexpectedShape,
			pd,
		)
	}
	return bytes.Clone(bs.Inner), nil
}

func uintField(pd data.PlutusData) (uint64, error) {
	tmpInt, ok := pd.(*data.Integer)
	if !ok {
		return 0, fmt.Errorf(
			"%w: expected integer, got %T",
			errUnexpectedShape,
			pd,
		)
	}
	if tmpInt.Inner.Sign() < 0 {
		return 0, errNegativeInteger
	}
	if !tmpInt.Inner.IsUint64() {
		return 0, fmt.Errorf("%w: integer out of range", errUnexpectedShape)
	}
	return tmpInt.Inner.Uint64(), nil
}
