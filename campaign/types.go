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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

const (
	KeyHashLength = 28
	TxHashLength  = 32

	LovelaceUnit   = "lovelace"
	LovelacePerAda = 1_000_000
)

// HexBytes is a byte slice that marshals to and from a hex string
type HexBytes []byte

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	tmp, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*h = tmp
	return nil
}

// Identity is an address-deriving credential pair. The stake key hash is
// optional.
type Identity struct {
	PaymentKeyHash HexBytes `json:"paymentKeyHash"`
	StakeKeyHash   HexBytes `json:"stakeKeyHash,omitempty"`
}

func (i Identity) Validate() error {
	if len(i.PaymentKeyHash) != KeyHashLength {
		return NewInvalidParameterError(
			"payment key hash",
			fmt.Sprintf(
				"expected %d bytes, got %d",
				KeyHashLength,
				len(i.PaymentKeyHash),
			),
		)
	}
	if len(i.StakeKeyHash) != 0 && len(i.StakeKeyHash) != KeyHashLength {
		return NewInvalidParameterError(
			"stake key hash",
			fmt.Sprintf(
				"expected 0 or %d bytes, got %d",
				KeyHashLength,
				len(i.StakeKeyHash),
			),
		)
	}
	return nil
}

// Same reports whether both identities resolve to the same payment
// credential. The payment key is what signs transactions.
func (i Identity) Same(other Identity) bool {
	return len(i.PaymentKeyHash) > 0 &&
		bytes.Equal(i.PaymentKeyHash, other.PaymentKeyHash)
}

// Address builds the bech32 wallet address for the identity
func (i Identity) Address(networkID uint8) (lcommon.Address, error) {
	if err := i.Validate(); err != nil {
		return lcommon.Address{}, err
	}
	addrType := uint8(lcommon.AddressTypeKeyNone)
	var staking []byte
	if len(i.StakeKeyHash) > 0 {
		addrType = lcommon.AddressTypeKeyKey
		staking = i.StakeKeyHash
	}
	return lcommon.NewAddressFromParts(
		addrType,
		networkID,
		i.PaymentKeyHash,
		staking,
	)
}

// IdentityFromAddress extracts the credential pair from a bech32 wallet
// address
func IdentityFromAddress(addr string) (Identity, error) {
	if addr == "" {
		return Identity{}, NewInvalidParameterError("address", "empty")
	}
	tmpAddr, err := lcommon.NewAddress(addr)
	if err != nil {
		return Identity{}, NewInvalidParameterError("address", err.Error())
	}
	emptyHash := lcommon.NewBlake2b224(nil)
	paymentKey := tmpAddr.PaymentKeyHash()
	if paymentKey == emptyHash {
		return Identity{}, NewInvalidParameterError(
			"address",
			"no payment key credential",
		)
	}
	ret := Identity{
		PaymentKeyHash: bytes.Clone(paymentKey.Bytes()),
	}
	if stakeKey := tmpAddr.StakeKeyHash(); stakeKey != emptyHash {
		ret.StakeKeyHash = bytes.Clone(stakeKey.Bytes())
	}
	return ret, nil
}

// OutputRef identifies a transaction output
type OutputRef struct {
	TxHash string `json:"txHash"`
	Index  uint32 `json:"outputIndex"`
}

func (r OutputRef) String() string {
	return fmt.Sprintf("%s#%d", r.TxHash, r.Index)
}

func (r OutputRef) Validate() error {
	tmp, err := hex.DecodeString(r.TxHash)
	if err != nil {
		return NewInvalidParameterError("tx hash", err.Error())
	}
	if len(tmp) != TxHashLength {
		return NewInvalidParameterError(
			"tx hash",
			fmt.Sprintf(
				"expected %d bytes, got %d",
				TxHashLength,
				len(tmp),
			),
		)
	}
	return nil
}

// Compare orders refs by tx hash, then output index
func (r OutputRef) Compare(other OutputRef) int {
	if c := strings.Compare(r.TxHash, other.TxHash); c != 0 {
		return c
	}
	switch {
	case r.Index < other.Index:
		return -1
	case r.Index > other.Index:
		return 1
	}
	return 0
}

// ParseOutputRef parses a "<txhash>#<index>" reference
func ParseOutputRef(s string) (OutputRef, error) {
	hash, idx, ok := strings.Cut(s, "#")
	if !ok {
		return OutputRef{}, NewInvalidParameterError(
			"output reference",
			"expected <txhash>#<index>",
		)
	}
	tmpIdx, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return OutputRef{}, NewInvalidParameterError(
			"output index",
			err.Error(),
		)
	}
	ret := OutputRef{
		TxHash: strings.ToLower(hash),
		Index:  uint32(tmpIdx),
	}
	if err := ret.Validate(); err != nil {
		return OutputRef{}, err
	}
	return ret, nil
}

type Asset struct {
	Unit     string `json:"unit"`
	Quantity uint64 `json:"quantity"`
}

// Utxo is an unspent output as returned by a chain query
type Utxo struct {
	Ref     OutputRef `json:"ref"`
	Address string    `json:"address"`
	Amount  []Asset   `json:"amount"`
	Datum   HexBytes  `json:"datum,omitempty"`
}

// Lovelace returns the ADA value carried by the output
func (u Utxo) Lovelace() uint64 {
	var ret uint64
	for _, asset := range u.Amount {
		if asset.Unit == LovelaceUnit {
			ret += asset.Quantity
		}
	}
	return ret
}

type GoalKind uint8

const (
	// Constructor 0
	GoalOpen GoalKind = 0
	// Constructor 1
	GoalTarget GoalKind = 1
)

func (k GoalKind) String() string {
	switch k {
	case GoalOpen:
		return "open"
	case GoalTarget:
		return "target"
	default:
		return "unknown"
	}
}

func (k GoalKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *GoalKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "open":
		*k = GoalOpen
	case "target":
		*k = GoalTarget
	default:
		return NewInvalidParameterError("goal kind", "unknown goal kind "+s)
	}
	return nil
}

// FundingGoal is the goal amount in whole ADA. Both variants carry an
// amount; only the constructor differs.
type FundingGoal struct {
	Kind   GoalKind `json:"kind"`
	Amount uint64   `json:"amount"`
}

// Record is a decoded campaign datum: either *CreatorRecord or
// *BackerRecord
type Record interface {
	isRecord()
	ID() []byte
}

type CreatorRecord struct {
	CampaignID   HexBytes    `json:"campaignId"`
	Creator      Identity    `json:"creator"`
	CurrentFunds uint64      `json:"currentFunds"`
	Goal         FundingGoal `json:"goal"`
}

func (*CreatorRecord) isRecord() {}

func (r *CreatorRecord) ID() []byte { return r.CampaignID }

// BackerRecord marks a contribution. The contributed amount is the value of
// the output carrying the record.
type BackerRecord struct {
	CampaignID HexBytes `json:"campaignId"`
	Backer     Identity `json:"backer"`
	Creator    Identity `json:"creator"`
}

func (*BackerRecord) isRecord() {}

func (r *BackerRecord) ID() []byte { return r.CampaignID }

type Action string

const (
	ActionLaunch         Action = "launch"
	ActionSupport        Action = "support"
	ActionCancel         Action = "cancel"
	ActionSignWithdrawal Action = "sign-withdrawal"
	ActionWithdraw       Action = "withdraw"
	ActionViewHistory    Action = "view-history"
)

// Actions lists the per-campaign actions in evaluation order
var Actions = []Action{
	ActionSupport,
	ActionCancel,
	ActionSignWithdrawal,
	ActionWithdraw,
	ActionViewHistory,
}

// Mutating reports whether the action proposes a ledger transition
func (a Action) Mutating() bool {
	return a != ActionViewHistory
}

func ParseAction(s string) (Action, error) {
	tmp := Action(strings.ToLower(s))
	if tmp == ActionLaunch {
		return tmp, nil
	}
	for _, action := range Actions {
		if action == tmp {
			return tmp, nil
		}
	}
	return "", NewInvalidParameterError("action", "unknown action "+s)
}

type State string

const (
	StateUnknown   State = "unknown"
	StateActive    State = "active"
	StateGoalMet   State = "goal-met"
	StateCancelled State = "cancelled"
	StateWithdrawn State = "withdrawn"
)

// Terminal reports whether no further action can change the state
func (s State) Terminal() bool {
	return s == StateCancelled || s == StateWithdrawn
}
