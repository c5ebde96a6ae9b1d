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
	"io"
	"log/slog"
	"math"
	"slices"
	"unicode/utf8"

	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
)

// BackerContribution is a backer record together with the value it locks
type BackerContribution struct {
	Ref      OutputRef `json:"ref"`
	Backer   Identity  `json:"backer"`
	Lovelace uint64    `json:"lovelace"`
}

// View is the reconciled funding state of a campaign. It is computed from
// chain state only and is deterministic in the set of outputs it was built
// from.
type View struct {
	Address        string               `json:"address"`
	CampaignID     HexBytes             `json:"campaignId"`
	Title          string               `json:"title"`
	Creator        Identity             `json:"creator"`
	CreatorAddress string               `json:"creatorAddress"`
	CreatorUtxo    Utxo                 `json:"creatorUtxo"`
	Goal           FundingGoal          `json:"goal"`
	GoalAmount     uint64               `json:"goalAmount"`
	RecordedFunds  uint64               `json:"recordedFunds"`
	RaisedLovelace uint64               `json:"raisedLovelace"`
	RaisedAmount   uint64               `json:"raisedAmount"`
	IsGoalMet      bool                 `json:"isGoalMet"`
	Backers        []BackerContribution `json:"backers"`
	BackerUtxos    []Utxo               `json:"-"`
	Skipped        int                  `json:"skipped"`
	Foreign        int                  `json:"foreign"`
	Snapshot       string               `json:"snapshot"`
}

// Reconciler rebuilds campaign funding state from the outputs at a campaign
// address
type Reconciler struct {
	logger    *slog.Logger
	networkID uint8
}

func NewReconciler(networkID uint8, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Reconciler{
		logger:    logger.With("component", "reconciler"),
		networkID: networkID,
	}
}

type decodedUtxo struct {
	record Record
	utxo   Utxo
}

// Reconcile selects the single creator record at the address and sums the
// backer contributions that reference the same campaign. Outputs without a
// datum or whose datum fails to decode are excluded individually. It
// returns ErrCampaignNotFound when there is no creator record and
// AmbiguousStateError when there is more than one.
func (r *Reconciler) Reconcile(address string, utxos []Utxo) (*View, error) {
	sorted := slices.Clone(utxos)
	slices.SortFunc(sorted, func(a, b Utxo) int {
		return a.Ref.Compare(b.Ref)
	})
	var creators, backers []decodedUtxo
	skipped := 0
	for _, utxo := range sorted {
		if len(utxo.Datum) == 0 {
			continue
		}
		record, err := DecodeRecord(utxo.Datum)
		if err != nil {
			skipped++
			r.logger.Debug(
				"skipping undecodable output",
				"address", address,
				"error", DecodeError{
					Ref:    utxo.Ref,
					Reason: "datum",
					Err:    err,
				},
			)
			continue
		}
		switch rec := record.(type) {
		case *CreatorRecord:
			creators = append(creators, decodedUtxo{record: rec, utxo: utxo})
		case *BackerRecord:
			backers = append(backers, decodedUtxo{record: rec, utxo: utxo})
		}
	}
	switch len(creators) {
	case 0:
		return nil, ErrCampaignNotFound
	case 1:
	default:
		refs := make([]OutputRef, 0, len(creators))
		for _, c := range creators {
			refs = append(refs, c.utxo.Ref)
		}
		return nil, AmbiguousStateError{Address: address, Creators: refs}
	}
	creator := creators[0].record.(*CreatorRecord)
	view := &View{
		Address:       address,
		CampaignID:    bytes.Clone(creator.CampaignID),
		Title:         campaignTitle(creator.CampaignID),
		Creator:       creator.Creator,
		CreatorUtxo:   creators[0].utxo,
		Goal:          creator.Goal,
		GoalAmount:    creator.Goal.Amount,
		RecordedFunds: creator.CurrentFunds,
		Skipped:       skipped,
		Backers:       []BackerContribution{},
		BackerUtxos:   []Utxo{},
	}
	if addr, err := creator.Creator.Address(r.networkID); err == nil {
		view.CreatorAddress = addr.String()
	}
	snapshotRefs := []OutputRef{creators[0].utxo.Ref}
	for _, b := range backers {
		backer := b.record.(*BackerRecord)
		if !bytes.Equal(backer.CampaignID, creator.CampaignID) {
			view.Foreign++
			r.logger.Warn(
				"excluding backer record for another campaign",
				"address", address,
				"ref", b.utxo.Ref.String(),
			)
			continue
		}
		lovelace := b.utxo.Lovelace()
		view.RaisedLovelace += lovelace
		view.Backers = append(view.Backers, BackerContribution{
			Ref:      b.utxo.Ref,
			Backer:   backer.Backer,
			Lovelace: lovelace,
		})
		view.BackerUtxos = append(view.BackerUtxos, b.utxo)
		snapshotRefs = append(snapshotRefs, b.utxo.Ref)
	}
	view.RaisedAmount = view.RaisedLovelace / LovelacePerAda
	view.IsGoalMet = goalMet(view.RaisedLovelace, view.GoalAmount)
	view.Snapshot = Snapshot(snapshotRefs)
	return view, nil
}

// goalMet compares in lovelace so fractional ADA is not lost
func goalMet(raisedLovelace uint64, goal uint64) bool {
	if goal > math.MaxUint64/LovelacePerAda {
		return false
	}
	return raisedLovelace >= goal*LovelacePerAda
}

// Snapshot fingerprints a set of output refs independent of their order
func Snapshot(refs []OutputRef) string {
	sorted := slices.Clone(refs)
	slices.SortFunc(sorted, OutputRef.Compare)
	var buf bytes.Buffer
	for _, ref := range sorted {
		buf.WriteString(ref.String())
		buf.WriteByte('\n')
	}
	return lcommon.Blake2b256Hash(buf.Bytes()).String()
}

func campaignTitle(id []byte) string {
	if utf8.Valid(id) {
		return string(id)
	}
	return hex.EncodeToString(id)
}
