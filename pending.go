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
	"sync"
	"time"

	"github.com/blinklabs-io/ratify/campaign"
	"github.com/blinklabs-io/ratify/database/models"
	"github.com/blinklabs-io/ratify/database/types"
)

// pendingTx is an accepted transaction whose outputs the chain view does
// not show yet
type pendingTx struct {
	submittedAt time.Time
	txHash      string
	action      campaign.Action
	amount      uint64
	recorded    uint64
}

// landed reports whether the view already contains the transaction's
// campaign output
func (p pendingTx) landed(view *campaign.View) bool {
	switch p.action {
	case campaign.ActionSupport:
		for _, utxo := range view.BackerUtxos {
			if utxo.Ref.TxHash == p.txHash {
				return true
			}
		}
	case campaign.ActionSignWithdrawal:
		return view.CreatorUtxo.Ref.TxHash == p.txHash
	}
	return false
}

// pendingSet tracks accepted transactions per campaign so reconciles that
// run before the indexer catches up do not roll back their projection
type pendingSet struct {
	byAddress map[string][]pendingTx
	ttl       time.Duration
	mu        sync.Mutex
}

func newPendingSet(ttl time.Duration) *pendingSet {
	return &pendingSet{
		byAddress: make(map[string][]pendingTx),
		ttl:       ttl,
	}
}

func (s *pendingSet) Add(address string, tx pendingTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAddress[address] = append(s.byAddress[address], tx)
}

func (s *pendingSet) Clear(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byAddress, address)
}

// Outstanding drops transactions that landed or expired and returns the
// rest in submission order
func (s *pendingSet) Outstanding(view *campaign.View, now time.Time) []pendingTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	txs := s.byAddress[view.Address]
	kept := txs[:0]
	for _, tx := range txs {
		if now.Sub(tx.submittedAt) > s.ttl || tx.landed(view) {
			continue
		}
		kept = append(kept, tx)
	}
	if len(kept) == 0 {
		delete(s.byAddress, view.Address)
		return nil
	}
	s.byAddress[view.Address] = kept
	return append([]pendingTx(nil), kept...)
}

// project moves the entry to the view plus the transactions still in
// flight
func (r *Ratify) project(entry *models.Campaign, view *campaign.View, now time.Time) {
	entry.ApplyView(view, now)
	for _, tx := range r.pending.Outstanding(view, now) {
		switch tx.action {
		case campaign.ActionSupport:
			entry.RaisedAmount += types.Uint64(tx.amount)
			entry.BackerCount++
		case campaign.ActionSignWithdrawal:
			entry.RecordedFunds = types.Uint64(tx.recorded)
		}
	}
}
