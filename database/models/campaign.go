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

package models

import (
	"bytes"
	"time"

	"github.com/blinklabs-io/ratify/campaign"
	"github.com/blinklabs-io/ratify/database/types"
)

// Campaign is an off-chain index entry. It caches metadata and the last
// reconciled funding numbers, and is never authoritative over chain state.
type Campaign struct {
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
	ReconciledAt      time.Time    `json:"reconciledAt"`
	Address           string       `gorm:"size:128;uniqueIndex;not null" json:"address"`
	Title             string       `gorm:"not null" json:"title"`
	Description       string       `json:"description"`
	ImageURL          string       `json:"imageUrl"`
	Category          string       `gorm:"index" json:"category"`
	CreatorAddress    string       `gorm:"index" json:"creatorAddress"`
	OriginTxHash      string       `gorm:"size:64" json:"originTxHash"`
	CampaignID        []byte       `json:"-"`
	CreatorPaymentKey []byte       `gorm:"index" json:"-"`
	CreatorStakeKey   []byte       `json:"-"`
	ID                uint         `gorm:"primarykey" json:"-"`
	GoalAmount        types.Uint64 `json:"goalAmount"`
	RaisedAmount      types.Uint64 `json:"raisedAmount"`
	RecordedFunds     types.Uint64 `json:"recordedFunds"`
	Version           uint64       `gorm:"not null" json:"version"`
	BackerCount       int          `json:"backerCount"`
	OriginIndex       uint32       `json:"originIndex"`
	GoalKind          uint8        `json:"goalKind"`
	IsActive          bool         `json:"isActive"`
	IsCompleted       bool         `json:"isCompleted"`
}

func (Campaign) TableName() string {
	return "campaign"
}

// Key returns the locator parameters recorded at launch
func (c *Campaign) Key() campaign.Key {
	ret := campaign.Key{
		Creator: campaign.Identity{
			PaymentKeyHash: bytes.Clone(c.CreatorPaymentKey),
		},
		CampaignID: bytes.Clone(c.CampaignID),
		OriginRef: campaign.OutputRef{
			TxHash: c.OriginTxHash,
			Index:  c.OriginIndex,
		},
	}
	if len(c.CreatorStakeKey) > 0 {
		ret.Creator.StakeKeyHash = bytes.Clone(c.CreatorStakeKey)
	}
	return ret
}

// SetKey records the locator parameters
func (c *Campaign) SetKey(k campaign.Key) {
	c.CampaignID = bytes.Clone(k.CampaignID)
	c.CreatorPaymentKey = bytes.Clone(k.Creator.PaymentKeyHash)
	c.CreatorStakeKey = bytes.Clone(k.Creator.StakeKeyHash)
	c.OriginTxHash = k.OriginRef.TxHash
	c.OriginIndex = k.OriginRef.Index
}

// Status returns the lifecycle flags used by the eligibility engine
func (c *Campaign) Status() campaign.IndexStatus {
	return campaign.IndexStatus{
		Inactive:  !c.IsActive,
		Completed: c.IsCompleted,
	}
}

// ApplyView copies reconciled funding numbers into the entry and moves the
// version forward
func (c *Campaign) ApplyView(view *campaign.View, now time.Time) {
	c.GoalKind = uint8(view.Goal.Kind)
	c.GoalAmount = types.Uint64(view.GoalAmount)
	c.RaisedAmount = types.Uint64(view.RaisedAmount)
	c.RecordedFunds = types.Uint64(view.RecordedFunds)
	c.BackerCount = len(view.Backers)
	if view.CreatorAddress != "" {
		c.CreatorAddress = view.CreatorAddress
	}
	c.ReconciledAt = now
	c.Version++
}
