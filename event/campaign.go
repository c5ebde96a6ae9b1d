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

package event

const (
	// ActionSubmittedEventType is published after the chain accepts a
	// campaign transaction
	ActionSubmittedEventType = EventType("campaign.action_submitted")
	// SubmissionRejectedEventType is published when a campaign transaction
	// is refused and the cached view has been discarded
	SubmissionRejectedEventType = EventType("campaign.submission_rejected")
	// IndexUpdatedEventType is published when the off-chain index accepts
	// a newer entry for a campaign
	IndexUpdatedEventType = EventType("campaign.index_updated")
)

// CampaignEventTypes lists every campaign event type, for consumers that
// relay them all
var CampaignEventTypes = []EventType{
	ActionSubmittedEventType,
	SubmissionRejectedEventType,
	IndexUpdatedEventType,
}

type ActionSubmittedEvent struct {
	Address string `json:"address"`
	Action  string `json:"action"`
	TxHash  string `json:"txHash"`
}

type SubmissionRejectedEvent struct {
	Address string `json:"address"`
	Action  string `json:"action"`
	Reason  string `json:"reason"`
}

type IndexUpdatedEvent struct {
	Address      string `json:"address"`
	Version      uint64 `json:"version"`
	RaisedAmount uint64 `json:"raisedAmount"`
	IsActive     bool   `json:"isActive"`
	IsCompleted  bool   `json:"isCompleted"`
}
