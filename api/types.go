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

package api

import (
	"github.com/blinklabs-io/ratify/campaign"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// LaunchRequest describes a new campaign. The creator is given as a bech32
// address, and the origin UTxO as "txhash#index".
type LaunchRequest struct {
	CreatorAddress string               `json:"creatorAddress"`
	Title          string               `json:"title"`
	Description    string               `json:"description,omitempty"`
	ImageURL       string               `json:"imageUrl,omitempty"`
	Category       string               `json:"category,omitempty"`
	OriginRef      string               `json:"originRef"`
	Goal           campaign.FundingGoal `json:"goal"`
	TxCbor         campaign.HexBytes    `json:"txCbor,omitempty"`
}

type PlanResponse struct {
	Address string           `json:"address"`
	Plan    *campaign.TxPlan `json:"plan"`
}

// ActionRequest asks for a transaction plan for an action
type ActionRequest struct {
	Requester string `json:"requester"`
	Amount    uint64 `json:"amount,omitempty"`
}

// SubmitRequest carries a signed transaction built from a plan
type SubmitRequest struct {
	Action    string            `json:"action"`
	Requester string            `json:"requester"`
	Snapshot  string            `json:"snapshot"`
	Amount    uint64            `json:"amount,omitempty"`
	TxCbor    campaign.HexBytes `json:"txCbor"`
}

type SubmitResponse struct {
	TxHash string `json:"txHash"`
}
