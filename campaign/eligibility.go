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

// IndexStatus carries the lifecycle flags kept in the off-chain index
type IndexStatus struct {
	Inactive  bool
	Completed bool
}

type Decision struct {
	Action  Action `json:"action"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type Eligibility struct {
	State     State      `json:"state"`
	Decisions []Decision `json:"decisions"`
}

// Allowed reports whether the given action is permitted
func (e Eligibility) Allowed(action Action) bool {
	for _, d := range e.Decisions {
		if d.Action == action {
			return d.Allowed
		}
	}
	return false
}

// DetermineState maps a reconciled view and the index flags to a lifecycle
// state. A nil view means no authoritative on-chain state exists.
func DetermineState(view *View, status IndexStatus) State {
	switch {
	case status.Completed:
		return StateWithdrawn
	case status.Inactive:
		return StateCancelled
	case view == nil:
		return StateUnknown
	case view.IsGoalMet:
		return StateGoalMet
	default:
		return StateActive
	}
}

// Evaluate decides every per-campaign action for the requester. A nil
// requester is an anonymous viewer and may only perform unrestricted
// actions.
func Evaluate(view *View, status IndexStatus, requester *Identity) Eligibility {
	state := DetermineState(view, status)
	ret := Eligibility{
		State:     state,
		Decisions: make([]Decision, 0, len(Actions)),
	}
	for _, action := range Actions {
		d := Decision{Action: action, Allowed: true}
		if err := check(action, state, view, requester); err != nil {
			d.Allowed = false
			d.Reason = err.Reason
		}
		ret.Decisions = append(ret.Decisions, d)
	}
	return ret
}

// Check returns a GuardViolationError when the action is not permitted
func Check(
	action Action,
	view *View,
	status IndexStatus,
	requester *Identity,
) error {
	if err := check(action, DetermineState(view, status), view, requester); err != nil {
		return *err
	}
	return nil
}

func check(
	action Action,
	state State,
	view *View,
	requester *Identity,
) *GuardViolationError {
	deny := func(reason string) *GuardViolationError {
		ret := NewGuardViolationError(action, state, reason)
		return &ret
	}
	if !action.Mutating() {
		return nil
	}
	switch state {
	case StateUnknown:
		return deny("no authoritative campaign state")
	case StateCancelled:
		return deny("campaign is cancelled")
	case StateWithdrawn:
		return deny("campaign funds have been withdrawn")
	}
	isCreator := requester != nil && view.Creator.Same(*requester)
	switch action {
	case ActionSupport:
		if state != StateActive {
			return deny("campaign is not active")
		}
		if view.IsGoalMet {
			return deny("funding goal already reached")
		}
	case ActionCancel:
		if state != StateActive {
			return deny("campaign is not active")
		}
		if !isCreator {
			return deny("only the campaign creator may cancel")
		}
	case ActionSignWithdrawal:
		if state != StateGoalMet {
			return deny("funding goal not reached")
		}
		if !isCreator {
			return deny("only the campaign creator may sync funds")
		}
		if view.RecordedFunds == view.RaisedAmount {
			return deny("recorded funds already match raised amount")
		}
	case ActionWithdraw:
		if state != StateGoalMet {
			return deny("funding goal not reached")
		}
		if !isCreator {
			return deny("only the campaign creator may withdraw")
		}
		if view.RecordedFunds < view.GoalAmount {
			return deny("recorded funds below goal, sync funds first")
		}
	default:
		return deny("unknown action")
	}
	return nil
}
