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
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCampaignNotFound = errors.New("no creator record found at campaign address")
	ErrChainUnavailable = errors.New("chain query service unavailable")
	ErrStateChanged     = errors.New(
		"campaign state changed, please retry",
	)
	ErrActionInProgress = errors.New(
		"another action is in progress for this campaign",
	)
	ErrTxNotFound = errors.New("transaction not found")

	// Sentinels matched by the typed errors below via errors.Is
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrAmbiguousState     = errors.New("ambiguous campaign state")
	ErrDecode             = errors.New("datum decode failed")
	ErrGuardViolation     = errors.New("action not permitted")
	ErrSubmissionRejected = errors.New("transaction submission rejected")
)

type InvalidParameterError struct {
	Field  string
	Reason string
}

func NewInvalidParameterError(field, reason string) InvalidParameterError {
	return InvalidParameterError{Field: field, Reason: reason}
}

func (e InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e InvalidParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}

// AmbiguousStateError is returned when more than one creator record is
// present at a campaign address. No record is chosen.
type AmbiguousStateError struct {
	Address  string
	Creators []OutputRef
}

func (e AmbiguousStateError) Error() string {
	return fmt.Sprintf(
		"found %d creator records at %s, manual investigation required",
		len(e.Creators),
		e.Address,
	)
}

func (e AmbiguousStateError) Is(target error) bool {
	return target == ErrAmbiguousState
}

type DecodeError struct {
	Ref    OutputRef
	Reason string
	Err    error
}

func (e DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode datum at %s: %s: %s", e.Ref, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode datum at %s: %s", e.Ref, e.Reason)
}

func (e DecodeError) Unwrap() error {
	return e.Err
}

func (e DecodeError) Is(target error) bool {
	return target == ErrDecode
}

type GuardViolationError struct {
	Action Action
	State  State
	Reason string
}

func NewGuardViolationError(action Action, state State, reason string) GuardViolationError {
	return GuardViolationError{Action: action, State: state, Reason: reason}
}

func (e GuardViolationError) Error() string {
	return fmt.Sprintf(
		"action %s not permitted in state %s: %s",
		e.Action,
		e.State,
		e.Reason,
	)
}

func (e GuardViolationError) Is(target error) bool {
	return target == ErrGuardViolation
}

// RejectReason classifies why the ledger refused a submitted transaction
type RejectReason string

const (
	RejectUtxoAlreadySpent       RejectReason = "UtxoAlreadySpent"
	RejectInsufficientCollateral RejectReason = "InsufficientCollateral"
	RejectScriptValidation       RejectReason = "ScriptValidationFailed"
	RejectUnknown                RejectReason = "Unknown"
)

type SubmissionError struct {
	Reason  RejectReason
	Message string
}

func NewSubmissionError(reason RejectReason, message string) SubmissionError {
	return SubmissionError{Reason: reason, Message: message}
}

func (e SubmissionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("submission rejected: %s", e.Reason)
	}
	return fmt.Sprintf("submission rejected: %s: %s", e.Reason, e.Message)
}

func (e SubmissionError) Is(target error) bool {
	return target == ErrSubmissionRejected
}

// Ledger predicate failure names, as they appear in node rejection messages
var rejectMarkers = []struct {
	marker string
	reason RejectReason
}{
	{"BadInputsUTxO", RejectUtxoAlreadySpent},
	{"InsufficientCollateral", RejectInsufficientCollateral},
	{"NoCollateralInputs", RejectInsufficientCollateral},
	{"CollateralContainsNonADA", RejectInsufficientCollateral},
	{"IncorrectTotalCollateralField", RejectInsufficientCollateral},
	{"ValidationTagMismatch", RejectScriptValidation},
	{"ScriptFailure", RejectScriptValidation},
	{"PlutusFailure", RejectScriptValidation},
	{"MissingRedeemers", RejectScriptValidation},
}

// ClassifyRejection maps a node rejection message onto a RejectReason
func ClassifyRejection(message string) RejectReason {
	for _, m := range rejectMarkers {
		if strings.Contains(message, m.marker) {
			return m.reason
		}
	}
	return RejectUnknown
}

// IsRetryable reports whether err is a transient condition that may succeed
// on a later attempt, possibly after a fresh reconcile.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrChainUnavailable),
		errors.Is(err, ErrStateChanged),
		errors.Is(err, ErrActionInProgress):
		return true
	}
	var subErr SubmissionError
	if errors.As(err, &subErr) {
		return subErr.Reason == RejectUtxoAlreadySpent
	}
	return false
}
