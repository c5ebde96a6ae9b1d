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
	"fmt"
	"strings"
)

type Direction string

const (
	DirectionReceiving Direction = "Receiving"
	DirectionSpending  Direction = "Spending"
	DirectionNeutral   Direction = "Neutral"
)

// TxInclusion locates a transaction on chain
type TxInclusion struct {
	Hash        string `json:"txHash"`
	BlockHash   string `json:"blockHash,omitempty"`
	BlockHeight uint64 `json:"blockHeight"`
	BlockTime   int64  `json:"blockTime"`
	Slot        uint64 `json:"slot,omitempty"`
}

// TxIO holds the resolved inputs and outputs of a transaction
type TxIO struct {
	Hash    string
	Inputs  []Utxo
	Outputs []Utxo
}

// HistoryEntry is the net effect of one transaction on a campaign address
type HistoryEntry struct {
	TxInclusion
	NetLovelace int64     `json:"netLovelace"`
	Amount      string    `json:"amount"`
	Direction   Direction `json:"direction"`
}

// Summarize computes the lovelace flowing into (positive) or out of
// (negative) the address in a transaction
func Summarize(address string, inclusion TxInclusion, io TxIO) HistoryEntry {
	var in, out uint64
	for _, u := range io.Inputs {
		if u.Address == address {
			in += u.Lovelace()
		}
	}
	for _, u := range io.Outputs {
		if u.Address == address {
			out += u.Lovelace()
		}
	}
	ret := HistoryEntry{
		TxInclusion: inclusion,
		Direction:   DirectionNeutral,
	}
	if ret.Hash == "" {
		ret.Hash = io.Hash
	}
	switch {
	case out > in:
		ret.NetLovelace = int64(out - in) //nolint:gosec
		ret.Direction = DirectionReceiving
	case in > out:
		ret.NetLovelace = -int64(in - out) //nolint:gosec
		ret.Direction = DirectionSpending
	}
	ret.Amount = FormatAda(ret.NetLovelace)
	return ret
}

// FormatAda renders a lovelace quantity as a decimal ADA amount without
// trailing zeros
func FormatAda(lovelace int64) string {
	sign := ""
	abs := uint64(lovelace) //nolint:gosec
	if lovelace < 0 {
		sign = "-"
		abs = uint64(-lovelace) //nolint:gosec
	}
	whole := abs / LovelacePerAda
	frac := abs % LovelacePerAda
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return fmt.Sprintf("%s%d.%s", sign, whole, fracStr)
}
