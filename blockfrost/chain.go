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

package blockfrost

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/blinklabs-io/ratify/campaign"
	bfgo "github.com/blockfrost/blockfrost-go"
)

// UtxosAtAddress returns every unspent output at the address. An address
// that has never been used is reported by Blockfrost as 404 and yields an
// empty set.
func (c *Client) UtxosAtAddress(
	ctx context.Context,
	address string,
) ([]campaign.Utxo, error) {
	var ret []campaign.Utxo
	for page := 1; page <= maxPages; page++ {
		items, err := c.api.AddressUTXOs(
			ctx,
			address,
			bfgo.APIQueryParams{Count: c.pageSize, Page: page},
		)
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, c.classify("listing utxos at "+address, err)
		}
		for _, item := range items {
			amounts := make([]amount, 0, len(item.Amount))
			for _, a := range item.Amount {
				amounts = append(amounts, amount{unit: a.Unit, quantity: a.Quantity})
			}
			utxo, err := c.toUtxo(
				campaign.OutputRef{TxHash: item.TxHash, Index: uint32(item.OutputIndex)},
				address,
				amounts,
				optString(item.InlineDatum),
			)
			if err != nil {
				return nil, err
			}
			ret = append(ret, utxo)
		}
		if len(items) < c.pageSize {
			return ret, nil
		}
	}
	return nil, fmt.Errorf("listing utxos at %s: more than %d pages", address, maxPages)
}

// TxInclusion returns where a transaction was included on chain
func (c *Client) TxInclusion(
	ctx context.Context,
	txHash string,
) (*campaign.TxInclusion, error) {
	tx, err := c.api.Transaction(ctx, txHash)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTxNotFound
		}
		return nil, c.classify("getting transaction "+txHash, err)
	}
	return &campaign.TxInclusion{
		Hash:        tx.Hash,
		BlockHash:   tx.Block,
		BlockHeight: uint64(tx.BlockHeight),
		BlockTime:   int64(tx.BlockTime),
		Slot:        uint64(tx.Slot),
	}, nil
}

// AddressTransactions returns up to limit transactions touching the
// address, newest first
func (c *Client) AddressTransactions(
	ctx context.Context,
	address string,
	limit int,
) ([]campaign.TxInclusion, error) {
	if limit < 1 || limit > MaxPaginationCount {
		limit = MaxPaginationCount
	}
	items, err := c.api.AddressTransactions(
		ctx,
		address,
		bfgo.APIQueryParams{Count: limit, Page: 1, Order: "desc"},
	)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, c.classify("listing transactions at "+address, err)
	}
	ret := make([]campaign.TxInclusion, 0, len(items))
	for _, item := range items {
		ret = append(ret, campaign.TxInclusion{
			Hash:        item.TxHash,
			BlockHeight: uint64(item.BlockHeight),
			BlockTime:   int64(item.BlockTime),
		})
	}
	return ret, nil
}

// TxUtxos returns the resolved inputs and outputs of a transaction.
// Collateral and reference inputs are left out since they do not move
// value in a successful transaction.
func (c *Client) TxUtxos(
	ctx context.Context,
	txHash string,
) (*campaign.TxIO, error) {
	resp, err := c.api.TransactionUTXOs(ctx, txHash)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTxNotFound
		}
		return nil, c.classify("getting utxos for "+txHash, err)
	}
	ret := &campaign.TxIO{Hash: resp.Hash}
	for _, in := range resp.Inputs {
		if flagSet(in.Collateral) || flagSet(in.Reference) {
			continue
		}
		amounts := make([]amount, 0, len(in.Amount))
		for _, a := range in.Amount {
			amounts = append(amounts, amount{unit: a.Unit, quantity: a.Quantity})
		}
		utxo, err := c.toUtxo(
			campaign.OutputRef{TxHash: in.TxHash, Index: uint32(in.OutputIndex)},
			in.Address,
			amounts,
			optString(in.InlineDatum),
		)
		if err != nil {
			return nil, err
		}
		ret.Inputs = append(ret.Inputs, utxo)
	}
	for _, out := range resp.Outputs {
		if flagSet(out.Collateral) {
			continue
		}
		amounts := make([]amount, 0, len(out.Amount))
		for _, a := range out.Amount {
			amounts = append(amounts, amount{unit: a.Unit, quantity: a.Quantity})
		}
		utxo, err := c.toUtxo(
			campaign.OutputRef{TxHash: resp.Hash, Index: uint32(out.OutputIndex)},
			out.Address,
			amounts,
			optString(out.InlineDatum),
		)
		if err != nil {
			return nil, err
		}
		ret.Outputs = append(ret.Outputs, utxo)
	}
	return ret, nil
}

// SubmitTx submits a signed transaction and returns its hash. Ledger
// rejections are returned as campaign.SubmissionError.
func (c *Client) SubmitTx(ctx context.Context, txCbor []byte) (string, error) {
	txHash, err := c.api.TransactionSubmit(ctx, txCbor)
	if err != nil {
		var apiErr *bfgo.APIError
		if errors.As(err, &apiErr) &&
			apiErr.Response.StatusCode == http.StatusBadRequest {
			message := apiErr.Response.Message
			reason := campaign.ClassifyRejection(message)
			c.logger.Debug(
				"transaction rejected",
				"reason", reason,
				"message", message,
			)
			return "", campaign.NewSubmissionError(reason, message)
		}
		return "", c.classify("submitting transaction", err)
	}
	return txHash, nil
}

type amount struct {
	unit     string
	quantity string
}

func (c *Client) toUtxo(
	ref campaign.OutputRef,
	address string,
	amounts []amount,
	inlineDatum string,
) (campaign.Utxo, error) {
	ret := campaign.Utxo{
		Ref:     ref,
		Address: address,
		Amount:  make([]campaign.Asset, 0, len(amounts)),
	}
	for _, a := range amounts {
		qty, err := strconv.ParseUint(a.quantity, 10, 64)
		if err != nil {
			return campaign.Utxo{}, fmt.Errorf(
				"invalid quantity %q for %s in %s: %w",
				a.quantity,
				a.unit,
				ret.Ref,
				err,
			)
		}
		ret.Amount = append(ret.Amount, campaign.Asset{
			Unit:     a.unit,
			Quantity: qty,
		})
	}
	if inlineDatum != "" {
		datum, err := hex.DecodeString(inlineDatum)
		if err != nil {
			// Treated as an output without a datum
			c.logger.Debug(
				"ignoring malformed inline datum",
				"ref", ret.Ref.String(),
				"error", err,
			)
			return ret, nil
		}
		ret.Datum = datum
	}
	return ret, nil
}

// The SDK models optional fields as plain or pointer values depending on
// the endpoint
func optString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case *string:
		if s != nil {
			return *s
		}
	}
	return ""
}

func flagSet(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case *bool:
		return b != nil && *b
	}
	return false
}
