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
	"errors"
	"fmt"
	"math/big"

	"github.com/blinklabs-io/gouroboros/cbor"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/plutigo/data"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// Script hashes are computed over a language tag followed by the script
	plutusV3ScriptTag = 0x03

	defaultLocatorCacheSize = 1024

	// Asset names are limited to 32 bytes and carry a 7 byte prefix
	MaxCampaignIDLength = 25

	CreatorTokenPrefix = "RTF-CC-"
	BackerTokenPrefix  = "RTF-CB-"
	StateTokenName     = "CC-UTXO"
)

var ErrMissingTemplate = errors.New("validator template not configured")

// Key holds the parameters that pin a campaign to its validator instance
type Key struct {
	Creator    Identity  `json:"creator"`
	CampaignID HexBytes  `json:"campaignId"`
	OriginRef  OutputRef `json:"originRef"`
}

// Clone returns a copy that shares no byte slices with k
func (k Key) Clone() Key {
	return Key{
		Creator: Identity{
			PaymentKeyHash: bytes.Clone(k.Creator.PaymentKeyHash),
			StakeKeyHash:   bytes.Clone(k.Creator.StakeKeyHash),
		},
		CampaignID: bytes.Clone(k.CampaignID),
		OriginRef:  k.OriginRef,
	}
}

func (k Key) Validate() error {
	if len(k.CampaignID) == 0 {
		return NewInvalidParameterError("campaign id", "empty")
	}
	if len(k.CampaignID) > MaxCampaignIDLength {
		return NewInvalidParameterError(
			"campaign id",
			fmt.Sprintf(
				"exceeds %d bytes",
				MaxCampaignIDLength,
			),
		)
	}
	if err := k.Creator.Validate(); err != nil {
		return err
	}
	return k.OriginRef.Validate()
}

// CampaignIDFromTitle derives the on-chain campaign id from its title
func CampaignIDFromTitle(title string) HexBytes {
	return HexBytes(title)
}

// ScriptApplier applies encoded parameters to a validator template
type ScriptApplier interface {
	ApplyParams(template []byte, params []data.PlutusData) ([]byte, error)
}

// EnvelopeApplier produces the applied script as the CBOR array
// [template, [params...]]. The result is deterministic in its inputs.
type EnvelopeApplier struct{}

func (EnvelopeApplier) ApplyParams(
	template []byte,
	params []data.PlutusData,
) ([]byte, error) {
	encoded := make([]cbor.RawMessage, 0, len(params))
	for _, param := range params {
		tmp, err := data.Encode(param)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, cbor.RawMessage(tmp))
	}
	return cbor.Encode([]any{template, encoded})
}

// Validator is a campaign's parameterised validator instance
type Validator struct {
	Address    string   `json:"address"`
	PolicyID   string   `json:"policyId"`
	ScriptHash HexBytes `json:"scriptHash"`
	Script     HexBytes `json:"script"`
	NetworkID  uint8    `json:"networkId"`
	Key        Key      `json:"key"`
}

// Unit returns the asset unit for a token minted by the validator
func (v *Validator) Unit(assetName string) string {
	return v.PolicyID + hex.EncodeToString([]byte(assetName))
}

func (v *Validator) CreatorTokenName() string {
	return CreatorTokenPrefix + string(v.Key.CampaignID)
}

func (v *Validator) BackerTokenName() string {
	return BackerTokenPrefix + string(v.Key.CampaignID)
}

type LocatorConfig struct {
	Applier      ScriptApplier
	Template     []byte
	AdminKeyHash []byte
	CacheSize    int
	NetworkID    uint8
}

// Locator derives campaign addresses. Derivation is pure, so results are
// memoised per parameter set.
type Locator struct {
	applier   ScriptApplier
	cache     *lru.Cache[string, *Validator]
	template  []byte
	admin     []byte
	networkID uint8
}

func NewLocator(cfg LocatorConfig) (*Locator, error) {
	if len(cfg.Template) == 0 {
		return nil, ErrMissingTemplate
	}
	if len(cfg.AdminKeyHash) != KeyHashLength {
		return nil, NewInvalidParameterError(
			"admin key hash",
			fmt.Sprintf(
				"expected %d bytes, got %d",
				KeyHashLength,
				len(cfg.AdminKeyHash),
			),
		)
	}
	if cfg.NetworkID != lcommon.AddressNetworkMainnet &&
		cfg.NetworkID != lcommon.AddressNetworkTestnet {
		return nil, NewInvalidParameterError(
			"network id",
			fmt.Sprintf("unsupported network id %d", cfg.NetworkID),
		)
	}
	if cfg.Applier == nil {
		cfg.Applier = EnvelopeApplier{}
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultLocatorCacheSize
	}
	cache, err := lru.New[string, *Validator](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Locator{
		applier:   cfg.Applier,
		cache:     cache,
		template:  bytes.Clone(cfg.Template),
		admin:     bytes.Clone(cfg.AdminKeyHash),
		networkID: cfg.NetworkID,
	}, nil
}

func (l *Locator) NetworkID() uint8 {
	return l.networkID
}

func (l *Locator) AdminKeyHash() HexBytes {
	return bytes.Clone(l.admin)
}

// Locate returns the campaign's script address
func (l *Locator) Locate(k Key) (string, error) {
	v, err := l.Validator(k)
	if err != nil {
		return "", err
	}
	return v.Address, nil
}

// Validator applies the campaign parameters to the validator template and
// derives the script hash, policy id and enterprise script address
func (l *Locator) Validator(k Key) (*Validator, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	params, err := l.params(k)
	if err != nil {
		return nil, err
	}
	var encodedParams []byte
	for _, param := range params {
		tmp, err := data.Encode(param)
		if err != nil {
			return nil, fmt.Errorf("encode validator params: %w", err)
		}
		encodedParams = append(encodedParams, tmp...)
	}
	cacheKey := hex.EncodeToString(encodedParams)
	if v, ok := l.cache.Get(cacheKey); ok {
		return v, nil
	}
	script, err := l.applier.ApplyParams(l.template, params)
	if err != nil {
		return nil, fmt.Errorf("apply validator params: %w", err)
	}
	scriptHash := lcommon.Blake2b224Hash(
		append([]byte{plutusV3ScriptTag}, script...),
	)
	addr, err := lcommon.NewAddressFromParts(
		lcommon.AddressTypeScriptNone,
		l.networkID,
		scriptHash.Bytes(),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("build script address: %w", err)
	}
	v := &Validator{
		Address:    addr.String(),
		PolicyID:   scriptHash.String(),
		ScriptHash: bytes.Clone(scriptHash.Bytes()),
		Script:     script,
		NetworkID:  l.networkID,
		Key:        k.Clone(),
	}
	l.cache.Add(cacheKey, v)
	return v, nil
}

// params returns [admin key hash, creator address, campaign id, origin ref]
func (l *Locator) params(k Key) ([]data.PlutusData, error) {
	creator, err := identityData(k.Creator)
	if err != nil {
		return nil, err
	}
	txHash, err := hex.DecodeString(k.OriginRef.TxHash)
	if err != nil {
		return nil, NewInvalidParameterError("tx hash", err.Error())
	}
	return []data.PlutusData{
		data.NewByteString(bytes.Clone(l.admin)),
		creator,
		data.NewByteString(bytes.Clone(k.CampaignID)),
		data.NewConstr(
			0,
			data.NewByteString(txHash),
			data.NewInteger(big.NewInt(int64(k.OriginRef.Index))),
		),
	}, nil
}
