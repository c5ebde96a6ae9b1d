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

package utxorpc

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/blinklabs-io/ratify/campaign"
	submit "github.com/utxorpc/go-codegen/utxorpc/v1alpha/submit"
	"github.com/utxorpc/go-codegen/utxorpc/v1alpha/submit/submitconnect"
	"golang.org/x/net/http2"
)

type SubmitterConfig struct {
	Logger *slog.Logger
	// URL of the UTxO RPC endpoint. Plain http URLs are dialed using h2c.
	URL string
	// Optional header carrying an API key, as used by hosted providers
	APIKeyHeader string
	APIKey       string
	HTTPClient   *http.Client
}

// Submitter submits signed transactions through a UTxO RPC SubmitService
type Submitter struct {
	config SubmitterConfig
	client submitconnect.SubmitServiceClient
}

func NewSubmitter(cfg SubmitterConfig) (*Submitter, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "utxorpc")
	if cfg.URL == "" {
		return nil, errors.New("no UTxO RPC URL configured")
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
		if strings.HasPrefix(cfg.URL, "http://") {
			httpClient = newH2CClient()
		}
	}
	return &Submitter{
		config: cfg,
		client: submitconnect.NewSubmitServiceClient(
			httpClient,
			cfg.URL,
			connect.WithGRPC(),
		),
	}, nil
}

// newH2CClient returns a client speaking HTTP/2 without TLS
func newH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(
				ctx context.Context,
				network string,
				addr string,
				_ *tls.Config,
			) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}

// SubmitTx submits a single signed transaction and returns its hash
func (s *Submitter) SubmitTx(ctx context.Context, txCbor []byte) (string, error) {
	req := connect.NewRequest(&submit.SubmitTxRequest{
		Tx: []*submit.AnyChainTx{
			{
				Type: &submit.AnyChainTx_Raw{Raw: txCbor},
			},
		},
	})
	if s.config.APIKeyHeader != "" {
		req.Header().Set(s.config.APIKeyHeader, s.config.APIKey)
	}
	resp, err := s.client.SubmitTx(ctx, req)
	if err != nil {
		return "", s.mapError(err)
	}
	refs := resp.Msg.GetRef()
	if len(refs) == 0 || len(refs[0]) == 0 {
		return "", errors.New("submit response did not include a transaction reference")
	}
	txHash := hex.EncodeToString(refs[0])
	s.config.Logger.Debug("submitted transaction", "tx_hash", txHash)
	return txHash, nil
}

func (s *Submitter) mapError(err error) error {
	switch connect.CodeOf(err) {
	case connect.CodeUnavailable,
		connect.CodeDeadlineExceeded,
		connect.CodeResourceExhausted:
		return fmt.Errorf("%w: %w", campaign.ErrChainUnavailable, err)
	case connect.CodeCanceled:
		return err
	}
	message := err.Error()
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		message = connectErr.Message()
	}
	reason := campaign.ClassifyRejection(message)
	s.config.Logger.Debug(
		"transaction rejected",
		"reason", reason,
		"message", message,
	)
	return campaign.NewSubmissionError(reason, message)
}
