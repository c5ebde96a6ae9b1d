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
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"connectrpc.com/connect"
	"github.com/blinklabs-io/ratify/campaign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	submit "github.com/utxorpc/go-codegen/utxorpc/v1alpha/submit"
	"github.com/utxorpc/go-codegen/utxorpc/v1alpha/submit/submitconnect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// fakeSubmitService implements the SubmitService API for testing
type fakeSubmitService struct {
	submitconnect.UnimplementedSubmitServiceHandler
	mu     sync.Mutex
	err    error
	ref    []byte
	apiKey string
	gotTx  []byte
}

func (f *fakeSubmitService) SubmitTx(
	ctx context.Context,
	req *connect.Request[submit.SubmitTxRequest],
) (*connect.Response[submit.SubmitTxResponse], error) {
	if f.apiKey != "" && req.Header().Get("dmtr-api-key") != f.apiKey {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("bad key"))
	}
	txs := req.Msg.GetTx()
	if len(txs) != 1 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("expected one tx"))
	}
	f.mu.Lock()
	f.gotTx = txs[0].GetRaw()
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return connect.NewResponse(&submit.SubmitTxResponse{
		Ref: [][]byte{f.ref},
	}), nil
}

func newTestSubmitter(t *testing.T, svc *fakeSubmitService) *Submitter {
	t.Helper()
	mux := http.NewServeMux()
	path, handler := submitconnect.NewSubmitServiceHandler(svc)
	mux.Handle(path, handler)
	// Use h2c so we can serve HTTP/2 without TLS
	server := httptest.NewServer(h2c.NewHandler(mux, &http2.Server{}))
	t.Cleanup(server.Close)
	s, err := NewSubmitter(SubmitterConfig{
		URL:          server.URL,
		APIKeyHeader: "dmtr-api-key",
		APIKey:       "test-key",
	})
	require.NoError(t, err)
	return s
}

func TestSubmitTx(t *testing.T) {
	svc := &fakeSubmitService{
		ref:    []byte{0xde, 0xad, 0xbe, 0xef},
		apiKey: "test-key",
	}
	s := newTestSubmitter(t, svc)
	txHash, err := s.SubmitTx(t.Context(), []byte{0x84, 0x01})
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", txHash)
	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Equal(t, []byte{0x84, 0x01}, svc.gotTx)
}

func TestSubmitTxErrorMapping(t *testing.T) {
	testDefs := []struct {
		name        string
		err         error
		unavailable bool
		reason      campaign.RejectReason
	}{
		{
			name:        "unavailable",
			err:         connect.NewError(connect.CodeUnavailable, errors.New("node syncing")),
			unavailable: true,
		},
		{
			name:        "deadline",
			err:         connect.NewError(connect.CodeDeadlineExceeded, errors.New("slow")),
			unavailable: true,
		},
		{
			name:   "spent input",
			err:    errors.New("failed to add tx to mempool: BadInputsUTxO"),
			reason: campaign.RejectUtxoAlreadySpent,
		},
		{
			name:   "script failure",
			err:    connect.NewError(connect.CodeInvalidArgument, errors.New("PlutusFailure: validator crashed")),
			reason: campaign.RejectScriptValidation,
		},
		{
			name:   "other",
			err:    connect.NewError(connect.CodeInternal, errors.New("boom")),
			reason: campaign.RejectUnknown,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			s := newTestSubmitter(t, &fakeSubmitService{err: testDef.err})
			_, err := s.SubmitTx(t.Context(), []byte{0x84})
			require.Error(t, err)
			if testDef.unavailable {
				require.ErrorIs(t, err, campaign.ErrChainUnavailable)
				return
			}
			var subErr campaign.SubmissionError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, testDef.reason, subErr.Reason)
		})
	}
}

func TestNewSubmitterRequiresURL(t *testing.T) {
	_, err := NewSubmitter(SubmitterConfig{})
	require.Error(t, err)
}
