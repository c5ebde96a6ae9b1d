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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/grpchealth"
	"connectrpc.com/grpcreflect"
	"github.com/blinklabs-io/ratify"
	"github.com/blinklabs-io/ratify/campaign"
	"github.com/blinklabs-io/ratify/event"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const DefaultListenAddress = ":3000"

// Service is the campaign service the API exposes
type Service interface {
	Campaigns(ctx context.Context) ([]ratify.CampaignStatus, error)
	Campaign(ctx context.Context, address string) (*ratify.CampaignStatus, error)
	Eligibility(
		ctx context.Context,
		address string,
		requester *campaign.Identity,
	) (*campaign.Eligibility, error)
	History(ctx context.Context, address string) ([]campaign.HistoryEntry, error)
	RelatedCampaigns(
		ctx context.Context,
		identity campaign.Identity,
	) ([]ratify.CampaignStatus, error)
	TxStatus(ctx context.Context, txHash string) (*campaign.TxInclusion, error)
	Prepare(
		ctx context.Context,
		address string,
		req campaign.ActionRequest,
	) (*campaign.TxPlan, error)
	Submit(ctx context.Context, req ratify.SubmitRequest) (string, error)
	PrepareLaunch(
		ctx context.Context,
		params ratify.LaunchParams,
	) (*campaign.TxPlan, error)
	SubmitLaunch(
		ctx context.Context,
		params ratify.LaunchParams,
		txCbor []byte,
	) (string, error)
	EventBus() *event.EventBus
}

type Config struct {
	ListenAddress string
}

// Server is the campaign REST API server
type Server struct {
	config     Config
	logger     *slog.Logger
	service    Service
	httpServer *http.Server
	done       chan struct{}
	mu         sync.Mutex
}

// New creates a new API server instance
func New(
	cfg Config,
	service Service,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.New(
			slog.NewJSONHandler(io.Discard, nil),
		)
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	return &Server{
		config:  cfg,
		logger:  logger,
		service: service,
	}
}

// Handler returns the API routes. gRPC health checks are served alongside
// them over h2c.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v0/campaigns", s.handleCampaigns)
	mux.HandleFunc("POST /api/v0/campaigns", s.handlePrepareLaunch)
	mux.HandleFunc("POST /api/v0/campaigns/submit", s.handleSubmitLaunch)
	mux.HandleFunc("GET /api/v0/campaigns/{address}", s.handleCampaign)
	mux.HandleFunc(
		"GET /api/v0/campaigns/{address}/eligibility",
		s.handleEligibility,
	)
	mux.HandleFunc(
		"GET /api/v0/campaigns/{address}/history",
		s.handleHistory,
	)
	mux.HandleFunc(
		"POST /api/v0/campaigns/{address}/actions/{action}",
		s.handlePrepareAction,
	)
	mux.HandleFunc(
		"POST /api/v0/campaigns/{address}/submit",
		s.handleSubmit,
	)
	mux.HandleFunc(
		"GET /api/v0/accounts/{address}/campaigns",
		s.handleAccountCampaigns,
	)
	mux.HandleFunc("GET /api/v0/txs/{hash}", s.handleTxStatus)
	mux.HandleFunc("GET /api/v0/events", s.handleEvents)
	mux.Handle(
		grpchealth.NewHandler(
			grpchealth.NewStaticChecker(),
		),
	)
	reflector := grpcreflect.NewStaticReflector(
		grpchealth.HealthV1ServiceName,
	)
	mux.Handle(grpcreflect.NewHandlerV1(reflector))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector))
	return otelhttp.NewHandler(
		h2c.NewHandler(mux, &http2.Server{}),
		"api",
	)
}

// Start starts the HTTP server in a background goroutine
func (s *Server) Start(
	ctx context.Context,
) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	s.httpServer = server
	s.done = make(chan struct{})
	s.mu.Unlock()

	// Start the server with deterministic error detection
	if err := s.startServer(server); err != nil {
		s.mu.Lock()
		s.httpServer = nil
		s.mu.Unlock()
		return err
	}

	s.logger.Info(
		"API listener started on " +
			s.config.ListenAddress,
	)

	// Monitor context for cancellation
	go func() {
		<-ctx.Done()
		s.logger.Debug("context cancelled, shutting down API server")
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			30*time.Second,
		)
		defer cancel()
		//nolint:contextcheck
		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server. Open event streams are
// closed first since they never go idle on their own.
func (s *Server) Stop(
	ctx context.Context,
) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	if srv != nil {
		close(s.done)
	}
	s.mu.Unlock()

	if srv != nil {
		s.logger.Debug("shutting down API server")
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf(
				"failed to shutdown API server: %w",
				err,
			)
		}
	}
	return nil
}

func (s *Server) doneCh() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// startServer binds the listening socket first so port conflicts are
// detected immediately, then serves in a background goroutine
func (s *Server) startServer(
	server *http.Server,
) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf(
			"failed to listen for API server: %w",
			err,
		)
	}
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(
				"API server error",
				"error", err,
			)
		}
	}()
	return nil
}
