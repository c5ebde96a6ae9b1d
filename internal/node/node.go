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


package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/ratify"
	"github.com/blinklabs-io/ratify/api"
	"github.com/blinklabs-io/ratify/blockfrost"
	"github.com/blinklabs-io/ratify/campaign"
	"github.com/blinklabs-io/ratify/database"
	"github.com/blinklabs-io/ratify/internal/config"
	"github.com/blinklabs-io/ratify/utxorpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service is a fully wired reconciliation core along with the resources it
// owns
type Service struct {
	*ratify.Ratify
	db *database.Database
}

// Close stops the core and closes the campaign index
func (s *Service) Close() error {
	return errors.Join(s.Stop(), s.db.Close())
}

// NewLocator builds the campaign address locator from the configured
// validator template and admin key
func NewLocator(cfg *config.Config) (*campaign.Locator, error) {
	adminKey, err := cfg.AdminKey()
	if err != nil {
		return nil, err
	}
	template, err := cfg.ValidatorTemplate()
	if err != nil {
		return nil, err
	}
	return campaign.NewLocator(campaign.LocatorConfig{
		Template:     template,
		AdminKeyHash: adminKey,
		NetworkID:    cfg.NetworkID(),
	})
}

// NewService wires the campaign index, chain query backend and submitter
// from the provided config
func NewService(
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*Service, error) {
	locator, err := NewLocator(cfg)
	if err != nil {
		return nil, err
	}
	bfOpts := []blockfrost.ClientOption{
		blockfrost.WithLogger(logger),
		blockfrost.WithProjectID(cfg.BlockfrostProjectId),
	}
	if cfg.BlockfrostPageSize > 0 {
		bfOpts = append(bfOpts, blockfrost.WithPageSize(cfg.BlockfrostPageSize))
	}
	chain := blockfrost.NewClient(cfg.BlockfrostUrl, bfOpts...)
	var submitter ratify.Submitter = chain
	if cfg.Submitter == config.SubmitterUtxorpc {
		submitter, err = utxorpc.NewSubmitter(utxorpc.SubmitterConfig{
			Logger:       logger,
			URL:          cfg.UtxorpcUrl,
			APIKeyHeader: cfg.UtxorpcApiKeyHeader,
			APIKey:       cfg.UtxorpcApiKey,
		})
		if err != nil {
			return nil, err
		}
	}
	db, err := database.New(database.Config{
		PromRegistry: promRegistry,
		Logger:       logger,
		Plugin:       cfg.IndexPlugin,
		DataDir:      cfg.DataDir,
		DSN:          cfg.IndexDsn,
	})
	if err != nil {
		return nil, fmt.Errorf("opening campaign index: %w", err)
	}
	r, err := ratify.New(
		ratify.NewConfig(
			ratify.WithLogger(logger),
			ratify.WithPrometheusRegistry(promRegistry),
			ratify.WithLocator(locator),
			ratify.WithChainQuery(chain),
			ratify.WithSubmitter(submitter),
			ratify.WithIndex(db),
			ratify.WithChainQueryTimeout(cfg.ChainQueryTimeout),
			ratify.WithChainQueryRetries(cfg.ChainQueryRetries),
			ratify.WithViewCacheTTL(cfg.ViewCacheTtl),
			ratify.WithRefreshParallelism(cfg.RefreshParallelism),
			ratify.WithHistoryLimit(cfg.HistoryLimit),
			ratify.WithTracing(cfg.Tracing),
			ratify.WithTracingStdout(cfg.TracingStdout),
			ratify.WithShutdownTimeout(cfg.ShutdownTimeout),
		),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Service{Ratify: r, db: db}, nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	svc, err := NewService(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	metricsAddr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
	logger.Info(
		"serving prometheus metrics on "+metricsAddr,
		"component", "node",
	)
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errChan := make(chan error, 2)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			errChan <- fmt.Errorf("failed to start metrics listener: %w", err)
		}
	}()

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	apiServer := api.New(
		api.Config{ListenAddress: cfg.ApiListenAddress},
		svc,
		logger,
	)
	//nolint:contextcheck
	if err := apiServer.Start(signalCtx); err != nil {
		errChan <- err
	}

	var runErr error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
	case runErr = <-errChan:
		logger.Error("node error", "error", runErr)
		signalCtxStop()
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.ShutdownTimeout,
	)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}
	if err := svc.Close(); err != nil {
		logger.Error("shutdown errors occurred", "error", err)
		return errors.Join(runErr, err)
	}
	if runErr == nil {
		logger.Info("shutdown complete")
	}
	return runErr
}
