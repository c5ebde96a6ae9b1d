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


package config

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/ratify/campaign"
	"github.com/blinklabs-io/ratify/database"
	"github.com/blinklabs-io/ratify/database/plugin"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "ratify.config"

const (
	DefaultShutdownTimeout = 30 * time.Second
	DefaultIndexPlugin     = database.DefaultPlugin

	SubmitterBlockfrost = "blockfrost"
	SubmitterUtxorpc    = "utxorpc"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// ErrPluginListRequested is returned when the user requests to list available plugins
// This is not an error condition but a successful operation that displays plugin information
var ErrPluginListRequested = errors.New("plugin list requested")

var ErrMissingAdminKey = errors.New("admin key hash not configured")

type tempConfig struct {
	Config   yaml.Node       `yaml:"config,omitempty"`
	Database *databaseConfig `yaml:"database,omitempty"`
}

type databaseConfig struct {
	Plugin  string `yaml:"plugin,omitempty"`
	DataDir string `yaml:"dataDir,omitempty"`
	DSN     string `yaml:"dsn,omitempty"`
}

type Config struct {
	Network                 string        `yaml:"network"`
	ValidatorTemplatePath   string        `yaml:"validatorTemplatePath"   split_words:"true"`
	AdminKeyHash            string        `yaml:"adminKeyHash"            split_words:"true"`
	BlockfrostUrl           string        `yaml:"blockfrostUrl"           split_words:"true"`
	BlockfrostProjectId     string        `yaml:"blockfrostProjectId"     split_words:"true"`
	Submitter               string        `yaml:"submitter"`
	UtxorpcUrl              string        `yaml:"utxorpcUrl"              split_words:"true"`
	UtxorpcApiKeyHeader     string        `yaml:"utxorpcApiKeyHeader"     split_words:"true"`
	UtxorpcApiKey           string        `yaml:"utxorpcApiKey"           split_words:"true"`
	IndexPlugin             string        `yaml:"indexPlugin"             split_words:"true"`
	DataDir                 string        `yaml:"dataDir"                 split_words:"true"`
	IndexDsn                string        `yaml:"indexDsn"                split_words:"true"`
	ApiListenAddress        string        `yaml:"apiListenAddress"        split_words:"true"`
	BindAddr                string        `yaml:"bindAddr"                split_words:"true"`
	MetricsPort             uint          `yaml:"metricsPort"             split_words:"true"`
	ChainQueryTimeout       time.Duration `yaml:"chainQueryTimeout"       split_words:"true"`
	ChainQueryRetries       uint          `yaml:"chainQueryRetries"       split_words:"true"`
	ViewCacheTtl            time.Duration `yaml:"viewCacheTtl"            split_words:"true"`
	RefreshParallelism      int           `yaml:"refreshParallelism"      split_words:"true"`
	HistoryLimit            int           `yaml:"historyLimit"            split_words:"true"`
	ShutdownTimeout         time.Duration `yaml:"shutdownTimeout"         split_words:"true"`
	Tracing                 bool          `yaml:"tracing"`
	TracingStdout           bool          `yaml:"tracingStdout"           split_words:"true"`
	BlockfrostPageSize      int           `yaml:"blockfrostPageSize"      split_words:"true"`
}

func defaultConfig() *Config {
	return &Config{
		Network:            "preview",
		Submitter:          SubmitterBlockfrost,
		IndexPlugin:        DefaultIndexPlugin,
		DataDir:            ".ratify",
		ApiListenAddress:   ":3000",
		BindAddr:           "0.0.0.0",
		MetricsPort:        12799,
		ChainQueryTimeout:  15 * time.Second,
		ChainQueryRetries:  3,
		ViewCacheTtl:       30 * time.Second,
		RefreshParallelism: 4,
		HistoryLimit:       20,
		ShutdownTimeout:    DefaultShutdownTimeout,
	}
}

var globalConfig = defaultConfig()

// ListPlugins prints the registered index plugins when the requested
// plugin name is "list"
func ListPlugins(pluginName string) error {
	if pluginName != "list" {
		return nil
	}
	fmt.Println("Available index plugins:")
	for _, p := range plugin.GetPlugins() {
		fmt.Printf("  %s: %s\n", p.Name, p.Description)
	}
	return ErrPluginListRequested
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.ratify/ratify.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".ratify", "ratify.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/ratify/ratify.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/ratify/ratify.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		// First unmarshal into temp config to handle the database section
		var tempCfg tempConfig
		err = yaml.Unmarshal(buf, &tempCfg)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}

		if tempCfg.Config.Kind != 0 {
			// Overlay config section values onto existing defaults
			err = tempCfg.Config.Decode(globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
		} else {
			// Otherwise unmarshal the whole file as main config
			err = yaml.Unmarshal(buf, globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}

		if db := tempCfg.Database; db != nil {
			if db.Plugin != "" {
				globalConfig.IndexPlugin = db.Plugin
			}
			if db.DataDir != "" {
				globalConfig.DataDir = db.DataDir
			}
			if db.DSN != "" {
				globalConfig.IndexDsn = db.DSN
			}
		}
	}
	// Process environment variables
	err := envconfig.Process("ratify", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}

	if globalConfig.BlockfrostUrl == "" {
		globalConfig.BlockfrostUrl = defaultBlockfrostURLs[globalConfig.Network]
	}
	if err := globalConfig.Validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}

var defaultBlockfrostURLs = map[string]string{
	"mainnet": "https://cardano-mainnet.blockfrost.io/api/v0",
	"preprod": "https://cardano-preprod.blockfrost.io/api/v0",
	"preview": "https://cardano-preview.blockfrost.io/api/v0",
}

func (c *Config) Validate() error {
	if _, ok := defaultBlockfrostURLs[c.Network]; !ok {
		return fmt.Errorf("unknown network: %s", c.Network)
	}
	switch c.Submitter {
	case SubmitterBlockfrost:
	case SubmitterUtxorpc:
		if c.UtxorpcUrl == "" {
			return errors.New("utxorpcUrl is required for the utxorpc submitter")
		}
	default:
		return fmt.Errorf(
			"invalid submitter: %q (must be '%s' or '%s')",
			c.Submitter,
			SubmitterBlockfrost,
			SubmitterUtxorpc,
		)
	}
	if c.AdminKeyHash != "" {
		if _, err := c.AdminKey(); err != nil {
			return err
		}
	}
	if c.ChainQueryTimeout <= 0 {
		return fmt.Errorf("invalid chain query timeout: %s", c.ChainQueryTimeout)
	}
	if c.ViewCacheTtl < 0 {
		return fmt.Errorf("invalid view cache TTL: %s", c.ViewCacheTtl)
	}
	if c.RefreshParallelism < 0 || c.HistoryLimit < 0 {
		return errors.New("refreshParallelism and historyLimit must not be negative")
	}
	return nil
}

// NetworkID returns the address network ID for the configured network
func (c *Config) NetworkID() uint8 {
	if c.Network == "mainnet" {
		return common.AddressNetworkMainnet
	}
	return common.AddressNetworkTestnet
}

// AdminKey decodes the platform admin key hash
func (c *Config) AdminKey() ([]byte, error) {
	if c.AdminKeyHash == "" {
		return nil, ErrMissingAdminKey
	}
	ret, err := hex.DecodeString(c.AdminKeyHash)
	if err != nil {
		return nil, fmt.Errorf("invalid admin key hash: %w", err)
	}
	if len(ret) != campaign.KeyHashLength {
		return nil, fmt.Errorf(
			"invalid admin key hash: expected %d bytes, got %d",
			campaign.KeyHashLength,
			len(ret),
		)
	}
	return ret, nil
}

// ValidatorTemplate reads the hex-encoded unparameterised validator
// script from ValidatorTemplatePath
func (c *Config) ValidatorTemplate() ([]byte, error) {
	if c.ValidatorTemplatePath == "" {
		return nil, errors.New("validatorTemplatePath not configured")
	}
	buf, err := os.ReadFile(c.ValidatorTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("error reading validator template: %w", err)
	}
	ret, err := hex.DecodeString(string(bytes.TrimSpace(buf)))
	if err != nil {
		return nil, fmt.Errorf("error decoding validator template: %w", err)
	}
	if len(ret) == 0 {
		return nil, errors.New("validator template is empty")
	}
	return ret, nil
}
