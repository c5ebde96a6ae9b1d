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


package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/blinklabs-io/ratify/database/plugin"
	"github.com/blinklabs-io/ratify/internal/config"
	"github.com/blinklabs-io/ratify/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

const (
	programName = "ratify"
)

func slogPrintf(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...),
		"component", programName,
	)
}

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

func commonRun() *slog.Logger {
	// Configure logger
	logLevel := slog.LevelInfo
	addSource := false
	if globalFlags.debug {
		logLevel = slog.LevelDebug
		addSource = true
	}
	logger := slog.New(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			AddSource: addSource,
			Level:     logLevel,
		}),
	)
	slog.SetDefault(logger)
	// Configure max processes with our logger wrapper, toss undo func
	_, err := maxprocs.Set(maxprocs.Logger(slogPrintf))
	if err != nil {
		// If we hit this, something really wrong happened
		slog.Error(err.Error())
		os.Exit(1)
	}
	logger.Debug(
		"version: "+version.GetVersionString(),
		"component", programName,
	)
	return logger
}

func listPlugins() string {
	var buf strings.Builder
	buf.WriteString("Available index plugins:\n")
	for _, p := range plugin.GetPlugins() {
		buf.WriteString(fmt.Sprintf("  %s: %s\n", p.Name, p.Description))
	}
	return buf.String()
}

func listCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all available index plugins",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(listPlugins())
		},
	}
	return cmd
}

func versionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the program version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", programName, version.GetVersionString())
		},
	}
	return cmd
}

// configFromCommand returns the config loaded by the root command
func configFromCommand(cmd *cobra.Command) *config.Config {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		slog.Error("no config found in context")
		os.Exit(1)
	}
	return cfg
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			serveRun(cmd, args, configFromCommand(cmd))
		},
	}

	// Global flags
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().
		StringP("index", "i", config.DefaultIndexPlugin, "campaign index plugin to use, 'list' to show available")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Handle plugin listing before config loading
		indexPlugin, _ := cmd.Root().PersistentFlags().GetString("index")
		if err := config.ListPlugins(indexPlugin); err != nil {
			if errors.Is(err, config.ErrPluginListRequested) {
				os.Exit(0)
			}
			return err
		}

		// Subcommands that need no config
		switch cmd.Name() {
		case "list", "version":
			return nil
		}

		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Override config with command line flags
		if cmd.Root().PersistentFlags().Changed("index") {
			cfg.IndexPlugin = indexPlugin
		}

		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	// Subcommands
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(locateCommand())
	rootCmd.AddCommand(reconcileCommand())
	rootCmd.AddCommand(eligibilityCommand())
	rootCmd.AddCommand(historyCommand())
	rootCmd.AddCommand(listCommand())
	rootCmd.AddCommand(versionCommand())

	// Execute cobra command
	if err := rootCmd.Execute(); err != nil {
		// NOTE: we purposely don't display the error, since cobra will have already displayed it
		os.Exit(1)
	}
}
