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
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/blinklabs-io/ratify/campaign"
	"github.com/blinklabs-io/ratify/internal/node"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withService runs fn against a service wired from the loaded config. The
// metrics are registered on a throwaway registry.
func withService(
	cmd *cobra.Command,
	fn func(*node.Service) (any, error),
) (err error) {
	logger := commonRun()
	svc, err := node.NewService(
		configFromCommand(cmd),
		logger,
		prometheus.NewRegistry(),
	)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, svc.Close())
	}()
	ret, err := fn(svc)
	if err != nil {
		return err
	}
	return printJSON(ret)
}

func locateCommand() *cobra.Command {
	var creator, title, originRef string
	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Derive the script address of a campaign",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			locator, err := node.NewLocator(configFromCommand(cmd))
			if err != nil {
				return err
			}
			identity, err := campaign.IdentityFromAddress(creator)
			if err != nil {
				return err
			}
			ref, err := campaign.ParseOutputRef(originRef)
			if err != nil {
				return err
			}
			addr, err := locator.Locate(campaign.Key{
				Creator:    identity,
				CampaignID: campaign.CampaignIDFromTitle(title),
				OriginRef:  ref,
			})
			if err != nil {
				return err
			}
			fmt.Println(addr)
			return nil
		},
	}
	cmd.Flags().StringVar(&creator, "creator", "", "creator wallet address")
	cmd.Flags().StringVar(&title, "title", "", "campaign title")
	cmd.Flags().StringVar(&originRef, "origin-ref", "", "seed output reference (txhash#index)")
	_ = cmd.MarkFlagRequired("creator")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("origin-ref")
	return cmd
}

func reconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile <address>",
		Short: "Rebuild the campaign view from chain state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(svc *node.Service) (any, error) {
				return svc.Reconcile(cmd.Context(), args[0])
			})
		},
	}
	return cmd
}

func eligibilityCommand() *cobra.Command {
	var requester string
	cmd := &cobra.Command{
		Use:   "eligibility <address>",
		Short: "Show which actions are currently allowed on a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var identity *campaign.Identity
			if requester != "" {
				id, err := campaign.IdentityFromAddress(requester)
				if err != nil {
					return err
				}
				identity = &id
			}
			return withService(cmd, func(svc *node.Service) (any, error) {
				return svc.Eligibility(cmd.Context(), args[0], identity)
			})
		},
	}
	cmd.Flags().StringVar(&requester, "requester", "", "requesting wallet address")
	return cmd
}

func historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <address>",
		Short: "Show recent transactions touching a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(svc *node.Service) (any, error) {
				return svc.History(cmd.Context(), args[0])
			})
		},
	}
	return cmd
}
