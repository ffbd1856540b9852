// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Command fragment-chain populates the fragment chain of a para from a YAML
// scenario and prints the chain, the membership of every known candidate and
// the candidates which could be backed next.
package main

import (
	"fmt"
	"os"

	"github.com/paritytech/polkadot-sdk-sub011/config"
	"github.com/paritytech/polkadot-sdk-sub011/internal/log"
	"github.com/spf13/cobra"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "fragment_chain_cmd"))

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "fragment-chain",
		Short:        "Inspects prospective parachain fragment chains",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			log.Patch(log.SetLevel(cfg.LogLevel()), log.SetWriter(cmd.ErrOrStderr()))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the node YAML configuration")
	root.AddCommand(populateCommand())
	return root
}

type populateFlags struct {
	scenario  string
	ancestors []string
	count     uint32
}

func populateCommand() *cobra.Command {
	flags := &populateFlags{}

	c := &cobra.Command{
		Use:   "populate",
		Short: "Builds the fragment chain of a scenario",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadScenario(flags.scenario)
			if err != nil {
				return err
			}

			r, err := populate(s, flags.ancestors, flags.count)
			if err != nil {
				return err
			}

			r.write(cmd.OutOrStdout())
			return nil
		},
	}

	c.Flags().StringVar(&flags.scenario, "scenario", "", "path to the YAML scenario")
	c.Flags().StringSliceVar(&flags.ancestors, "ancestors", nil,
		"candidates, by name or hash, already included or pending availability")
	c.Flags().Uint32Var(&flags.count, "count", 1, "maximum number of backable candidates to select")
	if err := c.MarkFlagRequired("scenario"); err != nil {
		panic(fmt.Sprintf("marking scenario flag required: %s", err))
	}
	return c
}
