package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/fedloop/fedloop"
	"github.com/fedloop/fedloop/cli"
	"github.com/fedloop/fedloop/pkg/sdk"
)

const (
	defCoordinatorURL  = "http://localhost:7070"
	defTLSVerification = false
)

func main() {
	coordinatorURL := defCoordinatorURL
	configPath := ""

	rootCmd := &cobra.Command{
		Use:   "fedloop-cli",
		Short: "Fedloop CLI",
		Long:  `Fedloop CLI is a command line interface for interacting with the round coordinator.`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if configPath != "" {
				cfg, err := fedloop.LoadConfig(configPath)
				if err != nil {
					log.Fatal(err)
				}
				// Flags win over the config file.
				if cfg.Coordinator.URL != "" && !cmd.Flags().Changed("coordinator-url") {
					coordinatorURL = cfg.Coordinator.URL
				}
			}
			sdkConf := sdk.Config{
				CoordinatorURL:  coordinatorURL,
				TLSVerification: defTLSVerification,
			}
			cli.SetFedloopSDK(sdk.NewSDK(sdkConf))
		},
	}
	rootCmd.PersistentFlags().StringVarP(
		&coordinatorURL,
		"coordinator-url",
		"c",
		defCoordinatorURL,
		"Coordinator base URL",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&cli.RawOutput,
		"raw",
		"r",
		false,
		"Enables raw JSON output",
	)
	rootCmd.PersistentFlags().StringVarP(
		&configPath,
		"config",
		"f",
		"",
		"TOML configuration file",
	)

	rootCmd.AddCommand(cli.NewSessionsCmd())
	rootCmd.AddCommand(cli.NewRetrainCmd())
	rootCmd.AddCommand(cli.NewDriftCmd())
	rootCmd.AddCommand(cli.NewNodesCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
