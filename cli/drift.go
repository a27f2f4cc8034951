package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/fedloop/fedloop/pkg/drift"
)

var outputFile string

func NewDriftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift [check]",
		Short: "Drift monitor",
		Long:  `Run drift checks between feature windows.`,
	}

	checkCmd := &cobra.Command{
		Use:   "check <reference.json> <current.json>",
		Short: "Check drift",
		Long: `Compare two feature window files and print the drift report.

A window file holds an id and named feature columns:
  {"id": "w-2024-01", "features": {"latency": [1.0, 2.0], "size": [3.0, 4.0]}}`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			reference, err := readWindow(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			current, err := readWindow(args[1])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			report, err := fsdk.CheckDrift(reference, current)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			if outputFile != "" {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				if err := os.WriteFile(outputFile, data, 0o644); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logSuccessCmd(*cmd, "Report written to "+outputFile)
			}

			logJSONCmd(*cmd, report)
		},
	}
	checkCmd.Flags().StringVar(&outputFile, "output", "", "Write the report to a file for use with retrain --report")

	cmd.AddCommand(checkCmd)

	return cmd
}

func readWindow(path string) (drift.Window, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return drift.Window{}, err
	}

	var w drift.Window
	if err := json.Unmarshal(data, &w); err != nil {
		return drift.Window{}, err
	}

	return w, nil
}
