package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/fedloop/fedloop/pkg/drift"
	"github.com/fedloop/fedloop/scheduler"
	"github.com/fedloop/fedloop/session"
)

var reportFile string

func NewRetrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrain <cluster>",
		Short: "Trigger retraining",
		Long: `Submit a retraining trigger to the scheduler.

The trigger passes the same cooldown and single-concurrency gates as
drift-detected and scheduled retraining. A drift trigger requires a
report file produced by "fedloop-cli drift check".

Examples:
  # Manual retraining
  fedloop-cli retrain edge-eu-1 --rounds=10 --min-clients=3 --schema=1024

  # Drift-gated retraining from a saved report
  fedloop-cli retrain edge-eu-1 --rounds=10 --min-clients=3 --schema=1024 --report=report.json`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			trigger := scheduler.Trigger{
				Mode: session.TriggerManual,
				Config: session.Config{
					Cluster:         args[0],
					NumRounds:       numRounds,
					MinClients:      minClients,
					RoundTimeout:    roundTimeout,
					MaxRoundRetries: maxRoundRetries,
					ModelSchema:     modelSchema,
				},
			}

			if reportFile != "" {
				data, err := os.ReadFile(reportFile)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				var report drift.Report
				if err := json.Unmarshal(data, &report); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				trigger.Mode = session.TriggerDrift
				trigger.Report = &report
			}

			s, err := fsdk.Retrain(trigger)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, s)
		},
	}

	cmd.Flags().IntVar(&numRounds, "rounds", 1, "Number of rounds to run")
	cmd.Flags().IntVar(&minClients, "min-clients", 1, "Quorum required to close a round")
	cmd.Flags().DurationVar(&roundTimeout, "round-timeout", session.DefRoundTimeout, "Per-round deadline")
	cmd.Flags().IntVar(&maxRoundRetries, "max-retries", session.DefMaxRoundRetries, "Retries for a round that misses quorum")
	cmd.Flags().IntVar(&modelSchema, "schema", 1, "Flattened model weight vector length")
	cmd.Flags().StringVar(&reportFile, "report", "", "Drift report file; switches the trigger to drift mode")

	return cmd
}
