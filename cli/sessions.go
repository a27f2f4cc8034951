package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fedloop/fedloop/pkg/sdk"
	"github.com/fedloop/fedloop/session"
)

var (
	defOffset uint64 = 0
	defLimit  uint64 = 10

	numRounds       int
	minClients      int
	roundTimeout    time.Duration
	maxRoundRetries int
	modelSchema     int
)

var fsdk sdk.SDK

func SetFedloopSDK(s sdk.SDK) {
	fsdk = s
}

func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions [start|view|list|abort|resume|round]",
		Short: "Sessions manager",
		Long:  `Start, view, list, abort and resume retraining sessions.`,
	}

	startCmd := &cobra.Command{
		Use:   "start <cluster>",
		Short: "Start session",
		Long: `Start a manually triggered retraining session.

Examples:
  # Start a session with ten rounds over three clients
  fedloop-cli sessions start edge-eu-1 --rounds=10 --min-clients=3 --schema=1024`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			s, err := fsdk.StartSession(session.Config{
				Cluster:         args[0],
				NumRounds:       numRounds,
				MinClients:      minClients,
				RoundTimeout:    roundTimeout,
				MaxRoundRetries: maxRoundRetries,
				ModelSchema:     modelSchema,
			})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, s)
		},
	}
	startCmd.Flags().IntVar(&numRounds, "rounds", 1, "Number of rounds to run")
	startCmd.Flags().IntVar(&minClients, "min-clients", 1, "Quorum required to close a round")
	startCmd.Flags().DurationVar(&roundTimeout, "round-timeout", session.DefRoundTimeout, "Per-round deadline")
	startCmd.Flags().IntVar(&maxRoundRetries, "max-retries", session.DefMaxRoundRetries, "Retries for a round that misses quorum")
	startCmd.Flags().IntVar(&modelSchema, "schema", 1, "Flattened model weight vector length")

	viewCmd := &cobra.Command{
		Use:   "view <id>",
		Short: "View session",
		Long:  `View session.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			s, err := fsdk.GetSession(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, s)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Long:  `List sessions.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := fsdk.ListSessions(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	abortCmd := &cobra.Command{
		Use:   "abort <id>",
		Short: "Abort session",
		Long:  `Abort a running session. In-flight submissions are rejected.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			s, err := fsdk.AbortSession(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, s)
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume session",
		Long:  `Resume a session from its last checkpoint.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			s, err := fsdk.ResumeSession(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, s)
		},
	}

	roundCmd := &cobra.Command{
		Use:   "round <id>",
		Short: "View open round",
		Long:  `View the open round of a running session.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			r, err := fsdk.GetOpenRound(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, r)
		},
	}

	cmd.AddCommand(startCmd)
	cmd.AddCommand(viewCmd)
	cmd.AddCommand(listCmd)
	cmd.AddCommand(abortCmd)
	cmd.AddCommand(resumeCmd)
	cmd.AddCommand(roundCmd)

	return cmd
}
