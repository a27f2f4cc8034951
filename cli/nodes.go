package cli

import (
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

func NewNodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes [provision|view|list]",
		Short: "Nodes manager",
		Long:  `Provision, view and list data-holding nodes.`,
	}

	provisionCmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision node",
		Long:  `Provision a node interactively.`,
		Run: func(cmd *cobra.Command, args []string) {
			var name, address string

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Node name").
						Description("Leave empty for a generated name").
						Value(&name),
					huh.NewInput().
						Title("Node address").
						Description("host:port the node listens on").
						Value(&address),
				),
			)
			if err := form.Run(); err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			n, err := fsdk.CreateNode(name, address)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "Successfully provisioned node")
			logJSONCmd(*cmd, n)
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view <id>",
		Short: "View node",
		Long:  `View node.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			n, err := fsdk.GetNode(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, n)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List nodes",
		Long:  `List nodes.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := fsdk.ListNodes(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	cmd.AddCommand(provisionCmd)
	cmd.AddCommand(viewCmd)
	cmd.AddCommand(listCmd)

	return cmd
}
