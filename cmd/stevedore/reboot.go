package main

import (
	"github.com/spf13/cobra"

	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/orchestrator"
	"github.com/cuemby/stevedore/pkg/provision"
)

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Reboot nodes one at a time",
	Long: `Reboot restarts the selected nodes one at a time. With --wait each node
must come back online before the next one is rebooted.`,
	RunE: runReboot,
}

func init() {
	rootCmd.AddCommand(rebootCmd)
	addClusterFlags(rebootCmd)
	rebootCmd.Flags().StringSlice("node", nil, "Reboot only these nodes (default: all)")
	rebootCmd.Flags().Bool("wait", true, "Wait for each node to come back online")
}

func runReboot(cmd *cobra.Command, args []string) error {
	names, _ := cmd.Flags().GetStringSlice("node")
	wait, _ := cmd.Flags().GetBool("wait")

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	predicate := func(node.Metadata) bool { return true }
	if len(names) > 0 {
		if err := a.checkNodes(names); err != nil {
			return err
		}
		predicate = orchestrator.Named(names...)
	}

	return a.run("reboot", a.proxy.Nodes(), func(o *orchestrator.Orchestrator) {
		provision.RegisterReboot(o, predicate, wait)
	})
}
