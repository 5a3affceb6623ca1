package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/stevedore/pkg/cluster"
	"github.com/cuemby/stevedore/pkg/provision"
	"github.com/cuemby/stevedore/pkg/report"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report the health of every node",
	Long: `Check runs health checks against every node and prints one row per node.
Checks are informational: an unhealthy node does not fail the command.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	addClusterFlags(checkCmd)
	checkCmd.Flags().Bool("direct", false, "Also probe Vault and Consul HTTP endpoints from this host")
}

func runCheck(cmd *cobra.Command, args []string) error {
	direct, _ := cmd.Flags().GetBool("direct")

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	results := a.proxy.CheckHealth(ctx, provision.HealthChecks(a.proxy, direct))
	return report.Render(os.Stdout, cluster.HealthTable(a.proxy.Name(), results))
}
