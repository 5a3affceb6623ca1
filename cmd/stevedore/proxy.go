package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/stevedore/pkg/orchestrator"
	"github.com/cuemby/stevedore/pkg/provision"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Manage the reverse proxy",
}

var proxyDeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Roll out proxy routes and settings to the managers",
	Long: `Deploy uploads the proxy routes and settings from the cluster definition
and updates the proxy one manager at a time. The rollout stops at the first
manager that fails.`,
	RunE: runProxyDeploy,
}

func init() {
	rootCmd.AddCommand(proxyCmd)
	proxyCmd.AddCommand(proxyDeployCmd)

	addClusterFlags(proxyDeployCmd)
	proxyDeployCmd.Flags().Duration("delay", 10*time.Second, "Pause between managers")
}

func runProxyDeploy(cmd *cobra.Command, args []string) error {
	delay, _ := cmd.Flags().GetDuration("delay")

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.run("proxy deploy", a.proxy.Managers(), func(o *orchestrator.Orchestrator) {
		provision.RegisterProxyDeploy(o, a.proxy, delay)
	})
}
