package main

import (
	"github.com/spf13/cobra"

	"github.com/cuemby/stevedore/pkg/orchestrator"
	"github.com/cuemby/stevedore/pkg/provision"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Bootstrap a cluster from bare hosts",
	Long: `Setup prepares every host, installs Docker, forms the swarm and brings up
Consul, Vault and the reverse proxy. Vault unseal keys and swarm join tokens
are kept encrypted in the local state directory.`,
	Example: `  # Bootstrap the cluster described in cluster.yaml
  STEVEDORE_SECRET_KEY=... stevedore setup -f cluster.yaml`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
	addClusterFlags(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	secrets, err := a.secrets()
	if err != nil {
		return err
	}

	setup := provision.NewSetup(a.proxy, secrets)
	return a.run("setup", a.proxy.Nodes(), func(o *orchestrator.Orchestrator) {
		setup.Register(o)
	})
}
