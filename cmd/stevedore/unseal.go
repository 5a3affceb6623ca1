package main

import (
	"github.com/spf13/cobra"

	"github.com/cuemby/stevedore/pkg/orchestrator"
	"github.com/cuemby/stevedore/pkg/provision"
)

var unsealCmd = &cobra.Command{
	Use:   "unseal",
	Short: "Unseal Vault on every manager",
	Long: `Unseal submits the stored Vault key shares to each manager in turn until
its Vault reports unsealed. Managers that cannot be unsealed are reported
individually.`,
	RunE: runUnseal,
}

func init() {
	rootCmd.AddCommand(unsealCmd)
	addClusterFlags(unsealCmd)
}

func runUnseal(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	secrets, err := a.secrets()
	if err != nil {
		return err
	}

	return a.run("unseal", a.proxy.Managers(), func(o *orchestrator.Orchestrator) {
		provision.RegisterUnseal(o, a.proxy, secrets)
	})
}
