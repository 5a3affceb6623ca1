package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/stevedore/pkg/report"
	"github.com/cuemby/stevedore/pkg/storage"
	"github.com/cuemby/stevedore/pkg/types"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Inspect the encrypted secrets kept for a cluster",
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secret names",
	RunE:  runSecretsList,
}

var secretsRemoveCmd = &cobra.Command{
	Use:   "rm NAME...",
	Short: "Remove stored secrets",
	Long: `Rm deletes secrets from the local state store. The database is backed up
first unless --no-backup is given. Removing vault/unseal-keys makes the
cluster's Vault impossible to unseal from this host.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSecretsRemove,
}

func init() {
	rootCmd.AddCommand(secretsCmd)
	secretsCmd.AddCommand(secretsListCmd)
	secretsCmd.AddCommand(secretsRemoveCmd)

	addClusterFlags(secretsListCmd)
	addClusterFlags(secretsRemoveCmd)
	secretsRemoveCmd.Flags().Bool("no-backup", false, "Skip the database backup")

	historyCmd.Flags().Bool("clear", false, "Delete the recorded runs instead of listing them")
	historyCmd.Flags().Bool("no-backup", false, "Skip the database backup when clearing")
}

func runSecretsList(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	secrets, err := store.ListSecrets(a.def.Name)
	if err != nil {
		return err
	}
	return report.Render(os.Stdout, secretsTable(a.def.Name, secrets))
}

func runSecretsRemove(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.backupStore(cmd)
	if err != nil {
		return err
	}
	for _, name := range args {
		if _, err := store.GetSecret(a.def.Name, name); err != nil {
			return err
		}
		if err := store.DeleteSecret(a.def.Name, name); err != nil {
			return err
		}
		fmt.Printf("✓ Removed %s\n", name)
	}
	return nil
}

// clearHistory deletes the cluster's recorded runs
func (a *app) clearHistory(cmd *cobra.Command) error {
	store, err := a.backupStore(cmd)
	if err != nil {
		return err
	}
	if err := store.DeleteRuns(a.def.Name); err != nil {
		return err
	}
	fmt.Printf("✓ Cleared run history of %s\n", a.def.Name)
	return nil
}

// backupStore opens the store and, unless --no-backup is set, copies the
// database aside before a destructive change
func (a *app) backupStore(cmd *cobra.Command) (*storage.BoltStore, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if skip, _ := cmd.Flags().GetBool("no-backup"); skip {
		return store, nil
	}

	path := filepath.Join(a.rt.StateDir, "backups",
		fmt.Sprintf("%s.%s", storage.DBFile, time.Now().UTC().Format("20060102T150405Z")))
	if err := store.Backup(path); err != nil {
		return nil, fmt.Errorf("failed to back up state: %w", err)
	}
	fmt.Printf("Backup written to %s\n", path)
	return store, nil
}

func secretsTable(cluster string, secrets []*types.Secret) report.Table {
	t := report.Table{
		Title:   fmt.Sprintf("Secrets of %s", cluster),
		Success: true,
		Footer:  fmt.Sprintf("%d secrets", len(secrets)),
	}
	for _, s := range secrets {
		t.Rows = append(t.Rows, report.Row{
			State:  report.StateOK,
			Name:   s.Name,
			Status: s.CreatedAt.Local().Format(time.DateTime),
			Detail: fmt.Sprintf("%d bytes encrypted", len(s.Data)),
		})
	}
	return t
}
