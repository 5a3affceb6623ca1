package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/stevedore/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// errRunFailed is returned after the report has already been printed
var errRunFailed = errors.New("run failed")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stevedore",
	Short: "Stevedore - Docker Swarm cluster bootstrap over SSH",
	Long: `Stevedore turns a set of bare Linux hosts into a Docker Swarm cluster
with Consul service discovery, Vault secrets management and a reverse proxy,
driven entirely over SSH from a declarative cluster definition.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("log-level")
		jsonOutput, _ := cmd.Flags().GetBool("log-json")
		level, err := log.ParseLevel(name)
		if err != nil {
			return err
		}
		log.Init(log.Config{
			Level:      level,
			JSONOutput: jsonOutput,
		})
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Stevedore version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")
	rootCmd.PersistentFlags().String("state-dir", "", "Local state directory (default: ~/.stevedore)")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write Prometheus metrics to this file after the run")
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file with STEVEDORE_* settings")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Stevedore version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}
