package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/orchestrator"
	"github.com/cuemby/stevedore/pkg/provision"
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- COMMAND",
	Short: "Run a command on every node",
	Long: `Exec runs a shell command on the selected nodes in parallel and prints
each node's output. A node whose command fails is reported without stopping
the others.`,
	Example: `  # Check disk usage on every worker
  stevedore exec -f cluster.yaml --workers -- df -h /

  # Restart docker on one node
  stevedore exec -f cluster.yaml --node m1 --sudo -- systemctl restart docker`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	addClusterFlags(execCmd)
	execCmd.Flags().Bool("managers", false, "Run on managers only")
	execCmd.Flags().Bool("workers", false, "Run on workers only")
	execCmd.Flags().StringSlice("node", nil, "Run on these nodes only")
	execCmd.Flags().Bool("sudo", false, "Run with elevated privileges")
	execCmd.MarkFlagsMutuallyExclusive("managers", "workers", "node")
}

func runExec(cmd *cobra.Command, args []string) error {
	managers, _ := cmd.Flags().GetBool("managers")
	workers, _ := cmd.Flags().GetBool("workers")
	names, _ := cmd.Flags().GetStringSlice("node")
	sudo, _ := cmd.Flags().GetBool("sudo")

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var predicate orchestrator.Predicate = func(node.Metadata) bool { return true }
	switch {
	case managers:
		predicate = orchestrator.Managers
	case workers:
		predicate = orchestrator.Workers
	case len(names) > 0:
		if err := a.checkNodes(names); err != nil {
			return err
		}
		predicate = orchestrator.Named(names...)
	}

	out := provision.NewOutputs()
	runErr := a.run("exec", a.proxy.Nodes(), func(o *orchestrator.Orchestrator) {
		provision.RegisterExec(o, predicate, strings.Join(args, " "), sudo, out)
	})

	for _, h := range a.proxy.Select(predicate) {
		res, ok := out.Get(h.Name())
		if !ok {
			continue
		}
		fmt.Printf("\n--- %s (exit %d)\n", h.Name(), res.ExitCode)
		if text := res.OutputText(); text != "" {
			fmt.Println(text)
		}
		if text := res.ErrorText(); text != "" {
			fmt.Println(text)
		}
	}
	return runErr
}

// checkNodes fails on names the cluster does not define
func (a *app) checkNodes(names []string) error {
	var errs []error
	for _, name := range names {
		if _, ok := a.proxy.Node(name); !ok {
			errs = append(errs, fmt.Errorf("unknown node %q", name))
		}
	}
	return errors.Join(errs...)
}
