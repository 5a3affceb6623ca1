package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/stevedore/pkg/report"
	"github.com/cuemby/stevedore/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs for a cluster",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	addClusterFlags(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Number of runs to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	clearRuns, _ := cmd.Flags().GetBool("clear")

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if clearRuns {
		return a.clearHistory(cmd)
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	runs, err := store.ListRuns(a.def.Name, limit)
	if err != nil {
		return err
	}
	return report.Render(os.Stdout, historyTable(a.def.Name, runs))
}

func historyTable(cluster string, runs []*types.RunRecord) report.Table {
	t := report.Table{
		Title:   fmt.Sprintf("Runs of %s", cluster),
		Success: true,
		Footer:  fmt.Sprintf("%d runs", len(runs)),
	}
	if len(runs) == 0 {
		t.Footer = "no runs recorded"
	}
	for _, r := range runs {
		row := report.Row{
			State:  report.StateOK,
			Name:   r.StartedAt.Local().Format(time.DateTime),
			Role:   r.Command,
			Status: r.Duration().Round(time.Second).String(),
		}
		if !r.Success {
			row.State = report.StateFailed
			row.Detail = runFailure(r)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// runFailure summarizes why a recorded run failed
func runFailure(r *types.RunRecord) string {
	if r.Failure != "" {
		return r.Failure
	}
	faulted := 0
	for _, n := range r.Nodes {
		if n.Faulted {
			faulted++
		}
	}
	return fmt.Sprintf("%d of %d nodes faulted", faulted, len(r.Nodes))
}
