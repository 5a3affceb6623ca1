package cluster

import (
	"context"
	"fmt"

	"github.com/cuemby/stevedore/pkg/health"
	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/report"
	"golang.org/x/sync/errgroup"
)

// CheckFunc builds the checks to run against one node
type CheckFunc func(h *node.Handle) []health.Checker

// NodeHealth is one node's informational check outcome
type NodeHealth struct {
	Node    string
	Role    string
	Results []health.Result
}

// Healthy reports whether every check passed
func (n NodeHealth) Healthy() bool {
	return len(health.Failed(n.Results)) == 0
}

// CheckHealth runs the checks for every node concurrently. Nodes report
// independently: an unreachable or unhealthy node never stops the others and
// nothing is faulted.
func (p *Proxy) CheckHealth(ctx context.Context, checks CheckFunc) []NodeHealth {
	out := make([]NodeHealth, len(p.nodes))

	var g errgroup.Group
	if p.rt.MaxParallel > 0 {
		g.SetLimit(p.rt.MaxParallel)
	}
	for i, h := range p.nodes {
		g.Go(func() error {
			out[i] = NodeHealth{
				Node:    h.Name(),
				Role:    string(h.Metadata().Role),
				Results: health.Run(ctx, checks(h)),
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// HealthTable renders health outcomes, one row per node
func HealthTable(cluster string, results []NodeHealth) report.Table {
	t := report.Table{Title: "Health: " + cluster, Success: true}
	unhealthy := 0
	for _, nh := range results {
		row := report.Row{
			State:  report.StateOK,
			Name:   nh.Node,
			Role:   nh.Role,
			Status: fmt.Sprintf("%d checks passed", len(nh.Results)),
		}
		if failed := health.Failed(nh.Results); len(failed) > 0 {
			row.State = report.StateFailed
			row.Status = fmt.Sprintf("%d of %d checks failed", len(failed), len(nh.Results))
			row.Detail = fmt.Sprintf("%s: %s", failed[0].Check, failed[0].Message)
		}
		if len(nh.Results) == 0 {
			row.State = report.StateWarning
			row.Status = "no checks"
		}
		if row.State == report.StateFailed {
			unhealthy++
		}
		t.Rows = append(t.Rows, row)
	}
	if unhealthy > 0 {
		t.Success = false
		t.Footer = fmt.Sprintf("%d of %d nodes unhealthy", unhealthy, len(results))
	} else {
		t.Footer = "all nodes healthy"
	}
	return t
}
