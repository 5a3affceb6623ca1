package orchestrator

import (
	"fmt"
	"time"

	"github.com/cuemby/stevedore/pkg/types"
)

// GlobalStepError is a failed global step. It aborts the run.
type GlobalStepError struct {
	Step string
	Err  error
}

func (e *GlobalStepError) Error() string {
	return fmt.Sprintf("global step %s failed: %v", e.Step, e.Err)
}

func (e *GlobalStepError) Unwrap() error {
	return e.Err
}

// NodeResult is a node's terminal state after a run
type NodeResult struct {
	Name    string
	Role    types.NodeRole
	Ready   bool
	Online  bool // reachable at a wait-until-online step
	Faulted bool
	Message string
	Status  string
	// Step is the step that faulted the node, if any
	Step string
}

// Succeeded reports whether the node came online at a wait-until-online
// step and was never faulted
func (r NodeResult) Succeeded() bool {
	return r.Online && !r.Faulted
}

// StepResult records how a step went
type StepResult struct {
	Name     string
	Kind     Kind
	Nodes    int
	Faults   int
	Skipped  bool
	Duration time.Duration
}

// Result is the outcome of a run
type Result struct {
	RunID      string
	Success    bool
	Aborted    bool
	Failure    *GlobalStepError
	Nodes      []NodeResult
	Steps      []StepResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Faulted returns the nodes that ended faulted
func (r *Result) Faulted() []NodeResult {
	var out []NodeResult
	for _, n := range r.Nodes {
		if n.Faulted {
			out = append(out, n)
		}
	}
	return out
}

// Node returns the result for the named node
func (r *Result) Node(name string) (NodeResult, bool) {
	for _, n := range r.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeResult{}, false
}

// Record converts the result into a run history record
func (r *Result) Record(cluster, command string) *types.RunRecord {
	rec := &types.RunRecord{
		ID:         r.RunID,
		Cluster:    cluster,
		Command:    command,
		Success:    r.Success,
		Aborted:    r.Aborted,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.Failure != nil {
		rec.Failure = r.Failure.Error()
	}
	for _, n := range r.Nodes {
		rec.Nodes = append(rec.Nodes, types.NodeOutcome{
			Name:    n.Name,
			Role:    n.Role,
			Ready:   n.Ready,
			Faulted: n.Faulted,
			Message: n.Message,
			Status:  n.Status,
		})
	}
	return rec
}
