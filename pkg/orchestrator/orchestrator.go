package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/stevedore/pkg/config"
	"github.com/cuemby/stevedore/pkg/events"
	"github.com/cuemby/stevedore/pkg/log"
	"github.com/cuemby/stevedore/pkg/metrics"
	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/report"
	"github.com/cuemby/stevedore/pkg/retry"
)

// Node state labels used for metrics
const (
	statePending = "pending"
	stateReady   = "ready"
	stateFaulted = "faulted"
)

// Orchestrator runs an ordered list of steps over a fixed set of nodes
type Orchestrator struct {
	nodes  []*node.Handle
	rt     *config.Runtime
	steps  []Step
	broker *events.Broker
	clock  retry.Clock
	runID  string
	logger zerolog.Logger

	mu          sync.Mutex
	faultedStep map[string]string
	online      map[string]bool // reached at a wait-until-online step
	result      *Result
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithEvents publishes run progress to broker
func WithEvents(broker *events.Broker) Option {
	return func(o *Orchestrator) { o.broker = broker }
}

// WithClock sets the clock used by delay steps
func WithClock(clock retry.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithRunID overrides the generated run identifier
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// New creates an orchestrator over nodes. A nil runtime uses the defaults.
func New(nodes []*node.Handle, rt *config.Runtime, opts ...Option) *Orchestrator {
	if rt == nil {
		rt = config.DefaultRuntime()
	}
	o := &Orchestrator{
		nodes:       nodes,
		rt:          rt,
		clock:       retry.RealClock,
		runID:       uuid.NewString(),
		faultedStep: make(map[string]string),
		online:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = log.WithComponent("orchestrator").With().Str("run_id", o.runID).Logger()
	return o
}

// AddStep registers a per-node step
func (o *Orchestrator) AddStep(name string, action NodeAction, opts ...StepOption) {
	s := Step{Name: name, Kind: KindNode, nodeAction: action}
	for _, opt := range opts {
		opt(&s)
	}
	o.steps = append(o.steps, s)
}

// AddGlobalStep registers a step run once. Its failure aborts the run.
func (o *Orchestrator) AddGlobalStep(name string, action GlobalAction) {
	o.steps = append(o.steps, Step{Name: name, Kind: KindGlobal, global: action})
}

// AddWaitUntilOnlineStep registers a per-node step that waits for each node's
// session within the runtime online policy. Nodes that never come online are
// faulted.
func (o *Orchestrator) AddWaitUntilOnlineStep(name string, opts ...StepOption) {
	if name == "" {
		name = "wait-until-online"
	}
	policy := o.rt.Online
	s := Step{
		Name: name,
		Kind: KindWait,
		nodeAction: func(ctx context.Context, h *node.Handle) error {
			return h.WaitOnline(ctx, policy)
		},
	}
	for _, opt := range opts {
		opt(&s)
	}
	o.steps = append(o.steps, s)
}

// AddDelayStep registers a global pause
func (o *Orchestrator) AddDelayStep(name string, d time.Duration) {
	o.steps = append(o.steps, Step{Name: name, Kind: KindDelay, delay: d})
}

// Steps returns the registered steps in order
func (o *Orchestrator) Steps() []Step {
	return append([]Step(nil), o.steps...)
}

// RunID returns the identifier of this run
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run executes the steps strictly in order and reports whether every node
// finished without a fault and no global step failed.
func (o *Orchestrator) Run(ctx context.Context) bool {
	res := &Result{RunID: o.runID, StartedAt: time.Now()}
	o.logger.Info().Int("nodes", len(o.nodes)).Int("steps", len(o.steps)).Msg("Starting run")
	o.publish(&events.Event{Type: events.EventRunStarted})

	for i := range o.steps {
		step := &o.steps[i]

		if res.Aborted {
			res.Steps = append(res.Steps, StepResult{Name: step.Name, Kind: step.Kind, Skipped: true})
			o.publish(&events.Event{Type: events.EventStepSkipped, Step: step.Name})
			continue
		}
		if err := ctx.Err(); err != nil {
			o.abort(res, step, err)
			res.Steps = append(res.Steps, StepResult{Name: step.Name, Kind: step.Kind, Skipped: true})
			continue
		}

		o.publish(&events.Event{Type: events.EventStepStarted, Step: step.Name})
		timer := metrics.NewTimer()

		var sr StepResult
		switch step.Kind {
		case KindNode, KindWait:
			sr = o.runNodeStep(ctx, step)
		default:
			sr = StepResult{Name: step.Name, Kind: step.Kind}
			before := o.faultedNodes()
			if err := o.runGlobalStep(ctx, step); err != nil {
				o.abort(res, step, err)
			}
			// nodes faulted by the global action itself
			for _, h := range o.nodes {
				if h.Faulted() && !before[h.Name()] {
					o.recordFault(step, h)
					sr.Faults++
				}
			}
		}

		sr.Duration = timer.Duration()
		timer.ObserveDurationVec(metrics.StepDuration, step.Name, string(step.Kind))
		res.Steps = append(res.Steps, sr)
		o.publish(&events.Event{
			Type:     events.EventStepCompleted,
			Step:     step.Name,
			Message:  sr.Duration.Round(time.Millisecond).String(),
			Metadata: map[string]string{"nodes": fmt.Sprint(sr.Nodes), "faults": fmt.Sprint(sr.Faults)},
		})
	}

	res.FinishedAt = time.Now()
	res.Nodes = o.nodeResults()
	res.Success = !res.Aborted && len(res.Faulted()) == 0

	metrics.NewCollector(o.NodeStates, 0).Collect()
	verdict := "success"
	switch {
	case res.Aborted:
		verdict = "aborted"
	case !res.Success:
		verdict = "failure"
	}
	metrics.RunsTotal.WithLabelValues(verdict).Inc()

	o.logger.Info().
		Bool("success", res.Success).
		Int("faulted", len(res.Faulted())).
		Dur("duration", res.FinishedAt.Sub(res.StartedAt)).
		Msg("Run finished")
	o.publish(&events.Event{Type: events.EventRunCompleted, Message: verdict})

	o.mu.Lock()
	o.result = res
	o.mu.Unlock()
	return res.Success
}

func (o *Orchestrator) abort(res *Result, step *Step, err error) {
	res.Aborted = true
	res.Failure = &GlobalStepError{Step: step.Name, Err: err}
	o.logger.Error().Err(err).Str("step", step.Name).Msg("Global step failed, aborting run")
	o.publish(&events.Event{Type: events.EventRunAborted, Step: step.Name, Message: err.Error()})
}

// runNodeStep fans the step out over the applicable nodes and waits for all of
// them. A node's failure never cancels its siblings.
func (o *Orchestrator) runNodeStep(ctx context.Context, step *Step) StepResult {
	sr := StepResult{Name: step.Name, Kind: step.Kind}
	logger := log.WithStep(step.Name)

	var applicable []*node.Handle
	for _, h := range o.nodes {
		if step.applies(h) {
			applicable = append(applicable, h)
		}
	}
	sr.Nodes = len(applicable)
	if len(applicable) == 0 {
		logger.Debug().Msg("No applicable nodes")
		return sr
	}

	limit := step.limit(o.rt.MaxParallel)
	logger.Info().Int("nodes", len(applicable)).Int("max_parallel", limit).Msg("Running step")

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	var faults atomic.Int32
	for _, h := range applicable {
		g.Go(func() error {
			if o.runNode(ctx, step, h) {
				faults.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	sr.Faults = int(faults.Load())
	return sr
}

// runNode runs the action for one node and reports whether the node faulted
func (o *Orchestrator) runNode(ctx context.Context, step *Step, h *node.Handle) (faulted bool) {
	defer func() {
		if r := recover(); r != nil {
			h.Fault(fmt.Sprintf("%s: panic: %v", step.Name, r))
		}
		if h.Faulted() {
			faulted = true
			o.recordFault(step, h)
		}
	}()

	if err := step.nodeAction(ctx, h); err != nil {
		h.Fault(fmt.Sprintf("%s: %v", step.Name, err))
	}
	if step.Kind == KindWait && !h.Faulted() {
		o.mu.Lock()
		o.online[h.Name()] = true
		o.mu.Unlock()
	}
	return false
}

func (o *Orchestrator) faultedNodes() map[string]bool {
	out := make(map[string]bool)
	for _, h := range o.nodes {
		if h.Faulted() {
			out[h.Name()] = true
		}
	}
	return out
}

func (o *Orchestrator) recordFault(step *Step, h *node.Handle) {
	o.mu.Lock()
	o.faultedStep[h.Name()] = step.Name
	o.mu.Unlock()

	metrics.NodeFaultsTotal.WithLabelValues(step.Name).Inc()
	o.publish(&events.Event{
		Type:    events.EventNodeFaulted,
		Step:    step.Name,
		Node:    h.Name(),
		Message: h.FaultMessage(),
	})
}

func (o *Orchestrator) runGlobalStep(ctx context.Context, step *Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if step.Kind == KindDelay {
		o.logger.Info().Str("step", step.Name).Dur("delay", step.delay).Msg("Pausing")
		return o.clock.Sleep(ctx, step.delay)
	}
	o.logger.Info().Str("step", step.Name).Msg("Running global step")
	return step.global(ctx)
}

func (o *Orchestrator) nodeResults() []NodeResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]NodeResult, 0, len(o.nodes))
	for _, h := range o.nodes {
		meta := h.Metadata()
		out = append(out, NodeResult{
			Name:    meta.Name,
			Role:    meta.Role,
			Ready:   h.Ready(),
			Online:  o.online[meta.Name],
			Faulted: h.Faulted(),
			Message: h.FaultMessage(),
			Status:  h.Status(),
			Step:    o.faultedStep[meta.Name],
		})
	}
	return out
}

// NodeStates returns each node's role and state for the metrics collector
func (o *Orchestrator) NodeStates() []metrics.NodeState {
	out := make([]metrics.NodeState, 0, len(o.nodes))
	for _, h := range o.nodes {
		state := statePending
		switch {
		case h.Faulted():
			state = stateFaulted
		case h.Ready():
			state = stateReady
		}
		out = append(out, metrics.NodeState{Role: string(h.Metadata().Role), State: state})
	}
	return out
}

// Result returns the outcome of the last Run, or nil before the first
func (o *Orchestrator) Result() *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Report writes the per-node outcome of the last run as a table
func (o *Orchestrator) Report(w io.Writer) error {
	res := o.Result()
	if res == nil {
		return fmt.Errorf("no run to report")
	}
	return report.Render(w, Table(res))
}

// Table converts a result into a report table
func Table(res *Result) report.Table {
	t := report.Table{Title: "run " + res.RunID, Success: res.Success}
	for _, n := range res.Nodes {
		row := report.Row{Name: n.Name, Role: string(n.Role), Status: n.Status}
		switch {
		case n.Faulted:
			row.State = report.StateFailed
			row.Detail = n.Message
		case n.Ready:
			row.State = report.StateOK
		default:
			row.State = report.StatePending
		}
		t.Rows = append(t.Rows, row)
	}

	faulted := len(res.Faulted())
	switch {
	case res.Aborted:
		t.Footer = "aborted: " + res.Failure.Error()
	case faulted > 0:
		t.Footer = fmt.Sprintf("failed: %d of %d nodes faulted", faulted, len(res.Nodes))
	default:
		t.Footer = fmt.Sprintf("succeeded: %d nodes in %s", len(res.Nodes), res.FinishedAt.Sub(res.StartedAt).Round(time.Second))
	}
	return t
}

func (o *Orchestrator) publish(ev *events.Event) {
	if o.broker == nil {
		return
	}
	ev.ID = uuid.NewString()
	if ev.Metadata == nil {
		ev.Metadata = make(map[string]string)
	}
	ev.Metadata["run_id"] = o.runID
	o.broker.Publish(ev)
}
