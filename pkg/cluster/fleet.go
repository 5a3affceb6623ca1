package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/remote"
)

// MemberResult is one manager's part of a fleet-wide operation
type MemberResult struct {
	Node   string
	Result *remote.Result
	Err    error
}

// OK reports whether this member succeeded
func (m MemberResult) OK() bool {
	return m.Err == nil && (m.Result == nil || m.Result.Success())
}

// FleetResult aggregates a sequential operation over the manager set
type FleetResult struct {
	Members []MemberResult

	// Skipped lists managers never attempted because the operation stopped early
	Skipped []string
}

// OK is false if any member failed or was skipped
func (f *FleetResult) OK() bool {
	if len(f.Skipped) > 0 {
		return false
	}
	for _, m := range f.Members {
		if !m.OK() {
			return false
		}
	}
	return true
}

// Failed returns the members that did not succeed
func (f *FleetResult) Failed() []MemberResult {
	var out []MemberResult
	for _, m := range f.Members {
		if !m.OK() {
			out = append(out, m)
		}
	}
	return out
}

// Err summarizes the failures, nil when OK
func (f *FleetResult) Err() error {
	var errs []error
	for _, m := range f.Failed() {
		if m.Err != nil {
			errs = append(errs, m.Err)
			continue
		}
		errs = append(errs, fmt.Errorf("node %s: exited with code %d", m.Node, m.Result.ExitCode))
	}
	for _, name := range f.Skipped {
		errs = append(errs, fmt.Errorf("node %s: skipped", name))
	}
	return errors.Join(errs...)
}

func (f *FleetResult) add(h *node.Handle, res *remote.Result, err error) MemberResult {
	m := MemberResult{Node: h.Name(), Result: res, Err: err}
	f.Members = append(f.Members, m)
	return m
}

// FleetCommand runs command on every manager, one after another. A failing
// member does not stop the others; the result is OK only if all succeed.
func (p *Proxy) FleetCommand(ctx context.Context, command string, opts ...node.RunOption) *FleetResult {
	fr := &FleetResult{}
	for _, h := range p.Managers() {
		if h.Faulted() {
			fr.add(h, nil, fmt.Errorf("node %s: faulted: %s", h.Name(), h.FaultMessage()))
			continue
		}
		res, err := h.Run(ctx, command, opts...)
		m := fr.add(h, res, err)
		if !m.OK() {
			p.logger.Warn().Str("node", h.Name()).Msg("Fleet command failed on manager")
		}
	}
	return fr
}
