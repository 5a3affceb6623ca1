package orchestrator

import (
	"context"
	"time"

	"github.com/cuemby/stevedore/pkg/node"
)

// Kind tags the variant of a step
type Kind string

const (
	KindNode   Kind = "node"
	KindGlobal Kind = "global"
	KindWait   Kind = "wait"
	KindDelay  Kind = "delay"
)

// NodeAction is run once per applicable node
type NodeAction func(ctx context.Context, h *node.Handle) error

// GlobalAction is run once per run
type GlobalAction func(ctx context.Context) error

// Predicate selects the nodes a per-node step applies to
type Predicate func(node.Metadata) bool

// Step is one registered unit of work. Exactly one of the action fields is set,
// according to Kind.
type Step struct {
	Name string
	Kind Kind

	predicate   Predicate
	nodeAction  NodeAction
	global      GlobalAction
	delay       time.Duration
	maxParallel int
	parallelSet bool
}

// StepOption configures a per-node step
type StepOption func(*Step)

// WithPredicate restricts the step to nodes matching p
func WithPredicate(p Predicate) StepOption {
	return func(s *Step) { s.predicate = p }
}

// WithMaxParallel bounds how many nodes run the step at once. Zero or less
// means unbounded.
func WithMaxParallel(k int) StepOption {
	return func(s *Step) {
		s.maxParallel = k
		s.parallelSet = true
	}
}

// Managers selects swarm managers
func Managers(m node.Metadata) bool { return m.IsManager() }

// Workers selects swarm workers
func Workers(m node.Metadata) bool { return !m.IsManager() }

// Named selects the nodes with the given names
func Named(names ...string) Predicate {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(m node.Metadata) bool { return set[m.Name] }
}

// Labelled selects nodes carrying label key=value
func Labelled(key, value string) Predicate {
	return func(m node.Metadata) bool { return m.Labels[key] == value }
}

func (s *Step) applies(h *node.Handle) bool {
	if h.Faulted() {
		return false
	}
	return s.predicate == nil || s.predicate(h.Metadata())
}

func (s *Step) limit(defaultLimit int) int {
	if s.parallelSet {
		return s.maxParallel
	}
	return defaultLimit
}
