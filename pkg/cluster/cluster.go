package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/stevedore/pkg/config"
	"github.com/cuemby/stevedore/pkg/log"
	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/retry"
	"github.com/cuemby/stevedore/pkg/types"
	"github.com/rs/zerolog"
)

// Proxy joins a validated cluster definition to one node handle per inventory
// entry. Handles are created once and live for the whole invocation.
type Proxy struct {
	def    *types.Cluster
	rt     *config.Runtime
	nodes  []*node.Handle
	byName map[string]*node.Handle
	logger zerolog.Logger
}

// New builds a handle for every node in def. No connection is made yet.
func New(def *types.Cluster, factory node.Factory, rt *config.Runtime) (*Proxy, error) {
	if def == nil {
		return nil, fmt.Errorf("cluster definition is required")
	}
	if rt == nil {
		rt = config.DefaultRuntime()
	}

	p := &Proxy{
		def:    def,
		rt:     rt,
		byName: make(map[string]*node.Handle, len(def.Nodes)),
		logger: log.WithComponent("cluster").With().Str("cluster", def.Name).Logger(),
	}
	for _, n := range def.Nodes {
		h, err := factory(node.MetadataFrom(n), rt.Endpoint(def, n), node.WithRebootPolicy(rt.Reboot, rt.RebootGrace))
		if err != nil {
			p.Close()
			return nil, err
		}
		p.nodes = append(p.nodes, h)
		p.byName[n.Name] = h
	}
	return p, nil
}

func (p *Proxy) Definition() *types.Cluster { return p.def }
func (p *Proxy) Runtime() *config.Runtime   { return p.rt }
func (p *Proxy) Name() string               { return p.def.Name }

// Nodes returns every handle in inventory order
func (p *Proxy) Nodes() []*node.Handle {
	out := make([]*node.Handle, len(p.nodes))
	copy(out, p.nodes)
	return out
}

// Managers returns the manager handles in inventory order
func (p *Proxy) Managers() []*node.Handle {
	return p.filter(func(m node.Metadata) bool { return m.IsManager() })
}

// Workers returns the worker handles in inventory order
func (p *Proxy) Workers() []*node.Handle {
	return p.filter(func(m node.Metadata) bool { return !m.IsManager() })
}

// Manager returns the primary manager, the first one in the inventory.
// Validation guarantees there is one.
func (p *Proxy) Manager() *node.Handle {
	managers := p.Managers()
	if len(managers) == 0 {
		return nil
	}
	return managers[0]
}

// Node returns the handle for name
func (p *Proxy) Node(name string) (*node.Handle, bool) {
	h, ok := p.byName[name]
	return h, ok
}

// NodeDefinition returns the inventory entry behind the named handle
func (p *Proxy) NodeDefinition(name string) (*types.Node, bool) {
	for _, n := range p.def.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// Select returns the handles matching keep, in inventory order
func (p *Proxy) Select(keep func(node.Metadata) bool) []*node.Handle {
	return p.filter(keep)
}

func (p *Proxy) filter(keep func(node.Metadata) bool) []*node.Handle {
	var out []*node.Handle
	for _, h := range p.nodes {
		if keep(h.Metadata()) {
			out = append(out, h)
		}
	}
	return out
}

// Close closes every session
func (p *Proxy) Close() error {
	var errs []error
	for _, h := range p.nodes {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", h.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (p *Proxy) clock() retry.Clock {
	if p.rt.Online.Clock != nil {
		return p.rt.Online.Clock
	}
	return retry.RealClock
}

// sleep waits d on the runtime clock
func (p *Proxy) sleep(ctx context.Context, d time.Duration) error {
	return p.clock().Sleep(ctx, d)
}
