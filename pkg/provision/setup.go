package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/stevedore/pkg/bundle"
	"github.com/cuemby/stevedore/pkg/cluster"
	"github.com/cuemby/stevedore/pkg/consul"
	"github.com/cuemby/stevedore/pkg/log"
	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/orchestrator"
)

// ConsulSettle is the stabilization window after the Consul servers elect a
// leader and before Vault starts writing to it
const ConsulSettle = 10 * time.Second

// ProbeFunc builds a quorum probe that runs against h
type ProbeFunc func(h *node.Handle) (cluster.QuorumProbe, error)

// Setup is the full bootstrap sequence, from bare hosts to an unsealed Vault
// and a running proxy.
type Setup struct {
	Proxy   *cluster.Proxy
	Secrets *cluster.Secrets

	// ConsulProbe defaults to the Consul HTTP API tunneled over the node's
	// SSH session
	ConsulProbe ProbeFunc

	// SwarmProbe defaults to counting Ready nodes from the primary manager
	SwarmProbe ProbeFunc

	Settle time.Duration

	tokens *cluster.JoinTokens
}

// NewSetup returns a Setup with default probes
func NewSetup(p *cluster.Proxy, secrets *cluster.Secrets) *Setup {
	return &Setup{
		Proxy:       p,
		Secrets:     secrets,
		ConsulProbe: TunneledConsulProbe(p.Definition().Consul.HTTPPort),
		SwarmProbe:  func(h *node.Handle) (cluster.QuorumProbe, error) { return cluster.SwarmReadyNodes(h), nil },
		Settle:      ConsulSettle,
	}
}

// TunneledConsulProbe reaches the Consul agent on the node's loopback
func TunneledConsulProbe(port int) ProbeFunc {
	return func(h *node.Handle) (cluster.QuorumProbe, error) {
		probe, err := consul.NewTunneledProbe(h.Dial, port)
		if err != nil {
			return nil, err
		}
		return probe.ServerQuorum, nil
	}
}

// Register adds the bootstrap steps to o, in order
func (s *Setup) Register(o *orchestrator.Orchestrator) {
	def := s.Proxy.Definition()
	primary := s.Proxy.Manager().Name()

	o.AddWaitUntilOnlineStep("")
	o.AddStep("prepare-host", s.script("prepare-host.sh"))
	o.AddStep("install-docker", s.script("install-docker.sh"))

	o.AddGlobalStep("swarm-init", s.swarmInit)
	// Managers join one at a time so raft membership changes stay serialized
	o.AddStep("swarm-join-managers", s.swarmJoin,
		orchestrator.WithPredicate(func(m node.Metadata) bool { return m.IsManager() && m.Name != primary }),
		orchestrator.WithMaxParallel(1))
	o.AddStep("swarm-join-workers", s.swarmJoin, orchestrator.WithPredicate(orchestrator.Workers))
	o.AddGlobalStep("swarm-quorum", s.swarmQuorum)
	if len(def.Docker.Networks) > 0 {
		o.AddGlobalStep("overlay-networks", s.primaryScript("networks.sh"))
	}

	o.AddStep("consul", s.script("consul.sh"))
	o.AddGlobalStep("consul-quorum", s.consulQuorum)
	if s.Settle > 0 {
		o.AddDelayStep("consul-settle", s.Settle)
	}

	o.AddStep("vault", s.script("vault.sh"), orchestrator.WithPredicate(orchestrator.Managers))
	o.AddStep("vault-ready", func(ctx context.Context, h *node.Handle) error {
		return s.Proxy.WaitVaultReady(ctx, h)
	}, orchestrator.WithPredicate(orchestrator.Managers))
	o.AddGlobalStep("vault-init", s.vaultInit)
	o.AddGlobalStep("vault-unseal", func(ctx context.Context) error {
		return unseal(ctx, s.Proxy, s.Secrets)
	})

	if len(def.Proxy.Routes) > 0 {
		o.AddGlobalStep("proxy-deploy", func(ctx context.Context) error {
			return deployProxy(ctx, s.Proxy, 0)
		})
	}
}

// script returns a node action running the named script as root
func (s *Setup) script(name string, files ...bundle.File) orchestrator.NodeAction {
	return func(ctx context.Context, h *node.Handle) error {
		return runScript(ctx, s.Proxy, h, name, files...)
	}
}

// primaryScript returns a global action running the named script on the
// primary manager
func (s *Setup) primaryScript(name string) orchestrator.GlobalAction {
	return func(ctx context.Context) error {
		h, err := primaryManager(s.Proxy)
		if err != nil {
			return err
		}
		return runScript(ctx, s.Proxy, h, name)
	}
}

func (s *Setup) swarmInit(ctx context.Context) error {
	if err := s.primaryScript("swarm-init.sh")(ctx); err != nil {
		return err
	}
	tokens, err := s.Proxy.JoinTokens(ctx)
	if err != nil {
		return err
	}
	s.tokens = tokens
	if s.Secrets != nil {
		if err := s.Secrets.SaveJoinTokens(tokens); err != nil {
			return fmt.Errorf("failed to store join tokens: %w", err)
		}
	}
	return nil
}

func (s *Setup) swarmJoin(ctx context.Context, h *node.Handle) error {
	if s.tokens == nil {
		return errors.New("swarm join tokens are not available")
	}
	role := h.Metadata().Role
	token := bundle.File{Name: "join-token", Data: []byte(s.tokens.For(role).Token + "\n"), Mode: 0600}
	return runScriptWith(ctx, s.Proxy, h, "swarm-join.sh", func(d *Data) { d.JoinAddress = s.tokens.Address }, token)
}

func (s *Setup) swarmQuorum(ctx context.Context) error {
	h, err := primaryManager(s.Proxy)
	if err != nil {
		return err
	}
	probe, err := s.SwarmProbe(h)
	if err != nil {
		return err
	}
	want := 0
	for _, n := range s.Proxy.Nodes() {
		if !n.Faulted() {
			want++
		}
	}
	return s.Proxy.WaitForQuorum(ctx, "swarm", probe, want, s.Proxy.Runtime().Quorum)
}

func (s *Setup) consulQuorum(ctx context.Context) error {
	h, err := primaryManager(s.Proxy)
	if err != nil {
		return err
	}
	probe, err := s.ConsulProbe(h)
	if err != nil {
		return err
	}
	// bootstrap_expect counts every manager in the definition
	want := len(s.Proxy.Managers())
	return s.Proxy.WaitForQuorum(ctx, "consul servers", probe, want, s.Proxy.Runtime().Quorum)
}

func (s *Setup) vaultInit(ctx context.Context) error {
	if s.Secrets == nil {
		return errors.New("a secret store is required to keep the vault keys")
	}
	init, err := s.Proxy.InitVault(ctx)
	if errors.Is(err, cluster.ErrVaultInitialized) {
		logger := log.WithComponent("provision")
		logger.Info().Msg("Vault already initialized, using stored keys")
		return nil
	}
	if err != nil {
		return err
	}
	return s.Secrets.SaveVaultInit(init)
}

func primaryManager(p *cluster.Proxy) (*node.Handle, error) {
	h := p.Manager()
	if h == nil {
		return nil, errors.New("cluster has no manager")
	}
	if h.Faulted() {
		return nil, fmt.Errorf("primary manager %s is faulted: %s", h.Name(), h.FaultMessage())
	}
	return h, nil
}

func runScript(ctx context.Context, p *cluster.Proxy, h *node.Handle, name string, files ...bundle.File) error {
	return runScriptWith(ctx, p, h, name, nil, files...)
}

// runScriptWith renders name for h, lets tweak adjust the data, and runs the
// bundle as root. A non-zero exit faults the node.
func runScriptWith(ctx context.Context, p *cluster.Proxy, h *node.Handle, name string, tweak func(*Data), files ...bundle.File) error {
	n, ok := p.NodeDefinition(h.Name())
	if !ok {
		return fmt.Errorf("node %s is not in the cluster definition", h.Name())
	}
	data := NewData(p.Definition(), n)
	if tweak != nil {
		tweak(&data)
	}
	b, err := Script(name, data, files...)
	if err != nil {
		return err
	}
	_, err = h.RunBundleElevated(ctx, b, node.FaultOnError())
	return err
}
