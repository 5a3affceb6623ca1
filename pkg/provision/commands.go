package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/stevedore/pkg/bundle"
	"github.com/cuemby/stevedore/pkg/cluster"
	"github.com/cuemby/stevedore/pkg/health"
	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/orchestrator"
	"github.com/cuemby/stevedore/pkg/remote"
)

// RegisterUnseal adds the standalone Vault unseal sequence
func RegisterUnseal(o *orchestrator.Orchestrator, p *cluster.Proxy, secrets *cluster.Secrets) {
	o.AddWaitUntilOnlineStep("", orchestrator.WithPredicate(orchestrator.Managers))
	o.AddGlobalStep("vault-unseal", func(ctx context.Context) error {
		return unseal(ctx, p, secrets)
	})
}

func unseal(ctx context.Context, p *cluster.Proxy, secrets *cluster.Secrets) error {
	if secrets == nil {
		return errors.New("a secret store is required to read the vault keys")
	}
	keys, err := secrets.UnsealKeys()
	if err != nil {
		return fmt.Errorf("failed to load unseal keys: %w", err)
	}
	_, err = p.Unseal(ctx, keys)
	return err
}

// RegisterProxyDeploy adds the proxy rollout: routes and settings go to every
// manager, one at a time with delay between them
func RegisterProxyDeploy(o *orchestrator.Orchestrator, p *cluster.Proxy, delay time.Duration) {
	o.AddWaitUntilOnlineStep("", orchestrator.WithPredicate(orchestrator.Managers))
	o.AddGlobalStep("proxy-deploy", func(ctx context.Context) error {
		return deployProxy(ctx, p, delay)
	})
}

func deployProxy(ctx context.Context, p *cluster.Proxy, delay time.Duration) error {
	primary, err := primaryManager(p)
	if err != nil {
		return err
	}
	n, _ := p.NodeDefinition(primary.Name())
	data := NewData(p.Definition(), n)
	script, err := Render("proxy.sh", data)
	if err != nil {
		return err
	}

	fr := p.Deploy(ctx, "proxy.sh", script,
		cluster.WithDelay(delay),
		cluster.WithFiles(
			bundle.File{Name: "routes.json", Data: jsonOrEmpty(data.Proxy.Routes)},
			bundle.File{Name: "settings.json", Data: jsonOrEmpty(data.Proxy.Settings)},
		))
	return fr.Err()
}

func jsonOrEmpty(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}\n")
	}
	return append(append([]byte(nil), raw...), '\n')
}

// RegisterReboot adds a rolling reboot of the nodes matching predicate
func RegisterReboot(o *orchestrator.Orchestrator, predicate orchestrator.Predicate, wait bool) {
	o.AddWaitUntilOnlineStep("", orchestrator.WithPredicate(predicate))
	o.AddStep("reboot", func(ctx context.Context, h *node.Handle) error {
		return h.Reboot(ctx, wait)
	}, orchestrator.WithPredicate(predicate), orchestrator.WithMaxParallel(1))
}

// Outputs collects one result per node from concurrent actions
type Outputs struct {
	mu      sync.Mutex
	results map[string]*remote.Result
}

// NewOutputs returns an empty collection
func NewOutputs() *Outputs {
	return &Outputs{results: make(map[string]*remote.Result)}
}

func (o *Outputs) set(name string, res *remote.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results[name] = res
}

// Get returns the result recorded for name
func (o *Outputs) Get(name string) (*remote.Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	res, ok := o.results[name]
	return res, ok
}

// RegisterExec adds a fleet-wide command. Every node's output is collected;
// a non-zero exit faults that node only.
func RegisterExec(o *orchestrator.Orchestrator, predicate orchestrator.Predicate, command string, elevated bool, out *Outputs) {
	o.AddWaitUntilOnlineStep("", orchestrator.WithPredicate(predicate))
	o.AddStep("exec", func(ctx context.Context, h *node.Handle) error {
		opts := []node.RunOption{node.FaultOnError()}
		if elevated {
			opts = append(opts, node.Elevated())
		}
		res, err := h.Run(ctx, command, opts...)
		if res != nil {
			out.set(h.Name(), res)
		}
		return err
	}, orchestrator.WithPredicate(predicate))
}

// HealthChecks returns the informational checks for each node. SSH
// reachability and the node's services are checked over the session; with
// direct set, Vault and Consul HTTP endpoints are also probed from here.
func HealthChecks(p *cluster.Proxy, direct bool) cluster.CheckFunc {
	def := p.Definition()
	vaultStatus := fmt.Sprintf("VAULT_ADDR=http://127.0.0.1:%d vault status", def.Vault.Port)

	return func(h *node.Handle) []health.Checker {
		ep := h.Endpoint()
		checks := []health.Checker{
			health.NewTCPChecker(ep.Addr()).Named("ssh"),
			health.NewRemoteChecker(h, "systemctl is-active docker").Named("docker").WithElevation().WithExpect("active"),
			health.NewRemoteChecker(h, "docker info --format '{{.Swarm.LocalNodeState}}'").Named("swarm").WithElevation().WithExpect("active"),
			health.NewRemoteChecker(h, "docker inspect -f '{{.State.Running}}' consul").Named("consul").WithElevation().WithExpect("true"),
		}
		if h.Metadata().IsManager() {
			checks = append(checks, health.NewRemoteChecker(h, vaultStatus).Named("vault"))
		}
		if direct {
			addr := h.Metadata().Address
			checks = append(checks, health.NewConsulLeaderChecker(addr, def.Consul.HTTPPort))
			if h.Metadata().IsManager() {
				checks = append(checks, health.NewVaultChecker(addr, def.Vault.Port))
			}
		}
		return checks
	}
}
