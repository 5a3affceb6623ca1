package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/stevedore/pkg/bundle"
	"github.com/cuemby/stevedore/pkg/node"
)

// DeployOption configures a rolling deploy
type DeployOption func(*deployConfig)

type deployConfig struct {
	delay    time.Duration
	elevated bool
	files    []bundle.File
}

// WithDelay pauses between managers
func WithDelay(d time.Duration) DeployOption {
	return func(c *deployConfig) { c.delay = d }
}

// WithFiles attaches data files next to the script
func WithFiles(files ...bundle.File) DeployOption {
	return func(c *deployConfig) { c.files = append(c.files, files...) }
}

// Unprivileged runs the script as the session user instead of root
func Unprivileged() DeployOption {
	return func(c *deployConfig) { c.elevated = false }
}

// Deploy uploads script (plus any files) to every manager as one bundle and
// runs it, one manager at a time. The rollout stops at the first manager that
// fails; the rest are reported as skipped and keep their previous config.
func (p *Proxy) Deploy(ctx context.Context, name, script string, opts ...DeployOption) *FleetResult {
	cfg := deployConfig{elevated: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	managers := p.Managers()
	fr := &FleetResult{}
	p.logger.Info().
		Str("deploy", name).
		Int("managers", len(managers)).
		Dur("delay", cfg.delay).
		Msg("Starting rolling deploy")

	for i, h := range managers {
		if h.Faulted() {
			fr.add(h, nil, fmt.Errorf("node %s: faulted: %s", h.Name(), h.FaultMessage()))
			fr.Skipped = names(managers[i+1:])
			break
		}

		b, err := deployBundle(name, script, cfg.files)
		if err != nil {
			fr.add(h, nil, err)
			fr.Skipped = names(managers[i+1:])
			break
		}

		runOpts := []node.RunOption{node.FaultOnError()}
		if cfg.elevated {
			runOpts = append(runOpts, node.Elevated())
		}
		res, err := h.RunBundle(ctx, b, runOpts...)
		if m := fr.add(h, res, err); !m.OK() {
			fr.Skipped = names(managers[i+1:])
			p.logger.Error().Str("deploy", name).Str("node", h.Name()).Msg("Rolling deploy stopped")
			break
		}
		p.logger.Info().Str("deploy", name).Str("node", h.Name()).Msg("Deployed to manager")

		if cfg.delay > 0 && i < len(managers)-1 {
			p.logger.Debug().Dur("delay", cfg.delay).Msg("Waiting before next manager")
			if err := p.sleep(ctx, cfg.delay); err != nil {
				fr.Skipped = names(managers[i+1:])
				break
			}
		}
	}
	return fr
}

func deployBundle(name, script string, files []bundle.File) (*bundle.Bundle, error) {
	b := bundle.New("./" + name)
	if err := b.AddScript(name, script); err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := b.AddFile(f.Name, f.Data, f.Executable, f.Mode); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func names(hs []*node.Handle) []string {
	out := make([]string, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.Name())
	}
	return out
}
