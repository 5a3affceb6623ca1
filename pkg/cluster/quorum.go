package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/stevedore/pkg/node"
	"github.com/cuemby/stevedore/pkg/retry"
)

// QuorumProbe reports how many members have joined so far
type QuorumProbe func(ctx context.Context) (int, error)

// WaitForQuorum polls probe once per policy interval until it reports at least
// want members. It gives up with a *retry.TimeoutError at the deadline; probe
// errors are retried. The deadline is the only bound, there is no attempt cap.
func (p *Proxy) WaitForQuorum(ctx context.Context, name string, probe QuorumProbe, want int, policy retry.Policy) error {
	logger := p.logger.With().Str("quorum", name).Int("want", want).Logger()
	attempts, err := retry.Poll(ctx, "quorum "+name, policy, func(ctx context.Context) (bool, error) {
		have, err := probe(ctx)
		if err != nil {
			logger.Debug().Err(err).Msg("Quorum probe failed")
			return false, err
		}
		logger.Debug().Int("have", have).Msg("Quorum probe")
		return have >= want, nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("Quorum not reached")
		return err
	}
	logger.Info().Int("attempts", attempts).Msg("Quorum reached")
	return nil
}

// SwarmManagers counts reachable swarm managers as seen from h
func SwarmManagers(h *node.Handle) QuorumProbe {
	return swarmCount(h, "docker node ls --filter role=manager --format '{{.ManagerStatus}}'", func(line string) bool {
		return line == "Leader" || line == "Reachable"
	})
}

// SwarmReadyNodes counts swarm nodes in the Ready state as seen from h
func SwarmReadyNodes(h *node.Handle) QuorumProbe {
	return swarmCount(h, "docker node ls --format '{{.Status}}'", func(line string) bool {
		return line == "Ready"
	})
}

func swarmCount(h *node.Handle, command string, match func(string) bool) QuorumProbe {
	return func(ctx context.Context) (int, error) {
		res, err := h.RunElevated(ctx, command, node.Quiet())
		if err != nil {
			return 0, err
		}
		if !res.Success() {
			return 0, fmt.Errorf("node %s: %s exited with code %d", h.Name(), command, res.ExitCode)
		}
		n := 0
		for _, line := range strings.Split(res.OutputText(), "\n") {
			if match(strings.TrimSpace(line)) {
				n++
			}
		}
		return n, nil
	}
}
