package node

import (
	"context"

	"github.com/cuemby/stevedore/pkg/retry"
)

const rebootCommand = "nohup sh -c 'sleep 2; reboot' >/dev/null 2>&1 &"

// Reboot restarts the node. With wait it drops the session, waits for the host
// to go away and then reconnects within the reboot policy. A node that never
// comes back is faulted.
func (h *Handle) Reboot(ctx context.Context, wait bool) error {
	if _, err := h.Run(ctx, rebootCommand, Elevated(), FaultOnError()); err != nil {
		return err
	}
	h.SetStatus(StatusRebooting)
	if !wait {
		return nil
	}

	_ = h.Close()
	h.waitOffline(ctx)

	if _, err := retry.Poll(ctx, "reboot "+h.meta.Name, h.rebootPolicy, h.connectProbe); err != nil {
		h.SetStatus(StatusOffline)
		h.Fault(err.Error())
		return err
	}
	h.SetStatus(StatusOnline)
	h.logger.Info().Msg("Node is back online after reboot")
	return nil
}

// waitOffline waits up to the reboot grace period for the session to stop
// connecting. Hosts that reboot faster than the first probe are fine too.
func (h *Handle) waitOffline(ctx context.Context) {
	policy := retry.Policy{Interval: h.rebootPolicy.Interval, Timeout: h.rebootGrace, Clock: h.rebootPolicy.Clock}
	_, err := retry.Poll(ctx, "shutdown "+h.meta.Name, policy, func(ctx context.Context) (bool, error) {
		if err := h.Connect(ctx); err != nil {
			return true, nil
		}
		_ = h.Close()
		return false, nil
	})
	if err != nil {
		h.logger.Debug().Err(err).Msg("Node did not drop its session before the grace period")
	}
}

// WaitOnline polls Connect until it succeeds or the policy deadline passes. On
// success the node is marked ready.
func (h *Handle) WaitOnline(ctx context.Context, policy retry.Policy) error {
	h.SetStatus(StatusConnecting)
	attempts, err := retry.Poll(ctx, "wait online "+h.meta.Name, policy, h.connectProbe)
	if err != nil {
		h.SetStatus(StatusOffline)
		return err
	}
	h.SetStatus(StatusOnline)
	h.logger.Debug().Int("attempts", attempts).Msg("Node is online")
	return nil
}

func (h *Handle) connectProbe(ctx context.Context) (bool, error) {
	if err := h.Connect(ctx); err != nil {
		return false, err
	}
	return true, nil
}
