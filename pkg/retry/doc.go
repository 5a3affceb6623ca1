// Package retry provides the single bounded-wait policy used by every polling loop in
// stevedore: wait-until-online, reboot reconnects, quorum joins and readiness checks.
//
// A Policy is a fixed poll interval plus an overall deadline. Poll runs the probe
// immediately, then once per interval, and gives up with a *TimeoutError when the next
// attempt would start after the deadline. Probes can stop the loop early by returning
// an error wrapped with Fatal.
//
//	attempts, err := retry.Poll(ctx, "consul quorum", retry.Policy{
//		Interval: 5 * time.Second,
//		Timeout:  2 * time.Minute,
//	}, func(ctx context.Context) (bool, error) {
//		peers, err := probe.Peers(ctx)
//		return len(peers) == 3, err
//	})
//
// Tests inject a Clock whose Sleep advances virtual time instead of blocking.
package retry
