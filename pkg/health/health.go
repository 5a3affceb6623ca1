package health

import (
	"context"
	"time"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP   CheckType = "http"
	CheckTypeTCP    CheckType = "tcp"
	CheckTypeRemote CheckType = "remote"
)

// Result is the outcome of one check. Check and Type are filled in by Run.
type Result struct {
	Check     string
	Type      CheckType
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is one informational probe
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType

	// Name identifies the check in reports, e.g. "docker" or "vault-http"
	Name() string
}

// Run executes checks in order. Every check runs even when an earlier one
// fails.
func Run(ctx context.Context, checks []Checker) []Result {
	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		r := c.Check(ctx)
		r.Check = c.Name()
		r.Type = c.Type()
		results = append(results, r)
	}
	return results
}

// Failed returns the unhealthy results
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Healthy {
			failed = append(failed, r)
		}
	}
	return failed
}

// outcome stamps a result started at start
func outcome(start time.Time, ok bool, msg string) Result {
	return Result{
		Healthy:   ok,
		Message:   msg,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
