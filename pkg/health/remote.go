package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/stevedore/pkg/node"
)

// RemoteChecker runs a command on a node; exit 0 is healthy
type RemoteChecker struct {
	Label   string
	Node    *node.Handle
	Command string

	// Expect, when set, must appear in the command's stdout
	Expect string

	// Elevated runs the command as root
	Elevated bool

	// Timeout bounds the command (default: 10 seconds)
	Timeout time.Duration
}

// NewRemoteChecker creates a new remote command health checker
func NewRemoteChecker(h *node.Handle, command string) *RemoteChecker {
	return &RemoteChecker{
		Label:   command,
		Node:    h,
		Command: command,
		Timeout: 10 * time.Second,
	}
}

// Check runs the command. It never faults the node.
func (r *RemoteChecker) Check(ctx context.Context) Result {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	opts := []node.RunOption{node.Quiet()}
	if r.Elevated {
		opts = append(opts, node.Elevated())
	}
	res, err := r.Node.Run(ctx, r.Command, opts...)
	if err != nil {
		return outcome(start, false, err.Error())
	}
	if !res.Success() {
		msg := fmt.Sprintf("%s exited with code %d", r.Command, res.ExitCode)
		if out := res.ErrorText(); out != "" {
			msg += ": " + out
		}
		return outcome(start, false, msg)
	}

	out := res.OutputText()
	if r.Expect != "" && !strings.Contains(out, r.Expect) {
		return outcome(start, false, fmt.Sprintf("%s: expected %q, got %q", r.Command, r.Expect, out))
	}
	if len(out) > 100 {
		out = out[:100] + "..."
	}
	return outcome(start, true, out)
}

func (r *RemoteChecker) Type() CheckType { return CheckTypeRemote }
func (r *RemoteChecker) Name() string    { return r.Label }

// Named sets the label shown in reports
func (r *RemoteChecker) Named(label string) *RemoteChecker {
	r.Label = label
	return r
}

// WithExpect requires substring in the command output
func (r *RemoteChecker) WithExpect(substring string) *RemoteChecker {
	r.Expect = substring
	return r
}

// WithElevation runs the command as root
func (r *RemoteChecker) WithElevation() *RemoteChecker {
	r.Elevated = true
	return r
}

// WithTimeout sets the command timeout
func (r *RemoteChecker) WithTimeout(timeout time.Duration) *RemoteChecker {
	r.Timeout = timeout
	return r
}
