package node

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/stevedore/pkg/remote"
)

// OpenShell starts an interactive line-oriented shell on the node. The shell
// uses its own channel, so commands can still run while it is open.
func (h *Handle) OpenShell(ctx context.Context) (remote.Shell, error) {
	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	h.SetStatus("shell")
	if err := h.connectLocked(ctx); err != nil {
		return nil, err
	}
	sh, err := h.transport.Shell(ctx)
	if err != nil {
		return nil, &ConnectionError{Node: h.meta.Name, Address: h.endpoint.Addr(), Err: err}
	}
	return sh, nil
}

// ReadUntil collects lines from sh until one contains sentinel. The sentinel
// line is included. It fails when the shell closes first or timeout elapses.
func ReadUntil(sh remote.Shell, sentinel string, timeout time.Duration) ([]string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var lines []string
	for {
		select {
		case line, ok := <-sh.Lines():
			if !ok {
				return lines, fmt.Errorf("shell closed before %q was seen", sentinel)
			}
			lines = append(lines, line)
			if strings.Contains(line, sentinel) {
				return lines, nil
			}
		case <-deadline.C:
			return lines, fmt.Errorf("timed out after %s waiting for %q", timeout, sentinel)
		}
	}
}
