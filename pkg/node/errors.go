package node

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cuemby/stevedore/pkg/retry"
)

// maxOutputInError bounds how much command output is carried in a fault message
const maxOutputInError = 512

// ConnectionError reports an unreachable host or rejected credentials
type ConnectionError struct {
	Node    string
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("node %s: cannot connect to %s: %v", e.Node, e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CommandError reports a remote command that exited non-zero
type CommandError struct {
	Node     string
	Command  string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("node %s: %s exited with code %d", e.Node, e.Command, e.ExitCode)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

// TransferError reports a failed upload or download
type TransferError struct {
	Node string
	Op   string
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("node %s: %s %s failed: %v", e.Node, e.Op, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// TimeoutError is the bounded-wait failure shared with the retry package
type TimeoutError = retry.TimeoutError

// trimOutput collapses command output into a single bounded line for messages
func trimOutput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxOutputInError {
		i := maxOutputInError
		for i > 0 && !utf8.RuneStart(s[i]) {
			i--
		}
		s = s[:i] + "..."
	}
	return s
}
