package remote

import (
	"context"
	"io"
	"net"
	"os"
	"strings"
)

// Result is the outcome of one remote command
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Success reports whether the command exited 0
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// OutputText returns stdout as trimmed text
func (r *Result) OutputText() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(string(r.Stdout))
}

// ErrorText returns stderr as trimmed text
func (r *Result) ErrorText() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(string(r.Stderr))
}

// Transport is the set of remote primitives the core depends on. Any transport
// offering these (SSH, a hypervisor agent, a test fake) can back a node handle.
type Transport interface {
	// Connect establishes the session. Calling it on a live session is a no-op;
	// calling it on a dead one re-dials.
	Connect(ctx context.Context) error

	// Exec runs a command and captures exit code and output. A non-zero exit is
	// not an error; err is reserved for transport failures.
	Exec(ctx context.Context, command string, stdin io.Reader) (*Result, error)

	// Upload writes data to path, creating parent directories.
	Upload(ctx context.Context, path string, data []byte, mode os.FileMode) error

	// Download reads the file at path.
	Download(ctx context.Context, path string) ([]byte, error)

	// Shell opens an interactive line-oriented channel.
	Shell(ctx context.Context) (Shell, error)

	// Close drops the session.
	Close() error
}

// Shell is a bidirectional line channel to a remote shell. Lines is closed when the
// remote side ends the session or Close is called.
type Shell interface {
	Send(line string) error
	Lines() <-chan string
	Close() error
}

// Dialer is implemented by transports that can open TCP connections from the
// remote host, such as SSH port forwarding.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Factory builds a transport for one endpoint
type Factory func(endpoint Endpoint) (Transport, error)
