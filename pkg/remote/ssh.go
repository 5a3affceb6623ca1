package remote

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SSHTransport implements Transport over SSH, with SFTP for file transfer.
// One transport owns one connection; commands open a new session each.
type SSHTransport struct {
	endpoint Endpoint
	config   *ssh.ClientConfig

	mu     sync.Mutex
	client *ssh.Client
}

var _ Transport = (*SSHTransport)(nil)

// NewSSHTransport validates the endpoint and prepares authentication. It does not dial.
func NewSSHTransport(endpoint Endpoint) (*SSHTransport, error) {
	if endpoint.Host == "" {
		return nil, fmt.Errorf("endpoint host cannot be empty")
	}
	if endpoint.Credentials.User == "" {
		return nil, fmt.Errorf("endpoint user cannot be empty")
	}
	if err := endpoint.Credentials.LoadKey(); err != nil {
		return nil, err
	}

	var auth []ssh.AuthMethod
	if len(endpoint.Credentials.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(endpoint.Credentials.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if endpoint.Credentials.Password != "" {
		auth = append(auth, ssh.Password(endpoint.Credentials.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no SSH credentials for %s: set a private key or password", endpoint.Host)
	}

	timeout := endpoint.DialTimeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}

	return &SSHTransport{
		endpoint: endpoint,
		config: &ssh.ClientConfig{
			User:            endpoint.Credentials.User,
			Auth:            auth,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // freshly provisioned hosts have no known host keys yet
			Timeout:         timeout,
		},
	}, nil
}

// SSHFactory is a Factory producing SSH transports
func SSHFactory(endpoint Endpoint) (Transport, error) {
	return NewSSHTransport(endpoint)
}

// Connect dials the host, reusing a live connection
func (t *SSHTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		if _, _, err := t.client.SendRequest("keepalive@openssh.com", true, nil); err == nil {
			return nil
		}
		_ = t.client.Close()
		t.client = nil
	}

	addr := t.endpoint.Addr()
	dialer := &net.Dialer{Timeout: t.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, t.config)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("SSH handshake with %s failed: %w", addr, err)
	}

	t.client = ssh.NewClient(c, chans, reqs)
	return nil
}

func (t *SSHTransport) connected(ctx context.Context) (*ssh.Client, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client != nil {
		return client, nil
	}
	if err := t.Connect(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client, nil
}

// Exec runs command in a new session
func (t *SSHTransport) Exec(ctx context.Context, command string, stdin io.Reader) (*Result, error) {
	client, err := t.connected(ctx)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session on %s: %w", t.endpoint.Host, err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	case err = <-done:
	}

	result := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, fmt.Errorf("session on %s ended without exit status: %w", t.endpoint.Host, err)
	}
	return result, nil
}

func (t *SSHTransport) sftp(ctx context.Context) (*sftp.Client, error) {
	client, err := t.connected(ctx)
	if err != nil {
		return nil, err
	}
	sc, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("failed to start SFTP on %s: %w", t.endpoint.Host, err)
	}
	return sc, nil
}

// Upload writes data via SFTP
func (t *SSHTransport) Upload(ctx context.Context, p string, data []byte, mode os.FileMode) error {
	sc, err := t.sftp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sc.Close() }()

	if dir := path.Dir(p); dir != "." && dir != "/" {
		if err := sc.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	f, err := sc.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", p, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", p, err)
	}
	if err := sc.Chmod(p, mode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", p, err)
	}
	return nil
}

// Download reads a file via SFTP
func (t *SSHTransport) Download(ctx context.Context, p string) ([]byte, error) {
	sc, err := t.sftp(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sc.Close() }()

	f, err := sc.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// Shell starts a login shell and streams its stdout and stderr as lines
func (t *SSHTransport) Shell(ctx context.Context) (Shell, error) {
	client, err := t.connected(ctx)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session on %s: %w", t.endpoint.Host, err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	if err := session.Shell(); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to start shell on %s: %w", t.endpoint.Host, err)
	}

	s := &sshShell{session: session, stdin: stdin, lines: make(chan string, 64)}
	var wg sync.WaitGroup
	for _, r := range []io.Reader{stdout, stderr} {
		wg.Add(1)
		go func(r io.Reader) {
			defer wg.Done()
			scanner := bufio.NewScanner(r)
			for scanner.Scan() {
				s.lines <- scanner.Text()
			}
		}(r)
	}
	go func() {
		wg.Wait()
		close(s.lines)
	}()
	return s, nil
}

// DialContext opens a connection to addr as seen from the remote host
func (t *SSHTransport) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, err := t.connected(ctx)
	if err != nil {
		return nil, err
	}
	return client.DialContext(ctx, network, addr)
}

// Close drops the connection
func (t *SSHTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

type sshShell struct {
	session *ssh.Session
	stdin   io.WriteCloser
	lines   chan string
	once    sync.Once
}

func (s *sshShell) Send(line string) error {
	_, err := io.WriteString(s.stdin, line+"\n")
	return err
}

func (s *sshShell) Lines() <-chan string {
	return s.lines
}

func (s *sshShell) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.stdin.Close()
		err = s.session.Close()
		if errors.Is(err, io.EOF) {
			err = nil
		}
	})
	return err
}
