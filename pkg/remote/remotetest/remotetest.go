// Package remotetest provides a scripted in-memory remote.Transport for tests.
package remotetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/stevedore/pkg/remote"
)

// ErrUnreachable is the default connect failure
var ErrUnreachable = errors.New("connection refused")

// Handler produces the result for a matched command
type Handler func(command string, stdin string) (*remote.Result, error)

type rule struct {
	match   string
	handler Handler
}

// File is an uploaded file
type File struct {
	Data []byte
	Mode os.FileMode
}

// Transport is a fake remote.Transport. Unmatched commands exit 0 with no output.
// "rm -rf <path>" commands delete matching files so cleanup can be asserted.
type Transport struct {
	Host string

	mu              sync.Mutex
	rules           []rule
	files           map[string]File
	commands        []string
	stdins          []string
	connected       bool
	connects        int
	connectErr      error
	connectFailures int
	uploadErrs      map[string]error
	shellLines      []string
	closes          int
}

var _ remote.Transport = (*Transport)(nil)

// New returns a reachable fake transport
func New(host string) *Transport {
	return &Transport{
		Host:       host,
		files:      make(map[string]File),
		uploadErrs: make(map[string]error),
	}
}

// On scripts a fixed result for commands containing match. Later rules win.
func (t *Transport) On(match string, result remote.Result) *Transport {
	return t.OnFunc(match, func(string, string) (*remote.Result, error) {
		r := result
		return &r, nil
	})
}

// OnFunc scripts a handler for commands containing match. Later rules win.
func (t *Transport) OnFunc(match string, h Handler) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rules = append(t.rules, rule{match: match, handler: h})
	return t
}

// SetUnreachable makes every Connect fail with err until cleared with nil
func (t *Transport) SetUnreachable(err error) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectErr = err
	if err != nil {
		t.connected = false
	}
	return t
}

// FailConnects makes the next n Connect calls fail
func (t *Transport) FailConnects(n int) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectFailures = n
	return t
}

// FailUpload makes uploads to paths containing match fail with err
func (t *Transport) FailUpload(match string, err error) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploadErrs[match] = err
	return t
}

// SetShellLines sets the lines a Shell produces before closing
func (t *Transport) SetShellLines(lines ...string) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shellLines = lines
	return t
}

// PutFile seeds a remote file
func (t *Transport) PutFile(path string, data []byte) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[path] = File{Data: data, Mode: 0o644}
	return t
}

func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	if t.connectErr != nil {
		return fmt.Errorf("dial %s: %w", t.Host, t.connectErr)
	}
	if t.connectFailures > 0 {
		t.connectFailures--
		return fmt.Errorf("dial %s: %w", t.Host, ErrUnreachable)
	}
	t.connected = true
	return nil
}

func (t *Transport) ensureConnected() error {
	if t.connectErr != nil {
		return fmt.Errorf("dial %s: %w", t.Host, t.connectErr)
	}
	t.connected = true
	return nil
}

func (t *Transport) Exec(ctx context.Context, command string, stdin io.Reader) (*remote.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var in string
	if stdin != nil {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		in = string(b)
	}

	t.mu.Lock()
	if err := t.ensureConnected(); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.commands = append(t.commands, command)
	t.stdins = append(t.stdins, in)
	var handler Handler
	for i := len(t.rules) - 1; i >= 0; i-- {
		if strings.Contains(command, t.rules[i].match) {
			handler = t.rules[i].handler
			break
		}
	}
	if idx := strings.Index(command, "rm -rf "); idx >= 0 {
		t.removeLocked(command[idx+len("rm -rf "):])
	}
	t.mu.Unlock()

	if handler == nil {
		return &remote.Result{}, nil
	}
	return handler(command, in)
}

func (t *Transport) removeLocked(arg string) {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return
	}
	target := strings.Trim(fields[0], "'\"")
	for p := range t.files {
		if p == target || strings.HasPrefix(p, strings.TrimSuffix(target, "/")+"/") {
			delete(t.files, p)
		}
	}
}

func (t *Transport) Upload(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureConnected(); err != nil {
		return err
	}
	for match, err := range t.uploadErrs {
		if strings.Contains(path, match) {
			return fmt.Errorf("upload %s: %w", path, err)
		}
	}
	t.files[path] = File{Data: append([]byte(nil), data...), Mode: mode}
	return nil
}

func (t *Transport) Download(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureConnected(); err != nil {
		return nil, err
	}
	f, ok := t.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	return append([]byte(nil), f.Data...), nil
}

func (t *Transport) Shell(ctx context.Context) (remote.Shell, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureConnected(); err != nil {
		return nil, err
	}
	s := &shell{lines: make(chan string, len(t.shellLines)), transport: t}
	for _, l := range t.shellLines {
		s.lines <- l
	}
	close(s.lines)
	return s, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.closes++
	return nil
}

// Commands returns every executed command in order
func (t *Transport) Commands() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.commands...)
}

// Stdins returns the stdin passed with each command
func (t *Transport) Stdins() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.stdins...)
}

// Ran reports whether any executed command contains match
func (t *Transport) Ran(match string) bool {
	for _, c := range t.Commands() {
		if strings.Contains(c, match) {
			return true
		}
	}
	return false
}

// File returns an uploaded file
func (t *Transport) File(path string) (File, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[path]
	return f, ok
}

// Files lists remote file paths, sorted
func (t *Transport) Files() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := make([]string, 0, len(t.files))
	for p := range t.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Connects returns the number of Connect calls
func (t *Transport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// Connected reports whether the session is up
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

type shell struct {
	transport *Transport
	lines     chan string
	mu        sync.Mutex
	sent      []string
}

func (s *shell) Send(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, line)
	return nil
}

func (s *shell) Lines() <-chan string {
	return s.lines
}

func (s *shell) Close() error {
	return nil
}

// Fleet hands out one fake transport per host
type Fleet struct {
	mu         sync.Mutex
	transports map[string]*Transport
}

// NewFleet returns an empty fleet
func NewFleet() *Fleet {
	return &Fleet{transports: make(map[string]*Transport)}
}

// Host returns (creating on first use) the transport for host
func (f *Fleet) Host(host string) *Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transports[host]
	if !ok {
		t = New(host)
		f.transports[host] = t
	}
	return t
}

// Factory returns a remote.Factory serving this fleet's transports
func (f *Fleet) Factory() remote.Factory {
	return func(endpoint remote.Endpoint) (remote.Transport, error) {
		return f.Host(endpoint.Host), nil
	}
}
