package bundle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/stevedore/pkg/log"
	"github.com/cuemby/stevedore/pkg/remote"
)

const (
	// StagingFailed is the exit code reported when the bundle could not be staged
	// and its command never ran
	StagingFailed = -1

	stagingRoot    = "/tmp"
	stagingPrefix  = "stevedore-"
	cleanupTimeout = 30 * time.Second
)

// ErrConsumed is returned when a bundle is executed twice
var ErrConsumed = errors.New("bundle already executed")

// Target is where a bundle runs. Exec and Upload act as the session user; Run
// runs the bundle command and applies whatever elevation the caller asked for.
type Target interface {
	Exec(ctx context.Context, command string) (*remote.Result, error)
	Run(ctx context.Context, command string) (*remote.Result, error)
	Upload(ctx context.Context, path string, data []byte, mode os.FileMode) error
}

// File is a file staged next to the bundle command
type File struct {
	Name       string
	Data       []byte
	Executable bool
	Mode       os.FileMode
}

// Perm returns the permission bits the file is uploaded with
func (f File) Perm() os.FileMode {
	if f.Mode != 0 {
		return f.Mode
	}
	if f.Executable {
		return 0o755
	}
	return 0o644
}

// Bundle is a command line plus the files it needs
type Bundle struct {
	command  string
	files    []File
	consumed bool
}

// New creates a bundle that runs command from its staging directory
func New(command string) *Bundle {
	return &Bundle{command: command}
}

// Command returns the command line
func (b *Bundle) Command() string {
	return b.command
}

// Files returns the attached files in the order they were added
func (b *Bundle) Files() []File {
	return append([]File(nil), b.files...)
}

// AddFile attaches a file. A file with the same name is replaced in place.
// A zero mode picks 0755 for executables and 0644 otherwise.
func (b *Bundle) AddFile(name string, data []byte, executable bool, mode os.FileMode) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return fmt.Errorf("invalid bundle file name %q: must be a plain file name", name)
	}

	f := File{Name: name, Data: data, Executable: executable, Mode: mode}
	for i := range b.files {
		if b.files[i].Name == name {
			b.files[i] = f
			return nil
		}
	}
	b.files = append(b.files, f)
	return nil
}

// AddText attaches text with line endings normalized to LF
func (b *Bundle) AddText(name, text string, executable bool) error {
	return b.AddFile(name, []byte(NormalizeNewlines(text)), executable, 0)
}

// AddScript attaches an executable text file
func (b *Bundle) AddScript(name, text string) error {
	return b.AddText(name, text, true)
}

// Execute stages the files into a fresh directory on target, runs the command
// from that directory and removes it again, whatever the outcome. A staging
// failure is reported as a result with ExitCode StagingFailed and the cause in
// Stderr; the returned error is reserved for transport failures of the command.
func (b *Bundle) Execute(ctx context.Context, target Target) (*remote.Result, error) {
	if b.consumed {
		return nil, ErrConsumed
	}
	b.consumed = true

	dir := path.Join(stagingRoot, stagingPrefix+uuid.NewString())
	logger := log.WithComponent("bundle")
	logger.Debug().Str("dir", dir).Int("files", len(b.files)).Msg("Staging bundle")

	defer func() {
		// Cleanup must run even when the caller's context is already cancelled
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		res, err := target.Run(cctx, "rm -rf "+dir)
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove bundle directory")
		case !res.Success():
			logger.Warn().Str("dir", dir).Int("exit_code", res.ExitCode).Msg("Failed to remove bundle directory")
		}
	}()

	if err := b.stage(ctx, target, dir); err != nil {
		logger.Debug().Err(err).Msg("Bundle staging failed")
		return &remote.Result{ExitCode: StagingFailed, Stderr: []byte(err.Error())}, nil
	}

	return target.Run(ctx, fmt.Sprintf("cd %s && %s", dir, b.command))
}

func (b *Bundle) stage(ctx context.Context, target Target, dir string) error {
	res, err := target.Exec(ctx, "mkdir -m 0700 -p "+dir)
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	if !res.Success() {
		return fmt.Errorf("failed to create staging directory: exit code %d: %s", res.ExitCode, res.ErrorText())
	}

	for _, f := range b.files {
		if err := target.Upload(ctx, path.Join(dir, f.Name), f.Data, f.Perm()); err != nil {
			return fmt.Errorf("failed to stage %s: %w", f.Name, err)
		}
	}
	return nil
}

// NormalizeNewlines converts CRLF and lone CR line endings to LF
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
