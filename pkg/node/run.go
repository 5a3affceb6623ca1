package node

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/stevedore/pkg/bundle"
	"github.com/cuemby/stevedore/pkg/metrics"
	"github.com/cuemby/stevedore/pkg/remote"
)

const redacted = "<redacted>"

// Run executes command on the node. A non-zero exit is returned as a result with
// a nil error unless FaultOnError is set, in which case the node is faulted and
// a *CommandError is returned alongside the result.
func (h *Handle) Run(ctx context.Context, command string, opts ...RunOption) (*remote.Result, error) {
	o := buildRunOptions(opts)

	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	label := h.label(command, o)
	h.SetStatus("run: " + label)
	if err := h.connectLocked(ctx); err != nil {
		return nil, h.failTransport(err, o)
	}

	h.logCommand(label, o)
	cmd, stdin := h.elevate(command, o.Elevated)
	res, err := h.transport.Exec(ctx, cmd, stdin)
	if err != nil {
		return nil, h.failTransport(&ConnectionError{Node: h.meta.Name, Address: h.endpoint.Addr(), Err: err}, o)
	}
	return h.complete(label, res, o)
}

// RunElevated is Run with root privileges
func (h *Handle) RunElevated(ctx context.Context, command string, opts ...RunOption) (*remote.Result, error) {
	return h.Run(ctx, command, append(opts, Elevated())...)
}

// RunBundle stages and runs b on the node. Staging failures are reported like a
// failed command with exit code bundle.StagingFailed.
func (h *Handle) RunBundle(ctx context.Context, b *bundle.Bundle, opts ...RunOption) (*remote.Result, error) {
	o := buildRunOptions(opts)

	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	label := h.label(b.Command(), o)
	h.SetStatus("run: " + label)
	if err := h.connectLocked(ctx); err != nil {
		return nil, h.failTransport(err, o)
	}

	h.logCommand(label, o)
	res, err := b.Execute(ctx, bundleTarget{h: h, elevated: o.Elevated})
	if err != nil {
		return nil, h.failTransport(&ConnectionError{Node: h.meta.Name, Address: h.endpoint.Addr(), Err: err}, o)
	}
	return h.complete(label, res, o)
}

// RunBundleElevated is RunBundle with the bundle command run as root
func (h *Handle) RunBundleElevated(ctx context.Context, b *bundle.Bundle, opts ...RunOption) (*remote.Result, error) {
	return h.RunBundle(ctx, b, append(opts, Elevated())...)
}

// complete applies the fault policy to a finished command
func (h *Handle) complete(label string, res *remote.Result, o RunOptions) (*remote.Result, error) {
	h.logResult(res, o)

	if res.Success() {
		metrics.RemoteCommandsTotal.WithLabelValues(metrics.ResultOK).Inc()
		return res, nil
	}
	metrics.RemoteCommandsTotal.WithLabelValues(metrics.ResultFailed).Inc()
	if !o.FaultOnError {
		return res, nil
	}

	cerr := &CommandError{Node: h.meta.Name, Command: label, ExitCode: res.ExitCode}
	if !o.Sensitive && !o.Binary {
		out := res.ErrorText()
		if out == "" {
			out = res.OutputText()
		}
		cerr.Output = trimOutput(out)
	}
	h.Fault(cerr.Error())
	return res, cerr
}

func (h *Handle) failTransport(err error, o RunOptions) error {
	metrics.RemoteCommandsTotal.WithLabelValues(metrics.ResultError).Inc()
	if o.FaultOnError {
		h.Fault(err.Error())
	}
	return err
}

// elevate wraps command in sudo for non-root sessions. With password auth the
// password is fed to sudo on stdin.
func (h *Handle) elevate(command string, elevated bool) (string, io.Reader) {
	creds := h.endpoint.Credentials
	if !elevated || creds.IsRoot() {
		return command, nil
	}
	if creds.Password != "" {
		return "sudo -S -p '' sh -c " + shellQuote(command), strings.NewReader(creds.Password + "\n")
	}
	return "sudo -n sh -c " + shellQuote(command), nil
}

func (h *Handle) label(command string, o RunOptions) string {
	if o.Sensitive {
		return redacted
	}
	return command
}

func (h *Handle) logCommand(label string, o RunOptions) {
	h.logger.Debug().Str("command", label).Bool("elevated", o.Elevated).Msg("Running command")
}

func (h *Handle) logResult(res *remote.Result, o RunOptions) {
	level := zerolog.DebugLevel
	if o.Quiet {
		level = zerolog.TraceLevel
	}
	ev := h.logger.WithLevel(level).Int("exit_code", res.ExitCode)
	switch {
	case o.Sensitive:
		ev = ev.Str("stdout", redacted).Str("stderr", redacted)
	case o.Binary:
		ev = ev.Int("stdout_bytes", len(res.Stdout)).Int("stderr_bytes", len(res.Stderr))
	default:
		ev = ev.Str("stdout", res.OutputText()).Str("stderr", res.ErrorText())
	}
	ev.Msg("Command finished")
}

// bundleTarget runs bundle housekeeping as the session user and the bundle
// command with the requested elevation. The caller holds cmdMu.
type bundleTarget struct {
	h        *Handle
	elevated bool
}

func (t bundleTarget) Exec(ctx context.Context, command string) (*remote.Result, error) {
	return t.h.transport.Exec(ctx, command, nil)
}

func (t bundleTarget) Run(ctx context.Context, command string) (*remote.Result, error) {
	cmd, stdin := t.h.elevate(command, t.elevated)
	return t.h.transport.Exec(ctx, cmd, stdin)
}

func (t bundleTarget) Upload(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	return t.h.transport.Upload(ctx, path, data, mode)
}

// shellQuote quotes s for POSIX sh
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
