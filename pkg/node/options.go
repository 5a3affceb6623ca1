package node

import (
	"os"
	"time"

	"github.com/cuemby/stevedore/pkg/retry"
)

// RunOptions controls how a remote command is executed and reported
type RunOptions struct {
	// FaultOnError faults the node when the command exits non-zero or the
	// transport fails
	FaultOnError bool
	// Sensitive replaces the command and its output with <redacted> in logs
	// and error messages
	Sensitive bool
	// Binary keeps output as raw bytes; it is never logged as text
	Binary bool
	// Quiet logs output at trace level instead of debug
	Quiet bool
	// Elevated runs the command through sudo unless the session user is root
	Elevated bool
}

// RunOption configures a single command
type RunOption func(*RunOptions)

func FaultOnError() RunOption { return func(o *RunOptions) { o.FaultOnError = true } }
func Sensitive() RunOption    { return func(o *RunOptions) { o.Sensitive = true } }
func Binary() RunOption       { return func(o *RunOptions) { o.Binary = true } }
func Quiet() RunOption        { return func(o *RunOptions) { o.Quiet = true } }
func Elevated() RunOption     { return func(o *RunOptions) { o.Elevated = true } }

func buildRunOptions(opts []RunOption) RunOptions {
	var o RunOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// UploadOptions controls a file transfer to the node
type UploadOptions struct {
	Mode     os.FileMode
	TabStop  int
	Elevated bool
}

// UploadOption configures a single upload
type UploadOption func(*UploadOptions)

// WithMode sets the permission bits of the uploaded file (default 0644)
func WithMode(perm os.FileMode) UploadOption {
	return func(o *UploadOptions) { o.Mode = perm }
}

// WithTabStop expands tabs to spaces in UploadText, aligned to n columns
func WithTabStop(n int) UploadOption {
	return func(o *UploadOptions) { o.TabStop = n }
}

// WithElevation installs the file as root
func WithElevation() UploadOption {
	return func(o *UploadOptions) { o.Elevated = true }
}

func buildUploadOptions(opts []UploadOption) UploadOptions {
	o := UploadOptions{Mode: 0o644}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Handle
type Option func(*Handle)

// WithRebootPolicy sets how Reboot waits: grace bounds the wait for the host to
// drop its session, policy bounds the wait for it to come back.
func WithRebootPolicy(policy retry.Policy, grace time.Duration) Option {
	return func(h *Handle) {
		h.rebootPolicy = policy
		h.rebootGrace = grace
	}
}
