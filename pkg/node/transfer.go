package node

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/cuemby/stevedore/pkg/bundle"
)

// Upload writes data to path on the node, creating parent directories. Any
// failure faults the node.
func (h *Handle) Upload(ctx context.Context, p string, data []byte, opts ...UploadOption) error {
	o := buildUploadOptions(opts)

	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	h.SetStatus("upload: " + p)
	if err := h.upload(ctx, p, data, o); err != nil {
		terr := &TransferError{Node: h.meta.Name, Op: "upload", Path: p, Err: err}
		h.Fault(terr.Error())
		return terr
	}
	h.logger.Debug().Str("path", p).Int("bytes", len(data)).Bool("elevated", o.Elevated).Msg("Uploaded file")
	return nil
}

// UploadText uploads text with line endings normalized to LF and, with
// WithTabStop, tabs expanded to spaces.
func (h *Handle) UploadText(ctx context.Context, p, text string, opts ...UploadOption) error {
	o := buildUploadOptions(opts)
	text = bundle.NormalizeNewlines(text)
	if o.TabStop > 0 {
		text = ExpandTabs(text, o.TabStop)
	}
	return h.Upload(ctx, p, []byte(text), opts...)
}

func (h *Handle) upload(ctx context.Context, p string, data []byte, o UploadOptions) error {
	if err := h.connectLocked(ctx); err != nil {
		return err
	}
	if !o.Elevated || h.endpoint.Credentials.IsRoot() {
		return h.transport.Upload(ctx, p, data, o.Mode)
	}

	// Stage as the session user, then install into place as root
	tmp := path.Join("/tmp", "stevedore-upload-"+uuid.NewString())
	if err := h.transport.Upload(ctx, tmp, data, 0o600); err != nil {
		return err
	}
	install := fmt.Sprintf("install -D -m %04o %s %s; rc=$?; rm -f %s; exit $rc", uint32(o.Mode.Perm()), tmp, shellQuote(p), tmp)
	cmd, stdin := h.elevate(install, true)
	res, err := h.transport.Exec(ctx, cmd, stdin)
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("install exited with code %d: %s", res.ExitCode, trimOutput(res.ErrorText()))
	}
	return nil
}

// Download reads a file from the node
func (h *Handle) Download(ctx context.Context, p string) ([]byte, error) {
	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	h.SetStatus("download: " + p)
	if err := h.connectLocked(ctx); err != nil {
		return nil, err
	}
	data, err := h.transport.Download(ctx, p)
	if err != nil {
		return nil, &TransferError{Node: h.meta.Name, Op: "download", Path: p, Err: err}
	}
	return data, nil
}

// DownloadText reads a text file from the node
func (h *Handle) DownloadText(ctx context.Context, p string) (string, error) {
	data, err := h.Download(ctx, p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ExpandTabs replaces tabs with spaces up to the next multiple of tabStop on
// each line
func ExpandTabs(s string, tabStop int) string {
	if tabStop <= 0 || !strings.Contains(s, "\t") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			n := tabStop - col%tabStop
			b.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}
