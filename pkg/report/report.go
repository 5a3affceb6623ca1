package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// State is the outcome shown for a row
type State int

const (
	StateOK State = iota
	StateFailed
	StatePending
	StateWarning
)

func (s State) mark() string {
	switch s {
	case StateOK:
		return checkMark
	case StateFailed:
		return crossMark
	case StateWarning:
		return warnMark
	default:
		return pending
	}
}

func (s State) style() lipgloss.Style {
	switch s {
	case StateOK:
		return readyStyle
	case StateFailed:
		return failedStyle
	case StateWarning:
		return warningStyle
	default:
		return dimStyle
	}
}

// Row is one line of a table, usually one node
type Row struct {
	State  State
	Name   string
	Role   string
	Status string
	Detail string
}

// Table is a titled list of rows with a closing verdict
type Table struct {
	Title   string
	Rows    []Row
	Footer  string
	Success bool
}

// Render writes t to w, styled when w is an interactive terminal
func Render(w io.Writer, t Table) error {
	return render(w, t, isTerminal(w))
}

func render(w io.Writer, t Table, styled bool) error {
	paint := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	nameW, roleW, statusW := len("NODE"), len("ROLE"), len("STATUS")
	for _, r := range t.Rows {
		nameW = max(nameW, len(r.Name))
		roleW = max(roleW, len(r.Role))
		statusW = max(statusW, len(r.Status))
	}

	var b strings.Builder
	if t.Title != "" {
		fmt.Fprintf(&b, "  %s\n", paint(titleStyle, t.Title))
		fmt.Fprintf(&b, "  %s\n", strings.Repeat("═", len(t.Title)))
	}

	header := fmt.Sprintf("%-4s  %-*s  %-*s  %-*s  %s", "", nameW, "NODE", roleW, "ROLE", statusW, "STATUS", "DETAIL")
	fmt.Fprintf(&b, "  %s\n", paint(headerStyle, strings.TrimRight(header, " ")))
	for _, r := range t.Rows {
		line := fmt.Sprintf("%-*s  %-*s  %-*s  %s", nameW, r.Name, roleW, r.Role, statusW, r.Status, r.Detail)
		fmt.Fprintf(&b, "  %s  %s\n", paint(r.State.style(), r.State.mark()), strings.TrimRight(line, " "))
	}

	if t.Footer != "" {
		style := readyStyle
		if !t.Success {
			style = failedStyle
		}
		fmt.Fprintf(&b, "\n  %s\n", paint(style, t.Footer))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
