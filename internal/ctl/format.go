// Package ctl implements the client-side commands for owctl.
// It talks to a running orbitwatchd over HTTP and WebSocket and renders the
// results to the terminal.
package ctl

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"
)

// stdout receives all rendered output. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// ANSI escape codes for terminal formatting.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
	white  = "\033[37m"
)

// colorEnabled reports whether output goes to a terminal. When output is
// piped, redirected or captured, ANSI escape codes are suppressed.
func colorEnabled() bool {
	f, ok := stdout.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// stateColor returns the ANSI color code for a daemon state.
func stateColor(state string) string {
	switch state {
	case "IDLE":
		return green
	case "REFRESHING":
		return cyan
	case "PRUNING":
		return blue
	case "PAUSED":
		return yellow
	case "BOOTING":
		return dim
	default:
		return white
	}
}

// colorize wraps text with an ANSI color sequence.
// Returns the text unchanged when color output is disabled.
func colorize(color, text string) string {
	if !colorEnabled() || color == "" {
		return text
	}
	return color + text + reset
}

// header returns a bold section header followed by a rule.
func header(title string) string {
	return colorize(bold, "  "+title) + "\n" + colorize(dim, "  "+strings.Repeat("─", 50))
}

// formatDuration renders a duration as a compact string like "2h 14m 8s".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h >= 48:
		return fmt.Sprintf("%dd %dh", h/24, h%24)
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// formatBytes renders a byte count as a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatHz renders a frequency in MHz, or "-" when unset.
func formatHz(hz float64) string {
	if hz == 0 {
		return "-"
	}
	return fmt.Sprintf("%.6f MHz", hz/1e6)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// table is a tab-aligned column printer.
type table struct {
	w      *tabwriter.Writer
	indent string
}

func newTable(indent string, columns ...string) *table {
	t := &table{w: tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0), indent: indent}
	t.row(columns...)
	under := make([]string, len(columns))
	for i, c := range columns {
		under[i] = strings.Repeat("-", len(c))
	}
	t.row(under...)
	return t
}

func (t *table) row(cells ...string) {
	fmt.Fprintln(t.w, t.indent+strings.Join(cells, "\t"))
}

func (t *table) flush() { _ = t.w.Flush() }

// field prints an aligned "key: value" line.
func field(key string, val any) {
	fmt.Fprintf(stdout, "  %-14s %v\n", key+":", val)
}
