// Package banner prints the compact per-decision progress lines spec.md §7
// calls for: one line per sync decision (skip, overwrite, delete, create,
// conflict), with a cross marker and the failure reason for anything that
// errored. It follows the teacher's cmd/output.go convention of using
// fatih/color for terminal-aware styling and mattn/go-isatty to decide
// whether color escapes are safe to emit.
package banner

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	isatty "github.com/mattn/go-isatty"
)

// Decision names one of the five outcomes the reconciliation engine's
// decision table can reach for a single node (spec.md §4.5, §7).
type Decision string

const (
	Skip      Decision = "skip"
	Overwrite Decision = "overwrite"
	Delete    Decision = "delete"
	Create    Decision = "create"
	Conflict  Decision = "conflict"
)

func (d Decision) paint() *color.Color {
	switch d {
	case Overwrite:
		return color.New(color.FgYellow)
	case Delete:
		return color.New(color.FgRed)
	case Create:
		return color.New(color.FgGreen)
	case Conflict:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.Faint)
	}
}

// Printer writes decision banners to Writer, coloring them when Writer is a
// terminal.
type Printer struct {
	Writer io.Writer
	color  bool
}

// NewPrinter builds a Printer over w, detecting terminal support the same
// way the teacher's CLI output layer does for its own colorized banners.
func NewPrinter(w io.Writer) *Printer {
	enabled := false
	if f, ok := w.(*os.File); ok {
		enabled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Printer{Writer: w, color: enabled}
}

// Report prints one banner line for relPath's decision. size is the number
// of bytes written (overwrite/create only; pass 0 otherwise). A non-nil err
// prints a cross marker and the failure reason instead of a checkmark.
func (p *Printer) Report(decision Decision, relPath string, size int64, err error) {
	if p == nil {
		return
	}

	mark := "✓"
	paint := decision.paint()
	if err != nil {
		mark = "✗"
		paint = color.New(color.FgRed, color.Bold)
	}

	line := fmt.Sprintf("%s %-9s %s", mark, decision, relPath)
	if size > 0 {
		line += fmt.Sprintf(" (%s)", humanize.Bytes(uint64(size)))
	}
	if err != nil {
		line += fmt.Sprintf(": %v", err)
	}

	if p.color {
		paint.Fprintln(p.Writer, line)
		return
	}
	fmt.Fprintln(p.Writer, line)
}
