// SPDX-License-Identifier: LGPL-3.0-or-later
// Author: Michel Prunet - Safe Pic Technologies
package tsmap

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	styleRed = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleGrn = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleYel = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleCyn = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// Printer writes the human-facing lines of a run. Labels are coloured only
// when the writer is a terminal.
type Printer struct {
	w     io.Writer
	color bool
}

func NewPrinter(w io.Writer) *Printer {
	f, ok := w.(*os.File)
	return &Printer{w: w, color: ok && term.IsTerminal(int(f.Fd()))}
}

func (p *Printer) label(s lipgloss.Style, text string) string {
	if p.color {
		return s.Render(text)
	}
	return text
}

// Progress prints a materializer progress message.
func (p *Printer) Progress(msg string) {
	fmt.Fprintf(p.w, "%s: %s\n", p.label(styleGrn, "Written"), msg)
}

// Event prints a crawler event.
func (p *Printer) Event(msg string) {
	fmt.Fprintln(p.w, msg)
}

// Summary prints counts and every failure of res.
func (p *Printer) Summary(res *Result) {
	if res == nil {
		return
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(p.w, "%s (no content): %s\n", p.label(styleYel, "Skipped"), s)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(p.w, "%s: %v\n", p.label(styleRed, "Failed"), f)
	}
	fmt.Fprintf(p.w, "\n%s: %d written, %d skipped, %d failed\n",
		p.label(styleCyn, "Summary"), res.Written, len(res.Skipped), len(res.Failures))
}

// CrawlSummary prints per-script totals.
func (p *Printer) CrawlSummary(reports []ScriptReport) {
	written, withMap := 0, 0
	for _, r := range reports {
		if r.Map != "" {
			withMap++
		}
		if r.Result != nil {
			written += r.Result.Written
			for _, f := range r.Result.Failures {
				fmt.Fprintf(p.w, "%s: %v\n", p.label(styleRed, "Failed"), f)
			}
		}
	}
	fmt.Fprintf(p.w, "\n%s: %d scripts, %d with source maps, %d sources written\n",
		p.label(styleCyn, "Done"), len(reports), withMap, written)
}
