// SPDX-License-Identifier: LGPL-3.0-or-later
// Author: Michel Prunet - Safe Pic Technologies

// Package logger provides leveled diagnostics for tsmap-recover.
// Debug, Info and Warn are printed only in verbose mode; Error always is.
// Level tags are coloured when the output is a terminal.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	color             = isTerminal(os.Stderr)
)

var (
	debugTag = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	infoTag  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	warnTag  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorTag = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the writer for log lines. Defaults to os.Stderr.
// Colour is re-detected for the new writer.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	color = isTerminal(w)
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	logf(true, debugTag, "[DEBUG]", format, args...)
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	logf(true, infoTag, "[INFO]", format, args...)
}

// Warn prints a warning message if verbose mode is enabled.
func Warn(format string, args ...any) {
	logf(true, warnTag, "[WARN]", format, args...)
}

// Error prints an error message regardless of verbosity.
func Error(format string, args ...any) {
	logf(false, errorTag, "[ERROR]", format, args...)
}

func logf(gated bool, style lipgloss.Style, tag, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if gated && !verbose {
		return
	}
	if color {
		tag = style.Render(tag)
	}
	fmt.Fprintf(output, tag+" "+format+"\n", args...)
}
