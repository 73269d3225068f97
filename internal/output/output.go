// Package output renders harness progress, diagnostics, and streamed
// command output to a terminal.
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"charm.land/lipgloss/v2"
)

var (
	styleHost   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00E5FF")).Bold(true)
	styleDry    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	styleWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FDFF90"))
	styleErr    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4672"))
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	styleSubtle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

// Output writes formatted harness output to a single writer. Methods are
// safe for concurrent use so parallel hosts can share one Output.
type Output struct {
	mu sync.Mutex
	w  io.Writer

	// Color disables styling when false (pipes, CI logs).
	Color bool
}

// New creates an Output writing to w with color enabled.
func New(w io.Writer) *Output {
	return &Output{w: w, Color: true}
}

func (o *Output) render(s lipgloss.Style, text string) string {
	if !o.Color {
		return text
	}
	return s.Render(text)
}

func (o *Output) line(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.w, text)
}

// Command announces a command about to run on a host.
func (o *Output) Command(hostname, cmdline string) {
	o.line(fmt.Sprintf("%s %s", o.render(styleHost, hostname+":"), cmdline))
}

// DryRun echoes the command line that would have run.
func (o *Output) DryRun(hostname, cmdline string) {
	o.line(o.render(styleDry, fmt.Sprintf("%s: dry run: %s", hostname, cmdline)))
}

// Timing reports how long an operation took.
func (o *Output) Timing(hostname string, d time.Duration) {
	o.line(o.render(styleSubtle, fmt.Sprintf("%s: completed in %.2fs", hostname, d.Seconds())))
}

// Infof writes a plain informational line.
func (o *Output) Infof(format string, args ...any) {
	o.line(fmt.Sprintf(format, args...))
}

// Successf writes a success line.
func (o *Output) Successf(format string, args ...any) {
	o.line(o.render(styleOK, fmt.Sprintf(format, args...)))
}

// Warnf writes a diagnostic warning line.
func (o *Output) Warnf(format string, args ...any) {
	o.line(o.render(styleWarn, "warning: "+fmt.Sprintf(format, args...)))
}

// Errorf writes an error line.
func (o *Output) Errorf(format string, args ...any) {
	o.line(o.render(styleErr, fmt.Sprintf(format, args...)))
}

// Stream writes raw command output as it arrives, unstyled.
func (o *Output) Stream(chunk []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.w.Write(chunk)
}
