package conn

import (
	"fmt"
	"strings"
	"time"
)

// Result captures the outcome of one command execution or transfer on a
// host. An absent (nil) exit code signals a broken channel, not an error
// code.
type Result struct {
	Host     string
	Cmd      string
	ExitCode *int
	Stdout   string
	Stderr   string
	Combined string
	Elapsed  time.Duration

	// Null marks a result for an operation that was intentionally not
	// executed (dry-run). No exit code is meaningful.
	Null bool
}

// NullResult builds the placeholder result for a dry-run.
func NullResult(hostname, cmdline string) *Result {
	return &Result{Host: hostname, Cmd: cmdline, Null: true}
}

// OKResult builds a zero-exit result with a message, used by transfer
// paths that finish without running a remote command.
func OKResult(hostname, msg string) *Result {
	code := 0
	return &Result{Host: hostname, ExitCode: &code, Stdout: msg, Combined: msg}
}

// Exited reports whether an exit code was captured.
func (r *Result) Exited() bool {
	return r.ExitCode != nil
}

// ExitedWith reports whether the captured exit code is a member of codes.
// A result without an exit code is never a member.
func (r *Result) ExitedWith(codes []int) bool {
	if r.ExitCode == nil {
		return false
	}
	for _, c := range codes {
		if *r.ExitCode == c {
			return true
		}
	}
	return false
}

// LastLines returns the trailing n lines of combined output, for inclusion
// in failure messages. n <= 0 returns "".
func (r *Result) LastLines(n int) string {
	if n <= 0 {
		return ""
	}
	out := strings.TrimRight(r.Combined, "\n")
	if out == "" {
		return ""
	}
	lines := strings.Split(out, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// String summarizes the result for log lines.
func (r *Result) String() string {
	switch {
	case r.Null:
		return fmt.Sprintf("%s: skipped (dry run)", r.Host)
	case r.ExitCode == nil:
		return fmt.Sprintf("%s: no exit code", r.Host)
	default:
		return fmt.Sprintf("%s: exit %d", r.Host, *r.ExitCode)
	}
}
