package command

import (
	"context"
	"fmt"
	"time"

	"github.com/drover-sh/drover/internal/conn"
	"github.com/drover-sh/drover/internal/host"
	"github.com/drover-sh/drover/internal/output"
)

// DefaultTraceLimit is how many trailing output lines failure messages
// carry when no per-call limit is given.
const DefaultTraceLimit = 10

// Options control one Exec call.
type Options struct {
	// DryRun skips execution and returns a NullResult. OR-ed with the
	// executor's process-wide default.
	DryRun bool

	// Silent omits the output callback and skips all exit-code
	// evaluation.
	Silent bool

	// AcceptAllExitCodes treats every exit code as success. Overridden,
	// with a diagnostic, by a non-empty AcceptableExitCodes.
	AcceptAllExitCodes bool

	// AcceptableExitCodes is the set of exit codes treated as success.
	// nil means the default set {0, absent-when-expected}; an explicitly
	// empty non-nil list accepts nothing.
	AcceptableExitCodes []int

	// ExpectConnectionFailure marks a command expected to break the
	// channel (e.g. a reboot trigger).
	ExpectConnectionFailure bool

	// ResetConnection closes the connection right after execution and
	// skips exit-code evaluation.
	ResetConnection bool

	// TraceLimit caps the trailing output lines included in failure
	// messages. Zero means DefaultTraceLimit.
	TraceLimit int
}

// ExitError reports a command whose outcome violated the exit-code policy.
// The message always carries the rendered command line and the trailing
// output slice.
type ExitError struct {
	CmdLine string
	Reason  string
	Result  *conn.Result
	Trace   int
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q failed on %s: %s", e.CmdLine, e.Result.Host, e.Reason)
	if trace := e.Result.LastLines(e.Trace); trace != "" {
		msg += fmt.Sprintf("\nlast %d line(s) of output:\n%s", e.Trace, trace)
	}
	return msg
}

// Executor runs commands against one host through its connection manager.
type Executor struct {
	Host *host.Host
	Conn *conn.Manager
	Out  *output.Output

	// DryRun is the process-wide dry-run default.
	DryRun bool

	// TraceLimit is the default trailing-output cap for failures.
	TraceLimit int
}

// NewExecutor creates an Executor for a host.
func NewExecutor(h *host.Host, cm *conn.Manager, out *output.Output) *Executor {
	return &Executor{
		Host:       h,
		Conn:       cm,
		Out:        out,
		TraceLimit: DefaultTraceLimit,
	}
}

// Exec renders cmd for the host and executes it under opts. It returns the
// Result on every non-failing path, including the dry-run and
// reset-connection short-circuits.
func (e *Executor) Exec(ctx context.Context, cmd Command, opts Options) (*conn.Result, error) {
	cmdline := cmd.CommandLine(e.Host)

	if opts.DryRun || e.DryRun {
		e.Out.DryRun(e.Host.Hostname(), cmdline)
		return conn.NullResult(e.Host.Hostname(), cmdline), nil
	}

	tr, err := e.Conn.Connection(ctx)
	if err != nil {
		return nil, err
	}

	var onOutput conn.OutputFunc
	if !opts.Silent {
		e.Out.Command(e.Host.Hostname(), cmdline)
		onOutput = e.Out.Stream
	}

	start := time.Now()
	res, err := tr.Execute(ctx, cmdline, onOutput)
	if err != nil {
		return nil, fmt.Errorf("execute on %s: %w", e.Host.Hostname(), err)
	}
	res.Elapsed = time.Since(start)
	if !opts.Silent {
		e.Out.Timing(e.Host.Hostname(), res.Elapsed)
	}

	if opts.ResetConnection {
		if err := e.Conn.Close(); err != nil {
			e.Out.Warnf("%s: close connection: %v", e.Host.Hostname(), err)
		}
		return res, nil
	}

	if opts.Silent {
		return res, nil
	}

	if err := e.evaluate(ctx, tr, cmdline, res, opts); err != nil {
		return res, err
	}
	return res, nil
}

// evaluate applies the exit-code and connection-failure policy.
func (e *Executor) evaluate(ctx context.Context, tr conn.Transport, cmdline string, res *conn.Result, opts Options) error {
	trace := opts.TraceLimit
	if trace == 0 {
		trace = e.TraceLimit
	}
	if trace == 0 {
		trace = DefaultTraceLimit
	}

	if !res.Exited() {
		if !opts.ExpectConnectionFailure {
			return &ExitError{
				CmdLine: cmdline,
				Reason:  "host returned no exit code; the channel broke unexpectedly",
				Result:  res,
				Trace:   trace,
			}
		}
		// The expected disruption materialized during the command.
		return nil
	}

	if opts.ExpectConnectionFailure {
		// The command finished normally; actively wait (bounded) for
		// the expected disruption.
		if !tr.WaitForConnectionFailure(ctx, e.Out.Stream) {
			return &ExitError{
				CmdLine: cmdline,
				Reason:  "expected connection failure never materialized",
				Result:  res,
				Trace:   trace,
			}
		}
		return nil
	}

	acceptAll := opts.AcceptAllExitCodes
	if acceptAll && len(opts.AcceptableExitCodes) > 0 {
		// Explicit list wins over blanket acceptance.
		e.Out.Warnf("%s: both accept-all and an explicit exit-code list were given; honoring the list", e.Host.Hostname())
		acceptAll = false
	}
	if acceptAll {
		return nil
	}

	codes := opts.AcceptableExitCodes
	if codes == nil {
		codes = []int{0}
	}
	if !res.ExitedWith(codes) {
		return &ExitError{
			CmdLine: cmdline,
			Reason:  fmt.Sprintf("exit code %d not in acceptable set %v", *res.ExitCode, codes),
			Result:  res,
			Trace:   trace,
		}
	}
	return nil
}
