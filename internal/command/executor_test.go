package command

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/drover-sh/drover/internal/conn"
	"github.com/drover-sh/drover/internal/host"
	"github.com/drover-sh/drover/internal/output"
)

func intp(n int) *int { return &n }

// fakeTransport scripts the transport side of the execution protocol.
type fakeTransport struct {
	exitCode *int
	combined string

	waitResult bool
	waitCalls  int
	execCalls  int
	streaming  bool
}

func (f *fakeTransport) Execute(ctx context.Context, cmdline string, onOutput conn.OutputFunc) (*conn.Result, error) {
	f.execCalls++
	f.streaming = onOutput != nil
	if onOutput != nil && f.combined != "" {
		onOutput([]byte(f.combined))
	}
	return &conn.Result{
		Host:     "box1",
		Cmd:      cmdline,
		ExitCode: f.exitCode,
		Combined: f.combined,
	}, nil
}

func (f *fakeTransport) CopyTo(ctx context.Context, localPath, remotePath string) error { return nil }

func (f *fakeTransport) CopyFrom(ctx context.Context, remotePath, localPath string) error {
	return nil
}

func (f *fakeTransport) MkdirAll(ctx context.Context, remotePath string) error { return nil }

func (f *fakeTransport) WaitForConnectionFailure(ctx context.Context, onOutput conn.OutputFunc) bool {
	f.waitCalls++
	return f.waitResult
}

func (f *fakeTransport) SyncIdentity(ip, hostname, vmHostname string) {}

func (f *fakeTransport) Identity() (ip, hostname, vmHostname string) {
	return "10.0.0.5", "box1", ""
}

func (f *fakeTransport) Close() error { return nil }

func newTestExecutor(ft *fakeTransport) (*Executor, *conn.Manager, *bytes.Buffer) {
	h := host.New("box1", host.Values{host.KeyIP: "10.0.0.5"}, nil)
	m := conn.NewManagerWithDialer(h, conn.DialOptions{}, func(ctx context.Context, h *host.Host, opts conn.DialOptions) (conn.Transport, error) {
		return ft, nil
	})
	buf := &bytes.Buffer{}
	out := output.New(buf)
	out.Color = false
	return NewExecutor(h, m, out), m, buf
}

func TestExecDryRunNeverConnects(t *testing.T) {
	h := host.New("box1", host.Values{host.KeyIP: "10.0.0.5"}, nil)
	m := conn.NewManagerWithDialer(h, conn.DialOptions{}, func(ctx context.Context, h *host.Host, opts conn.DialOptions) (conn.Transport, error) {
		t.Fatal("dry run dialed the host")
		return nil, nil
	})
	buf := &bytes.Buffer{}
	out := output.New(buf)
	out.Color = false
	e := NewExecutor(h, m, out)

	// Per-call flag and process-wide default both short-circuit, even
	// combined with options that would otherwise touch the connection.
	for _, opts := range []Options{
		{DryRun: true},
		{DryRun: true, ResetConnection: true, ExpectConnectionFailure: true},
	} {
		res, err := e.Exec(context.Background(), Shell("rm -rf /tmp/x"), opts)
		if err != nil {
			t.Fatalf("Exec: %v", err)
		}
		if !res.Null {
			t.Error("dry run did not return a null result")
		}
	}

	e.DryRun = true
	res, err := e.Exec(context.Background(), Shell("uname"), Options{})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !res.Null {
		t.Error("process-wide dry run did not return a null result")
	}
}

func TestExecExitCodePolicy(t *testing.T) {
	tests := []struct {
		name    string
		code    *int
		opts    Options
		wantErr bool
	}{
		{"zero passes by default", intp(0), Options{}, false},
		{"nonzero fails by default", intp(1), Options{}, true},
		{"member of explicit set", intp(2), Options{AcceptableExitCodes: []int{0, 2}}, false},
		{"non-member of explicit set", intp(1), Options{AcceptableExitCodes: []int{0, 2}}, true},
		{"accept all takes anything", intp(7), Options{AcceptAllExitCodes: true}, false},
		{"empty set accepts nothing", intp(0), Options{AcceptableExitCodes: []int{}}, true},
		{"absent code fails", nil, Options{}, true},
		{"absent code fails even with accept all", nil, Options{AcceptAllExitCodes: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{exitCode: tt.code}
			e, _, _ := newTestExecutor(ft)

			_, err := e.Exec(context.Background(), Shell("true"), tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var exitErr *ExitError
				if !errors.As(err, &exitErr) {
					t.Errorf("error is %T, want *ExitError", err)
				}
			}
		})
	}
}

func TestExecExplicitListOverridesAcceptAll(t *testing.T) {
	ft := &fakeTransport{exitCode: intp(1)}
	e, _, buf := newTestExecutor(ft)

	_, err := e.Exec(context.Background(), Shell("true"), Options{
		AcceptAllExitCodes:  true,
		AcceptableExitCodes: []int{0},
	})
	if err == nil {
		t.Fatal("explicit list did not override accept-all")
	}
	if !strings.Contains(buf.String(), "honoring the list") {
		t.Errorf("missing conflict diagnostic in output:\n%s", buf.String())
	}
}

func TestExecFailureMessage(t *testing.T) {
	ft := &fakeTransport{
		exitCode: intp(2),
		combined: "line1\nline2\nline3\n",
	}
	e, _, _ := newTestExecutor(ft)

	_, err := e.Exec(context.Background(), Shell("make test"), Options{TraceLimit: 2})
	if err == nil {
		t.Fatal("expected failure")
	}
	msg := err.Error()
	if !strings.Contains(msg, "make test") {
		t.Errorf("message lacks command line: %s", msg)
	}
	if !strings.Contains(msg, "line2\nline3") {
		t.Errorf("message lacks trailing output: %s", msg)
	}
	if strings.Contains(msg, "line1") {
		t.Errorf("trace not capped at 2 lines: %s", msg)
	}
}

func TestExecExpectConnectionFailure(t *testing.T) {
	t.Run("drop during command", func(t *testing.T) {
		ft := &fakeTransport{exitCode: nil}
		e, _, _ := newTestExecutor(ft)

		_, err := e.Exec(context.Background(), Shell("reboot"), Options{ExpectConnectionFailure: true})
		if err != nil {
			t.Fatalf("Exec: %v", err)
		}
		if ft.waitCalls != 0 {
			t.Errorf("waited %d times after an in-command drop", ft.waitCalls)
		}
	})

	t.Run("drop after command", func(t *testing.T) {
		ft := &fakeTransport{exitCode: intp(0), waitResult: true}
		e, _, _ := newTestExecutor(ft)

		_, err := e.Exec(context.Background(), Shell("reboot"), Options{ExpectConnectionFailure: true})
		if err != nil {
			t.Fatalf("Exec: %v", err)
		}
		if ft.waitCalls != 1 {
			t.Errorf("waited %d times, want 1", ft.waitCalls)
		}
	})

	t.Run("drop never materializes", func(t *testing.T) {
		ft := &fakeTransport{exitCode: intp(0), waitResult: false}
		e, _, _ := newTestExecutor(ft)

		_, err := e.Exec(context.Background(), Shell("reboot"), Options{ExpectConnectionFailure: true})
		if err == nil {
			t.Fatal("missing failure for a disruption that never came")
		}
	})
}

func TestExecResetConnection(t *testing.T) {
	// A failing exit code is irrelevant under reset: evaluation is
	// skipped and the connection is torn down for lazy rebuild.
	ft := &fakeTransport{exitCode: intp(1)}
	e, m, _ := newTestExecutor(ft)

	res, err := e.Exec(context.Background(), Shell("reboot"), Options{ResetConnection: true})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res == nil || res.ExitCode == nil || *res.ExitCode != 1 {
		t.Errorf("result = %+v", res)
	}
	if m.Connected() {
		t.Error("connection still cached after reset")
	}
}

func TestExecSilent(t *testing.T) {
	ft := &fakeTransport{exitCode: intp(1), combined: "noise\n"}
	e, _, buf := newTestExecutor(ft)

	_, err := e.Exec(context.Background(), Shell("probe"), Options{Silent: true})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if ft.streaming {
		t.Error("silent execution attached an output callback")
	}
	if buf.Len() != 0 {
		t.Errorf("silent execution wrote output:\n%s", buf.String())
	}
}

func TestProgramCommandLine(t *testing.T) {
	tests := []struct {
		name string
		prog Program
		want string
	}{
		{
			"plain",
			Program{Path: "ls", Args: []string{"-la"}},
			"ls -la",
		},
		{
			"quoted argument",
			Program{Path: "echo", Args: []string{"hello world"}},
			"echo 'hello world'",
		},
		{
			"env sorted",
			Program{Path: "run", Env: map[string]string{"B": "2", "A": "1"}},
			"A=1 B=2 run",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := host.New("box1", nil, nil)
			if got := tt.prog.CommandLine(h); got != tt.want {
				t.Errorf("CommandLine() = %q, want %q", got, tt.want)
			}
		})
	}
}
