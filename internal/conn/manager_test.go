package conn

import (
	"context"
	"testing"

	"github.com/drover-sh/drover/internal/host"
)

// fakeTransport records calls so manager behavior can be asserted without
// a real connection.
type fakeTransport struct {
	identity
	closed int
}

func (f *fakeTransport) Execute(ctx context.Context, cmdline string, onOutput OutputFunc) (*Result, error) {
	code := 0
	return &Result{Host: f.label(), Cmd: cmdline, ExitCode: &code}, nil
}

func (f *fakeTransport) CopyTo(ctx context.Context, localPath, remotePath string) error { return nil }

func (f *fakeTransport) CopyFrom(ctx context.Context, remotePath, localPath string) error {
	return nil
}

func (f *fakeTransport) MkdirAll(ctx context.Context, remotePath string) error { return nil }

func (f *fakeTransport) WaitForConnectionFailure(ctx context.Context, onOutput OutputFunc) bool {
	return true
}

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

func fakeDialer(dials *int) DialFunc {
	return func(ctx context.Context, h *host.Host, opts DialOptions) (Transport, error) {
		*dials++
		return &fakeTransport{}, nil
	}
}

func TestManagerDialsLazilyAndCaches(t *testing.T) {
	h := host.New("box1", host.Values{host.KeyIP: "10.0.0.5"}, nil)
	dials := 0
	m := NewManagerWithDialer(h, DialOptions{}, fakeDialer(&dials))

	if m.Connected() {
		t.Fatal("connected before first use")
	}
	if dials != 0 {
		t.Fatalf("dialed %d times before first use", dials)
	}

	tr1, err := m.Connection(context.Background())
	if err != nil {
		t.Fatalf("Connection: %v", err)
	}
	tr2, err := m.Connection(context.Background())
	if err != nil {
		t.Fatalf("Connection: %v", err)
	}

	if dials != 1 {
		t.Errorf("dialed %d times, want 1", dials)
	}
	if tr1 != tr2 {
		t.Error("second access returned a different transport")
	}
	if !m.Connected() {
		t.Error("not connected after dial")
	}
}

func TestManagerPicksLocalTransport(t *testing.T) {
	h := host.New(host.LocalAlias, host.Values{host.KeyHypervisor: "none"}, nil)
	dials := 0
	m := NewManagerWithDialer(h, DialOptions{}, fakeDialer(&dials))

	tr, err := m.Connection(context.Background())
	if err != nil {
		t.Fatalf("Connection: %v", err)
	}
	if _, ok := tr.(*Local); !ok {
		t.Fatalf("transport is %T, want *Local", tr)
	}
	if dials != 0 {
		t.Errorf("dialed %d times for a local host", dials)
	}
}

func TestManagerSyncsIdentityOnAccess(t *testing.T) {
	h := host.New("box1", host.Values{host.KeyIP: "10.0.0.5"}, nil)
	dials := 0
	m := NewManagerWithDialer(h, DialOptions{}, fakeDialer(&dials))

	if _, err := m.Connection(context.Background()); err != nil {
		t.Fatalf("Connection: %v", err)
	}

	// A floating address reassigned while the connection is live must be
	// visible on the cached handle at the next access.
	h.IP = "10.0.0.99"
	h.VMHostname = "box1-vm"

	tr, err := m.Connection(context.Background())
	if err != nil {
		t.Fatalf("Connection: %v", err)
	}
	ip, hostname, vmHostname := tr.Identity()
	if ip != "10.0.0.99" || hostname != "box1" || vmHostname != "box1-vm" {
		t.Errorf("identity = (%q, %q, %q)", ip, hostname, vmHostname)
	}
}

func TestManagerCloseDropsAndRebuilds(t *testing.T) {
	h := host.New("box1", host.Values{host.KeyIP: "10.0.0.5"}, nil)
	dials := 0
	m := NewManagerWithDialer(h, DialOptions{}, fakeDialer(&dials))

	tr, err := m.Connection(context.Background())
	if err != nil {
		t.Fatalf("Connection: %v", err)
	}
	fake := tr.(*fakeTransport)

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fake.closed != 1 {
		t.Errorf("transport closed %d times, want 1", fake.closed)
	}
	if m.Connected() {
		t.Error("still connected after Close")
	}

	// Closing with no handle is a no-op.
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if fake.closed != 1 {
		t.Errorf("transport closed %d times after double close, want 1", fake.closed)
	}

	if _, err := m.Connection(context.Background()); err != nil {
		t.Fatalf("Connection after Close: %v", err)
	}
	if dials != 2 {
		t.Errorf("dialed %d times, want 2", dials)
	}
}

func TestManagerReadsPreferenceFromSettings(t *testing.T) {
	h := host.New("box1", host.Values{
		host.KeyIP:       "10.0.0.5",
		host.KeyConnPref: "vmhostname",
	}, nil)

	var got DialOptions
	m := NewManagerWithDialer(h, DialOptions{}, func(ctx context.Context, h *host.Host, opts DialOptions) (Transport, error) {
		got = opts
		return &fakeTransport{}, nil
	})
	if _, err := m.Connection(context.Background()); err != nil {
		t.Fatalf("Connection: %v", err)
	}
	if got.Preference != "vmhostname" {
		t.Errorf("preference = %q, want %q", got.Preference, "vmhostname")
	}

	// An explicit option wins over the host setting.
	m2 := NewManagerWithDialer(h, DialOptions{Preference: "ip"}, func(ctx context.Context, h *host.Host, opts DialOptions) (Transport, error) {
		got = opts
		return &fakeTransport{}, nil
	})
	if _, err := m2.Connection(context.Background()); err != nil {
		t.Fatalf("Connection: %v", err)
	}
	if got.Preference != "ip" {
		t.Errorf("preference = %q, want %q", got.Preference, "ip")
	}
}
