package conn

import (
	"context"

	"github.com/drover-sh/drover/internal/host"
)

// Manager owns the single live connection of one host. The handle is built
// lazily on first use, cached, and rebuilt lazily after Close. Access is
// not internally synchronized beyond the identity fields: callers serialize
// use of one host themselves.
type Manager struct {
	host *host.Host
	opts DialOptions
	tr   Transport

	// dialRemote is swapped in tests to avoid real SSH dials.
	dialRemote func(ctx context.Context, h *host.Host, opts DialOptions) (Transport, error)
}

// DialFunc builds the remote transport for a host.
type DialFunc func(ctx context.Context, h *host.Host, opts DialOptions) (Transport, error)

// NewManager creates the connection manager for a host.
func NewManager(h *host.Host, opts DialOptions) *Manager {
	return NewManagerWithDialer(h, opts, func(ctx context.Context, h *host.Host, opts DialOptions) (Transport, error) {
		return DialRemote(ctx, h, opts)
	})
}

// NewManagerWithDialer creates a Manager with a custom dial function, for
// tests and alternative transports.
func NewManagerWithDialer(h *host.Host, opts DialOptions, dial DialFunc) *Manager {
	if opts.Preference == "" {
		opts.Preference = h.Settings().String(host.KeyConnPref)
	}
	return &Manager{
		host:       h,
		opts:       opts,
		dialRemote: dial,
	}
}

// Connection returns the cached transport, building it on first use. The
// handle's identity fields are refreshed from the host before it is handed
// out: connections are long-lived and must track renames, e.g. a floating
// address reassigned after a reboot.
func (m *Manager) Connection(ctx context.Context) (Transport, error) {
	if m.tr != nil {
		m.syncIdentity()
		return m.tr, nil
	}

	var (
		tr  Transport
		err error
	)
	if m.host.Local() {
		tr = NewLocal(m.host)
	} else {
		tr, err = m.dialRemote(ctx, m.host, m.opts)
		if err != nil {
			return nil, err
		}
	}
	m.tr = tr
	m.syncIdentity()
	return m.tr, nil
}

// Connected reports whether a live handle is cached.
func (m *Manager) Connected() bool {
	return m.tr != nil
}

// Close closes the cached transport, refreshes its identity fields from the
// host one last time, and drops the reference so the next access rebuilds
// lazily. Closing with no handle is a no-op.
func (m *Manager) Close() error {
	if m.tr == nil {
		return nil
	}
	err := m.tr.Close()
	m.syncIdentity()
	m.tr = nil
	return err
}

// syncIdentity pushes the host's current identity into the cached handle
// when they differ. Stale identity on a live handle indicates a rename the
// handle has not seen yet.
func (m *Manager) syncIdentity() {
	ip, hostname, vmHostname := m.tr.Identity()
	if ip != m.host.IP || hostname != m.host.Name || vmHostname != m.host.VMHostname {
		m.tr.SyncIdentity(m.host.IP, m.host.Name, m.host.VMHostname)
	}
}
