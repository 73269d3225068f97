// Package host models a logical target machine for the harness: its
// identity, a merged two-level configuration view, and the platform variant
// that shapes command rendering and file-transfer behavior.
package host

// Well-known configuration keys. Host-level values shadow global ones.
const (
	KeyPlatform    = "platform"
	KeyHypervisor  = "hypervisor"
	KeyUser        = "user"
	KeyPassword    = "password"
	KeyIP          = "ip"
	KeyVMHostname  = "vmhostname"
	KeyPort        = "port"
	KeyKeys        = "keys"
	KeySSHConfig   = "ssh-config"
	KeyHVSSHConfig = "hypervisor-ssh-config"
	KeyConnPref    = "connection-preference"
)

// LocalAlias is the canonical host name that, combined with hypervisor
// "none", selects the local transport instead of SSH.
const LocalAlias = "localhost"

// Host is a logical remote (or local) machine. It is created once per
// machine by New and lives for the duration of a harness run.
//
// The identity fields are mutable: orchestration layers reassign IP after
// reboots and set VMHostname after provisioning. The connection layer is
// responsible for keeping its cached handle in sync with them.
type Host struct {
	// Name is the declared host name and never changes.
	Name string

	// IP is the reachable address, when one is known.
	IP string

	// VMHostname overrides Name as the hostname when set.
	VMHostname string

	Platform *Platform

	settings *Settings
}

// New builds a Host: it selects the platform variant from the declared
// platform tag, merges the variant defaults under the declared values
// (declared wins), copies both configuration levels, and runs the variant
// init hook. The caller's maps are never aliased.
func New(name string, declared, global Values) *Host {
	p := platformFor(stringValue(declared, KeyPlatform), declared)

	merged := copyValues(p.defaults)
	for k, v := range declared {
		merged[k] = v
	}

	h := &Host{
		Name:     name,
		Platform: p,
		settings: NewSettings(merged, global),
	}
	h.IP = h.settings.String(KeyIP)
	h.VMHostname = h.settings.String(KeyVMHostname)

	if p.initHost != nil {
		p.initHost(h)
	}
	return h
}

// Settings returns the host's merged configuration view.
func (h *Host) Settings() *Settings {
	return h.settings
}

// Hostname returns the override hostname when set, else the declared name.
func (h *Host) Hostname() string {
	if h.VMHostname != "" {
		return h.VMHostname
	}
	return h.Name
}

// ReachableAddress is the address preferred for contacting the host:
// the IP when known, falling back to the hostname.
func (h *Host) ReachableAddress() string {
	if h.IP != "" {
		return h.IP
	}
	return h.Hostname()
}

// User returns the configured login user, defaulting to root.
func (h *Host) User() string {
	if u := h.settings.String(KeyUser); u != "" {
		return u
	}
	return "root"
}

// Hypervisor returns the host's hypervisor tag ("" when undeclared).
func (h *Host) Hypervisor() string {
	return h.settings.String(KeyHypervisor)
}

// Local reports whether the host should be driven through the local
// transport: only when the hypervisor tag is explicitly "none" and the
// declared name is the canonical local alias.
func (h *Host) Local() bool {
	return h.Hypervisor() == "none" && h.Name == LocalAlias
}

// Keys returns the configured private key paths, in preference order.
func (h *Host) Keys() []string {
	return h.settings.StringSlice(KeyKeys)
}

// SSHPort returns the configured SSH port, or 0 when unset.
func (h *Host) SSHPort() int {
	return h.settings.Int(KeyPort, 0)
}

func stringValue(v Values, key string) string {
	s, _ := v[key].(string)
	return s
}
