// Package conn provides the transport layer for hosts: an SSH-backed remote
// transport, a local subprocess transport, and a per-host Manager that
// builds the one live connection lazily and keeps its identity fields in
// sync with the owning host.
package conn

import (
	"context"
	"strings"
	"sync"
)

// OutputFunc receives command output chunks as they are produced.
type OutputFunc func(chunk []byte)

// Transport is a live channel to a host. Exactly one of the two variants
// (remote SSH, local) backs it. A Transport carries mutable identity fields
// that must always mirror the owning host's current values.
type Transport interface {
	// Execute runs a full command line and returns its Result. The
	// returned error covers transport-level failures (no session could be
	// opened); a command that ran but reported no exit status yields a
	// Result with a nil ExitCode and no error.
	Execute(ctx context.Context, cmdline string, onOutput OutputFunc) (*Result, error)

	// CopyTo uploads a local file or directory tree to the host.
	CopyTo(ctx context.Context, localPath, remotePath string) error

	// CopyFrom downloads a remote file or directory tree from the host.
	CopyFrom(ctx context.Context, remotePath, localPath string) error

	// MkdirAll creates a directory and its parents on the host.
	MkdirAll(ctx context.Context, remotePath string) error

	// WaitForConnectionFailure blocks, bounded, until the channel is
	// observed to break. It reports whether the disruption materialized.
	WaitForConnectionFailure(ctx context.Context, onOutput OutputFunc) bool

	// SyncIdentity updates the transport's identity fields from the
	// owning host's current address, hostname, and override hostname.
	SyncIdentity(ip, hostname, vmHostname string)

	// Identity returns the transport's current identity fields.
	Identity() (ip, hostname, vmHostname string)

	Close() error
}

// identity is the mutable identity triple shared by both transport variants.
type identity struct {
	mu         sync.Mutex
	ip         string
	hostname   string
	vmHostname string
}

func (id *identity) SyncIdentity(ip, hostname, vmHostname string) {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.ip = ip
	id.hostname = hostname
	id.vmHostname = vmHostname
}

func (id *identity) Identity() (ip, hostname, vmHostname string) {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.ip, id.hostname, id.vmHostname
}

// label returns the name used to tag results and log lines.
func (id *identity) label() string {
	id.mu.Lock()
	defer id.mu.Unlock()
	if id.vmHostname != "" {
		return id.vmHostname
	}
	return id.hostname
}

// collector accumulates stdout, stderr, and interleaved combined output,
// forwarding chunks to an optional callback. Safe for concurrent writes
// from the stdout and stderr streams of one session.
type collector struct {
	mu       sync.Mutex
	stdout   strings.Builder
	stderr   strings.Builder
	combined strings.Builder
	onOutput OutputFunc
}

func (c *collector) writer(stderr bool) *collectorStream {
	return &collectorStream{c: c, stderr: stderr}
}

type collectorStream struct {
	c      *collector
	stderr bool
}

func (s *collectorStream) Write(p []byte) (int, error) {
	s.c.mu.Lock()
	if s.stderr {
		s.c.stderr.Write(p)
	} else {
		s.c.stdout.Write(p)
	}
	s.c.combined.Write(p)
	cb := s.c.onOutput
	s.c.mu.Unlock()
	if cb != nil {
		cb(p)
	}
	return len(p), nil
}

func (c *collector) fill(r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.Stdout = c.stdout.String()
	r.Stderr = c.stderr.String()
	r.Combined = c.combined.String()
}
