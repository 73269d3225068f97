// Package waiter polls TCP port availability on a host with bounded
// attempts, e.g. to wait for sshd to come back after a reboot.
package waiter

import (
	"fmt"
	"net"
	"time"

	"github.com/drover-sh/drover/internal/host"
	"github.com/drover-sh/drover/internal/output"
)

// DefaultAttempts is the retry budget for WaitForPort when the caller
// passes 0.
const DefaultAttempts = 15

// probeTimeout is the hard per-attempt ceiling on one TCP probe. Timeouts
// are enforced per attempt, not cumulatively.
const probeTimeout = 30 * time.Second

// Test seams.
var (
	dialTimeout = net.DialTimeout
	sleep       = time.Sleep
)

// Waiter probes ports on one host.
type Waiter struct {
	Host *host.Host
	Out  *output.Output
}

// New creates a Waiter for a host.
func New(h *host.Host, out *output.Output) *Waiter {
	return &Waiter{Host: h, Out: out}
}

// PortOpen performs one bounded connect-and-close probe. Refused, timed
// out, and unreachable conditions all report a closed port rather than an
// error.
func (w *Waiter) PortOpen(port int) bool {
	addr := net.JoinHostPort(w.Host.ReachableAddress(), fmt.Sprintf("%d", port))
	c, err := dialTimeout("tcp", addr, probeTimeout)
	if err != nil {
		return false
	}
	c.Close()
	return true
}

// WaitForPort retries PortOpen up to attempts times (DefaultAttempts when
// 0) on a fibonacci-spaced backoff schedule. It stops probing at the first
// success and reports whether the port opened within the budget.
func (w *Waiter) WaitForPort(port, attempts int) bool {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	start := time.Now()
	prev, cur := 0, 1
	for i := 0; i < attempts; i++ {
		if w.PortOpen(port) {
			w.Out.Successf("%s: port %d open after %.2fs", w.Host.Hostname(), port, time.Since(start).Seconds())
			return true
		}
		if i < attempts-1 {
			sleep(time.Duration(cur) * time.Second)
			prev, cur = cur, prev+cur
		}
	}
	w.Out.Errorf("%s: timed out waiting for port %d", w.Host.Hostname(), port)
	return false
}
