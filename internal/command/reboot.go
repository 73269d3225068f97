package command

import (
	"context"
	"fmt"

	"github.com/drover-sh/drover/internal/waiter"
)

// RebootError reports a host that never came back after a reboot trigger.
type RebootError struct {
	Host string
	Port int
}

func (e *RebootError) Error() string {
	return fmt.Sprintf("host %s did not reopen port %d after reboot", e.Host, e.Port)
}

// Reboot triggers a reboot on the host, drops the connection, and waits for
// the SSH port to come back. The trigger runs with ResetConnection since it
// is expected to disrupt the channel; a trigger that finishes without
// dropping the channel is only worth a warning as long as the host returns.
func (e *Executor) Reboot(ctx context.Context, w *waiter.Waiter, port, attempts int) error {
	res, err := e.Exec(ctx, Shell("reboot"), Options{ResetConnection: true})
	if err != nil {
		return fmt.Errorf("trigger reboot on %s: %w", e.Host.Hostname(), err)
	}
	if res.Null {
		return nil
	}
	if res.ExitedWith([]int{0}) {
		// The session survived long enough to report success; the host
		// may not have gone down yet, which is benign.
		e.Out.Warnf("%s: reboot command exited cleanly before the channel dropped", e.Host.Hostname())
	}

	if !w.WaitForPort(port, attempts) {
		return &RebootError{Host: e.Host.Hostname(), Port: port}
	}
	return nil
}
