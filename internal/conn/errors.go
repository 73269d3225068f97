package conn

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ConnectError wraps a connection error with a user-friendly hint.
type ConnectError struct {
	Host string
	Err  error
	Hint string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s: %v\n  hint: %s", e.Host, e.Err, e.Hint)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// WrapConnectError wraps a connection error with a friendly hint. Errors
// that match no known pattern are returned as-is.
func WrapConnectError(hostname string, err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	if strings.Contains(msg, "permission denied") && strings.Contains(msg, "key") {
		return &ConnectError{
			Host: hostname,
			Err:  err,
			Hint: "check SSH key permissions (chmod 600)",
		}
	}

	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "handshake failed") {
		return &ConnectError{
			Host: hostname,
			Err:  err,
			Hint: fmt.Sprintf("verify the host's configured user, keys, or password. Try: ssh -v %s", hostname),
		}
	}

	if strings.Contains(msg, "connection refused") {
		return &ConnectError{
			Host: hostname,
			Err:  err,
			Hint: "verify SSH daemon is running on the target host",
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || strings.Contains(msg, "no such host") {
		return &ConnectError{
			Host: hostname,
			Err:  err,
			Hint: "verify the host's ip or vmhostname setting",
		}
	}

	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return &ConnectError{
			Host: hostname,
			Err:  err,
			Hint: fmt.Sprintf("remove old key with: ssh-keygen -R %s", hostname),
		}
	}

	var authErr *ssh.ServerAuthError
	if errors.As(err, &authErr) {
		return &ConnectError{
			Host: hostname,
			Err:  err,
			Hint: fmt.Sprintf("verify the host's configured user, keys, or password. Try: ssh -v %s", hostname),
		}
	}

	return err
}
