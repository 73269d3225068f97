// Package command renders and executes commands against hosts, applying
// the harness execution protocol: dry-run short-circuit, output streaming,
// timing, and exit-code and connection-failure policy.
package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/drover-sh/drover/internal/host"
)

// Command is an externally supplied invocation descriptor. Its only
// required capability is rendering itself into a full command line for a
// given target host.
type Command interface {
	CommandLine(h *host.Host) string
}

// Shell is a Command holding a literal shell string, rendered as-is.
type Shell string

func (s Shell) CommandLine(*host.Host) string {
	return string(s)
}

// Program is a Command built from a program path, arguments, and optional
// environment assignments. Arguments are shell-quoted on rendering.
type Program struct {
	Path string
	Args []string
	Env  map[string]string
}

func (p Program) CommandLine(*host.Host) string {
	var b strings.Builder

	if len(p.Env) > 0 {
		keys := make([]string, 0, len(p.Env))
		for k := range p.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%s ", k, shellquote.Join(p.Env[k]))
		}
	}

	b.WriteString(shellquote.Join(append([]string{p.Path}, p.Args...)...))
	return b.String()
}
