package transfer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/drover-sh/drover/internal/conn"
	"github.com/drover-sh/drover/internal/host"
	"github.com/drover-sh/drover/internal/pathutil"
)

// rsyncCommand is a test seam around the rsync subprocess.
var rsyncCommand = func(ctx context.Context, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, "rsync", args...)
}

// RsyncTo synchronizes a local file or directory to the host with archive
// and compression semantics. SSH transport arguments are derived from the
// host's configuration; the remote principal defaults to root at the
// host's reachable address.
func (t *Transfer) RsyncTo(ctx context.Context, source, target string, opts Options) (*conn.Result, error) {
	cmdline := fmt.Sprintf("rsync %s -> %s:%s", source, t.Host.Hostname(), target)
	if opts.DryRun || t.DryRun {
		t.Out.DryRun(t.Host.Hostname(), cmdline)
		return conn.NullResult(t.Host.Hostname(), cmdline), nil
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, &MissingPathError{Path: source}
	}

	args := rsyncArgs(t.Host, source, target, info.IsDir(), opts.Ignore)
	t.Out.Command(t.Host.Hostname(), "rsync "+strings.Join(args, " "))

	cmd := rsyncCommand(ctx, args)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("rsync to %s: %v: %s", t.Host.Hostname(), err, strings.TrimSpace(stderr.String()))
	}

	res := conn.OKResult(t.Host.Hostname(), stdout.String())
	res.Cmd = cmdline
	return res, nil
}

// rsyncArgs builds the rsync argument list. A directory source gets a
// trailing separator so the transfer copies directory contents rather than
// the directory node itself.
func rsyncArgs(h *host.Host, source, target string, isDir bool, ignore []string) []string {
	args := []string{"-az", "-e", sshTransportArgs(h)}

	for _, entry := range ignore {
		args = append(args, "--exclude", entry)
	}

	src := source
	if isDir && !strings.HasSuffix(src, "/") {
		src += "/"
	}

	dest := fmt.Sprintf("%s@%s:%s", h.User(), h.ReachableAddress(), target)
	return append(args, src, dest)
}

// sshTransportArgs derives the ssh invocation rsync tunnels through, in
// precedence order: an explicit SSH config file from the host's SSH
// options, a hypervisor-provided default config file, or an explicit
// key-based invocation with strict host checking disabled.
func sshTransportArgs(h *host.Host) string {
	if f := h.Settings().String(host.KeySSHConfig); f != "" {
		if _, err := os.Stat(pathutil.ExpandHome(f)); err == nil {
			return "ssh -F " + pathutil.ExpandHome(f)
		}
	}
	if f := h.Settings().String(host.KeyHVSSHConfig); f != "" {
		return "ssh -F " + f
	}

	parts := []string{"ssh"}
	if key := pathutil.FirstExisting(h.Keys()); key != "" {
		parts = append(parts, "-i", key)
	}
	parts = append(parts, "-o", "StrictHostKeyChecking=no")
	if p := h.SSHPort(); p != 0 {
		parts = append(parts, "-p", strconv.Itoa(p))
	}
	return strings.Join(parts, " ")
}
