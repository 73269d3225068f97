package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/drover-sh/drover/internal/host"
)

// Local is the transport variant that runs commands as subprocesses on the
// harness machine itself.
type Local struct {
	identity
	shell     string
	shellArgs []string
}

// NewLocal builds the local transport for a host.
func NewLocal(h *host.Host) *Local {
	l := &Local{
		shell:     "/bin/sh",
		shellArgs: []string{"-c"},
	}
	l.SyncIdentity(h.IP, h.Name, h.VMHostname)
	return l
}

// Execute runs cmdline through the shell and captures its exit code.
func (l *Local) Execute(ctx context.Context, cmdline string, onOutput OutputFunc) (*Result, error) {
	args := append(append([]string(nil), l.shellArgs...), cmdline)
	cmd := exec.CommandContext(ctx, l.shell, args...)

	col := &collector{onOutput: onOutput}
	cmd.Stdout = col.writer(false)
	cmd.Stderr = col.writer(true)

	res := &Result{Host: l.label(), Cmd: cmdline}
	err := cmd.Run()
	col.fill(res)

	if err == nil {
		code := 0
		res.ExitCode = &code
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		res.ExitCode = &code
		return res, nil
	}
	return res, fmt.Errorf("run %q: %w", cmdline, err)
}

// WaitForConnectionFailure always reports false: the local channel cannot
// drop.
func (l *Local) WaitForConnectionFailure(ctx context.Context, onOutput OutputFunc) bool {
	return false
}

// CopyTo copies a local file or directory tree to another local path.
func (l *Local) CopyTo(ctx context.Context, localPath, remotePath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	if !info.IsDir() {
		return copyLocalFile(localPath, remotePath)
	}
	return filepath.Walk(localPath, func(p string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}
		dest := filepath.Join(remotePath, rel)
		if fi.IsDir() {
			return os.MkdirAll(dest, 0755)
		}
		return copyLocalFile(p, dest)
	})
}

// CopyFrom is CopyTo with the arguments swapped: both sides are local.
func (l *Local) CopyFrom(ctx context.Context, remotePath, localPath string) error {
	return l.CopyTo(ctx, remotePath, localPath)
}

// MkdirAll creates a directory tree on the local filesystem.
func (l *Local) MkdirAll(ctx context.Context, remotePath string) error {
	return os.MkdirAll(remotePath, 0755)
}

func (l *Local) Close() error {
	return nil
}

func copyLocalFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}
