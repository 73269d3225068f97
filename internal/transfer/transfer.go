// Package transfer copies files and directories to and from hosts: a
// structured scp-like path with ignore-pattern filtering, and an rsync
// wrapper that derives its SSH arguments from host configuration.
package transfer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/drover-sh/drover/internal/conn"
	"github.com/drover-sh/drover/internal/host"
	"github.com/drover-sh/drover/internal/output"
)

// MissingPathError reports a transfer source that does not exist locally.
// It is raised before any network activity.
type MissingPathError struct {
	Path string
}

func (e *MissingPathError) Error() string {
	return fmt.Sprintf("source path %s does not exist", e.Path)
}

// Options control one transfer.
type Options struct {
	// Ignore excludes any path whose segments (from the source root
	// onward) exactly match an entry. Segment-boundary match, not
	// substring.
	Ignore []string

	// DryRun skips the transfer and returns a NullResult. OR-ed with
	// the Transfer's process-wide default.
	DryRun bool
}

// Transfer copies files to and from one host.
type Transfer struct {
	Host *host.Host
	Conn *conn.Manager
	Out  *output.Output

	// DryRun is the process-wide dry-run default.
	DryRun bool
}

// New creates a Transfer for a host.
func New(h *host.Host, cm *conn.Manager, out *output.Output) *Transfer {
	return &Transfer{Host: h, Conn: cm, Out: out}
}

// ScpTo copies a local file or directory to the host. The target is
// resolved through the platform's root-path hook. A single file lands at
// target; a directory's surviving files land under target preserving their
// structure relative to the source root.
func (t *Transfer) ScpTo(ctx context.Context, source, target string, opts Options) (*conn.Result, error) {
	cmdline := fmt.Sprintf("scp %s -> %s:%s", source, t.Host.Hostname(), target)
	if opts.DryRun || t.DryRun {
		t.Out.DryRun(t.Host.Hostname(), cmdline)
		return conn.NullResult(t.Host.Hostname(), cmdline), nil
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, &MissingPathError{Path: source}
	}

	target = t.Host.Platform.ScpRootPath(t.Host, target)
	matcher := ignoreMatcher(opts.Ignore)

	tr, err := t.Conn.Connection(ctx)
	if err != nil {
		return nil, err
	}

	copied := 0
	if !info.IsDir() || len(opts.Ignore) == 0 {
		// One-shot copy. Skipped entirely when the source itself is
		// ignored.
		if matcher.Matches(filepath.Base(source)) {
			t.Out.Infof("%s: No files to copy", t.Host.Hostname())
			return noFilesResult(t.Host.Hostname()), nil
		}
		if err := tr.CopyTo(ctx, source, target); err != nil {
			return nil, fmt.Errorf("scp %s to %s: %w", source, t.Host.Hostname(), err)
		}
		copied = 1
	} else {
		files, err := survivingFiles(source, matcher)
		if err != nil {
			return nil, fmt.Errorf("enumerate %s: %w", source, err)
		}
		if len(files) == 0 {
			t.Out.Infof("%s: No files to copy", t.Host.Hostname())
			return noFilesResult(t.Host.Hostname()), nil
		}

		for _, dir := range parentDirs(target, files) {
			if err := tr.MkdirAll(ctx, dir); err != nil {
				return nil, fmt.Errorf("scp %s to %s: %w", source, t.Host.Hostname(), err)
			}
		}
		for _, rel := range files {
			dest := path.Join(target, filepath.ToSlash(rel))
			if err := tr.CopyTo(ctx, filepath.Join(source, rel), dest); err != nil {
				return nil, fmt.Errorf("scp %s to %s: %w", rel, t.Host.Hostname(), err)
			}
		}
		copied = len(files)
	}

	if fixup := t.Host.Platform.PostCopyCommand(t.Host, target); fixup != "" {
		if _, err := tr.Execute(ctx, fixup, nil); err != nil {
			return nil, fmt.Errorf("post-copy fixup on %s: %w", t.Host.Hostname(), err)
		}
	}

	return conn.OKResult(t.Host.Hostname(), fmt.Sprintf("copied %d file(s) to %s", copied, target)), nil
}

// ScpFrom downloads a remote file or directory tree from the host.
func (t *Transfer) ScpFrom(ctx context.Context, source, target string, opts Options) (*conn.Result, error) {
	cmdline := fmt.Sprintf("scp %s:%s -> %s", t.Host.Hostname(), source, target)
	if opts.DryRun || t.DryRun {
		t.Out.DryRun(t.Host.Hostname(), cmdline)
		return conn.NullResult(t.Host.Hostname(), cmdline), nil
	}

	tr, err := t.Conn.Connection(ctx)
	if err != nil {
		return nil, err
	}
	if err := tr.CopyFrom(ctx, source, target); err != nil {
		return nil, fmt.Errorf("scp from %s: %w", t.Host.Hostname(), err)
	}
	return conn.OKResult(t.Host.Hostname(), fmt.Sprintf("copied %s to %s", source, target)), nil
}

func noFilesResult(hostname string) *conn.Result {
	res := conn.OKResult(hostname, "No files to copy")
	code := 1
	res.ExitCode = &code
	return res
}

// survivingFiles enumerates every file under source, dropping any whose
// path relative to the source root matches the ignore predicate. Ignored
// directories are pruned whole.
func survivingFiles(source string, matcher ignoreMatcher) ([]string, error) {
	var files []string
	err := filepath.Walk(source, func(p string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == source {
			return nil
		}
		rel, err := filepath.Rel(source, p)
		if err != nil {
			return err
		}
		if matcher.Matches(rel) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !fi.IsDir() {
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}

// parentDirs returns the unique parent directories of the surviving files,
// resolved against target and sorted shallowest-first so each MkdirAll
// builds on the previous ones.
func parentDirs(target string, files []string) []string {
	seen := make(map[string]bool)
	for _, rel := range files {
		seen[path.Dir(path.Join(target, filepath.ToSlash(rel)))] = true
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// ignoreMatcher excludes a path when any of its segments exactly matches an
// ignore entry. Segment comparison avoids partial-substring false matches
// ("lib" never matches "library").
type ignoreMatcher []string

func (m ignoreMatcher) Matches(rel string) bool {
	if len(m) == 0 {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, entry := range m {
			if seg == entry {
				return true
			}
		}
	}
	return false
}
