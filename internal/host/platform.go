package host

import (
	"fmt"
	"strings"
)

// Platform bundles the per-variant hooks that shape how commands and file
// transfers behave on a host: configuration defaults, an init hook run once
// at construction, target-path resolution for structured copies, an optional
// post-copy fixup command, and a file-existence probe command.
type Platform struct {
	Name string

	defaults      Values
	initHost      func(h *Host)
	scpRoot       func(h *Host, target string) string
	postCopy      func(h *Host, target string) string
	fileExistsCmd func(path string) string
}

// ScpRootPath resolves a transfer target path for this platform.
func (p *Platform) ScpRootPath(h *Host, target string) string {
	if p.scpRoot == nil {
		return target
	}
	return p.scpRoot(h, target)
}

// PostCopyCommand returns a command to run on the host after a structured
// copy, or "" when the platform needs no fixup.
func (p *Platform) PostCopyCommand(h *Host, target string) string {
	if p.postCopy == nil {
		return ""
	}
	return p.postCopy(h, target)
}

// FileExistsCommand returns a shell command that exits 0 iff path exists
// on the host.
func (p *Platform) FileExistsCommand(path string) string {
	if p.fileExistsCmd == nil {
		return fmt.Sprintf("test -e %s", path)
	}
	return p.fileExistsCmd(path)
}

var unixPlatform = &Platform{
	Name:     "unix",
	defaults: Values{"user": "root"},
}

var macPlatform = &Platform{
	Name:     "osx",
	defaults: Values{"user": "root"},
}

var aixPlatform = &Platform{
	Name:     "aix",
	defaults: Values{"user": "root"},
}

var freebsdPlatform = &Platform{
	Name:     "freebsd",
	defaults: Values{"user": "root"},
}

// eos hosts stage transferred files on the flash filesystem.
var eosPlatform = &Platform{
	Name:     "eos",
	defaults: Values{"user": "root"},
	scpRoot: func(_ *Host, target string) string {
		if strings.HasPrefix(target, "/") {
			return target
		}
		return "/mnt/flash/" + target
	},
}

// cisco hosts copy as a non-root admin user, so transferred trees need an
// ownership fixup afterwards.
var ciscoPlatform = &Platform{
	Name:     "cisco",
	defaults: Values{"user": "admin"},
	postCopy: func(h *Host, target string) string {
		return fmt.Sprintf("chown -R %s %s", h.User(), target)
	},
}

var cygwinPlatform = &Platform{
	Name:     "windows",
	defaults: Values{"user": "Administrator", "cygwin": true},
	scpRoot: func(_ *Host, target string) string {
		return cygwinPath(target)
	},
}

var windowsPlatform = &Platform{
	Name:     "windows-native",
	defaults: Values{"user": "Administrator", "cygwin": false},
	scpRoot: func(_ *Host, target string) string {
		return strings.ReplaceAll(target, "/", `\`)
	},
	fileExistsCmd: func(path string) string {
		return fmt.Sprintf(`if exist %s (exit 0) else (exit 1)`, path)
	},
}

// platformFor selects a platform variant by case-insensitive substring match
// on the declared platform tag. Windows further branches on the "cygwin"
// flag (default true). Anything unrecognized is treated as unix.
func platformFor(tag string, declared Values) *Platform {
	t := strings.ToLower(tag)
	switch {
	case strings.Contains(t, "windows"):
		if declaredBool(declared, "cygwin", true) {
			return cygwinPlatform
		}
		return windowsPlatform
	case strings.Contains(t, "aix"):
		return aixPlatform
	case strings.Contains(t, "osx"), strings.Contains(t, "mac"):
		return macPlatform
	case strings.Contains(t, "freebsd"):
		return freebsdPlatform
	case strings.Contains(t, "eos"):
		return eosPlatform
	case strings.Contains(t, "cisco"):
		return ciscoPlatform
	default:
		return unixPlatform
	}
}

func declaredBool(v Values, key string, def bool) bool {
	val, ok := v[key]
	if !ok {
		return def
	}
	b, ok := val.(bool)
	if !ok {
		return def
	}
	return b
}

// cygwinPath converts a Windows path like C:\Users\tmp to the cygwin form
// /cygdrive/c/Users/tmp. Paths without a drive letter only have their
// separators normalized.
func cygwinPath(p string) string {
	if len(p) >= 2 && p[1] == ':' {
		drive := strings.ToLower(p[:1])
		rest := strings.ReplaceAll(p[2:], `\`, "/")
		if !strings.HasPrefix(rest, "/") {
			rest = "/" + rest
		}
		return "/cygdrive/" + drive + rest
	}
	return strings.ReplaceAll(p, `\`, "/")
}
