package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	sshconfig "github.com/kevinburke/ssh_config"

	"github.com/drover-sh/drover/internal/host"
	"github.com/drover-sh/drover/internal/pathutil"
)

// waitFailureTimeout bounds how long WaitForConnectionFailure watches for
// the channel to break.
var waitFailureTimeout = 30 * time.Second

// DialOptions tune how a remote transport is established.
type DialOptions struct {
	// Preference orders the identity fields tried as dial targets, e.g.
	// "ip,vmhostname,name". Empty means ip first, then the hostname.
	Preference string

	// StrictHostKey verifies against ~/.ssh/known_hosts instead of
	// accepting unknown hosts (the default for freshly provisioned VMs).
	StrictHostKey bool

	// PasswordCallback is invoked when agent and key auth both fail.
	PasswordCallback func(hostname string) (string, error)
}

// Remote is the SSH transport variant.
type Remote struct {
	identity
	user      string
	port      int
	sshClient *ssh.Client
}

// DialRemote connects to the host over SSH using the configured auth chain:
// agent, then identity files, then password.
func DialRemote(ctx context.Context, h *host.Host, opts DialOptions) (*Remote, error) {
	target := dialTarget(h, opts.Preference)
	if target == "" {
		return nil, fmt.Errorf("host %s has no reachable address or hostname", h.Name)
	}

	user := h.User()
	port := h.SSHPort()
	if port == 0 {
		if portStr := sshconfig.Get(target, "Port"); portStr != "" {
			fmt.Sscanf(portStr, "%d", &port)
		}
	}
	if port == 0 {
		port = 22
	}

	hostKeyCallback, err := resolveHostKeyCallback(opts.StrictHostKey)
	if err != nil {
		return nil, fmt.Errorf("host key callback: %w", err)
	}

	sshConf := &ssh.ClientConfig{
		User:            user,
		Auth:            buildAuthMethods(h, target, opts),
		HostKeyCallback: hostKeyCallback,
	}

	addr := net.JoinHostPort(target, fmt.Sprintf("%d", port))
	netConn, err := dialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, WrapConnectError(h.Name, fmt.Errorf("dial %s: %w", addr, err))
	}

	sshConn, chans, reqs, err := newClientConn(ctx, netConn, addr, sshConf)
	if err != nil {
		netConn.Close()
		return nil, WrapConnectError(h.Name, fmt.Errorf("ssh handshake with %s: %w", addr, err))
	}

	r := &Remote{
		user:      user,
		port:      port,
		sshClient: ssh.NewClient(sshConn, chans, reqs),
	}
	r.SyncIdentity(h.IP, h.Name, h.VMHostname)
	return r, nil
}

// dialTarget picks the address to dial according to the preference hint.
func dialTarget(h *host.Host, preference string) string {
	if preference == "" {
		return h.ReachableAddress()
	}
	for _, field := range strings.Split(preference, ",") {
		switch strings.TrimSpace(field) {
		case "ip":
			if h.IP != "" {
				return h.IP
			}
		case "vmhostname":
			if h.VMHostname != "" {
				return h.VMHostname
			}
		case "name":
			return h.Name
		}
	}
	return h.ReachableAddress()
}

// Execute runs cmdline in a fresh session. Output is streamed to onOutput
// as it arrives and accumulated into the Result. A session that ends
// without reporting an exit status produces a Result with a nil ExitCode.
func (r *Remote) Execute(ctx context.Context, cmdline string, onOutput OutputFunc) (*Result, error) {
	session, err := r.sshClient.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	col := &collector{onOutput: onOutput}
	session.Stdout = col.writer(false)
	session.Stderr = col.writer(true)

	res := &Result{Host: r.label(), Cmd: cmdline}

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmdline)
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		col.fill(res)
		return res, ctx.Err()
	case err := <-done:
		col.fill(res)
		if err == nil {
			code := 0
			res.ExitCode = &code
			return res, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitStatus()
			res.ExitCode = &code
			return res, nil
		}
		// ExitMissingError, EOF, closed connection: the command ran but
		// the channel broke before an exit status arrived. That is a
		// result state, not a transport error.
		return res, nil
	}
}

// WaitForConnectionFailure watches the connection with keepalive probes
// until it breaks or the bounded wait elapses.
func (r *Remote) WaitForConnectionFailure(ctx context.Context, onOutput OutputFunc) bool {
	if onOutput != nil {
		onOutput([]byte("waiting for connection to drop\n"))
	}

	deadline := time.Now().Add(waitFailureTimeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		if _, _, err := r.sshClient.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// CopyTo uploads a local file or directory tree via SFTP, creating remote
// parent directories as needed. Directory trees land relative to
// remotePath.
func (r *Remote) CopyTo(ctx context.Context, localPath, remotePath string) error {
	client, err := sftp.NewClient(r.sshClient)
	if err != nil {
		return fmt.Errorf("sftp client: %w", err)
	}
	defer client.Close()

	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	if !info.IsDir() {
		return sftpUpload(ctx, client, localPath, remotePath)
	}

	return filepath.Walk(localPath, func(p string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}
		dest := path.Join(remotePath, filepath.ToSlash(rel))
		if fi.IsDir() {
			return client.MkdirAll(dest)
		}
		return sftpUpload(ctx, client, p, dest)
	})
}

// CopyFrom downloads a remote file or directory tree via SFTP.
func (r *Remote) CopyFrom(ctx context.Context, remotePath, localPath string) error {
	client, err := sftp.NewClient(r.sshClient)
	if err != nil {
		return fmt.Errorf("sftp client: %w", err)
	}
	defer client.Close()

	info, err := client.Stat(remotePath)
	if err != nil {
		return fmt.Errorf("stat remote %s: %w", remotePath, err)
	}

	if !info.IsDir() {
		return sftpDownload(ctx, client, remotePath, localPath)
	}

	walker := client.Walk(remotePath)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(remotePath, walker.Path())
		if err != nil {
			return err
		}
		dest := filepath.Join(localPath, rel)
		if walker.Stat().IsDir() {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
			continue
		}
		if err := sftpDownload(ctx, client, walker.Path(), dest); err != nil {
			return err
		}
	}
	return nil
}

// MkdirAll creates a remote directory tree via SFTP.
func (r *Remote) MkdirAll(ctx context.Context, remotePath string) error {
	client, err := sftp.NewClient(r.sshClient)
	if err != nil {
		return fmt.Errorf("sftp client: %w", err)
	}
	defer client.Close()
	if err := client.MkdirAll(remotePath); err != nil {
		return fmt.Errorf("create remote dir %s: %w", remotePath, err)
	}
	return nil
}

func (r *Remote) Close() error {
	return r.sshClient.Close()
}

// SSHClient exposes the underlying connection for collaborators that need
// raw session access (tests, tunneling).
func (r *Remote) SSHClient() *ssh.Client {
	return r.sshClient
}

// sftpUpload copies one local file to a remote path, pre-creating the
// remote parent directory. Use path (not filepath) for remote paths: the
// remote side is always slash-separated.
func sftpUpload(ctx context.Context, client *sftp.Client, localPath, remotePath string) error {
	local, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer local.Close()

	remoteDir := path.Dir(remotePath)
	if remoteDir != "." && remoteDir != "/" {
		if err := client.MkdirAll(remoteDir); err != nil {
			return fmt.Errorf("create remote dir %s: %w", remoteDir, err)
		}
	}

	remote, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote %s: %w", remotePath, err)
	}
	defer remote.Close()

	if _, err := copyWithContext(ctx, remote, local); err != nil {
		return fmt.Errorf("copy to %s: %w", remotePath, err)
	}
	return nil
}

func sftpDownload(ctx context.Context, client *sftp.Client, remotePath, localPath string) error {
	remote, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("open remote %s: %w", remotePath, err)
	}
	defer remote.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("create local dir: %w", err)
	}
	local, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	defer local.Close()

	if _, err := copyWithContext(ctx, local, remote); err != nil {
		return fmt.Errorf("copy from %s: %w", remotePath, err)
	}
	return nil
}

// copyWithContext copies from src to dst, checking for context cancellation
// between chunks.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}

// buildAuthMethods constructs the ordered auth chain: agent, key files,
// password.
func buildAuthMethods(h *host.Host, target string, opts DialOptions) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if agentAuth := agentAuthMethod(); agentAuth != nil {
		methods = append(methods, agentAuth)
	}

	keyFiles := h.Keys()
	if len(keyFiles) == 0 {
		keyFiles = resolveKeyFiles(target)
	}
	for _, keyFile := range keyFiles {
		if signer := loadKeySigner(pathutil.ExpandHome(keyFile)); signer != nil {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	if pw := h.Settings().String(host.KeyPassword); pw != "" {
		methods = append(methods, ssh.Password(pw))
	} else if opts.PasswordCallback != nil {
		methods = append(methods, ssh.PasswordCallback(func() (string, error) {
			return opts.PasswordCallback(h.Hostname())
		}))
	}

	return methods
}

// sharedAgent holds a lazily-initialized, process-wide SSH agent connection.
// Uses a mutex instead of sync.Once so a failed dial can be retried.
var sharedAgent struct {
	mu     sync.Mutex
	conn   net.Conn
	client agent.ExtendedAgent
}

// CloseAgent closes the shared SSH agent connection, if any.
func CloseAgent() {
	sharedAgent.mu.Lock()
	defer sharedAgent.mu.Unlock()
	if sharedAgent.conn != nil {
		sharedAgent.conn.Close()
		sharedAgent.client = nil
		sharedAgent.conn = nil
	}
}

// agentAuthMethod returns an auth method using the SSH agent, or nil if the
// agent is unavailable or has no keys.
func agentAuthMethod() ssh.AuthMethod {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil
	}

	sharedAgent.mu.Lock()
	defer sharedAgent.mu.Unlock()

	if sharedAgent.client != nil {
		if keys, err := sharedAgent.client.List(); err == nil {
			if len(keys) > 0 {
				return ssh.PublicKeysCallback(sharedAgent.client.Signers)
			}
			return nil
		}
		// Stale connection. Close and retry.
		sharedAgent.conn.Close()
		sharedAgent.client = nil
		sharedAgent.conn = nil
	}

	agentConn, err := net.Dial("unix", sock)
	if err != nil {
		return nil
	}
	sharedAgent.conn = agentConn
	sharedAgent.client = agent.NewClient(agentConn)

	keys, err := sharedAgent.client.List()
	if err != nil || len(keys) == 0 {
		return nil
	}
	return ssh.PublicKeysCallback(sharedAgent.client.Signers)
}

// resolveKeyFiles returns key file paths from ssh_config and default
// locations.
func resolveKeyFiles(target string) []string {
	var files []string

	identity := sshconfig.Get(target, "IdentityFile")
	if identity != "" {
		expanded := pathutil.ExpandHome(identity)
		if _, err := os.Stat(expanded); err == nil {
			files = append(files, expanded)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return files
	}
	defaults := []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
	}
	for _, f := range defaults {
		if _, err := os.Stat(f); err == nil {
			files = append(files, f)
		}
	}

	return files
}

// loadKeySigner reads a private key file and returns a signer.
func loadKeySigner(keyPath string) ssh.Signer {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil
	}
	return signer
}

// resolveHostKeyCallback builds the host key callback. Unknown hosts are
// accepted unless strict checking was requested: harness targets are
// usually freshly provisioned VMs with no known_hosts entry.
func resolveHostKeyCallback(strict bool) (ssh.HostKeyCallback, error) {
	if !strict {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}

	knownHostsPath := filepath.Join(home, ".ssh", "known_hosts")
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no known_hosts file found at %s", knownHostsPath)
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}
	return callback, nil
}

// dialContext dials a network address with context cancellation support.
func dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{}
	return d.DialContext(ctx, network, addr)
}

// newClientConn performs the SSH handshake with context cancellation.
func newClientConn(ctx context.Context, netConn net.Conn, addr string, config *ssh.ClientConfig) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	type result struct {
		conn  ssh.Conn
		chans <-chan ssh.NewChannel
		reqs  <-chan *ssh.Request
		err   error
	}

	done := make(chan result, 1)
	go func() {
		c, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
		done <- result{c, chans, reqs, err}
	}()

	select {
	case <-ctx.Done():
		netConn.Close()
		return nil, nil, nil, ctx.Err()
	case r := <-done:
		return r.conn, r.chans, r.reqs, r.err
	}
}
