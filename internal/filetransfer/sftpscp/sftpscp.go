// Package sftpscp implements filetransfer.FileTransfer over SSH, in
// either SFTP (subsystem, full feature set) or SCP (minimal "scp -t/-f"
// protocol, single-file reads and writes only) mode, per spec
// §4.1 ("support POSIX attributes end-to-end; symlinks resolved
// lazily; SSH authentication is preference-ordered {agent, public-key
// file, password, keyboard-interactive}").
//
// Grounded on github.com/pkg/sftp's client API and
// golang.org/x/crypto/ssh's ClientConfig/auth-method conventions, as
// used across the pack (other_examples/manifests/pkg-sftp/go.mod,
// zmb3-teleport/go.mod).
package sftpscp

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/rescale-labs/termscp/internal/ferrors"
	"github.com/rescale-labs/termscp/internal/filetransfer"
	"github.com/rescale-labs/termscp/internal/fsentry"
)

const dialTimeout = 15 * time.Second

// Mode selects which protocol flavor a Client speaks once connected.
type Mode int

const (
	// ModeSFTP uses the full SFTP subsystem: listing, stat, chmod/chown,
	// symlinks, random-access reads.
	ModeSFTP Mode = iota
	// ModeSCP speaks the legacy scp pipe protocol for single-file
	// OpenRead/OpenWrite. Every other filesystem operation except Pwd
	// and Finalize (ListDir, Stat, Cd, Mkdir, Symlink, Chmod, ...)
	// returns UnsupportedFeature.
	ModeSCP
)

// Client implements filetransfer.FileTransfer over an SSH connection.
type Client struct {
	params filetransfer.GenericParams
	mode   Mode

	conn   *ssh.Client
	sftp   *sftp.Client
	cwd    string
}

// New builds a Client that will dial params.Address:Port on Connect.
func New(params filetransfer.GenericParams, mode Mode) *Client {
	return &Client{params: params, mode: mode, cwd: "/"}
}

func (c *Client) Connect(ctx context.Context) (filetransfer.WelcomeBanner, error) {
	if c.conn != nil {
		return "", nil
	}

	methods, err := authMethods(c.params)
	if err != nil {
		return "", ferrors.New(ferrors.AuthFailed, err)
	}

	var banner string
	cfg := &ssh.ClientConfig{
		User:            c.params.Username,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // host key pinning is a bookmark-level concern, spec §4.1 open question
		BannerCallback: func(msg string) error {
			banner = msg
			return nil
		},
		Timeout: dialTimeout,
	}

	addr := net.JoinHostPort(c.params.Address, strconv.Itoa(c.params.Port))
	dialer := net.Dialer{Timeout: dialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", ferrors.New(ferrors.ConnectionFailed, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(raw, addr, cfg)
	if err != nil {
		raw.Close()
		return "", classifyDialErr(err)
	}
	c.conn = ssh.NewClient(sshConn, chans, reqs)

	if c.mode == ModeSFTP {
		sc, err := sftp.NewClient(c.conn)
		if err != nil {
			c.conn.Close()
			c.conn = nil
			return "", ferrors.New(ferrors.Protocol, err)
		}
		c.sftp = sc
		if wd, err := c.sftp.Getwd(); err == nil {
			c.cwd = wd
		}
	}

	return banner, nil
}

func classifyDialErr(err error) error {
	if _, ok := err.(*ssh.PermissionError); ok {
		return ferrors.New(ferrors.AuthFailed, err)
	}
	return ferrors.New(ferrors.ConnectionFailed, err)
}

// authMethods builds the SSH auth-method preference list: agent,
// public-key file, password, keyboard-interactive, as spec'd.
func authMethods(p filetransfer.GenericParams) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if p.UseAgent {
		if am, ok := agentAuthMethod(); ok {
			methods = append(methods, am)
		}
	}

	if p.SSHKeyPath != "" {
		keyBytes, err := os.ReadFile(p.SSHKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key %s: %w", p.SSHKeyPath, err)
		}
		var signer ssh.Signer
		if p.Secret != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(p.Secret))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", p.SSHKeyPath, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if p.Secret != "" {
		methods = append(methods, ssh.Password(p.Secret))
		methods = append(methods, ssh.KeyboardInteractive(
			func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = p.Secret
				}
				return answers, nil
			}))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no usable authentication method configured")
	}
	return methods, nil
}

func agentAuthMethod() (ssh.AuthMethod, bool) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, false
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, false
	}
	ag := agent.NewClient(conn)
	return ssh.PublicKeysCallback(ag.Signers), true
}

func (c *Client) Disconnect() {
	if c.sftp != nil {
		c.sftp.Close()
		c.sftp = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) IsConnected() bool { return c.conn != nil }

func (c *Client) requireSFTP() (*sftp.Client, error) {
	if c.sftp == nil {
		return nil, ferrors.New(ferrors.UnsupportedFeature, fmt.Errorf("not available in scp mode"))
	}
	return c.sftp, nil
}

func (c *Client) Pwd(ctx context.Context) (string, error) {
	return c.cwd, nil
}

func (c *Client) Cd(ctx context.Context, p string) (string, error) {
	sc, err := c.requireSFTP()
	if err != nil {
		return "", err
	}
	target := c.resolve(p)
	info, err := sc.Stat(target)
	if err != nil {
		return "", wrapSftpErr(target, err)
	}
	if !info.IsDir() {
		return "", ferrors.NewPath(ferrors.Protocol, target, nil)
	}
	c.cwd = target
	return c.cwd, nil
}

func (c *Client) resolve(p string) string {
	if path.IsAbs(p) {
		return fsentry.NormalizePath(p)
	}
	return fsentry.Join(c.cwd, p)
}

func (c *Client) ListDir(ctx context.Context, p string) ([]fsentry.Entry, error) {
	sc, err := c.requireSFTP()
	if err != nil {
		return nil, err
	}
	full := c.resolve(p)
	infos, err := sc.ReadDir(full)
	if err != nil {
		return nil, wrapSftpErr(full, err)
	}
	out := make([]fsentry.Entry, 0, len(infos))
	for _, info := range infos {
		select {
		case <-ctx.Done():
			return nil, ferrors.New(ferrors.Cancelled, ctx.Err())
		default:
		}
		entryPath := fsentry.Join(full, info.Name())
		e := toEntry(entryPath, info)
		if e.Kind == fsentry.Symlink {
			c.resolveSymlink(sc, &e, entryPath, 0)
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *Client) Stat(ctx context.Context, p string) (fsentry.Entry, error) {
	sc, err := c.requireSFTP()
	if err != nil {
		return fsentry.Entry{}, err
	}
	full := c.resolve(p)
	info, err := sc.Lstat(full)
	if err != nil {
		return fsentry.Entry{}, wrapSftpErr(full, err)
	}
	e := toEntry(full, info)
	if e.Kind == fsentry.Symlink {
		c.resolveSymlink(sc, &e, full, 0)
	}
	return e, nil
}

func (c *Client) resolveSymlink(sc *sftp.Client, e *fsentry.Entry, full string, depth int) {
	if depth >= fsentry.MaxSymlinkDepth {
		return
	}
	target, err := sc.ReadLink(full)
	if err != nil {
		return
	}
	e.LinkPath = target
	if !path.IsAbs(target) {
		target = fsentry.Join(fsentry.Dir(full), target)
	}
	info, err := sc.Lstat(target)
	if err != nil {
		return
	}
	sub := toEntry(target, info)
	if sub.Kind == fsentry.Symlink {
		c.resolveSymlink(sc, &sub, target, depth+1)
	}
	e.Target = &sub
}

func toEntry(fullPath string, info os.FileInfo) fsentry.Entry {
	mode := uint32(info.Mode().Perm())
	mt := info.ModTime()
	e := fsentry.Entry{
		Name:    info.Name(),
		Path:    fsentry.NormalizePath(fullPath),
		Size:    info.Size(),
		Mode:    &mode,
		ModTime: &mt,
	}
	if st, ok := info.Sys().(*sftp.FileStat); ok {
		uid := int(st.UID)
		gid := int(st.GID)
		e.UID = &uid
		e.GID = &gid
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		e.Kind = fsentry.Symlink
	case info.IsDir():
		e.Kind = fsentry.Directory
	default:
		e.Kind = fsentry.File
	}
	return e
}

func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	sc, err := c.requireSFTP()
	if err != nil {
		return false, err
	}
	_, err = sc.Lstat(c.resolve(p))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, wrapSftpErr(p, err)
}

func (c *Client) Mkdir(ctx context.Context, p string) error {
	sc, err := c.requireSFTP()
	if err != nil {
		return err
	}
	full := c.resolve(p)
	if err := sc.Mkdir(full); err != nil {
		if _, statErr := sc.Stat(full); statErr == nil {
			return nil
		}
		return wrapSftpErr(full, err)
	}
	return nil
}

func (c *Client) RemoveFile(ctx context.Context, p string) error {
	sc, err := c.requireSFTP()
	if err != nil {
		return err
	}
	full := c.resolve(p)
	return wrapSftpErr(full, sc.Remove(full))
}

func (c *Client) RemoveDir(ctx context.Context, p string) error {
	sc, err := c.requireSFTP()
	if err != nil {
		return err
	}
	full := c.resolve(p)
	return wrapSftpErr(full, sc.RemoveDirectory(full))
}

func (c *Client) RemoveDirAll(ctx context.Context, p string) error {
	sc, err := c.requireSFTP()
	if err != nil {
		return err
	}
	full := c.resolve(p)
	return wrapSftpErr(full, sftpRemoveAll(ctx, sc, full))
}

func sftpRemoveAll(ctx context.Context, sc *sftp.Client, full string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	infos, err := sc.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, info := range infos {
		childPath := fsentry.Join(full, info.Name())
		if info.IsDir() {
			if err := sftpRemoveAll(ctx, sc, childPath); err != nil {
				return err
			}
		} else if err := sc.Remove(childPath); err != nil {
			return err
		}
	}
	return sc.RemoveDirectory(full)
}

func (c *Client) Rename(ctx context.Context, from, to string) error {
	sc, err := c.requireSFTP()
	if err != nil {
		return err
	}
	fromFull, toFull := c.resolve(from), c.resolve(to)
	return wrapSftpErr(fromFull, sc.Rename(fromFull, toFull))
}

func (c *Client) Symlink(ctx context.Context, link, target string) error {
	sc, err := c.requireSFTP()
	if err != nil {
		return err
	}
	full := c.resolve(link)
	return wrapSftpErr(full, sc.Symlink(target, full))
}

func (c *Client) Chmod(ctx context.Context, p string, mode uint32) error {
	sc, err := c.requireSFTP()
	if err != nil {
		return err
	}
	full := c.resolve(p)
	return wrapSftpErr(full, sc.Chmod(full, os.FileMode(mode)))
}

func (c *Client) Chown(ctx context.Context, p string, uid, gid int) error {
	sc, err := c.requireSFTP()
	if err != nil {
		return err
	}
	full := c.resolve(p)
	return wrapSftpErr(full, sc.Chown(full, uid, gid))
}

func (c *Client) OpenRead(ctx context.Context, p string) (filetransfer.ReadStream, error) {
	full := c.resolve(p)
	if c.mode == ModeSCP {
		return c.scpOpenRead(ctx, full)
	}
	f, err := c.sftp.Open(full)
	if err != nil {
		return nil, wrapSftpErr(full, err)
	}
	return f, nil
}

func (c *Client) OpenWrite(ctx context.Context, p string, size int64) (filetransfer.WriteStream, error) {
	full := c.resolve(p)
	if c.mode == ModeSCP {
		return c.scpOpenWrite(ctx, full, size)
	}
	f, err := c.sftp.Create(full)
	if err != nil {
		return nil, wrapSftpErr(full, err)
	}
	return f, nil
}

func (c *Client) Finalize(ctx context.Context, stream filetransfer.WriteStream) error {
	if ws, ok := stream.(*scpWriteCloser); ok {
		return ws.finish()
	}
	if c, ok := stream.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var _ filetransfer.FileTransfer = (*Client)(nil)

func wrapSftpErr(p string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return ferrors.NewPath(ferrors.NotFound, p, err)
	case os.IsPermission(err):
		return ferrors.NewPath(ferrors.PermissionDenied, p, err)
	case os.IsExist(err):
		return ferrors.NewPath(ferrors.AlreadyExists, p, err)
	}
	if status, ok := err.(*sftp.StatusError); ok {
		switch status.Code {
		case 2: // SSH_FX_NO_SUCH_FILE
			return ferrors.NewPath(ferrors.NotFound, p, err)
		case 3: // SSH_FX_PERMISSION_DENIED
			return ferrors.NewPath(ferrors.PermissionDenied, p, err)
		}
	}
	return ferrors.NewPath(ferrors.Io, p, err)
}
