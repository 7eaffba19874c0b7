// Package ftpx implements filetransfer.FileTransfer over FTP and FTPS
// (explicit or implicit AUTH TLS), per spec §4.1's reply-code mapping
// (550 -> NotFound, 530 -> AuthFailed) and the protocol's lack of
// POSIX permissions, symlinks, or ownership (all such operations
// return UnsupportedFeature).
//
// Grounded on github.com/secsy/goftp's Client/Config API, the sole FTP
// library pulled into go.mod from the example pack.
package ftpx

import (
	"context"
	"crypto/tls"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/secsy/goftp"

	"github.com/rescale-labs/termscp/internal/ferrors"
	"github.com/rescale-labs/termscp/internal/filetransfer"
	"github.com/rescale-labs/termscp/internal/fsentry"
)

const dialTimeout = 15 * time.Second

// Client implements filetransfer.FileTransfer over FTP/FTPS.
type Client struct {
	params filetransfer.GenericParams
	client *goftp.Client
	cwd    string
}

// New builds a Client that dials on Connect.
func New(params filetransfer.GenericParams) *Client {
	return &Client{params: params, cwd: "/"}
}

func (c *Client) Connect(ctx context.Context) (filetransfer.WelcomeBanner, error) {
	if c.client != nil {
		return "", nil
	}

	cfg := goftp.Config{
		User:               c.params.Username,
		Password:           c.params.Secret,
		ConnectionsPerHost: 4,
		Timeout:            dialTimeout,
	}
	switch c.params.FTPSMode {
	case filetransfer.FTPSImplicit:
		cfg.TLSConfig = &tls.Config{ServerName: c.params.Address} //nolint:gosec // cert pinning is a bookmark-level concern, not in scope here
		cfg.TLSMode = goftp.TLSImplicit
	case filetransfer.FTPSExplicit:
		cfg.TLSConfig = &tls.Config{ServerName: c.params.Address} //nolint:gosec
		cfg.TLSMode = goftp.TLSExplicit
	}

	addr := c.params.Address + ":" + strconv.Itoa(c.params.Port)
	client, err := goftp.DialConfig(cfg, addr)
	if err != nil {
		return "", classifyConnectErr(err)
	}
	c.client = client

	if wd, err := c.client.Getwd(); err == nil {
		c.cwd = wd
	}
	return "", nil
}

func (c *Client) Disconnect() {
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

func (c *Client) IsConnected() bool { return c.client != nil }

func (c *Client) Pwd(ctx context.Context) (string, error) {
	return c.cwd, nil
}

func (c *Client) Cd(ctx context.Context, p string) (string, error) {
	full := c.resolve(p)
	if _, err := c.client.Stat(full); err != nil {
		return "", wrapFTPErr(full, err)
	}
	c.cwd = full
	return c.cwd, nil
}

func (c *Client) resolve(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return fsentry.NormalizePath(p)
	}
	return fsentry.Join(c.cwd, p)
}

func (c *Client) ListDir(ctx context.Context, p string) ([]fsentry.Entry, error) {
	full := c.resolve(p)
	infos, err := c.client.ReadDir(full)
	if err != nil {
		return nil, wrapFTPErr(full, err)
	}
	out := make([]fsentry.Entry, 0, len(infos))
	for _, info := range infos {
		select {
		case <-ctx.Done():
			return nil, ferrors.New(ferrors.Cancelled, ctx.Err())
		default:
		}
		out = append(out, toEntry(fsentry.Join(full, info.Name()), info))
	}
	return out, nil
}

func (c *Client) Stat(ctx context.Context, p string) (fsentry.Entry, error) {
	full := c.resolve(p)
	info, err := c.client.Stat(full)
	if err != nil {
		return fsentry.Entry{}, wrapFTPErr(full, err)
	}
	return toEntry(full, info), nil
}

func toEntry(fullPath string, info os.FileInfo) fsentry.Entry {
	mt := info.ModTime()
	e := fsentry.Entry{
		Name:    info.Name(),
		Path:    fsentry.NormalizePath(fullPath),
		Size:    info.Size(),
		ModTime: &mt,
	}
	if info.IsDir() {
		e.Kind = fsentry.Directory
	} else {
		e.Kind = fsentry.File
	}
	return e
}

func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	_, err := c.client.Stat(c.resolve(p))
	if err == nil {
		return true, nil
	}
	if ferrors.Is(wrapFTPErr(p, err), ferrors.NotFound) {
		return false, nil
	}
	return false, wrapFTPErr(p, err)
}

func (c *Client) Mkdir(ctx context.Context, p string) error {
	full := c.resolve(p)
	_, err := c.client.Mkdir(full)
	if err != nil {
		if _, statErr := c.client.Stat(full); statErr == nil {
			return nil
		}
		return wrapFTPErr(full, err)
	}
	return nil
}

func (c *Client) RemoveFile(ctx context.Context, p string) error {
	full := c.resolve(p)
	return wrapFTPErr(full, c.client.Delete(full))
}

func (c *Client) RemoveDir(ctx context.Context, p string) error {
	full := c.resolve(p)
	return wrapFTPErr(full, c.client.Rmdir(full))
}

func (c *Client) RemoveDirAll(ctx context.Context, p string) error {
	full := c.resolve(p)
	return wrapFTPErr(full, c.removeAll(ctx, full))
}

func (c *Client) removeAll(ctx context.Context, full string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	infos, err := c.client.ReadDir(full)
	if err != nil {
		return nil
	}
	for _, info := range infos {
		childPath := fsentry.Join(full, info.Name())
		if info.IsDir() {
			if err := c.removeAll(ctx, childPath); err != nil {
				return err
			}
		} else if err := c.client.Delete(childPath); err != nil {
			return err
		}
	}
	return c.client.Rmdir(full)
}

func (c *Client) Rename(ctx context.Context, from, to string) error {
	fromFull, toFull := c.resolve(from), c.resolve(to)
	return wrapFTPErr(fromFull, c.client.Rename(fromFull, toFull))
}

// Symlink, Chmod and Chown have no FTP equivalent.
func (c *Client) Symlink(ctx context.Context, link, target string) error {
	return ferrors.NewPath(ferrors.UnsupportedFeature, link, nil)
}

func (c *Client) Chmod(ctx context.Context, p string, mode uint32) error {
	return ferrors.NewPath(ferrors.UnsupportedFeature, p, nil)
}

func (c *Client) Chown(ctx context.Context, p string, uid, gid int) error {
	return ferrors.NewPath(ferrors.UnsupportedFeature, p, nil)
}

func (c *Client) OpenRead(ctx context.Context, p string) (filetransfer.ReadStream, error) {
	full := c.resolve(p)
	pr, pw := io.Pipe()
	go func() {
		err := c.client.Retrieve(full, pw)
		pw.CloseWithError(err)
	}()
	return pr, nil
}

// OpenWrite returns a pipe whose writer side feeds goftp's Store call
// running in a background goroutine; Finalize waits for Store to
// finish and surfaces its error.
func (c *Client) OpenWrite(ctx context.Context, p string, size int64) (filetransfer.WriteStream, error) {
	full := c.resolve(p)
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- c.client.Store(full, pr)
	}()
	return &ftpWriteStream{full: full, w: pw, r: pr, done: done}, nil
}

type ftpWriteStream struct {
	full string
	w    *io.PipeWriter
	r    *io.PipeReader
	done chan error
}

func (s *ftpWriteStream) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *ftpWriteStream) finish() error {
	s.w.Close()
	err := <-s.done
	return wrapFTPErr(s.full, err)
}

func (c *Client) Finalize(ctx context.Context, stream filetransfer.WriteStream) error {
	if ws, ok := stream.(*ftpWriteStream); ok {
		return ws.finish()
	}
	return nil
}

var _ filetransfer.FileTransfer = (*Client)(nil)

func classifyConnectErr(err error) error {
	if code, ok := ftpCode(err); ok && code == 530 {
		return ferrors.New(ferrors.AuthFailed, err)
	}
	return ferrors.New(ferrors.ConnectionFailed, err)
}

func wrapFTPErr(p string, err error) error {
	if err == nil {
		return nil
	}
	if code, ok := ftpCode(err); ok {
		switch code {
		case 550:
			return ferrors.NewPath(ferrors.NotFound, p, err)
		case 530:
			return ferrors.NewPath(ferrors.AuthFailed, p, err)
		case 553:
			return ferrors.NewPath(ferrors.NameConflict, p, err)
		}
	}
	return ferrors.NewPath(ferrors.Io, p, err)
}

// ftpCode extracts the three-digit FTP reply code from a goftp error,
// if the error carries one.
func ftpCode(err error) (int, bool) {
	type coder interface{ Code() int }
	if c, ok := err.(coder); ok {
		return c.Code(), true
	}
	return 0, false
}
