// Package host provides the local filesystem capability mirror of
// filetransfer.FileTransfer, letting the transfer engine treat the
// local side and a remote backend identically (spec §4, "Host").
//
// Grounded on internal/localfs/browser.go's ListDirectory/Walk/WalkCollect.
package host

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/rescale-labs/termscp/internal/ferrors"
	"github.com/rescale-labs/termscp/internal/filetransfer"
	"github.com/rescale-labs/termscp/internal/fsentry"
)

// Host implements filetransfer.FileTransfer over the local filesystem.
type Host struct {
	mu  sync.Mutex
	cwd string
}

// New creates a Host rooted at the process's current working directory,
// or at dir if non-empty.
func New(dir string) (*Host, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Host{cwd: abs}, nil
}

func (h *Host) Connect(ctx context.Context) (string, error) { return "", nil }
func (h *Host) Disconnect()                                 {}
func (h *Host) IsConnected() bool                            { return true }

func (h *Host) Pwd(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cwd, nil
}

func (h *Host) Cd(ctx context.Context, path string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(h.cwd, target)
	}
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ferrors.NewPath(ferrors.NotFound, target, err)
		}
		return "", ferrors.NewPath(ferrors.Io, target, err)
	}
	if !info.IsDir() {
		return "", ferrors.NewPath(ferrors.Protocol, target, nil)
	}
	h.cwd = target
	return h.cwd, nil
}

func toEntry(fullPath string, info os.FileInfo) fsentry.Entry {
	mode := uint32(info.Mode().Perm())
	mt := info.ModTime()
	e := fsentry.Entry{
		Name:    info.Name(),
		Path:    fsentry.NormalizePath(filepath.ToSlash(fullPath)),
		Size:    info.Size(),
		Mode:    &mode,
		ModTime: &mt,
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		e.Kind = fsentry.Symlink
		if target, err := os.Readlink(fullPath); err == nil {
			e.LinkPath = target
		}
	case info.IsDir():
		e.Kind = fsentry.Directory
	default:
		e.Kind = fsentry.File
	}
	return e
}

func (h *Host) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return filepath.Join(h.cwd, p)
}

// ListDir lists entries in path, omitting "." and "..". Dotfiles are
// included; filtering them is a presentation-layer concern (spec §4.1).
func (h *Host) ListDir(ctx context.Context, path string) ([]fsentry.Entry, error) {
	full := h.resolve(path)
	dirents, err := os.ReadDir(full)
	if err != nil {
		return nil, wrapOSErr(full, err)
	}
	out := make([]fsentry.Entry, 0, len(dirents))
	for _, d := range dirents {
		select {
		case <-ctx.Done():
			return nil, ferrors.New(ferrors.Cancelled, ctx.Err())
		default:
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		out = append(out, toEntry(filepath.Join(full, d.Name()), info))
	}
	return out, nil
}

func (h *Host) Stat(ctx context.Context, path string) (fsentry.Entry, error) {
	full := h.resolve(path)
	info, err := os.Lstat(full)
	if err != nil {
		return fsentry.Entry{}, wrapOSErr(full, err)
	}
	e := toEntry(full, info)
	if e.Kind == fsentry.Symlink {
		resolveSymlink(&e, full, 0)
	}
	return e, nil
}

func resolveSymlink(e *fsentry.Entry, full string, depth int) {
	if depth >= fsentry.MaxSymlinkDepth {
		return
	}
	target := e.LinkPath
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(full), target)
	}
	info, err := os.Lstat(target)
	if err != nil {
		return
	}
	sub := toEntry(target, info)
	if sub.Kind == fsentry.Symlink {
		resolveSymlink(&sub, target, depth+1)
	}
	e.Target = &sub
}

func (h *Host) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Lstat(h.resolve(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, wrapOSErr(path, err)
}

func (h *Host) Mkdir(ctx context.Context, path string) error {
	err := os.Mkdir(h.resolve(path), 0o755)
	if err != nil && !os.IsExist(err) {
		return wrapOSErr(path, err)
	}
	return nil
}

func (h *Host) RemoveFile(ctx context.Context, path string) error {
	return wrapOSErr(path, os.Remove(h.resolve(path)))
}

func (h *Host) RemoveDir(ctx context.Context, path string) error {
	return wrapOSErr(path, os.Remove(h.resolve(path)))
}

func (h *Host) RemoveDirAll(ctx context.Context, path string) error {
	return wrapOSErr(path, os.RemoveAll(h.resolve(path)))
}

func (h *Host) Rename(ctx context.Context, from, to string) error {
	return wrapOSErr(from, os.Rename(h.resolve(from), h.resolve(to)))
}

func (h *Host) Symlink(ctx context.Context, link, target string) error {
	return wrapOSErr(link, os.Symlink(target, h.resolve(link)))
}

func (h *Host) Chmod(ctx context.Context, path string, mode uint32) error {
	return wrapOSErr(path, os.Chmod(h.resolve(path), fs.FileMode(mode)))
}

func (h *Host) Chown(ctx context.Context, path string, uid, gid int) error {
	if runtime.GOOS == "windows" {
		return ferrors.NewPath(ferrors.UnsupportedFeature, path, nil)
	}
	return wrapOSErr(path, os.Chown(h.resolve(path), uid, gid))
}

func (h *Host) OpenRead(ctx context.Context, path string) (filetransfer.ReadStream, error) {
	f, err := os.Open(h.resolve(path))
	if err != nil {
		return nil, wrapOSErr(path, err)
	}
	return f, nil
}

func (h *Host) OpenWrite(ctx context.Context, path string, size int64) (filetransfer.WriteStream, error) {
	f, err := os.Create(h.resolve(path))
	if err != nil {
		return nil, wrapOSErr(path, err)
	}
	return f, nil
}

func (h *Host) Finalize(ctx context.Context, stream filetransfer.WriteStream) error {
	if c, ok := stream.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var _ filetransfer.FileTransfer = (*Host)(nil)

func wrapOSErr(path string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return ferrors.NewPath(ferrors.NotFound, path, err)
	case os.IsPermission(err):
		return ferrors.NewPath(ferrors.PermissionDenied, path, err)
	case os.IsExist(err):
		return ferrors.NewPath(ferrors.AlreadyExists, path, err)
	default:
		return ferrors.NewPath(ferrors.Io, path, err)
	}
}
