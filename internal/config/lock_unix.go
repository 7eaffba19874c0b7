//go:build !windows

package config

import (
	"os"

	"golang.org/x/sys/unix"
)

// FileLock is an advisory single-writer lock taken while rewriting a
// store file, preventing two concurrent termscp instances from
// corrupting each other's config/theme/bookmarks file (spec §5).
type FileLock struct {
	f *os.File
}

// Lock acquires an exclusive advisory flock on a sibling ".lock" file.
func Lock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return &FileLock{f: f}, nil
}

// Unlock releases the lock and removes the lock file handle.
func (l *FileLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
