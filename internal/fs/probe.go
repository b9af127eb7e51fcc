package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// ProbeWritable creates and removes a scratch file in dir.
func ProbeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	_, werr := f.Write([]byte("probe"))
	cerr := f.Close()
	_ = os.Remove(name)
	if werr != nil {
		return fmt.Errorf("%s is not writable: %w", dir, werr)
	}
	if cerr != nil {
		return fmt.Errorf("%s is not writable: %w", dir, cerr)
	}
	return nil
}

// ProbeSymlink checks that symlinks can be created and read back in dir.
func ProbeSymlink(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-target-*")
	if err != nil {
		return fmt.Errorf("symlink probe in %s: %w", dir, err)
	}
	target := f.Name()
	f.Close()
	defer os.Remove(target)

	link := filepath.Join(dir, filepath.Base(target)+".link")
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("filesystem at %s does not support symlinks: %w", dir, err)
	}
	defer os.Remove(link)

	got, err := os.Readlink(link)
	if err != nil {
		return fmt.Errorf("symlink probe in %s: %w", dir, err)
	}
	if got != target {
		return fmt.Errorf("symlink probe in %s: read back %q, want %q", dir, got, target)
	}
	return nil
}

// IsCrossDevice reports whether err is a rename failure across filesystems.
func IsCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}

// SameDevice reports whether a and b live on the same filesystem.
func SameDevice(a, b string) (bool, error) {
	var sa, sb unix.Stat_t
	if err := unix.Stat(a, &sa); err != nil {
		return false, &os.PathError{Op: "stat", Path: a, Err: err}
	}
	if err := unix.Stat(b, &sb); err != nil {
		return false, &os.PathError{Op: "stat", Path: b, Err: err}
	}
	return sa.Dev == sb.Dev, nil
}

// FileID identifies an inode on one device.
type FileID struct {
	Dev uint64
	Ino uint64
}

// IdentityOf returns the inode behind info. ok is false when info carries no
// inode information.
func IdentityOf(info os.FileInfo) (id FileID, ok bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return FileID{}, false
	}
	return FileID{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}, true
}
