//go:build linux

package local

import (
	"os"

	"golang.org/x/sys/unix"
)

// renameNoReplace renames oldpath to newpath, failing with EEXIST if
// newpath exists. Filesystems without RENAME_NOREPLACE support fall back
// to renameExclusive.
func renameNoReplace(oldpath, newpath string) error {
	err := unix.Renameat2(unix.AT_FDCWD, oldpath, unix.AT_FDCWD, newpath, unix.RENAME_NOREPLACE)
	if err == nil {
		return nil
	}
	if err == unix.EINVAL || err == unix.ENOSYS || err == unix.ENOTSUP {
		return renameExclusive(oldpath, newpath)
	}
	return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: err}
}

// renameNoReplaceAt is renameNoReplace for a file named relative to dir.
func renameNoReplaceAt(dir int, name, newpath string) error {
	err := unix.Renameat2(dir, name, unix.AT_FDCWD, newpath, unix.RENAME_NOREPLACE)
	if err == nil {
		return nil
	}
	if err == unix.EINVAL || err == unix.ENOSYS || err == unix.ENOTSUP {
		return linkExclusiveAt(dir, name, newpath)
	}
	return &os.LinkError{Op: "rename", Old: name, New: newpath, Err: err}
}
