package local

import (
	"os"

	"golang.org/x/sys/unix"
)

// renameExclusive is the portable no-replace rename. Files are hard linked
// into place, which fails atomically when newpath exists. Directories
// cannot be linked, so they are checked and renamed; the caller's item
// locks keep other provider operations from racing the check.
func renameExclusive(oldpath, newpath string) error {
	info, err := os.Lstat(oldpath)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		if err := os.Link(oldpath, newpath); err != nil {
			return err
		}
		return os.Remove(oldpath)
	}

	if _, err := os.Lstat(newpath); err == nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: unix.EEXIST}
	}
	return os.Rename(oldpath, newpath)
}

// linkExclusiveAt moves the file name in dir to newpath by hard link,
// failing with EEXIST if newpath exists.
func linkExclusiveAt(dir int, name, newpath string) error {
	if err := unix.Linkat(dir, name, unix.AT_FDCWD, newpath, 0); err != nil {
		return &os.LinkError{Op: "link", Old: name, New: newpath, Err: err}
	}
	if err := unix.Unlinkat(dir, name, 0); err != nil {
		return &os.PathError{Op: "unlink", Path: name, Err: err}
	}
	return nil
}
