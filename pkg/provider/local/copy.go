package local

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/future"
	"github.com/marmos91/dittostorage/pkg/provider"
	"golang.org/x/sys/unix"
)

// Copy duplicates an item. Files are copied into a temporary file that is
// renamed into place. Folders are copied recursively into a temporary
// directory next to the target, which is renamed to the target name once
// complete, so a concurrent listing sees either nothing or the whole tree.
func (p *Provider) Copy(itemID, newParentID, newName string, keys []string, ctx *provider.AuthContext) *future.Future[provider.Item] {
	const method = "Copy()"
	return submit(p, func() (provider.Item, error) {
		newName, err := sanitize(method, newName)
		if err != nil {
			return provider.Item{}, err
		}
		src, err := p.resolve(method, itemID)
		if err != nil {
			return provider.Item{}, err
		}
		dst, err := p.resolve(method, newParentID)
		if err != nil {
			return provider.Item{}, err
		}

		release := p.locks.Acquire(itemID, newParentID)
		defer release()

		if err := p.pairCheck(ctx, method, src, dst, itemID, newParentID); err != nil {
			return provider.Item{}, err
		}

		info, err := os.Lstat(itemID)
		if err != nil {
			return provider.Item{}, translate(method, err, itemID)
		}
		if err := p.requireFolder(method, newParentID); err != nil {
			return provider.Item{}, err
		}
		target := filepath.Join(newParentID, newName)
		if _, err := os.Lstat(target); err == nil {
			return provider.Item{}, provider.Exists(target, newName, "%s: item with name %q exists already", method, newName)
		}

		tmp := filepath.Join(newParentID, tempName())
		switch {
		case info.Mode().IsRegular():
			err = copyFile(itemID, tmp, info.Mode().Perm())
		case info.IsDir():
			err = copyTree(itemID, tmp, tmp)
		default:
			return provider.Item{}, provider.Logic("%s: %s is neither a file nor a folder", method, itemID)
		}
		if err == nil {
			err = renameNoReplace(tmp, target)
		}
		if err != nil {
			if rmErr := os.RemoveAll(tmp); rmErr != nil {
				logger.Warn("%s: remove %s: %v", method, tmp, rmErr)
			}
			if isErrno(err, unix.EEXIST) || isErrno(err, unix.ENOTEMPTY) {
				return provider.Item{}, provider.Exists(target, newName, "%s: item with name %q exists already", method, newName)
			}
			return provider.Item{}, translate(method, err, itemID)
		}

		if err := p.tombstones.Clear(ctx.Ctx(), target); err != nil {
			logger.Warn("%s: clear tombstone %s: %v", method, target, err)
		}

		logger.Debug("%s: %s -> %s", method, itemID, target)
		return p.makeItem(method, dst, target, keys)
	})
}

// copyFile copies src into a new file at dst and syncs it.
func copyFile(src, dst string, perm os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// copyTree recursively copies the directory src to the new directory dst.
// skip is never descended into; it is the temporary directory itself when
// a folder is copied into its own subtree. Reserved entries and anything
// that is neither a file nor a directory are ignored.
func copyTree(src, dst, skip string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if err := os.Mkdir(dst, info.Mode().Perm()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		if from == skip || isReserved(entry.Name()) {
			continue
		}
		to := filepath.Join(dst, entry.Name())

		switch {
		case entry.Type().IsRegular():
			fi, err := entry.Info()
			if err != nil {
				return err
			}
			if err := copyFile(from, to, fi.Mode().Perm()); err != nil {
				return fmt.Errorf("copy %s: %w", from, err)
			}
		case entry.IsDir():
			if err := copyTree(from, to, skip); err != nil {
				return err
			}
		}
	}
	return nil
}
