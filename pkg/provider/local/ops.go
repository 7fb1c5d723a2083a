package local

import (
	"os"
	"path/filepath"

	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/future"
	"github.com/marmos91/dittostorage/pkg/provider"
	"github.com/marmos91/dittostorage/pkg/tombstone"
	"golang.org/x/sys/unix"
)

func (p *Provider) CreateFolder(parentID, name string, keys []string, ctx *provider.AuthContext) *future.Future[provider.Item] {
	const method = "CreateFolder()"
	return submit(p, func() (provider.Item, error) {
		name, err := sanitize(method, name)
		if err != nil {
			return provider.Item{}, err
		}
		r, err := p.resolve(method, parentID)
		if err != nil {
			return provider.Item{}, err
		}
		target := filepath.Join(parentID, name)

		release := p.locks.Acquire(parentID, target)
		defer release()

		if err := p.checkLive(ctx.Ctx(), method, parentID); err != nil {
			return provider.Item{}, err
		}
		if err := p.requireFolder(method, parentID); err != nil {
			return provider.Item{}, err
		}

		if err := os.Mkdir(target, 0o755); err != nil {
			if isErrno(err, unix.EEXIST) {
				return provider.Item{}, provider.Exists(target, name, "%s: item with name %q exists already", method, name)
			}
			return provider.Item{}, translate(method, err, parentID)
		}
		if err := p.tombstones.Clear(ctx.Ctx(), target); err != nil {
			logger.Warn("%s: clear tombstone %s: %v", method, target, err)
		}

		logger.Debug("%s: created %s", method, target)
		return p.makeItem(method, r, target, keys)
	})
}

func (p *Provider) Delete(itemID string, ctx *provider.AuthContext) *future.Future[struct{}] {
	const method = "Delete()"
	return submit(p, func() (struct{}, error) {
		r, err := p.resolve(method, itemID)
		if err != nil {
			return struct{}{}, err
		}
		if itemID == r.path {
			return struct{}{}, provider.Logic("%s: cannot delete root", method)
		}

		parent := filepath.Dir(itemID)
		release := p.locks.Acquire(parent, itemID)
		defer release()

		if err := p.checkLive(ctx.Ctx(), method, itemID); err != nil {
			return struct{}{}, err
		}
		// The rename fails if the item has gone, and hides a tree that is
		// only partly removed.
		doomed := filepath.Join(parent, tempName())
		if err := os.Rename(itemID, doomed); err != nil {
			return struct{}{}, translate(method, err, itemID)
		}
		if err := os.RemoveAll(doomed); err != nil {
			logger.Warn("%s: remove %s (was %s): %v", method, doomed, itemID, err)
		}
		if err := p.tombstones.Mark(ctx.Ctx(), itemID); err != nil {
			return struct{}{}, provider.Unknown("%s: record deletion of %s: %v", method, itemID, err).Wrap(err)
		}

		logger.Debug("%s: deleted %s", method, itemID)
		return struct{}{}, nil
	})
}

// pairCheck runs the checks shared by Move and Copy once both locks are
// held: tombstones on both ends, then the same-account rule.
func (p *Provider) pairCheck(ctx *provider.AuthContext, method string, src, dst *root, itemID, newParentID string) error {
	if err := p.checkLive(ctx.Ctx(), method, itemID); err != nil {
		return err
	}
	if err := p.checkLive(ctx.Ctx(), method, newParentID); err != nil {
		return err
	}
	if src.account != dst.account {
		return provider.Logic("%s: source (%s) and target (%s) must belong to the same account", method, itemID, newParentID)
	}
	return nil
}

func (p *Provider) Move(itemID, newParentID, newName string, keys []string, ctx *provider.AuthContext) *future.Future[provider.Item] {
	const method = "Move()"
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
		if itemID == src.path {
			return provider.Item{}, provider.Logic("%s: cannot move root folder", method)
		}

		target := filepath.Join(newParentID, newName)
		if target == itemID || tombstone.IsBeneath(target, itemID) {
			return provider.Item{}, provider.Logic("%s: cannot move %s into itself", method, itemID)
		}
		if _, err := os.Lstat(itemID); err != nil {
			return provider.Item{}, translate(method, err, itemID)
		}
		if err := p.requireFolder(method, newParentID); err != nil {
			return provider.Item{}, err
		}
		if _, err := os.Lstat(target); err == nil {
			return provider.Item{}, provider.Exists(target, newName, "%s: item with name %q exists already", method, newName)
		}

		if err := renameNoReplace(itemID, target); err != nil {
			if isErrno(err, unix.EEXIST) || isErrno(err, unix.ENOTEMPTY) {
				return provider.Item{}, provider.Exists(target, newName, "%s: item with name %q exists already", method, newName)
			}
			return provider.Item{}, translate(method, err, itemID)
		}

		if err := p.tombstones.Mark(ctx.Ctx(), itemID); err != nil {
			logger.Error("%s: record move of %s: %v", method, itemID, err)
		}
		if err := p.tombstones.Clear(ctx.Ctx(), target); err != nil {
			logger.Warn("%s: clear tombstone %s: %v", method, target, err)
		}

		logger.Debug("%s: %s -> %s", method, itemID, target)
		return p.makeItem(method, dst, target, keys)
	})
}
