// Package local implements provider.Provider on a local directory tree.
//
// Item identities are canonical absolute paths. Each configured root is a
// separate account; operations that span two roots are refused.
//
// Concurrency:
//   - Read-only operations (Roots, List, Lookup, Metadata) run on the
//     caller's goroutine and take no locks.
//   - Mutating operations run on the worker pool. Each holds the lock of
//     every item it touches, acquired in one call to lockset.Table.Acquire
//     so that two-item operations always lock in identity order.
//   - Tombstones are checked after the locks are held, so a concurrent
//     delete either completes first (and the operation fails with Deleted)
//     or waits for the operation to finish.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/future"
	"github.com/marmos91/dittostorage/pkg/lockset"
	"github.com/marmos91/dittostorage/pkg/provider"
	"github.com/marmos91/dittostorage/pkg/tombstone"
	"github.com/marmos91/dittostorage/pkg/workerpool"
)

// RootConfig describes one root directory.
type RootConfig struct {
	// Path is the directory to expose.
	Path string `mapstructure:"path" yaml:"path" validate:"required"`

	// Name is the display name of the root item (default: base name of Path).
	Name string `mapstructure:"name" yaml:"name,omitempty"`

	// AccountID identifies the account owning the root (default: Path).
	AccountID string `mapstructure:"account_id" yaml:"account_id,omitempty"`
}

// Config configures the local provider.
type Config struct {
	Roots []RootConfig `mapstructure:"roots" validate:"required,min=1,dive"`
}

type root struct {
	path    string
	name    string
	account string
}

// Provider is the local filesystem provider.
type Provider struct {
	roots      []*root
	pool       *workerpool.Pool
	locks      *lockset.Table
	tombstones tombstone.Store
}

var _ provider.Provider = (*Provider)(nil)

// New creates a provider. Root paths are resolved to canonical form; roots
// may not be nested inside each other.
func New(cfg Config, pool *workerpool.Pool, tombstones tombstone.Store) (*Provider, error) {
	if len(cfg.Roots) == 0 {
		return nil, fmt.Errorf("local provider: no roots configured")
	}

	p := &Provider{
		pool:       pool,
		locks:      lockset.New(),
		tombstones: tombstones,
	}

	for _, rc := range cfg.Roots {
		abs, err := filepath.Abs(rc.Path)
		if err != nil {
			return nil, fmt.Errorf("local provider: root %s: %w", rc.Path, err)
		}
		canonical, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("local provider: root %s: %w", rc.Path, err)
		}
		info, err := os.Stat(canonical)
		if err != nil {
			return nil, fmt.Errorf("local provider: root %s: %w", rc.Path, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("local provider: root %s is not a directory", rc.Path)
		}

		for _, other := range p.roots {
			if other.path == canonical || tombstone.IsBeneath(canonical, other.path) || tombstone.IsBeneath(other.path, canonical) {
				return nil, fmt.Errorf("local provider: roots %s and %s overlap", other.path, canonical)
			}
		}

		r := &root{path: canonical, name: rc.Name, account: rc.AccountID}
		if r.name == "" {
			r.name = filepath.Base(canonical)
		}
		if r.account == "" {
			r.account = canonical
		}
		p.roots = append(p.roots, r)
		logger.Info("Local provider root: %s (account %s)", r.path, r.account)
	}

	return p, nil
}

// checkLive fails with Deleted if id, or any folder above it, was deleted
// or moved away.
func (p *Provider) checkLive(ctx context.Context, method, id string) error {
	deleted, err := p.tombstones.IsDeleted(ctx, id)
	if err != nil {
		return provider.Unknown("%s: tombstone lookup failed: %v", method, err).Wrap(err)
	}
	if deleted {
		return provider.Deleted(id, filepath.Base(id), "%s: %s was deleted previously", method, id)
	}
	return nil
}

// requireFolder fails unless id is a live folder or root.
func (p *Provider) requireFolder(method, id string) error {
	info, err := os.Lstat(id)
	if err != nil {
		return translate(method, err, id)
	}
	if !info.IsDir() {
		return provider.Logic("%s: %s is not a folder", method, id)
	}
	return nil
}

// submit runs fn on the worker pool.
func submit[T any](p *Provider, fn func() (T, error)) *future.Future[T] {
	return workerpool.Submit(p.pool, fn)
}

// inline runs fn on the calling goroutine and wraps its result in a ready future.
func inline[T any](fn func() (T, error)) *future.Future[T] {
	val, err := future.Call(fn)
	if err != nil {
		return future.Failed[T](err)
	}
	return future.Ready(val)
}

func (p *Provider) Roots(keys []string, ctx *provider.AuthContext) *future.Future[[]provider.Item] {
	return inline(func() ([]provider.Item, error) {
		items := make([]provider.Item, 0, len(p.roots))
		for _, r := range p.roots {
			item, err := p.makeItem("Roots()", r, r.path, keys)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	})
}

func (p *Provider) List(itemID, pageToken string, keys []string, ctx *provider.AuthContext) *future.Future[provider.ListResult] {
	const method = "List()"
	return inline(func() (provider.ListResult, error) {
		if pageToken != "" {
			return provider.ListResult{}, provider.InvalidArgument("%s: invalid page token: %q", method, pageToken)
		}
		r, err := p.resolve(method, itemID)
		if err != nil {
			return provider.ListResult{}, err
		}
		if err := p.checkLive(ctx.Ctx(), method, itemID); err != nil {
			return provider.ListResult{}, err
		}
		if err := p.requireFolder(method, itemID); err != nil {
			return provider.ListResult{}, err
		}

		entries, err := os.ReadDir(itemID)
		if err != nil {
			return provider.ListResult{}, translate(method, err, itemID)
		}

		items := make([]provider.Item, 0, len(entries))
		for _, entry := range entries {
			if isReserved(entry.Name()) {
				continue
			}
			item, err := p.makeItem(method, r, filepath.Join(itemID, entry.Name()), keys)
			if err != nil {
				// Vanished or unsupported entries are skipped.
				if provider.IsKind(err, provider.KindNotExists) || errors.Is(err, errUnsupportedType) {
					continue
				}
				return provider.ListResult{}, err
			}
			items = append(items, item)
		}
		return provider.ListResult{Items: items}, nil
	})
}

func (p *Provider) Lookup(parentID, name string, keys []string, ctx *provider.AuthContext) *future.Future[[]provider.Item] {
	const method = "Lookup()"
	return inline(func() ([]provider.Item, error) {
		name, err := sanitize(method, name)
		if err != nil {
			return nil, err
		}
		r, err := p.resolve(method, parentID)
		if err != nil {
			return nil, err
		}
		if err := p.checkLive(ctx.Ctx(), method, parentID); err != nil {
			return nil, err
		}
		if err := p.requireFolder(method, parentID); err != nil {
			return nil, err
		}

		item, err := p.makeItem(method, r, filepath.Join(parentID, name), keys)
		if errors.Is(err, errUnsupportedType) {
			return nil, provider.NotExists(name, "%s: %s does not exist", method, name)
		}
		if err != nil {
			if se, ok := provider.AsStorageError(err); ok && se.Kind == provider.KindNotExists {
				se.Key = name
			}
			return nil, err
		}
		return []provider.Item{item}, nil
	})
}

func (p *Provider) Metadata(itemID string, keys []string, ctx *provider.AuthContext) *future.Future[provider.Item] {
	const method = "Metadata()"
	return inline(func() (provider.Item, error) {
		r, err := p.resolve(method, itemID)
		if err != nil {
			return provider.Item{}, err
		}
		if err := p.checkLive(ctx.Ctx(), method, itemID); err != nil {
			return provider.Item{}, err
		}
		item, err := p.makeItem(method, r, itemID, keys)
		if errors.Is(err, errUnsupportedType) {
			return provider.Item{}, provider.NotExists(itemID, "%s: %s does not exist", method, itemID)
		}
		return item, err
	})
}
