package local

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/marmos91/dittostorage/pkg/provider"
	"github.com/marmos91/dittostorage/pkg/tombstone"
)

// TempPrefix marks entries the provider creates while an operation is in
// progress. Such entries are hidden from listings and the prefix cannot be
// used in item names.
const TempPrefix = ".dittostorage-tmp-"

func isReserved(name string) bool {
	return strings.HasPrefix(name, TempPrefix)
}

func tempName() string {
	return TempPrefix + uuid.NewString()
}

// sanitize checks that name is exactly one usable path component.
func sanitize(method, name string) (string, error) {
	if strings.ContainsRune(name, '/') {
		return "", provider.InvalidArgument("%s: name %q contains more than one path component", method, name)
	}
	if name == "" || name == "." || name == ".." {
		return "", provider.InvalidArgument("%s: invalid name: %q", method, name)
	}
	if isReserved(name) {
		return "", provider.InvalidArgument("%s: names beginning with %q are reserved", method, TempPrefix)
	}
	return name, nil
}

// resolve validates id and returns the root that contains it.
func (p *Provider) resolve(method, id string) (*root, error) {
	if id == "" || !filepath.IsAbs(id) || filepath.Clean(id) != id {
		return nil, provider.InvalidArgument("%s: invalid id: %q", method, id)
	}
	for _, r := range p.roots {
		if id != r.path && !tombstone.IsBeneath(id, r.path) {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(id, r.path), "/")
		if rel != "" {
			for _, part := range strings.Split(rel, "/") {
				if isReserved(part) {
					return nil, provider.InvalidArgument("%s: invalid id: %q", method, id)
				}
			}
			if err := checkCanonical(method, r, id); err != nil {
				return nil, err
			}
		}
		return r, nil
	}
	return nil, provider.InvalidArgument("%s: id %q is outside every root", method, id)
}

// checkCanonical rejects ids whose parent directory passes through a
// symbolic link. The leaf is checked by Lstat in each operation. A parent
// that cannot be resolved cannot be traversed either, so the operation
// itself reports the failure.
func checkCanonical(method string, r *root, id string) error {
	dir := filepath.Dir(id)
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil
	}
	if resolved != dir || (resolved != r.path && !tombstone.IsBeneath(resolved, r.path)) {
		return provider.InvalidArgument("%s: id %q is not canonical", method, id)
	}
	return nil
}
