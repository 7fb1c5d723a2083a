package local

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/provider"
	"github.com/shirou/gopsutil/disk"
)

// errUnsupportedType is returned by makeItem for entries that are neither
// regular files nor directories (symlinks, sockets, devices).
var errUnsupportedType = errors.New("unsupported file type")

// etagOf derives the change token from the modification time in
// nanoseconds.
func etagOf(info os.FileInfo) string {
	return strconv.FormatInt(info.ModTime().UnixNano(), 10)
}

// currentETag stats path and returns its change token. A stat failure is
// reported, never replaced by an empty token.
func currentETag(method, path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", translate(method, err, path)
	}
	return etagOf(info), nil
}

func (p *Provider) makeItem(method string, r *root, path string, keys []string) (provider.Item, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return provider.Item{}, translate(method, err, path)
	}

	item := provider.Item{
		ItemID:       path,
		Name:         filepath.Base(path),
		ETag:         etagOf(info),
		LastModified: info.ModTime(),
	}

	switch {
	case path == r.path:
		item.Type = provider.ItemTypeRoot
		item.Name = r.name
	case info.Mode().IsDir():
		item.Type = provider.ItemTypeFolder
		item.ParentIDs = []string{filepath.Dir(path)}
	case info.Mode().IsRegular():
		item.Type = provider.ItemTypeFile
		item.ParentIDs = []string{filepath.Dir(path)}
		item.Size = info.Size()
	default:
		return provider.Item{}, errUnsupportedType
	}

	item.Metadata = metadataFor(path, info, item.Type, keys)
	return item, nil
}

// wantedKeys expands the requested key list. No keys means the default set;
// MetadataAll means every supported key.
func wantedKeys(keys []string) map[string]bool {
	want := make(map[string]bool)
	if len(keys) == 0 {
		want[provider.MetadataSize] = true
		want[provider.MetadataLastModifiedTime] = true
		return want
	}
	for _, k := range keys {
		if k == provider.MetadataAll {
			return map[string]bool{
				provider.MetadataSize:             true,
				provider.MetadataLastModifiedTime: true,
				provider.MetadataContentType:      true,
				provider.MetadataFreeSpaceBytes:   true,
				provider.MetadataUsedSpaceBytes:   true,
			}
		}
		want[k] = true
	}
	return want
}

func metadataFor(path string, info os.FileInfo, typ provider.ItemType, keys []string) map[string]any {
	want := wantedKeys(keys)
	md := make(map[string]any)

	if want[provider.MetadataLastModifiedTime] {
		md[provider.MetadataLastModifiedTime] = info.ModTime().UTC().Format(time.RFC3339)
	}

	switch typ {
	case provider.ItemTypeFile:
		if want[provider.MetadataSize] {
			md[provider.MetadataSize] = info.Size()
		}
		if want[provider.MetadataContentType] {
			if mt, err := mimetype.DetectFile(path); err == nil {
				md[provider.MetadataContentType] = mt.String()
			} else {
				logger.Debug("content type detection failed for %s: %v", path, err)
			}
		}

	case provider.ItemTypeRoot:
		if want[provider.MetadataFreeSpaceBytes] || want[provider.MetadataUsedSpaceBytes] {
			usage, err := disk.Usage(path)
			if err != nil {
				logger.Warn("disk usage for %s: %v", path, err)
				break
			}
			if want[provider.MetadataFreeSpaceBytes] {
				md[provider.MetadataFreeSpaceBytes] = int64(usage.Free)
			}
			if want[provider.MetadataUsedSpaceBytes] {
				md[provider.MetadataUsedSpaceBytes] = int64(usage.Used)
			}
		}
	}

	return md
}
