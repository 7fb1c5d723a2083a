package provider

import "time"

// ItemType distinguishes files, folders and roots. The numeric values are
// part of the bus protocol.
type ItemType int32

const (
	ItemTypeFile ItemType = iota
	ItemTypeFolder
	ItemTypeRoot
)

func (t ItemType) String() string {
	switch t {
	case ItemTypeFile:
		return "file"
	case ItemTypeFolder:
		return "folder"
	case ItemTypeRoot:
		return "root"
	default:
		return "unknown"
	}
}

// Metadata keys understood by providers.
const (
	// MetadataAll requests every key the provider supports.
	MetadataAll = "__ALL__"

	MetadataSize             = "size"
	MetadataLastModifiedTime = "last_modified_time"
	MetadataContentType      = "content_type"
	MetadataFreeSpaceBytes   = "free_space_bytes"
	MetadataUsedSpaceBytes   = "used_space_bytes"
)

// Item describes one storage entry at a point in time. An Item is a value:
// it does not follow the entry if it is later moved or deleted.
type Item struct {
	// ItemID is the opaque identity of the entry.
	ItemID string

	// ParentIDs lists the identities of the containing folders. Roots have
	// none.
	ParentIDs []string

	Name string
	Type ItemType

	// ETag changes whenever the content or modification time changes.
	ETag string

	LastModified time.Time
	Size         int64

	// Metadata holds the optional keys that were requested. Values are
	// string or int64.
	Metadata map[string]any
}
