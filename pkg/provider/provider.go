// Package provider defines the storage operation contract that backends
// implement, together with the values that cross it: items, the per-request
// AuthContext and the StorageError taxonomy.
//
// Every operation is asynchronous and returns a *future.Future. A failed
// future always carries a *StorageError; backends must translate their own
// errors at the boundary.
package provider

import (
	"io"

	"github.com/marmos91/dittostorage/pkg/future"
)

// ConflictPolicy controls what happens when the caller's expected ETag does
// not match the current one.
type ConflictPolicy int

const (
	// ConflictError fails the operation with KindConflict.
	ConflictError ConflictPolicy = iota

	// ConflictIgnore proceeds regardless of the current ETag.
	ConflictIgnore
)

// UnknownSize is passed as the size of an upload whose length is not known
// in advance.
const UnknownSize int64 = -1

// ListResult is one page of a folder listing. NextToken is empty on the
// last page.
type ListResult struct {
	Items     []Item
	NextToken string
}

// UploadJob receives the bytes of a new or replaced file.
type UploadJob interface {
	// Finish waits for the sender to close the data channel and commits the
	// upload, returning the resulting item.
	Finish() *future.Future[Item]

	// Cancel abandons the upload. Nothing is committed and the data channel
	// is closed.
	Cancel() error
}

// DownloadJob sends the bytes of a file.
type DownloadJob interface {
	// Finish waits until every byte has been written to the data channel.
	Finish() *future.Future[struct{}]

	// Cancel stops the transfer and closes the data channel.
	Cancel() error
}

// Provider is the storage operation contract.
//
// keys selects the optional metadata returned with each item (see the
// Metadata* constants). Upload and download operations take ownership of
// the data channel only when the returned future succeeds; on failure the
// caller still owns it.
type Provider interface {
	Roots(keys []string, ctx *AuthContext) *future.Future[[]Item]
	List(itemID, pageToken string, keys []string, ctx *AuthContext) *future.Future[ListResult]
	Lookup(parentID, name string, keys []string, ctx *AuthContext) *future.Future[[]Item]
	Metadata(itemID string, keys []string, ctx *AuthContext) *future.Future[Item]

	CreateFolder(parentID, name string, keys []string, ctx *AuthContext) *future.Future[Item]
	CreateFile(parentID, name string, size int64, contentType string, allowOverwrite bool,
		data io.ReadCloser, keys []string, ctx *AuthContext) *future.Future[UploadJob]
	Update(itemID string, size int64, oldETag string, data io.ReadCloser,
		keys []string, ctx *AuthContext) *future.Future[UploadJob]
	Download(itemID, matchETag string, data io.WriteCloser, ctx *AuthContext) *future.Future[DownloadJob]

	Delete(itemID string, ctx *AuthContext) *future.Future[struct{}]
	Move(itemID, newParentID, newName string, keys []string, ctx *AuthContext) *future.Future[Item]
	Copy(itemID, newParentID, newName string, keys []string, ctx *AuthContext) *future.Future[Item]
}
