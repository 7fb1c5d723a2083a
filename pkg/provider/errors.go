package provider

import (
	"errors"
	"fmt"
)

// ErrorKind is the category of a StorageError.
//
// Kinds are stable and cross the bus boundary by name (see String), so new
// kinds may be appended but existing ones must never be renumbered.
type ErrorKind int

const (
	// KindUnknown is anything that could not be classified.
	KindUnknown ErrorKind = iota

	// KindNotExists means the item or parent addressed by Key does not exist.
	KindNotExists

	// KindExists means the target name is already taken by Identity/Name.
	KindExists

	// KindUnauthorized means the credentials were rejected. It is the only
	// kind the request pipeline retries.
	KindUnauthorized

	// KindPermission means the operating system refused access.
	KindPermission

	// KindInvalidArgument means a caller-supplied parameter is malformed.
	KindInvalidArgument

	// KindLogic means the request is well formed but makes no sense, such as
	// moving a root or copying across accounts.
	KindLogic

	// KindResource is a filesystem failure. Code carries the errno.
	KindResource

	// KindRemoteComms is a failure talking to a remote backend.
	KindRemoteComms

	// KindDeleted means the item was deleted or moved away earlier.
	KindDeleted

	// KindQuota means the backend is out of space.
	KindQuota

	// KindConflict means the item changed since the caller last saw it.
	KindConflict

	// KindCancelled means the operation was cancelled before completing.
	KindCancelled
)

var kindNames = map[ErrorKind]string{
	KindUnknown:         "Unknown",
	KindNotExists:       "NotExists",
	KindExists:          "Exists",
	KindUnauthorized:    "Unauthorized",
	KindPermission:      "Permission",
	KindInvalidArgument: "InvalidArgument",
	KindLogic:           "Logic",
	KindResource:        "Resource",
	KindRemoteComms:     "RemoteComms",
	KindDeleted:         "Deleted",
	KindQuota:           "Quota",
	KindConflict:        "Conflict",
	KindCancelled:       "Cancelled",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// StorageError is the error type returned by every Provider operation.
type StorageError struct {
	Kind    ErrorKind
	Message string

	// Key is the missing key for KindNotExists.
	Key string

	// Identity and Name describe the item for KindExists and KindDeleted.
	Identity string
	Name     string

	// Code is the OS error number for KindResource.
	Code int

	// Err is the underlying cause, if any.
	Err error
}

func (e *StorageError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, format string, args ...any) *StorageError {
	return &StorageError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotExists(key, format string, args ...any) *StorageError {
	e := newError(KindNotExists, format, args...)
	e.Key = key
	return e
}

func Exists(identity, name, format string, args ...any) *StorageError {
	e := newError(KindExists, format, args...)
	e.Identity = identity
	e.Name = name
	return e
}

func Deleted(identity, name, format string, args ...any) *StorageError {
	e := newError(KindDeleted, format, args...)
	e.Identity = identity
	e.Name = name
	return e
}

func Resource(code int, format string, args ...any) *StorageError {
	e := newError(KindResource, format, args...)
	e.Code = code
	return e
}

func Unauthorized(format string, args ...any) *StorageError {
	return newError(KindUnauthorized, format, args...)
}

func Permission(format string, args ...any) *StorageError {
	return newError(KindPermission, format, args...)
}

func InvalidArgument(format string, args ...any) *StorageError {
	return newError(KindInvalidArgument, format, args...)
}

func Logic(format string, args ...any) *StorageError {
	return newError(KindLogic, format, args...)
}

func RemoteComms(format string, args ...any) *StorageError {
	return newError(KindRemoteComms, format, args...)
}

func Quota(format string, args ...any) *StorageError {
	return newError(KindQuota, format, args...)
}

func Conflict(format string, args ...any) *StorageError {
	return newError(KindConflict, format, args...)
}

func Cancelled(format string, args ...any) *StorageError {
	return newError(KindCancelled, format, args...)
}

func Unknown(format string, args ...any) *StorageError {
	return newError(KindUnknown, format, args...)
}

// Wrap attaches cause to e and returns e.
func (e *StorageError) Wrap(cause error) *StorageError {
	e.Err = cause
	return e
}

// AsStorageError returns the first StorageError in err's chain.
func AsStorageError(err error) (*StorageError, bool) {
	var se *StorageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUnknown if err carries no
// StorageError.
func KindOf(err error) ErrorKind {
	if se, ok := AsStorageError(err); ok {
		return se.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a StorageError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	se, ok := AsStorageError(err)
	return ok && se.Kind == kind
}
