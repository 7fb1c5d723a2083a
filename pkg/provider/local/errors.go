package local

import (
	"errors"

	"github.com/marmos91/dittostorage/pkg/provider"
	"golang.org/x/sys/unix"
)

// translate converts an operating system error into the provider taxonomy.
// key names the entry reported by NotExists. Errors that already are
// StorageErrors pass through unchanged.
func translate(method string, err error, key string) error {
	if err == nil {
		return nil
	}
	if _, ok := provider.AsStorageError(err); ok {
		return err
	}

	var errno unix.Errno
	if !errors.As(err, &errno) {
		return provider.Resource(0, "%s: %v", method, err).Wrap(err)
	}

	switch errno {
	case unix.EACCES, unix.EPERM:
		return provider.Permission("%s: %v", method, err).Wrap(err)
	case unix.EDQUOT, unix.ENOSPC:
		return provider.Quota("%s: %v", method, err).Wrap(err)
	case unix.ENOENT:
		return provider.NotExists(key, "%s: %s does not exist", method, key).Wrap(err)
	default:
		return provider.Resource(int(errno), "%s: %v", method, err).Wrap(err)
	}
}

func isErrno(err error, want unix.Errno) bool {
	var errno unix.Errno
	return errors.As(err, &errno) && errno == want
}
