package local

import (
	"errors"
	"os"
	"testing"

	"github.com/marmos91/dittostorage/pkg/provider"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestTranslate(t *testing.T) {
	pathErr := func(errno unix.Errno) error {
		return &os.PathError{Op: "open", Path: "/r/x", Err: errno}
	}

	tests := []struct {
		name string
		err  error
		kind provider.ErrorKind
		code int
	}{
		{"EACCES", pathErr(unix.EACCES), provider.KindPermission, 0},
		{"EPERM", pathErr(unix.EPERM), provider.KindPermission, 0},
		{"ENOSPC", pathErr(unix.ENOSPC), provider.KindQuota, 0},
		{"EDQUOT", pathErr(unix.EDQUOT), provider.KindQuota, 0},
		{"ENOENT", pathErr(unix.ENOENT), provider.KindNotExists, 0},
		{"EIO", pathErr(unix.EIO), provider.KindResource, int(unix.EIO)},
		{"no errno", errors.New("odd"), provider.KindResource, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translate("Op()", tt.err, "key")
			se, ok := provider.AsStorageError(err)
			if assert.True(t, ok) {
				assert.Equal(t, tt.kind, se.Kind)
				assert.Equal(t, tt.code, se.Code)
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}

	se, _ := provider.AsStorageError(translate("Op()", pathErr(unix.ENOENT), "/r/x"))
	assert.Equal(t, "/r/x", se.Key)

	orig := provider.Conflict("already classified")
	assert.Same(t, orig, translate("Op()", orig, ""))
	assert.NoError(t, translate("Op()", nil, ""))
}
