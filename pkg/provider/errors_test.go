package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"not exists", NotExists("/r/x", "missing"), KindNotExists},
		{"wrapped", fmt.Errorf("move: %w", Exists("/r/a", "a", "taken")), KindExists},
		{"plain error", errors.New("boom"), KindUnknown},
		{"nil", nil, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestStorageError_Fields(t *testing.T) {
	err := Resource(28, "write %s", "/r/f")
	assert.Equal(t, "write /r/f", err.Error())
	assert.Equal(t, 28, err.Code)
	assert.True(t, IsKind(err, KindResource))
	assert.False(t, IsKind(err, KindQuota))

	del := Deleted("/r/a", "a", "gone")
	assert.Equal(t, "/r/a", del.Identity)
	assert.Equal(t, "a", del.Name)
}

func TestStorageError_Unwrap(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Unknown("copy failed").Wrap(cause)
	assert.ErrorIs(t, err, cause)

	se, ok := AsStorageError(fmt.Errorf("outer: %w", err))
	require.True(t, ok)
	assert.Equal(t, KindUnknown, se.Kind)
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "NotExists", KindNotExists.String())
	assert.Equal(t, "Cancelled", KindCancelled.String())
	assert.Equal(t, "Unknown", ErrorKind(99).String())
}

func TestItemType_String(t *testing.T) {
	assert.Equal(t, "file", ItemTypeFile.String())
	assert.Equal(t, "folder", ItemTypeFolder.String())
	assert.Equal(t, "root", ItemTypeRoot.String())
}
