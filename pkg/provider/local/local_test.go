package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittostorage/pkg/provider"
	"github.com/marmos91/dittostorage/pkg/tombstone"
	"github.com/marmos91/dittostorage/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var past = time.Date(2020, 1, 2, 3, 4, 5, 6000, time.UTC)

type fixture struct {
	p    *Provider
	root string
	ctx  *provider.AuthContext
}

func newFixture(t *testing.T, extraRoots ...string) *fixture {
	t.Helper()

	pool := workerpool.New(workerpool.Config{WorkerCount: 4})
	t.Cleanup(pool.Close)

	cfg := Config{Roots: []RootConfig{{Path: t.TempDir(), Name: "Home", AccountID: "acct-1"}}}
	for _, account := range extraRoots {
		cfg.Roots = append(cfg.Roots, RootConfig{Path: t.TempDir(), AccountID: account})
	}

	p, err := New(cfg, pool, tombstone.NewMemoryStore())
	require.NoError(t, err)

	return &fixture{
		p:    p,
		root: p.roots[0].path,
		ctx:  &provider.AuthContext{Context: context.Background(), UID: 1000, PID: 42},
	}
}

func (f *fixture) path(parts ...string) string {
	return filepath.Join(append([]string{f.root}, parts...)...)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, past, past))
}

func requireKind(t *testing.T, err error, kind provider.ErrorKind) *provider.StorageError {
	t.Helper()
	require.Error(t, err)
	se, ok := provider.AsStorageError(err)
	require.True(t, ok, "expected StorageError, got %T: %v", err, err)
	require.Equal(t, kind, se.Kind, "error: %v", err)
	return se
}

func TestNew_Validation(t *testing.T) {
	pool := workerpool.New(workerpool.Config{WorkerCount: 1})
	defer pool.Close()
	store := tombstone.NewMemoryStore()

	_, err := New(Config{}, pool, store)
	assert.Error(t, err)

	_, err = New(Config{Roots: []RootConfig{{Path: filepath.Join(t.TempDir(), "missing")}}}, pool, store)
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "inner"), 0o755))
	_, err = New(Config{Roots: []RootConfig{{Path: dir}, {Path: filepath.Join(dir, "inner")}}}, pool, store)
	assert.ErrorContains(t, err, "overlap")
}

func TestRoots(t *testing.T) {
	f := newFixture(t)

	items, err := f.p.Roots(nil, f.ctx).Get()
	require.NoError(t, err)
	require.Len(t, items, 1)

	r := items[0]
	assert.Equal(t, f.root, r.ItemID)
	assert.Equal(t, "Home", r.Name)
	assert.Equal(t, provider.ItemTypeRoot, r.Type)
	assert.Empty(t, r.ParentIDs)
	assert.NotEmpty(t, r.ETag)
	assert.Contains(t, r.Metadata, provider.MetadataLastModifiedTime)
}

func TestListAndLookup(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.path("a.txt"), "hello")
	require.NoError(t, os.Mkdir(f.path("dir"), 0o755))
	writeFile(t, f.path(TempPrefix+"partial"), "x")

	res, err := f.p.List(f.root, "", nil, f.ctx).Get()
	require.NoError(t, err)
	assert.Empty(t, res.NextToken)

	byName := map[string]provider.Item{}
	for _, it := range res.Items {
		byName[it.Name] = it
	}
	require.Len(t, byName, 2, "reserved entries must be hidden")
	assert.Equal(t, provider.ItemTypeFile, byName["a.txt"].Type)
	assert.Equal(t, int64(5), byName["a.txt"].Size)
	assert.Equal(t, []string{f.root}, byName["a.txt"].ParentIDs)
	assert.Equal(t, provider.ItemTypeFolder, byName["dir"].Type)

	found, err := f.p.Lookup(f.root, "a.txt", nil, f.ctx).Get()
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, f.path("a.txt"), found[0].ItemID)

	_, err = f.p.Lookup(f.root, "nope", nil, f.ctx).Get()
	se := requireKind(t, err, provider.KindNotExists)
	assert.Equal(t, "nope", se.Key)
}

func TestList_RejectsPageTokenAndFiles(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.path("a.txt"), "x")

	_, err := f.p.List(f.root, "page-2", nil, f.ctx).Get()
	requireKind(t, err, provider.KindInvalidArgument)

	_, err = f.p.List(f.path("a.txt"), "", nil, f.ctx).Get()
	requireKind(t, err, provider.KindLogic)

	_, err = f.p.List(f.path("missing"), "", nil, f.ctx).Get()
	requireKind(t, err, provider.KindNotExists)
}

func TestSanitize_RejectsBadNames(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"../x", "", ".", "..", "a/b", TempPrefix, TempPrefix + "x"} {
		t.Run(name, func(t *testing.T) {
			_, err := f.p.CreateFolder(f.root, name, nil, f.ctx).Get()
			requireKind(t, err, provider.KindInvalidArgument)

			_, err = f.p.Lookup(f.root, name, nil, f.ctx).Get()
			requireKind(t, err, provider.KindInvalidArgument)
		})
	}
	assert.NoDirExists(t, filepath.Join(filepath.Dir(f.root), "x"))
}

func TestResolve_RejectsBadIDs(t *testing.T) {
	f := newFixture(t)

	for _, id := range []string{"", "relative/path", f.root + "/../escape", "/definitely/not/a/root", f.path(TempPrefix + "x")} {
		t.Run(id, func(t *testing.T) {
			_, err := f.p.Metadata(id, nil, f.ctx).Get()
			requireKind(t, err, provider.KindInvalidArgument)
		})
	}
}

func TestResolve_RejectsSymlinkedParents(t *testing.T) {
	f := newFixture(t)

	outside := t.TempDir()
	victim := filepath.Join(outside, "victim.txt")
	writeFile(t, victim, "keep me")
	require.NoError(t, os.Symlink(outside, f.path("link")))

	require.NoError(t, os.Mkdir(f.path("real"), 0o755))
	writeFile(t, f.path("real", "f.txt"), "inside")
	require.NoError(t, os.Symlink(f.path("real"), f.path("alias")))

	_, err := f.p.Metadata(f.path("link", "victim.txt"), nil, f.ctx).Get()
	requireKind(t, err, provider.KindInvalidArgument)

	_, err = f.p.Delete(f.path("link", "victim.txt"), f.ctx).Get()
	requireKind(t, err, provider.KindInvalidArgument)
	_, err = os.Stat(victim)
	assert.NoError(t, err, "file outside the root must survive")

	_, err = f.p.Metadata(f.path("alias", "f.txt"), nil, f.ctx).Get()
	requireKind(t, err, provider.KindInvalidArgument)

	item, err := f.p.Metadata(f.path("real", "f.txt"), nil, f.ctx).Get()
	require.NoError(t, err)
	assert.Equal(t, f.path("real", "f.txt"), item.ItemID)

	_, err = f.p.Metadata(f.path("missing", "f.txt"), nil, f.ctx).Get()
	requireKind(t, err, provider.KindNotExists)
}

func TestETag_TracksModification(t *testing.T) {
	f := newFixture(t)
	file := f.path("f")
	writeFile(t, file, "v1")

	first, err := f.p.Metadata(file, nil, f.ctx).Get()
	require.NoError(t, err)
	again, err := f.p.Metadata(file, nil, f.ctx).Get()
	require.NoError(t, err)
	assert.Equal(t, first.ETag, again.ETag, "unchanged item must keep its ETag")

	require.NoError(t, os.WriteFile(file, []byte("v2"), 0o644))
	require.NoError(t, os.Chtimes(file, past, past.Add(time.Nanosecond)))

	changed, err := f.p.Metadata(file, nil, f.ctx).Get()
	require.NoError(t, err)
	assert.NotEqual(t, first.ETag, changed.ETag)
}

func TestCurrentETag_StatFailure(t *testing.T) {
	_, err := currentETag("Update()", filepath.Join(t.TempDir(), "gone"))
	requireKind(t, err, provider.KindNotExists)
}

func TestMetadataKeys(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.path("notes.txt"), "plain text content\n")

	item, err := f.p.Metadata(f.path("notes.txt"), []string{provider.MetadataAll}, f.ctx).Get()
	require.NoError(t, err)
	assert.Equal(t, int64(19), item.Metadata[provider.MetadataSize])
	assert.Contains(t, item.Metadata[provider.MetadataContentType], "text/plain")
	assert.NotContains(t, item.Metadata, provider.MetadataFreeSpaceBytes)

	item, err = f.p.Metadata(f.path("notes.txt"), []string{provider.MetadataSize, "no_such_key"}, f.ctx).Get()
	require.NoError(t, err)
	assert.Len(t, item.Metadata, 1)

	rootItem, err := f.p.Metadata(f.root, []string{provider.MetadataAll}, f.ctx).Get()
	require.NoError(t, err)
	assert.Contains(t, rootItem.Metadata, provider.MetadataFreeSpaceBytes)
	assert.Contains(t, rootItem.Metadata, provider.MetadataUsedSpaceBytes)
}

func TestMetadata_SkipsUnsupportedTypes(t *testing.T) {
	f := newFixture(t)
	writeFile(t, f.path("target"), "x")
	require.NoError(t, os.Symlink(f.path("target"), f.path("link")))

	_, err := f.p.Metadata(f.path("link"), nil, f.ctx).Get()
	requireKind(t, err, provider.KindNotExists)

	res, err := f.p.List(f.root, "", nil, f.ctx).Get()
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "target", res.Items[0].Name)
}
