package file

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrhy/layered"
	"github.com/stretchr/testify/require"
)

var _ layered.Persist = Persist{}

func TestHappyCase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewPersistForPath(t.TempDir())
	err := p.Store(ctx, "foofoo", []byte("here is some stuff"))
	require.NoError(t, err)
	b, err := p.Load(ctx, "foofoo")
	require.NoError(t, err)
	require.Equal(t, []byte("here is some stuff"), b)
}

func TestStoreKeepsExisting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	p := NewPersistForPath(dir)
	require.NoError(t, p.Store(ctx, "name", []byte("first")))
	require.NoError(t, p.Store(ctx, "name", []byte("second")))
	b, err := p.Load(ctx, "name")
	require.NoError(t, err)
	require.Equal(t, []byte("first"), b)
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp*"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()
	_, err := NewPersistForPath(t.TempDir()).Load(context.Background(), "nope")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	cfg := layered.RemoteConfig{StoreImmutablePartsWith: NewPersistForPath(dir)}
	r := layered.New(map[string]int{"a": 1, "b": 2, "c": 3}).Put("b", 20)
	root, err := r.MakeRoot(ctx, &cfg, &layered.CreateRemoteOptions{PageSize: 2})
	require.NoError(t, err)
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 3) // two pages and a manifest
	loaded, err := layered.LoadRecord[string, int](ctx, root, &cfg)
	require.NoError(t, err)
	require.Equal(t, r.ToSlice(), loaded.ToSlice())
}
