package history

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAssignsSequences(t *testing.T) {
	store := openTestStore(t)

	v1, err := store.Record("demo", "function f() { return 1; }\n", false)
	require.NoError(t, err)
	v2, err := store.Record("demo", "function f() { return 2; }\n", true)
	require.NoError(t, err)

	assert.Equal(t, 1, v1.Sequence)
	assert.Equal(t, 2, v2.Sequence)
	assert.NotEqual(t, v1.ID, v2.ID)
	assert.False(t, v1.Patched)
	assert.True(t, v2.Patched)
}

func TestSequencesArePerScript(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Record("a", "var x = 1;\n", false)
	require.NoError(t, err)
	vb, err := store.Record("b", "var y = 2;\n", false)
	require.NoError(t, err)

	assert.Equal(t, 1, vb.Sequence)
}

func TestLatestAndAt(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Record("demo", "v1", false)
	require.NoError(t, err)
	_, err = store.Record("demo", "v2", true)
	require.NoError(t, err)

	latest, err := store.Latest("demo")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Sequence)
	assert.Equal(t, "v2", latest.Source)

	first, err := store.At("demo", 1)
	require.NoError(t, err)
	assert.Equal(t, "v1", first.Source)
}

func TestMissingVersions(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Latest("nothing")
	assert.ErrorIs(t, err, ErrVersionNotFound)

	_, err = store.Record("demo", "v1", false)
	require.NoError(t, err)
	_, err = store.At("demo", 7)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestListReturnsRecordingOrder(t *testing.T) {
	store := openTestStore(t)

	sources := []string{"v1", "v2", "v3"}
	for i, src := range sources {
		_, err := store.Record("demo", src, i > 0)
		require.NoError(t, err)
	}

	versions, err := store.List("demo")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Sequence)
		assert.Equal(t, sources[i], v.Source)
	}

	empty, err := store.List("nothing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFileBackedStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versions.db")

	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.Record("demo", "v1", false)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	latest, err := reopened.Latest("demo")
	require.NoError(t, err)
	assert.Equal(t, "v1", latest.Source)
}
