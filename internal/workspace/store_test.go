package workspace

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGetUpdate(t *testing.T) {
	for _, driver := range []string{"sqlite", "sqlite3"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			s, err := Open(filepath.Join(t.TempDir(), "ws.db"), driver)
			require.NoError(t, err)
			defer s.Close()

			var missing []string
			found, err := s.Get(ctx, "nothing", &missing)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, s.Update(ctx, "lines", []int{1, 2, 3}))
			require.NoError(t, s.Update(ctx, "lines", []int{4}))

			var got []int
			found, err = s.Get(ctx, "lines", &got)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, []int{4}, got)

			keys, err := s.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"lines"}, keys)

			require.NoError(t, s.Update(ctx, "lines", nil))
			found, err = s.Get(ctx, "lines", &got)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ws.db")

	s, err := Open(path, "")
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, "k", map[string]string{"a": "b"}))
	require.NoError(t, s.Close())

	s2, err := Open(path, "")
	require.NoError(t, err)
	defer s2.Close()

	var got map[string]string
	found, err := s2.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "b", got["a"])
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "ws.db"), "postgres")
	assert.Error(t, err)
}
