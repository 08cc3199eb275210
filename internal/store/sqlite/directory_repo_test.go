package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentline/internal/store/sqlite"
)

func TestDirectoryRepos(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	_, err = db.Exec(`INSERT INTO profiles (id, full_name) VALUES (10, 'Nino B.'), (20, 'Giorgi K.')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO properties (id, title, owner_id) VALUES (42, 'Vake 2BR', 20)`)
	require.NoError(t, err)

	t.Run("ProfilesBatchSkipsMissing", func(t *testing.T) {
		res, err := sqlite.NewProfileRepo(db).Profiles(ctx, []int64{10, 20, 99})
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "Nino B.", res[10].FullName)
		assert.NotContains(t, res, int64(99))
	})

	t.Run("ProfilesEmptyInput", func(t *testing.T) {
		res, err := sqlite.NewProfileRepo(db).Profiles(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("Properties", func(t *testing.T) {
		res, err := sqlite.NewPropertyRepo(db).Properties(ctx, []int64{42})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "Vake 2BR", res[42].Title)
	})
}
