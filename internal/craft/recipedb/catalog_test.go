package recipedb_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/transposer-crafting-fabric/internal/craft/recipedb"
)

func TestLoad_PersistsCatalogAndRecordsSourceMetadata(t *testing.T) {
	ctx := context.Background()
	store := openMemStore(t)

	path := filepath.Join(t.TempDir(), "recipes.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleRecipes), 0o644))

	catalog, err := recipedb.Load(ctx, store, path)
	require.NoError(t, err)
	require.Contains(t, catalog.Stations, "sawmill")

	count, err := store.CountRecipes(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(catalog.All()), count)

	recorded, err := store.Metadata(ctx, "source_path")
	require.NoError(t, err)
	assert.Equal(t, path, recorded)

	loadedAt, err := store.Metadata(ctx, "loaded_at")
	require.NoError(t, err)
	assert.NotEmpty(t, loadedAt)
}

func TestLoad_ReloadReplacesSourceMetadata(t *testing.T) {
	ctx := context.Background()
	store := openMemStore(t)

	firstPath := filepath.Join(t.TempDir(), "recipes.txt")
	require.NoError(t, os.WriteFile(firstPath, []byte(sampleRecipes), 0o644))
	_, err := recipedb.Load(ctx, store, firstPath)
	require.NoError(t, err)

	secondPath := filepath.Join(t.TempDir(), "recipes2.txt")
	require.NoError(t, os.WriteFile(secondPath, []byte(sampleRecipes), 0o644))
	_, err = recipedb.Load(ctx, store, secondPath)
	require.NoError(t, err)

	recorded, err := store.Metadata(ctx, "source_path")
	require.NoError(t, err)
	assert.Equal(t, secondPath, recorded)
}
