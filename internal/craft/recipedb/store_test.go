package recipedb_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/transposer-crafting-fabric/internal/craft/recipedb"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

func openMemStore(t *testing.T) *recipedb.RecipeStore {
	t.Helper()
	db, err := recipedb.OpenAndInit(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return recipedb.NewRecipeStore(db)
}

func TestRecipeStore_BulkInsertAndReload(t *testing.T) {
	ctx := context.Background()
	store := openMemStore(t)

	parsed, err := recipedb.Parse(strings.NewReader(sampleRecipes))
	require.NoError(t, err)

	require.NoError(t, store.BulkInsertCatalog(ctx, parsed.Stations, parsed.Recipes))

	count, err := store.CountRecipes(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(parsed.Recipes), count)

	stations, err := store.GetAllStations(ctx)
	require.NoError(t, err)
	require.Contains(t, stations, "sawmill")
	assert.Equal(t, []string{"main"}, stations["sawmill"].InPaths)
	assert.Equal(t, []string{"main"}, stations["sawmill"].OutPaths)

	reloaded, err := store.GetAllRecipes(ctx)
	require.NoError(t, err)
	require.Len(t, reloaded, len(parsed.Recipes))

	var chest fabric.Recipe
	for _, r := range reloaded {
		if r.Station == "craft" {
			chest = r
		}
	}
	require.NotEmpty(t, chest.ID)
	require.Len(t, chest.Components, 1)
	assert.Equal(t, []int{1, 2, 3, 4, 6, 7, 8, 9}, chest.Components[0].SlotIndices)
}

func TestRecipeStore_ClearCatalogRemovesEverything(t *testing.T) {
	ctx := context.Background()
	store := openMemStore(t)

	parsed, err := recipedb.Parse(strings.NewReader(sampleRecipes))
	require.NoError(t, err)
	require.NoError(t, store.BulkInsertCatalog(ctx, parsed.Stations, parsed.Recipes))

	require.NoError(t, store.ClearCatalog(ctx))

	count, err := store.CountRecipes(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecipeStore_CatalogMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := recipedb.OpenAndInit(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	v, err := db.GetCatalogMetadata(ctx, "source_path")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, db.SetCatalogMetadata(ctx, "source_path", "/etc/recipes.conf"))

	v, err = db.GetCatalogMetadata(ctx, "source_path")
	require.NoError(t, err)
	assert.Equal(t, "/etc/recipes.conf", v)
}
