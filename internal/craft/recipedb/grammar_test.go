package recipedb_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/transposer-crafting-fabric/internal/craft/recipedb"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

const sampleRecipes = `
# torch chain, per the plan-torches scenario
station sawmill
	in main
	out main
	time 1.5
	type sequential
end

sawmill:
4 minecraft:planks:0 "Oak Planks" 64
with
1 minecraft:log:0

sawmill:
4 minecraft:stick:0 "Stick" 64
with
2 minecraft:planks:0

sawmill:
4 minecraft:torch:0 "Torch" 64
with
1 minecraft:coal:0
1 minecraft:stick:0

craft:
1 minecraft:chest:0 "Chest" 1
with
minecraft:planks:0 1 2 3 4 6 7 8 9
`

func mustParse(t *testing.T) *recipedb.ParsedCatalog {
	t.Helper()
	cat, err := recipedb.Parse(strings.NewReader(sampleRecipes))
	require.NoError(t, err)
	return cat
}

func TestParse_StationBlock(t *testing.T) {
	cat := mustParse(t)
	require.Contains(t, cat.Stations, "sawmill")
	st := cat.Stations["sawmill"]
	assert.Equal(t, []string{"main"}, st.InPaths)
	assert.Equal(t, []string{"main"}, st.OutPaths)
	assert.Equal(t, 1.5, st.TimeSec)
	assert.Equal(t, fabric.StationSequential, st.Type)
}

func TestParse_ProcessingRecipes(t *testing.T) {
	cat := mustParse(t)
	require.Len(t, cat.Recipes, 4)

	planks := cat.Recipes[0]
	assert.Equal(t, "sawmill", planks.Station)
	assert.Equal(t, 4, planks.Output.Quantity)
	assert.Equal(t, "Oak Planks", planks.Output.Label)
	require.Len(t, planks.Components, 1)
	assert.Equal(t, 1, planks.Components[0].Quantity)
	assert.Empty(t, planks.Components[0].SlotIndices)
}

func TestParse_CraftStationUsesSlotIndices(t *testing.T) {
	cat := mustParse(t)
	chest := cat.Recipes[3]
	assert.Equal(t, "craft", chest.Station)
	require.Len(t, chest.Components, 1)
	assert.Equal(t, []int{1, 2, 3, 4, 6, 7, 8, 9}, chest.Components[0].SlotIndices)
	assert.Equal(t, 8, chest.Components[0].Quantity)
}

func TestParse_RejectsUndeclaredStation(t *testing.T) {
	_, err := recipedb.Parse(strings.NewReader("ghost:\n1 minecraft:log:0 \"Log\" 64\nwith\n1 minecraft:sapling:0\n"))
	assert.Error(t, err)
}

func TestParse_RejectsUnknownStationOption(t *testing.T) {
	_, err := recipedb.Parse(strings.NewReader("station s\n  bogus value\nend\n"))
	assert.Error(t, err)
}

func TestBuildCatalog_RecipesProducingFindsEachOutputKind(t *testing.T) {
	cat := mustParse(t)
	catalog := recipedb.BuildCatalog(cat.Stations, cat.Recipes)

	torchRecipes := catalog.RecipesProducing(fabric.Kind{Namespace: "minecraft", ItemID: "torch", Meta: 0})
	require.Len(t, torchRecipes, 1)
	assert.Equal(t, 4, torchRecipes[0].Output.Quantity)

	stickRecipes := catalog.RecipesProducing(fabric.Kind{Namespace: "minecraft", ItemID: "stick", Meta: 0})
	require.Len(t, stickRecipes, 1)
	assert.Len(t, stickRecipes[0].Components, 1)
}
