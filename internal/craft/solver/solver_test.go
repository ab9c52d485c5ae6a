package solver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/transposer-crafting-fabric/internal/craft/recipedb"
	"github.com/rsned/transposer-crafting-fabric/internal/craft/solver"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

func kind(item string) fabric.Kind {
	return fabric.Kind{Namespace: "minecraft", ItemID: item, Meta: 0}
}

// torchCatalog builds the planks -> stick -> torch chain used by the
// plan-torches scenarios: planks (1 log -> 4 planks), stick (2 planks -> 4
// stick), torch (1 coal + 1 stick -> 4 torch).
func torchCatalog(t *testing.T) *recipedb.Catalog {
	t.Helper()
	stations := map[string]fabric.Station{
		"sawmill": {Name: "sawmill", Type: fabric.StationSequential},
	}
	recipes := []fabric.Recipe{
		{
			ID:      "sawmill:planks:0",
			Station: "sawmill",
			Output:  fabric.RecipeOutput{Kind: kind("planks"), Label: "Oak Planks", MaxStack: 64, Quantity: 4},
			Components: []fabric.RecipeComponent{
				{Kind: kind("log"), Quantity: 1},
			},
		},
		{
			ID:      "sawmill:stick:0",
			Station: "sawmill",
			Output:  fabric.RecipeOutput{Kind: kind("stick"), Label: "Stick", MaxStack: 64, Quantity: 4},
			Components: []fabric.RecipeComponent{
				{Kind: kind("planks"), Quantity: 2},
			},
		},
		{
			ID:      "sawmill:torch:0",
			Station: "sawmill",
			Output:  fabric.RecipeOutput{Kind: kind("torch"), Label: "Torch", MaxStack: 64, Quantity: 4},
			Components: []fabric.RecipeComponent{
				{Kind: kind("coal"), Quantity: 1},
				{Kind: kind("stick"), Quantity: 1},
			},
		},
	}
	return recipedb.BuildCatalog(stations, recipes)
}

func TestSolve_PlanTorches(t *testing.T) {
	catalog := torchCatalog(t)
	storage := map[fabric.Kind]int{
		kind("log"):  1,
		kind("coal"): 4,
	}
	s := solver.New(catalog, func(k fabric.Kind) int { return storage[k] })

	status, plan, missing := s.Solve(kind("torch"), 16)
	require.Equal(t, fabric.SolveOK, status)

	require.Len(t, plan.RecipeIDs, 3)
	assert.Equal(t, []string{"sawmill:planks:0", "sawmill:stick:0", "sawmill:torch:0"}, plan.RecipeIDs)
	assert.Equal(t, []int{1, 1, 4}, plan.Batches)

	assert.Equal(t, map[fabric.Kind]int{kind("log"): 1, kind("coal"): 4}, plan.NetInput)
	assert.Equal(t, map[fabric.Kind]int{kind("torch"): 16, kind("planks"): 2}, plan.NetOutput)
	assert.Empty(t, missing)
}

func TestSolve_PlanTorchesWithNothing(t *testing.T) {
	catalog := torchCatalog(t)
	s := solver.New(catalog, func(fabric.Kind) int { return 0 })

	status, plan, missing := s.Solve(kind("torch"), 16)
	require.Equal(t, fabric.SolveMissing, status)

	assert.Equal(t, []string{"sawmill:planks:0", "sawmill:stick:0", "sawmill:torch:0"}, plan.RecipeIDs)
	assert.Equal(t, []int{1, 1, 4}, plan.Batches)

	assert.Equal(t, map[fabric.Kind]int{kind("log"): 1, kind("coal"): 4}, missing)
}

func TestSolve_RawMaterialShortfallReportsMissingDirectly(t *testing.T) {
	catalog := recipedb.BuildCatalog(map[string]fabric.Station{}, nil)
	s := solver.New(catalog, func(fabric.Kind) int { return 3 })

	status, plan, missing := s.Solve(kind("log"), 10)
	assert.Equal(t, fabric.SolveMissing, status)
	assert.Equal(t, map[fabric.Kind]int{kind("log"): 7}, missing)
	assert.Empty(t, plan.RecipeIDs)
}

func TestSolve_ZeroAmountIsTriviallyOK(t *testing.T) {
	catalog := torchCatalog(t)
	s := solver.New(catalog, func(fabric.Kind) int { return 0 })

	status, plan, _ := s.Solve(kind("torch"), 0)
	assert.Equal(t, fabric.SolveOK, status)
	assert.Empty(t, plan.RecipeIDs)
}

func TestSolve_CyclicRecipeAbortsWithError(t *testing.T) {
	a := kind("gear-a")
	b := kind("gear-b")
	stations := map[string]fabric.Station{"forge": {Name: "forge"}}
	recipes := []fabric.Recipe{
		{
			ID:         "forge:a:0",
			Station:    "forge",
			Output:     fabric.RecipeOutput{Kind: a, Label: "Gear A", MaxStack: 64, Quantity: 1},
			Components: []fabric.RecipeComponent{{Kind: b, Quantity: 1}},
		},
		{
			ID:         "forge:b:0",
			Station:    "forge",
			Output:     fabric.RecipeOutput{Kind: b, Label: "Gear B", MaxStack: 64, Quantity: 1},
			Components: []fabric.RecipeComponent{{Kind: a, Quantity: 1}},
		},
	}
	catalog := recipedb.BuildCatalog(stations, recipes)
	s := solver.New(catalog, func(fabric.Kind) int { return 0 })

	status, _, _ := s.Solve(a, 1)
	assert.Equal(t, fabric.SolveError, status)
}
