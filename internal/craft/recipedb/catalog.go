package recipedb

import (
	"context"
	"fmt"
	"time"

	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// Catalog is the Dependency Solver's read-only, in-memory view of the
// Recipe Catalog: every recipe indexed by ID and by the kind it produces,
// in file declaration order (the order the solver tries alternatives in).
type Catalog struct {
	Stations   map[string]fabric.Station
	byID       map[string]fabric.Recipe
	byOutput   map[fabric.Kind][]string
	recipeList []fabric.Recipe
}

// BuildCatalog assembles a Catalog from a parsed station/recipe set.
func BuildCatalog(stations map[string]fabric.Station, recipes []fabric.Recipe) *Catalog {
	c := &Catalog{
		Stations:   stations,
		byID:       make(map[string]fabric.Recipe, len(recipes)),
		byOutput:   make(map[fabric.Kind][]string),
		recipeList: recipes,
	}
	for _, r := range recipes {
		c.byID[r.ID] = r
		c.byOutput[r.Output.Kind] = append(c.byOutput[r.Output.Kind], r.ID)
	}
	return c
}

// Recipe looks up a recipe by ID.
func (c *Catalog) Recipe(id string) (fabric.Recipe, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// RecipesProducing returns every recipe (in declaration order) whose output
// is kind.
func (c *Catalog) RecipesProducing(kind fabric.Kind) []fabric.Recipe {
	ids := c.byOutput[kind]
	out := make([]fabric.Recipe, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.byID[id])
	}
	return out
}

// All returns every recipe in declaration order.
func (c *Catalog) All() []fabric.Recipe {
	return c.recipeList
}

// Load parses path's recipe grammar, persists it into store (clearing any
// prior catalog first), and returns the in-memory Catalog the solver reads.
func Load(ctx context.Context, store *RecipeStore, path string) (*Catalog, error) {
	parsed, err := ParseFile(path)
	if err != nil {
		return nil, err
	}

	if err := store.ClearCatalog(ctx); err != nil {
		return nil, fmt.Errorf("recipedb: clearing prior catalog: %w", err)
	}
	if err := store.BulkInsertCatalog(ctx, parsed.Stations, parsed.Recipes); err != nil {
		return nil, fmt.Errorf("recipedb: persisting catalog: %w", err)
	}
	if err := store.db.SetCatalogMetadata(ctx, "source_path", path); err != nil {
		return nil, fmt.Errorf("recipedb: recording catalog metadata: %w", err)
	}
	if err := store.db.SetCatalogMetadata(ctx, "loaded_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("recipedb: recording catalog metadata: %w", err)
	}

	return BuildCatalog(parsed.Stations, parsed.Recipes), nil
}
