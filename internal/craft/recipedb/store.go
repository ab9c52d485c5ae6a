package recipedb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// RecipeStore handles Recipe Catalog persistence.
type RecipeStore struct {
	db *DB
}

// NewRecipeStore creates a new RecipeStore.
func NewRecipeStore(db *DB) *RecipeStore {
	return &RecipeStore{db: db}
}

// ClearCatalog removes every station and recipe row (for a catalog reload).
func (s *RecipeStore) ClearCatalog(ctx context.Context) error {
	return s.db.InTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM recipes`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM stations`)
		return err
	})
}

// BulkInsertCatalog persists a parsed station/recipe set in one transaction.
func (s *RecipeStore) BulkInsertCatalog(ctx context.Context, stations map[string]fabric.Station, recipes []fabric.Recipe) error {
	return s.db.InTransaction(ctx, func(tx *sql.Tx) error {
		stationStmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO stations (name, time_sec, type, is_workshop)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing station statement: %w", err)
		}
		defer func() { _ = stationStmt.Close() }()

		pathStmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO station_in_paths (station_name, ordinal, path) VALUES (?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing in-path statement: %w", err)
		}
		defer func() { _ = pathStmt.Close() }()

		outPathStmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO station_out_paths (station_name, ordinal, path) VALUES (?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing out-path statement: %w", err)
		}
		defer func() { _ = outPathStmt.Close() }()

		for _, name := range sortedStationNames(stations) {
			st := stations[name]
			isWorkshop := 0
			if st.IsWorkshop {
				isWorkshop = 1
			}
			if _, err := stationStmt.ExecContext(ctx, st.Name, st.TimeSec, string(st.Type), isWorkshop); err != nil {
				return fmt.Errorf("inserting station %s: %w", st.Name, err)
			}
			for i, p := range st.InPaths {
				if _, err := pathStmt.ExecContext(ctx, st.Name, i, p); err != nil {
					return fmt.Errorf("inserting in-path for %s: %w", st.Name, err)
				}
			}
			for i, p := range st.OutPaths {
				if _, err := outPathStmt.ExecContext(ctx, st.Name, i, p); err != nil {
					return fmt.Errorf("inserting out-path for %s: %w", st.Name, err)
				}
			}
		}

		recipeStmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO recipes
			(id, station_name, output_namespace, output_item_id, output_meta, output_nbt_sensitive,
			 output_label, output_max_stack, output_quantity)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing recipe statement: %w", err)
		}
		defer func() { _ = recipeStmt.Close() }()

		compStmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO recipe_components
			(recipe_id, ordinal, namespace, item_id, meta, nbt_sensitive, quantity)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing component statement: %w", err)
		}
		defer func() { _ = compStmt.Close() }()

		slotStmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO recipe_component_slots (recipe_id, ordinal, slot_index)
			VALUES (?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing slot statement: %w", err)
		}
		defer func() { _ = slotStmt.Close() }()

		for _, r := range recipes {
			nbt := 0
			if r.Output.Kind.NBTSensitive {
				nbt = 1
			}
			_, err := recipeStmt.ExecContext(ctx,
				r.ID, r.Station, r.Output.Kind.Namespace, r.Output.Kind.ItemID, r.Output.Kind.Meta, nbt,
				r.Output.Label, r.Output.MaxStack, r.Output.Quantity,
			)
			if err != nil {
				return fmt.Errorf("inserting recipe %s: %w", r.ID, err)
			}

			for i, c := range r.Components {
				cNBT := 0
				if c.Kind.NBTSensitive {
					cNBT = 1
				}
				if _, err := compStmt.ExecContext(ctx, r.ID, i, c.Kind.Namespace, c.Kind.ItemID, c.Kind.Meta, cNBT, c.Quantity); err != nil {
					return fmt.Errorf("inserting component for %s: %w", r.ID, err)
				}
				for _, slot := range c.SlotIndices {
					if _, err := slotStmt.ExecContext(ctx, r.ID, i, slot); err != nil {
						return fmt.Errorf("inserting slot for %s: %w", r.ID, err)
					}
				}
			}
		}

		return nil
	})
}

func sortedStationNames(stations map[string]fabric.Station) []string {
	names := make([]string, 0, len(stations))
	for name := range stations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAllStations loads every persisted station, including its path lists.
func (s *RecipeStore) GetAllStations(ctx context.Context) (map[string]fabric.Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, time_sec, type, is_workshop FROM stations`)
	if err != nil {
		return nil, fmt.Errorf("querying stations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stations := make(map[string]fabric.Station)
	for rows.Next() {
		var st fabric.Station
		var typ string
		var isWorkshop int
		if err := rows.Scan(&st.Name, &st.TimeSec, &typ, &isWorkshop); err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}
		st.Type = fabric.StationType(typ)
		st.IsWorkshop = isWorkshop != 0
		stations[st.Name] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for name, st := range stations {
		inPaths, err := s.queryPaths(ctx, "station_in_paths", name)
		if err != nil {
			return nil, err
		}
		outPaths, err := s.queryPaths(ctx, "station_out_paths", name)
		if err != nil {
			return nil, err
		}
		st.InPaths = inPaths
		st.OutPaths = outPaths
		stations[name] = st
	}

	return stations, nil
}

func (s *RecipeStore) queryPaths(ctx context.Context, table, station string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT path FROM %s WHERE station_name = ? ORDER BY ordinal
	`, table), station)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// GetAllRecipes loads every persisted recipe with its components, in
// ascending ID order.
func (s *RecipeStore) GetAllRecipes(ctx context.Context) ([]fabric.Recipe, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.station_name, s.type, r.output_namespace, r.output_item_id, r.output_meta,
		       r.output_nbt_sensitive, r.output_label, r.output_max_stack, r.output_quantity
		FROM recipes r
		JOIN stations s ON s.name = r.station_name
		ORDER BY r.id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying recipes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recipes []fabric.Recipe
	for rows.Next() {
		var r fabric.Recipe
		var stationType string
		var nbt int
		if err := rows.Scan(&r.ID, &r.Station, &stationType, &r.Output.Kind.Namespace, &r.Output.Kind.ItemID,
			&r.Output.Kind.Meta, &nbt, &r.Output.Label, &r.Output.MaxStack, &r.Output.Quantity); err != nil {
			return nil, fmt.Errorf("scanning recipe: %w", err)
		}
		r.StationType = fabric.StationType(stationType)
		r.Output.Kind.NBTSensitive = nbt != 0
		recipes = append(recipes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range recipes {
		comps, err := s.getRecipeComponents(ctx, recipes[i].ID)
		if err != nil {
			return nil, fmt.Errorf("loading components for %s: %w", recipes[i].ID, err)
		}
		recipes[i].Components = comps
	}

	return recipes, nil
}

func (s *RecipeStore) getRecipeComponents(ctx context.Context, recipeID string) ([]fabric.RecipeComponent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ordinal, namespace, item_id, meta, nbt_sensitive, quantity
		FROM recipe_components
		WHERE recipe_id = ?
		ORDER BY ordinal
	`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("querying components: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var comps []fabric.RecipeComponent
	var ordinals []int
	for rows.Next() {
		var ord, nbt int
		var c fabric.RecipeComponent
		if err := rows.Scan(&ord, &c.Kind.Namespace, &c.Kind.ItemID, &c.Kind.Meta, &nbt, &c.Quantity); err != nil {
			return nil, fmt.Errorf("scanning component: %w", err)
		}
		c.Kind.NBTSensitive = nbt != 0
		comps = append(comps, c)
		ordinals = append(ordinals, ord)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, ord := range ordinals {
		slots, err := s.getComponentSlots(ctx, recipeID, ord)
		if err != nil {
			return nil, err
		}
		comps[i].SlotIndices = slots
	}

	return comps, nil
}

func (s *RecipeStore) getComponentSlots(ctx context.Context, recipeID string, ordinal int) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slot_index FROM recipe_component_slots
		WHERE recipe_id = ? AND ordinal = ?
		ORDER BY slot_index
	`, recipeID, ordinal)
	if err != nil {
		return nil, fmt.Errorf("querying slots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var slots []int
	for rows.Next() {
		var slot int
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("scanning slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// CountRecipes returns the total number of persisted recipes.
func (s *RecipeStore) CountRecipes(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipes`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting recipes: %w", err)
	}
	return count, nil
}

// Metadata returns a catalog metadata value recorded by Load (e.g.
// "source_path", "loaded_at"), or "" if never set.
func (s *RecipeStore) Metadata(ctx context.Context, key string) (string, error) {
	return s.db.GetCatalogMetadata(ctx, key)
}
