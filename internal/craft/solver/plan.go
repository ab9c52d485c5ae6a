package solver

import "github.com/rsned/transposer-crafting-fabric/pkg/fabric"

func worstStatus(a, b fabric.SolveStatus) fabric.SolveStatus {
	if a == fabric.SolveError || b == fabric.SolveError {
		return fabric.SolveError
	}
	if a == fabric.SolveMissing || b == fabric.SolveMissing {
		return fabric.SolveMissing
	}
	return fabric.SolveOK
}

// planEntry is the solver's working form of one craft step, carrying the
// full recipe for uniqueness bookkeeping and scoring; buildPlan flattens
// it to fabric.Plan's parallel ID/batch arrays.
type planEntry struct {
	recipe  fabric.Recipe
	batches int
}

func (s *Solver) buildPlan(st *state) *fabric.Plan {
	netInput := make(map[fabric.Kind]int)
	netOutput := make(map[fabric.Kind]int)

	seen := make(map[fabric.Kind]bool)
	for kind := range st.inputTotal {
		seen[kind] = true
	}
	for kind := range st.nonAncestorOutput {
		seen[kind] = true
	}

	for kind := range seen {
		input := st.inputTotal[kind]
		output := st.nonAncestorOutput[kind]

		if len(s.catalog.RecipesProducing(kind)) == 0 {
			if input > 0 {
				netInput[kind] = input
			}
			continue
		}
		if output > input {
			netOutput[kind] = output - input
		}
	}

	recipeIDs := make([]string, len(st.processed))
	batches := make([]int, len(st.processed))
	for i, e := range st.processed {
		recipeIDs[i] = e.recipe.ID
		batches[i] = e.batches
	}

	return &fabric.Plan{
		RecipeIDs: recipeIDs,
		Batches:   batches,
		NetInput:  netInput,
		NetOutput: netOutput,
	}
}
