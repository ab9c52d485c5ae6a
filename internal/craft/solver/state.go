package solver

import "github.com/rsned/transposer-crafting-fabric/pkg/fabric"

// state is the solver's single mutable per-invocation record, per the
// recursive-solver-to-explicit-state redesign: a per-kind running input
// total, the non-ancestor-output overlay (outputs already committed to the
// plan that a later, non-ancestor branch may still consume), the
// processed-recipe list in leaves-first pop order, a recipe-ID to index
// map for de-duplication, and the missing-raw-material counter.
type state struct {
	inputTotal        map[fabric.Kind]int
	nonAncestorOutput map[fabric.Kind]int
	processed         []planEntry
	recipeIndex       map[string]int
	missing           map[fabric.Kind]int
	depth             int
}

func newState() *state {
	return &state{
		inputTotal:        make(map[fabric.Kind]int),
		nonAncestorOutput: make(map[fabric.Kind]int),
		recipeIndex:       make(map[string]int),
		missing:           make(map[fabric.Kind]int),
	}
}

// snapshot copies everything resolution mutates, so a trial recipe choice
// can run against a copy and be discarded without disturbing st.
func (st *state) snapshot() *state {
	cp := newState()
	for k, v := range st.inputTotal {
		cp.inputTotal[k] = v
	}
	for k, v := range st.nonAncestorOutput {
		cp.nonAncestorOutput[k] = v
	}
	for k, v := range st.missing {
		cp.missing[k] = v
	}
	for k, v := range st.recipeIndex {
		cp.recipeIndex[k] = v
	}
	cp.processed = append(cp.processed, st.processed...)
	cp.depth = st.depth
	return cp
}

// adopt replaces st's data with other's, committing a trial that won.
func (st *state) adopt(other *state) {
	st.inputTotal = other.inputTotal
	st.nonAncestorOutput = other.nonAncestorOutput
	st.processed = other.processed
	st.recipeIndex = other.recipeIndex
	st.missing = other.missing
}

// recordRecipe appends recipe to the processed list, or - if it was
// already used elsewhere in this plan - folds the additional batches into
// its existing entry. This is the uniqueness the spec requires of the
// processed-recipe list: a recipe used by two different branches of the
// dependency walk appears once, with combined batches.
func (st *state) recordRecipe(recipe fabric.Recipe, batches int) {
	if idx, ok := st.recipeIndex[recipe.ID]; ok {
		st.processed[idx].batches += batches
		return
	}
	st.recipeIndex[recipe.ID] = len(st.processed)
	st.processed = append(st.processed, planEntry{recipe: recipe, batches: batches})
}

func totalMissing(st *state) int {
	total := 0
	for _, v := range st.missing {
		total += v
	}
	return total
}

func scoreState(st *state, priority fabric.SelectionPriority) int {
	switch priority {
	case fabric.PriorityMinBatches:
		total := 0
		for _, e := range st.processed {
			total += e.batches
		}
		return total
	case fabric.PriorityMinItems:
		total := 0
		for _, v := range st.inputTotal {
			total += v
		}
		return total
	default:
		return 0
	}
}
