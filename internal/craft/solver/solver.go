// Package solver walks a recipe catalog to turn a requested item kind and
// amount into an ordered crafting plan, per the dependency-solver contract:
// solve(kind, amount) -> status, plan.
package solver

import (
	"github.com/rsned/transposer-crafting-fabric/internal/craft/recipedb"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// defaultMaxDepth bounds recursion depth against recursive recipes
// (A->A, or A->B->C->A cycles) and other runaway expansion.
const defaultMaxDepth = 1000

// AvailableFunc reports how many of kind currently sit in storage,
// independent of anything a solve in progress has already committed.
type AvailableFunc func(fabric.Kind) int

// Solver resolves crafting requests against a Catalog.
type Solver struct {
	catalog   *recipedb.Catalog
	available AvailableFunc
	maxDepth  int
	priority  fabric.SelectionPriority
}

// New creates a Solver reading recipes from catalog and current storage
// levels via available. Default selection priority is first-found.
func New(catalog *recipedb.Catalog, available AvailableFunc) *Solver {
	return &Solver{
		catalog:   catalog,
		available: available,
		maxDepth:  defaultMaxDepth,
		priority:  fabric.PriorityFirstFound,
	}
}

// WithPriority sets the policy used when several recipes can satisfy the
// same request. Returns s for chaining.
func (s *Solver) WithPriority(p fabric.SelectionPriority) *Solver {
	s.priority = p
	return s
}

// Solve resolves a request for amount of kind into an ordered plan plus a
// per-kind missing-raw-material counter. Status is error only on a
// suspected cycle or runaway expansion (the recursion depth cap); missing
// means some raw input could not be found anywhere in the catalog or
// storage.
func (s *Solver) Solve(kind fabric.Kind, amount int) (fabric.SolveStatus, *fabric.Plan, map[fabric.Kind]int) {
	st := newState()

	var status fabric.SolveStatus
	switch recipes := s.catalog.RecipesProducing(kind); {
	case amount <= 0:
		status = fabric.SolveOK
	case len(recipes) == 0:
		avail := max0(s.available(kind))
		if avail >= amount {
			status = fabric.SolveOK
		} else {
			st.missing[kind] = amount - avail
			status = fabric.SolveMissing
		}
	case len(recipes) == 1:
		status = s.runRecipe(st, recipes[0], amount)
	default:
		status = s.resolveAlternatives(st, recipes, amount)
	}

	return status, s.buildPlan(st), st.missing
}

// availableNow is the amount of kind free for this solve to draw on right
// now: what storage actually holds, less what earlier steps of this solve
// have already committed to drawing, plus any surplus already produced by
// a sibling (non-ancestor) branch of the dependency walk. It is never less
// than zero: a shortfall already committed was crafted or counted as
// missing when it was drawn.
func (s *Solver) availableNow(st *state, kind fabric.Kind) int {
	return max0(s.available(kind) - st.inputTotal[kind] + st.nonAncestorOutput[kind])
}

// resolveComponent accounts for one recipe needing `required` units of
// kind: it commits the full requirement to the running input total, and -
// if storage and prior craft surplus fall short - recurses to either craft
// or record the deficit as missing.
func (s *Solver) resolveComponent(st *state, kind fabric.Kind, required int) fabric.SolveStatus {
	avail := s.availableNow(st, kind)
	deficit := required - avail
	st.inputTotal[kind] += required

	if deficit <= 0 {
		return fabric.SolveOK
	}

	switch recipes := s.catalog.RecipesProducing(kind); {
	case len(recipes) == 0:
		st.missing[kind] += deficit
		return fabric.SolveMissing
	case len(recipes) == 1:
		return s.runRecipe(st, recipes[0], deficit)
	default:
		return s.resolveAlternatives(st, recipes, deficit)
	}
}

// runRecipe applies one fixed recipe choice: computes the batch multiplier
// needed to cover `needed` units of output, resolves every component
// input, then records the recipe and adds its full output to the
// non-ancestor-output overlay as it pops.
func (s *Solver) runRecipe(st *state, recipe fabric.Recipe, needed int) fabric.SolveStatus {
	st.depth++
	defer func() { st.depth-- }()
	if st.depth > s.maxDepth {
		return fabric.SolveError
	}

	multiplier := ceilDiv(needed, recipe.Output.Quantity)

	status := fabric.SolveOK
	for _, comp := range recipe.Components {
		required := multiplier * comp.Quantity
		if compStatus := s.resolveComponent(st, comp.Kind, required); compStatus != fabric.SolveOK {
			status = worstStatus(status, compStatus)
		}
	}

	st.recordRecipe(recipe, multiplier)
	st.nonAncestorOutput[recipe.Output.Kind] += multiplier * recipe.Output.Quantity

	return status
}

// resolveAlternatives handles a kind with several producing recipes: try
// each independently, in declared order, as a pure strategy first; if none
// fully satisfies demand, fall back to a mixed (downscaled, distributed)
// attempt; if even that fails, keep the least-missing attempt.
func (s *Solver) resolveAlternatives(st *state, recipes []fabric.Recipe, needed int) fabric.SolveStatus {
	var candidates []*state
	var bestFailed *state
	bestFailedStatus := fabric.SolveError

	for _, r := range recipes {
		trial := st.snapshot()
		trialStatus := s.runRecipe(trial, r, needed)

		if trialStatus == fabric.SolveOK {
			if s.priority == fabric.PriorityFirstFound {
				st.adopt(trial)
				return fabric.SolveOK
			}
			candidates = append(candidates, trial)
			continue
		}

		if bestFailed == nil || totalMissing(trial) < totalMissing(bestFailed) {
			bestFailed = trial
			bestFailedStatus = trialStatus
		}
	}

	if len(candidates) > 0 {
		st.adopt(pickBest(candidates, s.priority))
		return fabric.SolveOK
	}

	if mixed, mixedStatus := s.mixAlternatives(st, recipes, needed); mixedStatus == fabric.SolveOK {
		st.adopt(mixed)
		return fabric.SolveOK
	}

	if bestFailed != nil {
		st.adopt(bestFailed)
		return bestFailedStatus
	}
	return fabric.SolveMissing
}

// mixAlternatives is the heuristic fallback for a single product with
// several recipes, none of which alone covers demand (e.g. torches from
// mixed coal+charcoal): split the remaining demand across the alternatives
// in declared order, each recursively resolved on its share. This is a
// simplified stand-in for the source's downscale-by-most-constraining-input
// heuristic; multi-recipe splits remain a best-effort, not a guarantee.
func (s *Solver) mixAlternatives(st *state, recipes []fabric.Recipe, needed int) (*state, fabric.SolveStatus) {
	trial := st.snapshot()
	remaining := needed
	status := fabric.SolveOK

	for i, r := range recipes {
		if remaining <= 0 {
			break
		}
		share := remaining
		if i < len(recipes)-1 {
			share = ceilDiv(remaining, len(recipes)-i)
		}

		sub := trial.snapshot()
		subStatus := s.runRecipe(sub, r, share)
		trial.adopt(sub)
		status = worstStatus(status, subStatus)
		remaining -= share
	}

	return trial, status
}

func pickBest(candidates []*state, priority fabric.SelectionPriority) *state {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if scoreState(c, priority) < scoreState(best, priority) {
			best = c
		}
	}
	return best
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
