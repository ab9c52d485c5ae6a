// Package worker tracks robot and drone worker state for the Crafting
// Server: each worker's lifecycle position (free, pending, busy) and which
// staging inventories it sits adjacent to, per spec.md §4.8's dispatcher
// tick and §5's single-threaded ordering guarantees.
package worker

import "github.com/rsned/transposer-crafting-fabric/pkg/fabric"

// Kind distinguishes the two worker roles: robots handle crafting-station
// recipes, drones handle processing-station recipes.
type Kind int

const (
	KindRobot Kind = iota
	KindDrone
)

func (k Kind) String() string {
	if k == KindDrone {
		return "drone"
	}
	return "robot"
}

// Worker is one robot or drone: its current lifecycle state and which
// staging inventory indices it can reach.
type Worker struct {
	ID              string
	Kind            Kind
	State           fabric.WorkerState
	AdjacentStaging []int
}

// IsAdjacentTo reports whether the worker can reach stagingIndex.
func (w *Worker) IsAdjacentTo(stagingIndex int) bool {
	for _, idx := range w.AdjacentStaging {
		if idx == stagingIndex {
			return true
		}
	}
	return false
}

// Pool is the Crafting Server's worker state table. All mutation happens
// serialized within the dispatcher tick, per spec.md §5.
type Pool struct {
	workers map[string]*Worker
	order   []string // registration order, for deterministic iteration
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{workers: make(map[string]*Worker)}
}

// Register adds a worker to the pool, starting free.
func (p *Pool) Register(id string, kind Kind, adjacentStaging []int) *Worker {
	w := &Worker{ID: id, Kind: kind, State: fabric.WorkerFree, AdjacentStaging: adjacentStaging}
	if _, exists := p.workers[id]; !exists {
		p.order = append(p.order, id)
	}
	p.workers[id] = w
	return w
}

// Get looks up a worker by ID.
func (p *Pool) Get(id string) (*Worker, bool) {
	w, ok := p.workers[id]
	return w, ok
}

// SetState transitions a worker's state. The caller is responsible for
// only issuing valid free -> pending -> busy -> free transitions.
func (p *Pool) SetState(id string, state fabric.WorkerState) {
	if w, ok := p.workers[id]; ok {
		w.State = state
	}
}

// FreeAdjacentTo returns every free worker of kind adjacent to
// stagingIndex, in registration order - the dispatcher tick's "snapshot
// the set of workers adjacent to the allocated staging whose state is
// free" step.
func (p *Pool) FreeAdjacentTo(stagingIndex int, kind Kind) []*Worker {
	var free []*Worker
	for _, id := range p.order {
		w := p.workers[id]
		if w.Kind != kind || w.State != fabric.WorkerFree {
			continue
		}
		if w.IsAdjacentTo(stagingIndex) {
			free = append(free, w)
		}
	}
	return free
}

// HasFreeAdjacentAnywhere reports whether at least one free worker of kind
// exists anywhere in the pool - the dispatcher tick's "verify prerequisite
// workers exist" check, without allocating a staging slot to find out.
func (p *Pool) HasFreeAdjacentAnywhere(kind Kind) bool {
	for _, id := range p.order {
		w := p.workers[id]
		if w.Kind == kind && w.State == fabric.WorkerFree {
			return true
		}
	}
	return false
}

// ResetKind forces every worker of kind back to free, the operator
// console's rlua command: a firmware/script reload that abandons whatever
// task the worker held mid-flight.
func (p *Pool) ResetKind(kind Kind) int {
	reset := 0
	for _, id := range p.order {
		w := p.workers[id]
		if w.Kind == kind && w.State != fabric.WorkerFree {
			w.State = fabric.WorkerFree
			reset++
		}
	}
	return reset
}
