// Package staging implements the Drone Staging Allocator: a shared pool of
// drone inventories the Crafting Server reserves for one ticket's in-flight
// batch (role "output"), hands off to the Storage Server to fill, and
// flips to "input" once a worker has produced into it, per spec.md §4.9.
package staging

import "github.com/rsned/transposer-crafting-fabric/pkg/fabric"

// HasFreeWorker reports whether a free worker of the recipe's kind can
// reach a given staging index - passed in by the caller so the allocator
// stays independent of the worker package.
type HasFreeWorker func(stagingIndex int) bool

// FlushFunc synchronously flushes a staging inventory's contents back to
// storage, making it reusable. It must only be called on an inventory
// currently in the "input" state.
type FlushFunc func(stagingIndex int) error

// Inventory is one drone staging slot's allocator-visible state.
type Inventory struct {
	Index  int
	State  fabric.StagingState
	Ticket string // bound ticket ID, empty when free
}

// Allocator owns the staging inventory list and the two monotone scan
// cursors the spec requires: firstFree and firstFreeWithWorker.
type Allocator struct {
	inventories         []*Inventory
	firstFree           int
	firstFreeWithWorker int
	hasFreeWorker       HasFreeWorker
	flush               FlushFunc
}

// New creates an Allocator over n drone inventories, all starting free.
func New(n int, hasFreeWorker HasFreeWorker, flush FlushFunc) *Allocator {
	inventories := make([]*Inventory, n)
	for i := range inventories {
		inventories[i] = &Inventory{Index: i, State: fabric.StagingFree}
	}
	return &Allocator{inventories: inventories, hasFreeWorker: hasFreeWorker, flush: flush}
}

// Get returns the inventory at index.
func (a *Allocator) Get(index int) *Inventory {
	return a.inventories[index]
}

// MarkInput flips a staging inventory to the "input" role once a worker
// has produced into it, ready for the Storage Server to drain.
func (a *Allocator) MarkInput(index int) {
	a.inventories[index].State = fabric.StagingInput
}

// Release returns a staging inventory to "free" and clears its ticket
// binding, once the Storage Server has drained it.
func (a *Allocator) Release(index int) {
	inv := a.inventories[index]
	inv.State = fabric.StagingFree
	inv.Ticket = ""
}

// Allocate implements allocate(ticket, usage, needsWorkers) -> index | -1.
// usage is the role the allocated slot takes on for the caller - every
// dispatcher-tick call site uses fabric.StagingOutput, a staging inventory
// being readied to receive a batch's crafted output. It scans from
// firstFreeWithWorker when needsWorkers is set (a crafting recipe needs
// robots adjacent to the slot), else from firstFree. If nothing is free
// but some inventory is currently "input", its contents are flushed
// synchronously and the slot is reused. The caller must not yield between
// this call and its own worker-snapshot step: the allocator binds the
// slot to the ticket and flips it to usage before returning.
func (a *Allocator) Allocate(ticket string, usage fabric.StagingState, needsWorkers bool) int {
	cursor := &a.firstFree
	if needsWorkers {
		cursor = &a.firstFreeWithWorker
	}

	if idx, ok := a.scanFrom(*cursor, needsWorkers); ok {
		*cursor = idx
		return a.bind(idx, ticket, usage)
	}

	if idx, ok := a.flushAnInput(); ok {
		return a.bind(idx, ticket, usage)
	}

	return -1
}

func (a *Allocator) scanFrom(start int, needsWorkers bool) (int, bool) {
	for i := 0; i < len(a.inventories); i++ {
		idx := (start + i) % len(a.inventories)
		inv := a.inventories[idx]
		if inv.State != fabric.StagingFree {
			continue
		}
		if needsWorkers && !a.hasFreeWorker(idx) {
			continue
		}
		return idx, true
	}
	return 0, false
}

func (a *Allocator) flushAnInput() (int, bool) {
	for _, inv := range a.inventories {
		if inv.State != fabric.StagingInput {
			continue
		}
		if err := a.flush(inv.Index); err != nil {
			continue
		}
		a.Release(inv.Index)
		return inv.Index, true
	}
	return 0, false
}

func (a *Allocator) bind(idx int, ticket string, usage fabric.StagingState) int {
	inv := a.inventories[idx]
	inv.State = usage
	inv.Ticket = ticket
	return idx
}
