// Package dispatch implements the Crafting Server's main loop: it scans
// active tickets, allocates staging, pulls materials via the storage bus,
// hands tasks to workers, and watches for completion, per spec.md §4.8 and
// §2's "Dispatcher (D)" summary.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rsned/transposer-crafting-fabric/internal/craft/recipedb"
	"github.com/rsned/transposer-crafting-fabric/internal/craft/solver"
	"github.com/rsned/transposer-crafting-fabric/internal/craft/staging"
	"github.com/rsned/transposer-crafting-fabric/internal/craft/ticket"
	"github.com/rsned/transposer-crafting-fabric/internal/craft/worker"
	"github.com/rsned/transposer-crafting-fabric/internal/wire"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// Dispatcher owns every piece of Crafting Server state a tick touches: the
// recipe catalog, the solver, the worker pool, the staging allocator, the
// craft ticket table, and this server's last-known view of storage
// availability (kept current from stor_item_list/stor_item_diff).
type Dispatcher struct {
	Catalog *recipedb.Catalog
	Solver  *solver.Solver
	Workers *worker.Pool
	Staging *staging.Allocator
	Bus     wire.Bus

	StorageAddr string
	log         *slog.Logger

	tickets  map[string]*ticket.Ticket
	known    map[fabric.Kind]int
	needKind worker.Kind // set just before an Allocate call needing worker-adjacency; see NewStagingAllocator's hasFreeWorker closure.
}

// New builds a Dispatcher. staging is constructed by the caller with a
// HasFreeWorker callback that reads back the Dispatcher's needKind field -
// see NewStagingAllocator.
func New(catalog *recipedb.Catalog, workers *worker.Pool, bus wire.Bus, storageAddr string, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		Catalog:     catalog,
		Workers:     workers,
		Bus:         bus,
		StorageAddr: storageAddr,
		log:         log,
		tickets:     make(map[string]*ticket.Ticket),
		known:       make(map[fabric.Kind]int),
	}
	d.Solver = solver.New(catalog, d.Available)
	return d
}

// NewStagingAllocator builds the Allocator this Dispatcher's tick loop
// drives, wiring HasFreeWorker back to d's worker pool through d.needKind -
// the single-threaded tick loop sets needKind immediately before calling
// Staging.Allocate, so this read is never stale.
func (d *Dispatcher) NewStagingAllocator(n int, flush staging.FlushFunc) *staging.Allocator {
	d.Staging = staging.New(n, func(idx int) bool {
		return len(d.Workers.FreeAdjacentTo(idx, d.needKind)) > 0
	}, flush)
	return d.Staging
}

// Available reports the Dispatcher's last-known storage level for kind,
// the solver's AvailableFunc.
func (d *Dispatcher) Available(kind fabric.Kind) int {
	return d.known[kind]
}

// ApplyItemList replaces the known-storage snapshot wholesale, from a
// stor_item_list reply.
func (d *Dispatcher) ApplyItemList(entries []fabric.ItemListEntry) {
	d.known = make(map[fabric.Kind]int, len(entries))
	for _, e := range entries {
		d.known[e.Kind] = e.Available
	}
}

// ApplyItemDiff folds a stor_item_diff broadcast into the known-storage
// snapshot; an entry with Available 0 means the kind was removed entirely.
func (d *Dispatcher) ApplyItemDiff(entries []fabric.ItemListEntry) {
	for _, e := range entries {
		if e.Available <= 0 {
			delete(d.known, e.Kind)
			continue
		}
		d.known[e.Kind] = e.Available
	}
}

// workerKindFor reports which worker role drives recipe: robots at the
// synthetic crafting-station workbench, drones at every processing
// station.
func (d *Dispatcher) workerKindFor(recipe fabric.Recipe) worker.Kind {
	if st, ok := d.Catalog.Stations[recipe.Station]; ok && st.IsWorkshop {
		return worker.KindRobot
	}
	return worker.KindDrone
}

// NewTicket resolves a craft request through the solver and, if it did not
// come back with a usable plan, still returns a pending ticket carrying
// whatever plan the solver found - the caller inspects status to decide
// whether to offer craft_recipe_start.
func (d *Dispatcher) NewTicket(kind fabric.Kind, amount int, now time.Time) (*ticket.Ticket, fabric.SolveStatus, map[fabric.Kind]int) {
	status, plan, missing := d.Solver.Solve(kind, amount)
	id := uuid.NewString()
	tk := ticket.New(id, plan, now)
	d.tickets[id] = tk
	return tk, status, missing
}

// Ticket looks up a ticket by ID.
func (d *Dispatcher) Ticket(id string) (*ticket.Ticket, bool) {
	tk, ok := d.tickets[id]
	return tk, ok
}

// DiscardTicket removes id from the table outright, for the pending-expiry
// path where there is nothing to unwind.
func (d *Dispatcher) DiscardTicket(id string) {
	delete(d.tickets, id)
}

// CancelTicket transitions an active or pending ticket to cancelled, frees
// any workers and staging it holds, and removes it from the table. The
// caller is responsible for telling storage to release the reservation
// (stor_recipe_cancel).
func (d *Dispatcher) CancelTicket(id, reason string) (*ticket.Ticket, bool) {
	tk, ok := d.tickets[id]
	if !ok {
		return nil, false
	}
	for _, task := range tk.CraftingTasks {
		for wid := range task.Workers {
			d.Workers.SetState(wid, fabric.WorkerFree)
		}
		d.Staging.Release(task.StagingIdx)
	}
	for idx := range tk.SupplyIndices {
		d.Staging.Release(idx)
	}
	tk.Cancel(reason)
	delete(d.tickets, id)
	return tk, true
}

// ExpirePending discards every pending ticket that has sat past
// ticket.PendingTimeout with no start, per spec.md §5's cancellation
// clause.
func (d *Dispatcher) ExpirePending(now time.Time) []string {
	var expired []string
	for id, tk := range d.tickets {
		if tk.ExpiredPending(now) {
			tk.Discard()
			delete(d.tickets, id)
			expired = append(expired, id)
		}
	}
	sort.Strings(expired)
	return expired
}

// activeTicketIDsSorted returns active ticket IDs in a deterministic order,
// so a tick's work is reproducible across runs given the same inputs.
func (d *Dispatcher) activeTicketIDsSorted() []string {
	ids := make([]string, 0, len(d.tickets))
	for id, tk := range d.tickets {
		if tk.State == fabric.TicketActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ResetWorkers forces every worker of kind back to free, the operator
// console's rlua robot|drone command.
func (d *Dispatcher) ResetWorkers(kind worker.Kind) int {
	return d.Workers.ResetKind(kind)
}

func (d *Dispatcher) send(ctx context.Context, addr string, pkt wire.Packet) {
	if err := d.Bus.Send(ctx, addr, pkt); err != nil {
		d.log.Warn("dispatch: send failed", "to", addr, "packet", pkt.Name, "error", err)
	}
}

func taskID(ticketID string, entryIndex int) string {
	return fmt.Sprintf("%s-%d", ticketID, entryIndex)
}
