package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rsned/transposer-crafting-fabric/internal/craft/ticket"
	"github.com/rsned/transposer-crafting-fabric/internal/wire"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// Tick runs one dispatcher pass: expire stale pending tickets, then advance
// every active ticket by at most one dispatched task, per spec.md §8
// scenario 6's pipeline.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) {
	d.ExpirePending(now)
	for _, id := range d.activeTicketIDsSorted() {
		d.tickTicket(ctx, d.tickets[id], now)
	}
}

func (d *Dispatcher) tickTicket(ctx context.Context, tk *ticket.Ticket, now time.Time) {
	tk.AdvanceCursor()
	if tk.ReadyToFinish() {
		tk.Finish()
		delete(d.tickets, tk.ID)
		return
	}

	idx := tk.RecipeStartIndex
	if idx >= len(tk.Plan.Batches) || tk.BatchesRemaining[idx] == 0 {
		return
	}

	recipe, ok := d.Catalog.Recipe(tk.Plan.RecipeIDs[idx])
	if !ok {
		tk.Cancel(fmt.Sprintf("unknown recipe %q", tk.Plan.RecipeIDs[idx]))
		delete(d.tickets, tk.ID)
		return
	}

	if tk.EntryDirty(idx) {
		tk.SetEntryAvailable(idx, d.availableBatches(tk, recipe, tk.BatchesRemaining[idx]), now)
	}
	available := tk.EntryAvailable(idx)
	if available <= 0 {
		return
	}

	kind := d.workerKindFor(recipe)
	d.needKind = kind
	if !d.Workers.HasFreeAdjacentAnywhere(kind) {
		return
	}

	needsWorkers := true
	stagingIdx := d.Staging.Allocate(tk.ID, fabric.StagingOutput, needsWorkers)
	if stagingIdx < 0 {
		return
	}

	free := d.Workers.FreeAdjacentTo(stagingIdx, kind)
	if len(free) == 0 {
		d.Staging.Release(stagingIdx)
		return
	}

	batches := available
	if batches > tk.BatchesRemaining[idx] {
		batches = tk.BatchesRemaining[idx]
	}

	w := free[0]
	d.Workers.SetState(w.ID, fabric.WorkerPending)

	id := taskID(tk.ID, idx)
	task := &ticket.Task{
		ID:         id,
		EntryIndex: idx,
		StagingIdx: stagingIdx,
		Batches:    batches,
		Workers:    map[string]bool{w.ID: true},
	}
	tk.RecordTask(task)
	tk.BatchesRemaining[idx] -= batches

	d.dispatchExtract(ctx, tk, recipe, stagingIdx, batches)
	d.dispatchWorker(ctx, w.ID, id, stagingIdx, batches, recipe.ID)
}

// availableBatches computes how many batches of recipe this ticket can
// start right now: each component must be covered either by product this
// ticket has already staged (tk.StoredItems) or by what storage currently
// holds, capped at the batches still wanted.
func (d *Dispatcher) availableBatches(tk *ticket.Ticket, recipe fabric.Recipe, wanted int) int {
	batches := wanted
	for _, comp := range recipe.Components {
		have := tk.StoredItems[comp.Kind] + d.known[comp.Kind]
		if comp.Quantity <= 0 {
			continue
		}
		if b := have / comp.Quantity; b < batches {
			batches = b
		}
	}
	if batches < 0 {
		return 0
	}
	return batches
}

// dispatchExtract asks storage to pull recipe's inputs for batches into the
// allocated staging inventory. Storage's stor_drone_extract handler always
// pulls from main storage rather than chaining across a ticket's other
// staged inventories, so SupplyIndices plays no part in the wire body -
// see internal/storage/server's handleDroneExtract doc comment.
func (d *Dispatcher) dispatchExtract(ctx context.Context, tk *ticket.Ticket, recipe fabric.Recipe, stagingIdx, batches int) {
	items := make(map[fabric.Kind]int, len(recipe.Components))
	for _, comp := range recipe.Components {
		items[comp.Kind] = comp.Quantity * batches
	}
	body := encodeDroneExtract(stagingIdx, tk.ID, items)
	d.send(ctx, d.StorageAddr, wire.Packet{Name: fabric.PacketStorDroneExtract, Body: body})
}

// dispatchWorker hands a cached task to a worker: prepare, then start.
func (d *Dispatcher) dispatchWorker(ctx context.Context, workerAddr, taskID string, stagingIdx, batches int, recipeID string) {
	body := fmt.Sprintf("%s;%d;%d;%s", taskID, stagingIdx, batches, recipeID)
	d.send(ctx, workerAddr, wire.Packet{Name: fabric.PacketRobotPrepareCraft, Body: body})
	d.send(ctx, workerAddr, wire.Packet{Name: fabric.PacketRobotStartCraft, Body: ""})
}

// WorkerFinished handles robot_finished_craft: folds the task's output into
// the ticket's staged stock, flips its staging inventory to "input" for
// storage to drain, frees the worker, and marks every downstream plan
// entry that consumes this recipe's output dirty for recomputation.
func (d *Dispatcher) WorkerFinished(ticketID, taskID, workerID string) error {
	tk, ok := d.tickets[ticketID]
	if !ok {
		return fmt.Errorf("dispatch: unknown ticket %q", ticketID)
	}
	task, done := tk.WorkerFinished(taskID, workerID)
	if task == nil {
		return fmt.Errorf("dispatch: unknown task %q for ticket %q", taskID, ticketID)
	}
	d.Workers.SetState(workerID, fabric.WorkerFree)
	if !done {
		return nil
	}

	recipe, ok := d.Catalog.Recipe(tk.Plan.RecipeIDs[task.EntryIndex])
	if !ok {
		return fmt.Errorf("dispatch: unknown recipe for task %q", taskID)
	}
	produced := task.Batches * recipe.Output.Quantity
	tk.StoredItems[recipe.Output.Kind] += produced

	d.Staging.MarkInput(task.StagingIdx)
	tk.SupplyIndices[task.StagingIdx] = true

	for i, recipeID := range tk.Plan.RecipeIDs {
		if i <= task.EntryIndex {
			continue
		}
		downstream, ok := d.Catalog.Recipe(recipeID)
		if !ok {
			continue
		}
		for _, comp := range downstream.Components {
			if comp.Kind == recipe.Output.Kind {
				tk.MarkEntryDirty(i)
				break
			}
		}
	}
	return nil
}

// WorkerError handles robot_error: the ticket-local failure path of
// spec.md §7 - cancel the ticket and let the caller surface
// craft_recipe_error and tell storage to release the reservation.
func (d *Dispatcher) WorkerError(ticketID, kind, message string) (*ticket.Ticket, bool) {
	return d.CancelTicket(ticketID, fmt.Sprintf("%s: %s", kind, message))
}

// StorageAck handles stor_drone_item_diff. Only a successful insert
// acknowledgement acts: it releases the drained staging inventory and
// drops it from every ticket's supply set. Extract acknowledgements and
// failed results change nothing here.
func (d *Dispatcher) StorageAck(droneIdx int, op string, result fabric.DroneOpResult) {
	if op == "insert" && result == fabric.DroneOpOK {
		d.Staging.Release(droneIdx)
		for _, tk := range d.tickets {
			delete(tk.SupplyIndices, droneIdx)
		}
	}
}

func encodeDroneExtract(droneIdx int, ticketID string, items map[fabric.Kind]int) string {
	var itemsB strings.Builder
	first := true
	for k, v := range items {
		if !first {
			itemsB.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&itemsB, "%s=%d", k.String(), v)
	}
	return fmt.Sprintf("%d;%s;%s", droneIdx, ticketID, itemsB.String())
}
