// Package ticket implements the Craft Ticket state machine: the
// pending/active/running/done/cancelled/discarded lifecycle of one crafting
// request, and the dispatcher-tick bookkeeping (plan cursor, per-entry
// availability, supply staging, in-flight worker tasks) described in
// spec.md §4.8.
package ticket

import (
	"time"

	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// PendingTimeout is how long a pending ticket waits for a start before it
// is discarded.
const PendingTimeout = 10 * time.Second

// ExtractTimeout is how long a storage extract may stay in flight before
// it is a fatal error for the ticket.
const ExtractTimeout = 30 * time.Second

// PendingExtractState mirrors the dispatcher's pendingExtract variable,
// per spec.md §5: at most one storage extract in flight per ticket.
type PendingExtractState int

const (
	ExtractNone PendingExtractState = iota
	ExtractPending
	ExtractOK
	ExtractFailed
)

// Task is one in-flight crafting task handed to a set of workers: the
// worker IDs still busy on it, and the plan entry, staging index, and
// batch count it was dispatched with.
type Task struct {
	ID         string
	EntryIndex int
	StagingIdx int
	Batches    int
	Workers    map[string]bool // worker ID -> still outstanding
}

// Done reports whether every worker assigned to this task has reported
// finished.
func (t *Task) Done() bool {
	return len(t.Workers) == 0
}

// entryState is the dispatcher's per-plan-entry working state: whether its
// available-batches figure needs recomputing, and the last computed
// value.
type entryState struct {
	dirty       bool
	available   int
	maxLastTime time.Time
}

// Ticket is one craft request's full lifecycle record.
type Ticket struct {
	ID    string
	State fabric.TicketState
	Plan  *fabric.Plan

	RecipeStartIndex int
	BatchesRemaining []int
	entries          []entryState

	StoredItems   map[fabric.Kind]int
	SupplyIndices map[int]bool // staging index -> dirty
	CraftingTasks map[string]*Task

	PendingExtract PendingExtractState
	PendingInsert  PendingExtractState

	CreatedAt time.Time
	StartedAt time.Time

	CancelReason string
}

// New creates a pending ticket for a resolved plan.
func New(id string, plan *fabric.Plan, now time.Time) *Ticket {
	entries := make([]entryState, len(plan.Batches))
	remaining := make([]int, len(plan.Batches))
	for i, b := range plan.Batches {
		remaining[i] = b
		entries[i] = entryState{dirty: true}
	}
	return &Ticket{
		ID:               id,
		State:            fabric.TicketPending,
		Plan:             plan,
		BatchesRemaining: remaining,
		entries:          entries,
		StoredItems:      make(map[fabric.Kind]int),
		SupplyIndices:    make(map[int]bool),
		CraftingTasks:    make(map[string]*Task),
		CreatedAt:        now,
	}
}

// ExpiredPending reports whether a pending ticket has sat longer than
// PendingTimeout with no start.
func (t *Ticket) ExpiredPending(now time.Time) bool {
	return t.State == fabric.TicketPending && now.Sub(t.CreatedAt) >= PendingTimeout
}

// Start transitions pending -> active. The caller is responsible for
// issuing the storage reservation request and updating the Reservation
// Overlay before or alongside calling this.
func (t *Ticket) Start(now time.Time) {
	t.State = fabric.TicketActive
	t.StartedAt = now
}

// Discard transitions pending -> discarded, for the 10s no-start timeout.
func (t *Ticket) Discard() {
	t.State = fabric.TicketDiscarded
}

// Cancel transitions active/pending -> cancelled. The caller must still
// undo the Reservation Overlay delta and tell storage to cancel.
func (t *Ticket) Cancel(reason string) {
	t.State = fabric.TicketCancelled
	t.CancelReason = reason
}

// Finish transitions active -> done: cursor past the last plan entry, no
// worker tasks remain, and every supply staging inventory has flushed.
func (t *Ticket) Finish() {
	t.State = fabric.TicketDone
}

// ReadyToFinish reports the §4.8 "active -> done" precondition: cursor
// past end, no in-flight tasks, nothing left to flush.
func (t *Ticket) ReadyToFinish() bool {
	return t.RecipeStartIndex >= len(t.Plan.Batches) && len(t.CraftingTasks) == 0 && len(t.SupplyIndices) == 0
}

// MarkEntryDirty flags a plan entry for available-batches recomputation,
// e.g. after a dependency's stored quantity changes.
func (t *Ticket) MarkEntryDirty(index int) {
	if index >= 0 && index < len(t.entries) {
		t.entries[index].dirty = true
	}
}

// EntryDirty reports an entry's dirty bit.
func (t *Ticket) EntryDirty(index int) bool {
	return t.entries[index].dirty
}

// EntryAvailable returns an entry's last-computed available-batches
// figure.
func (t *Ticket) EntryAvailable(index int) int {
	return t.entries[index].available
}

// SetEntryAvailable records a freshly computed available-batches figure
// and clears the entry's dirty bit.
func (t *Ticket) SetEntryAvailable(index, available int, maxLastTime time.Time) {
	t.entries[index].available = available
	t.entries[index].maxLastTime = maxLastTime
	t.entries[index].dirty = false
}

// AdvanceCursor advances RecipeStartIndex past any leading plan entries
// with zero batches remaining, per §4.8 step 3.
func (t *Ticket) AdvanceCursor() {
	for t.RecipeStartIndex < len(t.BatchesRemaining) && t.BatchesRemaining[t.RecipeStartIndex] == 0 {
		t.RecipeStartIndex++
	}
}

// RecordTask adds a newly dispatched task to the in-flight set.
func (t *Ticket) RecordTask(task *Task) {
	t.CraftingTasks[task.ID] = task
}

// WorkerFinished reports a worker's completion of a task; once every
// worker assigned to it has finished, the task is removed and true is
// returned so the caller can fold its outputs into StoredItems and mark
// the staging inventory as supply.
func (t *Ticket) WorkerFinished(taskID, workerID string) (*Task, bool) {
	task, ok := t.CraftingTasks[taskID]
	if !ok {
		return nil, false
	}
	delete(task.Workers, workerID)
	if !task.Done() {
		return task, false
	}
	delete(t.CraftingTasks, taskID)
	return task, true
}
