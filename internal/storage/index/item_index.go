// Package index holds the Storage Server's three in-memory overlays: the
// Item Index (what lives where), the Reservation Overlay (what is
// earmarked for in-flight crafts), and Drone Staging (a slot-level mirror
// of the neutral buffer inventories shared with workers). All three are
// owned by one Storage Server state object and mutated only inside a
// single message handler invocation, per spec.md §5 — there is no locking
// here because the server's dispatch loop is the sole serialization point.
package index

import "github.com/rsned/transposer-crafting-fabric/pkg/fabric"

// Entry is one kind's bookkeeping row in the Item Index, per spec.md §3.
type Entry struct {
	Kind            fabric.Kind
	Total           int
	Insert          fabric.SlotRef
	HasInsert       bool
	Extract         fabric.SlotRef
	HasExtract      bool
	CheckedPartials bool
	Label           string
	MaxStackSize    int
}

// ItemIndex is the Storage Server's catalog of what lives where, built by
// scanning every storage inventory at startup and maintained incrementally
// by Insert and Extract thereafter.
type ItemIndex struct {
	entries    map[fabric.Kind]*Entry
	firstEmpty *fabric.SlotRef
	changes    map[fabric.Kind]int // prior Total as of the last diff emission, snapshotted on first touch this cycle
}

// NewItemIndex returns an empty index.
func NewItemIndex() *ItemIndex {
	return &ItemIndex{
		entries: make(map[fabric.Kind]*Entry),
		changes: make(map[fabric.Kind]int),
	}
}

// Get returns the entry for kind, if any.
func (idx *ItemIndex) Get(kind fabric.Kind) (*Entry, bool) {
	e, ok := idx.entries[kind]
	return e, ok
}

// touch returns kind's entry, creating it with a zero Total if absent, and
// snapshots the prior total into the changes map the first time this kind
// is touched since the last diff emission.
func (idx *ItemIndex) touch(kind fabric.Kind, label string, maxStack int) *Entry {
	e, ok := idx.entries[kind]
	if !ok {
		e = &Entry{Kind: kind, Label: label, MaxStackSize: maxStack}
		idx.entries[kind] = e
	}
	if _, seen := idx.changes[kind]; !seen {
		idx.changes[kind] = e.Total
	}
	return e
}

// snapshotChange records kind's current total as the pre-image for the
// next diff broadcast, if not already recorded this cycle.
func (idx *ItemIndex) snapshotChange(kind fabric.Kind, priorTotal int) {
	if _, seen := idx.changes[kind]; !seen {
		idx.changes[kind] = priorTotal
	}
}

// SetSlot records a scan-time observation of one physical slot: adds
// count to kind's total and, if this is the first or highest-priority
// slot seen for that kind, positions the insert/extract cursors there.
// Used by the storage engine's startup scan (Engine.ScanSlot).
func (idx *ItemIndex) SetSlot(kind fabric.Kind, slot fabric.SlotRef, count, maxStack int, label string) {
	e := idx.touch(kind, label, maxStack)
	idx.snapshotChange(kind, e.Total)
	e.Total += count

	if !e.HasExtract || slot.Less(e.Extract) {
		e.Extract = slot
		e.HasExtract = true
	}
	if !e.HasInsert || slot.Less(e.Insert) {
		e.Insert = slot
		e.HasInsert = true
	}
}

// AdjustTotal changes kind's total by delta (positive for an insert,
// negative for an extract) and snapshots the pre-image for the diff
// broadcast. Removes the entry entirely once its total reaches zero,
// matching the invariant that every kind present in the index has
// total > 0.
func (idx *ItemIndex) AdjustTotal(kind fabric.Kind, delta int) {
	e, ok := idx.entries[kind]
	if !ok {
		if delta <= 0 {
			return
		}
		e = &Entry{Kind: kind}
		idx.entries[kind] = e
	}
	idx.snapshotChange(kind, e.Total)
	e.Total += delta
	if e.Total <= 0 {
		delete(idx.entries, kind)
	}
}

// SetInsertCursor repositions kind's insert cursor, e.g. after the partial
// sweep (storage engine insert phase 2) or after a first-empty-slot
// placement (phase 3) names a new partial.
func (idx *ItemIndex) SetInsertCursor(kind fabric.Kind, slot fabric.SlotRef) {
	if e, ok := idx.entries[kind]; ok {
		e.Insert = slot
		e.HasInsert = true
	}
}

// SetExtractCursor repositions kind's extract cursor after a coalesce
// sweep empties its prior location.
func (idx *ItemIndex) SetExtractCursor(kind fabric.Kind, slot fabric.SlotRef) {
	if e, ok := idx.entries[kind]; ok {
		e.Extract = slot
		e.HasExtract = true
	}
}

// MarkCheckedPartials sets the one-time forward-sweep flag for kind.
func (idx *ItemIndex) MarkCheckedPartials(kind fabric.Kind) {
	if e, ok := idx.entries[kind]; ok {
		e.CheckedPartials = true
	}
}

// FirstEmpty returns the lowest-priority-index empty slot known to the
// index, if any.
func (idx *ItemIndex) FirstEmpty() (fabric.SlotRef, bool) {
	if idx.firstEmpty == nil {
		return fabric.SlotRef{}, false
	}
	return *idx.firstEmpty, true
}

// SetFirstEmpty records the new first-empty-slot pointer, or clears it if
// slot is nil (no empty slot known).
func (idx *ItemIndex) SetFirstEmpty(slot *fabric.SlotRef) {
	idx.firstEmpty = slot
}

// Available computes kind's publicly visible quantity given the current
// Reservation Overlay counter for that kind: max(0, total - max(0, reserved)).
func (idx *ItemIndex) Available(kind fabric.Kind, reserved int) int {
	e, ok := idx.entries[kind]
	if !ok {
		return 0
	}
	r := reserved
	if r < 0 {
		r = 0
	}
	avail := e.Total - r
	if avail < 0 {
		return 0
	}
	return avail
}

// All returns every entry currently in the index, for startup snapshots
// and full-state packets like stor_item_list.
func (idx *ItemIndex) All() map[fabric.Kind]*Entry {
	return idx.entries
}
