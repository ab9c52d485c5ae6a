package engine

import (
	"context"

	"github.com/rsned/transposer-crafting-fabric/internal/storage/index"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// Insert implements spec.md §4.2. It pulls up to one max-stack of items
// from (srcRef, srcSlot) — srcSlot of -1 means "first non-empty slot in
// that inventory", amount of -1 means "the whole stack" — and places them
// into storage via three phases, each running only while items remain:
// insert to the current partial, sweep forward for other partials, then
// first empty slot. Returns ok=false whenever some items were not placed
// into storage; that residue is routed back toward the source on a
// best-effort basis.
func (e *Engine) Insert(ctx context.Context, srcRef fabric.InventoryRef, srcSlot, amount int) (ok bool, transferred int, err error) {
	src, ok2 := e.inventories[srcRef]
	if !ok2 {
		return false, 0, nil
	}
	if srcSlot < 0 {
		srcSlot = src.firstNonEmptySlot()
		if srcSlot < 0 {
			return false, 0, nil
		}
	}
	stack := src.At(srcSlot)
	if stack.Empty() {
		return false, 0, nil
	}
	kind := stack.Kind
	kindMax := e.kindMaxStack(kind)
	if amount < 0 || amount > stack.Count {
		amount = stack.Count
	}
	if amount > kindMax {
		amount = kindMax
	}

	remaining := amount
	cur := fabric.SlotRef{InventoryRef: srcRef, Slot: srcSlot}

	// Phase 1: insert to the current partial.
	if entry, has := e.Items.Get(kind); has && entry.HasInsert && remaining > 0 {
		moved, stuck, rerr := e.Router.Route(ctx, e, cur, entry.Insert, remaining)
		if rerr != nil {
			return false, amount - remaining, rerr
		}
		if moved > 0 {
			e.Items.AdjustTotal(kind, moved)
			remaining -= moved
		}
		if stuck != nil {
			cur = *stuck
		}
	}

	// Phase 2: sweep forward for other partials, only if not yet checked.
	if remaining > 0 {
		if entry, has := e.Items.Get(kind); has && !entry.CheckedPartials {
			var rerr error
			remaining, cur, rerr = e.sweepForwardPartials(ctx, kind, entry, remaining, cur)
			if rerr != nil {
				return false, amount - remaining, rerr
			}
		}
	}

	// Phase 3: first empty slot.
	if remaining > 0 {
		if emptySlot, has := e.Items.FirstEmpty(); has {
			moved, stuck, rerr := e.Router.Route(ctx, e, cur, emptySlot, remaining)
			if rerr != nil {
				return false, amount - remaining, rerr
			}
			if moved > 0 {
				wasNew := true
				if prior, hasPrior := e.Items.Get(kind); hasPrior && prior.HasExtract {
					wasNew = false
				}
				e.Items.AdjustTotal(kind, moved)
				remaining -= moved
				e.Items.SetInsertCursor(kind, emptySlot)
				if wasNew {
					e.Items.SetExtractCursor(kind, emptySlot)
				}
				e.RecomputeFirstEmpty()
			}
			if stuck != nil {
				cur = *stuck
			}
		}
	}

	// Residue could not be placed: best-effort route it home.
	if remaining > 0 {
		e.routeResidueHome(ctx, cur, srcRef, remaining)
	}

	transferred = amount - remaining
	return remaining == 0, transferred, nil
}

// sweepForwardPartials walks the priority-ordered storage slot sequence
// from just past entry.Insert up to entry.Extract, routing the remaining
// items to every slot already holding kind. It advances the insert cursor
// whenever a slot fully absorbs everything routed to it, and marks
// checkedPartials once the walk reaches the extract cursor.
func (e *Engine) sweepForwardPartials(ctx context.Context, kind fabric.Kind, entry *index.Entry, remaining int, cur fabric.SlotRef) (int, fabric.SlotRef, error) {
	ordered := e.orderedStorageSlots()
	start := slotIndexOf(ordered, entry.Insert)
	end := slotIndexOf(ordered, entry.Extract)
	if start < 0 || end < 0 || start >= end {
		e.Items.MarkCheckedPartials(kind)
		return remaining, cur, nil
	}

	i := start + 1
	for ; i <= end && remaining > 0; i++ {
		slot := ordered[i]
		inv := e.inventories[slot.InventoryRef]
		st := inv.At(slot.Slot)
		if st.Empty() || st.Kind != kind {
			continue
		}
		moved, stuck, err := e.Router.Route(ctx, e, cur, slot, remaining)
		if err != nil {
			return remaining, cur, err
		}
		if moved > 0 {
			e.Items.AdjustTotal(kind, moved)
			remaining -= moved
			if stuck == nil {
				e.Items.SetInsertCursor(kind, slot)
			}
		}
		if stuck != nil {
			cur = *stuck
		}
	}

	if i > end {
		e.Items.MarkCheckedPartials(kind)
	}
	return remaining, cur, nil
}

// routeResidueHome attempts to send leftover items back toward the
// original source, per spec.md §4.2: "route them back to the source
// (best-effort; final rest goes to any empty slot of source)".
func (e *Engine) routeResidueHome(ctx context.Context, cur fabric.SlotRef, srcRef fabric.InventoryRef, remaining int) {
	if cur.InventoryRef == srcRef {
		return
	}
	src, ok := e.inventories[srcRef]
	if !ok {
		return
	}
	targetSlot := -1
	for i := 0; i < src.SlotCount(); i++ {
		if src.At(i).Empty() {
			targetSlot = i
			break
		}
	}
	if targetSlot < 0 {
		return
	}
	_, _, _ = e.Router.Route(ctx, e, cur, fabric.SlotRef{InventoryRef: srcRef, Slot: targetSlot}, remaining)
}
