package engine

import (
	"context"

	"github.com/rsned/transposer-crafting-fabric/internal/storage/index"
	"github.com/rsned/transposer-crafting-fabric/internal/storage/route"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// Extract implements spec.md §4.3. dstSlot of -1 means "first empty slot
// at the destination"; kind of the zero Kind means "any kind" (the
// extract cursor's own kind is used); amount of -1 means "as many as
// available", capped at one max-stack. If reserved is non-nil, only the
// available portion (total - reserved) may be taken and ok is false if
// the ask was clamped down.
func (e *Engine) Extract(ctx context.Context, dstRef fabric.InventoryRef, dstSlot int, kind fabric.Kind, amount int, reserved map[fabric.Kind]int) (ok bool, transferred int, err error) {
	if kind == (fabric.Kind{}) {
		kind = e.anyExtractableKind()
		if kind == (fabric.Kind{}) {
			return false, 0, nil
		}
	}
	entry, has := e.Items.Get(kind)
	if !has || !entry.HasExtract {
		return false, 0, nil
	}

	kindMax := e.kindMaxStack(kind)
	asked := amount
	if asked < 0 || asked > entry.Total {
		asked = entry.Total
	}
	if asked > kindMax {
		asked = kindMax
	}
	clamped := false
	if reserved != nil {
		avail := e.Items.Available(kind, reserved[kind])
		if asked > avail {
			asked = avail
			clamped = true
		}
	}
	if asked <= 0 {
		return false, 0, nil
	}

	// Step 1: coalesce into the extract stack if it is short.
	e.coalesceExtractStack(ctx, kind, entry, asked)

	dst, okDst := e.inventories[dstRef]
	if !okDst {
		return false, 0, nil
	}
	if dstSlot < 0 {
		dstSlot = dst.findSlotFor(kind, kindMax)
		if dstSlot < 0 {
			return false, 0, nil
		}
	}

	remaining := asked
	cur := entry.Extract

	for remaining > 0 {
		e2, has2 := e.Items.Get(kind)
		if !has2 || !e2.HasExtract {
			break
		}
		cur = e2.Extract

		// Ask no more than the current slot holds, so a shortfall on the
		// route means the destination refused items, not that this slot
		// ran out.
		want := remaining
		if curInv, ok := e.inventories[cur.InventoryRef]; ok && curInv.At(cur.Slot).Count < want {
			want = curInv.At(cur.Slot).Count
		}

		moved, stuck, rerr := e.Router.Route(ctx, e, cur, fabric.SlotRef{InventoryRef: dstRef, Slot: dstSlot}, want)
		if rerr != nil {
			return false, asked - remaining, rerr
		}
		if moved > 0 {
			e.Items.AdjustTotal(kind, -moved)
			remaining -= moved
			e.RecomputeFirstEmpty()
		}
		if stuck != nil {
			// Destination refused some: route the surplus back to the
			// extract slot, per spec.md §4.3 step 2.
			_, _, _ = e.Router.Route(ctx, e, *stuck, cur, remaining)
			break
		}

		// If the move emptied the current extract slot, advance the
		// cursor immediately - regardless of whether remaining has
		// reached zero - so the invariant "a non-empty slot sits at
		// extractIndex/Slot" holds for the next Extract call.
		if curInv, ok := e.inventories[cur.InventoryRef]; ok && curInv.At(cur.Slot).Empty() {
			if !e.stepExtractCursorForward(kind) {
				break
			}
		}

		if remaining == 0 {
			break
		}
	}

	transferred = asked - remaining
	return transferred == asked && !clamped, transferred, nil
}

// anyExtractableKind returns some kind currently present in the index, for
// a kind-agnostic extract request. Selection among several candidates is
// unspecified by spec.md; the first one enumerated is used.
func (e *Engine) anyExtractableKind() fabric.Kind {
	for k := range e.Items.All() {
		return k
	}
	return fabric.Kind{}
}

// coalesceExtractStack locates lower-priority slots holding kind (the
// extract cursor already sits at the highest-priority slot for kind, per
// ItemIndex.SetSlot) and transposes them into the current extract slot
// until it holds at least amount, or no more are available, updating
// firstEmpty/insert cursors when a lower-priority slot empties (spec.md
// §4.3 step 1).
func (e *Engine) coalesceExtractStack(ctx context.Context, kind fabric.Kind, entry *index.Entry, amount int) {
	extractInv, ok := e.inventories[entry.Extract.InventoryRef]
	if !ok {
		return
	}
	have := extractInv.At(entry.Extract.Slot).Count
	if have >= amount {
		return
	}

	ordered := e.orderedStorageSlots()
	extractPos := slotIndexOf(ordered, entry.Extract)
	if extractPos < 0 {
		return
	}

	for i := extractPos + 1; i < len(ordered) && have < amount; i++ {
		slot := ordered[i]
		inv := e.inventories[slot.InventoryRef]
		st := inv.At(slot.Slot)
		if st.Empty() || st.Kind != kind {
			continue
		}
		need := amount - have
		var moved int
		var err error
		if ports := e.Graph.PortsOf(slot.InventoryRef); slot.InventoryRef == entry.Extract.InventoryRef && len(ports) > 0 {
			// The router has no path from an inventory to itself: move
			// within it through one of its own transposer sides.
			hop := route.Hop{TransposerIndex: ports[0].TransposerIndex, InSide: ports[0].Side, OutSide: ports[0].Side}
			moved, err = e.Move(ctx, hop, slot.Slot, entry.Extract.Slot, need)
		} else {
			moved, _, err = e.Router.Route(ctx, e, slot, entry.Extract, need)
		}
		if err != nil || moved <= 0 {
			continue
		}
		have += moved
		if inv.At(slot.Slot).Empty() {
			e.RecomputeFirstEmpty()
			if slot.Less(entry.Insert) || !entry.HasInsert {
				e.Items.SetInsertCursor(kind, slot)
			}
		}
	}
}

// stepExtractCursorForward moves kind's extract cursor to the next
// lower-priority (higher-index) slot still holding it, returning false if
// none remain - spec.md §4.3 step 3, "continue backward by priority
// through lower-priority storage inventories."
func (e *Engine) stepExtractCursorForward(kind fabric.Kind) bool {
	entry, has := e.Items.Get(kind)
	if !has {
		return false
	}
	ordered := e.orderedStorageSlots()
	pos := slotIndexOf(ordered, entry.Extract)
	if pos < 0 {
		return false
	}
	for i := pos + 1; i < len(ordered); i++ {
		slot := ordered[i]
		inv := e.inventories[slot.InventoryRef]
		st := inv.At(slot.Slot)
		if !st.Empty() && st.Kind == kind {
			e.Items.SetExtractCursor(kind, slot)
			return true
		}
	}
	return false
}
