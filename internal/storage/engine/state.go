// Package engine implements the Storage Server's insert/extract/flush
// algorithms (spec.md §4.2-§4.4) on top of the route and index packages.
// Engine is the single owned state object mutated by each incoming
// message handler; there is no process-global singleton, per the "global
// mutable tables -> owned state" design note.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/rsned/transposer-crafting-fabric/internal/storage/index"
	"github.com/rsned/transposer-crafting-fabric/internal/storage/route"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// Inventory is one physical container: a fixed slot count, each slot
// holding empty or (kind, count). Capacity, when non-zero, overrides the
// kind's nominal max stack size for that slot (oversized slots, per
// spec.md §3).
type Inventory struct {
	Ref      fabric.InventoryRef
	Slots    []fabric.Stack
	Capacity []int
}

// NewInventory allocates an empty inventory with slotCount slots.
func NewInventory(ref fabric.InventoryRef, slotCount int) *Inventory {
	return &Inventory{
		Ref:      ref,
		Slots:    make([]fabric.Stack, slotCount),
		Capacity: make([]int, slotCount),
	}
}

// SlotCount returns the inventory's slot count.
func (inv *Inventory) SlotCount() int { return len(inv.Slots) }

// At returns the contents of slot.
func (inv *Inventory) At(slot int) fabric.Stack { return inv.Slots[slot] }

// Set overwrites slot's contents.
func (inv *Inventory) Set(slot int, s fabric.Stack) { inv.Slots[slot] = s }

// capacityAt returns slot's effective capacity given kind's nominal max
// stack size: the slot's own override if set, else kindMax.
func (inv *Inventory) capacityAt(slot, kindMax int) int {
	if slot < 0 || slot >= len(inv.Capacity) || inv.Capacity[slot] <= 0 {
		return kindMax
	}
	return inv.Capacity[slot]
}

// firstNonEmptySlot returns the lowest-index occupied slot, or -1.
func (inv *Inventory) firstNonEmptySlot() int {
	for i, s := range inv.Slots {
		if !s.Empty() {
			return i
		}
	}
	return -1
}

// findSlotFor returns the best slot to receive kind: a slot already
// holding kind with spare room, else the first empty slot, else -1.
func (inv *Inventory) findSlotFor(kind fabric.Kind, kindMax int) int {
	firstEmpty := -1
	for i, s := range inv.Slots {
		if s.Kind == kind && !s.Empty() && s.Count < inv.capacityAt(i, kindMax) {
			return i
		}
		if s.Empty() && firstEmpty < 0 {
			firstEmpty = i
		}
	}
	return firstEmpty
}

// Engine owns every piece of mutable Storage Server state: the physical
// inventories, the Transposer Graph and Router over them, and the three
// overlays from the index package.
type Engine struct {
	Graph        *route.Graph
	Router       *route.Router
	Items        *index.ItemIndex
	Reservations *index.ReservationOverlay
	Staging      *index.DroneStaging

	inventories map[fabric.InventoryRef]*Inventory
	kindInfo    map[fabric.Kind]fabric.KindInfo
	outputRef   fabric.InventoryRef
	haveOutput  bool

	log *slog.Logger
}

// NewEngine builds an Engine over an already-wired Graph and Router.
func NewEngine(graph *route.Graph, router *route.Router, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		Graph:        graph,
		Router:       router,
		Items:        index.NewItemIndex(),
		Reservations: index.NewReservationOverlay(),
		Staging:      index.NewDroneStaging(),
		inventories:  make(map[fabric.InventoryRef]*Inventory),
		kindInfo:     make(map[fabric.Kind]fabric.KindInfo),
		log:          log,
	}
}

// RegisterInventory adds a physical inventory to the engine's arena. Must
// be called for every inventory named in the routing config before the
// startup scan runs.
func (e *Engine) RegisterInventory(inv *Inventory) {
	e.inventories[inv.Ref] = inv
	if inv.Ref.Role == fabric.RoleOutput {
		e.outputRef = inv.Ref
		e.haveOutput = true
	}
}

// Inventory returns the physical inventory for ref, if registered.
func (e *Engine) Inventory(ref fabric.InventoryRef) (*Inventory, bool) {
	inv, ok := e.inventories[ref]
	return inv, ok
}

// DroneIndices returns every registered drone inventory's index, ascending.
func (e *Engine) DroneIndices() []int {
	var idx []int
	for ref := range e.inventories {
		if ref.Role == fabric.RoleDrone {
			idx = append(idx, ref.Index)
		}
	}
	sort.Ints(idx)
	return idx
}

// RegisterKind caches a kind's display attributes, as observed the first
// time a slot holding it is scanned.
func (e *Engine) RegisterKind(info fabric.KindInfo) {
	e.kindInfo[info.Kind] = info
}

func (e *Engine) kindMaxStack(kind fabric.Kind) int {
	if info, ok := e.kindInfo[kind]; ok && info.MaxStackSize > 0 {
		return info.MaxStackSize
	}
	return 64
}

func (e *Engine) kindLabel(kind fabric.Kind) string {
	return e.kindInfo[kind].Label
}

// Move implements route.Mover: it performs one physical hop between two
// inventories wired to the same transposer. srcSlot/dstSlot of -1 mean
// "pick a slot automatically" (used for the relay inventories that sit
// between the two named endpoints of a route, and for destinations like
// flush's output inventory that do not pin a specific slot).
func (e *Engine) Move(_ context.Context, hop route.Hop, srcSlot, dstSlot, amount int) (int, error) {
	srcRef, ok := e.Graph.InventoryAt(route.Port{TransposerIndex: hop.TransposerIndex, Side: hop.InSide})
	if !ok {
		return 0, fmt.Errorf("engine: hop references unwired port %d/%d", hop.TransposerIndex, hop.InSide)
	}
	dstRef, ok := e.Graph.InventoryAt(route.Port{TransposerIndex: hop.TransposerIndex, Side: hop.OutSide})
	if !ok {
		return 0, fmt.Errorf("engine: hop references unwired port %d/%d", hop.TransposerIndex, hop.OutSide)
	}
	src, ok := e.inventories[srcRef]
	if !ok {
		return 0, fmt.Errorf("engine: inventory %s not registered", srcRef)
	}
	dst, ok := e.inventories[dstRef]
	if !ok {
		return 0, fmt.Errorf("engine: inventory %s not registered", dstRef)
	}

	if srcSlot < 0 {
		srcSlot = src.firstNonEmptySlot()
		if srcSlot < 0 {
			return 0, nil
		}
	}
	stack := src.At(srcSlot)
	if stack.Empty() {
		return 0, nil
	}

	kindMax := e.kindMaxStack(stack.Kind)
	if dstSlot < 0 {
		dstSlot = dst.findSlotFor(stack.Kind, kindMax)
		if dstSlot < 0 {
			return 0, nil
		}
	}

	destStack := dst.At(dstSlot)
	if !destStack.Empty() && destStack.Kind != stack.Kind {
		return 0, nil // slot occupied by a different kind: nothing moves, not fatal
	}

	room := dst.capacityAt(dstSlot, kindMax) - destStack.Count
	if room <= 0 {
		return 0, nil
	}

	moved := amount
	if moved > stack.Count {
		moved = stack.Count
	}
	if moved > room {
		moved = room
	}
	if moved <= 0 {
		return 0, nil
	}

	dst.Set(dstSlot, fabric.Stack{Kind: stack.Kind, Count: destStack.Count + moved})
	remainder := stack.Count - moved
	if remainder <= 0 {
		src.Set(srcSlot, fabric.Stack{})
	} else {
		src.Set(srcSlot, fabric.Stack{Kind: stack.Kind, Count: remainder})
	}
	return moved, nil
}

// orderedStorageSlots enumerates every slot of every storage inventory in
// priority order (ascending InventoryRef.Index, then ascending slot
// number). The partial sweep and the extract algorithm's "continue
// backward by priority" step both walk this sequence.
func (e *Engine) orderedStorageSlots() []fabric.SlotRef {
	var refs []fabric.InventoryRef
	for ref := range e.inventories {
		if ref.Role == fabric.RoleStorage {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Index < refs[j].Index })

	var slots []fabric.SlotRef
	for _, ref := range refs {
		inv := e.inventories[ref]
		for s := 0; s < inv.SlotCount(); s++ {
			slots = append(slots, fabric.SlotRef{InventoryRef: ref, Slot: s})
		}
	}
	return slots
}

func slotIndexOf(ordered []fabric.SlotRef, target fabric.SlotRef) int {
	for i, s := range ordered {
		if s == target {
			return i
		}
	}
	return -1
}

// ScanSlot feeds the index a startup-scan observation of one physical
// storage slot: positions Item Index cursors and records the kind's
// display attributes.
func (e *Engine) ScanSlot(ref fabric.InventoryRef, slot int, info fabric.KindInfo, count int) {
	if count <= 0 {
		return
	}
	e.RegisterKind(info)
	e.Items.SetSlot(info.Kind, fabric.SlotRef{InventoryRef: ref, Slot: slot}, count, info.MaxStackSize, info.Label)
}

// RecomputeFirstEmpty scans every storage slot in priority order and
// records the first one found, clearing the pointer if none remain.
func (e *Engine) RecomputeFirstEmpty() {
	for _, slot := range e.orderedStorageSlots() {
		inv := e.inventories[slot.InventoryRef]
		if inv.At(slot.Slot).Empty() {
			s := slot
			e.Items.SetFirstEmpty(&s)
			return
		}
	}
	e.Items.SetFirstEmpty(nil)
}
