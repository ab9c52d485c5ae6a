package server

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/rsned/transposer-crafting-fabric/internal/storage/engine"
	"github.com/rsned/transposer-crafting-fabric/internal/storage/index"
	"github.com/rsned/transposer-crafting-fabric/internal/wire"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// indexDiff exposes the engine's merged Item Index / Reservation Overlay
// diff to this package without engine needing to know about wire framing.
func indexDiff(e *engine.Engine) []index.DiffEntry {
	return index.Diff(e.Items, e.Reservations)
}

// Server wires an engine.Engine to the radio bus: every handler below
// corresponds to one row of spec.md §6's packet table with `Dir` ending in
// "storage" or starting from it.
type Server struct {
	Engine *engine.Engine
	Bus    wire.Bus
	log    *slog.Logger

	peers     map[string]struct{}
	reserved  map[string]map[fabric.Kind]int // ticket -> requiredItems as last reserved
	inputRef  fabric.InventoryRef
	outputRef fabric.InventoryRef
}

// New builds a Server. inputRef/outputRef must name the network's single
// input and output inventories (spec.md §6's cardinality constraint).
func New(e *engine.Engine, bus wire.Bus, inputRef, outputRef fabric.InventoryRef, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		Engine:    e,
		Bus:       bus,
		log:       log,
		peers:     make(map[string]struct{}),
		reserved:  make(map[string]map[fabric.Kind]int),
		inputRef:  inputRef,
		outputRef: outputRef,
	}
}

// RegisterHandlers binds every stor_* packet this server receives to a
// dispatch.Dispatcher, generalizing the teacher's method-table lookup.
func (s *Server) RegisterHandlers(d *wire.Dispatcher) {
	d.Register(fabric.PacketStorDiscover, s.handleDiscover)
	d.Register(fabric.PacketStorInsert, s.handleInsert)
	d.Register(fabric.PacketStorExtract, s.handleExtract)
	d.Register(fabric.PacketStorRecipeReserve, s.handleRecipeReserve)
	d.Register(fabric.PacketStorRecipeStart, s.handleRecipeStart)
	d.Register(fabric.PacketStorRecipeCancel, s.handleRecipeCancel)
	d.Register(fabric.PacketStorGetDroneItemList, s.handleGetDroneItemList)
	d.Register(fabric.PacketStorDroneInsert, s.handleDroneInsert)
	d.Register(fabric.PacketStorDroneExtract, s.handleDroneExtract)
}

func (s *Server) trackPeer(addr string) {
	s.peers[addr] = struct{}{}
}

// handleDiscover replies with a full item-list snapshot, the discovery
// handshake implied by the stor_discover / stor_item_list pair in
// spec.md §6's packet table.
func (s *Server) handleDiscover(_ context.Context, from string, _ string) ([]wire.Packet, error) {
	s.trackPeer(from)
	return []wire.Packet{s.snapshotPacket()}, nil
}

func (s *Server) snapshotPacket() wire.Packet {
	var b strings.Builder
	first := true
	for kind, e := range s.Engine.Items.All() {
		if !first {
			b.WriteByte('|')
		}
		first = false
		reserved := s.Engine.Reservations.Get(kind)
		avail := s.Engine.Items.Available(kind, reserved)
		fmt.Fprintf(&b, "%s=%d,%d,%s", kind.String(), e.MaxStackSize, avail, e.Label)
	}
	return wire.Packet{Name: fabric.PacketStorItemList, Body: b.String()}
}

// broadcastDiff emits a stor_item_diff to every known peer, merging the
// Item Index's and Reservation Overlay's pending change-maps.
func (s *Server) broadcastDiff(ctx context.Context) {
	diffs := indexDiff(s.Engine)
	if len(diffs) == 0 {
		return
	}
	var b strings.Builder
	for i, d := range diffs {
		if i > 0 {
			b.WriteByte('|')
		}
		fmt.Fprintf(&b, "%s=%d,%d,%s", d.Kind.String(), d.MaxStackSize, d.Available, d.Label)
	}
	pkt := wire.Packet{Name: fabric.PacketStorItemDiff, Body: b.String()}
	for addr := range s.peers {
		if err := s.Bus.Send(ctx, addr, pkt); err != nil {
			s.log.Warn("server: diff broadcast send failed", "to", addr, "error", err)
		}
	}
}

// handleInsert pulls whatever sits in the input inventory into storage.
func (s *Server) handleInsert(ctx context.Context, from string, _ string) ([]wire.Packet, error) {
	s.trackPeer(from)
	if _, _, err := s.Engine.Insert(ctx, s.inputRef, -1, -1); err != nil {
		return nil, fmt.Errorf("stor_insert: %w", err)
	}
	s.broadcastDiff(ctx)
	return nil, nil
}

// handleExtract withdraws to the network's output inventory. Body is
// "kind?;amount" where an empty kind segment means "any kind" and a
// negative amount means "as many as available".
func (s *Server) handleExtract(ctx context.Context, from string, body string) ([]wire.Packet, error) {
	s.trackPeer(from)
	kindStr, amtStr, _ := strings.Cut(body, ";")
	var kind fabric.Kind
	if strings.TrimSpace(kindStr) != "" {
		k, err := ParseKind(kindStr)
		if err != nil {
			return nil, fmt.Errorf("stor_extract: %w", err)
		}
		kind = k
	}
	amount := -1
	if strings.TrimSpace(amtStr) != "" {
		a, err := strconv.Atoi(strings.TrimSpace(amtStr))
		if err != nil {
			return nil, fmt.Errorf("stor_extract: bad amount: %w", err)
		}
		amount = a
	}
	if _, _, err := s.Engine.Extract(ctx, s.outputRef, -1, kind, amount, nil); err != nil {
		return nil, fmt.Errorf("stor_extract: %w", err)
	}
	s.broadcastDiff(ctx)
	return nil, nil
}

// handleRecipeReserve applies a ticket's requiredItems map to the
// Reservation Overlay, per the pending->active transition of spec.md
// §4.8 (reservation happens on start; the packet name matches the RO
// mutation it performs, not the ticket state transition that triggers it).
func (s *Server) handleRecipeReserve(ctx context.Context, from string, body string) ([]wire.Packet, error) {
	s.trackPeer(from)
	ticket, itemsStr, _ := strings.Cut(body, ";")
	items, err := decodeKindAmounts(itemsStr)
	if err != nil {
		return nil, fmt.Errorf("stor_recipe_reserve: %w", err)
	}
	for kind, amt := range items {
		s.Engine.Reservations.ChangeReserved(kind, amt)
	}
	s.reserved[ticket] = items
	s.broadcastDiff(ctx)
	return nil, nil
}

// handleRecipeStart is a bookkeeping no-op at the storage layer: the
// reservation already happened in stor_recipe_reserve.
func (s *Server) handleRecipeStart(_ context.Context, from string, _ string) ([]wire.Packet, error) {
	s.trackPeer(from)
	return nil, nil
}

// handleRecipeCancel undoes a ticket's reservation delta.
func (s *Server) handleRecipeCancel(ctx context.Context, from string, body string) ([]wire.Packet, error) {
	s.trackPeer(from)
	ticket := strings.TrimSpace(body)
	items, ok := s.reserved[ticket]
	if !ok {
		return nil, nil
	}
	for kind, amt := range items {
		s.Engine.Reservations.ChangeReserved(kind, -amt)
	}
	delete(s.reserved, ticket)
	s.broadcastDiff(ctx)
	return nil, nil
}

// handleGetDroneItemList replies with a full Drone Staging snapshot: every
// mirrored slot of every known drone inventory, "droneIdx,slot=kind,count,
// maxstack" entries joined by "|".
func (s *Server) handleGetDroneItemList(_ context.Context, from string, _ string) ([]wire.Packet, error) {
	s.trackPeer(from)
	var b strings.Builder
	first := true
	for _, droneIdx := range s.Engine.DroneIndices() {
		snap := s.Engine.Staging.Snapshot(droneIdx)
		slots := make([]int, 0, len(snap))
		for slot := range snap {
			slots = append(slots, slot)
		}
		sort.Ints(slots)
		for _, slot := range slots {
			e := snap[slot]
			if !first {
				b.WriteByte('|')
			}
			first = false
			fmt.Fprintf(&b, "%d,%d=%s,%d,%d", droneIdx, slot, e.Kind.String(), e.Count, e.MaxStackSize)
		}
	}
	return []wire.Packet{{Name: fabric.PacketStorDroneItemList, Body: b.String()}}, nil
}

// handleDroneInsert pulls everything currently sitting in one drone
// inventory into storage (a worker returning finished product).
func (s *Server) handleDroneInsert(ctx context.Context, from string, body string) ([]wire.Packet, error) {
	s.trackPeer(from)
	droneIdxStr, _, _ := strings.Cut(body, ";")
	droneIdx, err := strconv.Atoi(strings.TrimSpace(droneIdxStr))
	if err != nil {
		return nil, fmt.Errorf("stor_drone_insert: bad drone index: %w", err)
	}
	droneRef := fabric.InventoryRef{Role: fabric.RoleDrone, Index: droneIdx}
	inv, ok := s.Engine.Inventory(droneRef)
	if !ok {
		return []wire.Packet{{Name: fabric.PacketStorDroneItemDiff, Body: fmt.Sprintf("%d;insert;missing", droneIdx)}}, nil
	}

	result := "ok"
	for slot := 0; slot < inv.SlotCount(); slot++ {
		if inv.At(slot).Empty() {
			continue
		}
		ok, _, err := s.Engine.Insert(ctx, droneRef, slot, -1)
		if err != nil {
			return nil, fmt.Errorf("stor_drone_insert: %w", err)
		}
		if !ok {
			result = "full"
		}
	}
	s.syncDroneStaging(droneIdx, inv)
	s.Engine.Staging.ClearDirty(droneIdx)
	s.broadcastDiff(ctx)
	return []wire.Packet{{Name: fabric.PacketStorDroneItemDiff, Body: fmt.Sprintf("%d;insert;%s", droneIdx, result)}}, nil
}

// syncDroneStaging re-mirrors droneIdx's physical slots into the Drone
// Staging overlay, so a later stor_get_drone_item_list reflects what the
// Storage Server last placed or pulled rather than a stale or empty mirror.
func (s *Server) syncDroneStaging(droneIdx int, inv *engine.Inventory) {
	for slot := 0; slot < inv.SlotCount(); slot++ {
		st := inv.At(slot)
		if st.Empty() {
			s.Engine.Staging.Set(droneIdx, slot, index.DroneStagingEntry{})
			continue
		}
		maxStack := 0
		if entry, ok := s.Engine.Items.Get(st.Kind); ok {
			maxStack = entry.MaxStackSize
		}
		s.Engine.Staging.Set(droneIdx, slot, index.DroneStagingEntry{
			Kind:         st.Kind,
			Count:        st.Count,
			MaxStackSize: maxStack,
		})
	}
}

// handleDroneExtract fills one drone inventory with the requested items,
// pulled from main storage. Body: "droneIndex;ticket;kind1=amt1,kind2=amt2".
// supplyIndices (per spec.md §6) name other drone inventories holding
// intermediate products that could also supply this request; this
// implementation always pulls from main storage rather than chaining
// across staged drones, a deliberate simplification recorded in
// DESIGN.md alongside the processing-branch sequencing the specification
// itself leaves unclaimed.
func (s *Server) handleDroneExtract(ctx context.Context, from string, body string) ([]wire.Packet, error) {
	s.trackPeer(from)
	fields := strings.SplitN(body, ";", 3)
	if len(fields) < 3 {
		return nil, fmt.Errorf("stor_drone_extract: malformed body %q", body)
	}
	droneIdx, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return nil, fmt.Errorf("stor_drone_extract: bad drone index: %w", err)
	}
	ticket := strings.TrimSpace(fields[1])
	items, err := decodeKindAmounts(fields[2])
	if err != nil {
		return nil, fmt.Errorf("stor_drone_extract: %w", err)
	}

	droneRef := fabric.InventoryRef{Role: fabric.RoleDrone, Index: droneIdx}
	reserved := s.reserved[ticket]
	result := "ok"
	for kind, amt := range items {
		ok, _, err := s.Engine.Extract(ctx, droneRef, -1, kind, amt, reserved)
		if err != nil {
			return nil, fmt.Errorf("stor_drone_extract: %w", err)
		}
		if !ok {
			result = "missing"
		}
	}
	if inv, ok := s.Engine.Inventory(droneRef); ok {
		s.syncDroneStaging(droneIdx, inv)
	}
	s.Engine.Staging.MarkDirty(droneIdx)
	s.broadcastDiff(ctx)
	return []wire.Packet{{Name: fabric.PacketStorDroneItemDiff, Body: fmt.Sprintf("%d;extract;%s", droneIdx, result)}}, nil
}
