package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rsned/transposer-crafting-fabric/internal/craft/dispatch"
	"github.com/rsned/transposer-crafting-fabric/internal/wire"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// Server wires a dispatch.Dispatcher to the radio bus: every handler below
// corresponds to one row of spec.md §6's packet table addressed "craft" or
// coming back from a worker.
type Server struct {
	D   *dispatch.Dispatcher
	log *slog.Logger
}

// New builds a Server over an already-constructed Dispatcher.
func New(d *dispatch.Dispatcher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{D: d, log: log}
}

// RegisterHandlers binds every craft_*/robot_* packet this server receives,
// plus the stor_* replies it consumes to keep its storage view current.
func (s *Server) RegisterHandlers(d *wire.Dispatcher) {
	d.Register(fabric.PacketCraftDiscover, s.handleDiscover)
	d.Register(fabric.PacketCraftRecipeList, s.handleRecipeList)
	d.Register(fabric.PacketCraftCheckRecipe, s.handleCheckRecipe)
	d.Register(fabric.PacketCraftRecipeStart, s.handleRecipeStart)
	d.Register(fabric.PacketCraftRecipeCancel, s.handleRecipeCancel)

	d.Register(fabric.PacketRobotFinished, s.handleRobotFinished)
	d.Register(fabric.PacketRobotError, s.handleRobotError)

	d.Register(fabric.PacketStorItemList, s.handleStorItemList)
	d.Register(fabric.PacketStorItemDiff, s.handleStorItemDiff)
	d.Register(fabric.PacketStorDroneItemDiff, s.handleStorDroneItemDiff)
}

// handleDiscover replies with the recipe list, the craft-side analogue of
// stor_discover / stor_item_list.
func (s *Server) handleDiscover(ctx context.Context, from string, body string) ([]wire.Packet, error) {
	return s.handleRecipeList(ctx, from, body)
}

// handleRecipeList replies with every distinct output kind the catalog can
// produce: "kind=maxStack,label|...".
func (s *Server) handleRecipeList(_ context.Context, _ string, _ string) ([]wire.Packet, error) {
	var b strings.Builder
	first := true
	seen := make(map[fabric.Kind]bool)
	for _, r := range s.D.Catalog.All() {
		if seen[r.Output.Kind] {
			continue
		}
		seen[r.Output.Kind] = true
		if !first {
			b.WriteByte('|')
		}
		first = false
		fmt.Fprintf(&b, "%s=%d,%s", r.Output.Kind.String(), r.Output.MaxStack, r.Output.Label)
	}
	return []wire.Packet{{Name: fabric.PacketCraftRecipeList, Body: b.String()}}, nil
}

// handleCheckRecipe runs the dependency solver against a requested kind and
// amount and replies with craft_recipe_confirm. The ticket opened for the
// solve stays pending only for an ok result; otherwise it is discarded at
// once and the reply names no ticket ("missing").
func (s *Server) handleCheckRecipe(_ context.Context, _ string, body string) ([]wire.Packet, error) {
	kind, amount, err := parseKindAmount(body)
	if err != nil {
		return nil, fmt.Errorf("craft_check_recipe: %w", err)
	}

	tk, status, missing := s.D.NewTicket(kind, amount, time.Now())
	progress := buildProgress(tk.Plan, missing, s.D)

	ticketID := tk.ID
	if status != fabric.SolveOK {
		ticketID = ""
		s.D.DiscardTicket(tk.ID)
	}

	body = encodeRecipeConfirm(ticketID, status, progress)
	return []wire.Packet{{Name: fabric.PacketCraftRecipeConfirm, Body: body}}, nil
}

// buildProgress reports, per kind named in the plan, how much is needed as
// input, how much the plan will produce, and how much is on hand right
// now - the craft_recipe_confirm preview.
func buildProgress(plan *fabric.Plan, missing map[fabric.Kind]int, d *dispatch.Dispatcher) map[fabric.Kind]fabric.ProgressEntry {
	progress := make(map[fabric.Kind]fabric.ProgressEntry)
	for k, v := range plan.NetInput {
		e := progress[k]
		e.Input = v
		e.Have = d.Available(k)
		progress[k] = e
	}
	for k, v := range plan.NetOutput {
		e := progress[k]
		e.Output = v
		progress[k] = e
	}
	for k := range missing {
		e := progress[k]
		e.Have = d.Available(k)
		progress[k] = e
	}
	return progress
}

// handleRecipeStart transitions a pending ticket to active, asks storage to
// reserve its net inputs, and replies craft_started.
func (s *Server) handleRecipeStart(ctx context.Context, from string, body string) ([]wire.Packet, error) {
	ticketID := strings.TrimSpace(body)
	tk, ok := s.D.Ticket(ticketID)
	if !ok {
		return []wire.Packet{errorPacket("start", fmt.Sprintf("unknown ticket %q", ticketID))}, nil
	}
	tk.Start(time.Now())

	reserveBody := ticketID + ";" + encodeKindAmounts(tk.Plan.NetInput)
	if err := s.D.Bus.Send(ctx, s.D.StorageAddr, wire.Packet{Name: fabric.PacketStorRecipeReserve, Body: reserveBody}); err != nil {
		s.log.Warn("craft: reserve send failed", "ticket", ticketID, "error", err)
	}
	return []wire.Packet{{Name: fabric.PacketCraftStarted, Body: ticketID}}, nil
}

// handleRecipeCancel cancels an active or pending ticket and tells storage
// to release its reservation.
func (s *Server) handleRecipeCancel(ctx context.Context, from string, body string) ([]wire.Packet, error) {
	ticketID := strings.TrimSpace(body)
	if _, ok := s.D.CancelTicket(ticketID, "operator cancel"); !ok {
		return nil, nil
	}
	if err := s.D.Bus.Send(ctx, s.D.StorageAddr, wire.Packet{Name: fabric.PacketStorRecipeCancel, Body: ticketID}); err != nil {
		s.log.Warn("craft: cancel send failed", "ticket", ticketID, "error", err)
	}
	return nil, nil
}

// handleRobotFinished processes robot_finished_craft: body "ticket;taskID".
func (s *Server) handleRobotFinished(_ context.Context, from string, body string) ([]wire.Packet, error) {
	ticketID, taskID, ok := strings.Cut(body, ";")
	if !ok {
		return nil, fmt.Errorf("robot_finished_craft: malformed body %q", body)
	}
	if err := s.D.WorkerFinished(strings.TrimSpace(ticketID), strings.TrimSpace(taskID), from); err != nil {
		s.log.Warn("craft: worker finished", "from", from, "error", err)
	}
	return nil, nil
}

// handleRobotError processes robot_error: body "kind;ticket;message", the
// ticket-local failure path of spec.md §7.
func (s *Server) handleRobotError(ctx context.Context, from string, body string) ([]wire.Packet, error) {
	fields := strings.SplitN(body, ";", 3)
	if len(fields) != 3 {
		return nil, fmt.Errorf("robot_error: malformed body %q", body)
	}
	kind, ticketID, message := fields[0], strings.TrimSpace(fields[1]), fields[2]

	if _, ok := s.D.WorkerError(ticketID, kind, message); ok {
		if err := s.D.Bus.Send(ctx, s.D.StorageAddr, wire.Packet{Name: fabric.PacketStorRecipeCancel, Body: ticketID}); err != nil {
			s.log.Warn("craft: cancel-on-error send failed", "ticket", ticketID, "error", err)
		}
	}
	return []wire.Packet{errorPacket(kind, message)}, nil
}

// handleStorItemList absorbs a full storage snapshot.
func (s *Server) handleStorItemList(_ context.Context, _ string, body string) ([]wire.Packet, error) {
	entries, err := parseItemListEntries(body)
	if err != nil {
		return nil, fmt.Errorf("stor_item_list: %w", err)
	}
	s.D.ApplyItemList(entries)
	return nil, nil
}

// handleStorItemDiff folds a sparse storage change broadcast into the
// known view.
func (s *Server) handleStorItemDiff(_ context.Context, _ string, body string) ([]wire.Packet, error) {
	entries, err := parseItemListEntries(body)
	if err != nil {
		return nil, fmt.Errorf("stor_item_diff: %w", err)
	}
	s.D.ApplyItemDiff(entries)
	return nil, nil
}

// handleStorDroneItemDiff confirms a drone staging op storage carried out.
func (s *Server) handleStorDroneItemDiff(_ context.Context, _ string, body string) ([]wire.Packet, error) {
	idx, op, result, err := parseDroneItemDiff(body)
	if err != nil {
		return nil, fmt.Errorf("stor_drone_item_diff: %w", err)
	}
	s.D.StorageAck(idx, op, result)
	return nil, nil
}

func errorPacket(stage, message string) wire.Packet {
	return wire.Packet{Name: fabric.PacketCraftRecipeError, Body: fmt.Sprintf("%s;%s", stage, message)}
}

func encodeKindAmounts(m map[fabric.Kind]int) string {
	var b strings.Builder
	first := true
	for k, v := range m {
		if !first {
			b.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&b, "%s=%d", k.String(), v)
	}
	return b.String()
}
