// Package route implements the Transposer Graph and the BFS router that
// moves items across it, per spec.md §4.1. The graph is cyclic (a transfer
// inventory may be touched by several transposers), so per the "weak
// references / cyclic graphs" design note it is represented as an arena of
// transposers and inventories addressed by integer index, never by owning
// pointers.
package route

import (
	"fmt"

	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// Port identifies one side of one transposer.
type Port struct {
	TransposerIndex int
	Side            int
}

// Graph is the arena: transposers are plain integer indices, and every edge
// is recorded twice (inventory -> ports, port -> inventory) so both BFS
// directions are O(1) lookups.
type Graph struct {
	transposers      map[int]struct{}
	portToInv        map[Port]fabric.InventoryRef
	invToPorts       map[fabric.InventoryRef][]Port
	portsByTransposer map[int][]Port
	roleOf           map[fabric.InventoryRef]fabric.Role
}

// NewGraph returns an empty arena.
func NewGraph() *Graph {
	return &Graph{
		transposers:       make(map[int]struct{}),
		portToInv:         make(map[Port]fabric.InventoryRef),
		invToPorts:        make(map[fabric.InventoryRef][]Port),
		portsByTransposer: make(map[int][]Port),
		roleOf:            make(map[fabric.InventoryRef]fabric.Role),
	}
}

// Connect records that transposer side `port` is wired to inventory inv.
// A routing config line maps directly onto one call to Connect.
func (g *Graph) Connect(inv fabric.InventoryRef, transposerIdx, side int) {
	g.transposers[transposerIdx] = struct{}{}
	p := Port{TransposerIndex: transposerIdx, Side: side}
	g.portToInv[p] = inv
	g.invToPorts[inv] = append(g.invToPorts[inv], p)
	g.portsByTransposer[transposerIdx] = append(g.portsByTransposer[transposerIdx], p)
	g.roleOf[inv] = inv.Role
}

// TransposerCount reports how many distinct transposers were wired in.
func (g *Graph) TransposerCount() int { return len(g.transposers) }

// PortsOf returns every port touching inv, in the order Connect was called.
func (g *Graph) PortsOf(inv fabric.InventoryRef) []Port {
	return g.invToPorts[inv]
}

// InventoryAt returns the inventory wired to p.
func (g *Graph) InventoryAt(p Port) (fabric.InventoryRef, bool) {
	inv, ok := g.portToInv[p]
	return inv, ok
}

// otherPorts returns every port on the same transposer as p other than p
// itself: the set of inventories reachable in one hop from p's inventory.
func (g *Graph) otherPorts(p Port) []Port {
	var out []Port
	for _, port := range g.portsByTransposer[p.TransposerIndex] {
		if port != p {
			out = append(out, port)
		}
	}
	return out
}

// Validate checks the role cardinality constraints from spec.md §6: exactly
// one input, exactly one output, at least one storage inventory.
func (g *Graph) Validate() error {
	var inputs, outputs, storages int
	for inv := range g.invToPorts {
		switch inv.Role {
		case fabric.RoleInput:
			inputs++
		case fabric.RoleOutput:
			outputs++
		case fabric.RoleStorage:
			storages++
		}
	}
	if inputs != 1 {
		return fmt.Errorf("route: network must have exactly one input inventory, found %d", inputs)
	}
	if outputs != 1 {
		return fmt.Errorf("route: network must have exactly one output inventory, found %d", outputs)
	}
	if storages < 1 {
		return fmt.Errorf("route: network must have at least one storage inventory, found %d", storages)
	}
	return nil
}
