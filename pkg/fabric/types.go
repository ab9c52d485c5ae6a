// Package fabric contains the core domain types shared by the storage
// server, the crafting server, and the wire protocol that connects them.
package fabric

import "fmt"

// ============================================
// ITEM KIND
// ============================================

// Kind is the canonical identity of an item stack's contents, ignoring
// count: a (mod namespace, item ID, metadata value) triple plus a flag for
// whether NBT data makes two otherwise-identical stacks distinct.
//
// Two items with different NBT collapse to the same Kind if NBTSensitive is
// false on both, per spec.md's "stringToInteger trailing n" open question:
// the n marker is treated as a pure boolean attribute, not folded into the
// numeric metadata value.
type Kind struct {
	Namespace    string
	ItemID       string
	Meta         int
	NBTSensitive bool
}

// String renders the canonical key used to index the Item Index.
func (k Kind) String() string {
	s := fmt.Sprintf("%s:%s:%d", k.Namespace, k.ItemID, k.Meta)
	if k.NBTSensitive {
		s += "n"
	}
	return s
}

// KindInfo carries the display attributes of a Kind, cached the first time
// it is observed at a physical slot.
type KindInfo struct {
	Kind         Kind
	Label        string
	MaxStackSize int
	MaxDamage    int
}

// ============================================
// INVENTORY MODEL
// ============================================

// Role tags an inventory by its function in the Transposer Graph.
type Role int

const (
	RoleStorage Role = iota
	RoleInput
	RoleOutput
	RoleTransfer
	RoleDrone
)

func (r Role) String() string {
	switch r {
	case RoleStorage:
		return "storage"
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	case RoleTransfer:
		return "transfer"
	case RoleDrone:
		return "drone"
	default:
		return "unknown"
	}
}

// InventoryRef identifies a physical inventory by (role, index). Index is
// the priority-ordered position within its role as read from the routing
// config file (first declared = highest priority).
type InventoryRef struct {
	Role  Role
	Index int
}

func (r InventoryRef) String() string {
	return fmt.Sprintf("%s#%d", r.Role, r.Index)
}

// SlotRef pins a single slot inside an inventory.
type SlotRef struct {
	InventoryRef
	Slot int
}

func (s SlotRef) String() string {
	return fmt.Sprintf("%s[%d]", s.InventoryRef, s.Slot)
}

// Less orders two slot refs lexicographically by (index, slot), the
// priority order cursors in the Item Index are compared against.
func (s SlotRef) Less(o SlotRef) bool {
	if s.Index != o.Index {
		return s.Index < o.Index
	}
	return s.Slot < o.Slot
}

// Stack is the contents of one slot: empty when Kind is the zero Kind and
// Count is 0.
type Stack struct {
	Kind  Kind
	Count int
}

func (s Stack) Empty() bool { return s.Count <= 0 }

// ============================================
// RECIPE CATALOG
// ============================================

// StationType enumerates the recognized station behaviors from the §6
// recipe-file grammar. "default" and "sequential" are aliases in the
// source; the specification keeps them distinct labels but identical
// dispatcher semantics except where noted.
type StationType string

const (
	StationDefault    StationType = "default"
	StationSequential StationType = "sequential"
	StationBulk       StationType = "bulk"
)

// Station describes one crafting/processing station declared in the
// recipe file's `station <name> ... end` block.
type Station struct {
	Name       string
	InPaths    []string
	OutPaths   []string
	Paths      map[int]string // path<n> lines, keyed by n; opaque to this system
	TimeSec    float64
	Type       StationType
	IsWorkshop bool // true for the synthetic "craft" station (robot workbench slots)
}

// RecipeComponent is one required input of a recipe: a kind and the count
// consumed per batch. For the synthetic "craft" station, SlotIndices names
// which of the 9 workbench slots (1-indexed) accept it.
type RecipeComponent struct {
	Kind        Kind
	Quantity    int
	SlotIndices []int
}

// RecipeOutput is what one batch of a recipe produces.
type RecipeOutput struct {
	Kind     Kind
	Label    string
	MaxStack int
	Quantity int
}

// Recipe is a single craftable/processable item definition, read-only after
// the Recipe Catalog is loaded at startup.
type Recipe struct {
	ID           string
	Station      string
	StationType  StationType
	Output       RecipeOutput
	Components   []RecipeComponent
}

// ============================================
// CRAFT TICKET
// ============================================

// TicketState is the Craft Ticket Table's state machine position, per
// spec.md §4.8.
type TicketState int

const (
	TicketPending TicketState = iota
	TicketActive
	TicketDone
	TicketCancelled
	TicketDiscarded
)

func (s TicketState) String() string {
	switch s {
	case TicketPending:
		return "pending"
	case TicketActive:
		return "active"
	case TicketDone:
		return "done"
	case TicketCancelled:
		return "cancelled"
	case TicketDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// SolveStatus is the outcome of the Dependency Solver.
type SolveStatus int

const (
	SolveOK SolveStatus = iota
	SolveMissing
	SolveError
)

func (s SolveStatus) String() string {
	switch s {
	case SolveOK:
		return "ok"
	case SolveMissing:
		return "missing"
	case SolveError:
		return "error"
	default:
		return "unknown"
	}
}

// SelectionPriority controls how the solver picks among several plans that
// satisfy the request, per spec.md §4.7.
type SelectionPriority string

const (
	PriorityFirstFound SelectionPriority = "first-found"
	PriorityMinItems   SelectionPriority = "min-items"
	PriorityMinBatches SelectionPriority = "min-batches"
)

// Plan is the ordered craft plan produced by the solver: index i's recipe
// must run before index i+1's, with the requested item produced last.
type Plan struct {
	RecipeIDs  []string
	Batches    []int
	NetInput   map[Kind]int
	NetOutput  map[Kind]int
}

// WorkerState is a Worker Pool entry's lifecycle position.
type WorkerState int

const (
	WorkerFree WorkerState = iota
	WorkerPending
	WorkerBusy
)

func (s WorkerState) String() string {
	switch s {
	case WorkerFree:
		return "free"
	case WorkerPending:
		return "pending"
	case WorkerBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// StagingState is a drone inventory's role in the Crafting Server's view,
// constrained by spec.md §5 to flip free -> output -> input -> free.
type StagingState int

const (
	StagingFree StagingState = iota
	StagingOutput
	StagingInput
)

func (s StagingState) String() string {
	switch s {
	case StagingFree:
		return "free"
	case StagingOutput:
		return "output"
	case StagingInput:
		return "input"
	default:
		return "unknown"
	}
}
