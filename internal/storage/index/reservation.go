package index

import "github.com/rsned/transposer-crafting-fabric/pkg/fabric"

// ReservationOverlay is a per-item-kind signed counter subtracted from the
// public view of the Item Index, per spec.md §4.5. A positive value
// earmarks items for an active or pending craft; a negative value is a
// promise of future production (a recipe output not yet made) and is
// clamped to zero wherever it would otherwise reduce availability.
type ReservationOverlay struct {
	reserved map[fabric.Kind]int
	changes  map[fabric.Kind]int // prior value as of the last diff emission
}

// NewReservationOverlay returns an empty overlay.
func NewReservationOverlay() *ReservationOverlay {
	return &ReservationOverlay{
		reserved: make(map[fabric.Kind]int),
		changes:  make(map[fabric.Kind]int),
	}
}

// Get returns the raw signed reservation counter for kind.
func (ro *ReservationOverlay) Get(kind fabric.Kind) int {
	return ro.reserved[kind]
}

func (ro *ReservationOverlay) snapshot(kind fabric.Kind, prior int) {
	if _, seen := ro.changes[kind]; !seen {
		ro.changes[kind] = prior
	}
}

// SetReserved overwrites kind's counter.
func (ro *ReservationOverlay) SetReserved(kind fabric.Kind, amount int) {
	prior := ro.reserved[kind]
	ro.snapshot(kind, prior)
	if amount == 0 {
		delete(ro.reserved, kind)
		return
	}
	ro.reserved[kind] = amount
}

// ChangeReserved applies a signed delta to kind's counter, snapshotting the
// prior value into the changes map on first touch per diff cycle.
func (ro *ReservationOverlay) ChangeReserved(kind fabric.Kind, delta int) {
	prior := ro.reserved[kind]
	ro.snapshot(kind, prior)
	next := prior + delta
	if next == 0 {
		delete(ro.reserved, kind)
		return
	}
	ro.reserved[kind] = next
}

// All returns the full reservation map, e.g. for invariant checks in
// tests.
func (ro *ReservationOverlay) All() map[fabric.Kind]int {
	return ro.reserved
}
