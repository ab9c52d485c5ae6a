package index

import "github.com/rsned/transposer-crafting-fabric/pkg/fabric"

// DiffEntry is one kind's row in a stor_item_diff payload: the new
// publicly-available quantity, or Available == 0 meaning "removed" (per
// spec.md §4.6 and §6's packet table).
type DiffEntry struct {
	Kind         fabric.Kind
	Available    int
	MaxStackSize int
	Label        string
}

// Diff computes the set of kinds whose publicly-available quantity changed
// since the last broadcast, merging the Item Index's and Reservation
// Overlay's independent change-maps into one payload, and clears both
// change-maps so the next cycle starts fresh. This is the only place the
// two overlays' bookkeeping is combined — everywhere else they are
// mutated independently.
func Diff(idx *ItemIndex, ro *ReservationOverlay) []DiffEntry {
	touched := make(map[fabric.Kind]struct{}, len(idx.changes)+len(ro.changes))
	for k := range idx.changes {
		touched[k] = struct{}{}
	}
	for k := range ro.changes {
		touched[k] = struct{}{}
	}

	entries := make([]DiffEntry, 0, len(touched))
	for kind := range touched {
		reserved := ro.Get(kind)
		e, ok := idx.Get(kind)
		if !ok {
			entries = append(entries, DiffEntry{Kind: kind, Available: 0})
			continue
		}
		entries = append(entries, DiffEntry{
			Kind:         kind,
			Available:    idx.Available(kind, reserved),
			MaxStackSize: e.MaxStackSize,
			Label:        e.Label,
		})
	}

	idx.changes = make(map[fabric.Kind]int)
	ro.changes = make(map[fabric.Kind]int)

	return entries
}
