package index

import "github.com/rsned/transposer-crafting-fabric/pkg/fabric"

// droneSlot identifies one slot inside one drone inventory.
type droneSlot struct {
	droneIndex int
	slot       int
}

// DroneStagingEntry is the Storage Server's mirror of one drone-inventory
// slot's contents, per spec.md §3.
type DroneStagingEntry struct {
	Kind         fabric.Kind
	Count        int
	MaxStackSize int
}

// DroneStaging mirrors the contents of every drone (staging) inventory at
// slot granularity, with a per-inventory dirty flag marking entries whose
// last scan may be stale because a worker touched the inventory directly.
type DroneStaging struct {
	slots map[droneSlot]DroneStagingEntry
	dirty map[int]bool
}

// NewDroneStaging returns an empty mirror.
func NewDroneStaging() *DroneStaging {
	return &DroneStaging{
		slots: make(map[droneSlot]DroneStagingEntry),
		dirty: make(map[int]bool),
	}
}

// Set records drone inventory droneIndex's slot contents.
func (ds *DroneStaging) Set(droneIndex, slot int, e DroneStagingEntry) {
	if e.Count <= 0 {
		delete(ds.slots, droneSlot{droneIndex, slot})
		return
	}
	ds.slots[droneSlot{droneIndex, slot}] = e
}

// Get returns one slot's mirrored contents.
func (ds *DroneStaging) Get(droneIndex, slot int) (DroneStagingEntry, bool) {
	e, ok := ds.slots[droneSlot{droneIndex, slot}]
	return e, ok
}

// Snapshot returns every mirrored slot belonging to droneIndex, for a
// stor_drone_item_list response or a flush.
func (ds *DroneStaging) Snapshot(droneIndex int) map[int]DroneStagingEntry {
	out := make(map[int]DroneStagingEntry)
	for k, v := range ds.slots {
		if k.droneIndex == droneIndex {
			out[k.slot] = v
		}
	}
	return out
}

// Clear empties every mirrored slot of droneIndex, used after a flush
// moves everything out to the output inventory.
func (ds *DroneStaging) Clear(droneIndex int) {
	for k := range ds.slots {
		if k.droneIndex == droneIndex {
			delete(ds.slots, k)
		}
	}
}

// MarkDirty flags droneIndex's mirror as possibly stale.
func (ds *DroneStaging) MarkDirty(droneIndex int) {
	ds.dirty[droneIndex] = true
}

// ClearDirty un-flags droneIndex after a rescan.
func (ds *DroneStaging) ClearDirty(droneIndex int) {
	delete(ds.dirty, droneIndex)
}

// IsDirty reports whether droneIndex's mirror may be stale.
func (ds *DroneStaging) IsDirty(droneIndex int) bool {
	return ds.dirty[droneIndex]
}
