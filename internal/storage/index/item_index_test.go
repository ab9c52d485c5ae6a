package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/transposer-crafting-fabric/internal/storage/index"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

func kindX() fabric.Kind {
	return fabric.Kind{Namespace: "minecraft", ItemID: "cobblestone", Meta: 0}
}

func TestItemIndex_InsertExtractIdempotence(t *testing.T) {
	// Arrange: single storage inventory, one slot, capacity 64, empty.
	idx := index.NewItemIndex()
	storage := fabric.InventoryRef{Role: fabric.RoleStorage, Index: 1}
	slot := fabric.SlotRef{InventoryRef: storage, Slot: 1}

	// Act: insert 37 of kind X.
	idx.SetSlot(kindX(), slot, 37, 64, "Cobblestone")

	// Assert: total 37, insert == extract == (1,1).
	e, ok := idx.Get(kindX())
	require.True(t, ok)
	assert.Equal(t, 37, e.Total)
	assert.Equal(t, slot, e.Insert)
	assert.Equal(t, slot, e.Extract)

	// Act: extract 37 of kind X.
	idx.AdjustTotal(kindX(), -37)

	// Assert: no entry remains.
	_, ok = idx.Get(kindX())
	assert.False(t, ok)
}

func TestItemIndex_Available_ClampsAtZero(t *testing.T) {
	idx := index.NewItemIndex()
	ro := index.NewReservationOverlay()
	storage := fabric.InventoryRef{Role: fabric.RoleStorage, Index: 1}
	slot := fabric.SlotRef{InventoryRef: storage, Slot: 1}

	idx.SetSlot(kindX(), slot, 10, 64, "Cobblestone")
	ro.SetReserved(kindX(), 4)

	assert.Equal(t, 6, idx.Available(kindX(), ro.Get(kindX())))

	ro.ChangeReserved(kindX(), 20) // over-reserve beyond total
	assert.Equal(t, 0, idx.Available(kindX(), ro.Get(kindX())))
}

func TestDiff_MergesIndexAndReservationChanges(t *testing.T) {
	idx := index.NewItemIndex()
	ro := index.NewReservationOverlay()
	storage := fabric.InventoryRef{Role: fabric.RoleStorage, Index: 1}
	slot := fabric.SlotRef{InventoryRef: storage, Slot: 1}

	idx.SetSlot(kindX(), slot, 10, 64, "Cobblestone")
	first := index.Diff(idx, ro)
	require.Len(t, first, 1)
	assert.Equal(t, 10, first[0].Available)

	// A second call with no intervening mutation reports nothing: change
	// maps were cleared by the prior Diff call.
	second := index.Diff(idx, ro)
	assert.Empty(t, second)

	// Reserving some hides it from availability on the next diff.
	ro.SetReserved(kindX(), 4)
	third := index.Diff(idx, ro)
	require.Len(t, third, 1)
	assert.Equal(t, 6, third[0].Available)
}

func TestReservationOverlay_NegativeIsPromiseClampedToZero(t *testing.T) {
	idx := index.NewItemIndex()
	ro := index.NewReservationOverlay()

	ro.SetReserved(kindX(), -5)
	assert.Equal(t, 0, idx.Available(kindX(), ro.Get(kindX())))
}
