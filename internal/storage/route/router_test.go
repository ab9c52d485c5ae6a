package route_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/transposer-crafting-fabric/internal/storage/route"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

type fakeMover struct {
	moves []route.Hop
	caps  map[int]int // transposer index -> max it will move, 0 = unlimited
}

func (m *fakeMover) Move(_ context.Context, hop route.Hop, _, _, amount int) (int, error) {
	m.moves = append(m.moves, hop)
	if limit, ok := m.caps[hop.TransposerIndex]; ok && limit < amount {
		return limit, nil
	}
	return amount, nil
}

func TestRouter_DirectHop(t *testing.T) {
	// Arrange: one transposer bridging storage and output directly.
	g := route.NewGraph()
	storage := fabric.InventoryRef{Role: fabric.RoleStorage, Index: 0}
	output := fabric.InventoryRef{Role: fabric.RoleOutput, Index: 0}
	g.Connect(storage, 1, 0)
	g.Connect(output, 1, 1)

	r, err := route.NewRouter(g, 16)
	require.NoError(t, err)

	mover := &fakeMover{}
	transferred, stuck, err := r.Route(context.Background(), mover,
		fabric.SlotRef{InventoryRef: storage, Slot: 0},
		fabric.SlotRef{InventoryRef: output, Slot: 0},
		32)

	require.NoError(t, err)
	assert.Equal(t, 32, transferred)
	assert.Nil(t, stuck)
	assert.Len(t, mover.moves, 1)
}

func TestRouter_TwoHopViaTransfer(t *testing.T) {
	// Arrange: storage -[T1]- transfer -[T2]- output.
	g := route.NewGraph()
	storage := fabric.InventoryRef{Role: fabric.RoleStorage, Index: 0}
	transfer := fabric.InventoryRef{Role: fabric.RoleTransfer, Index: 0}
	output := fabric.InventoryRef{Role: fabric.RoleOutput, Index: 0}
	g.Connect(storage, 1, 0)
	g.Connect(transfer, 1, 1)
	g.Connect(transfer, 2, 0)
	g.Connect(output, 2, 1)

	r, err := route.NewRouter(g, 16)
	require.NoError(t, err)

	mover := &fakeMover{}
	transferred, stuck, err := r.Route(context.Background(), mover,
		fabric.SlotRef{InventoryRef: storage, Slot: 0},
		fabric.SlotRef{InventoryRef: output, Slot: 2},
		10)

	require.NoError(t, err)
	assert.Equal(t, 10, transferred)
	assert.Nil(t, stuck)
	assert.Len(t, mover.moves, 2)
}

func TestRouter_FinalHopShortfallIsNonFatal(t *testing.T) {
	g := route.NewGraph()
	storage := fabric.InventoryRef{Role: fabric.RoleStorage, Index: 0}
	output := fabric.InventoryRef{Role: fabric.RoleOutput, Index: 0}
	g.Connect(storage, 1, 0)
	g.Connect(output, 1, 1)

	r, err := route.NewRouter(g, 16)
	require.NoError(t, err)

	mover := &fakeMover{caps: map[int]int{1: 5}}
	transferred, stuck, err := r.Route(context.Background(), mover,
		fabric.SlotRef{InventoryRef: storage, Slot: 0},
		fabric.SlotRef{InventoryRef: output, Slot: 0},
		20)

	require.NoError(t, err)
	assert.Equal(t, 5, transferred)
	require.NotNil(t, stuck)
	assert.Equal(t, storage, stuck.InventoryRef)
}

func TestRouter_MidHopShortfallIsFatal(t *testing.T) {
	g := route.NewGraph()
	storage := fabric.InventoryRef{Role: fabric.RoleStorage, Index: 0}
	transfer := fabric.InventoryRef{Role: fabric.RoleTransfer, Index: 0}
	output := fabric.InventoryRef{Role: fabric.RoleOutput, Index: 0}
	g.Connect(storage, 1, 0)
	g.Connect(transfer, 1, 1)
	g.Connect(transfer, 2, 0)
	g.Connect(output, 2, 1)

	r, err := route.NewRouter(g, 16)
	require.NoError(t, err)

	mover := &fakeMover{caps: map[int]int{1: 3}}
	_, _, err = r.Route(context.Background(), mover,
		fabric.SlotRef{InventoryRef: storage, Slot: 0},
		fabric.SlotRef{InventoryRef: output, Slot: 0},
		10)

	assert.Error(t, err)
}

func TestRouter_NoPathIsFatal(t *testing.T) {
	g := route.NewGraph()
	storage := fabric.InventoryRef{Role: fabric.RoleStorage, Index: 0}
	output := fabric.InventoryRef{Role: fabric.RoleOutput, Index: 0}
	// Only storage is wired, to transposer 1: nothing connects output.
	g.Connect(storage, 1, 0)

	r, err := route.NewRouter(g, 16)
	require.NoError(t, err)

	_, err = r.FindPath(storage, output)
	assert.Error(t, err)
}

func TestRouter_PathIsCached(t *testing.T) {
	g := route.NewGraph()
	storage := fabric.InventoryRef{Role: fabric.RoleStorage, Index: 0}
	output := fabric.InventoryRef{Role: fabric.RoleOutput, Index: 0}
	g.Connect(storage, 1, 0)
	g.Connect(output, 1, 1)

	r, err := route.NewRouter(g, 16)
	require.NoError(t, err)

	first, err := r.FindPath(storage, output)
	require.NoError(t, err)
	second, err := r.FindPath(storage, output)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
