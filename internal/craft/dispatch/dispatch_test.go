package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/transposer-crafting-fabric/internal/craft/dispatch"
	"github.com/rsned/transposer-crafting-fabric/internal/craft/recipedb"
	"github.com/rsned/transposer-crafting-fabric/internal/craft/worker"
	"github.com/rsned/transposer-crafting-fabric/internal/wire"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

func kind(item string) fabric.Kind {
	return fabric.Kind{Namespace: "minecraft", ItemID: item, Meta: 0}
}

// torchCatalog mirrors the solver package's fixture: planks (1 log -> 4
// planks), stick (2 planks -> 4 stick), torch (1 coal + 1 stick -> 4 torch),
// all at a non-workshop "sawmill" station (drone-worked).
func torchCatalog() *recipedb.Catalog {
	stations := map[string]fabric.Station{
		"sawmill": {Name: "sawmill", Type: fabric.StationSequential},
	}
	recipes := []fabric.Recipe{
		{
			ID:      "sawmill:planks:0",
			Station: "sawmill",
			Output:  fabric.RecipeOutput{Kind: kind("planks"), Label: "Oak Planks", MaxStack: 64, Quantity: 4},
			Components: []fabric.RecipeComponent{
				{Kind: kind("log"), Quantity: 1},
			},
		},
		{
			ID:      "sawmill:stick:0",
			Station: "sawmill",
			Output:  fabric.RecipeOutput{Kind: kind("stick"), Label: "Stick", MaxStack: 64, Quantity: 4},
			Components: []fabric.RecipeComponent{
				{Kind: kind("planks"), Quantity: 2},
			},
		},
		{
			ID:      "sawmill:torch:0",
			Station: "sawmill",
			Output:  fabric.RecipeOutput{Kind: kind("torch"), Label: "Torch", MaxStack: 64, Quantity: 4},
			Components: []fabric.RecipeComponent{
				{Kind: kind("coal"), Quantity: 1},
				{Kind: kind("stick"), Quantity: 1},
			},
		},
	}
	return recipedb.BuildCatalog(stations, recipes)
}

type fixture struct {
	d         *dispatch.Dispatcher
	craftBus  *wire.LocalBus
	storageEP *wire.LocalBus
	droneEP   *wire.LocalBus
}

func buildFixture(t *testing.T) *fixture {
	t.Helper()
	sb := wire.NewSwitchboard()
	craftBus := wire.NewLocalBus(sb, "craft", 1000, 1000)
	storageEP := wire.NewLocalBus(sb, "storage", 1000, 1000)
	droneEP := wire.NewLocalBus(sb, "drone-1", 1000, 1000)

	workers := worker.New()
	workers.Register("drone-1", worker.KindDrone, []int{0, 1})

	d := dispatch.New(torchCatalog(), workers, craftBus, "storage", nil)
	d.NewStagingAllocator(2, func(int) error { return nil })

	return &fixture{d: d, craftBus: craftBus, storageEP: storageEP, droneEP: droneEP}
}

func recvNames(t *testing.T, ctx context.Context, b *wire.LocalBus, n int) []string {
	t.Helper()
	var names []string
	for i := 0; i < n; i++ {
		recvCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		env, err := b.Recv(recvCtx)
		cancel()
		require.NoError(t, err)
		names = append(names, env.Pkt.Name)
	}
	return names
}

func TestTick_DispatchesFirstPlanEntryToADrone(t *testing.T) {
	f := buildFixture(t)
	f.d.ApplyItemList([]fabric.ItemListEntry{
		{Kind: kind("log"), Available: 1},
		{Kind: kind("coal"), Available: 4},
	})

	tk, status, _ := f.d.NewTicket(kind("torch"), 16, time.Now())
	require.Equal(t, fabric.SolveOK, status)
	tk.Start(time.Now())

	ctx := context.Background()
	f.d.Tick(ctx, time.Now())

	storageNames := recvNames(t, ctx, f.storageEP, 1)
	assert.Equal(t, []string{fabric.PacketStorDroneExtract}, storageNames)

	droneNames := recvNames(t, ctx, f.droneEP, 2)
	assert.Equal(t, []string{fabric.PacketRobotPrepareCraft, fabric.PacketRobotStartCraft}, droneNames)

	assert.Equal(t, 0, tk.BatchesRemaining[0])
	require.Len(t, tk.CraftingTasks, 1)
}

func TestWorkerFinished_FoldsOutputAndDirtiesDownstream(t *testing.T) {
	f := buildFixture(t)
	f.d.ApplyItemList([]fabric.ItemListEntry{
		{Kind: kind("log"), Available: 1},
		{Kind: kind("coal"), Available: 4},
	})

	tk, _, _ := f.d.NewTicket(kind("torch"), 16, time.Now())
	tk.Start(time.Now())
	ctx := context.Background()
	f.d.Tick(ctx, time.Now())
	recvNames(t, ctx, f.storageEP, 1)
	recvNames(t, ctx, f.droneEP, 2)

	var taskID string
	for id := range tk.CraftingTasks {
		taskID = id
	}
	require.NotEmpty(t, taskID)

	require.NoError(t, f.d.WorkerFinished(tk.ID, taskID, "drone-1"))

	assert.Equal(t, 4, tk.StoredItems[kind("planks")])
	assert.Empty(t, tk.CraftingTasks)
	assert.True(t, tk.EntryDirty(1), "stick entry should be marked dirty once planks landed")

	w, ok := f.d.Workers.Get("drone-1")
	require.True(t, ok)
	assert.Equal(t, fabric.WorkerFree, w.State)
}

func TestExpirePending_DiscardsStaleTicket(t *testing.T) {
	f := buildFixture(t)
	now := time.Now()
	tk, _, _ := f.d.NewTicket(kind("torch"), 16, now)

	expired := f.d.ExpirePending(now.Add(11 * time.Second))
	assert.Equal(t, []string{tk.ID}, expired)

	_, ok := f.d.Ticket(tk.ID)
	assert.False(t, ok)
}

func TestCancelTicket_FreesWorkersAndStaging(t *testing.T) {
	f := buildFixture(t)
	f.d.ApplyItemList([]fabric.ItemListEntry{
		{Kind: kind("log"), Available: 1},
		{Kind: kind("coal"), Available: 4},
	})
	tk, _, _ := f.d.NewTicket(kind("torch"), 16, time.Now())
	tk.Start(time.Now())
	ctx := context.Background()
	f.d.Tick(ctx, time.Now())
	recvNames(t, ctx, f.storageEP, 1)
	recvNames(t, ctx, f.droneEP, 2)

	cancelled, ok := f.d.CancelTicket(tk.ID, "worker fatal error")
	require.True(t, ok)
	assert.Equal(t, fabric.TicketCancelled, cancelled.State)

	w, ok := f.d.Workers.Get("drone-1")
	require.True(t, ok)
	assert.Equal(t, fabric.WorkerFree, w.State)

	_, stillTicketed := f.d.Ticket(tk.ID)
	assert.False(t, stillTicketed)
}

func TestResetWorkers_FreesOnlyMatchingKind(t *testing.T) {
	f := buildFixture(t)
	f.d.Workers.SetState("drone-1", fabric.WorkerBusy)

	reset := f.d.ResetWorkers(worker.KindDrone)
	assert.Equal(t, 1, reset)

	w, ok := f.d.Workers.Get("drone-1")
	require.True(t, ok)
	assert.Equal(t, fabric.WorkerFree, w.State)
}
