package server_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/transposer-crafting-fabric/internal/craft/dispatch"
	"github.com/rsned/transposer-crafting-fabric/internal/craft/recipedb"
	"github.com/rsned/transposer-crafting-fabric/internal/craft/server"
	"github.com/rsned/transposer-crafting-fabric/internal/craft/worker"
	"github.com/rsned/transposer-crafting-fabric/internal/wire"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

func kind(item string) fabric.Kind {
	return fabric.Kind{Namespace: "minecraft", ItemID: item, Meta: 0}
}

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
	s           *server.Server
	d           *dispatch.Dispatcher
	dispatcher  *wire.Dispatcher
	switchboard *wire.Switchboard
	craftBus    *wire.LocalBus
}

func buildFixture(t *testing.T) *fixture {
	t.Helper()
	sb := wire.NewSwitchboard()
	craftBus := wire.NewLocalBus(sb, "craft", 1000, 1000)
	wire.NewLocalBus(sb, "storage", 1000, 1000)

	workers := worker.New()
	workers.Register("drone-1", worker.KindDrone, []int{0, 1})

	d := dispatch.New(torchCatalog(), workers, craftBus, "storage", nil)
	d.NewStagingAllocator(2, func(int) error { return nil })

	s := server.New(d, nil)
	disp := wire.NewDispatcher(nil)
	s.RegisterHandlers(disp)

	return &fixture{s: s, d: d, dispatcher: disp, switchboard: sb, craftBus: craftBus}
}

func (f *fixture) send(t *testing.T, ctx context.Context, clientAddr, name, body string) []wire.Packet {
	t.Helper()
	client := wire.NewLocalBus(f.switchboard, clientAddr, 1000, 1000)
	require.NoError(t, client.Send(ctx, "craft", wire.Packet{Name: name, Body: body}))

	env, err := f.craftBus.Recv(ctx)
	require.NoError(t, err)
	f.dispatcher.Dispatch(ctx, f.craftBus, env)

	var replies []wire.Packet
	for {
		pkt, ok := tryRecv(ctx, client)
		if !ok {
			break
		}
		replies = append(replies, pkt)
	}
	return replies
}

func tryRecv(ctx context.Context, b *wire.LocalBus) (wire.Packet, bool) {
	recvCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	env, err := b.Recv(recvCtx)
	if err != nil {
		return wire.Packet{}, false
	}
	return env.Pkt, true
}

func TestHandleRecipeList_ListsEveryOutputKind(t *testing.T) {
	f := buildFixture(t)
	ctx := context.Background()

	replies := f.send(t, ctx, "console", fabric.PacketCraftRecipeList, "")
	require.Len(t, replies, 1)
	assert.Equal(t, fabric.PacketCraftRecipeList, replies[0].Name)
	assert.Contains(t, replies[0].Body, "torch")
	assert.Contains(t, replies[0].Body, "planks")
}

func TestHandleCheckRecipe_WithStorageReportsOK(t *testing.T) {
	f := buildFixture(t)
	f.d.ApplyItemList([]fabric.ItemListEntry{
		{Kind: kind("log"), Available: 1},
		{Kind: kind("coal"), Available: 4},
	})
	ctx := context.Background()

	replies := f.send(t, ctx, "console", fabric.PacketCraftCheckRecipe, kind("torch").String()+";16")
	require.Len(t, replies, 1)
	assert.Equal(t, fabric.PacketCraftRecipeConfirm, replies[0].Name)
	assert.False(t, strings.HasPrefix(replies[0].Body, "missing;"))
	assert.Contains(t, replies[0].Body, "ok")
}

func TestHandleCheckRecipe_WithNothingReportsMissing(t *testing.T) {
	f := buildFixture(t)
	ctx := context.Background()

	replies := f.send(t, ctx, "console", fabric.PacketCraftCheckRecipe, kind("torch").String()+";16")
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0].Body, "missing;missing;"))
}

func TestHandleRecipeStart_ReservesAndReplies(t *testing.T) {
	f := buildFixture(t)
	f.d.ApplyItemList([]fabric.ItemListEntry{
		{Kind: kind("log"), Available: 1},
		{Kind: kind("coal"), Available: 4},
	})
	ctx := context.Background()

	replies := f.send(t, ctx, "console", fabric.PacketCraftCheckRecipe, kind("torch").String()+";16")
	require.Len(t, replies, 1)
	ticketID := strings.SplitN(replies[0].Body, ";", 2)[0]
	require.NotEqual(t, "missing", ticketID)

	replies = f.send(t, ctx, "console", fabric.PacketCraftRecipeStart, ticketID)
	require.Len(t, replies, 1)
	assert.Equal(t, fabric.PacketCraftStarted, replies[0].Name)
	assert.Equal(t, ticketID, replies[0].Body)

	tk, ok := f.d.Ticket(ticketID)
	require.True(t, ok)
	assert.Equal(t, fabric.TicketActive, tk.State)
}

func TestHandleRobotError_CancelsTicketAndReplies(t *testing.T) {
	f := buildFixture(t)
	f.d.ApplyItemList([]fabric.ItemListEntry{
		{Kind: kind("log"), Available: 1},
		{Kind: kind("coal"), Available: 4},
	})
	ctx := context.Background()
	tk, _, _ := f.d.NewTicket(kind("torch"), 16, time.Now())
	tk.Start(time.Now())

	replies := f.send(t, ctx, "drone-1", fabric.PacketRobotError, "crafting_failed;"+tk.ID+";bad output")
	require.Len(t, replies, 1)
	assert.Equal(t, fabric.PacketCraftRecipeError, replies[0].Name)

	_, stillThere := f.d.Ticket(tk.ID)
	assert.False(t, stillThere)
}
