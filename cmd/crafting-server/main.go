// Command crafting-server runs the full Transposer Fabric reference
// network: the Storage Server and Crafting Server wired together on one
// shared bus, with an operator console on stdin exposing the shared
// commands of spec.md §6 plus update_firmware and rlua.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsned/transposer-crafting-fabric/internal/appconfig"
	craftserver "github.com/rsned/transposer-crafting-fabric/internal/craft/server"
	"github.com/rsned/transposer-crafting-fabric/internal/consoleio"
	"github.com/rsned/transposer-crafting-fabric/internal/craft/dispatch"
	"github.com/rsned/transposer-crafting-fabric/internal/craft/recipedb"
	"github.com/rsned/transposer-crafting-fabric/internal/craft/worker"
	"github.com/rsned/transposer-crafting-fabric/internal/storage/engine"
	"github.com/rsned/transposer-crafting-fabric/internal/storage/route"
	"github.com/rsned/transposer-crafting-fabric/internal/storage/routingconfig"
	storageserver "github.com/rsned/transposer-crafting-fabric/internal/storage/server"
	"github.com/rsned/transposer-crafting-fabric/internal/wire"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "crafting-server",
		Short: "Run the Transposer Fabric crafting network",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: search config.yaml)")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("crafting-server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	console, rootLog := consoleio.New(os.Stdin, os.Stdout)
	storageLog, storageLevel := console.RegisterSubsystem("storage")
	craftLog, craftLevel := console.RegisterSubsystem("craft")
	if cfg.Logging.Debug {
		storageLevel.Set(slog.LevelDebug)
		craftLevel.Set(slog.LevelDebug)
	}

	routingCfg, err := routingconfig.ParseFile(cfg.Routing.ConfigPath)
	if err != nil {
		return fmt.Errorf("crafting-server: loading routing config: %w", err)
	}
	graph, refs, _, err := routingconfig.BuildGraph(routingCfg)
	if err != nil {
		return fmt.Errorf("crafting-server: building graph: %w", err)
	}
	router, err := route.NewRouter(graph, cfg.Routing.RouterCacheSize)
	if err != nil {
		return fmt.Errorf("crafting-server: building router: %w", err)
	}

	eng := engine.NewEngine(graph, router, storageLog)
	droneCount := 0
	for _, ref := range refs {
		eng.RegisterInventory(engine.NewInventory(ref, cfg.Routing.DefaultSlotCount))
		if ref.Role == fabric.RoleDrone {
			droneCount++
		}
	}

	db, err := recipedb.OpenAndInit(ctx, cfg.Recipes.DBPath)
	if err != nil {
		return fmt.Errorf("crafting-server: opening recipe database: %w", err)
	}
	defer func() { _ = db.Close() }()
	store := recipedb.NewRecipeStore(db)
	catalog, err := recipedb.Load(ctx, store, cfg.Recipes.SourcePath)
	if err != nil {
		return fmt.Errorf("crafting-server: loading recipe catalog: %w", err)
	}

	workers := worker.New()
	for _, w := range cfg.Workers {
		kind := worker.KindRobot
		if w.Kind == "drone" {
			kind = worker.KindDrone
		}
		workers.Register(w.ID, kind, w.Adjacent)
	}

	sb := wire.NewSwitchboard()
	storageBus := wire.NewLocalBus(sb, cfg.Network.StorageAddr, cfg.Network.RatePerSecond, cfg.Network.Burst)
	craftBus := wire.NewLocalBus(sb, cfg.Network.CraftAddr, cfg.Network.RatePerSecond, cfg.Network.Burst)
	for _, w := range cfg.Workers {
		wire.NewLocalBus(sb, w.ID, cfg.Network.RatePerSecond, cfg.Network.Burst)
	}

	inputRef := fabric.InventoryRef{Role: fabric.RoleInput, Index: 0}
	outputRef := fabric.InventoryRef{Role: fabric.RoleOutput, Index: 0}
	stor := storageserver.New(eng, storageBus, inputRef, outputRef, storageLog)
	storageDisp := wire.NewDispatcher(storageLog)
	stor.RegisterHandlers(storageDisp)

	d := dispatch.New(catalog, workers, craftBus, cfg.Network.StorageAddr, craftLog)
	d.NewStagingAllocator(droneCount, func(idx int) error {
		return storageBus.Send(ctx, cfg.Network.StorageAddr, wire.Packet{Name: fabric.PacketStorDroneInsert, Body: fmt.Sprintf("%d", idx)})
	})
	craft := craftserver.New(d, craftLog)
	craftDisp := wire.NewDispatcher(craftLog)
	craft.RegisterHandlers(craftDisp)

	// The craft dispatcher's tick, its packet handlers, and the
	// update_firmware/rlua console commands all mutate Dispatcher state
	// (catalog, tickets, workers, staging) with no lock between them,
	// which spec.md §5's single-threaded dispatch guarantee forbids - so
	// every one of them runs as a submitted closure on this one
	// goroutine's select loop below instead of racing from three
	// independent ones.
	craftEnvCh, craftRecvErrCh := wire.RecvLoop(ctx, craftBus)
	craftCmdCh := make(chan func())

	console.Register("update_firmware", func(args []string) error {
		reloaded, err := recipedb.Load(ctx, store, cfg.Recipes.SourcePath)
		if err != nil {
			return fmt.Errorf("update_firmware: %w", err)
		}
		submitCraftCmd(ctx, craftCmdCh, func() { d.Catalog = reloaded })
		fmt.Fprintln(os.Stdout, "recipe catalog reloaded")
		return nil
	})
	console.Register("rlua", func(args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: rlua robot|drone")
		}
		kind := worker.KindRobot
		switch args[0] {
		case "robot":
			kind = worker.KindRobot
		case "drone":
			kind = worker.KindDrone
		default:
			return fmt.Errorf("usage: rlua robot|drone")
		}
		var n int
		submitCraftCmd(ctx, craftCmdCh, func() { n = d.ResetWorkers(kind) })
		fmt.Fprintf(os.Stdout, "reset %d %s worker(s)\n", n, args[0])
		return nil
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- storageDisp.Serve(ctx, storageBus)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		tickInterval := time.Duration(cfg.Network.TickIntervalMS) * time.Millisecond
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				errCh <- nil
				return
			case now := <-ticker.C:
				d.Tick(ctx, now)
			case env, ok := <-craftEnvCh:
				if !ok {
					errCh <- <-craftRecvErrCh
					return
				}
				craftDisp.Dispatch(ctx, craftBus, env)
			case cmd := <-craftCmdCh:
				cmd()
			}
		}
	}()

	rootLog.Info("crafting-server: listening", "storage_addr", storageBus.Addr(), "craft_addr", craftBus.Addr())
	consoleErr := console.Run(ctx)
	cancel()
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return fmt.Errorf("crafting-server: %w", err)
		}
	}
	return consoleErr
}

// submitCraftCmd hands fn to the craft dispatch loop and blocks until it
// has run, so a console command can safely touch Dispatcher state without
// a second goroutine mutating it concurrently. Either wait can abandon
// early if ctx is cancelled out from under a blocked console command.
func submitCraftCmd(ctx context.Context, ch chan<- func(), fn func()) {
	done := make(chan struct{})
	select {
	case ch <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}
