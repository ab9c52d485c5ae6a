// Command storage-server runs a standalone Storage Server: the Transposer
// Graph, Router, and engine of spec.md §4, with an operator console on
// stdin but no Crafting Server peer wired in. Useful for exercising a
// storage network in isolation; cmd/crafting-server runs the two servers
// together on one shared bus, the deployment topology spec.md's single
// network actually describes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rsned/transposer-crafting-fabric/internal/appconfig"
	"github.com/rsned/transposer-crafting-fabric/internal/consoleio"
	"github.com/rsned/transposer-crafting-fabric/internal/storage/engine"
	"github.com/rsned/transposer-crafting-fabric/internal/storage/route"
	"github.com/rsned/transposer-crafting-fabric/internal/storage/routingconfig"
	"github.com/rsned/transposer-crafting-fabric/internal/storage/server"
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
		Use:   "storage-server",
		Short: "Run a standalone Transposer Fabric storage network",
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
		return fmt.Errorf("storage-server: %w", err)
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
	if cfg.Logging.Debug {
		storageLevel.Set(slog.LevelDebug)
	}

	routingCfg, err := routingconfig.ParseFile(cfg.Routing.ConfigPath)
	if err != nil {
		return fmt.Errorf("storage-server: loading routing config: %w", err)
	}
	graph, refs, _, err := routingconfig.BuildGraph(routingCfg)
	if err != nil {
		return fmt.Errorf("storage-server: building graph: %w", err)
	}
	router, err := route.NewRouter(graph, cfg.Routing.RouterCacheSize)
	if err != nil {
		return fmt.Errorf("storage-server: building router: %w", err)
	}

	eng := engine.NewEngine(graph, router, storageLog)
	for _, ref := range refs {
		eng.RegisterInventory(engine.NewInventory(ref, cfg.Routing.DefaultSlotCount))
	}

	sb := wire.NewSwitchboard()
	bus := wire.NewLocalBus(sb, cfg.Network.StorageAddr, cfg.Network.RatePerSecond, cfg.Network.Burst)

	inputRef := fabric.InventoryRef{Role: fabric.RoleInput, Index: 0}
	outputRef := fabric.InventoryRef{Role: fabric.RoleOutput, Index: 0}
	srv := server.New(eng, bus, inputRef, outputRef, storageLog)

	disp := wire.NewDispatcher(storageLog)
	srv.RegisterHandlers(disp)

	errCh := make(chan error, 1)
	go func() {
		errCh <- disp.Serve(ctx, bus)
	}()

	rootLog.Info("storage-server: listening", "addr", bus.Addr())
	consoleErr := console.Run(ctx)
	cancel()

	if err := <-errCh; err != nil {
		return fmt.Errorf("storage-server: serve: %w", err)
	}
	return consoleErr
}
