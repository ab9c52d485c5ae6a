// Package server implements the Crafting Server's message handlers: the
// craft_* and robot_* packets of spec.md §6, and the stor_* replies this
// server consumes from the storage bus, dispatched against a
// dispatch.Dispatcher.
package server

import (
	"fmt"
	"strconv"
	"strings"

	storagecodec "github.com/rsned/transposer-crafting-fabric/internal/storage/server"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// parseKindAmount splits a "kind;amount" body, the craft_check_recipe
// payload.
func parseKindAmount(body string) (fabric.Kind, int, error) {
	kindStr, amtStr, ok := strings.Cut(body, ";")
	if !ok {
		return fabric.Kind{}, 0, fmt.Errorf("malformed body %q", body)
	}
	kind, err := storagecodec.ParseKind(strings.TrimSpace(kindStr))
	if err != nil {
		return fabric.Kind{}, 0, err
	}
	amount, err := strconv.Atoi(strings.TrimSpace(amtStr))
	if err != nil {
		return fabric.Kind{}, 0, fmt.Errorf("bad amount in %q: %w", body, err)
	}
	return kind, amount, nil
}

// encodeProgress renders the craft_recipe_confirm progress map:
// "kind=input,output,have|...".
func encodeProgress(progress map[fabric.Kind]fabric.ProgressEntry) string {
	var b strings.Builder
	first := true
	for k, p := range progress {
		if !first {
			b.WriteByte('|')
		}
		first = false
		fmt.Fprintf(&b, "%s=%d,%d,%d", k.String(), p.Input, p.Output, p.Have)
	}
	return b.String()
}

// encodeRecipeConfirm renders the craft_recipe_confirm body: "ticket or
// missing;status;progress".
func encodeRecipeConfirm(ticket string, status fabric.SolveStatus, progress map[fabric.Kind]fabric.ProgressEntry) string {
	id := ticket
	if id == "" {
		id = "missing"
	}
	return fmt.Sprintf("%s;%s;%s", id, status, encodeProgress(progress))
}

// parseItemListEntries decodes a stor_item_list / stor_item_diff body, the
// same "kind=maxStack,available,label|..." format the storage server's
// snapshotPacket/broadcastDiff emit.
func parseItemListEntries(body string) ([]fabric.ItemListEntry, error) {
	var entries []fabric.ItemListEntry
	if strings.TrimSpace(body) == "" {
		return entries, nil
	}
	for _, tok := range strings.Split(body, "|") {
		kindStr, rest, ok := strings.Cut(tok, "=")
		if !ok {
			return nil, fmt.Errorf("malformed item-list entry %q", tok)
		}
		kind, err := storagecodec.ParseKind(strings.TrimSpace(kindStr))
		if err != nil {
			return nil, err
		}
		fields := strings.SplitN(rest, ",", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed item-list entry %q", tok)
		}
		maxStack, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("bad maxStack in %q: %w", tok, err)
		}
		avail, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("bad available in %q: %w", tok, err)
		}
		entries = append(entries, fabric.ItemListEntry{
			Kind:      kind,
			MaxStack:  maxStack,
			Label:     strings.TrimSpace(fields[2]),
			Available: avail,
		})
	}
	return entries, nil
}

// parseDroneItemDiff decodes a stor_drone_item_diff body: "droneIndex;op;result".
func parseDroneItemDiff(body string) (int, string, fabric.DroneOpResult, error) {
	fields := strings.SplitN(body, ";", 3)
	if len(fields) != 3 {
		return 0, "", "", fmt.Errorf("malformed drone-item-diff body %q", body)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return 0, "", "", fmt.Errorf("bad drone index in %q: %w", body, err)
	}
	return idx, strings.TrimSpace(fields[1]), fabric.DroneOpResult(strings.TrimSpace(fields[2])), nil
}
