package engine

import (
	"context"
	"fmt"

	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// FlushToOutput implements spec.md §4.4: move every occupied slot of
// every inventory with the given role (transfer or drone) to the output
// inventory, used at startup to clear residue left by an earlier run.
// Fails if the output inventory cannot hold everything; a second call
// immediately after a successful flush is a no-op since no slots remain
// occupied.
func (e *Engine) FlushToOutput(ctx context.Context, role fabric.Role) error {
	if !e.haveOutput {
		return fmt.Errorf("engine: no output inventory registered")
	}
	if role != fabric.RoleTransfer && role != fabric.RoleDrone {
		return fmt.Errorf("engine: flush only applies to transfer or drone inventories, got %s", role)
	}

	for ref, inv := range e.inventories {
		if ref.Role != role {
			continue
		}
		for slotIdx := 0; slotIdx < inv.SlotCount(); slotIdx++ {
			st := inv.At(slotIdx)
			if st.Empty() {
				continue
			}
			src := fabric.SlotRef{InventoryRef: ref, Slot: slotIdx}
			dst := fabric.SlotRef{InventoryRef: e.outputRef, Slot: -1}

			moved, stuck, err := e.Router.Route(ctx, e, src, dst, st.Count)
			if err != nil {
				return fmt.Errorf("engine: flush %s: %w", ref, err)
			}
			if stuck != nil || moved < st.Count {
				return fmt.Errorf("engine: flush %s: output inventory full (moved %d of %d)", ref, moved, st.Count)
			}
		}
		if role == fabric.RoleDrone {
			e.Staging.Clear(ref.Index)
		}
	}
	e.RecomputeFirstEmpty()
	return nil
}
