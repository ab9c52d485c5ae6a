package recipedb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// ParseKind parses a canonical kind key ("namespace:itemID:meta" or
// "namespace:itemID:metan" for an NBT-sensitive kind), the same grammar
// used by the wire packet codec.
func ParseKind(s string) (fabric.Kind, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return fabric.Kind{}, fmt.Errorf("malformed kind key %q", s)
	}
	metaStr := parts[2]
	nbtSensitive := strings.HasSuffix(metaStr, "n")
	if nbtSensitive {
		metaStr = strings.TrimSuffix(metaStr, "n")
	}
	meta, err := strconv.Atoi(metaStr)
	if err != nil {
		return fabric.Kind{}, fmt.Errorf("bad meta in kind key %q: %w", s, err)
	}
	return fabric.Kind{Namespace: parts[0], ItemID: parts[1], Meta: meta, NBTSensitive: nbtSensitive}, nil
}
