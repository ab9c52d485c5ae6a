// Package server implements the Storage Server's message handlers: the
// stor_* packets of spec.md §6, dispatched against an engine.Engine.
package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// ParseKind parses a canonical kind key, the inverse of fabric.Kind.String:
// "namespace:itemID:meta" or "namespace:itemID:metan" for an NBT-sensitive
// kind.
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

// encodeKindAmounts renders a kind->int map as "k1=v1,k2=v2,...".
func encodeKindAmounts(m map[fabric.Kind]int) string {
	var b strings.Builder
	first := true
	for k, v := range m {
		if !first {
			b.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&b, "%s=%d", k.String(), v)
	}
	return b.String()
}

// decodeKindAmounts parses the inverse of encodeKindAmounts.
func decodeKindAmounts(s string) (map[fabric.Kind]int, error) {
	out := make(map[fabric.Kind]int)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		kindStr, amtStr, ok := strings.Cut(tok, "=")
		if !ok {
			return nil, fmt.Errorf("malformed entry %q", tok)
		}
		kind, err := ParseKind(kindStr)
		if err != nil {
			return nil, err
		}
		amt, err := strconv.Atoi(amtStr)
		if err != nil {
			return nil, fmt.Errorf("bad amount in %q: %w", tok, err)
		}
		out[kind] = amt
	}
	return out, nil
}
