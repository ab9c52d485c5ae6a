package route

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// Hop is one physical item move: a single transposer carrying items from
// one of its sides to another.
type Hop struct {
	TransposerIndex int
	InSide          int
	OutSide         int
}

// Mover performs one Hop. srcSlot/dstSlot are the specific slots to use on
// the endpoints of the overall route; intermediate hops pass -1 to mean
// "any slot the transposer picks", since a transfer inventory is just a
// relay and the router does not track its slot layout.
type Mover interface {
	Move(ctx context.Context, hop Hop, srcSlot, dstSlot, amount int) (transferred int, err error)
}

type pathKey struct {
	src fabric.InventoryRef
	dst fabric.InventoryRef
}

// Router computes and executes shortest physical hop paths over a Graph,
// per spec.md §4.1. Paths are cached by (src, dst) inventory pair since the
// graph is immutable after startup (routing config is read-only per
// spec.md §6), so recomputing BFS on every insert/extract would be pure
// waste — the cache is sized generously because path count is bounded by
// (inventory count)^2, never unbounded.
type Router struct {
	graph *Graph
	cache *lru.Cache[pathKey, []Hop]
}

// NewRouter builds a Router over graph with a path cache sized for
// cacheSize distinct (src, dst) pairs.
func NewRouter(graph *Graph, cacheSize int) (*Router, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	c, err := lru.New[pathKey, []Hop](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("route: building path cache: %w", err)
	}
	return &Router{graph: graph, cache: c}, nil
}

// bfsFrontier is one transfer inventory discovered during the search, with
// a back-pointer to how it was reached.
type bfsFrontier struct {
	inv  fabric.InventoryRef
	hop  Hop
	prev fabric.InventoryRef
	root bool
}

// FindPath computes (or returns the cached) hop sequence from src to dst.
// A zero-length, nil-error result means src and dst are the same
// inventory (the caller has nothing to route).
func (r *Router) FindPath(src, dst fabric.InventoryRef) ([]Hop, error) {
	if src == dst {
		return nil, nil
	}
	key := pathKey{src: src, dst: dst}
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	path, err := r.bfs(src, dst)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, path)
	return path, nil
}

// bfs implements spec.md §4.1's algorithm: if src and dst share a
// transposer, one direct hop; otherwise breadth-first search expanding only
// across transfer inventories, each visited at most once, with a
// back-pointer recorded per discovery so the hop sequence can be
// reconstructed once a port adjacent to dst is reached.
func (r *Router) bfs(src, dst fabric.InventoryRef) ([]Hop, error) {
	// Direct case: src and dst share a transposer.
	for _, p := range r.graph.PortsOf(src) {
		for _, other := range r.graph.otherPorts(p) {
			if inv, ok := r.graph.InventoryAt(other); ok && inv == dst {
				return []Hop{{TransposerIndex: p.TransposerIndex, InSide: p.Side, OutSide: other.Side}}, nil
			}
		}
	}

	visited := map[fabric.InventoryRef]bfsFrontier{src: {inv: src, root: true}}
	queue := []fabric.InventoryRef{src}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, p := range r.graph.PortsOf(cur) {
			for _, other := range r.graph.otherPorts(p) {
				neighbor, ok := r.graph.InventoryAt(other)
				if !ok {
					continue
				}
				if neighbor == dst {
					hop := Hop{TransposerIndex: p.TransposerIndex, InSide: p.Side, OutSide: other.Side}
					return r.reconstruct(visited, cur, hop)
				}
				if neighbor.Role != fabric.RoleTransfer {
					continue
				}
				if _, seen := visited[neighbor]; seen {
					continue
				}
				visited[neighbor] = bfsFrontier{
					inv:  neighbor,
					hop:  Hop{TransposerIndex: p.TransposerIndex, InSide: p.Side, OutSide: other.Side},
					prev: cur,
				}
				queue = append(queue, neighbor)
			}
		}
	}

	return nil, fmt.Errorf("route: no path from %s to %s (routing table invalid)", src, dst)
}

// reconstruct walks back-pointers from the inventory that completed the
// search to src, prepending the final hop onto dst.
func (r *Router) reconstruct(visited map[fabric.InventoryRef]bfsFrontier, lastTransfer fabric.InventoryRef, finalHop Hop) ([]Hop, error) {
	var hops []Hop
	cur := lastTransfer
	for {
		front, ok := visited[cur]
		if !ok {
			return nil, fmt.Errorf("route: internal error reconstructing path at %s", cur)
		}
		if front.root {
			break
		}
		hops = append([]Hop{front.hop}, hops...)
		cur = front.prev
	}
	hops = append(hops, finalHop)
	return hops, nil
}

// Route executes the hop sequence from src to dst, moving up to amount
// items. It returns the count actually transferred and, if the final hop
// fell short, the slot where the unmoved remainder sits (per spec.md §4.1:
// only the final hop may come up short — a shortfall on any earlier hop is
// a fatal routing-table error, since transfer inventories must never be
// full mid-route).
func (r *Router) Route(ctx context.Context, mover Mover, src, dst fabric.SlotRef, amount int) (transferred int, stuck *fabric.SlotRef, err error) {
	path, err := r.FindPath(src.InventoryRef, dst.InventoryRef)
	if err != nil {
		return 0, nil, err
	}
	if len(path) == 0 {
		return 0, nil, nil
	}

	remaining := amount
	for i, hop := range path {
		isLast := i == len(path)-1
		srcSlot := -1
		if i == 0 {
			srcSlot = src.Slot
		}
		dstSlot := -1
		if isLast {
			dstSlot = dst.Slot
		}

		asked := remaining
		moved, mErr := mover.Move(ctx, hop, srcSlot, dstSlot, asked)
		if mErr != nil {
			return amount - remaining, nil, fmt.Errorf("route: hop %d/%d on transposer %d: %w", i+1, len(path), hop.TransposerIndex, mErr)
		}
		remaining -= moved

		if moved < asked {
			if !isLast {
				return amount - remaining, nil, fmt.Errorf("route: fatal mid-hop shortfall at transposer %d (moved %d, needed %d)", hop.TransposerIndex, moved, asked)
			}
			stuckInv, ok := r.graph.InventoryAt(Port{TransposerIndex: hop.TransposerIndex, Side: hop.InSide})
			if ok {
				stuck = &fabric.SlotRef{InventoryRef: stuckInv, Slot: srcSlot}
			}
			break
		}
	}

	return amount - remaining, stuck, nil
}
