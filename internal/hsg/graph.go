package hsg

import (
	"context"

	"github.com/openmemory/openmemory/internal/store"
)

// Link upserts a waypoint edge. Idempotent: a second call with a new
// weight leaves exactly one edge carrying the new weight.
func (e *Engine) Link(ctx context.Context, src, dst string, weight float64) error {
	return e.store.UpsertWaypoint(ctx, src, dst, weight)
}

// GraphNode is one entry in a traversal result.
type GraphNode struct {
	ID     string  `json:"id"`
	Depth  int     `json:"depth"`
	Weight float64 `json:"weight"` // edge weight from its parent on the discovered path
}

// Graph performs a breadth-first traversal from root up to depth, visiting
// each reachable memory id at most once (first discovery wins, which is
// also the shallowest depth). Edges whose endpoints are missing are
// skipped rather than followed, tolerating the orphaned-edge invariant
// being temporarily violated. The traversal never revisits an id already
// seen on the current walk, so cycles terminate without infinite
// recursion.
func (e *Engine) Graph(ctx context.Context, root string, depth int) ([]GraphNode, error) {
	if depth < 0 {
		depth = 0
	}

	visited := map[string]bool{root: true}
	type frontierEntry struct {
		id     string
		d      int
		weight float64
	}
	frontier := []frontierEntry{{id: root, d: 0, weight: 0}}
	var result []GraphNode

	for len(frontier) > 0 && frontier[0].d < depth {
		cur := frontier[0]
		frontier = frontier[1:]

		edges, err := e.store.WaypointsFrom(ctx, cur.id)
		if err != nil {
			return result, err
		}

		for _, edge := range edges {
			if visited[edge.DstID] {
				continue
			}
			dstExists, err := e.store.GetByID(ctx, edge.DstID)
			if err != nil {
				return result, err
			}
			if dstExists == nil {
				// Orphaned edge: endpoint missing, skip it. C7's sweep
				// will clean it up on its next pass.
				continue
			}
			visited[edge.DstID] = true
			node := frontierEntry{id: edge.DstID, d: cur.d + 1, weight: edge.Weight}
			frontier = append(frontier, node)
			result = append(result, GraphNode{ID: node.id, Depth: node.d, Weight: node.weight})
		}
	}

	return result, nil
}

// PruneWeakWaypoints deletes edges whose weight has decayed below
// threshold, or whose endpoints no longer exist.
func (e *Engine) PruneWeakWaypoints(ctx context.Context, threshold float64) (int, error) {
	return e.store.DeleteWaypointsWhere(ctx, func(wp store.Waypoint) bool {
		if wp.Weight < threshold {
			return true
		}
		return e.endpointMissing(ctx, wp)
	})
}

// PruneBrokenWaypoints deletes edges with a missing endpoint, independent
// of weight. Used by the consistency validator's broken-waypoint sweep
// (C6c). An edge is orphaned if *either* endpoint is missing — see the
// Open Question decision in DESIGN.md for why OR, not the source's
// logically-suspect user_id clause.
func (e *Engine) PruneBrokenWaypoints(ctx context.Context) (int, error) {
	return e.store.DeleteWaypointsWhere(ctx, func(wp store.Waypoint) bool {
		return e.endpointMissing(ctx, wp)
	})
}

func (e *Engine) endpointMissing(ctx context.Context, wp store.Waypoint) bool {
	src, err := e.store.GetByID(ctx, wp.SrcID)
	if err != nil || src == nil {
		return true
	}
	dst, err := e.store.GetByID(ctx, wp.DstID)
	if err != nil || dst == nil {
		return true
	}
	return false
}
