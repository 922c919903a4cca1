package graph

import (
	"context"

	"github.com/siherrmann/kgwalker/model"
)

// TraversalResult contains an entity and its distance from the source
type TraversalResult struct {
	Entity   int
	Distance int
	Path     []model.Neighbor // Edges from source to this entity
}

// BFS performs breadth-first search from a source entity
func BFS(ctx context.Context, adj Adjacency, source int, maxHops int) ([]*TraversalResult, error) {
	visited := map[int]bool{source: true}
	queue := []TraversalResult{{
		Entity:   source,
		Distance: 0,
		Path:     []model.Neighbor{},
	}}

	var results []*TraversalResult
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]

		results = append(results, &current)

		// Stop if we've reached max hops
		if current.Distance >= maxHops {
			continue
		}

		for _, n := range adj.Neighbors(current.Entity) {
			// Reserved entities are never walked through
			if n.Entity == model.DummyEntity || n.Entity == model.NoOpEntity {
				continue
			}
			if visited[n.Entity] {
				continue
			}
			visited[n.Entity] = true

			newPath := make([]model.Neighbor, len(current.Path), len(current.Path)+1)
			copy(newPath, current.Path)
			newPath = append(newPath, n)

			queue = append(queue, TraversalResult{
				Entity:   n.Entity,
				Distance: current.Distance + 1,
				Path:     newPath,
			})
		}
	}

	return results, nil
}

// ReachableWithin returns a shortest path from source to target if target
// can be reached in at most maxHops steps, nil otherwise
func ReachableWithin(ctx context.Context, adj Adjacency, source, target, maxHops int) (*TraversalResult, error) {
	results, err := BFS(ctx, adj, source, maxHops)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Entity == target {
			return r, nil
		}
	}
	return nil, nil
}
