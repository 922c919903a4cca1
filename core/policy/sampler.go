package policy

import (
	"fmt"

	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/core/nn"
	"github.com/siherrmann/kgwalker/model"
	"gonum.org/v1/gonum/mat"
)

// NeighborSet is the padded neighborhood of a batch of entities.
// Slot j of row i is real when Mask(i, j) is 1. The mask is a plain
// multiplicative gate and carries no gradient.
type NeighborSet struct {
	Relations   [][]int      // batch × cap
	Entities    [][]int      // batch × cap
	RelationEmb []*mat.Dense // batch of cap × dim
	EntityEmb   []*mat.Dense // batch of cap × dim
	Mask        *mat.Dense   // batch × cap
}

// NeighborSampler draws a bounded neighbor set per (entity, query) pair
type NeighborSampler struct {
	ec          *nn.ExecContext
	entities    *nn.Embedding
	relations   *nn.Embedding
	dropout     *nn.Dropout
	keepRate    float64
	dropoutRate float64
}

// NewNeighborSampler creates a sampler over the given embedding tables.
// neighborDropoutRate is the probability of dropping a neighbor slot in training.
func NewNeighborSampler(ec *nn.ExecContext, entities, relations *nn.Embedding, dropout *nn.Dropout, neighborDropoutRate float64) (*NeighborSampler, error) {
	if neighborDropoutRate < 0 || neighborDropoutRate >= 1 {
		return nil, fmt.Errorf("neighbor dropout rate %v outside [0, 1)", neighborDropoutRate)
	}
	return &NeighborSampler{
		ec:          ec,
		entities:    entities,
		relations:   relations,
		dropout:     dropout,
		keepRate:    1 - neighborDropoutRate,
		dropoutRate: neighborDropoutRate,
	}, nil
}

// neighbors lists the edges of entity except those labelled with query or its inverse
func neighbors(adj graph.Adjacency, entity, query int) []model.Neighbor {
	inverse := adj.InverseRelation(query)
	all := adj.Neighbors(entity)
	out := make([]model.Neighbor, 0, len(all))
	for _, n := range all {
		if n.Relation == query || n.Relation == inverse {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Sample returns exactly maxNeighbors neighbor slots per entity.
// Larger neighborhoods are subsampled uniformly without replacement,
// smaller ones are right padded with (DummyRelation, DummyEntity).
func (s *NeighborSampler) Sample(entities, queries []int, adj graph.Adjacency, maxNeighbors int, mode model.Mode) (*NeighborSet, error) {
	if len(entities) == 0 || len(entities) != len(queries) {
		return nil, fmt.Errorf("%w: %d entities with %d queries", ErrShapeMismatch, len(entities), len(queries))
	}
	if maxNeighbors <= 0 {
		return nil, fmt.Errorf("%w: neighbor cap %d", ErrShapeMismatch, maxNeighbors)
	}

	batch := len(entities)
	set := &NeighborSet{
		Relations:   make([][]int, batch),
		Entities:    make([][]int, batch),
		RelationEmb: make([]*mat.Dense, batch),
		EntityEmb:   make([]*mat.Dense, batch),
		Mask:        mat.NewDense(batch, maxNeighbors, nil),
	}

	training := mode.IsTraining()
	for i, e := range entities {
		candidates := neighbors(adj, e, queries[i])
		if len(candidates) > maxNeighbors {
			picked := make([]model.Neighbor, maxNeighbors)
			for j, k := range s.ec.Rand.Perm(len(candidates))[:maxNeighbors] {
				picked[j] = candidates[k]
			}
			candidates = picked
		}

		set.Relations[i] = make([]int, maxNeighbors)
		set.Entities[i] = make([]int, maxNeighbors)
		mask := set.Mask.RawRowView(i)
		for j, n := range candidates {
			set.Relations[i][j] = n.Relation
			set.Entities[i][j] = n.Entity
			mask[j] = 1
		}

		if training && s.dropoutRate > 0 {
			for j := range mask {
				if s.ec.Rand.Float64() >= s.keepRate {
					mask[j] = 0
				}
			}
		}

		r, err := s.relations.Lookup(set.Relations[i])
		if err != nil {
			return nil, fmt.Errorf("embed neighbor relations: %w", err)
		}
		ent, err := s.entities.Lookup(set.Entities[i])
		if err != nil {
			return nil, fmt.Errorf("embed neighbor entities: %w", err)
		}
		set.RelationEmb[i] = s.dropout.Forward(s.ec, r, training)
		set.EntityEmb[i] = s.dropout.Forward(s.ec, ent, training)
	}

	return set, nil
}
