package policy

import (
	"testing"

	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestInverseOffset(t *testing.T) {
	t.Run("Restores the original order", func(t *testing.T) {
		// batch of 7 split into buckets [0 2 5] and [1 3 4 6]
		references := []int{0, 2, 5, 1, 3, 4, 6}
		inv := InverseOffset(references)

		seen := make(map[int]bool)
		for k, i := range inv {
			assert.Equal(t, k, references[i], "Expected row %d to come back to position %d", i, k)
			assert.False(t, seen[i], "Expected every concatenated row exactly once")
			seen[i] = true
		}
		assert.Len(t, seen, len(references), "Expected a permutation")
	})

	t.Run("Identity for a single bucket", func(t *testing.T) {
		assert.Equal(t, []int{0, 1, 2}, InverseOffset([]int{0, 1, 2}), "Expected identity")
		assert.Empty(t, InverseOffset(nil), "Expected empty offset")
	})
}

func TestMergeOutcomes(t *testing.T) {
	narrow, err := graph.NewActionSpace([][]model.Neighbor{{{Relation: model.NoOpRelation, Entity: 4}}}, 1)
	require.NoError(t, err, "Expected action space")
	wide, err := graph.NewActionSpace([][]model.Neighbor{
		{{Relation: model.NoOpRelation, Entity: 2}, {Relation: 3, Entity: 4}},
		{{Relation: model.NoOpRelation, Entity: 3}, {Relation: 5, Entity: 2}},
	}, 3)
	require.NoError(t, err, "Expected action space")

	outcomes := []Outcome{
		{Space: narrow, Dist: mat.NewDense(1, 1, []float64{1})},
		{Space: wide, Dist: mat.NewDense(2, 3, []float64{0.25, 0.75, 0, 0.5, 0.5, 0})},
	}
	// original batch order is wide row 0, narrow row 0, wide row 1
	merged, err := mergeOutcomes(outcomes, InverseOffset([]int{1, 0, 2}))
	require.NoError(t, err, "Expected merge to succeed")

	assert.Equal(t, 3, merged.Space.Width(), "Expected widest action space")
	assert.Equal(t, []int{2, 4, 3}, []int{merged.Space.Entities[0][0], merged.Space.Entities[1][0], merged.Space.Entities[2][0]}, "Expected original batch order")
	assert.Equal(t, []float64{1, 0, 0}, merged.Dist.RawRowView(1), "Expected zero padded distribution")
	assert.Equal(t, []float64{0, 0}, merged.Space.Mask.RawRowView(1)[1:], "Expected padded slots masked")
	assert.Equal(t, []float64{0.5, 0.5, 0}, merged.Dist.RawRowView(2), "Expected distribution to follow its row")
}
