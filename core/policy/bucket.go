package policy

import (
	"context"
	"fmt"
	"sort"

	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/core/nn"
	"github.com/siherrmann/kgwalker/model"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/mat"
)

// Outcome is an action space together with the distribution over it
type Outcome struct {
	Space *graph.ActionSpace
	Dist  *mat.Dense
}

// actionSpaceInBuckets groups the batch by action space bucket.
// It returns one masked action space per bucket and, for each, the batch
// indices it holds. Buckets appear in the order their first entity appears.
func (p *Policy) actionSpaceInBuckets(ctx context.Context, e []int, obs *model.Observation, collapseEntities bool) ([]*graph.ActionSpace, [][]int, error) {
	if err := obs.CheckBatch(len(e)); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	if collapseEntities {
		return nil, nil, fmt.Errorf("%w: collapsing entities in action space buckets", ErrNotImplemented)
	}

	var keys []int
	refs := make(map[int][]int)
	offsets := make(map[int][]int)
	for i, entity := range e {
		id, err := p.store.Bucket(entity)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := refs[id.Key]; !ok {
			keys = append(keys, id.Key)
		}
		refs[id.Key] = append(refs[id.Key], i)
		offsets[id.Key] = append(offsets[id.Key], id.Offset)
	}

	spaces := make([]*graph.ActionSpace, 0, len(keys))
	references := make([][]int, 0, len(keys))
	for _, key := range keys {
		_, span := p.ec.Tracer.Start(ctx, "policy.bucket")
		span.SetAttributes(attribute.Int("bucket.key", key), attribute.Int("bucket.size", len(refs[key])))

		space, err := p.store.BucketSpace(key, offsets[key])
		if err != nil {
			span.End()
			return nil, nil, err
		}
		batchRefs := refs[key]
		if err := p.masker.ApplyActionMasks(space, pickInts(e, batchRefs), obs.Slice(batchRefs)); err != nil {
			span.End()
			return nil, nil, err
		}
		p.ec.Logger.Debug("action space bucket", "key", key, "size", len(batchRefs), "width", space.Width())
		span.End()

		spaces = append(spaces, space)
		references = append(references, batchRefs)
	}
	return spaces, references, nil
}

// actionSpace returns the masked global action space of e
func (p *Policy) actionSpace(e []int, obs *model.Observation) (*graph.ActionSpace, error) {
	space, err := p.store.ActionSpace(e)
	if err != nil {
		return nil, err
	}
	if err := p.masker.ApplyActionMasks(space, e, obs); err != nil {
		return nil, err
	}
	return space, nil
}

// InverseOffset returns the permutation that restores the original batch
// order of rows concatenated in references order: row k of the original
// batch is row InverseOffset(references)[k] of the concatenation.
func InverseOffset(references []int) []int {
	inv := make([]int, len(references))
	for i := range inv {
		inv[i] = i
	}
	sort.SliceStable(inv, func(a, b int) bool {
		return references[inv[a]] < references[inv[b]]
	})
	return inv
}

// mergeOutcomes pads all outcomes to the widest action space, stacks them and
// restores the original batch order
func mergeOutcomes(outcomes []Outcome, invOffset []int) (Outcome, error) {
	spaces := make([]*graph.ActionSpace, len(outcomes))
	dists := make([]*mat.Dense, len(outcomes))
	width := 0
	for i, o := range outcomes {
		spaces[i] = o.Space
		width = max(width, o.Space.Width())
	}
	for i, o := range outcomes {
		d, err := nn.PadColumns(o.Dist, width, 0)
		if err != nil {
			return Outcome{}, err
		}
		dists[i] = d
	}

	space, err := graph.ConcatActionSpaces(spaces)
	if err != nil {
		return Outcome{}, err
	}
	space, err = space.Rows(invOffset)
	if err != nil {
		return Outcome{}, err
	}
	dist, err := nn.VConcat(dists...)
	if err != nil {
		return Outcome{}, err
	}
	dist, err = nn.SelectRows(dist, invOffset)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Space: space, Dist: dist}, nil
}

func pickInts(values []int, refs []int) []int {
	out := make([]int, len(refs))
	for i, ref := range refs {
		out[i] = values[ref]
	}
	return out
}
