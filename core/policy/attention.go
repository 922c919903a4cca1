package policy

import (
	"fmt"
	"math"

	"github.com/siherrmann/kgwalker/core/nn"
	"gonum.org/v1/gonum/mat"
)

// AttentionHead holds the independent projections of one head
type AttentionHead struct {
	Query *nn.Linear // dim -> headDim
	Key   *nn.Linear // dim -> headDim
	Value *nn.Linear // 3·dim -> headDim, followed by LeakyReLU
}

// MultiHeadAttention aggregates a padded neighbor set into one vector per example.
// Every head attends from the query relation onto the neighbor relations and
// averages the projected [state, relation, entity] values.
type MultiHeadAttention struct {
	Heads    []*AttentionHead
	EmbedDim int
	HeadDim  int
	scale    float64
}

// NewMultiHeadAttention creates numHeads heads of size headDim.
// headDim·numHeads must equal embedDim.
func NewMultiHeadAttention(ec *nn.ExecContext, embedDim, headDim, numHeads int) (*MultiHeadAttention, error) {
	if embedDim <= 0 || headDim <= 0 || numHeads <= 0 || headDim*numHeads != embedDim {
		return nil, fmt.Errorf("%w: %d heads of size %d for embedding size %d", ErrShapeMismatch, numHeads, headDim, embedDim)
	}

	a := &MultiHeadAttention{
		Heads:    make([]*AttentionHead, numHeads),
		EmbedDim: embedDim,
		HeadDim:  headDim,
		scale:    1 / math.Sqrt(float64(headDim)),
	}
	for h := range a.Heads {
		a.Heads[h] = &AttentionHead{
			Query: nn.NewLinear(ec, embedDim, headDim),
			Key:   nn.NewLinear(ec, embedDim, headDim),
			Value: nn.NewLinear(ec, 3*embedDim, headDim),
		}
	}
	return a, nil
}

// Weights returns the 1 × cap attention weights of head for one example.
// query is 1 × dim, key cap × dim, mask holds cap entries.
func (a *MultiHeadAttention) Weights(head int, query, key mat.Matrix, mask []float64) (*mat.Dense, error) {
	if head < 0 || head >= len(a.Heads) {
		return nil, fmt.Errorf("%w: head %d of %d", ErrShapeMismatch, head, len(a.Heads))
	}
	h := a.Heads[head]

	q, err := h.Query.Forward(query)
	if err != nil {
		return nil, fmt.Errorf("project query: %w", err)
	}
	k, err := h.Key.Forward(key)
	if err != nil {
		return nil, fmt.Errorf("project key: %w", err)
	}
	neighbors, _ := k.Dims()
	if len(mask) != neighbors {
		return nil, fmt.Errorf("%w: %d mask entries for %d neighbors", ErrShapeMismatch, len(mask), neighbors)
	}

	logits := mat.NewDense(1, neighbors, nil)
	logits.Mul(q, k.T())
	logits.Scale(a.scale, logits)

	return nn.MaskedSoftmax(logits, mat.NewDense(1, neighbors, append([]float64(nil), mask...)))
}

// Forward attends for every example i from query row i onto keys[i] and values[i].
// query is batch × dim, keys[i] cap × dim, values[i] cap × 3·dim, mask batch × cap.
// The result is batch × dim with the heads side by side.
func (a *MultiHeadAttention) Forward(query *mat.Dense, keys, values []*mat.Dense, mask *mat.Dense) (*mat.Dense, error) {
	batch, dim := query.Dims()
	if dim != a.EmbedDim {
		return nil, fmt.Errorf("%w: query of width %d for embedding size %d", ErrShapeMismatch, dim, a.EmbedDim)
	}
	if len(keys) != batch || len(values) != batch {
		return nil, fmt.Errorf("%w: batch %d with %d keys and %d values", ErrShapeMismatch, batch, len(keys), len(values))
	}
	if r, _ := mask.Dims(); r != batch {
		return nil, fmt.Errorf("%w: batch %d with mask of %d rows", ErrShapeMismatch, batch, r)
	}

	out := mat.NewDense(batch, a.EmbedDim, nil)
	for i := 0; i < batch; i++ {
		q := query.Slice(i, i+1, 0, dim)
		for h, head := range a.Heads {
			w, err := a.Weights(h, q, keys[i], mask.RawRowView(i))
			if err != nil {
				return nil, err
			}
			v, err := head.Value.Forward(values[i])
			if err != nil {
				return nil, fmt.Errorf("project value: %w", err)
			}
			nn.LeakyReLU(v)

			var agg mat.Dense
			agg.Mul(w, v)
			copy(out.RawRowView(i)[h*a.HeadDim:(h+1)*a.HeadDim], agg.RawRowView(0))
		}
	}
	return out, nil
}
