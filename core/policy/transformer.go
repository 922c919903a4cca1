package policy

import (
	"fmt"

	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/core/nn"
	"github.com/siherrmann/kgwalker/model"
	"gonum.org/v1/gonum/mat"
)

// LayerNormEps is the epsilon of both layer norms of a transformer block
const LayerNormEps = 1e-5

// TransformerBlock is attention, feed forward and two post norms
type TransformerBlock struct {
	Attention *MultiHeadAttention
	FF1       *nn.Linear // dim -> hidden
	FF2       *nn.Linear // hidden -> dim
	Norm1     *nn.LayerNorm
	Norm2     *nn.LayerNorm
}

// GraphTransformer encodes an entity conditioned on its neighborhood and the query relation.
// It owns the entity and relation embedding tables of the policy.
type GraphTransformer struct {
	ec *nn.ExecContext

	EntityEmbedding   *nn.Embedding
	RelationEmbedding *nn.Embedding
	Dropout           *nn.Dropout
	Sampler           *NeighborSampler
	Blocks            []*TransformerBlock
}

// GraphTransformerConfig sizes a GraphTransformer
type GraphTransformerConfig struct {
	NumEntities         int
	NumRelations        int
	EmbedDim            int
	HiddenDim           int
	NumLayers           int
	NumHeads            int
	DropoutRate         float64
	NeighborDropoutRate float64
}

// NewGraphTransformer creates the embedding tables and NumLayers blocks
func NewGraphTransformer(ec *nn.ExecContext, config GraphTransformerConfig) (*GraphTransformer, error) {
	if config.NumEntities <= 0 || config.NumRelations <= 0 || config.EmbedDim <= 0 || config.HiddenDim <= 0 || config.NumLayers <= 0 || config.NumHeads <= 0 {
		return nil, fmt.Errorf("%w: graph transformer sizes must be positive: %+v", ErrShapeMismatch, config)
	}

	dropout, err := nn.NewDropout(config.DropoutRate)
	if err != nil {
		return nil, err
	}

	g := &GraphTransformer{
		ec:                ec,
		EntityEmbedding:   nn.NewEmbedding(ec, config.NumEntities, config.EmbedDim),
		RelationEmbedding: nn.NewEmbedding(ec, config.NumRelations, config.EmbedDim),
		Dropout:           dropout,
		Blocks:            make([]*TransformerBlock, config.NumLayers),
	}

	g.Sampler, err = NewNeighborSampler(ec, g.EntityEmbedding, g.RelationEmbedding, dropout, config.NeighborDropoutRate)
	if err != nil {
		return nil, err
	}

	headDim := config.EmbedDim / config.NumHeads
	for i := range g.Blocks {
		attention, err := NewMultiHeadAttention(ec, config.EmbedDim, headDim, config.NumHeads)
		if err != nil {
			return nil, err
		}
		g.Blocks[i] = &TransformerBlock{
			Attention: attention,
			FF1:       nn.NewLinear(ec, config.EmbedDim, config.HiddenDim),
			FF2:       nn.NewLinear(ec, config.HiddenDim, config.EmbedDim),
			Norm1:     nn.NewLayerNorm(config.EmbedDim, LayerNormEps),
			Norm2:     nn.NewLayerNorm(config.EmbedDim, LayerNormEps),
		}
	}
	return g, nil
}

// ResetXavier re-initializes the entity table with Xavier uniform and the
// relation table with Xavier normal. Padding rows stay zero.
func (g *GraphTransformer) ResetXavier() {
	g.EntityEmbedding.ResetXavierUniform(g.ec)
	g.RelationEmbedding.ResetXavierNormal(g.ec)
}

// Forward returns the encoding of entities (batch × dim) and the embedding of queries.
// In test mode entities that were never seen in training are encoded from the padding row.
func (g *GraphTransformer) Forward(entities, queries []int, adj graph.Adjacency, seen func(int) bool, maxNeighbors int, mode model.Mode) (*mat.Dense, *mat.Dense, error) {
	if len(entities) == 0 || len(entities) != len(queries) {
		return nil, nil, fmt.Errorf("%w: %d entities with %d queries", ErrShapeMismatch, len(entities), len(queries))
	}

	ids := entities
	if mode == model.ModeTest && seen != nil {
		ids = make([]int, len(entities))
		for i, e := range entities {
			if seen(e) {
				ids[i] = e
			} else {
				ids[i] = nn.PaddingIdx
			}
		}
	}

	h, err := g.EntityEmbedding.Lookup(ids)
	if err != nil {
		return nil, nil, fmt.Errorf("embed entities: %w", err)
	}
	embQ, err := g.RelationEmbedding.Lookup(queries)
	if err != nil {
		return nil, nil, fmt.Errorf("embed queries: %w", err)
	}

	set, err := g.Sampler.Sample(entities, queries, adj, maxNeighbors, mode)
	if err != nil {
		return nil, nil, fmt.Errorf("sample neighbors: %w", err)
	}

	values, err := g.values(h, set)
	if err != nil {
		return nil, nil, err
	}

	training := mode.IsTraining()
	for _, block := range g.Blocks {
		x, err := block.Attention.Forward(embQ, set.RelationEmb, values, set.Mask)
		if err != nil {
			return nil, nil, fmt.Errorf("attention: %w", err)
		}
		x = g.Dropout.Forward(g.ec, x, training)
		x.Add(h, x)
		if h, err = block.Norm1.Forward(x); err != nil {
			return nil, nil, err
		}

		x, err = block.FF1.Forward(h)
		if err != nil {
			return nil, nil, err
		}
		nn.ReLU(x)
		if x, err = block.FF2.Forward(x); err != nil {
			return nil, nil, err
		}
		x = g.Dropout.Forward(g.ec, x, training)
		x.Add(h, x)
		if h, err = block.Norm2.Forward(x); err != nil {
			return nil, nil, err
		}

		if values, err = g.values(h, set); err != nil {
			return nil, nil, err
		}
	}

	return h, embQ, nil
}

// values builds [state, relation, entity] per neighbor slot with the state broadcast over slots
func (g *GraphTransformer) values(h *mat.Dense, set *NeighborSet) ([]*mat.Dense, error) {
	batch, _ := h.Dims()
	values := make([]*mat.Dense, batch)
	for i := 0; i < batch; i++ {
		slots, _ := set.RelationEmb[i].Dims()
		v, err := nn.HConcat(nn.BroadcastRow(h.RawRowView(i), slots), set.RelationEmb[i], set.EntityEmb[i])
		if err != nil {
			return nil, fmt.Errorf("build attention values: %w", err)
		}
		values[i] = v
	}
	return values, nil
}
