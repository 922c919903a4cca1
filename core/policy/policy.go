package policy

import (
	"context"
	"fmt"

	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/core/nn"
	"github.com/siherrmann/kgwalker/helper"
	"github.com/siherrmann/kgwalker/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// TransitOptions selects how the action spaces of a batch are processed
type TransitOptions struct {
	// Bucketing groups entities by action space size
	Bucketing bool
	// Merge pads the bucket outcomes into one outcome in original order
	Merge bool
	// CollapseEntities is not supported
	CollapseEntities bool
}

// TransitResult is the action distribution of one step.
// With bucketing and without merge, Outcomes holds one entry per bucket and
// InvOffset restores the original order of their concatenated rows.
// Otherwise Outcomes holds a single entry in batch order and InvOffset is nil.
// Entropy is always in batch order.
type TransitResult struct {
	Outcomes  []Outcome
	InvOffset []int
	Entropy   []float64
}

// Policy is the graph search policy network
type Policy struct {
	ec     *nn.ExecContext
	config model.PolicyConfig
	store  graph.Store

	Transformer *GraphTransformer
	W1          *nn.Linear
	W2          *nn.Linear
	W1Dropout   *nn.Dropout
	W2Dropout   *nn.Dropout
	Encoder     PathEncoder

	path   *PathHistory
	masker *Masker
	mode   model.Mode
}

// NewPolicy creates a policy over store
func NewPolicy(ec *nn.ExecContext, config model.PolicyConfig, store graph.Store) (*Policy, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	transformer, err := NewGraphTransformer(ec, GraphTransformerConfig{
		NumEntities:         store.NumEntities(),
		NumRelations:        store.NumRelations(),
		EmbedDim:            config.EntityDim,
		HiddenDim:           config.TransformerHiddenDim,
		NumLayers:           config.NumTransformerLayers,
		NumHeads:            config.NumHeads,
		DropoutRate:         config.EmbDropoutRate,
		NeighborDropoutRate: config.ActionDropoutRate,
	})
	if err != nil {
		return nil, helper.NewError("create graph transformer", err)
	}

	var inputDim int
	switch {
	case config.RelationOnly:
		inputDim = config.HistoryDim + config.RelationDim
	case config.RelationOnlyInPath:
		inputDim = config.HistoryDim + 2*config.EntityDim + config.RelationDim
	default:
		inputDim = config.HistoryDim + config.EntityDim + config.RelationDim
	}
	actionDim := config.ActionDim()

	w1Dropout, err := nn.NewDropout(config.FFDropoutRate)
	if err != nil {
		return nil, helper.NewError("create dropout", err)
	}
	w2Dropout, err := nn.NewDropout(config.FFDropoutRate)
	if err != nil {
		return nil, helper.NewError("create dropout", err)
	}

	encoder, err := NewPathEncoder(ec, config.HistoryCell, actionDim, config.HistoryDim, config.HistoryNumLayers)
	if err != nil {
		return nil, helper.NewError("create path encoder", err)
	}

	p := &Policy{
		ec:          ec,
		config:      config,
		store:       store,
		Transformer: transformer,
		W1:          nn.NewLinear(ec, inputDim, actionDim),
		W2:          nn.NewLinear(ec, actionDim, actionDim),
		W1Dropout:   w1Dropout,
		W2Dropout:   w2Dropout,
		Encoder:     encoder,
		path:        NewPathHistory(encoder),
		masker:      NewMasker(store, store, config.MaskTestFalseNegatives),
		mode:        model.ModeEval,
	}

	if config.XavierInitialization {
		p.W1.ResetXavier(ec)
		p.W2.ResetXavier(ec)
		p.Encoder.ResetXavier(ec)
		p.Transformer.ResetXavier()
	}

	return p, nil
}

// Path returns the path history of the current rollout
func (p *Policy) Path() *PathHistory {
	return p.path
}

// encoderGraph picks the adjacency and encoder mode for a policy mode.
// Inference reads the auxiliary graph and hides entities unseen in training.
func (p *Policy) encoderGraph(mode model.Mode) (graph.Adjacency, model.Mode) {
	if mode.IsTraining() {
		return p.store.Graph(graph.KindTrain), model.ModeTrain
	}
	if p.config.Inference {
		return p.store.Graph(graph.KindAux), model.ModeTest
	}
	return p.store.Graph(graph.KindEval), model.ModeEval
}

// encode runs the graph transformer over (entities, queries) for mode
func (p *Policy) encode(entities, queries []int, mode model.Mode) (*mat.Dense, error) {
	adj, encoderMode := p.encoderGraph(mode)
	h, _, err := p.Transformer.Forward(entities, queries, adj, p.store.Seen, p.config.Bandwidth, encoderMode)
	return h, err
}

// Transit computes the action distribution of the current entities e from
// their neighborhood encoding, the path history and the query relation.
func (p *Policy) Transit(ctx context.Context, e []int, obs *model.Observation, mode model.Mode, opts TransitOptions) (result *TransitResult, err error) {
	ctx, span := p.ec.Tracer.Start(ctx, "policy.Transit", trace.WithAttributes(
		attribute.Int("batch", len(e)),
		attribute.String("mode", string(mode)),
		attribute.Bool("bucketing", opts.Bucketing),
		attribute.Bool("merge", opts.Merge),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(e) == 0 {
		return nil, helper.NewError("transit", fmt.Errorf("%w: empty batch", ErrShapeMismatch))
	}
	if err := obs.CheckBatch(len(e)); err != nil {
		return nil, helper.NewError("transit", fmt.Errorf("%w: %v", ErrShapeMismatch, err))
	}
	if opts.CollapseEntities {
		return nil, helper.NewError("transit", fmt.Errorf("%w: collapsing entities in action space buckets", ErrNotImplemented))
	}
	p.ec.Logger.Debug("transit", "batch", len(e), "mode", mode, "first_step", obs.FirstStep, "last_step", obs.LastStep)

	x2, err := p.stateVector(e, obs, mode)
	if err != nil {
		return nil, helper.NewError("transit", err)
	}

	training := mode.IsTraining()
	if !opts.Bucketing {
		space, err := p.actionSpace(e, obs)
		if err != nil {
			return nil, helper.NewError("get action space", err)
		}
		dist, entropy, err := p.actionDistribution(x2, space, training)
		if err != nil {
			return nil, helper.NewError("action distribution", err)
		}
		return &TransitResult{
			Outcomes: []Outcome{{Space: space, Dist: dist}},
			Entropy:  entropy,
		}, nil
	}

	spaces, references, err := p.actionSpaceInBuckets(ctx, e, obs, opts.CollapseEntities)
	if err != nil {
		return nil, helper.NewError("get action space in buckets", err)
	}

	outcomes := make([]Outcome, len(spaces))
	var concatenated []int
	var entropies []float64
	for b, space := range spaces {
		x2b, err := nn.SelectRows(x2, references[b])
		if err != nil {
			return nil, helper.NewError("select bucket rows", err)
		}
		dist, entropy, err := p.actionDistribution(x2b, space, training)
		if err != nil {
			return nil, helper.NewError("action distribution", err)
		}
		outcomes[b] = Outcome{Space: space, Dist: dist}
		concatenated = append(concatenated, references[b]...)
		entropies = append(entropies, entropy...)
	}

	invOffset := InverseOffset(concatenated)
	entropy := make([]float64, len(invOffset))
	for k, i := range invOffset {
		entropy[k] = entropies[i]
	}

	if opts.Merge {
		merged, err := mergeOutcomes(outcomes, invOffset)
		if err != nil {
			return nil, helper.NewError("merge bucket outcomes", err)
		}
		return &TransitResult{Outcomes: []Outcome{merged}, Entropy: entropy}, nil
	}

	return &TransitResult{Outcomes: outcomes, InvOffset: invOffset, Entropy: entropy}, nil
}

// stateVector builds the state features of the batch and maps them through
// the two layer feed forward network to the action embedding size
func (p *Policy) stateVector(e []int, obs *model.Observation, mode model.Mode) (*mat.Dense, error) {
	training := mode.IsTraining()
	batch := len(e)

	q, err := p.Transformer.RelationEmbedding.Lookup(obs.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	q = p.Transformer.Dropout.Forward(p.ec, q, training)

	h, err := p.path.Top()
	if err != nil {
		return nil, err
	}
	if r, _ := h.Dims(); r != batch {
		return nil, fmt.Errorf("%w: path history of %d rows for batch %d", ErrShapeMismatch, r, batch)
	}

	var x *mat.Dense
	if p.config.RelationOnly {
		x, err = nn.HConcat(h, q)
	} else {
		var entity *mat.Dense
		entity, err = p.currentEncoding(e, obs, mode)
		if err != nil {
			return nil, err
		}
		if p.config.RelationOnlyInPath {
			var source *mat.Dense
			source, err = expandRows(obs.SourceEncoding, batch)
			if err != nil {
				return nil, err
			}
			x, err = nn.HConcat(entity, h, source, q)
		} else {
			x, err = nn.HConcat(entity, h, q)
		}
	}
	if err != nil {
		return nil, err
	}

	x, err = p.W1.Forward(x)
	if err != nil {
		return nil, err
	}
	nn.ReLU(x)
	x = p.W1Dropout.Forward(p.ec, x, training)
	x, err = p.W2.Forward(x)
	if err != nil {
		return nil, err
	}
	return p.W2Dropout.Forward(p.ec, x, training), nil
}

// currentEncoding is the source encoding on the first step and the graph
// transformer encoding of e afterwards
func (p *Policy) currentEncoding(e []int, obs *model.Observation, mode model.Mode) (*mat.Dense, error) {
	if obs.FirstStep {
		if obs.SourceEncoding == nil {
			return nil, fmt.Errorf("%w: first step without source encoding", ErrShapeMismatch)
		}
		if r, _ := obs.SourceEncoding.Dims(); r != len(e) {
			return nil, fmt.Errorf("%w: source encoding of %d rows for batch %d", ErrShapeMismatch, r, len(e))
		}
		return obs.SourceEncoding, nil
	}
	return p.encode(e, obs.Query, mode)
}

// expandRows repeats every row of m so that it covers batch rows.
// batch must be an exact multiple of the rows of m.
func expandRows(m *mat.Dense, batch int) (*mat.Dense, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: missing source encoding", ErrShapeMismatch)
	}
	r, _ := m.Dims()
	if r == batch {
		return m, nil
	}
	if r == 0 || batch%r != 0 {
		return nil, fmt.Errorf("%w: cannot expand %d source rows to batch %d", ErrShapeMismatch, r, batch)
	}
	return nn.RepeatRows(m, batch/r)
}

// actionDistribution scores every candidate of space against x2 and returns
// the masked softmax and its entropy per row
func (p *Policy) actionDistribution(x2 *mat.Dense, space *graph.ActionSpace, training bool) (*mat.Dense, []float64, error) {
	rows, _ := x2.Dims()
	if rows != space.Len() {
		return nil, nil, fmt.Errorf("%w: %d state rows for %d action space rows", ErrShapeMismatch, rows, space.Len())
	}

	logits := mat.NewDense(space.Len(), space.Width(), nil)
	for i := 0; i < space.Len(); i++ {
		a, err := p.actionEmbedding(model.Action{Relations: space.Relations[i], Entities: space.Entities[i]}, training)
		if err != nil {
			return nil, nil, err
		}
		x := x2.RawRowView(i)
		row := logits.RawRowView(i)
		for j := range row {
			row[j] = floats.Dot(a.RawRowView(j), x)
		}
	}

	dist, err := nn.MaskedSoftmax(logits, space.Mask)
	if err != nil {
		return nil, nil, err
	}
	return dist, nn.Entropy(dist), nil
}

// actionEmbedding returns [relation, entity] embeddings of action, or the
// relation embeddings only in relation only mode. Entity ids outside the
// entity table are read as padding.
func (p *Policy) actionEmbedding(action model.Action, training bool) (*mat.Dense, error) {
	r, err := p.Transformer.RelationEmbedding.Lookup(action.Relations)
	if err != nil {
		return nil, fmt.Errorf("embed action relations: %w", err)
	}
	r = p.Transformer.Dropout.Forward(p.ec, r, training)
	if p.config.RelationOnly {
		return r, nil
	}

	entities := make([]int, len(action.Entities))
	numEntities := p.Transformer.EntityEmbedding.Num()
	for i, id := range action.Entities {
		if id < numEntities {
			entities[i] = id
		}
	}
	ent, err := p.Transformer.EntityEmbedding.Lookup(entities)
	if err != nil {
		return nil, fmt.Errorf("embed action entities: %w", err)
	}
	ent = p.Transformer.Dropout.Forward(p.ec, ent, training)
	return nn.HConcat(r, ent)
}

// InitializePath starts a new path history from the initial action
// (start relation, source entity) and returns the source encoding.
// In train mode the batch holds NumRollouts consecutive copies of every
// example, so only one source per group is encoded.
func (p *Policy) InitializePath(ctx context.Context, initAction model.Action, queries []int, mode model.Mode) (sourceEncoding *mat.Dense, err error) {
	_, span := p.ec.Tracer.Start(ctx, "policy.InitializePath", trace.WithAttributes(
		attribute.Int("batch", initAction.Len()),
		attribute.String("mode", string(mode)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	n := initAction.Len()
	if n == 0 || len(initAction.Entities) != n || len(queries) != n {
		return nil, helper.NewError("initialize path", fmt.Errorf("%w: %d relations, %d entities, %d queries", ErrShapeMismatch, n, len(initAction.Entities), len(queries)))
	}

	if mode.IsTraining() {
		rollouts := p.config.NumRollouts
		if n%rollouts != 0 {
			return nil, helper.NewError("initialize path", fmt.Errorf("%w: batch %d is not a multiple of %d rollouts", ErrShapeMismatch, n, rollouts))
		}
		sources := make([]int, 0, n/rollouts)
		groupQueries := make([]int, 0, n/rollouts)
		for i := 0; i < n; i += rollouts {
			sources = append(sources, initAction.Entities[i])
			groupQueries = append(groupQueries, queries[i])
		}
		encoded, err := p.encode(sources, groupQueries, mode)
		if err != nil {
			return nil, helper.NewError("encode sources", err)
		}
		if sourceEncoding, err = nn.RepeatRows(encoded, rollouts); err != nil {
			return nil, helper.NewError("expand sources", err)
		}
	} else {
		if sourceEncoding, err = p.encode(initAction.Entities, queries, mode); err != nil {
			return nil, helper.NewError("encode sources", err)
		}
	}

	r0, err := p.Transformer.RelationEmbedding.Lookup(initAction.Relations)
	if err != nil {
		return nil, helper.NewError("embed start relations", err)
	}
	r0 = p.Transformer.Dropout.Forward(p.ec, r0, mode.IsTraining())

	initEmbedding := r0
	if !p.config.RelationOnly {
		if initEmbedding, err = nn.HConcat(r0, sourceEncoding); err != nil {
			return nil, helper.NewError("initial action embedding", err)
		}
	}

	if err := p.path.Reset(initEmbedding); err != nil {
		return nil, helper.NewError("start path", err)
	}
	p.mode = mode
	p.ec.Logger.Debug("initialized path", "batch", n, "mode", mode)

	return sourceEncoding, nil
}

// UpdatePath appends the selected action to the path history. A non nil
// offset first reorders every stored state, row i taking row offset[i].
func (p *Policy) UpdatePath(ctx context.Context, action model.Action, offset []int) (err error) {
	_, span := p.ec.Tracer.Start(ctx, "policy.UpdatePath", trace.WithAttributes(
		attribute.Int("batch", action.Len()),
		attribute.Bool("reindex", offset != nil),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if action.Len() == 0 || len(action.Entities) != action.Len() {
		return helper.NewError("update path", fmt.Errorf("%w: %d relations, %d entities", ErrShapeMismatch, action.Len(), len(action.Entities)))
	}
	if p.path.Len() == 0 {
		return helper.NewError("update path", ErrEmptyPath)
	}

	embedding, err := p.actionEmbedding(action, p.mode.IsTraining())
	if err != nil {
		return helper.NewError("action embedding", err)
	}

	if offset != nil {
		if err := p.path.Reindex(offset); err != nil {
			return helper.NewError("reindex path", err)
		}
	}

	if err := p.path.Append(embedding); err != nil {
		return helper.NewError("advance path", err)
	}
	return nil
}
