package policy

import (
	"context"
	"math"
	"testing"

	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/mat"
)

func newTestPolicy(t *testing.T, config model.PolicyConfig, tracer trace.Tracer) (*Policy, *graph.KnowledgeGraph) {
	t.Helper()
	kg := newTestGraph(t)
	p, err := NewPolicy(newTestContext(t, tracer), config, kg)
	require.NoError(t, err, "Expected policy to be created")
	return p, kg
}

// startWalk initializes the path for sources and returns the first step observation
func startWalk(t *testing.T, p *Policy, sources, queries, targets []int, mode model.Mode) *model.Observation {
	t.Helper()
	init := model.Action{Relations: repeatInt(model.StartRelation, len(sources)), Entities: sources}
	encoding, err := p.InitializePath(context.Background(), init, queries, mode)
	require.NoError(t, err, "Expected path to be initialized")
	return &model.Observation{
		Source:         sources,
		SourceEncoding: encoding,
		Query:          queries,
		Target:         targets,
		FirstStep:      true,
		LastRelation:   repeatInt(model.StartRelation, len(sources)),
	}
}

func assertDistribution(t *testing.T, dist, mask *mat.Dense) {
	t.Helper()
	r, _ := dist.Dims()
	for i := 0; i < r; i++ {
		sum := 0.0
		for j, v := range dist.RawRowView(i) {
			sum += v
			if mask.At(i, j) == 0 {
				assert.Equal(t, 0.0, v, "Expected no mass on masked action")
			}
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "Expected row %d to sum to one", i)
	}
}

func TestNewPolicy(t *testing.T) {
	t.Run("Invalid configuration", func(t *testing.T) {
		config := testPolicyConfig()
		config.RelationOnly = true
		config.RelationOnlyInPath = true

		_, err := NewPolicy(newTestContext(t, nil), config, newTestGraph(t))
		assert.Error(t, err, "Expected exclusive feature modes to fail")
	})

	t.Run("Input width follows the feature mode", func(t *testing.T) {
		config := testPolicyConfig()
		p, _ := newTestPolicy(t, config, nil)
		assert.Equal(t, 6+8+8, p.W1.InDim(), "Expected [E, H, Q]")

		config.RelationOnlyInPath = true
		p, _ = newTestPolicy(t, config, nil)
		assert.Equal(t, 6+2*8+8, p.W1.InDim(), "Expected [E, H, E_s, Q]")

		config.RelationOnlyInPath = false
		config.RelationOnly = true
		p, _ = newTestPolicy(t, config, nil)
		assert.Equal(t, 6+8, p.W1.InDim(), "Expected [H, Q]")
		assert.Equal(t, 8, p.W2.OutDim(), "Expected relation only action size")
	})
}

func TestInitializePath(t *testing.T) {
	t.Run("Train mode encodes one source per rollout group", func(t *testing.T) {
		p, _ := newTestPolicy(t, testPolicyConfig(), nil)
		init := model.Action{Relations: repeatInt(model.StartRelation, 4), Entities: []int{entityA, entityA, entityB, entityB}}

		encoding, err := p.InitializePath(context.Background(), init, repeatInt(relation1, 4), model.ModeTrain)
		require.NoError(t, err, "Expected path to be initialized")

		assert.Equal(t, encoding.RawRowView(0), encoding.RawRowView(1), "Expected rollouts of one example to share the encoding")
		assert.Equal(t, encoding.RawRowView(2), encoding.RawRowView(3), "Expected rollouts of one example to share the encoding")
		assert.Equal(t, 1, p.Path().Len(), "Expected one path entry")
	})

	t.Run("Train batch must be a multiple of the rollouts", func(t *testing.T) {
		p, _ := newTestPolicy(t, testPolicyConfig(), nil)
		init := model.Action{Relations: repeatInt(model.StartRelation, 3), Entities: repeatInt(entityA, 3)}

		_, err := p.InitializePath(context.Background(), init, repeatInt(relation1, 3), model.ModeTrain)
		assert.ErrorIs(t, err, ErrShapeMismatch, "Expected rollout mismatch")
	})

	t.Run("Eval mode encodes every row", func(t *testing.T) {
		p, _ := newTestPolicy(t, testPolicyConfig(), nil)
		init := model.Action{Relations: repeatInt(model.StartRelation, 3), Entities: []int{entityA, entityB, entityC}}

		encoding, err := p.InitializePath(context.Background(), init, repeatInt(relation1, 3), model.ModeEval)
		require.NoError(t, err, "Expected path to be initialized")
		r, c := encoding.Dims()
		assert.Equal(t, []int{3, 8}, []int{r, c}, "Expected batch x entity dim")
	})

	t.Run("Mismatched inputs fail", func(t *testing.T) {
		p, _ := newTestPolicy(t, testPolicyConfig(), nil)
		init := model.Action{Relations: repeatInt(model.StartRelation, 2), Entities: []int{entityA}}

		_, err := p.InitializePath(context.Background(), init, repeatInt(relation1, 2), model.ModeEval)
		assert.ErrorIs(t, err, ErrShapeMismatch, "Expected shape mismatch")
	})
}

func TestTransit(t *testing.T) {
	batch := []int{entityA, entityB, entityC, entityD, entityE, entityB, entityA}
	queries := []int{relation1, relation2, relation1, relation2, relation1, relation1, relation2}
	targets := []int{entityB, entityC, entityD, entityE, entityA, entityC, entityD}

	t.Run("First step distribution respects the mask", func(t *testing.T) {
		p, kg := newTestPolicy(t, testPolicyConfig(), nil)
		obs := startWalk(t, p, batch, queries, targets, model.ModeEval)

		result, err := p.Transit(context.Background(), batch, obs, model.ModeEval, TransitOptions{})
		require.NoError(t, err, "Expected transit to succeed")
		require.Len(t, result.Outcomes, 1, "Expected one outcome without bucketing")
		assert.Nil(t, result.InvOffset, "Expected no inverse offset without bucketing")

		out := result.Outcomes[0]
		assertDistribution(t, out.Dist, out.Space.Mask)
		for i := range batch {
			for j := range out.Space.Relations[i] {
				if out.Space.Relations[i][j] == queries[i] && out.Space.Entities[i][j] == targets[i] {
					assert.Equal(t, 0.0, out.Dist.At(i, j), "Expected ground truth edge to get no mass")
				}
			}
			valid := mat.Sum(out.Space.Mask.Slice(i, i+1, 0, out.Space.Width()))
			assert.GreaterOrEqual(t, result.Entropy[i], 0.0, "Expected non negative entropy")
			assert.LessOrEqual(t, result.Entropy[i], math.Log(valid)+1e-9, "Expected entropy at most log of valid actions")
		}

		again, err := kg.ActionSpace([]int{entityA})
		require.NoError(t, err, "Expected action space")
		assert.Equal(t, 5.0, mat.Sum(again.Mask), "Expected store mask to be untouched")
	})

	t.Run("Buckets cover the batch exactly once", func(t *testing.T) {
		p, _ := newTestPolicy(t, testPolicyConfig(), nil)
		obs := startWalk(t, p, batch, queries, targets, model.ModeEval)
		obs.FirstStep = false

		result, err := p.Transit(context.Background(), batch, obs, model.ModeEval, TransitOptions{Bucketing: true})
		require.NoError(t, err, "Expected transit to succeed")
		require.Len(t, result.Outcomes, 2, "Expected two buckets")
		assert.Equal(t, 4, result.Outcomes[0].Space.Len(), "Expected a, c, d, a in the first bucket")
		assert.Equal(t, 3, result.Outcomes[1].Space.Len(), "Expected b, e, b in the second bucket")

		var rows [][]int
		for _, o := range result.Outcomes {
			assertDistribution(t, o.Dist, o.Space.Mask)
			rows = append(rows, o.Space.Entities...)
		}
		require.Len(t, result.InvOffset, len(batch), "Expected one inverse offset per row")
		for k, i := range result.InvOffset {
			assert.Equal(t, batch[k], rows[i][0], "Expected row %d to be the action space of entity %d", k, batch[k])
		}
	})

	t.Run("Bucketed and plain transit agree", func(t *testing.T) {
		p, _ := newTestPolicy(t, testPolicyConfig(), nil)
		obs := startWalk(t, p, batch, queries, targets, model.ModeEval)
		obs.FirstStep = false

		plain, err := p.Transit(context.Background(), batch, obs, model.ModeEval, TransitOptions{})
		require.NoError(t, err, "Expected plain transit to succeed")
		merged, err := p.Transit(context.Background(), batch, obs, model.ModeEval, TransitOptions{Bucketing: true, Merge: true})
		require.NoError(t, err, "Expected merged transit to succeed")

		require.Len(t, merged.Outcomes, 1, "Expected a single merged outcome")
		assert.Nil(t, merged.InvOffset, "Expected no inverse offset after merge")
		assert.InDeltaSlice(t, plain.Entropy, merged.Entropy, 1e-9, "Expected equal entropies")

		probabilities := func(o Outcome, i int) map[model.Neighbor]float64 {
			out := make(map[model.Neighbor]float64)
			for j := range o.Space.Relations[i] {
				if o.Space.Mask.At(i, j) == 1 {
					out[model.Neighbor{Relation: o.Space.Relations[i][j], Entity: o.Space.Entities[i][j]}] = o.Dist.At(i, j)
				}
			}
			return out
		}
		for i := range batch {
			want := probabilities(plain.Outcomes[0], i)
			got := probabilities(merged.Outcomes[0], i)
			require.Len(t, got, len(want), "Expected same valid actions for row %d", i)
			for action, v := range want {
				assert.InDelta(t, v, got[action], 1e-9, "Expected same probability for %v in row %d", action, i)
			}
		}
	})

	t.Run("Relation only in path broadcasts the source encoding", func(t *testing.T) {
		config := testPolicyConfig()
		config.RelationOnlyInPath = true
		p, _ := newTestPolicy(t, config, nil)

		sources := []int{entityA, entityB}
		obs := startWalk(t, p, sources, []int{relation1, relation2}, []int{entityB, entityC}, model.ModeEval)
		require.NoError(t, p.UpdatePath(context.Background(), model.Action{
			Relations: []int{model.NoOpRelation, model.NoOpRelation, model.NoOpRelation, model.NoOpRelation},
			Entities:  []int{entityA, entityA, entityB, entityB},
		}, []int{0, 0, 1, 1}), "Expected path to expand")

		expanded := &model.Observation{
			Source:         []int{entityA, entityA, entityB, entityB},
			SourceEncoding: obs.SourceEncoding,
			Query:          []int{relation1, relation1, relation2, relation2},
			Target:         []int{entityB, entityB, entityC, entityC},
			LastRelation:   repeatInt(model.NoOpRelation, 4),
		}
		result, err := p.Transit(context.Background(), expanded.Source, expanded, model.ModeEval, TransitOptions{Bucketing: true, Merge: true})
		require.NoError(t, err, "Expected transit to succeed")
		assertDistribution(t, result.Outcomes[0].Dist, result.Outcomes[0].Space.Mask)

		require.NoError(t, p.UpdatePath(context.Background(), model.Action{
			Relations: repeatInt(model.NoOpRelation, 3),
			Entities:  []int{entityA, entityA, entityB},
		}, []int{0, 1, 2}), "Expected path to shrink")
		odd := expanded.Slice([]int{0, 1, 2})
		_, err = p.Transit(context.Background(), odd.Source, odd, model.ModeEval, TransitOptions{})
		assert.ErrorIs(t, err, ErrShapeMismatch, "Expected non divisible expansion to fail")
	})

	t.Run("Relation only mode", func(t *testing.T) {
		config := testPolicyConfig()
		config.RelationOnly = true
		p, _ := newTestPolicy(t, config, nil)
		obs := startWalk(t, p, batch, queries, targets, model.ModeEval)

		result, err := p.Transit(context.Background(), batch, obs, model.ModeEval, TransitOptions{Bucketing: true})
		require.NoError(t, err, "Expected transit to succeed")
		for _, o := range result.Outcomes {
			assertDistribution(t, o.Dist, o.Space.Mask)
		}
	})

	t.Run("Training and inference graphs", func(t *testing.T) {
		config := testPolicyConfig()
		config.Inference = true
		p, _ := newTestPolicy(t, config, nil)

		sources := []int{entityA, entityA, entityC, entityC}
		obs := startWalk(t, p, sources, repeatInt(relation1, 4), []int{entityB, entityB, entityD, entityD}, model.ModeTrain)
		obs.FirstStep = false
		result, err := p.Transit(context.Background(), sources, obs, model.ModeTrain, TransitOptions{Bucketing: true, Merge: true})
		require.NoError(t, err, "Expected training transit to succeed")
		assertDistribution(t, result.Outcomes[0].Dist, result.Outcomes[0].Space.Mask)

		obs = startWalk(t, p, sources, repeatInt(relation1, 4), []int{entityB, entityB, entityD, entityD}, model.ModeEval)
		obs.FirstStep = false
		result, err = p.Transit(context.Background(), sources, obs, model.ModeEval, TransitOptions{})
		require.NoError(t, err, "Expected inference transit to succeed")
		assertDistribution(t, result.Outcomes[0].Dist, result.Outcomes[0].Space.Mask)
	})

	t.Run("Invalid requests", func(t *testing.T) {
		p, _ := newTestPolicy(t, testPolicyConfig(), nil)
		obs := startWalk(t, p, batch, queries, targets, model.ModeEval)

		_, err := p.Transit(context.Background(), batch, obs, model.ModeEval, TransitOptions{Bucketing: true, CollapseEntities: true})
		assert.ErrorIs(t, err, ErrNotImplemented, "Expected collapsing entities to be unsupported")

		_, err = p.Transit(context.Background(), batch[:3], obs, model.ModeEval, TransitOptions{})
		assert.ErrorIs(t, err, ErrShapeMismatch, "Expected observation batch mismatch")
	})
}

func TestUpdatePath(t *testing.T) {
	t.Run("Each update appends one entry", func(t *testing.T) {
		p, _ := newTestPolicy(t, testPolicyConfig(), nil)
		startWalk(t, p, []int{entityA, entityB}, []int{relation1, relation1}, []int{entityC, entityC}, model.ModeEval)

		require.NoError(t, p.UpdatePath(context.Background(), model.Action{Relations: []int{relation1, relation2}, Entities: []int{entityB, entityC}}, nil), "Expected update to succeed")
		require.NoError(t, p.UpdatePath(context.Background(), model.Action{Relations: []int{relation2, relation2}, Entities: []int{entityC, entityC}}, []int{1, 0}), "Expected update to succeed")
		assert.Equal(t, 3, p.Path().Len(), "Expected three entries")
	})

	t.Run("Out of vocabulary entities embed as padding", func(t *testing.T) {
		p, kg := newTestPolicy(t, testPolicyConfig(), nil)
		startWalk(t, p, []int{entityA}, []int{relation1}, []int{entityC}, model.ModeEval)

		action := model.Action{Relations: []int{relation1}, Entities: []int{kg.NumEntities() + 3}}
		require.NoError(t, p.UpdatePath(context.Background(), action, nil), "Expected update to succeed")
		assert.Equal(t, kg.NumEntities()+3, action.Entities[0], "Expected caller action to be unchanged")
	})

	t.Run("Update before initialize fails", func(t *testing.T) {
		p, _ := newTestPolicy(t, testPolicyConfig(), nil)
		err := p.UpdatePath(context.Background(), model.Action{Relations: []int{relation1}, Entities: []int{entityB}}, nil)
		assert.ErrorIs(t, err, ErrEmptyPath, "Expected empty path error")
	})

	t.Run("Batch must match the reordered path", func(t *testing.T) {
		p, _ := newTestPolicy(t, testPolicyConfig(), nil)
		startWalk(t, p, []int{entityA, entityB}, []int{relation1, relation1}, []int{entityC, entityC}, model.ModeEval)

		err := p.UpdatePath(context.Background(), model.Action{Relations: []int{relation1}, Entities: []int{entityB}}, nil)
		assert.Error(t, err, "Expected batch mismatch")
	})
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	p, _ := newTestPolicy(t, testPolicyConfig(), provider.Tracer("kgwalker-test"))

	batch := []int{entityA, entityB}
	obs := startWalk(t, p, batch, []int{relation1, relation1}, []int{entityC, entityC}, model.ModeEval)
	_, err := p.Transit(context.Background(), batch, obs, model.ModeEval, TransitOptions{Bucketing: true})
	require.NoError(t, err, "Expected transit to succeed")
	require.NoError(t, p.UpdatePath(context.Background(), model.Action{Relations: []int{relation1, relation1}, Entities: []int{entityB, entityC}}, nil), "Expected update to succeed")

	counts := make(map[string]int)
	for _, span := range recorder.Ended() {
		counts[span.Name()]++
	}
	assert.Equal(t, 1, counts["policy.InitializePath"], "Expected one initialize span")
	assert.Equal(t, 1, counts["policy.Transit"], "Expected one transit span")
	assert.Equal(t, 2, counts["policy.bucket"], "Expected one span per bucket")
	assert.Equal(t, 1, counts["policy.UpdatePath"], "Expected one update span")
}
