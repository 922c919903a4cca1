package retrieval

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/core/nn"
	"github.com/siherrmann/kgwalker/database"
	"github.com/siherrmann/kgwalker/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	t.Run("Create new engine", func(t *testing.T) {
		kg := initGraph(t)
		entities, relations := initTables(t, kg, 4)
		engine := NewEngine(kg, &fakeWalker{answers: []int{model.NoOpEntity}}, nil, entities, relations, "entity")
		require.NotNil(t, engine, "Expected NewEngine to return a non-nil instance")
		assert.NotNil(t, engine.graph, "Expected engine to have a graph")
		assert.Nil(t, engine.nearest, "Expected engine without embedding store")
	})
}

func TestPolicyRetrieve(t *testing.T) {
	kg := initGraph(t)
	entities, relations := initTables(t, kg, 4)
	berlin := entityID(t, kg, "berlin")
	germany := entityID(t, kg, "germany")
	eu := entityID(t, kg, "eu")

	t.Run("Scores are the share of walks ending on an entity", func(t *testing.T) {
		walker := &fakeWalker{answers: []int{germany, germany, eu, model.NoOpEntity}}
		engine := NewEngine(kg, walker, nil, entities, relations, "entity")

		config := model.DefaultQueryConfig()
		config.NumRollouts = 4
		results, err := engine.PolicyRetrieve(context.Background(), berlin, relationID(t, kg, "capital_of"), &config)
		require.NoError(t, err, "Expected PolicyRetrieve to not return an error")
		require.Len(t, results, 2, "Expected reserved answers to be skipped")

		assert.Equal(t, germany, results[0].Entity, "Expected first answer in walk order")
		assert.Equal(t, "germany", results[0].Name, "Expected answer name")
		assert.InDelta(t, 0.5, results[0].PolicyScore, 1e-9, "Expected two of four walks")
		assert.InDelta(t, 0.25, results[1].Score, 1e-9, "Expected one of four walks")
		assert.Equal(t, "policy", results[1].RetrievalMethod, "Expected policy method")
		assert.Equal(t, model.ModeEval, walker.mode, "Expected answers to be ranked outside train mode")
	})

	t.Run("Rollout count needs no whole groups", func(t *testing.T) {
		walker := &fakeWalker{answers: []int{germany, eu, germany}}
		engine := NewEngine(kg, walker, nil, entities, relations, "entity")

		config := model.DefaultQueryConfig()
		config.NumRollouts = 3
		results, err := engine.PolicyRetrieve(context.Background(), berlin, relationID(t, kg, "capital_of"), &config)
		require.NoError(t, err, "Expected an odd rollout count to succeed")
		require.Len(t, results, 2, "Expected two distinct answers")
		assert.InDelta(t, 2.0/3.0, results[0].Score, 1e-9, "Expected two of three walks")
		assert.False(t, walker.mode.IsTraining(), "Expected a non train mode")
	})

	t.Run("Rollouts must be positive", func(t *testing.T) {
		engine := NewEngine(kg, &fakeWalker{answers: []int{germany}}, nil, entities, relations, "entity")
		config := model.DefaultQueryConfig()
		config.NumRollouts = 0
		_, err := engine.PolicyRetrieve(context.Background(), berlin, relationID(t, kg, "capital_of"), &config)
		assert.Error(t, err, "Expected zero rollouts to fail")
	})
}

func TestGraphRetrieve(t *testing.T) {
	kg := initGraph(t)
	entities, relations := initTables(t, kg, 4)
	engine := NewEngine(kg, &fakeWalker{answers: []int{model.NoOpEntity}}, nil, entities, relations, "entity")
	berlin := entityID(t, kg, "berlin")

	t.Run("Entities within max hops", func(t *testing.T) {
		config := model.DefaultQueryConfig()
		config.MaxHops = 2
		results, err := engine.GraphRetrieve(context.Background(), berlin, &config)
		require.NoError(t, err, "Expected GraphRetrieve to not return an error")

		distances := make(map[string]int)
		for _, r := range results {
			distances[r.Name] = r.GraphDistance
			assert.InDelta(t, 1/float64(r.GraphDistance), r.Score, 1e-9, "Expected score to fall with distance")
		}
		assert.Equal(t, 1, distances["germany"], "Expected germany one hop away")
		assert.Equal(t, 2, distances["eu"], "Expected eu two hops away")
		assert.NotContains(t, distances, "europe", "Expected europe beyond max hops")
		assert.NotContains(t, distances, "berlin", "Expected source to be skipped")
	})

	t.Run("Cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		config := model.DefaultQueryConfig()
		_, err := engine.GraphRetrieve(ctx, berlin, &config)
		assert.Error(t, err, "Expected cancelled context to fail")
	})
}

func setTableRows(t *testing.T, kg *graph.KnowledgeGraph, table *nn.Embedding, rows map[string][]float64) {
	t.Helper()
	for name, row := range rows {
		require.NoError(t, table.SetRow(entityID(t, kg, name), row), "Expected row to be set")
	}
}

func TestVectorRetrieve(t *testing.T) {
	embeddings := initHandlers(t)
	kg := initGraph(t)
	entities, relations := initTables(t, kg, 3)

	setTableRows(t, kg, entities, map[string][]float64{
		"berlin":  {1, 0, 0},
		"germany": {1, 1, 0},
		"eu":      {0, 0, 1},
		"europe":  {0, 0, -1},
		"paris":   {0, 0, 1},
		"france":  {-1, -1, 0},
	})
	require.NoError(t, entities.SetRow(model.NoOpEntity, []float64{1, 1, 0}), "Expected row to be set")
	capitalOf := relationID(t, kg, "capital_of")
	require.NoError(t, relations.SetRow(capitalOf, []float64{0, 1, 0}), "Expected row to be set")

	name := "entity_" + uuid.NewString()
	require.NoError(t, embeddings.SaveEmbedding(name, entities), "Expected SaveEmbedding to not return an error")

	engine := NewEngine(kg, &fakeWalker{answers: []int{model.NoOpEntity}}, embeddings, entities, relations, name)
	berlin := entityID(t, kg, "berlin")

	t.Run("Nearest entity to source plus query", func(t *testing.T) {
		config := model.DefaultQueryConfig()
		config.TopK = 2
		results, err := engine.VectorRetrieve(context.Background(), berlin, capitalOf, &config)
		require.NoError(t, err, "Expected VectorRetrieve to not return an error")
		require.NotEmpty(t, results, "Expected results")
		assert.LessOrEqual(t, len(results), 2, "Expected at most top k results")

		assert.Equal(t, "germany", results[0].Name, "Expected translated source to land on germany")
		assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6, "Expected similarity one")
		for _, r := range results {
			assert.NotEqual(t, berlin, r.Entity, "Expected source to be skipped")
			assert.NotEqual(t, model.NoOpEntity, r.Entity, "Expected reserved rows to be skipped")
		}
	})

	t.Run("Similarity threshold", func(t *testing.T) {
		config := model.DefaultQueryConfig()
		config.SimilarityThreshold = 0.5
		results, err := engine.VectorRetrieve(context.Background(), berlin, capitalOf, &config)
		require.NoError(t, err, "Expected VectorRetrieve to not return an error")
		require.Len(t, results, 1, "Expected only germany above the threshold")
		assert.Equal(t, "germany", results[0].Name, "Expected germany")
	})

	t.Run("Without embedding store", func(t *testing.T) {
		config := model.DefaultQueryConfig()
		_, err := NewEngine(kg, nil, nil, entities, relations, name).VectorRetrieve(context.Background(), berlin, capitalOf, &config)
		assert.Error(t, err, "Expected missing store to fail")
	})

	t.Run("Unknown relation", func(t *testing.T) {
		config := model.DefaultQueryConfig()
		_, err := engine.VectorRetrieve(context.Background(), berlin, kg.NumRelations(), &config)
		assert.ErrorIs(t, err, nn.ErrDimensionMismatch, "Expected relation outside the table to fail")
	})
}

var _ NearestRows = (*database.EmbeddingsDBHandler)(nil)
