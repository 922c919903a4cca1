package retrieval

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/kgwalker/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyStrategyRetrieve(t *testing.T) {
	kg := initGraph(t)
	entities, relations := initTables(t, kg, 4)
	germany := entityID(t, kg, "germany")
	eu := entityID(t, kg, "eu")

	walker := &fakeWalker{answers: []int{eu, germany, germany, germany}}
	strategy := NewPolicyStrategy(NewEngine(kg, walker, nil, entities, relations, "entity"))

	t.Run("Answers are sorted and cut to top k", func(t *testing.T) {
		config := model.DefaultQueryConfig()
		config.NumRollouts = 4
		config.TopK = 1
		results, err := strategy.Retrieve(context.Background(), entityID(t, kg, "berlin"), relationID(t, kg, "capital_of"), &config)
		require.NoError(t, err, "Expected Retrieve to not return an error")
		require.Len(t, results, 1, "Expected top k results")
		assert.Equal(t, germany, results[0].Entity, "Expected most frequent answer first")
		assert.InDelta(t, 0.75, results[0].Score, 1e-9, "Expected three of four walks")
	})
}

func TestMultiHopStrategyRetrieve(t *testing.T) {
	kg := initGraph(t)
	entities, relations := initTables(t, kg, 4)
	strategy := NewMultiHopStrategy(NewEngine(kg, nil, nil, entities, relations, "entity"))

	t.Run("Closest entities first", func(t *testing.T) {
		config := model.DefaultQueryConfig()
		config.MaxHops = 3
		results, err := strategy.Retrieve(context.Background(), entityID(t, kg, "berlin"), relationID(t, kg, "capital_of"), &config)
		require.NoError(t, err, "Expected Retrieve to not return an error")
		require.Len(t, results, 3, "Expected germany, eu and europe")
		assert.Equal(t, "germany", results[0].Name, "Expected one hop first")
		assert.Equal(t, "eu", results[1].Name, "Expected two hops second")
		assert.Equal(t, "europe", results[2].Name, "Expected three hops last")
	})
}

func TestHybridStrategyRetrieve(t *testing.T) {
	kg := initGraph(t)
	entities, relations := initTables(t, kg, 3)
	berlin := entityID(t, kg, "berlin")
	capitalOf := relationID(t, kg, "capital_of")
	germany := entityID(t, kg, "germany")
	eu := entityID(t, kg, "eu")

	t.Run("Policy and graph scores are combined", func(t *testing.T) {
		walker := &fakeWalker{answers: []int{eu, eu, germany, eu}}
		strategy := NewHybridStrategy(NewEngine(kg, walker, nil, entities, relations, "entity"))

		config := model.DefaultQueryConfig()
		config.NumRollouts = 4
		config.MaxHops = 2
		results, err := strategy.Retrieve(context.Background(), berlin, capitalOf, &config)
		require.NoError(t, err, "Expected Retrieve to not return an error")
		require.Len(t, results, 2, "Expected germany and eu")

		assert.Equal(t, eu, results[0].Entity, "Expected the frequent policy answer first")
		assert.InDelta(t, 0.6*0.75+0.2*0.5, results[0].Score, 1e-9, "Expected weighted policy and graph score")
		assert.Equal(t, 2, results[0].GraphDistance, "Expected graph distance to be kept")
		assert.InDelta(t, 0.75, results[0].PolicyScore, 1e-9, "Expected policy score to be kept")
		assert.Equal(t, "hybrid", results[0].RetrievalMethod, "Expected hybrid method")

		assert.Equal(t, germany, results[1].Entity, "Expected germany second")
		assert.InDelta(t, 0.6*0.25+0.2*1, results[1].Score, 1e-9, "Expected weighted policy and graph score")
	})

	t.Run("Zero policy weight skips the walks", func(t *testing.T) {
		walker := &fakeWalker{answers: []int{eu}}
		strategy := NewHybridStrategy(NewEngine(kg, walker, nil, entities, relations, "entity"))

		config := model.DefaultQueryConfig()
		config.PolicyWeight = 0
		config.MaxHops = 1
		results, err := strategy.Retrieve(context.Background(), berlin, capitalOf, &config)
		require.NoError(t, err, "Expected Retrieve to not return an error")
		assert.Zero(t, walker.calls, "Expected no rollout")
		require.Len(t, results, 1, "Expected only the direct neighbor")
		assert.Equal(t, germany, results[0].Entity, "Expected germany")
	})

	t.Run("Vector scores from the embedding store", func(t *testing.T) {
		embeddings := initHandlers(t)
		setTableRows(t, kg, entities, map[string][]float64{
			"berlin":  {1, 0, 0},
			"germany": {1, 1, 0},
			"eu":      {0, 0, 1},
			"europe":  {0, 0, -1},
			"paris":   {0, 0, 1},
			"france":  {-1, -1, 0},
		})
		require.NoError(t, relations.SetRow(capitalOf, []float64{0, 1, 0}), "Expected row to be set")
		name := "entity_" + uuid.NewString()
		require.NoError(t, embeddings.SaveEmbedding(name, entities), "Expected SaveEmbedding to not return an error")

		strategy := NewHybridStrategy(NewEngine(kg, nil, embeddings, entities, relations, name))
		config := model.QueryConfig{TopK: 1, VectorWeight: 1, SimilarityThreshold: 0.5}
		results, err := strategy.Retrieve(context.Background(), berlin, capitalOf, &config)
		require.NoError(t, err, "Expected Retrieve to not return an error")
		require.Len(t, results, 1, "Expected top k results")
		assert.Equal(t, germany, results[0].Entity, "Expected germany")
		assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6, "Expected similarity to be kept")
	})
}
