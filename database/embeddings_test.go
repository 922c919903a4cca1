package database

import (
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/kgwalker/core/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbedding(t *testing.T, num, dim int) *nn.Embedding {
	t.Helper()
	ec, err := nn.NewExecContext(nn.DeviceCPU, 5, nil, nil)
	require.NoError(t, err, "Expected execution context")
	table := nn.NewEmbedding(ec, num, dim)
	table.ResetXavierUniform(ec)
	return table
}

func TestEmbeddingsNewEmbeddingsDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewEmbeddingsDBHandler", func(t *testing.T) {
		embeddingsDbHandler, err := NewEmbeddingsDBHandler(database, true)
		assert.NoError(t, err, "Expected NewEmbeddingsDBHandler to not return an error")
		require.NotNil(t, embeddingsDbHandler, "Expected NewEmbeddingsDBHandler to return a non-nil instance")
	})

	t.Run("Invalid call NewEmbeddingsDBHandler with nil database", func(t *testing.T) {
		_, err := NewEmbeddingsDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating EmbeddingsDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestEmbeddingsSaveLoad(t *testing.T) {
	database := initDB(t)

	embeddingsDbHandler, err := NewEmbeddingsDBHandler(database, true)
	require.NoError(t, err, "Expected NewEmbeddingsDBHandler to not return an error")

	name := "entity_" + uuid.NewString()
	saved := newTestEmbedding(t, 6, 4)

	t.Run("Save and load restores every row", func(t *testing.T) {
		require.NoError(t, embeddingsDbHandler.SaveEmbedding(name, saved), "Expected SaveEmbedding to not return an error")

		loaded := newTestEmbedding(t, 6, 4)
		loaded.Weight.Zero()
		n, err := embeddingsDbHandler.LoadEmbedding(name, loaded)
		require.NoError(t, err, "Expected LoadEmbedding to not return an error")
		assert.Equal(t, 6, n, "Expected every row to be loaded")

		for id := 0; id < 6; id++ {
			assert.InDeltaSlice(t, saved.Row(id), loaded.Row(id), 1e-6, "Expected row %d to round trip with single precision", id)
		}
	})

	t.Run("Save replaces stored rows", func(t *testing.T) {
		smaller := newTestEmbedding(t, 3, 4)
		require.NoError(t, embeddingsDbHandler.SaveEmbedding(name, smaller), "Expected SaveEmbedding to not return an error")

		n, err := embeddingsDbHandler.LoadEmbedding(name, newTestEmbedding(t, 3, 4))
		require.NoError(t, err, "Expected LoadEmbedding to not return an error")
		assert.Equal(t, 3, n, "Expected only the new rows")
	})

	t.Run("Partial load fails and keeps the table", func(t *testing.T) {
		larger := newTestEmbedding(t, 6, 4)
		before := larger.Row(1)

		_, err := embeddingsDbHandler.LoadEmbedding(name, larger)
		assert.ErrorIs(t, err, nn.ErrDimensionMismatch, "Expected three stored rows to not fill six")
		assert.Equal(t, before, larger.Row(1), "Expected the table to be left unchanged")
	})

	t.Run("Load into a smaller table fails", func(t *testing.T) {
		require.NoError(t, embeddingsDbHandler.SaveEmbedding(name, saved), "Expected SaveEmbedding to not return an error")
		_, err := embeddingsDbHandler.LoadEmbedding(name, newTestEmbedding(t, 2, 4))
		assert.Error(t, err, "Expected rows outside the table to fail")
	})

	t.Run("Load with a different dimension fails", func(t *testing.T) {
		_, err := embeddingsDbHandler.LoadEmbedding(name, newTestEmbedding(t, 6, 3))
		assert.Error(t, err, "Expected dimension mismatch")
	})

	t.Run("Load unknown name fails", func(t *testing.T) {
		_, err := embeddingsDbHandler.LoadEmbedding("unknown_"+uuid.NewString(), newTestEmbedding(t, 6, 4))
		assert.Error(t, err, "Expected missing embedding to fail")
	})

	t.Run("Delete embedding", func(t *testing.T) {
		deleted, err := embeddingsDbHandler.DeleteEmbedding(name)
		require.NoError(t, err, "Expected DeleteEmbedding to not return an error")
		assert.Equal(t, 6, deleted, "Expected every row to be deleted")
	})
}

func TestEmbeddingsSelectNearestRows(t *testing.T) {
	database := initDB(t)

	embeddingsDbHandler, err := NewEmbeddingsDBHandler(database, true)
	require.NoError(t, err, "Expected NewEmbeddingsDBHandler to not return an error")

	name := "relation_" + uuid.NewString()
	table := newTestEmbedding(t, 5, 3)
	require.NoError(t, table.SetRow(1, []float64{1, 0, 0}), "Expected row to be set")
	require.NoError(t, table.SetRow(2, []float64{0.9, 0.1, 0}), "Expected row to be set")
	require.NoError(t, table.SetRow(3, []float64{0, 1, 0}), "Expected row to be set")
	require.NoError(t, table.SetRow(4, []float64{0, 0, 1}), "Expected row to be set")
	require.NoError(t, embeddingsDbHandler.SaveEmbedding(name, table), "Expected SaveEmbedding to not return an error")

	t.Run("Rows are ranked by cosine similarity", func(t *testing.T) {
		nearest, err := embeddingsDbHandler.SelectNearestRows(name, []float64{1, 0, 0}, 2)
		require.NoError(t, err, "Expected SelectNearestRows to not return an error")
		require.Len(t, nearest, 2, "Expected limit rows")
		assert.Equal(t, 1, nearest[0].RowID, "Expected identical row first")
		assert.InDelta(t, 1.0, nearest[0].Similarity, 1e-6, "Expected similarity one")
		assert.Equal(t, 2, nearest[1].RowID, "Expected close row second")
	})

	t.Run("Other dimensions are not compared", func(t *testing.T) {
		nearest, err := embeddingsDbHandler.SelectNearestRows(name, []float64{1, 0}, 2)
		require.NoError(t, err, "Expected SelectNearestRows to not return an error")
		assert.Empty(t, nearest, "Expected no rows of another dimension")
	})
}
