package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/siherrmann/kgwalker/helper"
)

// IndexName returns the name of the vector index of the embedding table name
func IndexName(name string) string {
	return "idx_embeddings_" + name
}

// ChangeIndexType changes the vector index of the embedding table name between HNSW and IVFFlat.
// The index is a partial expression index over the rows of name cast to their stored dimension.
// indexType: "hnsw" or "ivfflat"
// params: optional parameters for index creation
//   - For HNSW: "m" (int, default 16), "ef_construction" (int, default 64)
//   - For IVFFlat: "lists" (int, default 100)
func (h *EmbeddingsDBHandler) ChangeIndexType(ctx context.Context, name string, indexType string, params map[string]interface{}) error {
	if indexType != "hnsw" && indexType != "ivfflat" {
		return helper.NewError("change index type", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType))
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var dims int
	err := h.db.Instance.QueryRowContext(ctx,
		`SELECT vector_dims(embedding) FROM embeddings WHERE name = $1 LIMIT 1;`,
		name,
	).Scan(&dims)
	if err != nil {
		return helper.NewError("select dimension", err)
	}

	index := pq.QuoteIdentifier(IndexName(name))

	_, err = h.db.Instance.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s;`, index))
	if err != nil {
		return helper.NewError("drop index", err)
	}

	h.db.Logger.Info("Dropped existing vector index", "name", name)

	var method string
	switch indexType {
	case "hnsw":
		m := 16
		efConstruction := 64

		if mVal, ok := params["m"].(int); ok {
			m = mVal
		}
		if efVal, ok := params["ef_construction"].(int); ok {
			efConstruction = efVal
		}

		method = fmt.Sprintf(`hnsw ((embedding::vector(%d)) vector_cosine_ops) WITH (m = %d, ef_construction = %d)`, dims, m, efConstruction)

	default:
		lists := 100
		if listsVal, ok := params["lists"].(int); ok {
			lists = listsVal
		}

		method = fmt.Sprintf(`ivfflat ((embedding::vector(%d)) vector_cosine_ops) WITH (lists = %d)`, dims, lists)
	}

	createIndexSQL := fmt.Sprintf(
		`CREATE INDEX %s ON embeddings USING %s WHERE name = %s;`,
		index, method, pq.QuoteLiteral(name),
	)
	_, err = h.db.Instance.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	h.db.Logger.Info(fmt.Sprintf("Created %s index with params: %v", indexType, params), "name", name)

	return nil
}
