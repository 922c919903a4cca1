package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/kgwalker/core/nn"
	"github.com/siherrmann/kgwalker/helper"
	loadSql "github.com/siherrmann/kgwalker/sql"
)

// EmbeddingsDBHandlerFunctions defines the interface for Embeddings database operations.
type EmbeddingsDBHandlerFunctions interface {
	SaveEmbedding(name string, table *nn.Embedding) error
	LoadEmbedding(name string, table *nn.Embedding) (int, error)
	SelectNearestRows(name string, vector []float64, limit int) ([]*NearestRow, error)
	DeleteEmbedding(name string) (int, error)
	ChangeIndexType(ctx context.Context, name string, indexType string, params map[string]interface{}) error
}

// NearestRow is an embedding row ranked by cosine similarity
type NearestRow struct {
	RowID      int     `json:"row_id"`
	Similarity float64 `json:"similarity"`
}

// EmbeddingsDBHandler stores embedding tables as pgvector rows, one row per id
type EmbeddingsDBHandler struct {
	db *helper.Database
}

// NewEmbeddingsDBHandler creates a new embeddings database handler.
// It initializes the database connection and loads embedding-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEmbeddingsDBHandler(db *helper.Database, force bool) (*EmbeddingsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	embeddingsDbHandler := &EmbeddingsDBHandler{
		db: db,
	}

	err := loadSql.Init(embeddingsDbHandler.db.Instance)
	if err != nil {
		return nil, helper.NewError("init extensions", err)
	}

	err = loadSql.LoadEmbeddingsSql(embeddingsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load embeddings sql", err)
	}

	err = embeddingsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EmbeddingsDBHandler")

	return embeddingsDbHandler, nil
}

// CreateTable creates the 'embeddings' table in the database.
// If the table already exists, it does not create it again.
func (h *EmbeddingsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_embeddings();`)
	if err != nil {
		log.Panicf("error initializing embeddings table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table embeddings")

	return nil
}

// SaveEmbedding replaces the stored rows of name with every row of table.
// Values are stored with single precision.
func (h *EmbeddingsDBHandler) SaveEmbedding(name string, table *nn.Embedding) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `SELECT delete_embedding($1)`, name)
	if err != nil {
		return helper.NewError("delete embedding", err)
	}

	stmt, err := tx.PrepareContext(ctx, `SELECT upsert_embedding_row($1, $2, $3)`)
	if err != nil {
		return helper.NewError("prepare", err)
	}
	defer stmt.Close()

	for id := 0; id < table.Num(); id++ {
		_, err := stmt.ExecContext(ctx, name, id, pgvector.NewVector(toFloat32(table.Row(id))))
		if err != nil {
			return helper.NewError(fmt.Sprintf("insert row %d", id), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit", err)
	}

	h.db.Logger.Info("Saved embedding", "name", name, "rows", table.Num(), "dim", table.Dim())

	return nil
}

// LoadEmbedding overwrites the rows of table with the stored rows of name.
// The stored rows must cover the table exactly, otherwise table is left unchanged.
// It returns the number of rows loaded.
func (h *EmbeddingsDBHandler) LoadEmbedding(name string, table *nn.Embedding) (int, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_embedding_rows($1)`,
		name,
	)
	if err != nil {
		return 0, helper.NewError("query", err)
	}
	defer rows.Close()

	stored := make(map[int][]float64, table.Num())
	for rows.Next() {
		var id int
		var vector pgvector.Vector
		if err := rows.Scan(&id, &vector); err != nil {
			return 0, helper.NewError("scan", err)
		}
		if id < 0 || id >= table.Num() {
			return 0, helper.NewError("load embedding", fmt.Errorf("%w: row %d outside table of %d rows", nn.ErrDimensionMismatch, id, table.Num()))
		}
		if len(vector.Slice()) != table.Dim() {
			return 0, helper.NewError("load embedding", fmt.Errorf("%w: row %d has dim %d, table has %d", nn.ErrDimensionMismatch, id, len(vector.Slice()), table.Dim()))
		}
		stored[id] = toFloat64(vector.Slice())
	}

	if err := rows.Err(); err != nil {
		return 0, helper.NewError("rows iteration", err)
	}
	if len(stored) == 0 {
		return 0, helper.NewError("load embedding", fmt.Errorf("no stored rows for %q", name))
	}
	if len(stored) != table.Num() {
		return 0, helper.NewError("load embedding", fmt.Errorf("%w: %d stored rows for %q, table has %d", nn.ErrDimensionMismatch, len(stored), name, table.Num()))
	}

	for id, row := range stored {
		if err := table.SetRow(id, row); err != nil {
			return 0, helper.NewError(fmt.Sprintf("set row %d", id), err)
		}
	}

	return len(stored), nil
}

// SelectNearestRows returns the limit rows of name closest to vector by cosine distance
func (h *EmbeddingsDBHandler) SelectNearestRows(name string, vector []float64, limit int) ([]*NearestRow, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_nearest_rows($1, $2, $3)`,
		name,
		pgvector.NewVector(toFloat32(vector)),
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*NearestRow
	for rows.Next() {
		row := &NearestRow{}
		if err := rows.Scan(&row.RowID, &row.Similarity); err != nil {
			return nil, helper.NewError("scan", err)
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows iteration", err)
	}

	return results, nil
}

// DeleteEmbedding deletes the stored rows of name and returns how many were removed
func (h *EmbeddingsDBHandler) DeleteEmbedding(name string) (int, error) {
	var deleted int
	err := h.db.Instance.QueryRow(`SELECT delete_embedding($1)`, name).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("delete", err)
	}

	return deleted, nil
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

func toFloat64(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
