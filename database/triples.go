package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/kgwalker/helper"
	"github.com/siherrmann/kgwalker/model"
	loadSql "github.com/siherrmann/kgwalker/sql"
)

// TriplesDBHandlerFunctions defines the interface for Triples database operations.
type TriplesDBHandlerFunctions interface {
	InsertTriple(triple *model.Triple) error
	InsertTriples(triples []*model.Triple) error
	SelectTriplesBySplit(split model.Split) ([]*model.Triple, error)
	SelectTriplesFromHead(head string) ([]*model.Triple, error)
	DeleteTriplesBySplit(split model.Split) (int, error)
}

// TriplesDBHandler handles triple-related database operations
type TriplesDBHandler struct {
	db *helper.Database
}

// NewTriplesDBHandler creates a new triples database handler.
// It initializes the database connection and loads triple-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewTriplesDBHandler(db *helper.Database, force bool) (*TriplesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	triplesDbHandler := &TriplesDBHandler{
		db: db,
	}

	err := loadSql.Init(triplesDbHandler.db.Instance)
	if err != nil {
		return nil, helper.NewError("init extensions", err)
	}

	err = loadSql.LoadTriplesSql(triplesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load triples sql", err)
	}

	err = triplesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized TriplesDBHandler")

	return triplesDbHandler, nil
}

// CreateTable creates the 'triples' table in the database.
// If the table already exists, it does not create it again.
func (h *TriplesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_triples();`)
	if err != nil {
		log.Panicf("error initializing triples table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table triples")

	return nil
}

// InsertTriple inserts a triple and fills in its id, rid and creation time.
// Inserting a triple that already exists in the same split returns the stored row.
func (h *TriplesDBHandler) InsertTriple(triple *model.Triple) error {
	var rid interface{}
	if triple.RID != uuid.Nil {
		rid = triple.RID
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_triple($1, $2, $3, $4, $5)`,
		rid,
		triple.Head,
		triple.Relation,
		triple.Tail,
		triple.Split,
	)

	err := scanTriple(row, triple)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// InsertTriples inserts all triples in one transaction
func (h *TriplesDBHandler) InsertTriples(triples []*model.Triple) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `SELECT * FROM insert_triple($1, $2, $3, $4, $5)`)
	if err != nil {
		return helper.NewError("prepare", err)
	}
	defer stmt.Close()

	for _, triple := range triples {
		var rid interface{}
		if triple.RID != uuid.Nil {
			rid = triple.RID
		}
		err := scanTriple(stmt.QueryRowContext(ctx, rid, triple.Head, triple.Relation, triple.Tail, triple.Split), triple)
		if err != nil {
			return helper.NewError("scan", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit", err)
	}

	h.db.Logger.Debug("Inserted triples", "count", len(triples))

	return nil
}

// SelectTriplesBySplit retrieves all triples of a split in insertion order
func (h *TriplesDBHandler) SelectTriplesBySplit(split model.Split) ([]*model.Triple, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_triples_by_split($1)`,
		split,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanTriples(rows)
}

// SelectTriplesFromHead retrieves all triples of every split starting at head
func (h *TriplesDBHandler) SelectTriplesFromHead(head string) ([]*model.Triple, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_triples_from_head($1)`,
		head,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanTriples(rows)
}

// DeleteTriplesBySplit deletes all triples of a split and returns how many were removed
func (h *TriplesDBHandler) DeleteTriplesBySplit(split model.Split) (int, error) {
	var deleted int
	err := h.db.Instance.QueryRow(
		`SELECT delete_triples_by_split($1)`,
		split,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("delete", err)
	}

	return deleted, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTriple(row scanner, triple *model.Triple) error {
	return row.Scan(
		&triple.ID,
		&triple.RID,
		&triple.Head,
		&triple.Relation,
		&triple.Tail,
		&triple.Split,
		&triple.CreatedAt,
	)
}

func scanTriples(rows *sql.Rows) ([]*model.Triple, error) {
	var triples []*model.Triple
	for rows.Next() {
		triple := &model.Triple{}
		if err := scanTriple(rows, triple); err != nil {
			return nil, helper.NewError("scan", err)
		}
		triples = append(triples, triple)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows iteration", err)
	}

	return triples, nil
}
