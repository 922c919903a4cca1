package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed triples.sql
var triplesSQL string

//go:embed embeddings.sql
var embeddingsSQL string

// Function lists for verification
var TriplesFunctions = []string{
	"init_triples",
	"insert_triple",
	"select_triples_by_split",
	"select_triples_from_head",
	"delete_triples_by_split",
}

var EmbeddingsFunctions = []string{
	"init_embeddings",
	"upsert_embedding_row",
	"select_embedding_rows",
	"select_nearest_rows",
	"delete_embedding",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadTriplesSql loads triple-related SQL functions
func LoadTriplesSql(db *sql.DB, force bool) error {
	return loadFunctions(db, "triples", triplesSQL, TriplesFunctions, force)
}

// LoadEmbeddingsSql loads embedding-related SQL functions
func LoadEmbeddingsSql(db *sql.DB, force bool) error {
	return loadFunctions(db, "embeddings", embeddingsSQL, EmbeddingsFunctions, force)
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadTriplesSql(db, force); err != nil {
		return err
	}

	if err := LoadEmbeddingsSql(db, force); err != nil {
		return err
	}

	return nil
}

// loadFunctions executes script unless all functions exist already or force is set,
// then verifies the functions were created
func loadFunctions(db *sql.DB, name string, script string, functions []string, force bool) error {
	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(script)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkFunctions(db, functions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Printf("SQL %s functions loaded successfully", name)
	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
