package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/siherrmann/kgwalker"
	"github.com/siherrmann/kgwalker/core/pipeline"
	"github.com/siherrmann/kgwalker/core/retrieval"
	"github.com/siherrmann/kgwalker/database"
	"github.com/siherrmann/kgwalker/helper"
	"github.com/siherrmann/kgwalker/model"
)

var sampleTriples = [][3]string{
	{"berlin", "capital_of", "germany"},
	{"paris", "capital_of", "france"},
	{"rome", "capital_of", "italy"},
	{"germany", "member_of", "european_union"},
	{"france", "member_of", "european_union"},
	{"italy", "member_of", "european_union"},
	{"berlin", "located_in", "germany"},
	{"paris", "twinned_with", "rome"},
	{"european_union", "located_in", "europe"},
}

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// Store the training triples
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, helper.PrettyHandlerOptions{}))
	db := helper.NewDatabase("example", dbConfig, logger)
	triples, err := database.NewTriplesDBHandler(db, false)
	if err != nil {
		log.Fatalf("Failed to create triples handler: %v", err)
	}
	var train []*model.Triple
	for _, t := range sampleTriples {
		train = append(train, &model.Triple{Head: t[0], Relation: t[1], Tail: t[2], Split: model.SplitTrain})
	}
	if err := triples.InsertTriples(train); err != nil {
		log.Fatalf("Failed to insert triples: %v", err)
	}
	fmt.Printf("Inserted %d triples\n", len(train))

	// Small model for the example
	config := model.DefaultConfig()
	config.Policy.EntityDim = 32
	config.Policy.RelationDim = 32
	config.Policy.HistoryDim = 32
	config.Policy.TransformerHiddenDim = 32
	config.Policy.NumRollouts = 4

	w, err := kgwalker.NewWalkerFromDatabase(&config, dbConfig)
	if err != nil {
		log.Fatalf("Failed to create walker: %v", err)
	}
	defer w.Close()

	// Seed the embeddings from the names and persist them
	embed, err := pipeline.DefaultEmbedder()
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	if _, err := w.SeedEmbeddings(embed); err != nil {
		log.Fatalf("Failed to seed embeddings: %v", err)
	}
	if err := w.SaveEmbeddings(); err != nil {
		log.Fatalf("Failed to save embeddings: %v", err)
	}
	if err := w.Embeddings.ChangeIndexType(context.Background(), kgwalker.EntityEmbeddingName, "hnsw", nil); err != nil {
		log.Fatalf("Failed to create index: %v", err)
	}

	source, _ := w.Graph.Entities.ID("rome")
	query, _ := w.Graph.Relations.ID("member_of")

	// Walk greedily
	walks, err := w.Rollout(context.Background(), []int{source}, []int{query}, nil, 3, model.ModeEval)
	if err != nil {
		log.Fatalf("Failed to walk: %v", err)
	}
	fmt.Printf("\nWalk from rome under member_of:\n")
	for i, step := range walks[0].Steps {
		fmt.Printf("  %d. --%s--> %s (p=%.3f)\n", i+1, w.Graph.Relations.Name(step.Relation), w.Graph.Entities.Name(step.Entity), step.Probability)
	}

	// Rank answers
	engine := retrieval.NewEngine(
		w.Graph,
		w,
		w.Embeddings,
		w.Policy.Transformer.EntityEmbedding,
		w.Policy.Transformer.RelationEmbedding,
		kgwalker.EntityEmbeddingName,
	)
	queryConfig := model.DefaultQueryConfig()
	queryConfig.NumRollouts = 8
	queryConfig.TopK = 5

	results, err := retrieval.NewHybridStrategy(engine).Retrieve(context.Background(), source, query, &queryConfig)
	if err != nil {
		log.Fatalf("Failed to rank answers: %v", err)
	}

	// Display results
	fmt.Printf("\nFound %d answers:\n", len(results))
	for i, result := range results {
		fmt.Printf("\n--- Answer %d ---\n", i+1)
		fmt.Printf("Entity: %s\n", result.Name)
		fmt.Printf("Score: %.4f\n", result.Score)
		fmt.Printf("Policy: %.4f Similarity: %.4f Distance: %d\n", result.PolicyScore, result.SimilarityScore, result.GraphDistance)
	}

	fmt.Println("\nBasic example completed successfully!")
}
