package kgwalker

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/core/nn"
	"github.com/siherrmann/kgwalker/core/pipeline"
	"github.com/siherrmann/kgwalker/core/policy"
	"github.com/siherrmann/kgwalker/database"
	"github.com/siherrmann/kgwalker/helper"
	"github.com/siherrmann/kgwalker/model"
	"go.opentelemetry.io/otel"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Embedding table names used for persistence
const (
	EntityEmbeddingName   = "entity"
	RelationEmbeddingName = "relation"
)

// Walker wires a knowledge graph, the policy network and the optional database handlers
type Walker struct {
	DB         *helper.Database             // Optional, set by NewWalkerFromDatabase
	Triples    *database.TriplesDBHandler    // Optional
	Embeddings *database.EmbeddingsDBHandler // Optional
	Graph      *graph.KnowledgeGraph
	Policy     *policy.Policy

	config *model.Config
	ec     *nn.ExecContext
	// Logging
	log *slog.Logger
}

// NewWalker creates a walker over an in-memory knowledge graph
func NewWalker(config *model.Config, kg *graph.KnowledgeGraph) (*Walker, error) {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stderr, opts))

	return newWalker(config, kg, logger)
}

func newWalker(config *model.Config, kg *graph.KnowledgeGraph, logger *slog.Logger) (*Walker, error) {
	if config == nil || kg == nil {
		return nil, helper.NewError("walker validation", fmt.Errorf("config and knowledge graph are required"))
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ec, err := nn.NewExecContext(nn.Device(config.Policy.Device), config.Policy.Seed, logger, otel.Tracer("github.com/siherrmann/kgwalker"))
	if err != nil {
		return nil, helper.NewError("create execution context", err)
	}

	p, err := policy.NewPolicy(ec, config.Policy, kg)
	if err != nil {
		return nil, helper.NewError("create policy", err)
	}

	logger.Info("Initialized walker",
		slog.Int("entities", kg.NumEntities()),
		slog.Int("relations", kg.NumRelations()),
		slog.Int("buckets", kg.NumBuckets()),
	)

	return &Walker{
		Graph:  kg,
		Policy: p,
		config: config,
		ec:     ec,
		log:    logger,
	}, nil
}

// NewWalkerFromDatabase loads every split from the triples table and creates a walker over it.
// The database connection stays open for SaveEmbeddings and LoadEmbeddings.
func NewWalkerFromDatabase(config *model.Config, dbConfig *helper.DatabaseConfiguration) (*Walker, error) {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stderr, opts))

	db := helper.NewDatabase("kgwalker", dbConfig, logger)

	// force=false to not reload if functions already exist
	triples, err := database.NewTriplesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create triples handler", err)
	}

	embeddings, err := database.NewEmbeddingsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create embeddings handler", err)
	}

	var all []*model.Triple
	for _, split := range []model.Split{model.SplitTrain, model.SplitDev, model.SplitTest, model.SplitAux} {
		selected, err := triples.SelectTriplesBySplit(split)
		if err != nil {
			return nil, helper.NewError(fmt.Sprintf("select %s triples", split), err)
		}
		all = append(all, selected...)
	}

	kg, err := graph.NewKnowledgeGraph(all, config.Graph)
	if err != nil {
		return nil, helper.NewError("build knowledge graph", err)
	}

	w, err := newWalker(config, kg, logger)
	if err != nil {
		return nil, err
	}
	w.DB = db
	w.Triples = triples
	w.Embeddings = embeddings

	return w, nil
}

// Close closes the database connection if there is one
func (w *Walker) Close() error {
	if w.DB != nil && w.DB.Instance != nil {
		return w.DB.Close()
	}
	return nil
}

// SaveEmbeddings stores the entity and relation tables of the policy
func (w *Walker) SaveEmbeddings() error {
	if w.Embeddings == nil {
		return helper.NewError("save embeddings", fmt.Errorf("no database, use NewWalkerFromDatabase() first"))
	}

	if err := w.Embeddings.SaveEmbedding(EntityEmbeddingName, w.Policy.Transformer.EntityEmbedding); err != nil {
		return helper.NewError("save entity embedding", err)
	}
	if err := w.Embeddings.SaveEmbedding(RelationEmbeddingName, w.Policy.Transformer.RelationEmbedding); err != nil {
		return helper.NewError("save relation embedding", err)
	}

	return nil
}

// LoadEmbeddings restores the entity and relation tables of the policy
func (w *Walker) LoadEmbeddings() error {
	if w.Embeddings == nil {
		return helper.NewError("load embeddings", fmt.Errorf("no database, use NewWalkerFromDatabase() first"))
	}

	entities, err := w.Embeddings.LoadEmbedding(EntityEmbeddingName, w.Policy.Transformer.EntityEmbedding)
	if err != nil {
		return helper.NewError("load entity embedding", err)
	}
	relations, err := w.Embeddings.LoadEmbedding(RelationEmbeddingName, w.Policy.Transformer.RelationEmbedding)
	if err != nil {
		return helper.NewError("load relation embedding", err)
	}

	w.log.Info("Loaded embeddings", slog.Int("entities", entities), slog.Int("relations", relations))

	return nil
}

// SeedEmbeddings initializes the entity and relation tables from text embeddings
// of their names. Reserved ids keep their values. It returns the number of rows written.
func (w *Walker) SeedEmbeddings(embed pipeline.EmbedFunc) (int, error) {
	seeder, err := pipeline.NewSeeder(w.ec, embed, nil)
	if err != nil {
		return 0, helper.NewError("create seeder", err)
	}

	entities, err := seeder.Seed(w.Policy.Transformer.EntityEmbedding, w.Graph.Entities, model.NoOpEntity+1)
	if err != nil {
		return entities, helper.NewError("seed entity embedding", err)
	}
	relations, err := seeder.Seed(w.Policy.Transformer.RelationEmbedding, w.Graph.Relations, model.FirstRelation)
	if err != nil {
		return entities + relations, helper.NewError("seed relation embedding", err)
	}

	w.log.Info("Seeded embeddings", slog.Int("entities", entities), slog.Int("relations", relations))

	return entities + relations, nil
}

// IngestText extracts triples from text and stores them in the triples table.
// The graph of this walker is not changed, the triples are part of the next NewWalkerFromDatabase.
func (w *Walker) IngestText(text string, extract pipeline.TripleExtractFunc) (int, error) {
	if w.Triples == nil {
		return 0, helper.NewError("ingest text", fmt.Errorf("no database, use NewWalkerFromDatabase() first"))
	}
	if extract == nil {
		return 0, helper.NewError("ingest text", fmt.Errorf("triple extractor is required"))
	}

	triples, err := extract(text)
	if err != nil {
		return 0, helper.NewError("extract triples", err)
	}
	if len(triples) == 0 {
		return 0, nil
	}

	if err := w.Triples.InsertTriples(triples); err != nil {
		return 0, helper.NewError("insert extracted triples", err)
	}

	w.log.Info("Ingested text", slog.Int("triples", len(triples)))

	return len(triples), nil
}

// Rollout walks steps hops from every source under its query relation.
// In train mode actions are sampled from the policy distribution, otherwise the most
// likely action is taken. targets may be nil; when given, the ground truth edge
// to the target is hidden and other known answers are masked on the last step.
func (w *Walker) Rollout(ctx context.Context, sources, queries, targets []int, steps int, mode model.Mode) ([]*model.WalkResult, error) {
	return w.walk(ctx, sources, queries, targets, steps, mode, mode.IsTraining())
}

// Sample walks steps hops from every source and samples every action from the
// policy distribution, whatever the mode. Eval and test mode read the eval or
// auxiliary graph and take batches of any size.
func (w *Walker) Sample(ctx context.Context, sources, queries []int, steps int, mode model.Mode) ([]*model.WalkResult, error) {
	return w.walk(ctx, sources, queries, nil, steps, mode, true)
}

func (w *Walker) walk(ctx context.Context, sources, queries, targets []int, steps int, mode model.Mode, sample bool) ([]*model.WalkResult, error) {
	n := len(sources)
	if n == 0 || len(queries) != n || (targets != nil && len(targets) != n) {
		return nil, helper.NewError("rollout", fmt.Errorf("%w: %d sources, %d queries, %d targets", policy.ErrShapeMismatch, n, len(queries), len(targets)))
	}
	if steps <= 0 {
		return nil, helper.NewError("rollout", fmt.Errorf("steps must be positive, got %d", steps))
	}

	known := targets != nil
	if !known {
		targets = make([]int, n)
	}

	start := make([]int, n)
	for i := range start {
		start[i] = model.StartRelation
	}

	sourceEncoding, err := w.Policy.InitializePath(ctx, model.Action{Relations: start, Entities: sources}, queries, mode)
	if err != nil {
		return nil, helper.NewError("initialize path", err)
	}

	runID := uuid.New()
	results := make([]*model.WalkResult, n)
	for i := range results {
		results[i] = &model.WalkResult{RunID: runID, Source: sources[i], Query: queries[i]}
	}

	obs := &model.Observation{
		Source:         sources,
		SourceEncoding: sourceEncoding,
		Query:          queries,
		Target:         targets,
		LastRelation:   start,
	}
	e := append([]int(nil), sources...)

	for t := 0; t < steps; t++ {
		obs.FirstStep = t == 0
		obs.LastStep = known && t == steps-1

		result, err := w.Policy.Transit(ctx, e, obs, mode, policy.TransitOptions{Bucketing: true, Merge: true})
		if err != nil {
			return nil, helper.NewError(fmt.Sprintf("transit step %d", t), err)
		}
		outcome := result.Outcomes[0]

		action := model.Action{Relations: make([]int, n), Entities: make([]int, n)}
		for i := 0; i < n; i++ {
			dist := outcome.Dist.RawRowView(i)
			j := w.choose(dist, sample)
			action.Relations[i] = outcome.Space.Relations[i][j]
			action.Entities[i] = outcome.Space.Entities[i][j]
			results[i].Steps = append(results[i].Steps, model.WalkStep{
				Relation:    action.Relations[i],
				Entity:      action.Entities[i],
				Probability: dist[j],
				Entropy:     result.Entropy[i],
			})
		}

		if err := w.Policy.UpdatePath(ctx, action, nil); err != nil {
			return nil, helper.NewError(fmt.Sprintf("update path step %d", t), err)
		}
		e = action.Entities
		obs.LastRelation = action.Relations
	}

	w.log.Debug("Finished rollout", slog.String("run_id", runID.String()), slog.Int("batch", n), slog.Int("steps", steps), slog.Bool("sampled", sample))

	return results, nil
}

// choose samples an action index or takes the most likely one
func (w *Walker) choose(dist []float64, sample bool) int {
	if sample {
		return int(distuv.NewCategorical(dist, w.ec.Rand).Rand())
	}
	return floats.MaxIdx(dist)
}
