package retrieval

import (
	"context"
	"fmt"

	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/core/nn"
	"github.com/siherrmann/kgwalker/database"
	"github.com/siherrmann/kgwalker/helper"
	"github.com/siherrmann/kgwalker/model"
)

// Walker samples policy walks, *kgwalker.Walker implements it
type Walker interface {
	Sample(ctx context.Context, sources, queries []int, steps int, mode model.Mode) ([]*model.WalkResult, error)
}

// NearestRows finds the stored embedding rows closest to a vector
type NearestRows interface {
	SelectNearestRows(name string, vector []float64, limit int) ([]*database.NearestRow, error)
}

// Engine answers (source, query) questions over a knowledge graph
type Engine struct {
	graph   *graph.KnowledgeGraph
	walker  Walker
	nearest NearestRows

	entities  *nn.Embedding
	relations *nn.Embedding
	name      string // stored name of the entity embedding
}

// NewEngine creates a new retrieval engine. nearest may be nil, vector retrieval then fails.
func NewEngine(kg *graph.KnowledgeGraph, walker Walker, nearest NearestRows, entities, relations *nn.Embedding, name string) *Engine {
	return &Engine{
		graph:     kg,
		walker:    walker,
		nearest:   nearest,
		entities:  entities,
		relations: relations,
		name:      name,
	}
}

// PolicyRetrieve samples config.NumRollouts walks in eval mode and scores every entity
// by the share of walks ending on it. With inference enabled on the policy the
// walks read the auxiliary graph.
func (e *Engine) PolicyRetrieve(ctx context.Context, source, query int, config *model.QueryConfig) ([]*model.RetrievalResult, error) {
	if config.NumRollouts <= 0 {
		return nil, helper.NewError("policy retrieve", fmt.Errorf("num rollouts must be positive, got %d", config.NumRollouts))
	}

	sources := make([]int, config.NumRollouts)
	queries := make([]int, config.NumRollouts)
	for i := range sources {
		sources[i] = source
		queries[i] = query
	}

	walks, err := e.walker.Sample(ctx, sources, queries, config.Steps, model.ModeEval)
	if err != nil {
		return nil, helper.NewError("policy rollout", err)
	}

	hits := make(map[int]int)
	var order []int
	for _, walk := range walks {
		answer := walk.Answer()
		if answer == model.DummyEntity || answer == model.NoOpEntity {
			continue
		}
		if _, ok := hits[answer]; !ok {
			order = append(order, answer)
		}
		hits[answer]++
	}

	results := make([]*model.RetrievalResult, 0, len(order))
	for _, entity := range order {
		score := float64(hits[entity]) / float64(len(walks))
		results = append(results, &model.RetrievalResult{
			Entity:          entity,
			Name:            e.graph.Entities.Name(entity),
			Score:           score,
			PolicyScore:     score,
			RetrievalMethod: "policy",
		})
	}

	return results, nil
}

// GraphRetrieve returns every entity within config.MaxHops of source in the training graph
func (e *Engine) GraphRetrieve(ctx context.Context, source int, config *model.QueryConfig) ([]*model.RetrievalResult, error) {
	traversal, err := graph.BFS(ctx, e.graph.Graph(graph.KindTrain), source, config.MaxHops)
	if err != nil {
		return nil, helper.NewError("breadth first search", err)
	}

	var results []*model.RetrievalResult
	for _, t := range traversal {
		// Skip the source
		if t.Distance == 0 {
			continue
		}
		results = append(results, &model.RetrievalResult{
			Entity:          t.Entity,
			Name:            e.graph.Entities.Name(t.Entity),
			Score:           1 / float64(t.Distance),
			GraphDistance:   t.Distance,
			RetrievalMethod: "multi_hop",
		})
	}

	return results, nil
}

// VectorRetrieve ranks the stored entity embeddings by cosine similarity to source + query
func (e *Engine) VectorRetrieve(ctx context.Context, source, query int, config *model.QueryConfig) ([]*model.RetrievalResult, error) {
	if e.nearest == nil {
		return nil, helper.NewError("vector retrieve", fmt.Errorf("no embedding store"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := e.queryVector(source, query)
	if err != nil {
		return nil, helper.NewError("query vector", err)
	}

	// Over fetch to leave room for the source and reserved rows
	rows, err := e.nearest.SelectNearestRows(e.name, target, config.TopK+2)
	if err != nil {
		return nil, helper.NewError("select nearest rows", err)
	}

	var results []*model.RetrievalResult
	for _, row := range rows {
		if row.RowID == source || row.RowID == model.DummyEntity || row.RowID == model.NoOpEntity {
			continue
		}
		if row.Similarity < config.SimilarityThreshold {
			continue
		}
		results = append(results, &model.RetrievalResult{
			Entity:          row.RowID,
			Name:            e.graph.Entities.Name(row.RowID),
			Score:           row.Similarity,
			SimilarityScore: row.Similarity,
			RetrievalMethod: "vector",
		})
	}
	if len(results) > config.TopK {
		results = results[:config.TopK]
	}

	return results, nil
}

// queryVector translates the source embedding by the query relation embedding
func (e *Engine) queryVector(source, query int) ([]float64, error) {
	if source < 0 || source >= e.entities.Num() {
		return nil, fmt.Errorf("%w: entity %d outside table of %d rows", nn.ErrDimensionMismatch, source, e.entities.Num())
	}
	if query < 0 || query >= e.relations.Num() {
		return nil, fmt.Errorf("%w: relation %d outside table of %d rows", nn.ErrDimensionMismatch, query, e.relations.Num())
	}
	if e.entities.Dim() != e.relations.Dim() {
		return nil, fmt.Errorf("%w: entity dim %d, relation dim %d", nn.ErrDimensionMismatch, e.entities.Dim(), e.relations.Dim())
	}

	vector := e.entities.Row(source)
	for i, v := range e.relations.Row(query) {
		vector[i] += v
	}
	return vector, nil
}
