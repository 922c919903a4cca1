package retrieval

import (
	"context"

	"github.com/siherrmann/kgwalker/model"
)

// Strategy defines a retrieval strategy
type Strategy interface {
	Retrieve(ctx context.Context, source, query int, config *model.QueryConfig) ([]*model.RetrievalResult, error)
}

// PolicyStrategy ranks answers by the policy walks alone
type PolicyStrategy struct {
	engine *Engine
}

// NewPolicyStrategy creates a new policy strategy
func NewPolicyStrategy(engine *Engine) *PolicyStrategy {
	return &PolicyStrategy{engine: engine}
}

// Retrieve performs policy retrieval
func (s *PolicyStrategy) Retrieve(ctx context.Context, source, query int, config *model.QueryConfig) ([]*model.RetrievalResult, error) {
	results, err := s.engine.PolicyRetrieve(ctx, source, query, config)
	if err != nil {
		return nil, err
	}

	resultMap := make(map[int]*model.RetrievalResult, len(results))
	for _, r := range results {
		resultMap[r.Entity] = r
	}
	return sortResults(resultMap, config.TopK), nil
}

// VectorOnlyStrategy performs pure embedding similarity search
type VectorOnlyStrategy struct {
	engine *Engine
}

// NewVectorOnlyStrategy creates a new vector-only strategy
func NewVectorOnlyStrategy(engine *Engine) *VectorOnlyStrategy {
	return &VectorOnlyStrategy{engine: engine}
}

// Retrieve performs vector-only retrieval
func (s *VectorOnlyStrategy) Retrieve(ctx context.Context, source, query int, config *model.QueryConfig) ([]*model.RetrievalResult, error) {
	return s.engine.VectorRetrieve(ctx, source, query, config)
}

// MultiHopStrategy returns the entities reachable from the source, closest first.
// The query relation is ignored.
type MultiHopStrategy struct {
	engine *Engine
}

// NewMultiHopStrategy creates a new multi-hop strategy
func NewMultiHopStrategy(engine *Engine) *MultiHopStrategy {
	return &MultiHopStrategy{
		engine: engine,
	}
}

// Retrieve performs multi-hop retrieval
func (s *MultiHopStrategy) Retrieve(ctx context.Context, source, query int, config *model.QueryConfig) ([]*model.RetrievalResult, error) {
	results, err := s.engine.GraphRetrieve(ctx, source, config)
	if err != nil {
		return nil, err
	}

	resultMap := make(map[int]*model.RetrievalResult, len(results))
	for _, r := range results {
		resultMap[r.Entity] = r
	}
	return sortResults(resultMap, config.TopK), nil
}

// HybridStrategy combines policy, graph, and vector signals with configurable weights
type HybridStrategy struct {
	engine *Engine
}

// NewHybridStrategy creates a new hybrid strategy
func NewHybridStrategy(engine *Engine) *HybridStrategy {
	return &HybridStrategy{
		engine: engine,
	}
}

// Retrieve performs hybrid retrieval with weighted combination.
// Signals with a zero weight are not computed.
func (s *HybridStrategy) Retrieve(ctx context.Context, source, query int, config *model.QueryConfig) ([]*model.RetrievalResult, error) {
	resultMap := make(map[int]*model.RetrievalResult)

	if config.PolicyWeight > 0 {
		results, err := s.engine.PolicyRetrieve(ctx, source, query, config)
		if err != nil {
			return nil, err
		}
		addWeighted(resultMap, results, config.PolicyWeight)
	}

	if config.GraphWeight > 0 && config.MaxHops > 0 {
		results, err := s.engine.GraphRetrieve(ctx, source, config)
		if err != nil {
			return nil, err
		}
		addWeighted(resultMap, results, config.GraphWeight)
	}

	if config.VectorWeight > 0 && s.engine.nearest != nil {
		results, err := s.engine.VectorRetrieve(ctx, source, query, config)
		if err != nil {
			return nil, err
		}
		addWeighted(resultMap, results, config.VectorWeight)
	}

	return sortResults(resultMap, config.TopK), nil
}
