package policy

import (
	"testing"

	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/core/nn"
	"github.com/siherrmann/kgwalker/model"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// Entity ids of the test graph
const (
	entityA = iota + 2
	entityB
	entityC
	entityD
	entityE
)

// Relation ids of the test graph, inverses at +1
const (
	relation1 = model.FirstRelation
	relation2 = model.FirstRelation + 2
)

func newTestContext(t *testing.T, tracer trace.Tracer) *nn.ExecContext {
	t.Helper()
	ec, err := nn.NewExecContext(nn.DeviceCPU, 11, nil, tracer)
	require.NoError(t, err, "Expected execution context")
	return ec
}

// newTestGraph builds a small graph whose action spaces fall into two buckets:
// a, c, d have four or five actions (bucket 2), b and e three (bucket 1).
func newTestGraph(t *testing.T) *graph.KnowledgeGraph {
	t.Helper()
	triples := []*model.Triple{
		{Head: "a", Relation: "r1", Tail: "b", Split: model.SplitTrain},
		{Head: "a", Relation: "r1", Tail: "c", Split: model.SplitTrain},
		{Head: "a", Relation: "r2", Tail: "d", Split: model.SplitTrain},
		{Head: "b", Relation: "r2", Tail: "c", Split: model.SplitTrain},
		{Head: "c", Relation: "r1", Tail: "d", Split: model.SplitTrain},
		{Head: "d", Relation: "r2", Tail: "e", Split: model.SplitTrain},
		{Head: "e", Relation: "r1", Tail: "a", Split: model.SplitTrain},
		{Head: "a", Relation: "r1", Tail: "e", Split: model.SplitTest},
	}
	kg, err := graph.NewKnowledgeGraph(triples, model.GraphConfig{BucketInterval: 2, ActionSpaceBandwidth: 10})
	require.NoError(t, err, "Expected test graph to build")
	return kg
}

func testPolicyConfig() model.PolicyConfig {
	return model.PolicyConfig{
		EntityDim:            8,
		RelationDim:          8,
		HistoryDim:           6,
		HistoryNumLayers:     2,
		HistoryCell:          "lstm",
		NumHeads:             2,
		NumTransformerLayers: 2,
		TransformerHiddenDim: 5,
		Bandwidth:            6,
		EmbDropoutRate:       0.3,
		FFDropoutRate:        0.1,
		ActionDropoutRate:    0.1,
		NumRollouts:          2,
		XavierInitialization: true,
		Device:               "cpu",
		Seed:                 1,
	}
}

// MockAdjacency is a hand filled adjacency for testing
type MockAdjacency struct {
	neighbors map[int][]model.Neighbor
}

func NewMockAdjacency() *MockAdjacency {
	return &MockAdjacency{neighbors: make(map[int][]model.Neighbor)}
}

func (m *MockAdjacency) Neighbors(entity int) []model.Neighbor {
	return m.neighbors[entity]
}

func (m *MockAdjacency) InverseRelation(relation int) int {
	if relation < model.FirstRelation {
		return relation
	}
	if (relation-model.FirstRelation)%2 == 0 {
		return relation + 1
	}
	return relation - 1
}

func (m *MockAdjacency) link(head, relation, tail int) {
	m.neighbors[head] = append(m.neighbors[head], model.Neighbor{Relation: relation, Entity: tail})
}

// MockAnswers is a fixed answer index for testing
type MockAnswers struct {
	train map[[2]int]map[int]struct{}
	all   map[[2]int]map[int]struct{}
}

func (m *MockAnswers) Answers(source, query int, allKnown bool) map[int]struct{} {
	if allKnown {
		return m.all[[2]int{source, query}]
	}
	return m.train[[2]int{source, query}]
}

func repeatInt(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}
