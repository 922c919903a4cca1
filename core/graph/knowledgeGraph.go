package graph

import (
	"fmt"
	"sort"

	"github.com/siherrmann/kgwalker/helper"
	"github.com/siherrmann/kgwalker/model"
)

// Reserved vocabulary names
const (
	DummyEntityName    = "DUMMY_ENTITY"
	NoOpEntityName     = "NO_OP_ENTITY"
	DummyRelationName  = "DUMMY_RELATION"
	StartRelationName  = "START_RELATION"
	NoOpRelationName   = "NO_OP_RELATION"
	InverseRelationTag = "_inv"
)

// KnowledgeGraph is an in-memory Store built from named triples.
// Action spaces are built from the training triples: every entity may stay
// where it is through NoOpRelation, followed by its outgoing training edges.
type KnowledgeGraph struct {
	Entities  *model.Vocabulary
	Relations *model.Vocabulary

	graphs map[Kind]*adjacency

	global   *ActionSpace
	buckets  map[int]*ActionSpace
	bucketOf []BucketID

	trainAnswers answerSets
	allAnswers   answerSets
	seen         map[int]struct{}

	config model.GraphConfig
}

type answerSets map[int]map[int]map[int]struct{}

func (a answerSets) add(source, query, target int) {
	if a[source] == nil {
		a[source] = make(map[int]map[int]struct{})
	}
	if a[source][query] == nil {
		a[source][query] = make(map[int]struct{})
	}
	a[source][query][target] = struct{}{}
}

type adjacency struct {
	neighbors map[int][]model.Neighbor
}

func (a *adjacency) Neighbors(entity int) []model.Neighbor {
	return a.neighbors[entity]
}

func (a *adjacency) InverseRelation(relation int) int {
	return inverseRelation(relation)
}

func (a *adjacency) add(head, relation, tail int) {
	a.neighbors[head] = append(a.neighbors[head], model.Neighbor{Relation: relation, Entity: tail})
	a.neighbors[tail] = append(a.neighbors[tail], model.Neighbor{Relation: inverseRelation(relation), Entity: head})
}

// inverseRelation pairs every forward relation r with r+1
func inverseRelation(relation int) int {
	if relation < model.FirstRelation {
		return relation
	}
	if (relation-model.FirstRelation)%2 == 0 {
		return relation + 1
	}
	return relation - 1
}

// NewKnowledgeGraph indexes the triples of all splits.
// Train triples become edges of every graph, aux triples extend the aux graph,
// dev and test triples only contribute answers.
func NewKnowledgeGraph(triples []*model.Triple, config model.GraphConfig) (*KnowledgeGraph, error) {
	if config.BucketInterval <= 0 || config.ActionSpaceBandwidth <= 0 {
		return nil, helper.NewError("knowledge graph configuration", fmt.Errorf("bucket interval %d and action space bandwidth %d must be positive", config.BucketInterval, config.ActionSpaceBandwidth))
	}

	kg := &KnowledgeGraph{
		Entities:  model.NewVocabulary(DummyEntityName, NoOpEntityName),
		Relations: model.NewVocabulary(DummyRelationName, StartRelationName, NoOpRelationName),
		graphs: map[Kind]*adjacency{
			KindTrain: {neighbors: make(map[int][]model.Neighbor)},
			KindEval:  {neighbors: make(map[int][]model.Neighbor)},
			KindAux:   {neighbors: make(map[int][]model.Neighbor)},
		},
		buckets:      make(map[int]*ActionSpace),
		trainAnswers: make(answerSets),
		allAnswers:   make(answerSets),
		seen: map[int]struct{}{
			model.DummyEntity: {},
			model.NoOpEntity:  {},
		},
		config: config,
	}

	for _, t := range triples {
		head := kg.Entities.Add(t.Head)
		tail := kg.Entities.Add(t.Tail)
		relation, err := kg.addRelation(t.Relation)
		if err != nil {
			return nil, helper.NewError("add relation", err)
		}
		inverse := inverseRelation(relation)

		// Auxiliary triples are extracted, not known answers
		if t.Split != model.SplitAux {
			kg.allAnswers.add(head, relation, tail)
			kg.allAnswers.add(tail, inverse, head)
		}

		switch t.Split {
		case model.SplitTrain:
			kg.graphs[KindTrain].add(head, relation, tail)
			kg.graphs[KindEval].add(head, relation, tail)
			kg.graphs[KindAux].add(head, relation, tail)
			kg.trainAnswers.add(head, relation, tail)
			kg.trainAnswers.add(tail, inverse, head)
			kg.seen[head] = struct{}{}
			kg.seen[tail] = struct{}{}
		case model.SplitAux:
			kg.graphs[KindAux].add(head, relation, tail)
		case model.SplitDev, model.SplitTest:
		default:
			return nil, helper.NewError("index triple", fmt.Errorf("unknown split %q", t.Split))
		}
	}

	if err := kg.vectorizeActionSpace(); err != nil {
		return nil, helper.NewError("vectorize action space", err)
	}

	return kg, nil
}

// addRelation registers name and its inverse at consecutive ids
func (kg *KnowledgeGraph) addRelation(name string) (int, error) {
	if id, ok := kg.Relations.ID(name); ok {
		return id, nil
	}
	id := kg.Relations.Add(name)
	inverse := kg.Relations.Add(name + InverseRelationTag)
	if inverse != id+1 || inverseRelation(id) != inverse {
		return 0, fmt.Errorf("relation %q did not get an inverse at id %d", name, id+1)
	}
	return id, nil
}

// vectorizeActionSpace builds the global and the bucketed action space tensors
func (kg *KnowledgeGraph) vectorizeActionSpace() error {
	numEntities := kg.Entities.Len()
	train := kg.graphs[KindTrain]

	candidates := make([][]model.Neighbor, numEntities)
	width := 1
	for e := 0; e < numEntities; e++ {
		row := []model.Neighbor{{Relation: model.NoOpRelation, Entity: e}}
		row = append(row, train.neighbors[e]...)
		if len(row) > kg.config.ActionSpaceBandwidth {
			row = row[:kg.config.ActionSpaceBandwidth]
		}
		candidates[e] = row
		width = max(width, len(row))
	}

	global, err := NewActionSpace(candidates, width)
	if err != nil {
		return err
	}
	kg.global = global

	grouped := make(map[int][][]model.Neighbor)
	kg.bucketOf = make([]BucketID, numEntities)
	for e, row := range candidates {
		key := len(row) / kg.config.BucketInterval
		kg.bucketOf[e] = BucketID{Key: key, Offset: len(grouped[key])}
		grouped[key] = append(grouped[key], row)
	}

	keys := make([]int, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Ints(keys)
	for _, key := range keys {
		space, err := NewActionSpace(grouped[key], (key+1)*kg.config.BucketInterval)
		if err != nil {
			return err
		}
		kg.buckets[key] = space
	}
	return nil
}

// NumEntities returns the size of the entity vocabulary
func (kg *KnowledgeGraph) NumEntities() int {
	return kg.Entities.Len()
}

// NumRelations returns the size of the relation vocabulary
func (kg *KnowledgeGraph) NumRelations() int {
	return kg.Relations.Len()
}

// InverseRelation returns the inverse of relation
func (kg *KnowledgeGraph) InverseRelation(relation int) int {
	return inverseRelation(relation)
}

// Graph returns the adjacency for kind, defaulting to the training graph
func (kg *KnowledgeGraph) Graph(kind Kind) Adjacency {
	if g, ok := kg.graphs[kind]; ok {
		return g
	}
	return kg.graphs[KindTrain]
}

// Seen reports whether entity occurs in a training triple
func (kg *KnowledgeGraph) Seen(entity int) bool {
	_, ok := kg.seen[entity]
	return ok
}

// ActionSpace returns the globally padded action spaces of entities
func (kg *KnowledgeGraph) ActionSpace(entities []int) (*ActionSpace, error) {
	return kg.global.Rows(entities)
}

// Bucket returns the bucket of entity
func (kg *KnowledgeGraph) Bucket(entity int) (BucketID, error) {
	if entity < 0 || entity >= len(kg.bucketOf) {
		return BucketID{}, fmt.Errorf("entity %d outside vocabulary of %d", entity, len(kg.bucketOf))
	}
	return kg.bucketOf[entity], nil
}

// BucketSpace returns the rows offsets of bucket key
func (kg *KnowledgeGraph) BucketSpace(key int, offsets []int) (*ActionSpace, error) {
	space, ok := kg.buckets[key]
	if !ok {
		return nil, fmt.Errorf("unknown bucket %d", key)
	}
	return space.Rows(offsets)
}

// NumBuckets returns the number of action space buckets
func (kg *KnowledgeGraph) NumBuckets() int {
	return len(kg.buckets)
}

// Answers returns the known targets of (source, query)
func (kg *KnowledgeGraph) Answers(source, query int, allKnown bool) map[int]struct{} {
	answers := kg.trainAnswers
	if allKnown {
		answers = kg.allAnswers
	}
	return answers[source][query]
}

// Encode maps a named triple to ids, failing on unknown names
func (kg *KnowledgeGraph) Encode(head, relation, tail string) (int, int, int, error) {
	h, ok := kg.Entities.ID(head)
	if !ok {
		return 0, 0, 0, fmt.Errorf("unknown entity %q", head)
	}
	r, ok := kg.Relations.ID(relation)
	if !ok {
		return 0, 0, 0, fmt.Errorf("unknown relation %q", relation)
	}
	t, ok := kg.Entities.ID(tail)
	if !ok {
		return 0, 0, 0, fmt.Errorf("unknown entity %q", tail)
	}
	return h, r, t, nil
}
