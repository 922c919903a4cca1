package graph

import "github.com/siherrmann/kgwalker/model"

// Adjacency gives read access to the outgoing edges of a graph
type Adjacency interface {
	// Neighbors returns the ordered (relation, entity) pairs leaving entity.
	// The returned slice must not be modified.
	Neighbors(entity int) []model.Neighbor
	// InverseRelation returns the relation id traversing relation backwards
	InverseRelation(relation int) int
}

// BucketID locates the action space of an entity inside a bucket
type BucketID struct {
	Key    int // bucket
	Offset int // row inside the bucket
}

// ActionSpaces serves per-entity action spaces, whole or grouped in buckets.
// Every returned action space is an owned copy the caller may mutate.
type ActionSpaces interface {
	ActionSpace(entities []int) (*ActionSpace, error)
	Bucket(entity int) (BucketID, error)
	BucketSpace(key int, offsets []int) (*ActionSpace, error)
	InverseRelation(relation int) int
	NumEntities() int
	NumRelations() int
}

// AnswerIndex knows the correct answers of (source, query) pairs
type AnswerIndex interface {
	// Answers returns the known targets. allKnown selects the answers of every
	// split instead of the training answers only. The set must not be modified.
	Answers(source, query int, allKnown bool) map[int]struct{}
}

// Store is everything the policy needs from the knowledge graph
type Store interface {
	ActionSpaces
	AnswerIndex
	// Graph returns the adjacency used for the given graph kind
	Graph(kind Kind) Adjacency
	// Seen reports whether entity occurs in the training graph
	Seen(entity int) bool
}

// Kind names one of the adjacency views of the knowledge graph
type Kind string

const (
	KindTrain Kind = "train"
	KindEval  Kind = "eval"
	KindAux   Kind = "aux"
)
