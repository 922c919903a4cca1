package model

import (
	"time"

	"github.com/google/uuid"
)

// Split names the dataset partition a triple belongs to
type Split string

const (
	SplitTrain Split = "train"
	SplitDev   Split = "dev"
	SplitTest  Split = "test"
	SplitAux   Split = "aux"
)

// Triple is a named (head, relation, tail) fact of the knowledge graph
type Triple struct {
	ID        int       `json:"id"`
	RID       uuid.UUID `json:"rid"`
	Head      string    `json:"head"`
	Relation  string    `json:"relation"`
	Tail      string    `json:"tail"`
	Split     Split     `json:"split"`
	CreatedAt time.Time `json:"created_at"`
}

// Neighbor is an outgoing (relation, entity) pair of a node
type Neighbor struct {
	Relation int `json:"relation"`
	Entity   int `json:"entity"`
}
