package model

import "github.com/google/uuid"

// WalkStep is one traversed edge of a sampled path
type WalkStep struct {
	Relation    int     `json:"relation"`
	Entity      int     `json:"entity"`
	Probability float64 `json:"probability"`
	Entropy     float64 `json:"entropy"`
}

// WalkResult is the path sampled for one (source, query) example
type WalkResult struct {
	RunID  uuid.UUID  `json:"run_id"`
	Source int        `json:"source"`
	Query  int        `json:"query"`
	Steps  []WalkStep `json:"steps"`
}

// Answer returns the entity the walk ended on
func (w *WalkResult) Answer() int {
	if len(w.Steps) == 0 {
		return w.Source
	}
	return w.Steps[len(w.Steps)-1].Entity
}
