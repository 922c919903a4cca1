package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Action is a batch of (relation, entity) moves
type Action struct {
	Relations []int `json:"relations"`
	Entities  []int `json:"entities"`
}

// Len returns the batch size of the action
func (a Action) Len() int {
	return len(a.Relations)
}

// Observation is what the agent sees at one step of a rollout.
// It is built by the driver and not modified by the policy.
type Observation struct {
	Source         []int      // e_s
	SourceEncoding *mat.Dense // encoding of e_s, rows align with the rollout batch
	Query          []int      // q
	Target         []int      // e_t
	FirstStep      bool
	LastStep       bool
	LastRelation   []int
	SeenNodes      [][]int
}

// CheckBatch verifies all per-example fields have batch size n
func (o *Observation) CheckBatch(n int) error {
	if len(o.Source) != n || len(o.Query) != n || len(o.Target) != n || len(o.LastRelation) != n {
		return fmt.Errorf("observation batch mismatch: entities=%d source=%d query=%d target=%d last_relation=%d",
			n, len(o.Source), len(o.Query), len(o.Target), len(o.LastRelation))
	}
	if o.SeenNodes != nil && len(o.SeenNodes) != n {
		return fmt.Errorf("observation batch mismatch: entities=%d seen_nodes=%d", n, len(o.SeenNodes))
	}
	return nil
}

// Slice returns the observation restricted to the given batch indices.
// The source encoding is shared and not sliced.
func (o *Observation) Slice(refs []int) *Observation {
	sliced := &Observation{
		Source:         pick(o.Source, refs),
		SourceEncoding: o.SourceEncoding,
		Query:          pick(o.Query, refs),
		Target:         pick(o.Target, refs),
		FirstStep:      o.FirstStep,
		LastStep:       o.LastStep,
		LastRelation:   pick(o.LastRelation, refs),
	}
	if o.SeenNodes != nil {
		sliced.SeenNodes = make([][]int, len(refs))
		for i, ref := range refs {
			sliced.SeenNodes[i] = o.SeenNodes[ref]
		}
	}
	return sliced
}

func pick(values []int, refs []int) []int {
	out := make([]int, len(refs))
	for i, ref := range refs {
		out[i] = values[ref]
	}
	return out
}
