package model

// Reserved entity ids
const (
	DummyEntity = 0
	NoOpEntity  = 1
)

// Reserved relation ids. Forward relations start at FirstRelation and
// every forward relation r has its inverse stored at r+1.
const (
	DummyRelation = 0
	StartRelation = 1
	NoOpRelation  = 2
	FirstRelation = 3
)

// Mode selects training or evaluation behaviour of the policy
type Mode string

const (
	ModeTrain Mode = "train"
	ModeEval  Mode = "eval"
	ModeTest  Mode = "test"
)

// IsTraining reports whether stochastic training behaviour (dropout, neighbor dropout) applies
func (m Mode) IsTraining() bool {
	return m == ModeTrain
}
