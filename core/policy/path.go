package policy

import (
	"fmt"

	"github.com/siherrmann/kgwalker/core/nn"
	"gonum.org/v1/gonum/mat"
)

// PathEntry is the recurrent state after one step of a path
type PathEntry interface {
	// Hidden returns the hidden state of the top layer (batch × historyDim)
	Hidden() *mat.Dense
	// Batch returns the number of rows of the state
	Batch() int
	// Reindex returns the state with row i taken from row offset[i]
	Reindex(offset []int) (PathEntry, error)
}

// TupleState is the (hidden, cell) state of an LSTM, one matrix per layer
type TupleState struct {
	H []*mat.Dense
	C []*mat.Dense
}

func (s *TupleState) Hidden() *mat.Dense { return s.H[len(s.H)-1] }

func (s *TupleState) Batch() int {
	r, _ := s.H[0].Dims()
	return r
}

func (s *TupleState) Reindex(offset []int) (PathEntry, error) {
	h, err := reindexLayers(s.H, offset)
	if err != nil {
		return nil, err
	}
	c, err := reindexLayers(s.C, offset)
	if err != nil {
		return nil, err
	}
	return &TupleState{H: h, C: c}, nil
}

// TensorState is the hidden state of a GRU, one matrix per layer
type TensorState struct {
	H []*mat.Dense
}

func (s *TensorState) Hidden() *mat.Dense { return s.H[len(s.H)-1] }

func (s *TensorState) Batch() int {
	r, _ := s.H[0].Dims()
	return r
}

func (s *TensorState) Reindex(offset []int) (PathEntry, error) {
	h, err := reindexLayers(s.H, offset)
	if err != nil {
		return nil, err
	}
	return &TensorState{H: h}, nil
}

func reindexLayers(layers []*mat.Dense, offset []int) ([]*mat.Dense, error) {
	out := make([]*mat.Dense, len(layers))
	for k, layer := range layers {
		m, err := nn.SelectRows(layer, offset)
		if err != nil {
			return nil, fmt.Errorf("%w: reindex path: %v", ErrShapeMismatch, err)
		}
		out[k] = m
	}
	return out, nil
}

// PathEncoder advances a recurrent state by one action embedding
type PathEncoder interface {
	// Start feeds x from a zero state
	Start(x *mat.Dense) (PathEntry, error)
	Step(x *mat.Dense, prev PathEntry) (PathEntry, error)
	ResetXavier(ec *nn.ExecContext)
}

// LSTMEncoder produces tuple valued path entries
type LSTMEncoder struct {
	*nn.LSTM
}

func (l *LSTMEncoder) Start(x *mat.Dense) (PathEntry, error) {
	batch, _ := x.Dims()
	h, c := l.ZeroState(batch)
	return l.Step(x, &TupleState{H: h, C: c})
}

func (l *LSTMEncoder) Step(x *mat.Dense, prev PathEntry) (PathEntry, error) {
	state, ok := prev.(*TupleState)
	if !ok {
		return nil, fmt.Errorf("%w: lstm needs a tuple state, got %T", ErrShapeMismatch, prev)
	}
	h, c, err := l.LSTM.Step(x, state.H, state.C)
	if err != nil {
		return nil, err
	}
	return &TupleState{H: h, C: c}, nil
}

// GRUEncoder produces tensor valued path entries
type GRUEncoder struct {
	*nn.GRU
}

func (g *GRUEncoder) Start(x *mat.Dense) (PathEntry, error) {
	batch, _ := x.Dims()
	return g.Step(x, &TensorState{H: g.ZeroState(batch)})
}

func (g *GRUEncoder) Step(x *mat.Dense, prev PathEntry) (PathEntry, error) {
	state, ok := prev.(*TensorState)
	if !ok {
		return nil, fmt.Errorf("%w: gru needs a tensor state, got %T", ErrShapeMismatch, prev)
	}
	h, err := g.GRU.Step(x, state.H)
	if err != nil {
		return nil, err
	}
	return &TensorState{H: h}, nil
}

// NewPathEncoder creates the recurrent cell named by cell ("lstm" or "gru")
func NewPathEncoder(ec *nn.ExecContext, cell string, inputDim, historyDim, numLayers int) (PathEncoder, error) {
	if inputDim <= 0 || historyDim <= 0 || numLayers <= 0 {
		return nil, fmt.Errorf("%w: path encoder %d -> %d with %d layers", ErrShapeMismatch, inputDim, historyDim, numLayers)
	}
	switch cell {
	case "lstm", "":
		return &LSTMEncoder{nn.NewLSTM(ec, inputDim, historyDim, numLayers)}, nil
	case "gru":
		return &GRUEncoder{nn.NewGRU(ec, inputDim, historyDim, numLayers)}, nil
	default:
		return nil, fmt.Errorf("%w: history cell %q", ErrNotImplemented, cell)
	}
}

// PathHistory is the list of recurrent states of the current rollout
type PathHistory struct {
	encoder PathEncoder
	entries []PathEntry
}

// NewPathHistory creates an empty history on encoder
func NewPathHistory(encoder PathEncoder) *PathHistory {
	return &PathHistory{encoder: encoder}
}

// Reset drops every entry and stores the state after feeding x from zero
func (p *PathHistory) Reset(x *mat.Dense) error {
	entry, err := p.encoder.Start(x)
	if err != nil {
		return err
	}
	p.entries = []PathEntry{entry}
	return nil
}

// Reindex reorders every stored entry along the batch axis
func (p *PathHistory) Reindex(offset []int) error {
	reindexed := make([]PathEntry, len(p.entries))
	for i, entry := range p.entries {
		e, err := entry.Reindex(offset)
		if err != nil {
			return err
		}
		reindexed[i] = e
	}
	p.entries = reindexed
	return nil
}

// Append advances the last state by x and stores the result
func (p *PathHistory) Append(x *mat.Dense) error {
	if len(p.entries) == 0 {
		return ErrEmptyPath
	}
	entry, err := p.encoder.Step(x, p.entries[len(p.entries)-1])
	if err != nil {
		return err
	}
	p.entries = append(p.entries, entry)
	return nil
}

// Top returns the top layer hidden state of the last entry
func (p *PathHistory) Top() (*mat.Dense, error) {
	if len(p.entries) == 0 {
		return nil, ErrEmptyPath
	}
	return p.entries[len(p.entries)-1].Hidden(), nil
}

// Len returns the number of stored entries
func (p *PathHistory) Len() int {
	return len(p.entries)
}

// Entry returns entry i
func (p *PathHistory) Entry(i int) PathEntry {
	return p.entries[i]
}
