package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// PaddingIdx is the row of every embedding table that stays zero
const PaddingIdx = 0

// Embedding is a lookup table of num × dim vectors.
// Row PaddingIdx is the zero vector.
type Embedding struct {
	Weight *mat.Dense
	num    int
	dim    int
}

// NewEmbedding creates a table initialized with N(0, 1)
func NewEmbedding(ec *ExecContext, num, dim int) *Embedding {
	e := &Embedding{
		Weight: mat.NewDense(num, dim, nil),
		num:    num,
		dim:    dim,
	}
	for i := 0; i < num; i++ {
		row := e.Weight.RawRowView(i)
		for j := range row {
			row[j] = ec.Rand.NormFloat64()
		}
	}
	e.ZeroPadding()
	return e
}

// Num returns the number of rows
func (e *Embedding) Num() int { return e.num }

// Dim returns the vector size
func (e *Embedding) Dim() int { return e.dim }

// ZeroPadding resets the padding row to zero
func (e *Embedding) ZeroPadding() {
	row := e.Weight.RawRowView(PaddingIdx)
	for j := range row {
		row[j] = 0
	}
}

// Lookup returns a len(ids) × dim matrix of embeddings
func (e *Embedding) Lookup(ids []int) (*mat.Dense, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty embedding lookup", ErrDimensionMismatch)
	}

	out := mat.NewDense(len(ids), e.dim, nil)
	for i, id := range ids {
		if id < 0 || id >= e.num {
			return nil, fmt.Errorf("%w: id %d outside embedding table of %d rows", ErrDimensionMismatch, id, e.num)
		}
		copy(out.RawRowView(i), e.Weight.RawRowView(id))
	}
	return out, nil
}

// Row returns a copy of row id
func (e *Embedding) Row(id int) []float64 {
	row := make([]float64, e.dim)
	copy(row, e.Weight.RawRowView(id))
	return row
}

// SetRow overwrites row id. Writes to the padding row are ignored.
func (e *Embedding) SetRow(id int, values []float64) error {
	if len(values) != e.dim {
		return fmt.Errorf("%w: row of %d values for embedding dim %d", ErrDimensionMismatch, len(values), e.dim)
	}
	if id < 0 || id >= e.num {
		return fmt.Errorf("%w: id %d outside embedding table of %d rows", ErrDimensionMismatch, id, e.num)
	}
	if id == PaddingIdx {
		return nil
	}
	copy(e.Weight.RawRowView(id), values)
	return nil
}

// ResetXavierUniform re-initializes the table with Xavier uniform, keeping padding zero
func (e *Embedding) ResetXavierUniform(ec *ExecContext) {
	XavierUniform(ec.Rand, e.Weight)
	e.ZeroPadding()
}

// ResetXavierNormal re-initializes the table with Xavier normal, keeping padding zero
func (e *Embedding) ResetXavierNormal(ec *ExecContext) {
	XavierNormal(ec.Rand, e.Weight)
	e.ZeroPadding()
}
