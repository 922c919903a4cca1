package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Linear is an affine map y = xW + b with W stored as in × out
type Linear struct {
	Weight *mat.Dense
	Bias   []float64
	in     int
	out    int
}

// NewLinear creates a linear layer initialized with U(-1/sqrt(in), 1/sqrt(in))
func NewLinear(ec *ExecContext, in, out int) *Linear {
	l := &Linear{
		Weight: mat.NewDense(in, out, nil),
		Bias:   make([]float64, out),
		in:     in,
		out:    out,
	}
	bound := 1 / math.Sqrt(float64(in))
	fillUniform(ec.Rand, l.Weight, bound)
	uniformSlice(ec.Rand, l.Bias, bound)
	return l
}

// InDim returns the input width
func (l *Linear) InDim() int { return l.in }

// OutDim returns the output width
func (l *Linear) OutDim() int { return l.out }

// Forward maps a batch × in matrix to batch × out
func (l *Linear) Forward(x mat.Matrix) (*mat.Dense, error) {
	r, c := x.Dims()
	if c != l.in {
		return nil, fmt.Errorf("%w: linear expects %d inputs, got %d", ErrDimensionMismatch, l.in, c)
	}

	out := mat.NewDense(r, l.out, nil)
	out.Mul(x, l.Weight)
	for i := 0; i < r; i++ {
		floats.Add(out.RawRowView(i), l.Bias)
	}
	return out, nil
}

// ResetXavier re-initializes the weight with Xavier uniform and zeroes the bias
func (l *Linear) ResetXavier(ec *ExecContext) {
	XavierUniform(ec.Rand, l.Weight)
	for i := range l.Bias {
		l.Bias[i] = 0
	}
}
