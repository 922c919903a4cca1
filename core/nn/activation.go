package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LeakyReLUSlope is the negative slope of LeakyReLU
const LeakyReLUSlope = 0.01

// ReLU applies max(0, x) in place and returns x
func ReLU(x *mat.Dense) *mat.Dense {
	x.Apply(func(_, _ int, v float64) float64 {
		return math.Max(0, v)
	}, x)
	return x
}

// LeakyReLU applies the leaky rectifier in place and returns x
func LeakyReLU(x *mat.Dense) *mat.Dense {
	x.Apply(func(_, _ int, v float64) float64 {
		if v < 0 {
			return v * LeakyReLUSlope
		}
		return v
	}, x)
	return x
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

// Dropout zeroes activations with probability Rate during training
// and scales the survivors by 1/(1-Rate).
type Dropout struct {
	Rate float64
}

// NewDropout creates a dropout layer
func NewDropout(rate float64) (*Dropout, error) {
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("dropout rate %v outside [0, 1)", rate)
	}
	return &Dropout{Rate: rate}, nil
}

// Forward returns x unchanged outside training, otherwise a new dropped out matrix
func (d *Dropout) Forward(ec *ExecContext, x *mat.Dense, training bool) *mat.Dense {
	if !training || d.Rate == 0 {
		return x
	}

	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	scale := 1 / (1 - d.Rate)
	for i := 0; i < r; i++ {
		in := x.RawRowView(i)
		row := out.RawRowView(i)
		for j, v := range in {
			if ec.Rand.Float64() >= d.Rate {
				row[j] = v * scale
			}
		}
	}
	return out
}
