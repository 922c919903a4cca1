package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LayerNorm normalizes every row to zero mean and unit variance, then scales and shifts
type LayerNorm struct {
	Gamma []float64
	Beta  []float64
	Eps   float64
}

// NewLayerNorm creates a layer norm over dim features with gamma=1, beta=0
func NewLayerNorm(dim int, eps float64) *LayerNorm {
	gamma := make([]float64, dim)
	for i := range gamma {
		gamma[i] = 1
	}
	return &LayerNorm{
		Gamma: gamma,
		Beta:  make([]float64, dim),
		Eps:   eps,
	}
}

// Forward normalizes each row of x into a new matrix
func (ln *LayerNorm) Forward(x *mat.Dense) (*mat.Dense, error) {
	r, c := x.Dims()
	if c != len(ln.Gamma) {
		return nil, fmt.Errorf("%w: layer norm over %d features, got %d", ErrDimensionMismatch, len(ln.Gamma), c)
	}

	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		in := x.RawRowView(i)
		mean := 0.0
		for _, v := range in {
			mean += v
		}
		mean /= float64(c)

		variance := 0.0
		for _, v := range in {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(c)

		inv := 1 / math.Sqrt(variance+ln.Eps)
		row := out.RawRowView(i)
		for j, v := range in {
			row[j] = (v-mean)*inv*ln.Gamma[j] + ln.Beta[j]
		}
	}
	return out, nil
}
