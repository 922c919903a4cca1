package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// HugeInt is subtracted from the logits of masked out positions before a softmax
const HugeInt = 1e31

// MaskedSoftmax computes a row wise softmax of logits - HugeInt*(1-mask).
// Masked out positions get zero mass unless the whole row is masked.
func MaskedSoftmax(logits, mask *mat.Dense) (*mat.Dense, error) {
	r, c := logits.Dims()
	mr, mc := mask.Dims()
	if r != mr || c != mc {
		return nil, fmt.Errorf("%w: logits %dx%d, mask %dx%d", ErrDimensionMismatch, r, c, mr, mc)
	}

	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		in := logits.RawRowView(i)
		m := mask.RawRowView(i)
		row := out.RawRowView(i)

		maxLogit := math.Inf(-1)
		for j, v := range in {
			row[j] = v - HugeInt*(1-m[j])
			maxLogit = math.Max(maxLogit, row[j])
		}

		sum := 0.0
		for j := range row {
			row[j] = math.Exp(row[j] - maxLogit)
			sum += row[j]
		}
		for j := range row {
			row[j] /= sum
		}
	}
	return out, nil
}

// Entropy returns the Shannon entropy (nats) of every row distribution
func Entropy(dist *mat.Dense) []float64 {
	r, _ := dist.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		h := 0.0
		for _, p := range dist.RawRowView(i) {
			if p > 0 {
				h -= p * math.Log(p)
			}
		}
		out[i] = h
	}
	return out
}
