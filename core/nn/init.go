package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// XavierUniform fills w with U(-a, a), a = gain*sqrt(6/(fanIn+fanOut)).
// Rows are treated as fan out and columns as fan in, as for an embedding table.
func XavierUniform(rng *rand.Rand, w *mat.Dense) {
	r, c := w.Dims()
	bound := math.Sqrt(6.0 / float64(r+c))
	fillUniform(rng, w, bound)
}

// XavierNormal fills w with N(0, std^2), std = sqrt(2/(fanIn+fanOut))
func XavierNormal(rng *rand.Rand, w *mat.Dense) {
	r, c := w.Dims()
	std := math.Sqrt(2.0 / float64(r+c))
	for i := 0; i < r; i++ {
		row := w.RawRowView(i)
		for j := range row {
			row[j] = rng.NormFloat64() * std
		}
	}
}

func fillUniform(rng *rand.Rand, w *mat.Dense, bound float64) {
	r, _ := w.Dims()
	for i := 0; i < r; i++ {
		row := w.RawRowView(i)
		for j := range row {
			row[j] = (rng.Float64()*2 - 1) * bound
		}
	}
}

func uniformSlice(rng *rand.Rand, values []float64, bound float64) {
	for i := range values {
		values[i] = (rng.Float64()*2 - 1) * bound
	}
}
