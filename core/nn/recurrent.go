package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// GatedLayer holds the input and hidden projections of one recurrent layer.
// Gates are laid out side by side along the columns.
type GatedLayer struct {
	WeightIH *mat.Dense // in × gates*hidden
	WeightHH *mat.Dense // hidden × gates*hidden
	BiasIH   []float64
	BiasHH   []float64
}

func newGatedLayer(ec *ExecContext, in, hidden, gates int) *GatedLayer {
	l := &GatedLayer{
		WeightIH: mat.NewDense(in, gates*hidden, nil),
		WeightHH: mat.NewDense(hidden, gates*hidden, nil),
		BiasIH:   make([]float64, gates*hidden),
		BiasHH:   make([]float64, gates*hidden),
	}
	bound := 1 / math.Sqrt(float64(hidden))
	fillUniform(ec.Rand, l.WeightIH, bound)
	fillUniform(ec.Rand, l.WeightHH, bound)
	uniformSlice(ec.Rand, l.BiasIH, bound)
	uniformSlice(ec.Rand, l.BiasHH, bound)
	return l
}

func (l *GatedLayer) resetXavier(ec *ExecContext) {
	XavierNormal(ec.Rand, l.WeightIH)
	XavierNormal(ec.Rand, l.WeightHH)
	for i := range l.BiasIH {
		l.BiasIH[i] = 0
		l.BiasHH[i] = 0
	}
}

// project returns x·W_ih + b_ih and h·W_hh + b_hh
func (l *GatedLayer) project(x, h *mat.Dense) (*mat.Dense, *mat.Dense) {
	r, _ := x.Dims()
	_, width := l.WeightIH.Dims()

	gx := mat.NewDense(r, width, nil)
	gx.Mul(x, l.WeightIH)
	gh := mat.NewDense(r, width, nil)
	gh.Mul(h, l.WeightHH)
	for i := 0; i < r; i++ {
		rx := gx.RawRowView(i)
		rh := gh.RawRowView(i)
		for j := range rx {
			rx[j] += l.BiasIH[j]
			rh[j] += l.BiasHH[j]
		}
	}
	return gx, gh
}

// LSTM is a stack of long short-term memory layers advanced one step at a time.
// Gate order follows the i, f, g, o convention.
type LSTM struct {
	Layers    []*GatedLayer
	InputDim  int
	HiddenDim int
}

// NewLSTM creates a numLayers deep LSTM
func NewLSTM(ec *ExecContext, inputDim, hiddenDim, numLayers int) *LSTM {
	l := &LSTM{
		Layers:    make([]*GatedLayer, numLayers),
		InputDim:  inputDim,
		HiddenDim: hiddenDim,
	}
	for i := range l.Layers {
		in := hiddenDim
		if i == 0 {
			in = inputDim
		}
		l.Layers[i] = newGatedLayer(ec, in, hiddenDim, 4)
	}
	return l
}

// ResetXavier re-initializes weights with Xavier normal and biases with zero
func (l *LSTM) ResetXavier(ec *ExecContext) {
	for _, layer := range l.Layers {
		layer.resetXavier(ec)
	}
}

// ZeroState returns zero hidden and cell states for a batch
func (l *LSTM) ZeroState(batch int) ([]*mat.Dense, []*mat.Dense) {
	h := make([]*mat.Dense, len(l.Layers))
	c := make([]*mat.Dense, len(l.Layers))
	for i := range l.Layers {
		h[i] = mat.NewDense(batch, l.HiddenDim, nil)
		c[i] = mat.NewDense(batch, l.HiddenDim, nil)
	}
	return h, c
}

// Step feeds x through every layer and returns the new hidden and cell states
func (l *LSTM) Step(x *mat.Dense, h, c []*mat.Dense) ([]*mat.Dense, []*mat.Dense, error) {
	if len(h) != len(l.Layers) || len(c) != len(l.Layers) {
		return nil, nil, fmt.Errorf("%w: lstm has %d layers, state has %d/%d", ErrDimensionMismatch, len(l.Layers), len(h), len(c))
	}
	batch, in := x.Dims()
	if in != l.InputDim {
		return nil, nil, fmt.Errorf("%w: lstm expects %d inputs, got %d", ErrDimensionMismatch, l.InputDim, in)
	}

	hidden := l.HiddenDim
	newH := make([]*mat.Dense, len(l.Layers))
	newC := make([]*mat.Dense, len(l.Layers))
	input := x
	for k, layer := range l.Layers {
		if r, _ := h[k].Dims(); r != batch {
			return nil, nil, fmt.Errorf("%w: lstm state batch %d, input batch %d", ErrDimensionMismatch, r, batch)
		}
		gx, gh := layer.project(input, h[k])

		hk := mat.NewDense(batch, hidden, nil)
		ck := mat.NewDense(batch, hidden, nil)
		for i := 0; i < batch; i++ {
			rx := gx.RawRowView(i)
			rh := gh.RawRowView(i)
			prevC := c[k].RawRowView(i)
			outH := hk.RawRowView(i)
			outC := ck.RawRowView(i)
			for j := 0; j < hidden; j++ {
				inGate := sigmoid(rx[j] + rh[j])
				forget := sigmoid(rx[hidden+j] + rh[hidden+j])
				cell := math.Tanh(rx[2*hidden+j] + rh[2*hidden+j])
				out := sigmoid(rx[3*hidden+j] + rh[3*hidden+j])
				outC[j] = forget*prevC[j] + inGate*cell
				outH[j] = out * math.Tanh(outC[j])
			}
		}
		newH[k] = hk
		newC[k] = ck
		input = hk
	}
	return newH, newC, nil
}

// GRU is a stack of gated recurrent unit layers advanced one step at a time.
// Gate order follows the r, z, n convention.
type GRU struct {
	Layers    []*GatedLayer
	InputDim  int
	HiddenDim int
}

// NewGRU creates a numLayers deep GRU
func NewGRU(ec *ExecContext, inputDim, hiddenDim, numLayers int) *GRU {
	g := &GRU{
		Layers:    make([]*GatedLayer, numLayers),
		InputDim:  inputDim,
		HiddenDim: hiddenDim,
	}
	for i := range g.Layers {
		in := hiddenDim
		if i == 0 {
			in = inputDim
		}
		g.Layers[i] = newGatedLayer(ec, in, hiddenDim, 3)
	}
	return g
}

// ResetXavier re-initializes weights with Xavier normal and biases with zero
func (g *GRU) ResetXavier(ec *ExecContext) {
	for _, layer := range g.Layers {
		layer.resetXavier(ec)
	}
}

// ZeroState returns a zero hidden state for a batch
func (g *GRU) ZeroState(batch int) []*mat.Dense {
	h := make([]*mat.Dense, len(g.Layers))
	for i := range g.Layers {
		h[i] = mat.NewDense(batch, g.HiddenDim, nil)
	}
	return h
}

// Step feeds x through every layer and returns the new hidden state
func (g *GRU) Step(x *mat.Dense, h []*mat.Dense) ([]*mat.Dense, error) {
	if len(h) != len(g.Layers) {
		return nil, fmt.Errorf("%w: gru has %d layers, state has %d", ErrDimensionMismatch, len(g.Layers), len(h))
	}
	batch, in := x.Dims()
	if in != g.InputDim {
		return nil, fmt.Errorf("%w: gru expects %d inputs, got %d", ErrDimensionMismatch, g.InputDim, in)
	}

	hidden := g.HiddenDim
	newH := make([]*mat.Dense, len(g.Layers))
	input := x
	for k, layer := range g.Layers {
		if r, _ := h[k].Dims(); r != batch {
			return nil, fmt.Errorf("%w: gru state batch %d, input batch %d", ErrDimensionMismatch, r, batch)
		}
		gx, gh := layer.project(input, h[k])

		hk := mat.NewDense(batch, hidden, nil)
		for i := 0; i < batch; i++ {
			rx := gx.RawRowView(i)
			rh := gh.RawRowView(i)
			prev := h[k].RawRowView(i)
			out := hk.RawRowView(i)
			for j := 0; j < hidden; j++ {
				reset := sigmoid(rx[j] + rh[j])
				update := sigmoid(rx[hidden+j] + rh[hidden+j])
				candidate := math.Tanh(rx[2*hidden+j] + reset*rh[2*hidden+j])
				out[j] = (1-update)*candidate + update*prev[j]
			}
		}
		newH[k] = hk
		input = hk
	}
	return newH, nil
}
