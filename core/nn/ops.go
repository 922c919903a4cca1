package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// HConcat concatenates matrices with equal row counts along the feature axis
func HConcat(ms ...*mat.Dense) (*mat.Dense, error) {
	if len(ms) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", ErrDimensionMismatch)
	}

	rows, _ := ms[0].Dims()
	width := 0
	for _, m := range ms {
		r, c := m.Dims()
		if r != rows {
			return nil, fmt.Errorf("%w: concatenating %d rows with %d rows", ErrDimensionMismatch, rows, r)
		}
		width += c
	}

	out := mat.NewDense(rows, width, nil)
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		offset := 0
		for _, m := range ms {
			offset += copy(row[offset:], m.RawRowView(i))
		}
	}
	return out, nil
}

// SelectRows returns a new matrix made of the rows idx of m, in that order
func SelectRows(m *mat.Dense, idx []int) (*mat.Dense, error) {
	r, c := m.Dims()
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: empty row selection", ErrDimensionMismatch)
	}

	out := mat.NewDense(len(idx), c, nil)
	for i, j := range idx {
		if j < 0 || j >= r {
			return nil, fmt.Errorf("%w: row %d outside %d rows", ErrDimensionMismatch, j, r)
		}
		copy(out.RawRowView(i), m.RawRowView(j))
	}
	return out, nil
}

// RepeatRows repeats every row of m times times, keeping repeats adjacent
func RepeatRows(m *mat.Dense, times int) (*mat.Dense, error) {
	if times <= 0 {
		return nil, fmt.Errorf("%w: repeat factor %d", ErrDimensionMismatch, times)
	}
	r, c := m.Dims()
	out := mat.NewDense(r*times, c, nil)
	for i := 0; i < r; i++ {
		for k := 0; k < times; k++ {
			copy(out.RawRowView(i*times+k), m.RawRowView(i))
		}
	}
	return out, nil
}

// BroadcastRow stacks row n times into an n × len(row) matrix
func BroadcastRow(row []float64, n int) *mat.Dense {
	out := mat.NewDense(n, len(row), nil)
	for i := 0; i < n; i++ {
		copy(out.RawRowView(i), row)
	}
	return out
}

// PadColumns returns m widened to width columns, filling new cells with value
func PadColumns(m *mat.Dense, width int, value float64) (*mat.Dense, error) {
	r, c := m.Dims()
	if width < c {
		return nil, fmt.Errorf("%w: cannot pad %d columns down to %d", ErrDimensionMismatch, c, width)
	}
	out := mat.NewDense(r, width, nil)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		copy(row, m.RawRowView(i))
		for j := c; j < width; j++ {
			row[j] = value
		}
	}
	return out, nil
}

// VConcat stacks matrices with equal column counts
func VConcat(ms ...*mat.Dense) (*mat.Dense, error) {
	if len(ms) == 0 {
		return nil, fmt.Errorf("%w: nothing to stack", ErrDimensionMismatch)
	}
	_, cols := ms[0].Dims()
	rows := 0
	for _, m := range ms {
		r, c := m.Dims()
		if c != cols {
			return nil, fmt.Errorf("%w: stacking %d columns with %d columns", ErrDimensionMismatch, cols, c)
		}
		rows += r
	}

	out := mat.NewDense(rows, cols, nil)
	offset := 0
	for _, m := range ms {
		r, _ := m.Dims()
		for i := 0; i < r; i++ {
			copy(out.RawRowView(offset+i), m.RawRowView(i))
		}
		offset += r
	}
	return out, nil
}
