package graph

import (
	"fmt"

	"github.com/siherrmann/kgwalker/model"
	"gonum.org/v1/gonum/mat"
)

// ActionSpace is a batch of padded candidate actions.
// Row i lists the (relation, entity) candidates of batch entry i,
// Mask holds 1 for a real candidate and 0 for padding or excluded ones.
type ActionSpace struct {
	Relations [][]int
	Entities  [][]int
	Mask      *mat.Dense
}

// NewActionSpace builds an action space from unpadded candidate lists.
// Rows are right padded to width with dummy actions.
func NewActionSpace(candidates [][]model.Neighbor, width int) (*ActionSpace, error) {
	if len(candidates) == 0 || width <= 0 {
		return nil, fmt.Errorf("action space needs rows and a positive width, got %d rows and width %d", len(candidates), width)
	}

	space := &ActionSpace{
		Relations: make([][]int, len(candidates)),
		Entities:  make([][]int, len(candidates)),
		Mask:      mat.NewDense(len(candidates), width, nil),
	}
	for i, row := range candidates {
		if len(row) > width {
			return nil, fmt.Errorf("row %d has %d candidates, wider than %d", i, len(row), width)
		}
		space.Relations[i] = make([]int, width)
		space.Entities[i] = make([]int, width)
		for j, n := range row {
			space.Relations[i][j] = n.Relation
			space.Entities[i][j] = n.Entity
			space.Mask.Set(i, j, 1)
		}
		for j := len(row); j < width; j++ {
			space.Relations[i][j] = model.DummyRelation
			space.Entities[i][j] = model.DummyEntity
		}
	}
	return space, nil
}

// Len returns the number of rows
func (a *ActionSpace) Len() int {
	return len(a.Relations)
}

// Width returns the padded number of candidates per row
func (a *ActionSpace) Width() int {
	_, c := a.Mask.Dims()
	return c
}

// Rows returns a deep copy of the rows idx, in that order
func (a *ActionSpace) Rows(idx []int) (*ActionSpace, error) {
	if len(idx) == 0 {
		return nil, fmt.Errorf("empty row selection")
	}

	width := a.Width()
	out := &ActionSpace{
		Relations: make([][]int, len(idx)),
		Entities:  make([][]int, len(idx)),
		Mask:      mat.NewDense(len(idx), width, nil),
	}
	for i, j := range idx {
		if j < 0 || j >= a.Len() {
			return nil, fmt.Errorf("row %d outside action space of %d rows", j, a.Len())
		}
		out.Relations[i] = append([]int(nil), a.Relations[j]...)
		out.Entities[i] = append([]int(nil), a.Entities[j]...)
		copy(out.Mask.RawRowView(i), a.Mask.RawRowView(j))
	}
	return out, nil
}

// Pad returns a copy widened to width with dummy actions and zero mask
func (a *ActionSpace) Pad(width int) (*ActionSpace, error) {
	if width < a.Width() {
		return nil, fmt.Errorf("cannot pad width %d down to %d", a.Width(), width)
	}

	out := &ActionSpace{
		Relations: make([][]int, a.Len()),
		Entities:  make([][]int, a.Len()),
		Mask:      mat.NewDense(a.Len(), width, nil),
	}
	for i := range a.Relations {
		out.Relations[i] = padInts(a.Relations[i], width, model.DummyRelation)
		out.Entities[i] = padInts(a.Entities[i], width, model.DummyEntity)
		copy(out.Mask.RawRowView(i), a.Mask.RawRowView(i))
	}
	return out, nil
}

// ConcatActionSpaces pads every space to the widest one and stacks them
func ConcatActionSpaces(spaces []*ActionSpace) (*ActionSpace, error) {
	if len(spaces) == 0 {
		return nil, fmt.Errorf("nothing to concatenate")
	}

	width := 0
	rows := 0
	for _, s := range spaces {
		width = max(width, s.Width())
		rows += s.Len()
	}

	out := &ActionSpace{
		Relations: make([][]int, 0, rows),
		Entities:  make([][]int, 0, rows),
		Mask:      mat.NewDense(rows, width, nil),
	}
	offset := 0
	for _, s := range spaces {
		padded, err := s.Pad(width)
		if err != nil {
			return nil, err
		}
		out.Relations = append(out.Relations, padded.Relations...)
		out.Entities = append(out.Entities, padded.Entities...)
		for i := 0; i < padded.Len(); i++ {
			copy(out.Mask.RawRowView(offset+i), padded.Mask.RawRowView(i))
		}
		offset += padded.Len()
	}
	return out, nil
}

func padInts(values []int, width int, pad int) []int {
	out := make([]int, width)
	n := copy(out, values)
	for j := n; j < width; j++ {
		out[j] = pad
	}
	return out
}
