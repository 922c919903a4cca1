package policy

import (
	"fmt"

	"github.com/siherrmann/kgwalker/core/graph"
	"github.com/siherrmann/kgwalker/model"
	"gonum.org/v1/gonum/mat"
)

// InverseRelations looks up the inverse of a relation
type InverseRelations interface {
	InverseRelation(relation int) int
}

// Masker removes actions the agent must not take from an action space
type Masker struct {
	answers  graph.AnswerIndex
	inverse  InverseRelations
	allKnown bool
}

// NewMasker creates a masker. allKnown selects the answers of every split
// for false negative masking instead of the training answers.
func NewMasker(answers graph.AnswerIndex, inverse InverseRelations, allKnown bool) *Masker {
	return &Masker{
		answers:  answers,
		inverse:  inverse,
		allKnown: allKnown,
	}
}

// GroundTruthEdgeMask marks the query edge (e_s, q, e_t) and its inverse
// (e_t, q⁻¹, e_s) wherever they appear in the action space of e.
// Rows with a dummy source are never marked.
func (m *Masker) GroundTruthEdgeMask(e []int, space *graph.ActionSpace, obs *model.Observation) *mat.Dense {
	out := mat.NewDense(space.Len(), space.Width(), nil)
	for i := range e {
		if obs.Source[i] == model.DummyEntity {
			continue
		}
		inverse := m.inverse.InverseRelation(obs.Query[i])
		row := out.RawRowView(i)
		for j := range row {
			r, target := space.Relations[i][j], space.Entities[i][j]
			if e[i] == obs.Source[i] && r == obs.Query[i] && target == obs.Target[i] {
				row[j]++
			}
			if e[i] == obs.Target[i] && r == inverse && target == obs.Source[i] {
				row[j]++
			}
		}
	}
	return out
}

// FalseNegativeMask marks every known answer of (e_s, q) other than e_t
func (m *Masker) FalseNegativeMask(space *graph.ActionSpace, obs *model.Observation) *mat.Dense {
	out := mat.NewDense(space.Len(), space.Width(), nil)
	for i := 0; i < space.Len(); i++ {
		answers := m.answers.Answers(obs.Source[i], obs.Query[i], m.allKnown)
		if len(answers) == 0 {
			continue
		}
		row := out.RawRowView(i)
		for j, target := range space.Entities[i] {
			if _, ok := answers[target]; ok && target != obs.Target[i] {
				row[j] = 1
			}
		}
	}
	return out
}

// ApplyActionMasks masks the ground truth edge and, on the last step, the false
// negatives of space. space must be an owned copy, its mask is changed in place.
func (m *Masker) ApplyActionMasks(space *graph.ActionSpace, e []int, obs *model.Observation) error {
	if len(e) != space.Len() {
		return fmt.Errorf("%w: %d entities for %d action space rows", ErrShapeMismatch, len(e), space.Len())
	}
	if err := obs.CheckBatch(len(e)); err != nil {
		return fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}

	space.Mask.Sub(space.Mask, m.GroundTruthEdgeMask(e, space, obs))
	if err := ValidateActionMask(space.Mask); err != nil {
		return fmt.Errorf("after ground truth masking: %w", err)
	}

	if obs.LastStep {
		fn := m.FalseNegativeMask(space, obs)
		space.Mask.Apply(func(i, j int, v float64) float64 {
			return v * (1 - fn.At(i, j))
		}, space.Mask)
		if err := ValidateActionMask(space.Mask); err != nil {
			return fmt.Errorf("after false negative masking: %w", err)
		}
	}
	return nil
}

// ValidateActionMask fails unless every element of mask is exactly 0 or 1
func ValidateActionMask(mask *mat.Dense) error {
	r, c := mask.Dims()
	for i := 0; i < r; i++ {
		for j, v := range mask.RawRowView(i) {
			if v != 0 && v != 1 {
				return fmt.Errorf("%w: %v at (%d, %d) of %dx%d", ErrInvalidActionMask, v, i, j, r, c)
			}
		}
	}
	return nil
}
