package pipeline

import (
	"fmt"

	"github.com/siherrmann/kgwalker/core/nn"
	"github.com/siherrmann/kgwalker/helper"
	"github.com/siherrmann/kgwalker/model"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Seeder writes text embeddings of vocabulary names into embedding tables.
// Text embeddings wider or narrower than the table are mapped through a
// fixed random projection that is shared by every table of one seeder.
type Seeder struct {
	ec    *nn.ExecContext
	embed EmbedFunc
	text  TextFunc

	projections map[[2]int]*nn.Linear
}

// NewSeeder creates a seeder. A nil text function defaults to NameText.
func NewSeeder(ec *nn.ExecContext, embed EmbedFunc, text TextFunc) (*Seeder, error) {
	if embed == nil {
		return nil, helper.NewError("seeder validation", fmt.Errorf("embed function is nil"))
	}
	if text == nil {
		text = NameText
	}
	return &Seeder{
		ec:          ec,
		embed:       embed,
		text:        text,
		projections: make(map[[2]int]*nn.Linear),
	}, nil
}

// Seed overwrites the row of every non reserved vocabulary id with the
// embedding of its name. Rows are scaled to unit norm. It returns the number
// of rows written.
func (s *Seeder) Seed(table *nn.Embedding, vocabulary *model.Vocabulary, reserved int) (int, error) {
	if vocabulary.Len() > table.Num() {
		return 0, helper.NewError("seed embeddings", fmt.Errorf("vocabulary of %d names does not fit %d rows", vocabulary.Len(), table.Num()))
	}

	written := 0
	for id := reserved; id < vocabulary.Len(); id++ {
		name := vocabulary.Name(id)
		vector, err := s.embed(s.text(name))
		if err != nil {
			return written, helper.NewError(fmt.Sprintf("embed %q", name), err)
		}
		if len(vector) == 0 {
			return written, helper.NewError(fmt.Sprintf("embed %q", name), fmt.Errorf("empty embedding"))
		}

		row, err := s.fit(vector, table.Dim())
		if err != nil {
			return written, helper.NewError("project embedding", err)
		}
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
		if err := table.SetRow(id, row); err != nil {
			return written, helper.NewError("set embedding row", err)
		}
		written++
	}

	s.ec.Logger.Debug("seeded embeddings", "rows", written, "dim", table.Dim())
	return written, nil
}

// fit converts vector to dim values, projecting when the sizes differ
func (s *Seeder) fit(vector []float32, dim int) ([]float64, error) {
	in := make([]float64, len(vector))
	for i, v := range vector {
		in[i] = float64(v)
	}
	if len(in) == dim {
		return in, nil
	}

	key := [2]int{len(in), dim}
	projection, ok := s.projections[key]
	if !ok {
		projection = nn.NewLinear(s.ec, len(in), dim)
		projection.ResetXavier(s.ec)
		s.projections[key] = projection
	}
	out, err := projection.Forward(mat.NewDense(1, len(in), in))
	if err != nil {
		return nil, err
	}
	return out.RawRowView(0), nil
}
