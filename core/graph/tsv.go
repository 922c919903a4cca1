package graph

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/kgwalker/helper"
	"github.com/siherrmann/kgwalker/model"
)

// LoadTriplesTSV reads head\trelation\ttail rows into triples of split.
// Empty lines are skipped, surrounding whitespace of every field is trimmed.
func LoadTriplesTSV(r io.Reader, split model.Split) ([]*model.Triple, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = 3
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	var triples []*model.Triple
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, helper.NewError("read triple", err)
		}

		head := strings.TrimSpace(record[0])
		relation := strings.TrimSpace(record[1])
		tail := strings.TrimSpace(record[2])
		if head == "" || relation == "" || tail == "" {
			line, _ := reader.FieldPos(0)
			return nil, helper.NewError("read triple", fmt.Errorf("line %d has an empty field", line))
		}

		triples = append(triples, &model.Triple{
			RID:      uuid.New(),
			Head:     head,
			Relation: relation,
			Tail:     tail,
			Split:    split,
		})
	}
	return triples, nil
}

// LoadTriplesFile reads a TSV triple file of split
func LoadTriplesFile(path string, split model.Split) ([]*model.Triple, error) {
	file, err := os.Open(path) // #nosec G304 -- path is chosen by the operator
	if err != nil {
		return nil, helper.NewError("open triple file", err)
	}
	defer file.Close()

	return LoadTriplesTSV(file, split)
}
