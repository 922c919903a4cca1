package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/kgwalker/model"
)

// TripleExtractFunc extracts named triples from free text
type TripleExtractFunc func(text string) ([]*model.Triple, error)

// Triplet is a (head, relation, tail) triplet as generated by REBEL
type Triplet struct {
	Head     string
	Relation string
	Tail     string
}

var tripletPattern = regexp.MustCompile(`<triplet>([^<]+)<subj>([^<]+)<obj>([^<]+)`)

// NewTripleExtractor creates a REBEL text generation extractor from a local onnx model.
// Extracted triples belong to the auxiliary split, so they extend the graph used
// at inference without becoming training facts.
func NewTripleExtractor(modelPath string) (TripleExtractFunc, error) {
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TextGenerationConfig{
		ModelPath: modelPath,
		Name:      "rebel-pipeline",
	}
	generationPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create REBEL pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create REBEL pipeline: %w", err)
	}

	return func(text string) ([]*model.Triple, error) {
		output, err := generationPipeline.RunPipeline(context.Background(), []string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to generate with REBEL: %w", err)
		}
		if len(output.Responses) == 0 || output.Responses[0] == "" {
			return nil, nil
		}
		return TripletsToTriples(parseREBELOutput(output.Responses[0]), model.SplitAux), nil
	}, nil
}

// TripletsToTriples normalizes generated triplets into graph triples of split.
// Repeated triplets are returned once.
func TripletsToTriples(triplets []Triplet, split model.Split) []*model.Triple {
	seen := make(map[Triplet]bool, len(triplets))
	triples := make([]*model.Triple, 0, len(triplets))
	now := time.Now()
	for _, t := range triplets {
		key := Triplet{Head: normalizeName(t.Head), Relation: normalizeName(t.Relation), Tail: normalizeName(t.Tail)}
		if key.Head == "" || key.Relation == "" || key.Tail == "" || seen[key] {
			continue
		}
		seen[key] = true
		triples = append(triples, &model.Triple{
			RID:       uuid.New(),
			Head:      key.Head,
			Relation:  key.Relation,
			Tail:      key.Tail,
			Split:     split,
			CreatedAt: now,
		})
	}
	return triples
}

// parseREBELOutput parses "<triplet> head <subj> relation <obj> tail ..." output
func parseREBELOutput(generated string) []Triplet {
	var triplets []Triplet
	for _, match := range tripletPattern.FindAllStringSubmatch(generated, -1) {
		if len(match) == 4 {
			triplets = append(triplets, Triplet{
				Head:     strings.TrimSpace(match[1]),
				Relation: strings.TrimSpace(match[2]),
				Tail:     strings.TrimSpace(match[3]),
			})
		}
	}
	return triplets
}

// normalizeName lowercases a name and joins its words with underscores
func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "-", " ")
	return strings.Join(strings.Fields(normalized), "_")
}
