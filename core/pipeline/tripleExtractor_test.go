package pipeline

import (
	"testing"

	"github.com/siherrmann/kgwalker/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseREBELOutput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Triplet
	}{
		{
			name:  "Single triplet",
			input: "<triplet> Punta Cana <subj> located in <obj> Higüey",
			expected: []Triplet{
				{Head: "Punta Cana", Relation: "located in", Tail: "Higüey"},
			},
		},
		{
			name:  "Multiple triplets",
			input: "<triplet> Punta Cana <subj> located in <obj> Higüey <triplet> La Altagracia Province <subj> country <obj> Dominican Republic",
			expected: []Triplet{
				{Head: "Punta Cana", Relation: "located in", Tail: "Higüey"},
				{Head: "La Altagracia Province", Relation: "country", Tail: "Dominican Republic"},
			},
		},
		{
			name:     "Empty input",
			input:    "",
			expected: nil,
		},
		{
			name:  "With extra whitespace",
			input: "<triplet>  Apple Inc.  <subj>  founded by  <obj>  Steve Jobs  ",
			expected: []Triplet{
				{Head: "Apple Inc.", Relation: "founded by", Tail: "Steve Jobs"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseREBELOutput(tt.input)
			assert.Equal(t, tt.expected, result, "Expected parsed triplets to match")
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"located in", "located_in"},
		{"Located In", "located_in"},
		{"FOUNDED BY", "founded_by"},
		{"capital-of", "capital_of"},
		{"  Dominican   Republic ", "dominican_republic"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeName(tt.input), "Expected normalized name")
		})
	}
}

func TestTripletsToTriples(t *testing.T) {
	t.Run("Triplets become auxiliary triples", func(t *testing.T) {
		triples := TripletsToTriples([]Triplet{
			{Head: "Punta Cana", Relation: "located in", Tail: "Higüey"},
			{Head: "punta cana", Relation: "Located In", Tail: "higüey"},
			{Head: "Apple", Relation: " ", Tail: "Steve Jobs"},
		}, model.SplitAux)

		require.Len(t, triples, 1, "Expected duplicates and empty names to be dropped")
		assert.Equal(t, "punta_cana", triples[0].Head, "Expected normalized head")
		assert.Equal(t, "located_in", triples[0].Relation, "Expected normalized relation")
		assert.Equal(t, "higüey", triples[0].Tail, "Expected normalized tail")
		assert.Equal(t, model.SplitAux, triples[0].Split, "Expected auxiliary split")
		assert.NotEqual(t, [16]byte{}, [16]byte(triples[0].RID), "Expected a rid")
	})
}
