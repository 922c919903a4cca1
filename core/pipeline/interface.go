package pipeline

import (
	"strings"

	"github.com/siherrmann/kgwalker/core/graph"
)

// EmbedFunc is a function that generates embeddings for text
type EmbedFunc func(text string) ([]float32, error)

// TextFunc turns a vocabulary name into the text that is embedded for it
type TextFunc func(name string) string

// NameText reads knowledge graph names as plain text.
// Freebase style paths like "/people/person/nationality" become
// "people person nationality", underscores become spaces and an inverse
// relation is read as "inverse of" its forward relation.
func NameText(name string) string {
	inverse := strings.HasSuffix(name, graph.InverseRelationTag)
	name = strings.TrimSuffix(name, graph.InverseRelationTag)

	text := strings.Join(strings.FieldsFunc(name, func(r rune) bool {
		return r == '/' || r == '_' || r == '.'
	}), " ")
	if inverse {
		return "inverse of " + text
	}
	return text
}
