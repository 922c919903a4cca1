package model

// QueryConfig represents configuration for answering a (source, query) question
type QueryConfig struct {
	TopK int `json:"top_k"`

	// Policy walk parameters
	Steps       int `json:"steps"`
	NumRollouts int `json:"num_rollouts"` // Sampled walks per question

	// Graph traversal parameters
	MaxHops int `json:"max_hops,omitempty"`

	// Vector search parameters
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`

	// Ranking parameters
	PolicyWeight float64 `json:"policy_weight"` // Weight for the share of walks ending on an entity
	GraphWeight  float64 `json:"graph_weight"`  // Weight for graph distance
	VectorWeight float64 `json:"vector_weight"` // Weight for embedding similarity
}

// DefaultQueryConfig returns a sensible default configuration
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		TopK:                10,
		Steps:               3,
		NumRollouts:         20,
		MaxHops:             3,
		SimilarityThreshold: 0,
		PolicyWeight:        0.6,
		GraphWeight:         0.2,
		VectorWeight:        0.2,
	}
}

// RetrievalResult represents a candidate answer entity
type RetrievalResult struct {
	Entity          int     `json:"entity"`
	Name            string  `json:"name"`
	Score           float64 `json:"score"`            // Combined score from ranking
	PolicyScore     float64 `json:"policy_score"`     // Share of walks ending here
	SimilarityScore float64 `json:"similarity_score"` // Cosine similarity to source + query
	GraphDistance   int     `json:"graph_distance"`   // Hops from the source, 0 if not traversed
	RetrievalMethod string  `json:"retrieval_method"` // How it was retrieved (policy, multi_hop, vector, hybrid)
}
