package retrieval

import (
	"sort"

	"github.com/siherrmann/kgwalker/model"
)

// sortResults orders results by score, ties by entity id, and keeps the top k.
// A non positive topK keeps every result.
func sortResults(resultMap map[int]*model.RetrievalResult, topK int) []*model.RetrievalResult {
	results := make([]*model.RetrievalResult, 0, len(resultMap))
	for _, result := range resultMap {
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entity < results[j].Entity
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// addWeighted folds scored results into resultMap, adding weight * score to each entry
func addWeighted(resultMap map[int]*model.RetrievalResult, results []*model.RetrievalResult, weight float64) {
	for _, r := range results {
		existing, ok := resultMap[r.Entity]
		if !ok {
			existing = &model.RetrievalResult{
				Entity:          r.Entity,
				Name:            r.Name,
				RetrievalMethod: "hybrid",
			}
			resultMap[r.Entity] = existing
		}

		existing.Score += weight * r.Score
		if r.PolicyScore > 0 {
			existing.PolicyScore = r.PolicyScore
		}
		if r.SimilarityScore != 0 {
			existing.SimilarityScore = r.SimilarityScore
		}
		if r.GraphDistance > 0 {
			existing.GraphDistance = r.GraphDistance
		}
	}
}
