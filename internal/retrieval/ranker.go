// Package retrieval ranks stored chunks against a query embedding and
// assembles the ranked hits into a prompt-ready context block.
//
// Ranking is an exact top-k linear scan over the scope-filtered candidate
// set. Both operations are pure and safe to run inline.
package retrieval

import (
	"math"
	"sort"

	"github.com/applydi/applydi/internal/store"
)

// Scored pairs a candidate with its cosine similarity to the query.
type Scored struct {
	Candidate  store.ChunkWithDocument
	Similarity float64
}

// Rank scores candidates against the query vector and returns the topK best
// in descending similarity order.
//
// Candidates without a stored embedding are never scored and never returned.
// Ties keep candidate order (stable sort), so a fixed candidate ordering
// yields a deterministic result. topK <= 0 returns nil.
func Rank(query []float32, candidates []store.ChunkWithDocument, topK int) []Scored {
	if topK <= 0 {
		return nil
	}

	scored := make([]Scored, 0, len(candidates))
	for _, cand := range candidates {
		if !cand.Chunk.Embedded() {
			continue
		}
		scored = append(scored, Scored{
			Candidate:  cand,
			Similarity: CosineSimilarity(query, cand.Chunk.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// CosineSimilarity returns the cosine of the angle between a and b in
// [-1, 1]. A zero-norm vector on either side scores 0, never NaN.
// Vectors of unequal length are compared over their common prefix.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
