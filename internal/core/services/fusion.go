package services

import (
	"sort"

	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// fusedChunk holds intermediate search results before hydration.
type fusedChunk struct {
	chunkID      string
	score        float64
	vectorScore  float64
	keywordScore float64
}

// fuseScores merges vector and keyword hits. Each side is weighted and a
// chunk found by both keeps the better weighted score, so a strong
// keyword match cannot outrank an equally strong vector match while
// vectorWeight >= keywordWeight.
func fuseScores(vector []ownerHit, keyword []driven.SearchHit, vectorWeight, keywordWeight float64) []fusedChunk {
	byID := make(map[string]*fusedChunk, len(vector)+len(keyword))
	get := func(id string) *fusedChunk {
		fc, ok := byID[id]
		if !ok {
			fc = &fusedChunk{chunkID: id}
			byID[id] = fc
		}
		return fc
	}

	for _, h := range vector {
		fc := get(h.ownerID)
		fc.vectorScore = similarity(h.distance)
	}
	for _, h := range keyword {
		fc := get(h.ChunkID)
		fc.keywordScore = clamp01(h.Score)
	}

	out := make([]fusedChunk, 0, len(byID))
	for _, fc := range byID {
		fc.score = max(vectorWeight*fc.vectorScore, keywordWeight*fc.keywordScore)
		out = append(out, *fc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].chunkID < out[j].chunkID
	})
	return out
}

// similarity converts a cosine distance to a score in [0,1].
func similarity(distance float64) float64 {
	return clamp01(1 - distance)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
