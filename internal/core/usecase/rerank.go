package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/docchat-ai/retrieval/internal/core/domain"
)

// rerankSemantic recomputes query-candidate cosine similarity, breaks ties by
// a lexical-overlap signal against the query, and keeps the top k.
func rerankSemantic(queryVector []float32, query string, candidates []domain.ScoredChunk, k int) []domain.ScoredChunk {
	if len(candidates) == 0 {
		return candidates
	}

	queryTokens := toTokenSet(query)

	ranked := make([]domain.ScoredChunk, len(candidates))
	copy(ranked, candidates)
	overlaps := make(map[string]float64, len(ranked))
	for i := range ranked {
		if len(ranked[i].Vector) > 0 && len(queryVector) > 0 {
			ranked[i].Score = domain.CosineSimilarity(queryVector, ranked[i].Vector)
		}
		overlaps[rankKey(ranked[i])] = tokenOverlap(queryTokens, toTokenSet(ranked[i].Chunk.Text))
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		oi, oj := overlaps[rankKey(ranked[i])], overlaps[rankKey(ranked[j])]
		if oi != oj {
			return oi > oj
		}
		if ranked[i].Chunk.SourceDocumentID != ranked[j].Chunk.SourceDocumentID {
			return ranked[i].Chunk.SourceDocumentID < ranked[j].Chunk.SourceDocumentID
		}
		return ranked[i].Chunk.Position < ranked[j].Chunk.Position
	})

	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// selectMMR picks k candidates by maximal marginal relevance: at each step the
// unselected candidate maximizing
// lambda*sim(query, c) - (1-lambda)*max(sim(c, selected)).
func selectMMR(queryVector []float32, candidates []domain.ScoredChunk, k int, lambda float64) []domain.ScoredChunk {
	if len(candidates) == 0 || k <= 0 {
		return nil
	}
	if lambda < 0 || lambda > 1 {
		lambda = 0.5
	}

	remaining := make([]domain.ScoredChunk, len(candidates))
	copy(remaining, candidates)
	for i := range remaining {
		if len(remaining[i].Vector) > 0 && len(queryVector) > 0 {
			remaining[i].Score = domain.CosineSimilarity(queryVector, remaining[i].Vector)
		}
	}

	selected := make([]domain.ScoredChunk, 0, k)
	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := mmrScore(remaining[0], selected, lambda)
		for i := 1; i < len(remaining); i++ {
			if score := mmrScore(remaining[i], selected, lambda); score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func mmrScore(candidate domain.ScoredChunk, selected []domain.ScoredChunk, lambda float64) float64 {
	maxSim := 0.0
	if len(candidate.Vector) > 0 {
		for _, s := range selected {
			if len(s.Vector) == 0 {
				continue
			}
			if sim := domain.CosineSimilarity(candidate.Vector, s.Vector); sim > maxSim {
				maxSim = sim
			}
		}
	}
	return lambda*candidate.Score - (1-lambda)*maxSim
}

// thresholdResults drops results scoring below the similarity floor. An empty
// outcome is valid and expected.
func thresholdResults(results []domain.ScoredChunk, threshold float64) []domain.ScoredChunk {
	if threshold <= 0 {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if r.Score >= threshold {
			out = append(out, r)
		}
	}
	return out
}

func rankKey(c domain.ScoredChunk) string {
	return c.Chunk.SourceDocumentID + "\x00" + c.Chunk.ID
}

func keywordMatch(queryTokens map[string]struct{}, keywords []string) bool {
	if len(queryTokens) == 0 {
		return false
	}
	for _, kw := range keywords {
		for _, token := range splitAlphaNumLower(kw) {
			if _, ok := queryTokens[token]; ok {
				return true
			}
		}
	}
	return false
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
