package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/docchat-ai/retrieval/internal/core/domain"
)

// normalizeQuery lowercases and collapses whitespace so trivially different
// spellings of the same query share a cache entry.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// cacheKey hashes (normalizedQuery, k, filterSignature) into a stable key.
func cacheKey(normalizedQuery string, k int, filter domain.SearchFilter) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s", normalizedQuery, k, filter.Signature()))
	return "retrieval:" + hex.EncodeToString(sum[:])
}
