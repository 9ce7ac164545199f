package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbedding marks provider-unreachable or malformed-response failures
	// from the embedding service.
	ErrEmbedding = errors.New("embedding failure")
	// ErrIndexUnavailable marks an unreachable vector index. There is no safe
	// degraded path for it during an active read or write.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrCacheUnavailable marks a shared-cache fault. It is downgraded
	// internally and never surfaced to callers.
	ErrCacheUnavailable = errors.New("result cache unavailable")
	// ErrDimensionMismatch marks a vector whose length disagrees with the
	// configured embedding dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
