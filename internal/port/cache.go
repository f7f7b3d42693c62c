package port

import (
	"context"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
)

// ScoreCache stores per-attempt similarity scores keyed by (origin, productId).
type ScoreCache interface {
	// RecordScores writes every entry under the given result hash.
	RecordScores(ctx context.Context, resultHash string, entries []domain.ScoredProduct) error

	// ReadScores returns score by ScoreKey(origin, productId). It returns
	// ErrCacheMiss when nothing is stored under the hash.
	ReadScores(ctx context.Context, resultHash string) (map[string]float64, error)
}

// ScoreKey builds the field key for one product inside a result hash.
func ScoreKey(origin, productID string) string {
	return origin + ":" + productID
}
