package port

import (
	"context"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
)

// VectorLibrary is the persisted catalog of extracted image vectors.
type VectorLibrary interface {
	SelectVectors(ctx context.Context) ([]domain.VectorRecord, error)
	SelectProductIDs(ctx context.Context, origin string) ([]string, error)
	UpsertVector(ctx context.Context, rec domain.VectorRecord) error
	CleanVectors(ctx context.Context) (int64, error)
}

// PriceStore keeps the item price history.
type PriceStore interface {
	InsertPrice(ctx context.Context, row domain.PriceRow) error
}
