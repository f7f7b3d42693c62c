package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturoeanton/erp-vision-middleware/internal/adapter/erp"
	"github.com/arturoeanton/erp-vision-middleware/internal/odata"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// PriceService copies current ERP prices of library items into the price history.
type PriceService struct {
	registry port.ERPRegistry
	library  port.VectorLibrary
	prices   port.PriceStore
	fields   map[string]string // origin -> product field of its price source
}

// NewPriceService creates a price sync for the origins listed in fields.
func NewPriceService(registry port.ERPRegistry, library port.VectorLibrary, prices port.PriceStore, fields map[string]string) *PriceService {
	return &PriceService{registry: registry, library: library, prices: prices, fields: fields}
}

// Run syncs prices every interval until ctx is done.
func (s *PriceService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sync(ctx); err != nil {
				slog.Error("price sync failed", "error", err)
			} else {
				slog.Info("price sync complete", "rows", n)
			}
		}
	}
}

// Sync fetches and stores prices for every configured origin. It returns
// the number of rows written.
func (s *PriceService) Sync(ctx context.Context) (int, error) {
	total := 0
	for origin, field := range s.fields {
		n, err := s.syncOrigin(ctx, origin, field)
		if err != nil {
			return total, fmt.Errorf("sync %s prices: %w", origin, err)
		}
		total += n
	}
	return total, nil
}

func (s *PriceService) syncOrigin(ctx context.Context, origin, field string) (int, error) {
	adapter, err := s.registry.Lookup(origin)
	if err != nil {
		return 0, err
	}

	ids, err := s.library.SelectProductIDs(ctx, origin)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	filter, err := odata.EqualityOr(field, ids)
	if err != nil {
		return 0, err
	}

	resp, err := adapter.GetItemPrice(ctx, port.ERPQuery{Filter: filter})
	if err != nil {
		return 0, err
	}

	written := 0
	for _, row := range erp.NormalizePrices(origin, resp) {
		if err := s.prices.InsertPrice(ctx, row); err != nil {
			slog.Error("can't insert price", "origin", origin, "product", row.ProductID, "error", err)
			continue
		}
		written++
	}
	return written, nil
}
