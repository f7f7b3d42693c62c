package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arturoeanton/erp-vision-middleware/internal/adapter/erp"
	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/metrics"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// CatalogService reads items and sales orders from every ERP backend and
// returns them in the canonical shape.
type CatalogService struct {
	registry port.ERPRegistry
}

// NewCatalogService creates a catalog service over a fixed backend registry.
func NewCatalogService(registry port.ERPRegistry) *CatalogService {
	return &CatalogService{registry: registry}
}

// Origins returns the configured origin tags.
func (s *CatalogService) Origins() []string {
	return s.registry.Origins()
}

// ProductField returns the product id field name of origin.
func (s *CatalogService) ProductField(origin string) (string, error) {
	a, err := s.registry.Lookup(origin)
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, origin)
	}
	return a.ProductField(), nil
}

// GetItems queries every backend with q and waits for all of them.
func (s *CatalogService) GetItems(ctx context.Context, q port.ERPQuery) domain.ItemsByOrigin {
	queries := make(map[string]port.ERPQuery, len(s.registry))
	for origin := range s.registry {
		queries[origin] = q
	}
	return erp.NormalizeItems(s.fanOut(ctx, queries, port.ERPAdapter.GetItems))
}

// GetSalesOrders queries every backend for sales orders.
func (s *CatalogService) GetSalesOrders(ctx context.Context, q port.ERPQuery) domain.OrdersByOrigin {
	queries := make(map[string]port.ERPQuery, len(s.registry))
	for origin := range s.registry {
		queries[origin] = q
	}
	return erp.NormalizeOrders(s.fanOut(ctx, queries, port.ERPAdapter.GetSalesOrders))
}

// FetchItemsByFilter reads the items of one origin matching filter.
func (s *CatalogService) FetchItemsByFilter(ctx context.Context, origin, filter string) (domain.ItemsByOrigin, error) {
	if _, err := s.registry.Lookup(origin); err != nil {
		return nil, fmt.Errorf("%w: %s", err, origin)
	}
	payloads := s.fanOut(ctx, map[string]port.ERPQuery{origin: {Filter: filter}}, port.ERPAdapter.GetItems)
	return erp.NormalizeItems(payloads), nil
}

// FetchAll runs one filtered item fetch per origin concurrently and returns
// only after every origin has answered. Failed or unknown origins come back
// as empty row sets carrying their error.
func (s *CatalogService) FetchAll(ctx context.Context, filters map[string]string) domain.ItemsByOrigin {
	queries := make(map[string]port.ERPQuery, len(filters))
	for origin, f := range filters {
		queries[origin] = port.ERPQuery{Filter: f}
	}
	return erp.NormalizeItems(s.fanOut(ctx, queries, port.ERPAdapter.GetItems))
}

type erpCall func(a port.ERPAdapter, ctx context.Context, q port.ERPQuery) (*port.ERPResponse, error)

// fanOut calls every origin in queries in parallel. It never fails as a
// whole; each origin's error is kept in its payload.
func (s *CatalogService) fanOut(ctx context.Context, queries map[string]port.ERPQuery, call erpCall) map[string]erp.Payload {
	// A plain Group, not WithContext: a failing origin must not cancel its
	// siblings, so goroutines return nil and errors travel in each Payload.
	var (
		mu  sync.Mutex
		out = make(map[string]erp.Payload, len(queries))
		g   errgroup.Group
	)

	for origin, q := range queries {
		g.Go(func() error {
			var p erp.Payload
			a, err := s.registry.Lookup(origin)
			if err != nil {
				p.Err = fmt.Errorf("%w: %s", err, origin)
			} else {
				p.Resp, p.Err = call(a, ctx, q)
			}

			if p.Err != nil {
				slog.Warn("erp fetch failed", "origin", origin, "error", p.Err)
				metrics.ERPFetches.WithLabelValues(origin, metrics.OutcomeError).Inc()
			} else {
				metrics.ERPFetches.WithLabelValues(origin, metrics.OutcomeSuccess).Inc()
			}

			mu.Lock()
			out[origin] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
