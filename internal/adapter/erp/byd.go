package erp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// ByDPaths are the OData collections read from Business ByDesign.
type ByDPaths struct {
	Items  string
	Orders string
	Prices string
}

// DefaultByDPaths returns the custom OData services the middleware expects.
func DefaultByDPaths() ByDPaths {
	return ByDPaths{
		Items:  "/sap/byd/odata/cust/v1/vmumaterial/MaterialCollection",
		Orders: "/sap/byd/odata/cust/v1/khsalesorder/SalesOrderCollection",
		Prices: "/sap/byd/odata/analytics/ds/Pricelist.svc/PricelistQueryResults",
	}
}

// ByDAdapter reads items, orders and prices from Business ByDesign.
type ByDAdapter struct {
	client *odataClient
	paths  ByDPaths
}

var _ port.ERPAdapter = (*ByDAdapter)(nil)

// NewByDAdapter creates a ByD adapter. Empty paths fall back to the defaults.
func NewByDAdapter(cfg EndpointConfig, paths ByDPaths) *ByDAdapter {
	def := DefaultByDPaths()
	if paths.Items == "" {
		paths.Items = def.Items
	}
	if paths.Orders == "" {
		paths.Orders = def.Orders
	}
	if paths.Prices == "" {
		paths.Prices = def.Prices
	}
	return &ByDAdapter{client: newODataClient(cfg), paths: paths}
}

func (a *ByDAdapter) Origin() string       { return OriginByD }
func (a *ByDAdapter) ProductField() string { return "ProductID" }

func (a *ByDAdapter) GetItems(ctx context.Context, q port.ERPQuery) (*port.ERPResponse, error) {
	return a.fetch(ctx, a.paths.Items, q)
}

func (a *ByDAdapter) GetSalesOrders(ctx context.Context, q port.ERPQuery) (*port.ERPResponse, error) {
	return a.fetch(ctx, a.paths.Orders, q)
}

// GetItemPrice reads the price list report. The report keys products by
// CIPR_PRODUCT, so a productid filter is rewritten by the caller.
func (a *ByDAdapter) GetItemPrice(ctx context.Context, q port.ERPQuery) (*port.ERPResponse, error) {
	return a.fetch(ctx, a.paths.Prices, q)
}

// fetch unwraps the OData v2 envelope {"d":{"results":[...],"__next":"..."}}.
func (a *ByDAdapter) fetch(ctx context.Context, path string, q port.ERPQuery) (*port.ERPResponse, error) {
	body, err := a.client.get(ctx, path, q, url.Values{"$format": {"json"}})
	if err != nil {
		return nil, fmt.Errorf("byd %s: %w", path, err)
	}
	var env struct {
		D struct {
			Results []json.RawMessage `json:"results"`
			Next    string            `json:"__next"`
		} `json:"d"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("byd %s decode: %w", path, err)
	}
	return &port.ERPResponse{Value: env.D.Results, NextLink: env.D.Next}, nil
}
