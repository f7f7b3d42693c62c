package erp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// B1Adapter reads items and orders from the SAP Business One Service Layer.
type B1Adapter struct {
	client *odataClient
}

var _ port.ERPAdapter = (*B1Adapter)(nil)

// NewB1Adapter creates an adapter for a Service Layer base URL such as
// https://host:50000/b1s/v1.
func NewB1Adapter(cfg EndpointConfig) *B1Adapter {
	return &B1Adapter{client: newODataClient(cfg)}
}

func (a *B1Adapter) Origin() string       { return OriginB1 }
func (a *B1Adapter) ProductField() string { return "ItemCode" }

// GetItems lists items.
func (a *B1Adapter) GetItems(ctx context.Context, q port.ERPQuery) (*port.ERPResponse, error) {
	extra := url.Values{"$select": {"ItemCode,ItemName,QuantityOnStock,ItemPrices,Picture"}}
	return a.fetch(ctx, "/Items", q, extra)
}

// GetSalesOrders lists sales orders.
func (a *B1Adapter) GetSalesOrders(ctx context.Context, q port.ERPQuery) (*port.ERPResponse, error) {
	extra := url.Values{"$select": {"DocNum,CardCode,CardName,DocDate,DocTotal,DocCurrency"}}
	return a.fetch(ctx, "/Orders", q, extra)
}

// GetItemPrice returns items with their price lists.
func (a *B1Adapter) GetItemPrice(ctx context.Context, q port.ERPQuery) (*port.ERPResponse, error) {
	extra := url.Values{"$select": {"ItemCode,ItemPrices"}}
	return a.fetch(ctx, "/Items", q, extra)
}

func (a *B1Adapter) fetch(ctx context.Context, path string, q port.ERPQuery, extra url.Values) (*port.ERPResponse, error) {
	body, err := a.client.get(ctx, path, q, extra)
	if err != nil {
		return nil, fmt.Errorf("b1 %s: %w", path, err)
	}
	var resp port.ERPResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("b1 %s decode: %w", path, err)
	}
	return &resp, nil
}
