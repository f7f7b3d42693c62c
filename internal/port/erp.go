package port

import (
	"context"
	"sort"

	"github.com/goccy/go-json"
)

// ERPQuery carries OData system query options for a backend call.
type ERPQuery struct {
	Filter string
	Top    int
	Skip   int
}

// ERPResponse is the raw answer of a backend: the list of rows as returned
// by the backend, untouched, plus the paging link when present.
type ERPResponse struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"odata.nextLink,omitempty"`
}

// ERPAdapter is the capability set every ERP backend exposes.
type ERPAdapter interface {
	// Origin returns the tag identifying this backend (e.g. "b1", "byd").
	Origin() string

	// ProductField returns the field name used to filter items by product id.
	ProductField() string

	GetItems(ctx context.Context, q ERPQuery) (*ERPResponse, error)
	GetSalesOrders(ctx context.Context, q ERPQuery) (*ERPResponse, error)
	GetItemPrice(ctx context.Context, q ERPQuery) (*ERPResponse, error)
}

// ERPRegistry maps origin tags to adapters.
type ERPRegistry map[string]ERPAdapter

// NewERPRegistry builds a registry keyed by each adapter's origin.
func NewERPRegistry(adapters ...ERPAdapter) ERPRegistry {
	r := make(ERPRegistry, len(adapters))
	for _, a := range adapters {
		r[a.Origin()] = a
	}
	return r
}

// Lookup returns the adapter for origin or ErrUnknownOrigin.
func (r ERPRegistry) Lookup(origin string) (ERPAdapter, error) {
	a, ok := r[origin]
	if !ok {
		return nil, ErrUnknownOrigin
	}
	return a, nil
}

// Origins returns the registered origin tags in sorted order.
func (r ERPRegistry) Origins() []string {
	out := make([]string, 0, len(r))
	for o := range r {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}
