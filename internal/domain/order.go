package domain

// SalesOrderRow is the canonical sales order shape.
type SalesOrderRow struct {
	Origin       string  `json:"origin"`
	DocNum       string  `json:"docNum"`
	CustomerCode string  `json:"customerCode"`
	CustomerName string  `json:"customerName"`
	DocDate      string  `json:"docDate"`
	Total        float64 `json:"total"`
	Currency     string  `json:"currency,omitempty"`
}

// OriginOrders groups the normalized orders of one backend.
type OriginOrders struct {
	Values []SalesOrderRow `json:"values"`
	Error  string          `json:"error,omitempty"`
}

// OrdersByOrigin is the response shape for order listings.
type OrdersByOrigin map[string]*OriginOrders
