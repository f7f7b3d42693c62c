package domain

// ItemRow is the canonical item shape returned to callers regardless of
// which ERP backend it came from.
type ItemRow struct {
	Origin    string   `json:"origin"`
	ProductID string   `json:"productId"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	Currency  string   `json:"currency,omitempty"`
	Qty       float64  `json:"qty"`
	Image     string   `json:"image,omitempty"`
	Score     *float64 `json:"score,omitempty"` // filled by the similarity merge
}

// OriginItems groups the normalized rows of one backend. Error is set when
// the backend reported a failure; Values is then empty.
type OriginItems struct {
	Values   []ItemRow `json:"values"`
	Error    string    `json:"error,omitempty"`
	NextLink string    `json:"odata.nextLink,omitempty"`
}

// ItemsByOrigin is the response shape for item listings: origin -> rows.
type ItemsByOrigin map[string]*OriginItems

// PriceRow is one price history entry.
type PriceRow struct {
	Origin    string  `json:"origin"    db:"origin"`
	ProductID string  `json:"productId" db:"productid"`
	Price     float64 `json:"price"     db:"price"`
	Currency  string  `json:"currency"  db:"currency"`
}
