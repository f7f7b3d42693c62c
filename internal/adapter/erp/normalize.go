package erp

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// Payload is what one backend returned: rows or an error, never both.
type Payload struct {
	Resp *port.ERPResponse
	Err  error
}

// flexFloat accepts JSON numbers and the decimal strings OData v2 emits.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type b1Item struct {
	ItemCode        string    `json:"ItemCode"`
	ItemName        string    `json:"ItemName"`
	QuantityOnStock flexFloat `json:"QuantityOnStock"`
	Picture         string    `json:"Picture"`
	ItemPrices      []struct {
		PriceList int       `json:"PriceList"`
		Price     flexFloat `json:"Price"`
		Currency  string    `json:"Currency"`
	} `json:"ItemPrices"`
}

type bydItem struct {
	ProductID         string    `json:"ProductID"`
	InternalID        string    `json:"InternalID"`
	Description       string    `json:"Description"`
	ListPrice         flexFloat `json:"ListPrice"`
	CurrencyCode      string    `json:"CurrencyCode"`
	AvailableQuantity flexFloat `json:"AvailableQuantity"`
	ImageURL          string    `json:"ImageURL"`
}

type b1Order struct {
	DocNum      int64     `json:"DocNum"`
	CardCode    string    `json:"CardCode"`
	CardName    string    `json:"CardName"`
	DocDate     string    `json:"DocDate"`
	DocTotal    flexFloat `json:"DocTotal"`
	DocCurrency string    `json:"DocCurrency"`
}

type bydOrder struct {
	ID                    string    `json:"ID"`
	BuyerPartyID          string    `json:"BuyerPartyID"`
	BuyerPartyName        string    `json:"BuyerPartyName"`
	PostingDate           string    `json:"PostingDate"`
	NetAmount             flexFloat `json:"NetAmount"`
	NetAmountCurrencyCode string    `json:"NetAmountCurrencyCode"`
}

type bydPrice struct {
	Product  string    `json:"CIPR_PRODUCT"`
	Price    flexFloat `json:"KCZF8AB2100987110A811399E"`
	Currency string    `json:"RCITV_NET_AMT_RC"`
}

type itemDecoder func(raw json.RawMessage) (domain.ItemRow, error)
type orderDecoder func(raw json.RawMessage) (domain.SalesOrderRow, error)

var itemDecoders = map[string]itemDecoder{
	OriginB1: func(raw json.RawMessage) (domain.ItemRow, error) {
		var it b1Item
		if err := json.Unmarshal(raw, &it); err != nil {
			return domain.ItemRow{}, err
		}
		row := domain.ItemRow{
			ProductID: it.ItemCode,
			Name:      it.ItemName,
			Qty:       float64(it.QuantityOnStock),
			Image:     it.Picture,
		}
		// Price list 1 is the base list; otherwise take the first one.
		for i, p := range it.ItemPrices {
			if i == 0 || p.PriceList == 1 {
				row.Price = float64(p.Price)
				row.Currency = p.Currency
			}
			if p.PriceList == 1 {
				break
			}
		}
		return row, nil
	},
	OriginByD: func(raw json.RawMessage) (domain.ItemRow, error) {
		var it bydItem
		if err := json.Unmarshal(raw, &it); err != nil {
			return domain.ItemRow{}, err
		}
		id := it.ProductID
		if id == "" {
			id = it.InternalID
		}
		return domain.ItemRow{
			ProductID: id,
			Name:      it.Description,
			Price:     float64(it.ListPrice),
			Currency:  it.CurrencyCode,
			Qty:       float64(it.AvailableQuantity),
			Image:     it.ImageURL,
		}, nil
	},
}

var orderDecoders = map[string]orderDecoder{
	OriginB1: func(raw json.RawMessage) (domain.SalesOrderRow, error) {
		var o b1Order
		if err := json.Unmarshal(raw, &o); err != nil {
			return domain.SalesOrderRow{}, err
		}
		return domain.SalesOrderRow{
			DocNum:       strconv.FormatInt(o.DocNum, 10),
			CustomerCode: o.CardCode,
			CustomerName: o.CardName,
			DocDate:      o.DocDate,
			Total:        float64(o.DocTotal),
			Currency:     o.DocCurrency,
		}, nil
	},
	OriginByD: func(raw json.RawMessage) (domain.SalesOrderRow, error) {
		var o bydOrder
		if err := json.Unmarshal(raw, &o); err != nil {
			return domain.SalesOrderRow{}, err
		}
		return domain.SalesOrderRow{
			DocNum:       o.ID,
			CustomerCode: o.BuyerPartyID,
			CustomerName: o.BuyerPartyName,
			DocDate:      o.PostingDate,
			Total:        float64(o.NetAmount),
			Currency:     o.NetAmountCurrencyCode,
		}, nil
	},
}

// NormalizeItems converts per-origin payloads into canonical rows. A failed
// origin yields an empty row set with its error kept; siblings are untouched.
func NormalizeItems(payloads map[string]Payload) domain.ItemsByOrigin {
	out := make(domain.ItemsByOrigin, len(payloads))
	for _, origin := range sortedOrigins(payloads) {
		p := payloads[origin]
		res := &domain.OriginItems{Values: []domain.ItemRow{}}
		out[origin] = res

		if err := payloadError(origin, p); err != nil {
			res.Error = err.Error()
			continue
		}
		decode, ok := itemDecoders[origin]
		if !ok {
			res.Error = fmt.Sprintf("no item normalizer for origin %q", origin)
			continue
		}
		res.NextLink = p.Resp.NextLink
		for _, raw := range p.Resp.Value {
			row, err := decode(raw)
			if err != nil {
				slog.Warn("skipping malformed item row", "origin", origin, "error", err)
				continue
			}
			row.Origin = origin
			res.Values = append(res.Values, row)
		}
	}
	return out
}

// NormalizeOrders converts per-origin sales order payloads into canonical rows.
func NormalizeOrders(payloads map[string]Payload) domain.OrdersByOrigin {
	out := make(domain.OrdersByOrigin, len(payloads))
	for _, origin := range sortedOrigins(payloads) {
		p := payloads[origin]
		res := &domain.OriginOrders{Values: []domain.SalesOrderRow{}}
		out[origin] = res

		if err := payloadError(origin, p); err != nil {
			res.Error = err.Error()
			continue
		}
		decode, ok := orderDecoders[origin]
		if !ok {
			res.Error = fmt.Sprintf("no order normalizer for origin %q", origin)
			continue
		}
		for _, raw := range p.Resp.Value {
			row, err := decode(raw)
			if err != nil {
				slog.Warn("skipping malformed order row", "origin", origin, "error", err)
				continue
			}
			row.Origin = origin
			res.Values = append(res.Values, row)
		}
	}
	return out
}

// NormalizePrices maps a price payload of origin into price history rows.
func NormalizePrices(origin string, resp *port.ERPResponse) []domain.PriceRow {
	if resp == nil {
		return nil
	}
	var rows []domain.PriceRow
	for _, raw := range resp.Value {
		switch origin {
		case OriginByD:
			var p bydPrice
			if err := json.Unmarshal(raw, &p); err != nil || p.Product == "" {
				continue
			}
			rows = append(rows, domain.PriceRow{Origin: origin, ProductID: p.Product, Price: float64(p.Price), Currency: p.Currency})
		case OriginB1:
			row, err := itemDecoders[OriginB1](raw)
			if err != nil || row.ProductID == "" {
				continue
			}
			rows = append(rows, domain.PriceRow{Origin: origin, ProductID: row.ProductID, Price: row.Price, Currency: row.Currency})
		}
	}
	return rows
}

func payloadError(origin string, p Payload) error {
	if p.Err != nil {
		return p.Err
	}
	if p.Resp == nil {
		return fmt.Errorf("%s returned no payload", origin)
	}
	return nil
}

func sortedOrigins(m map[string]Payload) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
