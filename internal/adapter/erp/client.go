// Package erp holds the HTTP adapters for the SAP Business One Service Layer
// and SAP Business ByDesign OData backends, and the normalization of their
// payloads into the canonical item and order shapes.
package erp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// Origin tags.
const (
	OriginB1  = "b1"
	OriginByD = "byd"
)

// EndpointConfig is the connection info of one backend.
type EndpointConfig struct {
	BaseURL  string
	User     string
	Password string
	Company  string // Business One company database, sent inside the basic auth user
	Timeout  time.Duration
}

// basicUser is the user part of the basic auth header. Business One expects
// {"CompanyDB":...,"UserName":...} when a company database is configured.
func (cfg EndpointConfig) basicUser() string {
	if cfg.Company == "" {
		return cfg.User
	}
	b, err := json.Marshal(struct {
		CompanyDB string `json:"CompanyDB"`
		UserName  string `json:"UserName"`
	}{cfg.Company, cfg.User})
	if err != nil {
		return cfg.User
	}
	return string(b)
}

// odataClient performs GET requests with OData system query options.
type odataClient struct {
	cfg        EndpointConfig
	httpClient *http.Client
}

func newODataClient(cfg EndpointConfig) *odataClient {
	return &odataClient{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// get calls path with q encoded as $filter/$top/$skip plus extra params.
func (c *odataClient) get(ctx context.Context, path string, q port.ERPQuery, extra url.Values) ([]byte, error) {
	params := url.Values{}
	for k, vs := range extra {
		params[k] = vs
	}
	if q.Filter != "" {
		params.Set("$filter", q.Filter)
	}
	if q.Top > 0 {
		params.Set("$top", strconv.Itoa(q.Top))
	}
	if q.Skip > 0 {
		params.Set("$skip", strconv.Itoa(q.Skip))
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if enc := params.Encode(); enc != "" {
		// OData servers expect %20 rather than '+' inside $filter.
		u += "?" + strings.ReplaceAll(enc, "+", "%20")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.User != "" {
		req.SetBasicAuth(c.cfg.basicUser(), c.cfg.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("erp API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
