// Package vision talks to the external image feature extraction and
// similarity scoring service.
package vision

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// Config holds the endpoints and credential of the vision service.
type Config struct {
	BaseURL            string // e.g. https://sandbox.api.sap.com/ml
	APIKey             string
	FeatureEndpoint    string
	SimilarityEndpoint string
	ClassifyEndpoint   string
	Timeout            time.Duration // zero means no client timeout
}

// Client implements port.VisionProvider over HTTP multipart calls.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ port.VisionProvider = (*Client)(nil)

// NewClient creates a vision client.
func NewClient(cfg Config) *Client {
	if cfg.FeatureEndpoint == "" {
		cfg.FeatureEndpoint = "/imagefeatureextraction/feature-extraction"
	}
	if cfg.SimilarityEndpoint == "" {
		cfg.SimilarityEndpoint = "/similarityscoring/similarity-scoring"
	}
	if cfg.ClassifyEndpoint == "" {
		cfg.ClassifyEndpoint = "/sti/classification/text/classify"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ExtractVectors uploads filePath and returns one prediction per detected subject.
func (c *Client) ExtractVectors(ctx context.Context, filePath string) (*domain.PredictionSet, error) {
	const op = "extract vectors"

	body, err := c.postFile(ctx, op, c.cfg.FeatureEndpoint, filePath, nil)
	if err != nil {
		return nil, err
	}

	var set domain.PredictionSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, &port.DecodeError{Op: op, Err: err}
	}
	if len(set.Predictions) == 0 {
		return nil, &port.DecodeError{Op: op, Err: port.ErrNoPredictions}
	}
	return &set, nil
}

// ScoreSimilarity uploads the vector archive and asks for topN similar
// vectors per subject. topN <= 0 uses port.DefaultTopN.
func (c *Client) ScoreSimilarity(ctx context.Context, archivePath string, topN int) (*domain.SimilarityMatrix, error) {
	const op = "similarity scoring"
	if topN <= 0 {
		topN = port.DefaultTopN
	}

	opts := map[string]string{
		"options": fmt.Sprintf(`{"numSimilarVectors":%d}`, topN),
	}
	body, err := c.postFile(ctx, op, c.cfg.SimilarityEndpoint, archivePath, opts)
	if err != nil {
		return nil, err
	}

	var m domain.SimilarityMatrix
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, &port.DecodeError{Op: op, Err: err}
	}
	return &m, nil
}

// Classify sends text to the classification endpoint and returns the top class.
func (c *Client) Classify(ctx context.Context, text string) (*domain.Classification, error) {
	const op = "classify text"

	payload := map[string]interface{}{
		"business_object": "ticket",
		"messages": []map[string]interface{}{{
			"id": time.Now().UnixNano(),
			"contents": []map[string]string{
				{"field": "text", "value": text},
			},
		}},
		"options": []map[string]bool{{"classification_keyword": true}},
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal payload: %w", op, err)
	}

	body, err := c.do(ctx, op, c.cfg.ClassifyEndpoint, "application/json", bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results []struct {
			Classification []domain.Classification `json:"classification"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &port.DecodeError{Op: op, Err: err}
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Classification) == 0 {
		return nil, &port.DecodeError{Op: op, Err: port.ErrNoPredictions}
	}
	return &resp.Results[0].Classification[0], nil
}

// postFile sends filePath as the "files" form field plus any extra fields.
func (c *Client) postFile(ctx context.Context, op, endpoint, filePath string, fields map[string]string) ([]byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%s: open %s: %w", op, filePath, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("%s: build form: %w", op, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("%s: read %s: %w", op, filePath, err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("%s: build form: %w", op, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: build form: %w", op, err)
	}

	return c.do(ctx, op, endpoint, mw.FormDataContentType(), &buf)
}

// do posts body to the endpoint and classifies failures.
func (c *Client) do(ctx context.Context, op, endpoint, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+endpoint, body)
	if err != nil {
		return nil, &port.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("APIKey", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &port.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &port.TransportError{Op: op, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &port.ServiceError{Op: op, Status: resp.StatusCode, Message: serviceMessage(resp, respBody)}
	}
	return respBody, nil
}

// serviceMessage prefers the service's own error message over the raw body.
func serviceMessage(resp *http.Response, body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		StatusMessage string `json:"status_message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error.Message != "" {
			return e.Error.Message
		}
		if e.StatusMessage != "" {
			return e.StatusMessage
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}
