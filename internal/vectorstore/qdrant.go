package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dogkeeper886/mem0/internal/apperr"
)

// QdrantClient interfaces with the Qdrant REST API for vector operations.
type QdrantClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewQdrantClient(baseURL string, logger *slog.Logger) *QdrantClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &QdrantClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// qdrantFilter is the wire form of Filter.
type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

func toQdrantFilter(f Filter) *qdrantFilter {
	if len(f.Must) == 0 {
		return nil
	}
	qf := &qdrantFilter{Must: make([]qdrantCondition, len(f.Must))}
	for i, c := range f.Must {
		qf.Must[i].Key = c.Key
		qf.Must[i].Match.Value = c.Value
	}
	return qf
}

type qdrantPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (p qdrantPoint) result() SearchResult {
	var id string
	switch v := p.ID.(type) {
	case string:
		id = v
	case float64:
		// Numeric ids decode as float64.
		id = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		id = fmt.Sprint(v)
	}
	return SearchResult{ID: id, Score: p.Score, Payload: p.Payload}
}

// HealthCheck verifies Qdrant connectivity.
func (c *QdrantClient) HealthCheck(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apperr.New(apperr.IndexUnavailable, "qdrant health check: status %d", status)
	}
	return nil
}

// CollectionExists checks if a collection exists.
func (c *QdrantClient) CollectionExists(ctx context.Context, name string) (bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, collectionPath(name), nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, apperr.New(apperr.IndexUnavailable, "check collection %s: status %d: %s", name, status, body)
	}
}

// EnsureCollection creates a cosine collection if it doesn't exist. A create
// that loses a race with another writer counts as success.
func (c *QdrantClient) EnsureCollection(ctx context.Context, name string, dimension int) error {
	exists, err := c.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	status, resp, err := c.do(ctx, http.MethodPut, collectionPath(name), body)
	if err != nil {
		return err
	}
	if status == http.StatusConflict || (status >= 400 && strings.Contains(strings.ToLower(string(resp)), "already exists")) {
		c.logger.Debug("collection created concurrently", "collection", name)
		return nil
	}
	if status >= 400 {
		return apperr.New(apperr.IndexUnavailable, "create collection %s: status %d: %s", name, status, resp)
	}
	c.logger.Info("created qdrant collection", "collection", name, "dimension", dimension)
	return nil
}

// Upsert inserts or updates vector points in a collection.
func (c *QdrantClient) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{
		"points": points,
	}
	_, err := c.expectOK(ctx, http.MethodPut, collectionPath(collection)+"/points?wait=true", body)
	return err
}

// Search finds the nearest vectors in a collection that match filter.
func (c *QdrantClient) Search(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]SearchResult, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if qf := toQdrantFilter(filter); qf != nil {
		body["filter"] = qf
	}

	respBody, err := c.expectOK(ctx, http.MethodPost, collectionPath(collection)+"/points/search", body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, apperr.Wrap(apperr.IndexUnavailable, err, "decode search response")
	}

	results := make([]SearchResult, len(resp.Result))
	for i, r := range resp.Result {
		results[i] = r.result()
	}
	return results, nil
}

// Scroll lists up to limit points matching filter. Only the first page is
// returned; next_page_offset is ignored.
func (c *QdrantClient) Scroll(ctx context.Context, collection string, filter Filter, limit int) ([]SearchResult, error) {
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if qf := toQdrantFilter(filter); qf != nil {
		body["filter"] = qf
	}

	respBody, err := c.expectOK(ctx, http.MethodPost, collectionPath(collection)+"/points/scroll", body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			Points []qdrantPoint `json:"points"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, apperr.Wrap(apperr.IndexUnavailable, err, "decode scroll response")
	}

	results := make([]SearchResult, len(resp.Result.Points))
	for i, p := range resp.Result.Points {
		results[i] = p.result()
	}
	return results, nil
}

// DeleteByID removes points by their IDs from a collection.
func (c *QdrantClient) DeleteByID(ctx context.Context, collection string, ids []string) error {
	points := pointIDs(ids)
	if len(points) == 0 {
		c.logger.Debug("no valid point ids to delete", "ids", ids)
		return nil
	}
	body := map[string]any{
		"points": points,
	}
	_, err := c.expectOK(ctx, http.MethodPost, collectionPath(collection)+"/points/delete?wait=true", body)
	return err
}

// DeleteByFilter removes every point matching filter.
func (c *QdrantClient) DeleteByFilter(ctx context.Context, collection string, filter Filter) error {
	qf := toQdrantFilter(filter)
	if qf == nil {
		return apperr.New(apperr.IndexUnavailable, "refusing to delete with an empty filter")
	}
	body := map[string]any{
		"filter": qf,
	}
	_, err := c.expectOK(ctx, http.MethodPost, collectionPath(collection)+"/points/delete?wait=true", body)
	return err
}

// pointIDs converts ids to Qdrant's wire form. Qdrant only accepts UUIDs and
// unsigned integers, so any other id cannot name a stored point and is
// dropped.
func pointIDs(ids []string) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		if u, err := uuid.Parse(id); err == nil {
			out = append(out, u.String())
			continue
		}
		if n, err := strconv.ParseUint(id, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func (c *QdrantClient) expectOK(ctx context.Context, method, path string, body any) ([]byte, error) {
	status, respBody, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, apperr.New(apperr.IndexUnavailable, "qdrant %s %s: status %d: %s", method, path, status, respBody)
	}
	return respBody, nil
}

func (c *QdrantClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, apperr.Wrap(apperr.IndexUnavailable, err, "marshal request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, apperr.Wrap(apperr.IndexUnavailable, err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, apperr.Wrap(apperr.IndexUnavailable, err, fmt.Sprintf("qdrant %s %s", method, path))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, apperr.Wrap(apperr.IndexUnavailable, err, "read response")
	}
	return resp.StatusCode, respBody, nil
}
