package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// payloadIDKey keeps the caller's id on the point so matches can be mapped back.
const payloadIDKey = "_id"

// QdrantIndex talks to a Qdrant collection over its REST API.
type QdrantIndex struct {
	httpClient *http.Client
	baseURL    string
	collection string
	apiKey     string
}

func NewQdrantIndex(baseURL, collection, apiKey string) *QdrantIndex {
	return &QdrantIndex{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		apiKey:     apiKey,
	}
}

type qdrantPoint struct {
	ID      any            `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value any `json:"value"`
	} `json:"match"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantSearchRequest struct {
	Vector      []float32     `json:"vector"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
	Filter      *qdrantFilter `json:"filter,omitempty"`
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      json.RawMessage `json:"id"`
		Score   float32         `json:"score"`
		Payload map[string]any  `json:"payload"`
	} `json:"result"`
}

// pointID maps numeric ids to Qdrant integer ids and anything else to a
// stable UUID, the two id forms Qdrant accepts.
func pointID(id string) any {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return n
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

// EnsureCollection creates the collection with cosine distance if it is missing.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dimensions int) error {
	resp, err := q.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(q.collection), nil)
	if err == nil {
		resp.Body.Close()
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{"size": dimensions, "distance": "Cosine"},
	}
	resp, err = q.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(q.collection), body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	payload[payloadIDKey] = id

	body := map[string]any{
		"points": []qdrantPoint{{ID: pointID(id), Vector: vector, Payload: payload}},
	}
	resp, err := q.do(ctx, http.MethodPut, q.pointsPath("")+"?wait=true", body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (q *QdrantIndex) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error) {
	req := qdrantSearchRequest{Vector: vector, Limit: k, WithPayload: true}
	if len(filter) > 0 {
		req.Filter = &qdrantFilter{}
		for key, value := range filter {
			var c qdrantCondition
			c.Key = key
			c.Match.Value = value
			req.Filter.Must = append(req.Filter.Must, c)
		}
	}

	resp, err := q.do(ctx, http.MethodPost, q.pointsPath("/search"), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out qdrantSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("qdrant: decoding search response: %w", err)
	}

	matches := make([]Match, 0, len(out.Result))
	for _, r := range out.Result {
		id, _ := r.Payload[payloadIDKey].(string)
		if id == "" {
			id = strings.Trim(string(r.ID), `"`)
		}
		delete(r.Payload, payloadIDKey)
		matches = append(matches, Match{ID: id, Score: r.Score, Metadata: r.Payload})
	}
	return matches, nil
}

func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	body := map[string]any{"points": []any{pointID(id)}}
	resp, err := q.do(ctx, http.MethodPost, q.pointsPath("/delete")+"?wait=true", body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (q *QdrantIndex) pointsPath(suffix string) string {
	return "/collections/" + url.PathEscape(q.collection) + "/points" + suffix
}

// do sends a JSON request and returns the response when it is 2xx.
func (q *QdrantIndex) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("qdrant: marshaling request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("qdrant: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("qdrant: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
