// Package pinecone implements the vector store on Pinecone serverless via
// its REST API: control plane for index lifecycle, data plane for
// upsert/query once the index host is resolved.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soliscan/soliscan/internal/vector"
)

const defaultControlURL = "https://api.pinecone.io"

// Store implements vector.Store against a Pinecone serverless index.
type Store struct {
	controlURL string
	dataURL    string // resolved from the index host by EnsureCollection
	apiKey     string
	index      string
	cloud      string
	region     string
	httpc      *http.Client
}

// New creates a Pinecone store for the named index. The data-plane host is
// resolved during EnsureCollection.
func New(apiKey, index, cloud, region string) *Store {
	return &Store{
		controlURL: defaultControlURL,
		apiKey:     apiKey,
		index:      index,
		cloud:      cloud,
		region:     region,
		httpc:      &http.Client{Timeout: 30 * time.Second},
	}
}

type indexDescription struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Host      string `json:"host"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

// EnsureCollection creates the serverless index when absent and waits for
// it to become ready. A 409 on create means another writer won the race,
// which is fine as long as the index ends up matching the wanted dimension.
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	desc, code, err := s.describeIndex(ctx)
	if err != nil {
		return err
	}

	if code == http.StatusNotFound {
		if err := s.createIndex(ctx, dimension); err != nil {
			return err
		}
	}

	for {
		desc, code, err = s.describeIndex(ctx)
		if err != nil {
			return err
		}
		if code == http.StatusNotFound {
			return fmt.Errorf("pinecone index %q vanished after create", s.index)
		}
		if desc.Dimension != dimension {
			return fmt.Errorf("pinecone index %q has dimension %d, want %d", s.index, desc.Dimension, dimension)
		}
		if desc.Status.Ready && desc.Host != "" {
			s.dataURL = hostURL(desc.Host)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (s *Store) describeIndex(ctx context.Context) (*indexDescription, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.controlURL+"/indexes/"+s.index, nil)
	if err != nil {
		return nil, 0, err
	}
	s.setHeaders(req)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("pinecone describe index: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, http.StatusNotFound, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("pinecone describe index: %s: %s", resp.Status, body)
	}

	var desc indexDescription
	if err := json.Unmarshal(body, &desc); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("pinecone describe index: decoding: %w", err)
	}
	return &desc, resp.StatusCode, nil
}

func (s *Store) createIndex(ctx context.Context, dimension int) error {
	payload := map[string]any{
		"name":      s.index,
		"dimension": dimension,
		"metric":    "cosine",
		"spec": map[string]any{
			"serverless": map[string]any{
				"cloud":  s.cloud,
				"region": s.region,
			},
		},
	}

	resp, body, err := s.post(ctx, s.controlURL+"/indexes", payload)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusConflict {
		return nil // lost the creation race
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pinecone create index: %s: %s", resp.Status, body)
	}
	return nil
}

type upsertVector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Store) Upsert(ctx context.Context, docs []vector.Document) error {
	if err := s.requireHost(); err != nil {
		return err
	}

	vectors := make([]upsertVector, len(docs))
	for i, d := range docs {
		meta := make(map[string]string, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			meta[k] = v
		}
		meta["content"] = d.Content
		vectors[i] = upsertVector{ID: d.ID, Values: d.Vector, Metadata: meta}
	}

	resp, body, err := s.post(ctx, s.dataURL+"/vectors/upsert", map[string]any{"vectors": vectors})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pinecone upsert: %s: %s", resp.Status, body)
	}
	return nil
}

type queryResponse struct {
	Matches []struct {
		ID       string            `json:"id"`
		Score    float32           `json:"score"`
		Metadata map[string]string `json:"metadata"`
	} `json:"matches"`
}

func (s *Store) Search(ctx context.Context, vec []float32, topK int, filter map[string]string) ([]vector.SearchResult, error) {
	if err := s.requireHost(); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"vector":          vec,
		"topK":            topK,
		"includeMetadata": true,
	}
	if len(filter) > 0 {
		conditions := make(map[string]any, len(filter))
		for k, v := range filter {
			conditions[k] = map[string]string{"$eq": v}
		}
		payload["filter"] = conditions
	}

	resp, body, err := s.post(ctx, s.dataURL+"/query", payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pinecone query: %s: %s", resp.Status, body)
	}

	var decoded queryResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("pinecone query: decoding: %w", err)
	}

	results := make([]vector.SearchResult, len(decoded.Matches))
	for i, m := range decoded.Matches {
		content := ""
		meta := make(map[string]string)
		for k, v := range m.Metadata {
			if k == "content" {
				content = v
			} else {
				meta[k] = v
			}
		}
		results[i] = vector.SearchResult{ID: m.ID, Score: m.Score, Content: content, Metadata: meta}
	}
	return results, nil
}

func (s *Store) Stats(ctx context.Context) (vector.IndexStats, error) {
	if err := s.requireHost(); err != nil {
		return vector.IndexStats{}, err
	}

	resp, body, err := s.post(ctx, s.dataURL+"/describe_index_stats", map[string]any{})
	if err != nil {
		return vector.IndexStats{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return vector.IndexStats{}, fmt.Errorf("pinecone stats: %s: %s", resp.Status, body)
	}

	var decoded struct {
		Dimension        int    `json:"dimension"`
		TotalVectorCount uint64 `json:"totalVectorCount"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return vector.IndexStats{}, fmt.Errorf("pinecone stats: decoding: %w", err)
	}
	return vector.IndexStats{Vectors: decoded.TotalVectorCount, Dimension: decoded.Dimension}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) requireHost() error {
	if s.dataURL == "" {
		return fmt.Errorf("pinecone index %q host not resolved, call EnsureCollection first", s.index)
	}
	return nil
}

// post sends a JSON body and returns the raw response plus its body.
func (s *Store) post(ctx context.Context, url string, payload any) (*http.Response, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	s.setHeaders(req)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("pinecone request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body, nil
}

func (s *Store) setHeaders(req *http.Request) {
	req.Header.Set("Api-Key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pinecone-Api-Version", "2024-07")
}

// hostURL normalizes the index host returned by the control plane, which
// comes without a scheme.
func hostURL(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

var _ vector.Store = (*Store)(nil)
