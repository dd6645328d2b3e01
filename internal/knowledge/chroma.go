package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultChromaCollection is used when no collection is configured.
const DefaultChromaCollection = "shopfloor_knowledge"

// ChromaIndex queries a Chroma server over its v1 REST API. Query vectors
// come from the local embedder so ingestion and retrieval share one space.
type ChromaIndex struct {
	baseURL    string
	collection string
	embedder   Embedder
	httpClient *http.Client

	mu           sync.Mutex
	collectionID string
}

// NewChromaIndex returns a client for collection on the server at baseURL.
func NewChromaIndex(baseURL, collection string, embedder Embedder) *ChromaIndex {
	if collection == "" {
		collection = DefaultChromaCollection
	}
	return &ChromaIndex{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		embedder:   embedder,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type chromaQueryRequest struct {
	QueryEmbeddings [][]float32    `json:"query_embeddings"`
	NResults        int            `json:"n_results"`
	Where           map[string]any `json:"where,omitempty"`
	Include         []string       `json:"include"`
}

type chromaQueryResponse struct {
	IDs       [][]string            `json:"ids"`
	Documents [][]string            `json:"documents"`
	Metadatas [][]map[string]string `json:"metadatas"`
	Distances [][]float64           `json:"distances"`
}

type chromaUpsertRequest struct {
	IDs        []string            `json:"ids"`
	Embeddings [][]float32         `json:"embeddings"`
	Documents  []string            `json:"documents"`
	Metadatas  []map[string]string `json:"metadatas"`
}

// Query implements Index.
func (c *ChromaIndex) Query(ctx context.Context, text string, n int, filter Filter) ([]Match, error) {
	id, err := c.resolveCollection(ctx)
	if err != nil {
		return nil, err
	}
	qvec, err := embedOne(ctx, c.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	req := chromaQueryRequest{
		QueryEmbeddings: [][]float32{qvec},
		NResults:        n,
		Include:         []string{"documents", "metadatas", "distances"},
	}
	if len(filter.DocTypes) > 0 {
		req.Where = map[string]any{"doc_type": map[string]any{"$in": filter.DocTypes}}
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v1/collections/"+url.PathEscape(id)+"/query", req)
	if err != nil {
		return nil, err
	}

	var resp chromaQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode chroma query: %w", err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(resp.IDs[0]))
	for i, docID := range resp.IDs[0] {
		m := Match{ID: docID}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			m.Document = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			md := resp.Metadatas[0][i]
			m.Metadata = Metadata{DocType: md["doc_type"], Source: md["source"], Equipment: md["equipment"], Profile: md["profile"]}
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			m.Distance = resp.Distances[0][i]
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Upsert embeds docs locally and writes them to the collection.
func (c *ChromaIndex) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	id, err := c.resolveCollection(ctx)
	if err != nil {
		return err
	}

	req := chromaUpsertRequest{}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
		req.IDs = append(req.IDs, d.ID)
		req.Documents = append(req.Documents, d.Text)
		req.Metadatas = append(req.Metadatas, map[string]string{
			"doc_type":  d.Metadata.DocType,
			"source":    d.Metadata.Source,
			"equipment": d.Metadata.Equipment,
			"profile":   d.Metadata.Profile,
		})
	}
	vecs, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	req.Embeddings = vecs

	_, err = c.doRequest(ctx, http.MethodPost, "/api/v1/collections/"+url.PathEscape(id)+"/upsert", req)
	return err
}

// resolveCollection gets or creates the collection and caches its id.
func (c *ChromaIndex) resolveCollection(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v1/collections", map[string]any{
		"name":          c.collection,
		"get_or_create": true,
	})
	if err != nil {
		return "", err
	}
	var coll struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &coll); err != nil {
		return "", fmt.Errorf("decode chroma collection: %w", err)
	}
	if coll.ID == "" {
		return "", fmt.Errorf("chroma returned no id for collection %q", c.collection)
	}
	c.collectionID = coll.ID
	return coll.ID, nil
}

func (c *ChromaIndex) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chroma request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("chroma %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
