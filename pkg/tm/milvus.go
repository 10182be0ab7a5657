// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// MilvusConfig configures the vector backend.
type MilvusConfig struct {
	Host       string
	Port       int
	Collection string
	Dimension  int
}

// MilvusDB stores TM entry vectors in a Milvus collection over the HTTP
// API. COSINE similarity is assumed throughout.
type MilvusDB struct {
	baseURL    string
	collection string
	dimension  int
	client     *http.Client
}

func NewMilvusDB(cfg MilvusConfig) (*MilvusDB, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 19530
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("milvus collection name is required")
	}

	baseURL := host
	if !strings.Contains(baseURL, "://") {
		baseURL = fmt.Sprintf("http://%s:%d", host, port)
	}

	return &MilvusDB{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// EnsureCollection creates the collection if it does not exist. The
// embedding dimension must be known before a collection can be created.
func (m *MilvusDB) EnsureCollection(ctx context.Context) error {
	exists, err := m.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if m.dimension <= 0 {
		return fmt.Errorf("embedding dimension must be set to create collection %s (set EMBEDDING_DIM)", m.collection)
	}

	payload := map[string]interface{}{
		"collection_name": m.collection,
		"dimension":       m.dimension,
		"metric_type":     "COSINE",
	}
	if err := m.post(ctx, "/api/v1/collections", payload, nil); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", m.collection, err)
	}
	return nil
}

func (m *MilvusDB) collectionExists(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/collections?collection_name=%s", m.baseURL, m.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach milvus: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// Upsert writes entry vectors with their metadata.
func (m *MilvusDB) Upsert(ctx context.Context, entries []Entry, vectors [][]float32) error {
	if len(entries) != len(vectors) {
		return fmt.Errorf("entry/vector count mismatch: %d != %d", len(entries), len(vectors))
	}
	if len(entries) == 0 {
		return nil
	}

	data := make([]map[string]interface{}, len(entries))
	for i, entry := range entries {
		data[i] = map[string]interface{}{
			"id":          entry.ID,
			"vector":      vectors[i],
			"text":        entry.SourceText + "|||" + entry.TargetText,
			"source_lang": entry.SourceLang,
			"target_lang": entry.TargetLang,
			"domain":      entry.Domain,
			"created_at":  time.Now().Unix(),
		}
	}

	payload := map[string]interface{}{
		"collection_name": m.collection,
		"data":            data,
	}
	if err := m.post(ctx, "/api/v1/entities", payload, nil); err != nil {
		return fmt.Errorf("failed to upsert entities: %w", err)
	}
	return nil
}

type milvusSearchResponse struct {
	Data []struct {
		ID       interface{}            `json:"id"`
		Distance float64                `json:"distance"`
		Score    float64                `json:"score"`
		Entity   map[string]interface{} `json:"entity"`
	} `json:"data"`
}

// Search runs a COSINE vector search, filtered to the given language
// pair when both sides are set.
func (m *MilvusDB) Search(ctx context.Context, vector []float32, sourceLang, targetLang string, topK int) ([]Result, error) {
	payload := map[string]interface{}{
		"collection_name": m.collection,
		"vector":          vector,
		"top_k":           topK,
		"metric_type":     "COSINE",
		"params": map[string]interface{}{
			"nprobe": 10,
		},
	}
	if expr := buildLangFilter(sourceLang, targetLang); expr != "" {
		payload["expr"] = expr
	}

	var parsed milvusSearchResponse
	if err := m.post(ctx, "/api/v1/search", payload, &parsed); err != nil {
		return nil, fmt.Errorf("failed to search collection %s: %w", m.collection, err)
	}

	results := make([]Result, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		var id string
		switch v := item.ID.(type) {
		case string:
			id = v
		case float64:
			id = fmt.Sprintf("%.0f", v)
		default:
			continue
		}

		// Milvus reports either a cosine distance or a score depending
		// on the deployment; normalize both to a similarity.
		score := item.Score
		if score == 0 && item.Distance != 0 {
			score = 1 - item.Distance
		}

		entry := Entry{ID: id, SourceLang: sourceLang, TargetLang: targetLang}
		if item.Entity != nil {
			if text, ok := item.Entity["text"].(string); ok {
				entry.SourceText, entry.TargetText = splitEntityText(text)
			}
			if v, ok := item.Entity["source_lang"].(string); ok {
				entry.SourceLang = v
			}
			if v, ok := item.Entity["target_lang"].(string); ok {
				entry.TargetLang = v
			}
			if v, ok := item.Entity["domain"].(string); ok {
				entry.Domain = v
			}
		}
		results = append(results, Result{Entry: entry, Score: score})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	return results, nil
}

// DropCollection removes the collection and all its vectors.
func (m *MilvusDB) DropCollection(ctx context.Context) error {
	payload := map[string]interface{}{"collection_name": m.collection}
	req, err := m.newJSONRequest(ctx, http.MethodDelete, "/api/v1/collections", payload)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("milvus returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func buildLangFilter(sourceLang, targetLang string) string {
	var clauses []string
	if sourceLang != "" {
		clauses = append(clauses, fmt.Sprintf(`source_lang == "%s"`, sourceLang))
	}
	if targetLang != "" {
		clauses = append(clauses, fmt.Sprintf(`target_lang == "%s"`, targetLang))
	}
	return strings.Join(clauses, " and ")
}

func splitEntityText(text string) (source, target string) {
	parts := strings.SplitN(text, "|||", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return text, ""
}

func (m *MilvusDB) newJSONRequest(ctx context.Context, method, path string, payload interface{}) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (m *MilvusDB) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	req, err := m.newJSONRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach milvus: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read milvus response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("milvus returned status %d: %s", resp.StatusCode, string(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode milvus response: %w", err)
		}
	}
	return nil
}
