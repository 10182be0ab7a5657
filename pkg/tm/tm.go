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
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kadirpekel/legalmt/pkg/embedders"
)

const (
	hybridBM25Weight   = 0.5
	hybridVectorWeight = 0.5
	upsertBatchSize    = 100
)

// Store is the translation memory. The BM25 index is always available;
// the vector branch requires both a Milvus backend and an embedder and
// degrades gracefully when either is missing.
type Store struct {
	bm25         *BM25Index
	milvus       *MilvusDB
	embedder     embedders.Embedder
	snapshotPath string
}

type StoreOption func(*Store)

// WithMilvus attaches the vector backend.
func WithMilvus(db *MilvusDB) StoreOption {
	return func(s *Store) { s.milvus = db }
}

// WithEmbedder attaches the embedder used for the vector branch.
func WithEmbedder(e embedders.Embedder) StoreOption {
	return func(s *Store) { s.embedder = e }
}

// WithSnapshotPath sets where the BM25 corpus is persisted after writes.
func WithSnapshotPath(path string) StoreOption {
	return func(s *Store) { s.snapshotPath = path }
}

// NewStore opens the TM, restoring the BM25 corpus from the snapshot
// path when one is configured.
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}

	if s.snapshotPath != "" {
		idx, err := LoadBM25Index(s.snapshotPath)
		if err != nil {
			return nil, err
		}
		s.bm25 = idx
	} else {
		s.bm25 = NewBM25Index(nil)
	}
	return s, nil
}

// Size returns the number of entries in the BM25 corpus.
func (s *Store) Size() int {
	return s.bm25.Size()
}

// HasVectorBackend reports whether vector search is usable.
func (s *Store) HasVectorBackend() bool {
	return s.milvus != nil && s.embedder != nil
}

// AddEntry stores one record in both branches.
func (s *Store) AddEntry(ctx context.Context, entry Entry) error {
	return s.BatchAddEntries(ctx, []Entry{entry})
}

// BatchAddEntries stores records in both branches. Entry IDs are derived
// from the language pair and texts so re-imports are idempotent. A vector
// branch failure is logged, not fatal: the BM25 corpus stays the source
// of truth.
func (s *Store) BatchAddEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = EntryID(entries[i].SourceLang, entries[i].TargetLang, entries[i].SourceText, entries[i].TargetText)
		}
	}

	s.bm25.Add(entries)
	if s.snapshotPath != "" {
		if err := s.bm25.Save(s.snapshotPath); err != nil {
			return fmt.Errorf("failed to persist bm25 snapshot: %w", err)
		}
	}

	if !s.HasVectorBackend() {
		return nil
	}
	if err := s.milvus.EnsureCollection(ctx); err != nil {
		slog.Warn("skipping vector indexing", "error", err)
		return nil
	}

	for start := 0; start < len(entries); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		texts := make([]string, len(batch))
		for i, entry := range batch {
			texts[i] = entry.SourceText
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			slog.Warn("failed to embed tm batch", "error", err, "batch_start", start)
			continue
		}
		if err := s.milvus.Upsert(ctx, batch, vectors); err != nil {
			slog.Warn("failed to upsert tm batch", "error", err, "batch_start", start)
		}
	}
	return nil
}

// SearchBM25 queries the lexical branch only.
func (s *Store) SearchBM25(query, sourceLang, targetLang string, topK int) []Result {
	return s.bm25.Search(query, sourceLang, targetLang, topK)
}

// SearchVector queries the vector branch only.
func (s *Store) SearchVector(ctx context.Context, query, sourceLang, targetLang string, topK int) ([]Result, error) {
	if !s.HasVectorBackend() {
		return nil, fmt.Errorf("vector backend is not configured")
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.milvus.Search(ctx, vector, sourceLang, targetLang, topK)
}

// HybridSearch queries both branches with twice the requested depth and
// merges by weighted score sum, summing weights where both branches hit
// the same entry. With no vector backend it falls back to BM25 alone.
func (s *Store) HybridSearch(ctx context.Context, query, sourceLang, targetLang string, topK int) []Result {
	lexical := s.bm25.Search(query, sourceLang, targetLang, topK*2)

	if !s.HasVectorBackend() {
		if len(lexical) > topK {
			lexical = lexical[:topK]
		}
		return lexical
	}

	semantic, err := s.SearchVector(ctx, query, sourceLang, targetLang, topK*2)
	if err != nil {
		slog.Warn("vector search failed, using bm25 only", "error", err)
		if len(lexical) > topK {
			lexical = lexical[:topK]
		}
		return lexical
	}

	merged := make(map[string]*Result, len(lexical)+len(semantic))
	for _, r := range lexical {
		hit := r
		hit.Score = r.Score * hybridBM25Weight
		merged[r.ID] = &hit
	}
	for _, r := range semantic {
		if existing, ok := merged[r.ID]; ok {
			existing.Score += r.Score * hybridVectorWeight
			// Prefer the Milvus copy of the texts when the lexical hit
			// came from a bare snapshot record.
			if existing.SourceText == "" {
				existing.SourceText = r.SourceText
				existing.TargetText = r.TargetText
			}
			continue
		}
		hit := r
		hit.Score = r.Score * hybridVectorWeight
		merged[r.ID] = &hit
	}

	results := make([]Result, 0, len(merged))
	for _, r := range merged {
		results = append(results, *r)
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
