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
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// BM25Index is an in-memory BM25 (Okapi) index over TM source texts.
// Scores are divided by 100 so they land roughly in [0,1] and can be
// mixed with cosine similarities.
type BM25Index struct {
	mu sync.RWMutex

	corpus    []Entry
	docTokens [][]string
	docFreq   map[string]int
	avgDocLen float64
}

// NewBM25Index builds an index over the given entries.
func NewBM25Index(entries []Entry) *BM25Index {
	idx := &BM25Index{docFreq: make(map[string]int)}
	idx.rebuild(entries)
	return idx
}

// Tokenize splits text for indexing. CJK text gets per-character tokens
// since legal Chinese carries no word boundaries; everything else is
// lowercased whitespace splitting.
func Tokenize(text string) []string {
	if containsCJK(text) {
		tokens := make([]string, 0, len(text))
		for _, r := range text {
			if unicode.IsSpace(r) {
				continue
			}
			tokens = append(tokens, string(r))
		}
		return tokens
	}
	return strings.Fields(strings.ToLower(text))
}

func containsCJK(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

func (idx *BM25Index) rebuild(entries []Entry) {
	idx.corpus = entries
	idx.docTokens = make([][]string, len(entries))
	idx.docFreq = make(map[string]int)

	totalLen := 0
	for i, entry := range entries {
		tokens := Tokenize(entry.SourceText)
		idx.docTokens[i] = tokens
		totalLen += len(tokens)

		seen := make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			idx.docFreq[t]++
		}
	}

	if len(entries) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(entries))
	} else {
		idx.avgDocLen = 0
	}
}

// Add appends entries and rebuilds the index.
func (idx *BM25Index) Add(entries []Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.rebuild(append(idx.corpus, entries...))
}

// Size returns the number of indexed entries.
func (idx *BM25Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.corpus)
}

// Search ranks the corpus against the query and returns the top results
// matching the language pair. Twice topK candidates are scored before the
// language filter is applied so a mixed corpus does not starve the result.
func (idx *BM25Index) Search(query, sourceLang, targetLang string, topK int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.corpus) == 0 || topK <= 0 {
		return nil
	}

	queryTokens := Tokenize(query)
	n := float64(len(idx.corpus))

	type scored struct {
		index int
		score float64
	}
	candidates := make([]scored, 0, len(idx.corpus))
	for i, tokens := range idx.docTokens {
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}

		score := 0.0
		docLen := float64(len(tokens))
		for _, qt := range queryTokens {
			freq, ok := tf[qt]
			if !ok {
				continue
			}
			df := float64(idx.docFreq[qt])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1)
			num := float64(freq) * (bm25K1 + 1)
			den := float64(freq) + bm25K1*(1-bm25B+bm25B*docLen/idx.avgDocLen)
			score += idf * num / den
		}
		if score > 0 {
			candidates = append(candidates, scored{index: i, score: score})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	if len(candidates) > topK*2 {
		candidates = candidates[:topK*2]
	}

	results := make([]Result, 0, topK)
	for _, c := range candidates {
		entry := idx.corpus[c.index]
		if sourceLang != "" && entry.SourceLang != sourceLang {
			continue
		}
		if targetLang != "" && entry.TargetLang != targetLang {
			continue
		}
		results = append(results, Result{Entry: entry, Score: math.Min(c.score/100.0, 1.0)})
		if len(results) >= topK {
			break
		}
	}
	return results
}

type bm25Snapshot struct {
	Corpus []Entry `json:"corpus"`
}

// Save writes the corpus snapshot to disk as JSON. The index itself is
// cheap to rebuild, so only the entries are persisted.
func (idx *BM25Index) Save(path string) error {
	idx.mu.RLock()
	snapshot := bm25Snapshot{Corpus: idx.corpus}
	idx.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bm25 snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write bm25 snapshot: %w", err)
	}
	return nil
}

// LoadBM25Index restores an index from a snapshot written by Save. A
// missing file yields an empty index, not an error.
func LoadBM25Index(path string) (*BM25Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewBM25Index(nil), nil
		}
		return nil, fmt.Errorf("failed to read bm25 snapshot: %w", err)
	}

	var snapshot bm25Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode bm25 snapshot %s: %w", path, err)
	}
	return NewBM25Index(snapshot.Corpus), nil
}
