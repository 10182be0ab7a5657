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

package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/legalmt/pkg/llm"
)

// runExtraction is stage 1: mine term pairs from the corpus. Pairs are
// processed in waves of BatchSize entries; within a wave, prompts of
// ExtractionBatchSize sentence pairs run concurrently. The checkpoint
// records completed waves so an interrupted run resumes mid-corpus.
func (p *Pipeline) runExtraction(ctx context.Context, pairs []SentencePair, cp *Checkpoint) ([]TermPair, error) {
	resumeFrom := cp.beginStage(1)
	terms := cp.Extracted

	waves := chunkPairs(pairs, p.opts.BatchSize)
	if resumeFrom > 0 {
		slog.Info("resuming extraction", "completed_waves", resumeFrom, "total_waves", len(waves))
	}

	for waveIdx := resumeFrom; waveIdx < len(waves); waveIdx++ {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.opts.MaxConcurrent)

		for _, chunk := range chunkPairs(waves[waveIdx], p.opts.ExtractionBatchSize) {
			chunk := chunk
			g.Go(func() error {
				mined := p.extractChunk(gctx, chunk)
				mu.Lock()
				terms = append(terms, mined...)
				mu.Unlock()
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("extraction interrupted at wave %d: %w", waveIdx, err)
		}

		terms = dedupePairs(terms)
		cp.Extracted = terms
		cp.CompletedWaves = waveIdx + 1
		if (waveIdx+1)%p.opts.SaveInterval == 0 || waveIdx == len(waves)-1 {
			if err := cp.Save(); err != nil {
				return nil, err
			}
		}
		slog.Info("extraction wave done", "wave", waveIdx+1, "total_waves", len(waves), "terms", len(terms))
	}

	return terms, nil
}

// extractChunk mines one prompt's worth of sentence pairs. A degraded
// response drops the chunk; the cost is recall, not a failed run.
func (p *Pipeline) extractChunk(ctx context.Context, chunk []SentencePair) []TermPair {
	var sb strings.Builder
	for i, pair := range chunk {
		fmt.Fprintf(&sb, "Pair %d (entry %s):\n%s: %s\n%s: %s\n\n", i+1, pair.EntryID, p.opts.SourceLang, pair.SourceText, p.opts.TargetLang, pair.TargetText)
	}

	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(`You are a legal terminology extractor working on %s-%s parallel text. From each sentence pair, extract the legal term pairs that are genuine translations of each other: statutory concepts, defined terms, legal roles, procedural terms. Skip ordinary vocabulary.

Respond with JSON: {"terms": [{"source_term": "...", "target_term": "...", "category": "...", "confidence": <0.0-1.0>, "entry_id": "..."}]}`, p.opts.SourceLang, p.opts.TargetLang)},
		{Role: "user", Content: sb.String()},
	}

	decoded := p.client.ChatJSON(ctx, messages, llm.WithTemperature(0.0))
	if failed(decoded) {
		slog.Warn("extraction chunk failed", "pairs", len(chunk))
		return nil
	}

	byID := make(map[string]SentencePair, len(chunk))
	for _, pair := range chunk {
		byID[pair.EntryID] = pair
	}

	var mined []TermPair
	items, _ := decoded["terms"].([]interface{})
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		t := TermPair{
			SourceTerm: stringField(m, "source_term"),
			TargetTerm: stringField(m, "target_term"),
			Category:   stringField(m, "category"),
			Confidence: floatField(m, "confidence"),
		}
		if t.SourceTerm == "" || t.TargetTerm == "" {
			continue
		}
		entry := anchorEntry(chunk, byID, stringField(m, "entry_id"), t.SourceTerm)
		t.EntryIDs = entry.EntryID
		t.Law = entry.Law
		t.Domain = entry.Domain
		t.Year = entry.Year
		mined = append(mined, t)
	}
	return mined
}

// anchorEntry resolves which corpus entry a mined term came from, so its
// law, domain, and year metadata attach to the term. The model sometimes
// invents ids; those fall back to the entry whose source text contains
// the term, and failing that to the first entry of the chunk.
func anchorEntry(chunk []SentencePair, byID map[string]SentencePair, entryID, sourceTerm string) SentencePair {
	if pair, ok := byID[entryID]; ok {
		return pair
	}
	for _, pair := range chunk {
		if strings.Contains(pair.SourceText, sourceTerm) {
			return pair
		}
	}
	return chunk[0]
}

func chunkPairs(pairs []SentencePair, size int) [][]SentencePair {
	if size < 1 {
		size = 1
	}
	var chunks [][]SentencePair
	for start := 0; start < len(pairs); start += size {
		end := start + size
		if end > len(pairs) {
			end = len(pairs)
		}
		chunks = append(chunks, pairs[start:end])
	}
	return chunks
}

func failed(m map[string]interface{}) bool {
	if m == nil {
		return true
	}
	if _, ok := m["error"]; ok {
		return true
	}
	if _, ok := m["raw"]; ok {
		return true
	}
	return false
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]interface{}, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func boolField(m map[string]interface{}, key string, fallback bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}
