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
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/legalmt/pkg/llm"
)

// Corpus context appended to a quality prompt is capped near this size.
const qualityContextLimit = 5000

// runQualityCheck is stage 2: score each mined pair in corpus context
// and drop the pairs judged not to be genuine term translations. Terms
// are batched QualityCheckBatchSize per prompt; batches run
// concurrently and completed batches are checkpointed.
func (p *Pipeline) runQualityCheck(ctx context.Context, pairs []SentencePair, terms []TermPair, cp *Checkpoint) ([]TermPair, error) {
	resumeFrom := cp.beginStage(2)

	pairsByID := make(map[string]SentencePair, len(pairs))
	for _, pair := range pairs {
		pairsByID[pair.EntryID] = pair
	}

	batches := chunkTerms(terms, p.opts.QualityCheckBatchSize)
	checked := cp.QualityChecked
	if resumeFrom > 0 {
		slog.Info("resuming quality check", "completed_batches", resumeFrom, "total_batches", len(batches))
	}

	// A wave is SaveInterval batches run concurrently; checkpointing
	// after whole waves keeps resume positions exact.
	waveSize := p.opts.SaveInterval
	for waveStart := resumeFrom; waveStart < len(batches); waveStart += waveSize {
		waveEnd := waveStart + waveSize
		if waveEnd > len(batches) {
			waveEnd = len(batches)
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.opts.MaxConcurrent)
		for _, batch := range batches[waveStart:waveEnd] {
			batch := batch
			g.Go(func() error {
				scored := p.checkBatch(gctx, batch, pairsByID)
				mu.Lock()
				checked = append(checked, scored...)
				mu.Unlock()
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("quality check interrupted at batch %d: %w", waveStart, err)
		}

		cp.QualityChecked = dedupePairs(checked)
		cp.CompletedWaves = waveEnd
		if err := cp.Save(); err != nil {
			return nil, err
		}
		slog.Info("quality batches done", "completed", waveEnd, "total", len(batches))
	}

	return dedupePairs(checked), nil
}

// checkBatch scores one batch of term pairs and drops the pairs the
// model judged invalid. A degraded response keeps all terms with a
// neutral quality score instead of discarding them, as do pairs the
// model skipped.
func (p *Pipeline) checkBatch(ctx context.Context, batch []TermPair, pairsByID map[string]SentencePair) []TermPair {
	var termList strings.Builder
	for i, t := range batch {
		fmt.Fprintf(&termList, "%d. %q => %q (confidence %.2f)\n", i+1, t.SourceTerm, t.TargetTerm, t.Confidence)
	}

	contextBlock := corpusContext(batch, pairsByID)

	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(`You are a bilingual legal terminologist reviewing %s-%s term pairs mined from a parallel corpus. For each numbered pair, judge whether the target term is a correct, complete translation of the source term: set is_valid to false for pairs that are not genuine term translations (wrong sense, not a term, mismatched span), and give every pair a quality score from 0.0 to 1.0. Note concrete issues (partial translation, wrong sense, truncated span, not a term).

Respond with JSON: {"results": [{"index": <1-based>, "is_valid": <true|false>, "quality_score": <0.0-1.0>, "issues": "..."}]}`, p.opts.SourceLang, p.opts.TargetLang)},
		{Role: "user", Content: fmt.Sprintf("Term pairs:\n%s\nCorpus context:\n%s", termList.String(), contextBlock)},
	}

	decoded := p.client.ChatJSON(ctx, messages, llm.WithTemperature(0.0))

	out := make([]TermPair, 0, len(batch))
	if failed(decoded) {
		slog.Warn("quality batch failed, keeping neutral scores", "terms", len(batch))
		for _, t := range batch {
			t.QualityScore = 0.5
			t.IsValid = true
			out = append(out, t)
		}
		return out
	}

	items, _ := decoded["results"].([]interface{})
	scoredAt := make(map[int]map[string]interface{}, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		i := int(floatField(m, "index")) - 1
		if i < 0 || i >= len(batch) {
			continue
		}
		scoredAt[i] = m
	}

	dropped := 0
	for i, t := range batch {
		m, ok := scoredAt[i]
		if !ok {
			t.QualityScore = 0.5
			t.IsValid = true
			out = append(out, t)
			continue
		}
		if !boolField(m, "is_valid", true) {
			dropped++
			continue
		}
		t.IsValid = true
		t.QualityScore = floatField(m, "quality_score")
		t.QualityIssues = stringField(m, "issues")
		out = append(out, t)
	}
	if dropped > 0 {
		slog.Debug("quality batch dropped invalid pairs", "dropped", dropped, "kept", len(out))
	}
	return out
}

// corpusContext collects the sentences the batch's terms came from,
// truncated to the prompt budget.
func corpusContext(batch []TermPair, pairsByID map[string]SentencePair) string {
	var sb strings.Builder
	seen := make(map[string]struct{})
	for _, t := range batch {
		for _, id := range strings.Split(t.EntryIDs, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			pair, ok := pairsByID[id]
			if !ok {
				continue
			}
			fmt.Fprintf(&sb, "[%s] %s / %s\n", id, pair.SourceText, pair.TargetText)
			if sb.Len() > qualityContextLimit {
				// Back off to a rune boundary so CJK text is never cut
				// mid-character.
				s := sb.String()
				cut := qualityContextLimit
				for cut > 0 && !utf8.RuneStart(s[cut]) {
					cut--
				}
				return s[:cut]
			}
		}
	}
	return sb.String()
}

func chunkTerms(terms []TermPair, size int) [][]TermPair {
	if size < 1 {
		size = 1
	}
	var chunks [][]TermPair
	for start := 0; start < len(terms); start += size {
		end := start + size
		if end > len(terms) {
			end = len(terms)
		}
		chunks = append(chunks, terms[start:end])
	}
	return chunks
}
