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
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/legalmt/pkg/llm"
)

// runNormalization is stage 3: canonicalize morphological and
// orthographic variants so that "arbitral tribunals", "the arbitral
// tribunal", and "arbitral tribunal" collapse to one form. Terms are
// sorted by source so variants land in the same prompt, then batched
// through the model. Model output is matched back to its input pair;
// anything the model did not cover keeps its original form.
func (p *Pipeline) runNormalization(ctx context.Context, terms []TermPair, cp *Checkpoint) ([]TermPair, error) {
	resumeFrom := cp.beginStage(3)

	terms = dedupePairs(terms)
	sort.SliceStable(terms, func(a, b int) bool {
		return terms[a].SourceTerm < terms[b].SourceTerm
	})

	batches := chunkTerms(terms, p.opts.NormalizationBatchSize)
	normalized := cp.Normalized
	if resumeFrom > 0 {
		slog.Info("resuming normalization", "completed_batches", resumeFrom, "total_batches", len(batches))
	}

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
				out := p.normalizeBatch(gctx, batch)
				mu.Lock()
				normalized = append(normalized, out...)
				mu.Unlock()
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("normalization interrupted at batch %d: %w", waveStart, err)
		}

		cp.Normalized = normalized
		cp.CompletedWaves = waveEnd
		if err := cp.Save(); err != nil {
			return nil, err
		}
		slog.Info("normalization batches done", "completed", waveEnd, "total", len(batches))
	}

	return normalized, nil
}

// normalizeBatch canonicalizes the batch one language side at a time:
// source terms under the source language's rules, target terms under
// the target language's. Each side's answers are backfilled by exact
// term match, so confidence, quality, and entry ids survive the round
// trip; anything the model did not cover keeps its original form.
func (p *Pipeline) normalizeBatch(ctx context.Context, batch []TermPair) []TermPair {
	sourceTerms := make([]string, len(batch))
	targetTerms := make([]string, len(batch))
	for i, t := range batch {
		sourceTerms[i] = t.SourceTerm
		targetTerms[i] = t.TargetTerm
	}

	sourceForms := p.normalizeSide(ctx, sourceTerms, p.opts.SourceLang)
	targetForms := p.normalizeSide(ctx, targetTerms, p.opts.TargetLang)

	out := make([]TermPair, len(batch))
	copy(out, batch)
	for i := range out {
		out[i].NormalizedSource = out[i].SourceTerm
		if form := sourceForms[out[i].SourceTerm]; form != "" {
			out[i].NormalizedSource = form
		}
		out[i].NormalizedTarget = out[i].TargetTerm
		if form := targetForms[out[i].TargetTerm]; form != "" {
			out[i].NormalizedTarget = form
		}
	}
	return out
}

// normalizeSide asks the model for canonical forms of one language's
// terms, returning a term-to-form map. A degraded response returns nil,
// which leaves that side unnormalized.
func (p *Pipeline) normalizeSide(ctx context.Context, terms []string, lang string) map[string]string {
	deduped := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		deduped = append(deduped, term)
	}
	if len(deduped) == 0 {
		return nil
	}

	var sb strings.Builder
	for i, term := range deduped {
		fmt.Fprintf(&sb, "%d. %q\n", i+1, term)
	}

	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(`You are normalizing %s legal terms to their canonical form. Apply these rules:
%s
If a term is already canonical, repeat it unchanged. Never merge terms with distinct legal meanings into one form.

Respond with JSON: {"results": [{"term": "...", "normalized": "..."}]}`, lang, normalizationRules(lang))},
		{Role: "user", Content: sb.String()},
	}

	decoded := p.client.ChatJSON(ctx, messages, llm.WithTemperature(0.0))
	if failed(decoded) {
		slog.Warn("normalization batch failed, keeping original forms", "lang", lang, "terms", len(deduped))
		return nil
	}

	forms := make(map[string]string, len(deduped))
	items, _ := decoded["results"].([]interface{})
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		term := stringField(m, "term")
		if _, ok := seen[term]; !ok {
			continue
		}
		forms[term] = strings.TrimSpace(stringField(m, "normalized"))
	}
	return forms
}

// normalizationRules returns the per-language canonicalization rules.
func normalizationRules(lang string) string {
	switch lang {
	case "zh":
		return `- Convert traditional characters to simplified.
- Keep structural particles such as 的 when they belong to the term.
- Unify variant spellings of the same term to a single form.
- Abstract numbered structural markers: 第36条 becomes 第XX条.`
	case "en":
		return `- Express countable nouns as a singular/plural composite: "right" becomes "right/rights".
- Reduce inflected verbs to their base form.
- Abstract numbered structural markers: "Article 36" becomes "Article XX".
- Keep proper-noun capitalization; lowercase everything else.
- Use American spelling.`
	case "ja":
		return `- Replace kana spellings with the standard kanji form.
- Abstract numbered structural markers: 第36条 becomes 第XX条.
- Keep legally distinct roles separate: 弁護士 and 弁護人 are different terms.`
	default:
		return `- Use the canonical dictionary form: no leading articles, consistent capitalization, full rather than truncated spans.`
	}
}
