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

package workflows

import (
	"context"
	"log/slog"

	"github.com/kadirpekel/legalmt/pkg/agents"
	"github.com/kadirpekel/legalmt/pkg/config"
	"github.com/kadirpekel/legalmt/pkg/llm"
	"github.com/kadirpekel/legalmt/pkg/termbase"
)

// TerminologyWorkflow runs the first round: extract terms, resolve them
// against the termbase, gate low-confidence matches, and translate under
// the resulting glossary.
type TerminologyWorkflow struct {
	extractor  *agents.TermExtractor
	evaluator  *agents.TermEvaluator
	translator *agents.TermTranslator
	selector   *agents.Selector
	db         *termbase.DB
}

// NewTerminologyWorkflow wires the round. db may be nil, in which case
// translation runs without a glossary.
func NewTerminologyWorkflow(client *llm.Client, db *termbase.DB) *TerminologyWorkflow {
	return &TerminologyWorkflow{
		extractor:  agents.NewTermExtractor(client),
		evaluator:  agents.NewTermEvaluator(client),
		translator: agents.NewTermTranslator(client),
		selector:   agents.NewSelector(client),
		db:         db,
	}
}

// Run executes the terminology round under the given control policy.
func (w *TerminologyWorkflow) Run(ctx context.Context, sourceText, sourceLang, targetLang string, control *config.TranslationControl) *TerminologyResult {
	result := &TerminologyResult{}

	if w.db != nil {
		matches := w.resolveTerms(ctx, sourceText, sourceLang, targetLang, control)
		for _, m := range matches {
			if m.Gated {
				result.GatedTerms = append(result.GatedTerms, m)
			} else {
				result.Terms = append(result.Terms, m)
			}
		}
	}

	numCandidates := 1
	if control.SelectionEnabled(config.LayerTerminology) {
		numCandidates = control.NumCandidates
	}

	candidates := w.translator.TranslateCandidates(ctx, sourceText, sourceLang, targetLang, result.Terms, numCandidates)
	if len(candidates) == 0 {
		slog.Warn("terminology translation produced no candidates, passing source through")
		result.TranslatedText = sourceText
		result.Confidence = 0.0
		return result
	}

	if len(candidates) > 1 {
		// The surviving term table travels with the judgment so the
		// selector can verify glossary fidelity, not just fluency.
		selection := w.selector.Select(ctx, sourceText, candidates, "exact legal terminology and faithfulness to the glossary", agents.GlossaryBlock(result.Terms))
		result.Candidates = candidates
		result.Selection = &selection
		result.TranslatedText = candidates[selection.Index]
		result.Confidence = selection.Confidence
		return result
	}

	result.TranslatedText = candidates[0]
	result.Confidence = w.matchConfidence(result.Terms)
	return result
}

// resolveTerms extracts terminology and evaluates termbase candidates in
// context. Matches below the terminology threshold are gated out of the
// glossary but kept in the trace.
func (w *TerminologyWorkflow) resolveTerms(ctx context.Context, sourceText, sourceLang, targetLang string, control *config.TranslationControl) []agents.TermMatch {
	extracted := w.extractor.Extract(ctx, sourceText, sourceLang)

	var matches []agents.TermMatch
	for _, term := range extracted {
		candidates, err := w.db.SearchTerms(term.Term, termbase.SearchOptions{
			SourceLang: sourceLang,
			TargetLang: targetLang,
			Limit:      5,
		})
		if err != nil {
			slog.Warn("termbase lookup failed", "term", term.Term, "error", err)
			continue
		}
		if len(candidates) == 0 {
			continue
		}

		match := w.evaluator.Evaluate(ctx, sourceText, term.Term, candidates)
		if control.GatingEnabled(config.LayerTerminology) && match.Confidence < control.TerminologyThreshold {
			match.Gated = true
		}
		matches = append(matches, match)
	}
	return matches
}

// matchConfidence averages the accepted match confidences. With nothing
// to check against, the translation is trusted at the baseline level.
func (w *TerminologyWorkflow) matchConfidence(matches []agents.TermMatch) float64 {
	if len(matches) == 0 {
		return 0.9
	}
	sum := 0.0
	for _, m := range matches {
		sum += m.Confidence
	}
	return sum / float64(len(matches))
}
