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

	"github.com/kadirpekel/legalmt/pkg/agents"
	"github.com/kadirpekel/legalmt/pkg/config"
	"github.com/kadirpekel/legalmt/pkg/llm"
	"github.com/kadirpekel/legalmt/pkg/tm"
)

const (
	// Hybrid retrieval depth and how many references survive the cut.
	tmQueryTopK = 5
	tmQueryKeep = 3
)

// DiscourseWorkflow runs the third round: retrieve how similar sentences
// were translated before and nudge the current translation toward those
// conventions.
type DiscourseWorkflow struct {
	evaluator *agents.DiscourseEvaluator
	refiner   *agents.DiscourseRefiner
	selector  *agents.Selector
	store     *tm.Store
}

// NewDiscourseWorkflow wires the round. store may be nil, which makes
// every sentence gate through untouched.
func NewDiscourseWorkflow(client *llm.Client, store *tm.Store) *DiscourseWorkflow {
	return &DiscourseWorkflow{
		evaluator: agents.NewDiscourseEvaluator(client),
		refiner:   agents.NewDiscourseRefiner(client),
		selector:  agents.NewSelector(client),
		store:     store,
	}
}

// Run executes the discourse round. No references means nothing to be
// consistent with, so the round gates; likewise when the consistency
// score clears the discourse threshold. References below the TM
// similarity threshold are dropped before refinement.
func (w *DiscourseWorkflow) Run(ctx context.Context, sourceText, translatedText, sourceLang, targetLang string, control *config.TranslationControl) *DiscourseResult {
	result := &DiscourseResult{}

	var refs []tm.Result
	if w.store != nil {
		refs = w.store.HybridSearch(ctx, sourceText, sourceLang, targetLang, tmQueryTopK)
		if len(refs) > tmQueryKeep {
			refs = refs[:tmQueryKeep]
		}
	}
	result.References = refs

	if len(refs) == 0 {
		result.Gated = true
		result.TranslatedText = translatedText
		result.Confidence = 1.0
		result.Evaluation = w.evaluator.Evaluate(ctx, sourceText, translatedText, nil)
		return result
	}

	eval := w.evaluator.Evaluate(ctx, sourceText, translatedText, refs)
	result.Evaluation = eval

	if control.GatingEnabled(config.LayerDiscourse) && eval.Overall >= control.DiscourseThreshold {
		result.Gated = true
		result.TranslatedText = translatedText
		result.Confidence = 1.0
		return result
	}

	var usable []tm.Result
	for _, ref := range refs {
		if ref.Score >= control.TMSimilarityThreshold {
			usable = append(usable, ref)
		}
	}
	if len(usable) == 0 {
		result.TranslatedText = translatedText
		result.Confidence = eval.Overall
		return result
	}

	if control.SelectionEnabled(config.LayerDiscourse) {
		// The incoming translation is always candidate zero, so the
		// selector can veto every rewrite.
		candidates := append([]string{translatedText},
			w.refiner.RefineCandidates(ctx, sourceText, translatedText, usable, eval, control.NumCandidates-1)...)
		if len(candidates) > 1 {
			selection := w.selector.Select(ctx, sourceText, candidates, "consistency with the reference translations' terminology and style", "")
			result.Candidates = candidates
			result.Selection = &selection
			result.TranslatedText = candidates[selection.Index]
			result.Confidence = selection.Confidence
			return result
		}
	}

	refined := w.refiner.Refine(ctx, sourceText, translatedText, usable, eval)
	result.TranslatedText = refined
	result.Confidence = eval.Overall
	return result
}
