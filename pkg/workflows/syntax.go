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
)

// SyntaxWorkflow runs the second round: align syntactic patterns between
// source and first-round translation, evaluate the four dimensions, and
// refine only when something actually fell short.
type SyntaxWorkflow struct {
	extractor *agents.SyntaxExtractor
	evaluator *agents.SyntaxEvaluator
	refiner   *agents.SyntaxRefiner
	selector  *agents.Selector
}

func NewSyntaxWorkflow(client *llm.Client) *SyntaxWorkflow {
	return &SyntaxWorkflow{
		extractor: agents.NewSyntaxExtractor(client),
		evaluator: agents.NewSyntaxEvaluator(client),
		refiner:   agents.NewSyntaxRefiner(client),
		selector:  agents.NewSelector(client),
	}
}

// Run executes the syntax round. The incoming translation is always
// candidate zero: refinement must beat it in selection, and a gated
// round keeps it untouched at full confidence.
func (w *SyntaxWorkflow) Run(ctx context.Context, sourceText, translatedText, sourceLang, targetLang string, terms []agents.TermMatch, control *config.TranslationControl) *SyntaxResult {
	patterns := w.extractor.Extract(ctx, sourceText, translatedText, sourceLang, targetLang)
	eval := w.evaluator.Evaluate(ctx, sourceText, translatedText, patterns)

	result := &SyntaxResult{
		Patterns:   patterns,
		Evaluation: eval,
	}

	if control.GatingEnabled(config.LayerSyntax) &&
		eval.Overall >= control.SyntaxThreshold && !eval.NeedsRefinement() {
		result.Gated = true
		result.TranslatedText = translatedText
		result.Confidence = 1.0
		return result
	}

	if control.SelectionEnabled(config.LayerSyntax) {
		// The incoming translation is always candidate zero, followed by
		// NumCandidates-1 refinement variants.
		candidates := append([]string{translatedText},
			w.refiner.RefineCandidates(ctx, sourceText, translatedText, eval, terms, control.NumCandidates-1)...)
		if len(candidates) > 1 {
			selection := w.selector.Select(ctx, sourceText, candidates, "syntactic structure: modality, connectives, conditionals, and voice", "")
			result.Candidates = candidates
			result.Selection = &selection
			result.TranslatedText = candidates[selection.Index]
			result.Confidence = selection.Confidence
			return result
		}
		result.TranslatedText = translatedText
		result.Confidence = eval.Overall
		return result
	}

	refined := w.refiner.Refine(ctx, sourceText, translatedText, eval, terms)
	result.TranslatedText = refined
	result.Confidence = eval.Overall
	return result
}
