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

package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/legalmt/pkg/llm"
)

// Syntactic dimensions evaluated on legal sentences.
const (
	DimModality    = "modality"
	DimConnective  = "connective"
	DimConditional = "conditional"
	DimPassive     = "passive"
)

// SyntaxDimensions lists the evaluated dimensions in canonical order.
var SyntaxDimensions = []string{DimModality, DimConnective, DimConditional, DimPassive}

// Patterns or dimension scores below this need targeted repair.
const syntaxLowThreshold = 0.9

// SyntaxPattern is one aligned syntactic structure between source and
// translation.
type SyntaxPattern struct {
	Dimension     string  `json:"dimension"`
	SourcePattern string  `json:"source_pattern"`
	TargetPattern string  `json:"target_pattern"`
	Confidence    float64 `json:"confidence"`
}

// SyntaxEvaluation is the per-dimension verdict on a translation.
type SyntaxEvaluation struct {
	Scores                map[string]float64 `json:"scores"`
	Overall               float64            `json:"overall"`
	LowConfidencePatterns []SyntaxPattern    `json:"low_confidence_patterns,omitempty"`
	LowScoreDimensions    []string           `json:"low_score_dimensions,omitempty"`
	Reasoning             string             `json:"reasoning,omitempty"`
}

// NeedsRefinement reports whether any pattern or dimension fell below
// the repair threshold.
func (e SyntaxEvaluation) NeedsRefinement() bool {
	return len(e.LowConfidencePatterns) > 0 || len(e.LowScoreDimensions) > 0
}

// SyntaxExtractor aligns syntactic patterns between a source sentence
// and its translation.
type SyntaxExtractor struct {
	client *llm.Client
}

func NewSyntaxExtractor(client *llm.Client) *SyntaxExtractor {
	return &SyntaxExtractor{client: client}
}

// Extract returns aligned patterns across the four dimensions. A degraded
// response yields an empty list.
func (a *SyntaxExtractor) Extract(ctx context.Context, sourceText, translatedText, sourceLang, targetLang string) []SyntaxPattern {
	messages := []llm.Message{
		{Role: "system", Content: `You are a legal linguist. Align syntactic patterns between a legal sentence and its translation across four dimensions:
- modality: deontic operators (shall/must/may/may not and their equivalents)
- connective: logical and enumerative connectives
- conditional: if/where/in-case-of clauses and their scope
- passive: passive voice constructions

For each pattern found in the source, give the corresponding target pattern and your confidence that the translation preserves it.

Respond with JSON: {"patterns": [{"dimension": "...", "source_pattern": "...", "target_pattern": "...", "confidence": <0.0-1.0>}]}`},
		{Role: "user", Content: fmt.Sprintf("Source (%s): %s\nTranslation (%s): %s", sourceLang, sourceText, targetLang, translatedText)},
	}

	decoded := a.client.ChatJSON(ctx, messages, llm.WithTemperature(0.0))
	if objFailed(decoded) {
		return nil
	}

	var patterns []SyntaxPattern
	for _, item := range objSlice(decoded, "patterns") {
		m, ok := item.(jsonObj)
		if !ok {
			continue
		}
		p := SyntaxPattern{
			Dimension:     objString(m, "dimension"),
			SourcePattern: objString(m, "source_pattern"),
			TargetPattern: objString(m, "target_pattern"),
			Confidence:    objFloat(m, "confidence", 0),
		}
		if p.Dimension == "" || p.SourcePattern == "" {
			continue
		}
		patterns = append(patterns, p)
	}
	return patterns
}

// SyntaxEvaluator scores translation fidelity per dimension.
type SyntaxEvaluator struct {
	client *llm.Client
}

func NewSyntaxEvaluator(client *llm.Client) *SyntaxEvaluator {
	return &SyntaxEvaluator{client: client}
}

// Evaluate scores the translation on each dimension and collects the
// items needing repair. Missing dimension scores default to 1.0, as does
// the passive dimension when the sentence has no passive constructions.
// A degraded response yields a perfect evaluation, deferring to gating.
func (a *SyntaxEvaluator) Evaluate(ctx context.Context, sourceText, translatedText string, patterns []SyntaxPattern) SyntaxEvaluation {
	var patternBlock strings.Builder
	for _, p := range patterns {
		fmt.Fprintf(&patternBlock, "- [%s] %q => %q (confidence %.2f)\n", p.Dimension, p.SourcePattern, p.TargetPattern, p.Confidence)
	}

	messages := []llm.Message{
		{Role: "system", Content: `You are a legal linguist scoring a translation's syntactic fidelity. Score each dimension from 0.0 to 1.0: modality, connective, conditional, passive. If the source has no passive constructions, score passive 1.0.

Respond with JSON: {"scores": {"modality": <f>, "connective": <f>, "conditional": <f>, "passive": <f>}, "overall": <f>, "reasoning": "..."}`},
		{Role: "user", Content: fmt.Sprintf("Source: %s\nTranslation: %s\nAligned patterns:\n%s", sourceText, translatedText, patternBlock.String())},
	}

	decoded := a.client.ChatJSON(ctx, messages, llm.WithTemperature(0.0))

	eval := SyntaxEvaluation{Scores: make(map[string]float64, len(SyntaxDimensions))}
	rawScores := objMap(decoded, "scores")
	for _, dim := range SyntaxDimensions {
		score := 1.0
		if rawScores != nil {
			score = objFloat(rawScores, dim, 1.0)
		}
		eval.Scores[dim] = score
		if score < syntaxLowThreshold {
			eval.LowScoreDimensions = append(eval.LowScoreDimensions, dim)
		}
	}

	if objFailed(decoded) {
		eval.Overall = 1.0
	} else {
		sum := 0.0
		for _, dim := range SyntaxDimensions {
			sum += eval.Scores[dim]
		}
		eval.Overall = objFloat(decoded, "overall", sum/float64(len(SyntaxDimensions)))
		eval.Reasoning = objString(decoded, "reasoning")
	}

	for _, p := range patterns {
		if p.Confidence < syntaxLowThreshold {
			eval.LowConfidencePatterns = append(eval.LowConfidencePatterns, p)
		}
	}
	return eval
}

// SyntaxRefiner repairs syntactic defects in a translation.
type SyntaxRefiner struct {
	client *llm.Client
}

func NewSyntaxRefiner(client *llm.Client) *SyntaxRefiner {
	return &SyntaxRefiner{client: client}
}

// Refine rewrites the translation to fix the identified defects. In
// targeted mode only the listed items are repaired; otherwise the whole
// sentence is reworked. If the model returns nothing, or a result shorter
// than half the input, the input translation is kept.
func (a *SyntaxRefiner) Refine(ctx context.Context, sourceText, translatedText string, eval SyntaxEvaluation, matches []TermMatch) string {
	refined := a.refineOnce(ctx, sourceText, translatedText, eval, matches, 0)
	if refined == "" {
		return translatedText
	}
	return refined
}

// RefineCandidates produces up to n refinement variants for candidate
// selection. The first call is greedy, later ones sample; failures and
// outputs identical to the input are skipped.
func (a *SyntaxRefiner) RefineCandidates(ctx context.Context, sourceText, translatedText string, eval SyntaxEvaluation, matches []TermMatch, n int) []string {
	var candidates []string
	for i := 0; i < n; i++ {
		refined := a.refineOnce(ctx, sourceText, translatedText, eval, matches, i)
		if refined == "" || refined == translatedText {
			continue
		}
		candidates = append(candidates, refined)
	}
	return candidates
}

func (a *SyntaxRefiner) refineOnce(ctx context.Context, sourceText, translatedText string, eval SyntaxEvaluation, matches []TermMatch, attempt int) string {
	targeted := eval.NeedsRefinement()

	var instructions strings.Builder
	if targeted {
		instructions.WriteString("Fix ONLY the following defects; keep everything else unchanged:\n")
		for _, dim := range eval.LowScoreDimensions {
			fmt.Fprintf(&instructions, "- the %s dimension scored %.2f\n", dim, eval.Scores[dim])
		}
		for _, p := range eval.LowConfidencePatterns {
			fmt.Fprintf(&instructions, "- [%s] %q was rendered as %q (confidence %.2f)\n", p.Dimension, p.SourcePattern, p.TargetPattern, p.Confidence)
		}
	} else {
		instructions.WriteString("Rework the translation so that modality, connectives, conditionals, and voice all mirror the source structure.\n")
	}

	// Every surviving glossary pair is protected while restructuring.
	if table := GlossaryBlock(matches); table != "" {
		instructions.WriteString("\nDo NOT change these term translations:\n" + table)
	}

	messages := []llm.Message{
		{Role: "system", Content: "You are a legal translator refining syntax. Return only the refined translation, no commentary.\n\n" + instructions.String()},
		{Role: "user", Content: fmt.Sprintf("Source: %s\nCurrent translation: %s", sourceText, translatedText)},
	}

	temperature := 0.0
	if attempt > 0 {
		temperature = 0.7
	}
	result, err := a.client.Chat(ctx, messages, llm.WithTemperature(temperature))
	if err != nil {
		return ""
	}
	refined := strings.TrimSpace(result.Content)
	if refined == "" || len(refined) < len(translatedText)/2 {
		return ""
	}
	return refined
}
