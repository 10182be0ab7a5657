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
	"github.com/kadirpekel/legalmt/pkg/tm"
)

// Discourse consistency dimensions.
var DiscourseDimensions = []string{"terminology_consistency", "style_consistency", "coherence"}

// DiscourseEvaluation scores a translation against translation memory
// references for corpus-level consistency.
type DiscourseEvaluation struct {
	Scores    map[string]float64 `json:"scores"`
	Overall   float64            `json:"overall"`
	Reasoning string             `json:"reasoning,omitempty"`
}

// DiscourseEvaluator checks whether a translation is consistent with how
// similar sentences were translated before.
type DiscourseEvaluator struct {
	client *llm.Client
}

func NewDiscourseEvaluator(client *llm.Client) *DiscourseEvaluator {
	return &DiscourseEvaluator{client: client}
}

func referenceBlock(refs []tm.Result) string {
	var sb strings.Builder
	for i, ref := range refs {
		fmt.Fprintf(&sb, "%d. (similarity %.2f) %s => %s\n", i+1, ref.Score, ref.SourceText, ref.TargetText)
	}
	return sb.String()
}

// Evaluate scores consistency with the given references. With no
// references there is nothing to be inconsistent with, so every
// dimension scores 1.0; the same holds for a degraded model response.
func (a *DiscourseEvaluator) Evaluate(ctx context.Context, sourceText, translatedText string, refs []tm.Result) DiscourseEvaluation {
	eval := DiscourseEvaluation{Scores: make(map[string]float64, len(DiscourseDimensions))}
	for _, dim := range DiscourseDimensions {
		eval.Scores[dim] = 1.0
	}
	eval.Overall = 1.0
	if len(refs) == 0 {
		return eval
	}

	messages := []llm.Message{
		{Role: "system", Content: `You are a legal translation reviewer checking corpus consistency. Given past translations of similar sentences, score how consistent the new translation is with them, from 0.0 to 1.0, on: terminology_consistency, style_consistency, coherence.

Respond with JSON: {"scores": {"terminology_consistency": <f>, "style_consistency": <f>, "coherence": <f>}, "overall": <f>, "reasoning": "..."}`},
		{Role: "user", Content: fmt.Sprintf("Source: %s\nTranslation: %s\nPast translations:\n%s", sourceText, translatedText, referenceBlock(refs))},
	}

	decoded := a.client.ChatJSON(ctx, messages, llm.WithTemperature(0.0))
	if objFailed(decoded) {
		return eval
	}

	rawScores := objMap(decoded, "scores")
	sum := 0.0
	for _, dim := range DiscourseDimensions {
		score := 1.0
		if rawScores != nil {
			score = objFloat(rawScores, dim, 1.0)
		}
		eval.Scores[dim] = score
		sum += score
	}
	eval.Overall = objFloat(decoded, "overall", sum/float64(len(DiscourseDimensions)))
	eval.Reasoning = objString(decoded, "reasoning")
	return eval
}

// DiscourseRefiner nudges a translation toward corpus conventions.
type DiscourseRefiner struct {
	client *llm.Client
}

func NewDiscourseRefiner(client *llm.Client) *DiscourseRefiner {
	return &DiscourseRefiner{client: client}
}

// Refine adjusts the translation to match the reference conventions.
// The instruction is deliberately conservative: align wording with the
// references, change nothing that is already consistent. Empty or
// failed output keeps the input.
func (a *DiscourseRefiner) Refine(ctx context.Context, sourceText, translatedText string, refs []tm.Result, eval DiscourseEvaluation) string {
	if len(refs) == 0 {
		return translatedText
	}
	refined := a.refineOnce(ctx, sourceText, translatedText, refs, eval, 0)
	if refined == "" {
		return translatedText
	}
	return refined
}

// RefineCandidates produces up to n refinement variants for candidate
// selection. The first call is greedy, later ones sample; failures and
// outputs identical to the input are skipped.
func (a *DiscourseRefiner) RefineCandidates(ctx context.Context, sourceText, translatedText string, refs []tm.Result, eval DiscourseEvaluation, n int) []string {
	var candidates []string
	for i := 0; i < n; i++ {
		refined := a.refineOnce(ctx, sourceText, translatedText, refs, eval, i)
		if refined == "" || refined == translatedText {
			continue
		}
		candidates = append(candidates, refined)
	}
	return candidates
}

func (a *DiscourseRefiner) refineOnce(ctx context.Context, sourceText, translatedText string, refs []tm.Result, eval DiscourseEvaluation, attempt int) string {
	var issues strings.Builder
	for _, dim := range DiscourseDimensions {
		if eval.Scores[dim] < 1.0 {
			fmt.Fprintf(&issues, "- %s scored %.2f\n", dim, eval.Scores[dim])
		}
	}

	system := `You are a legal translator aligning a translation with established corpus conventions. Make the SMALLEST changes needed to match the reference translations' terminology and style. Do not restructure the sentence or change its meaning. Return only the revised translation.`
	if issues.Len() > 0 {
		system += "\n\nReported inconsistencies:\n" + issues.String()
	}

	temperature := 0.0
	if attempt > 0 {
		temperature = 0.7
	}
	result, err := a.client.Chat(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: fmt.Sprintf("Source: %s\nCurrent translation: %s\nReference translations:\n%s", sourceText, translatedText, referenceBlock(refs))},
	}, llm.WithTemperature(temperature))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(result.Content)
}
