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
	"github.com/kadirpekel/legalmt/pkg/termbase"
)

// ExtractedTerm is one legal term found in a source sentence.
type ExtractedTerm struct {
	Term     string `json:"term"`
	Category string `json:"category,omitempty"`
}

// TermMatch pairs a source term with its termbase translation and the
// context-fit confidence assigned by the evaluator. Gated matches fell
// below the terminology threshold and are excluded from the glossary.
type TermMatch struct {
	SourceTerm string  `json:"source_term"`
	TargetTerm string  `json:"target_term"`
	Confidence float64 `json:"confidence"`
	Gated      bool    `json:"gated"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// TermExtractor finds legal terminology in monolingual source text.
type TermExtractor struct {
	client *llm.Client
}

func NewTermExtractor(client *llm.Client) *TermExtractor {
	return &TermExtractor{client: client}
}

// Extract returns the legal terms present in the source text. A degraded
// model response yields an empty list.
func (a *TermExtractor) Extract(ctx context.Context, sourceText, sourceLang string) []ExtractedTerm {
	messages := []llm.Message{
		{Role: "system", Content: `You are a legal terminology expert. Identify all legal terms in the given text: statutory concepts, defined terms, legal roles, procedural terms, and terms of art. Ignore common words used in their everyday sense.

Respond with JSON: {"terms": [{"term": "...", "category": "..."}]}`},
		{Role: "user", Content: fmt.Sprintf("Language: %s\nText: %s", sourceLang, sourceText)},
	}

	decoded := a.client.ChatJSON(ctx, messages, llm.WithTemperature(0.0))
	if objFailed(decoded) {
		return nil
	}

	var terms []ExtractedTerm
	for _, item := range objSlice(decoded, "terms") {
		switch v := item.(type) {
		case string:
			if v != "" {
				terms = append(terms, ExtractedTerm{Term: v})
			}
		case jsonObj:
			term := objString(v, "term")
			if term == "" {
				continue
			}
			terms = append(terms, ExtractedTerm{Term: term, Category: objString(v, "category")})
		}
	}
	return terms
}

// TermEvaluator scores how well a termbase translation fits the sentence
// the term actually appears in.
type TermEvaluator struct {
	client *llm.Client
}

func NewTermEvaluator(client *llm.Client) *TermEvaluator {
	return &TermEvaluator{client: client}
}

const termEvalRubric = `Score the confidence that the candidate translation is correct FOR THIS SENTENCE:
- 0.9-1.0: the candidate's recorded context matches this usage exactly
- 0.7-0.9: same legal domain, compatible usage
- 0.5-0.7: plausible but the contexts differ noticeably
- below 0.5: the candidate likely means something else here`

// Evaluate picks the best candidate for the term in context and returns
// the match with its confidence. With no candidates, or on a degraded
// response, it returns a zero-confidence match on the first candidate.
func (a *TermEvaluator) Evaluate(ctx context.Context, sourceText, term string, candidates []termbase.Term) TermMatch {
	if len(candidates) == 0 {
		return TermMatch{SourceTerm: term}
	}

	var sb strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %q (domain: %s, recorded context: %s)\n", i+1, c.TargetTerm, c.Domain, c.SourceContext)
	}

	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(`You are a legal terminology expert evaluating termbase candidates against the sentence they would be used in.

%s

Respond with JSON: {"best_candidate": <1-based index>, "confidence": <0.0-1.0>, "reasoning": "..."}`, termEvalRubric)},
		{Role: "user", Content: fmt.Sprintf("Sentence: %s\nTerm: %s\nCandidates:\n%s", sourceText, term, sb.String())},
	}

	decoded := a.client.ChatJSON(ctx, messages, llm.WithTemperature(0.0))
	if objFailed(decoded) {
		return TermMatch{SourceTerm: term, TargetTerm: candidates[0].TargetTerm}
	}

	best := int(objFloat(decoded, "best_candidate", 1)) - 1
	if best < 0 || best >= len(candidates) {
		best = 0
	}
	return TermMatch{
		SourceTerm: term,
		TargetTerm: candidates[best].TargetTerm,
		Confidence: objFloat(decoded, "confidence", 0),
		Reasoning:  objString(decoded, "reasoning"),
	}
}

// TermTranslator translates with a glossary constraint built from the
// accepted term matches.
type TermTranslator struct {
	client *llm.Client
}

func NewTermTranslator(client *llm.Client) *TermTranslator {
	return &TermTranslator{client: client}
}

// GlossaryBlock renders the accepted matches as a glossary table, one
// "source => target" line per pair. Gated and targetless matches are
// skipped.
func GlossaryBlock(matches []TermMatch) string {
	var sb strings.Builder
	for _, m := range matches {
		if m.Gated || m.TargetTerm == "" {
			continue
		}
		fmt.Fprintf(&sb, "- %s => %s\n", m.SourceTerm, m.TargetTerm)
	}
	return sb.String()
}

// Translate produces one glossary-constrained translation. On failure it
// returns an empty string so the caller can fall back.
func (a *TermTranslator) Translate(ctx context.Context, sourceText, sourceLang, targetLang string, matches []TermMatch, temperature float64) (string, error) {
	glossary := GlossaryBlock(matches)
	system := fmt.Sprintf("You are a professional legal translator. Translate the user text from %s to %s, preserving legal register and sentence structure.", sourceLang, targetLang)
	if glossary != "" {
		system += "\n\nUse these exact term translations:\n" + glossary
	}

	result, err := a.client.Chat(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: sourceText},
	}, llm.WithTemperature(temperature))
	if err != nil {
		return "", fmt.Errorf("terminology translation failed: %w", err)
	}
	return strings.TrimSpace(result.Content), nil
}

// TranslateCandidates produces n candidate translations. The first call
// is greedy; later calls add sampling temperature for diversity. Failed
// calls are skipped, so the result may be shorter than n.
func (a *TermTranslator) TranslateCandidates(ctx context.Context, sourceText, sourceLang, targetLang string, matches []TermMatch, n int) []string {
	if n < 1 {
		n = 1
	}
	candidates := make([]string, 0, n)
	for i := 0; i < n; i++ {
		temperature := 0.0
		if i > 0 {
			temperature = 0.7
		}
		text, err := a.Translate(ctx, sourceText, sourceLang, targetLang, matches, temperature)
		if err != nil || text == "" {
			continue
		}
		candidates = append(candidates, text)
	}
	return candidates
}
