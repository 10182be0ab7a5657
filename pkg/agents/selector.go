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

// Selection is the selector's verdict over a candidate list. Scores has
// one value per candidate, in input order.
type Selection struct {
	Index      int       `json:"index"`
	Confidence float64   `json:"confidence"`
	Scores     []float64 `json:"scores"`
	Reasoning  string    `json:"reasoning,omitempty"`
}

// Selector picks the best translation among candidates. It never fails:
// any model trouble resolves to the first candidate with reduced
// confidence, since candidate 0 is the pipeline's incumbent.
type Selector struct {
	client *llm.Client
}

func NewSelector(client *llm.Client) *Selector {
	return &Selector{client: client}
}

// Select returns the winning candidate index. The criteria string tells
// the model which layer's concerns to weigh (terminology fidelity,
// syntactic structure, or discourse consistency); contextBlock carries
// layer material the judge should consult, such as the glossary the
// candidates were translated under, and may be empty.
func (a *Selector) Select(ctx context.Context, sourceText string, candidates []string, criteria, contextBlock string) Selection {
	n := len(candidates)
	if n == 0 {
		return Selection{Confidence: 0.5}
	}
	if n == 1 {
		return Selection{Index: 0, Confidence: 1.0, Scores: []float64{1.0}, Reasoning: "only one candidate"}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Source: %s\n", sourceText)
	if contextBlock != "" {
		sb.WriteString("Context:\n" + contextBlock)
	}
	for i, c := range candidates {
		fmt.Fprintf(&sb, "Candidate %d: %s\n", i+1, c)
	}

	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(`You are a legal translation judge. Compare the candidate translations of the source sentence and pick the best one. Weigh in particular: %s.

Respond with JSON: {"best_candidate": <1-based index>, "confidence": <0.0-1.0>, "reasoning": "...", "candidate_analysis": [{"candidate": <1-based index>, "score": <0.0-1.0>}]}`, criteria)},
		{Role: "user", Content: sb.String()},
	}

	decoded := a.client.ChatJSON(ctx, messages, llm.WithTemperature(0.0))
	if objFailed(decoded) {
		scores := make([]float64, n)
		scores[0] = 0.5
		return Selection{Index: 0, Confidence: 0.5, Scores: scores}
	}

	index := int(objFloat(decoded, "best_candidate", 1)) - 1
	confidence := objFloat(decoded, "confidence", 0.5)
	if index < 0 || index >= n {
		// A nonsense index means the verdict as a whole is suspect:
		// keep the incumbent at reduced confidence.
		index = 0
		confidence = 0.5
	}

	scores := make([]float64, n)
	analyzed := false
	for _, item := range objSlice(decoded, "candidate_analysis") {
		m, ok := item.(jsonObj)
		if !ok {
			continue
		}
		i := int(objFloat(m, "candidate", 0)) - 1
		if i < 0 || i >= n {
			continue
		}
		scores[i] = objFloat(m, "score", 0)
		analyzed = true
	}
	if !analyzed {
		// No per-candidate analysis: give the winner its confidence and
		// split the remainder over the losers.
		rest := (1 - confidence) / float64(n-1)
		for i := range scores {
			scores[i] = rest
		}
		scores[index] = confidence
	}

	return Selection{
		Index:      index,
		Confidence: confidence,
		Scores:     scores,
		Reasoning:  objString(decoded, "reasoning"),
	}
}
