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

	"github.com/kadirpekel/legalmt/pkg/llm"
)

// QualityAssessment is a reference-free direct assessment of one
// translation, scored 0-100.
type QualityAssessment struct {
	Score     float64 `json:"score"`
	Adequacy  float64 `json:"adequacy"`
	Fluency   float64 `json:"fluency"`
	Reasoning string  `json:"reasoning,omitempty"`
	Failed    bool    `json:"failed,omitempty"`
}

// QualityAssessor runs GEMBA-style direct assessment with an LLM judge.
type QualityAssessor struct {
	client *llm.Client
}

func NewQualityAssessor(client *llm.Client) *QualityAssessor {
	return &QualityAssessor{client: client}
}

// Assess scores a translation. The reference is optional: when empty
// the assessment is source-only. A degraded response is marked Failed
// with a zero score rather than invented numbers.
func (a *QualityAssessor) Assess(ctx context.Context, sourceText, translatedText, reference, sourceLang, targetLang string) QualityAssessment {
	prompt := fmt.Sprintf("Source: %s\nTranslation: %s", sourceText, translatedText)
	if reference != "" {
		prompt += fmt.Sprintf("\nReference: %s", reference)
	}

	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(`You are an expert evaluator of %s to %s legal translation. Score the translation from 0 to 100, where 0 is no meaning preserved and 100 is a perfect translation a legal professional would sign off on. Also score adequacy (meaning preservation) and fluency (target-language quality) on the same scale. If a reference translation is provided, judge against it.

Respond with JSON: {"score": <0-100>, "adequacy": <0-100>, "fluency": <0-100>, "reasoning": "..."}`, sourceLang, targetLang)},
		{Role: "user", Content: prompt},
	}

	decoded := a.client.ChatJSON(ctx, messages, llm.WithTemperature(0.0))
	if objFailed(decoded) {
		return QualityAssessment{Failed: true}
	}

	return QualityAssessment{
		Score:     objFloat(decoded, "score", 0),
		Adequacy:  objFloat(decoded, "adequacy", 0),
		Fluency:   objFloat(decoded, "fluency", 0),
		Reasoning: objString(decoded, "reasoning"),
	}
}
