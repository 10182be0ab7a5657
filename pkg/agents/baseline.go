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
	"strings"

	"github.com/kadirpekel/legalmt/pkg/llm"
)

// BaselineResult is a flat single-shot translation.
type BaselineResult struct {
	TranslatedText string  `json:"translated_text"`
	Confidence     float64 `json:"confidence"`
	Error          string  `json:"error,omitempty"`
}

// BaselineTranslator is the unstructured control condition: one direct
// translation call, no terminology, syntax, or discourse machinery.
type BaselineTranslator struct {
	client *llm.Client
}

func NewBaselineTranslator(client *llm.Client) *BaselineTranslator {
	return &BaselineTranslator{client: client}
}

// Translate performs one direct translation. On failure the source text
// is passed through unchanged with zero confidence, so downstream
// scoring sees the sentence rather than a hole.
func (a *BaselineTranslator) Translate(ctx context.Context, sourceText, sourceLang, targetLang string) BaselineResult {
	translated, err := a.client.Translate(ctx, sourceText, sourceLang, targetLang)
	if err != nil || strings.TrimSpace(translated) == "" {
		result := BaselineResult{TranslatedText: sourceText, Confidence: 0.0}
		if err != nil {
			result.Error = err.Error()
		}
		return result
	}
	return BaselineResult{TranslatedText: translated, Confidence: 0.9}
}
