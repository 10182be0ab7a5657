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

// Package workflows orchestrates the three translation rounds. Each round
// wraps its agents with the gating and candidate-selection policy from
// the active translation control, and records what it did in the round
// result so a run is fully traceable.
package workflows

import (
	"github.com/kadirpekel/legalmt/pkg/agents"
	"github.com/kadirpekel/legalmt/pkg/tm"
)

// TerminologyResult traces the terminology round.
type TerminologyResult struct {
	TranslatedText string             `json:"translated_text"`
	Confidence     float64            `json:"confidence"`
	Terms          []agents.TermMatch `json:"terms,omitempty"`
	GatedTerms     []agents.TermMatch `json:"gated_terms,omitempty"`
	Candidates     []string           `json:"candidates,omitempty"`
	Selection      *agents.Selection  `json:"selection,omitempty"`
}

// SyntaxResult traces the syntax round. Gated means the first-round
// translation already passed every syntactic check and was kept as-is.
type SyntaxResult struct {
	TranslatedText string                  `json:"translated_text"`
	Confidence     float64                 `json:"confidence"`
	Gated          bool                    `json:"gated"`
	Patterns       []agents.SyntaxPattern  `json:"patterns,omitempty"`
	Evaluation     agents.SyntaxEvaluation `json:"evaluation"`
	Candidates     []string                `json:"candidates,omitempty"`
	Selection      *agents.Selection       `json:"selection,omitempty"`
}

// DiscourseResult traces the discourse round. Gated covers both the
// no-references case and a consistency score above threshold.
type DiscourseResult struct {
	TranslatedText string                     `json:"translated_text"`
	Confidence     float64                    `json:"confidence"`
	Gated          bool                       `json:"gated"`
	References     []tm.Result                `json:"references,omitempty"`
	Evaluation     agents.DiscourseEvaluation `json:"evaluation"`
	Candidates     []string                   `json:"candidates,omitempty"`
	Selection      *agents.Selection          `json:"selection,omitempty"`
}

// Translation is the full outcome of translating one sentence, with the
// per-round traces that produced it.
type Translation struct {
	SourceText     string                 `json:"source_text"`
	TranslatedText string                 `json:"translated_text"`
	SourceLang     string                 `json:"source_lang"`
	TargetLang     string                 `json:"target_lang"`
	Confidence     float64                `json:"confidence"`
	Rounds         int                    `json:"rounds"`
	Terminology    *TerminologyResult     `json:"terminology,omitempty"`
	Syntax         *SyntaxResult          `json:"syntax,omitempty"`
	Discourse      *DiscourseResult       `json:"discourse,omitempty"`
	Baseline       *agents.BaselineResult `json:"baseline,omitempty"`
}
