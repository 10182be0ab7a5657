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
	"github.com/kadirpekel/legalmt/pkg/tm"
)

// Translator runs the hierarchical pipeline: terminology, then syntax,
// then discourse, each round operating on the previous round's output.
// The ablation decides which rounds run; the translation control decides
// how aggressively each round gates and selects.
type Translator struct {
	baseline    *agents.BaselineTranslator
	terminology *TerminologyWorkflow
	syntax      *SyntaxWorkflow
	discourse   *DiscourseWorkflow
	ablation    config.Ablation
}

type TranslatorOption func(*translatorDeps)

type translatorDeps struct {
	db    *termbase.DB
	store *tm.Store
}

// WithTermbase attaches the terminology database.
func WithTermbase(db *termbase.DB) TranslatorOption {
	return func(d *translatorDeps) { d.db = db }
}

// WithTranslationMemory attaches the TM store for the discourse round.
func WithTranslationMemory(store *tm.Store) TranslatorOption {
	return func(d *translatorDeps) { d.store = store }
}

// NewTranslator builds the pipeline for one ablation. Resources the
// ablation does not use are ignored even when attached.
func NewTranslator(client *llm.Client, ablation config.Ablation, opts ...TranslatorOption) *Translator {
	var deps translatorDeps
	for _, opt := range opts {
		opt(&deps)
	}

	db := deps.db
	if !ablation.UseTermbase {
		db = nil
	}
	store := deps.store
	if !ablation.UseTM {
		store = nil
	}

	return &Translator{
		baseline:    agents.NewBaselineTranslator(client),
		terminology: NewTerminologyWorkflow(client, db),
		syntax:      NewSyntaxWorkflow(client),
		discourse:   NewDiscourseWorkflow(client, store),
		ablation:    ablation,
	}
}

// Translate runs the configured rounds over one sentence. The process
// singleton control is consulted once, so a run sees a consistent
// policy even if the control is swapped mid-flight.
func (t *Translator) Translate(ctx context.Context, sourceText, sourceLang, targetLang string) *Translation {
	control := config.GetTranslationControl()

	result := &Translation{
		SourceText: sourceText,
		SourceLang: sourceLang,
		TargetLang: targetLang,
	}

	if !t.ablation.Hierarchical {
		baseline := t.baseline.Translate(ctx, sourceText, sourceLang, targetLang)
		result.Baseline = &baseline
		result.TranslatedText = baseline.TranslatedText
		result.Confidence = baseline.Confidence
		result.Rounds = 1
		return result
	}

	r1 := t.terminology.Run(ctx, sourceText, sourceLang, targetLang, control)
	result.Terminology = r1
	result.TranslatedText = r1.TranslatedText
	result.Confidence = r1.Confidence
	result.Rounds = 1

	if t.ablation.MaxRounds < 2 {
		return result
	}

	r2 := t.syntax.Run(ctx, sourceText, result.TranslatedText, sourceLang, targetLang, r1.Terms, control)
	result.Syntax = r2
	result.TranslatedText = r2.TranslatedText
	result.Confidence = r2.Confidence
	result.Rounds = 2
	if r2.Gated {
		slog.Debug("syntax round gated", "overall", r2.Evaluation.Overall)
	}

	if t.ablation.MaxRounds < 3 {
		return result
	}

	r3 := t.discourse.Run(ctx, sourceText, result.TranslatedText, sourceLang, targetLang, control)
	result.Discourse = r3
	result.TranslatedText = r3.TranslatedText
	result.Confidence = r3.Confidence
	result.Rounds = 3
	if r3.Gated {
		slog.Debug("discourse round gated", "references", len(r3.References))
	}

	return result
}
