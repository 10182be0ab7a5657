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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kadirpekel/legalmt/pkg/agents"
	"github.com/kadirpekel/legalmt/pkg/config"
	"github.com/kadirpekel/legalmt/pkg/workflows"
)

// TranslateCmd translates a single sentence through the pipeline and
// prints the result, with the full per-round trace on --trace.
type TranslateCmd struct {
	Text       string `help:"Source text to translate." required:""`
	SourceLang string `name:"source-lang" help:"Source language code." default:"zh"`
	TargetLang string `name:"target-lang" help:"Target language code." default:"en"`

	Ablation string `help:"Ablation preset (baseline, terminology, terminology_syntax, full)." default:"full"`
	Termbase string `help:"Termbase SQLite path." type:"path"`
	TM       string `name:"tm" help:"Translation memory snapshot path." type:"path"`
	MilvusCollection string `name:"milvus-collection" help:"Milvus collection for vector TM search."`

	Selection     string `help:"Layers with candidate selection: none, all, last, or a comma list." default:"none"`
	Gating        string `help:"Layers with gating: none, all, last, or a comma list." default:"none"`
	NumCandidates int    `name:"num-candidates" help:"Candidates generated when selection is on." default:"3"`

	TermGateThreshold      float64 `name:"term-gate-threshold" help:"Min term confidence kept in the glossary." default:"0.8"`
	SyntaxGateThreshold    float64 `name:"syntax-gate-threshold" help:"Syntax score that skips refinement." default:"0.85"`
	DiscourseGateThreshold float64 `name:"discourse-gate-threshold" help:"Discourse score that skips refinement." default:"0.9"`
	TMGateThreshold        float64 `name:"tm-gate-threshold" help:"Min TM similarity for a usable reference." default:"0.4"`

	EnableQualityAssessment bool   `name:"enable-quality-assessment" help:"Run an LLM direct assessment on the final translation."`
	Reference               string `help:"Reference translation for the quality assessment."`

	Trace bool `help:"Print the full round trace as JSON."`
}

// buildControl translates the CLI control flags into the process-wide
// translation control.
func buildControl(selection, gating string, numCandidates int, term, syntax, discourse, tmSim float64) (*config.TranslationControl, error) {
	selectionLayers, err := config.ParseLayers(selection)
	if err != nil {
		return nil, fmt.Errorf("invalid --selection: %w", err)
	}
	gatingLayers, err := config.ParseLayers(gating)
	if err != nil {
		return nil, fmt.Errorf("invalid --gating: %w", err)
	}

	control := &config.TranslationControl{
		SelectionEnabledLayers: selectionLayers,
		GatingEnabledLayers:    gatingLayers,
		NumCandidates:          numCandidates,
		TerminologyThreshold:   term,
		SyntaxThreshold:        syntax,
		DiscourseThreshold:     discourse,
		TMSimilarityThreshold:  tmSim,
	}
	if err := control.Validate(); err != nil {
		return nil, err
	}
	return control, nil
}

func (c *TranslateCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	control, err := buildControl(c.Selection, c.Gating, c.NumCandidates,
		c.TermGateThreshold, c.SyntaxGateThreshold, c.DiscourseGateThreshold, c.TMGateThreshold)
	if err != nil {
		return err
	}
	config.SetTranslationControl(control)

	ablations := config.DefaultAblations()
	ablation, ok := ablations[c.Ablation]
	if !ok {
		return fmt.Errorf("unknown ablation %q", c.Ablation)
	}

	client, err := newLLMClient()
	if err != nil {
		return err
	}
	db, err := openTermbase(c.Termbase)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	store, err := openTM(c.TM, c.MilvusCollection)
	if err != nil {
		return err
	}

	translator := workflows.NewTranslator(client, ablation,
		workflows.WithTermbase(db),
		workflows.WithTranslationMemory(store),
	)
	translation := translator.Translate(ctx, c.Text, c.SourceLang, c.TargetLang)

	var assessment *agents.QualityAssessment
	if c.EnableQualityAssessment {
		a := agents.NewQualityAssessor(client).Assess(ctx, c.Text, translation.TranslatedText, c.Reference, c.SourceLang, c.TargetLang)
		assessment = &a
	}

	if c.Trace {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*workflows.Translation
			Assessment *agents.QualityAssessment `json:"assessment,omitempty"`
		}{translation, assessment})
	}

	fmt.Println(translation.TranslatedText)
	if assessment != nil {
		if assessment.Failed {
			fmt.Println("quality assessment failed")
		} else {
			fmt.Printf("quality: %.0f (adequacy %.0f, fluency %.0f)\n",
				assessment.Score, assessment.Adequacy, assessment.Fluency)
		}
	}
	return nil
}
