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
	"fmt"

	"github.com/kadirpekel/legalmt/pkg/config"
	"github.com/kadirpekel/legalmt/pkg/embedders"
	"github.com/kadirpekel/legalmt/pkg/evaluation"
	"github.com/kadirpekel/legalmt/pkg/runner"
)

// ExperimentCmd runs the ablation suite over a dataset and writes
// per-ablation results plus a comparison summary.
type ExperimentCmd struct {
	Dataset   string `help:"Dataset path (JSON array or JSONL of segments)." required:"" type:"path"`
	Output    string `help:"Output directory for results." default:"outputs/experiment"`
	Ablations string `help:"YAML file overriding the built-in ablation presets." type:"path"`

	SourceLang string `name:"source-lang" help:"Source language code." default:"zh"`
	TargetLang string `name:"target-lang" help:"Target language code." default:"en"`

	Termbase         string `help:"Termbase SQLite path." type:"path"`
	TM               string `name:"tm" help:"Translation memory snapshot path." type:"path"`
	MilvusCollection string `name:"milvus-collection" help:"Milvus collection for vector TM search."`

	Selection     string `help:"Layers with candidate selection: none, all, last, or a comma list." default:"none"`
	Gating        string `help:"Layers with gating: none, all, last, or a comma list." default:"none"`
	NumCandidates int    `name:"num-candidates" help:"Candidates generated when selection is on." default:"3"`

	TermGateThreshold      float64 `name:"term-gate-threshold" default:"0.8"`
	SyntaxGateThreshold    float64 `name:"syntax-gate-threshold" default:"0.85"`
	DiscourseGateThreshold float64 `name:"discourse-gate-threshold" default:"0.9"`
	TMGateThreshold        float64 `name:"tm-gate-threshold" default:"0.4"`

	MaxConcurrent    int  `name:"max-concurrent" help:"Sentences translated in parallel." default:"4"`
	Judge            bool `help:"Enable LLM-judged direct assessment."`
	Semantic         bool `help:"Enable embedding-based semantic similarity."`
	SaveIntermediate bool `name:"save-intermediate" help:"Derive terminology and terminology_syntax results from the full run's traces."`

	GroupBy string `name:"group-by" help:"Dataset metadata field to group aggregate scores by (e.g. law or domain)."`
}

func (c *ExperimentCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	control, err := buildControl(c.Selection, c.Gating, c.NumCandidates,
		c.TermGateThreshold, c.SyntaxGateThreshold, c.DiscourseGateThreshold, c.TMGateThreshold)
	if err != nil {
		return err
	}
	config.SetTranslationControl(control)

	ablations, err := config.LoadAblations(c.Ablations)
	if err != nil {
		return err
	}

	dataset, err := runner.LoadDataset(c.Dataset)
	if err != nil {
		return err
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

	var evalOpts []evaluation.EvaluatorOption
	if c.Judge {
		evalOpts = append(evalOpts, evaluation.WithJudge(client))
	}
	if c.Semantic {
		embedder, err := embedders.NewOpenAIEmbedder(config.EmbeddingConfigFromEnv())
		if err != nil {
			return fmt.Errorf("semantic scoring requires an embedder: %w", err)
		}
		evalOpts = append(evalOpts, evaluation.WithSemanticScoring(embedder))
	}
	evaluator := evaluation.NewEvaluator(c.SourceLang, c.TargetLang, evalOpts...)

	r, err := runner.New(client, runner.Options{
		SourceLang:       c.SourceLang,
		TargetLang:       c.TargetLang,
		OutputDir:        c.Output,
		MaxConcurrent:    c.MaxConcurrent,
		Ablations:        ablations,
		SaveIntermediate: c.SaveIntermediate,
		GroupBy:          c.GroupBy,
	},
		runner.WithTermbase(db),
		runner.WithTranslationMemory(store),
		runner.WithEvaluator(evaluator),
	)
	if err != nil {
		return err
	}

	results, err := r.Run(ctx, dataset)
	if err != nil {
		return err
	}

	for _, result := range results {
		fmt.Printf("%-22s bleu=%.4f chrf=%.4f termbase=%.4f deontic=%.4f conditional=%.4f empty=%d/%d\n",
			result.Name,
			result.Aggregate.BLEU, result.Aggregate.ChrF,
			result.Aggregate.TermbaseAccuracy, result.Aggregate.DeonticPreservation,
			result.Aggregate.ConditionalPreserved,
			result.Stats.EmptyTranslations, result.Stats.Total)
	}
	fmt.Printf("results written to %s\n", c.Output)
	return nil
}
