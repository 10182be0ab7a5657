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
	"path/filepath"

	"github.com/kadirpekel/legalmt/pkg/extraction"
	"github.com/kadirpekel/legalmt/pkg/importer"
	"github.com/kadirpekel/legalmt/pkg/termbase"
)

// ExtractTermsCmd runs the four-stage bilingual term extraction
// pipeline over a parallel corpus.
type ExtractTermsCmd struct {
	Corpus string `help:"Parallel corpus (TSV source<TAB>target, CSV, JSON, or JSONL)." required:"" type:"path"`
	Output string `help:"Standardized term output (JSON)." default:"outputs/terms.json"`

	SourceLang string `name:"source-lang" default:"zh"`
	TargetLang string `name:"target-lang" default:"en"`

	BatchSize              int     `name:"batch-size" help:"Corpus pairs per processing wave." default:"20"`
	MaxConcurrent          int     `name:"max-concurrent" help:"Concurrent LLM calls." default:"40"`
	ExtractionBatchSize    int     `name:"extraction-batch-size" help:"Sentence pairs per extraction prompt." default:"3"`
	QualityCheckBatchSize  int     `name:"quality-check-batch-size" help:"Term pairs per quality prompt." default:"30"`
	NormalizationBatchSize int     `name:"normalization-batch-size" help:"Term pairs per normalization prompt." default:"50"`
	SaveInterval           int     `name:"save-interval" help:"Checkpoint every N waves." default:"5"`
	Checkpoint             string  `help:"Checkpoint file path." default:"outputs/checkpoint.json" type:"path"`
	StageDir               string  `name:"stage-dir" help:"Directory for per-stage output snapshots." type:"path"`
	StartFromStage         int     `name:"start-from-stage" help:"Resume from stage 1-4 using checkpointed output." default:"1"`
	NoResume               bool    `name:"no-resume" help:"Ignore an existing checkpoint and start fresh."`
	CleanCheckpoint        bool    `name:"clean-checkpoint" help:"Delete the checkpoint file after a successful run."`
	MaxEntries             int     `name:"max-entries" help:"Process only the first N corpus entries (0 = all)." default:"0"`
	MaxTargetsPerSource    int     `name:"max-targets-per-source" help:"Targets kept per normalized source term." default:"3"`
	ConfidenceWeight       float64 `name:"confidence-weight" help:"Combined score weight on extraction confidence." default:"0.4"`
	QualityWeight          float64 `name:"quality-weight" help:"Combined score weight on the quality review score." default:"0.6"`

	Termbase string `help:"Also import the standardized terms into this termbase." type:"path"`
	Domain   string `help:"Domain tag recorded on imported terms." default:"legal"`
}

func (c *ExtractTermsCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	entries, err := importer.LoadTMEntries(c.Corpus, importer.TMDefaults{
		SourceLang: c.SourceLang,
		TargetLang: c.TargetLang,
	})
	if err != nil {
		return err
	}
	pairs := make([]extraction.SentencePair, len(entries))
	for i, entry := range entries {
		id := entry.ID
		if id == "" {
			id = fmt.Sprintf("entry-%05d", i+1)
		}
		pairs[i] = extraction.SentencePair{
			EntryID:    id,
			SourceText: entry.SourceText,
			TargetText: entry.TargetText,
			Law:        entry.Metadata["law"],
			Domain:     entry.Domain,
			Year:       entry.Metadata["year"],
		}
	}

	client, err := newLLMClient()
	if err != nil {
		return err
	}

	opts := extraction.DefaultOptions()
	opts.SourceLang = c.SourceLang
	opts.TargetLang = c.TargetLang
	opts.BatchSize = c.BatchSize
	opts.MaxConcurrent = c.MaxConcurrent
	opts.ExtractionBatchSize = c.ExtractionBatchSize
	opts.QualityCheckBatchSize = c.QualityCheckBatchSize
	opts.NormalizationBatchSize = c.NormalizationBatchSize
	opts.SaveInterval = c.SaveInterval
	opts.MaxTargetsPerSource = c.MaxTargetsPerSource
	opts.MaxEntries = c.MaxEntries
	opts.ConfidenceWeight = c.ConfidenceWeight
	opts.QualityWeight = c.QualityWeight
	opts.CheckpointPath = c.Checkpoint
	opts.StageDir = c.StageDir
	opts.StartFromStage = c.StartFromStage
	opts.NoResume = c.NoResume
	opts.CleanCheckpoint = c.CleanCheckpoint

	pipeline, err := extraction.NewPipeline(client, opts)
	if err != nil {
		return err
	}
	terms, err := pipeline.Run(ctx, pairs)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.Output), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(terms, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal terms: %w", err)
	}
	if err := os.WriteFile(c.Output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.Output, err)
	}
	fmt.Printf("extracted %d standardized terms to %s\n", len(terms), c.Output)

	if c.Termbase == "" {
		return nil
	}

	db, err := termbase.Open(c.Termbase)
	if err != nil {
		return err
	}
	defer db.Close()

	records := make([]termbase.Term, len(terms))
	for i, t := range terms {
		domain := t.Domain
		if domain == "" {
			domain = c.Domain
		}
		records[i] = termbase.Term{
			SourceTerm:         t.SourceTerm,
			TargetTerm:         t.TargetTerm,
			OriginalSourceTerm: t.OriginalSourceTerm,
			OriginalTargetTerm: t.OriginalTargetTerm,
			SourceLang:         c.SourceLang,
			TargetLang:         c.TargetLang,
			Domain:             domain,
			Law:                t.Law,
			Year:               t.Year,
			Category:           t.Category,
			Confidence:         t.Confidence,
			QualityScore:       t.QualityScore,
			CombinedScore:      t.CombinedScore,
			OccurrenceCount:    t.OccurrenceCount,
			EntryID:            t.EntryIDs,
		}
	}
	inserted, err := db.BatchAddTerms(records)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d terms into %s\n", inserted, c.Termbase)
	return nil
}
