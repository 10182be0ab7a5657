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

// Package extraction implements the bilingual term extraction pipeline:
// four stages taking a parallel corpus to a standardized term list.
//
//	1. extract    - LLM term-pair mining over sentence pairs
//	2. quality    - LLM scoring of each mined pair in context
//	3. normalize  - LLM canonicalization of morphological variants
//	4. standardize - deterministic validation, merging, and ranking
//
// Progress is checkpointed so long corpus runs survive interruption and
// can resume, or restart from a later stage over saved intermediate
// output.
package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/kadirpekel/legalmt/pkg/llm"
)

// SentencePair is one aligned bilingual corpus entry. Law, domain, and
// year describe the statute the entry came from and travel onto the
// terms mined from it.
type SentencePair struct {
	EntryID    string `json:"entry_id"`
	SourceText string `json:"source_text"`
	TargetText string `json:"target_text"`
	Law        string `json:"law,omitempty"`
	Domain     string `json:"domain,omitempty"`
	Year       string `json:"year,omitempty"`
}

// TermPair is a mined term pair as it moves through stages 1-3. EntryIDs
// is a comma-joined list of the corpus entries the pair was seen in.
// IsValid is the stage-2 verdict; pairs judged invalid are dropped
// before checkpointing.
type TermPair struct {
	SourceTerm       string  `json:"source_term"`
	TargetTerm       string  `json:"target_term"`
	Category         string  `json:"category,omitempty"`
	Confidence       float64 `json:"confidence"`
	EntryIDs         string  `json:"entry_ids"`
	Law              string  `json:"law,omitempty"`
	Domain           string  `json:"domain,omitempty"`
	Year             string  `json:"year,omitempty"`
	OccurrenceCount  int     `json:"occurrence_count,omitempty"`
	IsValid          bool    `json:"is_valid,omitempty"`
	QualityScore     float64 `json:"quality_score,omitempty"`
	QualityIssues    string  `json:"quality_issues,omitempty"`
	NormalizedSource string  `json:"normalized_source,omitempty"`
	NormalizedTarget string  `json:"normalized_target,omitempty"`
}

// StandardTerm is a finished entry: normalized forms become the primary
// terms, the originals are kept as backup.
type StandardTerm struct {
	SourceTerm         string  `json:"source_term"`
	TargetTerm         string  `json:"target_term"`
	OriginalSourceTerm string  `json:"original_source_term"`
	OriginalTargetTerm string  `json:"original_target_term"`
	Category           string  `json:"category,omitempty"`
	Confidence         float64 `json:"confidence"`
	QualityScore       float64 `json:"quality_score"`
	CombinedScore      float64 `json:"combined_score"`
	OccurrenceCount    int     `json:"occurrence_count"`
	EntryIDs           string  `json:"entry_ids"`
	Law                string  `json:"law,omitempty"`
	Domain             string  `json:"domain,omitempty"`
	Year               string  `json:"year,omitempty"`
}

// Options configures a pipeline run.
type Options struct {
	SourceLang string
	TargetLang string

	BatchSize              int // corpus pairs handled per wave
	MaxConcurrent          int // in-flight LLM calls across a wave
	ExtractionBatchSize    int // sentence pairs per extraction prompt
	QualityCheckBatchSize  int // term pairs per quality prompt
	NormalizationBatchSize int // term pairs per normalization prompt
	SaveInterval           int // checkpoint every N waves
	MaxTargetsPerSource    int // targets kept per normalized source
	MaxEntries             int // corpus entries processed, 0 for all

	// Combined score weights over extraction confidence and the quality
	// review score; they must sum to 1.
	ConfidenceWeight float64
	QualityWeight    float64

	CheckpointPath  string
	StageDir        string // per-stage output snapshots, empty to skip
	StartFromStage  int    // 1..4
	NoResume        bool   // ignore an existing checkpoint
	CleanCheckpoint bool   // delete the checkpoint after completion
}

// DefaultOptions returns the tuned defaults for legal corpora.
func DefaultOptions() Options {
	return Options{
		SourceLang:             "zh",
		TargetLang:             "en",
		BatchSize:              20,
		MaxConcurrent:          40,
		ExtractionBatchSize:    3,
		QualityCheckBatchSize:  30,
		NormalizationBatchSize: 50,
		SaveInterval:           5,
		MaxTargetsPerSource:    3,
		ConfidenceWeight:       0.4,
		QualityWeight:          0.6,
		CheckpointPath:         "outputs/checkpoint.json",
		StartFromStage:         1,
	}
}

func (o *Options) validate() error {
	if o.StartFromStage < 1 || o.StartFromStage > 4 {
		return fmt.Errorf("start-from-stage must be 1..4, got %d", o.StartFromStage)
	}
	if o.NoResume && o.StartFromStage > 1 {
		return fmt.Errorf("no-resume starts from scratch and cannot combine with start-from-stage %d", o.StartFromStage)
	}
	if o.BatchSize < 1 || o.MaxConcurrent < 1 {
		return fmt.Errorf("batch size and concurrency must be positive")
	}
	if o.ExtractionBatchSize < 1 || o.QualityCheckBatchSize < 1 || o.NormalizationBatchSize < 1 {
		return fmt.Errorf("stage batch sizes must be positive")
	}
	if o.MaxTargetsPerSource < 1 {
		return fmt.Errorf("max targets per source must be positive")
	}
	if o.ConfidenceWeight < 0 || o.QualityWeight < 0 ||
		math.Abs(o.ConfidenceWeight+o.QualityWeight-1) > 1e-9 {
		return fmt.Errorf("confidence and quality weights must be non-negative and sum to 1, got %.2f and %.2f",
			o.ConfidenceWeight, o.QualityWeight)
	}
	return nil
}

// Pipeline runs the four stages over a corpus.
type Pipeline struct {
	client *llm.Client
	opts   Options
}

func NewPipeline(client *llm.Client, opts Options) (*Pipeline, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Pipeline{client: client, opts: opts}, nil
}

// Run executes the pipeline from the configured starting stage. When
// starting past stage 1, the earlier stages' output is loaded from the
// checkpoint.
func (p *Pipeline) Run(ctx context.Context, pairs []SentencePair) ([]StandardTerm, error) {
	if p.opts.MaxEntries > 0 && len(pairs) > p.opts.MaxEntries {
		slog.Info("capping corpus", "entries", p.opts.MaxEntries, "total", len(pairs))
		pairs = pairs[:p.opts.MaxEntries]
	}

	var cp *Checkpoint
	var err error
	if p.opts.NoResume {
		cp = NewCheckpoint(p.opts.CheckpointPath)
	} else {
		cp, err = LoadCheckpoint(p.opts.CheckpointPath)
		if err != nil {
			return nil, err
		}
	}
	cp.snapshotDir = p.opts.StageDir

	var terms []TermPair
	stage := p.opts.StartFromStage

	switch stage {
	case 1:
		terms, err = p.runExtraction(ctx, pairs, cp)
		if err != nil {
			return nil, err
		}
		fallthrough
	case 2:
		if stage == 2 {
			if terms = cp.Extracted; len(terms) == 0 {
				return nil, fmt.Errorf("no extracted terms in checkpoint %s; run stage 1 first", p.opts.CheckpointPath)
			}
		}
		terms, err = p.runQualityCheck(ctx, pairs, terms, cp)
		if err != nil {
			return nil, err
		}
		fallthrough
	case 3:
		if stage == 3 {
			if terms = cp.QualityChecked; len(terms) == 0 {
				return nil, fmt.Errorf("no quality-checked terms in checkpoint %s; run stage 2 first", p.opts.CheckpointPath)
			}
		}
		terms, err = p.runNormalization(ctx, terms, cp)
		if err != nil {
			return nil, err
		}
		fallthrough
	case 4:
		if stage == 4 {
			if terms = cp.Normalized; len(terms) == 0 {
				return nil, fmt.Errorf("no normalized terms in checkpoint %s; run stage 3 first", p.opts.CheckpointPath)
			}
		}
	}

	standardized := Standardize(terms, p.opts)

	if p.opts.CleanCheckpoint && p.opts.CheckpointPath != "" {
		if err := os.Remove(p.opts.CheckpointPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove checkpoint", "path", p.opts.CheckpointPath, "error", err)
		}
	}

	slog.Info("pipeline complete", "standardized_terms", len(standardized))
	return standardized, nil
}

// dedupePairs removes repeated (source, target) pairs, merging entry id
// lists and keeping the highest confidence seen.
func dedupePairs(terms []TermPair) []TermPair {
	seen := make(map[string]int, len(terms))
	out := make([]TermPair, 0, len(terms))
	for _, t := range terms {
		key := t.SourceTerm + "\x00" + t.TargetTerm
		if i, ok := seen[key]; ok {
			out[i].EntryIDs = mergeEntryIDs(out[i].EntryIDs, t.EntryIDs)
			out[i].OccurrenceCount++
			if t.Confidence > out[i].Confidence {
				out[i].Confidence = t.Confidence
			}
			if t.QualityScore > out[i].QualityScore {
				out[i].QualityScore = t.QualityScore
			}
			continue
		}
		if t.OccurrenceCount == 0 {
			t.OccurrenceCount = 1
		}
		seen[key] = len(out)
		out = append(out, t)
	}
	return out
}

// mergeEntryIDs unions two comma-joined id lists, sorted for stability.
func mergeEntryIDs(a, b string) string {
	set := make(map[string]struct{})
	for _, part := range strings.Split(a+","+b, ",") {
		if part = strings.TrimSpace(part); part != "" {
			set[part] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}
