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

// Package runner executes translation experiments: each configured
// ablation runs over the dataset, sentences translate concurrently, and
// the per-segment traces and aggregate metrics are written out so runs
// can be compared side by side.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/legalmt/pkg/config"
	"github.com/kadirpekel/legalmt/pkg/evaluation"
	"github.com/kadirpekel/legalmt/pkg/llm"
	"github.com/kadirpekel/legalmt/pkg/termbase"
	"github.com/kadirpekel/legalmt/pkg/tm"
	"github.com/kadirpekel/legalmt/pkg/workflows"
)

// DatasetEntry is one experiment sentence with its gold reference.
// Metadata carries sample-level fields (law, domain, year) available
// for grouped reporting.
type DatasetEntry struct {
	ID              string            `json:"id,omitempty"`
	SourceText      string            `json:"source_text"`
	Reference       string            `json:"reference,omitempty"`
	ExpectedTargets []string          `json:"expected_targets,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// SegmentResult pairs a translation trace with its scores. A sample
// whose final text came back blank is marked failed: the source text
// stands in as the prediction and Error records why.
type SegmentResult struct {
	ID          string                    `json:"id,omitempty"`
	Translation *workflows.Translation    `json:"translation"`
	Scores      *evaluation.SegmentScores `json:"scores,omitempty"`
	Success     bool                      `json:"success"`
	Error       string                    `json:"error,omitempty"`
	Empty       bool                      `json:"empty_translation,omitempty"`
	DurationMS  int64                     `json:"duration_ms"`
}

// AblationResult is one ablation's full outcome.
type AblationResult struct {
	Name             string                          `json:"name"`
	Ablation         config.Ablation                 `json:"ablation"`
	Segments         []SegmentResult                 `json:"segments"`
	Aggregate        evaluation.Aggregate            `json:"aggregate"`
	GroupedAggregate map[string]evaluation.Aggregate `json:"grouped_avg,omitempty"`
	GroupCounts      map[string]int                  `json:"group_counts,omitempty"`
	Stats            RunStats                        `json:"stats"`
}

// RunStats summarizes pipeline behavior across a run. The modification
// rates report, over the segments carrying both round traces, how often
// a later round changed the earlier round's text.
type RunStats struct {
	Total             int `json:"total"`
	EmptyTranslations int `json:"empty_translations"`
	SyntaxGated       int `json:"syntax_gated"`
	DiscourseGated    int `json:"discourse_gated"`

	R1ToR2ModificationRate float64 `json:"r1_to_r2_modification_rate"`
	R2ToR3ModificationRate float64 `json:"r2_to_r3_modification_rate"`
	R1ToR3ModificationRate float64 `json:"r1_to_r3_modification_rate"`
}

// Options configures an experiment run.
type Options struct {
	SourceLang    string
	TargetLang    string
	OutputDir     string
	MaxConcurrent int
	Ablations     map[string]config.Ablation

	// SaveIntermediate derives terminology and terminology_syntax
	// results from the full run's round traces instead of translating
	// the dataset again under those conditions.
	SaveIntermediate bool

	// GroupBy names the dataset metadata field to bucket aggregate
	// scores by (e.g. "law" or "domain"). Empty disables grouping.
	GroupBy string
}

// Runner wires the shared resources every ablation draws on.
type Runner struct {
	client    *llm.Client
	db        *termbase.DB
	store     *tm.Store
	evaluator *evaluation.Evaluator
	opts      Options
}

type RunnerOption func(*Runner)

func WithTermbase(db *termbase.DB) RunnerOption {
	return func(r *Runner) { r.db = db }
}

func WithTranslationMemory(store *tm.Store) RunnerOption {
	return func(r *Runner) { r.store = store }
}

func WithEvaluator(e *evaluation.Evaluator) RunnerOption {
	return func(r *Runner) { r.evaluator = e }
}

func New(client *llm.Client, opts Options, ropts ...RunnerOption) (*Runner, error) {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 4
	}
	if len(opts.Ablations) == 0 {
		opts.Ablations = config.DefaultAblations()
	}
	r := &Runner{client: client, opts: opts}
	for _, opt := range ropts {
		opt(r)
	}
	return r, nil
}

// Run executes every ablation over the dataset, writing one result file
// per ablation plus a summary. Cancelling the context stops mid-run and
// returns what completed so far along with the context error.
func (r *Runner) Run(ctx context.Context, dataset []DatasetEntry) ([]AblationResult, error) {
	names := make([]string, 0, len(r.opts.Ablations))
	for name := range r.opts.Ablations {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []AblationResult
	for _, name := range names {
		ablation := r.opts.Ablations[name]
		slog.Info("running ablation", "name", name, "sentences", len(dataset),
			"hierarchical", ablation.Hierarchical, "rounds", ablation.MaxRounds)

		result, err := r.runAblation(ctx, name, ablation, dataset)
		if err != nil {
			return results, fmt.Errorf("ablation %s: %w", name, err)
		}
		results = append(results, *result)

		if r.opts.OutputDir != "" {
			if err := writeJSON(filepath.Join(r.opts.OutputDir, name+".json"), result); err != nil {
				return results, err
			}
		}
	}

	if r.opts.SaveIntermediate {
		// Projections stand in for the single-layer runs, so an ablation
		// that already ran under the same name keeps its own result.
		taken := make(map[string]bool, len(results))
		for i := range results {
			taken[results[i].Name] = true
		}
		var projected []AblationResult
		for i := range results {
			if results[i].Name == "full" {
				projected = r.projectIntermediate(ctx, &results[i], dataset, taken)
			}
		}
		for i := range projected {
			results = append(results, projected[i])
			if r.opts.OutputDir != "" {
				if err := writeJSON(filepath.Join(r.opts.OutputDir, projected[i].Name+".json"), &projected[i]); err != nil {
					return results, err
				}
			}
		}
	}

	if r.opts.OutputDir != "" {
		if err := writeJSON(filepath.Join(r.opts.OutputDir, "summary.json"), summarize(results)); err != nil {
			return results, err
		}
	}
	return results, ctx.Err()
}

// projectIntermediate derives single-layer pseudo-ablations from a full
// run's round traces: the terminology round output stands in for a
// one-round run and the syntax round output for a two-round run. The
// projected segments are re-scored but cost no extra translation calls.
func (r *Runner) projectIntermediate(ctx context.Context, full *AblationResult, dataset []DatasetEntry, taken map[string]bool) []AblationResult {
	projections := []struct {
		name   string
		rounds int
		trace  func(t *workflows.Translation) (string, float64, bool)
	}{
		{"terminology", 1, func(t *workflows.Translation) (string, float64, bool) {
			if t.Terminology == nil {
				return "", 0, false
			}
			return t.Terminology.TranslatedText, t.Terminology.Confidence, true
		}},
		{"terminology_syntax", 2, func(t *workflows.Translation) (string, float64, bool) {
			if t.Syntax == nil {
				return "", 0, false
			}
			return t.Syntax.TranslatedText, t.Syntax.Confidence, true
		}},
	}

	var out []AblationResult
	for _, p := range projections {
		if taken[p.name] {
			slog.Info("skipping intermediate projection, ablation already ran", "name", p.name)
			continue
		}
		segments := make([]SegmentResult, 0, len(full.Segments))
		var scored []evaluation.SegmentScores
		var groupKeys []string
		complete := true

		for i, seg := range full.Segments {
			text, confidence, ok := p.trace(seg.Translation)
			if !ok {
				complete = false
				break
			}
			translation := &workflows.Translation{
				SourceText:     seg.Translation.SourceText,
				TranslatedText: text,
				SourceLang:     seg.Translation.SourceLang,
				TargetLang:     seg.Translation.TargetLang,
				Confidence:     confidence,
				Rounds:         p.rounds,
			}
			projected := SegmentResult{
				ID:          seg.ID,
				Translation: translation,
			}
			finalizeSegment(&projected, translation.SourceText)
			if r.evaluator != nil && i < len(dataset) && dataset[i].Reference != "" {
				scores := r.evaluator.EvaluateSegment(ctx, evaluation.Segment{
					SourceText:      translation.SourceText,
					Hypothesis:      translation.TranslatedText,
					Reference:       dataset[i].Reference,
					ExpectedTargets: dataset[i].ExpectedTargets,
					Metadata:        dataset[i].Metadata,
				})
				projected.Scores = &scores
				scored = append(scored, scores)
				groupKeys = append(groupKeys, dataset[i].Metadata[r.opts.GroupBy])
			}
			segments = append(segments, projected)
		}

		if !complete {
			slog.Warn("skipping intermediate projection, round trace missing", "name", p.name)
			continue
		}
		result := AblationResult{
			Name:      p.name,
			Ablation:  full.Ablation,
			Segments:  segments,
			Aggregate: evaluation.AggregateScores(scored),
			Stats:     collectStats(segments),
		}
		r.groupAggregate(&result, scored, groupKeys)
		out = append(out, result)
	}
	return out
}

// groupAggregate fills the grouped score report when grouping is on.
func (r *Runner) groupAggregate(result *AblationResult, scored []evaluation.SegmentScores, groupKeys []string) {
	if r.opts.GroupBy == "" || len(scored) == 0 {
		return
	}
	result.GroupedAggregate = evaluation.AggregateScoresBy(scored, groupKeys)
	result.GroupCounts = make(map[string]int, len(result.GroupedAggregate))
	for key, agg := range result.GroupedAggregate {
		result.GroupCounts[key] = agg.Segments
	}
}

// finalizeSegment applies the empty-translation policy: a blank final
// text substitutes the source as the prediction, and the sample is
// marked failed with the error recorded.
func finalizeSegment(seg *SegmentResult, sourceText string) {
	seg.Empty = isEmptyTranslation(seg.Translation, sourceText)
	if strings.TrimSpace(seg.Translation.TranslatedText) == "" {
		seg.Translation.TranslatedText = sourceText
	}
	if seg.Empty {
		seg.Error = "Empty translation result"
	}
	seg.Success = !seg.Empty
}

func (r *Runner) runAblation(ctx context.Context, name string, ablation config.Ablation, dataset []DatasetEntry) (*AblationResult, error) {
	translator := workflows.NewTranslator(r.client, ablation,
		workflows.WithTermbase(r.db),
		workflows.WithTranslationMemory(r.store),
	)

	segments := make([]SegmentResult, len(dataset))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxConcurrent)
	for i, entry := range dataset {
		i, entry := i, entry
		g.Go(func() error {
			start := time.Now()
			translation := translator.Translate(gctx, entry.SourceText, r.opts.SourceLang, r.opts.TargetLang)

			seg := SegmentResult{
				ID:          entry.ID,
				Translation: translation,
				DurationMS:  time.Since(start).Milliseconds(),
			}
			finalizeSegment(&seg, entry.SourceText)
			if r.evaluator != nil && entry.Reference != "" {
				scores := r.evaluator.EvaluateSegment(gctx, evaluation.Segment{
					SourceText:      entry.SourceText,
					Hypothesis:      translation.TranslatedText,
					Reference:       entry.Reference,
					ExpectedTargets: entry.ExpectedTargets,
					Metadata:        entry.Metadata,
				})
				seg.Scores = &scores
			}

			mu.Lock()
			segments[i] = seg
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &AblationResult{
		Name:     name,
		Ablation: ablation,
		Segments: segments,
		Stats:    collectStats(segments),
	}

	var scored []evaluation.SegmentScores
	var groupKeys []string
	for i, seg := range segments {
		if seg.Scores != nil {
			scored = append(scored, *seg.Scores)
			groupKeys = append(groupKeys, dataset[i].Metadata[r.opts.GroupBy])
		}
	}
	result.Aggregate = evaluation.AggregateScores(scored)
	r.groupAggregate(result, scored, groupKeys)
	return result, nil
}

// isEmptyTranslation flags outputs that carry no translation: blank
// text, or a "translation" identical to the source, which is the
// baseline agent's failure passthrough.
func isEmptyTranslation(t *workflows.Translation, sourceText string) bool {
	text := strings.TrimSpace(t.TranslatedText)
	if text == "" {
		return true
	}
	return text == strings.TrimSpace(sourceText) && t.Confidence == 0
}

func collectStats(segments []SegmentResult) RunStats {
	stats := RunStats{Total: len(segments)}
	var r12, r12n, r23, r23n, r13, r13n int
	for _, seg := range segments {
		if seg.Empty {
			stats.EmptyTranslations++
		}
		tr := seg.Translation
		if tr.Syntax != nil && tr.Syntax.Gated {
			stats.SyntaxGated++
		}
		if tr.Discourse != nil && tr.Discourse.Gated {
			stats.DiscourseGated++
		}
		if tr.Terminology != nil && tr.Syntax != nil {
			r12n++
			if tr.Syntax.TranslatedText != tr.Terminology.TranslatedText {
				r12++
			}
		}
		if tr.Syntax != nil && tr.Discourse != nil {
			r23n++
			if tr.Discourse.TranslatedText != tr.Syntax.TranslatedText {
				r23++
			}
		}
		if tr.Terminology != nil && tr.Discourse != nil {
			r13n++
			if tr.Discourse.TranslatedText != tr.Terminology.TranslatedText {
				r13++
			}
		}
	}
	stats.R1ToR2ModificationRate = ratio(r12, r12n)
	stats.R2ToR3ModificationRate = ratio(r23, r23n)
	stats.R1ToR3ModificationRate = ratio(r13, r13n)
	return stats
}

func ratio(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total)
}

// Summary is the cross-ablation comparison table.
type Summary struct {
	RunID       string                          `json:"run_id"`
	GeneratedAt string                          `json:"generated_at"`
	Ablations   map[string]evaluation.Aggregate `json:"ablations"`
	Stats       map[string]RunStats             `json:"stats"`
}

func summarize(results []AblationResult) Summary {
	s := Summary{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Ablations:   make(map[string]evaluation.Aggregate, len(results)),
		Stats:       make(map[string]RunStats, len(results)),
	}
	for _, r := range results {
		s.Ablations[r.Name] = r.Aggregate
		s.Stats[r.Name] = r.Stats
	}
	return s
}

// LoadDataset reads a dataset file: either a JSON array of entries or
// JSON lines. Entries without an id get a positional one.
func LoadDataset(path string) ([]DatasetEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var entries []DatasetEntry
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to decode dataset %s: %w", path, err)
		}
	} else {
		for lineNo, line := range strings.Split(trimmed, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var entry DatasetEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				return nil, fmt.Errorf("failed to decode dataset %s line %d: %w", path, lineNo+1, err)
			}
			entries = append(entries, entry)
		}
	}

	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = fmt.Sprintf("seg-%04d", i+1)
		}
		if strings.TrimSpace(entries[i].SourceText) == "" {
			return nil, fmt.Errorf("dataset entry %s has no source_text", entries[i].ID)
		}
	}
	return entries, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
