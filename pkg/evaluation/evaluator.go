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

package evaluation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/legalmt/pkg/embedders"
	"github.com/kadirpekel/legalmt/pkg/llm"
)

// SegmentScores holds every metric computed for one translated segment.
// Semantic and judge scores are only present when their backends are
// configured.
type SegmentScores struct {
	BLEU               float64  `json:"bleu"`
	ChrF               float64  `json:"chrf"`
	CometProxy         float64  `json:"comet_score"`
	SemanticSimilarity *float64 `json:"semantic_similarity,omitempty"`
	JudgeScore         *float64 `json:"judge_score,omitempty"`

	TermbaseAccuracy     float64 `json:"termbase_accuracy"`
	DeonticPreservation  float64 `json:"deontic_preservation"`
	ConditionalPreserved float64 `json:"conditional_logic_preservation"`
}

// Segment is one evaluation input. Metadata carries sample-level fields
// (law, domain, year) used for grouped reporting.
type Segment struct {
	SourceText      string            `json:"source_text"`
	Hypothesis      string            `json:"hypothesis"`
	Reference       string            `json:"reference"`
	ExpectedTargets []string          `json:"expected_targets,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Evaluator computes segment and corpus scores. Both the embedder and
// the LLM judge are optional; missing backends just omit their metrics.
type Evaluator struct {
	client   *llm.Client
	embedder embedders.Embedder

	sourceLang string
	targetLang string
}

type EvaluatorOption func(*Evaluator)

// WithJudge enables GEMBA-style LLM direct assessment.
func WithJudge(client *llm.Client) EvaluatorOption {
	return func(e *Evaluator) { e.client = client }
}

// WithSemanticScoring enables embedding-based similarity.
func WithSemanticScoring(embedder embedders.Embedder) EvaluatorOption {
	return func(e *Evaluator) { e.embedder = embedder }
}

func NewEvaluator(sourceLang, targetLang string, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{sourceLang: sourceLang, targetLang: targetLang}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateSegment scores one segment against its reference.
func (e *Evaluator) EvaluateSegment(ctx context.Context, seg Segment) SegmentScores {
	scores := SegmentScores{
		BLEU:                 BLEU(seg.Hypothesis, seg.Reference),
		ChrF:                 ChrF(seg.Hypothesis, seg.Reference),
		CometProxy:           LexicalOverlap(seg.Hypothesis, seg.Reference),
		TermbaseAccuracy:     TermbaseAccuracy(seg.Hypothesis, seg.ExpectedTargets),
		DeonticPreservation:  DeonticPreservation(seg.Hypothesis, seg.Reference),
		ConditionalPreserved: ConditionalLogicPreservation(seg.Hypothesis, seg.Reference),
	}

	if e.embedder != nil {
		if sim, err := e.semanticSimilarity(ctx, seg.Hypothesis, seg.Reference); err == nil {
			scores.SemanticSimilarity = &sim
		} else {
			slog.Warn("semantic scoring failed", "error", err)
		}
	}

	if e.client != nil {
		if judge, ok := e.judgeScore(ctx, seg); ok {
			scores.JudgeScore = &judge
		}
	}
	return scores
}

// EvaluateBatch scores segments sequentially. Metric computation is
// cheap; the expensive judge calls are already bounded by the llm
// client's concurrency gate.
func (e *Evaluator) EvaluateBatch(ctx context.Context, segments []Segment) []SegmentScores {
	scores := make([]SegmentScores, len(segments))
	for i, seg := range segments {
		scores[i] = e.EvaluateSegment(ctx, seg)
	}
	return scores
}

func (e *Evaluator) semanticSimilarity(ctx context.Context, hypothesis, reference string) (float64, error) {
	vectors, err := e.embedder.EmbedBatch(ctx, []string{hypothesis, reference})
	if err != nil {
		return 0, err
	}
	if len(vectors) != 2 {
		return 0, fmt.Errorf("expected 2 vectors, got %d", len(vectors))
	}
	return CosineSimilarity(vectors[0], vectors[1]), nil
}

// judgeScore runs reference-based direct assessment on the 0-100 scale,
// returned normalized to [0,1].
func (e *Evaluator) judgeScore(ctx context.Context, seg Segment) (float64, bool) {
	messages := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(`You are an expert evaluator of %s to %s legal translation. Compare the candidate translation with the reference translation and score the candidate from 0 to 100: 0 means no meaning preserved, 100 means equivalent to the reference in meaning and legal precision.

Respond with JSON: {"score": <0-100>, "reasoning": "..."}`, e.sourceLang, e.targetLang)},
		{Role: "user", Content: fmt.Sprintf("Source: %s\nCandidate: %s\nReference: %s", seg.SourceText, seg.Hypothesis, seg.Reference)},
	}

	decoded := e.client.ChatJSON(ctx, messages, llm.WithTemperature(0.0))
	if decoded == nil {
		return 0, false
	}
	if _, bad := decoded["error"]; bad {
		return 0, false
	}
	if _, bad := decoded["raw"]; bad {
		return 0, false
	}
	score, ok := decoded["score"].(float64)
	if !ok {
		return 0, false
	}
	return score / 100.0, true
}

// Aggregate averages scores, treating optional metrics as present only
// when at least one segment carried them.
type Aggregate struct {
	Segments             int      `json:"segments"`
	BLEU                 float64  `json:"bleu"`
	ChrF                 float64  `json:"chrf"`
	CometProxy           float64  `json:"comet_score"`
	SemanticSimilarity   *float64 `json:"semantic_similarity,omitempty"`
	JudgeScore           *float64 `json:"judge_score,omitempty"`
	TermbaseAccuracy     float64  `json:"termbase_accuracy"`
	DeonticPreservation  float64  `json:"deontic_preservation"`
	ConditionalPreserved float64  `json:"conditional_logic_preservation"`
}

// Aggregate computes corpus means over segment scores.
func AggregateScores(scores []SegmentScores) Aggregate {
	agg := Aggregate{Segments: len(scores)}
	if len(scores) == 0 {
		return agg
	}

	var semSum, judgeSum float64
	var semCount, judgeCount int
	for _, s := range scores {
		agg.BLEU += s.BLEU
		agg.ChrF += s.ChrF
		agg.CometProxy += s.CometProxy
		agg.TermbaseAccuracy += s.TermbaseAccuracy
		agg.DeonticPreservation += s.DeonticPreservation
		agg.ConditionalPreserved += s.ConditionalPreserved
		if s.SemanticSimilarity != nil {
			semSum += *s.SemanticSimilarity
			semCount++
		}
		if s.JudgeScore != nil {
			judgeSum += *s.JudgeScore
			judgeCount++
		}
	}

	n := float64(len(scores))
	agg.BLEU /= n
	agg.ChrF /= n
	agg.CometProxy /= n
	agg.TermbaseAccuracy /= n
	agg.DeonticPreservation /= n
	agg.ConditionalPreserved /= n
	if semCount > 0 {
		mean := semSum / float64(semCount)
		agg.SemanticSimilarity = &mean
	}
	if judgeCount > 0 {
		mean := judgeSum / float64(judgeCount)
		agg.JudgeScore = &mean
	}
	return agg
}

// AggregateScoresBy buckets segment scores by the parallel group keys
// and aggregates each bucket. Segments with an empty key land in the
// "ungrouped" bucket.
func AggregateScoresBy(scores []SegmentScores, keys []string) map[string]Aggregate {
	groups := make(map[string][]SegmentScores)
	for i, s := range scores {
		key := ""
		if i < len(keys) {
			key = keys[i]
		}
		if key == "" {
			key = "ungrouped"
		}
		groups[key] = append(groups[key], s)
	}

	out := make(map[string]Aggregate, len(groups))
	for key, group := range groups {
		out[key] = AggregateScores(group)
	}
	return out
}
