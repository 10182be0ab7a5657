package evaluation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/legalmt/pkg/llm"
	"github.com/kadirpekel/legalmt/pkg/testutils"
)

func TestEvaluateSegmentLexicalOnly(t *testing.T) {
	evaluator := NewEvaluator("zh", "en")

	scores := evaluator.EvaluateSegment(context.Background(), Segment{
		SourceText:      "发生不可抗力时,合同可以解除。",
		Hypothesis:      "In the event of force majeure, the contract may be rescinded.",
		Reference:       "In the event of force majeure, the contract may be rescinded.",
		ExpectedTargets: []string{"force majeure"},
	})

	assert.InDelta(t, 1.0, scores.BLEU, 1e-9)
	assert.InDelta(t, 1.0, scores.ChrF, 1e-9)
	assert.InDelta(t, 1.0, scores.CometProxy, 1e-9)
	assert.Equal(t, 1.0, scores.TermbaseAccuracy)
	assert.Equal(t, 1.0, scores.DeonticPreservation)
	// Optional backends are off, so their metrics are absent.
	assert.Nil(t, scores.SemanticSimilarity)
	assert.Nil(t, scores.JudgeScore)
}

func TestEvaluateSegmentWithJudge(t *testing.T) {
	stub := testutils.NewStubLLM().On("expert evaluator", `{"score": 85, "reasoning": "minor lexical drift"}`)
	defer stub.Close()
	client, err := llm.New(stub.Config())
	require.NoError(t, err)

	evaluator := NewEvaluator("zh", "en", WithJudge(client))
	scores := evaluator.EvaluateSegment(context.Background(), Segment{
		Hypothesis: "The contract may be rescinded.",
		Reference:  "The contract may be terminated.",
	})

	require.NotNil(t, scores.JudgeScore)
	assert.InDelta(t, 0.85, *scores.JudgeScore, 1e-9)
}

func TestEvaluateSegmentJudgeDegradedOmitsScore(t *testing.T) {
	stub := testutils.NewStubLLM().Default("no structured verdict")
	defer stub.Close()
	client, err := llm.New(stub.Config())
	require.NoError(t, err)

	evaluator := NewEvaluator("zh", "en", WithJudge(client))
	scores := evaluator.EvaluateSegment(context.Background(), Segment{
		Hypothesis: "a", Reference: "a",
	})
	assert.Nil(t, scores.JudgeScore)
}

func TestAggregateScores(t *testing.T) {
	sim := 0.8
	judge := 0.6
	scores := []SegmentScores{
		{BLEU: 0.4, ChrF: 0.5, TermbaseAccuracy: 1.0, DeonticPreservation: 1.0, ConditionalPreserved: 1.0,
			SemanticSimilarity: &sim, JudgeScore: &judge},
		{BLEU: 0.6, ChrF: 0.7, TermbaseAccuracy: 0.5, DeonticPreservation: 0.5, ConditionalPreserved: 1.0},
	}

	agg := AggregateScores(scores)
	assert.Equal(t, 2, agg.Segments)
	assert.InDelta(t, 0.5, agg.BLEU, 1e-9)
	assert.InDelta(t, 0.6, agg.ChrF, 1e-9)
	assert.InDelta(t, 0.75, agg.TermbaseAccuracy, 1e-9)
	// Optional metrics average only over the segments that carried them.
	require.NotNil(t, agg.SemanticSimilarity)
	assert.InDelta(t, 0.8, *agg.SemanticSimilarity, 1e-9)
	require.NotNil(t, agg.JudgeScore)
	assert.InDelta(t, 0.6, *agg.JudgeScore, 1e-9)
}

func TestAggregateScoresBy(t *testing.T) {
	scores := []SegmentScores{
		{BLEU: 0.4},
		{BLEU: 0.8},
		{BLEU: 0.6},
	}
	keys := []string{"民法典", "民法典", ""}

	grouped := AggregateScoresBy(scores, keys)
	require.Len(t, grouped, 2)
	assert.Equal(t, 2, grouped["民法典"].Segments)
	assert.InDelta(t, 0.6, grouped["民法典"].BLEU, 1e-9)
	// Segments without a key land in the ungrouped bucket.
	assert.Equal(t, 1, grouped["ungrouped"].Segments)
	assert.InDelta(t, 0.6, grouped["ungrouped"].BLEU, 1e-9)
}

func TestAggregateScoresEmpty(t *testing.T) {
	agg := AggregateScores(nil)
	assert.Equal(t, 0, agg.Segments)
	assert.Nil(t, agg.SemanticSimilarity)
	assert.Nil(t, agg.JudgeScore)
}
