package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/legalmt/pkg/config"
	"github.com/kadirpekel/legalmt/pkg/evaluation"
	"github.com/kadirpekel/legalmt/pkg/llm"
	"github.com/kadirpekel/legalmt/pkg/testutils"
	"github.com/kadirpekel/legalmt/pkg/workflows"
)

func TestLoadDatasetJSONArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	content := `[
		{"source_text": "合同可以解除。", "reference": "The contract may be rescinded."},
		{"id": "civil-12", "source_text": "当事人应当履行义务。"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	entries, err := LoadDataset(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "seg-0001", entries[0].ID)
	assert.Equal(t, "civil-12", entries[1].ID)
	assert.Equal(t, "The contract may be rescinded.", entries[0].Reference)
}

func TestLoadDatasetJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.jsonl")
	content := `{"source_text": "第一句"}` + "\n\n" + `{"source_text": "第二句"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	entries, err := LoadDataset(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "seg-0002", entries[1].ID)
}

func TestLoadDatasetRejectsMissingSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"reference": "no source"}]`), 0o644))

	_, err := LoadDataset(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source_text")
}

func TestRunBaselineAblation(t *testing.T) {
	stub := testutils.NewStubLLM().
		On("professional translator. Translate the user text", "The contract may be rescinded.")
	defer stub.Close()
	client, err := llm.New(stub.Config())
	require.NoError(t, err)

	outputDir := t.TempDir()
	runner, err := New(client, Options{
		SourceLang: "zh",
		TargetLang: "en",
		OutputDir:  outputDir,
		Ablations:  map[string]config.Ablation{"baseline": {Hierarchical: false, MaxRounds: 1}},
	}, WithEvaluator(evaluation.NewEvaluator("zh", "en")))
	require.NoError(t, err)

	dataset := []DatasetEntry{
		{ID: "seg-0001", SourceText: "合同可以解除。", Reference: "The contract may be rescinded.", ExpectedTargets: []string{"rescinded"}},
		{ID: "seg-0002", SourceText: "当事人应当履行义务。"},
	}

	results, err := runner.Run(context.Background(), dataset)
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results[0]
	assert.Equal(t, "baseline", result.Name)
	assert.Equal(t, 2, result.Stats.Total)
	require.Len(t, result.Segments, 2)

	// Only the referenced segment is scored, and only it feeds the aggregate.
	require.NotNil(t, result.Segments[0].Scores)
	assert.Nil(t, result.Segments[1].Scores)
	assert.Equal(t, 1, result.Aggregate.Segments)
	assert.InDelta(t, 1.0, result.Aggregate.BLEU, 1e-9)
	assert.Equal(t, 1.0, result.Aggregate.TermbaseAccuracy)

	// Per-ablation and summary files land in the output directory.
	assert.FileExists(t, filepath.Join(outputDir, "baseline.json"))
	assert.FileExists(t, filepath.Join(outputDir, "summary.json"))
}

func TestRunCountsEmptyTranslations(t *testing.T) {
	stub := testutils.NewStubLLM().Default("")
	defer stub.Close()
	client, err := llm.New(stub.Config())
	require.NoError(t, err)

	runner, err := New(client, Options{
		SourceLang: "zh",
		TargetLang: "en",
		Ablations:  map[string]config.Ablation{"baseline": {Hierarchical: false, MaxRounds: 1}},
	})
	require.NoError(t, err)

	results, err := runner.Run(context.Background(), []DatasetEntry{{ID: "seg-0001", SourceText: "合同可以解除。"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Stats.EmptyTranslations)

	// The failed sample records its error and the source stands in as
	// the prediction.
	seg := results[0].Segments[0]
	assert.True(t, seg.Empty)
	assert.False(t, seg.Success)
	assert.Equal(t, "Empty translation result", seg.Error)
	assert.Equal(t, "合同可以解除。", seg.Translation.TranslatedText)
}

func TestRunProjectsIntermediateResults(t *testing.T) {
	stub := testutils.NewStubLLM().Default("The parties shall perform their obligations.")
	defer stub.Close()
	client, err := llm.New(stub.Config())
	require.NoError(t, err)

	outputDir := t.TempDir()
	runner, err := New(client, Options{
		SourceLang:       "zh",
		TargetLang:       "en",
		OutputDir:        outputDir,
		SaveIntermediate: true,
		Ablations: map[string]config.Ablation{
			"full": {Hierarchical: true, MaxRounds: 3, UseTermbase: true, UseTM: true},
		},
	})
	require.NoError(t, err)

	results, err := runner.Run(context.Background(), []DatasetEntry{{ID: "seg-0001", SourceText: "当事人应当履行义务。"}})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "full", results[0].Name)
	assert.Equal(t, "terminology", results[1].Name)
	assert.Equal(t, "terminology_syntax", results[2].Name)

	// Projected segments carry the round outputs of the full run.
	full := results[0].Segments[0].Translation
	assert.Equal(t, full.Terminology.TranslatedText, results[1].Segments[0].Translation.TranslatedText)
	assert.Equal(t, full.Syntax.TranslatedText, results[2].Segments[0].Translation.TranslatedText)
	assert.Equal(t, 1, results[1].Segments[0].Translation.Rounds)
	assert.Equal(t, 2, results[2].Segments[0].Translation.Rounds)

	assert.FileExists(t, filepath.Join(outputDir, "terminology.json"))
	assert.FileExists(t, filepath.Join(outputDir, "terminology_syntax.json"))
}

func TestRunProjectionSkipsExecutedAblations(t *testing.T) {
	stub := testutils.NewStubLLM().Default("The parties shall perform their obligations.")
	defer stub.Close()
	client, err := llm.New(stub.Config())
	require.NoError(t, err)

	runner, err := New(client, Options{
		SourceLang:       "zh",
		TargetLang:       "en",
		SaveIntermediate: true,
		Ablations: map[string]config.Ablation{
			"full":        {Hierarchical: true, MaxRounds: 3},
			"terminology": {Hierarchical: true, MaxRounds: 1},
		},
	})
	require.NoError(t, err)

	results, err := runner.Run(context.Background(), []DatasetEntry{{ID: "seg-0001", SourceText: "当事人应当履行义务。"}})
	require.NoError(t, err)

	// The executed terminology ablation keeps its own result; only the
	// two-round projection is derived.
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"full", "terminology", "terminology_syntax"}, names)
}

func TestRunGroupsAggregateByMetadata(t *testing.T) {
	stub := testutils.NewStubLLM().
		On("professional translator. Translate the user text", "The contract may be rescinded.")
	defer stub.Close()
	client, err := llm.New(stub.Config())
	require.NoError(t, err)

	runner, err := New(client, Options{
		SourceLang: "zh",
		TargetLang: "en",
		GroupBy:    "law",
		Ablations:  map[string]config.Ablation{"baseline": {Hierarchical: false, MaxRounds: 1}},
	}, WithEvaluator(evaluation.NewEvaluator("zh", "en")))
	require.NoError(t, err)

	dataset := []DatasetEntry{
		{ID: "seg-0001", SourceText: "合同可以解除。", Reference: "The contract may be rescinded.",
			Metadata: map[string]string{"law": "民法典"}},
		{ID: "seg-0002", SourceText: "合同可以解除。", Reference: "An entirely different sentence.",
			Metadata: map[string]string{"law": "刑法"}},
		{ID: "seg-0003", SourceText: "合同可以解除。", Reference: "The contract may be rescinded."},
	}

	results, err := runner.Run(context.Background(), dataset)
	require.NoError(t, err)
	require.Len(t, results, 1)

	grouped := results[0].GroupedAggregate
	require.Len(t, grouped, 3)
	assert.Equal(t, 1, results[0].GroupCounts["民法典"])
	assert.Equal(t, 1, results[0].GroupCounts["刑法"])
	// Segments without the field land in the ungrouped bucket.
	assert.Equal(t, 1, results[0].GroupCounts["ungrouped"])
	assert.Greater(t, grouped["民法典"].BLEU, grouped["刑法"].BLEU)
}

func TestCollectStatsModificationRates(t *testing.T) {
	segments := []SegmentResult{
		{Translation: &workflows.Translation{
			Terminology: &workflows.TerminologyResult{TranslatedText: "a"},
			Syntax:      &workflows.SyntaxResult{TranslatedText: "b"},
			Discourse:   &workflows.DiscourseResult{TranslatedText: "b"},
		}},
		{Translation: &workflows.Translation{
			Terminology: &workflows.TerminologyResult{TranslatedText: "a"},
			Syntax:      &workflows.SyntaxResult{TranslatedText: "a"},
			Discourse:   &workflows.DiscourseResult{TranslatedText: "c"},
		}},
	}

	stats := collectStats(segments)
	assert.Equal(t, 2, stats.Total)
	assert.InDelta(t, 0.5, stats.R1ToR2ModificationRate, 1e-9)
	assert.InDelta(t, 0.5, stats.R2ToR3ModificationRate, 1e-9)
	assert.InDelta(t, 1.0, stats.R1ToR3ModificationRate, 1e-9)
}

func TestCollectStatsNoRoundsYieldsZeroRates(t *testing.T) {
	stats := collectStats([]SegmentResult{{Translation: &workflows.Translation{}}})
	assert.Equal(t, 0.0, stats.R1ToR2ModificationRate)
	assert.Equal(t, 0.0, stats.R2ToR3ModificationRate)
	assert.Equal(t, 0.0, stats.R1ToR3ModificationRate)
}

func TestRunDefaultsToPresetAblations(t *testing.T) {
	stub := testutils.NewStubLLM()
	defer stub.Close()
	client, err := llm.New(stub.Config())
	require.NoError(t, err)

	runner, err := New(client, Options{SourceLang: "zh", TargetLang: "en"})
	require.NoError(t, err)

	results, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)
	// All four presets run, alphabetically.
	require.Len(t, results, 4)
	assert.Equal(t, "baseline", results[0].Name)
	assert.Equal(t, "full", results[1].Name)
	assert.Equal(t, "terminology", results[2].Name)
	assert.Equal(t, "terminology_syntax", results[3].Name)
}
