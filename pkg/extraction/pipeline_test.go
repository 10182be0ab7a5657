package extraction

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/legalmt/pkg/llm"
	"github.com/kadirpekel/legalmt/pkg/testutils"
)

func pipelineStub() *testutils.StubLLM {
	return testutils.NewStubLLM().
		On("legal terminology extractor", `{"terms": [
			{"source_term": "不可抗力", "target_term": "force majeure", "category": "statutory", "confidence": 0.9, "entry_id": "pair-1"},
			{"source_term": "解除合同", "target_term": "rescind the contract", "category": "procedural", "confidence": 0.8, "entry_id": "pair-1"}
		]}`).
		On("bilingual legal terminologist", `{"results": [
			{"index": 1, "is_valid": true, "quality_score": 0.85, "issues": ""},
			{"index": 2, "is_valid": true, "quality_score": 0.7, "issues": "verb phrase, close to a term"}
		]}`).
		On("normalizing zh legal terms", `{"results": [
			{"term": "不可抗力", "normalized": "不可抗力"},
			{"term": "解除合同", "normalized": "解除合同"}
		]}`).
		On("normalizing en legal terms", `{"results": [
			{"term": "force majeure", "normalized": "force majeure"},
			{"term": "rescind the contract", "normalized": "rescission of contract"}
		]}`)
}

func testCorpus() []SentencePair {
	return []SentencePair{{
		EntryID:    "pair-1",
		SourceText: "发生不可抗力时,当事人可以解除合同。",
		TargetText: "In the event of force majeure, a party may rescind the contract.",
	}}
}

func testPipelineOptions(checkpointPath string) Options {
	opts := DefaultOptions()
	opts.MaxConcurrent = 4
	opts.CheckpointPath = checkpointPath
	return opts
}

func newTestPipeline(t *testing.T, stub *testutils.StubLLM, opts Options) *Pipeline {
	t.Helper()
	client, err := llm.New(stub.Config())
	require.NoError(t, err)
	pipeline, err := NewPipeline(client, opts)
	require.NoError(t, err)
	return pipeline
}

func TestPipelineFullRun(t *testing.T) {
	stub := pipelineStub()
	defer stub.Close()

	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")
	pipeline := newTestPipeline(t, stub, testPipelineOptions(checkpointPath))

	terms, err := pipeline.Run(context.Background(), testCorpus())
	require.NoError(t, err)
	require.Len(t, terms, 2)

	// Sorted ascending by source term.
	assert.Equal(t, "不可抗力", terms[0].SourceTerm)
	assert.Equal(t, "force majeure", terms[0].TargetTerm)
	assert.InDelta(t, 0.4*0.9+0.6*0.85, terms[0].CombinedScore, 1e-9)
	assert.Equal(t, "pair-1", terms[0].EntryIDs)

	assert.Equal(t, "解除合同", terms[1].SourceTerm)
	assert.Equal(t, "rescission of contract", terms[1].TargetTerm)
	assert.Equal(t, "rescind the contract", terms[1].OriginalTargetTerm)
}

func TestPipelineRestartFromStageThreeIsDeterministic(t *testing.T) {
	stub := pipelineStub()
	defer stub.Close()

	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")

	full := newTestPipeline(t, stub, testPipelineOptions(checkpointPath))
	first, err := full.Run(context.Background(), testCorpus())
	require.NoError(t, err)

	// Restart from normalization over the checkpointed stage-2 output.
	opts := testPipelineOptions(checkpointPath)
	opts.StartFromStage = 3
	restarted := newTestPipeline(t, stub, opts)
	second, err := restarted.Run(context.Background(), testCorpus())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPipelineRestartWithoutCheckpointFails(t *testing.T) {
	stub := pipelineStub()
	defer stub.Close()

	opts := testPipelineOptions(filepath.Join(t.TempDir(), "absent.json"))
	opts.StartFromStage = 3
	pipeline := newTestPipeline(t, stub, opts)

	_, err := pipeline.Run(context.Background(), testCorpus())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run stage 2 first")
}

func TestPipelineDegradedQualityCheckScoresNeutral(t *testing.T) {
	stub := testutils.NewStubLLM().
		On("legal terminology extractor", `{"terms": [
			{"source_term": "不可抗力", "target_term": "force majeure", "confidence": 0.9, "entry_id": "pair-1"}
		]}`).
		On("normalizing zh legal terms", `{"results": [
			{"term": "不可抗力", "normalized": "不可抗力"}
		]}`).
		On("normalizing en legal terms", `{"results": [
			{"term": "force majeure", "normalized": "force majeure"}
		]}`).
		Default("no structured answer")
	defer stub.Close()

	pipeline := newTestPipeline(t, stub, testPipelineOptions(filepath.Join(t.TempDir(), "checkpoint.json")))
	terms, err := pipeline.Run(context.Background(), testCorpus())
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, 0.5, terms[0].QualityScore)
}

func TestPipelineDropsInvalidPairs(t *testing.T) {
	stub := testutils.NewStubLLM().
		On("legal terminology extractor", `{"terms": [
			{"source_term": "不可抗力", "target_term": "force majeure", "confidence": 0.9, "entry_id": "pair-1"},
			{"source_term": "发生", "target_term": "in the event of", "confidence": 0.6, "entry_id": "pair-1"}
		]}`).
		On("bilingual legal terminologist", `{"results": [
			{"index": 1, "is_valid": true, "quality_score": 0.9, "issues": ""},
			{"index": 2, "is_valid": false, "quality_score": 0.1, "issues": "not a term"}
		]}`).
		On("normalizing zh legal terms", `{"results": [{"term": "不可抗力", "normalized": "不可抗力"}]}`).
		On("normalizing en legal terms", `{"results": [{"term": "force majeure", "normalized": "force majeure"}]}`)
	defer stub.Close()

	pipeline := newTestPipeline(t, stub, testPipelineOptions(filepath.Join(t.TempDir(), "checkpoint.json")))
	terms, err := pipeline.Run(context.Background(), testCorpus())
	require.NoError(t, err)

	// The rejected pair never reaches standardization.
	require.Len(t, terms, 1)
	assert.Equal(t, "不可抗力", terms[0].SourceTerm)
}

func TestPipelineCarriesCorpusMetadata(t *testing.T) {
	stub := pipelineStub()
	defer stub.Close()

	corpus := testCorpus()
	corpus[0].Law = "民法典"
	corpus[0].Domain = "civil"
	corpus[0].Year = "2021"

	pipeline := newTestPipeline(t, stub, testPipelineOptions(filepath.Join(t.TempDir(), "checkpoint.json")))
	terms, err := pipeline.Run(context.Background(), corpus)
	require.NoError(t, err)
	require.Len(t, terms, 2)

	for _, term := range terms {
		assert.Equal(t, "民法典", term.Law)
		assert.Equal(t, "civil", term.Domain)
		assert.Equal(t, "2021", term.Year)
	}
}

func TestPipelineMaxEntriesLimitsCorpus(t *testing.T) {
	stub := pipelineStub()
	defer stub.Close()

	corpus := append(testCorpus(), SentencePair{
		EntryID:    "pair-2",
		SourceText: "仲裁庭应当独立审理案件。",
		TargetText: "The arbitral tribunal shall hear cases independently.",
	})

	opts := testPipelineOptions(filepath.Join(t.TempDir(), "checkpoint.json"))
	opts.MaxEntries = 1
	pipeline := newTestPipeline(t, stub, opts)
	_, err := pipeline.Run(context.Background(), corpus)
	require.NoError(t, err)

	for _, request := range stub.Requests() {
		assert.NotContains(t, request, "仲裁庭应当独立审理案件")
	}
}

func TestPipelineNoResumeIgnoresCheckpoint(t *testing.T) {
	stub := pipelineStub()
	defer stub.Close()

	// A stale checkpoint holding a pair the corpus no longer yields.
	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")
	stale := NewCheckpoint(checkpointPath)
	stale.Stage = 1
	stale.Extracted = []TermPair{{SourceTerm: "旧术语", TargetTerm: "stale term", Confidence: 0.9, EntryIDs: "pair-0"}}
	require.NoError(t, stale.Save())

	opts := testPipelineOptions(checkpointPath)
	opts.NoResume = true
	pipeline := newTestPipeline(t, stub, opts)
	terms, err := pipeline.Run(context.Background(), testCorpus())
	require.NoError(t, err)

	for _, term := range terms {
		assert.NotEqual(t, "旧术语", term.SourceTerm)
	}
}

func TestPipelineCleanCheckpointRemovesFile(t *testing.T) {
	stub := pipelineStub()
	defer stub.Close()

	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")
	opts := testPipelineOptions(checkpointPath)
	opts.CleanCheckpoint = true
	pipeline := newTestPipeline(t, stub, opts)

	_, err := pipeline.Run(context.Background(), testCorpus())
	require.NoError(t, err)
	assert.NoFileExists(t, checkpointPath)
}

func TestPipelineStageDirWritesSnapshots(t *testing.T) {
	stub := pipelineStub()
	defer stub.Close()

	stageDir := t.TempDir()
	opts := testPipelineOptions(filepath.Join(t.TempDir(), "checkpoint.json"))
	opts.StageDir = stageDir
	pipeline := newTestPipeline(t, stub, opts)

	_, err := pipeline.Run(context.Background(), testCorpus())
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(stageDir, "extracted.json"))
	assert.FileExists(t, filepath.Join(stageDir, "quality_checked.json"))
	assert.FileExists(t, filepath.Join(stageDir, "normalized.json"))
}

func TestCorpusContextTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("当事人应当按照约定全面履行自己的义务。", 200)
	pairsByID := map[string]SentencePair{
		"pair-1": {EntryID: "pair-1", SourceText: long, TargetText: long},
	}
	batch := []TermPair{{SourceTerm: "义务", TargetTerm: "obligation", EntryIDs: "pair-1"}}

	got := corpusContext(batch, pairsByID)
	assert.LessOrEqual(t, len(got), qualityContextLimit)
	assert.True(t, utf8.ValidString(got))
}

func TestPipelineRejectsBadOptions(t *testing.T) {
	stub := pipelineStub()
	defer stub.Close()
	client, err := llm.New(stub.Config())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.StartFromStage = 5
	_, err = NewPipeline(client, opts)
	require.Error(t, err)
}
