package workflows_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/legalmt/pkg/config"
	"github.com/kadirpekel/legalmt/pkg/llm"
	"github.com/kadirpekel/legalmt/pkg/termbase"
	"github.com/kadirpekel/legalmt/pkg/testutils"
	"github.com/kadirpekel/legalmt/pkg/tm"
	"github.com/kadirpekel/legalmt/pkg/workflows"
)

const (
	sourceSentence = "发生不可抗力时,合同可以解除。"
	r1Translation  = "The contract may be terminated in case of force majeure."
	r2Translation  = "The contract may be rescinded in case of force majeure."
	r3Translation  = "The contract may be rescinded in the event of force majeure."
)

// fullPipelineStub scripts every agent in the three-round pipeline.
func fullPipelineStub() *testutils.StubLLM {
	return testutils.NewStubLLM().
		On("legal terminology expert. Identify", `{"terms": [{"term": "不可抗力", "category": "statutory"}]}`).
		On("evaluating termbase candidates", `{"best_candidate": 1, "confidence": 0.95, "reasoning": "exact domain match"}`).
		On("professional legal translator", r1Translation).
		On("Align syntactic patterns", `{"patterns": [{"dimension": "modality", "source_pattern": "可以", "target_pattern": "may", "confidence": 0.95}]}`).
		On("legal linguist scoring", `{"scores": {"modality": 0.95, "connective": 0.95, "conditional": 0.95, "passive": 1.0}, "overall": 0.95}`).
		On("refining syntax", r2Translation).
		On("checking corpus consistency", `{"scores": {"terminology_consistency": 0.6, "style_consistency": 0.9, "coherence": 0.9}, "overall": 0.7, "reasoning": "term drift"}`).
		On("aligning a translation with established corpus conventions", r3Translation).
		On("legal translation judge", `{"best_candidate": 1, "confidence": 0.9, "reasoning": "incumbent already consistent"}`).
		On("professional translator. Translate the user text", "Baseline translation.")
}

func newPipelineClient(t *testing.T, stub *testutils.StubLLM) *llm.Client {
	t.Helper()
	client, err := llm.New(stub.Config())
	require.NoError(t, err)
	return client
}

func seedTermbase(t *testing.T) *termbase.DB {
	t.Helper()
	db, err := termbase.Open(filepath.Join(t.TempDir(), "terms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.AddTerm(termbase.Term{
		SourceTerm: "不可抗力", TargetTerm: "force majeure",
		SourceLang: "zh", TargetLang: "en",
		Domain: "legal", Confidence: 0.95,
	}))
	return db
}

func seedTM(t *testing.T) *tm.Store {
	t.Helper()
	store, err := tm.NewStore()
	require.NoError(t, err)
	require.NoError(t, store.BatchAddEntries(context.Background(), []tm.Entry{
		{
			SourceText: "发生不可抗力时,当事人可以解除合同。",
			TargetText: "In the event of force majeure, a party may rescind the contract.",
			SourceLang: "zh", TargetLang: "en",
		},
	}))
	return store
}

func withControl(t *testing.T, control *config.TranslationControl) {
	t.Helper()
	original := config.GetTranslationControl()
	config.SetTranslationControl(control)
	t.Cleanup(func() { config.SetTranslationControl(original) })
}

func TestTranslateBaselineAblation(t *testing.T) {
	stub := fullPipelineStub()
	defer stub.Close()
	withControl(t, config.DefaultTranslationControl())

	translator := workflows.NewTranslator(newPipelineClient(t, stub), config.DefaultAblations()["baseline"])
	result := translator.Translate(context.Background(), sourceSentence, "zh", "en")

	assert.Equal(t, "Baseline translation.", result.TranslatedText)
	assert.Equal(t, 0.9, result.Confidence)
	assert.Equal(t, 1, result.Rounds)
	require.NotNil(t, result.Baseline)
	// The flat condition carries no hierarchical trace.
	assert.Nil(t, result.Terminology)
	assert.Nil(t, result.Syntax)
	assert.Nil(t, result.Discourse)
}

func TestTranslateBaselineFailurePassesSourceThrough(t *testing.T) {
	stub := testutils.NewStubLLM().Default("")
	defer stub.Close()
	withControl(t, config.DefaultTranslationControl())

	translator := workflows.NewTranslator(newPipelineClient(t, stub), config.DefaultAblations()["baseline"])
	result := translator.Translate(context.Background(), sourceSentence, "zh", "en")

	assert.Equal(t, sourceSentence, result.TranslatedText)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestTranslateFullPipelineTrace(t *testing.T) {
	stub := fullPipelineStub()
	defer stub.Close()
	withControl(t, config.DefaultTranslationControl())

	translator := workflows.NewTranslator(newPipelineClient(t, stub), config.DefaultAblations()["full"],
		workflows.WithTermbase(seedTermbase(t)),
		workflows.WithTranslationMemory(seedTM(t)))
	result := translator.Translate(context.Background(), sourceSentence, "zh", "en")

	assert.Equal(t, 3, result.Rounds)
	require.NotNil(t, result.Terminology)
	require.NotNil(t, result.Syntax)
	require.NotNil(t, result.Discourse)
	assert.Nil(t, result.Baseline)

	// Round one resolved the glossary term.
	assert.Equal(t, r1Translation, result.Terminology.TranslatedText)
	require.Len(t, result.Terminology.Terms, 1)
	assert.Equal(t, "不可抗力", result.Terminology.Terms[0].SourceTerm)
	assert.Equal(t, "force majeure", result.Terminology.Terms[0].TargetTerm)

	// Round two refined on top of round one's output.
	assert.Equal(t, r2Translation, result.Syntax.TranslatedText)
	assert.NotEmpty(t, result.Syntax.Patterns)

	// Round three found TM references; with none above the similarity
	// threshold it keeps the incumbent.
	assert.NotEmpty(t, result.Discourse.References)
	assert.Equal(t, r2Translation, result.TranslatedText)
}

func TestTranslateSyntaxGate(t *testing.T) {
	stub := fullPipelineStub()
	defer stub.Close()

	control := config.DefaultTranslationControl()
	control.GatingEnabledLayers[config.LayerSyntax] = true
	withControl(t, control)

	translator := workflows.NewTranslator(newPipelineClient(t, stub), config.DefaultAblations()["terminology_syntax"],
		workflows.WithTermbase(seedTermbase(t)))
	result := translator.Translate(context.Background(), sourceSentence, "zh", "en")

	require.NotNil(t, result.Syntax)
	assert.True(t, result.Syntax.Gated)
	// A gated round keeps the prior translation at full confidence.
	assert.Equal(t, result.Terminology.TranslatedText, result.Syntax.TranslatedText)
	assert.Equal(t, 1.0, result.Syntax.Confidence)
	assert.Equal(t, r1Translation, result.TranslatedText)
}

func TestTranslateTerminologySelection(t *testing.T) {
	stub := fullPipelineStub()
	defer stub.Close()

	control := config.DefaultTranslationControl()
	control.SelectionEnabledLayers[config.LayerTerminology] = true
	withControl(t, control)

	translator := workflows.NewTranslator(newPipelineClient(t, stub), config.DefaultAblations()["terminology"],
		workflows.WithTermbase(seedTermbase(t)))
	result := translator.Translate(context.Background(), sourceSentence, "zh", "en")

	require.NotNil(t, result.Terminology)
	require.NotNil(t, result.Terminology.Selection)
	require.Len(t, result.Terminology.Candidates, control.NumCandidates)

	// The judge saw the resolved glossary alongside the candidates.
	var judged string
	for _, request := range stub.Requests() {
		if strings.Contains(request, "legal translation judge") {
			judged = request
		}
	}
	require.NotEmpty(t, judged)
	assert.Contains(t, judged, "不可抗力 => force majeure")
}

func TestTranslateSyntaxSelection(t *testing.T) {
	stub := fullPipelineStub()
	defer stub.Close()

	control := config.DefaultTranslationControl()
	control.SelectionEnabledLayers[config.LayerSyntax] = true
	control.NumCandidates = 4
	withControl(t, control)

	translator := workflows.NewTranslator(newPipelineClient(t, stub), config.DefaultAblations()["terminology_syntax"],
		workflows.WithTermbase(seedTermbase(t)))
	result := translator.Translate(context.Background(), sourceSentence, "zh", "en")

	require.NotNil(t, result.Syntax)
	require.NotNil(t, result.Syntax.Selection)

	// The incumbent plus NumCandidates-1 refinements.
	require.Len(t, result.Syntax.Candidates, 4)
	assert.Equal(t, r1Translation, result.Syntax.Candidates[0])
	assert.Equal(t, r2Translation, result.Syntax.Candidates[1])

	// The judge kept the incumbent, so round one's output is final.
	assert.Equal(t, 0, result.Syntax.Selection.Index)
	assert.Equal(t, r1Translation, result.TranslatedText)
}

func TestTranslateDiscourseSelection(t *testing.T) {
	stub := fullPipelineStub()
	defer stub.Close()

	control := config.DefaultTranslationControl()
	control.SelectionEnabledLayers[config.LayerDiscourse] = true
	control.TMSimilarityThreshold = 0.0
	withControl(t, control)

	translator := workflows.NewTranslator(newPipelineClient(t, stub), config.DefaultAblations()["full"],
		workflows.WithTermbase(seedTermbase(t)),
		workflows.WithTranslationMemory(seedTM(t)))
	result := translator.Translate(context.Background(), sourceSentence, "zh", "en")

	require.NotNil(t, result.Discourse)
	require.NotNil(t, result.Discourse.Selection)

	// The incumbent plus NumCandidates-1 refinements.
	require.Len(t, result.Discourse.Candidates, control.NumCandidates)
	assert.Equal(t, r2Translation, result.Discourse.Candidates[0])

	// The selector kept candidate zero, so round two's output is final.
	assert.Equal(t, 0, result.Discourse.Selection.Index)
	assert.Equal(t, r2Translation, result.TranslatedText)
}
