package termbase

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "terms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedTerms(t *testing.T, db *DB) {
	t.Helper()
	n, err := db.BatchAddTerms([]Term{
		{SourceTerm: "不可抗力", TargetTerm: "force majeure", SourceLang: "zh", TargetLang: "en", Domain: "legal", Confidence: 0.95},
		{SourceTerm: "不可抗力事件", TargetTerm: "force majeure event", SourceLang: "zh", TargetLang: "en", Domain: "legal", Confidence: 0.85},
		{SourceTerm: "合同", TargetTerm: "contract", SourceLang: "zh", TargetLang: "en", Domain: "legal", Confidence: 0.9},
		{SourceTerm: "合同", TargetTerm: "Vertrag", SourceLang: "zh", TargetLang: "de", Domain: "legal", Confidence: 0.9},
	})
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestAddAndSearchExact(t *testing.T) {
	db := openTestDB(t)
	seedTerms(t, db)

	terms, err := db.SearchTerms("不可抗力", SearchOptions{ExactMatch: true})
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "force majeure", terms[0].TargetTerm)
}

func TestSearchSubstringOrderedByConfidence(t *testing.T) {
	db := openTestDB(t)
	seedTerms(t, db)

	terms, err := db.SearchTerms("不可抗力", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, "force majeure", terms[0].TargetTerm)
	assert.Equal(t, "force majeure event", terms[1].TargetTerm)
	assert.Greater(t, terms[0].Confidence, terms[1].Confidence)
}

func TestSearchLangFilter(t *testing.T) {
	db := openTestDB(t)
	seedTerms(t, db)

	terms, err := db.SearchTerms("合同", SearchOptions{SourceLang: "zh", TargetLang: "de"})
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "Vertrag", terms[0].TargetTerm)
}

func TestSearchLimit(t *testing.T) {
	db := openTestDB(t)
	seedTerms(t, db)

	terms, err := db.SearchTerms("不可抗力", SearchOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, terms, 1)
}

func TestMetadataRoundTrip(t *testing.T) {
	db := openTestDB(t)
	err := db.AddTerm(Term{
		SourceTerm: "抵押权", TargetTerm: "mortgage", SourceLang: "zh", TargetLang: "en",
		Metadata: map[string]string{"origin": "civil_code"},
	})
	require.NoError(t, err)

	terms, err := db.SearchTerms("抵押权", SearchOptions{ExactMatch: true})
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "civil_code", terms[0].Metadata["origin"])
	assert.Equal(t, 1, terms[0].OccurrenceCount)
}

func TestDeleteTerms(t *testing.T) {
	db := openTestDB(t)
	seedTerms(t, db)

	deleted, err := db.DeleteTerms("zh", "en")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	terms, err := db.SearchTerms("合同", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "de", terms[0].TargetLang)
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	seedTerms(t, db)

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalTerms)
	assert.Equal(t, 3, stats.ByLangPair["zh-en"])
	assert.Equal(t, 1, stats.ByLangPair["zh-de"])
	assert.Equal(t, 4, stats.ByDomain["legal"])
}
