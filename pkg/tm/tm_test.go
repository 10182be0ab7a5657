package tm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"the", "party", "shall", "pay"}, Tokenize("The Party SHALL pay"))
	assert.Equal(t, []string{"当", "事", "人"}, Tokenize("当事人"))
	// CJK text drops whitespace instead of splitting on it.
	assert.Equal(t, []string{"当", "事", "人"}, Tokenize("当事 人"))
	assert.Empty(t, Tokenize(""))
}

func TestEntryIDStable(t *testing.T) {
	a := EntryID("zh", "en", "甲方", "Party A")
	b := EntryID("zh", "en", "甲方", "Party A")
	c := EntryID("zh", "en", "甲方", "Party B")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func testEntries() []Entry {
	return []Entry{
		{SourceText: "当事人应当遵守合同约定", TargetText: "The parties shall comply with the contract", SourceLang: "zh", TargetLang: "en"},
		{SourceText: "当事人可以解除合同", TargetText: "The parties may rescind the contract", SourceLang: "zh", TargetLang: "en"},
		{SourceText: "本法自公布之日起施行", TargetText: "This law takes effect upon promulgation", SourceLang: "zh", TargetLang: "en"},
		{SourceText: "当事人应当遵守诚实信用原则", TargetText: "Die Parteien haben Treu und Glauben zu wahren", SourceLang: "zh", TargetLang: "de"},
	}
}

func TestBM25SearchRanksOverlap(t *testing.T) {
	idx := NewBM25Index(testEntries())

	results := idx.Search("当事人应当遵守合同", "zh", "en", 2)
	require.NotEmpty(t, results)
	assert.Equal(t, "当事人应当遵守合同约定", results[0].SourceText)
	for _, r := range results {
		assert.LessOrEqual(t, r.Score, 1.0)
		assert.Greater(t, r.Score, 0.0)
	}
}

func TestBM25SearchFiltersLangPair(t *testing.T) {
	idx := NewBM25Index(testEntries())

	results := idx.Search("当事人应当遵守", "zh", "de", 5)
	require.Len(t, results, 1)
	assert.Equal(t, "de", results[0].TargetLang)
}

func TestBM25SearchNoMatch(t *testing.T) {
	idx := NewBM25Index(testEntries())
	assert.Empty(t, idx.Search("unrelated english words", "zh", "en", 5))
	assert.Empty(t, idx.Search("当事人", "zh", "en", 0))
}

func TestBM25SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tm", "snapshot.json")

	idx := NewBM25Index(testEntries())
	require.NoError(t, idx.Save(path))

	restored, err := LoadBM25Index(path)
	require.NoError(t, err)
	assert.Equal(t, idx.Size(), restored.Size())

	got := restored.Search("当事人应当遵守合同", "zh", "en", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "当事人应当遵守合同约定", got[0].SourceText)
}

func TestLoadBM25IndexMissingFile(t *testing.T) {
	idx, err := LoadBM25Index(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Size())
}

func TestStoreAssignsEntryIDs(t *testing.T) {
	store, err := NewStore(WithSnapshotPath(filepath.Join(t.TempDir(), "tm.json")))
	require.NoError(t, err)

	require.NoError(t, store.BatchAddEntries(context.Background(), testEntries()))
	assert.Equal(t, 4, store.Size())

	results := store.SearchBM25("当事人应当遵守合同", "zh", "en", 1)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].ID)
}

func TestStoreReloadsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tm.json")

	store, err := NewStore(WithSnapshotPath(path))
	require.NoError(t, err)
	require.NoError(t, store.BatchAddEntries(context.Background(), testEntries()))

	reopened, err := NewStore(WithSnapshotPath(path))
	require.NoError(t, err)
	assert.Equal(t, 4, reopened.Size())
}

func TestHybridSearchFallsBackToBM25(t *testing.T) {
	store, err := NewStore()
	require.NoError(t, err)
	require.NoError(t, store.BatchAddEntries(context.Background(), testEntries()))
	require.False(t, store.HasVectorBackend())

	results := store.HybridSearch(context.Background(), "当事人应当遵守合同", "zh", "en", 2)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 2)
	assert.Equal(t, "当事人应当遵守合同约定", results[0].SourceText)
}
