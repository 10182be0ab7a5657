package tm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMilvus(t *testing.T, handler http.Handler, dimension int) *MilvusDB {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	db, err := NewMilvusDB(MilvusConfig{Host: server.URL, Collection: "legal_tm", Dimension: dimension})
	require.NoError(t, err)
	return db
}

func TestNewMilvusDBRequiresCollection(t *testing.T) {
	_, err := NewMilvusDB(MilvusConfig{Host: "localhost"})
	require.Error(t, err)
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	var created map[string]interface{}
	db := newTestMilvus(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.WriteHeader(http.StatusOK)
		}
	}), 1536)

	require.NoError(t, db.EnsureCollection(context.Background()))
	assert.Equal(t, "legal_tm", created["collection_name"])
	assert.Equal(t, float64(1536), created["dimension"])
	assert.Equal(t, "COSINE", created["metric_type"])
}

func TestEnsureCollectionRefusesUnknownDimension(t *testing.T) {
	db := newTestMilvus(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), 0)

	err := db.EnsureCollection(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMBEDDING_DIM")
}

func TestMilvusSearchParsesAndSorts(t *testing.T) {
	db := newTestMilvus(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, `source_lang == "zh" and target_lang == "en"`, payload["expr"])

		resp := map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": "a", "distance": 0.4, "entity": map[string]interface{}{
					"text": "甲方|||Party A", "source_lang": "zh", "target_lang": "en",
				}},
				{"id": 42, "score": 0.9},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}), 4)

	results, err := db.Search(context.Background(), []float32{1, 0, 0, 0}, "zh", "en", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Sorted by similarity descending; numeric ids are stringified and
	// distances converted to similarities.
	assert.Equal(t, "42", results[0].ID)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, "a", results[1].ID)
	assert.InDelta(t, 0.6, results[1].Score, 1e-9)
	assert.Equal(t, "甲方", results[1].SourceText)
	assert.Equal(t, "Party A", results[1].TargetText)
}

func TestUpsertRejectsCountMismatch(t *testing.T) {
	db := newTestMilvus(t, http.NotFoundHandler(), 4)
	err := db.Upsert(context.Background(), []Entry{{ID: "a"}}, nil)
	require.Error(t, err)
}

func TestBuildLangFilter(t *testing.T) {
	assert.Equal(t, "", buildLangFilter("", ""))
	assert.Equal(t, `source_lang == "zh"`, buildLangFilter("zh", ""))
	assert.Equal(t, `source_lang == "zh" and target_lang == "en"`, buildLangFilter("zh", "en"))
}
