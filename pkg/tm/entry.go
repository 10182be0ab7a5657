// Package tm implements the translation memory: a BM25 index over source
// texts plus an optional Milvus vector collection, combined by hybrid
// ranked retrieval.
package tm

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Entry is one bilingual translation memory record.
type Entry struct {
	ID         string            `json:"id"`
	SourceText string            `json:"source_text"`
	TargetText string            `json:"target_text"`
	SourceLang string            `json:"source_lang"`
	TargetLang string            `json:"target_lang"`
	Domain     string            `json:"domain"`
	Context    string            `json:"context"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Result is a scored retrieval hit. Score is normalized to [0,1] for both
// branches so hybrid weighting is meaningful.
type Result struct {
	Entry
	Score float64 `json:"score"`
}

// EntryID derives the stable identity of a TM record.
func EntryID(sourceLang, targetLang, sourceText, targetText string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s:%s:%s", sourceLang, targetLang, sourceText, targetText)))
	return hex.EncodeToString(sum[:])
}
