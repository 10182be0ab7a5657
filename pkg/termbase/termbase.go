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

// Package termbase persists bilingual legal terms in SQLite. The store is
// single-writer: the import tools populate it offline, the translation
// runtime only reads. WAL mode and a busy timeout make concurrent readers
// safe.
package termbase

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Term is a persisted bilingual term. (SourceTerm, TargetTerm, SourceLang,
// TargetLang) is the logical identity.
type Term struct {
	ID                 int64             `json:"id,omitempty"`
	SourceTerm         string            `json:"source_term"`
	TargetTerm         string            `json:"target_term"`
	SourceLang         string            `json:"source_lang"`
	TargetLang         string            `json:"target_lang"`
	Domain             string            `json:"domain"`
	Confidence         float64           `json:"confidence"`
	QualityScore       float64           `json:"quality_score"`
	CombinedScore      float64           `json:"combined_score"`
	Category           string            `json:"category"`
	Law                string            `json:"law"`
	Year               string            `json:"year"`
	EntryID            string            `json:"entry_id"`
	SourceContext      string            `json:"source_context"`
	TargetContext      string            `json:"target_context"`
	OccurrenceCount    int               `json:"occurrence_count"`
	OriginalSourceTerm string            `json:"original_source_term"`
	OriginalTargetTerm string            `json:"original_target_term"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// SearchOptions narrows a term lookup.
type SearchOptions struct {
	SourceLang string
	TargetLang string
	Domain     string
	ExactMatch bool
	Limit      int
}

// Stats summarizes termbase contents.
type Stats struct {
	TotalTerms  int            `json:"total_terms"`
	ByLangPair  map[string]int `json:"by_lang_pair"`
	ByDomain    map[string]int `json:"by_domain"`
	AvgQuality  float64        `json:"avg_quality"`
	AvgCombined float64        `json:"avg_combined"`
}

const schema = `
CREATE TABLE IF NOT EXISTS terms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_term TEXT NOT NULL,
	target_term TEXT NOT NULL,
	source_lang TEXT NOT NULL,
	target_lang TEXT NOT NULL,
	domain TEXT DEFAULT '',
	confidence REAL DEFAULT 0,
	quality_score REAL DEFAULT 0,
	combined_score REAL DEFAULT 0,
	category TEXT DEFAULT '',
	law TEXT DEFAULT '',
	year TEXT DEFAULT '',
	entry_id TEXT DEFAULT '',
	source_context TEXT DEFAULT '',
	target_context TEXT DEFAULT '',
	occurrence_count INTEGER DEFAULT 1,
	original_source_term TEXT DEFAULT '',
	original_target_term TEXT DEFAULT '',
	metadata TEXT DEFAULT '{}',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_terms_source ON terms(source_term, source_lang);
CREATE INDEX IF NOT EXISTS idx_terms_target ON terms(target_term, target_lang);
CREATE INDEX IF NOT EXISTS idx_terms_lang_pair ON terms(source_lang, target_lang);
CREATE INDEX IF NOT EXISTS idx_terms_domain ON terms(domain);
`

// DB wraps the SQLite handle.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the termbase at path and applies the
// required pragmas and schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open termbase %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create termbase schema: %w", err)
	}

	return &DB{db: db, path: path}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

const insertSQL = `
INSERT INTO terms (
	source_term, target_term, source_lang, target_lang, domain,
	confidence, quality_score, combined_score, category, law, year, entry_id,
	source_context, target_context, occurrence_count,
	original_source_term, original_target_term, metadata, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`

// AddTerm inserts one term.
func (d *DB) AddTerm(term Term) error {
	metadata, err := json.Marshal(term.Metadata)
	if err != nil {
		metadata = []byte("{}")
	}
	if term.OccurrenceCount < 1 {
		term.OccurrenceCount = 1
	}

	_, err = d.db.Exec(insertSQL,
		term.SourceTerm, term.TargetTerm, term.SourceLang, term.TargetLang, term.Domain,
		term.Confidence, term.QualityScore, term.CombinedScore, term.Category,
		term.Law, term.Year, term.EntryID,
		term.SourceContext, term.TargetContext, term.OccurrenceCount,
		term.OriginalSourceTerm, term.OriginalTargetTerm, string(metadata))
	if err != nil {
		return fmt.Errorf("failed to insert term %q: %w", term.SourceTerm, err)
	}
	return nil
}

// BatchAddTerms inserts terms in one transaction. Individual failures are
// logged and skipped; the returned count is the number actually inserted.
func (d *DB) BatchAddTerms(terms []Term) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, term := range terms {
		metadata, err := json.Marshal(term.Metadata)
		if err != nil {
			metadata = []byte("{}")
		}
		if term.OccurrenceCount < 1 {
			term.OccurrenceCount = 1
		}
		_, err = stmt.Exec(
			term.SourceTerm, term.TargetTerm, term.SourceLang, term.TargetLang, term.Domain,
			term.Confidence, term.QualityScore, term.CombinedScore, term.Category,
			term.Law, term.Year, term.EntryID,
			term.SourceContext, term.TargetContext, term.OccurrenceCount,
			term.OriginalSourceTerm, term.OriginalTargetTerm, string(metadata))
		if err != nil {
			slog.Warn("skipping term on insert failure", "source_term", term.SourceTerm, "error", err)
			continue
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch insert: %w", err)
	}
	return inserted, nil
}

// SearchTerms finds terms whose source term matches the query, exactly or as
// a substring, ordered by confidence descending.
func (d *DB) SearchTerms(query string, opts SearchOptions) ([]Term, error) {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	var conditions []string
	var args []interface{}

	if opts.ExactMatch {
		conditions = append(conditions, "source_term = ?")
		args = append(args, query)
	} else {
		conditions = append(conditions, "source_term LIKE ?")
		args = append(args, "%"+query+"%")
	}
	if opts.SourceLang != "" {
		conditions = append(conditions, "source_lang = ?")
		args = append(args, opts.SourceLang)
	}
	if opts.TargetLang != "" {
		conditions = append(conditions, "target_lang = ?")
		args = append(args, opts.TargetLang)
	}
	if opts.Domain != "" {
		conditions = append(conditions, "domain = ?")
		args = append(args, opts.Domain)
	}

	querySQL := fmt.Sprintf(`
		SELECT id, source_term, target_term, source_lang, target_lang, domain,
			confidence, quality_score, combined_score, category, law, year, entry_id,
			source_context, target_context, occurrence_count,
			original_source_term, original_target_term, metadata, created_at, updated_at
		FROM terms WHERE %s ORDER BY confidence DESC LIMIT ?`,
		strings.Join(conditions, " AND "))
	args = append(args, opts.Limit)

	rows, err := d.db.Query(querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("term search failed: %w", err)
	}
	defer rows.Close()

	var terms []Term
	for rows.Next() {
		var t Term
		var metadata string
		err := rows.Scan(&t.ID, &t.SourceTerm, &t.TargetTerm, &t.SourceLang, &t.TargetLang,
			&t.Domain, &t.Confidence, &t.QualityScore, &t.CombinedScore, &t.Category,
			&t.Law, &t.Year, &t.EntryID, &t.SourceContext, &t.TargetContext,
			&t.OccurrenceCount, &t.OriginalSourceTerm, &t.OriginalTargetTerm,
			&metadata, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan term row: %w", err)
		}
		if metadata != "" && metadata != "{}" {
			_ = json.Unmarshal([]byte(metadata), &t.Metadata)
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// DeleteTerms removes all terms for a language pair. Supported for rebuilds;
// unused by the translation runtime.
func (d *DB) DeleteTerms(sourceLang, targetLang string) (int64, error) {
	res, err := d.db.Exec("DELETE FROM terms WHERE source_lang = ? AND target_lang = ?", sourceLang, targetLang)
	if err != nil {
		return 0, fmt.Errorf("failed to delete terms: %w", err)
	}
	return res.RowsAffected()
}

// GetStats aggregates counts by language pair and domain.
func (d *DB) GetStats() (*Stats, error) {
	stats := &Stats{
		ByLangPair: map[string]int{},
		ByDomain:   map[string]int{},
	}

	row := d.db.QueryRow("SELECT COUNT(*), COALESCE(AVG(quality_score),0), COALESCE(AVG(combined_score),0) FROM terms")
	if err := row.Scan(&stats.TotalTerms, &stats.AvgQuality, &stats.AvgCombined); err != nil {
		return nil, fmt.Errorf("failed to read term stats: %w", err)
	}

	rows, err := d.db.Query("SELECT source_lang || '-' || target_lang, COUNT(*) FROM terms GROUP BY source_lang, target_lang")
	if err != nil {
		return nil, fmt.Errorf("failed to read lang pair stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pair string
		var count int
		if err := rows.Scan(&pair, &count); err != nil {
			return nil, err
		}
		stats.ByLangPair[pair] = count
	}

	domainRows, err := d.db.Query("SELECT COALESCE(NULLIF(domain, ''), 'unknown'), COUNT(*) FROM terms GROUP BY domain")
	if err != nil {
		return nil, fmt.Errorf("failed to read domain stats: %w", err)
	}
	defer domainRows.Close()
	for domainRows.Next() {
		var domain string
		var count int
		if err := domainRows.Scan(&domain, &count); err != nil {
			return nil, err
		}
		stats.ByDomain[domain] = count
	}

	return stats, nil
}
