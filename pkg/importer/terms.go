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

// Package importer loads termbase and translation memory content from
// the file formats terminologists actually deliver: Excel workbooks,
// CSV/TSV exports, and JSON dumps.
package importer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kadirpekel/legalmt/pkg/termbase"
)

// TermDefaults fills in fields the file does not carry per row.
type TermDefaults struct {
	SourceLang string
	TargetLang string
	Domain     string
	Confidence float64
}

// LoadTerms reads a term file, dispatching on extension: .xlsx, .csv,
// .tsv, .json, or .jsonl.
func LoadTerms(path string, defaults TermDefaults) ([]termbase.Term, error) {
	if defaults.Confidence == 0 {
		defaults.Confidence = 0.8
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return loadTermsExcel(path, defaults)
	case ".csv":
		return loadTermsDelimited(path, ',', defaults)
	case ".tsv":
		return loadTermsDelimited(path, '\t', defaults)
	case ".json", ".jsonl":
		return loadTermsJSON(path, defaults)
	default:
		return nil, fmt.Errorf("unsupported term file format: %s", path)
	}
}

func loadTermsExcel(path string, defaults TermDefaults) ([]termbase.Term, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := headerIndex(rows[0])
	var terms []termbase.Term
	for _, row := range rows[1:] {
		term := termFromRow(row, columns, defaults)
		if term.SourceTerm == "" || term.TargetTerm == "" {
			continue
		}
		terms = append(terms, term)
	}
	return terms, nil
}

func loadTermsDelimited(path string, delimiter rune, defaults TermDefaults) ([]termbase.Term, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open term file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := headerIndex(rows[0])
	var terms []termbase.Term
	for _, row := range rows[1:] {
		term := termFromRow(row, columns, defaults)
		if term.SourceTerm == "" || term.TargetTerm == "" {
			continue
		}
		terms = append(terms, term)
	}
	return terms, nil
}

func loadTermsJSON(path string, defaults TermDefaults) ([]termbase.Term, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read term file: %w", err)
	}

	var terms []termbase.Term
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &terms); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	} else {
		for lineNo, line := range strings.Split(trimmed, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var term termbase.Term
			if err := json.Unmarshal([]byte(line), &term); err != nil {
				return nil, fmt.Errorf("failed to decode %s line %d: %w", path, lineNo+1, err)
			}
			terms = append(terms, term)
		}
	}

	for i := range terms {
		applyTermDefaults(&terms[i], defaults)
	}
	out := terms[:0]
	for _, t := range terms {
		if t.SourceTerm != "" && t.TargetTerm != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// headerIndex maps normalized column names to positions. Common aliases
// are folded onto the canonical names.
func headerIndex(header []string) map[string]int {
	aliases := map[string]string{
		"source":         "source_term",
		"source term":    "source_term",
		"target":         "target_term",
		"target term":    "target_term",
		"translation":    "target_term",
		"context":        "source_context",
		"source context": "source_context",
		"target context": "target_context",
		"score":          "confidence",
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if canonical, ok := aliases[key]; ok {
			key = canonical
		}
		columns[key] = i
	}
	return columns
}

func cell(row []string, columns map[string]int, name string) string {
	i, ok := columns[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func termFromRow(row []string, columns map[string]int, defaults TermDefaults) termbase.Term {
	term := termbase.Term{
		SourceTerm:    cell(row, columns, "source_term"),
		TargetTerm:    cell(row, columns, "target_term"),
		Domain:        cell(row, columns, "domain"),
		Category:      cell(row, columns, "category"),
		Law:           cell(row, columns, "law"),
		Year:          cell(row, columns, "year"),
		SourceContext: cell(row, columns, "source_context"),
		TargetContext: cell(row, columns, "target_context"),
		SourceLang:    cell(row, columns, "source_lang"),
		TargetLang:    cell(row, columns, "target_lang"),
	}
	if raw := cell(row, columns, "confidence"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			term.Confidence = v
		}
	}
	applyTermDefaults(&term, defaults)
	return term
}

func applyTermDefaults(term *termbase.Term, defaults TermDefaults) {
	if term.SourceLang == "" {
		term.SourceLang = defaults.SourceLang
	}
	if term.TargetLang == "" {
		term.TargetLang = defaults.TargetLang
	}
	if term.Domain == "" {
		term.Domain = defaults.Domain
	}
	if term.Confidence == 0 {
		term.Confidence = defaults.Confidence
	}
}
