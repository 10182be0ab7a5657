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

package importer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kadirpekel/legalmt/pkg/tm"
)

// TMDefaults fills in fields the file does not carry per row.
type TMDefaults struct {
	SourceLang string
	TargetLang string
	Domain     string
}

// LoadTMEntries reads a parallel corpus file into TM entries. TSV is
// source<TAB>target; CSV and xlsx expect source_text/target_text
// columns; JSON and JSONL decode tm.Entry objects directly.
func LoadTMEntries(path string, defaults TMDefaults) ([]tm.Entry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return loadTMExcel(path, defaults)
	case ".tsv", ".txt":
		return loadTMTabbed(path, defaults)
	case ".csv":
		return loadTMCSV(path, defaults)
	case ".json", ".jsonl":
		return loadTMJSON(path, defaults)
	default:
		return nil, fmt.Errorf("unsupported tm file format: %s", path)
	}
}

func loadTMExcel(path string, defaults TMDefaults) ([]tm.Entry, error) {
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
	return tmEntriesFromRows(rows, defaults), nil
}

func loadTMTabbed(path string, defaults TMDefaults) ([]tm.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tm file: %w", err)
	}

	var entries []tm.Entry
	for lineNo, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("tm file %s line %d: expected source<TAB>target", path, lineNo+1)
		}
		entries = append(entries, applyTMDefaults(tm.Entry{
			SourceText: strings.TrimSpace(parts[0]),
			TargetText: strings.TrimSpace(parts[1]),
		}, defaults))
	}
	return entries, nil
}

func loadTMCSV(path string, defaults TMDefaults) ([]tm.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tm file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return tmEntriesFromRows(rows, defaults), nil
}

func tmEntriesFromRows(rows [][]string, defaults TMDefaults) []tm.Entry {
	columns := headerIndex(rows[0])
	var entries []tm.Entry
	for _, row := range rows[1:] {
		entry := tm.Entry{
			SourceText: cell(row, columns, "source_text"),
			TargetText: cell(row, columns, "target_text"),
			SourceLang: cell(row, columns, "source_lang"),
			TargetLang: cell(row, columns, "target_lang"),
			Domain:     cell(row, columns, "domain"),
		}
		if entry.SourceText == "" {
			entry.SourceText = cell(row, columns, "source_term")
		}
		if entry.TargetText == "" {
			entry.TargetText = cell(row, columns, "target_term")
		}
		if entry.SourceText == "" || entry.TargetText == "" {
			continue
		}
		entries = append(entries, applyTMDefaults(entry, defaults))
	}
	return entries
}

func loadTMJSON(path string, defaults TMDefaults) ([]tm.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tm file: %w", err)
	}

	var entries []tm.Entry
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	} else {
		for lineNo, line := range strings.Split(trimmed, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var entry tm.Entry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				return nil, fmt.Errorf("failed to decode %s line %d: %w", path, lineNo+1, err)
			}
			entries = append(entries, entry)
		}
	}

	out := entries[:0]
	for _, entry := range entries {
		if entry.SourceText == "" || entry.TargetText == "" {
			continue
		}
		out = append(out, applyTMDefaults(entry, defaults))
	}
	return out, nil
}

func applyTMDefaults(entry tm.Entry, defaults TMDefaults) tm.Entry {
	if entry.SourceLang == "" {
		entry.SourceLang = defaults.SourceLang
	}
	if entry.TargetLang == "" {
		entry.TargetLang = defaults.TargetLang
	}
	if entry.Domain == "" {
		entry.Domain = defaults.Domain
	}
	return entry
}
