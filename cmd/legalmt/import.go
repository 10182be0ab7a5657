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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kadirpekel/legalmt/pkg/importer"
	"github.com/kadirpekel/legalmt/pkg/termbase"
)

// ImportTermsCmd loads a term file into the termbase.
type ImportTermsCmd struct {
	Input    string `help:"Term file (.xlsx, .csv, .tsv, .json, .jsonl)." required:"" type:"path"`
	Termbase string `help:"Termbase SQLite path." default:"terms.db" type:"path"`

	SourceLang string  `name:"source-lang" help:"Default source language for rows without one." default:"zh"`
	TargetLang string  `name:"target-lang" help:"Default target language for rows without one." default:"en"`
	Domain     string  `help:"Default domain tag." default:"legal"`
	Confidence float64 `help:"Default confidence for rows without one." default:"0.8"`
	Replace    bool    `help:"Delete existing terms for the language pair first."`
}

func (c *ImportTermsCmd) Run(cli *CLI) error {
	terms, err := importer.LoadTerms(c.Input, importer.TermDefaults{
		SourceLang: c.SourceLang,
		TargetLang: c.TargetLang,
		Domain:     c.Domain,
		Confidence: c.Confidence,
	})
	if err != nil {
		return err
	}
	if len(terms) == 0 {
		return fmt.Errorf("no usable terms found in %s", c.Input)
	}

	db, err := termbase.Open(c.Termbase)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Replace {
		deleted, err := db.DeleteTerms(c.SourceLang, c.TargetLang)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d existing %s-%s terms\n", deleted, c.SourceLang, c.TargetLang)
	}

	inserted, err := db.BatchAddTerms(terms)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d/%d terms into %s\n", inserted, len(terms), c.Termbase)
	return nil
}

// ImportTMCmd loads sentence pairs into the translation memory.
type ImportTMCmd struct {
	Input    string `help:"Corpus file (.xlsx, .tsv, .csv, .json, .jsonl)." required:"" type:"path"`
	Snapshot string `help:"BM25 snapshot path." default:"outputs/tm.json" type:"path"`

	SourceLang       string `name:"source-lang" default:"zh"`
	TargetLang       string `name:"target-lang" default:"en"`
	Domain           string `help:"Default domain tag." default:"legal"`
	MilvusCollection string `name:"milvus-collection" help:"Also index vectors into this Milvus collection."`
}

func (c *ImportTMCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	entries, err := importer.LoadTMEntries(c.Input, importer.TMDefaults{
		SourceLang: c.SourceLang,
		TargetLang: c.TargetLang,
		Domain:     c.Domain,
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no usable sentence pairs found in %s", c.Input)
	}

	store, err := openTM(c.Snapshot, c.MilvusCollection)
	if err != nil {
		return err
	}
	if err := store.BatchAddEntries(ctx, entries); err != nil {
		return err
	}
	fmt.Printf("imported %d pairs, tm now holds %d entries (%s)\n", len(entries), store.Size(), c.Snapshot)
	return nil
}

// StatsCmd prints termbase statistics.
type StatsCmd struct {
	Termbase string `help:"Termbase SQLite path." default:"terms.db" type:"path"`
}

func (c *StatsCmd) Run(cli *CLI) error {
	db, err := termbase.Open(c.Termbase)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.GetStats()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
