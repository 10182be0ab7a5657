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

// Command legalmt is the CLI for the legal machine translation pipeline.
//
// Usage:
//
//	legalmt translate --text "..." --source-lang zh --target-lang en
//	legalmt experiment --dataset data/test.jsonl --output outputs/run1
//	legalmt extract-terms --corpus data/parallel.tsv --output outputs/terms.json
//	legalmt import-terms --input terms.xlsx --termbase terms.db
//	legalmt import-tm --input corpus.tsv --snapshot outputs/tm.json
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/legalmt"
	"github.com/kadirpekel/legalmt/pkg/config"
	"github.com/kadirpekel/legalmt/pkg/embedders"
	"github.com/kadirpekel/legalmt/pkg/llm"
	"github.com/kadirpekel/legalmt/pkg/logger"
	"github.com/kadirpekel/legalmt/pkg/termbase"
	"github.com/kadirpekel/legalmt/pkg/tm"
)

// CLI defines the command-line interface.
type CLI struct {
	Version      VersionCmd      `cmd:"" help:"Show version information."`
	Translate    TranslateCmd    `cmd:"" help:"Translate text through the hierarchical pipeline."`
	Experiment   ExperimentCmd   `cmd:"" help:"Run ablation experiments over a dataset."`
	ExtractTerms ExtractTermsCmd `cmd:"" name:"extract-terms" help:"Mine bilingual terminology from a parallel corpus."`
	ImportTerms  ImportTermsCmd  `cmd:"" name:"import-terms" help:"Import terms into the termbase."`
	ImportTM     ImportTMCmd     `cmd:"" name:"import-tm" help:"Import sentence pairs into the translation memory."`
	Evaluate     EvaluateCmd     `cmd:"" help:"Score translations against references."`
	Stats        StatsCmd        `cmd:"" help:"Show termbase statistics."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(legalmt.GetVersion().String())
	return nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, so long
// corpus runs checkpoint and exit cleanly instead of dying mid-batch.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()
	return ctx, cancel
}

func newLLMClient() (*llm.Client, error) {
	return llm.New(config.LLMConfigFromEnv())
}

func openTermbase(path string) (*termbase.DB, error) {
	if path == "" {
		return nil, nil
	}
	return termbase.Open(path)
}

// openTM assembles the TM store: BM25 snapshot always, Milvus plus
// embedder only when a collection is named and the embedder resolves.
func openTM(snapshotPath, milvusCollection string) (*tm.Store, error) {
	if snapshotPath == "" && milvusCollection == "" {
		return nil, nil
	}

	opts := []tm.StoreOption{tm.WithSnapshotPath(snapshotPath)}
	if milvusCollection != "" {
		embCfg := config.EmbeddingConfigFromEnv()
		embedder, err := embedders.NewOpenAIEmbedder(embCfg)
		if err != nil {
			return nil, fmt.Errorf("vector search requires an embedder: %w", err)
		}
		port, _ := strconv.Atoi(os.Getenv("MILVUS_PORT"))
		milvus, err := tm.NewMilvusDB(tm.MilvusConfig{
			Host:       os.Getenv("MILVUS_HOST"),
			Port:       port,
			Collection: milvusCollection,
			Dimension:  embCfg.Dim,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, tm.WithMilvus(milvus), tm.WithEmbedder(embedder))
	}
	return tm.NewStore(opts...)
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("legalmt"),
		kong.Description("Hierarchical controllable machine translation for legal texts"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	output := os.Stderr
	var cleanup func()
	if cli.LogFile != "" {
		output, cleanup, err = logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer cleanup()
	}
	logger.Init(level, output, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
