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
	"strings"

	"github.com/kadirpekel/legalmt/pkg/config"
	"github.com/kadirpekel/legalmt/pkg/embedders"
	"github.com/kadirpekel/legalmt/pkg/evaluation"
)

// EvaluateCmd scores hypothesis translations against references.
// Input is a JSON array or JSONL of segments with source_text,
// hypothesis, and reference fields.
type EvaluateCmd struct {
	Input  string `help:"Segments file (JSON array or JSONL)." required:"" type:"path"`
	Output string `help:"Per-segment scores output (JSON). Empty prints the aggregate only." type:"path"`

	SourceLang string `name:"source-lang" default:"zh"`
	TargetLang string `name:"target-lang" default:"en"`

	Judge    bool `help:"Enable LLM-judged direct assessment."`
	Semantic bool `help:"Enable embedding-based semantic similarity."`
}

func (c *EvaluateCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	segments, err := loadSegments(c.Input)
	if err != nil {
		return err
	}

	var opts []evaluation.EvaluatorOption
	if c.Judge {
		client, err := newLLMClient()
		if err != nil {
			return err
		}
		opts = append(opts, evaluation.WithJudge(client))
	}
	if c.Semantic {
		embedder, err := embedders.NewOpenAIEmbedder(config.EmbeddingConfigFromEnv())
		if err != nil {
			return fmt.Errorf("semantic scoring requires an embedder: %w", err)
		}
		opts = append(opts, evaluation.WithSemanticScoring(embedder))
	}

	evaluator := evaluation.NewEvaluator(c.SourceLang, c.TargetLang, opts...)
	scores := evaluator.EvaluateBatch(ctx, segments)
	aggregate := evaluation.AggregateScores(scores)

	if c.Output != "" {
		out := struct {
			Aggregate evaluation.Aggregate       `json:"aggregate"`
			Segments  []evaluation.SegmentScores `json:"segments"`
		}{Aggregate: aggregate, Segments: scores}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal scores: %w", err)
		}
		if err := os.WriteFile(c.Output, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", c.Output, err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(aggregate)
}

func loadSegments(path string) ([]evaluation.Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read segments: %w", err)
	}

	var segments []evaluation.Segment
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &segments); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	} else {
		for lineNo, line := range strings.Split(trimmed, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var seg evaluation.Segment
			if err := json.Unmarshal([]byte(line), &seg); err != nil {
				return nil, fmt.Errorf("failed to decode %s line %d: %w", path, lineNo+1, err)
			}
			segments = append(segments, seg)
		}
	}

	for i, seg := range segments {
		if seg.Hypothesis == "" || seg.Reference == "" {
			return nil, fmt.Errorf("segment %d is missing hypothesis or reference", i+1)
		}
	}
	return segments, nil
}
