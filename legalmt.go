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

// Package legalmt is a hierarchical, controllable machine translation
// engine for legal texts.
//
// Translation runs in up to three rounds, each consuming the previous
// round's output:
//
//   - terminology: extract legal terms, resolve them against a SQLite
//     termbase, and translate under the resulting glossary
//   - syntax: align deontic, connective, conditional, and passive
//     patterns between source and translation, and repair what fell short
//   - discourse: retrieve how similar sentences were translated before
//     (BM25 plus optional Milvus vector search) and nudge the translation
//     toward those conventions
//
// Each round can gate (skip work that is already good enough) and select
// (generate candidates and pick the best), controlled per layer. The
// runner package executes ablation experiments over datasets, and the
// extraction package mines bilingual terminology from parallel corpora
// in a four-stage checkpointed pipeline.
package legalmt

import (
	"fmt"
	"runtime"
)

// Version information
const (
	Version   = "0.1.0-alpha"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Info contains version information
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersion returns version information
func GetVersion() Info {
	return Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a formatted version string
func (i Info) String() string {
	return fmt.Sprintf("legalmt %s (built %s, commit %s, %s %s)",
		i.Version, i.BuildDate, i.GitCommit, i.GoVersion, i.Platform)
}
