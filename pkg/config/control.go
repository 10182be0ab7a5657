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

package config

import (
	"fmt"
	"strings"
	"sync"
)

// Layer names for selection and gating controls.
const (
	LayerTerminology = "terminology"
	LayerSyntax      = "syntax"
	LayerDiscourse   = "discourse"
)

// TranslationControl captures the two orthogonal per-layer controls:
// candidate selection (output-level) and gating (input-level), plus their
// thresholds. It is process-wide, set once at startup, and treated as
// immutable afterwards.
type TranslationControl struct {
	SelectionEnabledLayers map[string]bool
	GatingEnabledLayers    map[string]bool
	NumCandidates          int

	TerminologyThreshold  float64 // min term confidence to keep
	SyntaxThreshold       float64 // evaluation >= threshold skips the rewrite
	DiscourseThreshold    float64 // same semantics for the discourse round
	TMSimilarityThreshold float64 // min TM similarity to keep a reference
}

// DefaultTranslationControl returns the built-in control settings:
// no selection, no gating.
func DefaultTranslationControl() *TranslationControl {
	return &TranslationControl{
		SelectionEnabledLayers: map[string]bool{},
		GatingEnabledLayers:    map[string]bool{},
		NumCandidates:          3,
		TerminologyThreshold:   0.6,
		SyntaxThreshold:        0.85,
		DiscourseThreshold:     0.75,
		TMSimilarityThreshold:  0.7,
	}
}

// ParseLayers parses a layer list argument. Accepted forms: "none", "all",
// "last" (the discourse layer), or a comma-separated subset of
// terminology,syntax,discourse.
func ParseLayers(arg string) (map[string]bool, error) {
	layers := map[string]bool{}
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "", "none":
		return layers, nil
	case "all":
		layers[LayerTerminology] = true
		layers[LayerSyntax] = true
		layers[LayerDiscourse] = true
		return layers, nil
	case "last":
		layers[LayerDiscourse] = true
		return layers, nil
	}

	for _, part := range strings.Split(arg, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		switch name {
		case LayerTerminology, LayerSyntax, LayerDiscourse:
			layers[name] = true
		case "":
		default:
			return nil, fmt.Errorf("unknown layer %q", name)
		}
	}
	return layers, nil
}

func (c *TranslationControl) SelectionEnabled(layer string) bool {
	return c.SelectionEnabledLayers[layer]
}

func (c *TranslationControl) GatingEnabled(layer string) bool {
	return c.GatingEnabledLayers[layer]
}

func (c *TranslationControl) Validate() error {
	if c.NumCandidates < 1 {
		return fmt.Errorf("num_candidates must be at least 1, got %d", c.NumCandidates)
	}
	for name, v := range map[string]float64{
		"term-gate-threshold":      c.TerminologyThreshold,
		"syntax-gate-threshold":    c.SyntaxThreshold,
		"discourse-gate-threshold": c.DiscourseThreshold,
		"tm-gate-threshold":        c.TMSimilarityThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %g", name, v)
		}
	}
	return nil
}

var (
	controlMu      sync.RWMutex
	currentControl = DefaultTranslationControl()
)

// SetTranslationControl installs the process-wide control settings. Called
// once during startup before any workflow runs.
func SetTranslationControl(c *TranslationControl) {
	controlMu.Lock()
	defer controlMu.Unlock()
	currentControl = c
}

// GetTranslationControl returns the process-wide control settings.
func GetTranslationControl() *TranslationControl {
	controlMu.RLock()
	defer controlMu.RUnlock()
	return currentControl
}
