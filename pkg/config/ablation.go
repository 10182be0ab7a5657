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

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Ablation describes one experiment configuration.
type Ablation struct {
	Hierarchical bool `koanf:"hierarchical" json:"hierarchical"`
	UseTermbase  bool `koanf:"use_termbase" json:"use_termbase"`
	UseTM        bool `koanf:"use_tm" json:"use_tm"`
	MaxRounds    int  `koanf:"max_rounds" json:"max_rounds"`
}

// DefaultAblations returns the built-in ablation presets.
func DefaultAblations() map[string]Ablation {
	return map[string]Ablation{
		"baseline": {
			Hierarchical: false,
			MaxRounds:    1,
		},
		"terminology": {
			Hierarchical: true,
			UseTermbase:  true,
			MaxRounds:    1,
		},
		"terminology_syntax": {
			Hierarchical: true,
			UseTermbase:  true,
			MaxRounds:    2,
		},
		"full": {
			Hierarchical: true,
			UseTermbase:  true,
			UseTM:        true,
			MaxRounds:    3,
		},
	}
}

// LoadAblations merges ablation overrides from a YAML file on top of the
// built-in presets. Values may reference environment variables with
// ${VAR} or ${VAR:-default}.
func LoadAblations(path string) (map[string]Ablation, error) {
	ablations := DefaultAblations()
	if path == "" {
		return ablations, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load ablation config %s: %w", path, err)
	}

	raw := ExpandEnvVarsInData(k.Raw())
	expanded := koanf.New(".")
	if m, ok := raw.(map[string]interface{}); ok {
		for name := range m {
			_ = expanded.Set(name, m[name])
		}
	}

	for _, name := range expanded.MapKeys("") {
		var ab Ablation
		if base, ok := ablations[name]; ok {
			ab = base
		}
		if err := expanded.Unmarshal(name, &ab); err != nil {
			return nil, fmt.Errorf("invalid ablation %q in %s: %w", name, path, err)
		}
		if ab.MaxRounds < 1 || ab.MaxRounds > 3 {
			return nil, fmt.Errorf("ablation %q: max_rounds must be 1..3, got %d", name, ab.MaxRounds)
		}
		ablations[name] = ab
	}

	return ablations, nil
}
