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

package extraction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Checkpoint holds pipeline progress: the stage currently running, how
// many input waves of that stage finished, and each completed stage's
// full output so later stages can restart without redoing earlier ones.
type Checkpoint struct {
	Stage          int        `json:"stage"`
	CompletedWaves int        `json:"completed_waves"`
	Extracted      []TermPair `json:"extracted,omitempty"`
	QualityChecked []TermPair `json:"quality_checked,omitempty"`
	Normalized     []TermPair `json:"normalized,omitempty"`
	UpdatedAt      string     `json:"updated_at"`

	path        string
	snapshotDir string
	mu          sync.Mutex
}

// NewCheckpoint returns a fresh checkpoint bound to path, ignoring any
// state already on disk.
func NewCheckpoint(path string) *Checkpoint {
	return &Checkpoint{path: path}
}

// LoadCheckpoint reads the checkpoint file, returning an empty
// checkpoint when none exists yet.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	cp := &Checkpoint{path: path}
	if path == "" {
		return cp, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cp, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}
	cp.path = path
	return cp, nil
}

// Save writes the checkpoint atomically via a temp file rename, so an
// interrupt mid-write never corrupts resumable state.
func (cp *Checkpoint) Save() error {
	if cp.path == "" {
		return nil
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()

	cp.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cp.path), 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	tmp := cp.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, cp.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return cp.writeSnapshots()
}

// writeSnapshots mirrors each completed stage's output into its own
// file under the snapshot directory, so stage output can be inspected
// or post-processed without parsing the whole checkpoint.
func (cp *Checkpoint) writeSnapshots() error {
	if cp.snapshotDir == "" {
		return nil
	}
	if err := os.MkdirAll(cp.snapshotDir, 0o755); err != nil {
		return fmt.Errorf("failed to create stage directory: %w", err)
	}
	for _, stage := range []struct {
		name  string
		terms []TermPair
	}{
		{"extracted.json", cp.Extracted},
		{"quality_checked.json", cp.QualityChecked},
		{"normalized.json", cp.Normalized},
	} {
		if len(stage.terms) == 0 {
			continue
		}
		data, err := json.MarshalIndent(stage.terms, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal stage snapshot %s: %w", stage.name, err)
		}
		if err := os.WriteFile(filepath.Join(cp.snapshotDir, stage.name), data, 0o644); err != nil {
			return fmt.Errorf("failed to write stage snapshot %s: %w", stage.name, err)
		}
	}
	return nil
}

// beginStage resets wave progress when entering a new stage; resuming
// the same stage keeps the recorded progress.
func (cp *Checkpoint) beginStage(stage int) int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if cp.Stage != stage {
		cp.Stage = stage
		cp.CompletedWaves = 0
	}
	return cp.CompletedWaves
}
