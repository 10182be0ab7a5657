package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAblations(t *testing.T) {
	ablations := DefaultAblations()
	require.Len(t, ablations, 4)

	assert.Equal(t, Ablation{Hierarchical: false, MaxRounds: 1}, ablations["baseline"])
	assert.Equal(t, Ablation{Hierarchical: true, UseTermbase: true, MaxRounds: 1}, ablations["terminology"])
	assert.Equal(t, Ablation{Hierarchical: true, UseTermbase: true, MaxRounds: 2}, ablations["terminology_syntax"])
	assert.Equal(t, Ablation{Hierarchical: true, UseTermbase: true, UseTM: true, MaxRounds: 3}, ablations["full"])
}

func TestLoadAblationsEmptyPath(t *testing.T) {
	ablations, err := LoadAblations("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAblations(), ablations)
}

func TestLoadAblationsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ablations.yaml")
	content := `full:
  max_rounds: 2
no_termbase:
  hierarchical: true
  use_tm: true
  max_rounds: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ablations, err := LoadAblations(path)
	require.NoError(t, err)

	// Override merges on top of the preset.
	full := ablations["full"]
	assert.Equal(t, 2, full.MaxRounds)
	assert.True(t, full.UseTermbase)
	assert.True(t, full.UseTM)

	custom, ok := ablations["no_termbase"]
	require.True(t, ok)
	assert.True(t, custom.Hierarchical)
	assert.False(t, custom.UseTermbase)
	assert.True(t, custom.UseTM)

	// Untouched presets survive.
	assert.Equal(t, DefaultAblations()["baseline"], ablations["baseline"])
}

func TestLoadAblationsRejectsBadRounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ablations.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broken:\n  hierarchical: true\n  max_rounds: 7\n"), 0o644))

	_, err := LoadAblations(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_rounds")
}
