package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLayers(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		want    map[string]bool
		wantErr bool
	}{
		{name: "none", arg: "none", want: map[string]bool{}},
		{name: "empty", arg: "", want: map[string]bool{}},
		{name: "all", arg: "all", want: map[string]bool{
			LayerTerminology: true, LayerSyntax: true, LayerDiscourse: true,
		}},
		{name: "last is discourse", arg: "last", want: map[string]bool{LayerDiscourse: true}},
		{name: "csv subset", arg: "terminology,syntax", want: map[string]bool{
			LayerTerminology: true, LayerSyntax: true,
		}},
		{name: "csv with spaces", arg: " syntax , discourse ", want: map[string]bool{
			LayerSyntax: true, LayerDiscourse: true,
		}},
		{name: "unknown layer", arg: "grammar", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLayers(tt.arg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultTranslationControl(t *testing.T) {
	control := DefaultTranslationControl()
	require.NoError(t, control.Validate())

	assert.Equal(t, 3, control.NumCandidates)
	assert.InDelta(t, 0.6, control.TerminologyThreshold, 1e-9)
	assert.InDelta(t, 0.85, control.SyntaxThreshold, 1e-9)
	assert.InDelta(t, 0.75, control.DiscourseThreshold, 1e-9)
	assert.InDelta(t, 0.7, control.TMSimilarityThreshold, 1e-9)

	assert.False(t, control.SelectionEnabled(LayerTerminology))
	assert.False(t, control.GatingEnabled(LayerSyntax))
}

func TestTranslationControlValidate(t *testing.T) {
	control := DefaultTranslationControl()
	control.NumCandidates = 0
	assert.Error(t, control.Validate())

	control = DefaultTranslationControl()
	control.SyntaxThreshold = 1.5
	assert.Error(t, control.Validate())
}

func TestTranslationControlSingleton(t *testing.T) {
	original := GetTranslationControl()
	defer SetTranslationControl(original)

	custom := DefaultTranslationControl()
	custom.GatingEnabledLayers[LayerSyntax] = true
	SetTranslationControl(custom)

	assert.True(t, GetTranslationControl().GatingEnabled(LayerSyntax))
}
