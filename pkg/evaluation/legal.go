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

package evaluation

import "strings"

// Deontic and conditional marker inventories for the legal-fidelity
// checks. Matching is lexical on the reference and hypothesis, which is
// crude but deterministic and language-tool free.
var (
	deonticMarkers = []string{
		"shall not", "must not", "may not", "shall", "must", "may",
		"is required to", "is prohibited from", "is entitled to",
	}
	conditionalMarkers = []string{
		"if", "unless", "where", "provided that", "in the event",
		"in case", "subject to", "except",
	}
)

// TermbaseAccuracy is the fraction of expected target terms that appear
// in the hypothesis. Terms the sentence was not supposed to contain are
// not penalized; an empty expectation scores 1.0.
func TermbaseAccuracy(hypothesis string, expectedTargets []string) float64 {
	if len(expectedTargets) == 0 {
		return 1.0
	}
	hyp := strings.ToLower(hypothesis)
	found := 0
	for _, target := range expectedTargets {
		if target == "" {
			continue
		}
		if strings.Contains(hyp, strings.ToLower(target)) {
			found++
		}
	}
	return float64(found) / float64(len(expectedTargets))
}

// DeonticPreservation compares deontic marker usage between reference
// and hypothesis. Both empty scores 1.0.
func DeonticPreservation(hypothesis, reference string) float64 {
	return markerPreservation(hypothesis, reference, deonticMarkers)
}

// ConditionalLogicPreservation does the same for conditional markers.
func ConditionalLogicPreservation(hypothesis, reference string) float64 {
	return markerPreservation(hypothesis, reference, conditionalMarkers)
}

// markerPreservation is recall of the reference's markers in the
// hypothesis. Longer markers are matched first and consumed, so "shall
// not" is not double-counted as "shall".
func markerPreservation(hypothesis, reference string, markers []string) float64 {
	refCounts := countMarkers(strings.ToLower(reference), markers)
	if len(refCounts) == 0 {
		return 1.0
	}
	hypCounts := countMarkers(strings.ToLower(hypothesis), markers)

	expected, preserved := 0, 0
	for marker, refCount := range refCounts {
		expected += refCount
		if hypCount := hypCounts[marker]; hypCount < refCount {
			preserved += hypCount
		} else {
			preserved += refCount
		}
	}
	return float64(preserved) / float64(expected)
}

func countMarkers(text string, markers []string) map[string]int {
	counts := make(map[string]int)
	for _, marker := range markers {
		n := strings.Count(text, marker)
		if n > 0 {
			counts[marker] = n
			text = strings.ReplaceAll(text, marker, "\x00")
		}
	}
	return counts
}
