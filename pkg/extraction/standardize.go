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
	"regexp"
	"sort"
	"strings"
)

// Standardize is stage 4, fully deterministic: validate normalizations,
// merge duplicates and composite variants, cap targets per source, and
// rank the result. Normalized forms become the primary terms; originals
// are preserved as backup. Only the language, weight, and cap fields of
// opts are consulted.
func Standardize(terms []TermPair, opts Options) []StandardTerm {
	confW, qualW := opts.ConfidenceWeight, opts.QualityWeight
	if confW == 0 && qualW == 0 {
		defaults := DefaultOptions()
		confW, qualW = defaults.ConfidenceWeight, defaults.QualityWeight
	}
	score := func(t TermPair) float64 {
		return confW*t.Confidence + qualW*t.QualityScore
	}

	// Reject model normalizations that drifted too far from the
	// original surface form.
	for i := range terms {
		if !isValidNormalization(terms[i].SourceTerm, terms[i].NormalizedSource, opts.SourceLang) {
			terms[i].NormalizedSource = terms[i].SourceTerm
		}
		if !isValidNormalization(terms[i].TargetTerm, terms[i].NormalizedTarget, opts.TargetLang) {
			terms[i].NormalizedTarget = terms[i].TargetTerm
		}
	}

	merged := mergeByNormalizedPair(terms, score)
	merged = mergeSingularIntoComposite(merged, score)
	merged = capTargetsPerSource(merged, opts.MaxTargetsPerSource, score)

	out := make([]StandardTerm, 0, len(merged))
	for _, t := range merged {
		out = append(out, StandardTerm{
			SourceTerm:         t.NormalizedSource,
			TargetTerm:         t.NormalizedTarget,
			OriginalSourceTerm: t.SourceTerm,
			OriginalTargetTerm: t.TargetTerm,
			Category:           t.Category,
			Confidence:         t.Confidence,
			QualityScore:       t.QualityScore,
			CombinedScore:      score(t),
			OccurrenceCount:    t.OccurrenceCount,
			EntryIDs:           t.EntryIDs,
			Law:                t.Law,
			Domain:             t.Domain,
			Year:               t.Year,
		})
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].SourceTerm != out[b].SourceTerm {
			return out[a].SourceTerm < out[b].SourceTerm
		}
		if out[a].CombinedScore != out[b].CombinedScore {
			return out[a].CombinedScore > out[b].CombinedScore
		}
		if out[a].Confidence != out[b].Confidence {
			return out[a].Confidence > out[b].Confidence
		}
		return out[a].QualityScore > out[b].QualityScore
	})
	return out
}

// termScorer ranks term pairs by weighted confidence and quality.
type termScorer func(TermPair) float64

// Digit runs, Arabic or CJK, abstracted when comparing structural
// markers like 第36条 and Article 36 against their 第XX条 / Article XX
// canonical forms.
var markerDigits = regexp.MustCompile(`[0-9〇一二三四五六七八九十百千]+`)

func abstractMarkers(s string) string {
	return markerDigits.ReplaceAllString(s, "XX")
}

// isValidNormalization decides whether a normalized form is a plausible
// variant of the original rather than a rewrite. Structural-marker
// abstraction is accepted for every language. CJK text is otherwise
// judged on character overlap alone; alphabetic text additionally
// accepts plural stripping, singular/plural composites, contained
// forms, and word overlap.
func isValidNormalization(original, normalized, lang string) bool {
	original = strings.TrimSpace(original)
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return false
	}
	if strings.EqualFold(original, normalized) {
		return true
	}
	if strings.EqualFold(abstractMarkers(original), abstractMarkers(normalized)) {
		return true
	}

	if lang == "zh" || lang == "ja" {
		return runeOverlapRatio(original, normalized) >= 0.3
	}

	lowOrig := strings.ToLower(original)
	lowNorm := strings.ToLower(normalized)

	if stripPlural(lowOrig) == stripPlural(lowNorm) {
		return true
	}

	// A singular/plural composite is valid when either side matches the
	// original's stem.
	if strings.Contains(lowNorm, "/") {
		for _, part := range strings.Split(lowNorm, "/") {
			if stripPlural(strings.TrimSpace(part)) == stripPlural(lowOrig) {
				return true
			}
		}
	}

	// One form contained in the other, without halving it.
	longer, shorter := lowOrig, lowNorm
	if len(shorter) > len(longer) {
		longer, shorter = shorter, longer
	}
	if strings.Contains(longer, shorter) && len(longer)-len(shorter) <= len(longer)/2 {
		return true
	}

	if wordOverlapRatio(lowOrig, lowNorm) >= 0.2 {
		return true
	}
	return runeOverlapRatio(lowOrig, lowNorm) >= 0.5
}

// stripPlural removes a common English plural suffix.
func stripPlural(s string) string {
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "es"):
		return strings.TrimSuffix(s, "es")
	case strings.HasSuffix(s, "s"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}

// wordOverlapRatio is shared words over the smaller word count.
func wordOverlapRatio(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}
	shared := 0
	seen := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := setA[w]; ok {
			shared++
		}
	}
	min := len(setA)
	if len(seen) < min {
		min = len(seen)
	}
	return float64(shared) / float64(min)
}

// runeOverlapRatio is shared characters over the smaller character set.
func runeOverlapRatio(a, b string) float64 {
	setA := make(map[rune]struct{})
	for _, r := range a {
		setA[r] = struct{}{}
	}
	setB := make(map[rune]struct{})
	for _, r := range b {
		setB[r] = struct{}{}
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for r := range setB {
		if _, ok := setA[r]; ok {
			shared++
		}
	}
	min := len(setA)
	if len(setB) < min {
		min = len(setB)
	}
	return float64(shared) / float64(min)
}

// mergeByNormalizedPair collapses entries sharing a normalized pair,
// keeping the best-scored representative and accumulating counts.
func mergeByNormalizedPair(terms []TermPair, score termScorer) []TermPair {
	seen := make(map[string]int, len(terms))
	out := make([]TermPair, 0, len(terms))
	for _, t := range terms {
		key := strings.ToLower(t.NormalizedSource) + "\x00" + strings.ToLower(t.NormalizedTarget)
		if i, ok := seen[key]; ok {
			if score(t) > score(out[i]) {
				count := out[i].OccurrenceCount
				ids := out[i].EntryIDs
				out[i] = t
				out[i].OccurrenceCount = count
				out[i].EntryIDs = ids
			}
			out[i].OccurrenceCount += t.OccurrenceCount
			out[i].EntryIDs = mergeEntryIDs(out[i].EntryIDs, t.EntryIDs)
			continue
		}
		if t.OccurrenceCount == 0 {
			t.OccurrenceCount = 1
		}
		seen[key] = len(out)
		out = append(out, t)
	}
	return out
}

// mergeSingularIntoComposite folds a plain target into a composite
// "singular/plural" target of the same source, so "right" and
// "right/rights" do not survive as separate entries.
func mergeSingularIntoComposite(terms []TermPair, score termScorer) []TermPair {
	bySource := make(map[string][]int)
	for i, t := range terms {
		bySource[strings.ToLower(t.NormalizedSource)] = append(bySource[strings.ToLower(t.NormalizedSource)], i)
	}

	absorbed := make(map[int]bool)
	for _, indices := range bySource {
		for _, ci := range indices {
			composite := terms[ci].NormalizedTarget
			if !strings.Contains(composite, "/") {
				continue
			}
			parts := strings.Split(strings.ToLower(composite), "/")
			for _, pi := range indices {
				if pi == ci || absorbed[pi] || absorbed[ci] {
					continue
				}
				plain := strings.ToLower(terms[pi].NormalizedTarget)
				for _, part := range parts {
					if strings.TrimSpace(part) == plain {
						terms[ci].OccurrenceCount += terms[pi].OccurrenceCount
						terms[ci].EntryIDs = mergeEntryIDs(terms[ci].EntryIDs, terms[pi].EntryIDs)
						if score(terms[pi]) > score(terms[ci]) {
							terms[ci].Confidence = terms[pi].Confidence
							terms[ci].QualityScore = terms[pi].QualityScore
						}
						absorbed[pi] = true
						break
					}
				}
			}
		}
	}

	out := make([]TermPair, 0, len(terms))
	for i, t := range terms {
		if !absorbed[i] {
			out = append(out, t)
		}
	}
	return out
}

// capTargetsPerSource keeps only the best targets for each source term.
func capTargetsPerSource(terms []TermPair, max int, score termScorer) []TermPair {
	bySource := make(map[string][]TermPair)
	var order []string
	for _, t := range terms {
		key := strings.ToLower(t.NormalizedSource)
		if _, ok := bySource[key]; !ok {
			order = append(order, key)
		}
		bySource[key] = append(bySource[key], t)
	}

	out := make([]TermPair, 0, len(terms))
	for _, key := range order {
		group := bySource[key]
		sort.SliceStable(group, func(a, b int) bool {
			return score(group[a]) > score(group[b])
		})
		if len(group) > max {
			group = group[:max]
		}
		out = append(out, group...)
	}
	return out
}
