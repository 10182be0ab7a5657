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

// Package evaluation scores translations: lexical metrics computed
// locally, semantic similarity through the embedder, and LLM-judged
// direct assessment, with per-ablation aggregation for experiments.
package evaluation

import (
	"math"
	"strings"
	"unicode"
)

// tokenize lowercases and splits on non-letter/digit boundaries, with
// CJK characters as individual tokens.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func ngrams(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], " ")]++
	}
	return counts
}

// BLEU computes smoothed sentence-level BLEU up to 4-grams with the
// brevity penalty. Smoothing adds one to zero n-gram matches so short
// legal sentences do not zero out.
func BLEU(hypothesis, reference string) float64 {
	hyp := tokenize(hypothesis)
	ref := tokenize(reference)
	if len(hyp) == 0 || len(ref) == 0 {
		return 0
	}

	const maxN = 4
	logSum := 0.0
	for n := 1; n <= maxN; n++ {
		hypGrams := ngrams(hyp, n)
		refGrams := ngrams(ref, n)

		total := 0
		matched := 0
		for gram, count := range hypGrams {
			total += count
			if refCount, ok := refGrams[gram]; ok {
				if count < refCount {
					matched += count
				} else {
					matched += refCount
				}
			}
		}
		if total == 0 {
			return 0
		}
		if matched == 0 {
			matched = 1
			total++
		}
		logSum += math.Log(float64(matched) / float64(total))
	}

	precision := math.Exp(logSum / maxN)
	brevity := 1.0
	if len(hyp) < len(ref) {
		brevity = math.Exp(1 - float64(len(ref))/float64(len(hyp)))
	}
	return brevity * precision
}

// ChrF computes chrF++: character n-grams up to order 6 plus word
// n-grams up to order 2, F-score with beta=2.
func ChrF(hypothesis, reference string) float64 {
	const (
		charOrder = 6
		wordOrder = 2
		beta      = 2.0
	)

	hypChars := charTokens(hypothesis)
	refChars := charTokens(reference)
	hypWords := tokenize(hypothesis)
	refWords := tokenize(reference)
	if len(hypChars) == 0 || len(refChars) == 0 {
		return 0
	}

	var fSum float64
	var fCount int
	addOrder := func(hyp, ref []string, n int) {
		hypGrams := ngrams(hyp, n)
		refGrams := ngrams(ref, n)
		hypTotal, refTotal, matched := 0, 0, 0
		for _, c := range hypGrams {
			hypTotal += c
		}
		for _, c := range refGrams {
			refTotal += c
		}
		for gram, count := range hypGrams {
			if refCount, ok := refGrams[gram]; ok {
				if count < refCount {
					matched += count
				} else {
					matched += refCount
				}
			}
		}
		if hypTotal == 0 || refTotal == 0 {
			return
		}
		precision := float64(matched) / float64(hypTotal)
		recall := float64(matched) / float64(refTotal)
		if precision+recall > 0 {
			fSum += (1 + beta*beta) * precision * recall / (beta*beta*precision + recall)
		}
		fCount++
	}

	for n := 1; n <= charOrder; n++ {
		addOrder(hypChars, refChars, n)
	}
	for n := 1; n <= wordOrder; n++ {
		addOrder(hypWords, refWords, n)
	}

	if fCount == 0 {
		return 0
	}
	return fSum / float64(fCount)
}

// charTokens lowercases and drops whitespace, one token per rune.
func charTokens(text string) []string {
	var tokens []string
	for _, r := range strings.ToLower(text) {
		if unicode.IsSpace(r) {
			continue
		}
		tokens = append(tokens, string(r))
	}
	return tokens
}

// LexicalOverlap is a token-level F1 between hypothesis and reference,
// the stand-in for learned quality estimation when no trained model is
// available.
func LexicalOverlap(hypothesis, reference string) float64 {
	hyp := tokenize(hypothesis)
	ref := tokenize(reference)
	if len(hyp) == 0 || len(ref) == 0 {
		return 0
	}

	refCounts := make(map[string]int, len(ref))
	for _, tok := range ref {
		refCounts[tok]++
	}
	matched := 0
	for _, tok := range hyp {
		if refCounts[tok] > 0 {
			refCounts[tok]--
			matched++
		}
	}
	if matched == 0 {
		return 0
	}

	precision := float64(matched) / float64(len(hyp))
	recall := float64(matched) / float64(len(ref))
	return 2 * precision * recall / (precision + recall)
}

// CosineSimilarity of two embedding vectors, clamped to [0,1].
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
