package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBLEU(t *testing.T) {
	assert.InDelta(t, 1.0, BLEU("the party shall pay damages", "the party shall pay damages"), 1e-9)
	assert.Equal(t, 0.0, BLEU("", "the party shall pay"))
	assert.Equal(t, 0.0, BLEU("the party shall pay", ""))

	perfect := BLEU("the party shall pay damages", "the party shall pay damages")
	partial := BLEU("the party must pay losses", "the party shall pay damages")
	unrelated := BLEU("entirely different words here now", "the party shall pay damages")
	assert.Greater(t, perfect, partial)
	assert.Greater(t, partial, unrelated)
}

func TestBLEUBrevityPenalty(t *testing.T) {
	full := BLEU("the party shall pay damages", "the party shall pay damages")
	truncated := BLEU("the party", "the party shall pay damages")
	assert.Less(t, truncated, full)
}

func TestChrF(t *testing.T) {
	assert.InDelta(t, 1.0, ChrF("force majeure", "force majeure"), 1e-9)
	assert.Equal(t, 0.0, ChrF("", "force majeure"))

	close := ChrF("the contract may be rescinded", "the contract may be terminated")
	far := ChrF("unrelated sentence", "the contract may be terminated")
	assert.Greater(t, close, far)
}

func TestLexicalOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, LexicalOverlap("the contract", "the contract"), 1e-9)
	assert.Equal(t, 0.0, LexicalOverlap("", "the contract"))
	assert.Equal(t, 0.0, LexicalOverlap("unrelated words", "the contract"))

	// "the contract may" vs "the contract shall": 2 shared of 3 each.
	assert.InDelta(t, 2.0/3.0, LexicalOverlap("the contract may", "the contract shall"), 1e-9)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0, 2}, []float32{1, 0, 2}), 1e-6)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}))
	// Opposed vectors clamp to zero.
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 1}, []float32{-1, -1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestTermbaseAccuracy(t *testing.T) {
	hyp := "In the event of force majeure, the contract may be rescinded."
	assert.Equal(t, 1.0, TermbaseAccuracy(hyp, nil))
	assert.Equal(t, 1.0, TermbaseAccuracy(hyp, []string{"force majeure"}))
	assert.Equal(t, 0.5, TermbaseAccuracy(hyp, []string{"force majeure", "liquidated damages"}))
	assert.Equal(t, 0.0, TermbaseAccuracy(hyp, []string{"liquidated damages"}))
}

func TestDeonticPreservation(t *testing.T) {
	ref := "The lessee shall pay rent and shall not sublet the premises."

	assert.Equal(t, 1.0, DeonticPreservation("The lessee shall pay rent and shall not sublet.", ref))
	// "shall not" dropped: one of two reference markers preserved.
	assert.Equal(t, 0.5, DeonticPreservation("The lessee shall pay rent and may sublet.", ref))
	// No markers in the reference means nothing to preserve.
	assert.Equal(t, 1.0, DeonticPreservation("anything", "The lessee pays rent."))
}

func TestDeonticMarkersNotDoubleCounted(t *testing.T) {
	// "shall not" in the reference must not be satisfied by a bare "shall".
	ref := "The tenant shall not assign the lease."
	assert.Equal(t, 0.0, DeonticPreservation("The tenant shall assign the lease.", ref))
}

func TestConditionalLogicPreservation(t *testing.T) {
	ref := "If the goods are defective, the buyer may reject them unless notice was waived."
	assert.Equal(t, 1.0, ConditionalLogicPreservation("If defective, the buyer rejects unless waived.", ref))
	assert.Equal(t, 0.5, ConditionalLogicPreservation("If the goods are defective the buyer rejects them.", ref))
}
