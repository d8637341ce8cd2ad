package transcript

import (
	"testing"

	"github.com/auricle-audio/auricle/pkg/provider/stt"
)

func TestVocab_EmptyIsIdentity(t *testing.T) {
	v := NewVocab(nil)
	if !v.Empty() {
		t.Error("Empty() = false for nil vocabulary")
	}
	text, reps := v.CorrectText("anything at all")
	if text != "anything at all" {
		t.Errorf("CorrectText = %q, want input unchanged", text)
	}
	if len(reps) != 0 {
		t.Errorf("replacements = %d, want 0", len(reps))
	}

	v = NewVocab([]string{"", "   "})
	if !v.Empty() {
		t.Error("Empty() = false for blank-only vocabulary")
	}
}

func TestVocab_CaseNormalization(t *testing.T) {
	v := NewVocab([]string{"Acme"})
	text, reps := v.CorrectText("we met acme yesterday")
	if text != "we met Acme yesterday" {
		t.Errorf("CorrectText = %q", text)
	}
	if len(reps) != 1 {
		t.Fatalf("replacements = %d, want 1", len(reps))
	}
	if reps[0].Original != "acme" || reps[0].Term != "Acme" {
		t.Errorf("replacement = %+v", reps[0])
	}
	if reps[0].Score != 1.0 {
		t.Errorf("score = %v, want 1.0 for an exact match", reps[0].Score)
	}
}

func TestVocab_ExactTermUntouched(t *testing.T) {
	v := NewVocab([]string{"Acme"})
	text, reps := v.CorrectText("Acme is here")
	if text != "Acme is here" {
		t.Errorf("CorrectText = %q", text)
	}
	if len(reps) != 0 {
		t.Errorf("replacements = %d, want 0 when nothing changed", len(reps))
	}
}

func TestVocab_TrailingPunctuationPreserved(t *testing.T) {
	v := NewVocab([]string{"Acme"})
	text, reps := v.CorrectText("we met acme.")
	if text != "we met Acme." {
		t.Errorf("CorrectText = %q", text)
	}
	if len(reps) != 1 {
		t.Fatalf("replacements = %d, want 1", len(reps))
	}
	if reps[0].Original != "acme." {
		t.Errorf("Original = %q, want window including punctuation", reps[0].Original)
	}
}

func TestVocab_PhoneticMatch(t *testing.T) {
	v := NewVocab([]string{"John"})
	text, reps := v.CorrectText("jon said hi")
	if text != "John said hi" {
		t.Errorf("CorrectText = %q", text)
	}
	if len(reps) != 1 {
		t.Fatalf("replacements = %d, want 1", len(reps))
	}
	if reps[0].Score >= 1.0 || reps[0].Score < defaultPhoneticThreshold {
		t.Errorf("score = %v, want within [%v, 1.0)", reps[0].Score, defaultPhoneticThreshold)
	}
}

func TestVocab_UnrelatedWordUntouched(t *testing.T) {
	v := NewVocab([]string{"Acme"})
	text, reps := v.CorrectText("banana")
	if text != "banana" {
		t.Errorf("CorrectText = %q", text)
	}
	if len(reps) != 0 {
		t.Errorf("replacements = %d, want 0", len(reps))
	}
}

func TestVocab_MultiWordTerm(t *testing.T) {
	v := NewVocab([]string{"Acme Capital"})
	text, reps := v.CorrectText("call with acme capitol tomorrow")
	if text != "call with Acme Capital tomorrow" {
		t.Errorf("CorrectText = %q", text)
	}
	if len(reps) != 1 {
		t.Fatalf("replacements = %d, want 1", len(reps))
	}
	if reps[0].Original != "acme capitol" {
		t.Errorf("Original = %q", reps[0].Original)
	}
}

func TestVocab_SharedWordDoesNotSwallowWindow(t *testing.T) {
	v := NewVocab([]string{"Acme Capital"})
	text, reps := v.CorrectText("they raised capital quickly")
	if text != "they raised capital quickly" {
		t.Errorf("CorrectText = %q, want input unchanged", text)
	}
	if len(reps) != 0 {
		t.Errorf("replacements = %d, want 0", len(reps))
	}
}

func TestVocab_SplitWordMergesToTerm(t *testing.T) {
	v := NewVocab([]string{"BlackRock"})
	text, reps := v.CorrectText("the black rock mandate")
	if text != "the BlackRock mandate" {
		t.Errorf("CorrectText = %q", text)
	}
	if len(reps) != 1 {
		t.Fatalf("replacements = %d, want 1", len(reps))
	}
	if reps[0].Original != "black rock" {
		t.Errorf("Original = %q", reps[0].Original)
	}
}

func TestVocab_ThresholdOption(t *testing.T) {
	v := NewVocab([]string{"John"}, WithPhoneticThreshold(0.99))
	text, reps := v.CorrectText("jon said hi")
	if text != "jon said hi" {
		t.Errorf("CorrectText = %q, want unchanged at a strict threshold", text)
	}
	if len(reps) != 0 {
		t.Errorf("replacements = %d, want 0", len(reps))
	}
}

func TestVocab_CorrectSegments(t *testing.T) {
	v := NewVocab([]string{"Acme"})
	segs := []stt.Segment{
		{Text: "we met acme", StartS: 0, EndS: 4},
		{Text: "acme agreed", StartS: 4, EndS: 8},
	}
	corrected, reps := v.CorrectSegments(segs)
	if corrected[0].Text != "we met Acme" || corrected[1].Text != "Acme agreed" {
		t.Errorf("texts = %q, %q", corrected[0].Text, corrected[1].Text)
	}
	if corrected[0].StartS != 0 || corrected[0].EndS != 4 || corrected[1].StartS != 4 || corrected[1].EndS != 8 {
		t.Error("timestamps were modified")
	}
	if len(reps) != 2 {
		t.Errorf("replacements = %d, want 2", len(reps))
	}
}

func TestVocab_CorrectSegmentsEmptyVocab(t *testing.T) {
	v := NewVocab(nil)
	segs := []stt.Segment{{Text: "hello there", StartS: 0, EndS: 2}}
	corrected, reps := v.CorrectSegments(segs)
	if corrected[0].Text != "hello there" {
		t.Errorf("text = %q", corrected[0].Text)
	}
	if reps != nil {
		t.Errorf("replacements = %v, want nil", reps)
	}
}
