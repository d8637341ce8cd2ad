package transcript

import (
	"fmt"
	"testing"

	"github.com/auricle-audio/auricle/pkg/provider/stt"
)

func seg(text string, start, end float64) stt.Segment {
	return stt.Segment{Text: text, StartS: start, EndS: end}
}

func TestAdd_SealsAtChunkDuration(t *testing.T) {
	b := NewBuffer(60)

	if c := b.Add(seg("first", 0, 25)); c != nil {
		t.Fatalf("chunk sealed at 25s, want nil")
	}
	if c := b.Add(seg("second", 25, 50)); c != nil {
		t.Fatalf("chunk sealed at 50s, want nil")
	}
	c := b.Add(seg("third", 50, 61))
	if c == nil {
		t.Fatal("no chunk sealed at 61s")
	}
	if c.Text != "first second third" {
		t.Errorf("text = %q", c.Text)
	}
	if c.Index != 0 {
		t.Errorf("index = %d, want 0", c.Index)
	}
	if c.StartS != 0 || c.EndS != 61 {
		t.Errorf("bounds = [%v, %v], want [0, 61]", c.StartS, c.EndS)
	}
	if c.SegmentCount != 3 {
		t.Errorf("segment count = %d, want 3", c.SegmentCount)
	}
	if b.PendingSegments() != 0 {
		t.Errorf("pending = %d after seal", b.PendingSegments())
	}
}

func TestAdd_SecondChunkIndexAdvances(t *testing.T) {
	b := NewBuffer(10)
	b.Add(seg("a", 0, 11))
	c := b.Add(seg("b", 11, 22))
	if c == nil {
		t.Fatal("no second chunk")
	}
	if c.Index != 1 {
		t.Errorf("index = %d, want 1", c.Index)
	}
	if c.StartS != 11 {
		t.Errorf("StartS = %v, want 11", c.StartS)
	}
	if b.ChunkCount() != 2 {
		t.Errorf("chunk count = %d, want 2", b.ChunkCount())
	}
}

func TestForceFinalize_SealsShortChunk(t *testing.T) {
	b := NewBuffer(60)
	b.Add(seg("short tail", 0, 5))

	c := b.ForceFinalize()
	if c == nil {
		t.Fatal("force finalize returned nil with pending segments")
	}
	if c.Text != "short tail" || c.SegmentCount != 1 {
		t.Errorf("chunk = %+v", c)
	}

	// Nothing left: a second call is a no-op.
	if c := b.ForceFinalize(); c != nil {
		t.Errorf("second force finalize = %+v, want nil", c)
	}
}

func TestFullText_IncludesSealedAndPending(t *testing.T) {
	b := NewBuffer(10)
	b.Add(seg("one", 0, 11))
	b.Add(seg("two", 11, 12))
	if got := b.FullText(); got != "one two" {
		t.Errorf("FullText = %q, want %q", got, "one two")
	}
	if b.TotalSegments() != 2 {
		t.Errorf("total segments = %d, want 2", b.TotalSegments())
	}
	if b.PendingSegments() != 1 {
		t.Errorf("pending = %d, want 1", b.PendingSegments())
	}
}

func TestAdd_ClampsRegressingStartTimes(t *testing.T) {
	b := NewBuffer(60)
	b.Add(seg("a", 10, 12))
	c := b.Add(seg("b", 5, 70)) // regressed start is shifted forward
	if c == nil {
		t.Fatal("expected sealed chunk after shift past duration")
	}
	if c.StartS != 10 {
		t.Errorf("StartS = %v, want 10", c.StartS)
	}
	if c.EndS != 75 {
		t.Errorf("EndS = %v, want 75", c.EndS)
	}
}

func TestPurge_DropsEverything(t *testing.T) {
	b := NewBuffer(10)
	b.Add(seg("a", 0, 11))
	b.Add(seg("b", 11, 12))
	b.Purge()

	if b.FullText() != "" || b.TotalSegments() != 0 || b.ChunkCount() != 0 || b.PendingSegments() != 0 {
		t.Errorf("buffer not empty after purge: %q %d %d %d",
			b.FullText(), b.TotalSegments(), b.ChunkCount(), b.PendingSegments())
	}
	if c := b.ForceFinalize(); c != nil {
		t.Errorf("force finalize after purge = %+v, want nil", c)
	}
}

func TestLowContent_NoSummaries(t *testing.T) {
	if !LowContent("plenty of real words here", 0) {
		t.Error("zero summaries must trip the guard")
	}
}

func TestLowContent_FillerDominated(t *testing.T) {
	if !LowContent("Thank you. Thank you. Uh, thanks. Um, you.", 1) {
		t.Error("filler-dominated short transcript must trip the guard")
	}
}

func TestLowContent_ShortButReal(t *testing.T) {
	if LowContent("We agreed to ship the pricing proposal on Friday.", 1) {
		t.Error("short real speech must not trip the guard")
	}
}

func TestLowContent_LongTranscriptNeverTrips(t *testing.T) {
	long := ""
	for i := 0; i < 15; i++ {
		long += "thank you "
	}
	// 30 words of pure filler still pass: the word threshold gates first.
	if LowContent(long, 1) {
		t.Error("transcript at the word threshold must not trip the guard")
	}
}

func TestLowContent_EmptyText(t *testing.T) {
	if !LowContent("", 1) {
		t.Error("empty transcript must trip the guard")
	}
}

func TestGuard_CustomPhrases(t *testing.T) {
	g := NewGuard([]string{"okay", "right"})
	if !g.LowContent("Okay. Right, okay! Right?", 1) {
		t.Error("custom filler set not applied")
	}
	if g.LowContent("Thank you thank you thank you", 1) {
		t.Error("default phrases leaked into custom guard")
	}
}

func TestGuard_LongestPhraseMatchesFirst(t *testing.T) {
	// "thank you" consumes both words; neither counts again as "you".
	g := NewGuard(nil)
	text := "thank you hello world thank you"
	// 6 words, 4 filler: ratio 0.667 under the threshold.
	if g.LowContent(text, 1) {
		t.Errorf("ratio should be below threshold for %q", text)
	}
}

func TestChunkSealing_ManySegments(t *testing.T) {
	b := NewBuffer(30)
	var chunks []*Chunk
	clock := 0.0
	for i := 0; i < 20; i++ {
		c := b.Add(seg(fmt.Sprintf("s%d", i), clock, clock+10))
		clock += 10
		if c != nil {
			chunks = append(chunks, c)
		}
	}
	b.ForceFinalize()

	// 200 s of audio at 30 s per chunk: 6 sealed in the loop plus the tail.
	if len(chunks) != 6 {
		t.Fatalf("sealed %d chunks in loop, want 6", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if i > 0 && c.StartS < chunks[i-1].EndS {
			t.Errorf("chunk %d overlaps previous: start %v < prev end %v", i, c.StartS, chunks[i-1].EndS)
		}
	}
	if b.ChunkCount() != 7 {
		t.Errorf("chunk count = %d, want 7", b.ChunkCount())
	}
}
