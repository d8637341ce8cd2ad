// Package transcript maintains the in-memory rolling transcript of an active
// session and decides when enough material has accumulated to seal a chunk
// for the MAP phase.
//
// Nothing in this package touches disk. The buffer holds segments only until
// they are folded into a sealed [Chunk]; sealed chunks carry their joined
// text and timing and are immutable from then on.
package transcript

import (
	"strings"
	"sync"

	"github.com/auricle-audio/auricle/pkg/provider/stt"
)

// DefaultChunkDurationSeconds is the material a chunk must span before it is
// sealed and handed to the MAP worker.
const DefaultChunkDurationSeconds = 60.0

// Chunk is a sealed, ordered group of transcript segments.
type Chunk struct {
	// Index is the zero-based position of this chunk within the session.
	Index int

	// Text is the chunk's segments joined with single spaces.
	Text string

	// StartS and EndS bound the chunk on the session's capture clock.
	StartS float64
	EndS   float64

	// SegmentCount is the number of segments folded into this chunk.
	SegmentCount int
}

// Buffer accumulates segments and seals chunks once they span at least the
// configured duration. Safe for concurrent use.
type Buffer struct {
	mu sync.Mutex

	chunkDuration float64

	pending []stt.Segment

	allText       []string
	arrivals      int
	chunkCount    int
	lastStartS    float64
	currentStartS float64
	haveStart     bool
}

// NewBuffer returns a Buffer sealing chunks at chunkDurationSeconds.
// Non-positive values fall back to DefaultChunkDurationSeconds.
func NewBuffer(chunkDurationSeconds float64) *Buffer {
	if chunkDurationSeconds <= 0 {
		chunkDurationSeconds = DefaultChunkDurationSeconds
	}
	return &Buffer{chunkDuration: chunkDurationSeconds}
}

// Add appends one segment and returns a sealed chunk when the pending
// material now spans at least the chunk duration, nil otherwise. Segment
// start times are clamped to be non-decreasing across calls.
func (b *Buffer) Add(seg stt.Segment) *Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	if seg.StartS < b.lastStartS {
		shift := b.lastStartS - seg.StartS
		seg.StartS += shift
		seg.EndS += shift
	}
	b.lastStartS = seg.StartS

	if !b.haveStart {
		b.currentStartS = seg.StartS
		b.haveStart = true
	}

	b.pending = append(b.pending, seg)
	b.allText = append(b.allText, seg.Text)
	b.arrivals++

	if seg.EndS-b.currentStartS >= b.chunkDuration {
		return b.seal()
	}
	return nil
}

// ForceFinalize seals whatever is pending regardless of duration. Returns
// nil when no segments are pending.
func (b *Buffer) ForceFinalize() *Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	return b.seal()
}

// seal folds the pending segments into a chunk. Caller holds b.mu.
func (b *Buffer) seal() *Chunk {
	texts := make([]string, 0, len(b.pending))
	for _, seg := range b.pending {
		texts = append(texts, seg.Text)
	}
	c := &Chunk{
		Index:        b.chunkCount,
		Text:         strings.Join(texts, " "),
		StartS:       b.currentStartS,
		EndS:         b.pending[len(b.pending)-1].EndS,
		SegmentCount: len(b.pending),
	}
	b.chunkCount++
	b.pending = nil
	b.haveStart = false
	return c
}

// FullText returns every segment text added so far, sealed or pending,
// joined with single spaces.
func (b *Buffer) FullText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.allText, " ")
}

// PendingSegments returns the number of segments not yet sealed into a chunk.
func (b *Buffer) PendingSegments() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// TotalSegments returns the number of segments ever added.
func (b *Buffer) TotalSegments() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arrivals
}

// ChunkCount returns the number of chunks sealed so far.
func (b *Buffer) ChunkCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chunkCount
}

// Purge drops all buffered text and counters. Called at session teardown so
// transcript material does not outlive its session.
func (b *Buffer) Purge() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	b.allText = nil
	b.arrivals = 0
	b.chunkCount = 0
	b.lastStartS = 0
	b.currentStartS = 0
	b.haveStart = false
}
