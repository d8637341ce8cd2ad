package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auricle-audio/auricle/pkg/provider/stt"
)

// newInferenceServer returns an httptest server mimicking whisper-server's
// POST /inference endpoint, responding with text per request index.
func newInferenceServer(t *testing.T, texts []string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("path = %q, want /inference", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing wav file field: %v", err)
		}
		text := ""
		if calls < len(texts) {
			text = texts[calls]
		}
		calls++
		json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	return srv, &calls
}

func speech(seconds float64, rate int) []float32 {
	n := int(seconds * float64(rate))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
	}
	return out
}

func TestNew_RequiresServerURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty serverURL")
	}
}

func TestPush_BelowMinBuffersWithoutInference(t *testing.T) {
	srv, calls := newInferenceServer(t, nil)
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := p.OpenSession(context.Background(), stt.SessionConfig{CaptureSampleRate: 16000})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	segs, err := tr.Push(speech(1.0, 16000))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("segments = %d, want 0 below min buffer", len(segs))
	}
	if *calls != 0 {
		t.Errorf("inference calls = %d, want 0", *calls)
	}
	if got := tr.BufferedSeconds(); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("BufferedSeconds = %v, want 1.0", got)
	}
}

func TestPush_EmitsSegmentAtMinBuffer(t *testing.T) {
	srv, calls := newInferenceServer(t, []string{"hello there"})
	defer srv.Close()

	p, _ := New(srv.URL)
	tr, _ := p.OpenSession(context.Background(), stt.SessionConfig{CaptureSampleRate: 16000})

	segs, err := tr.Push(speech(2.5, 16000))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("segments = %d, want 1", len(segs))
	}
	if segs[0].Text != "hello there" {
		t.Errorf("text = %q", segs[0].Text)
	}
	if segs[0].StartS != 0 {
		t.Errorf("StartS = %v, want 0", segs[0].StartS)
	}
	if math.Abs(segs[0].EndS-2.5) > 1e-9 {
		t.Errorf("EndS = %v, want 2.5", segs[0].EndS)
	}
	if *calls != 1 {
		t.Errorf("inference calls = %d, want 1", *calls)
	}
	if tr.BufferedSeconds() != 0 {
		t.Errorf("BufferedSeconds = %v, want 0 after drain", tr.BufferedSeconds())
	}
}

func TestPush_LargeInputSplitsAtMaxBuffer(t *testing.T) {
	srv, calls := newInferenceServer(t, []string{"part one", "part two", "part three"})
	defer srv.Close()

	p, _ := New(srv.URL)
	tr, _ := p.OpenSession(context.Background(), stt.SessionConfig{
		CaptureSampleRate: 16000,
		MinBufferSeconds:  2,
		MaxBufferSeconds:  10,
	})

	// 25 s arrives at once: two full 10 s windows plus a 5 s window.
	segs, err := tr.Push(speech(25, 16000))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("segments = %d, want 3", len(segs))
	}
	if *calls != 3 {
		t.Errorf("inference calls = %d, want 3", *calls)
	}
	// Timestamps advance monotonically across windows.
	if segs[1].StartS <= segs[0].StartS || segs[2].StartS <= segs[1].StartS {
		t.Errorf("segment starts not monotonic: %v %v %v", segs[0].StartS, segs[1].StartS, segs[2].StartS)
	}
}

func TestPush_ResamplesCaptureRate(t *testing.T) {
	var wavBytes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(32 << 20)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		wavBytes = int(hdr.Size)
		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	tr, _ := p.OpenSession(context.Background(), stt.SessionConfig{
		CaptureSampleRate: 48000,
		MinBufferSeconds:  2,
	})

	if _, err := tr.Push(speech(2.0, 48000)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	// 2 s at 16 kHz model rate as int16 plus the 44-byte header.
	want := 44 + 2*16000*2
	if wavBytes != want {
		t.Errorf("wav upload = %d bytes, want %d", wavBytes, want)
	}
}

func TestPush_EmptyTextYieldsNoSegment(t *testing.T) {
	srv, _ := newInferenceServer(t, []string{""})
	defer srv.Close()

	p, _ := New(srv.URL)
	tr, _ := p.OpenSession(context.Background(), stt.SessionConfig{CaptureSampleRate: 16000})

	segs, err := tr.Push(speech(3.0, 16000))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("segments = %d, want 0 for silent window", len(segs))
	}
}

func TestFlush_TranscribesRemainder(t *testing.T) {
	srv, calls := newInferenceServer(t, []string{"tail end"})
	defer srv.Close()

	p, _ := New(srv.URL)
	tr, _ := p.OpenSession(context.Background(), stt.SessionConfig{CaptureSampleRate: 16000})

	if _, err := tr.Push(speech(1.0, 16000)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	segs, err := tr.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "tail end" {
		t.Fatalf("segments = %+v, want one %q segment", segs, "tail end")
	}
	if *calls != 1 {
		t.Errorf("inference calls = %d, want 1", *calls)
	}
	if tr.BufferedSeconds() != 0 {
		t.Errorf("BufferedSeconds = %v, want 0 after flush", tr.BufferedSeconds())
	}

	// Empty flush is a no-op.
	segs, err = tr.Flush()
	if err != nil || len(segs) != 0 {
		t.Errorf("second flush = %v, %v; want empty, nil", segs, err)
	}
}

func TestPush_ServerErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	tr, _ := p.OpenSession(context.Background(), stt.SessionConfig{CaptureSampleRate: 16000})

	if _, err := tr.Push(speech(3.0, 16000)); err == nil {
		t.Error("expected error from failing server")
	}
}

func TestClose_RejectsFurtherUse(t *testing.T) {
	srv, _ := newInferenceServer(t, nil)
	defer srv.Close()

	p, _ := New(srv.URL)
	tr, _ := p.OpenSession(context.Background(), stt.SessionConfig{CaptureSampleRate: 16000})

	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := tr.Push(speech(0.1, 16000)); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Push after close = %v, want ErrSessionClosed", err)
	}
	if _, err := tr.Flush(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Flush after close = %v, want ErrSessionClosed", err)
	}
}

func TestOpenSession_CancelledContext(t *testing.T) {
	p, _ := New("http://localhost:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.OpenSession(ctx, stt.SessionConfig{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
