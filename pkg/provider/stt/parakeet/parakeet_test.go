package parakeet

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

func newTranscribeServer(t *testing.T, texts []string) (*httptest.Server, *[]string) {
	t.Helper()
	var models []string
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("path = %q, want /transcribe", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("audio"); err != nil {
			t.Errorf("missing audio file field: %v", err)
		}
		models = append(models, r.FormValue("model"))
		text := ""
		if calls < len(texts) {
			text = texts[calls]
		}
		calls++
		json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	return srv, &models
}

func tone(seconds float64, rate int) []float32 {
	n := int(seconds * float64(rate))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.4 * math.Sin(2*math.Pi*330*float64(i)/float64(rate)))
	}
	return out
}

func TestNew_RequiresServerURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty serverURL")
	}
}

func TestPush_DefaultModelSent(t *testing.T) {
	srv, models := newTranscribeServer(t, []string{"good afternoon"})
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := p.OpenSession(context.Background(), stt.SessionConfig{CaptureSampleRate: 16000})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	segs, err := tr.Push(tone(2.0, 16000))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "good afternoon" {
		t.Fatalf("segments = %+v", segs)
	}
	if len(*models) != 1 || (*models)[0] != DefaultModel {
		t.Errorf("model sent = %v, want %q", *models, DefaultModel)
	}
}

func TestPush_SessionModelOverridesDefault(t *testing.T) {
	srv, models := newTranscribeServer(t, []string{"x"})
	defer srv.Close()

	p, _ := New(srv.URL)
	tr, _ := p.OpenSession(context.Background(), stt.SessionConfig{
		CaptureSampleRate: 16000,
		Model:             "mlx-community/parakeet-tdt-0.6b-v2",
	})
	if _, err := tr.Push(tone(2.0, 16000)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if (*models)[0] != "mlx-community/parakeet-tdt-0.6b-v2" {
		t.Errorf("model sent = %q", (*models)[0])
	}
}

func TestPush_BuffersBelowMin(t *testing.T) {
	srv, _ := newTranscribeServer(t, nil)
	defer srv.Close()

	p, _ := New(srv.URL)
	tr, _ := p.OpenSession(context.Background(), stt.SessionConfig{CaptureSampleRate: 48000})

	segs, err := tr.Push(tone(1.5, 48000))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("segments = %d, want 0", len(segs))
	}
	if got := tr.BufferedSeconds(); math.Abs(got-1.5) > 1e-9 {
		t.Errorf("BufferedSeconds = %v, want 1.5", got)
	}
}

func TestFlush_DrainsBuffer(t *testing.T) {
	srv, _ := newTranscribeServer(t, []string{"closing remarks"})
	defer srv.Close()

	p, _ := New(srv.URL)
	tr, _ := p.OpenSession(context.Background(), stt.SessionConfig{CaptureSampleRate: 16000})

	tr.Push(tone(1.0, 16000))
	segs, err := tr.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "closing remarks" {
		t.Fatalf("segments = %+v", segs)
	}
	if tr.BufferedSeconds() != 0 {
		t.Errorf("BufferedSeconds = %v after flush", tr.BufferedSeconds())
	}
}

func TestPush_SegmentClockMonotonic(t *testing.T) {
	srv, _ := newTranscribeServer(t, []string{"one", "two"})
	defer srv.Close()

	p, _ := New(srv.URL)
	tr, _ := p.OpenSession(context.Background(), stt.SessionConfig{
		CaptureSampleRate: 16000,
		MinBufferSeconds:  2,
	})

	first, _ := tr.Push(tone(2.0, 16000))
	second, _ := tr.Push(tone(2.0, 16000))
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("want one segment per push, got %d and %d", len(first), len(second))
	}
	if second[0].StartS < first[0].EndS {
		t.Errorf("second segment starts at %v before first ends at %v", second[0].StartS, first[0].EndS)
	}
}

func TestClose_RejectsFurtherUse(t *testing.T) {
	srv, _ := newTranscribeServer(t, nil)
	defer srv.Close()

	p, _ := New(srv.URL)
	tr, _ := p.OpenSession(context.Background(), stt.SessionConfig{CaptureSampleRate: 16000})
	tr.Close()
	if _, err := tr.Push(tone(0.1, 16000)); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Push after close = %v, want ErrSessionClosed", err)
	}
}

func TestPush_ServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mlx runtime error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	tr, _ := p.OpenSession(context.Background(), stt.SessionConfig{CaptureSampleRate: 16000})
	if _, err := tr.Push(tone(3.0, 16000)); err == nil {
		t.Error("expected error from failing server")
	}
}
