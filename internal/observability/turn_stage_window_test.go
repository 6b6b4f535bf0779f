package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTurnStageWindowSnapshot(t *testing.T) {
	w := newTurnStageWindow(8)
	w.Observe(StageUserToFirstAudio, 500)
	w.Observe(StageUserToFirstAudio, 700)
	w.Observe(StageUserToFirstAudio, 900)
	w.ObserveIndicator("interrupted")
	w.ObserveIndicator("interrupted")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageUserToFirstAudio {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageUserToFirstAudio)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 1200 {
		t.Fatalf("TargetP95MS = %.2f, want 1200", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want interrupted x2", snap.Indicators)
	}
}

func TestTurnStageWindowWraps(t *testing.T) {
	w := newTurnStageWindow(2)
	w.Observe("x", 1)
	w.Observe("x", 2)
	w.Observe("x", 3)
	w.Observe("", 5)
	w.Observe("x", -1)

	snap := w.Snapshot()
	if len(snap.Stages) != 1 || snap.Stages[0].Samples != 2 || snap.Stages[0].LastMS != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap.Stages)
	}
	w.Reset()
	if len(w.Snapshot().Stages) != 0 {
		t.Fatalf("Reset() left stages behind")
	}
}

func TestMetricsHandlerServesOwnRegistry(t *testing.T) {
	m := NewMetrics("kindred_test")
	other := NewMetrics("kindred_test")
	m.ObserveFirstAudioLatency(420 * time.Millisecond)
	m.ToolCalls.WithLabelValues("changeMode", "ok").Inc()
	other.PlaybackFlushes.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"kindred_test_first_audio_latency_ms", `kindred_test_tool_calls_total{outcome="ok",tool="changeMode"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}

	snap := m.TurnStages()
	if len(snap.Stages) != 1 || snap.Stages[0].LastMS != 420 {
		t.Fatalf("TurnStages() = %+v, want one 420ms sample", snap.Stages)
	}
}
