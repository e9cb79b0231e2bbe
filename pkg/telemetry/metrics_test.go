package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New(prometheus.NewRegistry(), zerolog.Nop())
}

func TestRecordFileIndexed_AccumulatesRunSummary(t *testing.T) {
	m := newTestMetrics(t)
	m.StartRun()

	m.RecordFileIndexed(3)
	m.RecordFileIndexed(5)

	summary := m.RunSummary()
	if summary.FilesIndexed != 2 {
		t.Errorf("expected 2 files indexed, got %d", summary.FilesIndexed)
	}
	if summary.ChunksEmbedded != 8 {
		t.Errorf("expected 8 chunks embedded, got %d", summary.ChunksEmbedded)
	}
}

func TestStartRun_ResetsCounters(t *testing.T) {
	m := newTestMetrics(t)
	m.StartRun()
	m.RecordFileIndexed(10)

	m.StartRun()
	summary := m.RunSummary()
	if summary.FilesIndexed != 0 || summary.ChunksEmbedded != 0 {
		t.Errorf("expected counters reset, got %+v", summary)
	}
}

func TestRunSummary_DurationIncreasesOverTime(t *testing.T) {
	m := newTestMetrics(t)
	m.StartRun()
	time.Sleep(2 * time.Millisecond)

	if m.RunSummary().Duration <= 0 {
		t.Error("expected a positive run duration")
	}
}

func TestRecordEmbeddingCall_DoesNotPanic(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordEmbeddingCall("success", 10*time.Millisecond)
	m.RecordEmbeddingCall("retried", 20*time.Millisecond)
	m.RecordEmbeddingCall("failed", 30*time.Millisecond)
}

func TestRecordRunFinished_CancelledIncrementsCancellationCounter(t *testing.T) {
	m := newTestMetrics(t)
	m.StartRun()
	m.RecordRunFinished("full", "cancelled")

	if got := testutil.ToFloat64(m.CancellationsTotal); got != 1 {
		t.Errorf("expected cancellations counter to be 1, got %v", got)
	}
}
