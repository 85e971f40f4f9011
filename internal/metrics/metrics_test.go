package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordIngest(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordIngest(IngestMiss, 12, 2*time.Second)
	m.RecordIngest(IngestHit, 0, 0)
	m.RecordIngest(IngestHit, 0, 0)
	m.RecordIngest(IngestEmpty, 0, 0)

	tests := []struct {
		result string
		want   float64
	}{
		{IngestMiss, 1},
		{IngestHit, 2},
		{IngestEmpty, 1},
		{IngestError, 0},
	}
	for _, tt := range tests {
		t.Run(tt.result, func(t *testing.T) {
			if got := testutil.ToFloat64(m.IngestTotal.WithLabelValues(tt.result)); got != tt.want {
				t.Errorf("IngestTotal{%s} = %v, want %v", tt.result, got, tt.want)
			}
		})
	}

	if got := testutil.ToFloat64(m.ChunksIndexed); got != 12 {
		t.Errorf("ChunksIndexed = %v, want 12", got)
	}
	if got := testutil.CollectAndCount(m.IngestDuration); got != 1 {
		t.Errorf("IngestDuration series = %d, want 1", got)
	}
}

func TestTurnStarted(t *testing.T) {
	m := New(prometheus.NewRegistry())

	done := m.TurnStarted("tutor")
	if got := testutil.ToFloat64(m.TurnsInFlight); got != 1 {
		t.Fatalf("TurnsInFlight = %v, want 1", got)
	}
	done(TurnOK)

	if got := testutil.ToFloat64(m.TurnsInFlight); got != 0 {
		t.Errorf("TurnsInFlight after done = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("tutor", TurnOK)); got != 1 {
		t.Errorf("TurnsTotal{tutor,ok} = %v, want 1", got)
	}
}

func TestRecordSearch(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordSearch(nil)
	m.RecordSearch(errors.New("boom"))
	m.RecordSearch(nil)

	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error = %v, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordIngest(IngestMiss, 3, time.Second)
	m.RecordSearch(nil)
	m.TurnStarted("plain")(TurnOK)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("registering twice on one registry should panic")
		}
	}()
	New(reg)
}
