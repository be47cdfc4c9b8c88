package joints

import (
	"testing"
	"time"

	"github.com/candela-robotics/teleop.live/internal/timeutil"
)

func newTestSeries(window time.Duration) (*Series, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	series := NewSeries(SeriesConfig{Window: window, Clock: clock})
	return series, clock
}

func activeSample(ts time.Time) Sample {
	sample := Sample{Timestamp: ts}
	for i := range sample.Angles {
		angle := 0.1 * float64(i)
		sample.Angles[i] = &angle
		sample.Status[i] = StatusActive
	}
	return sample
}

func TestSeriesRecordAndWindow(t *testing.T) {
	series, clock := newTestSeries(30 * time.Second)

	for i := 0; i < 5; i++ {
		series.Record(activeSample(clock.Now()))
		clock.Advance(10 * time.Second)
	}

	// At t=50s with a 30s window, samples recorded at 0s and 10s are gone.
	series.Prune()
	if got := series.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}

	samples := series.Samples()
	cutoff := clock.Now().Add(-30 * time.Second)
	for i, s := range samples {
		if s.Timestamp.Before(cutoff) {
			t.Errorf("sample %d at %v is older than the window", i, s.Timestamp)
		}
	}
}

func TestSeriesRecordPayload(t *testing.T) {
	series, _ := newTestSeries(30 * time.Second)

	if err := series.RecordPayload([]byte(`{"base": 50}`)); err != nil {
		t.Fatalf("RecordPayload failed: %v", err)
	}
	if got := series.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}

	latest, ok := series.Latest()
	if !ok {
		t.Fatal("Latest() reported empty series")
	}
	if latest.Status[0] != StatusActive {
		t.Errorf("base status = %v, want active", latest.Status[0])
	}

	// Garbage payload is rejected without recording.
	if err := series.RecordPayload([]byte("garbage")); err == nil {
		t.Error("expected error for garbage payload")
	}
	if got := series.Len(); got != 1 {
		t.Errorf("Len() = %d after bad payload, want 1", got)
	}
}

func TestSeriesStale(t *testing.T) {
	series, clock := newTestSeries(30 * time.Second)

	if !series.Stale(5 * time.Second) {
		t.Error("empty series should be stale")
	}

	series.Record(activeSample(clock.Now()))
	if series.Stale(5 * time.Second) {
		t.Error("series with a fresh sample should not be stale")
	}

	clock.Advance(6 * time.Second)
	if !series.Stale(5 * time.Second) {
		t.Error("series should be stale after the grace period")
	}
}

func TestSeriesSweepLoop(t *testing.T) {
	series, clock := newTestSeries(10 * time.Second)
	series.Record(activeSample(clock.Now()))

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		series.RunSweepLoop(done)
		close(exited)
	}()

	time.Sleep(10 * time.Millisecond)
	clock.Advance(11 * time.Second)

	deadline := time.After(time.Second)
	for series.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("sweep loop did not evict stale samples")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	close(done)
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not exit")
	}
}

func TestSyntheticGenerator(t *testing.T) {
	ranges := DefaultRanges()
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	gen := NewSyntheticGenerator(ranges, start)

	for step := 0; step < 50; step++ {
		now := start.Add(time.Duration(step) * 200 * time.Millisecond)
		sample := gen.Sample(now)

		for i, r := range ranges {
			if sample.Status[i] != StatusActive {
				t.Fatalf("synthetic joint %d not active", i)
			}
			angle := *sample.Angles[i]
			if angle < r.Min-1e-9 || angle > r.Max+1e-9 {
				t.Errorf("joint %s angle %f outside [%f, %f]", r.Name, angle, r.Min, r.Max)
			}
		}
	}
}

func TestSyntheticGeneratorMoves(t *testing.T) {
	gen := NewSyntheticGenerator(DefaultRanges(), time.Unix(0, 0))

	a := gen.Sample(time.Unix(1, 0))
	b := gen.Sample(time.Unix(3, 0))

	moved := false
	for i := range a.Angles {
		if *a.Angles[i] != *b.Angles[i] {
			moved = true
			break
		}
	}
	if !moved {
		t.Error("synthetic angles did not change over two seconds")
	}
}
