package monitor

import (
	"testing"
	"time"

	"github.com/candela-robotics/teleop.live/internal/joints"
	"github.com/candela-robotics/teleop.live/internal/timeutil"
)

func newTestFeed(t *testing.T, enabled bool) (*JointFeed, *joints.Series, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	series := joints.NewSeries(joints.SeriesConfig{Clock: clock})
	gen := joints.NewSyntheticGenerator(joints.DefaultRanges(), clock.Now())
	feed := NewJointFeed(JointFeedConfig{
		Series:    series,
		Generator: gen,
		Grace:     5 * time.Second,
		Enabled:   enabled,
		Clock:     clock,
	})
	return feed, series, clock
}

func TestFeedUsesLiveWhileFresh(t *testing.T) {
	feed, series, _ := newTestFeed(t, true)

	angle := 0.5
	sample := joints.Sample{Timestamp: time.Unix(1000, 0)}
	sample.Angles[0] = &angle
	sample.Status[0] = joints.StatusActive
	series.Record(sample)

	if got := feed.Source(); got != SourceLive {
		t.Fatalf("Source() = %q, want live", got)
	}
	samples := feed.Samples()
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	latest, source := feed.Latest()
	if source != SourceLive {
		t.Errorf("Latest source = %q, want live", source)
	}
	if latest.Angles[0] == nil || *latest.Angles[0] != 0.5 {
		t.Errorf("latest angle = %v", latest.Angles[0])
	}
}

func TestFeedFallsBackWhenStale(t *testing.T) {
	feed, series, clock := newTestFeed(t, true)

	sample := joints.Sample{Timestamp: clock.Now()}
	series.Record(sample)

	clock.Advance(6 * time.Second)
	if got := feed.Source(); got != SourceSynthetic {
		t.Fatalf("Source() = %q, want synthetic after grace", got)
	}

	samples := feed.Samples()
	if len(samples) == 0 {
		t.Fatal("synthetic window is empty")
	}
	// Window spans the configured 30s at 10Hz.
	span := samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)
	if span < 29*time.Second || span > 31*time.Second {
		t.Errorf("synthetic window spans %v, want ~30s", span)
	}
	for _, s := range samples {
		for i := 0; i < joints.JointCount; i++ {
			if s.Status[i] != joints.StatusActive {
				t.Fatalf("synthetic joint %d status = %v, want active", i, s.Status[i])
			}
		}
	}
}

func TestFeedDisabledReportsNone(t *testing.T) {
	feed, _, _ := newTestFeed(t, false)

	if got := feed.Source(); got != SourceNone {
		t.Fatalf("Source() = %q, want none for empty disabled feed", got)
	}
	if samples := feed.Samples(); samples != nil {
		t.Errorf("Samples() = %d entries, want nil", len(samples))
	}
	_, source := feed.Latest()
	if source != SourceNone {
		t.Errorf("Latest source = %q, want none", source)
	}
}

func TestFeedToggleSynthetic(t *testing.T) {
	feed, _, _ := newTestFeed(t, false)

	feed.SetSyntheticEnabled(true)
	if feed.Source() != SourceSynthetic {
		t.Error("enabling synthetic on an empty series should switch the source")
	}
	feed.SetSyntheticEnabled(false)
	if feed.Source() != SourceNone {
		t.Error("disabling synthetic should drop back to none")
	}
}

func TestFeedRecoversWhenLiveReturns(t *testing.T) {
	feed, series, clock := newTestFeed(t, true)

	series.Record(joints.Sample{Timestamp: clock.Now()})
	clock.Advance(10 * time.Second)
	if feed.Source() != SourceSynthetic {
		t.Fatal("expected synthetic while stale")
	}

	series.Record(joints.Sample{Timestamp: clock.Now()})
	if feed.Source() != SourceLive {
		t.Error("live sample should immediately reclaim the feed")
	}
}
