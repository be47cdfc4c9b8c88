package joints

import (
	"sync"
	"time"

	"github.com/candela-robotics/teleop.live/internal/timeutil"
)

const (
	// DefaultWindow is the strip-chart retention window.
	DefaultWindow = 30 * time.Second

	// DefaultSweepInterval is how often the periodic prune runs.
	DefaultSweepInterval = time.Second
)

// SeriesConfig configures a joint telemetry series.
type SeriesConfig struct {
	Ranges        [JointCount]Range // defaults to DefaultRanges
	Window        time.Duration     // retention window (default 30s)
	SweepInterval time.Duration     // periodic prune period (default 1s)
	Clock         timeutil.Clock    // defaults to timeutil.RealClock
}

// Series is the rolling window of joint samples behind the strip-chart.
// Samples arrive from the MQTT/serial ingest goroutines and are read by the
// chart and websocket handlers, so access is mutex-guarded.
type Series struct {
	mu      sync.Mutex
	samples []Sample
	ranges  [JointCount]Range
	window  time.Duration
	sweep   time.Duration
	clock   timeutil.Clock

	lastRecord time.Time
}

// NewSeries creates a series with the given configuration.
func NewSeries(config SeriesConfig) *Series {
	var zero [JointCount]Range
	if config.Ranges == zero {
		config.Ranges = DefaultRanges()
	}
	if config.Window == 0 {
		config.Window = DefaultWindow
	}
	if config.SweepInterval == 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.Clock == nil {
		config.Clock = timeutil.RealClock{}
	}

	return &Series{
		ranges: config.Ranges,
		window: config.Window,
		sweep:  config.SweepInterval,
		clock:  config.Clock,
	}
}

// Ranges returns the per-joint physical ranges the series normalises with.
func (s *Series) Ranges() [JointCount]Range {
	return s.ranges
}

// RecordPayload parses a raw joint-state message and records the resulting
// sample. Parse errors drop only the message, never the process.
func (s *Series) RecordPayload(payload []byte) error {
	sample, err := ParseSample(payload, s.ranges, s.clock.Now())
	if err != nil {
		return err
	}
	s.Record(sample)
	return nil
}

// Record appends a sample and prunes the window.
func (s *Series) Record(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)
	s.lastRecord = sample.Timestamp
	s.pruneLocked(s.clock.Now())
}

// Prune drops samples older than the window. Called by the periodic sweep;
// Record prunes on its own.
func (s *Series) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.clock.Now())
}

func (s *Series) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	idx := 0
	for idx < len(s.samples) && s.samples[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return
	}
	remaining := len(s.samples) - idx
	copy(s.samples, s.samples[idx:])
	s.samples = s.samples[:remaining]
}

// Samples returns a copy of the current window contents, oldest first.
func (s *Series) Samples() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Latest returns the most recent sample, or false when the window is empty.
func (s *Series) Latest() (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Len returns the current number of retained samples.
func (s *Series) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Stale reports whether no live sample has arrived within the grace
// period. The caller uses this to switch the chart to synthetic demo data.
func (s *Series) Stale(grace time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRecord.IsZero() {
		return true
	}
	return s.clock.Since(s.lastRecord) > grace
}

// RunSweepLoop runs the periodic prune until the done channel closes.
func (s *Series) RunSweepLoop(done <-chan struct{}) {
	ticker := s.clock.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C():
			s.Prune()
		}
	}
}
