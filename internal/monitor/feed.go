package monitor

import (
	"sync"
	"time"

	"github.com/candela-robotics/teleop.live/internal/joints"
	"github.com/candela-robotics/teleop.live/internal/timeutil"
)

// Joint data sources as reported by the status API.
const (
	SourceLive      = "live"
	SourceSynthetic = "synthetic"
	SourceNone      = "none"
)

const syntheticSampleInterval = 100 * time.Millisecond

// JointFeedConfig configures a joint data feed.
type JointFeedConfig struct {
	Series    *joints.Series
	Generator *joints.SyntheticGenerator
	Grace     time.Duration // staleness threshold before falling back (default 5s)
	Window    time.Duration // synthetic window length (default 30s)
	Enabled   bool          // whether synthetic fallback is allowed
	Clock     timeutil.Clock
}

// JointFeed serves joint samples to the chart and websocket handlers.
// While the live series is fresh it passes samples through; once the
// series goes stale and the fallback is enabled it synthesises a demo
// window instead, so the booth display never freezes.
type JointFeed struct {
	series *joints.Series
	gen    *joints.SyntheticGenerator
	grace  time.Duration
	window time.Duration
	clock  timeutil.Clock

	mu      sync.Mutex
	enabled bool
}

// NewJointFeed creates a feed over the given live series.
func NewJointFeed(config JointFeedConfig) *JointFeed {
	if config.Grace == 0 {
		config.Grace = 5 * time.Second
	}
	if config.Window == 0 {
		config.Window = joints.DefaultWindow
	}
	if config.Clock == nil {
		config.Clock = timeutil.RealClock{}
	}
	return &JointFeed{
		series:  config.Series,
		gen:     config.Generator,
		grace:   config.Grace,
		window:  config.Window,
		enabled: config.Enabled,
		clock:   config.Clock,
	}
}

// SetSyntheticEnabled toggles the fallback at runtime.
func (f *JointFeed) SetSyntheticEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

// SyntheticEnabled reports whether the fallback is allowed.
func (f *JointFeed) SyntheticEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// Source reports which data source a query would currently use.
func (f *JointFeed) Source() string {
	if !f.series.Stale(f.grace) {
		return SourceLive
	}
	if f.SyntheticEnabled() && f.gen != nil {
		return SourceSynthetic
	}
	return SourceNone
}

// Samples returns the current chart window, oldest first.
func (f *JointFeed) Samples() []joints.Sample {
	switch f.Source() {
	case SourceLive:
		return f.series.Samples()
	case SourceSynthetic:
		return f.syntheticWindow()
	default:
		return nil
	}
}

// Latest returns the newest sample and the source it came from.
func (f *JointFeed) Latest() (joints.Sample, string) {
	switch f.Source() {
	case SourceLive:
		sample, _ := f.series.Latest()
		return sample, SourceLive
	case SourceSynthetic:
		return f.gen.Sample(f.clock.Now()), SourceSynthetic
	default:
		return joints.Sample{}, SourceNone
	}
}

func (f *JointFeed) syntheticWindow() []joints.Sample {
	now := f.clock.Now()
	n := int(f.window/syntheticSampleInterval) + 1
	out := make([]joints.Sample, 0, n)
	for t := now.Add(-f.window); !t.After(now); t = t.Add(syntheticSampleInterval) {
		out = append(out, f.gen.Sample(t))
	}
	return out
}
