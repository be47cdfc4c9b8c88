// Package cloud maintains the rolling point-cloud window for the
// teleoperation view: packets decoded by internal/livox are ingested,
// tagged with wall-clock receipt time, aged out past a configurable
// horizon and served as snapshots to the render and chart layers.
package cloud

import (
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/candela-robotics/teleop.live/internal/livox"
	"github.com/candela-robotics/teleop.live/internal/timeutil"
)

// Horizon bounds. Runtime updates outside this range are clamped rather
// than rejected so a slider on the dashboard can never wedge the buffer.
const (
	MinHorizon = 1 * time.Second
	MaxHorizon = 10 * time.Second

	// DefaultPruneInterval is how often the periodic sweep runs when the
	// accumulator owns its own prune loop.
	DefaultPruneInterval = 100 * time.Millisecond
)

// stampedPoint tags a decoded point with its local receipt time. Aging uses
// receipt time, not the sensor clock, so a sensor with a skewed clock still
// ages out correctly.
type stampedPoint struct {
	point      livox.Point
	receivedAt time.Time
}

// Filter restricts a Snapshot. Zero values mean "no constraint" except
// Stride, where 0 and 1 both mean "keep every point". Filters are stateless
// query-time transforms; they never mutate the stored buffer.
type Filter struct {
	MinDistance  float64 // metres from sensor origin, 0 = unbounded
	MaxDistance  float64 // metres from sensor origin, 0 = unbounded
	MinIntensity uint8
	MaxIntensity uint8 // 0 = unbounded
	Stride       int   // uniform downsampling: keep every Nth point
}

// BoundingBox is the axis-aligned extent of a snapshot in sensor-frame
// metres. Empty is true for the degenerate zero-point snapshot.
type BoundingBox struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
	Empty      bool
}

// AccumulatorConfig configures a point cloud accumulator.
type AccumulatorConfig struct {
	Horizon       time.Duration  // retention window (default 3s, clamped to [1s, 10s])
	PruneInterval time.Duration  // periodic sweep period (default 100ms)
	Clock         timeutil.Clock // defaults to timeutil.RealClock
}

// Accumulator holds the rolling time-windowed point buffer. It is fed from
// the ingest goroutine and queried from HTTP/websocket handlers, so all
// access goes through the mutex.
//
// Invariant: after any Ingest, SetHorizon or prune sweep, every retained
// point's receipt time lies within [now-horizon, now]. Insertion order is
// preserved, which is all the aging sweep needs: the buffer is
// receipt-time-ordered, so pruning drops a prefix.
type Accumulator struct {
	mu            sync.Mutex
	points        []stampedPoint
	horizon       time.Duration
	pruneInterval time.Duration
	clock         timeutil.Clock

	ingestedPackets int64
	ingestedPoints  int64
	prunedPoints    int64
}

// NewAccumulator creates an accumulator with the given configuration.
func NewAccumulator(config AccumulatorConfig) *Accumulator {
	if config.Horizon == 0 {
		config.Horizon = 3 * time.Second
	}
	if config.PruneInterval == 0 {
		config.PruneInterval = DefaultPruneInterval
	}
	if config.Clock == nil {
		config.Clock = timeutil.RealClock{}
	}

	return &Accumulator{
		horizon:       clampHorizon(config.Horizon),
		pruneInterval: config.PruneInterval,
		clock:         config.Clock,
	}
}

func clampHorizon(h time.Duration) time.Duration {
	if h < MinHorizon {
		return MinHorizon
	}
	if h > MaxHorizon {
		return MaxHorizon
	}
	return h
}

// Ingest appends every point of a decoded packet, stamped with the current
// receipt time, then prunes. The packet itself is not retained.
func (a *Accumulator) Ingest(pkt *livox.Packet) {
	if pkt == nil || len(pkt.Points) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	for _, p := range pkt.Points {
		a.points = append(a.points, stampedPoint{point: p, receivedAt: now})
	}
	a.ingestedPackets++
	a.ingestedPoints += int64(len(pkt.Points))

	a.pruneLocked(now)
}

// Prune drops all points older than the horizon relative to the clock's
// current time. Called from the periodic sweep; Ingest and SetHorizon prune
// on their own.
func (a *Accumulator) Prune() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked(a.clock.Now())
}

// pruneLocked removes the stale prefix. Points are appended in receipt
// order, so the first fresh point marks the cut.
func (a *Accumulator) pruneLocked(now time.Time) {
	cutoff := now.Add(-a.horizon)
	idx := sort.Search(len(a.points), func(i int) bool {
		return !a.points[i].receivedAt.Before(cutoff)
	})
	if idx == 0 {
		return
	}

	a.prunedPoints += int64(idx)
	remaining := len(a.points) - idx
	copy(a.points, a.points[idx:])
	a.points = a.points[:remaining]
}

// Horizon returns the current retention window.
func (a *Accumulator) Horizon() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.horizon
}

// SetHorizon updates the retention window (clamped to [MinHorizon,
// MaxHorizon]) and immediately prunes with the new value, so shrinking the
// window takes effect without waiting for the next sweep.
func (a *Accumulator) SetHorizon(h time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.horizon = clampHorizon(h)
	a.pruneLocked(a.clock.Now())
}

// Snapshot returns a copy of the current buffer contents after applying the
// filter. Two snapshots with no intervening ingest or prune return the same
// point set.
func (a *Accumulator) Snapshot(f Filter) []livox.Point {
	a.mu.Lock()
	defer a.mu.Unlock()

	stride := f.Stride
	if stride < 1 {
		stride = 1
	}

	out := make([]livox.Point, 0, len(a.points)/stride+1)
	kept := 0
	for _, sp := range a.points {
		p := sp.point
		if f.MinIntensity > 0 && p.Intensity < f.MinIntensity {
			continue
		}
		if f.MaxIntensity > 0 && p.Intensity > f.MaxIntensity {
			continue
		}
		if f.MinDistance > 0 || f.MaxDistance > 0 {
			d := math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
			if f.MinDistance > 0 && d < f.MinDistance {
				continue
			}
			if f.MaxDistance > 0 && d > f.MaxDistance {
				continue
			}
		}
		if kept%stride == 0 {
			out = append(out, p)
		}
		kept++
	}
	return out
}

// Len returns the current number of buffered points.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.points)
}

// Counters returns lifetime ingest/prune totals for the status endpoint.
func (a *Accumulator) Counters() (packets, points, pruned int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ingestedPackets, a.ingestedPoints, a.prunedPoints
}

// Bounds computes the axis-aligned bounding box of the given snapshot. An
// empty snapshot yields a trivial zero-sized box with Empty set.
func Bounds(points []livox.Point) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{Empty: true}
	}

	b := BoundingBox{
		MinX: points[0].X, MaxX: points[0].X,
		MinY: points[0].Y, MaxY: points[0].Y,
		MinZ: points[0].Z, MaxZ: points[0].Z,
	}
	for _, p := range points[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxY = math.Max(b.MaxY, p.Y)
		b.MinZ = math.Min(b.MinZ, p.Z)
		b.MaxZ = math.Max(b.MaxZ, p.Z)
	}
	return b
}

// DistanceQuantiles returns the p50 and p95 of point distances from the
// sensor origin, for the status endpoint. Both are 0 for an empty snapshot.
func DistanceQuantiles(points []livox.Point) (p50, p95 float64) {
	if len(points) == 0 {
		return 0, 0
	}

	dists := make([]float64, len(points))
	for i, p := range points {
		dists[i] = math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
	}
	sort.Float64s(dists)

	p50 = stat.Quantile(0.5, stat.Empirical, dists, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, dists, nil)
	return p50, p95
}

// RunPruneLoop runs the periodic sweep until the done channel closes. The
// sweep exists so the window shrinks even when no packets arrive; Ingest
// already prunes on the hot path.
func (a *Accumulator) RunPruneLoop(done <-chan struct{}) {
	ticker := a.clock.NewTicker(a.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C():
			a.Prune()
		}
	}
}
