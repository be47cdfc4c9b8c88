package cloud

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/candela-robotics/teleop.live/internal/livox"
	"github.com/candela-robotics/teleop.live/internal/timeutil"
)

func testPacket(n int, intensity uint8) *livox.Packet {
	pkt := &livox.Packet{DataType: 0, Timestamp: 1.0}
	for i := 0; i < n; i++ {
		pkt.Points = append(pkt.Points, livox.Point{
			X:         float64(i + 1),
			Y:         0.5,
			Z:         -0.25,
			Intensity: intensity,
			Timestamp: 1.0 + float64(i)*10e-6,
		})
	}
	return pkt
}

func newTestAccumulator(horizon time.Duration) (*Accumulator, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	acc := NewAccumulator(AccumulatorConfig{Horizon: horizon, Clock: clock})
	return acc, clock
}

func TestIngestAndSnapshot(t *testing.T) {
	acc, _ := newTestAccumulator(2 * time.Second)

	acc.Ingest(testPacket(5, 100))
	if got := acc.Len(); got != 5 {
		t.Fatalf("Len() = %d, want 5", got)
	}

	snap := acc.Snapshot(Filter{})
	if len(snap) != 5 {
		t.Fatalf("snapshot has %d points, want 5", len(snap))
	}
}

func TestPruneRespectsHorizon(t *testing.T) {
	acc, clock := newTestAccumulator(2 * time.Second)

	acc.Ingest(testPacket(3, 10))
	clock.Advance(2*time.Second + 100*time.Millisecond)
	acc.Prune()

	if got := acc.Len(); got != 0 {
		t.Errorf("after horizon + epsilon, Len() = %d, want 0", got)
	}
}

func TestRollingWindowScenario(t *testing.T) {
	// Three packets one second apart with a two-second horizon: after the
	// third packet only points from packets 2 and 3 remain.
	acc, clock := newTestAccumulator(2 * time.Second)

	acc.Ingest(testPacket(4, 1))
	clock.Advance(time.Second)
	acc.Ingest(testPacket(4, 2))
	clock.Advance(time.Second + time.Millisecond)
	acc.Ingest(testPacket(4, 3))

	snap := acc.Snapshot(Filter{})
	if len(snap) != 8 {
		t.Fatalf("snapshot has %d points, want 8", len(snap))
	}
	for i, p := range snap {
		if p.Intensity == 1 {
			t.Errorf("point %d from expired packet 1 survived the window", i)
		}
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	acc, _ := newTestAccumulator(5 * time.Second)
	acc.Ingest(testPacket(10, 42))

	first := acc.Snapshot(Filter{})
	second := acc.Snapshot(Filter{})

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("consecutive snapshots differ (-first +second):\n%s", diff)
	}
}

func TestSetHorizonPrunesImmediately(t *testing.T) {
	acc, clock := newTestAccumulator(10 * time.Second)

	acc.Ingest(testPacket(3, 1))
	clock.Advance(4 * time.Second)
	acc.Ingest(testPacket(3, 2))

	if got := acc.Len(); got != 6 {
		t.Fatalf("Len() = %d, want 6 before horizon change", got)
	}

	// Shrinking to 2s must evict the 4s-old batch without waiting for a sweep.
	acc.SetHorizon(2 * time.Second)
	if got := acc.Len(); got != 3 {
		t.Errorf("Len() = %d after SetHorizon(2s), want 3", got)
	}
}

func TestHorizonClamped(t *testing.T) {
	acc, _ := newTestAccumulator(2 * time.Second)

	acc.SetHorizon(50 * time.Second)
	if got := acc.Horizon(); got != MaxHorizon {
		t.Errorf("Horizon() = %v, want clamped to %v", got, MaxHorizon)
	}

	acc.SetHorizon(10 * time.Millisecond)
	if got := acc.Horizon(); got != MinHorizon {
		t.Errorf("Horizon() = %v, want clamped to %v", got, MinHorizon)
	}
}

func TestSnapshotFilters(t *testing.T) {
	acc, _ := newTestAccumulator(5 * time.Second)
	acc.Ingest(&livox.Packet{Points: []livox.Point{
		{X: 1, Intensity: 10},
		{X: 5, Intensity: 100},
		{X: 50, Intensity: 200},
	}})

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"no filter", Filter{}, 3},
		{"min distance", Filter{MinDistance: 2}, 2},
		{"max distance", Filter{MaxDistance: 10}, 2},
		{"distance band", Filter{MinDistance: 2, MaxDistance: 10}, 1},
		{"min intensity", Filter{MinIntensity: 50}, 2},
		{"max intensity", Filter{MaxIntensity: 150}, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(acc.Snapshot(tc.filter)); got != tc.want {
				t.Errorf("got %d points, want %d", got, tc.want)
			}
		})
	}
}

func TestSnapshotStride(t *testing.T) {
	acc, _ := newTestAccumulator(5 * time.Second)
	acc.Ingest(testPacket(10, 1))

	if got := len(acc.Snapshot(Filter{Stride: 2})); got != 5 {
		t.Errorf("stride 2: got %d points, want 5", got)
	}
	if got := len(acc.Snapshot(Filter{Stride: 3})); got != 4 {
		t.Errorf("stride 3: got %d points, want 4", got)
	}
	// Stride 0 and 1 both keep everything.
	if got := len(acc.Snapshot(Filter{Stride: 0})); got != 10 {
		t.Errorf("stride 0: got %d points, want 10", got)
	}
}

func TestEmptySnapshotAndBounds(t *testing.T) {
	acc, _ := newTestAccumulator(2 * time.Second)

	snap := acc.Snapshot(Filter{})
	if len(snap) != 0 {
		t.Fatalf("empty accumulator snapshot has %d points", len(snap))
	}

	box := Bounds(snap)
	if !box.Empty {
		t.Error("bounding box of empty snapshot not marked Empty")
	}
	if box.MinX != 0 || box.MaxX != 0 {
		t.Errorf("empty bounding box not zero-sized: %+v", box)
	}
}

func TestBounds(t *testing.T) {
	points := []livox.Point{
		{X: -1, Y: 2, Z: 0},
		{X: 3, Y: -4, Z: 5},
		{X: 0, Y: 0, Z: -2},
	}
	box := Bounds(points)

	if box.Empty {
		t.Fatal("non-empty snapshot marked Empty")
	}
	if box.MinX != -1 || box.MaxX != 3 || box.MinY != -4 || box.MaxY != 2 || box.MinZ != -2 || box.MaxZ != 5 {
		t.Errorf("bounds = %+v", box)
	}
}

func TestDistanceQuantiles(t *testing.T) {
	var points []livox.Point
	for i := 1; i <= 100; i++ {
		points = append(points, livox.Point{X: float64(i)})
	}

	p50, p95 := DistanceQuantiles(points)
	if p50 < 49 || p50 > 51 {
		t.Errorf("p50 = %f, want ~50", p50)
	}
	if p95 < 94 || p95 > 96 {
		t.Errorf("p95 = %f, want ~95", p95)
	}

	p50, p95 = DistanceQuantiles(nil)
	if p50 != 0 || p95 != 0 {
		t.Errorf("empty input quantiles = (%f, %f), want (0, 0)", p50, p95)
	}
}

func TestRunPruneLoop(t *testing.T) {
	acc, clock := newTestAccumulator(1 * time.Second)
	acc.Ingest(testPacket(3, 1))

	done := make(chan struct{})
	loopExited := make(chan struct{})
	go func() {
		acc.RunPruneLoop(done)
		close(loopExited)
	}()

	// Let the loop pick up its ticker, then advance past the horizon and
	// fire a sweep tick.
	time.Sleep(10 * time.Millisecond)
	clock.Advance(1200 * time.Millisecond)

	deadline := time.After(time.Second)
	for acc.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("prune loop did not evict stale points")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	close(done)
	select {
	case <-loopExited:
	case <-time.After(time.Second):
		t.Fatal("prune loop did not exit on done")
	}
}
