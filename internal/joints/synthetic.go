package joints

import (
	"math"
	"math/rand"
	"time"
)

// SyntheticGenerator produces plausible joint motion when no live arm is
// connected, so the strip-chart has something to show at a demo booth. It
// is a presentation fallback only: callers switch to it after the live
// series reports Stale and drop it the moment a real sample arrives.
type SyntheticGenerator struct {
	ranges  [JointCount]Range
	startAt time.Time

	// Per-joint oscillation parameters, fixed at construction.
	periods [JointCount]float64 // seconds per full cycle
	phases  [JointCount]float64 // radians
	amps    [JointCount]float64 // fraction of the control range

	rng *rand.Rand
}

// NewSyntheticGenerator creates a generator with randomised per-joint
// oscillation so six traces do not move in lockstep.
func NewSyntheticGenerator(ranges [JointCount]Range, startAt time.Time) *SyntheticGenerator {
	g := &SyntheticGenerator{
		ranges:  ranges,
		startAt: startAt,
		rng:     rand.New(rand.NewSource(startAt.UnixNano())),
	}
	for i := range g.periods {
		g.periods[i] = 4.0 + g.rng.Float64()*8.0 // 4-12s cycles
		g.phases[i] = g.rng.Float64() * 2 * math.Pi
		g.amps[i] = 0.4 + g.rng.Float64()*0.5 // swing 40-90% of range
	}
	return g
}

// Sample produces the synthetic sample for the given instant. All joints
// report active; angles follow independent sinusoids over each joint's
// physical range.
func (g *SyntheticGenerator) Sample(now time.Time) Sample {
	elapsed := now.Sub(g.startAt).Seconds()

	sample := Sample{Timestamp: now}
	for i, r := range g.ranges {
		normalized := 100 * g.amps[i] * math.Sin(2*math.Pi*elapsed/g.periods[i]+g.phases[i])
		angle := NormalizedToRadians(normalized, r)
		sample.Angles[i] = &angle
		sample.Status[i] = StatusActive
	}
	return sample
}
