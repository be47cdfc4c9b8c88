// Package ingest connects the external transports to the telemetry
// buffers: a UDP listener for LiDAR packets, an MQTT subscriber and an
// optional serial reader for arm joint state, plus the packet statistics
// the status page reports.
package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/candela-robotics/teleop.live/internal/monitoring"
)

// nominalPacketInterval is the assumed sensor packet cadence used by the
// missed-packet estimate. It is not derived from a documented sensor rate;
// treat the estimate as a diagnostic, not a contract.
const nominalPacketInterval = 0.010 // seconds

// PacketStats tracks LiDAR ingest statistics with thread-safe operations.
type PacketStats struct {
	mu             sync.Mutex
	packetCount    int64
	byteCount      int64
	pointCount     int64
	decodeFailures int64
	perType        [4]int64

	// Missed-packet heuristic state: sensor timestamps should advance by
	// roughly one nominal interval per packet; larger gaps imply drops.
	lastSensorTs  float64
	missedPackets int64

	lastReset    time.Time
	startTime    time.Time
	lastSnapshot StatsSnapshot
}

// NewPacketStats creates a new PacketStats instance.
func NewPacketStats() *PacketStats {
	now := time.Now()
	return &PacketStats{lastReset: now, startTime: now}
}

// AddPacket records a successfully decoded packet.
func (ps *PacketStats) AddPacket(bytes, points int, dataType uint8, sensorTs float64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.packetCount++
	ps.byteCount += int64(bytes)
	ps.pointCount += int64(points)
	if int(dataType) < len(ps.perType) {
		ps.perType[dataType]++
	}

	if ps.lastSensorTs > 0 && sensorTs > ps.lastSensorTs {
		gap := sensorTs - ps.lastSensorTs
		if gap > 1.5*nominalPacketInterval {
			ps.missedPackets += int64(gap/nominalPacketInterval) - 1
		}
	}
	ps.lastSensorTs = sensorTs
}

// AddDecodeFailure records a packet the decoder rejected.
func (ps *PacketStats) AddDecodeFailure(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.decodeFailures++
	ps.byteCount += int64(bytes)
}

// StatsSnapshot is one reporting interval's totals.
type StatsSnapshot struct {
	Packets        int64
	Bytes          int64
	Points         int64
	DecodeFailures int64
	PerType        [4]int64
	MissedEstimate int64
	Duration       time.Duration
}

// GetAndReset returns current stats and resets the interval counters. The
// missed-packet baseline timestamp survives the reset so gap detection
// keeps working across intervals.
func (ps *PacketStats) GetAndReset() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	snap := StatsSnapshot{
		Packets:        ps.packetCount,
		Bytes:          ps.byteCount,
		Points:         ps.pointCount,
		DecodeFailures: ps.decodeFailures,
		PerType:        ps.perType,
		MissedEstimate: ps.missedPackets,
		Duration:       now.Sub(ps.lastReset),
	}

	ps.packetCount = 0
	ps.byteCount = 0
	ps.pointCount = 0
	ps.decodeFailures = 0
	ps.perType = [4]int64{}
	ps.missedPackets = 0
	ps.lastReset = now
	ps.lastSnapshot = snap

	return snap
}

// LatestSnapshot returns the most recently completed interval without
// disturbing the running counters.
func (ps *PacketStats) LatestSnapshot() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.lastSnapshot
}

// Uptime returns time elapsed since the stats instance was created.
func (ps *PacketStats) Uptime() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return time.Since(ps.startTime)
}

// LogStats emits one formatted rate line and resets the interval.
func (ps *PacketStats) LogStats() StatsSnapshot {
	snap := ps.GetAndReset()
	if snap.Packets == 0 && snap.DecodeFailures == 0 {
		return snap
	}

	secs := snap.Duration.Seconds()
	msg := fmt.Sprintf("lidar stats (/sec): %.2f MB, %.1f packets, %.0f points",
		float64(snap.Bytes)/secs/(1024*1024),
		float64(snap.Packets)/secs,
		float64(snap.Points)/secs)
	if snap.DecodeFailures > 0 {
		msg += fmt.Sprintf(", %d decode failures", snap.DecodeFailures)
	}
	if snap.MissedEstimate > 0 {
		msg += fmt.Sprintf(", ~%d missed", snap.MissedEstimate)
	}
	monitoring.Logf("%s", msg)

	return snap
}
