package ingest

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/candela-robotics/teleop.live/internal/livox"
	"github.com/candela-robotics/teleop.live/internal/monitoring"
)

// PacketHandler receives every successfully decoded LiDAR packet. Handlers
// run on the listener goroutine and must not block.
type PacketHandler func(pkt *livox.Packet)

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       *PacketStats
	Handler     PacketHandler
	StatsSink   func(StatsSnapshot) // optional; receives each logged interval
}

// UDPListener receives Livox packets over UDP, decodes them and hands them
// to the configured handler. Malformed packets are counted and dropped;
// nothing on this path is fatal.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	buffer      []byte
	stats       *PacketStats
	handler     PacketHandler
	statsSink   func(StatsSnapshot)
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	if config.LogInterval == 0 {
		config.LogInterval = 10 * time.Second
	}
	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: config.LogInterval,
		buffer:      make([]byte, 1500), // typical sensor MTU
		stats:       config.Stats,
		handler:     config.Handler,
		statsSink:   config.StatsSink,
	}
}

// Start begins listening for UDP packets and processing them. Returns when
// the context is cancelled or an unrecoverable socket error occurs.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("warning: failed to set UDP receive buffer to %d bytes: %v (some OSes clamp buffer sizes)", l.rcvBuf, err)
		}
	}

	monitoring.Logf("listening for lidar packets on %s", conn.LocalAddr())

	go l.runStatsLogging(ctx)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener shutting down")
			return ctx.Err()
		default:
			// Short read deadline so context cancellation is noticed.
			if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
				monitoring.Logf("error setting read deadline: %v", err)
				continue
			}

			n, _, err := conn.ReadFromUDP(l.buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				monitoring.Logf("error reading UDP packet: %v", err)
				continue
			}

			l.handlePayload(l.buffer[:n])
		}
	}
}

// handlePayload decodes one UDP payload and dispatches it. Decode failures
// mean "log and drop": a malformed frame cannot be recovered and the next
// frame supersedes it.
func (l *UDPListener) handlePayload(payload []byte) {
	pkt, err := livox.ParsePacket(payload)
	if err != nil {
		if l.stats != nil {
			l.stats.AddDecodeFailure(len(payload))
		}
		monitoring.Logf("dropping malformed lidar packet (%d bytes): %v", len(payload), err)
		return
	}

	if l.stats != nil {
		l.stats.AddPacket(pkt.PacketSize, len(pkt.Points), pkt.DataType, pkt.Timestamp)
	}
	if l.handler != nil {
		l.handler(pkt)
	}
}

func (l *UDPListener) runStatsLogging(ctx context.Context) {
	if l.stats == nil {
		return
	}
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := l.stats.LogStats()
			if l.statsSink != nil {
				l.statsSink(snap)
			}
		}
	}
}
