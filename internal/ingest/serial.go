package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/candela-robotics/teleop.live/internal/joints"
	"github.com/candela-robotics/teleop.live/internal/monitoring"
)

// SerialJointSourceConfig configures the serial joint-state reader. The arm
// controller writes one joint-state JSON object per line over USB serial,
// which makes this a drop-in alternative to the MQTT path for bench setups
// with no broker.
type SerialJointSourceConfig struct {
	PortName string // e.g. "/dev/ttyACM0"
	BaudRate int    // default 115200
	Series   *joints.Series
	OnSample func(joints.Sample)
}

// SerialJointSource reads newline-delimited joint-state JSON from a serial
// port.
type SerialJointSource struct {
	config SerialJointSourceConfig
}

// NewSerialJointSource creates a new serial reader.
func NewSerialJointSource(config SerialJointSourceConfig) *SerialJointSource {
	if config.BaudRate == 0 {
		config.BaudRate = 115200
	}
	return &SerialJointSource{config: config}
}

// Start opens the port and reads until the context is cancelled or the
// port errors out.
func (s *SerialJointSource) Start(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: s.config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(s.config.PortName, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.config.PortName, err)
	}
	defer port.Close()

	monitoring.Logf("reading joint state from %s at %d baud", s.config.PortName, s.config.BaudRate)

	// Close the port on cancellation to unblock the scanner.
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	return s.readLines(ctx, port)
}

// readLines consumes newline-delimited payloads from r. Split out so tests
// can feed fixtures without a device.
func (s *SerialJointSource) readLines(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := s.config.Series.RecordPayload(line); err != nil {
			monitoring.Logf("dropping serial joint line: %v", err)
			continue
		}
		if s.config.OnSample != nil {
			if sample, ok := s.config.Series.Latest(); ok {
				s.config.OnSample(sample)
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serial read failed: %w", err)
	}
	return ctx.Err()
}
