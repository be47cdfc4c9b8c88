package livox

// Point is a single range return in sensor-frame Cartesian coordinates.
// Coordinates are metres, intensity is the raw 0-255 reflectivity byte and
// Timestamp is seconds on the sensor's monotonic clock. Points are immutable
// once decoded.
type Point struct {
	X         float64 // metres, sensor frame
	Y         float64 // metres, sensor frame
	Z         float64 // metres, sensor frame
	Intensity uint8   // raw reflectivity (0-255)
	Timestamp float64 // seconds, sensor clock
}

// Packet is one decoded transport frame. Points preserve record order within
// the frame (return order, not spatial order). A Packet is transient: callers
// extract the points and discard it.
type Packet struct {
	Points     []Point
	DataType   uint8   // wire sub-format selector (0-3)
	Timestamp  float64 // frame timestamp, seconds
	PacketSize int     // input byte length, for diagnostics

	// Header diagnostics, not used by the decode itself.
	Version       uint8
	Slot          uint8
	LidarID       uint8
	StatusCode    uint32
	TimestampType uint8
}
