package livox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

/*
Livox point-cloud packet decoder

Livox Mid-40 and Horizon/Tele-15 sensors push UDP packets with a fixed
18-byte header followed by a run of fixed-width point records. The header's
dataType byte selects one of four record layouts:

	0  Cartesian single-return   100 records x 13 bytes (Mid-40)
	1  Spherical single-return   100 records x 9 bytes  (Mid-40)
	2  Cartesian single-return    96 records x 14 bytes (Horizon/Tele-15)
	3  Spherical single-return    96 records x 10 bytes (Horizon/Tele-15)

HEADER STRUCTURE (18 bytes):
├── byte 0       protocol version
├── byte 1       slot id
├── byte 2       lidar id
├── byte 3       reserved
├── bytes 4-7    status code (little-endian uint32)
├── byte 8       timestamp type
├── byte 9       data type selector
└── bytes 10-17  timestamp, microseconds (little-endian uint64)

Cartesian records carry signed 32-bit millimetre coordinates; spherical
records carry an unsigned 32-bit millimetre distance plus zenith and azimuth
in 0.01-degree units. The sensor marks "no return" with all-zero coordinates
(Cartesian), a zero Y (Horizon Cartesian) or a zero distance (spherical);
those records are dropped during decode.

Per-point timestamps are synthesised from the frame timestamp: the Mid-40
formats fire a point every 10us, the Horizon/Tele-15 formats every ~4.167us.
The cursor starts one increment before the frame timestamp and advances once
per record slot, valid or not, so the first record lands exactly on the
frame timestamp.
*/

// Livox packet structure constants
const (
	HEADER_SIZE = 18 // fixed header size in bytes

	// Record counts and widths per data type
	MAX_POINTS_MID40   = 100 // data types 0 and 1
	MAX_POINTS_HORIZON = 96  // data types 2 and 3

	RECORD_SIZE_CARTESIAN_MID40   = 13 // 3x int32 mm + intensity
	RECORD_SIZE_SPHERICAL_MID40   = 9  // uint32 mm + 2x uint16 angle + intensity
	RECORD_SIZE_CARTESIAN_HORIZON = 14 // 3x int32 mm + intensity + tag
	RECORD_SIZE_SPHERICAL_HORIZON = 10 // uint32 mm + 2x uint16 angle + intensity + tag

	// Physical conversion constants
	MM_PER_METER     = 1000.0 // raw coordinates and distances are millimetres
	ANGLE_RESOLUTION = 0.01   // angle unit: 0.01 degrees per LSB

	// Per-point firing intervals in seconds
	POINT_INTERVAL_MID40   = 10e-6    // 100k points/s
	POINT_INTERVAL_HORIZON = 4.167e-6 // ~240k points/s
)

// Decode failure taxonomy. Both mean "no packet": the caller should log and
// drop, never retry, since a malformed frame cannot be recovered.
var (
	ErrPacketTooShort  = errors.New("livox: packet shorter than header")
	ErrUnknownDataType = errors.New("livox: unknown data type")
)

// ParsePacket decodes a raw Livox UDP payload into a Packet. It is a pure
// function over the input buffer.
//
// Truncated trailing records are not an error: parsing stops at the last
// complete record and returns whatever decoded before the buffer ran out.
// All returned points satisfy the data type's own validity predicate, so a
// caller never sees a "no return" sentinel point.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < HEADER_SIZE {
		return nil, fmt.Errorf("%w: %d bytes (need %d)", ErrPacketTooShort, len(data), HEADER_SIZE)
	}

	pkt := &Packet{
		Version:       data[0],
		Slot:          data[1],
		LidarID:       data[2],
		StatusCode:    binary.LittleEndian.Uint32(data[4:8]),
		TimestampType: data[8],
		DataType:      data[9],
		Timestamp:     float64(binary.LittleEndian.Uint64(data[10:18])) / 1e6,
		PacketSize:    len(data),
	}

	payload := data[HEADER_SIZE:]

	switch pkt.DataType {
	case 0:
		pkt.Points = parseCartesian(payload, pkt.Timestamp, MAX_POINTS_MID40,
			RECORD_SIZE_CARTESIAN_MID40, POINT_INTERVAL_MID40, allCoordsZero)
	case 1:
		pkt.Points = parseSpherical(payload, pkt.Timestamp, MAX_POINTS_MID40,
			RECORD_SIZE_SPHERICAL_MID40, POINT_INTERVAL_MID40)
	case 2:
		pkt.Points = parseCartesian(payload, pkt.Timestamp, MAX_POINTS_HORIZON,
			RECORD_SIZE_CARTESIAN_HORIZON, POINT_INTERVAL_HORIZON, yCoordZero)
	case 3:
		pkt.Points = parseSpherical(payload, pkt.Timestamp, MAX_POINTS_HORIZON,
			RECORD_SIZE_SPHERICAL_HORIZON, POINT_INTERVAL_HORIZON)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownDataType, pkt.DataType)
	}

	return pkt, nil
}

// allCoordsZero is the Mid-40 "no return" sentinel: all three raw
// coordinates exactly zero.
func allCoordsZero(x, y, z int32) bool { return x == 0 && y == 0 && z == 0 }

// yCoordZero is the Horizon/Tele-15 invalidity test: the firmware zeroes Y
// for missed returns.
func yCoordZero(x, y, z int32) bool { return y == 0 }

// parseCartesian reads fixed-width Cartesian records until the record budget
// or the buffer runs out, whichever comes first.
func parseCartesian(payload []byte, frameTs float64, maxRecords, recordSize int, interval float64, invalid func(x, y, z int32) bool) []Point {
	points := make([]Point, 0, maxRecords)

	ts := frameTs - interval
	for i := 0; i < maxRecords; i++ {
		off := i * recordSize
		if off+recordSize > len(payload) {
			break // truncated trailing record; keep what we have
		}
		ts += interval

		x := int32(binary.LittleEndian.Uint32(payload[off : off+4]))
		y := int32(binary.LittleEndian.Uint32(payload[off+4 : off+8]))
		z := int32(binary.LittleEndian.Uint32(payload[off+8 : off+12]))
		if invalid(x, y, z) {
			continue
		}

		points = append(points, Point{
			X:         float64(x) / MM_PER_METER,
			Y:         float64(y) / MM_PER_METER,
			Z:         float64(z) / MM_PER_METER,
			Intensity: payload[off+12],
			Timestamp: ts,
		})
	}

	return points
}

// parseSpherical reads fixed-width spherical records and converts them to
// sensor-frame Cartesian using the physics convention:
//
//	x = d*sin(zenith)*cos(azimuth)
//	y = d*sin(zenith)*sin(azimuth)
//	z = d*cos(zenith)
func parseSpherical(payload []byte, frameTs float64, maxRecords, recordSize int, interval float64) []Point {
	points := make([]Point, 0, maxRecords)

	ts := frameTs - interval
	for i := 0; i < maxRecords; i++ {
		off := i * recordSize
		if off+recordSize > len(payload) {
			break
		}
		ts += interval

		dist := binary.LittleEndian.Uint32(payload[off : off+4])
		if dist == 0 {
			continue // zero distance means no return
		}

		zenithDeg := float64(binary.LittleEndian.Uint16(payload[off+4:off+6])) * ANGLE_RESOLUTION
		azimuthDeg := float64(binary.LittleEndian.Uint16(payload[off+6:off+8])) * ANGLE_RESOLUTION

		d := float64(dist) / MM_PER_METER
		zenith := zenithDeg * math.Pi / 180.0
		azimuth := azimuthDeg * math.Pi / 180.0

		sinZenith := math.Sin(zenith)

		points = append(points, Point{
			X:         d * sinZenith * math.Cos(azimuth),
			Y:         d * sinZenith * math.Sin(azimuth),
			Z:         d * math.Cos(zenith),
			Intensity: payload[off+8],
			Timestamp: ts,
		})
	}

	return points
}
