// Package joints maintains the rolling joint-angle window for the arm
// telemetry strip-chart: inbound samples are normalised to radians per
// joint, retained for a fixed window and served to the chart and websocket
// layers. Angles arrive as control-range values in [-100, 100] and are
// mapped onto each joint's documented physical range.
package joints

import (
	"fmt"
	"math"
)

// JointCount is the number of arm joints carried per telemetry sample.
const JointCount = 6

// JointStatus reports per-joint health as derived from the last sample.
type JointStatus int

const (
	StatusOffline  JointStatus = iota // joint absent from the sample
	StatusInactive                    // joint present but reported null
	StatusError                       // joint value present but unparseable
	StatusActive                      // joint reporting a valid angle
)

// String returns the wire label for a status.
func (s JointStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusError:
		return "error"
	case StatusOffline:
		return "offline"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// MarshalJSON emits the wire label so websocket and API clients see
// "active" rather than an enum ordinal.
func (s JointStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Range is a joint's physical travel in radians.
type Range struct {
	Name string  `json:"name"`
	Min  float64 `json:"min"` // radians at normalized -100
	Max  float64 `json:"max"` // radians at normalized +100
}

// DefaultRanges describes the six joints of the demo arm, base to gripper.
// Values are the servo limits from the arm's datasheet.
func DefaultRanges() [JointCount]Range {
	return [JointCount]Range{
		{Name: "base", Min: -math.Pi, Max: math.Pi},
		{Name: "shoulder", Min: -math.Pi / 2, Max: math.Pi / 2},
		{Name: "elbow", Min: -2.618, Max: 2.618},
		{Name: "wrist_pitch", Min: -1.745, Max: 1.745},
		{Name: "wrist_roll", Min: -math.Pi, Max: math.Pi},
		{Name: "gripper", Min: 0, Max: 0.698},
	}
}

// NormalizedToRadians maps a control-range value in [-100, 100] onto the
// joint's physical range by linear interpolation: -100 lands on Min, +100
// on Max, 0 on the midpoint. Out-of-range inputs are clamped first.
func NormalizedToRadians(normalized float64, r Range) float64 {
	if normalized < -100 {
		normalized = -100
	} else if normalized > 100 {
		normalized = 100
	}
	return r.Min + ((normalized+100)/200)*(r.Max-r.Min)
}
