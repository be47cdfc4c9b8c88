package joints

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Sample is one telemetry record: six joint angles in radians (nil when
// unknown for that sample), the receipt timestamp and a per-joint status.
type Sample struct {
	Timestamp time.Time               `json:"timestamp"`
	Angles    [JointCount]*float64    `json:"angles"`
	Status    [JointCount]JointStatus `json:"status"`
}

// ParseSample decodes a joint-state JSON message into a Sample. The payload
// carries one field per joint name with a numeric or string-encoded numeric
// control-range value, e.g.
//
//	{"base": 12.5, "shoulder": "-30", "elbow": null}
//
// A field that fails to parse marks only that joint as errored; the other
// joints in the same sample are still recorded. A missing joint is offline,
// an explicit null is inactive. Only a payload that is not JSON at all is an
// error.
func ParseSample(payload []byte, ranges [JointCount]Range, receivedAt time.Time) (Sample, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Sample{}, fmt.Errorf("joint sample is not valid JSON: %w", err)
	}

	sample := Sample{Timestamp: receivedAt}
	for i, r := range ranges {
		raw, ok := fields[r.Name]
		if !ok {
			sample.Status[i] = StatusOffline
			continue
		}
		if string(raw) == "null" {
			sample.Status[i] = StatusInactive
			continue
		}

		normalized, err := parseNumeric(raw)
		if err != nil {
			sample.Status[i] = StatusError
			continue
		}

		angle := NormalizedToRadians(normalized, r)
		sample.Angles[i] = &angle
		sample.Status[i] = StatusActive
	}

	return sample, nil
}

// parseNumeric accepts a JSON number or a string-encoded number. The demo
// frontends are inconsistent about which they send.
func parseNumeric(raw json.RawMessage) (float64, error) {
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, fmt.Errorf("joint value %s is neither number nor string", raw)
	}
	num, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("joint value %q does not parse as a number: %w", str, err)
	}
	return num, nil
}
