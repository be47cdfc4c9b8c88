package cloud

import (
	"github.com/candela-robotics/teleop.live/internal/livox"
)

// VertexBuffers is the GPU-facing output of the projection layer: flat
// interleaved position (xyz) and color (rgb) arrays sized for direct upload
// to the host scene graph. The rendered point count always equals the
// snapshot's point count, so an empty snapshot clears both buffers to zero
// length rather than leaving stale vertices behind.
type VertexBuffers struct {
	Positions []float32 // len = 3 * point count
	Colors    []float32 // len = 3 * point count, components in [0, 1]
}

// PointCount returns the number of projected points.
func (vb *VertexBuffers) PointCount() int { return len(vb.Positions) / 3 }

// Project rewrites the buffers from a snapshot. The sensor frame is
// Z-up; the render engine is Y-up, so positions are remapped with the
// fixed permutation engineX = x, engineY = z, engineZ = -y. Colors come
// from the intensity gradient. Pure transform, tolerant of empty input,
// safe to run once per animation frame.
func (vb *VertexBuffers) Project(points []livox.Point) {
	n := len(points) * 3
	if cap(vb.Positions) < n {
		vb.Positions = make([]float32, n)
		vb.Colors = make([]float32, n)
	}
	vb.Positions = vb.Positions[:n]
	vb.Colors = vb.Colors[:n]

	for i, p := range points {
		vb.Positions[i*3] = float32(p.X)
		vb.Positions[i*3+1] = float32(p.Z)
		vb.Positions[i*3+2] = float32(-p.Y)

		r, g, b := IntensityColor(p.Intensity)
		vb.Colors[i*3] = r
		vb.Colors[i*3+1] = g
		vb.Colors[i*3+2] = b
	}
}

// IntensityColor maps a raw 0-255 intensity onto the two-segment gradient
// used by the point cloud view: [0,127] interpolates blue to green,
// [128,255] interpolates green to red, component-wise linear in each half.
func IntensityColor(intensity uint8) (r, g, b float32) {
	if intensity < 128 {
		t := float32(intensity) / 127.0
		return 0, t, 1 - t
	}
	t := float32(intensity-128) / 127.0
	return t, 1 - t, 0
}
