package facematch

import "math"

// Box is an axis-aligned bounding box in pixel coordinates, [X1, Y1] top-left and [X2, Y2] bottom-right.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the vertical extent of the box.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area, zero for degenerate boxes.
func (b Box) Area() float64 {
	if b.Degenerate() {
		return 0
	}
	return b.Width() * b.Height()
}

// Degenerate reports whether the box has no positive extent (x2 <= x1 or y2 <= y1).
func (b Box) Degenerate() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

// Slice returns the box as [x1, y1, x2, y2].
func (b Box) Slice() []float64 {
	return []float64{b.X1, b.Y1, b.X2, b.Y2}
}

// BoxFromSlice builds a box from [x1, y1, x2, y2]. Returns false for malformed input.
func BoxFromSlice(bbox []float64) (Box, bool) {
	if len(bbox) != 4 {
		return Box{}, false
	}
	return Box{X1: bbox[0], Y1: bbox[1], X2: bbox[2], Y2: bbox[3]}, true
}

// ComputeIoU calculates Intersection over Union between two bounding boxes.
func ComputeIoU(a, b Box) float64 {
	// Calculate intersection.
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	// Calculate union.
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

// ClampToFrame truncates the box to integer pixels inside a width x height frame.
// The result may be degenerate; callers discard such boxes.
func ClampToFrame(b Box, width, height int) Box {
	return Box{
		X1: math.Trunc(max(0, b.X1)),
		Y1: math.Trunc(max(0, b.Y1)),
		X2: math.Trunc(min(float64(width), b.X2)),
		Y2: math.Trunc(min(float64(height), b.Y2)),
	}
}

// Expand grows every edge of the box by frac of its own width/height,
// clamped to the frame bounds.
func Expand(b Box, frac float64, width, height int) Box {
	dx := b.Width() * frac
	dy := b.Height() * frac
	return Box{
		X1: max(0, b.X1-dx),
		Y1: max(0, b.Y1-dy),
		X2: min(float64(width), b.X2+dx),
		Y2: min(float64(height), b.Y2+dy),
	}
}

// Pad grows every edge of the box by a fixed number of pixels on each axis
// and truncates the result to integer pixels. The box is not clamped.
func Pad(b Box, padX, padY float64) Box {
	return Box{
		X1: math.Trunc(b.X1 - padX),
		Y1: math.Trunc(b.Y1 - padY),
		X2: math.Trunc(b.X2 + padX),
		Y2: math.Trunc(b.Y2 + padY),
	}
}

// ConvertPixelBBoxToRelative converts a pixel box to relative (0-1) coordinates.
// The box is returned unchanged for non-positive frame dimensions.
func ConvertPixelBBoxToRelative(b Box, width, height int) Box {
	if width <= 0 || height <= 0 {
		return b
	}
	return Box{
		X1: b.X1 / float64(width),
		Y1: b.Y1 / float64(height),
		X2: b.X2 / float64(width),
		Y2: b.Y2 / float64(height),
	}
}
