package domain

import "math"

// Vec3 is a point or direction in model space (millimetres, Z up).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (a Vec3) Add(b Vec3) Vec3      { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3      { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(k float64) Vec3 { return Vec3{a.X * k, a.Y * k, a.Z * k} }
func (a Vec3) Dot(b Vec3) float64   { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func (a Vec3) Length() float64      { return math.Sqrt(a.Dot(a)) }
func (a Vec3) Min(b Vec3) Vec3 {
	return Vec3{math.Min(a.X, b.X), math.Min(a.Y, b.Y), math.Min(a.Z, b.Z)}
}
func (a Vec3) Max(b Vec3) Vec3 {
	return Vec3{math.Max(a.X, b.X), math.Max(a.Y, b.Y), math.Max(a.Z, b.Z)}
}
func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{a.Y*b.Z - a.Z*b.Y, a.Z*b.X - a.X*b.Z, a.X*b.Y - a.Y*b.X}
}

// Normalize returns the unit vector, or the zero vector for zero input.
func (a Vec3) Normalize() Vec3 {
	l := a.Length()
	if l == 0 {
		return Vec3{}
	}
	return a.Scale(1 / l)
}

// Axis returns component i (0=X, 1=Y, 2=Z).
func (a Vec3) Axis(i int) float64 {
	switch i {
	case 0:
		return a.X
	case 1:
		return a.Y
	default:
		return a.Z
	}
}

// BoundingBox is an axis-aligned box in model space.
type BoundingBox struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// Size returns the extent along X (width), Y (depth) and Z (height).
func (b BoundingBox) Size() Vec3 { return b.Max.Sub(b.Min) }

// Center returns the box midpoint.
func (b BoundingBox) Center() Vec3 { return b.Min.Add(b.Max).Scale(0.5) }

// IsZero reports whether the box has no extent at all.
func (b BoundingBox) IsZero() bool { return b.Min == Vec3{} && b.Max == Vec3{} }

// Corners returns the eight corners in a fixed order.
func (b BoundingBox) Corners() [8]Vec3 {
	var c [8]Vec3
	for i := 0; i < 8; i++ {
		p := b.Min
		if i&1 != 0 {
			p.X = b.Max.X
		}
		if i&2 != 0 {
			p.Y = b.Max.Y
		}
		if i&4 != 0 {
			p.Z = b.Max.Z
		}
		c[i] = p
	}
	return c
}

// Extend grows b to include p.
func (b BoundingBox) Extend(p Vec3) BoundingBox {
	return BoundingBox{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// Pose places a solid: rotation in degrees about X, then Y, then Z,
// followed by a translation.
type Pose struct {
	Translate Vec3 `json:"translate"`
	Rotate    Vec3 `json:"rotate"`
}

// EdgeSelector picks edges for fillet and chamfer operations.
// Recognised values are "all" (or empty) and "|X", "|Y", "|Z" for the
// edges parallel to an axis. Several axis selectors combine.
type EdgeSelector string

const (
	EdgesAll       EdgeSelector = "all"
	EdgesParallelX EdgeSelector = "|X"
	EdgesParallelY EdgeSelector = "|Y"
	EdgesParallelZ EdgeSelector = "|Z"
)

// EdgeSet is an opaque selection returned by a kernel.
type EdgeSet struct {
	Selectors []EdgeSelector
}

// All reports whether the set covers every edge of the solid.
func (s EdgeSet) All() bool {
	if len(s.Selectors) == 0 {
		return true
	}
	for _, sel := range s.Selectors {
		if sel == EdgesAll || sel == "" {
			return true
		}
	}
	return false
}
