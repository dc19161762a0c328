// Package sdfx implements the geometry kernel on the sdfx signed distance
// field library. Solids are SDF trees; meshes come from an octree marching
// cubes pass and are cached per solid.
package sdfx

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/aretw0/cadloop/internal/logging"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DefaultResolution is the number of marching cube cells along the longest
// axis of a solid.
const DefaultResolution = 128

// Solid is an immutable SDF with a lazily computed mesh.
// A nil field means the solid is known to be empty.
type Solid struct {
	field sdf.SDF3
	cells int
	// prim is set while the solid is still a single placed primitive.
	prim *shape

	once sync.Once
	mesh *domain.Mesh
	err  error
}

var _ ports.Solid = (*Solid)(nil)

// Bounds returns the bounding box of the distance field.
func (s *Solid) Bounds() domain.BoundingBox {
	if s.field == nil {
		return domain.BoundingBox{}
	}
	bb := s.field.BoundingBox()
	return domain.BoundingBox{Min: vec(bb.Min), Max: vec(bb.Max)}
}

// Empty reports whether the solid has no surface. It tessellates on first
// use.
func (s *Solid) Empty() bool {
	if s.field == nil {
		return true
	}
	m, err := s.tessellate()
	return err != nil || m.Empty()
}

func (s *Solid) tessellate() (*domain.Mesh, error) {
	s.once.Do(func() {
		if s.field == nil {
			s.mesh = &domain.Mesh{}
			return
		}
		defer func() {
			if r := recover(); r != nil {
				s.mesh, s.err = nil, invalid("tessellation failed: %v", r)
			}
		}()
		cells := s.cells
		if cells <= 0 {
			cells = DefaultResolution
		}
		var tris []domain.Triangle
		for _, t := range render.ToTriangles(s.field, render.NewMarchingCubesOctree(cells)) {
			tris = append(tris, domain.Triangle{vec(t[0]), vec(t[1]), vec(t[2])})
		}
		diag := s.Bounds().Size().Length()
		s.mesh = domain.NewMesh(tris, math.Max(diag*1e-9, 1e-12))
	})
	return s.mesh, s.err
}

func vec(v v3.Vec) domain.Vec3 { return domain.Vec3{X: v.X, Y: v.Y, Z: v.Z} }

// Kernel builds and combines sdfx solids.
type Kernel struct {
	cells  int
	logger *slog.Logger
}

var _ ports.Kernel = (*Kernel)(nil)

// Option configures the Kernel.
type Option func(*Kernel)

// WithResolution sets the marching cube cells along the longest axis.
func WithResolution(cells int) Option {
	return func(k *Kernel) {
		if cells > 0 {
			k.cells = cells
		}
	}
}

// WithLogger configures a logger for the Kernel.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Kernel) {
		k.logger = logger
	}
}

// New creates a Kernel.
func New(opts ...Option) *Kernel {
	k := &Kernel{cells: DefaultResolution, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Kernel) Name() string { return "sdfx" }

func invalid(format string, args ...any) error {
	return domain.Errorf(domain.KindInvalidOperand, format, args...)
}

func positive(name string, vals ...float64) error {
	for _, v := range vals {
		if !(v > 0) || math.IsInf(v, 0) {
			return invalid("%s dimensions must be positive and finite, got %v", name, vals)
		}
	}
	return nil
}

func (k *Kernel) cast(s ports.Solid) (*Solid, error) {
	ss, ok := s.(*Solid)
	if !ok || ss == nil {
		return nil, invalid("solid %T was not built by the sdfx kernel", s)
	}
	return ss, nil
}

func primitive(p *shape, field sdf.SDF3, err error) (ports.Solid, error) {
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalidOperand, err, p.kind.String())
	}
	return &Solid{field: field, prim: p}, nil
}

// wrap stamps the kernel resolution on a new solid.
func (k *Kernel) wrap(s ports.Solid, err error) (ports.Solid, error) {
	if ss, ok := s.(*Solid); ok && ss != nil {
		ss.cells = k.cells
	}
	return s, err
}

// Box is centred on the origin.
func (k *Kernel) Box(x, y, z float64) (ports.Solid, error) {
	if err := positive("box", x, y, z); err != nil {
		return nil, err
	}
	field, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: z}, 0)
	return k.wrap(primitive(newShape(shapeBox, x, y, z), field, err))
}

// Cylinder stands on the Z axis, centred on the origin.
func (k *Kernel) Cylinder(radius, height float64) (ports.Solid, error) {
	if err := positive("cylinder", radius, height); err != nil {
		return nil, err
	}
	field, err := sdf.Cylinder3D(height, radius, 0)
	return k.wrap(primitive(newShape(shapeCylinder, radius, radius, height), field, err))
}

func (k *Kernel) Sphere(radius float64) (ports.Solid, error) {
	if err := positive("sphere", radius); err != nil {
		return nil, err
	}
	field, err := sdf.Sphere3D(radius)
	return k.wrap(primitive(newShape(shapeSphere, radius, radius, radius), field, err))
}

// Cone allows one radius to be zero.
func (k *Kernel) Cone(bottom, top, height float64) (ports.Solid, error) {
	if bottom < 0 || top < 0 {
		return nil, invalid("cone radii must not be negative, got %v and %v", bottom, top)
	}
	if err := positive("cone", math.Max(bottom, top), height); err != nil {
		return nil, err
	}
	field, err := sdf.Cone3D(height, bottom, top, 0)
	return k.wrap(primitive(newShape(shapeCone, bottom, top, height), field, err))
}

func (k *Kernel) pair(a, b ports.Solid) (*Solid, *Solid, error) {
	sa, err := k.cast(a)
	if err != nil {
		return nil, nil, err
	}
	sb, err := k.cast(b)
	if err != nil {
		return nil, nil, err
	}
	return sa, sb, nil
}

func (k *Kernel) Union(a, b ports.Solid) (ports.Solid, error) {
	sa, sb, err := k.pair(a, b)
	if err != nil {
		return nil, err
	}
	switch {
	case sa.field == nil:
		return sb, nil
	case sb.field == nil:
		return sa, nil
	}
	return k.wrap(&Solid{field: sdf.Union3D(sa.field, sb.field)}, nil)
}

func (k *Kernel) Subtract(a, b ports.Solid) (ports.Solid, error) {
	sa, sb, err := k.pair(a, b)
	if err != nil {
		return nil, err
	}
	if sa.field == nil || sb.field == nil || !overlap(sa.Bounds(), sb.Bounds()) {
		return sa, nil
	}
	return k.wrap(&Solid{field: sdf.Difference3D(sa.field, sb.field)}, nil)
}

// Intersect returns an empty solid when the bounding boxes are disjoint.
func (k *Kernel) Intersect(a, b ports.Solid) (ports.Solid, error) {
	sa, sb, err := k.pair(a, b)
	if err != nil {
		return nil, err
	}
	if sa.field == nil || sb.field == nil || !overlap(sa.Bounds(), sb.Bounds()) {
		return &Solid{}, nil
	}
	return k.wrap(&Solid{field: sdf.Intersect3D(sa.field, sb.field)}, nil)
}

func overlap(a, b domain.BoundingBox) bool {
	return a.Min.X < b.Max.X && b.Min.X < a.Max.X &&
		a.Min.Y < b.Max.Y && b.Min.Y < a.Max.Y &&
		a.Min.Z < b.Max.Z && b.Min.Z < a.Max.Z
}

// Transform rotates about X, then Y, then Z (degrees) and then translates.
func (k *Kernel) Transform(a ports.Solid, pose domain.Pose) (ports.Solid, error) {
	sa, err := k.cast(a)
	if err != nil {
		return nil, err
	}
	for _, v := range []float64{pose.Translate.X, pose.Translate.Y, pose.Translate.Z, pose.Rotate.X, pose.Rotate.Y, pose.Rotate.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, invalid("transform components must be finite, got %+v", pose)
		}
	}
	if sa.field == nil {
		return sa, nil
	}
	m := sdf.Translate3d(v3.Vec{X: pose.Translate.X, Y: pose.Translate.Y, Z: pose.Translate.Z}).
		Mul(sdf.RotateZ(sdf.DtoR(pose.Rotate.Z))).
		Mul(sdf.RotateY(sdf.DtoR(pose.Rotate.Y))).
		Mul(sdf.RotateX(sdf.DtoR(pose.Rotate.X)))
	return k.wrap(&Solid{field: sdf.Transform3D(sa.field, m), prim: sa.prim.moved(m)}, nil)
}

func (k *Kernel) Volume(a ports.Solid) (float64, error) {
	m, err := k.Tessellate(a)
	if err != nil {
		return 0, err
	}
	return m.Volume(), nil
}

// Tessellate returns the cached mesh of a.
func (k *Kernel) Tessellate(a ports.Solid) (*domain.Mesh, error) {
	sa, err := k.cast(a)
	if err != nil {
		return nil, err
	}
	m, err := sa.tessellate()
	if err != nil {
		k.logger.Warn("Tessellation failed", "solid", sa, "err", err)
		return nil, err
	}
	return m, nil
}

func (s *Solid) String() string {
	if s.field == nil {
		return "sdfx.Solid(empty)"
	}
	b := s.Bounds().Size()
	return fmt.Sprintf("sdfx.Solid(%.3gx%.3gx%.3g)", b.X, b.Y, b.Z)
}
