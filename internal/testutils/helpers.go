package testutils

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
)

// BoxTriangles returns the 12 outward-wound triangles of an axis-aligned box.
func BoxTriangles(b domain.BoundingBox) []domain.Triangle {
	c := b.Corners()
	quads := [6][4]int{
		{0, 2, 3, 1}, // -Z
		{4, 5, 7, 6}, // +Z
		{0, 1, 5, 4}, // -Y
		{2, 6, 7, 3}, // +Y
		{0, 4, 6, 2}, // -X
		{1, 3, 7, 5}, // +X
	}
	tris := make([]domain.Triangle, 0, 12)
	for _, q := range quads {
		tris = append(tris,
			domain.Triangle{c[q[0]], c[q[1]], c[q[2]]},
			domain.Triangle{c[q[0]], c[q[2]], c[q[3]]},
		)
	}
	return tris
}

// BoxMesh is the welded mesh of BoxTriangles.
func BoxMesh(b domain.BoundingBox) *domain.Mesh {
	return domain.NewMesh(BoxTriangles(b), 1e-9)
}

// CenteredBox returns a box of the given size centred on the origin.
func CenteredBox(x, y, z float64) domain.BoundingBox {
	h := domain.Vec3{X: x / 2, Y: y / 2, Z: z / 2}
	return domain.BoundingBox{Min: h.Scale(-1), Max: h}
}

// Solid is the geometry of Kernel: a union of axis-aligned boxes plus a
// log of the operations that produced it.
type Solid struct {
	Boxes []domain.BoundingBox
	Ops   []string
}

func (s *Solid) Bounds() domain.BoundingBox {
	if len(s.Boxes) == 0 {
		return domain.BoundingBox{}
	}
	b := s.Boxes[0]
	for _, o := range s.Boxes[1:] {
		b = b.Extend(o.Min).Extend(o.Max)
	}
	return b
}

func (s *Solid) Empty() bool { return len(s.Boxes) == 0 }

// Marked returns a copy with op appended to the log.
func (s *Solid) Marked(op string) *Solid {
	return &Solid{
		Boxes: append([]domain.BoundingBox(nil), s.Boxes...),
		Ops:   append(append([]string(nil), s.Ops...), op),
	}
}

// Kernel is a deterministic stand-in for a solid-modeling kernel. Every
// primitive is represented by its bounding box, which is exact for boxes
// and good enough for the store, sandbox and view tests.
type Kernel struct {
	Tessellations atomic.Int64
}

var _ ports.Kernel = (*Kernel)(nil)

func NewKernel() *Kernel { return &Kernel{} }

func (k *Kernel) Name() string { return "test-boxes" }

func (k *Kernel) cast(s ports.Solid) (*Solid, error) {
	ts, ok := s.(*Solid)
	if !ok || ts == nil {
		return nil, domain.Errorf(domain.KindInvalidOperand, "foreign or nil solid %T", s)
	}
	return ts, nil
}

func positive(name string, vals ...float64) error {
	for _, v := range vals {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.Errorf(domain.KindInvalidOperand, "%s dimensions must be positive, got %v", name, vals)
		}
	}
	return nil
}

func (k *Kernel) Box(x, y, z float64) (ports.Solid, error) {
	if err := positive("box", x, y, z); err != nil {
		return nil, err
	}
	return &Solid{Boxes: []domain.BoundingBox{CenteredBox(x, y, z)}, Ops: []string{fmt.Sprintf("box(%g,%g,%g)", x, y, z)}}, nil
}

func (k *Kernel) Cylinder(r, h float64) (ports.Solid, error) {
	if err := positive("cylinder", r, h); err != nil {
		return nil, err
	}
	return &Solid{Boxes: []domain.BoundingBox{CenteredBox(2*r, 2*r, h)}, Ops: []string{fmt.Sprintf("cylinder(%g,%g)", r, h)}}, nil
}

func (k *Kernel) Sphere(r float64) (ports.Solid, error) {
	if err := positive("sphere", r); err != nil {
		return nil, err
	}
	return &Solid{Boxes: []domain.BoundingBox{CenteredBox(2*r, 2*r, 2*r)}, Ops: []string{fmt.Sprintf("sphere(%g)", r)}}, nil
}

func (k *Kernel) Cone(r1, r2, h float64) (ports.Solid, error) {
	if err := positive("cone", math.Max(r1, r2), h); err != nil {
		return nil, err
	}
	r := math.Max(r1, r2)
	return &Solid{Boxes: []domain.BoundingBox{CenteredBox(2*r, 2*r, h)}, Ops: []string{fmt.Sprintf("cone(%g,%g,%g)", r1, r2, h)}}, nil
}

func (k *Kernel) Union(a, b ports.Solid) (ports.Solid, error) {
	sa, err := k.cast(a)
	if err != nil {
		return nil, err
	}
	sb, err := k.cast(b)
	if err != nil {
		return nil, err
	}
	out := sa.Marked("union[" + strings.Join(sb.Ops, ";") + "]")
	out.Boxes = append(out.Boxes, sb.Boxes...)
	return out, nil
}

// Subtract keeps the minuend's boxes; the subtrahend is only logged.
func (k *Kernel) Subtract(a, b ports.Solid) (ports.Solid, error) {
	sa, err := k.cast(a)
	if err != nil {
		return nil, err
	}
	sb, err := k.cast(b)
	if err != nil {
		return nil, err
	}
	return sa.Marked("sub[" + strings.Join(sb.Ops, ";") + "]"), nil
}

// Intersect keeps the pairwise overlaps of the two box sets.
func (k *Kernel) Intersect(a, b ports.Solid) (ports.Solid, error) {
	sa, err := k.cast(a)
	if err != nil {
		return nil, err
	}
	sb, err := k.cast(b)
	if err != nil {
		return nil, err
	}
	out := sa.Marked("and[" + strings.Join(sb.Ops, ";") + "]")
	out.Boxes = nil
	for _, x := range sa.Boxes {
		for _, y := range sb.Boxes {
			lo, hi := x.Min.Max(y.Min), x.Max.Min(y.Max)
			if lo.X < hi.X && lo.Y < hi.Y && lo.Z < hi.Z {
				out.Boxes = append(out.Boxes, domain.BoundingBox{Min: lo, Max: hi})
			}
		}
	}
	return out, nil
}

// Transform only supports translations.
func (k *Kernel) Transform(a ports.Solid, pose domain.Pose) (ports.Solid, error) {
	sa, err := k.cast(a)
	if err != nil {
		return nil, err
	}
	out := sa.Marked(fmt.Sprintf("move(%g,%g,%g)", pose.Translate.X, pose.Translate.Y, pose.Translate.Z))
	for i, b := range out.Boxes {
		out.Boxes[i] = domain.BoundingBox{Min: b.Min.Add(pose.Translate), Max: b.Max.Add(pose.Translate)}
	}
	if pose.Rotate != (domain.Vec3{}) {
		out.Ops[len(out.Ops)-1] += fmt.Sprintf("rot(%g,%g,%g)", pose.Rotate.X, pose.Rotate.Y, pose.Rotate.Z)
	}
	return out, nil
}

func (k *Kernel) SelectEdges(a ports.Solid, selectors ...domain.EdgeSelector) (domain.EdgeSet, error) {
	if _, err := k.cast(a); err != nil {
		return domain.EdgeSet{}, err
	}
	return domain.EdgeSet{Selectors: selectors}, nil
}

func (k *Kernel) Fillet(a ports.Solid, edges domain.EdgeSet, radius float64) (ports.Solid, error) {
	sa, err := k.cast(a)
	if err != nil {
		return nil, err
	}
	if err := positive("fillet", radius); err != nil {
		return nil, err
	}
	return sa.Marked(fmt.Sprintf("fillet(%g)", radius)), nil
}

func (k *Kernel) Chamfer(a ports.Solid, edges domain.EdgeSet, length float64) (ports.Solid, error) {
	sa, err := k.cast(a)
	if err != nil {
		return nil, err
	}
	if err := positive("chamfer", length); err != nil {
		return nil, err
	}
	return sa.Marked(fmt.Sprintf("chamfer(%g)", length)), nil
}

// Volume sums the box volumes (overlaps are counted twice).
func (k *Kernel) Volume(a ports.Solid) (float64, error) {
	sa, err := k.cast(a)
	if err != nil {
		return 0, err
	}
	var v float64
	for _, b := range sa.Boxes {
		s := b.Size()
		v += s.X * s.Y * s.Z
	}
	return v, nil
}

// Tessellate emits the triangles of every box.
func (k *Kernel) Tessellate(a ports.Solid) (*domain.Mesh, error) {
	sa, err := k.cast(a)
	if err != nil {
		return nil, err
	}
	k.Tessellations.Add(1)
	var tris []domain.Triangle
	for _, b := range sa.Boxes {
		tris = append(tris, BoxTriangles(b)...)
	}
	return domain.NewMesh(tris, 1e-9), nil
}
