package sdfx

import (
	"math"

	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

type shapeKind int

const (
	shapeBox shapeKind = iota
	shapeCylinder
	shapeCone
	shapeSphere
)

func (k shapeKind) String() string {
	switch k {
	case shapeBox:
		return "box"
	case shapeCylinder:
		return "cylinder"
	case shapeCone:
		return "cone"
	case shapeSphere:
		return "sphere"
	}
	return "solid"
}

// shape remembers the primitive behind a solid and where it was placed, so
// edge operations can rebuild it with the rounding sdfx bakes into its
// primitives. dims is x, y, z for a box; radius, radius, height for a
// cylinder; bottom, top, height for a cone.
type shape struct {
	kind   shapeKind
	dims   v3.Vec
	place  sdf.M44
	placed bool
}

func newShape(kind shapeKind, a, b, c float64) *shape {
	return &shape{kind: kind, dims: v3.Vec{X: a, Y: b, Z: c}, place: sdf.Identity3d()}
}

// moved returns the shape after m is applied on top of its placement.
func (p *shape) moved(m sdf.M44) *shape {
	if p == nil {
		return nil
	}
	return &shape{kind: p.kind, dims: p.dims, place: m.Mul(p.place), placed: true}
}

func (p *shape) put(field sdf.SDF3) sdf.SDF3 {
	if !p.placed {
		return field
	}
	return sdf.Transform3D(field, p.place)
}

type edgeOp int

const (
	opFillet edgeOp = iota
	opChamfer
)

func (o edgeOp) String() string {
	if o == opChamfer {
		return "chamfer"
	}
	return "fillet"
}

// axes flags the edge directions a selection covers, indexed X, Y, Z.
type axes [3]bool

func (a axes) every() bool { return a[0] && a[1] && a[2] }

func selectAxes(set domain.EdgeSet) (axes, error) {
	if set.All() {
		return axes{true, true, true}, nil
	}
	var a axes
	for _, sel := range set.Selectors {
		switch sel {
		case domain.EdgesParallelX:
			a[0] = true
		case domain.EdgesParallelY:
			a[1] = true
		case domain.EdgesParallelZ:
			a[2] = true
		default:
			return axes{}, invalid("edge selector %q is not supported; use %q or one of %q, %q, %q",
				sel, domain.EdgesAll, domain.EdgesParallelX, domain.EdgesParallelY, domain.EdgesParallelZ)
		}
	}
	return a, nil
}

// SelectEdges accepts the whole solid or the edges parallel to an axis.
func (k *Kernel) SelectEdges(a ports.Solid, selectors ...domain.EdgeSelector) (domain.EdgeSet, error) {
	if _, err := k.cast(a); err != nil {
		return domain.EdgeSet{}, err
	}
	set := domain.EdgeSet{Selectors: selectors}
	if _, err := selectAxes(set); err != nil {
		return domain.EdgeSet{}, err
	}
	return set, nil
}

// Fillet rounds the selected edges. Primitives are rebuilt with a rounded
// profile in their own frame. Any other solid is intersected with a rounded
// copy of its bounding box, so only edges lying on that box are rounded.
func (k *Kernel) Fillet(a ports.Solid, edges domain.EdgeSet, radius float64) (ports.Solid, error) {
	return k.edge(a, edges, radius, opFillet)
}

// Chamfer bevels the selected edges the same way Fillet rounds them.
func (k *Kernel) Chamfer(a ports.Solid, edges domain.EdgeSet, length float64) (ports.Solid, error) {
	return k.edge(a, edges, length, opChamfer)
}

func (k *Kernel) edge(a ports.Solid, edges domain.EdgeSet, amount float64, op edgeOp) (ports.Solid, error) {
	sa, err := k.cast(a)
	if err != nil {
		return nil, err
	}
	if err := positive(op.String(), amount); err != nil {
		return nil, err
	}
	ax, err := selectAxes(edges)
	if err != nil {
		return nil, err
	}
	if sa.field == nil {
		return sa, nil
	}

	var field sdf.SDF3
	if sa.prim != nil {
		field, err = sa.prim.edged(ax, amount, op)
	} else {
		bb := sa.field.BoundingBox()
		var env sdf.SDF3
		if env, err = envelope(bb.Size(), ax, amount, op); err == nil {
			field = sdf.Intersect3D(sa.field, sdf.Transform3D(env, sdf.Translate3d(bb.Center())))
		}
	}
	if err != nil {
		return nil, err
	}
	return k.wrap(&Solid{field: field}, nil)
}

func (p *shape) edged(ax axes, amount float64, op edgeOp) (sdf.SDF3, error) {
	var (
		field sdf.SDF3
		err   error
	)
	switch p.kind {
	case shapeBox:
		field, err = envelope(p.dims, ax, amount, op)
	case shapeCylinder:
		r, h := p.dims.X, p.dims.Z
		switch {
		case !ax.every():
			return nil, invalid("a cylinder has no straight edges to %s", op)
		case amount >= r || 2*amount >= h:
			return nil, invalid("%s %g is too large for a cylinder of radius %g and height %g", op, amount, r, h)
		case op == opFillet:
			field, err = sdf.Cylinder3D(h, r, amount)
		default:
			field, err = bevelledCylinder(r, h, amount)
		}
	case shapeCone:
		r0, r1, h := p.dims.X, p.dims.Y, p.dims.Z
		switch {
		case !ax.every() || op == opChamfer:
			return nil, invalid("a cone only supports a fillet of every edge")
		case amount >= math.Min(r0, r1) || 2*amount >= h:
			return nil, invalid("fillet %g is too large for a cone with radii %g and %g", amount, r0, r1)
		}
		field, err = sdf.Cone3D(h, r0, r1, amount)
	default:
		return nil, invalid("a %s has no edges to %s", p.kind, op)
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalidOperand, err, op.String())
	}
	return p.put(field), nil
}

// envelope is a box of the given size, centred on the origin, whose edges
// along the selected axes are rounded or bevelled.
func envelope(size v3.Vec, ax axes, amount float64, op edgeOp) (sdf.SDF3, error) {
	if ax.every() && op == opFillet {
		if thinnest := math.Min(size.X, math.Min(size.Y, size.Z)); 2*amount >= thinnest {
			return nil, invalid("fillet %g is too large for a solid %.3g thick", amount, thinnest)
		}
		return sdf.Box3D(size, amount)
	}
	var field sdf.SDF3
	for axis, on := range ax {
		if !on {
			continue
		}
		p, err := prism(size, axis, amount, op)
		if err != nil {
			return nil, err
		}
		if field == nil {
			field = p
		} else {
			field = sdf.Intersect3D(field, p)
		}
	}
	return field, nil
}

// prism extrudes the rounded or bevelled cross section of the box along
// one axis. Extrusions run along Z and are turned onto X or Y.
func prism(size v3.Vec, axis int, amount float64, op edgeOp) (sdf.SDF3, error) {
	var w, h, l float64
	turn, turned := sdf.Identity3d(), true
	switch axis {
	case 0:
		w, h, l = size.Z, size.Y, size.X
		turn = sdf.RotateY(sdf.DtoR(90))
	case 1:
		w, h, l = size.X, size.Z, size.Y
		turn = sdf.RotateX(sdf.DtoR(90))
	default:
		w, h, l = size.X, size.Y, size.Z
		turned = false
	}
	if gap := math.Min(w, h); 2*amount >= gap {
		return nil, invalid("%s %g is too large for edges %.3g apart", op, amount, gap)
	}

	var profile sdf.SDF2
	if op == opFillet {
		profile = sdf.Box2D(v2.Vec{X: w, Y: h}, amount)
	} else {
		x, y, c := w/2, h/2, amount
		var err error
		profile, err = sdf.Polygon2D([]v2.Vec{
			{X: -x + c, Y: -y}, {X: x - c, Y: -y},
			{X: x, Y: -y + c}, {X: x, Y: y - c},
			{X: x - c, Y: y}, {X: -x + c, Y: y},
			{X: -x, Y: y - c}, {X: -x, Y: -y + c},
		})
		if err != nil {
			return nil, domain.Wrap(domain.KindInvalidOperand, err, "chamfer profile")
		}
	}
	field := sdf.Extrude3D(profile, l)
	if turned {
		field = sdf.Transform3D(field, turn)
	}
	return field, nil
}

// bevelledCylinder stacks a cylinder between two cone frustums.
func bevelledCylinder(r, h, c float64) (sdf.SDF3, error) {
	bottom, err := sdf.Cone3D(c, r-c, r, 0)
	if err != nil {
		return nil, err
	}
	top, err := sdf.Cone3D(c, r, r-c, 0)
	if err != nil {
		return nil, err
	}
	mid, err := sdf.Cylinder3D(h-2*c, r, 0)
	if err != nil {
		return nil, err
	}
	return sdf.Union3D(
		sdf.Transform3D(bottom, sdf.Translate3d(v3.Vec{Z: -(h - c) / 2})),
		mid,
		sdf.Transform3D(top, sdf.Translate3d(v3.Vec{Z: (h - c) / 2})),
	), nil
}
