package sandbox

import (
	"fmt"
	"reflect"

	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
	"github.com/traefik/yaegi/interp"
)

// cadPackage is the import path under which the primitives are exported
// to the interpreter.
const cadPackage = "cadloop/cad"

// Shape is the script-side handle to a solid. Its methods never mutate the
// receiver. A Shape with no solid is unbound: it is what result holds on
// create until the script assigns it.
type Shape struct {
	k     ports.Kernel
	solid ports.Solid
}

// must turns a kernel failure into a script panic, which the sandbox
// reports as a RuntimeError.
func must(s ports.Solid, err error) ports.Solid {
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Shape) wrap(solid ports.Solid) *Shape {
	return &Shape{k: s.k, solid: solid}
}

func (s *Shape) bound(op string) {
	if s == nil || s.solid == nil {
		panic(domain.Errorf(domain.KindInvalidOperand, "%s on an unbound shape", op))
	}
}

// Add returns the union of s and others. An unbound receiver contributes
// nothing.
func (s *Shape) Add(others ...*Shape) *Shape {
	acc := s.solid
	for _, o := range others {
		o.bound("Add")
		if acc == nil {
			acc = o.solid
			continue
		}
		acc = must(s.k.Union(acc, o.solid))
	}
	return s.wrap(acc)
}

// Sub returns s minus every shape in others.
func (s *Shape) Sub(others ...*Shape) *Shape {
	s.bound("Sub")
	acc := s.solid
	for _, o := range others {
		o.bound("Sub")
		acc = must(s.k.Subtract(acc, o.solid))
	}
	return s.wrap(acc)
}

// And returns the intersection of s and o.
func (s *Shape) And(o *Shape) *Shape {
	s.bound("And")
	o.bound("And")
	return s.wrap(must(s.k.Intersect(s.solid, o.solid)))
}

// Move translates the shape.
func (s *Shape) Move(x, y, z float64) *Shape {
	s.bound("Move")
	return s.wrap(must(s.k.Transform(s.solid, domain.Pose{Translate: domain.Vec3{X: x, Y: y, Z: z}})))
}

// RotateX rotates the shape about the X axis by deg degrees.
func (s *Shape) RotateX(deg float64) *Shape { return s.rotate(domain.Vec3{X: deg}) }

// RotateY rotates the shape about the Y axis by deg degrees.
func (s *Shape) RotateY(deg float64) *Shape { return s.rotate(domain.Vec3{Y: deg}) }

// RotateZ rotates the shape about the Z axis by deg degrees.
func (s *Shape) RotateZ(deg float64) *Shape { return s.rotate(domain.Vec3{Z: deg}) }

func (s *Shape) rotate(r domain.Vec3) *Shape {
	s.bound("Rotate")
	return s.wrap(must(s.k.Transform(s.solid, domain.Pose{Rotate: r})))
}

// Fillet rounds the selected edges, or every edge when no selector is given.
func (s *Shape) Fillet(radius float64, selectors ...string) *Shape {
	s.bound("Fillet")
	edges := s.edges(selectors)
	return s.wrap(must(s.k.Fillet(s.solid, edges, radius)))
}

// Chamfer bevels the selected edges, or every edge when no selector is given.
func (s *Shape) Chamfer(length float64, selectors ...string) *Shape {
	s.bound("Chamfer")
	edges := s.edges(selectors)
	return s.wrap(must(s.k.Chamfer(s.solid, edges, length)))
}

func (s *Shape) edges(selectors []string) domain.EdgeSet {
	sel := make([]domain.EdgeSelector, 0, len(selectors))
	for _, v := range selectors {
		sel = append(sel, domain.EdgeSelector(v))
	}
	set, err := s.k.SelectEdges(s.solid, sel...)
	if err != nil {
		panic(err)
	}
	return set
}

// Size returns the bounding box extents.
func (s *Shape) Size() (x, y, z float64) {
	s.bound("Size")
	v := s.solid.Bounds().Size()
	return v.X, v.Y, v.Z
}

// Volume returns the enclosed volume.
func (s *Shape) Volume() float64 {
	s.bound("Volume")
	v, err := s.k.Volume(s.solid)
	if err != nil {
		panic(err)
	}
	return v
}

// IsEmpty reports whether the shape is unbound or encloses nothing.
func (s *Shape) IsEmpty() bool {
	return s == nil || s.solid == nil || s.solid.Empty()
}

func (s *Shape) String() string {
	if s == nil || s.solid == nil {
		return "Shape(unbound)"
	}
	b := s.solid.Bounds()
	return fmt.Sprintf("Shape(%v..%v)", b.Min, b.Max)
}

// symbols builds the cad package for one run. Every function closes over
// the kernel and the prior geometry, so nothing is shared between runs.
func symbols(k ports.Kernel, prior ports.Solid) interp.Exports {
	root := &Shape{k: k}
	return interp.Exports{
		cadPackage + "/cad": {
			"Shape": reflect.ValueOf((*Shape)(nil)),
			"Prior": reflect.ValueOf(func() *Shape {
				return root.wrap(prior)
			}),
			"Box": reflect.ValueOf(func(x, y, z float64) *Shape {
				return root.wrap(must(k.Box(x, y, z)))
			}),
			"Cylinder": reflect.ValueOf(func(radius, height float64) *Shape {
				return root.wrap(must(k.Cylinder(radius, height)))
			}),
			"Sphere": reflect.ValueOf(func(radius float64) *Shape {
				return root.wrap(must(k.Sphere(radius)))
			}),
			"Cone": reflect.ValueOf(func(r1, r2, height float64) *Shape {
				return root.wrap(must(k.Cone(r1, r2, height)))
			}),
			"Union": reflect.ValueOf(func(shapes ...*Shape) *Shape {
				return root.Add(shapes...)
			}),
		},
	}
}

// prelude binds the primitives and result into the script namespace.
const prelude = `import (
	"math"
	"sort"
	"strconv"
	"strings"

	"cadloop/cad"
)

var (
	_ = math.Pi
	_ = sort.Ints
	_ = strconv.Itoa
	_ = strings.Join
)

const (
	X = "|X"
	Y = "|Y"
	Z = "|Z"
)

var (
	Box      = cad.Box
	Cylinder = cad.Cylinder
	Sphere   = cad.Sphere
	Cone     = cad.Cone
	Union    = cad.Union
)

var result = cad.Prior()
`
