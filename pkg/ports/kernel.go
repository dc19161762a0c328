package ports

import "github.com/aretw0/cadloop/pkg/domain"

// Solid is the opaque geometry handle. See domain.Solid.
type Solid = domain.Solid

// Kernel is the Geometry Capability consumed by the sandbox and the
// measurement paths. Every operation fails with a domain.KindInvalidOperand
// error on degenerate or foreign input rather than producing undefined geometry.
type Kernel interface {
	// Name identifies the kernel in logs and health output.
	Name() string

	Box(x, y, z float64) (Solid, error)
	Cylinder(radius, height float64) (Solid, error)
	Sphere(radius float64) (Solid, error)
	Cone(bottomRadius, topRadius, height float64) (Solid, error)

	Union(a, b Solid) (Solid, error)
	Subtract(a, b Solid) (Solid, error)
	Intersect(a, b Solid) (Solid, error)
	Transform(a Solid, pose domain.Pose) (Solid, error)

	SelectEdges(a Solid, selectors ...domain.EdgeSelector) (domain.EdgeSet, error)
	Fillet(a Solid, edges domain.EdgeSet, radius float64) (Solid, error)
	Chamfer(a Solid, edges domain.EdgeSet, length float64) (Solid, error)

	Volume(a Solid) (float64, error)
	Tessellator
}

// Tessellator produces the triangle surface of a solid. Implementations
// cache the result per solid, so repeated calls are cheap.
type Tessellator interface {
	Tessellate(a Solid) (*domain.Mesh, error)
}
