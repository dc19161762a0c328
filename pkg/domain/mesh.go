package domain

import "math"

// Triangle is three vertex positions in counter-clockwise order
// when seen from outside the solid.
type Triangle [3]Vec3

// Mesh is an indexed triangle mesh with welded vertices.
type Mesh struct {
	Vertices  []Vec3
	Triangles [][3]int
}

// NewMesh welds coincident vertices (within tol) and drops triangles
// that collapse after welding.
func NewMesh(tris []Triangle, tol float64) *Mesh {
	if tol <= 0 {
		tol = 1e-6
	}
	type key [3]int64
	index := make(map[key]int, len(tris))
	m := &Mesh{Triangles: make([][3]int, 0, len(tris))}

	vertex := func(p Vec3) int {
		k := key{
			int64(math.Round(p.X / tol)),
			int64(math.Round(p.Y / tol)),
			int64(math.Round(p.Z / tol)),
		}
		if i, ok := index[k]; ok {
			return i
		}
		i := len(m.Vertices)
		index[k] = i
		m.Vertices = append(m.Vertices, p)
		return i
	}

	for _, t := range tris {
		a, b, c := vertex(t[0]), vertex(t[1]), vertex(t[2])
		if a == b || b == c || a == c {
			continue
		}
		m.Triangles = append(m.Triangles, [3]int{a, b, c})
	}
	return m
}

// Empty reports whether the mesh has no triangles.
func (m *Mesh) Empty() bool { return m == nil || len(m.Triangles) == 0 }

// Triangle returns the positions of triangle i.
func (m *Mesh) Triangle(i int) Triangle {
	t := m.Triangles[i]
	return Triangle{m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]}
}

// Normal returns the unit normal of triangle i from its winding.
func (m *Mesh) Normal(i int) Vec3 {
	t := m.Triangle(i)
	return t[1].Sub(t[0]).Cross(t[2].Sub(t[0])).Normalize()
}

// Bounds returns the box around all referenced vertices.
func (m *Mesh) Bounds() BoundingBox {
	if m.Empty() {
		return BoundingBox{}
	}
	p := m.Vertices[m.Triangles[0][0]]
	b := BoundingBox{Min: p, Max: p}
	for _, t := range m.Triangles {
		for _, v := range t {
			b = b.Extend(m.Vertices[v])
		}
	}
	return b
}

// SignedVolume integrates over the surface with the divergence theorem.
// Outward-facing winding yields a positive value.
func (m *Mesh) SignedVolume() float64 {
	var v float64
	for i := range m.Triangles {
		t := m.Triangle(i)
		v += t[0].Dot(t[1].Cross(t[2]))
	}
	return v / 6
}

// Volume is the absolute enclosed volume.
func (m *Mesh) Volume() float64 { return math.Abs(m.SignedVolume()) }

// Area is the total surface area.
func (m *Mesh) Area() float64 {
	var a float64
	for i := range m.Triangles {
		a += m.TriangleArea(i)
	}
	return a
}

// TriangleArea returns the area of triangle i.
func (m *Mesh) TriangleArea(i int) float64 {
	t := m.Triangle(i)
	return t[1].Sub(t[0]).Cross(t[2].Sub(t[0])).Length() / 2
}

// Centroid returns the centre of mass of the enclosed volume, falling
// back to the area-weighted surface centroid for open or flat meshes.
func (m *Mesh) Centroid() Vec3 {
	var c Vec3
	var vol float64
	for i := range m.Triangles {
		t := m.Triangle(i)
		v := t[0].Dot(t[1].Cross(t[2])) / 6
		vol += v
		c = c.Add(t[0].Add(t[1]).Add(t[2]).Scale(v / 4))
	}
	if math.Abs(vol) > 1e-12 {
		return c.Scale(1 / vol)
	}
	var area float64
	c = Vec3{}
	for i := range m.Triangles {
		t := m.Triangle(i)
		a := m.TriangleArea(i)
		area += a
		c = c.Add(t[0].Add(t[1]).Add(t[2]).Scale(a / 3))
	}
	if area == 0 {
		return Vec3{}
	}
	return c.Scale(1 / area)
}

// Components counts connected triangle groups sharing a vertex.
func (m *Mesh) Components() int {
	if m.Empty() {
		return 0
	}
	uf := NewUnionFind(len(m.Vertices))
	for _, t := range m.Triangles {
		uf.Union(t[0], t[1])
		uf.Union(t[1], t[2])
	}
	roots := make(map[int]struct{})
	for _, t := range m.Triangles {
		roots[uf.Find(t[0])] = struct{}{}
	}
	return len(roots)
}

// Edge is an undirected edge keyed with the smaller index first.
type Edge [2]int

// MakeEdge orders a and b.
func MakeEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{a, b}
}

// EdgeFaces maps every undirected edge to the triangles using it,
// in triangle order.
func (m *Mesh) EdgeFaces() map[Edge][]int {
	out := make(map[Edge][]int, len(m.Triangles)*3/2)
	for i, t := range m.Triangles {
		for k := 0; k < 3; k++ {
			e := MakeEdge(t[k], t[(k+1)%3])
			out[e] = append(out[e], i)
		}
	}
	return out
}

// UnionFind is a disjoint-set forest over dense integer ids.
type UnionFind struct {
	parent []int
	rank   []int
}

func NewUnionFind(n int) *UnionFind {
	uf := &UnionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *UnionFind) Find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *UnionFind) Union(a, b int) {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
