// Package projector turns solids into 2D drawings: shaded faces ordered
// back to front, plus edge segments classified as visible or hidden.
//
// Projection is orthographic. Hidden-line removal samples every drawn edge
// and tests each sample against the projected triangles found through an
// R-tree.
package projector

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/aretw0/cadloop/internal/logging"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
	"github.com/dhconnelly/rtreego"
)

// Defaults.
const (
	DefaultFeatureAngle = 30.0 // degrees
	DefaultMaxSamples   = 48
	minShade            = 0.2
)

// Projector implements ports.Projector over a tessellator.
type Projector struct {
	tess       ports.Tessellator
	featureCos float64
	maxSamples int
	logger     *slog.Logger
}

var _ ports.Projector = (*Projector)(nil)

// Option configures the Projector.
type Option func(*Projector)

// WithFeatureAngle sets the dihedral angle, in degrees, above which an
// edge between two faces is drawn.
func WithFeatureAngle(deg float64) Option {
	return func(p *Projector) {
		if deg > 0 && deg < 180 {
			p.featureCos = math.Cos(deg * math.Pi / 180)
		}
	}
}

// WithMaxSamples bounds the visibility samples taken along one edge.
func WithMaxSamples(n int) Option {
	return func(p *Projector) {
		if n > 0 {
			p.maxSamples = n
		}
	}
}

// WithLogger configures a logger for the Projector.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) {
		p.logger = logger
	}
}

// New creates a Projector.
func New(tess ports.Tessellator, opts ...Option) *Projector {
	p := &Projector{
		tess:       tess,
		featureCos: math.Cos(DefaultFeatureAngle * math.Pi / 180),
		maxSamples: DefaultMaxSamples,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// frame is the mesh expressed in camera coordinates.
type frame struct {
	mesh    *domain.Mesh
	pts     []domain.Point2
	depth   []float64 // larger is closer to the eye
	normals []domain.Vec3
	facing  []bool
	toward  domain.Vec3
}

// Project renders s as seen by cam.
func (p *Projector) Project(ctx context.Context, s ports.Solid, cam domain.Camera, opts domain.ProjectOptions) (*domain.Projection, error) {
	mesh, err := p.tess.Tessellate(s)
	if err != nil {
		return nil, domain.Wrap(domain.KindProjectionFailed, err, "tessellation failed")
	}
	if mesh.Empty() {
		return nil, domain.Errorf(domain.KindEmptyGeometry, "solid has no surface")
	}

	right, up, toward := cam.Basis()
	f := &frame{
		mesh:    mesh,
		pts:     make([]domain.Point2, len(mesh.Vertices)),
		depth:   make([]float64, len(mesh.Vertices)),
		normals: make([]domain.Vec3, len(mesh.Triangles)),
		facing:  make([]bool, len(mesh.Triangles)),
		toward:  toward,
	}
	for i, v := range mesh.Vertices {
		f.pts[i] = domain.Point2{X: v.Dot(right), Y: v.Dot(up)}
		f.depth[i] = v.Dot(toward)
	}
	for i := range mesh.Triangles {
		f.normals[i] = mesh.Normal(i)
		f.facing[i] = f.normals[i].Dot(toward) > 1e-9
	}

	out := &domain.Projection{Camera: cam, Extent: f.extent()}
	if opts.Shaded {
		light := right.Scale(0.3).Add(up.Scale(0.5)).Add(toward.Scale(0.8)).Normalize()
		out.Faces = f.faces(light)
	}
	if opts.Edges {
		if err := ctx.Err(); err != nil {
			return nil, domain.Wrap(domain.KindProjectionFailed, err, "projection cancelled")
		}
		out.Edges = p.edges(ctx, f, opts.Hidden)
	}

	p.logger.Debug("Projected",
		"camera", cam.Name,
		"triangles", len(mesh.Triangles),
		"faces", len(out.Faces),
		"segments", len(out.Edges),
	)
	return out, nil
}

func (f *frame) extent() domain.Rect2 {
	r := domain.Rect2{Min: f.pts[0], Max: f.pts[0]}
	for _, t := range f.mesh.Triangles {
		for _, v := range t {
			q := f.pts[v]
			r.Min.X = math.Min(r.Min.X, q.X)
			r.Min.Y = math.Min(r.Min.Y, q.Y)
			r.Max.X = math.Max(r.Max.X, q.X)
			r.Max.Y = math.Max(r.Max.Y, q.Y)
		}
	}
	return r
}

// faces returns the front-facing triangles ordered far to near.
func (f *frame) faces(light domain.Vec3) []domain.ProjectedFace {
	out := make([]domain.ProjectedFace, 0, len(f.mesh.Triangles)/2)
	for i, t := range f.mesh.Triangles {
		if !f.facing[i] {
			continue
		}
		shade := math.Max(minShade, math.Min(1, f.normals[i].Dot(light)))
		out = append(out, domain.ProjectedFace{
			Points: [3]domain.Point2{f.pts[t[0]], f.pts[t[1]], f.pts[t[2]]},
			Shade:  shade,
			Depth:  (f.depth[t[0]] + f.depth[t[1]] + f.depth[t[2]]) / 3,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Depth < out[j].Depth })
	return out
}

// drawnEdges selects boundary edges, feature edges and silhouettes, in a
// stable order.
func (p *Projector) drawnEdges(f *frame) []domain.Edge {
	adj := f.mesh.EdgeFaces()
	keys := make([]domain.Edge, 0, len(adj))
	for e := range adj {
		keys = append(keys, e)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	out := keys[:0]
	for _, e := range keys {
		tris := adj[e]
		switch {
		case len(tris) != 2:
			out = append(out, e)
		case f.facing[tris[0]] != f.facing[tris[1]]:
			out = append(out, e)
		case f.normals[tris[0]].Dot(f.normals[tris[1]]) < p.featureCos:
			out = append(out, e)
		}
	}
	return out
}

// occluder is one projected triangle in the visibility index.
type occluder struct {
	tri  int
	rect rtreego.Rect
}

func (o *occluder) Bounds() rtreego.Rect { return o.rect }

func (f *frame) index(pad float64) *rtreego.Rtree {
	items := make([]rtreego.Spatial, 0, len(f.mesh.Triangles))
	for i, t := range f.mesh.Triangles {
		a, b, c := f.pts[t[0]], f.pts[t[1]], f.pts[t[2]]
		lo := rtreego.Point{math.Min(a.X, math.Min(b.X, c.X)) - pad, math.Min(a.Y, math.Min(b.Y, c.Y)) - pad}
		hi := rtreego.Point{math.Max(a.X, math.Max(b.X, c.X)) + pad, math.Max(a.Y, math.Max(b.Y, c.Y)) + pad}
		rect, err := rtreego.NewRectFromPoints(lo, hi)
		if err != nil {
			continue
		}
		items = append(items, &occluder{tri: i, rect: rect})
	}
	return rtreego.NewTree(2, 25, 50, items...)
}

func (p *Projector) edges(ctx context.Context, f *frame, hidden bool) []domain.Segment {
	ext := f.extent()
	diag := math.Hypot(ext.Width(), ext.Height())
	if diag == 0 {
		diag = 1
	}
	eps := diag * 1e-4
	tree := f.index(eps)

	var out []domain.Segment
	for n, e := range p.drawnEdges(f) {
		if n%256 == 0 && ctx.Err() != nil {
			break
		}
		a, b := f.pts[e[0]], f.pts[e[1]]
		da, db := f.depth[e[0]], f.depth[e[1]]
		length := math.Hypot(b.X-a.X, b.Y-a.Y)
		if length < eps {
			continue
		}
		steps := int(math.Ceil(length / diag * float64(p.maxSamples)))
		steps = max(1, min(steps, p.maxSamples))

		var cur *domain.Segment
		for k := 0; k < steps; k++ {
			t0, t1 := float64(k)/float64(steps), float64(k+1)/float64(steps)
			tm := (t0 + t1) / 2
			q := lerp2(a, b, tm)
			occ := f.occluded(tree, q, da+(db-da)*tm, e, eps)

			if cur != nil && cur.Hidden == occ {
				cur.B = lerp2(a, b, t1)
				continue
			}
			if cur != nil {
				out = appendSegment(out, *cur, hidden)
			}
			cur = &domain.Segment{A: lerp2(a, b, t0), B: lerp2(a, b, t1), Hidden: occ}
		}
		if cur != nil {
			out = appendSegment(out, *cur, hidden)
		}
	}
	return out
}

func appendSegment(out []domain.Segment, s domain.Segment, hidden bool) []domain.Segment {
	if s.Hidden && !hidden {
		return out
	}
	return append(out, s)
}

// occluded reports whether a triangle other than the faces of edge e
// covers q in front of depth d.
func (f *frame) occluded(tree *rtreego.Rtree, q domain.Point2, d float64, e domain.Edge, eps float64) bool {
	probe := rtreego.Point{q.X, q.Y}.ToRect(eps)
	for _, s := range tree.SearchIntersect(probe) {
		i := s.(*occluder).tri
		t := f.mesh.Triangles[i]
		if incident(t, e) {
			continue
		}
		w0, w1, w2, ok := barycentric(q, f.pts[t[0]], f.pts[t[1]], f.pts[t[2]])
		if !ok {
			continue
		}
		z := w0*f.depth[t[0]] + w1*f.depth[t[1]] + w2*f.depth[t[2]]
		if z > d+eps {
			return true
		}
	}
	return false
}

// incident reports whether e is a side of t.
func incident(t [3]int, e domain.Edge) bool {
	n := 0
	for _, v := range t {
		if v == e[0] || v == e[1] {
			n++
		}
	}
	return n == 2
}

// barycentric returns the weights of q in triangle abc when q lies
// strictly inside it.
func barycentric(q, a, b, c domain.Point2) (w0, w1, w2 float64, ok bool) {
	det := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if math.Abs(det) < 1e-12 {
		return 0, 0, 0, false
	}
	w0 = ((b.Y-c.Y)*(q.X-c.X) + (c.X-b.X)*(q.Y-c.Y)) / det
	w1 = ((c.Y-a.Y)*(q.X-c.X) + (a.X-c.X)*(q.Y-c.Y)) / det
	w2 = 1 - w0 - w1
	const in = 1e-9
	return w0, w1, w2, w0 > in && w1 > in && w2 > in
}

func lerp2(a, b domain.Point2, t float64) domain.Point2 {
	return domain.Point2{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}
