// Package printability inspects triangle meshes for 3D printing problems:
// holes, non-manifold edges, inconsistent winding, thin walls and
// unsupported overhangs. It never modifies its input.
package printability

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/aretw0/cadloop/internal/logging"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
)

// DefaultOverhangAngle is the steepest unsupported overhang, in degrees
// from vertical, that prints without support.
const DefaultOverhangAngle = 45.0

// Options tunes one analysis.
type Options struct {
	// MinWallThickness is the thinnest acceptable wall in mm.
	MinWallThickness float64
	// OverhangAngle is measured from vertical, in degrees.
	OverhangAngle float64
}

func (o Options) withDefaults() Options {
	if o.MinWallThickness <= 0 {
		o.MinWallThickness = domain.DefaultMinWallThickness
	}
	if o.OverhangAngle <= 0 || o.OverhangAngle >= 90 {
		o.OverhangAngle = DefaultOverhangAngle
	}
	return o
}

// Analyzer tessellates solids and analyses the resulting mesh.
type Analyzer struct {
	tess     ports.Tessellator
	defaults Options
	logger   *slog.Logger
}

// Option configures the Analyzer.
type Option func(*Analyzer)

// WithDefaults sets the options used when a request leaves them zero.
func WithDefaults(o Options) Option {
	return func(a *Analyzer) {
		a.defaults = o
	}
}

// WithLogger configures a logger for the Analyzer.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// New creates an Analyzer.
func New(tess ports.Tessellator, opts ...Option) *Analyzer {
	a := &Analyzer{tess: tess, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	a.defaults = a.defaults.withDefaults()
	return a
}

// Analyze reports on s. Zero fields of opts take the analyzer defaults.
func (a *Analyzer) Analyze(ctx context.Context, s ports.Solid, opts Options) (*domain.PrintabilityReport, error) {
	if opts.MinWallThickness <= 0 {
		opts.MinWallThickness = a.defaults.MinWallThickness
	}
	if opts.OverhangAngle <= 0 {
		opts.OverhangAngle = a.defaults.OverhangAngle
	}
	if s == nil {
		return nil, domain.Errorf(domain.KindAnalysisUnsupported, "no geometry to analyse")
	}
	mesh, err := a.tess.Tessellate(s)
	if err != nil {
		return nil, domain.Wrap(domain.KindAnalysisUnsupported, err, "tessellation failed")
	}
	report, err := AnalyzeMesh(ctx, mesh, opts)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Printability analysed",
		"triangles", report.Triangles,
		"printable", report.Printable,
		"thin_regions", len(report.ThinRegions),
	)
	return report, nil
}

// AnalyzeMesh analyses mesh. A mesh without triangles or without enclosed
// volume cannot be inspected and fails with AnalysisUnsupported.
func AnalyzeMesh(ctx context.Context, mesh *domain.Mesh, opts Options) (*domain.PrintabilityReport, error) {
	opts = opts.withDefaults()
	if mesh.Empty() {
		return nil, domain.Errorf(domain.KindAnalysisUnsupported, "mesh has no triangles")
	}
	bb := mesh.Bounds()
	diag := bb.Size().Length()
	signed := mesh.SignedVolume()
	if math.Abs(signed) <= 1e-9*math.Max(1, diag*diag*diag) {
		return nil, domain.Errorf(domain.KindAnalysisUnsupported, "mesh encloses no volume")
	}

	r := &domain.PrintabilityReport{
		ThresholdThickness: opts.MinWallThickness,
		Triangles:          len(mesh.Triangles),
		Parts:              mesh.Components(),
		Volume:             round(math.Abs(signed)),
		Area:               round(mesh.Area()),
		ThinRegions:        []domain.ThinRegion{},
		Warnings:           []string{},
	}

	topology(mesh, r)

	// Rays are cast against the inward direction; flip when wound inside out.
	orient := 1.0
	if signed < 0 {
		orient = -1
	}
	normals := make([]domain.Vec3, len(mesh.Triangles))
	degenerate := make([]bool, len(mesh.Triangles))
	for i := range mesh.Triangles {
		if mesh.TriangleArea(i) <= 1e-12 {
			degenerate[i] = true
			r.DegenerateFaces++
			continue
		}
		normals[i] = mesh.Normal(i).Scale(orient)
	}

	thickness, err := wallThickness(ctx, mesh, normals, degenerate, diag)
	if err != nil {
		return nil, err
	}
	for _, t := range thickness {
		if t >= 0 && (r.MinWallThickness == nil || t < *r.MinWallThickness) {
			v := t
			r.MinWallThickness = &v
		}
	}
	if r.MinWallThickness != nil {
		v := round(*r.MinWallThickness)
		r.MinWallThickness = &v
	}
	r.ThinRegions = thinRegions(mesh, thickness, opts.MinWallThickness)

	r.OverhangArea = round(overhangArea(mesh, normals, bb.Min.Z, opts.OverhangAngle))

	r.IsVolume = r.IsManifold && signed > 0
	r.Printable = r.IsVolume && r.IsWatertight && len(r.ThinRegions) == 0
	r.Warnings = warnings(r, bb, opts)
	return r, nil
}

// topology fills the edge and Euler statistics.
func topology(mesh *domain.Mesh, r *domain.PrintabilityReport) {
	adj := mesh.EdgeFaces()
	for _, tris := range adj {
		switch {
		case len(tris) == 1:
			r.BoundaryEdges++
		case len(tris) > 2:
			r.NonManifoldEdges++
		}
	}

	directed := make(map[[2]int]int, len(mesh.Triangles)*3)
	used := make(map[int]struct{}, len(mesh.Vertices))
	for _, t := range mesh.Triangles {
		for k := 0; k < 3; k++ {
			directed[[2]int{t[k], t[(k+1)%3]}]++
			used[t[k]] = struct{}{}
		}
	}
	consistent := true
	for _, n := range directed {
		if n != 1 {
			consistent = false
			break
		}
	}

	r.IsWatertight = r.BoundaryEdges == 0 && r.NonManifoldEdges == 0
	r.IsManifold = r.IsWatertight && consistent
	r.EulerNumber = len(used) - len(adj) + len(mesh.Triangles)
}

func overhangArea(mesh *domain.Mesh, normals []domain.Vec3, floor, angle float64) float64 {
	limit := -math.Cos(angle * math.Pi / 180)
	var area float64
	for i, n := range normals {
		if n.Z >= limit {
			continue
		}
		t := mesh.Triangle(i)
		lowest := math.Min(t[0].Z, math.Min(t[1].Z, t[2].Z))
		if lowest <= floor+1e-6 {
			continue
		}
		area += mesh.TriangleArea(i)
	}
	return area
}

// thinRegions groups triangles thinner than min into edge-connected regions.
func thinRegions(mesh *domain.Mesh, thickness []float64, limit float64) []domain.ThinRegion {
	thin := func(i int) bool { return thickness[i] >= 0 && thickness[i] < limit }

	uf := domain.NewUnionFind(len(mesh.Triangles))
	for _, tris := range mesh.EdgeFaces() {
		for k := 1; k < len(tris); k++ {
			if thin(tris[0]) && thin(tris[k]) {
				uf.Union(tris[0], tris[k])
			}
		}
	}

	byRoot := make(map[int]int)
	var regions []domain.ThinRegion
	var weighted []domain.Vec3
	for i := range mesh.Triangles {
		if !thin(i) {
			continue
		}
		root := uf.Find(i)
		idx, ok := byRoot[root]
		t := mesh.Triangle(i)
		if !ok {
			idx = len(regions)
			byRoot[root] = idx
			regions = append(regions, domain.ThinRegion{
				MinThickness: thickness[i],
				Bounds:       domain.BoundingBox{Min: t[0], Max: t[0]},
			})
			weighted = append(weighted, domain.Vec3{})
		}
		reg := &regions[idx]
		a := mesh.TriangleArea(i)
		reg.Triangles++
		reg.Area += a
		reg.MinThickness = math.Min(reg.MinThickness, thickness[i])
		for _, p := range t {
			reg.Bounds = reg.Bounds.Extend(p)
		}
		weighted[idx] = weighted[idx].Add(t[0].Add(t[1]).Add(t[2]).Scale(a / 3))
	}

	for i := range regions {
		if regions[i].Area > 0 {
			regions[i].Center = weighted[i].Scale(1 / regions[i].Area)
		}
		regions[i].Area = round(regions[i].Area)
		regions[i].MinThickness = round(regions[i].MinThickness)
	}
	sort.SliceStable(regions, func(i, j int) bool { return regions[i].MinThickness < regions[j].MinThickness })
	return regions
}

func warnings(r *domain.PrintabilityReport, bb domain.BoundingBox, opts Options) []string {
	w := []string{}
	if !r.IsWatertight {
		w = append(w, fmt.Sprintf("Mesh is not watertight: %d boundary edges, %d non-manifold edges", r.BoundaryEdges, r.NonManifoldEdges))
	} else if !r.IsManifold {
		w = append(w, "Mesh winding is inconsistent")
	}
	if r.IsManifold && !r.IsVolume {
		w = append(w, "Mesh is inside out: normals point inward")
	}
	if r.DegenerateFaces > 0 {
		w = append(w, fmt.Sprintf("%d degenerate faces", r.DegenerateFaces))
	}
	if n := len(r.ThinRegions); n > 0 {
		w = append(w, fmt.Sprintf("%d regions thinner than %.2f mm (thinnest %.2f mm)", n, opts.MinWallThickness, r.ThinRegions[0].MinThickness))
	}
	size := bb.Size()
	for i, name := range []string{"X", "Y", "Z"} {
		if size.Axis(i) < opts.MinWallThickness {
			w = append(w, fmt.Sprintf("Bounding box %s extent %.2f mm is below %.2f mm", name, size.Axis(i), opts.MinWallThickness))
		}
	}
	if r.OverhangArea > 0 {
		w = append(w, fmt.Sprintf("%.1f mm² of overhang steeper than %.0f° needs support", r.OverhangArea, opts.OverhangAngle))
	}
	if r.Parts > 1 {
		w = append(w, fmt.Sprintf("Model has %d separate parts", r.Parts))
	}
	return w
}

func round(v float64) float64 { return math.Round(v*1000) / 1000 }
