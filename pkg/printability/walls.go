package printability

import (
	"context"
	"math"

	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/dhconnelly/rtreego"
)

// facet is one triangle in the wall index.
type facet struct {
	tri  int
	rect rtreego.Rect
}

func (f *facet) Bounds() rtreego.Rect { return f.rect }

func boxRect(lo, hi domain.Vec3, pad float64) (rtreego.Rect, error) {
	return rtreego.NewRectFromPoints(
		rtreego.Point{lo.X - pad, lo.Y - pad, lo.Z - pad},
		rtreego.Point{hi.X + pad, hi.Y + pad, hi.Z + pad},
	)
}

// wallThickness casts a ray inward from every triangle centroid and
// returns the distance to the first other triangle hit, or -1 when
// nothing is hit. The ray is marched in steps so each R-tree query only
// covers a short stretch.
func wallThickness(ctx context.Context, mesh *domain.Mesh, normals []domain.Vec3, degenerate []bool, diag float64) ([]float64, error) {
	pad := math.Max(diag*1e-6, 1e-9)
	items := make([]rtreego.Spatial, 0, len(mesh.Triangles))
	for i := range mesh.Triangles {
		if degenerate[i] {
			continue
		}
		t := mesh.Triangle(i)
		rect, err := boxRect(t[0].Min(t[1]).Min(t[2]), t[0].Max(t[1]).Max(t[2]), pad)
		if err != nil {
			continue
		}
		items = append(items, &facet{tri: i, rect: rect})
	}
	tree := rtreego.NewTree(3, 25, 50, items...)

	step := math.Max(diag/32, pad*10)
	out := make([]float64, len(mesh.Triangles))
	for i := range mesh.Triangles {
		out[i] = -1
		if degenerate[i] {
			continue
		}
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, domain.Wrap(domain.KindAnalysisUnsupported, err, "analysis cancelled")
			}
		}
		t := mesh.Triangle(i)
		origin := t[0].Add(t[1]).Add(t[2]).Scale(1.0 / 3)
		dir := normals[i].Scale(-1)

		for start := 0.0; start <= diag+step; start += step {
			a, b := origin.Add(dir.Scale(start)), origin.Add(dir.Scale(start+step))
			rect, err := boxRect(a.Min(b), a.Max(b), pad)
			if err != nil {
				break
			}
			best := math.Inf(1)
			for _, s := range tree.SearchIntersect(rect) {
				j := s.(*facet).tri
				if j == i {
					continue
				}
				if d, ok := intersect(origin, dir, mesh.Triangle(j)); ok && d > pad && d < best {
					best = d
				}
			}
			if best <= start+step+pad {
				out[i] = best
				break
			}
		}
	}
	return out, nil
}

// intersect is the Möller–Trumbore ray/triangle test.
func intersect(origin, dir domain.Vec3, t domain.Triangle) (float64, bool) {
	const eps = 1e-12
	e1, e2 := t[1].Sub(t[0]), t[2].Sub(t[0])
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < eps {
		return 0, false
	}
	inv := 1 / det
	s := origin.Sub(t[0])
	u := s.Dot(p) * inv
	if u < -1e-9 || u > 1+1e-9 {
		return 0, false
	}
	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < -1e-9 || u+v > 1+1e-9 {
		return 0, false
	}
	d := e2.Dot(q) * inv
	return d, d > 0
}
