package view

import (
	"context"
	"math"
	"strings"

	"github.com/aretw0/cadloop/pkg/display"
	"github.com/aretw0/cadloop/pkg/domain"
)

// multiviewCameras is the fixed multiview set in grid order.
var multiviewCameras = []string{"front", "right", "top", "iso"}

const labelBand = 28

func (p *Pipeline) renderMultiview(ctx context.Context, m domain.Model, spec domain.ViewSpec) ([]domain.Panel, []byte, error) {
	cw, ch := spec.Width/2, spec.Height/2
	projs := make([]*domain.Projection, len(multiviewCameras))
	panels := make([]domain.Panel, len(multiviewCameras))

	scale := math.Inf(1)
	for i, name := range multiviewCameras {
		cam, err := Camera(name, 0, 0)
		if err != nil {
			return nil, nil, err
		}
		opts := domain.ProjectOptions{Edges: true, Hidden: spec.Hidden()}
		if name == "iso" {
			opts = domain.ProjectOptions{Shaded: true}
		}
		proj, err := p.project(ctx, m.Geometry, cam, opts)
		if err != nil {
			return nil, nil, err
		}
		projs[i] = proj

		col, row := i%2, i/2
		panels[i] = domain.Panel{
			View: name,
			X:    col * cw,
			Y:    row*ch + labelBand,
			W:    cw,
			H:    ch - labelBand,
		}
		scale = math.Min(scale, fitScale(proj.Extent, float64(panels[i].W), float64(panels[i].H)))
	}
	for i := range panels {
		panels[i].Scale = scale
	}

	data, err := p.raster(ctx, spec.Width, spec.Height, func(c *display.Canvas) error {
		c.SetRGB(0.85, 0.85, 0.85)
		c.SetLineWidth(1)
		c.DrawLine(float64(cw), 0, float64(cw), float64(spec.Height))
		c.DrawLine(0, float64(ch), float64(spec.Width), float64(ch))
		if err := c.Stroke(); err != nil {
			return err
		}

		for i, panel := range panels {
			t := newTransform(projs[i].Extent, scale, panel)
			if err := drawFaces(c, t, projs[i].Faces); err != nil {
				return err
			}
			if err := drawEdges(c, t, projs[i].Edges); err != nil {
				return err
			}
			drawLabel(c, strings.ToUpper(panel.View), float64(panel.X+panel.W/2), float64(panel.Y-labelBand/2))
		}
		return nil
	})
	return panels, data, err
}
