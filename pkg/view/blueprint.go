package view

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/aretw0/cadloop/pkg/display"
	"github.com/aretw0/cadloop/pkg/domain"
)

// Sheet geometry, in pixels.
const (
	sheetMargin    = 16
	sheetHeader    = 44
	titleBlockFrac = 0.24
	calloutRoom    = 70
)

// titleField is one labelled cell of the title block.
type titleField struct {
	label, value string
}

func titleFields(m domain.Model, spec domain.ViewSpec, scale float64) []titleField {
	or := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	return []titleField{
		{"TITLE", strings.ToUpper(or(spec.Title, m.Name))},
		{"PART NO", or(spec.PartNumber, "-")},
		{"SCALE", fmt.Sprintf("%.2f px/mm", scale)},
		{"UNITS", "MM"},
		{"TOLERANCE", spec.Tolerance},
		{"DRAWN BY", or(spec.DrawnBy, "cadloop")},
		{"DATE", or(spec.Date, "-")},
		{"REV", or(spec.Revision, fmt.Sprint(len(m.Revisions)))},
	}
}

func blueprintNotes(spec domain.ViewSpec) []string {
	if len(spec.Notes) > 0 {
		return spec.Notes
	}
	return []string{
		"All dimensions in millimeters",
		"Tolerances unless otherwise specified: " + spec.Tolerance + " mm",
		"Remove all sharp edges 0.3 mm max",
	}
}

func (p *Pipeline) renderBlueprint(ctx context.Context, m domain.Model, spec domain.ViewSpec) ([]domain.Panel, []byte, error) {
	W, H := spec.Width, spec.Height
	tbH := int(float64(H) * titleBlockFrac)
	areaY := sheetHeader
	areaH := H - tbH - sheetHeader - sheetMargin
	areaW := W - 2*sheetMargin

	n := len(spec.Views)
	cols := min(n, 3)
	rows := (n + cols - 1) / cols
	cw, ch := areaW/cols, areaH/rows

	bb := m.Geometry.Bounds()
	projs := make([]*domain.Projection, n)
	panels := make([]domain.Panel, n)
	scale := math.Inf(1)
	for i, name := range spec.Views {
		cam, err := Camera(name, 0, 0)
		if err != nil {
			return nil, nil, err
		}
		proj, err := p.project(ctx, m.Geometry, cam, domain.ProjectOptions{Edges: true, Hidden: spec.Hidden()})
		if err != nil {
			return nil, nil, err
		}
		projs[i] = proj
		col, row := i%cols, i/cols
		panels[i] = domain.Panel{
			View: name,
			X:    sheetMargin + col*cw,
			Y:    areaY + row*ch + labelBand,
			W:    max(cw-calloutRoom, 16),
			H:    max(ch-labelBand-calloutRoom/2, 16),
		}
		scale = math.Min(scale, fitScale(proj.Extent, float64(panels[i].W), float64(panels[i].H)))
	}
	for i := range panels {
		panels[i].Scale = scale
	}

	fields := titleFields(m, spec, scale)
	notes := blueprintNotes(spec)

	data, err := p.raster(ctx, W, H, func(c *display.Canvas) error {
		// Sheet border and header.
		c.SetRGB(0, 0, 0)
		c.SetLineWidth(2)
		c.DrawRectangle(sheetMargin/2, sheetMargin/2, float64(W-sheetMargin), float64(H-sheetMargin))
		if err := c.Stroke(); err != nil {
			return err
		}
		c.SetFontSize(20)
		c.DrawStringAnchored(fields[0].value, float64(W)/2, sheetHeader/2+4, 0.5, 0.5)

		for i, panel := range panels {
			proj := projs[i]
			t := newTransform(proj.Extent, scale, panel)
			if err := drawEdges(c, t, proj.Edges); err != nil {
				return err
			}
			h, v := dimensionValues(panel.View, bb, proj.Extent, spec.Dimensions)
			if err := drawCallouts(c, callouts(t, proj.Extent, h, v)); err != nil {
				return err
			}
			drawLabel(c, strings.ToUpper(panel.View)+" VIEW", float64(panel.X+panel.W/2), float64(panel.Y-labelBand/2))
		}

		if err := drawTitleBlock(c, W, H, tbH, fields); err != nil {
			return err
		}
		drawNotes(c, H, tbH, notes)
		return nil
	})
	return panels, data, err
}

// drawTitleBlock draws the fields as a two-column grid in the lower right.
func drawTitleBlock(c *display.Canvas, W, H, tbH int, fields []titleField) error {
	bw := float64(W) * 0.45
	x0 := float64(W-sheetMargin) - bw
	y0 := float64(H-sheetMargin) - float64(tbH)
	rowsN := (len(fields) + 1) / 2
	rh := float64(tbH) / float64(rowsN)
	colW := bw / 2

	c.SetRGB(0, 0, 0)
	c.SetLineWidth(1.5)
	c.DrawRectangle(x0, y0, bw, float64(tbH))
	for r := 1; r < rowsN; r++ {
		y := y0 + float64(r)*rh
		c.DrawLine(x0, y, x0+bw, y)
	}
	c.DrawLine(x0+colW, y0, x0+colW, y0+float64(tbH))
	if err := c.Stroke(); err != nil {
		return err
	}

	for i, f := range fields {
		col, row := i%2, i/2
		x := x0 + float64(col)*colW + 6
		y := y0 + float64(row)*rh
		c.SetFontSize(9)
		c.DrawStringAnchored(f.label, x, y+4, 0, 1)
		c.SetFontSize(13)
		c.DrawStringAnchored(f.value, x, y+rh-6, 0, 0)
	}
	return nil
}

func drawNotes(c *display.Canvas, H, tbH int, notes []string) {
	x := float64(sheetMargin) + 8
	y := float64(H-sheetMargin-tbH) + 8
	c.SetRGB(0, 0, 0)
	c.SetFontSize(12)
	c.DrawStringAnchored("NOTES:", x, y, 0, 1)
	c.SetFontSize(11)
	for i, note := range notes {
		c.DrawStringAnchored(fmt.Sprintf("%d. %s", i+1, note), x, y+float64(i+1)*18, 0, 1)
	}
}
