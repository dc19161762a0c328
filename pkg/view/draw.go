package view

import (
	"fmt"
	"math"

	"github.com/aretw0/cadloop/pkg/display"
	"github.com/aretw0/cadloop/pkg/domain"
)

// Drawing constants.
var (
	faceColor   = [3]float64{100.0 / 255, 150.0 / 255, 200.0 / 255}
	hiddenColor = [3]float64{180.0 / 255, 180.0 / 255, 180.0 / 255}
	dimColor    = [3]float64{0.25, 0.25, 0.25}
	hiddenDash  = []float64{4, 3}
)

const (
	visibleWidth = 2.0
	hiddenWidth  = 1.0
	labelSize    = 14.0
	dimTextSize  = 12.0
	fillRatio    = 0.8
)

// transform maps view-plane coordinates (model units, Y up) into a
// pixel rectangle (Y down), centred on the projection's extent.
type transform struct {
	scale  float64
	mid    domain.Point2
	cx, cy float64
}

func newTransform(ext domain.Rect2, scale float64, box domain.Panel) transform {
	return transform{
		scale: scale,
		mid:   domain.Point2{X: (ext.Min.X + ext.Max.X) / 2, Y: (ext.Min.Y + ext.Max.Y) / 2},
		cx:    float64(box.X) + float64(box.W)/2,
		cy:    float64(box.Y) + float64(box.H)/2,
	}
}

func (t transform) pt(p domain.Point2) (float64, float64) {
	return t.cx + (p.X-t.mid.X)*t.scale, t.cy - (p.Y-t.mid.Y)*t.scale
}

// fitScale is the pixels-per-unit that fits ext into w x h at fillRatio.
func fitScale(ext domain.Rect2, w, h float64) float64 {
	s := math.Inf(1)
	if ext.Width() > 1e-9 {
		s = math.Min(s, w*fillRatio/ext.Width())
	}
	if ext.Height() > 1e-9 {
		s = math.Min(s, h*fillRatio/ext.Height())
	}
	if math.IsInf(s, 1) {
		return 1
	}
	return s
}

func drawFaces(c *display.Canvas, t transform, faces []domain.ProjectedFace) error {
	for _, f := range faces {
		c.SetRGB(faceColor[0]*f.Shade, faceColor[1]*f.Shade, faceColor[2]*f.Shade)
		x, y := t.pt(f.Points[0])
		c.MoveTo(x, y)
		for _, p := range f.Points[1:] {
			x, y = t.pt(p)
			c.LineTo(x, y)
		}
		c.ClosePath()
		if err := c.Fill(); err != nil {
			return err
		}
	}
	return nil
}

// drawEdges strokes hidden segments first so visible lines stay on top.
func drawEdges(c *display.Canvas, t transform, edges []domain.Segment) error {
	for _, hidden := range []bool{true, false} {
		n := 0
		for _, s := range edges {
			if s.Hidden != hidden {
				continue
			}
			ax, ay := t.pt(s.A)
			bx, by := t.pt(s.B)
			c.MoveTo(ax, ay)
			c.LineTo(bx, by)
			n++
		}
		if n == 0 {
			continue
		}
		if hidden {
			c.SetRGB(hiddenColor[0], hiddenColor[1], hiddenColor[2])
			c.SetLineWidth(hiddenWidth)
			c.SetDash(hiddenDash...)
		} else {
			c.SetRGB(0, 0, 0)
			c.SetLineWidth(visibleWidth)
			c.ClearDash()
		}
		if err := c.Stroke(); err != nil {
			return err
		}
	}
	c.ClearDash()
	return nil
}

func drawLabel(c *display.Canvas, text string, x, y float64) {
	c.SetRGB(0, 0, 0)
	c.SetFontSize(labelSize)
	c.DrawStringAnchored(text, x, y, 0.5, 0.5)
}

// callout is one dimension line in pixel space.
type callout struct {
	x1, y1, x2, y2 float64
	text           string
	vertical       bool
}

// callouts places a horizontal dimension under the drawing and a vertical
// one to its right.
func callouts(t transform, ext domain.Rect2, horizontal, vertical float64) []callout {
	x0, y0 := t.pt(domain.Point2{X: ext.Min.X, Y: ext.Min.Y})
	x1, y1 := t.pt(domain.Point2{X: ext.Max.X, Y: ext.Max.Y})
	const gap = 18.0
	return []callout{
		{x1: x0, y1: y0 + gap, x2: x1, y2: y0 + gap, text: dimText(horizontal)},
		{x1: x1 + gap, y1: y0, x2: x1 + gap, y2: y1, text: dimText(vertical), vertical: true},
	}
}

func dimText(v float64) string { return fmt.Sprintf("%.1f mm", v) }

func drawCallouts(c *display.Canvas, cs []callout) error {
	const tick = 5.0
	c.SetRGB(dimColor[0], dimColor[1], dimColor[2])
	c.SetLineWidth(1)
	c.ClearDash()
	for _, d := range cs {
		c.MoveTo(d.x1, d.y1)
		c.LineTo(d.x2, d.y2)
		if d.vertical {
			c.MoveTo(d.x1-tick, d.y1)
			c.LineTo(d.x1+tick, d.y1)
			c.MoveTo(d.x2-tick, d.y2)
			c.LineTo(d.x2+tick, d.y2)
		} else {
			c.MoveTo(d.x1, d.y1-tick)
			c.LineTo(d.x1, d.y1+tick)
			c.MoveTo(d.x2, d.y2-tick)
			c.LineTo(d.x2, d.y2+tick)
		}
	}
	if err := c.Stroke(); err != nil {
		return err
	}
	c.SetFontSize(dimTextSize)
	for _, d := range cs {
		mx, my := (d.x1+d.x2)/2, (d.y1+d.y2)/2
		if d.vertical {
			c.DrawStringAnchored(d.text, mx+tick+2, my, 0, 0.5)
		} else {
			c.DrawStringAnchored(d.text, mx, my+tick+2, 0.5, 1)
		}
	}
	return nil
}

// dimensionValues returns the horizontal and vertical extents to print for
// a view: model bounding-box values for axis-aligned presets, projected
// extents otherwise. overrides replaces values by key.
func dimensionValues(view string, bb domain.BoundingBox, ext domain.Rect2, overrides map[string]float64) (float64, float64) {
	names, ok := axes[view]
	if !ok {
		return ext.Width(), ext.Height()
	}
	size := bb.Size()
	values := map[string]float64{"width": size.X, "depth": size.Y, "height": size.Z}
	for k, v := range overrides {
		values[k] = v
	}
	return values[names[0]], values[names[1]]
}
