package view

import (
	"bytes"

	svg "github.com/ajstarks/svgo/float"
	"github.com/aretw0/cadloop/pkg/domain"
)

const (
	svgVisible = "fill:none;stroke:black;stroke-width:2;stroke-linecap:round"
	svgHidden  = "fill:none;stroke:rgb(180,180,180);stroke-width:1;stroke-dasharray:4,3"
	svgDim     = "fill:none;stroke:rgb(64,64,64);stroke-width:1"
	svgDimText = "fill:rgb(64,64,64);font-family:sans-serif;font-size:12px"
)

// vectorDrawing renders edges and dimension call-outs as SVG.
func vectorDrawing(w, h int, t transform, edges []domain.Segment, cs []callout) []byte {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(float64(w), float64(h))
	canvas.Rect(0, 0, float64(w), float64(h), "fill:white")

	for _, hidden := range []bool{true, false} {
		style := svgVisible
		if hidden {
			style = svgHidden
		}
		canvas.Gstyle(style)
		for _, s := range edges {
			if s.Hidden != hidden {
				continue
			}
			ax, ay := t.pt(s.A)
			bx, by := t.pt(s.B)
			canvas.Line(ax, ay, bx, by)
		}
		canvas.Gend()
	}

	if len(cs) > 0 {
		const tick = 5.0
		canvas.Gstyle(svgDim)
		for _, d := range cs {
			canvas.Line(d.x1, d.y1, d.x2, d.y2)
			if d.vertical {
				canvas.Line(d.x1-tick, d.y1, d.x1+tick, d.y1)
				canvas.Line(d.x2-tick, d.y2, d.x2+tick, d.y2)
			} else {
				canvas.Line(d.x1, d.y1-tick, d.x1, d.y1+tick)
				canvas.Line(d.x2, d.y2-tick, d.x2, d.y2+tick)
			}
		}
		canvas.Gend()

		canvas.Gstyle(svgDimText)
		for _, d := range cs {
			mx, my := (d.x1+d.x2)/2, (d.y1+d.y2)/2
			if d.vertical {
				canvas.Text(mx+tick+2, my+4, d.text)
			} else {
				canvas.Text(mx, my+tick+14, d.text, "text-anchor:middle")
			}
		}
		canvas.Gend()
	}

	canvas.End()
	return buf.Bytes()
}
