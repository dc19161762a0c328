/*
Package view expands a ViewSpec into cameras, projects the model through a
Projector for each one, and composites the result.

Four kinds are supported:

  - 3d: one camera, shaded faces.
  - 2d: one orthographic camera, visible edges and optionally hidden
    edges and dimension lines. PNG or SVG.
  - multiview: front, right, top and iso in a 2x2 grid at one shared scale.
  - blueprint: a row of orthographic views with dimension call-outs above
    a title block.

Raster output is produced under the display arbiter. SVG output never
touches it. Camera presets, lighting, colors and layout are constants, so
the same geometry and spec always produce the same bytes.
*/
package view
