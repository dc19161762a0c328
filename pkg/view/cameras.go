package view

import (
	"math"
	"sort"

	"github.com/aretw0/cadloop/pkg/domain"
)

var zUp = domain.Vec3{Z: 1}

// presets are the named cameras. Dir points from the model toward the eye.
var presets = map[string]domain.Camera{
	"front":    {Name: "front", Dir: domain.Vec3{Y: -1}, Up: zUp},
	"back":     {Name: "back", Dir: domain.Vec3{Y: 1}, Up: zUp},
	"right":    {Name: "right", Dir: domain.Vec3{X: 1}, Up: zUp},
	"left":     {Name: "left", Dir: domain.Vec3{X: -1}, Up: zUp},
	"top":      {Name: "top", Dir: domain.Vec3{Z: 1}, Up: domain.Vec3{Y: 1}},
	"bottom":   {Name: "bottom", Dir: domain.Vec3{Z: -1}, Up: domain.Vec3{Y: -1}},
	"iso":      {Name: "iso", Dir: domain.Vec3{X: 1, Y: -1, Z: 0.8}, Up: zUp},
	"iso_back": {Name: "iso_back", Dir: domain.Vec3{X: -1, Y: 1, Z: 0.8}, Up: zUp},
}

var aliases = map[string]string{
	"isometric": "iso",
	"side":      "right",
}

// Presets lists the preset names in a stable order.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Camera resolves a preset name, or "custom" with azimuth and elevation
// in degrees. Azimuth 0 looks from the front, 90 from the right;
// elevation 90 looks straight down.
func Camera(name string, azimuth, elevation float64) (domain.Camera, error) {
	if name == "custom" {
		return customCamera(azimuth, elevation), nil
	}
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	cam, ok := presets[name]
	if !ok {
		return domain.Camera{}, domain.Errorf(domain.KindRasterizationFailed, "unknown view %q", name)
	}
	return cam, nil
}

func customCamera(azimuth, elevation float64) domain.Camera {
	az := azimuth * math.Pi / 180
	el := math.Max(-90, math.Min(90, elevation)) * math.Pi / 180
	dir := domain.Vec3{
		X: math.Cos(el) * math.Sin(az),
		Y: -math.Cos(el) * math.Cos(az),
		Z: math.Sin(el),
	}
	up := zUp
	if math.Abs(dir.Normalize().Z) > 0.999 {
		// Looking along Z: keep screen up on the far side of the model.
		up = domain.Vec3{X: -math.Sin(az), Y: math.Cos(az)}
		if dir.Z < 0 {
			up = up.Scale(-1)
		}
	}
	return domain.Camera{Name: "custom", Dir: dir, Up: up}
}

// axes names the model extents seen horizontally and vertically from an
// axis-aligned preset.
var axes = map[string][2]string{
	"front":  {"width", "height"},
	"back":   {"width", "height"},
	"right":  {"depth", "height"},
	"left":   {"depth", "height"},
	"top":    {"width", "depth"},
	"bottom": {"width", "depth"},
}
