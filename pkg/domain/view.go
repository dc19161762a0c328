package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ViewKind selects the render mode.
type ViewKind string

const (
	View3D        ViewKind = "3d"
	View2D        ViewKind = "2d"
	ViewMultiview ViewKind = "multiview"
	ViewBlueprint ViewKind = "blueprint"
)

// Image formats.
const (
	FormatPNG = "png"
	FormatSVG = "svg"
)

// Render defaults.
const (
	DefaultWidth           = 1024
	DefaultHeight          = 768
	DefaultBlueprintWidth  = 1400
	DefaultBlueprintHeight = 990
	MinBlueprintWidth      = 600
	MinBlueprintHeight     = 450
	MaxImageSide           = 4096
	DefaultTolerance       = "±0.5"
)

// ViewSpec describes one render request. It is a pure value: the
// same spec over the same geometry always yields the same image.
type ViewSpec struct {
	Kind           ViewKind           `json:"kind" mapstructure:"kind"`
	View           string             `json:"view,omitempty" mapstructure:"view"`
	Azimuth        float64            `json:"azimuth,omitempty" mapstructure:"azimuth"`
	Elevation      float64            `json:"elevation,omitempty" mapstructure:"elevation"`
	ShowHidden     *bool              `json:"show_hidden,omitempty" mapstructure:"show_hidden"`
	ShowDimensions bool               `json:"show_dimensions,omitempty" mapstructure:"show_dimensions"`
	Width          int                `json:"width,omitempty" mapstructure:"width"`
	Height         int                `json:"height,omitempty" mapstructure:"height"`
	Format         string             `json:"format,omitempty" mapstructure:"format"`
	Views          []string           `json:"views,omitempty" mapstructure:"views"`
	Title          string             `json:"title,omitempty" mapstructure:"title"`
	PartNumber     string             `json:"part_number,omitempty" mapstructure:"part_number"`
	DrawnBy        string             `json:"drawn_by,omitempty" mapstructure:"drawn_by"`
	Date           string             `json:"date,omitempty" mapstructure:"date"`
	Revision       string             `json:"revision,omitempty" mapstructure:"revision"`
	Tolerance      string             `json:"tolerance,omitempty" mapstructure:"tolerance"`
	Notes          []string           `json:"notes,omitempty" mapstructure:"notes"`
	Dimensions     map[string]float64 `json:"dimensions,omitempty" mapstructure:"dimensions"`
}

// Normalize fills defaults and validates the spec.
func (s ViewSpec) Normalize() (ViewSpec, error) {
	s.Kind = ViewKind(strings.ToLower(string(s.Kind)))
	s.View = strings.ToLower(strings.TrimSpace(s.View))
	s.Format = strings.ToLower(s.Format)
	if s.Format == "" {
		s.Format = FormatPNG
	}
	switch s.Kind {
	case View3D:
		if s.View == "" {
			s.View = "iso"
		}
	case View2D:
		if s.View == "" {
			s.View = "front"
		}
		if s.ShowHidden == nil {
			t := true
			s.ShowHidden = &t
		}
	case ViewMultiview:
		s.View = ""
	case ViewBlueprint:
		s.View = ""
		if len(s.Views) == 0 {
			s.Views = []string{"front", "top", "right"}
		}
		if s.Width == 0 {
			s.Width = DefaultBlueprintWidth
		}
		if s.Height == 0 {
			s.Height = DefaultBlueprintHeight
		}
		if s.Tolerance == "" {
			s.Tolerance = DefaultTolerance
		}
		// Below this the title block and notes no longer fit the sheet.
		if s.Width < MinBlueprintWidth || s.Height < MinBlueprintHeight {
			return s, Errorf(KindInvalidArgument, "blueprint sheet %dx%d is smaller than %dx%d",
				s.Width, s.Height, MinBlueprintWidth, MinBlueprintHeight)
		}
	default:
		return s, Errorf(KindInvalidArgument, "unknown view kind %q", s.Kind)
	}
	if s.Format != FormatPNG && s.Format != FormatSVG {
		return s, Errorf(KindInvalidArgument, "unknown image format %q", s.Format)
	}
	if s.Format == FormatSVG && s.Kind != View2D {
		return s, Errorf(KindInvalidArgument, "svg output is only available for 2d views")
	}
	if s.Width == 0 {
		s.Width = DefaultWidth
	}
	if s.Height == 0 {
		s.Height = DefaultHeight
	}
	if s.Width < 64 || s.Height < 64 || s.Width > MaxImageSide || s.Height > MaxImageSide {
		return s, Errorf(KindInvalidArgument, "image size %dx%d out of range", s.Width, s.Height)
	}
	if s.ShowHidden == nil {
		f := false
		s.ShowHidden = &f
	}
	return s, nil
}

// Hidden reports the effective hidden-line flag.
func (s ViewSpec) Hidden() bool { return s.ShowHidden != nil && *s.ShowHidden }

// Label is a short stable name used for artifact keys.
func (s ViewSpec) Label() string {
	switch {
	case s.View == "custom":
		return fmt.Sprintf("%s-az%g-el%g", s.Kind, s.Azimuth, s.Elevation)
	case s.View != "":
		return fmt.Sprintf("%s-%s", s.Kind, s.View)
	case s.Kind == ViewBlueprint:
		return fmt.Sprintf("%s-%s", s.Kind, strings.Join(s.Views, "_"))
	default:
		return string(s.Kind)
	}
}

// DimensionKeys returns override keys in a stable order.
func (s ViewSpec) DimensionKeys() []string {
	keys := make([]string, 0, len(s.Dimensions))
	for k := range s.Dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Camera is an orthographic view direction. Dir points from the
// target toward the eye; Up fixes the roll.
type Camera struct {
	Name string `json:"name"`
	Dir  Vec3   `json:"dir"`
	Up   Vec3   `json:"up"`
}

// Basis returns the screen right, screen up and toward-eye axes.
func (c Camera) Basis() (right, up, toward Vec3) {
	toward = c.Dir.Normalize()
	right = c.Up.Cross(toward).Normalize()
	if right == (Vec3{}) {
		right = Vec3{X: 1}
	}
	up = toward.Cross(right).Normalize()
	return right, up, toward
}

// Point2 is a position on the view plane in model units, Y up.
type Point2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect2 is an extent on the view plane.
type Rect2 struct {
	Min Point2 `json:"min"`
	Max Point2 `json:"max"`
}

func (r Rect2) Width() float64  { return r.Max.X - r.Min.X }
func (r Rect2) Height() float64 { return r.Max.Y - r.Min.Y }

// ProjectedFace is one shaded triangle on the view plane.
type ProjectedFace struct {
	Points [3]Point2
	Shade  float64
	Depth  float64
}

// Segment is one projected edge piece.
type Segment struct {
	A, B   Point2
	Hidden bool
}

// ProjectOptions selects what a projector emits.
type ProjectOptions struct {
	Shaded bool
	Edges  bool
	Hidden bool
}

// Projection is the vector output of a projector for one camera.
// Faces are ordered back to front.
type Projection struct {
	Camera Camera
	Faces  []ProjectedFace
	Edges  []Segment
	Extent Rect2
}

// Panel locates one sub-view inside a rendered image.
type Panel struct {
	View  string  `json:"view"`
	X     int     `json:"x"`
	Y     int     `json:"y"`
	W     int     `json:"w"`
	H     int     `json:"h"`
	Scale float64 `json:"pixels_per_unit"`
}

// RenderArtifact is the output of one render request.
type RenderArtifact struct {
	Model     string   `json:"model"`
	Spec      ViewSpec `json:"spec"`
	Format    string   `json:"format"`
	MediaType string   `json:"media_type"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Panels    []Panel  `json:"panels"`
	Key       string   `json:"key,omitempty"`
	Data      []byte   `json:"-"`
}
