package view

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/cadloop/internal/logging"
	"github.com/aretw0/cadloop/internal/metrics"
	"github.com/aretw0/cadloop/pkg/display"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
)

// Media types of the produced images.
const (
	MediaPNG = "image/png"
	MediaSVG = "image/svg+xml"
)

// Pipeline renders models.
type Pipeline struct {
	projector ports.Projector
	arbiter   *display.Arbiter
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithLogger configures a logger for the Pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics records render counts and durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New creates a Pipeline. Raster output is drawn under arbiter.
func New(projector ports.Projector, arbiter *display.Arbiter, opts ...Option) *Pipeline {
	p := &Pipeline{
		projector: projector,
		arbiter:   arbiter,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AllViews is the set rendered by a render-all request.
func AllViews() []domain.ViewSpec {
	return []domain.ViewSpec{
		{Kind: domain.View3D, View: "iso"},
		{Kind: domain.View3D, View: "iso_back"},
		{Kind: domain.View2D, View: "front"},
		{Kind: domain.View2D, View: "right"},
		{Kind: domain.View2D, View: "top"},
		{Kind: domain.ViewMultiview},
	}
}

// Render produces the image described by spec for m. It never modifies m.
func (p *Pipeline) Render(ctx context.Context, m domain.Model, spec domain.ViewSpec) (*domain.RenderArtifact, error) {
	start := time.Now()
	spec, err := spec.Normalize()
	if err != nil {
		return nil, err
	}

	art, err := p.render(ctx, m, spec)
	p.metrics.ObserveRender(string(spec.Kind), string(domain.KindOf(err)), time.Since(start))
	if err != nil {
		p.logger.Warn("Render failed",
			"model", m.Name,
			"view", spec.Label(),
			"kind", domain.KindOf(err),
			"err", err,
		)
		return nil, err
	}
	p.logger.Debug("Rendered",
		"model", m.Name,
		"view", spec.Label(),
		"bytes", len(art.Data),
		"duration", time.Since(start),
	)
	return art, nil
}

func (p *Pipeline) render(ctx context.Context, m domain.Model, spec domain.ViewSpec) (*domain.RenderArtifact, error) {
	if m.Geometry == nil || m.Geometry.Empty() {
		return nil, domain.Errorf(domain.KindEmptyGeometry, "model %q has no solid to render", m.Name)
	}

	art := &domain.RenderArtifact{
		Model:     m.Name,
		Spec:      spec,
		Format:    spec.Format,
		MediaType: MediaPNG,
		Width:     spec.Width,
		Height:    spec.Height,
	}
	var err error
	switch spec.Kind {
	case domain.View3D:
		art.Panels, art.Data, err = p.render3D(ctx, m, spec)
	case domain.View2D:
		if spec.Format == domain.FormatSVG {
			art.MediaType = MediaSVG
			art.Panels, art.Data, err = p.render2DSVG(ctx, m, spec)
		} else {
			art.Panels, art.Data, err = p.render2D(ctx, m, spec)
		}
	case domain.ViewMultiview:
		art.Panels, art.Data, err = p.renderMultiview(ctx, m, spec)
	case domain.ViewBlueprint:
		art.Panels, art.Data, err = p.renderBlueprint(ctx, m, spec)
	default:
		err = domain.Errorf(domain.KindRasterizationFailed, "unknown view kind %q", spec.Kind)
	}
	if err != nil {
		return nil, err
	}
	return art, nil
}

// project runs the projector outside the arbiter.
func (p *Pipeline) project(ctx context.Context, s ports.Solid, cam domain.Camera, opts domain.ProjectOptions) (*domain.Projection, error) {
	proj, err := p.projector.Project(ctx, s, cam, opts)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyGeometry) {
			return nil, err
		}
		return nil, domain.Wrap(domain.KindRasterizationFailed, err, fmt.Sprintf("projecting %s view", cam.Name))
	}
	return proj, nil
}

// raster draws under the arbiter and encodes the result as PNG.
func (p *Pipeline) raster(ctx context.Context, w, h int, draw func(*display.Canvas) error) ([]byte, error) {
	data, err := display.Render(ctx, p.arbiter, w, h, func(c *display.Canvas) ([]byte, error) {
		if err := draw(c); err != nil {
			return nil, err
		}
		return c.PNG()
	})
	if err != nil && domain.KindOf(err) == "" {
		return nil, domain.Wrap(domain.KindRasterizationFailed, err, "drawing failed")
	}
	return data, err
}

func (p *Pipeline) render3D(ctx context.Context, m domain.Model, spec domain.ViewSpec) ([]domain.Panel, []byte, error) {
	cam, err := Camera(spec.View, spec.Azimuth, spec.Elevation)
	if err != nil {
		return nil, nil, err
	}
	proj, err := p.project(ctx, m.Geometry, cam, domain.ProjectOptions{Shaded: true})
	if err != nil {
		return nil, nil, err
	}

	panel := domain.Panel{View: spec.View, W: spec.Width, H: spec.Height}
	panel.Scale = fitScale(proj.Extent, float64(panel.W), float64(panel.H))
	t := newTransform(proj.Extent, panel.Scale, panel)

	data, err := p.raster(ctx, spec.Width, spec.Height, func(c *display.Canvas) error {
		return drawFaces(c, t, proj.Faces)
	})
	return []domain.Panel{panel}, data, err
}

func (p *Pipeline) project2D(ctx context.Context, m domain.Model, spec domain.ViewSpec) (*domain.Projection, domain.Panel, error) {
	cam, err := Camera(spec.View, spec.Azimuth, spec.Elevation)
	if err != nil {
		return nil, domain.Panel{}, err
	}
	proj, err := p.project(ctx, m.Geometry, cam, domain.ProjectOptions{Edges: true, Hidden: spec.Hidden()})
	if err != nil {
		return nil, domain.Panel{}, err
	}
	panel := domain.Panel{View: spec.View, W: spec.Width, H: spec.Height}
	panel.Scale = fitScale(proj.Extent, float64(panel.W), float64(panel.H))
	return proj, panel, nil
}

func (p *Pipeline) render2D(ctx context.Context, m domain.Model, spec domain.ViewSpec) ([]domain.Panel, []byte, error) {
	proj, panel, err := p.project2D(ctx, m, spec)
	if err != nil {
		return nil, nil, err
	}
	t := newTransform(proj.Extent, panel.Scale, panel)

	data, err := p.raster(ctx, spec.Width, spec.Height, func(c *display.Canvas) error {
		if err := drawEdges(c, t, proj.Edges); err != nil {
			return err
		}
		if !spec.ShowDimensions {
			return nil
		}
		h, v := dimensionValues(spec.View, m.Geometry.Bounds(), proj.Extent, spec.Dimensions)
		return drawCallouts(c, callouts(t, proj.Extent, h, v))
	})
	return []domain.Panel{panel}, data, err
}

func (p *Pipeline) render2DSVG(ctx context.Context, m domain.Model, spec domain.ViewSpec) ([]domain.Panel, []byte, error) {
	proj, panel, err := p.project2D(ctx, m, spec)
	if err != nil {
		return nil, nil, err
	}
	t := newTransform(proj.Extent, panel.Scale, panel)

	var cs []callout
	if spec.ShowDimensions {
		h, v := dimensionValues(spec.View, m.Geometry.Bounds(), proj.Extent, spec.Dimensions)
		cs = callouts(t, proj.Extent, h, v)
	}
	return []domain.Panel{panel}, vectorDrawing(spec.Width, spec.Height, t, proj.Edges, cs), nil
}

// ArtifactKey is the content-addressed sink key of a render:
// <model>/<label>-<sha256 prefix>.<format>.
func ArtifactKey(model string, spec domain.ViewSpec, data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s/%s-%s.%s", model, spec.Label(), hex.EncodeToString(sum[:6]), spec.Format)
}
