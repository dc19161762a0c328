package cadloop

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/cadloop/internal/config"
	"github.com/aretw0/cadloop/internal/logging"
	"github.com/aretw0/cadloop/internal/metrics"
	"github.com/aretw0/cadloop/pkg/adapters/memory"
	"github.com/aretw0/cadloop/pkg/adapters/meshio"
	"github.com/aretw0/cadloop/pkg/adapters/projector"
	"github.com/aretw0/cadloop/pkg/adapters/sdfx"
	"github.com/aretw0/cadloop/pkg/display"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
	"github.com/aretw0/cadloop/pkg/printability"
	"github.com/aretw0/cadloop/pkg/sandbox"
	"github.com/aretw0/cadloop/pkg/session"
	"github.com/aretw0/cadloop/pkg/view"
)

// Engine is the request-level surface of cadloop. Transports call its
// methods and encode the results; it holds no transport state.
type Engine struct {
	cfg       config.Config
	kernel    ports.Kernel
	executor  ports.Executor
	projector ports.Projector
	exporter  ports.Exporter
	sink      ports.ArtifactSink
	arbiter   *display.Arbiter
	logger    *slog.Logger
	metrics   *metrics.Metrics

	ownsArbiter bool

	store    *session.Store
	pipeline *view.Pipeline
	analyzer *printability.Analyzer
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithKernel injects the geometry kernel (default: sdfx).
func WithKernel(k ports.Kernel) Option {
	return func(e *Engine) {
		e.kernel = k
	}
}

// WithExecutor replaces the sandbox that runs modeling code.
func WithExecutor(x ports.Executor) Option {
	return func(e *Engine) {
		e.executor = x
	}
}

// WithProjector replaces the mesh projector used by the view pipeline.
func WithProjector(p ports.Projector) Option {
	return func(e *Engine) {
		e.projector = p
	}
}

// WithExporter replaces the export codecs.
func WithExporter(x ports.Exporter) Option {
	return func(e *Engine) {
		e.exporter = x
	}
}

// WithSink sets where renders and exports are stored (default: memory).
func WithSink(s ports.ArtifactSink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithArbiter shares an existing display arbiter. The engine does not
// close an injected arbiter.
func WithArbiter(a *display.Arbiter) Option {
	return func(e *Engine) {
		e.arbiter = a
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records executions, renders and display use.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New builds an Engine. Collaborators not injected through options are
// created from the configuration. Failure to bring up the offscreen
// display is returned as an error; callers treat it as fatal.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{cfg: config.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}

	if e.kernel == nil {
		e.kernel = sdfx.New(
			sdfx.WithResolution(e.cfg.Kernel.MeshCells),
			sdfx.WithLogger(e.logger.With("component", "kernel")),
		)
	}
	if e.executor == nil {
		e.executor = sandbox.New(e.kernel,
			sandbox.WithTimeout(e.cfg.Sandbox.Timeout),
			sandbox.WithMaxOutput(e.cfg.Sandbox.MaxOutputBytes),
			sandbox.WithLogger(e.logger.With("component", "sandbox")),
		)
	}
	if e.projector == nil {
		e.projector = projector.New(e.kernel, projector.WithLogger(e.logger.With("component", "projector")))
	}
	if e.exporter == nil {
		e.exporter = meshio.New(e.kernel, meshio.WithLogger(e.logger.With("component", "export")))
	}
	if e.sink == nil {
		e.sink = memory.NewSink()
	}
	if e.arbiter == nil {
		a, err := display.New(
			display.WithSize(e.cfg.Display.Width, e.cfg.Display.Height),
			display.WithAcquireTimeout(e.cfg.Display.AcquireTimeout),
			display.WithLogger(e.logger.With("component", "display")),
			display.WithMetrics(e.metrics),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize offscreen display: %w", err)
		}
		e.arbiter = a
		e.ownsArbiter = true
	}

	e.store = session.NewStore(e.executor, e.kernel,
		session.WithLockTimeout(e.cfg.Store.LockTimeout),
		session.WithLogger(e.logger.With("component", "store")),
		session.WithMetrics(e.metrics),
	)
	e.pipeline = view.New(e.projector, e.arbiter,
		view.WithLogger(e.logger.With("component", "view")),
		view.WithMetrics(e.metrics),
	)
	e.analyzer = printability.New(e.kernel,
		printability.WithDefaults(printability.Options{MinWallThickness: e.cfg.Printability.MinWallThickness}),
		printability.WithLogger(e.logger.With("component", "printability")),
	)

	e.logger.Info("Engine ready", "kernel", e.kernel.Name())
	return e, nil
}

// Close releases the display if the engine created it.
func (e *Engine) Close() error {
	if e.ownsArbiter {
		return e.arbiter.Close()
	}
	return nil
}

// KernelName identifies the geometry kernel.
func (e *Engine) KernelName() string { return e.kernel.Name() }

// Sink returns the artifact store renders and exports are written to.
func (e *Engine) Sink() ports.ArtifactSink { return e.sink }

// CreateResult is the outcome of CreateModel.
type CreateResult struct {
	domain.ExecutionResult
	// Preview is an iso render of the new model, when one could be drawn.
	Preview *domain.RenderArtifact `json:"preview,omitempty"`
	// PreviewError explains a missing preview. It never fails the create.
	PreviewError string `json:"preview_error,omitempty"`
}

// CreateModel runs code as a new model called name. Store refusals are
// returned as errors; execution failures are reported inside the result.
func (e *Engine) CreateModel(ctx context.Context, name, code string) (*CreateResult, error) {
	res, err := e.store.Create(ctx, name, code)
	if err != nil {
		return nil, err
	}
	out := &CreateResult{ExecutionResult: res}
	if !res.Success {
		return out, nil
	}
	if res.Geometry.Empty() {
		out.PreviewError = "model is empty"
		return out, nil
	}
	preview, err := e.Render(ctx, name, domain.ViewSpec{Kind: domain.View3D, View: "iso"})
	if err != nil {
		out.PreviewError = err.Error()
		return out, nil
	}
	out.Preview = preview
	return out, nil
}

// ModifyModel runs code against the current geometry of name.
func (e *Engine) ModifyModel(ctx context.Context, name, code string) (domain.ExecutionResult, error) {
	return e.store.Modify(ctx, name, code)
}

// RemoveModel deletes a model and the artifacts stored under its name.
// Both happen under the name's lock, so a create that reuses the name
// cannot lose its artifacts to the cleanup.
func (e *Engine) RemoveModel(ctx context.Context, name string) error {
	return e.store.WithLock(ctx, name, func(ctx context.Context) error {
		if err := e.store.Drop(name); err != nil {
			return err
		}
		e.dropArtifacts(ctx, name)
		return nil
	})
}

func (e *Engine) dropArtifacts(ctx context.Context, name string) {
	keys, err := e.sink.List(ctx, name+"/")
	if err != nil {
		e.logger.Warn("Failed to list artifacts", "model", name, "err", err)
		return
	}
	for _, k := range keys {
		if err := e.sink.Delete(ctx, k); err != nil {
			e.logger.Warn("Failed to delete artifact", "key", k, "err", err)
		}
	}
}

// ListModels returns every model in creation order.
func (e *Engine) ListModels() []domain.ModelSummary {
	return e.store.List()
}

// GetModel returns the current state of name.
func (e *Engine) GetModel(name string) (domain.Model, error) {
	return e.store.Get(name)
}

// Measure reports the geometry of name.
func (e *Engine) Measure(name string) (domain.Measurement, error) {
	return e.store.Measure(name)
}

// Render draws name as described by spec and stores the image in the sink.
func (e *Engine) Render(ctx context.Context, name string, spec domain.ViewSpec) (*domain.RenderArtifact, error) {
	m, err := e.store.Get(name)
	if err != nil {
		return nil, err
	}
	art, err := e.pipeline.Render(ctx, m, spec)
	if err != nil {
		return nil, err
	}
	key := view.ArtifactKey(name, art.Spec, art.Data)
	if e.keep(ctx, key, art.MediaType, art.Data) {
		art.Key = key
	}
	return art, nil
}

// RenderAll renders the standard set of views. It stops at the first failure.
func (e *Engine) RenderAll(ctx context.Context, name string) ([]*domain.RenderArtifact, error) {
	specs := view.AllViews()
	out := make([]*domain.RenderArtifact, 0, len(specs))
	for _, spec := range specs {
		art, err := e.Render(ctx, name, spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Label(), err)
		}
		out = append(out, art)
	}
	return out, nil
}

// AnalyzePrintability inspects name for 3D printing. A zero
// minWallThickness uses the configured default.
func (e *Engine) AnalyzePrintability(ctx context.Context, name string, minWallThickness float64) (*domain.PrintabilityReport, error) {
	m, err := e.store.Get(name)
	if err != nil {
		return nil, err
	}
	return e.analyzer.Analyze(ctx, m.Geometry, printability.Options{MinWallThickness: minWallThickness})
}

// Export encodes name in format and stores the bytes in the sink.
func (e *Engine) Export(ctx context.Context, name string, format domain.ExportFormat) (*domain.ExportArtifact, error) {
	m, err := e.store.Get(name)
	if err != nil {
		return nil, err
	}
	data, err := e.exporter.Encode(ctx, m.Geometry, format)
	if err != nil {
		e.logger.Warn("Export failed", "model", name, "format", format, "kind", domain.KindOf(err), "err", err)
		return nil, err
	}
	art := &domain.ExportArtifact{
		Model:     name,
		Format:    format,
		MediaType: e.exporter.MediaType(format),
		Size:      len(data),
		Data:      data,
	}
	sum := sha256.Sum256(data)
	key := fmt.Sprintf("%s/export-%s.%s", name, hex.EncodeToString(sum[:6]), format)
	if e.keep(ctx, key, art.MediaType, data) {
		art.Key = key
	}
	e.logger.Info("Model exported", "model", name, "format", format, "bytes", len(data))
	return art, nil
}

// Artifact fetches a stored render or export.
func (e *Engine) Artifact(ctx context.Context, key string) (ports.Artifact, error) {
	a, err := e.sink.Get(ctx, key)
	if errors.Is(err, ports.ErrArtifactNotFound) {
		return ports.Artifact{}, domain.Wrap(domain.KindNotFound, err, key)
	}
	return a, err
}

// keep offers an artifact to the sink. A failing sink costs the caller
// the key, not the result.
func (e *Engine) keep(ctx context.Context, key, mediaType string, data []byte) bool {
	err := e.sink.Put(ctx, ports.Artifact{Key: key, MediaType: mediaType, Data: data})
	if err != nil {
		e.logger.Warn("Failed to store artifact", "key", key, "err", err)
		return false
	}
	return true
}

// Reset drops every model.
func (e *Engine) Reset() {
	e.store.Reset()
}
