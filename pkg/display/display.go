// Package display owns the single offscreen raster context of the process.
//
// Every rasterization goes through WithDisplay, which serializes access,
// resets the context state, and releases it on every exit path. The
// context is never reachable outside a callback.
package display

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"time"

	"github.com/aretw0/cadloop/internal/logging"
	"github.com/aretw0/cadloop/internal/metrics"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/sync/semaphore"
)

// DefaultAcquireTimeout bounds the wait for the context.
const DefaultAcquireTimeout = 10 * time.Second

// Canvas is what a callback draws on. It embeds the raster context and
// adds font sizing and PNG encoding.
type Canvas struct {
	*gg.Context

	fonts *text.FontSource
	faces map[float64]text.Face
}

// SetFontSize selects the built-in sans face at px pixels.
func (c *Canvas) SetFontSize(px float64) {
	face, ok := c.faces[px]
	if !ok {
		face = c.fonts.Face(px)
		c.faces[px] = face
	}
	c.SetFont(face)
}

// PNG encodes the current pixels.
func (c *Canvas) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Arbiter grants exclusive, bounded access to the shared context.
type Arbiter struct {
	sem *semaphore.Weighted

	// Guarded by sem.
	canvas *Canvas
	broken bool

	width, height  int
	acquireTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// Option configures the Arbiter.
type Option func(*Arbiter)

// WithAcquireTimeout bounds how long WithDisplay waits for the context.
func WithAcquireTimeout(d time.Duration) Option {
	return func(a *Arbiter) {
		if d > 0 {
			a.acquireTimeout = d
		}
	}
}

// WithSize sets the initial context size.
func WithSize(width, height int) Option {
	return func(a *Arbiter) {
		if width > 0 && height > 0 {
			a.width, a.height = width, height
		}
	}
}

// WithLogger configures a logger for the Arbiter.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Arbiter) {
		a.logger = logger
	}
}

// WithMetrics records wait times and occupancy.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Arbiter) {
		a.metrics = m
	}
}

// New creates the context and verifies it with a probe draw. A failure
// here means nothing can ever be rendered; callers treat it as fatal.
func New(opts ...Option) (*Arbiter, error) {
	a := &Arbiter{
		sem:            semaphore.NewWeighted(1),
		width:          domain.DefaultWidth,
		height:         domain.DefaultHeight,
		acquireTimeout: DefaultAcquireTimeout,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	canvas, err := newCanvas(a.width, a.height)
	if err != nil {
		return nil, err
	}
	if err := probe(canvas); err != nil {
		return nil, err
	}
	a.canvas = canvas
	a.logger.Debug("Display ready", "width", a.width, "height", a.height)
	return a, nil
}

func newCanvas(width, height int) (*Canvas, error) {
	fonts, err := text.NewFontSource(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("loading font: %w", err)
	}
	return &Canvas{
		Context: gg.NewContext(width, height),
		fonts:   fonts,
		faces:   make(map[float64]text.Face),
	}, nil
}

// probe draws a black square and reads it back.
func probe(c *Canvas) error {
	c.ClearWithColor(gg.RGB(1, 1, 1))
	c.SetRGB(0, 0, 0)
	c.DrawRectangle(0, 0, 8, 8)
	if err := c.Fill(); err != nil {
		return fmt.Errorf("display probe: %w", err)
	}
	r, g, b, _ := c.Image().At(4, 4).RGBA()
	if r > 0x1000 || g > 0x1000 || b > 0x1000 {
		return fmt.Errorf("display probe: expected black pixel, got %v", color.RGBA64{R: uint16(r), G: uint16(g), B: uint16(b)})
	}
	return nil
}

// WithDisplay runs fn with exclusive use of the context sized to
// width x height and cleared to white. It fails with DisplayUnavailable
// when the context cannot be acquired within the acquire timeout or
// before ctx ends. fn's error is returned unchanged. A panic in fn is
// reported as RasterizationFailed and the context is rebuilt before
// its next use.
func (a *Arbiter) WithDisplay(ctx context.Context, width, height int, fn func(*Canvas) error) error {
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, a.acquireTimeout)
	err := a.sem.Acquire(waitCtx, 1)
	cancel()
	a.metrics.ObserveDisplayWait(time.Since(start))
	if err != nil {
		return domain.Wrap(domain.KindDisplayUnavailable, err,
			fmt.Sprintf("display not acquired within %s", a.acquireTimeout))
	}
	defer a.sem.Release(1)

	a.metrics.SetDisplayInUse(true)
	defer a.metrics.SetDisplayInUse(false)

	if err := a.prepare(width, height); err != nil {
		return err
	}
	return a.call(fn)
}

// prepare rebuilds a broken context and resets the drawing state.
func (a *Arbiter) prepare(width, height int) error {
	if a.broken {
		canvas, err := newCanvas(width, height)
		if err != nil {
			return domain.Wrap(domain.KindDisplayUnavailable, err, "rebuilding display")
		}
		a.canvas = canvas
		a.broken = false
		a.logger.Warn("Display rebuilt after failure")
	}

	c := a.canvas
	if err := c.Resize(width, height); err != nil {
		return domain.Wrap(domain.KindRasterizationFailed, err, "resizing display")
	}
	c.Identity()
	c.ResetClip()
	c.ClearDash()
	c.ClearPath()
	c.SetLineWidth(1)
	c.SetLineCap(gg.LineCapButt)
	c.SetLineJoin(gg.LineJoinMiter)
	c.SetFontSize(14)
	c.ClearWithColor(gg.RGB(1, 1, 1))
	c.SetRGB(0, 0, 0)
	return nil
}

func (a *Arbiter) call(fn func(*Canvas) error) (err error) {
	c := a.canvas
	c.Push()
	defer func() {
		if r := recover(); r != nil {
			a.broken = true
			a.logger.Error("Rasterization panicked", "panic", r)
			err = domain.Errorf(domain.KindRasterizationFailed, "rasterization panicked: %v", r)
			return
		}
		c.Pop()
	}()
	return fn(c)
}

// Close releases the context. It waits for the current holder.
func (a *Arbiter) Close() error {
	if err := a.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer a.sem.Release(1)
	a.broken = true
	return a.canvas.Close()
}

// Render is WithDisplay for callbacks that produce a value.
func Render[T any](ctx context.Context, a *Arbiter, width, height int, fn func(*Canvas) (T, error)) (T, error) {
	var out T
	err := a.WithDisplay(ctx, width, height, func(c *Canvas) error {
		v, err := fn(c)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
