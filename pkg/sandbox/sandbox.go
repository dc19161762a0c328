package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/cadloop/internal/logging"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Defaults.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxOutputBytes = 64 << 10
)

// Sandbox executes modeling scripts against a kernel.
type Sandbox struct {
	kernel    ports.Kernel
	timeout   time.Duration
	maxOutput int
	logger    *slog.Logger
}

var _ ports.Executor = (*Sandbox)(nil)

// Option configures the Sandbox.
type Option func(*Sandbox)

// WithTimeout sets the wall-clock budget of one run.
func WithTimeout(d time.Duration) Option {
	return func(s *Sandbox) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxOutput caps the captured print output.
func WithMaxOutput(n int) Option {
	return func(s *Sandbox) {
		if n > 0 {
			s.maxOutput = n
		}
	}
}

// WithLogger configures a logger for the Sandbox.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sandbox) {
		s.logger = logger
	}
}

// New creates a Sandbox over kernel.
func New(kernel ports.Kernel, opts ...Option) *Sandbox {
	s := &Sandbox{
		kernel:    kernel,
		timeout:   DefaultTimeout,
		maxOutput: DefaultMaxOutputBytes,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes code with prior bound as result. prior is nil on create.
func (s *Sandbox) Run(ctx context.Context, code string, prior ports.Solid) domain.ExecutionResult {
	start := time.Now()
	out := &boundedBuffer{max: s.maxOutput}

	res := s.run(ctx, code, prior, out)
	res.Output = sanitizeOutput(out.String())
	res.Duration = time.Since(start)

	s.logger.Debug("Script executed",
		"success", res.Success,
		"kind", res.ErrorKind(),
		"duration", res.Duration,
		"output_bytes", len(res.Output),
	)
	return res
}

func (s *Sandbox) run(ctx context.Context, code string, prior ports.Solid, out *boundedBuffer) domain.ExecutionResult {
	src, err := stripImports(code)
	if err != nil {
		return failure(domain.KindSyntaxError, err)
	}
	if strings.TrimSpace(src) == "" {
		return domain.Failed(domain.KindResultMissing, "no code to execute")
	}

	i := interp.New(interp.Options{Stdout: out, Stderr: out})
	if err := i.Use(allowedSymbols()); err != nil {
		return failure(domain.KindRuntimeError, fmt.Errorf("loading packages: %w", err))
	}
	if err := i.Use(symbols(s.kernel, prior)); err != nil {
		return failure(domain.KindRuntimeError, fmt.Errorf("loading primitives: %w", err))
	}
	if _, err := i.Eval(prelude); err != nil {
		return failure(domain.KindRuntimeError, fmt.Errorf("prelude: %w", err))
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// The interpreter wraps statements in a function body; the trailing
	// newline keeps a final line comment from swallowing the closing brace.
	for _, c := range splitChunks(src) {
		if _, err := i.EvalWithContext(runCtx, c.text+"\n"); err != nil {
			return s.classify(runCtx, err)
		}
	}

	v, err := i.Eval("result")
	if err != nil {
		return failure(domain.KindResultMissing, err)
	}
	var shape *Shape
	if v.IsValid() && v.CanInterface() {
		shape, _ = v.Interface().(*Shape)
	}
	if shape == nil || shape.solid == nil {
		return domain.Failed(domain.KindResultMissing, "the script did not assign a shape to result")
	}

	summary, err := s.summarize(shape.solid)
	if err != nil {
		return failure(domain.KindRuntimeError, err)
	}
	return domain.ExecutionResult{
		Success:  true,
		Geometry: shape.solid,
		Summary:  summary,
	}
}

func (s *Sandbox) classify(ctx context.Context, err error) domain.ExecutionResult {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return domain.ExecutionResult{Error: domain.Wrap(domain.KindTimeout, ctxErr,
				fmt.Sprintf("execution exceeded %s", s.timeout))}
		}
		return domain.ExecutionResult{Error: domain.Wrap(domain.KindTimeout, ctxErr, "execution cancelled")}
	}

	var p interp.Panic
	if errors.As(err, &p) {
		if de, ok := p.Value.(*domain.Error); ok {
			return domain.ExecutionResult{Error: domain.Wrap(domain.KindRuntimeError, de, "")}
		}
		return domain.Failed(domain.KindRuntimeError, "panic: %v", p.Value)
	}
	return failure(domain.KindSyntaxError, err)
}

func (s *Sandbox) summarize(solid ports.Solid) (*domain.GeometrySummary, error) {
	sum := &domain.GeometrySummary{BoundingBox: solid.Bounds()}
	if solid.Empty() {
		return sum, nil
	}
	vol, err := s.kernel.Volume(solid)
	if err != nil {
		return nil, fmt.Errorf("volume: %w", err)
	}
	mesh, err := s.kernel.Tessellate(solid)
	if err != nil {
		return nil, fmt.Errorf("tessellation: %w", err)
	}
	sum.Volume = vol
	sum.Parts = mesh.Components()
	return sum, nil
}

func failure(kind domain.ErrorKind, err error) domain.ExecutionResult {
	return domain.ExecutionResult{Error: domain.Wrap(kind, err, "")}
}

// allowedSymbols filters the interpreter's standard library down to
// AllowedImports.
func allowedSymbols() interp.Exports {
	out := make(interp.Exports, len(AllowedImports))
	for _, p := range AllowedImports {
		key := p + "/" + path.Base(p)
		if syms, ok := stdlib.Symbols[key]; ok {
			out[key] = syms
		}
	}
	return out
}

// boundedBuffer keeps the first max bytes written to it. An abandoned run
// may still be writing after Run returns, so access is synchronized.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
