package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/cadloop/internal/logging"
	"github.com/aretw0/cadloop/internal/metrics"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTimeout bounds how long a mutation waits for its turn.
const DefaultLockTimeout = 2 * time.Minute

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidateName rejects names that cannot be used as artifact path segments.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return domain.Errorf(domain.KindInvalidArgument,
			"invalid model name %q: use 1-64 letters, digits, '_', '-' or '.'", name)
	}
	return nil
}

// lockEntry holds the per-name mutex and its reference count.
// The mutex is a one-slot channel so that waiting can be bounded.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// snapshot is one immutable committed state of a model.
type snapshot struct {
	model domain.Model

	measureOnce sync.Once
	measure     domain.Measurement
	measureErr  error
}

// Store owns every model of a session.
type Store struct {
	exec ports.Executor
	tess ports.Tessellator

	mu     sync.RWMutex // guards models, seq and gen
	models map[string]*snapshot
	seq    uint64
	gen    uint64 // bumped by Reset

	locksMu sync.Mutex
	locks   map[string]*lockEntry

	lockTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	newID       func() string
}

// Option configures the Store.
type Option func(*Store)

// WithLogger configures a logger for the Store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics records executions and the model count.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithLockTimeout bounds how long a mutation waits behind another one on
// the same name before failing with Busy.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Model Store that runs code through exec and measures
// geometry through tess.
func NewStore(exec ports.Executor, tess ports.Tessellator, opts ...Option) *Store {
	s := &Store{
		exec:        exec,
		tess:        tess,
		models:      make(map[string]*snapshot),
		locks:       make(map[string]*lockEntry),
		lockTimeout: DefaultLockTimeout,
		logger:      logging.NewNop(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must pair it with release.
func (s *Store) acquire(name string) *lockEntry {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	entry, exists := s.locks[name]
	if !exists {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		s.locks[name] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (s *Store) release(name string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	entry, exists := s.locks[name]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(s.locks, name)
	}
}

// WithLock runs fn while holding the mutation lock for name.
// Waiters are served in arrival order. The wait fails with Busy when ctx
// ends or the lock timeout elapses first.
func (s *Store) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	entry := s.acquire(name)
	defer s.release(name)

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		return domain.Wrap(domain.KindBusy, ctx.Err(), fmt.Sprintf("model %q is being modified", name))
	case <-timer.C:
		return domain.Errorf(domain.KindBusy, "model %q is being modified; gave up after %s", name, s.lockTimeout)
	}
	defer func() { <-entry.sem }()

	return fn(ctx)
}

func (s *Store) load(name string) (*snapshot, bool) {
	snap, _, ok := s.loadGen(name)
	return snap, ok
}

// loadGen also returns the session generation the snapshot belongs to.
func (s *Store) loadGen(name string) (*snapshot, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.models[name]
	return snap, s.gen, ok
}

// commit swaps in a new snapshot. prev is nil for creates. A commit from
// before a Reset is dropped so a mutation in flight cannot bring a model
// back into the new session.
func (s *Store) commit(name string, gen uint64, prev *snapshot, res domain.ExecutionResult, op domain.Operation, code string) error {
	now := s.now()
	var summary domain.GeometrySummary
	if res.Summary != nil {
		summary = *res.Summary
	}
	rev := domain.Revision{
		ID:        s.newID(),
		Operation: op,
		Code:      code,
		AppliedAt: now,
		Summary:   summary,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		s.logger.Warn("Discarding commit from before reset", "model", name, "op", op)
		return domain.Errorf(domain.KindNotFound, "model %q was dropped by a session reset", name)
	}

	next := &snapshot{model: domain.Model{
		Name:     name,
		Summary:  summary,
		Geometry: res.Geometry,
	}}
	if prev == nil {
		s.seq++
		next.model.CreatedAt = now
		next.model.Sequence = s.seq
		next.model.Revisions = []domain.Revision{rev}
	} else {
		next.model.CreatedAt = prev.model.CreatedAt
		next.model.Sequence = prev.model.Sequence
		revs := make([]domain.Revision, len(prev.model.Revisions), len(prev.model.Revisions)+1)
		copy(revs, prev.model.Revisions)
		next.model.Revisions = append(revs, rev)
	}
	s.models[name] = next
	s.metrics.SetModels(len(s.models))
	return nil
}

// Create runs code with no prior geometry and commits the result under name.
// It fails with NameConflict if the name already exists. Execution failures
// are reported inside the result and leave the store untouched.
func (s *Store) Create(ctx context.Context, name, code string) (domain.ExecutionResult, error) {
	if err := ValidateName(name); err != nil {
		return domain.ExecutionResult{}, err
	}
	var res domain.ExecutionResult
	err := s.WithLock(ctx, name, func(ctx context.Context) error {
		_, gen, exists := s.loadGen(name)
		if exists {
			return domain.Errorf(domain.KindNameConflict, "model %q already exists", name)
		}
		res = s.run(ctx, domain.OpCreate, name, code, nil)
		if res.Success {
			return s.commit(name, gen, nil, res, domain.OpCreate, code)
		}
		return nil
	})
	return res, err
}

// Modify runs code with the current geometry of name bound as "result" and
// commits the outcome only on success. It fails with NotFound if the name
// does not exist, and never creates it.
func (s *Store) Modify(ctx context.Context, name, code string) (domain.ExecutionResult, error) {
	var res domain.ExecutionResult
	err := s.WithLock(ctx, name, func(ctx context.Context) error {
		prev, gen, exists := s.loadGen(name)
		if !exists {
			return domain.Errorf(domain.KindNotFound, "model %q not found", name)
		}
		res = s.run(ctx, domain.OpModify, name, code, prev.model.Geometry)
		if res.Success {
			return s.commit(name, gen, prev, res, domain.OpModify, code)
		}
		return nil
	})
	return res, err
}

func (s *Store) run(ctx context.Context, op domain.Operation, name, code string, prior ports.Solid) domain.ExecutionResult {
	start := s.now()
	res := s.exec.Run(ctx, code, prior)
	if res.Duration == 0 {
		res.Duration = s.now().Sub(start)
	}
	if res.Success && res.Geometry == nil {
		res = domain.Failed(domain.KindResultMissing, "execution reported success without geometry")
	}
	s.metrics.ObserveExecution(string(op), string(res.ErrorKind()), res.Duration)

	if !res.Success {
		s.logger.Warn("Execution failed",
			"model", name,
			"op", op,
			"kind", res.ErrorKind(),
			"err", res.Error,
		)
		return res
	}
	s.logger.Info("Model committed",
		"model", name,
		"op", op,
		"duration", res.Duration,
	)
	return res
}

// Get returns the current model. The returned value is a copy; its
// Geometry is immutable.
func (s *Store) Get(name string) (domain.Model, error) {
	snap, ok := s.load(name)
	if !ok {
		return domain.Model{}, domain.Errorf(domain.KindNotFound, "model %q not found", name)
	}
	m := snap.model
	m.Revisions = append([]domain.Revision(nil), m.Revisions...)
	return m, nil
}

// List returns every model ordered by creation.
func (s *Store) List() []domain.ModelSummary {
	s.mu.RLock()
	out := make([]domain.ModelSummary, 0, len(s.models))
	for _, snap := range s.models {
		m := snap.model
		out = append(out, domain.ModelSummary{
			Name:      m.Name,
			Sequence:  m.Sequence,
			CreatedAt: m.CreatedAt,
			Revisions: len(m.Revisions),
			Summary:   m.Summary,
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// Remove deletes a model. It waits for any in-flight mutation of the name.
func (s *Store) Remove(ctx context.Context, name string) error {
	return s.WithLock(ctx, name, func(context.Context) error {
		return s.Drop(name)
	})
}

// Drop deletes a model. The caller must hold the lock for name through
// WithLock, so that cleanup tied to the name can run before the next
// mutation of it.
func (s *Store) Drop(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[name]; !ok {
		return domain.Errorf(domain.KindNotFound, "model %q not found", name)
	}
	delete(s.models, name)
	s.metrics.SetModels(len(s.models))
	s.logger.Info("Model removed", "model", name)
	return nil
}

// Reset drops every model, ending the session. Mutations still running
// finish without committing.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.models = make(map[string]*snapshot)
	s.metrics.SetModels(0)
}

// Measure reports the geometry of the current snapshot. The result is
// computed once per committed snapshot.
func (s *Store) Measure(name string) (domain.Measurement, error) {
	snap, ok := s.load(name)
	if !ok {
		return domain.Measurement{}, domain.Errorf(domain.KindNotFound, "model %q not found", name)
	}
	snap.measureOnce.Do(func() {
		snap.measure, snap.measureErr = measure(s.tess, snap.model)
	})
	return snap.measure, snap.measureErr
}

func measure(tess ports.Tessellator, m domain.Model) (domain.Measurement, error) {
	bb := m.Geometry.Bounds()
	size := bb.Size()
	out := domain.Measurement{
		Name:        m.Name,
		BoundingBox: bb,
		Width:       round3(size.X),
		Depth:       round3(size.Y),
		Height:      round3(size.Z),
		Revisions:   len(m.Revisions),
	}
	mesh, err := tess.Tessellate(m.Geometry)
	if err != nil {
		return out, domain.Wrap(domain.KindRuntimeError, err, "tessellation failed")
	}
	out.Volume = round3(mesh.Volume())
	out.SurfaceArea = round3(mesh.Area())
	c := mesh.Centroid()
	out.CenterOfMass = domain.Vec3{X: round3(c.X), Y: round3(c.Y), Z: round3(c.Z)}
	out.Triangles = len(mesh.Triangles)
	out.Vertices = len(mesh.Vertices)
	out.Parts = mesh.Components()
	return out, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
