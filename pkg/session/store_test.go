package session_test

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/cadloop/internal/testutils"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
	"github.com/aretw0/cadloop/pkg/session"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptExecutor understands a tiny line language so the store can be
// tested without an interpreter:
//
//	box X Y Z   new box
//	mark NAME   append a marker op to the prior solid
//	wait        block until gate is closed, then mark "waited"
//	fail        runtime failure
//	empty       success without geometry
func scriptExecutor(k *testutils.Kernel, gate <-chan struct{}) ports.ExecutorFunc {
	return func(ctx context.Context, code string, prior domain.Solid) domain.ExecutionResult {
		fields := strings.Fields(code)
		var out *testutils.Solid
		switch fields[0] {
		case "box":
			var dims [3]float64
			for i := range dims {
				dims[i], _ = strconv.ParseFloat(fields[i+1], 64)
			}
			s, err := k.Box(dims[0], dims[1], dims[2])
			if err != nil {
				return domain.Failed(domain.KindRuntimeError, "%v", err)
			}
			out = s.(*testutils.Solid)
		case "mark":
			time.Sleep(2 * time.Millisecond)
			out = prior.(*testutils.Solid).Marked(fields[1])
		case "wait":
			<-gate
			out = prior.(*testutils.Solid).Marked("waited")
		case "fail":
			return domain.Failed(domain.KindRuntimeError, "boom")
		case "empty":
			return domain.ExecutionResult{Success: true}
		default:
			return domain.Failed(domain.KindSyntaxError, "unknown statement %q", fields[0])
		}
		return domain.ExecutionResult{
			Success:  true,
			Geometry: out,
			Summary:  &domain.GeometrySummary{BoundingBox: out.Bounds(), Parts: 1},
		}
	}
}

func newStore(t *testing.T, opts ...session.Option) (*session.Store, *testutils.Kernel, chan struct{}) {
	t.Helper()
	k := testutils.NewKernel()
	gate := make(chan struct{})
	return session.NewStore(scriptExecutor(k, gate), k, opts...), k, gate
}

func TestStore_CreateGetList(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store, _, _ := newStore(t, session.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		res, err := store.Create(ctx, name, "box 10 10 10")
		require.NoError(t, err)
		require.True(t, res.Success)
	}

	m, err := store.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", m.Name)
	assert.Len(t, m.Revisions, 1)
	assert.Equal(t, domain.OpCreate, m.Revisions[0].Operation)
	assert.NotEmpty(t, m.Revisions[0].ID)
	assert.Equal(t, clock, m.CreatedAt)

	var names []string
	for _, s := range store.List() {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha", "mid"}, names); diff != "" {
		t.Errorf("list order mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_CreateNameConflict(t *testing.T) {
	store, _, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "box1", "box 60 40 30")
	require.NoError(t, err)

	_, err = store.Create(ctx, "box1", "box 1 1 1")
	assert.ErrorIs(t, err, domain.ErrNameConflict)

	m, err := store.Get("box1")
	require.NoError(t, err)
	assert.Equal(t, 60.0, m.Geometry.Bounds().Size().X)
}

func TestStore_CreateFailureLeavesNoName(t *testing.T) {
	store, _, _ := newStore(t)

	res, err := store.Create(context.Background(), "broken", "fail")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.KindRuntimeError, res.ErrorKind())

	_, err = store.Get("broken")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, store.List())
}

func TestStore_SuccessWithoutGeometryIsResultMissing(t *testing.T) {
	store, _, _ := newStore(t)

	res, err := store.Create(context.Background(), "nothing", "empty")
	require.NoError(t, err)
	assert.Equal(t, domain.KindResultMissing, res.ErrorKind())

	_, err = store.Get("nothing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_InvalidName(t *testing.T) {
	store, _, _ := newStore(t)

	for _, name := range []string{"", "../x", "has space", strings.Repeat("a", 65)} {
		_, err := store.Create(context.Background(), name, "box 1 1 1")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, "name %q", name)
	}
}

func TestStore_ModifyNotFound(t *testing.T) {
	store, _, _ := newStore(t)

	_, err := store.Modify(context.Background(), "ghost", "mark a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.Get("ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound, "modify must never create the name")
}

func TestStore_ModifyFailureIsAtomic(t *testing.T) {
	store, _, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "box1", "box 60 40 30")
	require.NoError(t, err)

	before, err := store.Measure("box1")
	require.NoError(t, err)

	res, err := store.Modify(ctx, "box1", "fail")
	require.NoError(t, err)
	assert.False(t, res.Success)

	after, err := store.Measure("box1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 60.0, after.Width)
	assert.Equal(t, 40.0, after.Depth)
	assert.Equal(t, 30.0, after.Height)
	assert.Equal(t, 72000.0, after.Volume)

	m, err := store.Get("box1")
	require.NoError(t, err)
	assert.Len(t, m.Revisions, 1, "failed modify must not append a revision")
}

func TestStore_ModifyBindsPrior(t *testing.T) {
	store, _, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "part", "box 10 10 10")
	require.NoError(t, err)

	res, err := store.Modify(ctx, "part", "mark hole")
	require.NoError(t, err)
	require.True(t, res.Success)

	m, err := store.Get("part")
	require.NoError(t, err)
	assert.Equal(t, []string{"box(10,10,10)", "hole"}, m.Geometry.(*testutils.Solid).Ops)
	assert.Len(t, m.Revisions, 2)
	assert.Equal(t, domain.OpModify, m.Revisions[1].Operation)
	assert.Equal(t, "mark hole", m.Revisions[1].Code)
}

func TestStore_ConcurrentModifiesAreSerialized(t *testing.T) {
	store, _, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "shared", "box 10 10 10")
	require.NoError(t, err)

	const n = 12
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := store.Modify(ctx, "shared", fmt.Sprintf("mark m%d", i))
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}(i)
	}
	wg.Wait()

	m, err := store.Get("shared")
	require.NoError(t, err)
	ops := m.Geometry.(*testutils.Solid).Ops
	require.Len(t, ops, n+1, "a lost update would drop a marker")
	for i := 0; i < n; i++ {
		assert.Contains(t, ops, fmt.Sprintf("m%d", i))
	}
	assert.Len(t, m.Revisions, n+1)
}

func TestStore_BusyAfterLockTimeout(t *testing.T) {
	store, _, gate := newStore(t, session.WithLockTimeout(30*time.Millisecond))
	ctx := context.Background()

	_, err := store.Create(ctx, "slow", "box 1 1 1")
	require.NoError(t, err)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		res, err := store.Modify(ctx, "slow", "wait")
		assert.NoError(t, err)
		assert.True(t, res.Success)
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	_, err = store.Modify(ctx, "slow", "mark late")
	assert.ErrorIs(t, err, domain.ErrBusy)

	close(gate)
	<-done

	m, err := store.Get("slow")
	require.NoError(t, err)
	assert.Equal(t, []string{"box(1,1,1)", "waited"}, m.Geometry.(*testutils.Solid).Ops)
}

func TestStore_BusyOnContextCancel(t *testing.T) {
	store, _, gate := newStore(t)
	bg := context.Background()

	_, err := store.Create(bg, "m", "box 1 1 1")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = store.Modify(bg, "m", "wait")
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(bg, 20*time.Millisecond)
	defer cancel()
	_, err = store.Modify(ctx, "m", "mark x")
	assert.ErrorIs(t, err, domain.ErrBusy)

	close(gate)
	<-done
}

func TestStore_ReadsDoNotWaitForMutations(t *testing.T) {
	store, _, gate := newStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "m", "box 5 5 5")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = store.Modify(ctx, "m", "wait")
	}()
	time.Sleep(10 * time.Millisecond)

	// The modify is in flight; readers still see the committed snapshot.
	m, err := store.Get("m")
	require.NoError(t, err)
	assert.Equal(t, []string{"box(5,5,5)"}, m.Geometry.(*testutils.Solid).Ops)
	_, err = store.Measure("m")
	require.NoError(t, err)

	close(gate)
	<-done
}

func TestStore_MeasureCacheInvalidatedOnCommit(t *testing.T) {
	store, k, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "m", "box 2 3 4")
	require.NoError(t, err)

	m1, err := store.Measure("m")
	require.NoError(t, err)
	_, err = store.Measure("m")
	require.NoError(t, err)
	assert.Equal(t, int64(1), k.Tessellations.Load(), "measurement is cached per snapshot")

	_, err = store.Modify(ctx, "m", "mark again")
	require.NoError(t, err)
	m2, err := store.Measure("m")
	require.NoError(t, err)
	assert.Equal(t, int64(2), k.Tessellations.Load())
	assert.Equal(t, 1, m1.Revisions)
	assert.Equal(t, 2, m2.Revisions)
	assert.Equal(t, 24.0, m2.Volume)
	assert.Equal(t, 12, m2.Triangles)
	assert.Equal(t, 1, m2.Parts)
}

func TestStore_Remove(t *testing.T) {
	store, _, _ := newStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Remove(ctx, "nope"), domain.ErrNotFound)

	_, err := store.Create(ctx, "tmp", "box 1 1 1")
	require.NoError(t, err)
	require.NoError(t, store.Remove(ctx, "tmp"))

	_, err = store.Get("tmp")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The name is free again.
	res, err := store.Create(ctx, "tmp", "box 1 1 1")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestStore_Reset(t *testing.T) {
	store, _, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "a", "box 1 1 1")
	require.NoError(t, err)
	store.Reset()
	assert.Empty(t, store.List())
}

func TestStore_ResetDuringModifyDoesNotRestoreModel(t *testing.T) {
	store, _, gate := newStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "m", "box 1 1 1")
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := store.Modify(ctx, "m", "wait")
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)

	store.Reset()
	close(gate)
	assert.ErrorIs(t, <-errs, domain.ErrNotFound)

	_, err = store.Get("m")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, store.List())

	// The name belongs to the new session.
	res, err := store.Create(ctx, "m", "box 2 2 2")
	require.NoError(t, err)
	assert.True(t, res.Success)
}
