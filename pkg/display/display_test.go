package display_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/cadloop/pkg/display"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newArbiter(t *testing.T, opts ...display.Option) *display.Arbiter {
	t.Helper()
	a, err := display.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestWithDisplay_ResetsAndDraws(t *testing.T) {
	a := newArbiter(t)
	ctx := context.Background()

	err := a.WithDisplay(ctx, 100, 80, func(c *display.Canvas) error {
		assert.Equal(t, 100, c.Width())
		assert.Equal(t, 80, c.Height())
		c.SetRGB(1, 0, 0)
		c.DrawRectangle(0, 0, 50, 80)
		c.SetDash(4, 3)
		return c.Fill()
	})
	require.NoError(t, err)

	// The next holder starts from a clean white canvas.
	err = a.WithDisplay(ctx, 64, 64, func(c *display.Canvas) error {
		r, g, b, _ := c.Image().At(10, 10).RGBA()
		assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b})
		return nil
	})
	require.NoError(t, err)
}

func TestRender_ReturnsValue(t *testing.T) {
	a := newArbiter(t)

	png, err := display.Render(context.Background(), a, 64, 64, func(c *display.Canvas) ([]byte, error) {
		c.DrawLine(0, 0, 63, 63)
		if err := c.Stroke(); err != nil {
			return nil, err
		}
		return c.PNG()
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}

func TestWithDisplay_IsExclusive(t *testing.T) {
	a := newArbiter(t)

	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := a.WithDisplay(context.Background(), 64, 64, func(c *display.Canvas) error {
				n := inside.Add(1)
				defer inside.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestWithDisplay_UnavailableAfterTimeout(t *testing.T) {
	a := newArbiter(t, display.WithAcquireTimeout(20*time.Millisecond))

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- a.WithDisplay(context.Background(), 64, 64, func(*display.Canvas) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := a.WithDisplay(context.Background(), 64, 64, func(*display.Canvas) error {
		t.Error("callback must not run without the display")
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrDisplayUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = a.WithDisplay(ctx, 64, 64, func(*display.Canvas) error { return nil })
	assert.ErrorIs(t, err, domain.ErrDisplayUnavailable)

	close(release)
	require.NoError(t, <-done)
}

func TestWithDisplay_PropagatesCallbackError(t *testing.T) {
	a := newArbiter(t, display.WithAcquireTimeout(50*time.Millisecond))
	boom := errors.New("boom")

	err := a.WithDisplay(context.Background(), 64, 64, func(*display.Canvas) error { return boom })
	assert.Same(t, boom, err)

	// Released on the error path.
	err = a.WithDisplay(context.Background(), 64, 64, func(*display.Canvas) error { return nil })
	assert.NoError(t, err)
}

func TestWithDisplay_RecoversFromPanic(t *testing.T) {
	a := newArbiter(t, display.WithAcquireTimeout(50*time.Millisecond))

	err := a.WithDisplay(context.Background(), 64, 64, func(*display.Canvas) error {
		panic("renderer exploded")
	})
	assert.ErrorIs(t, err, domain.ErrRasterizationFailed)
	assert.Contains(t, err.Error(), "renderer exploded")

	err = a.WithDisplay(context.Background(), 96, 64, func(c *display.Canvas) error {
		assert.Equal(t, 96, c.Width())
		return nil
	})
	assert.NoError(t, err)
}

func TestCanvas_Text(t *testing.T) {
	a := newArbiter(t)

	err := a.WithDisplay(context.Background(), 200, 50, func(c *display.Canvas) error {
		c.SetFontSize(12)
		w12, _ := c.MeasureString("FRONT")
		c.SetFontSize(24)
		w24, _ := c.MeasureString("FRONT")
		assert.Positive(t, w12)
		assert.Greater(t, w24, w12)
		c.DrawString("FRONT", 10, 30)
		return nil
	})
	require.NoError(t, err)
}
