package worker

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nijaru/yt-tldr/errors"
	"github.com/nijaru/yt-tldr/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// gate blocks every handler call until released and tracks peak concurrency.
type gate struct {
	release chan struct{}
	started atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
}

func newGate() *gate {
	return &gate{release: make(chan struct{})}
}

func (g *gate) handler(ctx context.Context, req models.SummarizationRequest) (*models.SummarizationResult, error) {
	g.started.Add(1)
	n := g.running.Add(1)
	defer g.running.Add(-1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &models.SummarizationResult{Summary: req.URL}, nil
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const workers = 2
	g := newGate()
	pool := NewPool(g.handler, Options{Workers: workers, QueueSize: 10, Logger: quietLogger()})
	defer pool.Close()

	var wg sync.WaitGroup
	errs := make(chan error, workers+1)
	for i := 0; i < workers+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Submit(context.Background(), models.SummarizationRequest{URL: "x"})
			errs <- err
		}()
	}

	require.Eventually(t, func() bool {
		s := pool.Stats()
		return s.Active == workers && s.Queued == 1
	}, time.Second, 5*time.Millisecond)

	// The extra request must not start while every worker is busy.
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, workers, g.started.Load())

	g.release <- struct{}{}
	require.Eventually(t, func() bool { return g.started.Load() == workers+1 }, time.Second, 5*time.Millisecond)

	close(g.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.LessOrEqual(t, g.peak.Load(), int32(workers))
	assert.Equal(t, Stats{Workers: workers, Capacity: 10}, pool.Stats())
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	g := newGate()
	pool := NewPool(g.handler, Options{Workers: 1, QueueSize: 1, Logger: quietLogger()})
	defer pool.Close()
	defer close(g.release)

	go pool.Submit(context.Background(), models.SummarizationRequest{})
	require.Eventually(t, func() bool { return pool.Stats().Active == 1 }, time.Second, 5*time.Millisecond)

	go pool.Submit(context.Background(), models.SummarizationRequest{})
	require.Eventually(t, func() bool { return pool.Stats().Queued == 1 }, time.Second, 5*time.Millisecond)

	start := time.Now()
	_, err := pool.Submit(context.Background(), models.SummarizationRequest{})
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindQueueFull, appErr.Kind)
	assert.Equal(t, "Server is busy, please try again later.", appErr.Message)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.EqualValues(t, 1, pool.Stats().Queued)
}

func TestPoolAdmitsBurstWithinCapacity(t *testing.T) {
	handler := func(ctx context.Context, req models.SummarizationRequest) (*models.SummarizationResult, error) {
		return &models.SummarizationResult{}, nil
	}

	// A fresh pool has an idle worker that may not be waiting for work yet.
	for i := 0; i < 100; i++ {
		pool := NewPool(handler, Options{Workers: 1, QueueSize: 1, Logger: quietLogger()})

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		for n := 0; n < 2; n++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := pool.Submit(context.Background(), models.SummarizationRequest{})
				errs <- err
			}()
		}
		wg.Wait()
		pool.Close()
		close(errs)

		for err := range errs {
			require.NoError(t, err, "iteration %d", i)
		}
	}
}

func TestPoolReleasesSlotWhenRunningJobCanceled(t *testing.T) {
	g := newGate()
	pool := NewPool(g.handler, Options{Workers: 1, QueueSize: 0, Logger: quietLogger()})
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := pool.Submit(ctx, models.SummarizationRequest{})
		done <- err
	}()
	require.Eventually(t, func() bool { return pool.Stats().Active == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.Equal(t, errors.KindCanceled, errors.KindOf(<-done))
	require.Eventually(t, func() bool { return pool.Stats().Active == 0 }, time.Second, 5*time.Millisecond)

	// The only slot must be free again.
	close(g.release)
	require.Eventually(t, func() bool {
		_, err := pool.Submit(context.Background(), models.SummarizationRequest{URL: "next"})
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestPoolBlockingSubmitWaitsForCaller(t *testing.T) {
	g := newGate()
	pool := NewPool(g.handler, Options{Workers: 1, QueueSize: 0, Block: true, Logger: quietLogger()})
	defer pool.Close()
	defer close(g.release)

	go pool.Submit(context.Background(), models.SummarizationRequest{})
	require.Eventually(t, func() bool { return pool.Stats().Active == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := pool.Submit(ctx, models.SummarizationRequest{})
	assert.Equal(t, errors.KindCanceled, errors.KindOf(err))
	assert.EqualValues(t, 0, pool.Stats().Queued)
}

func TestPoolRecoversFromPanic(t *testing.T) {
	var calls atomic.Int32
	handler := func(ctx context.Context, req models.SummarizationRequest) (*models.SummarizationResult, error) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return &models.SummarizationResult{Summary: "ok"}, nil
	}
	pool := NewPool(handler, Options{Workers: 1, QueueSize: 1, Logger: quietLogger()})
	defer pool.Close()

	_, err := pool.Submit(context.Background(), models.SummarizationRequest{})
	assert.Equal(t, errors.KindInternal, errors.KindOf(err))

	result, err := pool.Submit(context.Background(), models.SummarizationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Summary)
	assert.EqualValues(t, 0, pool.Stats().Active)
}

func TestPoolSkipsJobsCanceledWhileQueued(t *testing.T) {
	g := newGate()
	pool := NewPool(g.handler, Options{Workers: 1, QueueSize: 1, Logger: quietLogger()})
	defer pool.Close()

	go pool.Submit(context.Background(), models.SummarizationRequest{})
	require.Eventually(t, func() bool { return pool.Stats().Active == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := pool.Submit(ctx, models.SummarizationRequest{})
		done <- err
	}()
	require.Eventually(t, func() bool { return pool.Stats().Queued == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.Equal(t, errors.KindCanceled, errors.KindOf(<-done))

	close(g.release)
	require.Eventually(t, func() bool {
		s := pool.Stats()
		return s.Active == 0 && s.Queued == 0
	}, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, g.started.Load())
}

func TestPoolClose(t *testing.T) {
	pool := NewPool(func(ctx context.Context, req models.SummarizationRequest) (*models.SummarizationResult, error) {
		return &models.SummarizationResult{}, nil
	}, Options{Workers: 2, QueueSize: 2, Logger: quietLogger()})

	pool.Close()
	pool.Close()

	_, err := pool.Submit(context.Background(), models.SummarizationRequest{})
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindQueueFull, appErr.Kind)
	assert.ErrorIs(t, err, ErrPoolClosed)
}
