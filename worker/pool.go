package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nijaru/yt-tldr/errors"
	"github.com/nijaru/yt-tldr/models"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrPoolClosed = pkgerrors.New("worker pool is closed")

// Handler executes one pipeline invocation.
type Handler func(ctx context.Context, req models.SummarizationRequest) (*models.SummarizationResult, error)

type Options struct {
	Workers   int
	QueueSize int
	// Block makes Submit wait for queue space instead of rejecting.
	Block  bool
	Logger *logrus.Logger
}

type Stats struct {
	Workers  int   `json:"workers"`
	Capacity int   `json:"capacity"`
	Active   int64 `json:"active"`
	Queued   int64 `json:"queued"`
}

type job struct {
	ctx    context.Context
	req    models.SummarizationRequest
	result chan outcome
}

type outcome struct {
	result *models.SummarizationResult
	err    error
}

// Pool runs a fixed number of workers over a bounded FIFO queue.
type Pool struct {
	handler Handler
	jobs    chan *job
	// slots admits at most workers+queueSize jobs; a slot is held until the job finishes.
	slots     chan struct{}
	workers   int
	queueSize int
	block     bool
	logger    *logrus.Logger

	active atomic.Int64
	queued atomic.Int64

	mu        sync.RWMutex
	closed    bool
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewPool(handler Handler, opts Options) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	p := &Pool{
		handler: handler,
		jobs:      make(chan *job, opts.Workers+opts.QueueSize),
		slots:     make(chan struct{}, opts.Workers+opts.QueueSize),
		workers:   opts.Workers,
		queueSize: opts.QueueSize,
		block:     opts.Block,
		logger:    opts.Logger,
		quit:      make(chan struct{}),
	}

	p.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go p.worker(i)
	}
	return p
}

// Submit queues req and waits for its result. A full queue is rejected with a
// QueueFull error unless the pool blocks; a caller that goes away gets Canceled.
func (p *Pool) Submit(ctx context.Context, req models.SummarizationRequest) (*models.SummarizationResult, error) {
	const op = "worker.Submit"

	j := &job{ctx: ctx, req: req, result: make(chan outcome, 1)}
	if err := p.enqueue(ctx, j); err != nil {
		return nil, err
	}

	select {
	case out := <-j.result:
		return out.result, out.err
	case <-ctx.Done():
		return nil, errors.Canceled(op, ctx.Err())
	}
}

func (p *Pool) enqueue(ctx context.Context, j *job) error {
	const op = "worker.Submit"

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return closedError(op)
	}

	if !p.block {
		select {
		case p.slots <- struct{}{}:
		default:
			return errors.QueueFull(op)
		}
	} else {
		select {
		case p.slots <- struct{}{}:
		case <-ctx.Done():
			return errors.Canceled(op, ctx.Err())
		case <-p.quit:
			return closedError(op)
		}
	}

	// Holding a slot guarantees buffer space, so this send never blocks.
	p.queued.Add(1)
	p.jobs <- j
	return nil
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.logger.WithField("worker_id", id)
	log.Debug("Starting worker")

	for {
		select {
		case <-p.quit:
			log.Debug("Worker shutting down")
			return
		case j := <-p.jobs:
			p.queued.Add(-1)
			out := p.process(log, j)
			<-p.slots
			j.result <- out
		}
	}
}

func (p *Pool) process(log *logrus.Entry, j *job) outcome {
	// Dropped while queued; the submitter has already returned.
	if err := j.ctx.Err(); err != nil {
		return outcome{err: errors.Canceled("worker.process", err)}
	}

	start := time.Now()
	result, err := p.run(j)
	log.WithFields(logrus.Fields{
		"duration": time.Since(start).String(),
		"failed":   err != nil,
	}).Debug("Job finished")

	return outcome{result: result, err: err}
}

// run holds an active slot for the duration of the handler, releasing it on panic too.
func (p *Pool) run(j *job) (result *models.SummarizationResult, err error) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.WithFields(logrus.Fields{
				"panic": fmt.Sprint(rec),
				"stack": string(debug.Stack()),
			}).Error("Panic recovered in worker")
			result = nil
			err = errors.Internal("worker.run", fmt.Errorf("panic: %v", rec), "Internal server error")
		}
	}()
	return p.handler(j.ctx, j.req)
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:  p.workers,
		Capacity: p.queueSize,
		Active:   p.active.Load(),
		Queued:   p.queued.Load(),
	}
}

// Close stops accepting work, waits for running jobs, and fails anything still queued.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)

		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.wg.Wait()

		for {
			select {
			case j := <-p.jobs:
				p.queued.Add(-1)
				<-p.slots
				j.result <- outcome{err: closedError("worker.Close")}
			default:
				return
			}
		}
	})
}

func closedError(op string) error {
	return errors.E(errors.KindQueueFull, op, ErrPoolClosed, "Server is shutting down, please try again later.")
}
