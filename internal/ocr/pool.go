/**
 * Worker pool scheduler
 *
 * Owns a fixed-size pool of long-lived recognition workers. Jobs are handed
 * to whichever worker is free; callers block until their job completes.
 * Initialization is sequential so startup progress can be reported per
 * worker; teardown is concurrent and tolerant of individual failures.
 */

package ocr

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	ocrerrors "github.com/docuflow/ocr-worker/internal/errors"
	"github.com/docuflow/ocr-worker/internal/logging"
)

// PoolState models the pool lifecycle as explicit states rather than an
// implicit side effect of configuration changes.
type PoolState int

const (
	PoolUninitialized PoolState = iota
	PoolReady
	PoolShuttingDown
)

// Pool owns N recognition workers sharing one WorkerConfig.
type Pool struct {
	mu      sync.Mutex
	state   PoolState
	size    int
	cfg     WorkerConfig
	factory WorkerFactory
	log     *logging.Logger

	workers []Recognizer
	free    chan Recognizer
}

// NewPool creates an uninitialized pool of the given size (minimum 1).
func NewPool(size int, cfg WorkerConfig, factory WorkerFactory, log *logging.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:    size,
		cfg:     cfg,
		factory: factory,
		log:     log,
	}
}

// State returns the current lifecycle state.
func (p *Pool) State() PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Initialize creates the workers sequentially. onWorker, if non-nil, is
// invoked after each worker becomes ready with (ready, total) so callers can
// report incremental startup progress. Initialization failure is fatal for
// the pool as a whole: already-created workers are released and the error is
// surfaced.
func (p *Pool) Initialize(ctx context.Context, onWorker func(ready, total int)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == PoolReady {
		return nil
	}
	if p.state == PoolShuttingDown {
		return ocrerrors.NewInitializationError("pool is shutting down", nil)
	}

	workers := make([]Recognizer, 0, p.size)
	for i := 0; i < p.size; i++ {
		select {
		case <-ctx.Done():
			p.closeAll(workers)
			return ocrerrors.NewInitializationError("pool initialization cancelled", ctx.Err())
		default:
		}

		w, err := p.factory(p.cfg)
		if err != nil {
			p.closeAll(workers)
			return ocrerrors.NewInitializationError(
				fmt.Sprintf("failed to create worker %d/%d", i+1, p.size), err)
		}
		workers = append(workers, w)

		p.log.Info("Recognition worker ready", "worker", i+1, "total", p.size, "languages", p.cfg.Languages.Spec())
		if onWorker != nil {
			onWorker(i+1, p.size)
		}
	}

	free := make(chan Recognizer, p.size)
	for _, w := range workers {
		free <- w
	}

	p.workers = workers
	p.free = free
	p.state = PoolReady
	return nil
}

// Submit blocks until a worker is free, runs the recognition, and returns
// the worker to the pool. A failing job surfaces a recognition error for
// that job only; the worker stays in rotation.
func (p *Pool) Submit(ctx context.Context, image []byte) (*RawResult, error) {
	p.mu.Lock()
	if p.state != PoolReady {
		p.mu.Unlock()
		return nil, ocrerrors.NewInitializationError("pool is not initialized", nil)
	}
	free := p.free
	p.mu.Unlock()

	var worker Recognizer
	select {
	case worker = <-free:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { free <- worker }()

	result, err := worker.Recognize(ctx, image)
	if err != nil {
		p.log.Error("Recognition failed", "error", err)
		return nil, ocrerrors.NewRecognitionError("recognition failed", err)
	}

	return result, nil
}

// Terminate releases every worker. Individual termination failures are
// logged as warnings and do not abort the teardown. Safe to call on an
// uninitialized pool.
func (p *Pool) Terminate() error {
	p.mu.Lock()
	if p.state != PoolReady {
		p.mu.Unlock()
		return nil
	}
	p.state = PoolShuttingDown
	workers := p.workers
	p.workers = nil
	p.free = nil
	p.mu.Unlock()

	g := new(errgroup.Group)
	for i, w := range workers {
		i, w := i, w
		g.Go(func() error {
			if err := w.Close(); err != nil {
				p.log.Warn("Worker termination failed", "worker", i+1, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	p.state = PoolUninitialized
	p.mu.Unlock()

	p.log.Info("Worker pool terminated", "workers", len(workers))
	return nil
}

func (p *Pool) closeAll(workers []Recognizer) {
	for i, w := range workers {
		if err := w.Close(); err != nil {
			p.log.Warn("Worker cleanup failed", "worker", i+1, "error", err)
		}
	}
}
