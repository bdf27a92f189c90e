/**
 * OCR engine
 *
 * Orchestrates the recognition pipeline: preprocess -> worker pool
 * recognition -> hierarchy formatting -> structure classification. Owns the
 * worker pool and its configuration for the engine's lifetime. Progress is
 * reported to subscribed observers on every phase transition; cancellation
 * is cooperative and observed at phase boundaries, never mid-recognition.
 */

package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	ocrerrors "github.com/docuflow/ocr-worker/internal/errors"
	"github.com/docuflow/ocr-worker/internal/logging"
	"github.com/docuflow/ocr-worker/internal/ocr"
	"github.com/docuflow/ocr-worker/internal/structure"
)

// Options configures an Engine.
type Options struct {
	Languages   ocr.Languages
	PageSegMode int
	EngineMode  int

	// Workers is the recognition pool size. Zero means one less than
	// available hardware parallelism, minimum 1.
	Workers int

	Preprocess      bool
	DetectStructure bool
	EnhanceImages   bool

	// Timeout bounds a single processImage call. Zero means 5 minutes.
	Timeout time.Duration

	Logger     *logging.Logger
	OnProgress func(ocr.ProgressInfo)
}

// ConfigUpdate is a partial options patch for Configure. Nil fields keep
// their current value.
type ConfigUpdate struct {
	Languages       *ocr.Languages
	PageSegMode     *int
	EngineMode      *int
	Workers         *int
	Preprocess      *bool
	DetectStructure *bool
	EnhanceImages   *bool
	Timeout         *time.Duration
}

// Engine is the single logical owner of the worker pool and of its own
// mutable configuration. No two engines share a pool.
type Engine struct {
	mu      sync.Mutex
	opts    Options
	pool    *ocr.Pool
	factory ocr.WorkerFactory
	pre     *ocr.Preprocessor
	log     *logging.Logger

	aborted  atomic.Bool
	inFlight atomic.Int32

	obsMu     sync.Mutex
	observers []func(ocr.ProgressInfo)
}

// New creates an engine backed by Tesseract workers.
func New(opts Options) *Engine {
	return NewWithFactory(opts, ocr.NewTesseractWorker)
}

// NewWithFactory creates an engine with a custom worker factory. Used by
// tests and alternative recognition backends.
func NewWithFactory(opts Options, factory ocr.WorkerFactory) *Engine {
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger("ocr-engine")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}

	e := &Engine{
		opts:    opts,
		factory: factory,
		pre:     ocr.NewPreprocessor(opts.EnhanceImages, opts.Logger),
		log:     opts.Logger,
	}
	if opts.OnProgress != nil {
		e.observers = append(e.observers, opts.OnProgress)
	}
	return e
}

// Subscribe registers an additional progress observer.
func (e *Engine) Subscribe(fn func(ocr.ProgressInfo)) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, fn)
}

func (e *Engine) emit(info ocr.ProgressInfo) {
	e.obsMu.Lock()
	observers := make([]func(ocr.ProgressInfo), len(e.observers))
	copy(observers, e.observers)
	e.obsMu.Unlock()

	for _, fn := range observers {
		fn(info)
	}
}

// ProcessImage runs the full single-image pipeline and returns the
// recognized hierarchy.
func (e *Engine) ProcessImage(ctx context.Context, imageData []byte) (*ocr.OCRResult, error) {
	e.aborted.Store(false)
	return e.processOne(ctx, imageData, 1, 1)
}

// ProcessImages processes a batch sequentially and returns only the
// recognized text of each image, in input order. A failure on image k
// aborts the remaining images.
func (e *Engine) ProcessImages(ctx context.Context, images [][]byte) ([]string, error) {
	e.aborted.Store(false)

	texts := make([]string, 0, len(images))
	for i, img := range images {
		result, err := e.processOne(ctx, img, i+1, len(images))
		if err != nil {
			return nil, err
		}
		texts = append(texts, result.Text)
	}
	return texts, nil
}

// ExtractStructuredContent runs document structure extraction over the
// concatenation of the given texts.
func (e *Engine) ExtractStructuredContent(texts []string) *structure.StructuredDocument {
	return structure.ExtractFromTexts(texts)
}

// ExtractTables processes one image and extracts a grid from every
// table-classified block.
func (e *Engine) ExtractTables(ctx context.Context, imageData []byte) ([]structure.Table, error) {
	result, err := e.ProcessImage(ctx, imageData)
	if err != nil {
		return nil, err
	}

	// Classification may be disabled engine-wide; tables still need it here.
	if !e.options().DetectStructure {
		structure.ClassifyBlocks(result.Blocks)
	}

	var tables []structure.Table
	for i := range result.Blocks {
		if result.Blocks[i].Type == ocr.BlockTable {
			tables = append(tables, structure.ExtractTable(&result.Blocks[i]))
		}
	}
	return tables, nil
}

// EnhanceImage exposes the preprocessor directly. Fail-open: the original
// buffer comes back on any internal failure.
func (e *Engine) EnhanceImage(imageData []byte) []byte {
	return e.pre.Process(imageData)
}

// Configure merges a partial options update. A change that affects the
// worker configuration tears the pool down for lazy reinitialization on
// next use; such changes are rejected while jobs are in flight rather than
// racing an active recognition.
func (e *Engine) Configure(update ConfigUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	poolChange := update.Languages != nil && !update.Languages.Equal(e.opts.Languages) ||
		update.PageSegMode != nil && *update.PageSegMode != e.opts.PageSegMode ||
		update.EngineMode != nil && *update.EngineMode != e.opts.EngineMode ||
		update.Workers != nil && *update.Workers != e.opts.Workers

	if poolChange {
		if n := e.inFlight.Load(); n > 0 {
			return fmt.Errorf("reconfigure rejected: %d jobs in flight", n)
		}
	}

	if update.Languages != nil {
		e.opts.Languages = *update.Languages
	}
	if update.PageSegMode != nil {
		e.opts.PageSegMode = *update.PageSegMode
	}
	if update.EngineMode != nil {
		e.opts.EngineMode = *update.EngineMode
	}
	if update.Workers != nil {
		e.opts.Workers = *update.Workers
	}
	if update.Preprocess != nil {
		e.opts.Preprocess = *update.Preprocess
	}
	if update.DetectStructure != nil {
		e.opts.DetectStructure = *update.DetectStructure
	}
	if update.EnhanceImages != nil {
		e.opts.EnhanceImages = *update.EnhanceImages
		e.pre.Enhance = *update.EnhanceImages
	}
	if update.Timeout != nil {
		e.opts.Timeout = *update.Timeout
	}

	if poolChange && e.pool != nil {
		e.log.Info("Recognition configuration changed, releasing worker pool",
			"languages", e.opts.Languages.Spec())
		if err := e.pool.Terminate(); err != nil {
			e.log.Warn("Pool teardown during reconfigure failed", "error", err)
		}
		e.pool = nil
	}

	return nil
}

// Abort sets the cooperative cancellation flag. Processing observes it at
// the next checked boundary; in-flight recognition is not preempted.
func (e *Engine) Abort() {
	e.aborted.Store(true)
	e.emit(ocr.ProgressInfo{
		Status:    ocr.StatusError,
		Operation: "abort requested",
		Error:     ocrerrors.NewAbortError().Error(),
	})
}

// Terminate releases all workers. Safe to call when already uninitialized.
func (e *Engine) Terminate() error {
	e.mu.Lock()
	pool := e.pool
	e.pool = nil
	e.mu.Unlock()

	if pool == nil {
		return nil
	}
	return pool.Terminate()
}

func (e *Engine) options() Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

// ensurePool lazily creates and initializes the worker pool, reporting
// startup as the 0-50% slice of the initializing phase.
func (e *Engine) ensurePool(ctx context.Context, page, totalPages int) (*ocr.Pool, error) {
	e.mu.Lock()
	if e.pool == nil {
		size := e.opts.Workers
		e.pool = ocr.NewPool(size, ocr.WorkerConfig{
			Languages:   e.opts.Languages,
			PageSegMode: e.opts.PageSegMode,
			EngineMode:  e.opts.EngineMode,
		}, e.factory, e.log)
	}
	pool := e.pool
	e.mu.Unlock()

	if pool.State() == ocr.PoolReady {
		return pool, nil
	}

	err := pool.Initialize(ctx, func(ready, total int) {
		e.emit(ocr.ProgressInfo{
			Status:     ocr.StatusInitializing,
			Progress:   50 * float64(ready) / float64(total),
			Page:       page,
			TotalPages: totalPages,
			Operation:  fmt.Sprintf("worker %d/%d ready", ready, total),
		})
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// checkAbort polls the cooperative cancellation flag and the caller's
// context at a suspension point.
func (e *Engine) checkAbort(ctx context.Context) error {
	if e.aborted.Load() {
		return ocrerrors.NewAbortError()
	}
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ocrerrors.NewProcessingTimeoutError(e.options().Timeout, ctx.Err())
		}
		return ocrerrors.NewAbortError()
	default:
	}
	return nil
}

// processOne runs the per-image state machine:
// initializing -> loading -> processing -> recognizing -> processing ->
// complete, with error reachable from any phase.
func (e *Engine) processOne(ctx context.Context, imageData []byte, page, totalPages int) (result *ocr.OCRResult, err error) {
	opts := e.options()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	e.inFlight.Add(1)
	defer e.inFlight.Add(-1)

	defer func() {
		if err != nil {
			e.log.Error("Image processing failed", "page", page, "error", err)
			e.emit(ocr.ProgressInfo{
				Status:     ocr.StatusError,
				Progress:   0,
				Page:       page,
				TotalPages: totalPages,
				Error:      err.Error(),
			})
		}
	}()

	progress := func(status ocr.ProgressStatus, pct float64, op string) {
		e.emit(ocr.ProgressInfo{
			Status:     status,
			Progress:   pct,
			Page:       page,
			TotalPages: totalPages,
			Operation:  op,
			ElapsedMs:  time.Since(start).Milliseconds(),
		})
	}

	if err = e.checkAbort(ctx); err != nil {
		return nil, err
	}

	progress(ocr.StatusInitializing, 0, "initializing recognition workers")
	pool, perr := e.ensurePool(ctx, page, totalPages)
	if perr != nil {
		err = perr
		return nil, err
	}

	progress(ocr.StatusLoading, 50, "decoding image")
	width, height := imageDimensions(imageData)

	if err = e.checkAbort(ctx); err != nil {
		return nil, err
	}

	if opts.Preprocess {
		progress(ocr.StatusProcessing, 50, "preprocessing image")
		imageData = e.pre.Process(imageData)
	}

	if err = e.checkAbort(ctx); err != nil {
		return nil, err
	}

	progress(ocr.StatusRecognizing, 50, "recognizing text")
	raw, rerr := pool.Submit(ctx, imageData)
	if rerr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = ocrerrors.NewProcessingTimeoutError(opts.Timeout, rerr)
		} else {
			err = rerr
		}
		return nil, err
	}
	progress(ocr.StatusRecognizing, 90, "recognition complete")

	progress(ocr.StatusProcessing, 90, "building text hierarchy")
	result = ocr.Format(raw, width, height, time.Since(start))

	if opts.DetectStructure {
		progress(ocr.StatusProcessing, 95, "classifying blocks")
		structure.ClassifyBlocks(result.Blocks)
	}

	progress(ocr.StatusComplete, 100, "done")
	e.log.Info("Image processed",
		"page", page,
		"blocks", len(result.Blocks),
		"confidence", fmt.Sprintf("%.1f", result.Confidence),
		"elapsed", time.Since(start))
	return result, nil
}

// imageDimensions reads the page size from the image header. Dimensions are
// best-effort: an undecodable header yields a zero-size page rather than a
// failed job, since the recognition engine accepts the buffer opaquely.
func imageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
