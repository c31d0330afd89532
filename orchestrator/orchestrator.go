// Package orchestrator sequences a conversion request through validation,
// conversion and storage, and looks results up again by identifier.
package orchestrator

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
	"github.com/Skryldev/image-convert/store"
)

// Converter is the part of converter.Converter the orchestrator needs.
type Converter interface {
	Validate(req core.ConversionRequest) error
	Convert(ctx context.Context, req core.ConversionRequest) (*core.Converted, error)
}

// Options configures an Orchestrator.
type Options struct {
	Workers   int           // default: runtime.NumCPU()
	QueueSize int           // default: 256
	ResultTTL time.Duration // reported in receipts; the store enforces it
	Logger    core.Logger
	Metrics   core.MetricsCollector
}

// Receipt describes a stored conversion.
type Receipt struct {
	ID           string
	ContentType  string
	Format       core.Format
	SourceFormat core.Format
	Width        int
	Height       int
	Size         int
	ExpiresAt    time.Time // zero when results do not expire
}

// Stats is a point-in-time view of the orchestrator counters.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
	Queued    int   `json:"queued"`
	Workers   int   `json:"workers"`
}

type job struct {
	ctx    context.Context
	req    core.ConversionRequest
	result chan jobResult // buffered; workers never block on it
}

type jobResult struct {
	out *core.Converted
	err error
}

// Orchestrator runs conversions on a bounded worker pool so CPU-bound work
// never exceeds Workers goroutines, while the store remains the only shared
// mutable state. It is safe for concurrent use.
type Orchestrator struct {
	conv    Converter
	store   store.Store
	opts    Options
	logger  core.Logger
	metrics core.MetricsCollector

	// Worker pool.
	jobs     chan job
	wg       sync.WaitGroup
	start    sync.Once
	stop     sync.Once
	mu       sync.RWMutex // guards closed against concurrent enqueues
	closed   bool
	shutdown chan struct{}

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// New creates an Orchestrator. Call Start before Submit and Stop when done.
func New(conv Converter, st store.Store, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	o := &Orchestrator{
		conv:     conv,
		store:    st,
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		jobs:     make(chan job, opts.QueueSize),
		shutdown: make(chan struct{}),
	}
	if o.logger == nil {
		o.logger = core.NopLogger{}
	}
	return o
}

// Start launches the worker pool.  It is idempotent.
func (o *Orchestrator) Start() {
	o.start.Do(func() {
		for i := 0; i < o.opts.Workers; i++ {
			o.wg.Add(1)
			go o.worker()
		}
	})
}

// Stop shuts the workers down and fails every job still queued. Submit
// calls made afterwards are rejected.
func (o *Orchestrator) Stop() {
	o.stop.Do(func() {
		o.mu.Lock()
		o.closed = true
		o.mu.Unlock()
		close(o.shutdown)
		o.wg.Wait()
		for {
			select {
			case j := <-o.jobs:
				j.result <- jobResult{err: apperrors.New(apperrors.CategoryExhausted, "orchestrator.stop", apperrors.ErrWorkerPoolFull)}
			default:
				return
			}
		}
	})
}

// Submit validates req, converts it on the worker pool and stores the
// result. Nothing is stored unless every earlier stage succeeded and ctx is
// still live, so an abandoned request never leaves a visible entry.
func (o *Orchestrator) Submit(ctx context.Context, req core.ConversionRequest) (*Receipt, error) {
	start := time.Now()
	o.submitted.Add(1)

	rec, err := o.submit(ctx, req)
	o.observe("submit", time.Since(start), err)
	if err != nil {
		o.failed.Add(1)
		o.logger.Info("orchestrator.submit.failed",
			"target", req.Target,
			"in_bytes", len(req.Data),
			"category", apperrors.CategoryOf(err),
			"error", err,
		)
		return nil, err
	}

	o.completed.Add(1)
	o.logger.Info("orchestrator.submit.done",
		"id", rec.ID,
		"source", rec.SourceFormat,
		"target", rec.Format,
		"in_bytes", len(req.Data),
		"out_bytes", rec.Size,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

func (o *Orchestrator) submit(ctx context.Context, req core.ConversionRequest) (*Receipt, error) {
	const op = "orchestrator.submit"

	// Validating: fail fast before queueing any decode work.
	if err := o.conv.Validate(req); err != nil {
		return nil, err
	}

	// Converting.
	out, err := o.convert(ctx, req)
	if err != nil {
		return nil, err
	}

	// Storing.
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCanceled, op, err)
	}
	id, err := o.store.Put(ctx, core.Artifact{Data: out.Data, ContentType: out.ContentType})
	if err != nil {
		return nil, err
	}

	rec := &Receipt{
		ID:           id,
		ContentType:  out.ContentType,
		Format:       out.Format,
		SourceFormat: out.SourceFormat,
		Width:        out.Width,
		Height:       out.Height,
		Size:         len(out.Data),
	}
	if o.opts.ResultTTL > 0 {
		rec.ExpiresAt = time.Now().Add(o.opts.ResultTTL)
	}
	return rec, nil
}

// convert hands req to the pool and waits for the outcome or for ctx.
func (o *Orchestrator) convert(ctx context.Context, req core.ConversionRequest) (*core.Converted, error) {
	const op = "orchestrator.convert"
	j := job{ctx: ctx, req: req, result: make(chan jobResult, 1)}

	if err := o.enqueue(j); err != nil {
		o.rejected.Add(1)
		return nil, err
	}

	select {
	case r := <-j.result:
		return r.out, r.err
	case <-ctx.Done():
		return nil, apperrors.Wrap(apperrors.CategoryCanceled, op, ctx.Err())
	}
}

// enqueue adds j without blocking. A full queue is reported as exhaustion so
// callers can back off.
func (o *Orchestrator) enqueue(j job) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return apperrors.New(apperrors.CategoryExhausted, "orchestrator.enqueue", errors.New("orchestrator stopped"))
	}
	select {
	case o.jobs <- j:
		return nil
	default:
		return apperrors.New(apperrors.CategoryExhausted, "orchestrator.enqueue", apperrors.ErrWorkerPoolFull)
	}
}

// Fetch returns the stored result for id. A malformed id is rejected before
// the store is consulted.
func (o *Orchestrator) Fetch(ctx context.Context, id string) (*core.Result, error) {
	start := time.Now()
	res, err := o.fetch(ctx, id)
	o.observe("fetch", time.Since(start), err)
	return res, err
}

func (o *Orchestrator) fetch(ctx context.Context, id string) (*core.Result, error) {
	if err := store.ValidateID(id); err != nil {
		return nil, err
	}
	return o.store.Get(ctx, id)
}

// Stats returns the current counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Submitted: o.submitted.Load(),
		Completed: o.completed.Load(),
		Failed:    o.failed.Load(),
		Rejected:  o.rejected.Load(),
		Queued:    len(o.jobs),
		Workers:   o.opts.Workers,
	}
}

// ── worker pool internals ──────────────────────────────────────────────────────

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.shutdown:
			return
		case j := <-o.jobs:
			o.processJob(j)
		}
	}
}

func (o *Orchestrator) processJob(j job) {
	// The submitter may have given up while the job sat in the queue.
	if err := j.ctx.Err(); err != nil {
		j.result <- jobResult{err: apperrors.Wrap(apperrors.CategoryCanceled, "orchestrator.worker", err)}
		return
	}
	out, err := o.conv.Convert(j.ctx, j.req)
	j.result <- jobResult{out: out, err: err}
}

func (o *Orchestrator) observe(op string, d time.Duration, err error) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordProcessingTime(op, d)
	if err != nil {
		o.metrics.RecordError(op, string(apperrors.CategoryOf(err)))
	}
}
