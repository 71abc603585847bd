package scanrunner

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"sentinel/internal/ports"
)

var ErrQueueFull = errors.New("scan queue full")

// Runner executes accepted scans on a single background worker. The
// scanner's in-flight gate keeps at most one job pending, so the queue is
// a hand-off rather than a backlog.
type Runner struct {
	jobs chan ports.ScanJob
	log  *slog.Logger
	wg   sync.WaitGroup
}

func New(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{jobs: make(chan ports.ScanJob, 1), log: log}
}

// Enqueue hands job to the worker without blocking.
func (r *Runner) Enqueue(job ports.ScanJob) error {
	r.wg.Add(1)
	select {
	case r.jobs <- job:
		return nil
	default:
		r.wg.Done()
		return ErrQueueFull
	}
}

// Run processes jobs until ctx is done. Jobs still queued at that point are
// abandoned so the in-flight slot is released.
func (r *Runner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			r.drain()
			return
		}
		select {
		case <-ctx.Done():
		case job := <-r.jobs:
			r.process(ctx, job)
		}
	}
}

func (r *Runner) process(ctx context.Context, job ports.ScanJob) {
	defer r.wg.Done()
	a, err := job.Run(ctx)
	if err != nil {
		r.log.Warn("background scan failed", "url", job.Target(), "error", err)
		return
	}
	r.log.Debug("background scan done", "url", a.URL, "risk", a.RiskScore)
}

func (r *Runner) drain() {
	for {
		select {
		case job := <-r.jobs:
			job.Abandon()
			r.wg.Done()
		default:
			return
		}
	}
}

// Wait blocks until every enqueued job has finished or been abandoned.
func (r *Runner) Wait() { r.wg.Wait() }
