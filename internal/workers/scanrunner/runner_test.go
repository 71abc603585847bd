package scanrunner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/domain"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubJob struct {
	target    string
	err       error
	ran       atomic.Bool
	abandoned atomic.Bool
}

func (j *stubJob) Target() string { return j.target }

func (j *stubJob) Run(ctx context.Context) (domain.ThreatAnalysis, error) {
	j.ran.Store(true)
	return domain.ThreatAnalysis{URL: j.target}, j.err
}

func (j *stubJob) Abandon() { j.abandoned.Store(true) }

func TestRunnerProcessesJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(quiet)
	go r.Run(ctx)

	ok := &stubJob{target: "https://a.example"}
	require.NoError(t, r.Enqueue(ok))
	r.Wait()
	assert.True(t, ok.ran.Load())

	failing := &stubJob{target: "https://b.example", err: errors.New("boom")}
	require.NoError(t, r.Enqueue(failing))
	r.Wait()
	assert.True(t, failing.ran.Load())
}

func TestEnqueueDoesNotBlock(t *testing.T) {
	r := New(quiet)
	require.NoError(t, r.Enqueue(&stubJob{}))
	assert.ErrorIs(t, r.Enqueue(&stubJob{}), ErrQueueFull)
}

func TestShutdownAbandonsQueued(t *testing.T) {
	r := New(quiet)
	job := &stubJob{target: "https://late.example"}
	require.NoError(t, r.Enqueue(job))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
	r.Wait()
	assert.True(t, job.abandoned.Load())
	assert.False(t, job.ran.Load())
}
