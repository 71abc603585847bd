package ports

import (
	"context"

	"sentinel/internal/domain"
)

// ScanJob is an accepted scan holding the in-flight slot. Exactly one of Run
// or Abandon must be called.
type ScanJob interface {
	Target() string
	Run(ctx context.Context) (domain.ThreatAnalysis, error)
	Abandon()
}

// JobQueue hands accepted scans to a background worker.
type JobQueue interface {
	Enqueue(job ScanJob) error
}
