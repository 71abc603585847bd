package ports

import (
	"context"

	"sentinel/internal/domain"
)

// AnalysisProvider produces a threat report for an absolute URL. Timeouts and
// retries are the provider's business; callers do not add their own.
type AnalysisProvider interface {
	Analyze(ctx context.Context, url string) (domain.ThreatAnalysis, error)
}

// Scanner accepts scans and exposes the read model.
type Scanner interface {
	// Begin claims the single in-flight slot for raw without calling the provider.
	Begin(raw string) (ScanJob, error)
	RunScan(ctx context.Context, raw string) (domain.ThreatAnalysis, error)
	Snapshot() domain.ReadModel
	HistoryItem(id string) (domain.ScanHistoryItem, error)
}
