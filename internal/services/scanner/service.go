package scanner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sentinel/internal/domain"
	"sentinel/internal/metrics"
	"sentinel/internal/ports"
	"sentinel/internal/services/history"
	"sentinel/internal/services/stats"
	"sentinel/internal/services/urlnorm"
)

// FailureMessage is the only failure detail ever shown for a scan.
const FailureMessage = "ANALYSIS_CRITICAL_FAILURE: UNABLE TO CONNECT TO NEURAL CORE"

var (
	ErrEmptyInput     = errors.New("empty scan input")
	ErrScanInProgress = errors.New("scan already in progress")
	ErrAnalysisFailed = errors.New(FailureMessage)
	errJobReused      = errors.New("scan job already run or abandoned")
)

var (
	_ ports.Scanner = (*Service)(nil)
	_ ports.ScanJob = (*Scan)(nil)
)

// Service coordinates scans: normalize, call the provider, then fold the
// result into history and stats. At most one scan is in flight; further
// submissions are refused, not queued.
type Service struct {
	provider ports.AnalysisProvider
	history  *history.Store
	lifetime *stats.Lifetime
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	analyzing bool
	result    *domain.ThreatAnalysis
	errMsg    *string
	stats     domain.AppStats
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLifetimeStats keeps counters in their own slot so they are not
// rebuilt from the capped history on load.
func WithLifetimeStats(l *stats.Lifetime) Option { return func(s *Service) { s.lifetime = l } }

func New(provider ports.AnalysisProvider, hist *history.Store, opts ...Option) *Service {
	s := &Service{provider: provider, history: hist, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load restores history and derives the starting counters. It never fails:
// unreadable persisted state starts empty.
func (s *Service) Load(ctx context.Context) domain.AppStats {
	items := s.history.Load(ctx)
	st := stats.RecomputeFromHistory(items)
	if s.lifetime != nil {
		saved, ok, err := s.lifetime.Load(ctx)
		switch {
		case err != nil:
			s.log.Warn("lifetime stats unavailable; using history", "error", err)
		case ok:
			st = saved
		}
	}
	s.mu.Lock()
	s.stats = st
	s.mu.Unlock()
	s.metrics.SetHistoryItems(len(items))
	s.log.Info("history loaded", "items", len(items), "scanned", st.Scanned, "threats", st.Threats)
	return st
}

// Begin claims the in-flight slot for raw. The returned job must be Run or
// Abandoned to release it.
func (s *Service) Begin(raw string) (ports.ScanJob, error) {
	sc, err := s.begin(raw)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *Service) begin(raw string) (*Scan, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		s.metrics.ScanOutcome(metrics.OutcomeRejected)
		return nil, ErrEmptyInput
	}
	target := urlnorm.Normalize(raw)

	s.mu.Lock()
	if s.analyzing {
		s.mu.Unlock()
		s.metrics.ScanOutcome(metrics.OutcomeRejected)
		return nil, ErrScanInProgress
	}
	s.analyzing = true
	s.errMsg = nil
	s.mu.Unlock()

	s.metrics.SetInFlight(true)
	return &Scan{svc: s, url: target}, nil
}

// RunScan is Begin followed by Run on the caller's goroutine.
func (s *Service) RunScan(ctx context.Context, raw string) (domain.ThreatAnalysis, error) {
	sc, err := s.begin(raw)
	if err != nil {
		return domain.ThreatAnalysis{}, err
	}
	return sc.Run(ctx)
}

func (s *Service) release() {
	s.mu.Lock()
	s.analyzing = false
	s.mu.Unlock()
	s.metrics.SetInFlight(false)
}

func (s *Service) fail(target string, cause error) {
	s.log.Error("analysis failed", "url", target, "domain", urlnorm.RegistrableDomain(target), "error", cause)
	msg := FailureMessage
	s.mu.Lock()
	s.errMsg = &msg
	s.mu.Unlock()
	s.metrics.ScanOutcome(metrics.OutcomeFailure)
}

func (s *Service) commit(ctx context.Context, a domain.ThreatAnalysis) {
	stored := a
	stored.DetectedThreatTypes = append([]string{}, a.DetectedThreatTypes...)

	s.mu.Lock()
	item, items := s.history.Add(a)
	s.result = &stored
	s.errMsg = nil
	s.stats = stats.ApplyIncrement(s.stats, a)
	st := s.stats
	s.mu.Unlock()

	// Readers see the new state while the slots are written.
	if err := s.history.Save(ctx, items); err != nil {
		s.log.Warn("history not persisted", "item", item.ID, "error", err)
		s.metrics.PersistFailed()
	}
	if s.lifetime != nil {
		if err := s.lifetime.Save(ctx, st); err != nil {
			s.log.Warn("lifetime stats not persisted", "error", err)
			s.metrics.PersistFailed()
		}
	}
	s.metrics.ScanOutcome(metrics.OutcomeSuccess)
	s.metrics.SetHistoryItems(len(items))
	s.log.Info("scan complete",
		"url", a.URL,
		"domain", urlnorm.RegistrableDomain(a.URL),
		"risk", a.RiskScore,
		"level", a.ThreatLevel,
		"threats", len(a.DetectedThreatTypes),
	)
}

// Snapshot returns a copy of the read model.
func (s *Service) Snapshot() domain.ReadModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm := domain.ReadModel{
		IsAnalyzing: s.analyzing,
		History:     s.history.Items(),
		Stats:       s.stats,
	}
	if s.result != nil {
		r := *s.result
		r.DetectedThreatTypes = append([]string{}, s.result.DetectedThreatTypes...)
		rm.Result = &r
	}
	if s.errMsg != nil {
		e := *s.errMsg
		rm.Error = &e
	}
	return rm
}

func (s *Service) Stats() domain.AppStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Service) History() []domain.ScanHistoryItem { return s.history.Items() }

func (s *Service) HistoryItem(id string) (domain.ScanHistoryItem, error) {
	return s.history.Get(id)
}

// Scan is an accepted submission that holds the in-flight slot.
type Scan struct {
	svc  *Service
	url  string
	used atomic.Bool
}

// Target is the normalized URL the provider will be asked about.
func (sc *Scan) Target() string { return sc.url }

// Run calls the provider and records the outcome. The in-flight slot is
// released however the call ends. Provider errors are logged and reported
// to the caller only as ErrAnalysisFailed.
func (sc *Scan) Run(ctx context.Context) (domain.ThreatAnalysis, error) {
	if !sc.used.CompareAndSwap(false, true) {
		return domain.ThreatAnalysis{}, errJobReused
	}
	s := sc.svc
	defer s.release()

	start := time.Now()
	a, err := s.provider.Analyze(ctx, sc.url)
	s.metrics.ObserveProvider(time.Since(start))
	if err != nil {
		s.fail(sc.url, err)
		return domain.ThreatAnalysis{}, ErrAnalysisFailed
	}

	a.URL = sc.url
	if a.DetectedThreatTypes == nil {
		a.DetectedThreatTypes = []string{}
	}
	s.commit(ctx, a)
	return a, nil
}

// Abandon releases the slot without calling the provider.
func (sc *Scan) Abandon() {
	if sc.used.CompareAndSwap(false, true) {
		sc.svc.release()
	}
}
