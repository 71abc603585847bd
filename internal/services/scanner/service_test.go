package scanner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/adapters/fakeprovider"
	"sentinel/internal/adapters/memory"
	"sentinel/internal/domain"
	"sentinel/internal/metrics"
	"sentinel/internal/ports"
	"sentinel/internal/services/history"
	"sentinel/internal/services/stats"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func allChecks(ok bool) domain.Checks {
	c := domain.Check{Status: ok, Label: "check"}
	return domain.Checks{SSL: c, Blacklist: c, Phishing: c, DomainAge: c}
}

func safeVerdict() domain.ThreatAnalysis {
	return domain.ThreatAnalysis{
		URL:                 "https://provider-echo.example",
		IsSafe:              true,
		RiskScore:           5,
		ThreatLevel:         domain.ThreatLevelSafe,
		Summary:             "Looks fine.",
		Checks:              allChecks(true),
		DetectedThreatTypes: []string{},
		WarningMessage:      "",
	}
}

func dangerousVerdict() domain.ThreatAnalysis {
	return domain.ThreatAnalysis{
		IsSafe:              false,
		RiskScore:           85,
		ThreatLevel:         domain.ThreatLevelDangerous,
		Summary:             "Credential harvesting page.",
		Checks:              allChecks(false),
		DetectedThreatTypes: []string{"Phishing", "Trojan"},
		WarningMessage:      "Leave this site.",
	}
}

type fixture struct {
	svc      *Service
	provider *fakeprovider.Scripted
	slots    *memory.Store
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		provider: fakeprovider.NewScripted(),
		slots:    memory.New(),
		metrics:  metrics.New(),
	}
	hist := history.New(f.slots.Slot(ports.HistorySlot), history.WithLogger(quiet))
	opts = append([]Option{WithLogger(quiet), WithMetrics(f.metrics)}, opts...)
	f.svc = New(f.provider, hist, opts...)
	f.svc.Load(context.Background())
	return f
}

func TestEmptyInputIsNoop(t *testing.T) {
	f := newFixture(t)
	for _, raw := range []string{"", "   ", "\t\n"} {
		_, err := f.svc.RunScan(context.Background(), raw)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
	assert.Empty(t, f.provider.Calls())
	assert.Equal(t, domain.ReadModel{History: []domain.ScanHistoryItem{}}, f.svc.Snapshot())
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.ScansTotal.WithLabelValues(metrics.OutcomeRejected)))
}

func TestSafeScanEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.provider.Return(safeVerdict())

	a, err := f.svc.RunScan(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com"}, f.provider.Calls())
	assert.Equal(t, "https://example.com", a.URL, "provider echo is overwritten")

	rm := f.svc.Snapshot()
	assert.False(t, rm.IsAnalyzing)
	assert.Nil(t, rm.Error)
	require.NotNil(t, rm.Result)
	assert.Equal(t, a, *rm.Result)
	require.Len(t, rm.History, 1)
	assert.Equal(t, 0, rm.History[0].ThreatCount)
	assert.Equal(t, "https://example.com", rm.History[0].URL)
	assert.Equal(t, "Safe", rm.History[0].ThreatLevel)
	assert.Equal(t, domain.AppStats{Scanned: 1, Threats: 0, Safe: 1, Dangerous: 0}, rm.Stats)
}

func TestDangerousScanBothModesAgree(t *testing.T) {
	f := newFixture(t)
	f.provider.Return(dangerousVerdict())

	_, err := f.svc.RunScan(context.Background(), "https://bank-secure.example/login")
	require.NoError(t, err)
	live := f.svc.Stats()
	assert.Equal(t, domain.AppStats{Scanned: 1, Threats: 2, Safe: 0, Dangerous: 1}, live)

	recomputed := stats.RecomputeFromHistory(f.svc.History())
	assert.Equal(t, live, recomputed)

	// A restart over the same slot rebuilds the same counters.
	hist := history.New(f.slots.Slot(ports.HistorySlot), history.WithLogger(quiet))
	restarted := New(f.provider, hist, WithLogger(quiet))
	assert.Equal(t, live, restarted.Load(context.Background()))
}

func TestLiveAndReloadClassificationCanDiffer(t *testing.T) {
	f := newFixture(t)
	v := safeVerdict()
	v.RiskScore = 55 // provider says safe despite a high score
	f.provider.Return(v)

	_, err := f.svc.RunScan(context.Background(), "odd.example")
	require.NoError(t, err)
	assert.Equal(t, domain.AppStats{Scanned: 1, Safe: 1}, f.svc.Stats())
	assert.Equal(t, domain.AppStats{Scanned: 1, Dangerous: 1}, stats.RecomputeFromHistory(f.svc.History()))
}

func TestProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.Return(safeVerdict()).Fail(domain.ErrMalformedResponse)

	first, err := f.svc.RunScan(context.Background(), "good.example")
	require.NoError(t, err)
	before := f.svc.Snapshot()

	_, err = f.svc.RunScan(context.Background(), "bad.example")
	require.ErrorIs(t, err, ErrAnalysisFailed)
	assert.False(t, errors.Is(err, domain.ErrMalformedResponse), "cause must not leak")
	assert.Equal(t, FailureMessage, err.Error())

	rm := f.svc.Snapshot()
	assert.False(t, rm.IsAnalyzing)
	require.NotNil(t, rm.Error)
	assert.Equal(t, FailureMessage, *rm.Error)
	require.NotNil(t, rm.Result, "previous result stays visible")
	assert.Equal(t, first, *rm.Result)
	assert.Equal(t, before.History, rm.History)
	assert.Equal(t, before.Stats, rm.Stats)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ScansTotal.WithLabelValues(metrics.OutcomeFailure)))
}

func TestNextScanClearsError(t *testing.T) {
	f := newFixture(t)
	f.provider.Fail(errors.New("timeout")).Return(safeVerdict())

	_, err := f.svc.RunScan(context.Background(), "a.example")
	require.Error(t, err)
	require.NotNil(t, f.svc.Snapshot().Error)

	_, err = f.svc.RunScan(context.Background(), "a.example")
	require.NoError(t, err)
	assert.Nil(t, f.svc.Snapshot().Error)
}

func TestConcurrentSubmissionIsDropped(t *testing.T) {
	f := newFixture(t)
	f.provider.Gate = make(chan struct{})
	f.provider.Return(safeVerdict())

	job, err := f.svc.Begin("first.example")
	require.NoError(t, err)
	assert.Equal(t, "https://first.example", job.Target())

	done := make(chan error, 1)
	go func() {
		_, err := job.Run(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return len(f.provider.Calls()) == 1 }, time.Second, time.Millisecond)
	assert.True(t, f.svc.Snapshot().IsAnalyzing)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.InFlight))

	_, err = f.svc.RunScan(context.Background(), "second.example")
	assert.ErrorIs(t, err, ErrScanInProgress)
	_, err = f.svc.Begin("third.example")
	assert.ErrorIs(t, err, ErrScanInProgress)

	close(f.provider.Gate)
	require.NoError(t, <-done)

	rm := f.svc.Snapshot()
	assert.False(t, rm.IsAnalyzing)
	assert.Equal(t, 1, rm.Stats.Scanned)
	assert.Equal(t, []string{"https://first.example"}, f.provider.Calls())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.InFlight))
}

func TestJobRunsOnce(t *testing.T) {
	f := newFixture(t)
	f.provider.Return(safeVerdict())

	job, err := f.svc.Begin("a.example")
	require.NoError(t, err)
	_, err = job.Run(context.Background())
	require.NoError(t, err)
	_, err = job.Run(context.Background())
	assert.Error(t, err)
	job.Abandon()
	assert.Len(t, f.provider.Calls(), 1)
}

func TestAbandonReleasesSlot(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.Begin("a.example")
	require.NoError(t, err)
	assert.True(t, f.svc.Snapshot().IsAnalyzing)

	job.Abandon()
	assert.False(t, f.svc.Snapshot().IsAnalyzing)
	_, err = job.Run(context.Background())
	assert.Error(t, err)
	assert.Empty(t, f.provider.Calls())

	_, err = f.svc.Begin("b.example")
	assert.NoError(t, err)
}

func TestHistoryCapAndStatsDivergence(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 12; i++ {
		f.provider.Return(safeVerdict())
	}
	for i := 0; i < 12; i++ {
		_, err := f.svc.RunScan(context.Background(), "example.com")
		require.NoError(t, err)
	}
	rm := f.svc.Snapshot()
	assert.Len(t, rm.History, domain.HistoryLimit)
	assert.Equal(t, 12, rm.Stats.Scanned, "live counters outlive the history cap")
	assert.Equal(t, rm.Stats.Scanned, rm.Stats.Safe+rm.Stats.Dangerous)
	assert.Equal(t, 10.0, testutil.ToFloat64(f.metrics.HistoryItems))
}

func TestLifetimeStatsSurviveReload(t *testing.T) {
	slots := memory.New()
	provider := fakeprovider.NewScripted()
	newSvc := func() *Service {
		hist := history.New(slots.Slot(ports.HistorySlot), history.WithLogger(quiet))
		return New(provider, hist, WithLogger(quiet), WithLifetimeStats(stats.NewLifetime(slots.Slot(ports.StatsSlot))))
	}

	svc := newSvc()
	svc.Load(context.Background())
	for i := 0; i < 12; i++ {
		provider.Return(dangerousVerdict())
		_, err := svc.RunScan(context.Background(), "x.example")
		require.NoError(t, err)
	}

	reloaded := newSvc().Load(context.Background())
	assert.Equal(t, domain.AppStats{Scanned: 12, Threats: 24, Dangerous: 12}, reloaded)
}

func TestPersistenceFailureDoesNotFailScan(t *testing.T) {
	provider := fakeprovider.NewScripted().Return(safeVerdict())
	m := metrics.New()
	svc := New(provider, history.New(brokenSlot{}, history.WithLogger(quiet)), WithLogger(quiet), WithMetrics(m))
	assert.Equal(t, domain.AppStats{}, svc.Load(context.Background()))

	a, err := svc.RunScan(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", a.URL)
	assert.Len(t, svc.History(), 1)
	assert.Equal(t, 1, svc.Stats().Scanned)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures))
}

func TestNilThreatListBecomesEmpty(t *testing.T) {
	f := newFixture(t)
	v := safeVerdict()
	v.DetectedThreatTypes = nil
	f.provider.Return(v)

	a, err := f.svc.RunScan(context.Background(), "example.com")
	require.NoError(t, err)
	assert.NotNil(t, a.DetectedThreatTypes)
}

type brokenSlot struct{}

func (brokenSlot) Read(context.Context) ([]byte, bool, error) { return nil, false, errors.New("io error") }
func (brokenSlot) Write(context.Context, []byte) error { return errors.New("io error") }

// slowSlot wraps a slot and holds every Write until release is closed.
type slowSlot struct {
	ports.Slot
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowSlot) Write(ctx context.Context, data []byte) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.Slot.Write(ctx, data)
}

func TestSnapshotDoesNotWaitForPersistence(t *testing.T) {
	slot := &slowSlot{
		Slot:    memory.New().Slot(ports.HistorySlot),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	provider := fakeprovider.NewScripted().Return(dangerousVerdict())
	svc := New(provider, history.New(slot, history.WithLogger(quiet)), WithLogger(quiet))
	svc.Load(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := svc.RunScan(context.Background(), "slow.example")
		done <- err
	}()
	<-slot.started

	snap := make(chan domain.ReadModel, 1)
	go func() { snap <- svc.Snapshot() }()
	select {
	case rm := <-snap:
		assert.True(t, rm.IsAnalyzing)
		require.NotNil(t, rm.Result)
		assert.Len(t, rm.History, 1)
		assert.Equal(t, domain.AppStats{Scanned: 1, Threats: 2, Dangerous: 1}, rm.Stats)
	case <-time.After(time.Second):
		t.Fatal("Snapshot blocked behind the history write")
	}

	close(slot.release)
	require.NoError(t, <-done)
	assert.False(t, svc.Snapshot().IsAnalyzing)
}

func TestCorruptLifetimeStatsFallBackToHistory(t *testing.T) {
	slots := memory.New()
	hist := history.New(slots.Slot(ports.HistorySlot), history.WithLogger(quiet))
	_, err := hist.Record(context.Background(), dangerousVerdict())
	require.NoError(t, err)
	slots.Put(ports.StatsSlot, []byte(`{"scanned":5,"safe":1,"dangerous":1}`))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	svc := New(fakeprovider.NewScripted(),
		history.New(slots.Slot(ports.HistorySlot), history.WithLogger(quiet)),
		WithLogger(logger),
		WithLifetimeStats(stats.NewLifetime(slots.Slot(ports.StatsSlot))),
	)

	st := svc.Load(context.Background())
	assert.Equal(t, domain.AppStats{Scanned: 1, Threats: 2, Dangerous: 1}, st)
	assert.Contains(t, logs.String(), "lifetime stats unavailable")
	assert.Contains(t, logs.String(), stats.ErrInvalidStats.Error())
}
