package stats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/adapters/memory"
	"sentinel/internal/domain"
)

func TestRecomputeFromHistory(t *testing.T) {
	items := []domain.ScanHistoryItem{
		{RiskScore: 0, ThreatCount: 0},
		{RiskScore: 39, ThreatCount: 1},
		{RiskScore: 40, ThreatCount: 2},
		{RiskScore: 100, ThreatCount: 3},
	}
	got := RecomputeFromHistory(items)
	assert.Equal(t, domain.AppStats{Scanned: 4, Threats: 6, Safe: 2, Dangerous: 2}, got)
	assert.Equal(t, got.Scanned, got.Safe+got.Dangerous)
	assert.Equal(t, len(items), got.Scanned)

	assert.Equal(t, domain.AppStats{}, RecomputeFromHistory(nil))
}

func TestApplyIncrementUsesProviderVerdict(t *testing.T) {
	prev := domain.AppStats{Scanned: 3, Threats: 1, Safe: 2, Dangerous: 1}

	// isSafe wins over the score threshold in live mode.
	next := ApplyIncrement(prev, domain.ThreatAnalysis{IsSafe: true, RiskScore: 70, DetectedThreatTypes: []string{"Adware"}})
	assert.Equal(t, domain.AppStats{Scanned: 4, Threats: 2, Safe: 3, Dangerous: 1}, next)

	next = ApplyIncrement(prev, domain.ThreatAnalysis{IsSafe: false, RiskScore: 10})
	assert.Equal(t, domain.AppStats{Scanned: 4, Threats: 1, Safe: 2, Dangerous: 2}, next)
	assert.Equal(t, next.Scanned, next.Safe+next.Dangerous)

	assert.Equal(t, domain.AppStats{Scanned: 3, Threats: 1, Safe: 2, Dangerous: 1}, prev)
}

func TestModesAgreeOnDangerousScan(t *testing.T) {
	a := domain.ThreatAnalysis{IsSafe: false, RiskScore: 85, DetectedThreatTypes: []string{"Phishing", "Trojan"}}
	live := ApplyIncrement(domain.AppStats{}, a)
	reload := RecomputeFromHistory([]domain.ScanHistoryItem{{RiskScore: 85, ThreatCount: 2}})
	assert.Equal(t, domain.AppStats{Scanned: 1, Threats: 2, Dangerous: 1}, live)
	assert.Equal(t, live, reload)
}

func TestLifetimeRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	lt := NewLifetime(store.Slot("sentinel_stats"))

	_, ok, err := lt.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	want := domain.AppStats{Scanned: 25, Threats: 7, Safe: 20, Dangerous: 5}
	require.NoError(t, lt.Save(ctx, want))

	got, ok, err := lt.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLifetimeReportsBadContent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	lt := NewLifetime(store.Slot("sentinel_stats"))

	store.Put("sentinel_stats", []byte("{not json"))
	_, ok, err := lt.Load(ctx)
	assert.ErrorIs(t, err, ErrInvalidStats)
	assert.False(t, ok)

	store.Put("sentinel_stats", []byte(`{"scanned":3,"threats":0,"safe":1,"dangerous":1}`))
	_, ok, err = lt.Load(ctx)
	assert.ErrorIs(t, err, ErrInvalidStats)
	assert.Contains(t, err.Error(), "scanned 3")
	assert.False(t, ok)
}
