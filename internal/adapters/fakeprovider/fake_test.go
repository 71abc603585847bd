package fakeprovider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/domain"
)

func TestHeuristicSafeHost(t *testing.T) {
	a, err := NewHeuristic().Analyze(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.True(t, a.IsSafe)
	assert.Equal(t, domain.ThreatLevelSafe, a.ThreatLevel)
	assert.Less(t, a.RiskScore, domain.SafeRiskThreshold)
	assert.Empty(t, a.DetectedThreatTypes)
	assert.True(t, a.Checks.SSL.Status)
}

func TestHeuristicPlainHTTP(t *testing.T) {
	a, err := NewHeuristic().Analyze(context.Background(), "http://example.com")
	require.NoError(t, err)
	assert.True(t, a.IsSafe)
	assert.False(t, a.Checks.SSL.Status)
	assert.Less(t, a.RiskScore, domain.SafeRiskThreshold)
}

func TestHeuristicLureHost(t *testing.T) {
	a, err := NewHeuristic().Analyze(context.Background(), "https://paypal-login-verify.phish.example")
	require.NoError(t, err)
	assert.False(t, a.IsSafe)
	assert.Equal(t, 90, a.RiskScore)
	assert.Equal(t, domain.ThreatLevelCritical, a.ThreatLevel)
	assert.Equal(t, []string{"Phishing", "Trojan"}, a.DetectedThreatTypes)
	assert.NotEmpty(t, a.WarningMessage)
}

func TestHeuristicRejectsHostless(t *testing.T) {
	_, err := NewHeuristic().Analyze(context.Background(), "https://")
	assert.Error(t, err)
}

func TestScripted(t *testing.T) {
	boom := errors.New("boom")
	s := NewScripted().Return(domain.ThreatAnalysis{RiskScore: 1}).Fail(boom)

	a, err := s.Analyze(context.Background(), "https://a")
	require.NoError(t, err)
	assert.Equal(t, 1, a.RiskScore)

	_, err = s.Analyze(context.Background(), "https://b")
	assert.ErrorIs(t, err, boom)

	_, err = s.Analyze(context.Background(), "https://c")
	assert.Error(t, err)
	assert.Equal(t, []string{"https://a", "https://b", "https://c"}, s.Calls())
}
