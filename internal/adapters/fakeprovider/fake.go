package fakeprovider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"sentinel/internal/domain"
)

// baitWords mark a host as dangerous in the heuristic provider.
var baitWords = []string{"phish", "login-verify", "account-update", "malware", "free-gift", "wallet-connect"}

// Heuristic is a credential-free provider for local runs. Verdicts depend
// only on the URL text, so repeated scans of one URL agree.
type Heuristic struct{}

func NewHeuristic() *Heuristic { return &Heuristic{} }

func (Heuristic) Analyze(ctx context.Context, rawurl string) (domain.ThreatAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return domain.ThreatAnalysis{}, err
	}
	u, err := url.Parse(rawurl)
	if err != nil || u.Hostname() == "" {
		return domain.ThreatAnalysis{}, fmt.Errorf("unanalyzable url %q", rawurl)
	}
	host := strings.ToLower(u.Hostname())
	secure := strings.EqualFold(u.Scheme, "https")

	var hits []string
	for _, w := range baitWords {
		if strings.Contains(host, w) {
			hits = append(hits, w)
		}
	}

	if len(hits) == 0 {
		a := domain.ThreatAnalysis{
			URL:                 rawurl,
			IsSafe:              true,
			RiskScore:           5,
			ThreatLevel:         domain.ThreatLevelSafe,
			Summary:             fmt.Sprintf("No indicators of compromise found for %s.", host),
			Checks:              allClear(secure),
			DetectedThreatTypes: []string{},
		}
		if !secure {
			a.RiskScore = 25
			a.Summary += " Connection is not encrypted."
		}
		return a, nil
	}

	threats := []string{"Phishing"}
	if len(hits) > 1 {
		threats = append(threats, "Trojan")
	}
	score := 60 + 15*len(hits)
	if score > 100 {
		score = 100
	}
	level := domain.ThreatLevelDangerous
	if score >= 90 {
		level = domain.ThreatLevelCritical
	}
	return domain.ThreatAnalysis{
		URL:         rawurl,
		IsSafe:      false,
		RiskScore:   score,
		ThreatLevel: level,
		Summary:     fmt.Sprintf("Host %s matches known lure patterns: %s.", host, strings.Join(hits, ", ")),
		Checks: domain.Checks{
			SSL:       domain.Check{Status: secure, Label: sslLabel(secure)},
			Blacklist: domain.Check{Status: false, Label: "Matches lure pattern list"},
			Phishing:  domain.Check{Status: false, Label: "Credential harvesting indicators"},
			DomainAge: domain.Check{Status: false, Label: "Reputation unknown"},
		},
		DetectedThreatTypes: threats,
		WarningMessage:      "Do not enter credentials or download files from this site.",
	}, nil
}

func allClear(secure bool) domain.Checks {
	return domain.Checks{
		SSL:       domain.Check{Status: secure, Label: sslLabel(secure)},
		Blacklist: domain.Check{Status: true, Label: "Not listed"},
		Phishing:  domain.Check{Status: true, Label: "No impersonation detected"},
		DomainAge: domain.Check{Status: true, Label: "Established domain"},
	}
}

func sslLabel(secure bool) string {
	if secure {
		return "HTTPS in use"
	}
	return "No TLS"
}

// Scripted replays queued responses in order, for tests. Calls beyond the
// script fail.
type Scripted struct {
	mu    sync.Mutex
	steps []step
	calls []string
	// Gate, when set, is waited on before each call returns.
	Gate chan struct{}
}

type step struct {
	analysis domain.ThreatAnalysis
	err      error
}

func NewScripted() *Scripted { return &Scripted{} }

func (s *Scripted) Return(a domain.ThreatAnalysis) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step{analysis: a})
	return s
}

func (s *Scripted) Fail(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step{err: err})
	return s
}

// Calls lists the URLs the provider was asked about.
func (s *Scripted) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Scripted) Analyze(ctx context.Context, rawurl string) (domain.ThreatAnalysis, error) {
	s.mu.Lock()
	s.calls = append(s.calls, rawurl)
	var next step
	ok := len(s.steps) > 0
	if ok {
		next = s.steps[0]
		s.steps = s.steps[1:]
	}
	gate := s.Gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.ThreatAnalysis{}, ctx.Err()
		}
	}
	if !ok {
		return domain.ThreatAnalysis{}, fmt.Errorf("no scripted response for %s", rawurl)
	}
	return next.analysis, next.err
}
