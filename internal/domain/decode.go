package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedResponse is returned when a provider payload does not match the
// ThreatAnalysis shape.
var ErrMalformedResponse = errors.New("malformed provider response")

type rawCheck struct {
	Status *bool   `json:"status"`
	Label  *string `json:"label"`
}

type rawAnalysis struct {
	URL                 *string              `json:"url"`
	IsSafe              *bool                `json:"isSafe"`
	RiskScore           *float64             `json:"riskScore"`
	ThreatLevel         *string              `json:"threatLevel"`
	Summary             *string              `json:"summary"`
	Checks              map[string]*rawCheck `json:"checks"`
	DetectedThreatTypes []string             `json:"detectedThreatTypes"`
	WarningMessage      *string              `json:"warningMessage"`
}

var checkKeys = []string{"ssl", "blacklist", "phishing", "domainAge"}

// DecodeThreatAnalysis parses and validates a provider payload. Every field
// of the response schema must be present; url is optional since the caller
// overwrites it.
func DecodeThreatAnalysis(data []byte) (ThreatAnalysis, error) {
	var out ThreatAnalysis
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return out, fmt.Errorf("%w: empty payload", ErrMalformedResponse)
	}
	var raw rawAnalysis
	if err := json.Unmarshal(data, &raw); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	switch {
	case raw.IsSafe == nil:
		return out, missing("isSafe")
	case raw.RiskScore == nil:
		return out, missing("riskScore")
	case raw.ThreatLevel == nil:
		return out, missing("threatLevel")
	case raw.Summary == nil:
		return out, missing("summary")
	case raw.Checks == nil:
		return out, missing("checks")
	case raw.DetectedThreatTypes == nil:
		return out, missing("detectedThreatTypes")
	case raw.WarningMessage == nil:
		return out, missing("warningMessage")
	}

	score := *raw.RiskScore
	if math.IsNaN(score) || score < 0 || score > 100 {
		return out, fmt.Errorf("%w: riskScore %v out of range", ErrMalformedResponse, score)
	}
	level := ThreatLevel(*raw.ThreatLevel)
	if !level.Valid() {
		return out, fmt.Errorf("%w: unknown threatLevel %q", ErrMalformedResponse, *raw.ThreatLevel)
	}

	checks := make(map[string]Check, len(checkKeys))
	for _, k := range checkKeys {
		c, ok := raw.Checks[k]
		if !ok || c == nil {
			return out, missing("checks." + k)
		}
		if c.Status == nil || c.Label == nil {
			return out, missing("checks." + k + ".status/label")
		}
		checks[k] = Check{Status: *c.Status, Label: *c.Label}
	}

	if raw.URL != nil {
		out.URL = *raw.URL
	}
	out.IsSafe = *raw.IsSafe
	out.RiskScore = int(math.Round(score))
	out.ThreatLevel = level
	out.Summary = *raw.Summary
	out.Checks = Checks{
		SSL:       checks["ssl"],
		Blacklist: checks["blacklist"],
		Phishing:  checks["phishing"],
		DomainAge: checks["domainAge"],
	}
	out.DetectedThreatTypes = raw.DetectedThreatTypes
	out.WarningMessage = *raw.WarningMessage
	return out, nil
}

func missing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrMalformedResponse, field)
}
