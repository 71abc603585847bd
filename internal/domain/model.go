package domain

import "time"

// Core domain models shared by the orchestrator, the stores and the adapters.
// JSON tags follow the provider's response schema and the persisted history
// format, so these types double as wire types where that is convenient.

type ThreatLevel string

const (
	ThreatLevelSafe       ThreatLevel = "Safe"
	ThreatLevelSuspicious ThreatLevel = "Suspicious"
	ThreatLevelDangerous  ThreatLevel = "Dangerous"
	ThreatLevelCritical   ThreatLevel = "Critical"
)

// Valid reports whether l is one of the four known levels.
func (l ThreatLevel) Valid() bool {
	switch l {
	case ThreatLevelSafe, ThreatLevelSuspicious, ThreatLevelDangerous, ThreatLevelCritical:
		return true
	}
	return false
}

type Check struct {
	Status bool   `json:"status"`
	Label  string `json:"label"`
}

// Checks always carries exactly these four sub-verdicts.
type Checks struct {
	SSL       Check `json:"ssl"`
	Blacklist Check `json:"blacklist"`
	Phishing  Check `json:"phishing"`
	DomainAge Check `json:"domainAge"`
}

type ThreatAnalysis struct {
	URL                 string      `json:"url"`
	IsSafe              bool        `json:"isSafe"`
	RiskScore           int         `json:"riskScore"`
	ThreatLevel         ThreatLevel `json:"threatLevel"`
	Summary             string      `json:"summary"`
	Checks              Checks      `json:"checks"`
	DetectedThreatTypes []string    `json:"detectedThreatTypes"`
	WarningMessage      string      `json:"warningMessage"`
}

// ScanHistoryItem is the frozen summary of one completed scan. ThreatLevel is
// kept as the raw string the provider returned.
type ScanHistoryItem struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	RiskScore   int       `json:"riskScore"`
	ThreatLevel string    `json:"threatLevel"`
	ThreatCount int       `json:"threatCount"`
	Timestamp   time.Time `json:"timestamp"`
}

type AppStats struct {
	Scanned   int `json:"scanned"`
	Threats   int `json:"threats"`
	Safe      int `json:"safe"`
	Dangerous int `json:"dangerous"`
}

// SafeRiskThreshold splits safe from dangerous when classifying by score.
const SafeRiskThreshold = 40

// HistoryLimit is the hard cap on retained history items.
const HistoryLimit = 10

// ReadModel is everything the presentation side may observe.
type ReadModel struct {
	Result      *ThreatAnalysis   `json:"result"`
	Error       *string           `json:"error"`
	IsAnalyzing bool              `json:"isAnalyzing"`
	History     []ScanHistoryItem `json:"history"`
	Stats       AppStats          `json:"stats"`
}
