package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sentinel/internal/domain"
	"sentinel/internal/ports"
)

// RecomputeFromHistory rebuilds counters from stored items, classifying each
// by score: below domain.SafeRiskThreshold is safe, anything else dangerous.
func RecomputeFromHistory(items []domain.ScanHistoryItem) domain.AppStats {
	var s domain.AppStats
	for _, it := range items {
		s.Scanned++
		s.Threats += it.ThreatCount
		if it.RiskScore < domain.SafeRiskThreshold {
			s.Safe++
		} else {
			s.Dangerous++
		}
	}
	return s
}

// ApplyIncrement folds one live analysis into prev. Classification follows
// the provider's IsSafe verdict, not the score threshold.
func ApplyIncrement(prev domain.AppStats, a domain.ThreatAnalysis) domain.AppStats {
	next := prev
	next.Scanned++
	next.Threats += len(a.DetectedThreatTypes)
	if a.IsSafe {
		next.Safe++
	} else {
		next.Dangerous++
	}
	return next
}

// ErrInvalidStats reports a lifetime slot whose content cannot be trusted.
var ErrInvalidStats = errors.New("invalid lifetime stats")

// Lifetime persists counters in their own slot so they survive the history cap.
type Lifetime struct {
	slot ports.Slot
}

func NewLifetime(slot ports.Slot) *Lifetime { return &Lifetime{slot: slot} }

// Load returns the persisted counters. ok is false when the slot is empty;
// content that is not a consistent AppStats is reported as ErrInvalidStats.
func (l *Lifetime) Load(ctx context.Context) (domain.AppStats, bool, error) {
	var s domain.AppStats
	data, found, err := l.slot.Read(ctx)
	if err != nil {
		return s, false, fmt.Errorf("read stats slot: %w", err)
	}
	if !found {
		return s, false, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.AppStats{}, false, fmt.Errorf("%w: %v", ErrInvalidStats, err)
	}
	if !consistent(s) {
		return domain.AppStats{}, false, fmt.Errorf("%w: safe %d + dangerous %d != scanned %d",
			ErrInvalidStats, s.Safe, s.Dangerous, s.Scanned)
	}
	return s, true, nil
}

func (l *Lifetime) Save(ctx context.Context, s domain.AppStats) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := l.slot.Write(ctx, data); err != nil {
		return fmt.Errorf("write stats slot: %w", err)
	}
	return nil
}

func consistent(s domain.AppStats) bool {
	return s.Scanned >= 0 && s.Threats >= 0 && s.Safe >= 0 && s.Dangerous >= 0 &&
		s.Safe+s.Dangerous == s.Scanned
}
