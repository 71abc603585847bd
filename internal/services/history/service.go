package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentinel/internal/domain"
	"sentinel/internal/ports"
)

var ErrNotFound = errors.New("history item not found")

// record is the persisted shape of a history item; timestamps are Unix
// milliseconds.
type record struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	RiskScore   int    `json:"riskScore"`
	ThreatLevel string `json:"threatLevel"`
	ThreatCount int    `json:"threatCount"`
	Timestamp   int64  `json:"timestamp"`
}

// Store is the bounded, newest-first scan log backed by one slot.
type Store struct {
	slot  ports.Slot
	log   *slog.Logger
	now   func() time.Time
	newID func() string

	mu    sync.RWMutex
	items []domain.ScanHistoryItem
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }
func WithIDGenerator(f func() string) Option { return func(s *Store) { s.newID = f } }

func New(slot ports.Slot, opts ...Option) *Store {
	s := &Store{
		slot:  slot,
		log:   slog.Default(),
		now:   time.Now,
		newID: newID,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// newID returns a time-ordered UUID, falling back to a random one if the
// v7 generator fails.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Load reads the persisted log into memory and returns it. A missing slot, a
// read failure or unparsable content all yield an empty history.
func (s *Store) Load(ctx context.Context) []domain.ScanHistoryItem {
	items := s.read(ctx)
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return clone(items)
}

func (s *Store) read(ctx context.Context) []domain.ScanHistoryItem {
	data, found, err := s.slot.Read(ctx)
	if err != nil {
		s.log.Warn("history read failed; starting empty", "error", err)
		return nil
	}
	if !found {
		return nil
	}
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		s.log.Warn("persisted history unparsable; starting empty", "error", err)
		return nil
	}
	if len(recs) > domain.HistoryLimit {
		recs = recs[:domain.HistoryLimit]
	}
	items := make([]domain.ScanHistoryItem, 0, len(recs))
	for _, r := range recs {
		items = append(items, domain.ScanHistoryItem{
			ID:          r.ID,
			URL:         r.URL,
			RiskScore:   r.RiskScore,
			ThreatLevel: r.ThreatLevel,
			ThreatCount: r.ThreatCount,
			Timestamp:   time.UnixMilli(r.Timestamp),
		})
	}
	return items
}

// Record is Add followed by Save. The in-memory log is updated even when the
// write fails; the returned error only reports the persistence failure.
func (s *Store) Record(ctx context.Context, a domain.ThreatAnalysis) (domain.ScanHistoryItem, error) {
	item, items := s.Add(a)
	return item, s.Save(ctx, items)
}

// Add prepends a summary of a to the in-memory log and trims it to
// domain.HistoryLimit. It returns the new item and a copy of the log for Save.
func (s *Store) Add(a domain.ThreatAnalysis) (domain.ScanHistoryItem, []domain.ScanHistoryItem) {
	item := domain.ScanHistoryItem{
		ID:          s.newID(),
		URL:         a.URL,
		RiskScore:   a.RiskScore,
		ThreatLevel: string(a.ThreatLevel),
		ThreatCount: len(a.DetectedThreatTypes),
		Timestamp:   s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]domain.ScanHistoryItem, 0, domain.HistoryLimit)
	next = append(next, item)
	next = append(next, s.items...)
	if len(next) > domain.HistoryLimit {
		next = next[:domain.HistoryLimit]
	}
	s.items = next
	return item, clone(next)
}

// Save overwrites the slot with items.
func (s *Store) Save(ctx context.Context, items []domain.ScanHistoryItem) error {
	recs := make([]record, 0, len(items))
	for _, it := range items {
		recs = append(recs, record{
			ID:          it.ID,
			URL:         it.URL,
			RiskScore:   it.RiskScore,
			ThreatLevel: it.ThreatLevel,
			ThreatCount: it.ThreatCount,
			Timestamp:   it.Timestamp.UnixMilli(),
		})
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.slot.Write(ctx, data); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Items returns a copy of the current log, newest first.
func (s *Store) Items() []domain.ScanHistoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.items)
}

func (s *Store) Get(id string) (domain.ScanHistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.ID == id {
			return it, nil
		}
	}
	return domain.ScanHistoryItem{}, ErrNotFound
}

func clone(items []domain.ScanHistoryItem) []domain.ScanHistoryItem {
	out := make([]domain.ScanHistoryItem, len(items))
	copy(out, items)
	return out
}
