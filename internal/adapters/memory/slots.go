package memory

import (
	"context"
	"sync"

	"sentinel/internal/ports"
)

// Store keeps named slots in process memory. Contents are lost on exit.
type Store struct {
	mu    sync.Mutex
	slots map[string][]byte
}

func New() *Store { return &Store{slots: map[string][]byte{}} }

func (s *Store) Slot(name string) ports.Slot { return &slot{store: s, name: name} }

// Put seeds a slot with raw content, bypassing any encoding.
func (s *Store) Put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[name] = append([]byte(nil), data...)
}

// Get returns a copy of a slot's raw content.
func (s *Store) Get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.slots[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

type slot struct {
	store *Store
	name  string
}

func (sl *slot) Read(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, ok := sl.store.Get(sl.name)
	return data, ok, nil
}

func (sl *slot) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sl.store.Put(sl.name, data)
	return nil
}
