package ports

import "context"

// Slot is a single named document that is always overwritten whole.
// Read reports found=false, with no error, when nothing was ever written.
type Slot interface {
	Read(ctx context.Context) (data []byte, found bool, err error)
	Write(ctx context.Context, data []byte) error
}

// SlotStore hands out slots by name.
type SlotStore interface {
	Slot(name string) Slot
}

const (
	HistorySlot = "sentinel_history"
	StatsSlot   = "sentinel_stats"
)
