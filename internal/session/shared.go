package session

import "sync/atomic"

// Snapshot is the by-value view of Shared handed to the router each cycle.
type Snapshot struct {
	LastTenderPrice float64
	Tick            int
	Cutoff          int
}

// TicksToCutoff is how many ticks remain before the window closes.
func (s Snapshot) TicksToCutoff() int { return s.Cutoff - s.Tick }

// Shared is written by the main loop and read by the router goroutine. Each
// write publishes a whole new snapshot, so readers never see a torn mix.
// Writes must come from one goroutine.
type Shared struct {
	cur atomic.Pointer[Snapshot]
}

// NewShared returns an empty shared state.
func NewShared() *Shared {
	s := &Shared{}
	s.cur.Store(&Snapshot{})
	return s
}

// Snapshot copies the current state.
func (s *Shared) Snapshot() Snapshot { return *s.cur.Load() }

// SetTick publishes the latest polled tick.
func (s *Shared) SetTick(tick int) {
	s.update(func(snap *Snapshot) { snap.Tick = tick })
}

// SetCutoff publishes the trade-until tick.
func (s *Shared) SetCutoff(cutoff int) {
	s.update(func(snap *Snapshot) { snap.Cutoff = cutoff })
}

// SetLastTenderPrice publishes the price of the most recent tender.
func (s *Shared) SetLastTenderPrice(price float64) {
	s.update(func(snap *Snapshot) { snap.LastTenderPrice = price })
}

func (s *Shared) update(fn func(*Snapshot)) {
	next := *s.cur.Load()
	fn(&next)
	s.cur.Store(&next)
}
