package realtime

import "sync"

// Closer is anything holding a live resource.
type Closer interface {
	Close()
}

// Slot holds at most one live subscription. Every replacement disposes the
// previous holder before the next one is opened and bumps a generation
// counter that consumers use to drop late events from disposed holders.
type Slot struct {
	mu  sync.Mutex
	cur Closer
	gen uint64
}

// Replace disposes the current holder, then calls open with the new
// generation. open must not block on the network. A nil Closer from open
// leaves the slot empty.
func (s *Slot) Replace(open func(gen uint64) Closer) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.cur.Close()
		s.cur = nil
	}
	s.gen++
	s.cur = open(s.gen)
	return s.gen
}

// Dispose closes the current holder and invalidates its generation.
func (s *Slot) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.cur.Close()
		s.cur = nil
	}
	s.gen++
}

// Current reports whether gen is still the live generation.
func (s *Slot) Current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil && s.gen == gen
}

// Active reports whether a holder is live.
func (s *Slot) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}
