package room

import (
	"context"
	"sync"
	"time"

	"sketchsync/pkg/logger"
	"sketchsync/store"
)

// DefaultSaveDelay is the quiescence window: a burst of mutations becomes one
// write, committed this long after the last mutation.
const DefaultSaveDelay = 500 * time.Millisecond

// Saver coalesces drawing writes. At most one timer is pending per id;
// scheduling again replaces it, so only the last mutation of a burst
// triggers persistence. Writes for one id are serialized against each other
// (including Flush); different ids are independent.
type Saver struct {
	store    store.Store
	delay    time.Duration
	emptyLen int

	mu     sync.Mutex
	timers map[string]*time.Timer
	// gens invalidates in-flight fires: a timer that was already running
	// when its entry was replaced or cancelled carries a stale generation
	// and must not write or touch the map.
	gens   map[string]uint64
	writes map[string]*sync.Mutex
}

// NewSaver builds a Saver. emptyLen is the engine's empty-state encoding
// size: anything at or below it is content-free and is never written, which
// keeps a doc that raced an incomplete load from erasing stored content.
func NewSaver(st store.Store, emptyLen int, delay time.Duration) *Saver {
	return &Saver{
		store:    st,
		delay:    delay,
		emptyLen: emptyLen,
		timers:   make(map[string]*time.Timer),
		gens:     make(map[string]uint64),
		writes:   make(map[string]*sync.Mutex),
	}
}

// Schedule replaces any pending write for id with a fresh timer. produce is
// called when the timer fires, so the encoding reflects every mutation up to
// the end of the quiescence window.
func (s *Saver) Schedule(id string, produce func() []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.gens[id]++
	gen := s.gens[id]
	s.timers[id] = time.AfterFunc(s.delay, func() {
		s.fire(id, gen, produce)
	})
}

// Cancel drops any pending write for id without I/O. Bumping the generation
// also neutralizes a timer that already fired but has not yet written.
func (s *Saver) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.gens[id]++
}

// Flush cancels any pending write and saves the current state synchronously,
// unless the state is empty-sized.
func (s *Saver) Flush(ctx context.Context, id string, produce func() []byte) error {
	s.mu.Lock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.gens[id]++
	wl := s.writeLock(id)
	s.mu.Unlock()

	state := produce()
	if len(state) <= s.emptyLen {
		return nil
	}

	wl.Lock()
	defer wl.Unlock()
	return s.store.Save(ctx, id, state)
}

func (s *Saver) fire(id string, gen uint64, produce func() []byte) {
	s.mu.Lock()
	if s.gens[id] != gen {
		// Replaced, flushed, or cancelled after this timer started; the
		// current owner of the id is responsible for any write.
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	wl := s.writeLock(id)
	s.mu.Unlock()

	state := produce()
	if len(state) <= s.emptyLen {
		return
	}

	wl.Lock()
	defer wl.Unlock()
	if err := s.store.Save(context.Background(), id, state); err != nil {
		// Not retried here; the next mutation reschedules a write.
		logger.Sugar.Errorf("Failed to save drawing %s: %v", id, err)
	}
}

// writeLock must be called with s.mu held.
func (s *Saver) writeLock(id string) *sync.Mutex {
	wl, ok := s.writes[id]
	if !ok {
		wl = &sync.Mutex{}
		s.writes[id] = wl
	}
	return wl
}
