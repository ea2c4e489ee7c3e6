package room

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"sketchsync/pkg/engine"
	"sketchsync/pkg/logger"
	"sketchsync/store"
)

// Registry owns every drawing resident in this process. One instance lives
// at the composition root; there is no ambient/global state. Each logical id
// maps to at most one Doc, bound to persistence exactly once per residency.
type Registry struct {
	engine engine.Engine
	store  store.Store
	saver  *Saver

	mu   sync.Mutex
	docs map[string]*Doc
}

// Doc is one resident drawing plus the connections attached to it.
type Doc struct {
	ID    string
	state engine.Doc

	bind sync.Once

	// dirty means the in-memory state has mutations the store hasn't seen.
	// A doc that was merely loaded stays clean, so connect-then-disconnect
	// with no edits performs no write at all.
	dirty atomic.Bool

	// evicted blocks any further writes for a doc removed via Evict, so
	// detaching clients cannot save a deleted drawing back.
	evicted atomic.Bool

	mu    sync.Mutex
	conns map[*Client]bool
}

func NewRegistry(eng engine.Engine, st store.Store, saver *Saver) *Registry {
	return &Registry{
		engine: eng,
		store:  st,
		saver:  saver,
		docs:   make(map[string]*Doc),
	}
}

// Engine exposes the injected merge engine so callers can assert the whole
// process shares a single linked instance.
func (r *Registry) Engine() engine.Engine { return r.engine }

// Resolve returns the resident doc for id, creating and binding it on first
// use. Concurrent calls for an unresident id share one instance and one
// load: the map insert is mutex-guarded and the bind runs under sync.Once,
// so late callers block until the first caller's bind completes.
func (r *Registry) Resolve(ctx context.Context, id string) *Doc {
	r.mu.Lock()
	d, ok := r.docs[id]
	if !ok {
		d = &Doc{
			ID:    id,
			state: r.engine.NewDoc(),
			conns: make(map[*Client]bool),
		}
		r.docs[id] = d
	}
	r.mu.Unlock()

	d.bind.Do(func() {
		r.bindDoc(ctx, d)
	})
	return d
}

// bindDoc loads stored state into a fresh doc and wires the mutation hook.
// A storage outage here does not refuse the connection: the doc becomes
// resident empty, and the empty-state threshold keeps that emptiness from
// being written back over real content.
func (r *Registry) bindDoc(ctx context.Context, d *Doc) {
	state, err := r.store.Load(ctx, d.ID)
	switch {
	case err == nil:
		if err := d.state.ApplyUpdate(state); err != nil {
			logger.Sugar.Errorf("Failed to apply stored state for drawing %s: %v", d.ID, err)
		}
	case errors.Is(err, store.ErrNotFound):
		// New drawing, nothing to load.
	default:
		logger.Sugar.Errorf("Failed to load drawing %s, starting empty: %v", d.ID, err)
	}

	// Registered after the stored state is applied, so loading alone never
	// dirties the doc or schedules a write.
	d.state.OnUpdate(func([]byte) {
		if d.evicted.Load() {
			return
		}
		d.dirty.Store(true)
		r.saver.Schedule(d.ID, d.state.EncodeState)
	})
}

// Flush cancels any pending coalesced write for id and persists the current
// state immediately. No-op for ids that are not resident.
func (r *Registry) Flush(ctx context.Context, id string) error {
	r.mu.Lock()
	d, ok := r.docs[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.flushDoc(ctx, d)
}

// flushDoc writes the doc's state now, unless nothing changed since the last
// successful write.
func (r *Registry) flushDoc(ctx context.Context, d *Doc) error {
	if d.evicted.Load() || !d.dirty.Load() {
		return nil
	}
	if err := r.saver.Flush(ctx, d.ID, d.state.EncodeState); err != nil {
		return err
	}
	d.dirty.Store(false)
	return nil
}

// ResolveAndAttach resolves id and registers the connection in one step
// under the registry lock. Resolving and attaching separately would race
// Detach: the last connection leaving can evict the doc after a lookup but
// before the attach, splitting the id across two live instances. Holding
// r.mu across lookup and attach means Detach's eviction check (also under
// r.mu) either sees this connection or has already completed, so the doc
// returned here is the one authoritative instance.
func (r *Registry) ResolveAndAttach(ctx context.Context, id string, c *Client) *Doc {
	r.mu.Lock()
	d, ok := r.docs[id]
	if !ok {
		d = &Doc{
			ID:    id,
			state: r.engine.NewDoc(),
			conns: make(map[*Client]bool),
		}
		r.docs[id] = d
	}
	d.mu.Lock()
	d.conns[c] = true
	d.mu.Unlock()
	r.mu.Unlock()

	d.bind.Do(func() {
		r.bindDoc(ctx, d)
	})
	return d
}

// Attach registers a connection with an already-resolved doc. Callers that
// have not yet resolved must use ResolveAndAttach instead; a separate
// Resolve-then-Attach can race eviction.
func (r *Registry) Attach(d *Doc, c *Client) {
	d.mu.Lock()
	d.conns[c] = true
	d.mu.Unlock()
}

// Detach removes a connection; when the last one goes the doc is flushed and
// evicted so memory is not silently lost on shutdown of a room.
func (r *Registry) Detach(ctx context.Context, d *Doc, c *Client) {
	d.mu.Lock()
	delete(d.conns, c)
	remaining := len(d.conns)
	d.mu.Unlock()

	if remaining > 0 {
		return
	}

	// Flush before dropping residency so a reconnect racing the eviction
	// still resolves to either this doc or freshly stored state.
	if err := r.flushDoc(ctx, d); err != nil {
		logger.Sugar.Errorf("Failed to save drawing %s on close: %v", d.ID, err)
	}

	r.mu.Lock()
	d.mu.Lock()
	if len(d.conns) == 0 && r.docs[d.ID] == d {
		delete(r.docs, d.ID)
		logger.Sugar.Infof("Closed and cleaned up empty room: %s", d.ID)
	}
	d.mu.Unlock()
	r.mu.Unlock()
}

// Evict forcefully removes a drawing from memory without saving and closes
// its connections. Called when a drawing is deleted via the API, so the
// deleted state is not auto-saved back.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	d, ok := r.docs[id]
	if ok {
		delete(r.docs, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	d.evicted.Store(true)
	r.saver.Cancel(id)

	d.mu.Lock()
	conns := make([]*Client, 0, len(d.conns))
	for c := range d.conns {
		conns = append(conns, c)
	}
	d.mu.Unlock()

	for _, c := range conns {
		// Triggers the client's read pump to exit and detach safely.
		c.Conn.Close()
	}
}

// broadcast fans a frame out to every connection except the sender. Slow
// clients get their connection closed rather than blocking the room.
func (d *Doc) broadcast(f outFrame, sender *Client) {
	d.mu.Lock()
	recipients := make([]*Client, 0, len(d.conns))
	for c := range d.conns {
		if c != sender {
			recipients = append(recipients, c)
		}
	}
	d.mu.Unlock()

	for _, c := range recipients {
		select {
		case c.Send <- f:
		default:
			logger.Sugar.Warnf("Client %s's send buffer is full, dropping connection", c.UserID)
			c.Conn.Close()
		}
	}
}
