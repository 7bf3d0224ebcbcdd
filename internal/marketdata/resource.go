package marketdata

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one change notification. Tick is nil when the key was removed.
type Event struct {
	Key  string `json:"key"`
	Tick *Tick  `json:"tick,omitempty"`
}

// Resource is the live market data cache: instrument key → latest tick.
// The map is guarded by a single mutex; the ingestion path is called from the
// broker feed goroutine while Get/GetAll/Initialize/Remove are called from
// request handling, so every access goes through the lock and the lock is
// held for the merge only. The notify hook runs synchronously with the
// mutation, exactly once per accepted mutation, and must not block or do I/O.
type Resource struct {
	mu     sync.Mutex
	ticks  map[string]Tick
	notify func(Event)
	log    *zap.Logger
}

func NewResource(notify func(Event), log *zap.Logger) *Resource {
	if notify == nil {
		notify = func(Event) {}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resource{
		ticks:  make(map[string]Tick),
		notify: notify,
		log:    log,
	}
}

// Initialize inserts an empty tick for the key so subscribers can see the
// instrument before any data arrives. Idempotent: a second call for a present
// key does nothing and emits no notification.
func (r *Resource) Initialize(key string) error {
	exchange, token, err := ParseKey(key)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ticks[key]; ok {
		return nil
	}
	t := Tick{Exchange: exchange, Token: token}
	r.ticks[key] = t
	evt := t.clone()
	r.notify(Event{Key: key, Tick: &evt})
	return nil
}

// IngestTick merges a feed update into the stored tick for key, creating the
// entry if absent. Updates whose kind is not touchline or depth are dropped
// without mutation or notification.
func (r *Resource) IngestTick(key string, u TickUpdate) {
	if !u.carriesData() {
		r.log.Debug("ignoring non-data tick", zap.String("key", key), zap.String("kind", u.Kind))
		return
	}
	exchange, token, err := ParseKey(key)
	if err != nil {
		r.log.Warn("dropping tick with malformed key", zap.String("key", key))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.ticks[key]
	if !ok {
		t = Tick{Exchange: exchange, Token: token}
	}
	t.apply(u)
	t.ReceivedAt = time.Now().UTC()
	r.ticks[key] = t
	evt := t.clone()
	r.notify(Event{Key: key, Tick: &evt})
}

// Remove deletes the entry if present and notifies with a removal marker
// (nil tick). No-op, no notification, when the key is absent.
func (r *Resource) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ticks[key]; !ok {
		return
	}
	delete(r.ticks, key)
	r.notify(Event{Key: key})
}

// Get returns an independent copy of the stored tick.
func (r *Resource) Get(key string) (Tick, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.ticks[key]
	if !ok {
		return Tick{}, false
	}
	return t.clone(), true
}

// GetAll returns an independent snapshot of the whole cache.
func (r *Resource) GetAll() map[string]Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Tick, len(r.ticks))
	for k, t := range r.ticks {
		out[k] = t.clone()
	}
	return out
}
