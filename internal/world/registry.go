package world

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var ErrUnknownEntity = errors.New("unknown entity")

// Registry is the in-memory world model fed by the host. Lifecycle changes are
// queued and handed to the Listener at the start of the next tick.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]Entity
	pending  []lifecycleEvent
	dayTime  int64
}

func NewRegistry() *Registry {
	return &Registry{entities: map[string]Entity{}}
}

// Upsert adds or replaces an entity. It reports whether the entity is new.
func (r *Registry) Upsert(e Entity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.entities[e.ID]
	r.entities[e.ID] = e
	if !exists {
		r.pending = append(r.pending, lifecycleEvent{kind: appeared, entity: e})
	}
	return !exists
}

// Move updates position and region of a known entity. An empty region keeps the current one.
func (r *Registry) Move(id string, x, y, z float64, region string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entities[id]
	if !ok {
		return ErrUnknownEntity
	}
	e.X, e.Y, e.Z = x, y, z
	if region != "" {
		e.Region = region
	}
	r.entities[id] = e
	return nil
}

func (r *Registry) SetLatency(id string, latencyMs int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entities[id]
	if !ok {
		return ErrUnknownEntity
	}
	e.LatencyMs = latencyMs
	r.entities[id] = e
	return nil
}

func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entities[id]
	if !ok {
		return ErrUnknownEntity
	}
	delete(r.entities, id)
	r.pending = append(r.pending, lifecycleEvent{kind: disappeared, entity: e})
	return nil
}

func (r *Registry) Get(id string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	return e, ok
}

// Lookup resolves an entity by id or, case-insensitively, by display name.
func (r *Registry) Lookup(ref string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entities[ref]; ok {
		return e, true
	}
	for _, e := range r.entities {
		if strings.EqualFold(e.Name, ref) {
			return e, true
		}
	}
	return Entity{}, false
}

// Entities returns a snapshot ordered by id.
func (r *Registry) Entities() []Entity {
	r.mu.RLock()
	out := make([]Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WorldTime is the time of day in ticks, 0..DayLength-1.
func (r *Registry) WorldTime() (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dayTime % DayLength, true
}

func (r *Registry) SetWorldTime(ticks int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dayTime = ((ticks % DayLength) + DayLength) % DayLength
}

func (r *Registry) advance() {
	r.mu.Lock()
	r.dayTime++
	r.mu.Unlock()
}

func (r *Registry) drainLifecycle() []lifecycleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.pending
	r.pending = nil
	return events
}
