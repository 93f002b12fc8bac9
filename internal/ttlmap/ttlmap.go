// Package ttlmap provides a keyed registry whose entries expire.
//
// Entries expire in one of two ways. Set stores an entry with a deadline
// that is enforced lazily by reads and physically by Sweep. SetWithTimer
// stores an entry with its own deletion timer.
package ttlmap

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value V
	// expires is zero for timer-managed entries.
	expires time.Time
	timer   *time.Timer
}

func (e *entry[V]) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

type Registry[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]*entry[V]
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
	sweeping bool
}

func New[K comparable, V any]() *Registry[K, V] {
	return NewWithClock[K, V](time.Now)
}

func NewWithClock[K comparable, V any](now func() time.Time) *Registry[K, V] {
	return &Registry[K, V]{
		items: make(map[K]*entry[V]),
		now:   now,
		stop:  make(chan struct{}),
	}
}

// Set stores value under key until ttl elapses.
func (r *Registry[K, V]) Set(key K, value V, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.replace(key, &entry[V]{value: value, expires: r.now().Add(ttl)})
}

// SetWithTimer stores value under key and deletes it after ttl. Storing
// the same key again restarts the timer.
func (r *Registry[K, V]) SetWithTimer(key K, value V, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry[V]{value: value}
	e.timer = time.AfterFunc(ttl, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.items[key]; ok && cur == e {
			delete(r.items, key)
		}
	})
	r.replace(key, e)
}

// Update calls fn with the live value for key, if any. When fn reports
// true the returned value is stored with a fresh ttl; otherwise the entry
// is left untouched. Update reports whether a value was stored.
func (r *Registry[K, V]) Update(key K, fn func(old V, ok bool) (V, bool), ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var old V
	cur, ok := r.items[key]
	if ok && cur.expired(now) {
		ok = false
	}
	if ok {
		old = cur.value
	}

	next, store := fn(old, ok)
	if !store {
		return false
	}

	r.replace(key, &entry[V]{value: next, expires: now.Add(ttl)})
	return true
}

func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[key]
	if !ok || e.expired(r.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete removes key and reports whether it was present. Deleting a
// missing key is a no-op.
func (r *Registry[K, V]) Delete(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[key]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(r.items, key)
	return true
}

func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for _, e := range r.items {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Values returns a snapshot of the live values in no particular order.
func (r *Registry[K, V]) Values() []V {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	values := make([]V, 0, len(r.items))
	for _, e := range r.items {
		if !e.expired(now) {
			values = append(values, e.value)
		}
	}
	return values
}

// Sweep removes expired entries and returns how many were removed.
func (r *Registry[K, V]) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for k, e := range r.items {
		if e.expired(now) {
			delete(r.items, k)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until Close is called. Only the
// first call starts a sweeper.
func (r *Registry[K, V]) StartSweeper(interval time.Duration) {
	r.mu.Lock()
	if r.sweeping {
		r.mu.Unlock()
		return
	}
	r.sweeping = true
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.Sweep()
			case <-r.stop:
				return
			}
		}
	}()
}

// Close stops the sweeper and every pending timer and drops all entries.
func (r *Registry[K, V]) Close() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	for k, e := range r.items {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(r.items, k)
	}
}

func (r *Registry[K, V]) replace(key K, e *entry[V]) {
	if old, ok := r.items[key]; ok && old.timer != nil {
		old.timer.Stop()
	}
	r.items[key] = e
}
