// ABOUTME: Resource registry for scheduled timers and event subscriptions.
// ABOUTME: Keys are caller-chosen; a key prefix is a context that can be released in one call.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry owns every timer and subscription the engine creates.
// Registering an id that is already active replaces the previous
// registration. Cancellation is checked right before a callback runs, so a
// cancelled timer never fires even if it was already due.
type Registry struct {
	mu     sync.Mutex
	clock  Clock
	timers map[string]*timerEntry
	subs   map[string]*subscription
}

type timerEntry struct {
	id        string
	callback  func()
	interval  time.Duration
	repeating bool
	timer     Timer
	cancelled bool
}

type subscription struct {
	key       string
	off       func()
	cancelled bool
}

// New creates a Registry using clock. A nil clock means SystemClock.
func New(clock Clock) *Registry {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Registry{
		clock:  clock,
		timers: make(map[string]*timerEntry),
		subs:   make(map[string]*subscription),
	}
}

// Clock returns the registry's time source.
func (r *Registry) Clock() Clock {
	return r.clock
}

// ScheduleRepeating runs callback every interval until cancelled.
func (r *Registry) ScheduleRepeating(id string, callback func(), interval time.Duration) {
	r.schedule(id, callback, interval, true)
}

// ScheduleOnce runs callback once after delay unless cancelled first.
func (r *Registry) ScheduleOnce(id string, callback func(), delay time.Duration) {
	r.schedule(id, callback, delay, false)
}

func (r *Registry) schedule(id string, callback func(), d time.Duration, repeating bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelTimerLocked(id)
	e := &timerEntry{id: id, callback: callback, interval: d, repeating: repeating}
	e.timer = r.clock.AfterFunc(d, func() { r.fire(e) })
	r.timers[id] = e
}

func (r *Registry) fire(e *timerEntry) {
	r.mu.Lock()
	if e.cancelled || r.timers[e.id] != e {
		r.mu.Unlock()
		return
	}
	if e.repeating {
		e.timer = r.clock.AfterFunc(e.interval, func() { r.fire(e) })
	} else {
		delete(r.timers, e.id)
	}
	callback := e.callback
	r.mu.Unlock()

	callback()
}

// Cancel stops the timer or subscription registered under id. No-op if absent.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelTimerLocked(id)
	r.unsubscribeLocked(id)
}

func (r *Registry) cancelTimerLocked(id string) bool {
	e, ok := r.timers[id]
	if !ok {
		return false
	}
	e.cancelled = true
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(r.timers, id)
	return true
}

// Subscribe registers handler for eventName on target under the key
// target.ID()+":"+eventName and returns that key.
func (r *Registry) Subscribe(target Source, eventName string, handler Handler) string {
	key := SubscriptionKey(target, eventName)

	r.mu.Lock()
	r.unsubscribeLocked(key)
	s := &subscription{key: key}
	r.subs[key] = s
	r.mu.Unlock()

	// Registering with the source happens outside the lock: a Source may
	// emit synchronously from On.
	off := target.On(eventName, func(payload any) {
		r.mu.Lock()
		live := !s.cancelled && r.subs[key] == s
		r.mu.Unlock()
		if live {
			handler(payload)
		}
	})

	r.mu.Lock()
	if s.cancelled {
		r.mu.Unlock()
		off()
		return key
	}
	s.off = off
	r.mu.Unlock()
	return key
}

// SubscriptionKey returns the key Subscribe uses for target and eventName.
func SubscriptionKey(target Source, eventName string) string {
	return target.ID() + ":" + eventName
}

// Unsubscribe removes the subscription under key. No-op if absent.
func (r *Registry) Unsubscribe(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(key)
}

func (r *Registry) unsubscribeLocked(key string) bool {
	s, ok := r.subs[key]
	if !ok {
		return false
	}
	s.cancelled = true
	if s.off != nil {
		s.off()
	}
	delete(r.subs, key)
	return true
}

// CancelContext cancels every timer and subscription whose key starts with
// prefix and returns how many were released.
func (r *Registry) CancelContext(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id := range r.timers {
		if strings.HasPrefix(id, prefix) && r.cancelTimerLocked(id) {
			n++
		}
	}
	for key := range r.subs {
		if strings.HasPrefix(key, prefix) && r.unsubscribeLocked(key) {
			n++
		}
	}
	return n
}

// ReleaseAll cancels everything.
func (r *Registry) ReleaseAll() int {
	return r.CancelContext("")
}

// IsActive reports whether id is a live timer or subscription.
func (r *Registry) IsActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, timer := r.timers[id]
	_, sub := r.subs[id]
	return timer || sub
}

// Active returns every live key, sorted.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.timers)+len(r.subs))
	for id := range r.timers {
		keys = append(keys, id)
	}
	for key := range r.subs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
