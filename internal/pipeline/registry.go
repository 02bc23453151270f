package pipeline

import (
	"strings"
	"sync"
)

// RegistryOptions carries the session-level hooks the service wires in,
// e.g. auto-anchoring a recording when its pipeline completes.
type RegistryOptions struct {
	OnSessionComplete func(sessionID string)
	OnSessionError    func(sessionID, message string)
}

// Registry owns the live trackers, one per observed session, all reading
// the same bus. It is the single place that creates and closes trackers
// so subscriptions cannot leak when sessions churn.
type Registry struct {
	bus  *Bus
	opts RegistryOptions

	mu       sync.Mutex
	trackers map[string]*Tracker
	closed   bool
}

func NewRegistry(bus *Bus, opts RegistryOptions) *Registry {
	return &Registry{
		bus:      bus,
		opts:     opts,
		trackers: make(map[string]*Tracker),
	}
}

// Observe returns the live tracker for sessionID, creating one if the
// session is not yet tracked.
func (r *Registry) Observe(sessionID string) *Tracker {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if tracker, ok := r.trackers[sessionID]; ok {
		return tracker
	}

	tracker := NewTracker(r.bus, sessionID, TrackerOptions{
		OnComplete: func() {
			if r.opts.OnSessionComplete != nil {
				r.opts.OnSessionComplete(sessionID)
			}
		},
		OnError: func(message string) {
			if r.opts.OnSessionError != nil {
				r.opts.OnSessionError(sessionID, message)
			}
		},
	})
	r.trackers[sessionID] = tracker
	return tracker
}

// Lookup returns the live tracker for sessionID, if any.
func (r *Registry) Lookup(sessionID string) (*Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tracker, ok := r.trackers[strings.TrimSpace(sessionID)]
	return tracker, ok
}

// Release closes and forgets the tracker for sessionID.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	tracker, ok := r.trackers[strings.TrimSpace(sessionID)]
	if ok {
		delete(r.trackers, strings.TrimSpace(sessionID))
	}
	r.mu.Unlock()
	if ok {
		tracker.Close()
	}
}

// Close tears down every live tracker.
func (r *Registry) Close() {
	r.mu.Lock()
	trackers := r.trackers
	r.trackers = make(map[string]*Tracker)
	r.closed = true
	r.mu.Unlock()
	for _, tracker := range trackers {
		tracker.Close()
	}
}
