// Package presence maintains the live binding between a user identity and
// its current transport handle, and drives room teardown on disconnect.
package presence

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/haven-health/consult-signaling/internal/event"
	"github.com/haven-health/consult-signaling/internal/redis"
)

// DisconnectFunc is invoked when an identity's current handle goes away.
// The coordinator's disconnect path satisfies this.
type DisconnectFunc func(identity string, h event.Sink)

// Tracker owns the identity -> handle map. Handles are referenced, never
// duplicated, by every other component.
type Tracker struct {
	mu     sync.RWMutex
	online map[string]event.Sink

	onDisconnect DisconnectFunc
	mirror       *redis.Mirror
	log          zerolog.Logger
}

func NewTracker(onDisconnect DisconnectFunc, mirror *redis.Mirror, log zerolog.Logger) *Tracker {
	return &Tracker{
		online:       make(map[string]event.Sink),
		onDisconnect: onDisconnect,
		mirror:       mirror,
		log:          log.With().Str("component", "presence").Logger(),
	}
}

// Bind records h as identity's current handle and returns the handle it
// superseded, if any, so the edge can close the old connection.
func (t *Tracker) Bind(identity string, h event.Sink) event.Sink {
	t.mu.Lock()
	prev := t.online[identity]
	t.online[identity] = h
	t.mu.Unlock()

	t.mirror.SetOnline(identity)
	t.log.Info().Str("identity", identity).Bool("reconnect", prev != nil).Msg("client connected")
	return prev
}

// Unbind removes the binding and invokes the disconnect path, but only if
// h is still the current handle. A close racing a reconnect, or a second
// close of the same transport, is a no-op.
func (t *Tracker) Unbind(identity string, h event.Sink) {
	t.mu.Lock()
	current, ok := t.online[identity]
	if !ok || current != h {
		t.mu.Unlock()
		return
	}
	delete(t.online, identity)
	t.mu.Unlock()

	t.mirror.SetOffline(identity)
	t.log.Info().Str("identity", identity).Msg("client disconnected")
	if t.onDisconnect != nil {
		t.onDisconnect(identity, h)
	}
}

// Lookup returns identity's current handle.
func (t *Tracker) Lookup(identity string) (event.Sink, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.online[identity]
	return h, ok
}
