// Package invite routes the ring/accept/decline exchange between a caller
// and a callee that are not yet in a room. Invitations live only in
// process memory and are terminal once resolved.
package invite

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/haven-health/consult-signaling/internal/event"
	"github.com/haven-health/consult-signaling/internal/presence"
)

type state string

const (
	stateRung     state = "rung"
	stateAccepted state = "accepted"
	stateDeclined state = "declined"
	stateExpired  state = "expired"
)

// invitation tracks one outstanding ring, keyed by the room id the caller
// minted for the prospective call.
type invitation struct {
	from, to  string
	roomID    string
	createdAt time.Time
	state     state
	timer     *time.Timer
}

const brokerShards = 16

type brokerShard struct {
	mu      sync.Mutex
	pending map[string]*invitation
}

// Broker delivers ring events to callees and routes their responses back
// to the caller. An invitation left unresolved past the ring timeout
// expires and the caller is notified as if declined.
type Broker struct {
	shards      [brokerShards]brokerShard
	tracker     *presence.Tracker
	ringTimeout time.Duration
	log         zerolog.Logger
}

func NewBroker(tracker *presence.Tracker, ringTimeout time.Duration, log zerolog.Logger) *Broker {
	b := &Broker{
		tracker:     tracker,
		ringTimeout: ringTimeout,
		log:         log.With().Str("component", "invite").Logger(),
	}
	for i := range b.shards {
		b.shards[i].pending = make(map[string]*invitation)
	}
	return b
}

func (b *Broker) shard(roomID string) *brokerShard {
	h := fnv.New32a()
	h.Write([]byte(roomID))
	return &b.shards[h.Sum32()%brokerShards]
}

// Ring delivers an incoming-call prompt to toIdentity and opens an
// invitation in the rung state. Fails with ErrUnknownRecipient when the
// callee has no live connection.
func (b *Broker) Ring(fromIdentity, toIdentity, roomID, callerDisplayName string) error {
	callee, ok := b.tracker.Lookup(toIdentity)
	if !ok {
		return event.ErrUnknownRecipient
	}

	inv := &invitation{
		from:      fromIdentity,
		to:        toIdentity,
		roomID:    roomID,
		createdAt: time.Now(),
		state:     stateRung,
	}

	s := b.shard(roomID)
	s.mu.Lock()
	if prev, exists := s.pending[roomID]; exists && prev.state == stateRung {
		s.mu.Unlock()
		return event.ErrStaleInvitation
	}
	s.pending[roomID] = inv
	inv.timer = time.AfterFunc(b.ringTimeout, func() { b.expire(roomID) })
	s.mu.Unlock()

	err := callee.Deliver(event.Envelope{
		Event:       event.NameRing,
		RoomID:      roomID,
		From:        fromIdentity,
		DisplayName: callerDisplayName,
	})
	if err != nil {
		b.log.Warn().Str("room", roomID).Str("callee", toIdentity).Err(err).Msg("ring delivery failed")
	}
	b.log.Info().Str("room", roomID).Str("caller", fromIdentity).Str("callee", toIdentity).Msg("ringing")
	return nil
}

// Respond resolves a rung invitation. Accept forwards the response to the
// caller, whose client then proceeds to join the room; decline notifies
// the caller and discards the invitation. Any response to an invitation
// that is not rung fails with ErrStaleInvitation.
func (b *Broker) Respond(roomID, responder string, decision event.Decision) error {
	s := b.shard(roomID)
	s.mu.Lock()
	inv, ok := s.pending[roomID]
	if !ok || inv.state != stateRung || inv.to != responder {
		s.mu.Unlock()
		return event.ErrStaleInvitation
	}
	if decision == event.DecisionAccept {
		inv.state = stateAccepted
	} else {
		inv.state = stateDeclined
	}
	inv.timer.Stop()
	delete(s.pending, roomID)
	caller := inv.from
	s.mu.Unlock()

	b.log.Info().Str("room", roomID).Str("callee", responder).
		Str("decision", string(decision)).Msg("invitation resolved")
	if decision == event.DecisionAccept {
		b.notifyCaller(caller, event.Envelope{
			Event:    event.NameCallResponse,
			RoomID:   roomID,
			From:     responder,
			Decision: event.DecisionAccept,
		})
	} else {
		b.notifyCaller(caller, event.Envelope{Event: event.NameCallDeclined, RoomID: roomID})
	}
	return nil
}

// expire fires from the ring timer. The caller hears a decline so the
// ringing UI cannot be orphaned by a dead callee.
func (b *Broker) expire(roomID string) {
	s := b.shard(roomID)
	s.mu.Lock()
	inv, ok := s.pending[roomID]
	if !ok || inv.state != stateRung {
		s.mu.Unlock()
		return
	}
	inv.state = stateExpired
	delete(s.pending, roomID)
	caller := inv.from
	s.mu.Unlock()

	b.log.Info().Str("room", roomID).Msg("invitation expired")
	b.notifyCaller(caller, event.Envelope{Event: event.NameCallDeclined, RoomID: roomID})
}

// notifyCaller resolves the caller's current handle at notification time,
// so a caller that reconnected mid-ring still hears the outcome.
func (b *Broker) notifyCaller(identity string, env event.Envelope) {
	h, ok := b.tracker.Lookup(identity)
	if !ok {
		b.log.Debug().Str("identity", identity).Str("event", string(env.Event)).Msg("caller offline, notification dropped")
		return
	}
	if err := h.Deliver(env); err != nil {
		b.log.Warn().Str("identity", identity).Err(err).Msg("caller notification failed")
	}
}
