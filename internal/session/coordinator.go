package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/haven-health/consult-signaling/internal/event"
	"github.com/haven-health/consult-signaling/internal/redis"
)

// delivery is an outbound event staged under a room lock and sent after
// the lock is released. Delivery is best-effort: a failed send is logged
// and never rolls back the state transition that produced it.
type delivery struct {
	sink event.Sink
	env  event.Envelope
}

// Coordinator owns the rendezvous protocol: it admits members into rooms,
// elects the initiator by arrival order, relays signaling payloads between
// the two members, and tears rooms down on leave, disconnect or idle
// expiry.
type Coordinator struct {
	reg         *Registry
	mirror      *redis.Mirror
	idleTimeout time.Duration
	log         zerolog.Logger
}

func NewCoordinator(reg *Registry, mirror *redis.Mirror, idleTimeout time.Duration, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		reg:         reg,
		mirror:      mirror,
		idleTimeout: idleTimeout,
		log:         log.With().Str("component", "coordinator").Logger(),
	}
}

// Join admits identity into roomID over handle h.
//
// The first entrant gets a waiting event and an armed idle timer. The
// second distinct identity flips the room to active: the first member is
// told peer-joined{initiator:true}, the second peer-joined{initiator:false}.
// A re-join by a current member swaps its handle in place and re-sends the
// room snapshot so the client can resynchronize. A third identity fails
// with ErrRoomFull.
func (c *Coordinator) Join(roomID, identity string, h event.Sink) error {
	for {
		room, _ := c.reg.getOrCreate(roomID)

		room.mu.Lock()
		if room.closed {
			// Lost a race with teardown; the registry entry is gone or
			// about to be, so create a fresh room.
			room.mu.Unlock()
			continue
		}

		// Membership is inspected under the room lock, not inferred from
		// who created the map entry: two racing joins are linearized
		// here, and whichever acquires the lock first becomes the first
		// member.
		var out []delivery
		switch {
		case len(room.members) == 0:
			room.members = append(room.members, &Participant{Identity: identity, Handle: h})
			room.idleTimer = time.AfterFunc(c.idleTimeout, func() { c.reapIdle(roomID) })
			out = append(out, delivery{h, event.Envelope{Event: event.NameWaiting, RoomID: roomID}})

		case room.member(identity) != nil:
			// Reconnect: same identity, same room. Replace the handle,
			// keep membership and role untouched.
			p := room.member(identity)
			p.Handle = h
			room.lastActivityAt = time.Now()
			if room.state == StateOneJoined {
				room.idleTimer.Reset(c.idleTimeout)
				out = append(out, delivery{h, event.Envelope{Event: event.NameWaiting, RoomID: roomID}})
			} else {
				out = append(out, delivery{h, event.Envelope{
					Event:     event.NamePeerJoined,
					RoomID:    roomID,
					Initiator: event.BoolPtr(p.Role == RoleInitiator),
				}})
			}

		case len(room.members) == 1:
			room.members = append(room.members, &Participant{Identity: identity, Handle: h})
			room.state = StateActive
			room.lastActivityAt = time.Now()
			room.idleTimer.Stop()
			room.members[0].Role = RoleInitiator
			room.members[1].Role = RoleResponder
			out = append(out,
				delivery{room.members[0].Handle, event.Envelope{
					Event:     event.NamePeerJoined,
					RoomID:    roomID,
					Initiator: event.BoolPtr(true),
				}},
				delivery{h, event.Envelope{
					Event:     event.NamePeerJoined,
					RoomID:    roomID,
					Initiator: event.BoolPtr(false),
				}},
			)

		default:
			room.mu.Unlock()
			return event.ErrRoomFull
		}
		room.mu.Unlock()

		c.reg.setOccupancy(identity, roomID)
		c.mirror.AddMember(roomID, identity)
		c.log.Info().Str("room", roomID).Str("identity", identity).Msg("joined room")
		c.send(out)
		return nil
	}
}

// Leave is the explicit end-call path. The leaver is acked with
// call-ended; the remaining member, if any, gets peer-left and the room
// is closed either way.
func (c *Coordinator) Leave(roomID, identity string) error {
	room, ok := c.reg.get(roomID)
	if !ok {
		return event.ErrRoomNotFound
	}

	room.mu.Lock()
	leaver := room.member(identity)
	if room.closed || leaver == nil {
		room.mu.Unlock()
		return event.ErrNotAMember
	}
	out := c.closeRoomLocked(room, identity)
	out = append(out, delivery{leaver.Handle, event.Envelope{Event: event.NameCallEnded, RoomID: roomID}})
	room.mu.Unlock()

	c.finishTeardown(room, "leave")
	c.send(out)
	return nil
}

// Disconnect is the presence-driven teardown path. It is idempotent, and
// compares handles so that a stale close from a superseded connection
// cannot tear down a room the identity re-joined on a fresh one.
func (c *Coordinator) Disconnect(identity string, h event.Sink) {
	roomID, ok := c.reg.occupiedRoom(identity)
	if !ok {
		return
	}
	room, ok := c.reg.get(roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	p := room.member(identity)
	if room.closed || p == nil || p.Handle != h {
		room.mu.Unlock()
		return
	}
	out := c.closeRoomLocked(room, identity)
	room.mu.Unlock()

	c.finishTeardown(room, "disconnect")
	c.send(out)
}

// Relay forwards one opaque signaling payload to the other member of the
// room. Messages are never queued: if the peer is absent or its channel
// is dead the payload is dropped and the media layer re-negotiates after
// reconnect.
func (c *Coordinator) Relay(roomID, fromIdentity string, kind event.SignalKind, payload []byte) error {
	room, ok := c.reg.get(roomID)
	if !ok {
		return event.ErrRoomNotFound
	}

	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		return event.ErrRoomNotFound
	}
	if room.member(fromIdentity) == nil {
		room.mu.Unlock()
		return event.ErrNotAMember
	}
	room.lastActivityAt = time.Now()
	peer := room.other(fromIdentity)
	var sink event.Sink
	if peer != nil {
		sink = peer.Handle
	}
	room.mu.Unlock()

	if sink == nil {
		c.log.Debug().Str("room", roomID).Str("kind", string(kind)).Msg("no peer present, signal dropped")
		return nil
	}
	c.send([]delivery{{sink, event.Envelope{
		Event:   event.NameSignal,
		RoomID:  roomID,
		From:    fromIdentity,
		Kind:    kind,
		Payload: payload,
	}}})
	return nil
}

// RoomStatus is a read-only snapshot for the operational API.
type RoomStatus struct {
	RoomID         string    `json:"roomId"`
	State          State     `json:"state"`
	Members        int       `json:"members"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

func (c *Coordinator) Status(roomID string) (RoomStatus, bool) {
	room, ok := c.reg.get(roomID)
	if !ok {
		return RoomStatus{}, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return RoomStatus{}, false
	}
	return RoomStatus{
		RoomID:         room.ID,
		State:          room.state,
		Members:        len(room.members),
		CreatedAt:      room.createdAt,
		LastActivityAt: room.lastActivityAt,
	}, true
}

// reapIdle closes a room stuck in one_joined past the idle timeout. The
// waiting member is notified exactly as if a peer had come and gone.
func (c *Coordinator) reapIdle(roomID string) {
	room, ok := c.reg.get(roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	if room.closed || room.state != StateOneJoined {
		room.mu.Unlock()
		return
	}
	var out []delivery
	for _, p := range room.members {
		out = append(out, delivery{p.Handle, event.Envelope{Event: event.NamePeerLeft, RoomID: roomID}})
	}
	room.closed = true
	identities := memberIdentities(room)
	room.mu.Unlock()

	c.reg.remove(roomID)
	for _, id := range identities {
		c.reg.clearOccupancy(id, roomID)
	}
	c.mirror.DropRoom(roomID)
	c.log.Info().Str("room", roomID).Msg("idle room reaped")
	c.send(out)
}

// closeRoomLocked marks the room closed and stages peer-left for the
// member other than leaving, if present. Must run under room.mu; the
// caller completes teardown after unlocking.
func (c *Coordinator) closeRoomLocked(room *Room, leaving string) []delivery {
	var out []delivery
	if peer := room.other(leaving); peer != nil {
		out = append(out, delivery{peer.Handle, event.Envelope{Event: event.NamePeerLeft, RoomID: room.ID}})
	}
	if room.idleTimer != nil {
		room.idleTimer.Stop()
	}
	room.closed = true
	return out
}

func (c *Coordinator) finishTeardown(room *Room, cause string) {
	room.mu.Lock()
	identities := memberIdentities(room)
	room.mu.Unlock()

	c.reg.remove(room.ID)
	for _, id := range identities {
		c.reg.clearOccupancy(id, room.ID)
	}
	c.mirror.DropRoom(room.ID)
	c.log.Info().Str("room", room.ID).Str("cause", cause).Msg("room closed")
}

func memberIdentities(room *Room) []string {
	ids := make([]string, 0, len(room.members))
	for _, p := range room.members {
		ids = append(ids, p.Identity)
	}
	return ids
}

func (c *Coordinator) send(out []delivery) {
	for _, d := range out {
		if err := d.sink.Deliver(d.env); err != nil {
			c.log.Warn().Str("event", string(d.env.Event)).Str("room", d.env.RoomID).
				Err(err).Msg("delivery failed")
		}
	}
}
