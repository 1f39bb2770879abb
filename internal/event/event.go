package event

import "encoding/json"

// Name identifies a protocol event on the client channel
type Name string

const (
	// caller -> callee, via the invitation broker
	NameRing Name = "ring"

	// callee -> broker, and broker -> caller on accept
	NameCallResponse Name = "call-response"

	// broker -> caller when the callee declines or the ring expires
	NameCallDeclined Name = "call-declined"

	// client -> coordinator
	NameJoinRoom  Name = "join-room"
	NameLeaveRoom Name = "leave-room"

	// coordinator -> client
	NameWaiting    Name = "waiting"
	NamePeerJoined Name = "peer-joined"
	NamePeerLeft   Name = "peer-left"
	NameCallEnded  Name = "call-ended"

	// client <-> relay, opaque signaling payload
	NameSignal Name = "signal"

	// server -> client, named failure report
	NameError Name = "error"
)

// SignalKind classifies a relayed signaling payload. The relay never
// inspects the payload itself, only the kind tag.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

// Valid reports whether k is one of the relayable signal kinds.
func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalCandidate:
		return true
	}
	return false
}

// Decision is a callee's answer to a ring.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

// Valid reports whether d is a recognized response decision.
func (d Decision) Valid() bool {
	return d == DecisionAccept || d == DecisionDecline
}

// Envelope is the single wire format for every event on the channel,
// in both directions. Unused fields are omitted per event.
type Envelope struct {
	Event       Name            `json:"event"`
	RoomID      string          `json:"roomId,omitempty"`
	From        string          `json:"from,omitempty"`
	To          string          `json:"to,omitempty"`
	DisplayName string          `json:"displayName,omitempty"`
	Decision    Decision        `json:"decision,omitempty"`
	Initiator   *bool           `json:"initiator,omitempty"`
	Kind        SignalKind      `json:"kind,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ErrorKind   string          `json:"errorKind,omitempty"`
}

// Sink is the outbound half of a client's transport handle. Deliver must
// not block; implementations drop on a full buffer and report
// ErrChannelUnavailable.
type Sink interface {
	Deliver(ev Envelope) error
}

// Failure builds the error envelope reported back to an originating client.
func Failure(roomID string, err error) Envelope {
	return Envelope{
		Event:     NameError,
		RoomID:    roomID,
		ErrorKind: KindOf(err),
	}
}

// BoolPtr is a convenience for the Initiator field.
func BoolPtr(b bool) *bool { return &b }
