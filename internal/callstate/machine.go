// Package callstate is the per-participant state machine that a client
// drives from coordinator events and local media actions. It owns no I/O;
// callers observe the state and act on transitions.
package callstate

import "fmt"

type State string

const (
	StateIdle       State = "idle"
	StateJoining    State = "joining"
	StateWaiting    State = "waiting"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateEnded      State = "ended"
	StatePeerLeft   State = "peer_left"
	StateError      State = "error"
)

// terminal reports whether no further transitions are possible.
func (s State) terminal() bool {
	return s == StateEnded || s == StatePeerLeft || s == StateError
}

// Machine tracks one call attempt from join to teardown. Zero value is
// usable and starts in idle. Not safe for concurrent use; a client owns
// exactly one and drives it from its receive loop.
type Machine struct {
	state     State
	initiator bool

	// local toggles, UI concerns that never change the call state
	muted     bool
	cameraOff bool
}

func New() *Machine {
	return &Machine{state: StateIdle}
}

func (m *Machine) State() State {
	if m.state == "" {
		return StateIdle
	}
	return m.state
}

// Initiator is meaningful once the machine has seen peer-joined.
func (m *Machine) Initiator() bool { return m.initiator }

// StartJoin begins a call attempt: the client has sent join-room and is
// waiting for the coordinator's first event.
func (m *Machine) StartJoin() error {
	return m.transition(StateJoining, StateIdle)
}

// OnWaiting handles the coordinator's waiting event: the client is the
// first member and the peer has not arrived yet.
func (m *Machine) OnWaiting() error {
	return m.transition(StateWaiting, StateJoining, StateWaiting)
}

// OnPeerJoined handles peer-joined and records the assigned role. Valid
// from joining (the events raced) or waiting.
func (m *Machine) OnPeerJoined(initiator bool) error {
	if err := m.transition(StateConnecting, StateJoining, StateWaiting); err != nil {
		return err
	}
	m.initiator = initiator
	return nil
}

// OnMediaUp is the local transition into active, driven by the media
// layer's first inbound stream, not by the coordinator.
func (m *Machine) OnMediaUp() error {
	return m.transition(StateActive, StateConnecting)
}

// OnPeerLeft handles peer-left: the other party disconnected or never
// arrived. Distinct from ended so the UI can offer a re-ring.
func (m *Machine) OnPeerLeft() error {
	return m.transition(StatePeerLeft, StateWaiting, StateConnecting, StateActive)
}

// OnCallEnded handles the coordinator's ack of this client's own
// leave-room, or a locally initiated end-call.
func (m *Machine) OnCallEnded() error {
	return m.transition(StateEnded, StateJoining, StateWaiting, StateConnecting, StateActive)
}

// Fail records a local media-capture failure or a channel loss before any
// room event arrived.
func (m *Machine) Fail() error {
	if m.State().terminal() {
		return fmt.Errorf("call already %s", m.State())
	}
	m.state = StateError
	return nil
}

func (m *Machine) ToggleMute() bool {
	m.muted = !m.muted
	return m.muted
}

func (m *Machine) ToggleCamera() bool {
	m.cameraOff = !m.cameraOff
	return m.cameraOff
}

func (m *Machine) Muted() bool     { return m.muted }
func (m *Machine) CameraOff() bool { return m.cameraOff }

func (m *Machine) transition(to State, from ...State) error {
	cur := m.State()
	for _, f := range from {
		if cur == f {
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s", cur, to)
}
