package handlers

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-health/consult-signaling/internal/event"
	"github.com/haven-health/consult-signaling/internal/invite"
	"github.com/haven-health/consult-signaling/internal/presence"
	"github.com/haven-health/consult-signaling/internal/session"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.Envelope
}

func (r *recordingSink) Deliver(ev event.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) named(name event.Name) []event.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Envelope
	for _, ev := range r.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

// TestRingAcceptJoinFlow walks the full happy path: the patient rings the
// doctor, the doctor accepts, both join the shared room, and the patient,
// having arrived first, is elected initiator.
func TestRingAcceptJoinFlow(t *testing.T) {
	log := zerolog.Nop()
	registry := session.NewRegistry()
	coordinator := session.NewCoordinator(registry, nil, time.Minute, log)
	tracker := presence.NewTracker(coordinator.Disconnect, nil, log)
	broker := invite.NewBroker(tracker, time.Minute, log)

	patient, doctor := &recordingSink{}, &recordingSink{}
	tracker.Bind("U1", patient)
	tracker.Bind("D1", doctor)

	require.NoError(t, broker.Ring("U1", "D1", "R1", "Asha N."))
	rings := doctor.named(event.NameRing)
	require.Len(t, rings, 1)
	assert.Equal(t, "U1", rings[0].From)

	require.NoError(t, broker.Respond("R1", "D1", event.DecisionAccept))
	require.Len(t, patient.named(event.NameCallResponse), 1)

	// Both sides connect to the rendezvous independently.
	require.NoError(t, coordinator.Join("R1", "U1", patient))
	require.Len(t, patient.named(event.NameWaiting), 1)

	require.NoError(t, coordinator.Join("R1", "D1", doctor))

	patientJoined := patient.named(event.NamePeerJoined)
	doctorJoined := doctor.named(event.NamePeerJoined)
	require.Len(t, patientJoined, 1)
	require.Len(t, doctorJoined, 1)
	assert.True(t, *patientJoined[0].Initiator)
	assert.False(t, *doctorJoined[0].Initiator)
}

// TestChannelDropTearsDownCall covers the presence-driven path: the
// doctor's transport closes mid-call, the patient hears peer-left exactly
// once, and the room is gone for any further relay.
func TestChannelDropTearsDownCall(t *testing.T) {
	log := zerolog.Nop()
	registry := session.NewRegistry()
	coordinator := session.NewCoordinator(registry, nil, time.Minute, log)
	tracker := presence.NewTracker(coordinator.Disconnect, nil, log)

	patient, doctor := &recordingSink{}, &recordingSink{}
	tracker.Bind("U1", patient)
	tracker.Bind("D1", doctor)
	require.NoError(t, coordinator.Join("R1", "U1", patient))
	require.NoError(t, coordinator.Join("R1", "D1", doctor))

	tracker.Unbind("D1", doctor)
	tracker.Unbind("D1", doctor) // double close, must be a no-op

	require.Len(t, patient.named(event.NamePeerLeft), 1)
	assert.ErrorIs(t,
		coordinator.Relay("R1", "U1", event.SignalOffer, nil),
		event.ErrRoomNotFound)
}
