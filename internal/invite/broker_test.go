package invite

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-health/consult-signaling/internal/event"
	"github.com/haven-health/consult-signaling/internal/presence"
)

type fakeSink struct {
	mu     sync.Mutex
	events []event.Envelope
}

func (f *fakeSink) Deliver(ev event.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSink) named(name event.Name) []event.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []event.Envelope
	for _, ev := range f.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func newTestBroker(ringTimeout time.Duration) (*Broker, *presence.Tracker) {
	tracker := presence.NewTracker(nil, nil, zerolog.Nop())
	return NewBroker(tracker, ringTimeout, zerolog.Nop()), tracker
}

func TestRingUnknownRecipient(t *testing.T) {
	b, _ := newTestBroker(time.Minute)
	err := b.Ring("U1", "D1", "R1", "Dr. Patel")
	assert.ErrorIs(t, err, event.ErrUnknownRecipient)
}

func TestRingDeliversPrompt(t *testing.T) {
	b, tracker := newTestBroker(time.Minute)
	callee := &fakeSink{}
	tracker.Bind("D1", callee)

	require.NoError(t, b.Ring("U1", "D1", "R1", "Asha N."))

	rings := callee.named(event.NameRing)
	require.Len(t, rings, 1)
	assert.Equal(t, "R1", rings[0].RoomID)
	assert.Equal(t, "U1", rings[0].From)
	assert.Equal(t, "Asha N.", rings[0].DisplayName)
}

func TestAcceptSignalsCaller(t *testing.T) {
	b, tracker := newTestBroker(time.Minute)
	caller, callee := &fakeSink{}, &fakeSink{}
	tracker.Bind("U1", caller)
	tracker.Bind("D1", callee)

	require.NoError(t, b.Ring("U1", "D1", "R1", ""))
	require.NoError(t, b.Respond("R1", "D1", event.DecisionAccept))

	accepted := caller.named(event.NameCallResponse)
	require.Len(t, accepted, 1)
	assert.Equal(t, "R1", accepted[0].RoomID)
	assert.Equal(t, event.DecisionAccept, accepted[0].Decision)
	assert.Empty(t, caller.named(event.NameCallDeclined))
}

func TestDeclineNotifiesCaller(t *testing.T) {
	b, tracker := newTestBroker(time.Minute)
	caller, callee := &fakeSink{}, &fakeSink{}
	tracker.Bind("U1", caller)
	tracker.Bind("D1", callee)

	require.NoError(t, b.Ring("U1", "D1", "R1", ""))
	require.NoError(t, b.Respond("R1", "D1", event.DecisionDecline))

	declined := caller.named(event.NameCallDeclined)
	require.Len(t, declined, 1)
	assert.Equal(t, "R1", declined[0].RoomID)
}

func TestInvitationResolvesAtMostOnce(t *testing.T) {
	b, tracker := newTestBroker(time.Minute)
	tracker.Bind("U1", &fakeSink{})
	tracker.Bind("D1", &fakeSink{})

	require.NoError(t, b.Ring("U1", "D1", "R1", ""))
	require.NoError(t, b.Respond("R1", "D1", event.DecisionAccept))

	err := b.Respond("R1", "D1", event.DecisionDecline)
	assert.ErrorIs(t, err, event.ErrStaleInvitation)
}

func TestRespondByWrongIdentity(t *testing.T) {
	b, tracker := newTestBroker(time.Minute)
	tracker.Bind("D1", &fakeSink{})

	require.NoError(t, b.Ring("U1", "D1", "R1", ""))
	assert.ErrorIs(t, b.Respond("R1", "X1", event.DecisionAccept), event.ErrStaleInvitation)

	// Still resolvable by the real callee.
	assert.NoError(t, b.Respond("R1", "D1", event.DecisionAccept))
}

func TestRespondWithoutRing(t *testing.T) {
	b, _ := newTestBroker(time.Minute)
	assert.ErrorIs(t, b.Respond("R9", "D1", event.DecisionAccept), event.ErrStaleInvitation)
}

func TestRingExpiryNotifiesCallerAsDeclined(t *testing.T) {
	b, tracker := newTestBroker(20 * time.Millisecond)
	caller, callee := &fakeSink{}, &fakeSink{}
	tracker.Bind("U1", caller)
	tracker.Bind("D1", callee)

	require.NoError(t, b.Ring("U1", "D1", "R1", ""))

	require.Eventually(t, func() bool {
		return len(caller.named(event.NameCallDeclined)) == 1
	}, time.Second, 5*time.Millisecond)

	// A late answer hits a resolved invitation.
	assert.ErrorIs(t, b.Respond("R1", "D1", event.DecisionAccept), event.ErrStaleInvitation)

	// And the caller is not notified twice.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, caller.named(event.NameCallDeclined), 1)
}

func TestResolutionCancelsExpiry(t *testing.T) {
	b, tracker := newTestBroker(30 * time.Millisecond)
	caller, callee := &fakeSink{}, &fakeSink{}
	tracker.Bind("U1", caller)
	tracker.Bind("D1", callee)

	require.NoError(t, b.Ring("U1", "D1", "R1", ""))
	require.NoError(t, b.Respond("R1", "D1", event.DecisionAccept))

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, caller.named(event.NameCallDeclined))
}
