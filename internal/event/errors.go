package event

import "errors"

// Error is a protocol failure with a stable machine-readable kind. The
// kind is what travels back to the client; the message is for logs.
type Error struct {
	kind string
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind returns the wire identifier for this failure.
func (e *Error) Kind() string { return e.kind }

var (
	// ErrUnknownRecipient: ring target has no live connection.
	ErrUnknownRecipient = &Error{"unknown-recipient", "recipient has no live connection"}

	// ErrStaleInvitation: invitation already resolved or expired.
	ErrStaleInvitation = &Error{"stale-invitation", "invitation already resolved or expired"}

	// ErrRoomNotFound: no such room in the registry.
	ErrRoomNotFound = &Error{"room-not-found", "room not found"}

	// ErrNotAMember: sender is not a member of the room.
	ErrNotAMember = &Error{"not-a-member", "sender is not a member of the room"}

	// ErrRoomFull: room already has two members.
	ErrRoomFull = &Error{"room-full", "room already has two participants"}

	// ErrChannelUnavailable: best-effort delivery failed. Logged, never retried.
	ErrChannelUnavailable = &Error{"channel-unavailable", "client channel unavailable"}
)

// KindOf extracts the failure kind from err, or "internal" for anything
// outside the protocol taxonomy.
func KindOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind()
	}
	return "internal"
}
