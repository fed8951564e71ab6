package chat

import "errors"

// Failure taxonomy of the messaging core. Precondition violations are
// reported synchronously to the caller and never recovered
// automatically; store failures pass through wrapped but untouched.
// Callers branch with errors.Is.
var (
	// ErrNotAnActiveMember: the acting identity holds no active
	// membership in the target room. Sending and marking read both
	// require one.
	ErrNotAnActiveMember = errors.New("chat: not an active member of the room")

	// ErrNotAParticipant: the identity never held a membership in the
	// room, not even a departed one. Blocks read access entirely.
	ErrNotAParticipant = errors.New("chat: never a participant in the room")

	// ErrCannotCreateRoomFromMembership: a bare membership tried to
	// resolve-or-create a room. A membership belongs to one room and
	// cannot spawn another; creating one from it would chain a
	// membership onto a membership. Send from the compound identity
	// instead.
	ErrCannotCreateRoomFromMembership = errors.New("chat: a membership cannot create a new room")

	// ErrRoomNotFound: the resolver found no room whose active
	// membership set matches exactly. Routine, expected to be handled.
	ErrRoomNotFound = errors.New("chat: no room matches the participant set")

	// ErrMessageNotFound: the referenced message does not exist or was
	// soft-deleted.
	ErrMessageNotFound = errors.New("chat: message not found")

	// ErrReplyOutsideRoom: reply_to must reference a message in the
	// same room as the reply.
	ErrReplyOutsideRoom = errors.New("chat: reply references a message in another room")

	// ErrRestoreUnsupported: soft deletion scrubs the message body in
	// the same write, so the data is gone and restoring is impossible.
	ErrRestoreUnsupported = errors.New("chat: deleted messages cannot be restored")

	// ErrNotAllowed: the actor lacks the role required for the
	// operation (e.g. deleting another participant's message without
	// admin).
	ErrNotAllowed = errors.New("chat: operation not allowed for this membership")
)
