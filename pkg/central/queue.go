package central

import "github.com/google/uuid"

// opKind separates the correlation queues of the distinct driver completion
// streams. Read, write and notify completions arrive as different event
// types, so a pending write must never be resolved by a read completion on
// the same item.
type opKind uint8

const (
	opDiscoverGroups opKind = iota // session-scoped, key id is zero
	opDiscoverItems
	opRead
	opWrite
	opNotify
)

// queueKey is a correlation key: one FIFO queue of pending requests exists
// per key, and driver completions for a key resolve that queue's head.
type queueKey struct {
	kind opKind
	id   uuid.UUID
}

// result is the outcome carried from a driver completion to the caller
// awaiting it.
type result struct {
	value any
	err   error
}

// pending is one outstanding request handle in a correlation queue.
//
// abandoned is set (under the session mutex) when the awaiting caller gave
// up before the handle reached the queue head. The handle stays queued so
// the correlation count stays right: the driver completion that belongs to
// it is popped and discarded instead of resolving a later request.
type pending struct {
	done      chan result // buffered, capacity 1
	abandoned bool        // guarded by the owning session's mutex
}

func newPending() *pending {
	return &pending{done: make(chan result, 1)}
}
