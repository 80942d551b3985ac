package client

import (
	"github.com/RebelTat/buttplug/message"
)

// reply is what a pending request eventually receives: either the
// matching server message or a terminal error (connector closed,
// protocol mismatch).
type reply struct {
	msg message.Message
	err error
}

// sorter owns the next-id counter and the pending-request table (spec
// §4.3). It is only ever touched by the event loop goroutine; no
// internal locking is needed because of that single-owner guarantee,
// mirroring how a device.Transactions instance is only ever mutated by
// one read pump at a time in practice, except sorter additionally
// forbids concurrent access entirely rather than relying on a mutex.
type sorter struct {
	nextID  uint32
	pending map[uint32]chan reply
}

func newSorter() *sorter {
	return &sorter{
		nextID:  1,
		pending: make(map[uint32]chan reply),
	}
}

// register assigns the next id to msg and stores waker as the completion
// sink for that id, returning the now-stamped message ready to hand to
// the connector. waker must be buffered by at least 1 so resolve/failAll
// never block the event loop.
func (s *sorter) register(msg message.Message, waker chan reply) message.Message {
	id := s.nextID
	s.nextID++
	msg.SetId(id)
	s.pending[id] = waker
	return msg
}

// resolve delivers a server message to the caller awaiting its id. It
// reports whether a pending entry was found; the caller (the event loop)
// routes a false result to event-bus handling instead.
func (s *sorter) resolve(msg message.Message) bool {
	ch, ok := s.pending[msg.Id()]
	if !ok {
		return false
	}
	delete(s.pending, msg.Id())
	ch <- reply{msg: msg}
	close(ch)
	return true
}

// failOne delivers err to a single pending request, if still present.
// Used when a Send to the connector fails immediately after registration.
func (s *sorter) failOne(id uint32, err error) {
	ch, ok := s.pending[id]
	if !ok {
		return
	}
	delete(s.pending, id)
	ch <- reply{err: err}
	close(ch)
}

// failAll delivers err to every outstanding pending request and empties
// the table, returning how many were failed. Used on disconnect and
// connector-closed.
func (s *sorter) failAll(err error) int {
	n := 0
	for id, ch := range s.pending {
		ch <- reply{err: err}
		close(ch)
		delete(s.pending, id)
		n++
	}
	return n
}
