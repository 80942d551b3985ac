// Package serializer encodes and decodes protocol messages to and from
// wire frames. Transports are frame-kind agnostic: they move Text or
// Binary frames without knowing what's inside them.
package serializer

import "github.com/RebelTat/buttplug/message"

// FrameKind identifies the wire representation of a serialized frame.
type FrameKind uint8

const (
	// Text carries UTF-8 encoded text, which may hold more than one
	// message (see Serializer.Decode).
	Text FrameKind = iota
	// Binary is reserved for an alternate encoding. Inbound Binary frames
	// are not currently part of the vocabulary (see spec's open question
	// on binary-frame direction); this type exists so a Serializer can
	// produce one symmetrically if a future codec needs it.
	Binary
)

// Frame is a serialized message paired with the frame kind it should be
// sent as.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Serializer turns protocol messages into wire Frames and back.
// Implementations must be safe for concurrent Encode/Decode calls made
// from different goroutines (a connector's write side and read side).
type Serializer interface {
	// Encode serializes a single message into a Frame ready to hand to a
	// Transport.
	Encode(msg message.Message) (Frame, error)

	// Decode parses a Frame back into one or more messages. The protocol
	// allows the server to batch multiple messages into a single frame,
	// so Decode returns a slice.
	Decode(frame Frame) ([]message.Message, error)
}
