// Package transport abstracts a full-duplex, serialized-frame byte
// channel from the connector that sits above it. A Transport knows
// nothing about request/reply correlation or the message vocabulary; it
// only moves Frames and reports connection lifecycle events.
package transport

import (
	"context"

	"github.com/RebelTat/buttplug/connector/serializer"
)

// IncomingKind discriminates the events a Transport can deliver on its
// inbound channel.
type IncomingKind uint8

const (
	// IncomingFrame carries a decodable wire frame.
	IncomingFrame IncomingKind = iota
	// IncomingClose reports that the peer closed the connection in an
	// orderly fashion. Text carries a human-readable reason.
	IncomingClose
)

// Incoming is a single event delivered from a Transport to its owner.
type Incoming struct {
	Kind  IncomingKind
	Frame serializer.Frame
	Text  string
}

// Transport is the contract a connector composes with a Serializer. The
// websocket-server variant in the websocketserver subpackage satisfies
// it; the in-process connector uses no Transport at all.
type Transport interface {
	// Connect starts the transport. Every inbound frame or connection
	// event is forwarded on in. Connect returns once the transport is
	// ready to accept outbound Sends, or with an error if it could never
	// reach that state (e.g. a bind or upgrade failure).
	Connect(ctx context.Context, in chan<- Incoming) error

	// Send hands a single outbound frame to the transport. Send failure
	// means the transport should be considered closed; the caller is
	// responsible for tearing down and not reusing it.
	Send(frame serializer.Frame) error

	// Disconnect closes the transport in an orderly fashion. It is safe
	// to call Disconnect more than once.
	Disconnect() error
}
