// Package connector composes a Serializer with a Transport (or, for the
// in-process shape, bypasses serialization entirely) to offer the client
// event loop a uniform message-in/message-out contract (spec §4.4).
package connector

import (
	"context"

	"github.com/RebelTat/buttplug/message"
)

// Connector is what the event loop holds after a successful connect. It
// knows nothing about request/reply correlation; that's the sorter's job
// one layer up.
type Connector interface {
	// Connect starts the underlying transport (or, for an in-process
	// connector, the embedded server) and arranges for every decoded
	// inbound message to be delivered on inbound. Connect returns once
	// the connector is ready to accept Sends.
	Connect(ctx context.Context, inbound chan<- message.Message) error

	// Send serializes (if applicable) and hands off a single outbound
	// message.
	Send(msg message.Message) error

	// Disconnect closes the connector in an orderly fashion. Safe to call
	// more than once.
	Disconnect() error
}
