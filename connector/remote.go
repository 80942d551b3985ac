package connector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/RebelTat/buttplug/connector/serializer"
	"github.com/RebelTat/buttplug/connector/transport"
	"github.com/RebelTat/buttplug/message"
)

// ErrTransportClosed is returned by Send once the remote connector has
// observed the transport close.
var ErrTransportClosed = errors.New("connector: transport closed")

// Remote is the network-facing Connector shape (spec §4.4): a Serializer
// paired with a byte-stream Transport, typically the websocket-server
// transport.
type Remote struct {
	serializer serializer.Serializer
	transport  transport.Transport
	logger     *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRemote builds a Remote connector from a serializer and transport. Both
// must be non-nil.
func NewRemote(s serializer.Serializer, t transport.Transport, logger *zap.Logger) *Remote {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remote{
		serializer: s,
		transport:  t,
		logger:     logger.Named("connector.remote"),
	}
}

func (r *Remote) Connect(ctx context.Context, inbound chan<- message.Message) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	incoming := make(chan transport.Incoming, 16)
	if err := r.transport.Connect(runCtx, incoming); err != nil {
		cancel()
		return fmt.Errorf("connector: transport connect: %w", err)
	}

	r.done = make(chan struct{})
	go r.pump(runCtx, incoming, inbound)
	return nil
}

// pump decodes every inbound frame and forwards the resulting messages.
// It exits when the transport reports a close or the context is
// cancelled, closing both r.done and inbound; pump is inbound's only
// writer, so the event loop sees the close and treats it as a
// connector-closed condition (spec scenario E).
func (r *Remote) pump(ctx context.Context, incoming <-chan transport.Incoming, inbound chan<- message.Message) {
	defer close(r.done)
	defer close(inbound)

	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-incoming:
			if !ok {
				return
			}
			switch evt.Kind {
			case transport.IncomingClose:
				r.logger.Info("transport closed", zap.String("reason", evt.Text))
				return
			case transport.IncomingFrame:
				msgs, err := r.serializer.Decode(evt.Frame)
				if err != nil {
					r.logger.Warn("decode failed, dropping frame", zap.Error(err))
					continue
				}
				for _, msg := range msgs {
					select {
					case inbound <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}
}

func (r *Remote) Send(msg message.Message) error {
	frame, err := r.serializer.Encode(msg)
	if err != nil {
		return fmt.Errorf("connector: encode %s: %w", msg.MessageType(), err)
	}
	if err := r.transport.Send(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return nil
}

func (r *Remote) Disconnect() error {
	if r.cancel != nil {
		r.cancel()
	}
	return r.transport.Disconnect()
}
