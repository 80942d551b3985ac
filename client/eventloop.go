package client

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/RebelTat/buttplug/connector"
	"github.com/RebelTat/buttplug/message"
)

// clientRequest is the sum type the facade sends to the event loop (spec
// §4.2). Three shapes exist: a protocol message awaiting a reply, a
// handshake device list to fold into the registry, and a disconnect
// request.
type clientRequest interface {
	isClientRequest()
}

type msgRequest struct {
	msg   message.Message
	waker chan reply
}

func (*msgRequest) isClientRequest() {}

type handleDeviceListRequest struct {
	devices []message.DeviceInfo
}

func (*handleDeviceListRequest) isClientRequest() {}

type disconnectRequest struct {
	waker chan reply
	// silent skips the ServerDisconnect event, used when tearing down a
	// connect attempt that never reached the connected state and so
	// never emitted ServerConnect.
	silent bool
}

func (*disconnectRequest) isClientRequest() {}

// runLoop is the single cooperative task described in spec §4.2: sole
// mutable owner of the sorter and device registry for the lifetime of
// one connection. It exits either because disconnectRequest was
// processed or because the inbound channel closed (connector-closed).
func (c *Client) runLoop(conn connector.Connector, inbound <-chan message.Message) {
	srt := newSorter()
	defer close(c.loopDone)

	for {
		select {
		case req := <-c.requestCh:
			if c.handleClientRequest(srt, conn, req) {
				return
			}

		case msg, ok := <-inbound:
			if !ok {
				c.logger.Info("connector closed")
				if n := srt.failAll(newConnectorError(ConnectorChannelClosed, "connector closed")); n > 0 && c.metrics != nil {
					c.metrics.TransactionFail.Add(float64(n))
				}
				c.registry.clear()
				c.connected.Store(false)
				if c.metrics != nil {
					c.metrics.Disconnect.Inc()
				}
				c.bus.publish(Event{Kind: EventServerDisconnect})
				return
			}
			c.handleServerMessage(srt, msg)
		}
	}
}

// handleClientRequest processes one request from the facade. It returns
// true when the loop should exit.
func (c *Client) handleClientRequest(srt *sorter, conn connector.Connector, req clientRequest) bool {
	switch r := req.(type) {
	case *msgRequest:
		stamped := srt.register(r.msg, r.waker)
		if err := conn.Send(stamped); err != nil {
			srt.failOne(stamped.Id(), newConnectorError(ConnectorTransportSpecific, err.Error()))
			if c.metrics != nil {
				c.metrics.TransactionFail.Inc()
			}
		}
		return false

	case *handleDeviceListRequest:
		for _, info := range r.devices {
			d := newDevice(info, c.request)
			c.registry.add(d)
			c.bus.publish(Event{Kind: EventDeviceAdded, Device: d})
		}
		return false

	case *disconnectRequest:
		_ = conn.Disconnect()
		if n := srt.failAll(newConnectorError(ConnectorChannelClosed, "disconnect requested")); n > 0 && c.metrics != nil {
			c.metrics.TransactionFail.Add(float64(n))
		}
		c.registry.clear()
		if !r.silent {
			if c.metrics != nil {
				c.metrics.Disconnect.Inc()
			}
			c.bus.publish(Event{Kind: EventServerDisconnect})
		}
		if r.waker != nil {
			r.waker <- reply{}
		}
		return true

	default:
		panic(fmt.Sprintf("client: unrecognized request type %T", req))
	}
}

// handleServerMessage classifies an inbound message by id (spec §4.2).
func (c *Client) handleServerMessage(srt *sorter, msg message.Message) {
	if msg.Id() != 0 {
		if !srt.resolve(msg) {
			c.bus.publish(Event{Kind: EventError, Err: newProtocolError(ProtocolMessage, fmt.Sprintf("reply to unknown request id %d", msg.Id()))})
			return
		}
		if c.metrics != nil {
			c.metrics.Transaction.Inc()
		}
		return
	}

	switch m := msg.(type) {
	case *message.ScanningFinished:
		c.bus.publish(Event{Kind: EventScanningFinished})

	case *message.DeviceAdded:
		d := newDevice(m.DeviceInfo, c.request)
		c.registry.add(d)
		c.bus.publish(Event{Kind: EventDeviceAdded, Device: d})

	case *message.DeviceRemoved:
		d, ok := c.registry.remove(m.DeviceIndex)
		if ok {
			d.markRemoved()
			c.bus.publish(Event{Kind: EventDeviceRemoved, Device: d})
		}

	case *message.Error:
		c.bus.publish(Event{Kind: EventError, Err: m})

	default:
		c.logger.Warn("unsolicited message of unexpected type", zap.String("type", msg.MessageType()))
		c.bus.publish(Event{Kind: EventError, Err: newProtocolError(ProtocolUnknown, "unsolicited message of unexpected type: "+msg.MessageType())})
	}
}

// request sends msg to the event loop and blocks for its matching reply
// or a terminal connector error. It is shared by every facade operation
// that expects exactly one reply, and is also what a Device hands to its
// commands (spec §9's "cyclic reference" note: a device only gets a
// clone of the request sender, never the loop itself).
func (c *Client) request(msg message.Message) (message.Message, error) {
	waker := make(chan reply, 1)

	select {
	case c.requestCh <- &msgRequest{msg: msg, waker: waker}:
	case <-c.loopDone:
		return nil, newConnectorError(ConnectorChannelClosed, "event loop exited")
	}

	select {
	case r := <-waker:
		return r.msg, r.err
	case <-c.loopDone:
		return nil, newConnectorError(ConnectorChannelClosed, "event loop exited")
	}
}
