// Package client is the public entry point: the facade (spec §4.1), the
// single-owner event loop it spawns (spec §4.2), the message sorter
// (spec §4.3), the device registry, and the event bus. A Client is
// created once with New and reused across connect/disconnect cycles;
// each successful Connect spawns a fresh event loop and sorter.
package client

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RebelTat/buttplug/connector"
	"github.com/RebelTat/buttplug/message"
)

var (
	defaultMetricsOnce sync.Once
	defaultMetricsVal  *Metrics
)

// defaultMetrics lazily builds a single Metrics bundle registered against
// prometheus.DefaultRegisterer, shared by every Client constructed
// without an explicit WithRegisterer option, so creating multiple
// clients never trips a duplicate-registration panic.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetricsVal = NewMetrics(nil)
	})
	return defaultMetricsVal
}

// Client is the host application's handle onto a buttplug server,
// in-process or remote. The zero value is not usable; construct with
// New.
type Client struct {
	opts    *Options
	logger  *zap.Logger
	metrics *Metrics

	connected  atomic.Bool
	connecting atomic.Bool
	serverName atomic.Value

	registry *registry
	bus      *eventBus

	requestCh chan clientRequest
	loopDone  chan struct{}
}

// New constructs a disconnected Client.
func New(opts ...Option) *Client {
	o := NewOptions(opts...)

	var m *Metrics
	if o.Registerer != nil {
		m = NewMetrics(o.Registerer)
	} else {
		m = defaultMetrics()
	}

	return &Client{
		opts:     o,
		logger:   o.logger().Named("client"),
		metrics:  m,
		registry: newRegistry(),
		bus:      newEventBus(),
	}
}

// Connected reports the client's current connection state (spec §3).
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// ServerName returns the name reported by the server in the ServerInfo
// handshake reply, or "" before a successful connect.
func (c *Client) ServerName() string {
	name, _ := c.serverName.Load().(string)
	return name
}

// Devices returns a snapshot of the current device registry (spec §3,
// §4.1).
func (c *Client) Devices() []*Device {
	return c.registry.snapshot()
}

// DevicesETag identifies the current device set, changing on every
// DeviceAdded/DeviceRemoved. Callers polling Devices() can skip the
// snapshot copy when the etag hasn't moved.
func (c *Client) DevicesETag() uuid.UUID {
	return c.registry.ETag()
}

// EventStream returns an independent consumer of the event bus. Call
// Close on it when done.
func (c *Client) EventStream() *eventSubscription {
	return c.bus.subscribe()
}

// Connect installs conn, spawns the event loop, and performs the
// handshake (spec §4.1): RequestServerInfo, await ServerInfo, then
// RequestDeviceList. Rejects if already connected or a connect is
// already in progress (spec §9 supplemented single-flight guard).
func (c *Client) Connect(ctx context.Context, conn connector.Connector) error {
	if !c.connecting.CompareAndSwap(false, true) {
		return newConnectorError(ConnectorAlreadyConnected, "connect already in progress")
	}
	if c.connected.Load() {
		c.connecting.Store(false)
		return newConnectorError(ConnectorAlreadyConnected, "")
	}

	c.requestCh = make(chan clientRequest, c.opts.requestQueueSize())
	c.loopDone = make(chan struct{})
	inbound := make(chan message.Message, 64)

	if err := conn.Connect(ctx, inbound); err != nil {
		close(c.loopDone)
		c.connecting.Store(false)
		return newConnectorError(ConnectorTransportSpecific, err.Error())
	}

	go c.runLoop(conn, inbound)

	info, err := c.handshake()
	if err != nil {
		return c.abortConnect(err)
	}
	c.serverName.Store(info.ServerName)

	devices, err := c.requestDeviceList()
	if err != nil {
		return c.abortConnect(err)
	}

	c.connected.Store(true)
	c.connecting.Store(false)
	if c.metrics != nil {
		c.metrics.Connect.Inc()
	}
	c.bus.publish(Event{Kind: EventServerConnect})

	select {
	case c.requestCh <- &handleDeviceListRequest{devices: devices}:
	case <-c.loopDone:
	}

	return nil
}

func (c *Client) handshake() (*message.ServerInfo, error) {
	reply, err := c.request(&message.RequestServerInfo{
		ClientName:  c.opts.ClientName,
		SpecVersion: message.SpecVersion,
	})
	if err != nil {
		return nil, err
	}
	info, ok := reply.(*message.ServerInfo)
	if !ok {
		return nil, newProtocolError(ProtocolHandshake, "expected ServerInfo reply to RequestServerInfo")
	}
	return info, nil
}

func (c *Client) requestDeviceList() ([]message.DeviceInfo, error) {
	reply, err := c.request(&message.RequestDeviceList{})
	if err != nil {
		return nil, err
	}
	list, ok := reply.(*message.DeviceList)
	if !ok {
		return nil, newProtocolError(ProtocolHandshake, "expected DeviceList reply to RequestDeviceList")
	}
	return list.Devices, nil
}

// abortConnect tears down a connect attempt that failed before reaching
// the connected state, via the same teardown path disconnectRequest
// drives, and returns the original error unchanged.
func (c *Client) abortConnect(cause error) error {
	waker := make(chan reply, 1)
	select {
	case c.requestCh <- &disconnectRequest{waker: waker, silent: true}:
		<-waker
	case <-c.loopDone:
	}
	c.connecting.Store(false)
	return cause
}

// Disconnect rejects if not connected; otherwise it tears the connector
// down cooperatively and always ends disconnected, even on a failure
// path (spec §4.1).
func (c *Client) Disconnect() error {
	if !c.connected.Load() {
		return newConnectorError(ConnectorNotConnected, "")
	}

	waker := make(chan reply, 1)
	select {
	case c.requestCh <- &disconnectRequest{waker: waker}:
		<-waker
	case <-c.loopDone:
	}

	c.connected.Store(false)
	return nil
}

// StartScanning asks the server to begin device discovery.
func (c *Client) StartScanning() error {
	return c.simpleCommand(&message.StartScanning{})
}

// StopScanning asks the server to end device discovery.
func (c *Client) StopScanning() error {
	return c.simpleCommand(&message.StopScanning{})
}

// StopAllDevices is an emergency-stop broadcast.
func (c *Client) StopAllDevices() error {
	return c.simpleCommand(&message.StopAllDevices{})
}

// Ping keeps the session alive at the protocol level.
func (c *Client) Ping() error {
	if c.metrics != nil {
		c.metrics.Ping.Inc()
	}
	return c.simpleCommand(&message.Ping{})
}

// simpleCommand sends msg and expects an Ok reply; any other reply
// surfaces as a protocol error (spec §4.1).
func (c *Client) simpleCommand(msg message.Message) error {
	if !c.connected.Load() {
		return newConnectorError(ConnectorNotConnected, "")
	}

	reply, err := c.request(msg)
	if err != nil {
		return err
	}

	if _, ok := reply.(*message.Ok); ok {
		return nil
	}
	if errMsg, ok := reply.(*message.Error); ok {
		return newProtocolError(ProtocolMessage, errMsg.Error())
	}
	return newProtocolError(ProtocolMessage, "unexpected reply to "+msg.MessageType())
}
