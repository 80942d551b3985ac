package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RebelTat/buttplug/message"
)

// fakeConnector is a connector.Connector whose Send is driven entirely by
// the test: every outbound message is recorded, and the test decides
// when and in what order replies land on inbound.
type fakeConnector struct {
	mu       sync.Mutex
	inbound  chan<- message.Message
	sent     []message.Message
	sendFunc func(message.Message) error
}

func (f *fakeConnector) Connect(_ context.Context, inbound chan<- message.Message) error {
	f.mu.Lock()
	f.inbound = inbound
	f.mu.Unlock()
	return nil
}

func (f *fakeConnector) Send(msg message.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	fn := f.sendFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(msg)
	}
	return nil
}

func (f *fakeConnector) Disconnect() error { return nil }

func (f *fakeConnector) deliver(msg message.Message) {
	f.mu.Lock()
	in := f.inbound
	f.mu.Unlock()
	in <- msg
}

func (f *fakeConnector) lastSent() message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

// autoHandshake replies ServerInfo/DeviceList to whatever the facade
// sends during Connect, matching each reply's id to the request's id.
func autoHandshake(fc *fakeConnector, devices []message.DeviceInfo) {
	fc.sendFunc = func(msg message.Message) error {
		go func() {
			switch msg.(type) {
			case *message.RequestServerInfo:
				reply := &message.ServerInfo{ServerName: "fake-server", SpecVersion: message.SpecVersion}
				reply.SetId(msg.Id())
				fc.deliver(reply)
			case *message.RequestDeviceList:
				reply := &message.DeviceList{Devices: devices}
				reply.SetId(msg.Id())
				fc.deliver(reply)
			}
		}()
		return nil
	}
}

func TestConnectHappyPath(t *testing.T) {
	require := require.New(t)

	fc := &fakeConnector{}
	autoHandshake(fc, []message.DeviceInfo{{Index: 1, Name: "Toy"}})

	c := New(WithRegisterer(nil))
	err := c.Connect(context.Background(), fc)
	require.NoError(err)
	require.True(c.Connected())
	require.Equal("fake-server", c.ServerName())

	require.Eventually(func() bool {
		return len(c.Devices()) == 1
	}, time.Second, time.Millisecond)
}

func TestConnectUnexpectedHandshakeReply(t *testing.T) {
	require := require.New(t)

	fc := &fakeConnector{}
	fc.sendFunc = func(msg message.Message) error {
		go func() {
			// Reply with something that is never a valid ServerInfo shape.
			reply := &message.Ok{}
			reply.SetId(msg.Id())
			fc.deliver(reply)
		}()
		return nil
	}

	c := New(WithRegisterer(nil))
	err := c.Connect(context.Background(), fc)
	require.Error(err)
	require.False(c.Connected())

	var protoErr *ProtocolError
	require.ErrorAs(err, &protoErr)
	require.Equal(ProtocolHandshake, protoErr.Kind)
}

func TestRequestReplyReorderingStillResolvesCorrectWaiter(t *testing.T) {
	require := require.New(t)

	fc := &fakeConnector{}
	autoHandshake(fc, nil)

	c := New(WithRegisterer(nil))
	require.NoError(c.Connect(context.Background(), fc))

	// From here on, respond to Ping/StartScanning out of order: the
	// second request issued gets its reply delivered first.
	var pending []message.Message
	var mu sync.Mutex
	fc.sendFunc = func(msg message.Message) error {
		mu.Lock()
		pending = append(pending, msg)
		mu.Unlock()
		return nil
	}

	type result struct {
		err error
	}
	r1 := make(chan result, 1)
	r2 := make(chan result, 1)

	go func() { r1 <- result{c.StartScanning()} }()
	go func() { r2 <- result{c.Ping()} }()

	require.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(pending) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	first, second := pending[0], pending[1]
	mu.Unlock()

	// Reply to the second request first.
	okSecond := &message.Ok{}
	okSecond.SetId(second.Id())
	fc.deliver(okSecond)

	okFirst := &message.Ok{}
	okFirst.SetId(first.Id())
	fc.deliver(okFirst)

	require.NoError((<-r1).err)
	require.NoError((<-r2).err)
}

func TestDisconnectRejectsWhenNotConnected(t *testing.T) {
	assert := assert.New(t)
	c := New(WithRegisterer(nil))

	err := c.Disconnect()
	assert.Error(err)

	var connErr *ConnectorError
	assert.ErrorAs(err, &connErr)
	assert.Equal(ConnectorNotConnected, connErr.Kind)
}

func TestConnectRejectsSecondConcurrentAttempt(t *testing.T) {
	require := require.New(t)

	fc := &fakeConnector{}
	blocked := make(chan struct{})
	fc.sendFunc = func(message.Message) error {
		<-blocked
		// Fail the handshake send once released so the first Connect
		// returns instead of waiting for a reply that never comes.
		return errors.New("send released")
	}

	c := New(WithRegisterer(nil))

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background(), fc) }()

	require.Eventually(func() bool {
		return c.connecting.Load()
	}, time.Second, time.Millisecond)

	err := c.Connect(context.Background(), &fakeConnector{})
	require.Error(err)
	var connErr *ConnectorError
	require.ErrorAs(err, &connErr)
	require.Equal(ConnectorAlreadyConnected, connErr.Kind)

	close(blocked)
	<-done
}

func TestConnectorClosedFailsOutstandingRequests(t *testing.T) {
	require := require.New(t)

	fc := &fakeConnector{}
	autoHandshake(fc, nil)

	c := New(WithRegisterer(nil))
	require.NoError(c.Connect(context.Background(), fc))

	fc.sendFunc = func(message.Message) error { return nil }

	done := make(chan error, 1)
	go func() { done <- c.Ping() }()

	// Wait until the Ping has reached the connector, so it is outstanding.
	require.Eventually(func() bool {
		_, ok := fc.lastSent().(*message.Ping)
		return ok
	}, time.Second, time.Millisecond)

	// Simulate the transport dying: close the inbound channel the
	// connector owns, exactly as Remote.pump would on transport close.
	fc.mu.Lock()
	close(fc.inbound)
	fc.mu.Unlock()

	err := <-done
	require.Error(err)
	var connErr *ConnectorError
	require.ErrorAs(err, &connErr)
	require.Equal(ConnectorChannelClosed, connErr.Kind)
}
