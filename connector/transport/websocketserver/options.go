package websocketserver

import (
	"strconv"
	"time"
)

// Default configuration values for the websocket-server transport. These
// mirror spec §6's configuration surface and the 1s keepalive cadence of
// spec §4.5: a tick that sees zero pongs since the previous tick closes
// the connection immediately, after one grace tick at startup.
const (
	DefaultPort                 uint16        = 12345
	DefaultListenOnAllInterfaces bool          = false
	KeepaliveInterval           time.Duration = time.Second
)

// Options configures a Transport. The zero value is not usable directly;
// construct via NewOptions, which applies the defaults above.
type Options struct {
	// Port is the TCP port to listen on.
	Port uint16

	// ListenOnAllInterfaces selects 0.0.0.0 instead of 127.0.0.1 when true.
	ListenOnAllInterfaces bool

	// HandshakeTimeout bounds the websocket upgrade. Zero means no
	// timeout, matching gorilla's own default.
	HandshakeTimeout time.Duration

	// PongObserver, if set, is called once per pong frame received.
	// Callers use this to feed an external metrics counter without this
	// package importing one.
	PongObserver func()
}

// Option applies a configuration change to an Options value.
type Option func(*Options)

// WithPort overrides the listen port.
func WithPort(port uint16) Option {
	return func(o *Options) { o.Port = port }
}

// WithListenOnAllInterfaces toggles binding to every interface instead of
// loopback only.
func WithListenOnAllInterfaces(all bool) Option {
	return func(o *Options) { o.ListenOnAllInterfaces = all }
}

// WithHandshakeTimeout overrides the websocket upgrade timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) { o.HandshakeTimeout = d }
}

// WithPongObserver registers a callback invoked once per pong frame.
func WithPongObserver(observer func()) Option {
	return func(o *Options) { o.PongObserver = observer }
}

// NewOptions builds an Options value with spec-mandated defaults, then
// applies opts in order.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		Port:                  DefaultPort,
		ListenOnAllInterfaces: DefaultListenOnAllInterfaces,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Options) address() string {
	host := "127.0.0.1"
	if o.ListenOnAllInterfaces {
		host = "0.0.0.0"
	}
	return host + ":" + strconv.FormatUint(uint64(o.Port), 10)
}
