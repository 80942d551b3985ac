package client

import (
	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultRequestQueueSize bounds the facade's internal request
	// channel to the event loop.
	DefaultRequestQueueSize = 256
)

// Options configures a Client. The zero value is not usable directly;
// construct via NewOptions, which applies the defaults above.
type Options struct {
	// ClientName identifies this client in the RequestServerInfo
	// handshake message.
	ClientName string

	// RequestQueueSize bounds the facade's request channel to the event
	// loop. If not supplied, DefaultRequestQueueSize is used.
	RequestQueueSize int

	// Logger receives structured logs from the client, event loop and
	// connector. If not supplied, a no-op logger is used.
	Logger *zap.Logger

	// Registerer receives the client's Prometheus metrics. If not
	// supplied, NewMetrics uses prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Option applies a configuration change to an Options value.
type Option func(*Options)

// WithClientName sets the name reported during handshake.
func WithClientName(name string) Option {
	return func(o *Options) { o.ClientName = name }
}

// WithRequestQueueSize overrides the facade's request channel capacity.
func WithRequestQueueSize(size int) Option {
	return func(o *Options) { o.RequestQueueSize = size }
}

// WithLogger overrides the client's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithRegisterer overrides the Prometheus registerer used for metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Options) { o.Registerer = reg }
}

// NewOptions builds an Options value with defaults, then applies opts in
// order.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		ClientName:       "buttplug-go-client",
		RequestQueueSize: DefaultRequestQueueSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

func (o *Options) requestQueueSize() int {
	if o.RequestQueueSize > 0 {
		return o.RequestQueueSize
	}
	return DefaultRequestQueueSize
}
