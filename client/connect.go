package client

import (
	"github.com/RebelTat/buttplug/connector"
	"github.com/RebelTat/buttplug/connector/serializer"
	"github.com/RebelTat/buttplug/connector/transport/websocketserver"
)

// NewWebsocketServerConnector builds the Remote connector shape backed by
// the websocket-server transport (spec §4.5), wiring the transport's
// pong observer into this client's Pong metric without either package
// importing the other's types.
func (c *Client) NewWebsocketServerConnector(opts ...websocketserver.Option) connector.Connector {
	if c.metrics != nil {
		opts = append(opts, websocketserver.WithPongObserver(func() {
			c.metrics.Pong.Inc()
		}))
	}
	transport := websocketserver.New(c.logger, opts...)
	return connector.NewRemote(serializer.NewJSON(), transport, c.logger)
}
