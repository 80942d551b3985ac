package client

import (
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/RebelTat/buttplug/connector/transport/websocketserver"
)

// OptionsFromViper builds client Options from a Viper environment. Only
// clientName and requestQueueSize are client-level settings; a host
// application binds the rest of its own config the normal way and
// passes the result through the With* functional options.
func OptionsFromViper(v *viper.Viper) *Options {
	opts := []Option{}

	if v.IsSet("clientName") {
		opts = append(opts, WithClientName(v.GetString("clientName")))
	}
	if v.IsSet("requestQueueSize") {
		opts = append(opts, WithRequestQueueSize(cast.ToInt(v.Get("requestQueueSize"))))
	}

	return NewOptions(opts...)
}

// WebsocketServerOptionsFromViper binds spec §6's websocket-server
// transport configuration surface: {port, listen_on_all_interfaces}.
func WebsocketServerOptionsFromViper(v *viper.Viper) *websocketserver.Options {
	var opts []websocketserver.Option

	if v.IsSet("port") {
		opts = append(opts, websocketserver.WithPort(uint16(cast.ToUint(v.Get("port")))))
	}
	if v.IsSet("listenOnAllInterfaces") {
		opts = append(opts, websocketserver.WithListenOnAllInterfaces(v.GetBool("listenOnAllInterfaces")))
	}

	return websocketserver.NewOptions(opts...)
}
