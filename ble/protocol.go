package ble

import (
	goble "github.com/go-ble/ble"

	"github.com/RebelTat/buttplug/message"
)

// EndpointDefinition names one endpoint a protocol declares and the GATT
// characteristic UUID it expects to find it at.
type EndpointDefinition struct {
	Endpoint message.Endpoint
	UUID     goble.UUID
}

// ProtocolDefinition is the declared service/characteristic table a
// per-vendor protocol provides (spec §4.6, §1's "per-vendor device
// protocols" out-of-scope note: this module only consumes the table, it
// never decides what a given toy's endpoints mean). Every entry of
// RequiredEndpoints must resolve against the discovered peripheral or
// device creation fails (spec §3's endpoint table invariant).
type ProtocolDefinition struct {
	Name                string
	ServiceUUID         goble.UUID
	Endpoints           []EndpointDefinition
	RequiredEndpoints   []message.Endpoint
	Capabilities        map[message.Capability]message.AttributeDescriptor
}
