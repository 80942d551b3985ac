package ble

import "errors"

var (
	// ErrDeviceConnection is returned when opening the peripheral fails.
	ErrDeviceConnection = errors.New("ble: failed to connect to peripheral")

	// ErrRequiredEndpointMissing is returned when the intersection of a
	// protocol's declared endpoints and the peripheral's discovered
	// characteristics is empty for a required endpoint.
	ErrRequiredEndpointMissing = errors.New("ble: required endpoint not found on peripheral")

	// ErrInvalidEndpoint is returned by every runtime command against an
	// endpoint absent from the device's endpoint table.
	ErrInvalidEndpoint = errors.New("ble: invalid endpoint")

	// ErrDeviceNotConnected is returned by commands issued after the
	// adaptor has observed a central disconnect event for this device.
	ErrDeviceNotConnected = errors.New("ble: device not connected")
)
