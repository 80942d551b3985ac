// Package ble implements the BLE device adaptor (spec §4.6): it maps a
// protocol-defined symbolic endpoint namespace onto discovered GATT
// characteristics and exposes write/read/subscribe/unsubscribe plus a
// notification/disconnect event stream.
package ble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	goble "github.com/go-ble/ble"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RebelTat/buttplug/message"
)

// EventKind discriminates the values produced on a Device's event
// stream.
type EventKind uint8

const (
	EventNotification EventKind = iota
	EventRemoved
)

// Event is a single occurrence delivered from a Device's event task.
type Event struct {
	Kind     EventKind
	Address  string
	Endpoint message.Endpoint
	Data     []byte
}

// DeviceSink is the registry a Manager reports discovered/lost
// peripherals to. connector.DeviceManagerServer satisfies it.
type DeviceSink interface {
	AddDevice(name string, caps map[message.Capability]message.AttributeDescriptor) uint32
	RemoveDevice(index uint32)
}

// Device is the BLE adaptor for a single connected peripheral.
type Device struct {
	id       uuid.UUID
	address  string
	client   goble.Client
	protocol *ProtocolDefinition
	logger   *zap.Logger

	endpoints      map[message.Endpoint]*goble.Characteristic
	uuidToEndpoint map[string]message.Endpoint

	removed atomic.Bool

	events       chan Event
	rawNotify    chan rawNotification
	unmappedOnce sync.Once
}

type rawNotification struct {
	uuid goble.UUID
	data []byte
}

// matchEndpoints intersects a protocol's declared endpoint table against
// the characteristics actually discovered on a peripheral, returning an
// error if any RequiredEndpoints entry has no match. Split out from Open
// so the matching logic is testable without a real BLE dial.
func matchEndpoints(chars []*goble.Characteristic, protocol *ProtocolDefinition) (map[message.Endpoint]*goble.Characteristic, map[string]message.Endpoint, error) {
	endpoints := make(map[message.Endpoint]*goble.Characteristic)
	uuidToEndpoint := make(map[string]message.Endpoint)

	for _, decl := range protocol.Endpoints {
		for _, c := range chars {
			if c.UUID.Equal(decl.UUID) {
				endpoints[decl.Endpoint] = c
				uuidToEndpoint[decl.UUID.String()] = decl.Endpoint
				break
			}
		}
	}

	for _, required := range protocol.RequiredEndpoints {
		if _, ok := endpoints[required]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrRequiredEndpointMissing, required)
		}
	}

	return endpoints, uuidToEndpoint, nil
}

// Open connects to the peripheral at address, discovers characteristics,
// populates the endpoint table by intersecting protocol's declared
// service table with what the peripheral actually exposes, subscribes to
// notifications, and spawns the event task (spec §4.6, step 1-3).
func Open(ctx context.Context, logger *zap.Logger, address string, protocol *ProtocolDefinition) (*Device, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("ble").With(zap.String("address", address), zap.String("protocol", protocol.Name))

	client, err := goble.Dial(ctx, goble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceConnection, err)
	}

	services, err := client.DiscoverServices([]goble.UUID{protocol.ServiceUUID})
	if err != nil || len(services) == 0 {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("%w: discover services: %v", ErrDeviceConnection, err)
	}

	wanted := make([]goble.UUID, 0, len(protocol.Endpoints))
	for _, e := range protocol.Endpoints {
		wanted = append(wanted, e.UUID)
	}
	chars, err := client.DiscoverCharacteristics(wanted, services[0])
	if err != nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("%w: discover characteristics: %v", ErrDeviceConnection, err)
	}

	id := uuid.New()
	logger = logger.With(zap.String("adaptorId", id.String()))

	d := &Device{
		id:             id,
		address:        address,
		client:         client,
		protocol:       protocol,
		logger:         logger,
		endpoints:      make(map[message.Endpoint]*goble.Characteristic),
		uuidToEndpoint: make(map[string]message.Endpoint),
		events:         make(chan Event, 16),
		rawNotify:      make(chan rawNotification, 16),
	}

	endpoints, uuidToEndpoint, err := matchEndpoints(chars, protocol)
	if err != nil {
		_ = client.CancelConnection()
		return nil, err
	}
	d.endpoints = endpoints
	d.uuidToEndpoint = uuidToEndpoint

	for endpoint, c := range d.endpoints {
		if c.Property&goble.CharNotify == 0 && c.Property&goble.CharIndicate == 0 {
			continue
		}
		ep := endpoint
		if err := client.Subscribe(c, false, func(data []byte) {
			d.rawNotify <- rawNotification{uuid: c.UUID, data: append([]byte(nil), data...)}
		}); err != nil {
			logger.Warn("subscribe failed", zap.String("endpoint", string(ep)), zap.Error(err))
		}
	}

	go d.eventTask()
	return d, nil
}

// eventTask drives the notification stream and the peripheral's
// disconnect signal concurrently until the device is dropped (spec
// §4.6). It owns rawNotify and the disconnect watch exclusively.
func (d *Device) eventTask() {
	defer close(d.events)

	disconnected := d.client.Disconnected()

	for {
		select {
		case n, ok := <-d.rawNotify:
			if !ok {
				return
			}
			endpoint, known := d.uuidToEndpoint[n.uuid.String()]
			if !known {
				d.unmappedOnce.Do(func() {
					d.logger.Warn("notification from unmapped characteristic, peripheral likely disconnected", zap.String("uuid", n.uuid.String()))
				})
				continue
			}
			d.events <- Event{Kind: EventNotification, Address: d.address, Endpoint: endpoint, Data: n.data}

		case <-disconnected:
			d.removed.Store(true)
			d.events <- Event{Kind: EventRemoved, Address: d.address}
			disconnected = nil // leave the loop alive to drain remaining notifications
		}
	}
}

// Events returns the device's event stream.
func (d *Device) Events() <-chan Event {
	return d.events
}

// ID returns the adaptor instance's correlation id, generated once at
// Open and distinct from the server-assigned device index (which is
// only known once DeviceSink.AddDevice has run).
func (d *Device) ID() uuid.UUID {
	return d.id
}

// Write sends bytes to endpoint (spec §4.6 runtime commands).
func (d *Device) Write(endpoint message.Endpoint, data []byte, withResponse bool) error {
	c, ok := d.endpoints[endpoint]
	if !ok {
		return ErrInvalidEndpoint
	}
	if d.removed.Load() {
		return ErrDeviceNotConnected
	}
	return d.client.WriteCharacteristic(c, data, !withResponse)
}

// Read reads the current value of endpoint.
func (d *Device) Read(endpoint message.Endpoint) ([]byte, error) {
	c, ok := d.endpoints[endpoint]
	if !ok {
		return nil, ErrInvalidEndpoint
	}
	if d.removed.Load() {
		return nil, ErrDeviceNotConnected
	}
	return d.client.ReadCharacteristic(c)
}

// Subscribe enables notifications on endpoint.
func (d *Device) Subscribe(endpoint message.Endpoint) error {
	c, ok := d.endpoints[endpoint]
	if !ok {
		return ErrInvalidEndpoint
	}
	if d.removed.Load() {
		return ErrDeviceNotConnected
	}
	return d.client.Subscribe(c, false, func(data []byte) {
		d.rawNotify <- rawNotification{uuid: c.UUID, data: append([]byte(nil), data...)}
	})
}

// Unsubscribe disables notifications on endpoint.
func (d *Device) Unsubscribe(endpoint message.Endpoint) error {
	c, ok := d.endpoints[endpoint]
	if !ok {
		return ErrInvalidEndpoint
	}
	if d.removed.Load() {
		return ErrDeviceNotConnected
	}
	return d.client.Unsubscribe(c, false)
}

// Close tears the peripheral connection down.
func (d *Device) Close() error {
	return d.client.CancelConnection()
}
