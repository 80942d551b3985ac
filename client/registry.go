package client

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"

	"github.com/RebelTat/buttplug/message"
)

// Device is the per-device command surface handed to callers (spec §4's
// "device handle" component). It filters commands by capability and
// fails every command once the server has reported the device removed.
type Device struct {
	index        uint32
	name         string
	capabilities map[message.Capability]message.AttributeDescriptor

	removed atomic.Bool
	send    func(message.Message) (message.Message, error)
}

func newDevice(info message.DeviceInfo, send func(message.Message) (message.Message, error)) *Device {
	return &Device{
		index:        info.Index,
		name:         info.Name,
		capabilities: info.Capabilities,
		send:         send,
	}
}

// Index returns the server-assigned device index.
func (d *Device) Index() uint32 { return d.index }

// Name returns the device's display name.
func (d *Device) Name() string { return d.name }

// HasCapability reports whether this device declared support for cap.
func (d *Device) HasCapability(cap message.Capability) bool {
	_, ok := d.capabilities[cap]
	return ok
}

// Attributes returns the descriptor for cap, if the device supports it.
func (d *Device) Attributes(cap message.Capability) (message.AttributeDescriptor, bool) {
	attr, ok := d.capabilities[cap]
	return attr, ok
}

var errInvalidEndpoint = newProtocolError(ProtocolDevice, "unsupported capability")

// Vibrate sends a VibrateCmd with the given per-motor speeds.
func (d *Device) Vibrate(speeds []float64) error {
	if !d.HasCapability(message.CapabilityVibrate) {
		return errInvalidEndpoint
	}
	return d.command(&message.VibrateCmd{DeviceIndex: d.index, Speeds: speeds})
}

// Rotation is one motor's speed/direction pair for a RotateCmd.
type Rotation struct {
	Speed     float64
	Clockwise bool
}

// Rotate sends a RotateCmd with the given per-motor rotations.
func (d *Device) Rotate(rotations []Rotation) error {
	if !d.HasCapability(message.CapabilityRotate) {
		return errInvalidEndpoint
	}
	cmd := &message.RotateCmd{DeviceIndex: d.index}
	for _, r := range rotations {
		cmd.Rotations = append(cmd.Rotations, struct {
			Speed     float64 `json:"Speed"`
			Clockwise bool    `json:"Clockwise"`
		}{Speed: r.Speed, Clockwise: r.Clockwise})
	}
	return d.command(cmd)
}

// LinearMove is one actuator's target position/duration pair for a
// LinearCmd.
type LinearMove struct {
	Position   float64
	DurationMs uint32
}

// Linear sends a LinearCmd driving one or more linear actuators.
func (d *Device) Linear(moves []LinearMove) error {
	if !d.HasCapability(message.CapabilityLinear) {
		return errInvalidEndpoint
	}
	cmd := &message.LinearCmd{DeviceIndex: d.index}
	for _, mv := range moves {
		cmd.Vectors = append(cmd.Vectors, struct {
			Position   float64 `json:"Position"`
			DurationMs uint32  `json:"Duration"`
		}{Position: mv.Position, DurationMs: mv.DurationMs})
	}
	return d.command(cmd)
}

// RawWrite writes raw bytes to endpoint, requiring the raw-write
// capability (spec §3's capability set).
func (d *Device) RawWrite(endpoint message.Endpoint, data []byte, withResponse bool) error {
	if !d.HasCapability(message.CapabilityRawWrite) {
		return errInvalidEndpoint
	}
	return d.command(&message.RawWriteCmd{
		DeviceIndex:       d.index,
		Endpoint:          endpoint,
		Data:              data,
		WriteWithResponse: withResponse,
	})
}

// RawRead reads raw bytes from endpoint, requiring the raw-read
// capability. Unlike the other command methods, the server's reply
// carries the read data rather than a bare Ok, so RawRead goes through
// d.send directly instead of d.command.
func (d *Device) RawRead(endpoint message.Endpoint) ([]byte, error) {
	if !d.HasCapability(message.CapabilityRawRead) {
		return nil, errInvalidEndpoint
	}
	if d.removed.Load() {
		return nil, newConnectorError(ConnectorNotConnected, "device no longer connected")
	}
	reply, err := d.send(&message.RawReadCmd{DeviceIndex: d.index, Endpoint: endpoint})
	if err != nil {
		return nil, err
	}
	reading, ok := reply.(*message.RawReading)
	if !ok {
		if errMsg, ok := reply.(*message.Error); ok {
			return nil, newProtocolError(ProtocolDevice, errMsg.Error())
		}
		return nil, newProtocolError(ProtocolMessage, "unexpected reply to RawReadCmd")
	}
	return reading.Data, nil
}

// RawSubscribe enables notifications on endpoint, requiring the
// raw-subscribe capability.
func (d *Device) RawSubscribe(endpoint message.Endpoint) error {
	if !d.HasCapability(message.CapabilityRawSubscribe) {
		return errInvalidEndpoint
	}
	return d.command(&message.RawSubscribeCmd{DeviceIndex: d.index, Endpoint: endpoint})
}

// RawUnsubscribe cancels a previous RawSubscribe. It shares the
// raw-subscribe capability gate since unsubscribing is only meaningful
// for an endpoint that could have been subscribed to.
func (d *Device) RawUnsubscribe(endpoint message.Endpoint) error {
	if !d.HasCapability(message.CapabilityRawSubscribe) {
		return errInvalidEndpoint
	}
	return d.command(&message.RawUnsubscribeCmd{DeviceIndex: d.index, Endpoint: endpoint})
}

// Stop sends a StopDeviceCmd for this device alone.
func (d *Device) Stop() error {
	return d.command(&message.StopDeviceCmd{DeviceIndex: d.index})
}

func (d *Device) command(msg message.Message) error {
	if d.removed.Load() {
		return newConnectorError(ConnectorNotConnected, "device no longer connected")
	}
	reply, err := d.send(msg)
	if err != nil {
		return err
	}
	if _, ok := reply.(*message.Ok); !ok {
		if errMsg, ok := reply.(*message.Error); ok {
			return newProtocolError(ProtocolDevice, errMsg.Error())
		}
		return newProtocolError(ProtocolMessage, "unexpected reply to device command")
	}
	return nil
}

// markRemoved flips the device into its permanently-invalid state (spec
// §3). Only the event loop calls this.
func (d *Device) markRemoved() {
	d.removed.Store(true)
}

// registry maps device index to handle (spec §3). Mutated only by the
// event loop goroutine; devices() snapshot reads are safe for concurrent
// callers because entries are replaced atomically and the map itself is
// guarded by a mutex solely to make that snapshot read race-free, not to
// arbitrate writers.
type registry struct {
	mu      sync.RWMutex
	devices map[uint32]*Device
	etag    uuid.UUID
}

func newRegistry() *registry {
	return &registry{devices: make(map[uint32]*Device), etag: uuid.New()}
}

func (r *registry) add(d *Device) {
	r.mu.Lock()
	r.devices[d.index] = d
	r.etag = uuid.New()
	r.mu.Unlock()
}

func (r *registry) remove(index uint32) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[index]
	if !ok {
		return nil, false
	}
	delete(r.devices, index)
	r.etag = uuid.New()
	return d, true
}

func (r *registry) get(index uint32) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[index]
	return d, ok
}

// snapshot returns every currently registered device.
func (r *registry) snapshot() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Values(r.devices)
}

// ETag identifies the current device set. It changes on every add/remove
// so a caller can cheaply detect "nothing changed" between two calls to
// Devices without diffing the slice.
func (r *registry) ETag() uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.etag
}

func (r *registry) clear() {
	r.mu.Lock()
	r.devices = make(map[uint32]*Device)
	r.etag = uuid.New()
	r.mu.Unlock()
}
