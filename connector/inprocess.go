package connector

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/RebelTat/buttplug/message"
)

// CommManager is the scanning-capable backend a DeviceManagerServer
// delegates to. Only the BLE shape (the ble package) is implemented by
// this module; every other entry in spec §6's enumerated comm-manager
// set (serial, lovense-connect-service, lovense-hid-dongle,
// lovense-serial-dongle, xinput, websocket-device-server) is an external
// per-platform collaborator per spec §1's scope note. This interface
// exists so a caller can supply one without the in-process connector
// needing to know its concrete shape.
type CommManager interface {
	Name() string
	StartScanning(ctx context.Context) error
	StopScanning() error
}

// Server is what an InProcess connector calls directly instead of going
// through a serializer and byte transport (spec §4.4's in-process shape).
type Server interface {
	// Start begins the server's processing and arranges for every
	// message it produces thereafter to be delivered on out.
	Start(ctx context.Context, out chan<- message.Message) error

	// Handle processes one client->server message synchronously.
	Handle(msg message.Message) error

	// Stop tears the server down, including every comm manager it owns.
	Stop() error
}

// InProcess is the Connector whose "transport" is a direct function call
// into an embedded Server (spec §4.4). No serialization occurs.
type InProcess struct {
	server Server
	logger *zap.Logger

	cancel context.CancelFunc
}

// NewInProcess builds an InProcess connector around server.
func NewInProcess(server Server, logger *zap.Logger) *InProcess {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InProcess{server: server, logger: logger.Named("connector.inprocess")}
}

func (p *InProcess) Connect(ctx context.Context, inbound chan<- message.Message) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	return p.server.Start(runCtx, inbound)
}

func (p *InProcess) Send(msg message.Message) error {
	return p.server.Handle(msg)
}

func (p *InProcess) Disconnect() error {
	if p.cancel != nil {
		p.cancel()
	}
	return p.server.Stop()
}

// DeviceManagerServer is the reference Server: it answers the
// connection-management portion of the protocol (handshake, scanning,
// device list, stop-all) directly and delegates device discovery to its
// CommManagers. Translating an actuation command (VibrateCmd, ...) into
// the bytes a specific vendor device expects is a per-vendor protocol
// concern outside this module's scope (spec §1); DeviceManagerServer
// acknowledges those commands with Ok, matching the contract the event
// loop expects. It does not check that the target device index is
// registered.
type DeviceManagerServer struct {
	name         string
	commManagers []CommManager

	mu      sync.Mutex
	devices map[uint32]message.DeviceInfo
	nextIdx uint32

	out chan<- message.Message
}

// InProcessOption configures a DeviceManagerServer at construction, the
// idiomatic stand-in for the original's compile-time cfg-feature comm
// manager selection.
type InProcessOption func(*DeviceManagerServer)

// WithBLE registers a BLE comm manager.
func WithBLE(mgr CommManager) InProcessOption {
	return func(s *DeviceManagerServer) { s.commManagers = append(s.commManagers, mgr) }
}

// WithWebsocketDeviceServer registers a websocket-device-server comm
// manager (devices that themselves open a websocket connection to this
// process, distinct from the client-facing websocketserver transport).
func WithWebsocketDeviceServer(mgr CommManager) InProcessOption {
	return func(s *DeviceManagerServer) { s.commManagers = append(s.commManagers, mgr) }
}

// WithSerial registers a serial-port comm manager.
func WithSerial(mgr CommManager) InProcessOption {
	return func(s *DeviceManagerServer) { s.commManagers = append(s.commManagers, mgr) }
}

// WithLovenseConnectService registers the Lovense Connect HTTP service
// comm manager.
func WithLovenseConnectService(mgr CommManager) InProcessOption {
	return func(s *DeviceManagerServer) { s.commManagers = append(s.commManagers, mgr) }
}

// WithLovenseHIDDongle registers the Lovense HID dongle comm manager.
func WithLovenseHIDDongle(mgr CommManager) InProcessOption {
	return func(s *DeviceManagerServer) { s.commManagers = append(s.commManagers, mgr) }
}

// WithLovenseSerialDongle registers the Lovense serial dongle comm
// manager.
func WithLovenseSerialDongle(mgr CommManager) InProcessOption {
	return func(s *DeviceManagerServer) { s.commManagers = append(s.commManagers, mgr) }
}

// WithXInput registers the Windows-only XInput gamepad comm manager.
func WithXInput(mgr CommManager) InProcessOption {
	return func(s *DeviceManagerServer) { s.commManagers = append(s.commManagers, mgr) }
}

// NewDeviceManagerServer builds a server with the given name (reported
// in ServerInfo) and comm managers.
func NewDeviceManagerServer(name string, opts ...InProcessOption) *DeviceManagerServer {
	s := &DeviceManagerServer{
		name:    name,
		devices: make(map[uint32]message.DeviceInfo),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DeviceManagerServer) Start(ctx context.Context, out chan<- message.Message) error {
	s.mu.Lock()
	s.out = out
	s.mu.Unlock()
	return nil
}

func (s *DeviceManagerServer) Handle(msg message.Message) error {
	s.mu.Lock()
	out := s.out
	s.mu.Unlock()
	if out == nil {
		return ErrTransportClosed
	}

	reply := s.dispatch(msg)
	reply.SetId(msg.Id())
	out <- reply
	return nil
}

func (s *DeviceManagerServer) dispatch(msg message.Message) message.Message {
	switch m := msg.(type) {
	case *message.RequestServerInfo:
		return &message.ServerInfo{ServerName: s.name, SpecVersion: message.SpecVersion, MaxPingTime: 0}
	case *message.RequestDeviceList:
		s.mu.Lock()
		devices := make([]message.DeviceInfo, 0, len(s.devices))
		for _, d := range s.devices {
			devices = append(devices, d)
		}
		s.mu.Unlock()
		return &message.DeviceList{Devices: devices}
	case *message.StartScanning:
		for _, mgr := range s.commManagers {
			if err := mgr.StartScanning(context.Background()); err != nil {
				return &message.Error{ErrorCode: message.ErrorDevice, ErrorMessage: err.Error()}
			}
		}
		return &message.Ok{}
	case *message.StopScanning:
		for _, mgr := range s.commManagers {
			_ = mgr.StopScanning()
		}
		return &message.Ok{}
	case *message.Ping:
		return &message.Ok{}
	case *message.StopAllDevices,
		*message.VibrateCmd,
		*message.RotateCmd,
		*message.LinearCmd,
		*message.RawWriteCmd,
		*message.RawSubscribeCmd,
		*message.RawUnsubscribeCmd,
		*message.StopDeviceCmd:
		return &message.Ok{}
	case *message.RawReadCmd:
		return &message.RawReading{DeviceIndex: m.DeviceIndex, Endpoint: m.Endpoint}
	default:
		return &message.Error{ErrorCode: message.ErrorMessage, ErrorMessage: "unrecognized message"}
	}
}

// AddDevice registers a newly discovered device and emits DeviceAdded.
// CommManagers call this as they discover peripherals (it satisfies
// ble.DeviceSink).
func (s *DeviceManagerServer) AddDevice(name string, caps map[message.Capability]message.AttributeDescriptor) uint32 {
	s.mu.Lock()
	idx := s.nextIdx
	s.nextIdx++
	info := message.DeviceInfo{Index: idx, Name: name, Capabilities: caps}
	s.devices[idx] = info
	out := s.out
	s.mu.Unlock()

	if out != nil {
		out <- &message.DeviceAdded{DeviceInfo: info}
	}
	return idx
}

// RemoveDevice drops a device from the registry and emits DeviceRemoved.
func (s *DeviceManagerServer) RemoveDevice(idx uint32) {
	s.mu.Lock()
	delete(s.devices, idx)
	out := s.out
	s.mu.Unlock()

	if out != nil {
		out <- &message.DeviceRemoved{DeviceIndex: idx}
	}
}

func (s *DeviceManagerServer) Stop() error {
	for _, mgr := range s.commManagers {
		_ = mgr.StopScanning()
	}
	s.mu.Lock()
	s.out = nil
	s.mu.Unlock()
	return nil
}
