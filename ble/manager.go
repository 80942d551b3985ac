package ble

import (
	"context"
	"sync"
	"time"

	goble "github.com/go-ble/ble"
	"go.uber.org/zap"

	"github.com/RebelTat/buttplug/message"
)

// ScanTimeout bounds a single advertisement-scan pass; StartScanning
// restarts scanning in a loop until StopScanning is called, matching the
// original's "scan until told to stop" contract rather than go-ble's
// single-shot default (spec §4.6).
const ScanTimeout = 30 * time.Second

// DeviceFactory constructs the platform HCI device go-ble scans and
// dials through. It is a var, not a call to a specific platform package,
// so callers link in whichever of go-ble's linux/darwin/msft packages
// matches their build and override this in tests.
var DeviceFactory = func() (goble.Device, error) {
	return nil, errNoDeviceFactory
}

var errNoDeviceFactory = errDeviceFactoryUnset{}

type errDeviceFactoryUnset struct{}

func (errDeviceFactoryUnset) Error() string {
	return "ble: DeviceFactory not set, import a github.com/go-ble/ble platform package and assign ble.DeviceFactory"
}

// Manager is the CommManager that discovers BLE peripherals matching a
// known set of protocols and reports them to a DeviceSink. It satisfies
// connector.CommManager structurally.
type Manager struct {
	sink      DeviceSink
	protocols []*ProtocolDefinition
	logger    *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	known     map[string]uint32 // peripheral address -> registered device index
	devices   map[string]*Device
	deviceOK  sync.Once
	deviceErr error
}

// NewManager builds a Manager that matches discovered peripherals
// against protocols, in order, using each ProtocolDefinition's
// ServiceUUID as the advertisement filter.
func NewManager(sink DeviceSink, logger *zap.Logger, protocols ...*ProtocolDefinition) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sink:      sink,
		protocols: protocols,
		logger:    logger.Named("ble.manager"),
		known:     make(map[string]uint32),
		devices:   make(map[string]*Device),
	}
}

func (m *Manager) Name() string { return "ble" }

// StartScanning begins an advertisement scan that runs until StopScanning
// is called or ctx is cancelled, connecting to and registering any
// peripheral advertising a known protocol's service UUID (spec §4.6).
func (m *Manager) StartScanning(ctx context.Context) error {
	m.deviceOK.Do(func() {
		dev, err := DeviceFactory()
		if err != nil {
			m.deviceErr = err
			return
		}
		goble.SetDefaultDevice(dev)
	})
	if m.deviceErr != nil {
		return m.deviceErr
	}

	scanCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		cancel()
		return nil // already scanning
	}
	m.cancel = cancel
	m.mu.Unlock()

	go m.scanLoop(scanCtx)
	return nil
}

func (m *Manager) StopScanning() error {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (m *Manager) scanLoop(ctx context.Context) {
	filter := func(a goble.Advertisement) bool {
		return m.matchProtocol(a) != nil
	}

	handler := func(a goble.Advertisement) {
		protocol := m.matchProtocol(a)
		if protocol == nil {
			return
		}
		go m.connectDiscovered(ctx, a.Addr().String(), protocol)
	}

	for ctx.Err() == nil {
		scanCtx, cancel := context.WithTimeout(ctx, ScanTimeout)
		err := goble.Scan(scanCtx, false, handler, filter)
		cancel()
		if err != nil && ctx.Err() == nil {
			m.logger.Warn("scan pass ended with error", zap.Error(err))
		}
	}
}

func (m *Manager) matchProtocol(a goble.Advertisement) *ProtocolDefinition {
	for _, svc := range a.Services() {
		for _, p := range m.protocols {
			if svc.Equal(p.ServiceUUID) {
				return p
			}
		}
	}
	return nil
}

func (m *Manager) connectDiscovered(ctx context.Context, address string, protocol *ProtocolDefinition) {
	m.mu.Lock()
	if _, ok := m.known[address]; ok {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	dev, err := Open(ctx, m.logger, address, protocol)
	if err != nil {
		m.logger.Warn("failed to open discovered peripheral", zap.String("address", address), zap.Error(err))
		return
	}

	idx := m.sink.AddDevice(protocol.Name, protocol.Capabilities)

	m.mu.Lock()
	m.known[address] = idx
	m.devices[address] = dev
	m.mu.Unlock()

	go m.watchRemoval(address, dev)
}

// watchRemoval deregisters the device as soon as the adaptor's event
// stream reports a central disconnect, then keeps draining the stream.
// If the stream ends without a removal, the device is forgotten locally
// but not reported to the sink.
func (m *Manager) watchRemoval(address string, dev *Device) {
	forget := func(report bool) {
		m.mu.Lock()
		idx, ok := m.known[address]
		delete(m.known, address)
		delete(m.devices, address)
		m.mu.Unlock()

		if report && ok {
			m.sink.RemoveDevice(idx)
		}
	}

	removed := false
	for evt := range dev.Events() {
		if evt.Kind == EventRemoved && !removed {
			removed = true
			forget(true)
		}
	}
	if !removed {
		forget(false)
	}
}
