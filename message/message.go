// Package message defines the minimal Buttplug protocol vocabulary the
// client core needs to construct requests and recognize replies. It is
// intentionally not a full validation engine: per-vendor protocols and the
// exhaustive message catalog are treated as the concern of layers above
// this client runtime.
package message

import "fmt"

// SpecVersion is the protocol vocabulary version this client negotiates at
// handshake time.
const SpecVersion = 2

// Endpoint is a protocol-level symbolic name for a device communication
// channel (tx, rx, txMode, txVibrate, battery, rssi, ...). The concrete
// mapping of an Endpoint to a transport-specific resource (a BLE
// characteristic, a serial line) is the adaptor's job.
type Endpoint string

// Capability enumerates the command categories a device may support.
type Capability string

const (
	CapabilityVibrate      Capability = "vibrate"
	CapabilityRotate       Capability = "rotate"
	CapabilityLinear       Capability = "linear"
	CapabilityBatteryRead  Capability = "battery-read"
	CapabilityRSSIRead     Capability = "rssi-read"
	CapabilityRawRead      Capability = "raw-read"
	CapabilityRawWrite     Capability = "raw-write"
	CapabilityRawSubscribe Capability = "raw-subscribe"
	CapabilityStop         Capability = "stop"
)

// AttributeDescriptor carries per-capability metadata about a device, such
// as the number of vibration motors or the step resolution of an actuator.
type AttributeDescriptor struct {
	FeatureCount uint32
	StepCount    []uint32
}

// DeviceInfo is the wire representation of a single device as reported by
// the server in a DeviceList or DeviceAdded message.
type DeviceInfo struct {
	Index        uint32
	Name         string
	Capabilities map[Capability]AttributeDescriptor
}

// Message is implemented by every request and reply in the vocabulary. Id
// is 0 for unsolicited server messages and assigned by the sorter for
// every client request.
type Message interface {
	Id() uint32
	SetId(uint32)
	MessageType() string
}

type base struct {
	ID uint32 `json:"Id"`
}

func (b *base) Id() uint32     { return b.ID }
func (b *base) SetId(id uint32) { b.ID = id }

// --- Requests ---

// RequestServerInfo is sent once at the start of a handshake.
type RequestServerInfo struct {
	base
	ClientName  string `json:"ClientName"`
	SpecVersion uint32 `json:"MessageVersion"`
}

func (m *RequestServerInfo) MessageType() string { return "RequestServerInfo" }

// Ping keeps the session alive at the protocol level.
type Ping struct{ base }

func (m *Ping) MessageType() string { return "Ping" }

// StartScanning asks the server to begin device discovery.
type StartScanning struct{ base }

func (m *StartScanning) MessageType() string { return "StartScanning" }

// StopScanning asks the server to end device discovery.
type StopScanning struct{ base }

func (m *StopScanning) MessageType() string { return "StopScanning" }

// StopAllDevices is an emergency-stop broadcast.
type StopAllDevices struct{ base }

func (m *StopAllDevices) MessageType() string { return "StopAllDevices" }

// RequestDeviceList asks the server for the current device roster.
type RequestDeviceList struct{ base }

func (m *RequestDeviceList) MessageType() string { return "RequestDeviceList" }

// VibrateCmd sets one or more vibration motor speeds on a device.
type VibrateCmd struct {
	base
	DeviceIndex uint32    `json:"DeviceIndex"`
	Speeds      []float64 `json:"Speeds"`
}

func (m *VibrateCmd) MessageType() string { return "VibrateCmd" }

// RotateCmd sets one or more rotation speeds and directions.
type RotateCmd struct {
	base
	DeviceIndex uint32 `json:"DeviceIndex"`
	Rotations   []struct {
		Speed     float64 `json:"Speed"`
		Clockwise bool    `json:"Clockwise"`
	} `json:"Rotations"`
}

func (m *RotateCmd) MessageType() string { return "RotateCmd" }

// LinearCmd drives one or more linear actuators to a position over a
// duration.
type LinearCmd struct {
	base
	DeviceIndex uint32 `json:"DeviceIndex"`
	Vectors     []struct {
		Position   float64 `json:"Position"`
		DurationMs uint32  `json:"Duration"`
	} `json:"Vectors"`
}

func (m *LinearCmd) MessageType() string { return "LinearCmd" }

// RawWriteCmd writes raw bytes to an endpoint.
type RawWriteCmd struct {
	base
	DeviceIndex  uint32   `json:"DeviceIndex"`
	Endpoint     Endpoint `json:"Endpoint"`
	Data         []byte   `json:"Data"`
	WriteWithResponse bool `json:"WriteWithResponse"`
}

func (m *RawWriteCmd) MessageType() string { return "RawWriteCmd" }

// RawReadCmd reads raw bytes from an endpoint.
type RawReadCmd struct {
	base
	DeviceIndex uint32   `json:"DeviceIndex"`
	Endpoint    Endpoint `json:"Endpoint"`
}

func (m *RawReadCmd) MessageType() string { return "RawReadCmd" }

// RawSubscribeCmd subscribes to notifications on an endpoint.
type RawSubscribeCmd struct {
	base
	DeviceIndex uint32   `json:"DeviceIndex"`
	Endpoint    Endpoint `json:"Endpoint"`
}

func (m *RawSubscribeCmd) MessageType() string { return "RawSubscribeCmd" }

// RawUnsubscribeCmd cancels a previous RawSubscribeCmd.
type RawUnsubscribeCmd struct {
	base
	DeviceIndex uint32   `json:"DeviceIndex"`
	Endpoint    Endpoint `json:"Endpoint"`
}

func (m *RawUnsubscribeCmd) MessageType() string { return "RawUnsubscribeCmd" }

// StopDeviceCmd stops a single device.
type StopDeviceCmd struct {
	base
	DeviceIndex uint32 `json:"DeviceIndex"`
}

func (m *StopDeviceCmd) MessageType() string { return "StopDeviceCmd" }

// --- Responses ---

// Ok acknowledges a request with no further data.
type Ok struct{ base }

func (m *Ok) MessageType() string { return "Ok" }

// ErrorCode classifies an Error reply.
type ErrorCode uint32

const (
	ErrorUnknown ErrorCode = iota
	ErrorInit
	ErrorPing
	ErrorMessage
	ErrorDevice
)

// Error is the server's generic failure reply, either paired to a request
// id or, when carrying id 0, delivered unsolicited to the event bus.
type Error struct {
	base
	ErrorMessage string    `json:"ErrorMessage"`
	ErrorCode    ErrorCode `json:"ErrorCode"`
}

func (m *Error) MessageType() string { return "Error" }

func (m *Error) Error() string {
	return fmt.Sprintf("server error %d: %s", m.ErrorCode, m.ErrorMessage)
}

// ServerInfo is the handshake reply.
type ServerInfo struct {
	base
	ServerName  string `json:"ServerName"`
	SpecVersion uint32 `json:"MessageVersion"`
	MaxPingTime uint32 `json:"MaxPingTime"`
}

func (m *ServerInfo) MessageType() string { return "ServerInfo" }

// DeviceList enumerates every device currently known to the server.
type DeviceList struct {
	base
	Devices []DeviceInfo `json:"Devices"`
}

func (m *DeviceList) MessageType() string { return "DeviceList" }

// DeviceAdded is an unsolicited notification of a newly discovered device.
type DeviceAdded struct {
	base
	DeviceInfo
}

func (m *DeviceAdded) MessageType() string { return "DeviceAdded" }

// DeviceRemoved is an unsolicited notification that a device disconnected.
type DeviceRemoved struct {
	base
	DeviceIndex uint32 `json:"DeviceIndex"`
}

func (m *DeviceRemoved) MessageType() string { return "DeviceRemoved" }

// ScanningFinished signals that every comm manager has ended its scan.
type ScanningFinished struct{ base }

func (m *ScanningFinished) MessageType() string { return "ScanningFinished" }

// RawReading is the reply to a RawReadCmd.
type RawReading struct {
	base
	DeviceIndex uint32   `json:"DeviceIndex"`
	Endpoint    Endpoint `json:"Endpoint"`
	Data        []byte   `json:"Data"`
}

func (m *RawReading) MessageType() string { return "RawReading" }
