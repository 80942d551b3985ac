package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/RebelTat/buttplug/message"
)

// JSON implements Serializer using the wire format every Buttplug
// transport variant exchanges over Text frames: a JSON array containing
// one single-key object per message, the key being the message's type
// name.
type JSON struct{}

// NewJSON constructs a JSON serializer. There's no per-instance state;
// the constructor exists so callers have a uniform way to obtain a
// Serializer regardless of which implementation backs it.
func NewJSON() *JSON {
	return &JSON{}
}

func (JSON) Encode(msg message.Message) (Frame, error) {
	inner, err := json.Marshal(msg)
	if err != nil {
		return Frame{}, fmt.Errorf("serializer: encode %s: %w", msg.MessageType(), err)
	}

	wrapped := map[string]json.RawMessage{msg.MessageType(): inner}
	data, err := json.Marshal([]map[string]json.RawMessage{wrapped})
	if err != nil {
		return Frame{}, fmt.Errorf("serializer: encode %s: %w", msg.MessageType(), err)
	}

	return Frame{Kind: Text, Data: data}, nil
}

func (JSON) Decode(frame Frame) ([]message.Message, error) {
	if frame.Kind != Text {
		return nil, fmt.Errorf("serializer: binary frames are not part of the inbound vocabulary")
	}

	var envelopes []map[string]json.RawMessage
	if err := json.Unmarshal(frame.Data, &envelopes); err != nil {
		return nil, fmt.Errorf("serializer: decode: %w", err)
	}

	out := make([]message.Message, 0, len(envelopes))
	for _, envelope := range envelopes {
		for msgType, raw := range envelope {
			msg, err := decodeOne(msgType, raw)
			if err != nil {
				return nil, err
			}
			out = append(out, msg)
		}
	}

	return out, nil
}

func decodeOne(msgType string, raw json.RawMessage) (message.Message, error) {
	var msg message.Message
	switch msgType {
	case "RequestServerInfo":
		msg = new(message.RequestServerInfo)
	case "Ping":
		msg = new(message.Ping)
	case "StartScanning":
		msg = new(message.StartScanning)
	case "StopScanning":
		msg = new(message.StopScanning)
	case "StopAllDevices":
		msg = new(message.StopAllDevices)
	case "RequestDeviceList":
		msg = new(message.RequestDeviceList)
	case "VibrateCmd":
		msg = new(message.VibrateCmd)
	case "RotateCmd":
		msg = new(message.RotateCmd)
	case "LinearCmd":
		msg = new(message.LinearCmd)
	case "RawWriteCmd":
		msg = new(message.RawWriteCmd)
	case "RawReadCmd":
		msg = new(message.RawReadCmd)
	case "RawSubscribeCmd":
		msg = new(message.RawSubscribeCmd)
	case "RawUnsubscribeCmd":
		msg = new(message.RawUnsubscribeCmd)
	case "StopDeviceCmd":
		msg = new(message.StopDeviceCmd)
	case "Ok":
		msg = new(message.Ok)
	case "Error":
		msg = new(message.Error)
	case "ServerInfo":
		msg = new(message.ServerInfo)
	case "DeviceList":
		msg = new(message.DeviceList)
	case "DeviceAdded":
		msg = new(message.DeviceAdded)
	case "DeviceRemoved":
		msg = new(message.DeviceRemoved)
	case "ScanningFinished":
		msg = new(message.ScanningFinished)
	case "RawReading":
		msg = new(message.RawReading)
	default:
		return nil, fmt.Errorf("serializer: unknown message type %q", msgType)
	}

	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("serializer: decode %s: %w", msgType, err)
	}

	return msg, nil
}
