package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RebelTat/buttplug/message"
)

func TestRegistryAddGetRemove(t *testing.T) {
	var (
		require = require.New(t)
		reg     = newRegistry()
		info    = message.DeviceInfo{Index: 1, Name: "Toy"}
		dev     = newDevice(info, nil)
	)

	reg.add(dev)

	got, ok := reg.get(1)
	require.True(ok)
	require.Equal(dev, got)

	removed, ok := reg.remove(1)
	require.True(ok)
	require.Equal(dev, removed)

	_, ok = reg.get(1)
	require.False(ok)
}

func TestRegistrySnapshotIsIndependentOfLiveMap(t *testing.T) {
	require := require.New(t)
	reg := newRegistry()
	reg.add(newDevice(message.DeviceInfo{Index: 1}, nil))
	reg.add(newDevice(message.DeviceInfo{Index: 2}, nil))

	snap := reg.snapshot()
	require.Len(snap, 2)

	reg.add(newDevice(message.DeviceInfo{Index: 3}, nil))
	require.Len(snap, 2, "snapshot must not observe later mutations")
}

func TestRegistryETagChangesOnMutation(t *testing.T) {
	assert := assert.New(t)
	reg := newRegistry()

	before := reg.ETag()
	reg.add(newDevice(message.DeviceInfo{Index: 1}, nil))
	after := reg.ETag()

	assert.NotEqual(before, after)

	reg.clear()
	assert.NotEqual(after, reg.ETag())
}

func TestDeviceVibrateRejectsMissingCapability(t *testing.T) {
	assert := assert.New(t)
	dev := newDevice(message.DeviceInfo{Index: 1, Capabilities: nil}, func(message.Message) (message.Message, error) {
		t.Fatal("send should not be called when capability is missing")
		return nil, nil
	})

	err := dev.Vibrate([]float64{0.5})
	assert.ErrorIs(err, errInvalidEndpoint)
}

func TestDeviceCommandFailsAfterRemoved(t *testing.T) {
	assert := assert.New(t)
	dev := newDevice(message.DeviceInfo{Index: 1}, func(message.Message) (message.Message, error) {
		t.Fatal("send should not be called on a removed device")
		return nil, nil
	})
	dev.markRemoved()

	err := dev.Stop()
	assert.Error(err)

	var connErr *ConnectorError
	assert.ErrorAs(err, &connErr)
	assert.Equal(ConnectorNotConnected, connErr.Kind)
}

func TestDeviceRotateRejectsMissingCapability(t *testing.T) {
	assert := assert.New(t)
	dev := newDevice(message.DeviceInfo{Index: 1}, func(message.Message) (message.Message, error) {
		t.Fatal("send should not be called when capability is missing")
		return nil, nil
	})

	err := dev.Rotate([]Rotation{{Speed: 0.5, Clockwise: true}})
	assert.ErrorIs(err, errInvalidEndpoint)
}

func TestDeviceRotateSendsRotateCmd(t *testing.T) {
	require := require.New(t)
	dev := newDevice(message.DeviceInfo{
		Index:        2,
		Capabilities: map[message.Capability]message.AttributeDescriptor{message.CapabilityRotate: {FeatureCount: 1}},
	}, func(msg message.Message) (message.Message, error) {
		cmd, ok := msg.(*message.RotateCmd)
		require.True(ok)
		require.Equal(uint32(2), cmd.DeviceIndex)
		require.Len(cmd.Rotations, 1)
		require.Equal(0.5, cmd.Rotations[0].Speed)
		require.True(cmd.Rotations[0].Clockwise)
		return &message.Ok{}, nil
	})

	require.NoError(dev.Rotate([]Rotation{{Speed: 0.5, Clockwise: true}}))
}

func TestDeviceLinearRejectsMissingCapability(t *testing.T) {
	assert := assert.New(t)
	dev := newDevice(message.DeviceInfo{Index: 1}, func(message.Message) (message.Message, error) {
		t.Fatal("send should not be called when capability is missing")
		return nil, nil
	})

	err := dev.Linear([]LinearMove{{Position: 1, DurationMs: 500}})
	assert.ErrorIs(err, errInvalidEndpoint)
}

func TestDeviceLinearSendsLinearCmd(t *testing.T) {
	require := require.New(t)
	dev := newDevice(message.DeviceInfo{
		Index:        3,
		Capabilities: map[message.Capability]message.AttributeDescriptor{message.CapabilityLinear: {FeatureCount: 1}},
	}, func(msg message.Message) (message.Message, error) {
		cmd, ok := msg.(*message.LinearCmd)
		require.True(ok)
		require.Equal(uint32(3), cmd.DeviceIndex)
		require.Len(cmd.Vectors, 1)
		require.Equal(1.0, cmd.Vectors[0].Position)
		require.Equal(uint32(500), cmd.Vectors[0].DurationMs)
		return &message.Ok{}, nil
	})

	require.NoError(dev.Linear([]LinearMove{{Position: 1, DurationMs: 500}}))
}

func TestDeviceRawWriteRejectsMissingCapability(t *testing.T) {
	assert := assert.New(t)
	dev := newDevice(message.DeviceInfo{Index: 1}, func(message.Message) (message.Message, error) {
		t.Fatal("send should not be called when capability is missing")
		return nil, nil
	})

	err := dev.RawWrite("tx", []byte{0x01}, true)
	assert.ErrorIs(err, errInvalidEndpoint)
}

func TestDeviceRawWriteSendsRawWriteCmd(t *testing.T) {
	require := require.New(t)
	dev := newDevice(message.DeviceInfo{
		Index:        4,
		Capabilities: map[message.Capability]message.AttributeDescriptor{message.CapabilityRawWrite: {}},
	}, func(msg message.Message) (message.Message, error) {
		cmd, ok := msg.(*message.RawWriteCmd)
		require.True(ok)
		require.Equal(uint32(4), cmd.DeviceIndex)
		require.Equal(message.Endpoint("tx"), cmd.Endpoint)
		require.Equal([]byte{0x01, 0x02}, cmd.Data)
		require.True(cmd.WriteWithResponse)
		return &message.Ok{}, nil
	})

	require.NoError(dev.RawWrite("tx", []byte{0x01, 0x02}, true))
}

func TestDeviceRawReadRejectsMissingCapability(t *testing.T) {
	assert := assert.New(t)
	dev := newDevice(message.DeviceInfo{Index: 1}, func(message.Message) (message.Message, error) {
		t.Fatal("send should not be called when capability is missing")
		return nil, nil
	})

	_, err := dev.RawRead("rx")
	assert.ErrorIs(err, errInvalidEndpoint)
}

func TestDeviceRawReadReturnsReadingData(t *testing.T) {
	require := require.New(t)
	dev := newDevice(message.DeviceInfo{
		Index:        5,
		Capabilities: map[message.Capability]message.AttributeDescriptor{message.CapabilityRawRead: {}},
	}, func(msg message.Message) (message.Message, error) {
		cmd, ok := msg.(*message.RawReadCmd)
		require.True(ok)
		require.Equal(message.Endpoint("rx"), cmd.Endpoint)
		return &message.RawReading{DeviceIndex: cmd.DeviceIndex, Endpoint: cmd.Endpoint, Data: []byte{0x09}}, nil
	})

	data, err := dev.RawRead("rx")
	require.NoError(err)
	require.Equal([]byte{0x09}, data)
}

func TestDeviceRawReadFailsAfterRemoved(t *testing.T) {
	assert := assert.New(t)
	dev := newDevice(message.DeviceInfo{
		Index:        5,
		Capabilities: map[message.Capability]message.AttributeDescriptor{message.CapabilityRawRead: {}},
	}, func(message.Message) (message.Message, error) {
		t.Fatal("send should not be called on a removed device")
		return nil, nil
	})
	dev.markRemoved()

	_, err := dev.RawRead("rx")
	assert.Error(err)

	var connErr *ConnectorError
	assert.ErrorAs(err, &connErr)
	assert.Equal(ConnectorNotConnected, connErr.Kind)
}

func TestDeviceRawSubscribeAndUnsubscribeRejectMissingCapability(t *testing.T) {
	assert := assert.New(t)
	dev := newDevice(message.DeviceInfo{Index: 1}, func(message.Message) (message.Message, error) {
		t.Fatal("send should not be called when capability is missing")
		return nil, nil
	})

	assert.ErrorIs(dev.RawSubscribe("rx"), errInvalidEndpoint)
	assert.ErrorIs(dev.RawUnsubscribe("rx"), errInvalidEndpoint)
}

func TestDeviceRawSubscribeSendsRawSubscribeCmd(t *testing.T) {
	require := require.New(t)
	dev := newDevice(message.DeviceInfo{
		Index:        6,
		Capabilities: map[message.Capability]message.AttributeDescriptor{message.CapabilityRawSubscribe: {}},
	}, func(msg message.Message) (message.Message, error) {
		cmd, ok := msg.(*message.RawSubscribeCmd)
		require.True(ok)
		require.Equal(message.Endpoint("rx"), cmd.Endpoint)
		return &message.Ok{}, nil
	})

	require.NoError(dev.RawSubscribe("rx"))
}

func TestDeviceRawUnsubscribeSendsRawUnsubscribeCmd(t *testing.T) {
	require := require.New(t)
	dev := newDevice(message.DeviceInfo{
		Index:        6,
		Capabilities: map[message.Capability]message.AttributeDescriptor{message.CapabilityRawSubscribe: {}},
	}, func(msg message.Message) (message.Message, error) {
		cmd, ok := msg.(*message.RawUnsubscribeCmd)
		require.True(ok)
		require.Equal(message.Endpoint("rx"), cmd.Endpoint)
		return &message.Ok{}, nil
	})

	require.NoError(dev.RawUnsubscribe("rx"))
}

func TestDeviceCommandSurfacesServerError(t *testing.T) {
	assert := assert.New(t)
	dev := newDevice(message.DeviceInfo{
		Index:        1,
		Capabilities: map[message.Capability]message.AttributeDescriptor{message.CapabilityVibrate: {FeatureCount: 1}},
	}, func(message.Message) (message.Message, error) {
		return &message.Error{ErrorCode: message.ErrorDevice, ErrorMessage: "nope"}, nil
	})

	err := dev.Vibrate([]float64{1})
	assert.Error(err)

	var protoErr *ProtocolError
	assert.ErrorAs(err, &protoErr)
	assert.Equal(ProtocolDevice, protoErr.Kind)
}
