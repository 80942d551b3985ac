package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RebelTat/buttplug/message"
)

func TestJSONEncodeDecodeRoundTrip(t *testing.T) {
	var (
		require = require.New(t)
		s       = NewJSON()
		msg     = &message.RequestServerInfo{ClientName: "test-client", SpecVersion: message.SpecVersion}
	)
	msg.SetId(7)

	frame, err := s.Encode(msg)
	require.NoError(err)
	require.Equal(Text, frame.Kind)

	decoded, err := s.Decode(frame)
	require.NoError(err)
	require.Len(decoded, 1)

	got, ok := decoded[0].(*message.RequestServerInfo)
	require.True(ok)
	require.Equal(uint32(7), got.Id())
	require.Equal("test-client", got.ClientName)
}

func TestJSONDecodeBatchesMultipleMessages(t *testing.T) {
	require := require.New(t)
	s := NewJSON()

	ping := &message.Ping{}
	ping.SetId(1)
	ok := &message.Ok{}
	ok.SetId(2)

	pingFrame, err := s.Encode(ping)
	require.NoError(err)
	okFrame, err := s.Encode(ok)
	require.NoError(err)

	// Simulate a server batching two envelopes into one array frame by
	// concatenating their top-level JSON array contents.
	batched := Frame{Kind: Text, Data: []byte(
		string(pingFrame.Data[:len(pingFrame.Data)-1]) + "," + string(okFrame.Data[1:]),
	)}

	decoded, err := s.Decode(batched)
	require.NoError(err)
	require.Len(decoded, 2)
}

func TestJSONDecodeRejectsBinaryFrame(t *testing.T) {
	assert := assert.New(t)
	s := NewJSON()

	_, err := s.Decode(Frame{Kind: Binary, Data: []byte{0x01}})
	assert.Error(err)
}

func TestJSONDecodeUnknownMessageType(t *testing.T) {
	assert := assert.New(t)
	s := NewJSON()

	_, err := s.Decode(Frame{Kind: Text, Data: []byte(`[{"NotAKnownType":{}}]`)})
	assert.Error(err)
}
