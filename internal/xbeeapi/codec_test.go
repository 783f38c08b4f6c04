package xbeeapi

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/jgoerzen/xbnet/internal/xbnet"
)

// pipePair returns two codecs wired together by an in-memory duplex pipe,
// so tests exercise the real framing/read loop without a serial port.
func pipePair() (a, b *Codec) {
	c1, c2 := net.Pipe()
	return New(c1, nil), New(c2, nil)
}

func Test_TransmitRequest_roundtrip(t *testing.T) {
	a, b := pipePair()

	dest := xbnet.Address{0x00, 0x13, 0xA2, 0x00, 0x41, 0xAB, 0xCD, 0xEF}
	done := make(chan error, 1)
	go func() {
		done <- a.SendTransmitRequest(7, dest, false, []byte("hello\n"))
	}()

	frame, err := b.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)

	tr, ok := frame.(*TransmitRequestFrame)
	require.True(t, ok, "expected *TransmitRequestFrame, got %T", frame)
	assert.Equal(t, byte(7), tr.FrameID)
	assert.Equal(t, dest, tr.Dest)
	assert.Equal(t, uint16(0xFFFE), tr.Dest16)
	assert.Equal(t, []byte("hello\n"), tr.Data)
}

func Test_ReceivePacket_roundtrip(t *testing.T) {
	a, b := pipePair()

	src := xbnet.Address{1, 2, 3, 4, 5, 6, 7, 8}
	payload := []byte{idReceivePacket}
	payload = append(payload, src[:]...)
	payload = append(payload, 0xFF, 0xFE, 0x01)
	payload = append(payload, []byte("payload")...)

	encoded := make([]byte, 0)
	encoded = append(encoded, frameDelimiter, 0, byte(len(payload)))
	encoded = append(encoded, payload...)
	encoded = append(encoded, checksum(payload))

	go func() {
		_, _ = a.wr.Write(encoded)
	}()

	frame, err := b.ReadFrame()
	require.NoError(t, err)
	rp, ok := frame.(*ReceivePacketFrame)
	require.True(t, ok)
	assert.Equal(t, src, rp.Source)
	assert.Equal(t, uint16(0xFFFE), rp.Source16)
	assert.Equal(t, byte(0x01), rp.Options)
	assert.Equal(t, []byte("payload"), rp.Data)
}

// Test_Checksum_property is the API frame checksum property from spec.md
// §8: for every emitted frame, (sum(payload) + checksum) mod 256 == 0xFF.
func Test_Checksum_property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, 300).Draw(t, "payload")

		cksum := checksum(payload)

		var sum byte
		for _, b := range payload {
			sum += b
		}
		assert.Equal(t, byte(0xFF), sum+cksum)
	})
}

func Test_ChecksumMismatch_resynchronizes(t *testing.T) {
	a, b := pipePair()

	payload := []byte{idReceivePacket, 1, 2, 3, 4, 5, 6, 7, 8, 0xFF, 0xFE, 0}
	badFrame := make([]byte, 0)
	badFrame = append(badFrame, frameDelimiter, 0, byte(len(payload)))
	badFrame = append(badFrame, payload...)
	badFrame = append(badFrame, checksum(payload)^0xFF) // corrupt checksum

	src := xbnet.Address{9, 9, 9, 9, 9, 9, 9, 9}
	goodPayload := []byte{idReceivePacket}
	goodPayload = append(goodPayload, src[:]...)
	goodPayload = append(goodPayload, 0xFF, 0xFE, 0)
	goodFrame := make([]byte, 0)
	goodFrame = append(goodFrame, frameDelimiter, 0, byte(len(goodPayload)))
	goodFrame = append(goodFrame, goodPayload...)
	goodFrame = append(goodFrame, checksum(goodPayload))

	go func() {
		_, _ = a.wr.Write(badFrame)
		_, _ = a.wr.Write(goodFrame)
	}()

	frame, err := b.ReadFrame()
	require.NoError(t, err)
	rp, ok := frame.(*ReceivePacketFrame)
	require.True(t, ok)
	assert.Equal(t, src, rp.Source)
}
