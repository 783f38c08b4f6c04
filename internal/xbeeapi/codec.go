package xbeeapi

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/jgoerzen/xbnet/internal/xbnet"
)

// Codec frames and deframes the XBee API-mode envelope over a byte stream
// (spec.md §4.2). It owns no concurrency primitives of its own: callers
// serialize writes, and reads come from a single goroutine per spec.md §5.
type Codec struct {
	rd      *bufio.Reader
	wr      io.Writer
	log     *log.Logger
	frameID uint32
}

// New wraps a byte stream (normally an *serialport.Port) in the XBee API
// codec.
func New(rw io.ReadWriter, logger *log.Logger) *Codec {
	return &Codec{rd: bufio.NewReader(rw), wr: rw, log: logger}
}

// NextFrameID returns a monotonically incrementing, wrapping, never-zero
// frame id (spec.md §4.2). Frame id 0 conventionally suppresses a response
// and is used deliberately by callers that want that (e.g. data transmits
// when transmit-status reporting is disabled); NextFrameID itself never
// returns 0.
func (c *Codec) NextFrameID() byte {
	for {
		v := atomic.AddUint32(&c.frameID, 1)
		if b := byte(v); b != 0 {
			return b
		}
	}
}

// WriteFrame encodes and writes one logical frame (spec.md §4.2/§4.1).
func (c *Codec) WriteFrame(f Frame) error {
	payload, err := encodePayload(f)
	if err != nil {
		return err
	}
	if len(payload) > 0xFFFF {
		return xbnet.NewError(xbnet.OversizedUserFrame, fmt.Sprintf("payload of %d bytes exceeds 16-bit frame length", len(payload)), nil)
	}

	out := make([]byte, 0, 4+len(payload))
	out = append(out, frameDelimiter)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	out = append(out, lenBuf[:]...)
	out = append(out, payload...)
	out = append(out, checksum(payload))

	if _, err := c.wr.Write(out); err != nil {
		return xbnet.NewError(xbnet.SerialIO, "write frame", err)
	}
	return nil
}

func checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return 0xFF - sum
}

func encodePayload(f Frame) ([]byte, error) {
	switch fr := f.(type) {
	case *ATCommandFrame:
		buf := make([]byte, 0, 4+len(fr.Param))
		buf = append(buf, idATCommand, fr.FrameID, fr.Command[0], fr.Command[1])
		buf = append(buf, fr.Param...)
		return buf, nil
	case *TransmitRequestFrame:
		buf := make([]byte, 0, 14+len(fr.Data))
		buf = append(buf, idTransmitRequest, fr.FrameID)
		buf = append(buf, fr.Dest[:]...)
		var dest16 [2]byte
		binary.BigEndian.PutUint16(dest16[:], fr.Dest16)
		buf = append(buf, dest16[:]...)
		buf = append(buf, fr.BroadcastRadius)
		var options byte
		if fr.DisableAck {
			options |= 0x01
		}
		buf = append(buf, options)
		buf = append(buf, fr.Data...)
		return buf, nil
	case *ATCommandResponseFrame:
		buf := make([]byte, 0, 5+len(fr.Value))
		buf = append(buf, idATCommandResponse, fr.FrameID, fr.Command[0], fr.Command[1], byte(fr.Status))
		buf = append(buf, fr.Value...)
		return buf, nil
	case *TransmitStatusFrame:
		// Bytes 2..4 (16-bit address, retry count) are not modeled; zero
		// them, matching what classify() ignores on read. Byte 5 is the
		// delivery status; no discovery-status byte is written.
		return []byte{idTransmitStatus, fr.FrameID, 0, 0, 0, fr.DeliveryStatus}, nil
	case *ReceivePacketFrame:
		buf := make([]byte, 0, 12+len(fr.Data))
		buf = append(buf, idReceivePacket)
		buf = append(buf, fr.Source[:]...)
		var src16 [2]byte
		binary.BigEndian.PutUint16(src16[:], fr.Source16)
		buf = append(buf, src16[:]...)
		buf = append(buf, fr.Options)
		buf = append(buf, fr.Data...)
		return buf, nil
	default:
		return nil, fmt.Errorf("xbeeapi: cannot encode frame of type %T", f)
	}
}

// ReadFrame synchronizes on the start delimiter, reads the length-prefixed
// payload, verifies the checksum, and classifies the result. On a checksum
// mismatch it logs and resynchronizes internally rather than returning an
// error, per spec.md §4.2; callers only see a non-nil error for fatal
// (truncated read / closed port) conditions.
func (c *Codec) ReadFrame() (Frame, error) {
	for {
		b, err := c.rd.ReadByte()
		if err != nil {
			return nil, xbnet.NewError(xbnet.SerialIO, "read frame delimiter", err)
		}
		if b != frameDelimiter {
			continue
		}

		var lenBuf [2]byte
		if _, err := io.ReadFull(c.rd, lenBuf[:]); err != nil {
			return nil, xbnet.NewError(xbnet.SerialIO, "read frame length", err)
		}
		frameLen := int(binary.BigEndian.Uint16(lenBuf[:]))

		body := make([]byte, frameLen+1) // +1 for checksum
		if _, err := io.ReadFull(c.rd, body); err != nil {
			return nil, xbnet.NewError(xbnet.SerialIO, "read frame body", err)
		}

		payload, cksum := body[:frameLen], body[frameLen]
		if checksum(payload) != cksum {
			if c.log != nil {
				c.log.Debug("xbee: checksum mismatch, resynchronizing", "len", frameLen)
			}
			continue
		}

		frame, recognized := classify(payload)
		if !recognized {
			if c.log != nil {
				c.log.Debug("xbee: unrecognized or malformed API frame, dropping", "id", fmt.Sprintf("0x%02x", safeFirst(payload)))
			}
			continue
		}
		return frame, nil
	}
}

func safeFirst(b []byte) byte {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// classify decodes a payload into one of the known Frame types. It returns
// recognized=false both for a truncated/malformed payload and for an API
// identifier this package does not model (spec.md §4.2, "Unknown API id:
// log and drop") — in both cases ReadFrame drops the frame and resynchronizes
// rather than surfacing it.
func classify(payload []byte) (frame Frame, recognized bool) {
	if len(payload) == 0 {
		return nil, false
	}
	switch payload[0] {
	case idATCommand:
		if len(payload) < 4 {
			return nil, false
		}
		return &ATCommandFrame{
			FrameID: payload[1],
			Command: ATCommand{payload[2], payload[3]},
			Param:   append([]byte(nil), payload[4:]...),
		}, true
	case idTransmitRequest:
		if len(payload) < 14 {
			return nil, false
		}
		var dest xbnet.Address
		copy(dest[:], payload[2:10])
		return &TransmitRequestFrame{
			FrameID:         payload[1],
			Dest:            dest,
			Dest16:          binary.BigEndian.Uint16(payload[10:12]),
			BroadcastRadius: payload[12],
			DisableAck:      payload[13]&0x01 != 0,
			Data:            append([]byte(nil), payload[14:]...),
		}, true
	case idATCommandResponse:
		if len(payload) < 5 {
			return nil, false
		}
		return &ATCommandResponseFrame{
			FrameID: payload[1],
			Command: ATCommand{payload[2], payload[3]},
			Status:  CommandStatus(payload[4]),
			Value:   append([]byte(nil), payload[5:]...),
		}, true
	case idTransmitStatus:
		if len(payload) < 6 {
			return nil, false
		}
		return &TransmitStatusFrame{
			FrameID:        payload[1],
			DeliveryStatus: payload[5],
		}, true
	case idReceivePacket:
		if len(payload) < 12 {
			return nil, false
		}
		var src xbnet.Address
		copy(src[:], payload[1:9])
		return &ReceivePacketFrame{
			Source:   src,
			Source16: binary.BigEndian.Uint16(payload[9:11]),
			Options:  payload[11],
			Data:     append([]byte(nil), payload[12:]...),
		}, true
	default:
		return nil, false
	}
}
