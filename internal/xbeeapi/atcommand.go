package xbeeapi

import (
	"fmt"

	"github.com/jgoerzen/xbnet/internal/xbnet"
)

// SendATCommand writes an AT command frame and returns the frame id used, so
// the caller can match it against a subsequently read ATCommandResponseFrame.
// Matching itself is the caller's job (the initializer during start-up,
// Scheduler.QueryAT once the scheduler owns the read loop); the codec does
// not block waiting for a response.
func (c *Codec) SendATCommand(name string, param []byte) (frameID byte, err error) {
	frameID = c.NextFrameID()
	err = c.WriteFrame(&ATCommandFrame{
		FrameID: frameID,
		Command: AT(name),
		Param:   param,
	})
	return frameID, err
}

// SendTransmitRequest writes a transmit request carrying data already
// prefixed with the fragmentation-layer application header (spec.md §4.2,
// §4.4). frameID 0 requests no transmit-status report, per spec.md §4.3 step
// 5's default behavior.
func (c *Codec) SendTransmitRequest(frameID byte, dest xbnet.Address, disableAck bool, data []byte) error {
	return c.WriteFrame(&TransmitRequestFrame{
		FrameID:         frameID,
		Dest:            dest,
		Dest16:          0xFFFE,
		BroadcastRadius: 0,
		DisableAck:      disableAck,
		Data:            data,
	})
}

// ValidateATResponse checks that a response matches the command it answers
// and carries an OK status, translating anything else into an InitFailure
// error (spec.md §4.3 step 3).
func ValidateATResponse(want string, resp *ATCommandResponseFrame) error {
	if resp.Command.String() != want {
		return xbnet.NewError(xbnet.InitFailure, fmt.Sprintf("expected response to AT%s, got AT%s", want, resp.Command), nil)
	}
	if resp.Status != StatusOK {
		return xbnet.NewError(xbnet.InitFailure, fmt.Sprintf("AT%s returned status %d", want, resp.Status), nil)
	}
	return nil
}
