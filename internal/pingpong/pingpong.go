// Package pingpong implements the two diagnostic adapters of spec.md §4.8:
// ping, a periodic transmitter, and pong, an echo/receive-quality
// reflector. Both are built atop the fragmentation layer and scheduler
// unchanged — they are producers/consumers of user frames, not special
// cases inside sched.
package pingpong

import (
	"fmt"
	"time"

	"github.com/jgoerzen/xbnet/internal/xbeeapi"
	"github.com/jgoerzen/xbnet/internal/xbnet"
)

// Enqueuer is the subset of *sched.Scheduler the ping/pong adapters need
// to submit outbound user frames.
type Enqueuer interface {
	Enqueue(dest xbnet.Address, data []byte)
}

// Quality is the subset of *sched.Scheduler pong uses to ask the attached
// radio for its received-signal-strength register. QueryAT is routed
// through the scheduler's own single reader goroutine, so callers must
// invoke it from a goroutine other than the scheduler's Deliver callback.
type Quality interface {
	QueryAT(name string, param []byte) (*xbeeapi.ATCommandResponseFrame, error)
}

// Ping transmits "ping N" every interval (default 5s, spec.md §4.8),
// addressed to dest, until stop is closed.
func Ping(sched Enqueuer, dest xbnet.Address, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var n uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n++
			sched.Enqueue(dest, []byte(fmt.Sprintf("ping %d", n)))
		}
	}
}

// Work is one received frame awaiting a pong reply.
type Work struct {
	Src     xbnet.Address
	Payload []byte
}

// RunPong drains work (fed by the scheduler's Deliver callback) and
// transmits a reply for each: the original payload, plus RSSI when the
// firmware's receive-quality query succeeds. It must run on its own
// goroutine, separate from the scheduler's Run loop, since QueryAT blocks
// waiting for that loop to satisfy it.
func RunPong(sched Enqueuer, quality Quality, work <-chan Work, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case w := <-work:
			sched.Enqueue(w.Src, buildReply(quality, w.Payload))
		}
	}
}

func buildReply(quality Quality, received []byte) []byte {
	reply := append([]byte(nil), received...)
	if quality == nil {
		return reply
	}
	rssi, ok := queryRSSI(quality)
	if !ok {
		return reply
	}
	return append(reply, []byte(fmt.Sprintf(" rssi=%ddBm", rssi))...)
}

// queryRSSI issues the firmware's DB (received signal strength) AT
// command. DB reports signal strength as a positive attenuation byte;
// the actual RSSI is its negation, e.g. 0x28 -> -40 dBm.
func queryRSSI(quality Quality) (int, bool) {
	resp, err := quality.QueryAT("DB", nil)
	if err != nil || resp.Status != xbeeapi.StatusOK || len(resp.Value) == 0 {
		return 0, false
	}
	return -int(resp.Value[0]), true
}
