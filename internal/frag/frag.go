// Package frag implements the application-level fragmentation and
// reassembly protocol layered over the XBee API codec: a one-byte header
// prepended to every over-the-air payload, splitting outbound user frames
// into maxpacketsize-sized pieces and reassembling inbound pieces keyed by
// source address.
package frag

import (
	"time"

	"github.com/jgoerzen/xbnet/internal/xbnet"
)

// Header flag values, the low two bits of the application header byte.
const (
	FlagLast  byte = 0 // last or only fragment
	FlagMore  byte = 1 // more fragments follow
	FlagTurn  byte = 2 // last fragment, and the peer may now transmit
	flagMask       = 0x03
)

// Piece is one over-the-air payload: a header byte followed by up to
// maxPayload bytes of user data. Data[0] is always the header byte.
type Piece struct {
	Data []byte
}

// Header returns the piece's fragment/turn flag.
func (p Piece) Header() byte { return p.Data[0] & flagMask }

// Payload returns the piece's user-data bytes, excluding the header.
func (p Piece) Payload() []byte { return p.Data[1:] }

// Fragment splits payload into pieces of at most maxPayload data bytes
// each, per spec: every piece but the last carries FlagMore, the last
// carries FlagLast. A zero-length payload still yields exactly one piece.
// maxPayload must be >= 1.
func Fragment(payload []byte, maxPayload int) []Piece {
	if maxPayload < 1 {
		maxPayload = 1
	}

	n := 1
	if len(payload) > 0 {
		n = (len(payload) + maxPayload - 1) / maxPayload
	}

	pieces := make([]Piece, n)
	for i := 0; i < n; i++ {
		start := i * maxPayload
		end := start + maxPayload
		if end > len(payload) {
			end = len(payload)
		}
		flag := FlagMore
		if i == n-1 {
			flag = FlagLast
		}
		data := make([]byte, 0, 1+(end-start))
		data = append(data, flag)
		data = append(data, payload[start:end]...)
		pieces[i] = Piece{Data: data}
	}
	return pieces
}

// SetLastFlag overwrites the header flag of the final piece in pieces,
// used by the scheduler to promote a closing FlagLast into FlagTurn when
// offering the channel to the peer (spec §4.5).
func SetLastFlag(pieces []Piece, flag byte) {
	if len(pieces) == 0 {
		return
	}
	last := &pieces[len(pieces)-1]
	last.Data[0] = (last.Data[0] &^ flagMask) | (flag & flagMask)
}

type buffer struct {
	data     []byte
	deadline time.Time
}

// Reassembler holds in-progress per-source reassembly buffers and applies
// the eotwait discard rule.
type Reassembler struct {
	eotWait time.Duration
	bufs    map[xbnet.Address]*buffer
}

// New returns a Reassembler that discards a partial buffer if eotWait
// elapses between fragments without a closing piece.
func New(eotWait time.Duration) *Reassembler {
	return &Reassembler{
		eotWait: eotWait,
		bufs:    make(map[xbnet.Address]*buffer),
	}
}

// Accept folds one inbound piece into the reassembly state for src. It
// returns the completed frame and true when the piece closed a train
// (flag 0 or 2); turn reports whether the peer handed back the channel
// (flag 2). Each source has a single buffer and every piece's data is
// appended to it: if a source starts a new fragment train before the
// previous one closed or expired, the two are delivered joined as one
// frame rather than the older one being replaced.
func (r *Reassembler) Accept(src xbnet.Address, now time.Time, piece Piece) (frame []byte, delivered bool, turn bool) {
	flag := piece.Header()
	b, ok := r.bufs[src]
	if !ok {
		b = &buffer{}
		r.bufs[src] = b
	}
	b.data = append(b.data, piece.Payload()...)

	switch flag {
	case FlagMore:
		b.deadline = now.Add(r.eotWait)
		return nil, false, false
	case FlagTurn:
		out := b.data
		delete(r.bufs, src)
		return out, true, true
	default: // FlagLast
		out := b.data
		delete(r.bufs, src)
		return out, true, false
	}
}

// Pending reports whether any source currently has a reassembly in
// progress, used by the scheduler's eotwait-yielding rule (spec §4.5).
func (r *Reassembler) Pending() bool {
	return len(r.bufs) > 0
}

// ExpireBefore discards every buffer whose deadline has passed as of now,
// returning the sources that were dropped so the caller can log them.
func (r *Reassembler) ExpireBefore(now time.Time) []xbnet.Address {
	var expired []xbnet.Address
	for src, b := range r.bufs {
		if !b.deadline.IsZero() && !now.Before(b.deadline) {
			expired = append(expired, src)
			delete(r.bufs, src)
		}
	}
	return expired
}

// NextDeadline returns the earliest pending reassembly deadline and true,
// or the zero time and false if nothing is pending.
func (r *Reassembler) NextDeadline() (time.Time, bool) {
	var best time.Time
	found := false
	for _, b := range r.bufs {
		if b.deadline.IsZero() {
			continue
		}
		if !found || b.deadline.Before(best) {
			best = b.deadline
			found = true
		}
	}
	return best, found
}
