// Package sched implements the half-duplex transmit/receive scheduler:
// inter-packet pacing (txwait), reassembly yielding (eotwait), and the
// txslot turn-taking protocol (spec.md §4.5, §5, §9). A single Scheduler
// owns the codec and the reassembly table; state mutation happens only
// inside Run's loop, so the struct is passed by explicit reference rather
// than kept in package-level storage.
package sched

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jgoerzen/xbnet/internal/frag"
	"github.com/jgoerzen/xbnet/internal/xbeeapi"
	"github.com/jgoerzen/xbnet/internal/xbnet"
)

// Deliver is called with a fully reassembled user frame and its XBee
// source whenever one arrives.
type Deliver func(src xbnet.Address, userFrame []byte)

// Config bundles the scheduler's timing and framing parameters.
type Config struct {
	MaxPayload int
	// Pack, when set, drains additional same-destination frames already
	// queued on Enqueue and concatenates them onto the one being sent
	// before fragmenting, per spec.md §4.4.
	Pack             bool
	TxWait           time.Duration
	EotWait          time.Duration
	TxSlot           time.Duration
	DisableAck       bool
	RequestTxReports bool
}

type sendRequest struct {
	dest xbnet.Address
	data []byte
}

// Scheduler drives the codec's read loop and a producer-fed send queue
// under the pacing/turn-taking rules of spec.md §4.5.
type Scheduler struct {
	codec   *xbeeapi.Codec
	cfg     Config
	local   xbnet.Address
	log     *log.Logger
	reasm   *frag.Reassembler
	deliver Deliver

	sendCh chan sendRequest

	lastTxTime  time.Time
	txSlotStart time.Time
	peerHasTurn bool
	turnWaitEnd time.Time

	reportFrameID uint32

	atWaitersMu sync.Mutex
	atWaiters   map[byte]chan *xbeeapi.ATCommandResponseFrame
}

// New constructs a Scheduler. deliver is invoked synchronously from Run's
// goroutine whenever a user frame completes reassembly.
func New(codec *xbeeapi.Codec, local xbnet.Address, cfg Config, deliver Deliver, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Scheduler{
		codec:     codec,
		cfg:       cfg,
		local:     local,
		log:       logger,
		reasm:     frag.New(cfg.EotWait),
		deliver:   deliver,
		sendCh:    make(chan sendRequest, 64),
		atWaiters: make(map[byte]chan *xbeeapi.ATCommandResponseFrame),
	}
}

// Enqueue submits a user frame for transmission to dest. It blocks if the
// send queue is full, providing natural backpressure to the adapter.
func (s *Scheduler) Enqueue(dest xbnet.Address, data []byte) {
	s.sendCh <- sendRequest{dest: dest, data: data}
}

// drainPack implements --pack (spec.md §4.4, §8): further frames already
// queued for first's destination are concatenated onto it before
// fragmentation, so a run of small writes shares fragment pieces instead
// of each paying its own header; Fragment still caps every piece at
// MaxPayload bytes regardless of the combined length. A frame queued for
// a different destination is put back rather than merged (spec.md §9:
// pack may only coalesce frames sharing a destination) and draining
// stops there, preserving per-destination wire order.
func (s *Scheduler) drainPack(first sendRequest) sendRequest {
	data := append([]byte(nil), first.data...)
	for {
		select {
		case req := <-s.sendCh:
			if req.dest != first.dest {
				s.sendCh <- req
				return sendRequest{dest: first.dest, data: data}
			}
			data = append(data, req.data...)
		default:
			return sendRequest{dest: first.dest, data: data}
		}
	}
}

type inboundEvent struct {
	frame xbeeapi.Frame
	err   error
}

// Run drives the cooperative event loop until the codec's read side
// returns a fatal error (spec.md §5: serial port bytes, send-queue
// entries, and timer expirations are the three event sources). It
// returns that fatal error, or nil once stop has been closed and every
// frame already queued at that point has been transmitted.
func (s *Scheduler) Run(stop <-chan struct{}) error {
	inbound := make(chan inboundEvent, 16)
	go s.readLoop(inbound)

	var held *sendRequest
	draining := false

	for {
		if held != nil && s.turnFree() {
			s.transmitUserFrame(held.dest, held.data)
			held = nil
			continue
		}
		if draining && held == nil && len(s.sendCh) == 0 {
			return nil
		}

		timer, armed := s.nextTimer()

		sendCh := s.sendCh
		if held != nil {
			sendCh = nil // turn not free yet: don't dequeue another request
		}

		select {
		case <-stop:
			// Accept no further stop signal; keep sending what is queued.
			draining = true
			stop = nil

		case ev := <-inbound:
			if ev.err != nil {
				return ev.err
			}
			s.handleInbound(ev.frame)

		case req := <-sendCh:
			if s.cfg.Pack {
				req = s.drainPack(req)
			}
			held = &req

		case <-timerC(timer, armed):
			s.onTimer()
		}
	}
}

// turnFree reports whether this side may transmit now: either txslot
// turn-taking is inactive, or no turn has been offered away.
func (s *Scheduler) turnFree() bool {
	return s.turnWaitEnd.IsZero() || !time.Now().Before(s.turnWaitEnd) || !s.peerHasTurn
}

func (s *Scheduler) readLoop(out chan<- inboundEvent) {
	for {
		frame, err := s.codec.ReadFrame()
		if err != nil {
			out <- inboundEvent{err: err}
			return
		}
		out <- inboundEvent{frame: frame}
	}
}

// nextTimer returns the earliest of the pending reassembly deadlines and
// the turn-reclaim deadline, if any are armed.
func (s *Scheduler) nextTimer() (time.Time, bool) {
	best, ok := s.reasm.NextDeadline()
	if !s.turnWaitEnd.IsZero() {
		if !ok || s.turnWaitEnd.Before(best) {
			best, ok = s.turnWaitEnd, true
		}
	}
	return best, ok
}

func timerC(deadline time.Time, armed bool) <-chan time.Time {
	if !armed {
		return nil
	}
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	return time.After(d)
}

func (s *Scheduler) onTimer() {
	now := time.Now()
	for _, src := range s.reasm.ExpireBefore(now) {
		s.log.Debug("reassembly timeout, discarding partial frame", "source", src.String())
	}
	if !s.turnWaitEnd.IsZero() && !now.Before(s.turnWaitEnd) {
		s.log.Warn("peer did not return turn in time, reclaiming")
		s.peerHasTurn = false
		s.turnWaitEnd = time.Time{}
	}
}

func (s *Scheduler) handleInbound(f xbeeapi.Frame) {
	now := time.Now()
	switch fr := f.(type) {
	case *xbeeapi.ReceivePacketFrame:
		if fr.Source == s.local {
			return // self-loopback guard, spec.md §4.6
		}
		// Any traffic from the peer counts as the turn being returned
		// while we're waiting on one we offered away, not only a piece
		// that explicitly carries flag 2 back (spec.md §4.5, §8 scenario 4:
		// "A ... blocks further transmits until B sends a frame (with any
		// flag)").
		if s.peerHasTurn {
			s.peerHasTurn = false
			s.turnWaitEnd = time.Time{}
		}
		if len(fr.Data) == 0 {
			return
		}
		piece := frag.Piece{Data: fr.Data}
		userFrame, delivered, turnRequested := s.reasm.Accept(fr.Source, now, piece)
		if turnRequested && len(s.sendCh) == 0 {
			s.transmitUserFrame(fr.Source, nil)
		}
		if delivered && s.deliver != nil {
			s.deliver(fr.Source, userFrame)
		}
	case *xbeeapi.TransmitStatusFrame:
		if s.cfg.RequestTxReports {
			s.log.Info("transmit status", "frameId", fr.FrameID, "status", fr.DeliveryStatus)
		}
	case *xbeeapi.ATCommandResponseFrame:
		s.deliverATResponse(fr)
	}
}

// deliverATResponse hands an AT response to whatever QueryAT call is
// waiting on its frame id, if any; an unmatched response (e.g. one
// arriving after QueryAT timed out) is dropped.
func (s *Scheduler) deliverATResponse(fr *xbeeapi.ATCommandResponseFrame) {
	s.atWaitersMu.Lock()
	ch, ok := s.atWaiters[fr.FrameID]
	if ok {
		delete(s.atWaiters, fr.FrameID)
	}
	s.atWaitersMu.Unlock()
	if ok {
		ch <- fr
	}
}

// QueryAT issues an AT command and waits for its response, routed through
// the same single reader goroutine as every other inbound frame. It must
// be called from a goroutine other than Run's own (e.g. a pingpong
// worker), never from within a Deliver callback, to avoid deadlocking
// against the loop that would otherwise satisfy the wait.
func (s *Scheduler) QueryAT(name string, param []byte) (*xbeeapi.ATCommandResponseFrame, error) {
	frameID, err := s.codec.SendATCommand(name, param)
	if err != nil {
		return nil, err
	}

	ch := make(chan *xbeeapi.ATCommandResponseFrame, 1)
	s.atWaitersMu.Lock()
	s.atWaiters[frameID] = ch
	s.atWaitersMu.Unlock()

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(s.cfg.TxWait + s.cfg.EotWait + time.Second):
		s.atWaitersMu.Lock()
		delete(s.atWaiters, frameID)
		s.atWaitersMu.Unlock()
		return nil, xbnet.NewError(xbnet.InitFailure, fmt.Sprintf("AT%s query timed out", name), nil)
	}
}

// transmitUserFrame paces, fragments, and sends one user frame, applying
// the txslot turn-offer rule to its final piece.
func (s *Scheduler) transmitUserFrame(dest xbnet.Address, data []byte) {
	pieces := frag.Fragment(data, s.cfg.MaxPayload)

	if s.cfg.TxSlot > 0 {
		if s.txSlotStart.IsZero() {
			s.txSlotStart = time.Now()
		}
		if time.Since(s.txSlotStart) >= s.cfg.TxSlot {
			frag.SetLastFlag(pieces, frag.FlagTurn)
			s.txSlotStart = time.Time{}
			s.peerHasTurn = true
			s.turnWaitEnd = time.Now().Add(s.cfg.TxWait + s.cfg.EotWait)
		}
	}

	for _, p := range pieces {
		s.pace()
		s.yieldForReassembly()
		s.writePiece(dest, p)
	}

	if s.cfg.TxSlot > 0 && len(s.sendCh) == 0 {
		s.txSlotStart = time.Time{}
	}
}

func (s *Scheduler) pace() {
	if s.lastTxTime.IsZero() {
		return
	}
	if wait := s.cfg.TxWait - time.Since(s.lastTxTime); wait > 0 {
		time.Sleep(wait)
	}
}

func (s *Scheduler) yieldForReassembly() {
	if !s.reasm.Pending() {
		return
	}
	deadline := time.Now().Add(s.cfg.EotWait)
	for s.reasm.Pending() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
		s.reasm.ExpireBefore(time.Now())
	}
}

func (s *Scheduler) writePiece(dest xbnet.Address, p frag.Piece) {
	frameID := byte(0)
	if s.cfg.RequestTxReports {
		s.reportFrameID++
		frameID = byte(s.reportFrameID%0xFE) + 1
	}
	if err := s.codec.SendTransmitRequest(frameID, dest, s.cfg.DisableAck, p.Data); err != nil {
		s.log.Debug("transmit failed", "error", err)
	}
	s.lastTxTime = time.Now()
}
