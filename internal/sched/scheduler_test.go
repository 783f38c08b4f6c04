package sched

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoerzen/xbnet/internal/frag"
	"github.com/jgoerzen/xbnet/internal/xbeeapi"
	"github.com/jgoerzen/xbnet/internal/xbnet"
)

func pipeCodecs() (a, b *xbeeapi.Codec) {
	c1, c2 := net.Pipe()
	return xbeeapi.New(c1, nil), xbeeapi.New(c2, nil)
}

func Test_Scheduler_sendsSingleFragment(t *testing.T) {
	local := xbnet.Address{1}
	dest := xbnet.Address{2}
	a, peer := pipeCodecs()

	s := New(a, local, Config{MaxPayload: 200, TxWait: 0, EotWait: 10 * time.Millisecond}, nil, nil)
	stop := make(chan struct{})
	defer close(stop)
	go s.Run(stop)

	s.Enqueue(dest, []byte("hello\n"))

	frame, err := peer.ReadFrame()
	require.NoError(t, err)
	tr, ok := frame.(*xbeeapi.TransmitRequestFrame)
	require.True(t, ok)
	assert.Equal(t, dest, tr.Dest)
	require.Len(t, tr.Data, 7)
	assert.Equal(t, frag.FlagLast, tr.Data[0]&0x03)
	assert.Equal(t, []byte("hello\n"), tr.Data[1:])
}

func Test_Scheduler_deliversReassembledFrame(t *testing.T) {
	local := xbnet.Address{1}
	src := xbnet.Address{9}
	a, peer := pipeCodecs()

	delivered := make(chan []byte, 1)
	s := New(a, local, Config{MaxPayload: 4, EotWait: 50 * time.Millisecond}, func(from xbnet.Address, frame []byte) {
		assert.Equal(t, src, from)
		delivered <- frame
	}, nil)
	stop := make(chan struct{})
	defer close(stop)
	go s.Run(stop)

	for _, p := range frag.Fragment([]byte("hello world"), 4) {
		require.NoError(t, peer.WriteFrame(&xbeeapi.ReceivePacketFrame{
			Source: src, Source16: 0xFFFE, Options: 1, Data: p.Data,
		}))
	}

	select {
	case frame := <-delivered:
		assert.Equal(t, []byte("hello world"), frame)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func Test_Scheduler_selfLoopbackDropped(t *testing.T) {
	local := xbnet.Address{1}
	a, peer := pipeCodecs()

	delivered := make(chan []byte, 1)
	s := New(a, local, Config{MaxPayload: 200, EotWait: 10 * time.Millisecond}, func(from xbnet.Address, frame []byte) {
		delivered <- frame
	}, nil)
	stop := make(chan struct{})
	defer close(stop)
	go s.Run(stop)

	require.NoError(t, peer.WriteFrame(&xbeeapi.ReceivePacketFrame{
		Source: local, Source16: 0xFFFE, Options: 1, Data: []byte{frag.FlagLast, 'x'},
	}))

	select {
	case <-delivered:
		t.Fatal("self-addressed frame should never be delivered")
	case <-time.After(100 * time.Millisecond):
	}
}

func Test_Scheduler_txwaitPacing(t *testing.T) {
	local := xbnet.Address{1}
	dest := xbnet.Address{2}
	a, peer := pipeCodecs()

	s := New(a, local, Config{MaxPayload: 1, TxWait: 80 * time.Millisecond, EotWait: time.Millisecond}, nil, nil)
	stop := make(chan struct{})
	defer close(stop)
	go s.Run(stop)

	start := time.Now()
	s.Enqueue(dest, []byte("ab")) // two 1-byte pieces, paced by txwait between them

	for i := 0; i < 2; i++ {
		_, err := peer.ReadFrame()
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

// Test_Scheduler_packCoalescesSameDestination exercises spec.md §4.4/§8:
// under --pack, additional queued frames to the same destination are
// concatenated onto the one being sent, while a frame to a different
// destination is never merged in.
func Test_Scheduler_packCoalescesSameDestination(t *testing.T) {
	local := xbnet.Address{1}
	dest := xbnet.Address{2}
	other := xbnet.Address{3}
	a, peer := pipeCodecs()

	s := New(a, local, Config{MaxPayload: 200, Pack: true, TxWait: 0, EotWait: 10 * time.Millisecond}, nil, nil)
	stop := make(chan struct{})
	defer close(stop)

	s.Enqueue(dest, []byte("ab"))
	s.Enqueue(dest, []byte("cd"))
	s.Enqueue(other, []byte("ef"))

	go s.Run(stop)

	frame, err := peer.ReadFrame()
	require.NoError(t, err)
	tr := frame.(*xbeeapi.TransmitRequestFrame)
	assert.Equal(t, dest, tr.Dest)
	assert.Equal(t, frag.FlagLast, tr.Data[0]&0x03)
	assert.Equal(t, []byte("abcd"), tr.Data[1:])

	frame, err = peer.ReadFrame()
	require.NoError(t, err)
	tr = frame.(*xbeeapi.TransmitRequestFrame)
	assert.Equal(t, other, tr.Dest)
	assert.Equal(t, []byte("ef"), tr.Data[1:])
}

// Test_Scheduler_packRespectsFragmentBoundary confirms the §8 invariant
// that packing never grows a piece past MaxPayload application bytes.
func Test_Scheduler_packRespectsFragmentBoundary(t *testing.T) {
	local := xbnet.Address{1}
	dest := xbnet.Address{2}
	a, peer := pipeCodecs()

	s := New(a, local, Config{MaxPayload: 4, Pack: true, TxWait: 0, EotWait: 10 * time.Millisecond}, nil, nil)
	stop := make(chan struct{})
	defer close(stop)

	s.Enqueue(dest, []byte("abcd"))
	s.Enqueue(dest, []byte("efgh"))

	go s.Run(stop)

	var got []byte
	for i := 0; i < 2; i++ {
		frame, err := peer.ReadFrame()
		require.NoError(t, err)
		tr := frame.(*xbeeapi.TransmitRequestFrame)
		assert.LessOrEqual(t, len(tr.Data)-1, 4)
		got = append(got, tr.Data[1:]...)
	}
	assert.Equal(t, []byte("abcdefgh"), got)
}

// Test_Scheduler_txslotHandoff_anyFrameReturnsTurn exercises spec.md §8
// scenario 4: after offering the turn away with flag 2, the peer returning
// *any* frame (not specifically one carrying flag 2 back) frees the local
// side to transmit again, well before the turnWaitEnd reclaim timeout.
func Test_Scheduler_txslotHandoff_anyFrameReturnsTurn(t *testing.T) {
	local := xbnet.Address{1}
	dest := xbnet.Address{2}
	a, peer := pipeCodecs()

	s := New(a, local, Config{
		MaxPayload: 1,
		TxWait:     5 * time.Millisecond,
		TxSlot:     15 * time.Millisecond,
		EotWait:    2 * time.Second, // reclaim (txwait+eotwait) kept well above the test's own timing
	}, nil, nil)
	stop := make(chan struct{})
	defer close(stop)
	go s.Run(stop)

	var gotTurn bool
	for i := 0; i < 100 && !gotTurn; i++ {
		s.Enqueue(dest, []byte{'x'})
		frame, err := peer.ReadFrame()
		require.NoError(t, err)
		tr := frame.(*xbeeapi.TransmitRequestFrame)
		if tr.Data[0]&0x03 == frag.FlagTurn {
			gotTurn = true
		}
	}
	require.True(t, gotTurn, "expected a piece offering the turn within 100 sends")

	require.NoError(t, peer.WriteFrame(&xbeeapi.ReceivePacketFrame{
		Source: dest, Source16: 0xFFFE, Options: 1, Data: []byte{frag.FlagLast, 'y'},
	}))

	s.Enqueue(dest, []byte{'z'})

	next := make(chan *xbeeapi.TransmitRequestFrame, 1)
	go func() {
		frame, err := peer.ReadFrame()
		if err != nil {
			return
		}
		if tr, ok := frame.(*xbeeapi.TransmitRequestFrame); ok {
			next <- tr
		}
	}()

	select {
	case tr := <-next:
		assert.Equal(t, []byte{'z'}, tr.Data[1:])
	case <-time.After(300 * time.Millisecond):
		t.Fatal("turn was not returned promptly by the peer's plain frame")
	}
}
