package pingpong

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoerzen/xbnet/internal/xbeeapi"
	"github.com/jgoerzen/xbnet/internal/xbnet"
)

type fakeEnqueuer struct {
	sent chan struct {
		dest xbnet.Address
		data []byte
	}
}

func newFakeEnqueuer() *fakeEnqueuer {
	return &fakeEnqueuer{sent: make(chan struct {
		dest xbnet.Address
		data []byte
	}, 16)}
}

func (f *fakeEnqueuer) Enqueue(dest xbnet.Address, data []byte) {
	f.sent <- struct {
		dest xbnet.Address
		data []byte
	}{dest, data}
}

func Test_Ping_transmitsIncrementing(t *testing.T) {
	dest := xbnet.Address{1}
	enq := newFakeEnqueuer()
	stop := make(chan struct{})

	go Ping(enq, dest, 10*time.Millisecond, stop)

	first := <-enq.sent
	second := <-enq.sent
	close(stop)

	assert.Equal(t, dest, first.dest)
	assert.Equal(t, "ping 1", string(first.data))
	assert.Equal(t, "ping 2", string(second.data))
}

type fakeQuality struct {
	resp *xbeeapi.ATCommandResponseFrame
	err  error
}

func (f fakeQuality) QueryAT(name string, param []byte) (*xbeeapi.ATCommandResponseFrame, error) {
	return f.resp, f.err
}

func Test_Pong_appendsRSSIWhenAvailable(t *testing.T) {
	q := fakeQuality{resp: &xbeeapi.ATCommandResponseFrame{Status: xbeeapi.StatusOK, Value: []byte{0x28}}}
	reply := buildReply(q, []byte("ping 1"))
	assert.Equal(t, "ping 1 rssi=-40dBm", string(reply))
}

func Test_Pong_plainEchoWithoutQuality(t *testing.T) {
	reply := buildReply(nil, []byte("ping 1"))
	assert.Equal(t, "ping 1", string(reply))
}

func Test_RunPong_repliesToWork(t *testing.T) {
	enq := newFakeEnqueuer()
	work := make(chan Work, 1)
	stop := make(chan struct{})
	defer close(stop)

	go RunPong(enq, nil, work, stop)

	src := xbnet.Address{7}
	work <- Work{Src: src, Payload: []byte("hi")}

	select {
	case sent := <-enq.sent:
		require.Equal(t, src, sent.dest)
		assert.Equal(t, "hi", string(sent.data))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pong reply")
	}
}
