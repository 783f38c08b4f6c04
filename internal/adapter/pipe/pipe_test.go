package pipe

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoerzen/xbnet/internal/xbnet"
)

func Test_Adapter_readsChunksAddressedToDest(t *testing.T) {
	dest := xbnet.Address{1, 2, 3, 4, 5, 6, 7, 8}
	in := strings.NewReader("hello\n")
	var out bytes.Buffer

	a := New(in, &out, dest, 200, nil)

	gotDest, frame, ok, err := a.ReadUserFrame()
	require.True(t, ok)
	require.True(t, err == nil || err == io.EOF)
	assert.Equal(t, dest, gotDest)
	assert.Equal(t, []byte("hello\n"), frame)
}

func Test_Adapter_writesToStdout(t *testing.T) {
	var out bytes.Buffer
	a := New(strings.NewReader(""), &out, xbnet.Address{}, 200, nil)

	require.NoError(t, a.WriteUserFrame(xbnet.Address{9}, []byte("reply")))
	assert.Equal(t, "reply", out.String())
}

func Test_Adapter_eofAtEnd(t *testing.T) {
	dest := xbnet.Address{1}
	in := strings.NewReader("")
	a := New(in, io.Discard, dest, 200, nil)

	_, _, ok, err := a.ReadUserFrame()
	assert.False(t, ok)
	assert.ErrorIs(t, err, io.EOF)
}
