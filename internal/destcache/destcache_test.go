package destcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoerzen/xbnet/internal/xbnet"
)

func Test_MAC_broadcastAndMulticast(t *testing.T) {
	assert.True(t, MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}.IsBroadcastOrMulticast())
	assert.True(t, MAC{0x01, 0, 0, 0, 0, 0}.IsBroadcastOrMulticast())
	assert.False(t, MAC{0x02, 0, 0, 0, 0, 0}.IsBroadcastOrMulticast())
}

func Test_TapCache_missDropsByDefault(t *testing.T) {
	c := NewTapCache(false)
	_, _, ok := c.Resolve(MAC{2, 2, 2, 2, 2, 2})
	assert.False(t, ok)
}

func Test_TapCache_missBroadcastsWhenConfigured(t *testing.T) {
	c := NewTapCache(true)
	_, broadcast, ok := c.Resolve(MAC{2, 2, 2, 2, 2, 2})
	require.True(t, ok)
	assert.True(t, broadcast)
}

func Test_TapCache_learnThenHit(t *testing.T) {
	c := NewTapCache(false)
	mac := MAC{3, 3, 3, 3, 3, 3}
	addr := xbnet.Address{9, 9}
	c.Learn(mac, addr, time.Now())

	got, broadcast, ok := c.Resolve(mac)
	require.True(t, ok)
	assert.False(t, broadcast)
	assert.Equal(t, addr, got)
}

func Test_TunCache_scenario_broadcastThenUnicast(t *testing.T) {
	// spec.md §8 scenario 3.
	c := NewTunCache(TunCacheConfig{MaxAge: time.Minute})
	dst := ipv4Key([]byte{10, 0, 0, 2})

	_, broadcast, ok := c.Resolve(4, dst, time.Now())
	require.True(t, ok)
	assert.True(t, broadcast)

	src := xbnet.Address{0xAA}
	c.Learn(4, ipv4Key([]byte{10, 0, 0, 2}), src, time.Now())

	got, broadcast, ok := c.Resolve(4, dst, time.Now())
	require.True(t, ok)
	assert.False(t, broadcast)
	assert.Equal(t, src, got)
}

func Test_TunCache_expiry(t *testing.T) {
	c := NewTunCache(TunCacheConfig{MaxAge: 10 * time.Millisecond})
	key := ipv4Key([]byte{1, 2, 3, 4})
	c.Learn(4, key, xbnet.Address{1}, time.Now())

	_, broadcast, ok := c.Resolve(4, key, time.Now().Add(time.Millisecond))
	require.True(t, ok)
	assert.False(t, broadcast)

	_, broadcast, ok = c.Resolve(4, key, time.Now().Add(time.Second))
	require.True(t, ok)
	assert.True(t, broadcast, "expired entry must fall back to broadcast")
}

func Test_TunCache_disabledFamilyDrops(t *testing.T) {
	c := NewTunCache(TunCacheConfig{DisableIPv6: true})
	_, _, ok := c.Resolve(6, IPKey{}, time.Now())
	assert.False(t, ok)
}

// Test_TunCache_Disabled covers the inbound (radio->device) direction's
// use of the same family switch the outbound Resolve path already
// consults, per spec.md §4.6 ("drop packets of the disabled family on
// both directions").
func Test_TunCache_Disabled(t *testing.T) {
	c := NewTunCache(TunCacheConfig{DisableIPv4: true})
	assert.True(t, c.Disabled(4))
	assert.False(t, c.Disabled(6))
}

func Test_IPVersion(t *testing.T) {
	v, ok := IPVersion([]byte{0x45, 0, 0, 0})
	require.True(t, ok)
	assert.Equal(t, 4, v)

	v, ok = IPVersion([]byte{0x60, 0, 0, 0})
	require.True(t, ok)
	assert.Equal(t, 6, v)

	_, ok = IPVersion([]byte{0x00})
	assert.False(t, ok)
}

func Test_SourceAndDest_ipv4(t *testing.T) {
	packet := make([]byte, 20)
	packet[0] = 0x45
	copy(packet[12:16], []byte{1, 2, 3, 4})
	copy(packet[16:20], []byte{5, 6, 7, 8})

	version, src, dst, ok := SourceAndDest(packet)
	require.True(t, ok)
	assert.Equal(t, 4, version)
	assert.Equal(t, ipv4Key([]byte{1, 2, 3, 4}), src)
	assert.Equal(t, ipv4Key([]byte{5, 6, 7, 8}), dst)
}
