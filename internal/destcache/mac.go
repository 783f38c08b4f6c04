package destcache

// MAC is a 6-byte Ethernet hardware address.
type MAC [6]byte

var broadcastMAC = MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// IsBroadcastOrMulticast reports whether m is the all-ones broadcast
// address or has the multicast bit (the low bit of the first octet) set,
// per spec.md §4.6.
func (m MAC) IsBroadcastOrMulticast() bool {
	return m == broadcastMAC || m[0]&0x01 != 0
}

// SourceMAC and DestMAC read the source/destination addresses out of a raw
// Ethernet frame (14-byte header: dest[0:6], src[6:12], ethertype[12:14]).
func SourceMAC(frame []byte) (MAC, bool) {
	if len(frame) < 12 {
		return MAC{}, false
	}
	var m MAC
	copy(m[:], frame[6:12])
	return m, true
}

func DestMAC(frame []byte) (MAC, bool) {
	if len(frame) < 6 {
		return MAC{}, false
	}
	var m MAC
	copy(m[:], frame[0:6])
	return m, true
}
