// fastpath/checksum.go
package fastpath

import "encoding/binary"

func fold(sum uint32) uint16 {
	sum = (sum & 0xffff) + (sum >> 16)
	sum = (sum & 0xffff) + (sum >> 16)
	return uint16(sum)
}

// UpdateChecksum returns the one's-complement checksum of a datagram whose
// checksum was csum after one of its 16-bit words changed from old to upd
// (RFC 1624, eqn. 3). All values are in host order.
func UpdateChecksum(csum, old, upd uint16) uint16 {
	sum := uint32(^csum) + uint32(^old) + uint32(upd)
	return ^fold(sum)
}

// ReplaceAddr carries an IPv4 address change from old to upd into the IPv4
// header checksum and the TCP checksum, whose pseudo-header covers the same
// address. Each 16-bit half is updated only when it differs.
func ReplaceAddr(ipCsum, tcpCsum uint16, old, upd uint32) (uint16, uint16) {
	for _, shift := range [...]uint{16, 0} {
		o, n := uint16(old>>shift), uint16(upd>>shift)
		if o == n {
			continue
		}
		ipCsum = UpdateChecksum(ipCsum, o, n)
		tcpCsum = UpdateChecksum(tcpCsum, o, n)
	}
	return ipCsum, tcpCsum
}

func sum16(sum uint32, b []byte) uint32 {
	for len(b) >= 2 {
		sum += uint32(binary.BigEndian.Uint16(b))
		b = b[2:]
	}
	if len(b) == 1 {
		sum += uint32(b[0]) << 8
	}
	return sum
}

// Checksum is the Internet checksum of b. Over a header that already holds
// a correct checksum it returns zero.
func Checksum(b []byte) uint16 {
	return ^fold(sum16(0, b))
}

// IPv4HeaderValid reports whether the IPv4 header of f carries a correct
// checksum.
func IPv4HeaderValid(f Frame) bool {
	h, _, ok := parse(f)
	if !ok {
		return false
	}
	hdr, in := f.At(14, h.ip.IHL()*4)
	return in && Checksum(hdr) == 0
}

// TCPValid reports whether the TCP checksum of f is correct over the
// pseudo-header and the segment as bounded by the IPv4 total length.
func TCPValid(f Frame) bool {
	h, _, ok := parse(f)
	if !ok {
		return false
	}
	segLen := h.ip.TotalLen() - h.ip.IHL()*4
	seg, in := f.At(h.l4, segLen)
	if !in || segLen < 0 {
		return false
	}
	var pseudo [12]byte
	copy(pseudo[0:8], h.ip[12:20])
	pseudo[9] = ProtoTCP
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(segLen))
	return ^fold(sum16(sum16(0, pseudo[:]), seg)) == 0
}
