// fastpath/frame.go
// Package fastpath models the per-role XDP programs in user space: the
// bounds-checked header views, the incremental checksum, the classifiers and
// rewrites, and the snapshot ring. It mirrors bpf/*.c step for step and is
// what the unit tests and the offline replay tool run against.
package fastpath

import (
	"encoding/binary"

	"xdptriangle/consts"
)

const (
	EtherTypeIPv4 = 0x0800
	ProtoTCP      = 6

	FlagFIN = 0x01
	FlagSYN = 0x02
	FlagRST = 0x04
	FlagPSH = 0x08
	FlagACK = 0x10
)

// MinFrameLen is the shortest frame that carries the minimal header stack.
const MinFrameLen = consts.EthLen + consts.IPv4Len + consts.TCPLen

// Frame is one L2 frame, [data, data_end).
type Frame []byte

// At returns the n bytes at off, or false when they run past the end.
func (f Frame) At(off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off+n > len(f) {
		return nil, false
	}
	return f[off : off+n : off+n], true
}

// EthHdr is an Ethernet II header view.
type EthHdr []byte

func (h EthHdr) Dst() (m consts.MAC) { copy(m[:], h[0:6]); return }
func (h EthHdr) Src() (m consts.MAC) { copy(m[:], h[6:12]); return }

func (h EthHdr) SetDst(m consts.MAC) { copy(h[0:6], m[:]) }
func (h EthHdr) SetSrc(m consts.MAC) { copy(h[6:12], m[:]) }

func (h EthHdr) EtherType() uint16 { return binary.BigEndian.Uint16(h[12:14]) }

// IPv4Hdr is a view over the fixed 20 bytes of an IPv4 header. Addresses
// and the checksum are returned in host order.
type IPv4Hdr []byte

func (h IPv4Hdr) IHL() int             { return int(h[0] & 0x0f) }
func (h IPv4Hdr) TOS() uint8           { return h[1] }
func (h IPv4Hdr) TotalLen() int        { return int(binary.BigEndian.Uint16(h[2:4])) }
func (h IPv4Hdr) Protocol() uint8      { return h[9] }
func (h IPv4Hdr) Checksum() uint16     { return binary.BigEndian.Uint16(h[10:12]) }
func (h IPv4Hdr) SetChecksum(c uint16) { binary.BigEndian.PutUint16(h[10:12], c) }

func (h IPv4Hdr) Src() uint32 { return binary.BigEndian.Uint32(h[12:16]) }
func (h IPv4Hdr) Dst() uint32 { return binary.BigEndian.Uint32(h[16:20]) }

func (h IPv4Hdr) SetSrc(a uint32) { binary.BigEndian.PutUint32(h[12:16], a) }
func (h IPv4Hdr) SetDst(a uint32) { binary.BigEndian.PutUint32(h[16:20], a) }

// TCPHdr is a view over the fixed 20 bytes of a TCP header.
type TCPHdr []byte

func (h TCPHdr) SrcPort() uint16      { return binary.BigEndian.Uint16(h[0:2]) }
func (h TCPHdr) DstPort() uint16      { return binary.BigEndian.Uint16(h[2:4]) }
func (h TCPHdr) DataOffset() int      { return int(h[12] >> 4) }
func (h TCPHdr) Flags() uint8         { return h[13] }
func (h TCPHdr) Checksum() uint16     { return binary.BigEndian.Uint16(h[16:18]) }
func (h TCPHdr) SetChecksum(c uint16) { binary.BigEndian.PutUint16(h[16:18], c) }

// headers is the parsed minimal stack of one frame.
type headers struct {
	eth EthHdr
	ip  IPv4Hdr
	tcp TCPHdr

	l4 int // offset of the TCP header
}

// payloadOff is where the TCP payload starts, honouring IHL and doff.
func (h headers) payloadOff() int { return h.l4 + h.tcp.DataOffset()*4 }

// parse walks Eth/IPv4/TCP. ok is false when the frame is not a candidate;
// act then says whether to pass it or abort.
func parse(f Frame) (h headers, act Action, ok bool) {
	// The whole minimal stack is checked up front so nothing is read from a
	// frame that cannot hold it.
	if len(f) < MinFrameLen {
		return h, Aborted, false
	}
	eth, _ := f.At(0, consts.EthLen)
	h.eth = EthHdr(eth)
	if h.eth.EtherType() != EtherTypeIPv4 {
		return h, Pass, false
	}

	ip, _ := f.At(consts.EthLen, consts.IPv4Len)
	h.ip = IPv4Hdr(ip)
	if h.ip.IHL() < 5 || h.ip.Protocol() != ProtoTCP {
		return h, Pass, false
	}

	h.l4 = consts.EthLen + h.ip.IHL()*4
	tcp, in := f.At(h.l4, consts.TCPLen)
	if !in {
		return h, Aborted, false
	}
	h.tcp = TCPHdr(tcp)
	if h.tcp.DataOffset() < 5 {
		return h, Pass, false
	}
	return h, Pass, true
}
