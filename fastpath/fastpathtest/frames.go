// fastpath/fastpathtest/frames.go
// Package fastpathtest builds Ethernet/IPv4/TCP frames for the classifier
// tests, the ring consumer tests and the kernel conformance tests.
package fastpathtest

import (
	"bytes"
	"net"
	"testing"

	"xdptriangle/consts"
	"xdptriangle/fastpath"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Image is the address plan used throughout the tests: logger and
// hardworker share 192.168/16.
func Image() consts.Image {
	return consts.Image{
		MAC: consts.MACs{
			Logger:     consts.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x93},
			Hardworker: consts.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x96},
			Sensor:     consts.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x97},
		},
		IP: consts.IPs{
			Logger:     consts.IPv4{192, 168, 1, 93},
			Hardworker: consts.IPv4{192, 168, 1, 96},
			Sensor:     consts.IPv4{192, 168, 1, 97},
		},
		Mark: consts.Mark{TOS: 0x68, Port: 9000},
		Data: consts.Data{MTU: 1500, Size: 512, Sentinel: 600},
	}
}

// Spec describes one frame.
type Spec struct {
	SrcMAC, DstMAC   consts.MAC
	Src, Dst         consts.IPv4
	TOS              uint8
	SrcPort, DstPort uint16
	PSH              bool
	Payload          []byte

	// IPOptions adds a 4-byte router-alert option, so IHL is 6.
	IPOptions bool
}

// Marked is the logger's marked segment towards the hardworker. Both ports
// are MARK.port so the reflected frame also satisfies the sensor.
func Marked(img consts.Image) Spec {
	return Spec{
		SrcMAC:  img.MAC.Logger,
		DstMAC:  img.MAC.Hardworker,
		Src:     img.IP.Logger,
		Dst:     img.IP.Hardworker,
		TOS:     img.Mark.TOS,
		SrcPort: img.Mark.Port,
		DstPort: img.Mark.Port,
	}
}

// WithPayload sets PSH and a payload of n copies of b.
func (s Spec) WithPayload(b byte, n int) Spec {
	s.PSH = true
	s.Payload = bytes.Repeat([]byte{b}, n)
	return s
}

// Build serializes s with valid lengths and checksums.
func Build(s Spec) (fastpath.Frame, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(s.SrcMAC[:]),
		DstMAC:       net.HardwareAddr(s.DstMAC[:]),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TOS:      s.TOS,
		Id:       0x1c46,
		Flags:    layers.IPv4DontFragment,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP(s.Src[:]),
		DstIP:    net.IP(s.Dst[:]),
	}
	if s.IPOptions {
		ip.Options = []layers.IPv4Option{{OptionType: 148, OptionLength: 4, OptionData: []byte{0, 0}}}
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.SrcPort),
		DstPort: layers.TCPPort(s.DstPort),
		Seq:     0x01020304,
		Ack:     0x0a0b0c0d,
		ACK:     true,
		PSH:     s.PSH,
		Window:  502,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(s.Payload)); err != nil {
		return nil, err
	}
	return fastpath.Frame(bytes.Clone(buf.Bytes())), nil
}

// MustBuild is Build for tests.
func MustBuild(tb testing.TB, s Spec) fastpath.Frame {
	tb.Helper()
	f, err := Build(s)
	if err != nil {
		tb.Fatalf("build frame: %v", err)
	}
	return f
}

// Decoded is a frame parsed back into layers.
type Decoded struct {
	Eth     *layers.Ethernet
	IP      *layers.IPv4
	TCP     *layers.TCP
	Payload []byte
}

// Decode parses f with gopacket. Missing layers are nil.
func Decode(f []byte) Decoded {
	pkt := gopacket.NewPacket(f, layers.LayerTypeEthernet, gopacket.Default)
	var d Decoded
	if l, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet); ok {
		d.Eth = l
	}
	if l, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		d.IP = l
	}
	if l, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		d.TCP = l
		d.Payload = l.Payload
	}
	return d
}
