// consts/consts.go
// Package consts holds the configuration image shared by the three roles:
// L2/L3 addresses, the traffic mark and the snapshot window. The same
// const.toml is materialised into bpf/const_gen.h at build time and loaded
// by the user daemons at start-up.
package consts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/BurntSushi/toml"
)

// Header lengths of the minimal Ethernet II / IPv4 / TCP stack.
const (
	EthLen  = 14
	IPv4Len = 20
	TCPLen  = 20
)

// Defaults applied when const.toml leaves a field out.
const (
	DefaultTOS      uint8  = 0x68
	DefaultPort     uint16 = 9000
	DefaultMTU             = 1500
	DefaultSize            = 512
	DefaultSentinel        = 600
)

// Ring geometry.
const (
	RingSlots       = 16
	MaxRingCapacity = 256 * 1024
	PageSize        = 4096
)

// The default mark must satisfy the same guard as a configured one; these
// fail to compile otherwise.
var (
	_ = [1]struct{}{}[DefaultTOS&0x01]
	_ [DefaultTOS>>5 - 2]struct{}
)

// MAC is a 6-byte L2 address. It decodes from the usual colon form.
type MAC [6]byte

func (m *MAC) UnmarshalText(b []byte) error {
	hw, err := net.ParseMAC(string(b))
	if err != nil {
		return err
	}
	if len(hw) != len(m) {
		return fmt.Errorf("mac %q: want %d bytes, got %d", b, len(m), len(hw))
	}
	copy(m[:], hw)
	return nil
}

func (m MAC) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m MAC) String() string { return net.HardwareAddr(m[:]).String() }

// IsZero reports whether the address was never set.
func (m MAC) IsZero() bool { return m == MAC{} }

// IPv4 is an IPv4 address in wire order.
type IPv4 [4]byte

func (ip *IPv4) UnmarshalText(b []byte) error {
	a, err := netip.ParseAddr(string(b))
	if err != nil {
		return err
	}
	if !a.Is4() {
		return fmt.Errorf("%q is not an IPv4 address", b)
	}
	*ip = a.As4()
	return nil
}

func (ip IPv4) MarshalText() ([]byte, error) { return []byte(ip.String()), nil }

func (ip IPv4) String() string { return ip.Addr().String() }

// Addr converts the address to a netip.Addr.
func (ip IPv4) Addr() netip.Addr { return netip.AddrFrom4(ip) }

// Uint32 returns the address in host order.
func (ip IPv4) Uint32() uint32 { return binary.BigEndian.Uint32(ip[:]) }

func (ip IPv4) IsZero() bool { return ip == IPv4{} }

type MACs struct {
	Logger     MAC `toml:"logger"`
	Hardworker MAC `toml:"hardworker"`
	Sensor     MAC `toml:"sensor"`
}

type IPs struct {
	Logger     IPv4 `toml:"logger"`
	Hardworker IPv4 `toml:"hardworker"`
	Sensor     IPv4 `toml:"sensor"`
}

// Mark selects in-band traffic: the IPv4 TOS byte and the TCP port.
type Mark struct {
	TOS  uint8  `toml:"tos"`
	Port uint16 `toml:"port"`
}

// Data bounds the payload. Size is the snapshot window copied into the ring;
// Sentinel is the payload width accepted by the clamped fallback copy.
type Data struct {
	MTU      int `toml:"mtu"`
	Size     int `toml:"size"`
	Sentinel int `toml:"sentinel"`

	// LoadU64Count is the legacy spelling of the window, in 8-byte words.
	LoadU64Count int `toml:"load_u64_count"`
}

// Image is the full constant set. It is copied by value into every owner.
type Image struct {
	MAC  MACs `toml:"mac"`
	IP   IPs  `toml:"ip"`
	Mark Mark `toml:"mark"`
	Data Data `toml:"data"`
}

// Load decodes a const.toml, fills in defaults and validates the result.
func Load(path string) (Image, error) {
	var img Image
	if _, err := toml.DecodeFile(path, &img); err != nil {
		return Image{}, fmt.Errorf("decode consts %q: %w", path, err)
	}
	img.applyDefaults()
	if err := img.Validate(); err != nil {
		return Image{}, fmt.Errorf("consts %q: %w", path, err)
	}
	return img, nil
}

func (img *Image) applyDefaults() {
	if img.Mark.TOS == 0 {
		img.Mark.TOS = DefaultTOS
	}
	if img.Mark.Port == 0 {
		img.Mark.Port = DefaultPort
	}
	if img.Data.MTU == 0 {
		img.Data.MTU = DefaultMTU
	}
	if img.Data.Size == 0 {
		img.Data.Size = DefaultSize
		if img.Data.LoadU64Count > 0 {
			img.Data.Size = 8 * img.Data.LoadU64Count
		}
	}
	if img.Data.Sentinel == 0 {
		img.Data.Sentinel = DefaultSentinel
	}
}

// CheckMark enforces the reserved TOS bit pattern: the low bit is zero and
// the precedence bits are neither 000 nor 001.
func CheckMark(tos uint8) error {
	if tos&0x01 != 0 {
		return fmt.Errorf("mark tos %#02x: reserved low bit is set", tos)
	}
	switch tos & 0xe0 {
	case 0x00, 0x20:
		return fmt.Errorf("mark tos %#02x: precedence %03b collides with a defined class", tos, tos>>5)
	}
	return nil
}

// RingCapacity is the byte size of the snapshot ring for a window of size
// bytes: sixteen elements, clamped to 256 KiB.
func RingCapacity(size int) int {
	c := RingSlots * size
	if c > MaxRingCapacity {
		c = MaxRingCapacity
	}
	return c
}

// Validate reports every violated invariant of the image.
func (img Image) Validate() error {
	var errs []error
	if err := CheckMark(img.Mark.TOS); err != nil {
		errs = append(errs, err)
	}
	if img.Mark.Port == 0 {
		errs = append(errs, errors.New("mark port is zero"))
	}

	for name, m := range map[string]MAC{
		"logger": img.MAC.Logger, "hardworker": img.MAC.Hardworker, "sensor": img.MAC.Sensor,
	} {
		if m.IsZero() {
			errs = append(errs, fmt.Errorf("mac.%s is not set", name))
		}
	}
	for name, ip := range map[string]IPv4{
		"logger": img.IP.Logger, "hardworker": img.IP.Hardworker, "sensor": img.IP.Sensor,
	} {
		if ip.IsZero() {
			errs = append(errs, fmt.Errorf("ip.%s is not set", name))
		}
	}

	d := img.Data
	if d.Size <= 0 || d.Size&7 != 0 {
		errs = append(errs, fmt.Errorf("data.size %d: must be a positive multiple of 8", d.Size))
	}
	if d.Size+IPv4Len+TCPLen > d.MTU {
		errs = append(errs, fmt.Errorf("data.size %d does not fit mtu %d with IPv4 and TCP headers", d.Size, d.MTU))
	}
	if c := RingCapacity(d.Size); c&(c-1) != 0 || c%PageSize != 0 {
		errs = append(errs, fmt.Errorf("ring capacity %d: must be a power of two and a multiple of %d", c, PageSize))
	} else if c%d.Size != 0 {
		errs = append(errs, fmt.Errorf("ring capacity %d is not a whole number of %d-byte elements", c, d.Size))
	}
	if d.Sentinel <= 0 {
		errs = append(errs, fmt.Errorf("data.sentinel %d: must be positive", d.Sentinel))
	}
	return errors.Join(errs...)
}

// SameSlash16 reports whether logger and hardworker share the upper 16 bits,
// in which case the reflect rewrite changes a single checksum word.
func (img Image) SameSlash16() bool {
	return img.IP.Logger.Uint32()>>16 == img.IP.Hardworker.Uint32()>>16
}
