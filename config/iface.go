// config/iface.go
package config

import (
	"fmt"
	"net"

	"xdptriangle/consts"

	"github.com/vishvananda/netlink"
)

// ResolveInterface returns c.IfName when set. Otherwise the logger and the
// hardworker use the link that owns c.IP, and the sensor uses the link
// the kernel routes c.IP through.
func (c Config) ResolveInterface() (string, error) {
	if c.IfName != "" {
		return c.IfName, nil
	}
	if c.Role != consts.Sensor {
		if name, err := linkOwning(c.IP); err == nil {
			return name, nil
		}
	}
	return linkRouting(c.IP)
}

func linkOwning(ip consts.IPv4) (string, error) {
	addrs, err := netlink.AddrList(nil, netlink.FAMILY_V4)
	if err != nil {
		return "", fmt.Errorf("list addresses: %w", err)
	}
	want := net.IP(ip[:])
	for _, a := range addrs {
		if a.IPNet == nil || !a.IP.Equal(want) {
			continue
		}
		l, err := netlink.LinkByIndex(a.LinkIndex)
		if err != nil {
			return "", fmt.Errorf("link %d: %w", a.LinkIndex, err)
		}
		return l.Attrs().Name, nil
	}
	return "", fmt.Errorf("no local interface has %s", ip)
}

func linkRouting(ip consts.IPv4) (string, error) {
	routes, err := netlink.RouteGet(net.IP(ip[:]))
	if err != nil {
		return "", fmt.Errorf("route to %s: %w", ip, err)
	}
	if len(routes) == 0 {
		return "", fmt.Errorf("no route to %s", ip)
	}
	l, err := netlink.LinkByIndex(routes[0].LinkIndex)
	if err != nil {
		return "", fmt.Errorf("link %d: %w", routes[0].LinkIndex, err)
	}
	return l.Attrs().Name, nil
}
