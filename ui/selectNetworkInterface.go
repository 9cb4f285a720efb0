// ui/selectNetworkInterface.go
package ui

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/charmbracelet/huh"
)

// SelectNetworkInterface prompts the user to select a network interface from the available ones.
func SelectNetworkInterface(title string) (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}

	// Filter out interfaces that are down or loopback
	choices := []huh.Option[string]{}
	for _, iface := range ifaces {
		if (iface.Flags&net.FlagUp) == 0 || (iface.Flags&net.FlagLoopback) != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		addrStrs := []string{}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.To4() != nil {
				addrStrs = append(addrStrs, ipNet.IP.String())
			}
		}
		pretty := fmt.Sprintf("%s (%s)", iface.Name, strings.Join(addrStrs, ", "))
		choices = append(choices, huh.NewOption(pretty, iface.Name))
	}

	if len(choices) == 0 {
		return "", errors.New("no usable network interface found")
	}

	var selected string
	form := huh.NewSelect[string]().
		Title(title).
		Options(choices...).
		Value(&selected)

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("interface selection failed: %w", err)
	}
	return selected, nil
}
