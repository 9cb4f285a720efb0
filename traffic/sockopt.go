// traffic/sockopt.go
// Package traffic generates and absorbs the in-band TCP stream: the sensor
// sends fixed-size blocks to its target, the logger reads them back.
package traffic

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// Payload is the fill byte of every block.
const Payload = 0xaa

// withTOS returns a socket Control hook that sets IP_TOS before the first
// segment leaves, so the SYN already carries the mark.
func withTOS(tos uint8) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, int(tos))
		})
		return errors.Join(err, serr)
	}
}
