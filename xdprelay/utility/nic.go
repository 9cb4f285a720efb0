// xdprelay/utility/nic.go
package utility

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/net"
)

// NICStat is the kernel's view of an interface, used next to the program
// stats to tell driver drops from ring drops.
type NICStat struct {
	Name                     string
	PacketsRecv, PacketsSent uint64
	DropIn, DropOut          uint64
	ErrIn, ErrOut            uint64
}

func (s NICStat) String() string {
	return fmt.Sprintf("%s rx=%d tx=%d drop_in=%d drop_out=%d err_in=%d err_out=%d",
		s.Name, s.PacketsRecv, s.PacketsSent, s.DropIn, s.DropOut, s.ErrIn, s.ErrOut)
}

func GetNICStat(name string) (NICStat, error) {
	counters, err := net.IOCounters(true)
	if err != nil {
		return NICStat{}, fmt.Errorf("failed to read interface counters: %w", err)
	}
	for _, c := range counters {
		if c.Name != name {
			continue
		}
		return NICStat{
			Name:        c.Name,
			PacketsRecv: c.PacketsRecv,
			PacketsSent: c.PacketsSent,
			DropIn:      c.Dropin,
			DropOut:     c.Dropout,
			ErrIn:       c.Errin,
			ErrOut:      c.Errout,
		}, nil
	}
	return NICStat{}, fmt.Errorf("interface %q not found", name)
}
