// xdprelay/utility/ports.go
package utility

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/net"
)

// GetPIDsByPort returns the processes listening on the given TCP port.
// PIDs are int32 to match gopsutil's API.
func GetPIDsByPort(port uint32) ([]int32, error) {
	conns, err := net.Connections("tcp")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tcp connections: %w", err)
	}

	pids := make([]int32, 0, 1)
	seen := make(map[int32]struct{})

	for _, c := range conns {
		if c.Laddr.Port != port || c.Status != "LISTEN" || c.Pid == 0 {
			continue
		}
		if _, ok := seen[c.Pid]; ok {
			continue
		}
		seen[c.Pid] = struct{}{}
		pids = append(pids, c.Pid)
	}

	return pids, nil
}
