// fastpath/action.go
package fastpath

import (
	"fmt"
	"sync/atomic"
)

// Action is an XDP disposition. Values match enum xdp_action.
type Action uint32

const (
	Aborted Action = iota
	Drop
	Pass
	TX
)

func (a Action) String() string {
	switch a {
	case Aborted:
		return "XDP_ABORTED"
	case Drop:
		return "XDP_DROP"
	case Pass:
		return "XDP_PASS"
	case TX:
		return "XDP_TX"
	}
	return fmt.Sprintf("xdp_action(%d)", uint32(a))
}

// Stat indexes STATS_MAP. The order is shared with bpf/common.h.
type Stat uint32

const (
	StatPassThrough Stat = iota
	StatAbort
	StatMatch
	StatRingFull
	StatSnapshotFail
	StatSnapshot
	NumStats
)

var statNames = [NumStats]string{
	"pass_through", "abort", "match", "ring_full", "snapshot_fail", "snapshot",
}

func (s Stat) String() string {
	if s < NumStats {
		return statNames[s]
	}
	return fmt.Sprintf("stat(%d)", uint32(s))
}

// StatsSnapshot is a point-in-time copy of every stat.
type StatsSnapshot [NumStats]uint64

// Sub returns the per-stat growth since prev.
func (s StatsSnapshot) Sub(prev StatsSnapshot) (d StatsSnapshot) {
	for i := range s {
		d[i] = s[i] - prev[i]
	}
	return
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("pass=%d abort=%d match=%d ring_full=%d snapshot_fail=%d snapshot=%d",
		s[StatPassThrough], s[StatAbort], s[StatMatch], s[StatRingFull], s[StatSnapshotFail], s[StatSnapshot])
}

// Stats is the user-space stand-in for the per-CPU STATS_MAP.
type Stats struct {
	c [NumStats]atomic.Uint64
}

func (s *Stats) Inc(st Stat) {
	if s != nil {
		s.c[st].Add(1)
	}
}

func (s *Stats) Snapshot() (out StatsSnapshot) {
	for i := range s.c {
		out[i] = s.c[i].Load()
	}
	return
}
