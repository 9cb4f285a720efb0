// xdprelay/xdp_counters.go
package xdprelay

import (
	"fmt"
	"sync/atomic"
	"time"

	"xdptriangle/fastpath"
)

// Counters is the consumer's accounting of ring records. Only the consumer
// adds; anyone may read or reset.
type Counters struct {
	success   atomic.Uint64 // exact-size records equal to the reference
	matchFail atomic.Uint64 // exact-size records that differ from it
	alignFail atomic.Uint64 // records of any other length
	guardFail atomic.Uint64 // wake-ups that yielded no record
}

// CounterSnapshot is a copy of Counters.
type CounterSnapshot struct {
	Success   uint64
	MatchFail uint64
	AlignFail uint64
	GuardFail uint64
}

func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Success:   c.success.Load(),
		MatchFail: c.matchFail.Load(),
		AlignFail: c.alignFail.Load(),
		GuardFail: c.guardFail.Load(),
	}
}

// Reset zeroes every counter and returns the values it replaced.
func (c *Counters) Reset() CounterSnapshot {
	return CounterSnapshot{
		Success:   c.success.Swap(0),
		MatchFail: c.matchFail.Swap(0),
		AlignFail: c.alignFail.Swap(0),
		GuardFail: c.guardFail.Swap(0),
	}
}

// Records is the number of records the consumer dequeued.
func (s CounterSnapshot) Records() uint64 { return s.Success + s.MatchFail + s.AlignFail }

func (s CounterSnapshot) String() string {
	return fmt.Sprintf("success=%d match_fail=%d align_fail=%d guard_fail=%d",
		s.Success, s.MatchFail, s.AlignFail, s.GuardFail)
}

// Snapshot is what the relay publishes on its feed once per stats interval.
type Snapshot struct {
	At       time.Time
	Counters CounterSnapshot
	Stats    fastpath.StatsSnapshot
}
