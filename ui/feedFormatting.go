// ui/feedFormatting.go
package ui

import (
	"bytes"
	"sync"

	"xdptriangle/fastpath"
	"xdptriangle/xdprelay"

	"golang.org/x/text/message"
)

const (
	timeColWidth    = 10 // width of the clock column
	counterColWidth = 14 // width of each "name +n" column
)

// pool holds reusable *bytes.Buffer instances
var bufPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// FormatSnapshotLine builds a fixed-width line of what changed between prev
// and s. A zero prev reports the totals.
func FormatSnapshotLine(p *message.Printer, s, prev xdprelay.Snapshot) string {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()

	writePadded(buf, s.At.Format("15:04:05"), timeColWidth)

	c, pc := s.Counters, prev.Counters
	d := s.Stats.Sub(prev.Stats)
	for _, col := range []struct {
		name string
		n    uint64
	}{
		{"ok", delta(c.Success, pc.Success)},
		{"mismatch", delta(c.MatchFail, pc.MatchFail)},
		{"len", delta(c.AlignFail, pc.AlignFail)},
		{"empty", delta(c.GuardFail, pc.GuardFail)},
		{"match", d[fastpath.StatMatch]},
		{"full", d[fastpath.StatRingFull]},
	} {
		writePadded(buf, p.Sprintf("%s +%d", col.name, col.n), counterColWidth)
	}

	result := string(bytes.TrimRight(buf.Bytes(), " "))
	bufPool.Put(buf)
	return result
}

// delta tolerates a counter reset between two snapshots.
func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return cur
	}
	return cur - prev
}

// writePadded writes s left-aligned in a field of width w
func writePadded(buf *bytes.Buffer, s string, w int) {
	buf.WriteString(s)
	writePadding(buf, w-len(s))
}

// writePadding writes n spaces (n ≤ 0 → no op)
func writePadding(buf *bytes.Buffer, n int) {
	for n > 0 {
		const chunk = "          " // 10 spaces
		if n >= len(chunk) {
			buf.WriteString(chunk)
			n -= len(chunk)
		} else {
			buf.WriteString(chunk[:n])
			return
		}
	}
}
