// ui/feedFormatting_test.go
package ui

import (
	"strings"
	"testing"
	"time"

	"xdptriangle/fastpath"
	"xdptriangle/xdprelay"

	. "github.com/onsi/gomega"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func TestFormatSnapshotLine(t *testing.T) {
	RegisterTestingT(t)
	p := message.NewPrinter(language.English)
	at := time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC)

	prev := xdprelay.Snapshot{Counters: xdprelay.CounterSnapshot{Success: 1000}}
	var st fastpath.StatsSnapshot
	st[fastpath.StatMatch] = 12
	st[fastpath.StatRingFull] = 2
	cur := xdprelay.Snapshot{
		At:       at,
		Counters: xdprelay.CounterSnapshot{Success: 2500, MatchFail: 3},
		Stats:    st,
	}

	line := FormatSnapshotLine(p, cur, prev)
	Expect(line).To(HavePrefix("13:04:05  ok +1,500"))
	Expect(line).To(ContainSubstring("mismatch +3"))
	Expect(line).To(ContainSubstring("match +12"))
	Expect(line).To(HaveSuffix("full +2"))
	Expect(strings.Index(line, "mismatch")).To(Equal(timeColWidth + counterColWidth))
}

func TestFormatSnapshotLineAfterReset(t *testing.T) {
	RegisterTestingT(t)
	p := message.NewPrinter(language.English)

	prev := xdprelay.Snapshot{Counters: xdprelay.CounterSnapshot{Success: 50}}
	cur := xdprelay.Snapshot{Counters: xdprelay.CounterSnapshot{Success: 7}}
	Expect(FormatSnapshotLine(p, cur, prev)).To(ContainSubstring("ok +7"))
}

func TestChannelWriter(t *testing.T) {
	RegisterTestingT(t)
	ch := make(chan string, 1)

	n, err := ChannelWriter{Ch: ch}.Write([]byte("level=info msg=attached\n"))
	Expect(err).NotTo(HaveOccurred())
	Expect(n).To(Equal(24))
	Expect(ch).To(Receive(Equal("level=info msg=attached")))
}
