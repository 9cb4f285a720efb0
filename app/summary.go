// app/summary.go
package app

import (
	"io"
	"time"

	"xdptriangle/consts"
	"xdptriangle/fastpath"
	"xdptriangle/traffic"
	"xdptriangle/xdprelay"
	"xdptriangle/xdprelay/utility"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// summary is printed once on exit. Nil parts did not run on this role.
type summary struct {
	Role     consts.Role
	Iface    string
	Elapsed  time.Duration
	Counters *xdprelay.CounterSnapshot
	Stats    *fastpath.StatsSnapshot
	Sent     *traffic.SenderStat
	Received *traffic.ReceiverStat
	NIC      *utility.NICStat
}

func writeSummary(w io.Writer, s summary) {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "%s on %s ran %s\n", s.Role, s.Iface, s.Elapsed.Round(time.Second))
	if c := s.Counters; c != nil {
		p.Fprintf(w, "  snapshots   success %d  match_fail %d  align_fail %d  guard_fail %d\n",
			c.Success, c.MatchFail, c.AlignFail, c.GuardFail)
	}
	if st := s.Stats; st != nil {
		p.Fprintf(w, "  program     match %d  snapshot %d  pass %d  abort %d  ring_full %d  snapshot_fail %d\n",
			st[fastpath.StatMatch], st[fastpath.StatSnapshot], st[fastpath.StatPassThrough],
			st[fastpath.StatAbort], st[fastpath.StatRingFull], st[fastpath.StatSnapshotFail])
	}
	if t := s.Sent; t != nil {
		p.Fprintf(w, "  tcp sent    %d blocks, %d failed\n", t.Sent, t.Failed)
	}
	if t := s.Received; t != nil {
		p.Fprintf(w, "  tcp recv    success %d  fail %d\n", t.Success, t.Fail)
	}
	if n := s.NIC; n != nil {
		p.Fprintf(w, "  nic         rx %d  tx %d  drop_in %d  drop_out %d\n",
			n.PacketsRecv, n.PacketsSent, n.DropIn, n.DropOut)
	}
}
