// cmd/xdpreplay/replay.go
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"time"

	"xdptriangle/bpf"
	"xdptriangle/consts"
	"xdptriangle/fastpath"
	"xdptriangle/xdprelay"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// engine runs one classifier over single frames.
type engine interface {
	Run(frame []byte) (fastpath.Action, []byte, error)
	Stats() (fastpath.StatsSnapshot, error)
	// Source is the snapshot ring, nil for roles without one.
	Source() (xdprelay.RecordSource, error)
}

type modelEngine struct {
	role consts.Role
	prog *fastpath.Program
}

func (m *modelEngine) Run(frame []byte) (fastpath.Action, []byte, error) {
	out := bytes.Clone(frame)
	return m.prog.Run(m.role, out), out, nil
}

func (m *modelEngine) Stats() (fastpath.StatsSnapshot, error) { return m.prog.Stats.Snapshot(), nil }

func (m *modelEngine) Source() (xdprelay.RecordSource, error) {
	if m.role != consts.Hardworker {
		return nil, nil
	}
	return xdprelay.NewRingSource(m.prog.Ring), nil
}

type kernelEngine struct {
	*bpf.Runner
}

func (k *kernelEngine) Source() (xdprelay.RecordSource, error) {
	if k.Role != consts.Hardworker {
		return nil, nil
	}
	return xdprelay.NewKernelSource(k.Map(bpf.TargetMap))
}

type report struct {
	Frames      int
	Actions     map[fastpath.Action]int
	BadChecksum int
	Stats       fastpath.StatsSnapshot
	Records     *xdprelay.CounterSnapshot
}

// packetReader is satisfied by both pcapgo readers.
type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

func openCapture(r io.Reader) (packetReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if bytes.Equal(magic, []byte{0x0a, 0x0d, 0x0d, 0x0a}) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// replay feeds every frame of in through eng. Frames the classifier passes
// or transmits are written to out when it is not nil; rewritten ones must
// still carry valid checksums. Ring records are
// checked by a Consumer against the first one, whose dump goes to dump.
func replay(in io.Reader, out io.Writer, eng engine, size int, dump io.Writer) (report, error) {
	rep := report{Actions: map[fastpath.Action]int{}}

	pr, err := openCapture(in)
	if err != nil {
		return rep, err
	}
	var w *pcapgo.NgWriter
	if out != nil {
		if w, err = pcapgo.NewNgWriter(out, layers.LinkTypeEthernet); err != nil {
			return rep, fmt.Errorf("create pcapng writer: %w", err)
		}
		defer w.Flush()
	}

	for {
		data, ci, err := pr.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rep, fmt.Errorf("frame %d: %w", rep.Frames+1, err)
		}
		rep.Frames++

		act, frame, err := eng.Run(data)
		if err != nil {
			return rep, fmt.Errorf("frame %d: %w", rep.Frames, err)
		}
		rep.Actions[act]++
		if act != fastpath.TX && act != fastpath.Pass {
			continue
		}
		if !bytes.Equal(frame, data) && (!fastpath.IPv4HeaderValid(frame) || !fastpath.TCPValid(frame)) {
			rep.BadChecksum++
		}
		if w != nil {
			ci.CaptureLength, ci.Length = len(frame), len(frame)
			if err := w.WritePacket(ci, frame); err != nil {
				return rep, fmt.Errorf("write frame %d: %w", rep.Frames, err)
			}
		}
	}

	if rep.Stats, err = eng.Stats(); err != nil {
		return rep, err
	}
	src, err := eng.Source()
	if err != nil || src == nil {
		return rep, err
	}
	c, err := consume(src, size, rep.Stats[fastpath.StatSnapshot], dump)
	rep.Records = &c
	return rep, err
}

// consume runs a Consumer until it has seen want records or gives up.
func consume(src xdprelay.RecordSource, size int, want uint64, dump io.Writer) (xdprelay.CounterSnapshot, error) {
	var counters xdprelay.Counters
	c := &xdprelay.Consumer{
		Source:    src,
		Size:      size,
		Counters:  &counters,
		FirstWait: 50 * time.Millisecond,
		Wait:      50 * time.Millisecond,
		Dump:      dump,
		Log:       log.StandardLogger(),
	}
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- c.Run(stop) }()

	deadline := time.Now().Add(2 * time.Second)
	for counters.Snapshot().Records() < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(stop)
	err := <-done
	if cl, ok := src.(io.Closer); ok {
		cl.Close()
	}
	return counters.Snapshot(), err
}

func (r report) write(w io.Writer) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "%d frames:", r.Frames)
	for _, a := range []fastpath.Action{fastpath.Aborted, fastpath.Drop, fastpath.Pass, fastpath.TX} {
		p.Fprintf(w, " %s %d", a, r.Actions[a])
	}
	p.Fprintf(w, "\nbad checksums after rewrite: %d\nprogram: %s\n", r.BadChecksum, r.Stats)
	if r.Records != nil {
		p.Fprintf(w, "ring: %s\n", r.Records)
	}
}
