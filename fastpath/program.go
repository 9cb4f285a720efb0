// fastpath/program.go
package fastpath

import (
	"errors"
	"fmt"

	"xdptriangle/consts"

	log "github.com/sirupsen/logrus"
)

// ErrSnapshotBounds is reported when neither the direct window nor the
// sentinel fallback fits in the frame.
var ErrSnapshotBounds = errors.New("snapshot window out of bounds")

// Program runs the role classifiers over frames in user space with the same
// dispositions, mutations and stats as the loaded XDP object, as long as the
// snapshot ring has room. Ring holds one record more than TARGET_MAP, so the
// two part ways at saturation: the record the kernel counts as ring_full the
// model still accepts.
type Program struct {
	Image consts.Image

	// Ring receives hardworker snapshots. Without it every snapshot fails.
	Ring *Ring

	// Stats may be nil.
	Stats *Stats

	Log log.FieldLogger

	// TagSensorMAC makes the logger stamp MAC.sensor as the L2 source of
	// marked frames, like the LOGGER_TAG_SENSOR_MAC build of the object.
	TagSensorMAC bool
}

// NewProgram builds a Program with a ring sized from img.
func NewProgram(img consts.Image, logger log.FieldLogger) (*Program, error) {
	ring, err := NewRing(consts.RingCapacity(img.Data.Size), img.Data.Size)
	if err != nil {
		return nil, fmt.Errorf("snapshot ring: %w", err)
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Program{Image: img, Ring: ring, Stats: &Stats{}, Log: logger}, nil
}

// Run dispatches f to the classifier of role.
func (p *Program) Run(role consts.Role, f Frame) Action {
	switch role {
	case consts.Hardworker:
		return p.Hardworker(f)
	case consts.Logger:
		return p.Logger(f)
	case consts.Sensor:
		return p.Sensor(f)
	}
	return Aborted
}

// unmatched accounts for a frame that parse did not accept.
func (p *Program) unmatched(act Action) Action {
	if act == Aborted {
		p.Stats.Inc(StatAbort)
	} else {
		p.Stats.Inc(StatPassThrough)
	}
	return act
}

// Hardworker reflects marked frames addressed to the hardworker back to the
// logger, snapshotting the payload of PSH segments on the way.
func (p *Program) Hardworker(f Frame) Action {
	h, act, ok := parse(f)
	if !ok {
		return p.unmatched(act)
	}
	img := &p.Image
	if h.ip.TOS() != img.Mark.TOS || h.tcp.DstPort() != img.Mark.Port || h.ip.Dst() != img.IP.Hardworker.Uint32() {
		return p.unmatched(Pass)
	}
	p.Stats.Inc(StatMatch)

	if h.tcp.Flags()&FlagPSH != 0 {
		if err := p.snapshot(f, h); err != nil {
			p.logger().Warn(err.Error())
		}
	}

	h.eth.SetSrc(img.MAC.Hardworker)
	h.eth.SetDst(img.MAC.Logger)

	to := img.IP.Logger.Uint32()
	ipc, tcpc := ReplaceAddr(h.ip.Checksum(), h.tcp.Checksum(), h.ip.Dst(), to)
	h.ip.SetChecksum(ipc)
	h.tcp.SetChecksum(tcpc)
	h.ip.SetDst(to)
	return TX
}

// snapshot copies the TCP payload window into one ring record.
func (p *Program) snapshot(f Frame, h headers) error {
	if p.Ring == nil {
		p.Stats.Inc(StatSnapshotFail)
		return ErrSnapshotBounds
	}
	res, ok := p.Ring.Reserve()
	if !ok {
		p.Stats.Inc(StatRingFull)
		return ErrRingFull
	}

	size, sentinel := p.Image.Data.Size, p.Image.Data.Sentinel
	off := h.payloadOff()
	dst := res.Bytes()
	if win, ok := f.At(off, size); ok {
		copy(dst, win)
	} else if len(f)-off == sentinel {
		n := min(sentinel, size)
		win, _ := f.At(off, n)
		clear(dst[copy(dst, win):])
	} else {
		res.Discard()
		p.Stats.Inc(StatSnapshotFail)
		return ErrSnapshotBounds
	}
	res.Submit()
	p.Stats.Inc(StatSnapshot)
	return nil
}

// Logger counts marked frames and passes them on.
func (p *Program) Logger(f Frame) Action {
	h, act, ok := parse(f)
	if !ok {
		return p.unmatched(act)
	}
	if h.ip.TOS() != p.Image.Mark.TOS {
		return p.unmatched(Pass)
	}
	p.Stats.Inc(StatMatch)
	if p.TagSensorMAC {
		h.eth.SetSrc(p.Image.MAC.Sensor)
	}
	return Pass
}

// Sensor makes reflected frames from the logger look like they came from
// the hardworker.
func (p *Program) Sensor(f Frame) Action {
	h, act, ok := parse(f)
	if !ok {
		return p.unmatched(act)
	}
	img := &p.Image
	if h.ip.Src() != img.IP.Logger.Uint32() || h.tcp.SrcPort() != img.Mark.Port {
		return p.unmatched(Pass)
	}
	p.Stats.Inc(StatMatch)

	h.eth.SetSrc(img.MAC.Hardworker)

	to := img.IP.Hardworker.Uint32()
	ipc, tcpc := ReplaceAddr(h.ip.Checksum(), h.tcp.Checksum(), h.ip.Src(), to)
	h.ip.SetChecksum(ipc)
	h.tcp.SetChecksum(tcpc)
	h.ip.SetSrc(to)
	return Pass
}

func (p *Program) logger() log.FieldLogger {
	if p.Log == nil {
		return log.StandardLogger()
	}
	return p.Log
}
