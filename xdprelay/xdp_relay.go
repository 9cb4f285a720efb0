// xdprelay/xdp_relay.go
// Package xdprelay attaches a role's XDP program to an interface and, on the
// hardworker, drains the snapshot ring the program fills.
package xdprelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"xdptriangle/bpf"
	"xdptriangle/consts"
	"xdptriangle/fastpath"
	"xdptriangle/xdprelay/utility"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	log "github.com/sirupsen/logrus"
)

// ErrShutdownUnavailable is returned by Shutdown once the consumer is gone
// and can no longer take the request.
var ErrShutdownUnavailable = errors.New("shutdown unavailable: consumer already exited, kill the process manually")

type Relay interface {
	// Run blocks until ctx is done, Shutdown is called or the consumer fails.
	Run(ctx context.Context) error
	// Shutdown asks Run to return after the current drain.
	Shutdown() error
	Counters() CounterSnapshot
	// ResetCounters zeroes the consumer counters and returns their old values.
	ResetCounters() CounterSnapshot
	// Reference is a copy of the first snapshot, nil until one arrives.
	Reference() []byte
	// Stats are the program's per-outcome counters.
	Stats() (fastpath.StatsSnapshot, error)
	// Close detaches the program and frees its maps. Call after Run returned.
	Close()
}

type Options struct {
	Role      consts.Role
	Interface string
	// Object overrides <executable dir>/bpf/<role>.o.
	Object string
	Image  consts.Image

	Dump io.Writer
	Log  log.FieldLogger
	// Feed, when set, receives a Snapshot every StatsInterval. Sends never block.
	Feed chan<- Snapshot

	FirstWait     time.Duration
	Wait          time.Duration
	StatsInterval time.Duration
}

type relay struct {
	opts Options
	log  log.FieldLogger

	coll *ebpf.Collection
	lnk  link.Link

	src      RecordSource
	consumer *Consumer
	counters Counters
	stats    func() (fastpath.StatsSnapshot, error)

	stopping chan struct{}
	stopOnce sync.Once
	gone     chan struct{} // closed when the consumer, or Run without one, returns
	goneOnce sync.Once
}

func newRelay(opts Options) *relay {
	if opts.Log == nil {
		opts.Log = log.StandardLogger()
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Second
	}
	return &relay{
		opts:     opts,
		log:      opts.Log.WithField("role", opts.Role.String()),
		stopping: make(chan struct{}),
		gone:     make(chan struct{}),
	}
}

func (r *relay) setSource(src RecordSource) {
	r.src = src
	r.consumer = &Consumer{
		Source:    src,
		Size:      r.opts.Image.Data.Size,
		Counters:  &r.counters,
		FirstWait: r.opts.FirstWait,
		Wait:      r.opts.Wait,
		Dump:      r.opts.Dump,
		Log:       r.log,
	}
}

// New loads the role's object, attaches it to the interface and, for the
// hardworker, opens the snapshot ring.
func New(opts Options) (Relay, error) {
	if strings.TrimSpace(opts.Interface) == "" {
		return nil, fmt.Errorf("interface name is required")
	}
	iface, err := net.InterfaceByName(opts.Interface)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %q: %w", opts.Interface, err)
	}

	path := opts.Object
	if path == "" {
		dir, err := utility.ObjectDir()
		if err != nil {
			return nil, fmt.Errorf("locate objects: %w", err)
		}
		path = filepath.Join(dir, bpf.ObjectFile(opts.Role))
	}
	spec, err := bpf.LoadSpec(path, opts.Role, opts.Image)
	if err != nil {
		return nil, err
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	r := newRelay(opts)
	r.coll = coll
	r.stats = func() (fastpath.StatsSnapshot, error) { return bpf.SumStats(coll.Maps[bpf.StatsMap]) }

	prog := coll.Programs[opts.Role.ProgramName()]
	lnk, mode, err := attach(prog, iface.Index)
	if err != nil {
		coll.Close()
		return nil, fmt.Errorf("attach %s to %s: %w", opts.Role, iface.Name, err)
	}
	r.lnk = lnk

	if opts.Role == consts.Hardworker {
		src, err := NewKernelSource(coll.Maps[bpf.TargetMap])
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open %s: %w", bpf.TargetMap, err)
		}
		src.Log = r.log
		r.setSource(src)
	}

	r.log.WithFields(log.Fields{
		"iface":  iface.Name,
		"mode":   mode,
		"object": path,
	}).Info("XDP program attached")
	return r, nil
}

// NewModel runs the consumer over the user-space model's ring instead of a
// kernel program. Nothing is attached; frames are fed through prog.
func NewModel(opts Options, prog *fastpath.Program) Relay {
	r := newRelay(opts)
	r.stats = func() (fastpath.StatsSnapshot, error) { return prog.Stats.Snapshot(), nil }
	if opts.Role == consts.Hardworker {
		r.setSource(NewRingSource(prog.Ring))
	}
	return r
}

// attach prefers native mode and falls back to generic (SKB) mode.
func attach(prog *ebpf.Program, ifindex int) (link.Link, string, error) {
	l, err := link.AttachXDP(link.XDPOptions{Program: prog, Interface: ifindex})
	if err == nil {
		return l, "native", nil
	}
	l, errGeneric := link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: ifindex,
		Flags:     link.XDPGenericMode,
	})
	if errGeneric != nil {
		return nil, "", errors.Join(err, errGeneric)
	}
	return l, "generic", nil
}
