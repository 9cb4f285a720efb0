// bpf/runner.go
package bpf

import (
	"fmt"

	"xdptriangle/consts"
	"xdptriangle/fastpath"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
)

// Runner holds a loaded but unattached role program and feeds it frames
// through BPF_PROG_TEST_RUN.
type Runner struct {
	Role consts.Role

	coll *ebpf.Collection
	prog *ebpf.Program
}

func NewRunner(spec *ebpf.CollectionSpec, role consts.Role) (*Runner, error) {
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	prog := coll.Programs[role.ProgramName()]
	if prog == nil {
		coll.Close()
		return nil, fmt.Errorf("program %q not found", role.ProgramName())
	}
	return &Runner{Role: role, coll: coll, prog: prog}, nil
}

// Run executes the program on a copy of frame and returns the disposition
// with the frame as the program left it.
func (r *Runner) Run(frame []byte) (fastpath.Action, []byte, error) {
	opts := ebpf.RunOptions{
		Data:    frame,
		DataOut: make([]byte, len(frame)+256),
		Repeat:  1,
	}
	ret, err := r.prog.Run(&opts)
	if err != nil {
		return fastpath.Aborted, nil, fmt.Errorf("test run %s: %w", r.Role, err)
	}
	return fastpath.Action(ret), opts.DataOut, nil
}

// Stats sums the program's STATS_MAP.
func (r *Runner) Stats() (fastpath.StatsSnapshot, error) {
	return SumStats(r.coll.Maps[StatsMap])
}

// Map returns one of the collection's maps, or nil.
func (r *Runner) Map(name string) *ebpf.Map { return r.coll.Maps[name] }

// Ring opens a reader on TARGET_MAP; the caller closes it.
func (r *Runner) Ring() (*ringbuf.Reader, error) {
	m := r.coll.Maps[TargetMap]
	if m == nil {
		return nil, ErrRingMapNotFound
	}
	return ringbuf.NewReader(m)
}

func (r *Runner) Close() error {
	r.coll.Close()
	return nil
}
