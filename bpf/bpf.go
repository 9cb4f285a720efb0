// bpf/bpf.go
// Package bpf loads the per-role XDP objects compiled from the C sources in
// this directory and runs them on single frames for conformance checks.
package bpf

import (
	"errors"
	"fmt"

	"xdptriangle/consts"
	"xdptriangle/fastpath"

	"github.com/cilium/ebpf"
)

//go:generate make

// Map names shared with common.h and hardworker.c.
const (
	TargetMap = "TARGET_MAP"
	StatsMap  = "STATS_MAP"
)

// ErrRingMapNotFound is returned for a hardworker object without TARGET_MAP.
var ErrRingMapNotFound = errors.New("ring map not found")

// ObjectFile is the object built for role.
func ObjectFile(role consts.Role) string { return role.ProgramName() + ".o" }

// LoadSpec reads the object at path and checks that it carries role's
// program and, for the hardworker, a ring sized for img.
func LoadSpec(path string, role consts.Role, img consts.Image) (*ebpf.CollectionSpec, error) {
	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, fmt.Errorf("load spec %q: %w", path, err)
	}
	if _, ok := spec.Programs[role.ProgramName()]; !ok {
		return nil, fmt.Errorf("%s: program %q not found", path, role.ProgramName())
	}
	if _, ok := spec.Maps[StatsMap]; !ok {
		return nil, fmt.Errorf("%s: map %s not found", path, StatsMap)
	}
	if role != consts.Hardworker {
		return spec, nil
	}

	ring, ok := spec.Maps[TargetMap]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrRingMapNotFound)
	}
	if want := consts.RingCapacity(img.Data.Size); int(ring.MaxEntries) != want {
		return nil, fmt.Errorf("%s: %s holds %d bytes, const image wants %d; rebuild the objects",
			path, TargetMap, ring.MaxEntries, want)
	}
	return spec, nil
}

// SumStats folds the per-CPU STATS_MAP into one snapshot.
func SumStats(m *ebpf.Map) (fastpath.StatsSnapshot, error) {
	var out fastpath.StatsSnapshot
	if m == nil {
		return out, fmt.Errorf("map %s not loaded", StatsMap)
	}
	for k := fastpath.Stat(0); k < fastpath.NumStats; k++ {
		var percpu []uint64
		if err := m.Lookup(uint32(k), &percpu); err != nil {
			return out, fmt.Errorf("lookup %s[%s]: %w", StatsMap, k, err)
		}
		for _, v := range percpu {
			out[k] += v
		}
	}
	return out, nil
}
