// Package hostinfo reads host memory and per-process fault counters for
// diagnostics.
package hostinfo

import (
	"context"
	"os"

	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"
)

// Memory is a snapshot of host memory.
type Memory struct {
	Total     uint64
	Available uint64
	Cached    uint64
}

// HostMemory returns the current host memory snapshot.
func HostMemory(ctx context.Context) (Memory, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Memory{}, err
	}
	return Memory{
		Total:     vm.Total,
		Available: vm.Available,
		Cached:    vm.Cached,
	}, nil
}

// Faults counts page faults taken by a process.
type Faults struct {
	Minor uint64
	Major uint64
}

// Sub returns f - prev.
func (f Faults) Sub(prev Faults) Faults {
	return Faults{
		Minor: f.Minor - prev.Minor,
		Major: f.Major - prev.Major,
	}
}

// FaultCounter reads the fault counters of one process.
type FaultCounter struct {
	proc *process.Process
}

// Self returns a FaultCounter for the calling process.
func Self() (*FaultCounter, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &FaultCounter{proc: p}, nil
}

// Read returns the current counters.
func (c *FaultCounter) Read(ctx context.Context) (Faults, error) {
	st, err := c.proc.PageFaultsWithContext(ctx)
	if err != nil {
		return Faults{}, err
	}
	return Faults{Minor: st.MinorFaults, Major: st.MajorFaults}, nil
}
