package sysinfo

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/psantana5/nodehost/pkg/models"
)

// DefaultWorkerCount returns the worker pool size to use when none is
// configured: the machine's logical CPU count.
func DefaultWorkerCount() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Snapshot collects a best-effort description of the machine. Probe
// failures leave the affected fields zeroed rather than failing the call.
func Snapshot() models.SystemInfo {
	info := models.SystemInfo{
		GoVersion: runtime.Version(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	if n, err := cpu.Counts(true); err == nil {
		info.CPUThreads = n
	} else {
		info.CPUThreads = runtime.NumCPU()
	}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		info.CPUModel = infos[0].ModelName
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		info.RAMBytes = vmem.Total
	}

	return info
}
