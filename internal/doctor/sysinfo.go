package doctor

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo is the host summary printed by `trellis init` and on failures.
type SystemInfo struct {
	OS              string
	Platform        string
	PlatformVersion string
	Arch            string
	CPUModel        string
	CPUs            int
	MemoryTotal     uint64
	MemoryUsed      uint64
	MemPercent      float64
}

// GetSystemInfo collects what gopsutil can tell about the host. Fields it
// cannot read stay zero.
func GetSystemInfo(ctx context.Context) SystemInfo {
	info := SystemInfo{OS: runtime.GOOS, Arch: runtime.GOARCH}

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		if h.KernelArch != "" {
			info.Arch = h.KernelArch
		}
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUs = n
	}
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryUsed = vm.Used
		info.MemPercent = vm.UsedPercent
	}
	return info
}

// Rows returns the summary as label/value pairs for a table.
func (s SystemInfo) Rows() [][]string {
	platform := s.OS
	if s.Platform != "" {
		platform = fmt.Sprintf("%s %s", s.Platform, s.PlatformVersion)
	}
	rows := [][]string{
		{"Platform", platform},
		{"Arch", s.Arch},
	}
	if s.CPUs > 0 {
		cpu := fmt.Sprintf("%d cores", s.CPUs)
		if s.CPUModel != "" {
			cpu = fmt.Sprintf("%s (%d cores)", s.CPUModel, s.CPUs)
		}
		rows = append(rows, []string{"CPU", cpu})
	}
	if s.MemoryTotal > 0 {
		rows = append(rows, []string{"Memory", fmt.Sprintf("%s / %s (%.0f%%)",
			formatBytes(s.MemoryUsed), formatBytes(s.MemoryTotal), s.MemPercent)})
	}
	return rows
}

// formatBytes formats bytes into a human-readable string
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
