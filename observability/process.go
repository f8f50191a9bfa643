package observability

import (
	"os"

	"github.com/shirou/gopsutil/process"
)

// ProcessStats is a point-in-time view of the server process.
type ProcessStats struct {
	RSS        uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
}

// SelfStats reads memory and CPU usage of the current process.
func SelfStats() (ProcessStats, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ProcessStats{}, err
	}
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return ProcessStats{}, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return ProcessStats{}, err
	}
	return ProcessStats{RSS: memInfo.RSS, CPUPercent: cpuPercent}, nil
}
