//go:build linux

package safety

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// cpuSampler computes system CPU utilization from consecutive /proc/stat
// aggregate lines. The first sample has no baseline and reports -1.
type cpuSampler struct {
	prevIdle  uint64
	prevTotal uint64
	primed    bool
}

func (s *cpuSampler) Sample() (float64, error) {
	idle, total, err := readProcStat()
	if err != nil {
		return -1, err
	}

	if !s.primed {
		s.prevIdle, s.prevTotal, s.primed = idle, total, true
		return -1, nil
	}

	dIdle := float64(idle - s.prevIdle)
	dTotal := float64(total - s.prevTotal)
	s.prevIdle, s.prevTotal = idle, total

	if dTotal <= 0 {
		return -1, nil
	}
	return (1.0 - dIdle/dTotal) * 100.0, nil
}

func readProcStat() (idle, total uint64, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected /proc/stat format")
	}
	for i, f := range fields[1:] {
		v, perr := strconv.ParseUint(f, 10, 64)
		if perr != nil {
			return 0, 0, perr
		}
		total += v
		// idle + iowait
		if i == 3 || i == 4 {
			idle += v
		}
	}
	return idle, total, nil
}
