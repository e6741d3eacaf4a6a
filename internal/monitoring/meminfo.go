package monitoring

import (
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"
)

// memTotalBytes reports the host's total physical memory.
func memTotalBytes() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}

// cgroupMemoryLimitBytes reads a container memory limit from cgroup v2 or
// v1, falling back to "not set" when neither file exists or the value is
// the kernel's "no limit" sentinel.
func cgroupMemoryLimitBytes() (uint64, bool) {
	if b, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		s := strings.TrimSpace(string(b))
		if s == "max" {
			return 0, false
		}
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			return v, true
		}
	}

	if b, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		s := strings.TrimSpace(string(b))
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			// cgroup v1 reports a huge sentinel (close to the platform max)
			// when no limit is configured; treat anything absurd as unset.
			const noLimitThreshold = uint64(1) << 62
			if v < noLimitThreshold {
				return v, true
			}
		}
	}

	return 0, false
}
